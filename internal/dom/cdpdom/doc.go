// Package cdpdom implements the dom.Document surface over the Chrome
// DevTools Protocol. A bootstrap script injected into the attached page
// reports raw interactions through a runtime binding; commands run as
// evaluated expressions.
package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/tidwall/gjson"

	"github.com/scalewob/wobbridge/internal/dom"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// Document drives one DevTools page target.
type Document struct {
	conn   *rpcc.Conn
	c      *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	nextID    int
	listeners map[dom.EventType]map[int]func(dom.Event)
	observers map[int]func(dom.MutationRecord)
}

// Attach connects to a browser's DevTools endpoint and takes over one page
// target. An empty targetID selects the first page target.
func Attach(ctx context.Context, devtoolsURL, targetID string) (*Document, error) {
	dt := devtool.New(devtoolsURL)
	var target *devtool.Target
	if targetID == "" {
		t, err := dt.Get(ctx, devtool.Page)
		if err != nil {
			return nil, fmt.Errorf("no page target: %w", err)
		}
		target = t
	} else {
		targets, err := dt.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		for _, t := range targets {
			if string(t.ID) == targetID {
				target = t
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("target %s not found", targetID)
		}
	}

	conn, err := rpcc.DialContext(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial target: %w", err)
	}

	docCtx, cancel := context.WithCancel(context.Background())
	d := &Document{
		conn:      conn,
		c:         cdp.NewClient(conn),
		ctx:       docCtx,
		cancel:    cancel,
		listeners: make(map[dom.EventType]map[int]func(dom.Event)),
		observers: make(map[int]func(dom.MutationRecord)),
	}

	if err := d.c.Page.Enable(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("enable page domain: %w", err)
	}
	if err := d.c.Runtime.Enable(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("enable runtime domain: %w", err)
	}
	if err := d.c.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(bindingName)); err != nil {
		d.Close()
		return nil, fmt.Errorf("add binding: %w", err)
	}
	stream, err := d.c.Runtime.BindingCalled(docCtx)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("subscribe binding: %w", err)
	}
	go d.consume(stream)

	// Install the tracker in future documents and in the current one.
	if _, err := d.c.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(bootstrapJS)); err != nil {
		d.Close()
		return nil, fmt.Errorf("install bootstrap: %w", err)
	}
	if _, err := d.eval(bootstrapJS); err != nil {
		d.Close()
		return nil, fmt.Errorf("bootstrap current document: %w", err)
	}

	logx.Log.Info().Str("target", string(target.ID)).Str("url", target.URL).Msg("attached to page target")
	return d, nil
}

// Close detaches from the target and stops event dispatch.
func (d *Document) Close() {
	d.cancel()
	_ = d.conn.Close()
}

// WaitReady polls the document ready state for up to timeout, then returns
// regardless of the outcome. Proceeding on timeout is deliberate: a guest
// that never settles must not stall the agent.
func (d *Document) WaitReady(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch d.ReadyState() {
		case "interactive", "complete":
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	logx.Log.Debug().Dur("timeout", timeout).Msg("document not ready; proceeding")
	return false
}

func (d *Document) consume(stream runtime.BindingCalledClient) {
	defer func() {
		_ = stream.Close()
	}()
	for {
		reply, err := stream.Recv()
		if err != nil {
			if d.ctx.Err() == nil {
				logx.Log.Error().Err(err).Msg("binding stream closed")
			}
			return
		}
		if reply.Name != bindingName {
			continue
		}
		d.dispatch(gjson.Parse(reply.Payload))
	}
}

func (d *Document) dispatch(msg gjson.Result) {
	if msg.Get("evt").String() == "mutation" {
		rec := dom.MutationRecord{
			AddedNodes: int(msg.Get("addedNodes").Int()),
			Target:     msg.Get("mutationTarget").String(),
		}
		for _, fn := range d.observerSnapshot() {
			fn(rec)
		}
		return
	}

	t := dom.EventType(msg.Get("evt").String())
	ev := dom.Event{
		Type:           t,
		Target:         parseTarget(msg.Get("target")),
		X:              msg.Get("x").Float(),
		Y:              msg.Get("y").Float(),
		Key:            msg.Get("key").String(),
		Code:           msg.Get("code").String(),
		Ctrl:           msg.Get("ctrl").Bool(),
		Shift:          msg.Get("shift").Bool(),
		Alt:            msg.Get("alt").Bool(),
		Meta:           msg.Get("meta").Bool(),
		DeltaX:         msg.Get("deltaX").Float(),
		DeltaY:         msg.Get("deltaY").Float(),
		DeltaMode:      int(msg.Get("deltaMode").Int()),
		TouchCount:     int(msg.Get("touchCount").Int()),
		ScrollTop:      msg.Get("scrollTop").Float(),
		FromDescendant: msg.Get("fromDescendant").Bool(),
	}
	for _, fn := range d.listenerSnapshot(t) {
		fn(ev)
	}
}

func (d *Document) listenerSnapshot(t dom.EventType) []func(dom.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]func(dom.Event), 0, len(d.listeners[t]))
	for _, fn := range d.listeners[t] {
		out = append(out, fn)
	}
	return out
}

func (d *Document) observerSnapshot() []func(dom.MutationRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]func(dom.MutationRecord), 0, len(d.observers))
	for _, fn := range d.observers {
		out = append(out, fn)
	}
	return out
}

func parseTarget(t gjson.Result) dom.TargetInfo {
	return dom.TargetInfo{
		TagName:     t.Get("tagName").String(),
		ID:          t.Get("id").String(),
		ClassName:   t.Get("className").String(),
		Text:        t.Get("text").String(),
		Type:        t.Get("type").String(),
		Name:        t.Get("name").String(),
		Value:       t.Get("value").String(),
		Placeholder: t.Get("placeholder").String(),
		Action:      t.Get("action").String(),
		Method:      t.Get("method").String(),
	}
}

// eval evaluates an expression in the page, returning its JSON value.
func (d *Document) eval(expr string) (gjson.Result, error) {
	return d.evalCtx(d.ctx, expr, false)
}

func (d *Document) evalCtx(ctx context.Context, expr string, awaitPromise bool) (gjson.Result, error) {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true)
	if awaitPromise {
		args = args.SetAwaitPromise(true)
	}
	reply, err := d.c.Runtime.Evaluate(ctx, args)
	if err != nil {
		return gjson.Result{}, err
	}
	if reply.ExceptionDetails != nil {
		return gjson.Result{}, errors.New(exceptionText(reply.ExceptionDetails))
	}
	return gjson.ParseBytes(reply.Result.Value), nil
}

func exceptionText(ed *runtime.ExceptionDetails) string {
	if ed.Exception != nil && ed.Exception.Description != nil {
		return *ed.Exception.Description
	}
	return ed.Text
}

// Location implements dom.Document.
func (d *Document) Location() dom.Location {
	res, err := d.eval(`({href: location.href, origin: location.origin, path: location.pathname})`)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("read location")
		return dom.Location{}
	}
	return dom.Location{
		Href:   res.Get("href").String(),
		Origin: res.Get("origin").String(),
		Path:   res.Get("path").String(),
	}
}

// Title implements dom.Document.
func (d *Document) Title() string {
	res, err := d.eval(`document.title`)
	if err != nil {
		return ""
	}
	return res.String()
}

// ReadyState implements dom.Document.
func (d *Document) ReadyState() string {
	res, err := d.eval(`document.readyState`)
	if err != nil {
		return ""
	}
	return res.String()
}

// Viewport implements dom.Document.
func (d *Document) Viewport() wire.Size {
	res, err := d.eval(`({width: window.innerWidth, height: window.innerHeight})`)
	if err != nil {
		return wire.Size{}
	}
	return wire.Size{Width: int(res.Get("width").Int()), Height: int(res.Get("height").Int())}
}

// ContentSize implements dom.Document.
func (d *Document) ContentSize() wire.Size {
	res, err := d.eval(`({width: document.documentElement.scrollWidth, height: document.documentElement.scrollHeight})`)
	if err != nil {
		return wire.Size{}
	}
	return wire.Size{Width: int(res.Get("width").Int()), Height: int(res.Get("height").Int())}
}

// Query implements dom.Document. The returned handle re-resolves the
// selector on every operation; the page may re-render between calls.
func (d *Document) Query(selector string) (dom.Element, error) {
	res, err := d.eval(`!!document.querySelector(` + jsString(selector) + `)`)
	if err != nil {
		return nil, err
	}
	if !res.Bool() {
		return nil, dom.NotFound(selector)
	}
	return &element{doc: d, selector: selector}, nil
}

// Navigate implements dom.Document.
func (d *Document) Navigate(url string) error {
	reply, err := d.c.Page.Navigate(d.ctx, page.NewNavigateArgs(url))
	if err != nil {
		return err
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return errors.New(*reply.ErrorText)
	}
	return nil
}

// ScrollTo implements dom.Document.
func (d *Document) ScrollTo(x, y float64) {
	if _, err := d.eval(fmt.Sprintf(`window.scrollTo(%g, %g)`, x, y)); err != nil {
		logx.Log.Warn().Err(err).Msg("scroll to")
	}
}

// LoadScript implements dom.Document.
func (d *Document) LoadScript(ctx context.Context, url string) error {
	expr := `new Promise((resolve, reject) => {
		const s = document.createElement('script');
		s.src = ` + jsString(url) + `;
		s.onload = () => resolve(true);
		s.onerror = () => reject(new Error('script load failed: ' + s.src));
		document.head.appendChild(s);
	})`
	_, err := d.evalCtx(ctx, expr, true)
	return err
}

// Listen implements dom.Document.
func (d *Document) Listen(t dom.EventType, capture bool, fn func(dom.Event)) (remove func()) {
	// The bootstrap script always listens in the capture phase; capture is
	// kept for interface symmetry.
	_ = capture
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if d.listeners[t] == nil {
		d.listeners[t] = make(map[int]func(dom.Event))
	}
	d.listeners[t][id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.listeners[t], id)
		d.mu.Unlock()
	}
}

// ObserveMutations implements dom.Document.
func (d *Document) ObserveMutations(fn func(dom.MutationRecord)) (stop func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.observers[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}
