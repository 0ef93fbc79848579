package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scalewob/wobbridge/internal/dom"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// EmitFunc receives every event envelope the bridge produces. The bridge
// does not care whether frames reach a live connection; delivery failures
// are the transport's problem.
type EmitFunc func(wire.EventEnvelope)

// BridgeOptions tune event capture.
type BridgeOptions struct {
	Clock          Clock
	ReadyDelay     time.Duration
	ScrollDebounce time.Duration
}

// Bridge attaches to a guest document, reports everything that happens in
// it as event envelopes, and tears itself down cleanly. One Bridge serves
// one document; Start and Close are the whole lifecycle.
type Bridge struct {
	doc  dom.Document
	emit EmitFunc
	ids  *wire.IDGenerator
	opts BridgeOptions

	mu      sync.Mutex
	removes []func()
	started bool
	closed  bool
	lastURL string

	scroll *scrollUnifier
}

// NewBridge wires a bridge to a document and an event sink. Call Start to
// begin capture.
func NewBridge(doc dom.Document, emit EmitFunc, opts BridgeOptions) *Bridge {
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	if opts.ReadyDelay <= 0 {
		opts.ReadyDelay = 100 * time.Millisecond
	}
	b := &Bridge{doc: doc, emit: emit, ids: &wire.IDGenerator{}, opts: opts}
	b.scroll = newScrollUnifier(opts.Clock, opts.ScrollDebounce, time.Second, b.Emit)
	return b
}

// Start registers all document listeners and, after the ready delay,
// announces the bridge with an init event. Idempotent.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return nil
	}
	b.started = true

	b.listen(dom.EvtClick, true, b.onClick)
	b.listen(dom.EvtKeydown, true, b.onKeydown)
	b.listen(dom.EvtFocus, true, b.onFocus)
	b.listen(dom.EvtBlur, true, b.onBlur)
	b.listen(dom.EvtSubmit, true, b.onSubmit)
	b.listen(dom.EvtTouchStart, true, b.onTouchStart)
	b.listen(dom.EvtScroll, true, b.onScrollFamily)
	b.listen(dom.EvtWheel, true, b.onScrollFamily)
	b.listen(dom.EvtTouchMove, true, b.onScrollFamily)
	stop := b.doc.ObserveMutations(b.onMutation)
	b.removes = append(b.removes, stop)
	b.mu.Unlock()

	// Give late-loading page scripts a moment to settle before we declare
	// the environment ready.
	if err := sleep(ctx, b.opts.Clock, b.opts.ReadyDelay); err != nil {
		return err
	}

	loc := b.doc.Location()
	b.mu.Lock()
	b.lastURL = loc.Href
	b.mu.Unlock()
	logx.Log.Info().Str("url", loc.Href).Msg("bridge initialized")
	b.Emit(wire.EventInit, "Bridge initialized", map[string]any{
		"url":        loc.Href,
		"title":      b.doc.Title(),
		"readyState": b.doc.ReadyState(),
	})
	return nil
}

// Close removes every listener the bridge registered and stops the scroll
// unifier. Only Close consumes the subscription set; nothing is removed
// piecemeal. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	removes := b.removes
	b.removes = nil
	b.mu.Unlock()

	for _, rm := range removes {
		rm()
	}
	b.scroll.close()
	logx.Log.Debug().Int("listeners", len(removes)).Msg("bridge closed")
}

// Emit sends one classified event. Exposed so command execution can report
// side effects (navigation, script loads) through the same channel.
func (b *Bridge) Emit(kind wire.EventKind, message string, data map[string]any) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["message"] = message
	b.emit(wire.EventEnvelope{
		Type:      wire.TypeEvent,
		ID:        b.ids.Next(),
		Timestamp: b.opts.Clock.Now().UnixMilli(),
		Payload:   wire.EventPayload{EventType: string(kind), Data: data},
	})
}

func (b *Bridge) listen(t dom.EventType, capture bool, fn func(dom.Event)) {
	rm := b.doc.Listen(t, capture, fn)
	b.removes = append(b.removes, rm)
}

func (b *Bridge) onClick(e dom.Event) {
	data := map[string]any{
		"target": e.Target.Describe(),
		"tag":    e.Target.TagName,
		"id":     e.Target.ID,
		"class":  e.Target.ClassName,
		"text":   truncate(e.Target.Text, 50),
		"x":      e.X,
		"y":      e.Y,
	}
	if e.Target.Type != "" {
		data["inputType"] = e.Target.Type
		data["name"] = e.Target.Name
		data["value"] = truncate(e.Target.Value, 30)
	}
	b.Emit(wire.EventClick, "Clicked "+e.Target.Describe(), data)
}

// typingCapable reports whether the element accepts keyboard text input.
func typingCapable(t dom.TargetInfo) bool {
	switch t.TagName {
	case "INPUT", "TEXTAREA", "SELECT":
		return true
	}
	return false
}

func (b *Bridge) onKeydown(e dom.Event) {
	key := e.Key
	// Value contents stay on the guest side; only the key identity travels,
	// and printable characters from password fields are masked.
	if e.Target.Type == "password" && len(key) == 1 {
		key = "*"
	}
	b.Emit(wire.EventKeypress, fmt.Sprintf("Pressed %q in %s", key, e.Target.Describe()), map[string]any{
		"key":      key,
		"code":     e.Code,
		"ctrl":     e.Ctrl,
		"shift":    e.Shift,
		"alt":      e.Alt,
		"meta":     e.Meta,
		"target":   e.Target.Describe(),
		"isTyping": typingCapable(e.Target),
	})
}

func (b *Bridge) onFocus(e dom.Event) {
	b.Emit(wire.EventFocus, "Focused "+e.Target.Describe(), map[string]any{
		"target":      e.Target.Describe(),
		"type":        e.Target.Type,
		"name":        e.Target.Name,
		"placeholder": e.Target.Placeholder,
	})
}

func (b *Bridge) onBlur(e dom.Event) {
	b.Emit(wire.EventBlur, "Left "+e.Target.Describe(), map[string]any{
		"target":      e.Target.Describe(),
		"type":        e.Target.Type,
		"name":        e.Target.Name,
		"valueLength": len(e.Target.Value),
	})
}

func (b *Bridge) onSubmit(e dom.Event) {
	b.Emit(wire.EventSubmit, "Submitted "+e.Target.Describe(), map[string]any{
		"target": e.Target.Describe(),
		"action": e.Target.Action,
		"method": e.Target.Method,
	})
}

func (b *Bridge) onTouchStart(e dom.Event) {
	b.Emit(wire.EventTouch, fmt.Sprintf("Touched %s (%d finger(s))", e.Target.Describe(), e.TouchCount), map[string]any{
		"target":     e.Target.Describe(),
		"x":          e.X,
		"y":          e.Y,
		"touchCount": e.TouchCount,
	})
}

func (b *Bridge) onScrollFamily(e dom.Event) {
	b.scroll.observe(sampleFromEvent(b.doc, e))
}

// onMutation reports added nodes and doubles as the navigation detector:
// any mutation is an occasion to compare the current href against the last
// observed one.
func (b *Bridge) onMutation(m dom.MutationRecord) {
	loc := b.doc.Location()
	b.mu.Lock()
	from := b.lastURL
	changed := loc.Href != from
	if changed {
		b.lastURL = loc.Href
	}
	b.mu.Unlock()
	if changed && from != "" {
		b.Emit(wire.EventNavigation, "Navigated to "+loc.Path, map[string]any{
			"from": from,
			"to":   loc.Href,
			"path": loc.Path,
		})
	}

	if m.AddedNodes == 0 {
		return
	}
	b.Emit(wire.EventDOMChange, fmt.Sprintf("DOM updated: %d node(s) added to %s", m.AddedNodes, m.Target), map[string]any{
		"addedNodes": m.AddedNodes,
		"target":     m.Target,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
