package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scalewob/wobbridge/internal/dom"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/pkg/wire"
)

const (
	defaultClickDelay  = 100 * time.Millisecond
	defaultTypingDelay = 50 * time.Millisecond
)

// Executor runs remote commands against the guest document. Every outcome,
// success or failure, becomes a correlated response envelope; Execute never
// lets an error escape the messaging boundary.
type Executor struct {
	doc    dom.Document
	bridge *Bridge
	clock  Clock
}

// NewExecutor wires an executor to the document and the bridge it reports
// side effects through.
func NewExecutor(doc dom.Document, bridge *Bridge, clock Clock) *Executor {
	if clock == nil {
		clock = NewClock()
	}
	return &Executor{doc: doc, bridge: bridge, clock: clock}
}

// Execute runs one command and returns the response correlated to its id.
func (x *Executor) Execute(ctx context.Context, cmd wire.CommandEnvelope) wire.ResponseEnvelope {
	kind := wire.CommandKind(cmd.Payload.Command)
	logx.Log.Debug().Str("id", cmd.ID).Str("command", string(kind)).Msg("executing command")

	result, err := x.run(ctx, kind, cmd.Payload)
	if err != nil {
		logx.Log.Warn().Str("id", cmd.ID).Str("command", string(kind)).Err(err).Msg("command failed")
		return wire.NewErrorResponse(cmd.ID, err)
	}
	return wire.NewResponse(cmd.ID, result)
}

func (x *Executor) run(ctx context.Context, kind wire.CommandKind, p wire.CommandPayload) (any, error) {
	switch kind {
	case wire.CmdClick:
		var params wire.ClickParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return x.click(ctx, params)
	case wire.CmdType:
		var params wire.TypeParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return x.typeText(ctx, params)
	case wire.CmdNavigate:
		var params wire.NavigateParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return x.navigate(params)
	case wire.CmdGetState:
		return x.state(), nil
	case wire.CmdLoadScript:
		var params wire.ScriptParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return x.loadScript(ctx, params)
	case wire.CmdScroll:
		var params wire.ScrollParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		x.doc.ScrollTo(params.X, params.Y)
		return map[string]any{"x": params.X, "y": params.Y}, nil
	case wire.CmdWait:
		var params wire.WaitParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		if err := sleep(ctx, x.clock, time.Duration(params.MS)*time.Millisecond); err != nil {
			return nil, err
		}
		return map[string]any{"waited": params.MS}, nil
	case wire.CmdGetElementInfo:
		var params wire.SelectorParams
		if err := wire.DecodeParams(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return x.elementInfo(params.Selector)
	case wire.CmdScreenshot:
		// Capability not implemented; callers get a placeholder rather
		// than a failure so scripted sequences keep going.
		return map[string]any{"screenshot": nil, "message": "screenshot capability not implemented"}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", kind)
	}
}

func (x *Executor) click(ctx context.Context, params wire.ClickParams) (any, error) {
	el, err := x.doc.Query(params.Selector)
	if err != nil {
		return nil, err
	}
	if err := el.ScrollIntoView(); err != nil {
		return nil, fmt.Errorf("scroll into view: %w", err)
	}
	delay := defaultClickDelay
	if params.Options.Delay > 0 {
		delay = time.Duration(params.Options.Delay) * time.Millisecond
	}
	if err := sleep(ctx, x.clock, delay); err != nil {
		return nil, err
	}
	if err := el.Click(); err != nil {
		return nil, fmt.Errorf("click %s: %w", params.Selector, err)
	}
	return map[string]any{"clicked": params.Selector}, nil
}

// typeText focuses the element, clears it, then appends the text one
// character at a time with an input event per character and a single change
// event at the end, mimicking a human typist.
func (x *Executor) typeText(ctx context.Context, params wire.TypeParams) (any, error) {
	el, err := x.doc.Query(params.Selector)
	if err != nil {
		return nil, err
	}
	switch tag := el.Info().TagName; tag {
	case "INPUT", "TEXTAREA":
	default:
		return nil, fmt.Errorf("cannot type into %s element", tag)
	}
	if err := el.Focus(); err != nil {
		return nil, fmt.Errorf("focus %s: %w", params.Selector, err)
	}
	if err := el.SetValue(""); err != nil {
		return nil, fmt.Errorf("clear %s: %w", params.Selector, err)
	}
	delay := defaultTypingDelay
	if params.Options.TypingDelay > 0 {
		delay = time.Duration(params.Options.TypingDelay) * time.Millisecond
	}
	chars := []rune(params.Text)
	for i, ch := range chars {
		if err := el.AppendValue(string(ch)); err != nil {
			return nil, fmt.Errorf("type into %s: %w", params.Selector, err)
		}
		if err := el.DispatchInput(); err != nil {
			return nil, fmt.Errorf("dispatch input: %w", err)
		}
		if i < len(chars)-1 {
			if err := sleep(ctx, x.clock, delay); err != nil {
				return nil, err
			}
		}
	}
	if err := el.DispatchChange(); err != nil {
		return nil, fmt.Errorf("dispatch change: %w", err)
	}
	return map[string]any{"typed": len(chars), "selector": params.Selector}, nil
}

func (x *Executor) navigate(params wire.NavigateParams) (any, error) {
	url := params.URL
	if url == "" {
		return nil, errors.New("navigate: url is required")
	}
	if strings.HasPrefix(url, "/") {
		url = x.doc.Location().Origin + url
	}
	if err := x.doc.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	x.bridge.Emit(wire.EventNavigation, "Navigated to "+url, map[string]any{"url": url})
	return map[string]any{"url": url}, nil
}

func (x *Executor) state() wire.EnvState {
	return wire.EnvState{
		URL:        x.doc.Location().Href,
		Title:      x.doc.Title(),
		ReadyState: x.doc.ReadyState(),
		Viewport:   x.doc.Viewport(),
		Document:   x.doc.ContentSize(),
		Timestamp:  x.clock.Now().UnixMilli(),
	}
}

func (x *Executor) loadScript(ctx context.Context, params wire.ScriptParams) (any, error) {
	if params.URL == "" {
		return nil, errors.New("load-script: url is required")
	}
	if err := x.doc.LoadScript(ctx, params.URL); err != nil {
		return nil, fmt.Errorf("load script %s: %w", params.URL, err)
	}
	x.bridge.Emit(wire.EventOther, "Loaded script "+params.URL, map[string]any{"url": params.URL})
	return map[string]any{"loaded": params.URL}, nil
}

func (x *Executor) elementInfo(selector string) (any, error) {
	el, err := x.doc.Query(selector)
	if err != nil {
		return nil, err
	}
	info := el.Info()
	info.Text = truncate(info.Text, 100)
	info.Value = truncate(info.Value, 100)
	return info, nil
}
