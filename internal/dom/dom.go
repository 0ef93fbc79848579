// Package dom abstracts the guest document a bridge agent observes and
// drives. The production implementation speaks the Chrome DevTools Protocol
// (see the cdpdom subpackage); tests use an in-memory document.
package dom

import (
	"context"
	"errors"
	"fmt"

	"github.com/scalewob/wobbridge/pkg/wire"
)

// ErrNotFound is returned by Query when a selector matches no element.
var ErrNotFound = errors.New("element not found")

// NotFound wraps ErrNotFound with the offending selector.
func NotFound(selector string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, selector)
}

// EventType names a raw DOM event category delivered by Listen.
type EventType string

const (
	EvtClick      EventType = "click"
	EvtKeydown    EventType = "keydown"
	EvtFocus      EventType = "focus"
	EvtBlur       EventType = "blur"
	EvtSubmit     EventType = "submit"
	EvtTouchStart EventType = "touchstart"
	EvtScroll     EventType = "scroll"
	EvtWheel      EventType = "wheel"
	EvtTouchMove  EventType = "touchmove"
)

// TargetInfo describes the element a raw event fired on.
type TargetInfo struct {
	TagName     string
	ID          string
	ClassName   string
	Text        string
	Type        string
	Name        string
	Value       string
	Placeholder string
	Action      string
	Method      string
}

// Describe renders the target as TAG or TAG#id for log lines.
func (t TargetInfo) Describe() string {
	if t.ID != "" {
		return t.TagName + "#" + t.ID
	}
	return t.TagName
}

// Event is one raw occurrence in the guest document. Which fields are
// meaningful depends on Type.
type Event struct {
	Type   EventType
	Target TargetInfo

	// Pointer / touch coordinates.
	X, Y float64
	// Keyboard.
	Key, Code              string
	Ctrl, Shift, Alt, Meta bool
	// Wheel.
	DeltaX, DeltaY float64
	DeltaMode      int
	// Touch.
	TouchCount int
	// Document scroll position, for EvtScroll on the document itself.
	ScrollTop float64
	// True when the scroll event came from a scrollable descendant rather
	// than the document.
	FromDescendant bool
}

// MutationRecord summarizes one observed DOM mutation.
type MutationRecord struct {
	AddedNodes int
	Target     string // element description, e.g. "DIV#list"
}

// Location is the guest document's current address.
type Location struct {
	Href   string
	Origin string
	Path   string
}

// Element is a live handle on a guest document element.
type Element interface {
	Info() wire.ElementInfo
	Click() error
	Focus() error
	ScrollIntoView() error
	Value() string
	SetValue(v string) error
	// AppendValue appends one typed chunk to the element's value.
	AppendValue(s string) error
	DispatchInput() error
	DispatchChange() error
}

// Document is the guest document surface the bridge agent needs. The
// implementation owns scrollable-descendant discovery: scroll events from
// dynamically found scrollable nodes arrive through Listen(EvtScroll, ...)
// with FromDescendant set.
type Document interface {
	Location() Location
	Title() string
	ReadyState() string
	Viewport() wire.Size
	ContentSize() wire.Size

	Query(selector string) (Element, error)
	Navigate(url string) error
	ScrollTo(x, y float64)
	LoadScript(ctx context.Context, url string) error

	// Listen registers a handler for a raw event type; the returned func
	// removes exactly that registration.
	Listen(t EventType, capture bool, fn func(Event)) (remove func())
	// ObserveMutations registers a mutation handler; the returned func
	// disconnects exactly that observer.
	ObserveMutations(fn func(MutationRecord)) (stop func())
}
