package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/scalewob/wobbridge/internal/dom"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// scrollSample is one scroll-related signal from any of the four sources:
// document scroll, wheel, touchmove, or a scrollable descendant.
type scrollSample struct {
	message string
	data    map[string]any
	wheel   bool
	deltaX  float64
	deltaY  float64
	mode    int
}

// scrollUnifier coalesces every scroll-related signal into a single
// debounced scroll event. One user gesture can fire a native scroll event,
// several wheel events and touchmoves at once; without unification the
// console drowns in redundant entries for one logical gesture.
//
// All sources share one timer: any signal resets it, and when it fires the
// most recent sample is emitted with the accumulated wheel deltas merged in.
// The accumulator belongs to a "session" that resets after sessionGap of
// silence.
type scrollUnifier struct {
	mu         sync.Mutex
	clock      Clock
	window     time.Duration
	sessionGap time.Duration
	emit       func(kind wire.EventKind, message string, data map[string]any)

	timer        Timer
	last         *scrollSample
	wheelSeen    bool
	wheelMode    int
	accX, accY   float64
	sessionStart time.Time
	lastSignal   time.Time
	closed       bool
}

func newScrollUnifier(clock Clock, window, sessionGap time.Duration, emit func(wire.EventKind, string, map[string]any)) *scrollUnifier {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	if sessionGap <= 0 {
		sessionGap = time.Second
	}
	return &scrollUnifier{clock: clock, window: window, sessionGap: sessionGap, emit: emit}
}

func (u *scrollUnifier) observe(s scrollSample) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	now := u.clock.Now()
	if u.lastSignal.IsZero() || now.Sub(u.lastSignal) > u.sessionGap {
		u.accX, u.accY = 0, 0
		u.wheelSeen = false
		u.sessionStart = now
	}
	u.lastSignal = now

	if s.wheel {
		u.accX += s.deltaX
		u.accY += s.deltaY
		u.wheelSeen = true
		u.wheelMode = s.mode
	}
	u.last = &s

	if u.timer == nil {
		u.timer = u.clock.AfterFunc(u.window, u.flush)
	} else {
		u.timer.Reset(u.window)
	}
}

func (u *scrollUnifier) flush() {
	u.mu.Lock()
	if u.closed || u.last == nil {
		u.mu.Unlock()
		return
	}
	s := *u.last
	message := s.message
	data := make(map[string]any, len(s.data)+6)
	for k, v := range s.data {
		data[k] = v
	}
	if u.wheelSeen && (u.accX != 0 || u.accY != 0) {
		data["deltaX"] = u.accX
		data["deltaY"] = u.accY
		data["deltaMode"] = u.wheelMode
		data["hadWheelInput"] = true
		data["scrollSessionDuration"] = u.clock.Now().Sub(u.sessionStart).Milliseconds()
		message = "Scrolled " + direction(u.accX, u.accY)
	}
	u.last = nil
	u.wheelSeen = false
	u.accX, u.accY = 0, 0
	u.mu.Unlock()

	u.emit(wire.EventScroll, message, data)
}

func (u *scrollUnifier) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	if u.timer != nil {
		u.timer.Stop()
	}
}

// direction labels the dominant accumulated axis; ties resolve to vertical.
func direction(dx, dy float64) string {
	if abs(dx) > abs(dy) {
		if dx > 0 {
			return "right"
		}
		return "left"
	}
	if dy > 0 {
		return "down"
	}
	return "up"
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// sampleFromEvent converts a raw scroll-family DOM event into a sample.
func sampleFromEvent(d dom.Document, e dom.Event) scrollSample {
	switch e.Type {
	case dom.EvtWheel:
		return scrollSample{
			message: fmt.Sprintf("Wheel event detected (deltaY: %g)", e.DeltaY),
			data: map[string]any{
				"deltaX":           e.DeltaX,
				"deltaY":           e.DeltaY,
				"deltaMode":        e.DeltaMode,
				"target":           e.Target.Describe(),
				"isDocumentScroll": false,
				"eventType":        "wheel",
			},
			wheel:  true,
			deltaX: e.DeltaX,
			deltaY: e.DeltaY,
			mode:   e.DeltaMode,
		}
	case dom.EvtTouchMove:
		return scrollSample{
			message: "Touch scroll in progress",
			data: map[string]any{
				"x":                e.X,
				"y":                e.Y,
				"touchCount":       e.TouchCount,
				"isDocumentScroll": false,
				"eventType":        "touchmove",
			},
		}
	default: // document or descendant scroll
		if e.FromDescendant {
			return scrollSample{
				message: "Scrolled " + e.Target.Describe(),
				data: map[string]any{
					"target":           e.Target.Describe(),
					"scrollPosition":   e.ScrollTop,
					"isDocumentScroll": false,
					"eventType":        "element-scroll",
				},
			}
		}
		return scrollSample{
			message: fmt.Sprintf("Document scrolled to %gpx", e.ScrollTop),
			data: map[string]any{
				"target":           "document",
				"scrollPosition":   e.ScrollTop,
				"windowHeight":     d.Viewport().Height,
				"documentHeight":   d.ContentSize().Height,
				"isDocumentScroll": true,
				"eventType":        "document-scroll",
			},
		}
	}
}
