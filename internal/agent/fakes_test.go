package agent

import (
	"context"
	"sync"
	"time"

	"github.com/scalewob/wobbridge/internal/dom"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// fakeClock is a manually advanced clock for debounce tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c        *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.stopped = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped
	t.stopped = false
	t.deadline = t.c.now.Add(d)
	return was
}

// immediateClock fires every timer as soon as it is set, so delay-bearing
// paths finish without waiting.
type immediateClock struct{}

func (immediateClock) Now() time.Time { return time.Now() }

func (immediateClock) AfterFunc(_ time.Duration, fn func()) Timer {
	fn()
	return noopTimer{}
}

type noopTimer struct{}

func (noopTimer) Stop() bool                 { return false }
func (noopTimer) Reset(_ time.Duration) bool { return false }

// fakeElement records the operations commands perform on it.
type fakeElement struct {
	mu           sync.Mutex
	info         wire.ElementInfo
	value        string
	clicks       int
	focuses      int
	scrolls      int
	inputEvents  int
	changeEvents int
}

func (e *fakeElement) Info() wire.ElementInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := e.info
	info.Value = e.value
	return info
}

func (e *fakeElement) Click() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks++
	return nil
}

func (e *fakeElement) Focus() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focuses++
	return nil
}

func (e *fakeElement) ScrollIntoView() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrolls++
	return nil
}

func (e *fakeElement) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *fakeElement) SetValue(v string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
	return nil
}

func (e *fakeElement) AppendValue(s string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value += s
	return nil
}

func (e *fakeElement) DispatchInput() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputEvents++
	return nil
}

func (e *fakeElement) DispatchChange() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changeEvents++
	return nil
}

// fakeDoc is an in-memory dom.Document.
type fakeDoc struct {
	mu        sync.Mutex
	loc       dom.Location
	title     string
	ready     string
	viewport  wire.Size
	content   wire.Size
	elements  map[string]*fakeElement
	navigated []string
	scrollX   float64
	scrollY   float64
	scripts   []string

	nextID    int
	listeners map[dom.EventType]map[int]func(dom.Event)
	observers map[int]func(dom.MutationRecord)
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{
		loc:       dom.Location{Href: "https://guest.test/app", Origin: "https://guest.test", Path: "/app"},
		title:     "Guest App",
		ready:     "complete",
		viewport:  wire.Size{Width: 1280, Height: 720},
		content:   wire.Size{Width: 1280, Height: 4000},
		elements:  make(map[string]*fakeElement),
		listeners: make(map[dom.EventType]map[int]func(dom.Event)),
		observers: make(map[int]func(dom.MutationRecord)),
	}
}

func (d *fakeDoc) Location() dom.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loc
}

func (d *fakeDoc) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

func (d *fakeDoc) ReadyState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *fakeDoc) Viewport() wire.Size {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

func (d *fakeDoc) ContentSize() wire.Size {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

func (d *fakeDoc) Query(selector string) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[selector]
	if !ok {
		return nil, dom.NotFound(selector)
	}
	return el, nil
}

func (d *fakeDoc) Navigate(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	d.loc.Href = url
	return nil
}

func (d *fakeDoc) ScrollTo(x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrollX, d.scrollY = x, y
}

func (d *fakeDoc) LoadScript(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, url)
	return nil
}

func (d *fakeDoc) Listen(t dom.EventType, _ bool, fn func(dom.Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	if d.listeners[t] == nil {
		d.listeners[t] = make(map[int]func(dom.Event))
	}
	d.listeners[t][id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners[t], id)
	}
}

func (d *fakeDoc) ObserveMutations(fn func(dom.MutationRecord)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

// fire delivers a raw event to every registered listener.
func (d *fakeDoc) fire(ev dom.Event) {
	d.mu.Lock()
	var fns []func(dom.Event)
	for _, fn := range d.listeners[ev.Type] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (d *fakeDoc) mutate(rec dom.MutationRecord) {
	d.mu.Lock()
	var fns []func(dom.MutationRecord)
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(rec)
	}
}

// registrations counts currently attached listeners and observers.
func (d *fakeDoc) registrations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.observers)
	for _, m := range d.listeners {
		n += len(m)
	}
	return n
}
