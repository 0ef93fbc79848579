// Package console holds the host-side activity log: entries derived from
// agent events, user-controlled visibility preferences, and a bounded
// retention policy. Filtering is host-local; agents always emit everything
// they observe.
package console

import (
	"sync"
	"time"

	"github.com/scalewob/wobbridge/pkg/wire"
)

// Kind classifies a console entry. It is a superset of the agent event
// kinds: system lines and legacy action events only exist host-side.
type Kind string

const (
	KindInit       Kind = "init"
	KindClick      Kind = "click"
	KindKeypress   Kind = "keypress"
	KindScroll     Kind = "scroll"
	KindFocus      Kind = "focus"
	KindBlur       Kind = "blur"
	KindSubmit     Kind = "submit"
	KindTouch      Kind = "touch"
	KindNavigation Kind = "navigation"
	KindDOMChange  Kind = "dom-change"
	KindAction     Kind = "action"
	KindSystem     Kind = "system"
	KindOther      Kind = "other"
)

// Kinds lists every console kind in display order.
func Kinds() []Kind {
	return []Kind{
		KindInit, KindClick, KindKeypress, KindScroll, KindFocus, KindBlur,
		KindSubmit, KindTouch, KindNavigation, KindDOMChange, KindAction,
		KindSystem, KindOther,
	}
}

// legacyAliases maps event type names older guest trackers use onto
// console kinds.
var legacyAliases = map[string]Kind{
	"ready":       KindInit,
	"user-action": KindAction,
}

// Classify maps a raw event type string onto a console kind. It is total:
// unrecognized or empty input classifies as KindOther, never an error.
func Classify(eventType string) Kind {
	if k, ok := legacyAliases[eventType]; ok {
		return k
	}
	switch k := Kind(eventType); k {
	case KindInit, KindClick, KindKeypress, KindScroll, KindFocus, KindBlur,
		KindSubmit, KindTouch, KindNavigation, KindDOMChange, KindAction,
		KindSystem:
		return k
	default:
		return KindOther
	}
}

// Entry is one console line. Entries are immutable after creation except
// for the Expanded display flag.
type Entry struct {
	ID        uint64         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Expanded  bool           `json:"expanded"`
}

// DefaultCap bounds retained entries when no cap is configured.
const DefaultCap = 100

// DefaultPrefs returns the initial visibility map: system and lifecycle
// kinds on, high-frequency interaction kinds off.
func DefaultPrefs() map[Kind]bool {
	return map[Kind]bool{
		KindInit:       true,
		KindClick:      true,
		KindKeypress:   true,
		KindScroll:     false,
		KindFocus:      false,
		KindBlur:       false,
		KindSubmit:     true,
		KindTouch:      false,
		KindNavigation: true,
		KindDOMChange:  false,
		KindAction:     true,
		KindSystem:     true,
		KindOther:      true,
	}
}

// Console owns the entry list and the preference map. Safe for concurrent
// use; nothing outside the console mutates either.
type Console struct {
	mu      sync.Mutex
	cap     int
	seq     uint64
	entries []Entry
	prefs   map[Kind]bool
}

// New returns a console retaining at most cap entries; cap <= 0 means
// DefaultCap.
func New(cap int) *Console {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Console{cap: cap, prefs: DefaultPrefs()}
}

// Accept classifies an agent event envelope and appends it if its kind is
// enabled. Returns true when an entry was retained.
func (c *Console) Accept(ev wire.EventEnvelope) bool {
	return c.Append(Classify(ev.Payload.EventType), ev.Message(), ev.Payload.Data, time.UnixMilli(ev.Timestamp))
}

// AcceptLegacy normalizes a flat legacy event into the same entry shape. A
// missing eventType classifies as KindOther rather than being rejected.
func (c *Console) AcceptLegacy(ev wire.LegacyEvent) bool {
	return c.Append(Classify(ev.EventType), ev.Message, ev.Details, time.Now())
}

// System appends a locally generated status line.
func (c *Console) System(message string) bool {
	return c.Append(KindSystem, message, nil, time.Now())
}

// Append retains an entry if and only if the kind's preference flag is
// currently true. Appending past the cap evicts from the oldest end.
func (c *Console) Append(kind Kind, message string, details map[string]any, ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.prefs[kind] {
		return false
	}
	c.seq++
	c.entries = append(c.entries, Entry{
		ID:        c.seq,
		Timestamp: ts,
		Kind:      kind,
		Message:   message,
		Details:   details,
	})
	if n := len(c.entries) - c.cap; n > 0 {
		c.entries = append(c.entries[:0:0], c.entries[n:]...)
	}
	return true
}

// Entries returns a copy of the retained list, oldest first.
func (c *Console) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Cap reports the retention bound.
func (c *Console) Cap() int {
	return c.cap
}

// Len reports the number of retained entries.
func (c *Console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every retained entry; preferences are untouched.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// SetExpanded flips the display flag on one entry. Returns false if the id
// is no longer retained.
func (c *Console) SetExpanded(id uint64, expanded bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Expanded = expanded
			return true
		}
	}
	return false
}

// SetPref toggles visibility for one kind. A pure state transition: no
// retained entry is added or removed, and the agent is not notified.
func (c *Console) SetPref(kind Kind, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs[kind] = enabled
}

// Pref reports the current flag for a kind.
func (c *Console) Pref(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs[kind]
}

// Prefs returns a copy of the preference map.
func (c *Console) Prefs() map[Kind]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]bool, len(c.prefs))
	for k, v := range c.prefs {
		out[k] = v
	}
	return out
}

// EnableAll turns every kind on.
func (c *Console) EnableAll() { c.setAll(true) }

// DisableAll turns every kind off.
func (c *Console) DisableAll() { c.setAll(false) }

func (c *Console) setAll(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range Kinds() {
		c.prefs[k] = v
	}
}
