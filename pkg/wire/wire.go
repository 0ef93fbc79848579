// Package wire defines the envelope protocol spoken between the host
// console and bridge agents. Every frame on the channel is JSON with a
// `type` discriminator; events are fire-and-forget while commands and
// responses are correlated by id.
package wire

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Frame discriminators.
const (
	TypeEvent       = "scalewob-event"
	TypeCommand     = "scalewob-command"
	TypeResponse    = "scalewob-response"
	TypeLegacyEvent = "user-interaction"
	TypeRegister    = "register"
	TypeHeartbeat   = "heartbeat"
)

// EventKind is the closed set of event categories a bridge agent reports.
type EventKind string

const (
	EventInit       EventKind = "init"
	EventClick      EventKind = "click"
	EventKeypress   EventKind = "keypress"
	EventScroll     EventKind = "scroll"
	EventFocus      EventKind = "focus"
	EventBlur       EventKind = "blur"
	EventSubmit     EventKind = "submit"
	EventTouch      EventKind = "touch"
	EventNavigation EventKind = "navigation"
	EventDOMChange  EventKind = "dom-change"
	// EventOther is the fallback category for kinds this version does not
	// recognize; raw events are never dropped for being unclassifiable.
	EventOther EventKind = "other"
)

// EventKinds lists every defined kind, fallback included.
func EventKinds() []EventKind {
	return []EventKind{
		EventInit, EventClick, EventKeypress, EventScroll, EventFocus,
		EventBlur, EventSubmit, EventTouch, EventNavigation, EventDOMChange,
		EventOther,
	}
}

// ParseEventKind maps a raw event type string onto the closed set. It is
// total: unrecognized or empty input classifies as EventOther.
func ParseEventKind(s string) EventKind {
	switch k := EventKind(s); k {
	case EventInit, EventClick, EventKeypress, EventScroll, EventFocus,
		EventBlur, EventSubmit, EventTouch, EventNavigation, EventDOMChange:
		return k
	default:
		return EventOther
	}
}

// CommandKind is the closed set of remote commands an agent executes.
type CommandKind string

const (
	CmdClick          CommandKind = "click"
	CmdType           CommandKind = "type"
	CmdNavigate       CommandKind = "navigate"
	CmdGetState       CommandKind = "get-state"
	CmdLoadScript     CommandKind = "load-script"
	CmdScroll         CommandKind = "scroll"
	CmdWait           CommandKind = "wait"
	CmdGetElementInfo CommandKind = "get-element-info"
	CmdScreenshot     CommandKind = "screenshot"
)

// Known reports whether k names a command in the closed set.
func (k CommandKind) Known() bool {
	switch k {
	case CmdClick, CmdType, CmdNavigate, CmdGetState, CmdLoadScript,
		CmdScroll, CmdWait, CmdGetElementInfo, CmdScreenshot:
		return true
	}
	return false
}

// EventPayload carries the classified kind plus free-form details. Data
// always includes a human readable "message" entry.
type EventPayload struct {
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
}

// EventEnvelope is emitted by an agent for every tracked occurrence.
// The id is for tracing only; events are not correlated.
type EventEnvelope struct {
	Type      string       `json:"type"`
	ID        string       `json:"id"`
	Timestamp int64        `json:"timestamp"`
	Payload   EventPayload `json:"payload"`
}

// Message returns the human readable message carried in the payload data.
func (e EventEnvelope) Message() string {
	if m, ok := e.Payload.Data["message"].(string); ok {
		return m
	}
	return ""
}

// CommandPayload names the command and carries its raw parameters.
type CommandPayload struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// CommandEnvelope is sent host to agent. The agent's response echoes ID.
type CommandEnvelope struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Payload CommandPayload `json:"payload"`
}

// ResponsePayload is the outcome of one command execution. Error is nil on
// success and a human readable reason on failure.
type ResponsePayload struct {
	Success bool    `json:"success"`
	Result  any     `json:"result"`
	Error   *string `json:"error"`
}

// ResponseEnvelope is sent agent to host, correlated to a command by ID.
type ResponseEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Payload   ResponsePayload `json:"payload"`
}

// NewResponse builds a success response correlated to the given command id.
func NewResponse(commandID string, result any) ResponseEnvelope {
	return ResponseEnvelope{
		Type:      TypeResponse,
		ID:        commandID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   ResponsePayload{Success: true, Result: result},
	}
}

// NewErrorResponse builds a failure response with the error's message.
func NewErrorResponse(commandID string, err error) ResponseEnvelope {
	msg := err.Error()
	return ResponseEnvelope{
		Type:      TypeResponse,
		ID:        commandID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   ResponsePayload{Success: false, Error: &msg},
	}
}

// LegacyEvent is the flat event shape older guest trackers still send.
// A missing eventType normalizes to EventOther rather than being rejected.
type LegacyEvent struct {
	Type      string         `json:"type"`
	EventType string         `json:"eventType"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
}

// RegisterMessage is the first frame an agent sends after connecting.
type RegisterMessage struct {
	Type        string `json:"type"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	AgentKey    string `json:"agent_key,omitempty"`
	Environment string `json:"environment"`
	GuestURL    string `json:"guest_url"`
	Version     string `json:"version,omitempty"`
}

// HeartbeatMessage keeps the agent registration alive.
type HeartbeatMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// IDGenerator produces per-message trace ids from a monotonic counter and a
// timestamp seed. Safe for concurrent use.
type IDGenerator struct {
	n uint64
}

// Next returns the next trace id.
func (g *IDGenerator) Next() string {
	return fmt.Sprintf("wob_%d_%d", time.Now().UnixMilli(), atomic.AddUint64(&g.n, 1))
}
