package ctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/internal/metrics"
	"github.com/scalewob/wobbridge/pkg/wire"
)

var (
	// ErrAgentNotFound means the target agent is not registered.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrTimeout means no response arrived within the dispatcher's window.
	// The correlation id is dropped; a late response is discarded.
	ErrTimeout = errors.New("command timed out")
	// ErrAgentGone means the agent disconnected while the command was in
	// flight.
	ErrAgentGone = errors.New("agent disconnected")
)

// Dispatcher sends command envelopes to agents and matches responses by
// correlation id. Responses are matched by id, never by arrival order.
type Dispatcher struct {
	reg     *Registry
	timeout time.Duration
}

// NewDispatcher builds a dispatcher; timeout <= 0 means 30s.
func NewDispatcher(reg *Registry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{reg: reg, timeout: timeout}
}

// Send dispatches one command to an agent and blocks for its correlated
// response.
func (d *Dispatcher) Send(ctx context.Context, agentID string, command wire.CommandKind, params any) (wire.ResponseEnvelope, error) {
	ag, ok := d.reg.Get(agentID)
	if !ok {
		return wire.ResponseEnvelope{}, ErrAgentNotFound
	}

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return wire.ResponseEnvelope{}, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}

	id := uuid.NewString()
	ch := make(chan wire.ResponseEnvelope, 1)
	ag.AddPending(id, ch)
	defer ag.RemovePending(id)

	env := wire.CommandEnvelope{
		Type:    wire.TypeCommand,
		ID:      id,
		Payload: wire.CommandPayload{Command: string(command), Params: raw},
	}
	select {
	case ag.Send <- env:
	case <-ag.done:
		return wire.ResponseEnvelope{}, ErrAgentGone
	case <-ctx.Done():
		return wire.ResponseEnvelope{}, ctx.Err()
	}
	metrics.RecordCommand(string(command))
	logx.Log.Debug().Str("agent_id", agentID).Str("id", id).Str("command", string(command)).Msg("command dispatched")

	start := time.Now()
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return wire.ResponseEnvelope{}, ErrAgentGone
		}
		metrics.RecordCommandOutcome(string(command), resp.Payload.Success)
		metrics.ObserveCommandDuration(string(command), time.Since(start))
		return resp, nil
	case <-timer.C:
		metrics.RecordCommandOutcome(string(command), false)
		logx.Log.Warn().Str("agent_id", agentID).Str("id", id).Str("command", string(command)).Dur("timeout", d.timeout).Msg("command timed out")
		return wire.ResponseEnvelope{}, ErrTimeout
	case <-ctx.Done():
		return wire.ResponseEnvelope{}, ctx.Err()
	}
}
