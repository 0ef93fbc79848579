package ctrl

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/internal/metrics"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// EventSink receives everything an agent connection produces besides
// correlated responses: event envelopes, legacy events, and lifecycle
// notices. The server wires this to the console and the event store.
type EventSink interface {
	HandleEvent(agentID string, ev wire.EventEnvelope)
	HandleLegacy(agentID string, ev wire.LegacyEvent)
	AgentConnected(a *Agent)
	AgentDisconnected(id string)
}

// WSHandler handles incoming bridge agent websocket connections. The first
// frame must be a register message; everything after is events, responses
// and heartbeats.
func WSHandler(reg *Registry, sink EventSink, expectedKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			provided = strings.TrimPrefix(auth, "Bearer ")
		}
		if provided == "" {
			provided = r.URL.Query().Get("agent_key")
		}
		if expectedKey != "" && provided != expectedKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		defer func() {
			_ = c.Close(websocket.StatusInternalError, "server error")
		}()

		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil || probe.Type != wire.TypeRegister {
			_ = c.Close(websocket.StatusPolicyViolation, "expected register")
			return
		}
		var rm wire.RegisterMessage
		if err := json.Unmarshal(data, &rm); err != nil {
			return
		}
		if expectedKey != "" && rm.AgentKey != expectedKey {
			_ = c.Close(websocket.StatusPolicyViolation, "unauthorized")
			return
		}
		if rm.AgentID == "" {
			rm.AgentID = uuid.NewString()
		}
		ag := NewAgent(rm.AgentID)
		ag.Name = rm.AgentName
		ag.Environment = rm.Environment
		ag.GuestURL = rm.GuestURL
		ag.Version = rm.Version
		ag.RemoteAddr = r.RemoteAddr
		reg.Add(ag)
		metrics.AgentConnected(1)
		logx.Log.Info().Str("agent_id", ag.ID).Str("environment", ag.Environment).Str("remote_addr", r.RemoteAddr).Msg("agent registered")
		sink.AgentConnected(ag)
		defer func() {
			ag.shutdown()
			reg.Remove(ag.ID)
			metrics.AgentConnected(-1)
			sink.AgentDisconnected(ag.ID)
			logx.Log.Info().Str("agent_id", ag.ID).Msg("agent disconnected")
		}()

		go func() {
			for {
				select {
				case msg := <-ag.Send:
					b, _ := json.Marshal(msg)
					if err := c.Write(ctx, websocket.MessageText, b); err != nil {
						return
					}
				case <-ag.done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			var probe struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &probe); err != nil {
				continue
			}
			switch probe.Type {
			case wire.TypeHeartbeat:
				reg.UpdateHeartbeat(ag.ID)
			case wire.TypeEvent:
				var ev wire.EventEnvelope
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				metrics.RecordEvent(ev.Payload.EventType)
				sink.HandleEvent(ag.ID, ev)
			case wire.TypeLegacyEvent:
				var ev wire.LegacyEvent
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				metrics.RecordEvent(ev.EventType)
				sink.HandleLegacy(ag.ID, ev)
			case wire.TypeResponse:
				var resp wire.ResponseEnvelope
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if !ag.Resolve(resp) {
					logx.Log.Debug().Str("id", resp.ID).Msg("response for unknown command id")
				}
			}
		}
	}
}
