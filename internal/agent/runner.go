package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/scalewob/wobbridge/internal/config"
	"github.com/scalewob/wobbridge/internal/dom"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// Run starts the bridge agent: it attaches to the guest document, connects
// to the console server and keeps reconnecting until ctx is cancelled or
// reconnection is disabled.
func Run(ctx context.Context, cfg config.AgentConfig, doc dom.Document) error {
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
	}
	SetAgentInfo(cfg.AgentID, cfg.AgentName, cfg.Environment)
	SetState("connecting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.StatusAddr != "" {
		if _, err := StartStatusServer(ctx, cfg.StatusAddr); err != nil {
			return err
		}
	}

	attempt := 0
	for {
		SetState("connecting")
		SetConnected(false)
		connected, err := connectAndServe(ctx, cfg, doc)
		if err == nil || !cfg.Reconnect {
			return err
		}
		if connected {
			attempt = 0
		}
		delay := reconnectDelay(attempt)
		attempt++
		logx.Log.Warn().Dur("backoff", delay).Err(err).Msg("connection to server lost; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndServe holds one server connection: register, start the bridge,
// pump events out and commands in. The bridge lives exactly as long as the
// connection; its teardown removes every listener it registered.
func connectAndServe(ctx context.Context, cfg config.AgentConfig, doc dom.Document) (bool, error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var opts *websocket.DialOptions
	if cfg.AgentKey != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": {"Bearer " + cfg.AgentKey}},
		}
	}
	ws, _, err := websocket.Dial(connCtx, cfg.ServerURL, opts)
	if err != nil {
		SetLastError(err.Error())
		SetState("error")
		return false, err
	}
	defer func() {
		_ = ws.Close(websocket.StatusInternalError, "closing")
	}()

	logx.Log.Info().Str("server", cfg.ServerURL).Msg("connected to server")
	SetConnected(true)
	SetState("connected")
	SetLastError("")

	sendCh := make(chan []byte, 64)
	go func() {
		defer cancel()
		for {
			select {
			case msg := <-sendCh:
				if err := ws.Write(connCtx, websocket.MessageText, msg); err != nil {
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	reg := wire.RegisterMessage{
		Type:        wire.TypeRegister,
		AgentID:     cfg.AgentID,
		AgentName:   cfg.AgentName,
		AgentKey:    cfg.AgentKey,
		Environment: cfg.Environment,
		GuestURL:    doc.Location().Href,
		Version:     Version,
	}
	b, _ := json.Marshal(reg)
	sendCh <- b

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case t := <-ticker.C:
				hb := wire.HeartbeatMessage{Type: wire.TypeHeartbeat, TS: t.Unix()}
				bb, _ := json.Marshal(hb)
				select {
				case sendCh <- bb:
					SetLastHeartbeat(t)
				case <-connCtx.Done():
					return
				}
			}
		}
	}()

	emit := func(ev wire.EventEnvelope) {
		bb, _ := json.Marshal(ev)
		select {
		case sendCh <- bb:
		case <-connCtx.Done():
		}
	}
	bridge := NewBridge(doc, emit, BridgeOptions{
		ReadyDelay:     cfg.ReadyDelay,
		ScrollDebounce: cfg.ScrollDebounce,
	})
	defer bridge.Close()
	if err := bridge.Start(connCtx); err != nil {
		return true, err
	}
	exec := NewExecutor(doc, bridge, NewClock())

	for {
		_, data, err := ws.Read(connCtx)
		if err != nil {
			SetConnected(false)
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				lvl := logx.Log.Info()
				if ce.Code != websocket.StatusNormalClosure {
					lvl = logx.Log.Error()
				}
				lvl.Str("reason", ce.Reason).Msg("server connection closed")
			} else {
				logx.Log.Error().Err(err).Msg("server read error")
			}
			SetLastError(err.Error())
			SetState("error")
			return true, err
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			continue
		}
		switch probe.Type {
		case wire.TypeCommand:
			var cmd wire.CommandEnvelope
			if err := json.Unmarshal(data, &cmd); err != nil {
				continue
			}
			go func() {
				resp := exec.Execute(connCtx, cmd)
				bb, _ := json.Marshal(resp)
				select {
				case sendCh <- bb:
				case <-connCtx.Done():
				}
			}()
		default:
			// Frames the agent does not consume (its own event echoes
			// included) are ignored rather than rejected.
		}
	}
}

func reconnectDelay(attempt int) time.Duration {
	schedule := []time.Duration{time.Second, time.Second, time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second, 15 * time.Second, 15 * time.Second, 15 * time.Second}
	if attempt < len(schedule) {
		return schedule[attempt]
	}
	return 30 * time.Second
}
