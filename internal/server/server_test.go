package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/scalewob/wobbridge/internal/config"
	"github.com/scalewob/wobbridge/internal/console"
	"github.com/scalewob/wobbridge/pkg/wire"
)

func testConfig(t *testing.T) config.ServerConfig {
	t.Helper()
	catPath := filepath.Join(t.TempDir(), "environments.json")
	cat := `[{"id": "shop", "name": "Shop", "localUrl": "/local/shop"}]`
	if err := os.WriteFile(catPath, []byte(cat), 0o644); err != nil {
		t.Fatal(err)
	}
	return config.ServerConfig{
		WSPath:         "/api/agents/connect",
		CommandTimeout: 2 * time.Second,
		ReadyTimeout:   100 * time.Millisecond,
		ConsoleCap:     100,
		CatalogSource:  catPath,
	}
}

// scriptedAgent registers over the websocket endpoint, emits an init event
// and answers click commands: #submit succeeds, anything else fails.
func scriptedAgent(t *testing.T, baseURL, wsPath, agentID string) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	url := strings.Replace(baseURL, "http", "ws", 1) + wsPath
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		cancel()
		t.Fatal(err)
	}

	send := func(v any) {
		b, _ := json.Marshal(v)
		if err := ws.Write(ctx, websocket.MessageText, b); err != nil && ctx.Err() == nil {
			t.Errorf("agent write: %v", err)
		}
	}
	send(wire.RegisterMessage{
		Type:        wire.TypeRegister,
		AgentID:     agentID,
		AgentName:   "scripted",
		Environment: "shop",
		GuestURL:    "https://guest.test/app",
	})
	send(wire.EventEnvelope{
		Type:      wire.TypeEvent,
		ID:        "wob_init",
		Timestamp: time.Now().UnixMilli(),
		Payload: wire.EventPayload{
			EventType: string(wire.EventInit),
			Data:      map[string]any{"message": "Bridge initialized", "url": "https://guest.test/app"},
		},
	})

	go func() {
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var cmd wire.CommandEnvelope
			if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type != wire.TypeCommand {
				continue
			}
			switch wire.CommandKind(cmd.Payload.Command) {
			case wire.CmdClick:
				var p wire.ClickParams
				_ = wire.DecodeParams(cmd.Payload.Params, &p)
				if p.Selector == "#submit" {
					send(wire.NewResponse(cmd.ID, map[string]any{"clicked": p.Selector}))
				} else {
					send(wire.NewErrorResponse(cmd.ID, errors.New("element not found: "+p.Selector)))
				}
			case wire.CmdNavigate:
				send(wire.NewResponse(cmd.ID, map[string]any{"url": "navigated"}))
			default:
				send(wire.NewErrorResponse(cmd.ID, errors.New("unsupported in test agent")))
			}
		}
	}()

	return func() {
		_ = ws.Close(websocket.StatusNormalClosure, "done")
		cancel()
	}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEndToEndInitEvent(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()
	stop := scriptedAgent(t, srv.URL, cfg.WSPath, "a1")
	defer stop()

	var entries []console.Entry
	waitFor(t, func() bool {
		entries = nil
		getJSON(t, srv.URL+"/api/console", &entries)
		for _, e := range entries {
			if e.Kind == console.KindInit {
				return true
			}
		}
		return false
	})
	var init console.Entry
	for _, e := range entries {
		if e.Kind == console.KindInit {
			init = e
		}
	}
	if init.Message != "Bridge initialized" {
		t.Fatalf("init message = %q", init.Message)
	}
	if init.Details["url"] != "https://guest.test/app" {
		t.Fatalf("init details = %v", init.Details)
	}
}

func TestEndToEndClickSuccess(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()
	stop := scriptedAgent(t, srv.URL, cfg.WSPath, "a1")
	defer stop()

	waitFor(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/agents/a1")
		if err != nil {
			return false
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		return resp.StatusCode == http.StatusOK
	})

	resp := postJSON(t, srv.URL+"/api/agents/a1/commands", map[string]any{
		"command": "click",
		"params":  map[string]any{"selector": "#submit"},
	})
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var env wire.ResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if !env.Payload.Success || env.ID == "" {
		t.Fatalf("unexpected response: %+v", env)
	}
}

func TestEndToEndClickMissingSelector(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()
	stop := scriptedAgent(t, srv.URL, cfg.WSPath, "a1")
	defer stop()

	waitFor(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/agents/a1")
		if err != nil {
			return false
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		return resp.StatusCode == http.StatusOK
	})

	start := time.Now()
	resp := postJSON(t, srv.URL+"/api/agents/a1/commands", map[string]any{
		"command": "click",
		"params":  map[string]any{"selector": "#missing"},
	})
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var env wire.ResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Payload.Success {
		t.Fatal("click on a missing selector should fail")
	}
	if env.Payload.Error == nil || *env.Payload.Error == "" {
		t.Fatal("failure carries no error message")
	}
	if time.Since(start) > cfg.CommandTimeout {
		t.Fatal("failure response should not wait out the timeout")
	}
}

func TestEndToEndUnknownCommandRejected(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/agents/a1/commands", map[string]any{"command": "explode"})
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestEndToEndPrefsFilterConsole(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()

	// Disable everything, then re-enable: nothing arriving while disabled
	// may appear afterwards.
	resp := postJSON(t, srv.URL+"/api/console/prefs", map[string]any{"disable_all": true})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d", resp.StatusCode)
	}

	stop := scriptedAgent(t, srv.URL, cfg.WSPath, "a1")
	defer stop()
	waitFor(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/agents/a1")
		if err != nil {
			return false
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		return resp.StatusCode == http.StatusOK
	})

	// Frames are handled in order, so a command round trip guarantees the
	// agent's earlier init event has been through the console already.
	resp = postJSON(t, srv.URL+"/api/agents/a1/commands", map[string]any{
		"command": "click",
		"params":  map[string]any{"selector": "#submit"},
	})
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/console/prefs", map[string]any{"enable_all": true})
	_ = resp.Body.Close()

	var entries []console.Entry
	getJSON(t, srv.URL+"/api/console", &entries)
	if len(entries) != 0 {
		t.Fatalf("%d entries retroactively appeared after re-enabling", len(entries))
	}
}

func TestHealthz(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestEnvironmentsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(New(cfg, nil))
	defer srv.Close()

	var envs []map[string]any
	getJSON(t, srv.URL+"/api/environments", &envs)
	if len(envs) != 1 || envs[0]["id"] != "shop" {
		t.Fatalf("environments = %v", envs)
	}
}
