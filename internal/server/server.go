// Package server assembles the console server: HTTP API, agent websocket
// endpoint, metrics, and the plumbing between agent traffic and the
// console, launcher and event store.
package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scalewob/wobbridge/internal/api"
	"github.com/scalewob/wobbridge/internal/catalog"
	"github.com/scalewob/wobbridge/internal/config"
	"github.com/scalewob/wobbridge/internal/console"
	"github.com/scalewob/wobbridge/internal/ctrl"
	"github.com/scalewob/wobbridge/internal/launcher"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/internal/metrics"
	"github.com/scalewob/wobbridge/internal/store"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// sink routes agent traffic to the console, the launcher's readiness
// tracking and the optional event store.
type sink struct {
	console  *console.Console
	launcher *launcher.Manager
	store    *store.Store
}

func (s *sink) HandleEvent(agentID string, ev wire.EventEnvelope) {
	s.launcher.NotifyEvent(agentID, ev.Payload.EventType)
	full := s.console.Len() >= s.console.Cap()
	if s.console.Accept(ev) && full {
		metrics.RecordConsoleEviction()
	}
	if s.store != nil {
		rec := store.Record{
			AgentID:   agentID,
			EventID:   ev.ID,
			EventType: ev.Payload.EventType,
			Message:   ev.Message(),
			Data:      ev.Payload.Data,
			TS:        time.UnixMilli(ev.Timestamp),
		}
		if err := s.store.Insert(rec); err != nil {
			logx.Log.Warn().Err(err).Str("agent_id", agentID).Msg("failed to persist event")
		}
	}
}

func (s *sink) HandleLegacy(agentID string, ev wire.LegacyEvent) {
	s.launcher.NotifyEvent(agentID, ev.EventType)
	s.console.AcceptLegacy(ev)
	if s.store != nil {
		rec := store.Record{
			AgentID:   agentID,
			EventType: ev.EventType,
			Message:   ev.Message,
			Data:      ev.Details,
		}
		if rec.EventType == "" {
			rec.EventType = string(console.KindOther)
		}
		if err := s.store.Insert(rec); err != nil {
			logx.Log.Warn().Err(err).Str("agent_id", agentID).Msg("failed to persist event")
		}
	}
}

func (s *sink) AgentConnected(a *ctrl.Agent) {
	s.console.System(fmt.Sprintf("Agent %s connected (%s)", a.Name, a.Environment))
}

func (s *sink) AgentDisconnected(id string) {
	s.launcher.Drop(id)
	s.console.System("Agent " + id + " disconnected")
}

var registerMetrics sync.Once

// New constructs the HTTP handler for the console server. st may be nil
// when persistence is disabled.
func New(cfg config.ServerConfig, st *store.Store) http.Handler {
	registerMetrics.Do(func() {
		metrics.Register(prometheus.DefaultRegisterer)
	})
	metrics.SetServerBuildInfo(Version)

	reg := ctrl.NewRegistry()
	disp := ctrl.NewDispatcher(reg, cfg.CommandTimeout)
	cons := console.New(cfg.ConsoleCap)
	cat := catalog.New(cfg.CatalogSource, 0)
	mgr := launcher.NewManager(disp, cat, cfg.ReadyTimeout)
	mgr.OnStatus(func(msg string) { cons.System(msg) })
	snk := &sink{console: cons, launcher: mgr, store: st}

	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(api.Deps{
		Registry:   reg,
		Dispatcher: disp,
		Console:    cons,
		Catalog:    cat,
		Launcher:   mgr,
		Store:      st,
		APIKey:     cfg.APIKey,
	}))
	r.Handle(cfg.WSPath, ctrl.WSHandler(reg, snk, cfg.AgentKey))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	go func() {
		ticker := time.NewTicker(ctrl.HeartbeatInterval)
		for range ticker.C {
			reg.PruneExpired(ctrl.HeartbeatExpiry)
		}
	}()

	return r
}

// Version is stamped at build time via -ldflags.
var Version = "dev"
