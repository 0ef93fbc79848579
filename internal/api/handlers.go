package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scalewob/wobbridge/internal/catalog"
	"github.com/scalewob/wobbridge/internal/console"
	"github.com/scalewob/wobbridge/internal/ctrl"
	"github.com/scalewob/wobbridge/internal/launcher"
	"github.com/scalewob/wobbridge/internal/store"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// AgentInfo is the public view of a registered agent.
type AgentInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Environment   string    `json:"environment"`
	GuestURL      string    `json:"guest_url"`
	Version       string    `json:"version,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func agentInfo(a *ctrl.Agent) AgentInfo {
	return AgentInfo{
		ID:            a.ID,
		Name:          a.Name,
		Environment:   a.Environment,
		GuestURL:      a.GuestURL,
		Version:       a.Version,
		ConnectedAt:   a.ConnectedAt,
		LastHeartbeat: a.LastHeartbeat,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListAgentsHandler returns registered agents, optionally narrowed to one
// environment via ?environment=.
func ListAgentsHandler(reg *ctrl.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents := reg.List()
		if env := r.URL.Query().Get("environment"); env != "" {
			agents = reg.ForEnvironment(env)
		}
		out := make([]AgentInfo, 0, len(agents))
		for _, a := range agents {
			out = append(out, agentInfo(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GetAgentHandler returns one agent by id.
func GetAgentHandler(reg *ctrl.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := reg.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeJSON(w, http.StatusOK, agentInfo(a))
	}
}

type commandRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// CommandHandler dispatches a command to an agent and returns the
// correlated response.
func CommandHandler(disp *ctrl.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !wire.CommandKind(req.Command).Known() {
			writeError(w, http.StatusBadRequest, "unknown command: "+req.Command)
			return
		}
		resp, err := disp.Send(r.Context(), chi.URLParam(r, "id"), wire.CommandKind(req.Command), req.Params)
		switch {
		case errors.Is(err, ctrl.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ctrl.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, err.Error())
		case errors.Is(err, ctrl.ErrAgentGone):
			writeError(w, http.StatusBadGateway, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	}
}

type launchRequest struct {
	Environment string `json:"environment"`
}

// LaunchHandler drives an environment onto an agent.
func LaunchHandler(mgr *launcher.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req launchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Environment == "" {
			writeError(w, http.StatusBadRequest, "environment is required")
			return
		}
		sess, err := mgr.Launch(r.Context(), chi.URLParam(r, "id"), req.Environment)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ctrl.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			// The session record carries the offline state and reason.
			writeJSON(w, http.StatusBadGateway, sess)
		default:
			writeJSON(w, http.StatusOK, sess)
		}
	}
}

// SessionHandler returns the launch session for an agent.
func SessionHandler(mgr *launcher.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := mgr.Session(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "no session for agent")
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

// ListEnvironmentsHandler returns the environment catalog.
func ListEnvironmentsHandler(cat *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envs, err := cat.List(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, envs)
	}
}

// ConsoleHandler returns the retained console entries, oldest first.
func ConsoleHandler(c *console.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Entries())
	}
}

// ClearConsoleHandler drops every retained entry.
func ClearConsoleHandler(c *console.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

type expandRequest struct {
	Expanded bool `json:"expanded"`
}

// ExpandHandler flips the expanded flag on one entry.
func ExpandHandler(c *console.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entry id")
			return
		}
		var req expandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !c.SetExpanded(id, req.Expanded) {
			writeError(w, http.StatusNotFound, "entry not retained")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PrefsHandler returns the visibility preference map.
func PrefsHandler(c *console.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Prefs())
	}
}

type prefRequest struct {
	Enabled bool `json:"enabled"`
}

// SetPrefHandler toggles visibility for one kind.
func SetPrefHandler(c *console.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req prefRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		c.SetPref(console.Kind(chi.URLParam(r, "kind")), req.Enabled)
		w.WriteHeader(http.StatusNoContent)
	}
}

type bulkPrefRequest struct {
	EnableAll  bool `json:"enable_all"`
	DisableAll bool `json:"disable_all"`
}

// BulkPrefHandler enables or disables every kind at once.
func BulkPrefHandler(c *console.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkPrefRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		switch {
		case req.EnableAll:
			c.EnableAll()
		case req.DisableAll:
			c.DisableAll()
		default:
			writeError(w, http.StatusBadRequest, "enable_all or disable_all required")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// EventsHandler returns persisted events, newest first. Unavailable when
// the server runs without a store.
func EventsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusNotImplemented, "event persistence is disabled")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		recs, err := st.Recent(r.URL.Query().Get("agent_id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if recs == nil {
			recs = []store.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}
