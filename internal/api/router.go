package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/scalewob/wobbridge/internal/catalog"
	"github.com/scalewob/wobbridge/internal/console"
	"github.com/scalewob/wobbridge/internal/ctrl"
	"github.com/scalewob/wobbridge/internal/launcher"
	"github.com/scalewob/wobbridge/internal/store"
)

// Deps collects everything the API routes over.
type Deps struct {
	Registry   *ctrl.Registry
	Dispatcher *ctrl.Dispatcher
	Console    *console.Console
	Catalog    *catalog.Service
	Launcher   *launcher.Manager
	Store      *store.Store // nil when persistence is disabled
	APIKey     string
}

// NewRouter builds the API router.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	for _, m := range middlewareChain(d.APIKey) {
		r.Use(m)
	}

	r.Get("/agents", ListAgentsHandler(d.Registry))
	r.Get("/agents/{id}", GetAgentHandler(d.Registry))
	r.Post("/agents/{id}/commands", CommandHandler(d.Dispatcher))
	r.Post("/agents/{id}/launch", LaunchHandler(d.Launcher))
	r.Get("/agents/{id}/session", SessionHandler(d.Launcher))

	r.Get("/environments", ListEnvironmentsHandler(d.Catalog))

	r.Get("/console", ConsoleHandler(d.Console))
	r.Delete("/console", ClearConsoleHandler(d.Console))
	r.Post("/console/{id}/expand", ExpandHandler(d.Console))
	r.Get("/console/prefs", PrefsHandler(d.Console))
	r.Put("/console/prefs/{kind}", SetPrefHandler(d.Console))
	r.Post("/console/prefs", BulkPrefHandler(d.Console))

	r.Get("/events", EventsHandler(d.Store))

	return r
}
