package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vectorhaus/kbvec"
	apimiddleware "github.com/vectorhaus/kbvec/infrastructure/api/middleware"
	v1 "github.com/vectorhaus/kbvec/infrastructure/api/v1"
)

// APIServer provides an HTTP API backed by a kbvec Client.
type APIServer struct {
	client       *kbvec.Client
	apiKeys      []string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given kbvec Client.
// API keys from the client's configuration write-protect mutating
// endpoints; read endpoints, search, and the event stream remain open.
func NewAPIServer(client *kbvec.Client) *APIServer {
	return &APIServer{
		client:  client,
		apiKeys: client.Config().APIKeys(),
		logger:  client.Logger(),
	}
}

// Router returns the chi router for customization before starting. Call
// this first, add custom middleware with router.Use(), then MountRoutes().
// If not called, ListenAndServe creates a default router with all standard
// routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all v1 API routes on the router. Call this after
// adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	tasksRouter := v1.NewTasksRouter(c.Queue, c.Hub(), c.Config().HeartbeatInterval(), a.logger)
	searchRouter := v1.NewSearchRouter(c.Search, c.Answer, a.logger)
	systemRouter := v1.NewSystemRouter(c.Queue, c.Search, c.BreakerStatus, a.logger)

	router.Use(apimiddleware.Logging(a.logger))

	router.Route("/api/v1", func(r chi.Router) {
		// The events stream holds its connection open for the task's whole
		// lifetime, so it lives outside the Timeout group.
		r.Get("/tasks/{taskID}/events", tasksRouter.Events)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			// Open routes; search is a read-only POST.
			r.Mount("/search", searchRouter.Routes())
			r.Mount("/queue", systemRouter.Routes())
			r.Get("/statistics", systemRouter.Statistics)
			r.Get("/health", systemRouter.Health)

			// Write-protected routes; mutating methods require a valid
			// API key.
			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))
				r.Mount("/tasks", tasksRouter.Routes())
			})
		})
	})
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom
// servers and tests.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
