// Package httpapi implements the hub's administrative REST surface: a thin,
// 1:1 mapping from spec'd HTTP paths onto pkg/hub facade calls. Grounded on
// xxsc0529-genai-toolbox's internal/server (chi + httplog) and gridctl's
// internal/api bearer-token middleware.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"

	"github.com/nexushq/nexushub/internal/nexuslog"
	"github.com/nexushq/nexushub/pkg/hub"
)

// Server is the administrative HTTP surface over a Hub.
type Server struct {
	hub         *hub.Hub
	logger      *slog.Logger
	validate    *validator.Validate
	buffer      *nexuslog.Buffer
	corsOrigins []string
	started     time.Time
}

// New builds the chi-routed handler for h. buffer may be nil (the
// monitoring metrics endpoint then reports a buffered_log_count of 0).
// corsOrigins is the configured origin allow-list; "*" permits any
// origin, and an empty list emits no CORS headers at all.
func New(h *hub.Hub, logger *slog.Logger, buffer *nexuslog.Buffer, corsOrigins []string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:         h,
		logger:      logger,
		validate:    validator.New(),
		buffer:      buffer,
		corsOrigins: corsOrigins,
		started:     time.Now(),
	}
}

// Handler returns the root http.Handler, ready to be wrapped by a
// *http.Server and Listen()/Serve()'d.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(httplog.NewLogger("httplog", httplog.Options{
		LogLevel:         slog.LevelInfo,
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "msg",
	})))
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Public operations exempt from auth entirely: hub status probe,
		// login, token validate, and the liveness health check.
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/validate", s.handleValidate)
		r.Get("/hub/status", s.handleHubStatus)
		r.Get("/monitoring/health", s.handleMonitoringHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.bearerAuth)

			r.Post("/auth/logout", s.handleLogout)

			r.Route("/servers", func(r chi.Router) {
				r.Get("/", s.requirePermission(permServerView, s.handleServersList))
				r.Post("/", s.requirePermission(permServerCreate, s.handleServerCreate))
				r.Route("/{serverID}", func(r chi.Router) {
					r.Get("/", s.requirePermission(permServerView, s.handleServerGet))
					r.Delete("/", s.requirePermission(permServerDelete, s.handleServerDelete))
					r.Post("/start", s.requirePermission(permServerStart, s.handleServerStart))
					r.Post("/stop", s.requirePermission(permServerStop, s.handleServerStop))
					r.Post("/restart", s.requirePermission(permServerStart, s.handleServerRestart))
					r.Post("/connect", s.requirePermission(permServerStart, s.handleServerConnect))
					r.Post("/disconnect", s.requirePermission(permServerStop, s.handleServerDisconnect))
					r.Post("/reconnect", s.requirePermission(permServerStart, s.handleServerReconnect))
					r.Get("/resources", s.requirePermission(permResourceView, s.handleServerResources))
					r.Get("/resources/{uri}", s.requirePermission(permResourceView, s.handleServerResourceRead))
					r.Get("/tools", s.requirePermission(permToolView, s.handleServerTools))
					r.Post("/tools/{name}", s.requirePermission(permToolCall, s.handleServerToolCall))
					r.Get("/prompts", s.requirePermission(permPromptView, s.handleServerPrompts))
					r.Post("/sample", s.requirePermission(permSamplingRequest, s.handleServerSample))
				})
			})

			r.Route("/router", func(r chi.Router) {
				r.Get("/routes", s.requirePermission(permRouterView, s.handleRoutesList))
				r.Post("/routes", s.requirePermission(permRouterModify, s.handleRouteAdd))
				r.Delete("/routes", s.requirePermission(permRouterModify, s.handleRouteRemove))
				r.Post("/message", s.requirePermission(permRouterModify, s.handleRouteMessage))
			})

			r.Route("/mcp-clients", func(r chi.Router) {
				r.Get("/", s.requirePermission(permClientView, s.handleClientsList))
				r.Post("/", s.requirePermission(permClientCreate, s.handleClientCreate))
				r.Delete("/", s.requirePermission(permClientDelete, s.handleClientDisconnectAll))
				r.Route("/{clientID}", func(r chi.Router) {
					r.Get("/", s.requirePermission(permClientView, s.handleClientGet))
					r.Delete("/", s.requirePermission(permClientDelete, s.handleClientDisconnect))
					r.Post("/notify/resource-updated", s.requirePermission(permClientModify, s.handleNotifyResourceUpdated))
					r.Post("/notify/resources-changed", s.requirePermission(permClientModify, s.handleNotifyResourcesChanged))
					r.Post("/notify/tools-changed", s.requirePermission(permClientModify, s.handleNotifyToolsChanged))
					r.Post("/notify/prompts-changed", s.requirePermission(permClientModify, s.handleNotifyPromptsChanged))
					r.Post("/sample", s.requirePermission(permSamplingRequest, s.handleClientSample))
				})
			})

			r.Get("/monitoring/metrics", s.requirePermission(permAdminView, s.handleMonitoringMetrics))
		})
	})

	return r
}

// corsMiddleware answers against the configured origin list: a configured
// "*" allows any origin, otherwise the request's Origin is echoed back only
// when it appears in the list and a non-matching origin gets no CORS
// headers at all.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	wildcard := false
	allowed := make(map[string]struct{}, len(s.corsOrigins))
	for _, origin := range s.corsOrigins {
		if origin == "*" {
			wildcard = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		granted := ""
		switch {
		case wildcard:
			granted = "*"
		case origin != "":
			if _, ok := allowed[origin]; ok {
				granted = origin
				w.Header().Add("Vary", "Origin")
			}
		}
		if granted != "" {
			w.Header().Set("Access-Control-Allow-Origin", granted)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
