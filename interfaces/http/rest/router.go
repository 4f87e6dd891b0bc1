package rest

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"memorymap-backend/application/services"
	"memorymap-backend/pkg/auth"
	pkgerrors "memorymap-backend/pkg/errors"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// RouterConfig holds the optional parts of the router.
type RouterConfig struct {
	CORS        cors.Options
	MetricsPath string
	Metrics     http.Handler
	WebSocket   http.HandlerFunc
	Readiness   map[string]ReadinessCheck
}

// Router creates and configures the HTTP router
type Router struct {
	sessions      Sessions
	queries       *services.MemoryQueryService
	authenticator *auth.Authenticator
	config        RouterConfig
	logger        *zap.Logger
	errorHandler  *pkgerrors.ErrorHandler
}

// NewRouter creates a new router instance
func NewRouter(
	sessions Sessions,
	queries *services.MemoryQueryService,
	authenticator *auth.Authenticator,
	config RouterConfig,
	logger *zap.Logger,
	errorHandler *pkgerrors.ErrorHandler,
) *Router {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	return &Router{
		sessions:      sessions,
		queries:       queries,
		authenticator: authenticator,
		config:        config,
		logger:        logger,
		errorHandler:  errorHandler,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(requestIDHeader)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(Logger(rt.logger))
	router.Use(cors.Handler(rt.config.CORS))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.config.Metrics != nil {
		router.Method(http.MethodGet, rt.config.MetricsPath, rt.config.Metrics)
	}
	if rt.config.WebSocket != nil {
		router.Get("/ws", rt.config.WebSocket)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(rt.authenticator, rt.errorHandler))

		r.Route("/memories", func(r chi.Router) {
			memoryHandler := NewMemoryHandler(rt.sessions, rt.queries, rt.logger, rt.errorHandler)
			r.Get("/", memoryHandler.ListMemories)
			r.Get("/{memoryID}", memoryHandler.GetMemory)
			r.Delete("/{memoryID}", memoryHandler.DeleteMemory)
		})

		r.Route("/draft", func(r chi.Router) {
			draftHandler := NewDraftHandler(rt.sessions, rt.logger, rt.errorHandler)
			r.Get("/", draftHandler.GetDraft)
			r.Delete("/", draftHandler.Cancel)
			r.Put("/location", draftHandler.CaptureLocation)
			r.Put("/description", draftHandler.SetDescription)
			r.Post("/commit", draftHandler.Commit)
		})

		r.Post("/session/close", rt.closeSession)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck runs every registered check and reports 503 if any fails.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(rt.config.Readiness))
	for name := range rt.config.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := rt.config.Readiness[name](ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	respondJSON(w, status, body)
}

// closeSession handles POST /api/v1/session/close
func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if rt.sessions.Close(userID) {
		rt.logger.Info("Session closed on request", zap.String("userID", userID))
	}
	w.WriteHeader(http.StatusNoContent)
}
