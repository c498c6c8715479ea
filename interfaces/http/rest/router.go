package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands/bus"
	"github.com/MartinFunctu/lifeos/application/ports"
	querybus "github.com/MartinFunctu/lifeos/application/queries/bus"
	"github.com/MartinFunctu/lifeos/interfaces/http/rest/handlers"
	"github.com/MartinFunctu/lifeos/interfaces/http/rest/middleware"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
	"github.com/MartinFunctu/lifeos/pkg/observability"
)

// APIPrefix is where the canvas routes are mounted
const APIPrefix = "/api/canvas"

// Options holds the optional parts of the router
type Options struct {
	// Metrics enables request metrics and the /metrics endpoint
	Metrics *observability.Collector
	// Health is probed by /ready
	Health ports.HealthChecker
	// CORSOrigins enables CORS for the listed origins when non-empty
	CORSOrigins []string
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus    *bus.CommandBus
	queryBus      *querybus.QueryBus
	authenticator *middleware.Authenticator
	errors        *pkgerrors.ErrorHandler
	logger        *zap.Logger
	opts          Options
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	authenticator *middleware.Authenticator,
	errHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
	opts Options,
) *Router {
	return &Router{
		commandBus:    commandBus,
		queryBus:      queryBus,
		authenticator: authenticator,
		errors:        errHandler,
		logger:        logger,
		opts:          opts,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.Metrics != nil {
		router.Use(middleware.Metrics(rt.opts.Metrics))
	}

	if len(rt.opts.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	router.Route(APIPrefix, func(r chi.Router) {
		r.Use(rt.authenticator.Middleware)

		nodeHandler := handlers.NewNodeHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", nodeHandler.ListNodes)
			r.Post("/", nodeHandler.CreateNode)
			r.Get("/{nodeID}", nodeHandler.GetNode)
			r.Patch("/{nodeID}", nodeHandler.UpdateNode)
			r.Delete("/{nodeID}", nodeHandler.DeleteNode)
			r.Get("/{nodeID}/children", nodeHandler.ListChildren)
		})

		edgeHandler := handlers.NewEdgeHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
		r.Route("/edges", func(r chi.Router) {
			r.Get("/", edgeHandler.ListEdges)
			r.Post("/", edgeHandler.CreateEdge)
			r.Delete("/{edgeID}", edgeHandler.DeleteEdge)
		})

		r.Get("/view", handlers.NewViewHandler(rt.queryBus, rt.errors, rt.logger).GetView)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

// healthCheck handles liveness requests
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, api.Health{Status: "healthy"})
}

// readinessCheck reports whether the backing store answers
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Health == nil {
		common.RespondJSON(w, http.StatusOK, api.Health{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.opts.Health.Ping(ctx); err != nil {
		rt.logger.Warn("Readiness check failed", zap.Error(err))
		common.RespondJSON(w, http.StatusServiceUnavailable, api.Health{
			Status: "unavailable",
			Checks: map[string]string{"store": err.Error()},
		})
		return
	}
	common.RespondJSON(w, http.StatusOK, api.Health{
		Status: "ready",
		Checks: map[string]string{"store": "ok"},
	})
}
