// Package httpapi exposes the user service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-user-cache/user"
)

// ConnectionChecker reports whether the cache is reachable.
type ConnectionChecker interface {
	IsConnected(ctx context.Context) bool
}

// Options configures the router.
type Options struct {
	Service        *user.Service
	Cache          ConnectionChecker
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer // nil serves the default registry
	AllowedOrigins []string
}

// Router holds the HTTP handlers.
type Router struct {
	svc      *user.Service
	cache    ConnectionChecker
	log      *zap.Logger
	gatherer prometheus.Gatherer
	origins  []string
	validate *validator.Validate
}

// NewRouter creates a Router from opts.
func NewRouter(opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Router{
		svc:      opts.Service,
		cache:    opts.Cache,
		log:      log,
		gatherer: gatherer,
		origins:  opts.AllowedOrigins,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler builds the routing tree.
func (rt *Router) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.log))
	if len(rt.origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.health)
	router.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	router.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", rt.listUsers)
			r.Post("/", rt.createUser)
			r.Get("/count", rt.countUsers)
			r.Get("/by-email", rt.getUserByEmail)
			r.Get("/{id}", rt.getUser)
			r.Put("/{id}", rt.updateUser)
			r.Delete("/{id}", rt.deleteUser)
		})
		r.Post("/cache/invalidate", rt.invalidateCache)
	})

	return router
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
