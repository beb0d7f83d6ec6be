package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/metrics"
)

// NewRouter builds the chi router fronting one cpxd node. Agent-facing
// routes run through the session middleware so the very first GET already
// carries cookies; the cluster RPC, health and metrics endpoints do not.
//
// There is deliberately no global timeout middleware: the poll endpoint
// holds requests up to the configured poll window and enforces its own
// deadline.
func NewRouter(d *Dispatcher, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", d.Health)

	if metricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/cluster/queues", func(r chi.Router) {
		r.Post("/register", d.ClusterRegister)
		r.Post("/deregister", d.ClusterDeregister)
		r.Get("/", d.ClusterList)
		r.Get("/{name}", d.ClusterLookup)
	})

	r.Post("/api", d.WithSession(d.API))
	r.Get("/", d.WithSession(d.Index))
	r.Get("/dynamic/*", d.WithSession(d.Dynamic))

	// everything else: static lookup for GETs, legacy API paths for the rest
	r.NotFound(d.WithSession(d.Fallback))

	return r
}

// requestLogger logs request start at DEBUG and completion at INFO using
// the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("http request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyClientIP, r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("http request completed",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, time.Since(start).Milliseconds(),
		)
	})
}
