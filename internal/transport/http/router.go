package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/infrastructure"
	"licensekit/internal/services"
)

// RouterOptions configures the HTTP router
type RouterOptions struct {
	Service        services.LicenseService
	Logger         *slog.Logger
	MetricsHandler http.Handler
	Version        string
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
}

// NewRouter assembles the full API router
func NewRouter(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(10)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(traceMiddleware)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	limiter := rate.NewLimiter(opts.RateLimit, opts.RateBurst)

	licenseHandler := NewLicenseHandler(opts.Service, opts.Logger)
	updateHandler := NewUpdateHandler(opts.Service, opts.Logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(rateLimitMiddleware(limiter))
		api.Mount("/license", licenseHandler.Routes())
		api.Mount("/update", updateHandler.Routes())
	})

	r.Get("/healthz", healthHandler(opts.Version))
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}

	return r
}

// traceMiddleware guarantees every request carries a trace id, reusing
// the caller's X-Trace-ID when present.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := infrastructure.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one line per completed request
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// rateLimitMiddleware rejects requests above the configured rate with a
// problem-details response.
func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				render.Render(w, r, apperrors.NewProblemDetails(
					http.StatusTooManyRequests,
					"/errors/rate-limited",
					"Too Many Requests",
					"request rate limit exceeded, slow down",
					r.URL.Path,
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, healthResponse{
			Status:    "ok",
			Version:   version,
			Timestamp: time.Now().UTC(),
		})
	}
}
