package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/infrastructure"
	"licensekit/internal/services"
)

// LicenseHandler serves the license endpoints
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the activate endpoint payload
type ActivationRequest struct {
	LicenseKey string `json:"license_key"`
}

// Bind implements render.Binder
func (a *ActivationRequest) Bind(_ *http.Request) error {
	a.LicenseKey = strings.TrimSpace(a.LicenseKey)
	if a.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	return nil
}

// ValidityResponse is the payload of the validity endpoint
type ValidityResponse struct {
	Valid     bool      `json:"valid"`
	Timestamp time.Time `json:"timestamp"`
}

// Routes returns the license endpoint router
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.GetStatus)
	r.Get("/valid", h.GetValidity)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	r.Post("/verify", h.Verify)
	r.Post("/invalidate-cache", h.InvalidateCache)

	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license.get_status",
		trace.WithAttributes(
			attribute.String("http.route", "/api/license/status"),
			attribute.String("request_id", middleware.GetReqID(r.Context())),
		),
	)
	defer span.End()

	response, err := h.service.GetStatus(ctx)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, "get_status", err)
		return
	}

	span.SetAttributes(attribute.String("license.status", response.LicenseStatus))
	h.logger.InfoContext(ctx, "license status served",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("license_status", response.LicenseStatus),
	)
	render.JSON(w, r, response)
}

// GetValidity handles GET /api/license/valid. It always answers 200 with
// a boolean so feature gates get a definitive yes or no.
func (h *LicenseHandler) GetValidity(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ValidityResponse{
		Valid:     h.service.IsValid(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license.activate",
		trace.WithAttributes(
			attribute.String("http.route", "/api/license/activate"),
			attribute.String("request_id", middleware.GetReqID(r.Context())),
		),
	)
	defer span.End()

	var req ActivationRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apperrors.MapLicenseError(
			apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()),
			r.URL.Path,
			infrastructure.GetTraceID(ctx),
		))
		return
	}

	response, err := h.service.Activate(ctx, req.LicenseKey)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, "activate", err)
		return
	}

	h.logger.InfoContext(ctx, "license activated",
		slog.String("request_id", middleware.GetReqID(ctx)),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response)
}

// Deactivate handles POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Deactivate(ctx); err != nil {
		h.renderError(w, r, "deactivate", err)
		return
	}

	h.logger.InfoContext(ctx, "license deactivated",
		slog.String("request_id", middleware.GetReqID(ctx)),
	)
	render.NoContent(w, r)
}

// Verify handles POST /api/license/verify, forcing a live check
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response, err := h.service.Verify(ctx)
	if err != nil {
		h.renderError(w, r, "verify", err)
		return
	}

	render.JSON(w, r, response)
}

// InvalidateCache handles POST /api/license/invalidate-cache
func (h *LicenseHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.service.InvalidateCache(ctx)
	h.logger.InfoContext(ctx, "license cache invalidated",
		slog.String("request_id", middleware.GetReqID(ctx)),
	)
	render.NoContent(w, r)
}

func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.ErrorContext(ctx, "license request failed",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)

	render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, traceID))
}
