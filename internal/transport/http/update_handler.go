package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/infrastructure"
	"licensekit/internal/services"
	"licensekit/internal/updater"
)

// UpdateHandler serves the update-check endpoints
type UpdateHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewUpdateHandler creates an update handler
func NewUpdateHandler(service services.LicenseService, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "update")),
	}
}

// UpdateCheckResponse wraps the descriptor so "no update" is an explicit
// answer rather than an empty body.
type UpdateCheckResponse struct {
	UpdateAvailable bool                `json:"update_available"`
	Update          *updater.Descriptor `json:"update,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Routes returns the update endpoint router
func (h *UpdateHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/check", h.Check)
	r.Get("/info", h.Info)

	return r
}

// Check handles GET /api/update/check
func (h *UpdateHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	descriptor, err := h.service.CheckUpdate(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "update check failed",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, infrastructure.GetTraceID(ctx)))
		return
	}

	render.JSON(w, r, UpdateCheckResponse{
		UpdateAvailable: descriptor != nil,
		Update:          descriptor,
		Timestamp:       time.Now().UTC(),
	})
}

// Info handles GET /api/update/info
func (h *UpdateHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.service.ProductInfo(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "product info request failed",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapLicenseError(err, r.URL.Path, infrastructure.GetTraceID(ctx)))
		return
	}

	render.JSON(w, r, info)
}
