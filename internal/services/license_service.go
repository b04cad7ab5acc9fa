package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "licensekit/internal/errors"
	"licensekit/internal/infrastructure"
	"licensekit/internal/license"
	"licensekit/internal/updater"
)

// LicenseService is the transport-facing surface for license and update
// operations. Handlers depend on this interface, not on the manager.
type LicenseService interface {
	GetStatus(ctx context.Context) (*StatusResponse, error)
	Activate(ctx context.Context, key string) (*StatusResponse, error)
	Deactivate(ctx context.Context) error
	Verify(ctx context.Context) (*StatusResponse, error)
	IsValid(ctx context.Context) bool
	InvalidateCache(ctx context.Context)

	CheckUpdate(ctx context.Context) (*updater.Descriptor, error)
	ProductInfo(ctx context.Context) (*updater.ProductInfo, error)
}

// StatusResponse is the license status payload returned to clients
type StatusResponse struct {
	LicenseStatus string     `json:"license_status"`
	Message       string     `json:"message"`
	MaskedKey     string     `json:"license_key,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DaysLeft      int        `json:"days_left,omitempty"`
	LastCheck     time.Time  `json:"last_check,omitempty"`
	TraceID       string     `json:"trace_id,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

const (
	statusActive       = "active"
	statusExpired      = "expired"
	statusInvalid      = "invalid"
	statusNotActivated = "not_activated"
)

type licenseService struct {
	manager *license.Manager
	gate    *updater.Gate
	logger  *slog.Logger
	now     func() time.Time
}

// NewLicenseService creates the license service
func NewLicenseService(manager *license.Manager, gate *updater.Gate, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		manager: manager,
		gate:    gate,
		logger:  logger.With(slog.String("component", "license_service")),
		now:     time.Now,
	}
}

// GetStatus reports the current license state. It serves from the cache
// when fresh and re-verifies otherwise; an install with no stored key is
// reported as not activated rather than as an error.
func (s *licenseService) GetStatus(ctx context.Context) (*StatusResponse, error) {
	if !s.manager.HasKey() {
		return s.respond(ctx, statusNotActivated, "no license key has been activated", nil), nil
	}

	record, err := s.manager.Details(ctx)
	if err != nil {
		return s.statusFromError(ctx, err)
	}
	return s.statusFromRecord(ctx, record), nil
}

// Activate activates the given key and returns the resulting status
func (s *licenseService) Activate(ctx context.Context, key string) (*StatusResponse, error) {
	if err := s.manager.Activate(ctx, key); err != nil {
		return nil, err
	}
	record, ok := s.manager.CurrentRecord(ctx)
	if !ok {
		return nil, fmt.Errorf("activation succeeded but no record was stored")
	}
	return s.statusFromRecord(ctx, record), nil
}

// Deactivate releases the license
func (s *licenseService) Deactivate(ctx context.Context) error {
	return s.manager.Deactivate(ctx)
}

// Verify forces a live verification and returns the resulting status
func (s *licenseService) Verify(ctx context.Context) (*StatusResponse, error) {
	record, err := s.manager.Verify(ctx)
	if err != nil {
		return s.statusFromError(ctx, err)
	}
	return s.statusFromRecord(ctx, record), nil
}

// IsValid reports whether the license currently grants access
func (s *licenseService) IsValid(ctx context.Context) bool {
	return s.manager.IsValid(ctx)
}

// InvalidateCache drops cached verification and update results
func (s *licenseService) InvalidateCache(ctx context.Context) {
	s.manager.InvalidateCache(ctx)
}

// CheckUpdate returns the available update descriptor, if any
func (s *licenseService) CheckUpdate(ctx context.Context) (*updater.Descriptor, error) {
	return s.gate.CheckForUpdate(ctx)
}

// ProductInfo returns the product listing from the update feed
func (s *licenseService) ProductInfo(ctx context.Context) (*updater.ProductInfo, error) {
	return s.gate.Info(ctx)
}

// statusFromError translates terminal license errors into status payloads
// and passes everything else through for the transport layer to map.
func (s *licenseService) statusFromError(ctx context.Context, err error) (*StatusResponse, error) {
	switch {
	case errors.Is(err, apperrors.ErrLicenseExpired):
		return s.respond(ctx, statusExpired, "the license has expired and must be renewed", nil), nil
	case errors.Is(err, apperrors.ErrLicenseInvalid):
		return s.respond(ctx, statusInvalid, "the license key is not valid", nil), nil
	case errors.Is(err, apperrors.ErrNoLicenseFound):
		return s.respond(ctx, statusNotActivated, "no license key has been activated", nil), nil
	default:
		return nil, err
	}
}

func (s *licenseService) statusFromRecord(ctx context.Context, record *license.Record) *StatusResponse {
	now := s.now()

	status := statusInvalid
	message := "the license key is not valid"
	switch {
	case record.Valid(now):
		status = statusActive
		message = "license is active"
	case record.Status == license.StatusExpired || record.Expired(now):
		status = statusExpired
		message = "the license has expired and must be renewed"
	}

	resp := s.respond(ctx, status, message, record.ExpiresAt)
	resp.LastCheck = record.LastCheck
	return resp
}

func (s *licenseService) respond(ctx context.Context, status, message string, expiresAt *time.Time) *StatusResponse {
	resp := &StatusResponse{
		LicenseStatus: status,
		Message:       message,
		MaskedKey:     s.manager.MaskedKey(),
		ExpiresAt:     expiresAt,
		TraceID:       infrastructure.GetTraceID(ctx),
		Timestamp:     s.now(),
	}
	if expiresAt != nil {
		if days := int(expiresAt.Sub(s.now()).Hours() / 24); days > 0 {
			resp.DaysLeft = days
		}
	}
	return resp
}
