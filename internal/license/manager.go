package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"licensekit/internal/cache"
	"licensekit/internal/client"
	apperrors "licensekit/internal/errors"
	"licensekit/internal/store"
)

// RemoteClient issues calls to the licensing API. Satisfied by
// client.Client; tests substitute a fake.
type RemoteClient interface {
	Call(ctx context.Context, endpoint client.Endpoint, payload map[string]string) (*client.Response, error)
}

// SettingsStore persists the license key and status record
type SettingsStore interface {
	Get(key store.Key, out interface{}) (bool, error)
	GetString(key store.Key) (string, bool, error)
	Put(key store.Key, value interface{}) error
	Delete(keys ...store.Key) error
}

// ResultCache holds time-bounded verification and update-check results
type ResultCache interface {
	Get(key cache.Key) (interface{}, bool)
	Put(key cache.Key, value interface{}, ttl time.Duration)
	Invalidate(keys ...cache.Key)
}

// Manager is the license state machine. It reconciles licensing API
// responses with the cache and the persistent store, and is the single
// source of truth for whether the license is considered valid.
type Manager struct {
	client      RemoteClient
	store       SettingsStore
	cache       ResultCache
	cacheTTL    time.Duration
	productName string
	logger      *slog.Logger
	metrics     *Metrics
	verifyGroup singleflight.Group

	// now is swappable for expiry-boundary tests
	now func() time.Time
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Client      RemoteClient
	Store       SettingsStore
	Cache       ResultCache
	CacheTTL    time.Duration
	ProductName string
	Logger      *slog.Logger
}

// NewManager creates a license manager with injected collaborators
func NewManager(opts ManagerOptions) *Manager {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 12 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProductName == "" {
		opts.ProductName = "this product"
	}

	return &Manager{
		client:      opts.Client,
		store:       opts.Store,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		productName: opts.ProductName,
		logger:      opts.Logger.With(slog.String("component", "license_manager")),
		now:         time.Now,
	}
}

// SetMetrics attaches OpenTelemetry metrics to the manager
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// Activate binds the given license key to this installation. On success
// the key and a fresh active record are persisted and the verification
// cache is repopulated. A wrong_product response is rejected without
// touching existing state.
func (m *Manager) Activate(ctx context.Context, rawKey string) error {
	key := strings.TrimSpace(rawKey)
	if key == "" {
		return apperrors.ErrInvalidInput
	}

	m.count(ctx, m.metricsOrNil().ActivationAttempts)
	m.logInfo(ctx, "activation_start", "activating license",
		slog.String("license_key_masked", maskLicenseKey(key)),
	)

	resp, err := m.client.Call(ctx, client.EndpointActivate, map[string]string{
		"license_key": key,
	})
	if err != nil {
		m.count(ctx, m.metricsOrNil().ActivationFailures)
		return err
	}

	if resp.WrongProduct() {
		m.count(ctx, m.metricsOrNil().ActivationFailures)
		m.logWarn(ctx, "activation_rejected", "license key belongs to a different product")
		return apperrors.WithMessage(apperrors.ErrWrongProduct,
			fmt.Sprintf("this license is not valid for %s, please check your license key", m.productName))
	}

	if !resp.Success() {
		m.count(ctx, m.metricsOrNil().ActivationFailures)
		return apperrors.WithMessage(apperrors.ErrActivationFailed, resp.Message)
	}

	record := Record{
		Status:    StatusActive,
		ExpiresAt: parseExpiry(resp.ExpiresAt),
		LastCheck: m.now(),
	}

	if err := m.store.Put(store.KeyLicenseKey, key); err != nil {
		return fmt.Errorf("failed to persist license key: %w", err)
	}
	if err := m.store.Put(store.KeyLicenseStatus, record); err != nil {
		return fmt.Errorf("failed to persist license record: %w", err)
	}

	m.cache.Invalidate(cache.KeyLicenseCheck, cache.KeyUpdateCheck)
	m.cache.Put(cache.KeyLicenseCheck, &record, m.cacheTTL)

	m.logInfo(ctx, "activation_success", "license activated",
		slog.String("license_key_masked", maskLicenseKey(key)),
		slog.Bool("has_expiry", record.ExpiresAt != nil),
	)
	return nil
}

// Deactivate releases the stored license key on the remote service and
// removes all local license state. With no stored key it fails locally
// without a network call.
func (m *Manager) Deactivate(ctx context.Context) error {
	key, ok, err := m.store.GetString(store.KeyLicenseKey)
	if err != nil {
		return fmt.Errorf("failed to read stored license key: %w", err)
	}
	if !ok {
		return apperrors.ErrNoLicenseFound
	}

	resp, err := m.client.Call(ctx, client.EndpointDeactivate, map[string]string{
		"license_key": key,
	})
	if err != nil {
		return err
	}

	if !resp.Success() {
		return apperrors.WithMessage(apperrors.ErrDeactivationFailed, resp.Message)
	}

	if err := m.clearAll(ctx, "deactivated"); err != nil {
		return err
	}

	m.logInfo(ctx, "deactivation_success", "license deactivated",
		slog.String("license_key_masked", maskLicenseKey(key)),
	)
	return nil
}

// Verify re-confirms the stored license against the licensing API. It
// always attempts a live call; the read cache is intentionally bypassed so
// an explicit verify is guaranteed fresh. On transport-level failure it
// falls back, read-only, to the last persisted record.
func (m *Manager) Verify(ctx context.Context) (*Record, error) {
	key, ok, err := m.store.GetString(store.KeyLicenseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored license key: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrNoLicenseFound
	}

	// Concurrent verifies collapse into one remote call.
	value, err, _ := m.verifyGroup.Do("verify", func() (interface{}, error) {
		return m.doVerify(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Record), nil
}

func (m *Manager) doVerify(ctx context.Context, key string) (*Record, error) {
	start := m.now()
	m.count(ctx, m.metricsOrNil().VerificationAttempts)

	resp, err := m.client.Call(ctx, client.EndpointVerify, map[string]string{
		"license_key": key,
	})
	if err != nil {
		m.count(ctx, m.metricsOrNil().VerificationFailures)
		if apperrors.IsRecoverable(err) {
			var last Record
			ok, serr := m.store.Get(store.KeyLicenseStatus, &last)
			if serr == nil && ok {
				m.count(ctx, m.metricsOrNil().VerificationFallbacks)
				m.logWarn(ctx, "verification_fallback", "license server unreachable, using last known record",
					slog.String("error", err.Error()),
					slog.String("last_status", string(last.Status)),
				)
				return &last, nil
			}
		}
		return nil, err
	}

	m.observe(ctx, m.metricsOrNil().VerificationDuration, m.now().Sub(start))

	if resp.WrongProduct() {
		if err := m.clearAll(ctx, "wrong_product"); err != nil {
			m.logError(ctx, "verification_cleanup", "failed to clear license state",
				slog.String("error", err.Error()))
		}
		return nil, apperrors.WithMessage(apperrors.ErrWrongProduct,
			fmt.Sprintf("this license is not valid for %s, the license has been removed", m.productName))
	}
	if resp.VerificationFailed() {
		if err := m.clearAll(ctx, "verification_failed"); err != nil {
			m.logError(ctx, "verification_cleanup", "failed to clear license state",
				slog.String("error", err.Error()))
		}
		return nil, apperrors.WithMessage(apperrors.ErrVerificationFailed, resp.Message)
	}

	record := Record{
		Status:    parseStatus(resp.Status),
		ExpiresAt: parseExpiry(resp.ExpiresAt),
		LastCheck: m.now(),
	}

	now := m.now()
	if record.Valid(now) {
		if err := m.store.Put(store.KeyLicenseStatus, record); err != nil {
			return nil, fmt.Errorf("failed to persist license record: %w", err)
		}
		m.cache.Put(cache.KeyLicenseCheck, &record, m.cacheTTL)
		m.logInfo(ctx, "verification_success", "license verified",
			slog.Bool("has_expiry", record.ExpiresAt != nil),
		)
		return &record, nil
	}

	// Server-declared-invalid or past expiry: a no-longer-valid key
	// requires full re-activation, so the stored key goes too.
	if record.Status == StatusExpired || record.Expired(now) {
		if err := m.clearAll(ctx, "expired"); err != nil {
			m.logError(ctx, "verification_cleanup", "failed to clear license state",
				slog.String("error", err.Error()))
		}
		return nil, apperrors.ErrLicenseExpired
	}

	if err := m.clearAll(ctx, "invalid"); err != nil {
		m.logError(ctx, "verification_cleanup", "failed to clear license state",
			slog.String("error", err.Error()))
	}
	return nil, apperrors.ErrLicenseInvalid
}

// IsValid reports whether the license grants access right now. This is
// the single predicate feature gating must use. Within the verification
// TTL it is answered from the cache; on a miss or stale entry it falls
// through to a live verification.
func (m *Manager) IsValid(ctx context.Context) bool {
	record, err := m.Details(ctx)
	if err != nil {
		return false
	}
	return record.Valid(m.now())
}

// CurrentRecord returns the cached or persisted license record without any
// network call. The update gate uses this so a periodic tick never forces
// a live verification.
func (m *Manager) CurrentRecord(ctx context.Context) (*Record, bool) {
	if value, ok := m.cache.Get(cache.KeyLicenseCheck); ok {
		if record, ok := value.(*Record); ok {
			m.count(ctx, m.metricsOrNil().CacheHits)
			return record, true
		}
	}
	m.count(ctx, m.metricsOrNil().CacheMisses)

	var record Record
	ok, err := m.store.Get(store.KeyLicenseStatus, &record)
	if err != nil || !ok {
		return nil, false
	}
	return &record, true
}

// Details returns the license record, served from cache when fresh and
// re-verified otherwise. Transport failures degrade to the last persisted
// record inside Verify.
func (m *Manager) Details(ctx context.Context) (*Record, error) {
	if value, ok := m.cache.Get(cache.KeyLicenseCheck); ok {
		if record, ok := value.(*Record); ok {
			m.count(ctx, m.metricsOrNil().CacheHits)
			return record, nil
		}
	}
	m.count(ctx, m.metricsOrNil().CacheMisses)
	return m.Verify(ctx)
}

// MaskedKey returns the stored license key masked for display, or empty
// when no key is stored.
func (m *Manager) MaskedKey() string {
	key, ok, err := m.store.GetString(store.KeyLicenseKey)
	if err != nil || !ok {
		return ""
	}
	return maskLicenseKey(key)
}

// HasKey reports whether a license key is stored
func (m *Manager) HasKey() bool {
	_, ok := m.StoredKey()
	return ok
}

// StoredKey returns the raw stored license key. Callers that only display
// the key use MaskedKey instead.
func (m *Manager) StoredKey() (string, bool) {
	key, ok, err := m.store.GetString(store.KeyLicenseKey)
	if err != nil || !ok {
		return "", false
	}
	return key, true
}

// Clear removes all local license state: the stored key, the status
// record, and the verification and update caches. Used on terminal
// failures (wrong product) detected outside the manager.
func (m *Manager) Clear(ctx context.Context, reason string) error {
	return m.clearAll(ctx, reason)
}

// InvalidateCache drops the verification and update caches without
// touching persisted state. Called when the host version changes.
func (m *Manager) InvalidateCache(ctx context.Context) {
	m.cache.Invalidate(cache.KeyLicenseCheck, cache.KeyUpdateCheck)
	m.logInfo(ctx, "cache_invalidated", "license caches cleared")
}

// EnsureHostVersion invalidates the caches when the host application
// version changed since the last run, forcing a full re-check cycle.
func (m *Manager) EnsureHostVersion(ctx context.Context, version string) error {
	stored, ok, err := m.store.GetString(store.KeyHostVersion)
	if err != nil {
		return err
	}
	if ok && stored == version {
		return nil
	}

	m.InvalidateCache(ctx)
	if err := m.store.Put(store.KeyHostVersion, version); err != nil {
		return err
	}
	m.logInfo(ctx, "host_version_changed", "host version changed, caches invalidated",
		slog.String("previous", stored),
		slog.String("current", version),
	)
	return nil
}

func (m *Manager) clearAll(ctx context.Context, reason string) error {
	m.count(ctx, m.metricsOrNil().LicensePurges)
	m.cache.Invalidate(cache.KeyLicenseCheck, cache.KeyUpdateCheck)
	if err := m.store.Delete(store.KeyLicenseKey, store.KeyLicenseStatus); err != nil {
		return fmt.Errorf("failed to delete license data: %w", err)
	}
	m.logInfo(ctx, "license_cleared", "license data removed",
		slog.String("reason", reason),
	)
	return nil
}
