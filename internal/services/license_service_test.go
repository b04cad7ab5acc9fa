package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensekit/internal/cache"
	"licensekit/internal/client"
	apperrors "licensekit/internal/errors"
	"licensekit/internal/license"
	"licensekit/internal/store"
	"licensekit/internal/updater"
)

type fakeRemote struct {
	responses map[client.Endpoint]*client.Response
	errs      map[client.Endpoint]error
	calls     int
}

func (f *fakeRemote) Call(_ context.Context, endpoint client.Endpoint, _ map[string]string) (*client.Response, error) {
	f.calls++
	if err, ok := f.errs[endpoint]; ok {
		return nil, err
	}
	if resp, ok := f.responses[endpoint]; ok {
		return resp, nil
	}
	return &client.Response{Status: "success"}, nil
}

type serviceFixture struct {
	service LicenseService
	remote  *fakeRemote
	store   *store.Store
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "license.json"))
	require.NoError(t, err)

	c := cache.New()
	t.Cleanup(c.Stop)

	remote := &fakeRemote{
		responses: make(map[client.Endpoint]*client.Response),
		errs:      make(map[client.Endpoint]error),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	manager := license.NewManager(license.ManagerOptions{
		Client:      remote,
		Store:       st,
		Cache:       c,
		ProductName: "Acme Suite",
		Logger:      logger,
	})

	gate := updater.NewGate(updater.GateOptions{
		Client:         remote,
		State:          manager,
		Cache:          c,
		CurrentVersion: "2.0.0",
		ProductName:    "Acme Suite",
		Logger:         logger,
	})

	return &serviceFixture{
		service: NewLicenseService(manager, gate, logger),
		remote:  remote,
		store:   st,
	}
}

func (f *serviceFixture) seedActive(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, f.store.Put(store.KeyLicenseKey, key))
	require.NoError(t, f.store.Put(store.KeyLicenseStatus, license.Record{
		Status:    license.StatusActive,
		LastCheck: time.Now(),
	}))
}

func TestServiceStatusNotActivated(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not_activated", resp.LicenseStatus)
	assert.Zero(t, f.remote.calls, "status without a key must not call the server")
}

func TestServiceStatusActive(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234-EFGH-5678")
	f.remote.responses[client.EndpointVerify] = &client.Response{
		Status:    "active",
		ExpiresAt: time.Now().Add(40 * 24 * time.Hour).UTC().Format(time.RFC3339),
	}

	resp, err := f.service.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "active", resp.LicenseStatus)
	assert.Equal(t, "ABCD****5678", resp.MaskedKey)
	assert.InDelta(t, 39, resp.DaysLeft, 1)
}

func TestServiceStatusExpiredLicense(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234-EFGH-5678")
	f.remote.responses[client.EndpointVerify] = &client.Response{Status: "expired"}

	resp, err := f.service.GetStatus(context.Background())
	require.NoError(t, err, "an expired license is a status, not a transport error")
	assert.Equal(t, "expired", resp.LicenseStatus)
}

func TestServiceStatusTransportErrorPropagates(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.store.Put(store.KeyLicenseKey, "ABCD-1234"))
	f.remote.errs[client.EndpointVerify] = apperrors.ErrTransport

	_, err := f.service.GetStatus(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTransport,
		"with no record to fall back to the failure surfaces")
}

func TestServiceActivate(t *testing.T) {
	f := newServiceFixture(t)
	f.remote.responses[client.EndpointActivate] = &client.Response{
		Status:    "success",
		ExpiresAt: "2027-06-01",
	}

	resp, err := f.service.Activate(context.Background(), "ABCD-1234-EFGH-5678")
	require.NoError(t, err)
	assert.Equal(t, "active", resp.LicenseStatus)
	assert.NotNil(t, resp.ExpiresAt)
}

func TestServiceActivateWrongProduct(t *testing.T) {
	f := newServiceFixture(t)
	f.remote.responses[client.EndpointActivate] = &client.Response{
		Status: "error",
		Code:   "wrong_product",
	}

	_, err := f.service.Activate(context.Background(), "OTHER-KEY")
	assert.ErrorIs(t, err, apperrors.ErrWrongProduct)
}

func TestServiceDeactivate(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234")
	f.remote.responses[client.EndpointDeactivate] = &client.Response{Status: "success"}

	require.NoError(t, f.service.Deactivate(context.Background()))

	resp, err := f.service.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not_activated", resp.LicenseStatus)
}

func TestServiceVerify(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234")
	f.remote.responses[client.EndpointVerify] = &client.Response{Status: "active"}

	resp, err := f.service.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "active", resp.LicenseStatus)
	assert.Equal(t, 1, f.remote.calls, "verify always goes live")
}

func TestServiceIsValid(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234")
	f.remote.responses[client.EndpointVerify] = &client.Response{Status: "active"}
	assert.True(t, f.service.IsValid(context.Background()))
}

func TestServiceCheckUpdate(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234")
	f.remote.responses[client.EndpointUpdates] = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
	}

	descriptor, err := f.service.CheckUpdate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, descriptor)
	assert.Equal(t, "2.1.0", descriptor.NewVersion)
}

func TestServiceCheckUpdateUnlicensed(t *testing.T) {
	f := newServiceFixture(t)

	descriptor, err := f.service.CheckUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor)
	assert.Zero(t, f.remote.calls)
}

func TestServiceProductInfo(t *testing.T) {
	f := newServiceFixture(t)
	f.seedActive(t, "ABCD-1234")
	f.remote.responses[client.EndpointUpdates] = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
		Author:     "Acme Inc",
	}

	info, err := f.service.ProductInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme Suite", info.Name)
	assert.Equal(t, "Acme Inc", info.Author)
}
