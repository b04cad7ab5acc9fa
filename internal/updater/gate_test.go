package updater

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensekit/internal/cache"
	"licensekit/internal/client"
	apperrors "licensekit/internal/errors"
	"licensekit/internal/license"
)

type fakeFeed struct {
	mu       sync.Mutex
	response *client.Response
	err      error
	calls    int
	payloads []map[string]string
}

func (f *fakeFeed) Call(_ context.Context, _ client.Endpoint, payload map[string]string) (*client.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeState struct {
	record  *license.Record
	key     string
	cleared []string
}

func (s *fakeState) CurrentRecord(context.Context) (*license.Record, bool) {
	if s.record == nil {
		return nil, false
	}
	return s.record, true
}

func (s *fakeState) StoredKey() (string, bool) {
	return s.key, s.key != ""
}

func (s *fakeState) Clear(_ context.Context, reason string) error {
	s.record = nil
	s.key = ""
	s.cleared = append(s.cleared, reason)
	return nil
}

type gateFixture struct {
	gate  *Gate
	feed  *fakeFeed
	state *fakeState
	cache *cache.Cache
}

func newGateFixture(t *testing.T, currentVersion string) *gateFixture {
	t.Helper()

	c := cache.New()
	t.Cleanup(c.Stop)

	feed := &fakeFeed{}
	state := &fakeState{
		record: &license.Record{Status: license.StatusActive},
		key:    "ABCD-1234-EFGH-5678",
	}

	gate := NewGate(GateOptions{
		Client:         feed,
		State:          state,
		Cache:          c,
		CacheTTL:       12 * time.Hour,
		CurrentVersion: currentVersion,
		ProductName:    "Acme Suite",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &gateFixture{gate: gate, feed: feed, state: state, cache: c}
}

func TestGateCheckWithoutValidLicense(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.state.record = nil

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor)
	assert.Zero(t, f.feed.callCount(), "an unlicensed install must never poll the feed")
}

func TestGateCheckWithExpiredLicense(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	past := time.Now().Add(-time.Hour)
	f.state.record = &license.Record{Status: license.StatusActive, ExpiresAt: &past}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor)
	assert.Zero(t, f.feed.callCount())
}

func TestGateCheckNewerVersion(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
		Tested:     "6.6",
		Requires:   "6.0",
	}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, descriptor)
	assert.Equal(t, "2.1.0", descriptor.NewVersion)
	assert.Equal(t, "https://updates.example.com/acme-2.1.0.zip", descriptor.Package)
}

func TestGateCheckSendsLicenseIdentity(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{Status: "success"}

	_, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)

	require.Len(t, f.feed.payloads, 1)
	assert.Equal(t, "ABCD-1234-EFGH-5678", f.feed.payloads[0]["license_key"])
	assert.Equal(t, "2.0.0", f.feed.payloads[0]["current_version"])
}

func TestGateCheckSameVersion(t *testing.T) {
	f := newGateFixture(t, "2.1.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
	}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor)
}

func TestGateCheckOlderVersion(t *testing.T) {
	f := newGateFixture(t, "2.1.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "2.0.9",
		Package:    "https://updates.example.com/acme-2.0.9.zip",
	}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor, "a downgrade must never be offered")
}

func TestGateCheckMalformedVersion(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "latest",
		Package:    "https://updates.example.com/acme.zip",
	}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor, "an unparsable feed version means no update")
}

func TestGateCheckMissingPackage(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "3.0.0",
	}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor, "no download package means nothing to offer")
}

func TestGateCheckCachesOutcome(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
	}

	_, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	_, err = f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.feed.callCount(), "a fresh cached response must be reused")
}

func TestGateCheckCachesEmptyOutcome(t *testing.T) {
	f := newGateFixture(t, "2.1.0")
	f.feed.response = &client.Response{Status: "success", NewVersion: "2.1.0"}

	descriptor, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor)

	descriptor, err = f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, descriptor)

	assert.Equal(t, 1, f.feed.callCount(), "a no-update outcome is cached like any other")
}

func TestGateCheckWrongProductClearsLicense(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{Status: "error", Code: "wrong_product"}

	_, err := f.gate.CheckForUpdate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrWrongProduct)
	assert.Equal(t, []string{"wrong_product"}, f.state.cleared)

	_, ok := f.cache.Get(cache.KeyUpdateCheck)
	assert.False(t, ok, "a rejected response must not be cached")
}

func TestGateCheckFeedError(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.err = apperrors.ErrTransport

	_, err := f.gate.CheckForUpdate(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTransport)

	_, ok := f.cache.Get(cache.KeyUpdateCheck)
	assert.False(t, ok, "failures must not poison the update cache")
}

func TestGateInfo(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
		Author:     "Acme Inc",
		Homepage:   "https://acme.example.com",
		Sections:   map[string]string{"changelog": "<ul><li>Fixes</li></ul>"},
	}

	info, err := f.gate.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme Suite", info.Name)
	assert.Equal(t, "2.1.0", info.Version)
	assert.Equal(t, "Acme Inc", info.Author)
	assert.Contains(t, info.Sections, "changelog")
	assert.Equal(t, 1, f.feed.callCount())
}

func TestGateInfoWithoutLicense(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.state.record = nil

	_, err := f.gate.Info(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoLicenseFound)
}

func TestGateInvalidateCache(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{Status: "success", NewVersion: "2.1.0", Package: "https://u.example.com/p.zip"}

	_, err := f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)

	f.gate.InvalidateCache()

	_, err = f.gate.CheckForUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.feed.callCount())
}

func TestNewerVersion(t *testing.T) {
	tests := []struct {
		candidate string
		current   string
		want      bool
	}{
		{candidate: "2.1.0", current: "2.0.0", want: true},
		{candidate: "v2.1.0", current: "2.0.0", want: true},
		{candidate: "2.1.0", current: "v2.0.0", want: true},
		{candidate: "2.0.0", current: "2.0.0", want: false},
		{candidate: "1.9.9", current: "2.0.0", want: false},
		{candidate: "2.0.1", current: "2.0.0", want: true},
		{candidate: "3.0.0-beta.1", current: "2.9.0", want: true},
		{candidate: "2.0.0", current: "2.0.0-rc.1", want: true},
		{candidate: "latest", current: "2.0.0", want: false},
		{candidate: "", current: "2.0.0", want: false},
		{candidate: "2.1.0", current: "unknown", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate+"_vs_"+tt.current, func(t *testing.T) {
			assert.Equal(t, tt.want, newerVersion(tt.candidate, tt.current))
		})
	}
}

func TestCheckerNotifiesOnUpdate(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{
		Status:     "success",
		NewVersion: "2.1.0",
		Package:    "https://updates.example.com/acme-2.1.0.zip",
	}

	found := make(chan *Descriptor, 1)
	checker := NewChecker(f.gate, time.Hour, func(d *Descriptor) {
		found <- d
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	checker.Start(context.Background())
	defer checker.Stop()

	select {
	case d := <-found:
		assert.Equal(t, "2.1.0", d.NewVersion)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the initial check to report the update")
	}
}

func TestCheckerStopIdempotent(t *testing.T) {
	f := newGateFixture(t, "2.0.0")
	f.feed.response = &client.Response{Status: "success"}

	checker := NewChecker(f.gate, time.Hour, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	checker.Start(context.Background())
	checker.Stop()
	checker.Stop()
}
