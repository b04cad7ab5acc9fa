package updater

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"licensekit/internal/cache"
	"licensekit/internal/client"
	apperrors "licensekit/internal/errors"
	"licensekit/internal/license"
)

// Descriptor describes an available update for the host application
type Descriptor struct {
	NewVersion  string            `json:"new_version"`
	Package     string            `json:"package"`
	Tested      string            `json:"tested,omitempty"`
	Requires    string            `json:"requires,omitempty"`
	LastUpdated string            `json:"last_updated,omitempty"`
	Homepage    string            `json:"homepage,omitempty"`
	Icons       map[string]string `json:"icons,omitempty"`
}

// ProductInfo is the full product listing served alongside update checks
type ProductInfo struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Author      string            `json:"author,omitempty"`
	Homepage    string            `json:"homepage,omitempty"`
	Tested      string            `json:"tested,omitempty"`
	Requires    string            `json:"requires,omitempty"`
	LastUpdated string            `json:"last_updated,omitempty"`
	Sections    map[string]string `json:"sections,omitempty"`
	Banners     map[string]string `json:"banners,omitempty"`
	Icons       map[string]string `json:"icons,omitempty"`
}

// LicenseState is the slice of the license manager the update gate needs:
// a non-networked read of the current record and key, and state removal
// when the update feed reports the key belongs to another product.
type LicenseState interface {
	CurrentRecord(ctx context.Context) (*license.Record, bool)
	StoredKey() (string, bool)
	Clear(ctx context.Context, reason string) error
}

// checkResult is the cached outcome of one update-feed call. A feed
// answer with no newer version is cached as a response with empty update
// fields, so a quiet feed is not re-polled before the TTL lapses.
type checkResult struct {
	response  *client.Response
	checkedAt time.Time
}

// Gate performs license-gated update checks against the update feed
type Gate struct {
	client         license.RemoteClient
	state          LicenseState
	cache          license.ResultCache
	cacheTTL       time.Duration
	currentVersion string
	productName    string
	logger         *slog.Logger

	now func() time.Time
}

// GateOptions configures an update Gate
type GateOptions struct {
	Client         license.RemoteClient
	State          LicenseState
	Cache          license.ResultCache
	CacheTTL       time.Duration
	CurrentVersion string
	ProductName    string
	Logger         *slog.Logger
}

// NewGate creates an update gate
func NewGate(opts GateOptions) *Gate {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 12 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Gate{
		client:         opts.Client,
		state:          opts.State,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		currentVersion: opts.CurrentVersion,
		productName:    opts.ProductName,
		logger:         opts.Logger.With(slog.String("component", "update_gate")),
		now:            time.Now,
	}
}

// CheckForUpdate returns a descriptor for the newest available version, or
// nil when nothing newer exists. Without a currently valid license the
// check is skipped entirely: no network call, no cache write.
func (g *Gate) CheckForUpdate(ctx context.Context) (*Descriptor, error) {
	record, ok := g.state.CurrentRecord(ctx)
	if !ok || !record.Valid(g.now()) {
		g.logger.DebugContext(ctx, "update check skipped, license not valid")
		return nil, nil
	}

	resp, err := g.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return g.descriptorFrom(resp), nil
}

// Info returns the product listing from the update feed. Like
// CheckForUpdate it requires a valid license and shares the same cached
// feed response.
func (g *Gate) Info(ctx context.Context) (*ProductInfo, error) {
	record, ok := g.state.CurrentRecord(ctx)
	if !ok || !record.Valid(g.now()) {
		return nil, apperrors.ErrNoLicenseFound
	}

	resp, err := g.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, apperrors.WithMessage(apperrors.ErrMalformedResponse, "update feed returned no product data")
	}

	info := &ProductInfo{
		Name:        g.productName,
		Version:     resp.NewVersion,
		Author:      resp.Author,
		Homepage:    resp.Homepage,
		Tested:      resp.Tested,
		Requires:    resp.Requires,
		LastUpdated: resp.LastUpdated,
		Sections:    resp.Sections,
		Banners:     resp.Banners,
		Icons:       resp.Icons,
	}
	if info.Version == "" {
		info.Version = g.currentVersion
	}
	return info, nil
}

// InvalidateCache drops the cached update-feed response
func (g *Gate) InvalidateCache() {
	g.cache.Invalidate(cache.KeyUpdateCheck)
}

// fetch returns the update-feed response, served from cache when fresh.
// Both populated and empty feed responses are cached for the full TTL.
func (g *Gate) fetch(ctx context.Context) (*client.Response, error) {
	if value, ok := g.cache.Get(cache.KeyUpdateCheck); ok {
		if result, ok := value.(*checkResult); ok {
			return result.response, nil
		}
	}

	key, ok := g.state.StoredKey()
	if !ok {
		return nil, apperrors.ErrNoLicenseFound
	}

	resp, err := g.client.Call(ctx, client.EndpointUpdates, map[string]string{
		"license_key":     key,
		"current_version": g.currentVersion,
	})
	if err != nil {
		return nil, err
	}

	if resp.WrongProduct() {
		// The key was reassigned or never belonged here. Local state is
		// now misleading and gets removed.
		if cerr := g.state.Clear(ctx, "wrong_product"); cerr != nil {
			g.logger.ErrorContext(ctx, "failed to clear license state",
				slog.String("error", cerr.Error()))
		}
		return nil, apperrors.WithMessage(apperrors.ErrWrongProduct,
			fmt.Sprintf("the update feed rejected this license for %s", g.productName))
	}

	g.cache.Put(cache.KeyUpdateCheck, &checkResult{
		response:  resp,
		checkedAt: g.now(),
	}, g.cacheTTL)

	g.logger.InfoContext(ctx, "update feed checked",
		slog.String("current_version", g.currentVersion),
		slog.String("feed_version", resp.NewVersion),
	)
	return resp, nil
}

// descriptorFrom builds an update descriptor when the feed offers a
// strictly newer, well-formed version with a download package. Anything
// the version comparison cannot understand means no update.
func (g *Gate) descriptorFrom(resp *client.Response) *Descriptor {
	if resp.NewVersion == "" || resp.Package == "" {
		return nil
	}
	if !newerVersion(resp.NewVersion, g.currentVersion) {
		return nil
	}

	return &Descriptor{
		NewVersion:  resp.NewVersion,
		Package:     resp.Package,
		Tested:      resp.Tested,
		Requires:    resp.Requires,
		LastUpdated: resp.LastUpdated,
		Homepage:    resp.Homepage,
		Icons:       resp.Icons,
	}
}

// newerVersion reports whether candidate is a valid semantic version
// strictly greater than current. Malformed versions never win.
func newerVersion(candidate, current string) bool {
	cv := canonicalVersion(candidate)
	cur := canonicalVersion(current)
	if !semver.IsValid(cv) || !semver.IsValid(cur) {
		return false
	}
	return semver.Compare(cv, cur) > 0
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
