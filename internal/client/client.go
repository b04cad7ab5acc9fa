// Package client implements the HTTP client for the remote licensing API.
// Transport failures arm a one-hour negative cache per endpoint so a dead
// server is not hammered on every trigger; application-level errors do not.
package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"licensekit/internal/cache"
	apperrors "licensekit/internal/errors"
)

// Endpoint names a licensing API operation
type Endpoint string

const (
	EndpointActivate   Endpoint = "license/activate"
	EndpointDeactivate Endpoint = "license/deactivate"
	EndpointVerify     Endpoint = "license/verify"
	EndpointUpdates    Endpoint = "license/updates"
)

// Response is the decoded licensing API response. Fields beyond status,
// code, and message are populated only by the endpoints that return them.
type Response struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Verification fields
	ExpiresAt string `json:"expires_at,omitempty"`

	// Update fields
	NewVersion string            `json:"new_version,omitempty"`
	Package    string            `json:"package,omitempty"`
	Tested     string            `json:"tested,omitempty"`
	Requires   string            `json:"requires,omitempty"`
	Icons      map[string]string `json:"icons,omitempty"`

	// Extended product information
	LastUpdated string            `json:"last_updated,omitempty"`
	Homepage    string            `json:"homepage,omitempty"`
	Author      string            `json:"author,omitempty"`
	Sections    map[string]string `json:"sections,omitempty"`
	Banners     map[string]string `json:"banners,omitempty"`
}

// WrongProduct reports whether the server flagged the key as belonging to
// a different product.
func (r *Response) WrongProduct() bool {
	return r.Code == "wrong_product"
}

// VerificationFailed reports whether the server declared verification failed
func (r *Response) VerificationFailed() bool {
	return r.Code == "verification_failed"
}

// Success reports whether the operation succeeded
func (r *Response) Success() bool {
	return r.Status == "success"
}

// Options configures a Client
type Options struct {
	BaseURL     string
	ProductSlug string
	SiteURL     string
	InstallID   string
	Timeout     time.Duration
	FailureTTL  time.Duration
	Classifier  SiteClassifier
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client issues form-encoded POST requests to the licensing API
type Client struct {
	baseURL     string
	productSlug string
	siteURL     string
	installID   string
	timeout     time.Duration
	failureTTL  time.Duration
	development bool
	httpClient  *http.Client
	failures    *cache.Cache
	logger      *slog.Logger
}

// New creates a licensing API client. The failure cache is shared with the
// rest of the system so invalidation sweeps also clear throttle marks.
func New(opts Options, failures *cache.Cache) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = time.Hour
	}
	if opts.Classifier == nil {
		opts.Classifier = NewPatternClassifier()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/") + "/",
		productSlug: opts.ProductSlug,
		siteURL:     opts.SiteURL,
		installID:   opts.InstallID,
		timeout:     opts.Timeout,
		failureTTL:  opts.FailureTTL,
		development: opts.Classifier.IsDevelopment(hostOf(opts.SiteURL)),
		httpClient:  opts.HTTPClient,
		failures:    failures,
		logger:      opts.Logger.With(slog.String("component", "license_client")),
	}
}

// Call posts the payload to the named endpoint and decodes the JSON
// response. The site identity fields (site_url, product_slug, install_id,
// and site_type for development sites) are always included.
func (c *Client) Call(ctx context.Context, endpoint Endpoint, payload map[string]string) (*Response, error) {
	if _, throttled := c.failures.Get(cache.FailureKey(string(endpoint))); throttled {
		c.logger.WarnContext(ctx, "endpoint throttled after recent failure",
			slog.String("endpoint", string(endpoint)),
		)
		return nil, apperrors.ErrThrottled
	}

	form := url.Values{}
	form.Set("site_url", c.siteURL)
	form.Set("product_slug", c.productSlug)
	if c.installID != "" {
		form.Set("install_id", c.installID)
	}
	if c.development {
		form.Set("site_type", "development")
	}
	for key, value := range payload {
		form.Set(key, value)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+string(endpoint), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Transport(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failures.Put(cache.FailureKey(string(endpoint)), time.Now(), c.failureTTL)
		c.logger.ErrorContext(ctx, "licensing API request failed",
			slog.String("endpoint", string(endpoint)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Transport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.failures.Put(cache.FailureKey(string(endpoint)), time.Now(), c.failureTTL)
		return nil, apperrors.Transport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := serverMessage(body)
		c.logger.WarnContext(ctx, "licensing API returned error status",
			slog.String("endpoint", string(endpoint)),
			slog.Int("status_code", resp.StatusCode),
			slog.String("message", message),
		)
		return nil, apperrors.Server(resp.StatusCode, message)
	}

	var decoded Response
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.ErrorContext(ctx, "licensing API response is not valid JSON",
			slog.String("endpoint", string(endpoint)),
			slog.Int("body_bytes", len(body)),
		)
		return nil, apperrors.ErrMalformedResponse
	}

	c.logger.DebugContext(ctx, "licensing API call completed",
		slog.String("endpoint", string(endpoint)),
		slog.String("status", decoded.Status),
		slog.String("code", decoded.Code),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &decoded, nil
}

// serverMessage extracts a human-readable message from an error body,
// falling back to empty when the body is not the expected JSON shape.
func serverMessage(body []byte) string {
	var decoded struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	return decoded.Message
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
