package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapLicenseError translates a license operation error into the RFC 7807
// problem the HTTP surface renders. Unknown errors map to a generic 500.
func MapLicenseError(err error, instance, traceID string) *ProblemDetails {
	var problem *ProblemDetails

	switch {
	case errors.Is(err, ErrInvalidInput):
		problem = NewProblemDetails(http.StatusBadRequest,
			"/errors/empty-license-key", "Empty License Key",
			"Please enter a license key.", instance)

	case errors.Is(err, ErrNoLicenseFound):
		problem = NewProblemDetails(http.StatusNotFound,
			"/errors/no-license", "No License Found",
			"No license key is stored for this installation.", instance)

	case errors.Is(err, ErrThrottled):
		problem = NewProblemDetails(http.StatusServiceUnavailable,
			"/errors/throttled", "License Server Throttled",
			"The license server failed recently; requests are paused. Please try again later.", instance).
			WithExtension("retry_after", 3600)

	case errors.Is(err, ErrTransport):
		problem = NewProblemDetails(http.StatusServiceUnavailable,
			"/errors/network", "License Server Unreachable",
			"Unable to connect to the license server. Please check your internet connection.", instance)

	case errors.Is(err, ErrServer):
		problem = NewProblemDetails(http.StatusBadGateway,
			"/errors/server", "License Server Error",
			err.Error(), instance)

	case errors.Is(err, ErrMalformedResponse):
		problem = NewProblemDetails(http.StatusBadGateway,
			"/errors/malformed-response", "Invalid Server Response",
			"The license server returned a response that could not be parsed.", instance)

	case errors.Is(err, ErrWrongProduct):
		problem = NewProblemDetails(http.StatusForbidden,
			"/errors/wrong-product", "Wrong Product",
			"This license is not valid for this product. The license has been removed.", instance)

	case errors.Is(err, ErrVerificationFailed):
		problem = NewProblemDetails(http.StatusForbidden,
			"/errors/verification-failed", "Verification Failed",
			"License verification failed. Your license is no longer valid.", instance)

	case errors.Is(err, ErrLicenseExpired):
		problem = NewProblemDetails(http.StatusForbidden,
			"/errors/license-expired", "License Expired",
			"Your license has expired. Please renew to continue.", instance)

	case errors.Is(err, ErrLicenseInvalid):
		problem = NewProblemDetails(http.StatusForbidden,
			"/errors/license-invalid", "License Invalid",
			"Your license is not active.", instance)

	case errors.Is(err, ErrActivationFailed), errors.Is(err, ErrDeactivationFailed):
		problem = NewProblemDetails(http.StatusUnprocessableEntity,
			"/errors/operation-rejected", "Operation Rejected",
			err.Error(), instance)

	case errors.Is(err, context.DeadlineExceeded):
		problem = NewProblemDetails(http.StatusGatewayTimeout,
			"/errors/timeout", "Request Timeout",
			"The request timed out while processing. Please try again.", instance)

	default:
		problem = NewProblemDetails(http.StatusInternalServerError,
			"/errors/internal", "Internal Error",
			"An unexpected error occurred. Please try again later.", instance)
	}

	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}
