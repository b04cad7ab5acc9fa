package license

import (
	"strings"
	"time"
)

// Status is the canonical license state
type Status string

const (
	// StatusActive means the server confirmed the license and it has not
	// passed its expiry date.
	StatusActive Status = "active"
	// StatusInvalid means the server reported the license as not active,
	// or returned a payload too malformed to trust.
	StatusInvalid Status = "invalid"
	// StatusExpired means the license expiry date has passed
	StatusExpired Status = "expired"
)

// Record is the canonical license record persisted after a successful
// verification and cached for the verification TTL window.
type Record struct {
	Status    Status     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastCheck time.Time  `json:"last_check"`
}

// Expired reports whether the record's expiry date has passed. Records
// without an expiry never expire.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Valid reports whether the record grants access at the given time
func (r *Record) Valid(now time.Time) bool {
	return r.Status == StatusActive && !r.Expired(now)
}

// expiryFormats are the timestamp layouts the licensing API has been seen
// to emit for expires_at.
var expiryFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseExpiry parses a server-supplied expiry timestamp. Absent or
// unparsable values yield nil, which callers treat as non-expiring.
func parseExpiry(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range expiryFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}
	return nil
}

// parseStatus maps a server-supplied status string onto the canonical
// enum. Anything unrecognized is invalid, never active.
func parseStatus(value string) Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "active":
		return StatusActive
	case "expired":
		return StatusExpired
	default:
		return StatusInvalid
	}
}
