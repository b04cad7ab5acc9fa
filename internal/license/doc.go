// Package license implements the license state machine: activation,
// deactivation, and verification of a license key against the remote
// licensing API, with a persistent record of the last known state and a
// time-bounded result cache.
//
// All access decisions flow through Manager.IsValid, which answers from
// the cache within the verification TTL and re-verifies on a miss. An
// explicit Verify always hits the remote service; only transport-level
// failures fall back to the last persisted record, and only for a bounded
// time. Responses the manager cannot understand are treated as invalid.
package license
