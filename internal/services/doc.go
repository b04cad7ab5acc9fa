// Package services holds the business-logic layer between the HTTP
// transport and the license manager. Services shape manager results into
// client-facing payloads and keep transport concerns out of the core.
package services
