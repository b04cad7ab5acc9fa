// Package http is the HTTP transport layer: a chi router exposing the
// license and update operations as a local JSON API, with RFC 7807
// problem-details error responses.
package http
