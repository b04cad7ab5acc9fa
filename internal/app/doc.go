// Package app is the composition root for the license daemon. It loads
// configuration, builds the license manager and update checker, and runs
// the local HTTP API with graceful shutdown.
package app
