// Package updater implements the license-gated update check: it asks the
// update feed for the newest version, compares it against the running
// version, and produces an update descriptor only while the license is
// valid. Feed responses are cached so repeated checks inside the TTL cost
// nothing, including checks that found no update.
package updater
