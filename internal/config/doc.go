// Package config loads and validates the daemon configuration from a YAML
// file and LICENSEKIT_-prefixed environment variables. Environment values
// take precedence over the file, which takes precedence over the built-in
// defaults.
package config
