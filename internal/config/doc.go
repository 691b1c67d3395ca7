// Package config loads, normalizes, and validates the application
// configuration from TOML, and owns directory creation for the staging and
// log trees. Path fields are expanded (including ~) and made absolute during
// load so downstream code never sees a relative path.
package config
