// Package config loads, validates, and normalizes segue's TOML configuration.
package config
