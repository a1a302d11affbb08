// Package config loads, parses, and validates server configuration from
// environment variables and an optional YAML config file, providing
// type-safe access to server, database, and matchmaker settings.
package config
