// Package config provides configuration management for the capability
// routing engine.
//
// # Overview
//
// The package uses Viper to load configuration from a YAML file and
// environment variables. It provides a type-safe structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// Configuration is stored at ~/.aiengine/config.yaml and is created with
// defaults on first use. The file structure mirrors the Go structs
// defined in this package.
//
// # Environment Variables
//
// All values can be overridden with the AIENGINE_ prefix. Nested fields
// are separated by underscores.
//
// Examples:
//   - AIENGINE_ASSIST_ENABLED=false
//   - AIENGINE_PROVIDERS_BRING_YOUR_OWN_API_KEY=sk-...
//   - AIENGINE_LOGGING_LEVEL=debug
//
// API keys should be supplied through the environment rather than the
// config file to avoid accidental exposure.
//
// # Configuration Sections
//
//   - Assist: the process-wide master switch for model-backed providers
//   - Providers: backend endpoints, models, and timeouts
//   - RateLimit: request-rate caps and the circuit breaker threshold
//   - Audit: local routing audit log location
//   - Logging: log level and output format
//
// # Path Expansion
//
// ~ is expanded to the user's home directory in all path settings.
package config
