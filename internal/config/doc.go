// Package config defines the application configuration structure and
// loading logic. Configuration is read from environment variables with the
// POPFLOW_ prefix, with an optional config.yaml file as a lower-precedence
// source, and validated before use.
package config
