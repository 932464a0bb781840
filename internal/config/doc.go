// Package config provides configuration loading and validation for the student
// marks service. It handles YAML-based configuration with per-section validation
// and defaults for the mark-list source, the REST API, refresh and logging.
package config
