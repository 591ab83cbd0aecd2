// Package config handles configuration loading for hearth-gateway.
//
// Configuration is loaded from YAML files with ${VAR_NAME} environment
// variable expansion and time.ParseDuration syntax for all durations.
// Unset fields fall back to package defaults before validation.
package config
