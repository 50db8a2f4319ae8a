// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, routing tables (host and path namespaces with
// their backends and rule sets), strategy selection, and health check timing.
package config
