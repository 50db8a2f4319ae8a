// Package logger builds the process-wide structured logger on top of the
// standard log/slog package. Production environments log JSON, everything
// else logs human-readable text; every record carries the environment name.
package logger
