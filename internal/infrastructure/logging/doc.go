// Package logging provides structured logging for Hearth Core.
//
// It wraps the standard library's log/slog with service defaults
// (service name, version) and configuration-driven level, format and
// output selection. All components receive a *Logger and attach their
// own default attributes with With().
package logging
