package utils

import "go.uber.org/zap"

// NewLogger returns the zap logger every command shares. Debug mode uses the
// development config (human-readable, debug level) for watching cache and
// stream behavior locally; otherwise the production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
