package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Debug switches to the human-readable
// development encoder; otherwise JSON at info level.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	// stdout belongs to the TUI; logs go to stderr or a file.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// NewFile writes JSON logs to path, for the popup where the terminal is busy.
func NewFile(path string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// WithRequest tags l with the request id and domain of a retrieval run.
func WithRequest(l *zap.Logger, requestID, domain string) *zap.Logger {
	return OrNop(l).With(zap.String("request_id", requestID), zap.String("domain", domain))
}
