// Package observability holds the process-wide loggers and metrics.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by command implementations. It is a no-op
// logger until InitCLILogger runs.
var CLILogger = zap.NewNop()

// ServerLogger is the logger used by the HTTP server and the serve loop.
// It is a no-op logger until InitServerLogger runs.
var ServerLogger = zap.NewNop()

// InitCLILogger configures CLILogger for human-facing output on stderr.
func InitCLILogger(name string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !isTerminal(os.Stderr) {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(name)
}

// NewLogger builds a service logger. Profile "structured" writes JSON;
// "console" writes the development format.
func NewLogger(level, profile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", "structured":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// InitServerLogger builds ServerLogger with NewLogger.
func InitServerLogger(name, level, profile string) error {
	logger, err := NewLogger(level, profile)
	if err != nil {
		return err
	}
	ServerLogger = logger.Named(name)
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
