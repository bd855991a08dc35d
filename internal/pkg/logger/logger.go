package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New builds the root JSON logger. An empty file logs to stdout only.
func New(levelStr, file string) (*zap.Logger, error) {
	level, parseErr := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if parseErr != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = level > zapcore.DebugLevel
	if file != "" {
		cfg.OutputPaths = []string{"stdout", file}
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if levelStr != "" && parseErr != nil {
		l.Warn("Invalid log level string, defaulting to INFO", zap.String("input", levelStr))
	}
	return l, nil
}

// InstallSlog routes log/slog through the zap core so every library logs to one sink.
func InstallSlog(l *zap.Logger) *slog.Logger {
	s := slog.New(zapslog.NewHandler(l.Core()))
	slog.SetDefault(s)
	return s
}
