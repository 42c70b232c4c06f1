// Package vaultlog provides the small structured-logging surface the
// vault core uses for its warnings: a negative
// cleartext-size clamp, and directory entries skipped during streaming
// because they can't be classified or authenticated.
package vaultlog

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

func init() {
	logger, _ = zap.NewDevelopment()
}

// Config selects the output level and format for Init.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init switches to a configured logger; callers embedding this module in
// a long-running service call it once at startup.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)
	encoder := createEncoder(cfg.Format)
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

// Warn logs a warning with alternating key/value pairs, the way zap's
// SugaredLogger does.
func Warn(msg string, kv ...string) {
	logger.Sugar().Warnw(msg, toArgs(kv)...)
}

// Error logs an error with alternating key/value pairs.
func Error(msg string, kv ...string) {
	logger.Sugar().Errorw(msg, toArgs(kv)...)
}

// Debug logs a debug-level message with alternating key/value pairs.
func Debug(msg string, kv ...string) {
	logger.Sugar().Debugw(msg, toArgs(kv)...)
}

func toArgs(kv []string) []interface{} {
	args := make([]interface{}, len(kv))
	for i, v := range kv {
		args[i] = v
	}
	return args
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func createEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		MessageKey:     "M",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if strings.ToLower(format) == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return logger.Sync()
}
