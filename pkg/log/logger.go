// Package log provides structured logging utilities for the GOSOLO mining engine.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithPool returns a logger with pool connection fields
func (l *Logger) WithPool(host string, port int) *Logger {
	return l.WithFields("pool_host", host, "pool_port", port)
}

// WithJob returns a logger with job-specific fields
func (l *Logger) WithJob(jobID string) *Logger {
	return l.WithFields("job_id", jobID)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// LogStratumMessage logs Stratum protocol messages (debug level)
func (l *Logger) LogStratumMessage(direction, message string) {
	l.Debug("stratum message",
		"direction", direction,
		"message", message,
	)
}

// LogShareResult logs the outcome of a share submission
func (l *Logger) LogShareResult(jobID, nonce string, accepted bool) {
	l.Info("share result",
		"job_id", jobID,
		"nonce", nonce,
		"accepted", accepted,
	)
}

// LogBlockFound logs when a qualifying block header hash is found
func (l *Logger) LogBlockFound(jobID, blockHash string, nonce uint32, leadingZeros int) {
	l.Info("block found",
		"job_id", jobID,
		"block_hash", blockHash,
		"nonce", nonce,
		"leading_zero_bits", leadingZeros,
	)
}

// LogHashrate logs a hashrate measurement
func (l *Logger) LogHashrate(totalHashes uint64, hashrate float64, rotations uint64) {
	l.Info("hashrate",
		"total_hashes", totalHashes,
		"hashes_per_sec", hashrate,
		"rotations", rotations,
	)
}
