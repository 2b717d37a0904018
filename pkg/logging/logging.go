// Package logging installs the process-wide slog logger. Records go to a
// rotating file so they never interleave with the chat screen.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cs_chatbot/pkg/config"
	"cs_chatbot/pkg/version"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below debug and is used for full prompt dumps.
const LevelTrace = slog.Level(-8)

const (
	defaultLogFile = "cs_chatbot.log"
	serviceName    = "cs_chatbot"

	// Trace logging writes every serialized prompt, so files are sized for
	// whole transcripts rather than one-line events.
	maxLogSizeMB  = 20
	maxLogBackups = 10
	maxLogAgeDays = 30

	redacted = "[REDACTED]"
)

// Attribute keys whose values are never written.
var secretKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"credential":    true,
}

// Init configures slog to write structured logs to a rotating file.
// When the log directory cannot be created, logs are discarded and the error
// is returned so the caller can warn once.
func Init(cfg config.Config) (*slog.Logger, error) {
	handlerOptions := &slog.HandlerOptions{
		Level:       parseLogLevel(cfg.LogLevel),
		ReplaceAttr: replaceAttr,
	}

	logPath := strings.TrimSpace(cfg.LogFile)
	if logPath == "" {
		logPath = defaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		logger := slog.New(newHandler(cfg.LogFormat, io.Discard, handlerOptions))
		slog.SetDefault(logger)
		return logger, err
	}

	logger := slog.New(newHandler(cfg.LogFormat, newRotatingWriter(logPath), handlerOptions)).
		With("service", serviceName, "version", version.Version)
	slog.SetDefault(logger)
	return logger, nil
}

func newRotatingWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
}

func defaultLogPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(homeDir) == "" {
		return filepath.Join("."+serviceName, "logs", defaultLogFile)
	}
	return filepath.Join(homeDir, "."+serviceName, "logs", defaultLogFile)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceAttr names the trace level and masks credentials.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
		return a
	}
	if secretKeys[strings.ToLower(a.Key)] && a.Value.String() != "" {
		a.Value = slog.StringValue(redacted)
	}
	return a
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.NewTextHandler(out, opts)
	default:
		return slog.NewJSONHandler(out, opts)
	}
}
