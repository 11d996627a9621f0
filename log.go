package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvLogLevel overrides the configured log level.
const EnvLogLevel = "PIXELCRAFT_LOG_LEVEL"

// InitLogger writes to the console and, if configured, to a rotating file.
// The returned closer flushes the file.
func InitLogger(cfg Config) (zerolog.Logger, io.Closer) {
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    64, // megabytes
			MaxBackups: 4,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	logger := zerolog.New(out).
		Level(logLevel(cfg.LogLevel, os.Getenv(EnvLogLevel))).
		With().Timestamp().Str("app", "pixelcraft").Str("canvas", cfg.Canvas).
		Logger()
	log.Logger = logger
	return logger, closer
}

// logLevel picks the env override over the configured level and falls back
// to info when neither parses.
func logLevel(configured, env string) zerolog.Level {
	for _, raw := range []string{env, configured} {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		if lvl, err := zerolog.ParseLevel(raw); err == nil {
			return lvl
		}
	}
	return zerolog.InfoLevel
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
