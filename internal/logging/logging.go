// Package logging builds the logrus logger shared by every command.
package logging

import (
	"io"
	"os"
	"strings"

	"voicecmd/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logger type shared across packages.
type Logger = logrus.Logger

// Configure logs to the rotated file at paths.log_path, mirrored to stderr
// when logging.stdout is set. Every entry carries the recognition engine.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetFormatter(formatter(cfg.Logging.Format))

	level, levelErr := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if levelErr == nil {
		logger.SetLevel(level)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Paths.LogPath,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     14,
	}
	var out io.Writer = rotator
	if cfg.Logging.Stdout {
		out = io.MultiWriter(os.Stderr, rotator)
	}
	logger.SetOutput(out)
	logger.AddHook(fieldsHook{"engine": strings.ToLower(cfg.Recognition.Engine)})

	if levelErr != nil && cfg.Logging.Level != "" {
		logger.Warnf("unknown log level %q, using %s", cfg.Logging.Level, logger.GetLevel())
	}
	return logger, nil
}

func formatter(format string) logrus.Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &logrus.JSONFormatter{}
	default:
		return &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}
	}
}

// fieldsHook stamps static fields on entries that do not already set them.
type fieldsHook logrus.Fields

func (h fieldsHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h fieldsHook) Fire(e *logrus.Entry) error {
	for k, v := range h {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
