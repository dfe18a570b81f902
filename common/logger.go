package common

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel is the level name used in the configuration file.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LoggerConfig is the logging section of the configuration.
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "json" or "text"
	AddCaller  bool
	TimeFormat string
}

// DefaultLoggerConfig logs info and above as text.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LogLevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// ParseLogLevel converts a config string to a LogLevel, falling back to info.
func ParseLogLevel(level string) LogLevel {
	switch LogLevel(level) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(level)
	case "warning":
		return LogLevelWarn
	}
	return LogLevelInfo
}

var logrusLevels = map[LogLevel]logrus.Level{
	LogLevelDebug: logrus.DebugLevel,
	LogLevelInfo:  logrus.InfoLevel,
	LogLevelWarn:  logrus.WarnLevel,
	LogLevelError: logrus.ErrorLevel,
}

// NewLogger creates a logger configured by config.
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()
	ConfigureLogger(logger, config)
	return logger
}

// ConfigureLogger applies config to an existing logger. The CLI calls it on
// the global Logger once the configuration file is read.
func ConfigureLogger(logger *logrus.Logger, config LoggerConfig) {
	level, ok := logrusLevels[config.Level]
	if !ok {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: config.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: config.TimeFormat, FullTimestamp: true})
	}
	logger.SetReportCaller(config.AddCaller)
	logger.SetOutput(&OutputSplitter{})
}

// ContextLogger adds the same fields (site, server, bucket...) to every
// entry it writes.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger uses the global Logger when logger is nil.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	return &ContextLogger{logger: logger, fields: merge(nil, fields)}
}

// SiteLogger returns the logger used by task code working on one site.
func SiteLogger(site, server string) *ContextLogger {
	return NewContextLogger(Logger, map[string]interface{}{
		"site":   site,
		"server": server,
	})
}

func merge(base logrus.Fields, extra map[string]interface{}) logrus.Fields {
	out := make(logrus.Fields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger; cl is not changed.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	return &ContextLogger{logger: cl.logger, fields: merge(cl.fields, fields)}
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

// Fields returns a copy of the logger's fields.
func (cl *ContextLogger) Fields() map[string]interface{} {
	return merge(cl.fields, nil)
}

func (cl *ContextLogger) entry() *logrus.Entry {
	return cl.logger.WithFields(cl.fields)
}

func (cl *ContextLogger) Debug(msg string) { cl.entry().Debug(msg) }

func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.entry().Debugf(format, args...)
}

func (cl *ContextLogger) Info(msg string) { cl.entry().Info(msg) }

func (cl *ContextLogger) Infof(format string, args ...interface{}) { cl.entry().Infof(format, args...) }

func (cl *ContextLogger) Warn(msg string) { cl.entry().Warn(msg) }

func (cl *ContextLogger) Warnf(format string, args ...interface{}) { cl.entry().Warnf(format, args...) }

func (cl *ContextLogger) Error(msg string) { cl.entry().Error(msg) }

func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.entry().Errorf(format, args...)
}

// LogOperation wraps one step of a task (deploy, backup, restore) with a
// start entry and a finish entry carrying the elapsed time.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Info("started")

	err := fn()

	elapsed := time.Since(start)
	done := logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"duration":    elapsed.String(),
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		done.WithError(err).Error("failed")
		return err
	}
	done.Info("finished")
	return nil
}

// CommandFields describes one command run on a server.
func CommandFields(host, command string, exitCode int, duration time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"host":        host,
		"command":     command,
		"exit_code":   exitCode,
		"duration_ms": duration.Milliseconds(),
	}
}
