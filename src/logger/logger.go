package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console, silent, structured, etc.)
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs to stderr through logrus.
// Used for normal operation and debugging.
type ConsoleLogger struct {
	entry *logrus.Entry
}

// NewConsoleLogger returns a logger at the given level ("debug", "info", ...).
// Unknown levels fall back to info.
func NewConsoleLogger(level string) *ConsoleLogger {
	return newConsoleLogger(os.Stderr, level)
}

func newConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &ConsoleLogger{entry: logrus.NewEntry(l)}
}

// WithField returns a logger that tags every line with key=value.
func (c *ConsoleLogger) WithField(key string, value interface{}) *ConsoleLogger {
	return &ConsoleLogger{entry: c.entry.WithField(key, value)}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	c.entry.Infof(msg, args...)
}

func (c *ConsoleLogger) Warn(msg string, args ...interface{}) {
	c.entry.Warnf(msg, args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	c.entry.Errorf(msg, args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	c.entry.Debugf(msg, args...)
}

// SilentLogger discards all log messages.
// Used when running in TUI or MCP stdio mode to keep the terminal and protocol stream clean.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Warn(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
