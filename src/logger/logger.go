package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"market-data-server/src/models"

	"github.com/sirupsen/logrus"
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name   string
	entry  *logrus.Entry
	config *models.MConfig
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. config may be nil.
func NewLogger(config *models.MConfig, name string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if config != nil {
		base.SetLevel(ParseLevel(config.LogLevel))
	}

	return &Logger{
		name:   name,
		entry:  base.WithField("component", name),
		config: config,
	}
}

// -----------------------------------------------------------------------------

// NewTestLogger writes to w at debug level
func NewTestLogger(w io.Writer, name string) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &Logger{name: name, entry: base.WithField("component", name)}
}

// -----------------------------------------------------------------------------

// Named returns a logger sharing the same backend under another component name
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:   name,
		entry:  l.entry.WithField("component", name),
		config: l.config,
	}
}

// -----------------------------------------------------------------------------

// ParseLevel maps the config log level names onto logrus levels
func ParseLevel(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARNING", "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// -----------------------------------------------------------------------------

func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debug(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

func (l *Logger) Warning(format string, args ...interface{}) {
	l.entry.Warn(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Info(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Error(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.entry.Fatal(fmt.Sprintf(format, args...))
}
