package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelDebug:
		return "debug"
	case LogLevelError:
		return "error"
	default:
		return "error"
	}
}

// sink is the file shared by a logger and every Named child.
type sink struct {
	mu       sync.Mutex
	level    LogLevel
	file     *os.File
	filePath string
}

// Logger writes leveled lines to an append-only file. Named returns a child
// logger that shares the file and tags each line with a component.
type Logger struct {
	sink      *sink
	component string
}

// NewLogger creates a logger. LogLevelOff or an empty path opens no file.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	s := &sink{level: level, filePath: filePath}
	logger := &Logger{sink: s}

	if level == LogLevelOff || filePath == "" {
		return logger, nil
	}

	filePath = ExpandPath(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	s.file = f
	s.filePath = filePath
	return logger, nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{sink: &sink{level: LogLevelOff}}
}

// Named returns a logger tagging its lines with component.
func (l *Logger) Named(component string) *Logger {
	if l.component != "" {
		component = l.component + "." + component
	}
	return &Logger{sink: l.sink, component: component}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// Path returns the resolved log file path.
func (l *Logger) Path() string {
	return l.sink.filePath
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// Writer returns an io.Writer that writes to the logger at the specified level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level == LogLevelOff || level > s.level || s.file == nil {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	levelStr := strings.ToUpper(level.String())
	msg := fmt.Sprintf(format, args...)

	if l.component != "" {
		_, _ = fmt.Fprintf(s.file, "%s [%s] %s: %s\n", timestamp, levelStr, l.component, msg)
		return
	}
	_, _ = fmt.Fprintf(s.file, "%s [%s] %s\n", timestamp, levelStr, msg)
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.log(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}
