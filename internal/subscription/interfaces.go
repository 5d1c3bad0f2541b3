package subscription

import (
	"github.com/mrz1836/subpass/internal/session"
)

// LogWriter provides logging capabilities.
// Satisfied by config.Logger.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Recorder receives flow metrics.
// Satisfied by metrics.Metrics.
type Recorder interface {
	RecordRead(query string, err error)
	RecordInvalidation(query string)
	RecordWriteTransition(kind, state string)
}

// SessionProvider supplies the wallet session. The controller only reads it.
type SessionProvider interface {
	Session() session.Session
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

type nopRecorder struct{}

func (nopRecorder) RecordRead(string, error)             {}
func (nopRecorder) RecordInvalidation(string)            {}
func (nopRecorder) RecordWriteTransition(string, string) {}
