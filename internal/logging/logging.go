// Package logging configures the logrus logger shared by the service.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Standard field names, kept consistent so log lines can be filtered.
const (
	FieldComponent     = "component"
	FieldOrigin        = "origin"
	FieldState         = "state"
	FieldAccount       = "account"
	FieldAmount        = "amount"
	FieldCategory      = "category"
	FieldTransactionID = "transaction_id"
	FieldRequestID     = "request_id"
	FieldCount         = "count"
	FieldDuration      = "duration_ms"
	FieldReason        = "reason"
)

// New creates a logger writing to stdout.
//
// level is one of logrus' level names ("debug", "info", ...); format is "json"
// or anything else for text output with full timestamps.
func New(level, format string) *logrus.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with a custom output.
func NewWithWriter(w io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
