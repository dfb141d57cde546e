package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/alexei18/PromtII/pkg/config"
)

// Logger is the logger type passed between packages.
type Logger = *logrus.Logger

// Fields holds structured logging fields.
type Fields = logrus.Fields

// NewLogger returns a JSON logger at the level configured via LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService tags every entry with the service name.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger = logger.WithField("service", serviceName).Logger
	return logger
}
