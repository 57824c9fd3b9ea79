// Package logging configures the structured logger shared by every
// component of the RTA service.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// New builds a JSON-formatted logrus logger at the given level, tagged with
// a component field so log lines can be filtered per C1-C6 component.
func New(level, component string) *logrus.Entry {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	return logger.WithField("component", component)
}
