// Package logging constructs the single shared *logrus.Logger every
// component in the engine is handed at construction time, grounded on the
// teacher's logrus setup in internal/database/database.go.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger configured per the given level/format pair, defaulting
// to info/text on unrecognized values rather than failing construction.
func New(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}
