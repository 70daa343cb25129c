// internal/logging/logger.go
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/config"
)

// New builds the process logger. Production logs are JSON unless the format
// is set explicitly; an unknown level falls back to info.
func New(cfg config.LogConfig, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	format := cfg.Format
	if format == "" {
		format = "text"
		if environment == "production" {
			format = "json"
		}
	}
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}
