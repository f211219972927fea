// internal/utils/logger.go
package utils

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
)

// ConfigureLogger applies LOG_LEVEL and LOG_FORMAT to the standard logrus
// logger. Production defaults to JSON.
func ConfigureLogger(cfg config.LogConfig, production bool) {
	logrus.SetOutput(os.Stdout)

	format := cfg.Format
	if format == "" && production {
		format = "json"
	}
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
