// internal/logger/logger.go
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logrus logger writing to stdout.
// The level is taken from LOG_LEVEL (debug, info, warn, error, trace); info by default.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		log.SetLevel(logrus.InfoLevel)
		return log
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		log.Warnf("Unknown LOG_LEVEL '%s', falling back to info", level)
		return log
	}
	log.SetLevel(parsed)
	return log
}
