// Package logger configures the shared logrus logger used across the SDK.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias for logrus.Fields.
type Fields = logrus.Fields

var root = newRoot()

func newRoot() *logrus.Logger {
	log := logrus.New()

	levelStr := os.Getenv("EKIDEN_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(levelStr)); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	return log
}

// Get returns the shared logger.
func Get() *logrus.Logger {
	return root
}

// WithComponent returns an entry tagged with the component name. All SDK
// packages log through entries obtained here.
func WithComponent(name string) *logrus.Entry {
	return root.WithField("component", name)
}

// SetLevel overrides the level picked up from EKIDEN_LOG_LEVEL.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}

// SetOutput redirects log output, e.g. to a file.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}

// UseRotatingFile sends log output to path with size-based rotation. Keeps
// up to 5 rotated files of 50MB each.
func UseRotatingFile(path string) {
	root.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
}
