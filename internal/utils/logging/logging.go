package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Entry
)

type Fields = logrus.Fields

func SetLevel(l logrus.Level) {
	logger.Logger.SetLevel(l)
}

func SetOutput(w io.Writer) {
	logger.Logger.SetOutput(w)
}

// SetJSON switches between the json and text formatters.
func SetJSON(json bool) {
	if json {
		logger.Logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}

	logger.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func init() {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
		SetJSON(false)
	}
}

func WithError(e error) *logrus.Entry {
	return logger.WithError(e)
}

func WithFields(f Fields) *logrus.Entry {
	return logger.WithFields(f)
}

// Component tags every entry with the subsystem that produced it.
func Component(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

func Entry() *logrus.Entry {
	return logger
}

func Error(args ...interface{}) {
	logger.Error(args...)
}
