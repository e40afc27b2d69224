package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NullLogger drops every entry below panic level. Stage tests run against it so import logging costs nothing.
var NullLogger = newNullLogger()

func newNullLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// NullEntry returns an entry on NullLogger, suitable for seeding a runcontext.Context.
func NullEntry() *logrus.Entry {
	return logrus.NewEntry(NullLogger)
}
