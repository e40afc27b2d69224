package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// ConfigureLogging sets up sensible logging defaults for the standard logger; text to stdout at info level.
// Applications that have loaded their configuration should call ConfigureApplicationLogging afterwards.
func ConfigureLogging() {
	logrus.SetFormatter(createFormatter(FormatColourful))
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)
}

// ConfigureApplicationLogging configures the standard logger according to config. Console output always goes to
// stdout, file output (if enabled) goes to a rotating logfile.
func ConfigureApplicationLogging(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	consoleLevel, _ := logrus.ParseLevel(config.Console.Level)
	logrus.SetFormatter(createFormatter(config.Console.Format))
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(consoleLevel)

	if config.File.Enabled {
		fileLevel, _ := logrus.ParseLevel(config.File.Level)
		if fileLevel > consoleLevel {
			logrus.SetLevel(fileLevel)
		}
		logrus.AddHook(NewWriterHook(createFileWriter(config), createFormatter(config.File.Format), fileLevel))
		// The standard logger's level is now the more verbose of the two, so console output gets its own filter.
		logrus.SetOutput(io.Discard)
		logrus.AddHook(NewWriterHook(os.Stdout, createFormatter(config.Console.Format), consoleLevel))
	}
	return nil
}

func createFileWriter(config Config) io.Writer {
	return &lumberjack.Logger{
		Filename:   config.File.LogFile,
		MaxSize:    config.File.Rotation.MaxSizeMb,
		MaxBackups: config.File.Rotation.MaxBackups,
		MaxAge:     config.File.Rotation.MaxAgeDays,
		Compress:   config.File.Rotation.Compress,
	}
}

func createFormatter(format LogFormat) logrus.Formatter {
	switch format {
	case FormatJSON:
		return &logrus.JSONFormatter{TimestampFormat: RFC3339Milli}
	case FormatColourful:
		return &logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli}
	default:
		return &logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli}
	}
}

// WriterHook writes every entry at or above its level to an io.Writer using its own formatter.
type WriterHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func NewWriterHook(writer io.Writer, formatter logrus.Formatter, level logrus.Level) *WriterHook {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &WriterHook{writer: writer, formatter: formatter, levels: levels}
}

func (h *WriterHook) Levels() []logrus.Level {
	return h.levels
}

func (h *WriterHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = h.writer.Write(line)
	return err
}
