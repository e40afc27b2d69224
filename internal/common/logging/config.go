package logging

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	FormatText      LogFormat = "text"
	FormatColourful LogFormat = "colourful"
	FormatJSON      LogFormat = "json"
)

type LogFormat string

var validLogFormats = map[LogFormat]bool{
	FormatText:      true,
	FormatColourful: true,
	FormatJSON:      true,
}

// Config defines logging configuration.
type Config struct {
	// Defines configuration for console logging on stdout
	Console struct {
		// Log level, e.g. INFO, ERROR etc
		Level string
		// Logging format, either text, colourful or json
		Format LogFormat
	}
	// Defines configuration for file logging
	File struct {
		// Whether file logging is enabled.
		Enabled bool
		// Log level, e.g. INFO, ERROR etc
		Level string
		// Logging format, either text or json
		Format LogFormat
		// The Location of the logfile on disk
		LogFile string
		// Log Rotation Options
		Rotation struct {
			// Maximum size in megabytes of the log file before it gets rotated
			MaxSizeMb int
			// Maximum number of old log files to retain
			MaxBackups int
			// Maximum number of days to retain old log files
			MaxAgeDays int
			// Whether to compress rotated log files
			Compress bool
		}
	}
}

// DefaultConfig logs at info level, as text, to stdout only.
func DefaultConfig() Config {
	c := Config{}
	c.Console.Level = "info"
	c.Console.Format = FormatText
	return c
}

func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Console.Level); err != nil {
		return errors.WithMessage(err, "console")
	}
	if err := validateLogFormat(c.Console.Format); err != nil {
		return err
	}

	if c.File.Enabled {
		if _, err := logrus.ParseLevel(c.File.Level); err != nil {
			return errors.WithMessage(err, "file")
		}
		if err := validateLogFormat(c.File.Format); err != nil {
			return err
		}
		if c.File.LogFile == "" {
			return errors.New("file.logFile must be set when file logging is enabled")
		}
		rotation := c.File.Rotation
		if rotation.MaxSizeMb <= 0 {
			return errors.New("rotation.maxSizeMb must be greater than zero")
		}
		if rotation.MaxBackups <= 0 {
			return errors.New("rotation.maxBackups must be greater than zero")
		}
		if rotation.MaxAgeDays <= 0 {
			return errors.New("rotation.maxAgeDays must be greater than zero")
		}
	}
	return nil
}

func validateLogFormat(f LogFormat) error {
	if _, ok := validLogFormats[f]; !ok {
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, slices.Sorted(maps.Keys(validLogFormats)))
	}
	return nil
}
