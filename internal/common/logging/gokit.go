package logging

import (
	"fmt"

	gokitlog "github.com/go-kit/log"
	"github.com/sirupsen/logrus"
)

// NewGoKitLogger adapts entry to the go-kit logger interface expected by some client libraries. Key/value pairs
// become logrus fields. The "level" key picks the logrus level and "msg" becomes the message; lines without a level
// are logged at debug.
func NewGoKitLogger(entry *logrus.Entry) gokitlog.Logger {
	return gokitlog.LoggerFunc(func(keyvals ...interface{}) error {
		level := logrus.DebugLevel
		msg := ""
		fields := make(logrus.Fields, len(keyvals)/2)
		for i := 0; i < len(keyvals); i += 2 {
			key := fmt.Sprint(keyvals[i])
			var value interface{} = "(MISSING)"
			if i+1 < len(keyvals) {
				value = keyvals[i+1]
			}
			switch key {
			case "level":
				if parsed, err := logrus.ParseLevel(fmt.Sprint(value)); err == nil {
					level = parsed
				}
			case "msg":
				msg = fmt.Sprint(value)
			default:
				fields[key] = value
			}
		}
		entry.WithFields(fields).Log(level, msg)
		return nil
	})
}
