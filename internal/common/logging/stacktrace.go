package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StacktraceField is the field WithStacktrace records the error's stack under.
const StacktraceField = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace attaches err to entry along with the stack recorded by pkg/errors when err, or anything it wraps,
// carries one.
func WithStacktrace(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		entry = entry.WithField(StacktraceField, stack)
	}
	return entry
}

// ExtractStack returns the outermost stack found along err's Unwrap chain, or nil. Errors wrapped with
// fmt.Errorf("%w") still give up the stack of the pkg/errors error inside them.
func ExtractStack(err error) errors.StackTrace {
	var tracer stackTracer
	if errors.As(err, &tracer) {
		return tracer.StackTrace()
	}
	return nil
}
