package pipeline

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ProgressReporter is told the running total of index entries loaded after every successful index load. Report
// is called concurrently and totals may arrive out of order.
type ProgressReporter interface {
	Report(count int64)
}

// LoggingProgressReporter logs each time the total passes another multiple of interval.
type LoggingProgressReporter struct {
	log      *logrus.Entry
	interval int64
	last     atomic.Int64
}

func NewLoggingProgressReporter(log *logrus.Entry, interval int64) *LoggingProgressReporter {
	if interval < 1 {
		interval = 1
	}
	return &LoggingProgressReporter{log: log, interval: interval}
}

func (r *LoggingProgressReporter) Report(count int64) {
	for {
		last := r.last.Load()
		if count <= last {
			return
		}
		if r.last.CompareAndSwap(last, count) {
			if count/r.interval > last/r.interval {
				r.log.Infof("Loaded %d index entries", count)
			}
			return
		}
	}
}

type noOpProgressReporter struct{}

func (noOpProgressReporter) Report(int64) {}
