package pipeline

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
)

// Stats is shared by every stage of a run. Row counts only include rows the sink accepted.
type Stats struct {
	linesRead           atomic.Int64
	recordsProcessed    atomic.Int64
	resourcesLoaded     atomic.Int64
	indexEntriesLoaded  atomic.Int64
	droppedIndexEntries atomic.Int64
	failedLoads         atomic.Int64

	mu         sync.Mutex
	loadErrors *multierror.Error
}

// Summary is a point in time copy of Stats.
type Summary struct {
	LinesRead           int64
	RecordsProcessed    int64
	ResourcesLoaded     int64
	IndexEntriesLoaded  int64
	DroppedIndexEntries int64
	FailedLoads         int64
	// Every batch that was dropped, or nil if all loads succeeded.
	LoadErrors error
}

func (s *Stats) recordLoadFailure(err error) {
	s.failedLoads.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErrors = multierror.Append(s.loadErrors, err)
}

func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		LinesRead:           s.linesRead.Load(),
		RecordsProcessed:    s.recordsProcessed.Load(),
		ResourcesLoaded:     s.resourcesLoaded.Load(),
		IndexEntriesLoaded:  s.indexEntriesLoaded.Load(),
		DroppedIndexEntries: s.droppedIndexEntries.Load(),
		FailedLoads:         s.failedLoads.Load(),
		LoadErrors:          s.loadErrors.ErrorOrNil(),
	}
}
