// Package rangereader exposes a remote blob as a sequential stream, overlapping the latency of fetching it by
// downloading several fixed size ranges concurrently.
package rangereader

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fhir-server/bulkimport/internal/bulkimport/blobstore"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/common/retry"
)

// ErrReaderClosed is returned by Read after Close.
var ErrReaderClosed = errors.New("read from closed RangedReader")

type Config struct {
	// Maximum number of ranges being downloaded at once.
	ConcurrentRangeCount int `validate:"gt=0"`
	// Size of each range. The final range may be shorter.
	RangeSize resource.Quantity
	// Timeout for a single attempt at fetching a range.
	PerRangeTimeout time.Duration `validate:"gt=0"`
	// Number of times a failed range fetch is retried before the reader fails.
	RetryCount uint
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConcurrentRangeCount: 5,
		RangeSize:            resource.MustParse("32Mi"),
		PerRangeTimeout:      30 * time.Second,
		RetryCount:           3,
		RetryDelay:           3 * time.Second,
	}
}

// rangeDownload is a single range being fetched. data and err may only be read once done is closed.
type rangeDownload struct {
	offset int64
	length int64
	done   chan struct{}
	data   []byte
	err    error
	// Number of bytes of data already handed to the caller.
	pos int
}

// RangedReader is a forward only io.ReadCloser over a RangeSource. Ranges are always consumed in the order they
// were scheduled, irrespective of the order in which their downloads complete. The first error encountered
// fails the reader permanently. A RangedReader must not be read from concurrently.
type RangedReader struct {
	ctx       context.Context
	cancel    context.CancelFunc
	source    blobstore.RangeSource
	rangeSize int64
	config    Config
	metrics   *metrics.Metrics

	length      int64
	lengthKnown bool
	// Offset of the first byte not yet scheduled for download.
	pos      int64
	inflight []*rangeDownload
	err      error
	closed   bool
	wg       sync.WaitGroup
}

func New(ctx context.Context, source blobstore.RangeSource, config Config, metrics *metrics.Metrics) *RangedReader {
	ctx, cancel := context.WithCancel(ctx)
	rangeSize := config.RangeSize.Value()
	if rangeSize <= 0 {
		defaultRangeSize := DefaultConfig().RangeSize
		rangeSize = defaultRangeSize.Value()
	}
	concurrency := config.ConcurrentRangeCount
	if concurrency <= 0 {
		concurrency = 1
	}
	config.ConcurrentRangeCount = concurrency
	return &RangedReader{
		ctx:       ctx,
		cancel:    cancel,
		source:    source,
		rangeSize: rangeSize,
		config:    config,
		metrics:   metrics,
		inflight:  make([]*rangeDownload, 0, concurrency),
	}
}

func (r *RangedReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrReaderClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !r.lengthKnown {
		length, err := retry.Execute(r.ctx, r.policy(), r.source.GetLength).Unwrap()
		if err != nil {
			r.err = errors.WithMessage(err, "getting blob length")
			return 0, r.err
		}
		r.length = length
		r.lengthKnown = true
	}

	r.topUp()
	if len(r.inflight) == 0 {
		return 0, io.EOF
	}

	head := r.inflight[0]
	select {
	case <-head.done:
	case <-r.ctx.Done():
		r.err = errors.WithStack(r.ctx.Err())
		return 0, r.err
	}
	if head.err != nil {
		r.err = errors.WithMessagef(head.err, "fetching %d bytes at offset %d", head.length, head.offset)
		return 0, r.err
	}

	n := copy(p, head.data[head.pos:])
	head.pos += n
	if head.pos == len(head.data) {
		head.data = nil
		r.inflight[0] = nil
		r.inflight = r.inflight[1:]
	}
	return n, nil
}

// topUp schedules downloads until either the concurrency limit or the end of the blob is reached.
func (r *RangedReader) topUp() {
	for len(r.inflight) < r.config.ConcurrentRangeCount && r.pos < r.length {
		length := min(r.rangeSize, r.length-r.pos)
		d := &rangeDownload{
			offset: r.pos,
			length: length,
			done:   make(chan struct{}),
		}
		r.wg.Add(1)
		go r.download(d)
		r.inflight = append(r.inflight, d)
		r.pos += length
	}
}

func (r *RangedReader) download(d *rangeDownload) {
	defer r.wg.Done()
	defer close(d.done)

	outcome := retry.Execute(r.ctx, r.policy(), func(ctx context.Context) ([]byte, error) {
		return r.source.FetchRange(ctx, d.offset, d.length)
	})
	if outcome.Attempts > 1 {
		r.metrics.RecordRangeRetries(int(outcome.Attempts) - 1)
		log.Debugf("Range at offset %d finished with status %s after %d attempts", d.offset, outcome.Status, outcome.Attempts)
	}
	d.data, d.err = outcome.Unwrap()
	if d.err == nil {
		r.metrics.RecordRangeBytes(len(d.data))
	}
}

// Range reads are side effect free so any failure other than cancellation is worth retrying.
func (r *RangedReader) policy() retry.Policy {
	return retry.Policy{
		Timeout:    r.config.PerRangeTimeout,
		MaxRetries: r.config.RetryCount,
		RetryDelay: r.config.RetryDelay,
		IsRetryable: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
}

// Close abandons any downloads in progress and waits for them to exit.
func (r *RangedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	r.wg.Wait()
	r.inflight = nil
	return nil
}
