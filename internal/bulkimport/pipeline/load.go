package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/common/importerrors"
	"github.com/fhir-server/bulkimport/internal/common/retry"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

type LoaderConfig struct {
	// Number of rows per load.
	BatchSize int `validate:"gt=0"`
	// Maximum number of loads running at once.
	MaxInFlightLoads int `validate:"gt=0"`
}

type LoadRetryConfig struct {
	// Maximum duration of a single load attempt.
	AttemptTimeout time.Duration `validate:"gt=0"`
	RetryCount     uint
	RetryDelay     time.Duration
}

func (c LoadRetryConfig) policy() retry.Policy {
	return retry.Policy{
		Timeout:     c.AttemptTimeout,
		MaxRetries:  c.RetryCount,
		RetryDelay:  c.RetryDelay,
		IsRetryable: importerrors.IsTransient,
	}
}

// TableLoader hands tables to the sink, retrying transient failures. A table that still can't be loaded is
// dropped and recorded against the run, unless failOnLoadError is set in which case the error is returned.
type TableLoader struct {
	sink            importdb.BulkLoader
	retry           LoadRetryConfig
	failOnLoadError bool
	metrics         *metrics.Metrics
	stats           *Stats
}

func NewTableLoader(
	sink importdb.BulkLoader,
	retryConfig LoadRetryConfig,
	failOnLoadError bool,
	metrics *metrics.Metrics,
	stats *Stats,
) *TableLoader {
	return &TableLoader{
		sink:            sink,
		retry:           retryConfig,
		failOnLoadError: failOnLoadError,
		metrics:         metrics,
		stats:           stats,
	}
}

// load returns true if the table was loaded.
func (l *TableLoader) load(ctx *runcontext.Context, table *importdb.Table) (bool, error) {
	outcome := retry.Execute(ctx, l.retry.policy(), func(attemptCtx context.Context) (struct{}, error) {
		return struct{}{}, l.sink.BulkLoad(runcontext.New(attemptCtx, ctx.Log), table)
	})
	switch outcome.Status {
	case retry.Succeeded:
		if outcome.Attempts > 1 {
			ctx.Log.Infof("Loaded %d rows into %s after %d attempts", table.Len(), table.Name, outcome.Attempts)
		}
		return true, nil
	case retry.Cancelled:
		return false, outcome.Err
	}

	_, err := outcome.Unwrap()
	err = errors.WithMessagef(err, "loading %d rows into %s", table.Len(), table.Name)
	l.metrics.RecordFailedLoad(table.Name)
	l.stats.recordLoadFailure(err)
	if l.failOnLoadError {
		return false, err
	}
	ctx.Log.WithError(err).Errorf("Dropping batch of %d rows for %s", table.Len(), table.Name)
	return false, nil
}
