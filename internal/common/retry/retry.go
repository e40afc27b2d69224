package retry

import (
	"context"
	"fmt"
	"time"

	retrygo "github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/common/importerrors"
)

// ErrAttemptTimedOut is reported when a single attempt does not complete within Policy.Timeout.
// Timeouts are always considered retryable.
var ErrAttemptTimedOut = errors.New("attempt timed out")

// Status describes how Execute finished.
type Status int

const (
	// Succeeded means the operation returned without error.
	Succeeded Status = iota
	// Failed means the operation returned an error that IsRetryable rejected.
	Failed
	// Exhausted means every attempt failed with a retryable error or timed out.
	Exhausted
	// Cancelled means the parent context was done before the operation could succeed.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Policy controls how an operation is retried.
type Policy struct {
	// Maximum duration of a single attempt.
	Timeout time.Duration
	// Number of retries after the first attempt. Total attempts is MaxRetries + 1.
	MaxRetries uint
	// Fixed delay between attempts.
	RetryDelay time.Duration
	// Decides whether a failed attempt is worth retrying. A nil func treats every error as fatal.
	IsRetryable func(error) bool
}

// Outcome is the result of Execute. Exactly one of Value or Err is meaningful, depending on Status.
type Outcome[T any] struct {
	Value    T
	Err      error
	Status   Status
	Attempts uint
}

// Ok returns true if the operation succeeded.
func (o Outcome[T]) Ok() bool {
	return o.Status == Succeeded
}

// Unwrap converts the outcome into the usual (value, error) pair. Exhausted outcomes are reported as
// *importerrors.ErrMaxRetriesExceeded.
func (o Outcome[T]) Unwrap() (T, error) {
	switch o.Status {
	case Succeeded:
		return o.Value, nil
	case Exhausted:
		var zero T
		return zero, errors.WithStack(&importerrors.ErrMaxRetriesExceeded{
			Message:   fmt.Sprintf("gave up after %d attempts", o.Attempts),
			LastError: o.Err,
		})
	default:
		var zero T
		return zero, o.Err
	}
}

// Execute runs op until it succeeds, fails with a non-retryable error, exhausts the retry budget, or ctx is done.
// Each attempt is raced against policy.Timeout. op receives a context that is cancelled when its attempt is
// abandoned, so callers must make sure op is safe to repeat.
func Execute[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) Outcome[T] {
	isRetryable := policy.IsRetryable
	if isRetryable == nil {
		isRetryable = func(error) bool { return false }
	}

	var value T
	var attempts uint
	err := retrygo.Do(
		func() error {
			attempts++
			v, err := runAttempt(ctx, policy.Timeout, op)
			if err != nil {
				return err
			}
			value = v
			return nil
		},
		retrygo.Context(ctx),
		retrygo.Attempts(policy.MaxRetries+1),
		retrygo.Delay(policy.RetryDelay),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return errors.Is(err, ErrAttemptTimedOut) || isRetryable(err)
		}),
	)

	outcome := Outcome[T]{Attempts: attempts}
	switch {
	case err == nil:
		outcome.Value = value
		outcome.Status = Succeeded
	case ctx.Err() != nil:
		outcome.Err = errors.WithStack(ctx.Err())
		outcome.Status = Cancelled
	case errors.Is(err, ErrAttemptTimedOut) || isRetryable(err):
		outcome.Err = err
		outcome.Status = Exhausted
	default:
		outcome.Err = err
		outcome.Status = Failed
	}
	return outcome
}

// runAttempt races a single invocation of op against a timer. If the timer fires first the attempt is abandoned and
// its context cancelled; the goroutine running op is left to observe the cancellation.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	results := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		results <- result{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return r.value, r.err
	case <-timer.C:
		return zero, errors.WithStack(ErrAttemptTimedOut)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
