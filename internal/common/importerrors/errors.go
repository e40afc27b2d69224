// Package importerrors contains generic errors shared across the bulk import pipeline, together with helpers that
// classify errors as transient (and hence retryable) or not.
package importerrors

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrMaxRetriesExceeded is returned when an operation has been retried the configured number of times and is still
// failing.
type ErrMaxRetriesExceeded struct {
	Message   string
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	if err.Message != "" {
		return fmt.Sprintf("exceeded maximum number of retries; %s; last error was: %s", err.Message, err.LastError)
	}
	return fmt.Sprintf("exceeded maximum number of retries; last error was: %s", err.LastError)
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "resourceType"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrShortRead is returned by range fetches that receive fewer bytes than requested.
type ErrShortRead struct {
	Offset   int64
	Expected int64
	Actual   int64
}

func (err *ErrShortRead) Error() string {
	return fmt.Sprintf("short read at offset %d: expected %d bytes but got %d", err.Offset, err.Expected, err.Actual)
}

// IsNetworkError returns true if err is a network error or was caused by one.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	{
		var e net.Error
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *net.OpError
		if errors.As(err, &e) {
			return true
		}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// IsRetryablePostgresError returns true if err is a postgres error that is likely to succeed if retried, e.g.
// connection failures, serialization failures and insufficient resources.
func IsRetryablePostgresError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgerrcode.IsConnectionException(pgErr.Code) ||
		pgerrcode.IsTransactionRollback(pgErr.Code) ||
		pgerrcode.IsInsufficientResources(pgErr.Code) ||
		pgerrcode.IsOperatorIntervention(pgErr.Code) ||
		pgErr.Code == pgerrcode.LockNotAvailable
}

// IsTransient returns true for errors that are worth retrying: network errors, retryable postgres errors,
// short reads and per-attempt deadlines. Cancellation of the parent context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var shortRead *ErrShortRead
	if errors.As(err, &shortRead) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || IsNetworkError(err) || IsRetryablePostgresError(err)
}
