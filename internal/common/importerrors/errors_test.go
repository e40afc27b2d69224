package importerrors

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryablePostgresError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil":                   {nil, false},
		"not a pg error":        {errors.New("foo"), false},
		"connection failure":    {&pgconn.PgError{Code: pgerrcode.ConnectionFailure}, true},
		"serialization failure": {&pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		"deadlock":              {&pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true},
		"disk full":             {&pgconn.PgError{Code: pgerrcode.DiskFull}, true},
		"admin shutdown":        {&pgconn.PgError{Code: pgerrcode.AdminShutdown}, true},
		"lock not available":    {&pgconn.PgError{Code: pgerrcode.LockNotAvailable}, true},
		"unique violation":      {&pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		"undefined table":       {&pgconn.PgError{Code: pgerrcode.UndefinedTable}, false},
		"wrapped":               {errors.WithMessage(&pgconn.PgError{Code: pgerrcode.ConnectionFailure}, "foo"), true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryablePostgresError(tc.err))
		})
	}
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsNetworkError(errors.New("foo")))
	assert.True(t, IsNetworkError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, IsNetworkError(errors.Wrap(io.ErrUnexpectedEOF, "reading body")))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("malformed")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&ErrShortRead{Offset: 10, Expected: 5, Actual: 2}))
	assert.True(t, IsTransient(errors.WithMessage(&pgconn.PgError{Code: pgerrcode.ConnectionFailure}, "copy")))
}

func TestErrMaxRetriesExceeded(t *testing.T) {
	cause := errors.New("boom")
	err := errors.WithStack(&ErrMaxRetriesExceeded{Message: "fetching range", LastError: cause})

	var e *ErrMaxRetriesExceeded
	assert.True(t, errors.As(err, &e))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "exceeded maximum number of retries; fetching range; last error was: boom", e.Error())
}

func TestErrInvalidArgument(t *testing.T) {
	assert.Equal(t, `value "Foo" is invalid for field "resourceType"`, (&ErrInvalidArgument{Name: "resourceType", Value: "Foo"}).Error())
	assert.Equal(
		t,
		`value "Foo" is invalid for field "resourceType"; unknown type`,
		(&ErrInvalidArgument{Name: "resourceType", Value: "Foo", Message: "unknown type"}).Error(),
	)
}
