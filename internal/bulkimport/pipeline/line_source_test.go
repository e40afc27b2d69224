package pipeline

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

func TestLineSource(t *testing.T) {
	longLine := strings.Repeat("x", 3*lineReaderBufferSize)
	tests := map[string]struct {
		input    string
		expected []model.RawLine
	}{
		"empty":               {input: "", expected: nil},
		"single line":         {input: "a\n", expected: []model.RawLine{"a"}},
		"no trailing newline": {input: "a\nb", expected: []model.RawLine{"a", "b"}},
		"crlf":                {input: "a\r\nb\r\n", expected: []model.RawLine{"a", "b"}},
		"blank lines":         {input: "\na\n\n  \r\nb\n\n", expected: []model.RawLine{"a", "b"}},
		"long line":           {input: "a\n" + longLine + "\nb", expected: []model.RawLine{"a", longLine, "b"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			stats := &Stats{}
			out := make(chan model.RawLine, 10)
			err := NewLineSource(strings.NewReader(tc.input), stats).Run(testContext(), out)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, collect(out))
			assert.Equal(t, int64(len(tc.expected)), stats.Summary().LinesRead)
		})
	}
}

func TestLineSource_ReadError(t *testing.T) {
	reader := io.MultiReader(strings.NewReader("a\nb\n"), iotest.ErrReader(errors.New("connection reset")))
	out := make(chan model.RawLine, 10)

	err := NewLineSource(reader, &Stats{}).Run(testContext(), out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading line 3")
	assert.Contains(t, err.Error(), "connection reset")

	// The channel is left open so downstream stages can't mistake a failure for the end of the input.
	assert.Equal(t, "a", <-out)
	assert.Equal(t, "b", <-out)
	select {
	case _, ok := <-out:
		assert.Fail(t, "expected an open, empty channel", "received ok=%v", ok)
	default:
	}
}

func TestLineSource_Cancelled(t *testing.T) {
	ctx, cancel := runcontext.WithCancel(testContext())
	out := make(chan model.RawLine)
	done := make(chan error, 1)
	go func() {
		done <- NewLineSource(strings.NewReader("a\nb\n"), &Stats{}).Run(ctx, out)
	}()
	cancel()
	err := <-done
	assert.Error(t, err)
}
