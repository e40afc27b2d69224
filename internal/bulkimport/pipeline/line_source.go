package pipeline

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

const lineReaderBufferSize = 1024 * 1024

// LineSource splits an NDJSON stream into lines. Lines may be of any length. An empty or whitespace-only line does
// not end the stream: it is skipped and reading carries on until EOF, so files with blank separators or trailing
// newlines import completely. Skipped lines are not counted in Summary.LinesRead.
type LineSource struct {
	reader io.Reader
	stats  *Stats
}

func NewLineSource(reader io.Reader, stats *Stats) *LineSource {
	return &LineSource{reader: reader, stats: stats}
}

// Run sends every line to out and closes out once the stream is exhausted. If reading fails or ctx is cancelled
// out is left open.
func (s *LineSource) Run(ctx *runcontext.Context, out chan<- model.RawLine) error {
	reader := bufio.NewReaderSize(s.reader, lineReaderBufferSize)
	lineNumber := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return errors.WithMessagef(err, "reading line %d", lineNumber+1)
		}
		if len(line) > 0 {
			lineNumber++
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(bytes.TrimSpace(line)) > 0 {
				if sendErr := send(ctx, out, string(line)); sendErr != nil {
					return sendErr
				}
				s.stats.linesRead.Inc()
			}
		}
		if err == io.EOF {
			break
		}
	}
	ctx.Log.Infof("Read %d lines", lineNumber)
	close(out)
	return nil
}
