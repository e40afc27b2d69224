package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Decompressor is a fast, single threaded decompressor.
type Decompressor interface {
	// Decompress decompresses the byte array
	Decompress(b []byte) ([]byte, error)
}

// NoOpDecompressor is a Decompressor that does nothing.  Useful for tests.
type NoOpDecompressor struct{}

func (c *NoOpDecompressor) Decompress(b []byte) ([]byte, error) {
	return b, nil
}

// ZlibDecompressor decompresses Zlib
type ZlibDecompressor struct {
	outputBuffer *bytes.Buffer
	reader       io.ReadCloser
}

func NewZlibDecompressor() *ZlibDecompressor {
	return &ZlibDecompressor{outputBuffer: &bytes.Buffer{}}
}

func (d *ZlibDecompressor) Decompress(b []byte) ([]byte, error) {
	inputBuffer := bytes.NewBuffer(b)
	if d.reader == nil {
		reader, err := zlib.NewReader(inputBuffer)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		d.reader = reader
	} else {
		err := d.reader.(zlib.Resetter).Reset(inputBuffer, nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	d.outputBuffer.Reset()

	if _, err := io.Copy(d.outputBuffer, d.reader); err != nil {
		return nil, errors.WithStack(err)
	}
	decompressed := make([]byte, d.outputBuffer.Len())
	copy(decompressed, d.outputBuffer.Bytes())
	return decompressed, nil
}
