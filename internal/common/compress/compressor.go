package compress

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Compressor is a fast, single threaded compressor.
// This type allows us to reuse buffers etc for performance
type Compressor interface {
	// Compress compresses the byte array
	Compress(b []byte) ([]byte, error)
}

// NoOpCompressor is a Compressor that does nothing.  Useful for tests.
type NoOpCompressor struct{}

func (c *NoOpCompressor) Compress(b []byte) ([]byte, error) {
	return b, nil
}

// ZlibCompressor compresses to Zlib, which for KB-sized payloads seems to give the best compression ratio vs speed.
// Inputs smaller than minCompressSize are returned unchanged.
type ZlibCompressor struct {
	buffer          *bytes.Buffer
	writer          *zlib.Writer
	minCompressSize int
}

func NewZlibCompressor(minCompressSize int) (*ZlibCompressor, error) {
	var b bytes.Buffer
	writer, err := zlib.NewWriterLevel(&b, zlib.BestSpeed)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ZlibCompressor{
		buffer:          &b,
		writer:          writer,
		minCompressSize: minCompressSize,
	}, nil
}

func (c *ZlibCompressor) Compress(b []byte) ([]byte, error) {
	if len(b) < c.minCompressSize {
		return b, nil
	}
	c.buffer.Reset()
	c.writer.Reset(c.buffer)
	if _, err := c.writer.Write(b); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := c.writer.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	compressed := make([]byte, c.buffer.Len())
	copy(compressed, c.buffer.Bytes())
	return compressed, nil
}

// ThreadSafeZlibCompressor is a Compressor that may be shared between goroutines. Each call borrows a
// ZlibCompressor from a pool.
type ThreadSafeZlibCompressor struct {
	minCompressSize int
	pool            sync.Pool
}

func NewThreadSafeZlibCompressor(minCompressSize int) *ThreadSafeZlibCompressor {
	c := &ThreadSafeZlibCompressor{minCompressSize: minCompressSize}
	c.pool.New = func() any {
		compressor, err := NewZlibCompressor(minCompressSize)
		if err != nil {
			return err
		}
		return compressor
	}
	return c
}

func (c *ThreadSafeZlibCompressor) Compress(b []byte) ([]byte, error) {
	if len(b) < c.minCompressSize {
		return b, nil
	}
	pooled := c.pool.Get()
	compressor, ok := pooled.(*ZlibCompressor)
	if !ok {
		return nil, errors.Errorf("unable to create compressor: %v", pooled)
	}
	defer c.pool.Put(compressor)
	return compressor.Compress(b)
}
