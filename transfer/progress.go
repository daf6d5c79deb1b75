package transfer

import (
	"io"
)

// CountingReader reports every chunk read through it.
type CountingReader struct {
	r       io.Reader
	n       int64
	total   int64
	onBytes ProgressFunc
}

// NewCountingReader wraps r. onBytes may be nil.
func NewCountingReader(r io.Reader, total int64, onBytes ProgressFunc) *CountingReader {
	return &CountingReader{r: r, total: total, onBytes: onBytes}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if c.onBytes != nil {
			c.onBytes(c.n, c.total)
		}
	}
	return n, err
}

// Count returns the bytes read so far.
func (c *CountingReader) Count() int64 { return c.n }

// CountingWriter reports every chunk written through it.
type CountingWriter struct {
	w       io.Writer
	n       int64
	total   int64
	onBytes ProgressFunc
}

// NewCountingWriter wraps w. onBytes may be nil.
func NewCountingWriter(w io.Writer, total int64, onBytes ProgressFunc) *CountingWriter {
	return &CountingWriter{w: w, total: total, onBytes: onBytes}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.n += int64(n)
		if c.onBytes != nil {
			c.onBytes(c.n, c.total)
		}
	}
	return n, err
}

// Count returns the bytes written so far.
func (c *CountingWriter) Count() int64 { return c.n }
