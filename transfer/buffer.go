package transfer

import (
	"io"
	"sync"
)

// DefaultBufferSize is the copy buffer used for VM image streams. Images are
// tens of gigabytes, so fewer, larger reads from the FTP data connection win.
const DefaultBufferSize = 4 * 1024 * 1024

// BufferPool hands out reusable copy buffers so concurrent workers do not
// each allocate a fresh one per transfer.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a new BufferPool that allocates buffers of the specified size.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of the buffers in the pool.
func (bp *BufferPool) Size() int { return bp.size }

// Get retrieves a reusable byte buffer from the pool.
// The caller should defer calling Put on this buffer once finished.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns the byte buffer to the pool so it can be reused.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil {
		bp.pool.Put(b)
	}
}

// Copy is io.CopyBuffer with a pooled buffer.
func (bp *BufferPool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := bp.Get()
	defer bp.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}
