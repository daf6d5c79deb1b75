package transfer

import (
	"bytes"
	"strings"
	"testing"
)

func TestBufferPool_DefaultSize(t *testing.T) {
	bp := NewBufferPool(0)

	buf := bp.Get()
	if buf == nil {
		t.Fatalf("expected a valid buffer pointer, got nil")
	}

	if len(*buf) != DefaultBufferSize {
		t.Errorf("expected buffer size %d, got %d", DefaultBufferSize, len(*buf))
	}
	if bp.Size() != DefaultBufferSize {
		t.Errorf("expected Size() %d, got %d", DefaultBufferSize, bp.Size())
	}

	bp.Put(buf)
}

func TestBufferPool_Copy(t *testing.T) {
	bp := NewBufferPool(8)
	src := strings.Repeat("vmdk", 100)

	var dst bytes.Buffer
	n, err := bp.Copy(&dst, strings.NewReader(src))
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if n != int64(len(src)) {
		t.Errorf("expected %d bytes copied, got %d", len(src), n)
	}
	if dst.String() != src {
		t.Errorf("copied content mismatch")
	}
}
