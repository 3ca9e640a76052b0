package converter

import (
	"fmt"
	"io"
	"sync"

	"github.com/harliandi/go-avif/pkg/metrics"
)

// sizeClass is one bucket of reusable byte slices.
type sizeClass struct {
	name string
	size int
	pool sync.Pool
}

var sizeClasses = []*sizeClass{
	{name: "64k", size: 64 * 1024},
	{name: "512k", size: 512 * 1024},
	{name: "5m", size: 5 * 1024 * 1024},
	{name: "20m", size: 20 * 1024 * 1024}, // largest accepted upload
}

// GetBuffer returns an empty buffer with at least the specified capacity.
// Requests above the largest class are allocated and never pooled.
func GetBuffer(size int) *[]byte {
	for _, c := range sizeClasses {
		if size > c.size {
			continue
		}
		if b, ok := c.pool.Get().(*[]byte); ok {
			metrics.RecordBufferPool(c.name, true)
			return b
		}
		metrics.RecordBufferPool(c.name, false)
		b := make([]byte, 0, c.size)
		return &b
	}
	b := make([]byte, 0, size)
	return &b
}

// PutBuffer returns a buffer to the pool. Buffers whose capacity does not
// match a class exactly are left to the GC.
func PutBuffer(b *[]byte) {
	if b == nil {
		return
	}
	*b = (*b)[:0]
	for _, c := range sizeClasses {
		if cap(*b) == c.size {
			c.pool.Put(b)
			return
		}
	}
}

// readPooled reads exactly size bytes from r into a pooled buffer. The
// caller must PutBuffer the result once it no longer references the bytes.
func readPooled(r io.Reader, size int) (*[]byte, error) {
	b := GetBuffer(size)
	*b = (*b)[:size]
	if _, err := io.ReadFull(r, *b); err != nil {
		PutBuffer(b)
		return nil, fmt.Errorf("read input: %w", err)
	}
	return b, nil
}
