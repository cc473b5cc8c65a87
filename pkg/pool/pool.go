// Package pool holds reusable byte buffers for the copy and hash paths so
// that every worker does not allocate a fresh chunk per file.
package pool

import "sync"

// FixedBufferPool hands out byte slices of one fixed size.
type FixedBufferPool struct {
	size int
	pool sync.Pool
}

// NewFixedBuffer creates a pool of size-byte buffers. size must be positive.
func NewFixedBuffer(size int) *FixedBufferPool {
	if size <= 0 {
		panic("pool: buffer size must be positive")
	}
	p := &FixedBufferPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the length of the buffers handed out by Get.
func (p *FixedBufferPool) Size() int {
	return p.size
}

// Get returns a buffer of exactly Size() bytes.
func (p *FixedBufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of a foreign capacity are dropped.
func (p *FixedBufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) != p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}
