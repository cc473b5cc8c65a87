package pool

import "testing"

func TestFixedBufferPool(t *testing.T) {
	p := NewFixedBuffer(64 * 1024)

	b := p.Get()
	if len(*b) != 64*1024 {
		t.Fatalf("expected buffer of %d bytes, got %d", 64*1024, len(*b))
	}

	// Shrunk slices are restored to full length on Put.
	*b = (*b)[:10]
	p.Put(b)
	b2 := p.Get()
	if len(*b2) != p.Size() {
		t.Errorf("expected restored length %d, got %d", p.Size(), len(*b2))
	}
}

func TestFixedBufferPoolRejectsForeignBuffers(t *testing.T) {
	p := NewFixedBuffer(16)
	foreign := make([]byte, 32)
	p.Put(&foreign) // must not panic or poison the pool
	p.Put(nil)

	if got := len(*p.Get()); got != 16 {
		t.Errorf("expected 16 byte buffer, got %d", got)
	}
}

func TestNewFixedBufferPanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero size")
		}
	}()
	NewFixedBuffer(0)
}
