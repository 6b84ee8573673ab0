// Package bufpool provides pooled, single-owner byte buffers used to carry
// file contents between pipeline stages.
package bufpool

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultMaxRetain is the largest buffer capacity returned to the pool.
const DefaultMaxRetain = 32 << 20

// Pool hands out reusable buffers. It is constructed once at process start
// and passed to every component that allocates file-sized memory.
type Pool struct {
	pool      sync.Pool
	maxRetain int
	maxHint   int

	inUse atomic.Int64
}

// New creates a pool. Buffers that grew beyond maxRetain are dropped on
// release instead of being kept for reuse.
func New(maxRetain int) *Pool {
	if maxRetain <= 0 {
		maxRetain = DefaultMaxRetain
	}
	p := &Pool{
		maxRetain: maxRetain,
		maxHint:   maxRetain,
	}
	p.pool.New = func() any { return new(bytes.Buffer) }
	return p
}

// Get returns an empty buffer with at least sizeHint bytes of capacity.
// Hints above the retain limit are clamped; the buffer still grows on demand.
func (p *Pool) Get(sizeHint int) *Buffer {
	b := p.pool.Get().(*bytes.Buffer)
	b.Reset()
	if sizeHint > p.maxHint {
		sizeHint = p.maxHint
	}
	if sizeHint > 0 {
		b.Grow(sizeHint)
	}
	p.inUse.Add(1)
	return &Buffer{buf: b, pool: p}
}

// InUse reports how many buffers have been handed out and not yet released.
func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}

func (p *Pool) put(b *bytes.Buffer) {
	p.inUse.Add(-1)
	if b.Cap() > p.maxRetain {
		return
	}
	b.Reset()
	p.pool.Put(b)
}

// Buffer is a pooled byte buffer with exactly one owner at a time. The owner
// that finishes with it calls Release; later calls are no-ops.
type Buffer struct {
	buf      *bytes.Buffer
	pool     *Pool
	released atomic.Bool
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

// ReadFrom implements io.ReaderFrom.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	return b.buf.ReadFrom(r)
}

// Bytes returns the buffered contents. The slice is only valid until Release.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Reader returns an independent reader over the buffered contents.
func (b *Buffer) Reader() *bytes.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

// Released reports whether the buffer has been handed back to the pool.
func (b *Buffer) Released() bool {
	return b.released.Load()
}

// Release returns the buffer to its pool.
func (b *Buffer) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	b.pool.put(b.buf)
	b.buf = nil
}
