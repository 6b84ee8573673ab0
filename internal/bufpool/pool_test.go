package bufpool

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		maxRetain    int
		expectRetain int
	}{
		{name: "explicit limit", maxRetain: 1024, expectRetain: 1024},
		{name: "zero defaults", maxRetain: 0, expectRetain: DefaultMaxRetain},
		{name: "negative defaults", maxRetain: -5, expectRetain: DefaultMaxRetain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.maxRetain)
			assert.Equal(t, tt.expectRetain, p.maxRetain)
		})
	}
}

func TestBuffer_ReadWrite(t *testing.T) {
	p := New(1 << 20)

	b := p.Get(16)
	n, err := b.ReadFrom(bytes.NewReader([]byte("hello ")))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	_, err = b.Write([]byte("world"))
	require.NoError(t, err)

	assert.Equal(t, "hello world", string(b.Bytes()))
	assert.Equal(t, 11, b.Len())

	data, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestBuffer_ReleaseIsSingleShot(t *testing.T) {
	p := New(1 << 20)

	b := p.Get(0)
	assert.Equal(t, int64(1), p.InUse())
	assert.False(t, b.Released())

	b.Release()
	assert.True(t, b.Released())
	assert.Equal(t, int64(0), p.InUse())

	b.Release()
	assert.Equal(t, int64(0), p.InUse(), "second release must not double count")

	var nilBuf *Buffer
	assert.NotPanics(t, func() { nilBuf.Release() })
}

func TestPool_ReusesBuffersAfterRelease(t *testing.T) {
	p := New(1 << 20)

	first := p.Get(64)
	_, _ = first.Write([]byte("stale"))
	first.Release()

	second := p.Get(0)
	defer second.Release()
	assert.Equal(t, 0, second.Len(), "reused buffer must start empty")
}

func TestPool_HintIsClamped(t *testing.T) {
	p := New(128)

	b := p.Get(1 << 30)
	defer b.Release()
	assert.LessOrEqual(t, cap(b.Bytes()), 1<<20)
}
