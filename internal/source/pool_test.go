package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetRelease(t *testing.T) {
	p := NewPool(2, 8)
	ts := time.Unix(100, 0)

	a := p.Get([]byte{1, 2, 3}, ts)
	require.NotNil(t, a)
	assert.Equal(t, []byte{1, 2, 3}, a.Data)
	assert.Equal(t, ts, a.Timestamp)

	b := p.Get([]byte("0123456789"), ts)
	require.NotNil(t, b)
	assert.Equal(t, []byte("01234567"), b.Data, "copy truncated to buffer size")
	assert.EqualValues(t, 2, p.InUse())

	assert.Nil(t, p.Get([]byte{9}, ts))

	a.Release()
	a.Release()
	assert.EqualValues(t, 1, p.InUse(), "double release is a no-op")

	c := p.Get([]byte{4}, ts)
	require.NotNil(t, c)
	assert.Equal(t, []byte{4}, c.Data)
	assert.Equal(t, 8, p.BufferSize())
}

func TestBufferReleaseWithoutPool(t *testing.T) {
	var nilBuf *Buffer
	nilBuf.Release()

	b := &Buffer{Data: []byte{1}}
	b.Release()
	assert.Equal(t, []byte{1}, b.Data)
}

func TestPoolDataDoesNotAlias(t *testing.T) {
	p := NewPool(1, 16)
	src := []byte{1, 2, 3, 4}

	b := p.Get(src, time.Time{})
	require.NotNil(t, b)
	src[0] = 0xFF
	assert.Equal(t, byte(1), b.Data[0])
}
