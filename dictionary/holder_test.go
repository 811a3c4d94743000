package dictionary

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tablestore/hashkey"
)

func TestGetZeroHashReturnsEmptySentinelWithoutLoading(t *testing.T) {
	h := NewHolder(4)
	called := false
	handle, err := h.Get(hashkey.Zero, func([hashkey.Size]byte) ([]byte, int32, error) {
		called = true
		return nil, 0, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, int32(101), handle.ExpectedRatio)
	assert.Nil(t, handle.Bytes)
}

func TestGetLoadsOnceAndCachesResult(t *testing.T) {
	h := NewHolder(4)
	hash := hashkey.Generic([]byte("dict-bytes"), []byte("key"))
	loadCount := 0
	load := func(got [hashkey.Size]byte) ([]byte, int32, error) {
		loadCount++
		assert.Equal(t, hash, got)
		return []byte("trained dictionary bytes"), 55, nil
	}

	first, err := h.Get(hash, load)
	require.NoError(t, err)
	assert.Equal(t, []byte("trained dictionary bytes"), first.Bytes)
	assert.Equal(t, int32(55), first.ExpectedRatio)

	second, err := h.Get(hash, load)
	require.NoError(t, err)
	assert.Same(t, first, second, "a cached handle is the same pointer, not a reload")
	assert.Equal(t, 1, loadCount)
}

func TestGetWrapsLoaderFailureAsErrNotFound(t *testing.T) {
	h := NewHolder(4)
	hash := hashkey.Generic([]byte("x"), []byte("y"))
	_, err := h.Get(hash, func([hashkey.Size]byte) ([]byte, int32, error) {
		return nil, 0, errors.New("read failed")
	})
	require.Error(t, err)
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, hash, notFound.Hash)
}

func TestPeekReportsZeroHashWithoutLoading(t *testing.T) {
	h := NewHolder(4)
	handle, ok := h.Peek(hashkey.Zero)
	assert.True(t, ok)
	assert.Equal(t, int32(101), handle.ExpectedRatio)
}

func TestPeekMissReturnsFalse(t *testing.T) {
	h := NewHolder(4)
	hash := hashkey.Generic([]byte("never loaded"), []byte("k"))
	_, ok := h.Peek(hash)
	assert.False(t, ok)
}

func TestClonedBytesAreIndependentOfCallerBuffer(t *testing.T) {
	h := NewHolder(4)
	hash := hashkey.Generic([]byte("z"), []byte("k"))
	src := []byte("mutable source")
	handle, err := h.Get(hash, func([hashkey.Size]byte) ([]byte, int32, error) {
		return src, 10, nil
	})
	require.NoError(t, err)
	src[0] = 'X'
	assert.NotEqual(t, src[0], handle.Bytes[0], "Holder clones loaded bytes rather than aliasing the caller's slice")
}

func TestCloseClearsArenaAndCache(t *testing.T) {
	h := NewHolder(4)
	hash := hashkey.Generic([]byte("z"), []byte("k"))
	_, err := h.Get(hash, func([hashkey.Size]byte) ([]byte, int32, error) {
		return []byte("bytes"), 10, nil
	})
	require.NoError(t, err)

	h.Close()
	_, ok := h.Peek(hash)
	assert.False(t, ok, "Close purges every published handle")
}
