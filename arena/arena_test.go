package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsZeroedBuffer(t *testing.T) {
	a := New(nil)
	_, buf := a.Allocate(16)
	require.Len(t, buf, 16)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := New(nil)
	scope, buf := a.Allocate(8)
	copy(buf, []byte("12345678"))
	scope.Release()
	scope.Release() // second call must be a no-op, not a panic
}

func TestExternalScopeReleaseIsNoOp(t *testing.T) {
	backing := []byte("pinned")
	scope := External(backing)
	assert.Equal(t, backing, scope.Bytes())
	scope.Release()
	assert.Equal(t, backing, scope.Bytes(), "external release never returns the buffer to a pool")
}

func TestFromPtrWrapsExistingSlice(t *testing.T) {
	a := New(nil)
	b := []byte("borrowed")
	scope := a.FromPtr(b)
	assert.Equal(t, b, scope.Bytes())
}

func TestCloseReleasesEveryOwnedBuffer(t *testing.T) {
	a := New(nil)
	_, buf1 := a.Allocate(4)
	_, buf2 := a.Allocate(4)
	require.NotNil(t, buf1)
	require.NotNil(t, buf2)
	a.Close() // must not panic, and leaves a reusable Arena
	_, buf3 := a.Allocate(4)
	require.Len(t, buf3, 4)
}

func TestAllocateReusesPooledCapacity(t *testing.T) {
	a := New(nil)
	scope, buf := a.Allocate(32)
	copy(buf, []byte("reuse-me-reuse-me-reuse-me-reus"))
	scope.Release()

	_, buf2 := a.Allocate(16)
	require.Len(t, buf2, 16)
	for _, b := range buf2 {
		assert.Equal(t, byte(0), b, "a reused buffer is always re-zeroed")
	}
}
