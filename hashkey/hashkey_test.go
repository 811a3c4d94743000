package hashkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenericIsDeterministicAndKeyed(t *testing.T) {
	a := Generic([]byte("payload"), []byte("table-a"))
	b := Generic([]byte("payload"), []byte("table-a"))
	c := Generic([]byte("payload"), []byte("table-b"))

	assert.Equal(t, a, b, "same data and key hash identically")
	assert.NotEqual(t, a, c, "different keys must not collide")
	assert.False(t, IsZero(a))
}

func TestZeroIsTheAllZeroSentinel(t *testing.T) {
	assert.True(t, IsZero(Zero))
	assert.True(t, IsZero([Size]byte{}))
}

func TestBase64RoundTripsThroughStandardEncoding(t *testing.T) {
	h := Generic([]byte("x"), []byte("k"))
	s := Base64(h)
	assert.Len(t, s, 44) // 32 bytes -> 44 base64 chars with padding
}
