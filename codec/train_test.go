package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainFillsBufferMostRecentFirst(t *testing.T) {
	samples := [][]byte{[]byte("oldest"), []byte("middle"), []byte("newest")}
	buf := make([]byte, 6)
	n := Train(samples, buf)
	assert.Equal(t, 6, n)
	assert.Equal(t, "newest", string(buf[:n]))
}

func TestTrainStopsWhenBufferFull(t *testing.T) {
	samples := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")}
	buf := make([]byte, 10)
	n := Train(samples, buf)
	assert.Equal(t, 10, n)
	assert.Equal(t, "ccccbbbbaa", string(buf[:n]), "walks samples newest-first, keeping the tail of the one that overflows")
}

func TestTrainKeepsTailOfSampleThatDoesNotFit(t *testing.T) {
	samples := [][]byte{[]byte("0123456789")}
	buf := make([]byte, 4)
	n := Train(samples, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, "6789", string(buf[:n]), "keeps the tail of a sample that overflows remaining room")
}

func TestTrainEmptySamples(t *testing.T) {
	buf := make([]byte, 4)
	n := Train(nil, buf)
	assert.Equal(t, 0, n)
}
