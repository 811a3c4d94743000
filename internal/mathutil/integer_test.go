package mathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 1, CeilDiv(8192, 8192))
	assert.Equal(t, 2, CeilDiv(8193, 8192))
	assert.Equal(t, 0, CeilDiv(5, 0))
}

func TestSafeAdd(t *testing.T) {
	sum, overflow := SafeAdd(3, 4)
	assert.Equal(t, uint64(7), sum)
	assert.False(t, overflow)

	_, overflow = SafeAdd(MaxUint64, 1)
	assert.True(t, overflow)
}

func TestSafeMul(t *testing.T) {
	product, overflow := SafeMul(6, 7)
	assert.Equal(t, uint64(42), product)
	assert.False(t, overflow)

	_, overflow = SafeMul(MaxUint64, 2)
	assert.True(t, overflow)
}

func TestAbsoluteDifference(t *testing.T) {
	assert.Equal(t, uint64(5), AbsoluteDifference(10, 5))
	assert.Equal(t, uint64(5), AbsoluteDifference(5, 10))
	assert.Equal(t, uint64(0), AbsoluteDifference(7, 7))
}
