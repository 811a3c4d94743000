package builder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tablestore/codec"
	"github.com/erigontech/tablestore/dictionary"
	"github.com/erigontech/tablestore/entry"
)

func TestBuildUncompressedWithoutDictionary(t *testing.T) {
	b := New().Add(entry.Bytes([]byte("alice"))).Add(entry.Uint64(7))
	res, err := b.Build(nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Compressed)
	assert.Equal(t, res.Raw, res.Bytes)

	r, err := res.Reader()
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), r.Column(0))
}

func TestBuildSkipsCompressionForEmptyDictionary(t *testing.T) {
	b := New().Add(entry.Bytes(bytes.Repeat([]byte("x"), 1000)))
	res, err := b.Build(nil, &dictionary.Handle{})
	require.NoError(t, err)
	assert.False(t, res.Compressed)
}

func TestBuildCompressesHighlyRedundantRow(t *testing.T) {
	c, err := codec.New()
	require.NoError(t, err)
	defer c.Close()

	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 500)
	b := New().Add(entry.Bytes(payload))

	dict := &dictionary.Handle{Bytes: []byte("some training corpus content"), ExpectedRatio: 0}
	res, err := b.Build(c, dict)
	require.NoError(t, err)
	require.True(t, res.Compressed)
	assert.Less(t, len(res.Bytes), len(res.Raw))

	// Raw must decode as the same row regardless of what got persisted.
	r, err := res.Reader()
	require.NoError(t, err)
	assert.Equal(t, payload, r.Column(0))
}

func TestBuildFromRawMatchesBuild(t *testing.T) {
	c, err := codec.New()
	require.NoError(t, err)
	defer c.Close()

	cols := []entry.Column{entry.Bytes(bytes.Repeat([]byte("z"), 2000))}
	dict := &dictionary.Handle{Bytes: []byte("corpus"), ExpectedRatio: 0}

	viaBuild, err := New().Add(cols[0]).Build(c, dict)
	require.NoError(t, err)
	viaRaw, err := BuildFromRaw(entry.Encode(cols), c, dict)
	require.NoError(t, err)

	assert.Equal(t, viaBuild.Compressed, viaRaw.Compressed)
	assert.Equal(t, viaBuild.Bytes, viaRaw.Bytes)
}

func TestResetClearsStagedColumns(t *testing.T) {
	b := New().Add(entry.Bytes([]byte("one")))
	b.Reset()
	b.Add(entry.Bytes([]byte("two")))
	res, err := b.Build(nil, nil)
	require.NoError(t, err)
	r, err := res.Reader()
	require.NoError(t, err)
	require.Equal(t, 1, r.NumColumns())
	assert.Equal(t, []byte("two"), r.Column(0))
}

func TestShouldReplaceDictionary(t *testing.T) {
	assert.True(t, ShouldReplaceDictionary(50, 60))
	assert.False(t, ShouldReplaceDictionary(50, 59))
	assert.True(t, ShouldReplaceDictionary(0, 10))
	assert.False(t, ShouldReplaceDictionary(90, 95))
}
