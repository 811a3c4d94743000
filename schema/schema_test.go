package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tablestore/entry"
)

func testSchema() *Schema {
	return &Schema{
		TableType:  3,
		Compressed: true,
		NumColumns: 2,
		PrimaryKey: ByColumnRange{Start: 0, Count: 1},
		Indexes: []Index{
			{Name: "by_value", Kind: IndexFixedKey, FixedExtractor: ByColumnValue{Column: 1}},
			{Name: "by_name", Kind: IndexVariableKey, Extractor: ByColumnRange{Start: 0, Count: 1}, AllowDuplicate: true},
		},
	}
}

func TestValidateAcceptsOwnEncoding(t *testing.T) {
	s := testSchema()
	assert.NoError(t, s.Validate(s.Encode()))
}

func TestValidateRejectsTableTypeMismatch(t *testing.T) {
	s := testSchema()
	other := testSchema()
	other.TableType = 9
	err := s.Validate(other.Encode())
	require.Error(t, err)
	var mismatch *ErrMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestValidateRejectsIndexCountMismatch(t *testing.T) {
	s := testSchema()
	other := testSchema()
	other.Indexes = other.Indexes[:1]
	assert.Error(t, s.Validate(other.Encode()))
}

func TestValidateRejectsTruncatedPersisted(t *testing.T) {
	s := testSchema()
	enc := s.Encode()
	assert.Error(t, s.Validate(enc[:len(enc)-1]))
}

func TestByColumnRangeExtractsSpan(t *testing.T) {
	raw := entry.Encode([]entry.Column{entry.Bytes([]byte("a")), entry.Bytes([]byte("b")), entry.Bytes([]byte("c"))})
	r, err := entry.NewReader(raw)
	require.NoError(t, err)

	e := ByColumnRange{Start: 1, Count: 2}
	assert.Equal(t, []byte("bc"), e.ExtractSlice(r))
}

func TestByColumnValueExtractsUint64(t *testing.T) {
	raw := entry.Encode([]entry.Column{entry.Uint64(7), entry.Uint64(99)})
	r, err := entry.NewReader(raw)
	require.NoError(t, err)

	e := ByColumnValue{Column: 1}
	assert.Equal(t, uint64(99), e.ExtractFixed(r))
}

func TestCustomExtractors(t *testing.T) {
	raw := entry.Encode([]entry.Column{entry.Bytes([]byte("x")), entry.Uint64(5)})
	r, err := entry.NewReader(raw)
	require.NoError(t, err)

	var customCalled bool
	extractor := CustomExtractor(func(r *entry.Reader) []byte {
		customCalled = true
		return r.Column(0)
	})
	assert.Equal(t, []byte("x"), extractor.ExtractSlice(r))
	assert.True(t, customCalled)

	fixed := CustomFixedExtractor(func(r *entry.Reader) uint64 { return r.ColumnUint64(1) + 1 })
	assert.Equal(t, uint64(6), fixed.ExtractFixed(r))
}
