// Package schema implements the Table Schema spec.md §4.8 describes: the
// table-type byte, the compression flag, the primary key declaration, and
// the secondary-index declarations a table.Table validates on open and
// uses to maintain every index on every insert/update/delete.
//
// Per spec.md §9 "Dynamic dispatch on schema-extracted slices", each index
// kind is its own concrete Extractor/FixedExtractor implementation rather
// than one function pointer with a kind tag: ByColumnRange and ByColumnValue
// cover the common case directly off entry.Reader, CustomExtractor and
// CustomFixedExtractor cover everything else.
package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/erigontech/tablestore/entry"
)

// TableType distinguishes schema-incompatible tables sharing one store;
// table.Table refuses to open a table whose on-disk TableType byte does not
// match the schema it was opened with.
type TableType uint8

// Extractor produces a variable-length secondary-index key from a decoded
// row. ByColumnRange and CustomExtractor are the two implementations
// table.Table's variable-key index maintenance understands.
type Extractor interface {
	ExtractSlice(r *entry.Reader) []byte
}

// FixedExtractor produces a fixed-size (uint64) secondary-index key from a
// decoded row. ByColumnValue and CustomFixedExtractor are the two
// implementations table.Table's fixed-key index maintenance understands.
type FixedExtractor interface {
	ExtractFixed(r *entry.Reader) uint64
}

// ByColumnRange extracts columns [Start, Start+Count) concatenated, the
// common case for a variable-key secondary index (e.g. a composite key
// spanning two adjacent columns).
type ByColumnRange struct {
	Start int
	Count int
}

func (e ByColumnRange) ExtractSlice(r *entry.Reader) []byte { return r.Range(e.Start, e.Count) }

// ByColumnValue extracts one column, decoded as a little-endian uint64, the
// common case for a fixed-size secondary index.
type ByColumnValue struct {
	Column int
}

func (e ByColumnValue) ExtractFixed(r *entry.Reader) uint64 { return r.ColumnUint64(e.Column) }

// CustomExtractor covers variable-key extraction logic ByColumnRange cannot
// express (derived, reordered, or computed keys).
type CustomExtractor func(r *entry.Reader) []byte

func (f CustomExtractor) ExtractSlice(r *entry.Reader) []byte { return f(r) }

// CustomFixedExtractor covers fixed-key extraction logic ByColumnValue
// cannot express.
type CustomFixedExtractor func(r *entry.Reader) uint64

func (f CustomFixedExtractor) ExtractFixed(r *entry.Reader) uint64 { return f(r) }

// IndexKind distinguishes the two secondary-index shapes spec.md §4.9
// maintains differently: a variable-key index is a nested fixed-size tree
// keyed by the extracted slice, a fixed-key index is a plain fixed-size
// tree keyed by the extracted uint64.
type IndexKind uint8

const (
	IndexVariableKey IndexKind = iota
	IndexFixedKey
)

// Index is one secondary-index declaration.
type Index struct {
	Name           string
	Kind           IndexKind
	Extractor      Extractor      // set when Kind == IndexVariableKey
	FixedExtractor FixedExtractor // set when Kind == IndexFixedKey
	AllowDuplicate bool           // persisted by Encode; index maintenance does not read it (variable-key indexes always accept duplicates, fixed-key indexes always reject them)
}

// Schema is a table's full shape: how to find its primary key, what
// secondary indexes to maintain, and whether its raw-data sections are
// dictionary-compressed.
type Schema struct {
	TableType  TableType
	Compressed bool
	PrimaryKey Extractor
	NumColumns int
	Indexes    []Index
}

// ErrMismatch is spec.md §7 error kind 1: the schema a caller opened a
// table with does not match the canonical schema persisted in its Schemas
// slot. Recoverable — the caller chose the wrong schema, not the store.
type ErrMismatch struct {
	Want, Got []byte
}

func (e *ErrMismatch) Error() string {
	return fmt.Sprintf("schema: on-disk schema %x does not match %x", e.Got, e.Want)
}

// Encode produces the canonical on-disk form table.Table persists in the
// Schemas slot and compares against on every later open. It covers only the
// shape a stored schema must agree with byte-for-byte — table type, column
// count, compression flag, and each index's kind, dup-allowed flag and name —
// not the Go-side Extractor closures, which cannot be serialized and are
// supplied fresh by the caller on every open.
func (s *Schema) Encode() []byte {
	out := []byte{byte(s.TableType), boolByte(s.Compressed)}
	out = binary.LittleEndian.AppendUint32(out, uint32(s.NumColumns))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(s.Indexes)))
	for _, idx := range s.Indexes {
		out = append(out, byte(idx.Kind), boolByte(idx.AllowDuplicate))
		out = binary.LittleEndian.AppendUint32(out, uint32(len(idx.Name)))
		out = append(out, idx.Name...)
	}
	return out
}

// Validate compares persisted against s.Encode(), returning *ErrMismatch on
// any difference.
func (s *Schema) Validate(persisted []byte) error {
	want := s.Encode()
	if len(want) != len(persisted) {
		return &ErrMismatch{Want: want, Got: persisted}
	}
	for i := range want {
		if want[i] != persisted[i] {
			return &ErrMismatch{Want: want, Got: persisted}
		}
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
