// Package entry is the wire format for one table row: a list of typed
// columns, encoded as length-prefixed spans so a Reader can recover any
// column (or a range of columns, for index extraction) without decoding
// the whole row. builder.Builder stages Columns and optionally compresses
// the encoded form; schema.Extractor reads columns back out of a decoded
// Reader to build index keys.
package entry

import (
	"encoding/binary"
	"fmt"
)

// Column is one staged value. Columns are opaque byte spans to this
// package; callers choose how to interpret them (Bytes/String/Uint64 are
// convenience constructors, not a closed type tag).
type Column struct {
	Raw []byte
}

// Bytes wraps a raw byte column.
func Bytes(b []byte) Column { return Column{Raw: b} }

// String wraps a string column.
func String(s string) Column { return Column{Raw: []byte(s)} }

// Uint64 encodes v as an 8-byte little-endian column, the form
// schema.ByColumnValue expects for a fixed-size secondary index key.
func Uint64(v uint64) Column {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return Column{Raw: b}
}

// Encode concatenates columns into one length-prefixed span.
func Encode(columns []Column) []byte {
	n := 0
	for _, c := range columns {
		n += uvarintLen(uint64(len(c.Raw))) + len(c.Raw)
	}
	out := make([]byte, 0, n)
	var scratch [binary.MaxVarintLen64]byte
	for _, c := range columns {
		k := binary.PutUvarint(scratch[:], uint64(len(c.Raw)))
		out = append(out, scratch[:k]...)
		out = append(out, c.Raw...)
	}
	return out
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Reader is a decoded view over an encoded row.
type Reader struct {
	raw     []byte
	offsets [][2]int // [start,end) of each column's value within raw
}

// NewReader parses raw into its columns.
func NewReader(raw []byte) (*Reader, error) {
	r := &Reader{raw: raw}
	pos := 0
	for pos < len(raw) {
		l, n := binary.Uvarint(raw[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("entry: malformed length prefix at offset %d", pos)
		}
		pos += n
		end := pos + int(l)
		if end > len(raw) {
			return nil, fmt.Errorf("entry: column at offset %d overruns row (len %d, have %d)", pos, l, len(raw)-pos)
		}
		r.offsets = append(r.offsets, [2]int{pos, end})
		pos = end
	}
	return r, nil
}

// NumColumns returns how many columns were decoded.
func (r *Reader) NumColumns() int { return len(r.offsets) }

// Column returns the raw bytes of column i.
func (r *Reader) Column(i int) []byte {
	o := r.offsets[i]
	return r.raw[o[0]:o[1]]
}

// ColumnUint64 decodes column i as a little-endian uint64.
func (r *Reader) ColumnUint64(i int) uint64 {
	c := r.Column(i)
	if len(c) != 8 {
		panic(fmt.Sprintf("entry: column %d is %d bytes, not a uint64", i, len(c)))
	}
	return binary.LittleEndian.Uint64(c)
}

// Range concatenates the raw values of columns [start, start+count),
// without length prefixes — the span schema.ByColumnRange extracts as an
// index key.
func (r *Reader) Range(start, count int) []byte {
	if count == 1 {
		return r.Column(start) // common case, avoid an allocation+copy
	}
	var out []byte
	for i := start; i < start+count; i++ {
		out = append(out, r.Column(i)...)
	}
	return out
}

// Raw returns the full encoded row.
func (r *Reader) Raw() []byte { return r.raw }
