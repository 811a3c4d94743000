package table

import "encoding/binary"

// Stats is the slotStats payload: spec.md §6 "The Stats slot holds
// {u64 number_of_entries, u64 overflow_page_count}."
type Stats struct {
	NumEntries        uint64
	OverflowPageCount uint64
}

func (s Stats) Encode() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:], s.NumEntries)
	binary.LittleEndian.PutUint64(b[8:], s.OverflowPageCount)
	return b
}

func decodeStats(b []byte) (Stats, error) {
	if len(b) != 16 {
		return Stats{}, ErrMissingRoot
	}
	return Stats{
		NumEntries:        binary.LittleEndian.Uint64(b[0:]),
		OverflowPageCount: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}

func encodePageNumber(pn uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, pn)
	return b
}

func decodePageNumber(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func encodePageNumberSet(pns []uint64) []byte {
	b := make([]byte, 0, 8*len(pns))
	for _, pn := range pns {
		b = binary.LittleEndian.AppendUint64(b, pn)
	}
	return b
}

func decodePageNumberSet(b []byte) []uint64 {
	var out []uint64
	for i := 0; i+8 <= len(b); i += 8 {
		out = append(out, binary.LittleEndian.Uint64(b[i:]))
	}
	return out
}

// CompressionDictionaryInfo is the fixed header spec.md §6 prepends to
// dictionary bytes in the Dictionaries tree.
type CompressionDictionaryInfo struct {
	ExpectedRatio int32
}

func encodeDictionaryRow(info CompressionDictionaryInfo, dictBytes []byte) []byte {
	b := make([]byte, 4+len(dictBytes))
	binary.LittleEndian.PutUint32(b, uint32(info.ExpectedRatio))
	copy(b[4:], dictBytes)
	return b
}

func decodeDictionaryRow(b []byte) (CompressionDictionaryInfo, []byte, bool) {
	if len(b) < 4 {
		return CompressionDictionaryInfo{}, nil, false
	}
	return CompressionDictionaryInfo{ExpectedRatio: int32(binary.LittleEndian.Uint32(b))}, b[4:], true
}

func dictKey(hash [32]byte) []byte {
	return append([]byte(dictKeyPrefix), hash[:]...)
}

// Overflow page header: spec.md §6 "Overflow pages' first bytes are
// {u64 owner_hash_or_equivalent, u8 table_type, ..., u32 overflow_size}".
// The "..." is this implementation's one bit of compressed-or-not state:
// a compressed-schema table can still store an individual overflow entry
// raw (spec.md §4.4: "if the compressed form is not smaller, keep the raw
// form"), so whether *this* entry is compressed cannot be inferred from
// the table's schema alone and must be recorded per entry. For a
// compressed overflow entry, spec.md §4.3 point 2 additionally prepends a
// 32-byte dictionary hash to the *payload* (not this header).
const (
	overflowOwnerHashOff = 0
	overflowTableTypeOff = 8
	overflowFlagsOff     = 9
	overflowSizeOff      = 10
	overflowHeaderSize   = 16 // rounded up from 14
)

const overflowFlagCompressed = 1 << 0

func writeOverflowHeader(page []byte, ownerHash uint64, tableType byte, compressed bool, size uint32) {
	binary.LittleEndian.PutUint64(page[overflowOwnerHashOff:], ownerHash)
	page[overflowTableTypeOff] = tableType
	var flags byte
	if compressed {
		flags = overflowFlagCompressed
	}
	page[overflowFlagsOff] = flags
	binary.LittleEndian.PutUint32(page[overflowSizeOff:], size)
}

func readOverflowHeader(page []byte) (ownerHash uint64, tableType byte, compressed bool, size uint32) {
	ownerHash = binary.LittleEndian.Uint64(page[overflowOwnerHashOff:])
	tableType = page[overflowTableTypeOff]
	compressed = page[overflowFlagsOff]&overflowFlagCompressed != 0
	size = binary.LittleEndian.Uint32(page[overflowSizeOff:])
	return
}
