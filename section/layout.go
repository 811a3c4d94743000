package section

import "encoding/binary"

// Every page belonging to a section carries this preamble, duplicated on
// every page rather than only page 0. direct_read is specified as a
// *static* operation given only (low_level_tx, id) — it must be able to
// recover an entry's span and the dictionary that encoded it without
// consulting any particular Section instance (spec.md §4.1 "any section
// can decode an id belonging to any other section of the same format;
// this is essential because old ids remain valid during a compaction
// window"). Replicating the preamble on every page is what makes that
// true: a reader needs nothing but the page bytes at id.
const (
	preambleOwnerHashOff = 0  // 8 bytes
	preambleTableTypeOff = 8  // 1 byte
	preambleDictHashOff  = 9  // 32 bytes
	preambleSize         = 48 // rounded up from 41, leaves 7 bytes pad
)

// Page 0 additionally carries section-wide fields no other page needs.
const (
	page0NumPagesOff = preambleSize     // 4 bytes
	page0MinRatioOff = preambleSize + 4 // 4 bytes
	page0ExtraSize   = 16               // rounded up from 8
	page0HeaderSize  = preambleSize + page0ExtraSize
)

// entryHeaderSize is spec.md §3's per-entry size header: allocated_size,
// used_size, a flags byte (compressed / free), rounded up for alignment.
const (
	entryAllocatedSizeOff = 0
	entryUsedSizeOff      = 4
	entryFlagsOff         = 8
	entryHeaderSize       = 16
)

const (
	flagCompressed = 1 << 0
	flagFree       = 1 << 1
)

func writePreamble(page []byte, ownerHash uint64, tableType byte, dictHash [32]byte) {
	binary.LittleEndian.PutUint64(page[preambleOwnerHashOff:], ownerHash)
	page[preambleTableTypeOff] = tableType
	copy(page[preambleDictHashOff:preambleDictHashOff+32], dictHash[:])
}

func readPreamble(page []byte) (ownerHash uint64, tableType byte, dictHash [32]byte) {
	ownerHash = binary.LittleEndian.Uint64(page[preambleOwnerHashOff:])
	tableType = page[preambleTableTypeOff]
	copy(dictHash[:], page[preambleDictHashOff:preambleDictHashOff+32])
	return
}

func writePage0Extra(page []byte, numPages uint32, minRatio int32) {
	binary.LittleEndian.PutUint32(page[page0NumPagesOff:], numPages)
	binary.LittleEndian.PutUint32(page[page0MinRatioOff:], uint32(minRatio))
}

func readPage0Extra(page []byte) (numPages uint32, minRatio int32) {
	numPages = binary.LittleEndian.Uint32(page[page0NumPagesOff:])
	minRatio = int32(binary.LittleEndian.Uint32(page[page0MinRatioOff:]))
	return
}

func preambleFor(pageIndexInSection int) int {
	if pageIndexInSection == 0 {
		return page0HeaderSize
	}
	return preambleSize
}

func writeEntryHeader(buf []byte, allocatedSize, usedSize uint32, flags byte) {
	binary.LittleEndian.PutUint32(buf[entryAllocatedSizeOff:], allocatedSize)
	binary.LittleEndian.PutUint32(buf[entryUsedSizeOff:], usedSize)
	buf[entryFlagsOff] = flags
}

func readEntryHeader(buf []byte) (allocatedSize, usedSize uint32, flags byte) {
	allocatedSize = binary.LittleEndian.Uint32(buf[entryAllocatedSizeOff:])
	usedSize = binary.LittleEndian.Uint32(buf[entryUsedSizeOff:])
	flags = buf[entryFlagsOff]
	return
}

// align rounds n up to the next multiple of 8, keeping entry headers
// naturally aligned within a page.
func align(n int) int {
	const a = 8
	return (n + a - 1) / a * a
}
