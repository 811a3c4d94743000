package pagestore

import "github.com/c2h5oh/datasize"

// PageNumber addresses one fixed-size page within a Store.
type PageNumber uint64

// Flags mark a page run's role. AllocPages writes them into byte 0 of the
// run's first page; nothing in this package reads them back, and a caller
// that writes its own header at offset 0 (the section preamble, the table
// overflow header) overwrites them.
type Flags uint8

const (
	// RawData marks a run allocated for a raw-data section or an overflow
	// run. The table engine passes it on every AllocPages call.
	RawData Flags = 1 << iota
	// Overflow marks the first page of a large-entry run (spec.md §3
	// "Overflow run").
	Overflow
	// Compressed marks an overflow run whose payload was stored through
	// the compression codec.
	Compressed
)

// ByteSize is re-exported so callers configuring a Store do not need their
// own import of c2h5oh/datasize for the common case.
type ByteSize = datasize.ByteSize

// DefaultPageSize matches the worked examples in spec.md §8.
const DefaultPageSize ByteSize = 8192

// DefaultMaxTablePages is 1<<20 pages. No Store option or check in this
// package reads it; Open grows the file without an upper page bound.
const DefaultMaxTablePages = 1 << 20
