// Package kvtree defines the ordered-map contract spec.md §6 consumes from
// "B-tree / Fixed-Size-Tree (external)": a named table inside a
// transaction, iterated with a Cursor, optionally allowing duplicate keys
// (the "nested fixed-size-tree" spec.md §3 describes for variable
// secondary indexes). It mirrors the Cursor/CursorDupSort shape the
// teacher's own kv package exposes over MDBX (erigon-lib/kv/tables.go
// documents exactly this key/value convention per named table), so the
// production backend in kvtree/mdbxkv is a thin pass-through and the
// in-memory backend in kvtree/memkv is a drop-in for tests.
package kvtree

import "errors"

// ErrKeyNotFound is returned by Tx.GetOne when no value exists for a key
// that must exist. Cursor.SeekExact reports an absent key with a nil value
// instead.
var ErrKeyNotFound = errors.New("kvtree: key not found")

// TableFlags selects a table's duplicate-key behavior at creation.
type TableFlags uint

const (
	// Default is a table with unique keys: one value per key.
	Default TableFlags = 0
	// DupSort allows multiple values per key, iterated in sorted order —
	// the backing structure for a secondary variable index's nested
	// fixed-size tree (spec.md §3).
	DupSort TableFlags = 1 << iota
	// DupFixed additionally declares that every value under a DupSort key
	// has the same fixed width (8 bytes, a storage id). kvtree/mdbxkv
	// passes it through to MDBX's DupFixed; kvtree/memkv ignores it.
	DupFixed
)

// Tx is a read view over the tree store, valid for the lifetime of one
// enclosing transaction (spec.md §5: "multiple concurrent read
// transactions can hold their own Table instances").
type Tx interface {
	// GetOne returns the value for key in table, or ErrKeyNotFound.
	GetOne(table string, key []byte) ([]byte, error)
	// Cursor opens a read cursor over table.
	Cursor(table string) (Cursor, error)
	// CursorDupSort opens a read cursor over a DupSort table.
	CursorDupSort(table string) (CursorDupSort, error)
}

// RwTx is a writable transaction. Exactly one RwTx may be open at a time
// per store (spec.md §5 "single-writer per enclosing transaction").
type RwTx interface {
	Tx
	// CreateTable ensures table exists with the given flags, creating it
	// empty if this is the first reference.
	CreateTable(table string, flags TableFlags) error
	// Put inserts or overwrites the value for key in a non-DupSort table.
	Put(table string, key, value []byte) error
	// Delete removes key (and, for a DupSort table, all its values) from
	// table. Deleting an absent key is not an error; callers that must
	// distinguish "absent" from "removed" use a cursor SeekExact first.
	Delete(table string, key []byte) error
	// RwCursor opens a write cursor over table.
	RwCursor(table string) (RwCursor, error)
	// RwCursorDupSort opens a write cursor over a DupSort table.
	RwCursorDupSort(table string) (RwCursorDupSort, error)
}

// Cursor iterates a table's key/value pairs in key order.
type Cursor interface {
	First() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	// Seek positions at the first key >= seek.
	Seek(seek []byte) (k, v []byte, err error)
	// SeekExact positions at key and returns (nil, nil) if absent.
	SeekExact(key []byte) (v []byte, err error)
	Close()
}

// CursorDupSort additionally iterates the values stored under one key.
type CursorDupSort interface {
	Cursor
	// SeekBothExact positions at (key, value) and returns (nil, nil) if
	// that exact pair is absent.
	SeekBothExact(key, value []byte) (v []byte, err error)
	// SeekBothRange positions at the first value >= value under key.
	SeekBothRange(key, value []byte) (v []byte, err error)
	FirstDup() (v []byte, err error)
	NextDup() (k, v []byte, err error)
	LastDup() (v []byte, err error)
	// CountDuplicates returns the number of values stored under the
	// cursor's current key.
	CountDuplicates() (uint64, error)
}

// RwCursor is a Cursor that can mutate the table it iterates.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
	// DeleteCurrent removes the key/value pair the cursor is positioned
	// on.
	DeleteCurrent() error
}

// RwCursorDupSort is a CursorDupSort that can mutate the table it iterates.
type RwCursorDupSort interface {
	CursorDupSort
	RwCursor
	// PutNoDupData inserts (k, v) only if that exact pair is absent.
	PutNoDupData(k, v []byte) error
	// DeleteCurrentDup removes only the (key, value) pair the cursor is
	// positioned on, leaving other values under the same key intact.
	DeleteCurrentDup() error
	// DeleteExact removes one specific (key, value) pair.
	DeleteExact(k, v []byte) error
}
