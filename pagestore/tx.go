package pagestore

import (
	"fmt"
)

// Tx is a read-only view over a Store, valid until the caller discards it.
// Page slices it returns alias the store's backing memory directly and
// remain valid only until an RwTx grows the file in AllocPages (spec.md §5: the
// paged store's own concurrency guarantees are assumed, not reimplemented
// here — see DESIGN.md).
type Tx struct {
	s *Store
}

// Begin opens a read-only transaction.
func (s *Store) Begin() *Tx { return &Tx{s: s} }

// ReadPage returns the raw bytes of the page at pn.
func (tx *Tx) ReadPage(pn PageNumber) ([]byte, error) {
	return tx.s.readPageLocked(pn)
}

func (s *Store) readPageLocked(pn PageNumber) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pn == 0 || uint64(pn) >= s.numPages {
		return nil, fmt.Errorf("pagestore: page %d out of range (numPages=%d)", pn, s.numPages)
	}
	off := int(pn) * s.pageSize
	return s.backing.Bytes()[off : off+s.pageSize], nil
}

// RwTx is the single writable transaction a Store allows at a time. Dirty
// pages are copy-on-write until Commit, so Rollback is just discarding the
// overlay.
type RwTx struct {
	s       *Store
	dirty   map[PageNumber][]byte
	alloced []runSpan
	freed   []runSpan
	done    bool
}

type runSpan struct {
	first PageNumber
	n     int
}

// BeginRw opens the single writer transaction. It blocks until any prior
// RwTx has Committed or Rolledback, matching spec.md §5's single-writer
// model — callers that want non-blocking behavior should serialize at a
// higher layer (table.Table already does, one RwTx per enclosing
// transaction).
func (s *Store) BeginRw() *RwTx {
	s.writerMu.Lock()
	return &RwTx{s: s, dirty: make(map[PageNumber][]byte)}
}

// AllocPages reserves n contiguous pages and returns the first page
// number. Pages come from the free list first (reused from compacted
// sections), falling back to growing the file.
func (tx *RwTx) AllocPages(n int, flags Flags) (PageNumber, error) {
	if n <= 0 {
		return 0, fmt.Errorf("pagestore: AllocPages requires n > 0, got %d", n)
	}
	tx.s.mu.Lock()
	first, ok := tx.s.findFreeRun(n)
	if ok {
		for i := 0; i < n; i++ {
			tx.s.free.Remove(uint32(first) + uint32(i))
		}
	} else {
		first = PageNumber(tx.s.numPages)
		if err := tx.s.growTo(tx.s.numPages + uint64(n)); err != nil {
			tx.s.mu.Unlock()
			return 0, err
		}
	}
	tx.s.mu.Unlock()

	tx.alloced = append(tx.alloced, runSpan{first, n})
	for i := 0; i < n; i++ {
		pn := first + PageNumber(i)
		buf := make([]byte, tx.s.pageSize)
		if i == 0 {
			buf[0] = byte(flags)
		}
		tx.dirty[pn] = buf
	}
	return first, nil
}

// FreePages returns n contiguous pages starting at first to the free list.
// They become eligible for reuse by AllocPages in a later RwTx, once this
// transaction commits.
func (tx *RwTx) FreePages(first PageNumber, n int) error {
	if first == 0 {
		return fmt.Errorf("pagestore: cannot free reserved page 0")
	}
	tx.freed = append(tx.freed, runSpan{first, n})
	for i := 0; i < n; i++ {
		delete(tx.dirty, first+PageNumber(i))
	}
	return nil
}

// ReadPage returns the page's current bytes, seeing this transaction's own
// uncommitted writes first.
func (tx *RwTx) ReadPage(pn PageNumber) ([]byte, error) {
	if b, ok := tx.dirty[pn]; ok {
		return b, nil
	}
	return tx.s.readPageLocked(pn)
}

// ModifyPage returns a writable copy of pn's bytes. The copy becomes
// visible to ReadPage within this transaction immediately and to every
// other transaction only at Commit.
func (tx *RwTx) ModifyPage(pn PageNumber) ([]byte, error) {
	if b, ok := tx.dirty[pn]; ok {
		return b, nil
	}
	cur, err := tx.s.readPageLocked(pn)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(cur))
	copy(cp, cur)
	tx.dirty[pn] = cp
	return cp, nil
}

// Commit writes every dirty page back into the store and releases the
// writer lock. A Store left with an open RwTx that is never committed or
// rolled back deadlocks every subsequent BeginRw — callers must always
// pair BeginRw with a deferred Rollback/Commit.
func (tx *RwTx) Commit() error {
	if tx.done {
		return fmt.Errorf("pagestore: Commit on a finished transaction")
	}
	tx.done = true
	defer tx.s.writerMu.Unlock()

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	buf := tx.s.backing.Bytes()
	for pn, data := range tx.dirty {
		off := int(pn) * tx.s.pageSize
		copy(buf[off:off+tx.s.pageSize], data)
	}
	for _, span := range tx.freed {
		for i := 0; i < span.n; i++ {
			tx.s.free.Add(uint32(span.first) + uint32(i))
		}
	}
	return nil
}

// Rollback discards every write this transaction made, including pages it
// allocated (they are returned to the free list) and pages it asked to
// free (they stay allocated).
func (tx *RwTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.s.writerMu.Unlock()

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for _, span := range tx.alloced {
		for i := 0; i < span.n; i++ {
			tx.s.free.Add(uint32(span.first) + uint32(i))
		}
	}
	return nil
}
