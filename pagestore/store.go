// Package pagestore is the Paged Store spec.md §6 consumes: allocate/free/
// read/modify fixed-size pages within a transaction, including multi-page
// overflow runs. The teacher repository's real paged store is MDBX, reached
// through cgo (github.com/erigontech/mdbx-go) and exposing no raw
// page-pointer API to Go callers — so there is nothing in the teacher to
// adapt for this exact contract. This package fills that gap with a small
// mmap-backed page file (github.com/edsrzf/mmap-go) so section and table
// have a real paged store to drive; kvtree/mdbxkv remains the intended
// production backend for the ordered-tree half of the contract (see
// DESIGN.md).
package pagestore

import (
	"fmt"
	"os"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/erigontech/tablestore/internal/mathutil"
)

// Store owns one page file: a fixed page size, a free-page bitmap, and the
// single advisory write-lock that enforces spec.md §5's "single-writer per
// enclosing transaction".
type Store struct {
	mu       sync.RWMutex
	backing  backing
	lock     *flock.Flock
	pageSize int
	numPages uint64
	free     *roaring.Bitmap
	writerMu sync.Mutex // held by the one open RwTx
	log      *zap.SugaredLogger
}

// Option configures Open.
type Option func(*options)

type options struct {
	pageSize ByteSize
	log      *zap.SugaredLogger
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n ByteSize) Option { return func(o *options) { o.pageSize = n } }

// WithLogger attaches a logger; Open uses zap.NewNop() when omitted.
func WithLogger(l *zap.SugaredLogger) Option { return func(o *options) { o.log = l } }

// Open opens (creating if absent) the page file at path. path == "" opens
// an anonymous, process-local store useful for tests.
func Open(path string, opts ...Option) (*Store, error) {
	o := &options{pageSize: DefaultPageSize}
	for _, fn := range opts {
		fn(o)
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}

	var bk backing
	var lk *flock.Flock
	var err error
	if path == "" {
		bk = newMemBacking()
	} else {
		lk = flock.New(path + ".lock")
		ok, err := lk.TryLock()
		if err != nil {
			return nil, fmt.Errorf("pagestore: acquire lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("pagestore: %s is locked by another writer", path)
		}
		bk, err = newFileBacking(path)
		if err != nil {
			lk.Unlock()
			return nil, err
		}
	}

	s := &Store{
		backing:  bk,
		lock:     lk,
		pageSize: int(o.pageSize),
		free:     roaring.New(),
		log:      o.log,
	}
	s.numPages = uint64(len(bk.Bytes())) / uint64(s.pageSize)
	if s.numPages == 0 {
		// Page 0 is reserved: a PageNumber of 0 combined with an
		// in-page offset of 0 would be indistinguishable from a storage id
		// whose page number is legitimately 0, so the store never hands
		// page 0 out.
		if err := s.growTo(1); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PageSize returns the fixed page size this store was opened with.
func (s *Store) PageSize() int { return s.pageSize }

// NumPages returns the current size of the page file, in pages.
func (s *Store) NumPages() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numPages
}

// Close releases the backing file and write lock.
func (s *Store) Close() error {
	err := s.backing.Close()
	if s.lock != nil {
		if uerr := s.lock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}

func (s *Store) growTo(numPages uint64) error {
	want, overflow := mathutil.SafeMul(numPages, uint64(s.pageSize))
	if overflow {
		return fmt.Errorf("pagestore: page file size overflow at %d pages", numPages)
	}
	if err := s.backing.Grow(int(want)); err != nil {
		return err
	}
	s.numPages = numPages
	return nil
}

// findFreeRun scans the free bitmap for n contiguous free page numbers,
// returning (first, true) on success.
func (s *Store) findFreeRun(n int) (PageNumber, bool) {
	if n <= 0 || s.free.IsEmpty() {
		return 0, false
	}
	it := s.free.Iterator()
	run := 0
	var first uint32
	var prev uint32
	havePrev := false
	for it.HasNext() {
		v := it.Next()
		if havePrev && v == prev+1 {
			run++
		} else {
			run = 1
			first = v
		}
		prev = v
		havePrev = true
		if run == n {
			return PageNumber(first), true
		}
	}
	return 0, false
}
