// Package dictionary implements the Dictionary Holder spec.md §4.2
// describes: a process-wide cache of dictionary-hash -> decoded dictionary
// handle, lazily materialized on first reference and lock-free for every
// later caller.
//
// Per spec.md §9 "Global state": this is modeled as an explicit value
// (*Holder) a caller constructs once per process and threads through every
// table.Table it opens — never a package-level singleton.
package dictionary

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/erigontech/tablestore/hashkey"
)

// ErrNotFound is spec.md §7 error kind 6: a non-zero dictionary hash that
// does not resolve through the Dictionaries tree. It is unrecoverable data
// corruption; Holder.Get wraps it with a stack trace itself via
// github.com/pkg/errors (errors.WithStack), matching spec.md §4.2 "raise 'dictionary not
// found' ... It is never recovered."
type ErrNotFound struct {
	Hash [hashkey.Size]byte
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("dictionary not found: %s", hashkey.Base64(e.Hash))
}

// Handle is a shared, immutable, decoded dictionary. expectedRatio > 100
// can never be beaten by a trained candidate (spec.md §4.3 "the candidate
// must beat the current by >= 10%"), which is exactly the property the
// empty-dictionary sentinel needs (spec.md §4.2 "never triggers
// replacement").
type Handle struct {
	Bytes         []byte
	ExpectedRatio int32
}

// emptyHandle is the sentinel spec.md §4.2 assigns to the all-zero hash.
var emptyHandle = &Handle{ExpectedRatio: 101}

// Loader reads a dictionary's encoded bytes and expected-ratio metadata
// from a table's Dictionaries tree. Supplied by the caller on a cache miss
// so Holder itself stays independent of any particular kvtree.Tx or table
// layout (spec.md §4.2 "materialises the dictionary by reading the
// Dictionaries tree" — which tree is the caller's concern, not the
// Holder's).
type Loader func(hash [hashkey.Size]byte) (dictBytes []byte, expectedRatio int32, err error)

// Holder is the process-wide published-handle cache plus the
// load-exactly-once machinery spec.md §4.2 calls "a short exclusive lock".
type Holder struct {
	published *lru.Cache[[hashkey.Size]byte, *Handle]
	group     singleflight.Group
	mu        sync.Mutex
	arena     [][]byte // private arena the Holder clones dictionary bytes into; lives for the process
}

// NewHolder returns an empty Holder. size bounds how many distinct
// dictionaries stay resident; handles for evicted hashes are simply
// reloaded from the Dictionaries tree on next reference.
func NewHolder(size int) *Holder {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[[hashkey.Size]byte, *Handle](size)
	return &Holder{published: c}
}

// Get returns the handle for hash, loading it via load on first reference.
// Concurrent Get calls for the *same* hash collapse into one load
// (golang.org/x/sync/singleflight); calls for different hashes never
// block each other, matching spec.md §4.2's "subsequent callers
// lock-free" once a hash has been published.
func (h *Holder) Get(hash [hashkey.Size]byte, load Loader) (*Handle, error) {
	if hashkey.IsZero(hash) {
		return emptyHandle, nil
	}
	if v, ok := h.published.Get(hash); ok {
		return v, nil
	}
	v, err, _ := h.group.Do(string(hash[:]), func() (any, error) {
		if v, ok := h.published.Get(hash); ok {
			return v, nil
		}
		dictBytes, ratio, err := load(hash)
		if err != nil {
			return nil, errors.WithStack(&ErrNotFound{Hash: hash})
		}
		owned := h.clone(dictBytes)
		handle := &Handle{Bytes: owned, ExpectedRatio: ratio}
		h.published.Add(hash, handle)
		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Peek returns a cached handle without loading, for callers (e.g.
// compaction) that must not block on a miss.
func (h *Holder) Peek(hash [hashkey.Size]byte) (*Handle, bool) {
	if hashkey.IsZero(hash) {
		return emptyHandle, true
	}
	return h.published.Peek(hash)
}

func (h *Holder) clone(b []byte) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := append([]byte(nil), b...)
	h.arena = append(h.arena, cp)
	return cp
}

// Close releases the Holder's private arena. Call once at process
// shutdown (spec.md §4.2 "Lifetime ... disposed at process shutdown").
func (h *Holder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.arena = nil
	h.published.Purge()
}
