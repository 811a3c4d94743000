// Package arena implements the transaction-scoped byte arena spec.md §6
// consumes ("allocate(n) -> (scope, byte_string); from_ptr; external(ptr, n);
// release(byte_string)"). Every buffer handed to a caller during a
// transaction is tracked so a forgotten release is at worst a leaked slice
// until the whole Arena is dropped at transaction end, never a dangling
// pointer.
package arena

import "sync"

// Arena owns every transient byte buffer allocated during one transaction.
// It is not safe for concurrent use: spec.md §5 scopes one Arena to one
// enclosing transaction, and transactions are single-writer.
type Arena struct {
	pool  *sync.Pool
	owned [][]byte
}

// New creates an Arena backed by a shared pool of reusable buffers. Passing
// the same *sync.Pool to successive Arenas (one per transaction) lets
// buffers freed by a finished transaction warm the next one instead of
// going back to the Go allocator every time.
func New(pool *sync.Pool) *Arena {
	if pool == nil {
		pool = &sync.Pool{New: func() any { return new([]byte) }}
	}
	return &Arena{pool: pool}
}

// Scope is a released-once handle to an allocation. Nested scopes release
// in reverse order of acquisition when the caller walks them that way;
// Arena itself does not enforce ordering, it only tracks ownership so
// Release can be called safely even out of order.
type Scope struct {
	arena *Arena
	buf   *[]byte
}

// Allocate returns n zeroed bytes and the Scope that owns them. The slice
// is valid until Scope.Release is called or the Arena is dropped.
func (a *Arena) Allocate(n int) (*Scope, []byte) {
	bp := a.pool.Get().(*[]byte)
	if cap(*bp) < n {
		*bp = make([]byte, n)
	} else {
		*bp = (*bp)[:n]
		for i := range *bp {
			(*bp)[i] = 0
		}
	}
	a.owned = append(a.owned, *bp)
	return &Scope{arena: a, buf: bp}, *bp
}

// FromPtr wraps an existing slice the Arena did not allocate (e.g. a page
// buffer handed back by pagestore) into a Scope so callers have one release
// discipline regardless of where a byte string came from.
func (a *Arena) FromPtr(b []byte) *Scope {
	return &Scope{arena: a, buf: &b}
}

// External returns a non-owning view over ptr: the returned Scope's
// Release is a no-op, used for buffers the caller must not free through
// the arena (e.g. a page pinned by the paged store itself).
func External(ptr []byte) *Scope {
	return &Scope{buf: &ptr}
}

// Bytes returns the scope's current buffer.
func (s *Scope) Bytes() []byte { return *s.buf }

// Release returns the buffer to the arena's pool. Safe to call more than
// once; the second call is a no-op.
func (s *Scope) Release() {
	if s == nil || s.arena == nil || s.buf == nil {
		return
	}
	a := s.arena
	buf := *s.buf
	s.arena = nil
	s.buf = nil
	for i, b := range a.owned {
		if cap(b) > 0 && cap(buf) > 0 && &b[:1][0] == &buf[:1][0] {
			a.owned = append(a.owned[:i], a.owned[i+1:]...)
			break
		}
	}
	a.pool.Put(&buf)
}

// Close releases every buffer the Arena handed out that the caller did not
// already release individually. Call it once at transaction end.
func (a *Arena) Close() {
	for _, b := range a.owned {
		buf := b
		a.pool.Put(&buf)
	}
	a.owned = nil
}
