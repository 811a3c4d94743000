// Seeker: spec.md §4.8's "Seek operations" — forward, backward,
// prefix-bounded, and seek-one variants over the primary index or a
// declared secondary index, with skip and exclude-start support. One
// functional-option type stands in for spec.md's four near-duplicate
// variants, per SPEC_FULL.md §10.
package table

import (
	"encoding/binary"
	"fmt"

	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/kvtree"
	"github.com/erigontech/tablestore/schema"
)

type seekDirection int

const (
	seekForward seekDirection = iota
	seekBackward
)

// SeekResult is one row a Seeker yields.
type SeekResult struct {
	ID  uint64
	Key []byte
	Row *entry.Reader
}

// SeekOption configures a Seeker.
type SeekOption func(*Seeker)

// SeekIndex selects a declared secondary index by name; omitted, a Seeker
// scans the primary index.
func SeekIndex(name string) SeekOption { return func(s *Seeker) { s.indexName = name } }

// SeekForward scans in ascending key order (the default).
func SeekForward() SeekOption { return func(s *Seeker) { s.dir = seekForward } }

// SeekBackward scans in descending key order.
func SeekBackward() SeekOption { return func(s *Seeker) { s.dir = seekBackward } }

// SeekFromBytes starts the scan at the first key >= start (ascending) or
// the greatest key <= start (descending), rather than at either end.
func SeekFromBytes(start []byte) SeekOption { return func(s *Seeker) { s.start = start } }

// SeekFromFixed is SeekFromBytes for a fixed-key index's numeric key.
func SeekFromFixed(v uint64) SeekOption {
	return func(s *Seeker) { s.start = fixedKeyBytes(v) }
}

// SeekExcludeStart drops the exact start key itself from the results —
// spec.md §4.8's "exclude value from seek" flag for upper-bounded backward
// scans.
func SeekExcludeStart() SeekOption { return func(s *Seeker) { s.exclude = true } }

// SeekPrefix restricts the scan to keys sharing prefix; the scan stops as
// soon as a key no longer shares it.
func SeekPrefix(prefix []byte) SeekOption { return func(s *Seeker) { s.prefix = prefix } }

// SeekSkip discards the first n matching rows before any are returned.
func SeekSkip(n int) SeekOption { return func(s *Seeker) { s.skip = n } }

// SeekLimit caps the number of rows returned. A Seeker built with SeekOne
// already implies a limit of 1.
func SeekLimit(n int) SeekOption { return func(s *Seeker) { s.limit = n } }

// SeekOne caps the scan at a single result, spec.md §4.8's "seek-one"
// variant.
func SeekOne() SeekOption { return func(s *Seeker) { s.limit = 1 } }

// Seeker scans one of this table's ordered indexes. Build one with
// NewSeeker and options, then call Run.
type Seeker struct {
	t *Table

	indexName string
	dir       seekDirection
	start     []byte
	prefix    []byte
	exclude   bool
	skip      int
	limit     int // -1 means unbounded
}

// NewSeeker builds a Seeker over t, configured by opts.
func (t *Table) NewSeeker(opts ...SeekOption) *Seeker {
	s := &Seeker{t: t, limit: -1}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Seeker) resolveTableName() (name string, variable bool, err error) {
	if s.indexName == "" {
		if s.t.sch.PrimaryKey == nil {
			return "", false, fmt.Errorf("table: no primary key declared")
		}
		return primaryTableName(s.t.name), false, nil
	}
	idx, ok := s.t.findIndex(s.indexName)
	if !ok {
		return "", false, fmt.Errorf("table: no such index %q", s.indexName)
	}
	return indexTableName(s.t.name, idx.Name), idx.Kind == schema.IndexVariableKey, nil
}

// openCursor opens a DupSort cursor for a variable-key index and a plain
// one otherwise. Both satisfy kvtree.Cursor, and a DupSort cursor's plain
// Cursor methods iterate the flat (key, value) ordering across all
// duplicates under a key (as ops.go's delete-many helpers already rely
// on), so Run needs no index-kind branch beyond this.
func (s *Seeker) openCursor(name string, variable bool) (kvtree.Cursor, error) {
	if variable {
		return s.t.kv.CursorDupSort(name)
	}
	return s.t.kv.Cursor(name)
}

// seekStart positions cur at the first row of the scan.
func (s *Seeker) seekStart(cur kvtree.Cursor) (k, v []byte, err error) {
	if s.start == nil {
		if s.dir == seekBackward {
			return cur.Last()
		}
		return cur.First()
	}
	k, v, err = cur.Seek(s.start)
	if err != nil {
		return nil, nil, err
	}
	exact := k != nil && bytesEqual(k, s.start)
	if s.dir == seekForward {
		if exact && s.exclude {
			return cur.Next()
		}
		return k, v, nil
	}
	switch {
	case exact:
		if s.exclude {
			return cur.Prev()
		}
		return k, v, nil
	case k == nil:
		// No key >= start: every key in the tree is < start, so the
		// greatest one overall is the greatest one <= start.
		return cur.Last()
	default:
		// k is the smallest key > start; back up one step.
		return cur.Prev()
	}
}

// Run executes the scan and returns its matching rows, decoded.
func (s *Seeker) Run() ([]SeekResult, error) {
	name, variable, err := s.resolveTableName()
	if err != nil {
		return nil, err
	}
	cur, err := s.openCursor(name, variable)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	k, v, err := s.seekStart(cur)
	if err != nil {
		return nil, err
	}

	var results []SeekResult
	skipped := 0
	for k != nil {
		if s.prefix != nil && !bytesHasPrefix(k, s.prefix) {
			break
		}
		if skipped < s.skip {
			skipped++
		} else {
			id := binary.LittleEndian.Uint64(v)
			r, _, err := s.t.readByID(id)
			if err != nil {
				return nil, err
			}
			results = append(results, SeekResult{ID: id, Key: append([]byte(nil), k...), Row: r})
			if s.limit >= 0 && len(results) >= s.limit {
				break
			}
		}
		if s.dir == seekBackward {
			k, v, err = cur.Prev()
		} else {
			k, v, err = cur.Next()
		}
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// One runs the scan and returns its first result, if any — the seek-one
// variant with an explicit ok flag instead of a possibly-empty slice.
func (s *Seeker) One() (SeekResult, bool, error) {
	s.limit = 1
	res, err := s.Run()
	if err != nil || len(res) == 0 {
		return SeekResult{}, false, err
	}
	return res[0], true, nil
}
