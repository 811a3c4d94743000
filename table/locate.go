package table

import (
	"fmt"

	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/pagestore"
	"github.com/erigontech/tablestore/section"
)

// findSection locates the Section owning id among the active, inactive,
// and candidate section sets (spec.md §3's three tracked sets are the only
// places a live small entry's section can be). Opened sections are cached
// by openSection, so repeated lookups are cheap.
func (t *Table) findSection(id uint64) (*section.Section, error) {
	pn, err := t.activeSectionPage()
	if err != nil {
		return nil, err
	}
	active, err := t.openSection(pn)
	if err != nil {
		return nil, err
	}
	if active.Contains(id) {
		return active, nil
	}

	inactive, err := t.inactiveSections()
	if err != nil {
		return nil, err
	}
	for _, p := range inactive {
		s, err := t.openSection(pagestore.PageNumber(p))
		if err != nil {
			return nil, err
		}
		if s.Contains(id) {
			return s, nil
		}
	}

	candidates, err := t.candidateSections()
	if err != nil {
		return nil, err
	}
	for _, p := range candidates {
		s, err := t.openSection(pagestore.PageNumber(p))
		if err != nil {
			return nil, err
		}
		if s.Contains(id) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("table: id %d not owned by any tracked section", id)
}

// readByID decodes the entry at id, whichever form it is stored in.
// Per spec.md §4.1, the small-entry path goes through section.DirectRead
// directly rather than through a located *Section, since direct_read is a
// static operation needing only (tx, id, pageSize).
func (t *Table) readByID(id uint64) (r *entry.Reader, isOverflow bool, err error) {
	pageSize := t.store.PageSize()
	_, offset := section.SplitID(id, pageSize)
	if offset == 0 {
		payload, compressed, dictHash, err := t.readOverflow(id)
		if err != nil {
			return nil, true, err
		}
		r, err := t.decodeRow(id, payload, compressed, dictHash)
		return r, true, err
	}
	payload, compressed, _, dictHash, err := section.DirectRead(t.pageReader(), id, pageSize)
	if err != nil {
		return nil, false, err
	}
	r, err = t.decodeRow(id, payload, compressed, dictHash)
	return r, false, err
}

// overflowBodySize is the number of bytes an overflow run's body occupies,
// including the 32-byte dictionary-hash prefix a compressed entry carries
// (spec.md §4.3 point 2).
func overflowBodySize(bytesLen int, compressed bool) int {
	if compressed {
		return 32 + bytesLen
	}
	return bytesLen
}
