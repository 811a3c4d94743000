// Overflow runs: spec.md §3 "a sequence of ceil(size / PAGE_SIZE) pages
// flagged Overflow | RawData (and Compressed when applicable)".
package table

import (
	"fmt"

	"github.com/erigontech/tablestore/internal/mathutil"
	"github.com/erigontech/tablestore/pagestore"
	"github.com/erigontech/tablestore/section"
)

// writeOverflow allocates and writes a large entry. For a compressed
// payload, dictHash is prepended (spec.md §4.3 point 2: "for large
// (overflow) compressed entries, the first 32 bytes of payload are the
// dictionary hash followed by the compressed stream").
func (t *Table) writeOverflow(payload []byte, compressed bool, dictHash [32]byte) (uint64, error) {
	body := payload
	if compressed {
		body = make([]byte, 32+len(payload))
		copy(body, dictHash[:])
		copy(body[32:], payload)
	}

	pageSize := t.store.PageSize()
	numPages := mathutil.CeilDiv(overflowHeaderSize+len(body), pageSize)
	flags := pagestore.Overflow | pagestore.RawData
	if compressed {
		flags |= pagestore.Compressed
	}
	first, err := t.pwtx.AllocPages(numPages, flags)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := 0; i < numPages; i++ {
		buf, err := t.pwtx.ModifyPage(first + pagestore.PageNumber(i))
		if err != nil {
			return 0, err
		}
		start := 0
		if i == 0 {
			writeOverflowHeader(buf, t.ownerHash, byte(t.sch.TableType), compressed, uint32(len(body)))
			start = overflowHeaderSize
		}
		n := copy(buf[start:], body[written:])
		written += n
	}

	return section.MakeID(first, 0, pageSize), nil
}

// readOverflow recovers a large entry's payload and whether it is
// compressed, reading across however many pages its header claims.
func (t *Table) readOverflow(id uint64) (payload []byte, compressed bool, dictHash [32]byte, err error) {
	_, payload, compressed, dictHash, err = t.readOverflowPages(id)
	return payload, compressed, dictHash, err
}

// readOverflowPages is readOverflow plus the page count of the run, which
// Delete and Update need to free or reuse the run.
func (t *Table) readOverflowPages(id uint64) (numPages int, payload []byte, compressed bool, dictHash [32]byte, err error) {
	pageSize := t.store.PageSize()
	first, offset := section.SplitID(id, pageSize)
	if offset != 0 {
		return 0, nil, false, [32]byte{}, fmt.Errorf("table: id %d is not an overflow run (offset %d != 0)", id, offset)
	}
	page0, err := t.pageReader().ReadPage(first)
	if err != nil {
		return 0, nil, false, [32]byte{}, err
	}
	_, _, compressed, size := readOverflowHeader(page0)
	numPages = mathutil.CeilDiv(overflowHeaderSize+int(size), pageSize)

	body := make([]byte, size)
	read := 0
	for i := 0; i < numPages; i++ {
		var buf []byte
		if i == 0 {
			buf = page0
		} else {
			buf, err = t.pageReader().ReadPage(first + pagestore.PageNumber(i))
			if err != nil {
				return 0, nil, false, [32]byte{}, err
			}
		}
		start := 0
		if i == 0 {
			start = overflowHeaderSize
		}
		n := copy(body[read:], buf[start:])
		read += n
	}

	if !compressed {
		return numPages, body, false, [32]byte{}, nil
	}
	copy(dictHash[:], body[:32])
	return numPages, body[32:], true, dictHash, nil
}

// overflowNumPagesForSize computes how many pages a payload of bodySize
// bytes (already including the 32-byte dictionary-hash prefix when
// compressed) occupies as an overflow run — used by Update to decide
// whether a replacement still fits the existing run in place (spec.md
// §4.5 point 2: "overflow_pages_old == overflow_pages_new").
func (t *Table) overflowNumPagesForSize(bodySize int) int {
	return mathutil.CeilDiv(overflowHeaderSize+bodySize, t.store.PageSize())
}

// rewriteOverflowInPlace overwrites an existing overflow run whose page
// count has not changed.
func (t *Table) rewriteOverflowInPlace(id uint64, payload []byte, compressed bool, dictHash [32]byte) error {
	body := payload
	if compressed {
		body = make([]byte, 32+len(payload))
		copy(body, dictHash[:])
		copy(body[32:], payload)
	}
	pageSize := t.store.PageSize()
	first, _ := section.SplitID(id, pageSize)
	numPages := t.overflowNumPagesForSize(len(body))

	written := 0
	for i := 0; i < numPages; i++ {
		buf, err := t.pwtx.ModifyPage(first + pagestore.PageNumber(i))
		if err != nil {
			return err
		}
		start := 0
		if i == 0 {
			writeOverflowHeader(buf, t.ownerHash, byte(t.sch.TableType), compressed, uint32(len(body)))
			start = overflowHeaderSize
		}
		n := copy(buf[start:], body[written:])
		written += n
	}
	return nil
}
