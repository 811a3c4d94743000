// Package section implements the Raw-Data Section (spec.md §4.1): a slab
// allocator spanning N contiguous pages of a pagestore.Store, packing many
// small entries behind a per-entry size header so any entry's span can be
// recovered from its storage id alone.
package section

import (
	"fmt"

	"github.com/erigontech/tablestore/internal/debugassert"
	"github.com/erigontech/tablestore/pagestore"
)

// ErrFull is returned by TryAllocate when no page in the section has room
// for the requested size, including after scanning freed slots. The caller
// (table.allocateFromAnotherSection, spec.md §4.7) is responsible for
// switching to another section.
var ErrFull = fmt.Errorf("section: full")

// ErrFreed is returned by a read against an id whose entry has been freed.
type ErrFreed struct{ ID uint64 }

func (e *ErrFreed) Error() string { return fmt.Sprintf("section: id %d was freed", e.ID) }

// ErrTooLarge is returned when a payload does not fit the allocation an id
// already reserved (TryWriteDirect never grows an existing allocation).
type ErrTooLarge struct{ Allocated, Requested int }

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("section: payload %d bytes exceeds allocation of %d bytes", e.Requested, e.Allocated)
}

// ErrNotOwner is spec.md §7 error kind 5: an id's page preamble names a
// different owner than expected. IsOwned returns it in every build; under
// the debugassert build tag debugassert.Owner panics on the mismatch first.
type ErrNotOwner struct{ Want, Got uint64 }

func (e *ErrNotOwner) Error() string {
	return fmt.Sprintf("section: owner mismatch: want %d got %d", e.Want, e.Got)
}

// pageReader is the read-only subset of pagestore.Tx / pagestore.RwTx that
// direct-read style operations need. Both transaction types satisfy it, so
// a Section can be read through either a read-only or the write
// transaction.
type pageReader interface {
	ReadPage(pagestore.PageNumber) ([]byte, error)
}

// pageWriter additionally allows copy-on-write page mutation; only
// pagestore.RwTx satisfies it.
type pageWriter interface {
	pageReader
	ModifyPage(pagestore.PageNumber) ([]byte, error)
}

// Observer is invoked when an entry's contents move from one id to
// another. spec.md §9 "Cyclic observer": rather than Section holding a
// back-pointer into its owning table's index maintenance, table.Table
// performs every cross-section relocation itself (spec.md §4.6's
// compact-away path) and calls DataMoved directly — Section's own
// allocator never relocates entries internally, so this interface exists
// purely as the callback shape table.Table's relocation loop uses. raw is
// always the decoded, uncompressed row (the form index key extraction
// reads), regardless of how the entry ends up persisted at newID.
// Returning an error aborts the relocation: spec.md §4.1 "failure to
// reinsert is unrecoverable".
type Observer interface {
	DataMoved(previousID, newID uint64, raw []byte) error
}

type freeSlot struct {
	pageIndex     int
	offset        int
	allocatedSize int
}

// Section is one opened raw-data section: N contiguous pages, a bump
// allocator with a freed-slot free list per page, rebuilt by a single scan
// whenever the section is opened.
type Section struct {
	firstPage pagestore.PageNumber
	numPages  int
	pageSize  int

	ownerHash uint64
	tableType byte
	dictHash  [32]byte
	minRatio  int32

	tails     []int
	freeSlots []freeSlot
	used      int
	capacity  int
}

// Create allocates a fresh section of numPages pages and initializes every
// page's preamble.
func Create(tx *pagestore.RwTx, ownerHash uint64, tableType byte, numPages, pageSize int) (*Section, error) {
	first, err := tx.AllocPages(numPages, pagestore.RawData)
	if err != nil {
		return nil, err
	}
	for i := 0; i < numPages; i++ {
		buf, err := tx.ModifyPage(first + pagestore.PageNumber(i))
		if err != nil {
			return nil, err
		}
		writePreamble(buf, ownerHash, tableType, [32]byte{})
		if i == 0 {
			writePage0Extra(buf, uint32(numPages), 0)
		}
	}
	s := &Section{
		firstPage: first,
		numPages:  numPages,
		pageSize:  pageSize,
		ownerHash: ownerHash,
		tableType: tableType,
	}
	s.tails = make([]int, numPages)
	for i := range s.tails {
		pre := preambleFor(i)
		s.tails[i] = pre
		s.capacity += pageSize - pre
	}
	return s, nil
}

// Open reopens an existing section given its first page, rebuilding the
// allocator's bookkeeping with one scan over every page's entry headers.
func Open(tx pageReader, firstPage pagestore.PageNumber, pageSize int) (*Section, error) {
	page0, err := tx.ReadPage(firstPage)
	if err != nil {
		return nil, err
	}
	ownerHash, tableType, dictHash := readPreamble(page0)
	numPages32, minRatio := readPage0Extra(page0)
	s := &Section{
		firstPage: firstPage,
		numPages:  int(numPages32),
		pageSize:  pageSize,
		ownerHash: ownerHash,
		tableType: tableType,
		dictHash:  dictHash,
		minRatio:  minRatio,
	}
	if err := s.scan(tx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Section) scan(tx pageReader) error {
	s.tails = make([]int, s.numPages)
	s.freeSlots = nil
	s.used = 0
	s.capacity = 0

	for i := 0; i < s.numPages; i++ {
		var buf []byte
		var err error
		if i == 0 {
			buf, err = tx.ReadPage(s.firstPage)
		} else {
			buf, err = tx.ReadPage(s.firstPage + pagestore.PageNumber(i))
		}
		if err != nil {
			return err
		}
		pre := preambleFor(i)
		s.capacity += s.pageSize - pre
		pos := pre
		for pos+entryHeaderSize <= len(buf) {
			allocatedSize, _, flags := readEntryHeader(buf[pos:])
			if allocatedSize == 0 {
				break
			}
			if flags&flagFree != 0 {
				s.freeSlots = append(s.freeSlots, freeSlot{i, pos, int(allocatedSize)})
			} else {
				s.used += int(allocatedSize)
			}
			pos += int(allocatedSize)
		}
		s.tails[i] = pos
	}
	return nil
}

// TryAllocate reserves space for a size-byte payload, reusing a freed slot
// first (first-fit) and falling back to bumping a page's tail. Returns
// ErrFull if no page has room.
func (s *Section) TryAllocate(tx pageWriter, size int) (uint64, error) {
	need := align(entryHeaderSize + size)

	for i, fs := range s.freeSlots {
		if fs.allocatedSize < need {
			continue
		}
		buf, err := tx.ModifyPage(s.firstPage + pagestore.PageNumber(fs.pageIndex))
		if err != nil {
			return 0, err
		}
		writeEntryHeader(buf[fs.offset:], uint32(fs.allocatedSize), uint32(size), 0)
		s.freeSlots = append(s.freeSlots[:i], s.freeSlots[i+1:]...)
		s.used += fs.allocatedSize
		return MakeID(s.firstPage+pagestore.PageNumber(fs.pageIndex), fs.offset, s.pageSize), nil
	}

	for i := 0; i < s.numPages; i++ {
		if s.tails[i]+need > s.pageSize {
			continue
		}
		buf, err := tx.ModifyPage(s.firstPage + pagestore.PageNumber(i))
		if err != nil {
			return 0, err
		}
		writeEntryHeader(buf[s.tails[i]:], uint32(need), uint32(size), 0)
		id := MakeID(s.firstPage+pagestore.PageNumber(i), s.tails[i], s.pageSize)
		s.tails[i] += need
		s.used += need
		return id, nil
	}
	return 0, ErrFull
}

// TryWriteDirect writes payload into the allocation at id. The allocation
// must already exist (from TryAllocate) and be large enough; TryWriteDirect
// never grows an allocation.
func (s *Section) TryWriteDirect(tx pageWriter, id uint64, payload []byte, compressed bool) error {
	pn, offset := SplitID(id, s.pageSize)
	buf, err := tx.ModifyPage(pn)
	if err != nil {
		return err
	}
	allocatedSize, _, flags := readEntryHeader(buf[offset:])
	if avail := int(allocatedSize) - entryHeaderSize; len(payload) > avail {
		return &ErrTooLarge{Allocated: avail, Requested: len(payload)}
	}
	debugassert.NoAlias("section.TryWriteDirect", payload, buf[offset:offset+int(allocatedSize)])

	flags &^= flagFree
	if compressed {
		flags |= flagCompressed
	} else {
		flags &^= flagCompressed
	}
	writeEntryHeader(buf[offset:], allocatedSize, uint32(len(payload)), flags)
	copy(buf[offset+entryHeaderSize:], payload)
	return nil
}

// DirectRead recovers the payload, compression flag, and owning page's
// preamble for id. It needs nothing but tx and id (spec.md §4.1: "a static
// operation"), so it is a package function rather than a Section method —
// any section of the same page format can serve it, including one that has
// since moved on from tracking id at all.
func DirectRead(tx pageReader, id uint64, pageSize int) (payload []byte, compressed bool, ownerHash uint64, dictHash [32]byte, err error) {
	pn, offset := SplitID(id, pageSize)
	buf, err := tx.ReadPage(pn)
	if err != nil {
		return nil, false, 0, [32]byte{}, err
	}
	ownerHash, _, dictHash = readPreamble(buf)
	if offset+entryHeaderSize > len(buf) {
		return nil, false, 0, [32]byte{}, fmt.Errorf("section: id %d offset out of page bounds", id)
	}
	_, usedSize, flags := readEntryHeader(buf[offset:])
	if flags&flagFree != 0 {
		return nil, false, 0, [32]byte{}, &ErrFreed{ID: id}
	}
	payload = buf[offset+entryHeaderSize : offset+entryHeaderSize+int(usedSize)]
	compressed = flags&flagCompressed != 0
	return payload, compressed, ownerHash, dictHash, nil
}

// Free marks id's allocation free and returns the section's density after
// the free (live bytes / capacity), which table.Table uses to decide
// whether the section stays active, becomes a candidate, or is compacted
// away (spec.md §4.6).
func (s *Section) Free(tx pageWriter, id uint64) (float64, error) {
	pn, offset := SplitID(id, s.pageSize)
	buf, err := tx.ModifyPage(pn)
	if err != nil {
		return 0, err
	}
	allocatedSize, _, flags := readEntryHeader(buf[offset:])
	if flags&flagFree != 0 {
		return s.Density(), &ErrFreed{ID: id}
	}
	writeEntryHeader(buf[offset:], allocatedSize, 0, flags|flagFree)
	s.freeSlots = append(s.freeSlots, freeSlot{int(pn - s.firstPage), offset, int(allocatedSize)})
	s.used -= int(allocatedSize)
	return s.Density(), nil
}

// Density returns live-bytes / capacity, in [0,1].
func (s *Section) Density() float64 {
	if s.capacity == 0 {
		return 0
	}
	return float64(s.used) / float64(s.capacity)
}

// Contains reports whether id's page number falls within this section's
// run. It does not check liveness — use DirectRead or GetAllIDs for that.
func (s *Section) Contains(id uint64) bool {
	pn, _ := SplitID(id, s.pageSize)
	return pn >= s.firstPage && pn < s.firstPage+pagestore.PageNumber(s.numPages)
}

// IsOwned checks id's page preamble against want, the caller's own table
// owner hash (spec.md §7 error kind 5), returning *ErrNotOwner on a
// mismatch; debugassert builds panic instead.
func (s *Section) IsOwned(tx pageReader, id uint64, want uint64) error {
	pn, _ := SplitID(id, s.pageSize)
	buf, err := tx.ReadPage(pn)
	if err != nil {
		return err
	}
	ownerHash, _, _ := readPreamble(buf)
	debugassert.Owner(ownerHash, want)
	if ownerHash != want {
		return &ErrNotOwner{Want: want, Got: ownerHash}
	}
	return nil
}

// GetAllIDs returns the id of every live (non-freed) entry in the section.
func (s *Section) GetAllIDs(tx pageReader) ([]uint64, error) {
	var ids []uint64
	for i := 0; i < s.numPages; i++ {
		buf, err := tx.ReadPage(s.firstPage + pagestore.PageNumber(i))
		if err != nil {
			return nil, err
		}
		pos := preambleFor(i)
		for pos+entryHeaderSize <= len(buf) {
			allocatedSize, _, flags := readEntryHeader(buf[pos:])
			if allocatedSize == 0 {
				break
			}
			if flags&flagFree == 0 {
				ids = append(ids, MakeID(s.firstPage+pagestore.PageNumber(i), pos, s.pageSize))
			}
			pos += int(allocatedSize)
		}
	}
	return ids, nil
}

// CurrentCompressionDictionaryHash returns the section's current
// dictionary hash; all-zero means uncompressed.
func (s *Section) CurrentCompressionDictionaryHash() [32]byte { return s.dictHash }

// MinCompressionRatio returns the lowest compression ratio observed for
// any entry written to this section since it became active, used by
// table.Table's dictionary-replacement decision (spec.md §4.3
// "previous_min_ratio").
func (s *Section) MinCompressionRatio() int32 { return s.minRatio }

// SetCompressionRate records ratio as an observation: the section's
// tracked minimum is lowered if ratio is smaller (or this is the first
// observation). Written into page 0's extra header through tx immediately,
// so an Open through the same transaction, or any Open after it commits,
// sees it.
func (s *Section) SetCompressionRate(tx pageWriter, ratio int32) error {
	if s.minRatio == 0 || ratio < s.minRatio {
		s.minRatio = ratio
	}
	buf, err := tx.ModifyPage(s.firstPage)
	if err != nil {
		return err
	}
	writePage0Extra(buf, uint32(s.numPages), s.minRatio)
	return nil
}

// SetDictionary retags every page in the section with a new dictionary
// hash — needed on every page, not just page 0, since DirectRead resolves
// the dictionary from whichever page an id happens to live on.
func (s *Section) SetDictionary(tx pageWriter, hash [32]byte) error {
	for i := 0; i < s.numPages; i++ {
		buf, err := tx.ModifyPage(s.firstPage + pagestore.PageNumber(i))
		if err != nil {
			return err
		}
		writePreamble(buf, s.ownerHash, s.tableType, hash)
	}
	s.dictHash = hash
	return nil
}

// FirstPage returns the section's first page number, the value persisted
// in ActiveSection/InactiveSections/ActiveCandidateSection slots.
func (s *Section) FirstPage() pagestore.PageNumber { return s.firstPage }

// NumPages returns the section's page count.
func (s *Section) NumPages() int { return s.numPages }

// OwnerHash returns the section's owner hash.
func (s *Section) OwnerHash() uint64 { return s.ownerHash }

// MakeID encodes a storage id from a page number and an in-page byte
// offset (spec.md §3: "id encodes page_number * PAGE_SIZE + offset").
func MakeID(pn pagestore.PageNumber, offset, pageSize int) uint64 {
	return uint64(pn)*uint64(pageSize) + uint64(offset)
}

// SplitID decodes a storage id back into its page number and offset.
func SplitID(id uint64, pageSize int) (pagestore.PageNumber, int) {
	return pagestore.PageNumber(id / uint64(pageSize)), int(id % uint64(pageSize))
}
