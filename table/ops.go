// Table's exposed operations: spec.md §4.4 (Insert), §4.5 (Update), §4.6
// (Delete and its compaction trigger), §4.8 (read paths), and the
// delete-many / upsert variants §6 lists.
package table

import (
	"encoding/binary"
	"fmt"

	"github.com/erigontech/tablestore/builder"
	"github.com/erigontech/tablestore/dictionary"
	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/kvtree"
	"github.com/erigontech/tablestore/schema"
	"github.com/erigontech/tablestore/section"
)

// BeforeDeleteFunc runs against an about-to-be-deleted entry before its
// removal is applied, for a delete-many caller that needs to react (e.g.
// cascading a related delete). Returning an error aborts the delete-many
// call with that error.
type BeforeDeleteFunc func(id uint64, r *entry.Reader) error

// ShouldAbortFunc inspects the next candidate for deletion and reports
// whether the delete-many call should stop before removing it.
type ShouldAbortFunc func(id uint64, r *entry.Reader) bool

// Insert builds and stores a new entry, maintaining every index, per
// spec.md §4.4.
func (t *Table) Insert(bld *builder.Builder) (uint64, error) {
	if t.readOnly() {
		return 0, ErrReadOnly
	}
	dictHash, dict, err := t.resolveActiveDictionary()
	if err != nil {
		return 0, err
	}
	res, err := bld.Build(t.codec, dict)
	if err != nil {
		return 0, err
	}

	id, addedOverflowPages, err := t.writeNewEntry(res, dictHash)
	if err != nil {
		return 0, err
	}

	r, err := entry.NewReader(res.Raw)
	if err != nil {
		return 0, err
	}
	if err := t.insertIndexes(id, r); err != nil {
		return 0, err
	}
	return id, t.bumpStats(1, int64(addedOverflowPages))
}

// writeNewEntry routes res to a small-section allocation or an overflow
// run (spec.md §4.4 steps 3-4), retrying against allocate_from_another_
// section's freshly chosen dictionary when the active section refuses the
// allocation (step 3: switching "may change the encoded form and size").
func (t *Table) writeNewEntry(res builder.Result, dictHash [32]byte) (id uint64, addedOverflowPages uint64, err error) {
	if !fitsSmall(len(res.Bytes), t.opt.maxItemSize) {
		return t.writeOverflowEntry(res, dictHash)
	}

	pn, err := t.activeSectionPage()
	if err != nil {
		return 0, 0, err
	}
	active, err := t.openSection(pn)
	if err != nil {
		return 0, 0, err
	}

	id, err = active.TryAllocate(t.pwtx, len(res.Bytes))
	if err != nil {
		active, err = t.allocateFromAnotherSection(active, len(res.Bytes), res.Compressed)
		if err != nil {
			return 0, 0, err
		}
		newHash := active.CurrentCompressionDictionaryHash()
		newDict, err := t.dictHolder.Get(newHash, t.dictionaryLoader())
		if err != nil {
			return 0, 0, err
		}
		res, err = builder.BuildFromRaw(res.Raw, t.codec, newDict)
		if err != nil {
			return 0, 0, err
		}
		dictHash = newHash
		if !fitsSmall(len(res.Bytes), t.opt.maxItemSize) {
			return t.writeOverflowEntry(res, dictHash)
		}
		id, err = active.TryAllocate(t.pwtx, len(res.Bytes))
		if err != nil {
			return 0, 0, ErrAllocationFailed
		}
	}

	if err := active.TryWriteDirect(t.pwtx, id, res.Bytes, res.Compressed); err != nil {
		return 0, 0, err
	}
	if res.Compressed {
		if err := active.SetCompressionRate(t.pwtx, res.Ratio); err != nil {
			return 0, 0, err
		}
	}
	return id, 0, nil
}

func (t *Table) writeOverflowEntry(res builder.Result, dictHash [32]byte) (uint64, uint64, error) {
	id, err := t.writeOverflow(res.Bytes, res.Compressed, dictHash)
	if err != nil {
		return 0, 0, err
	}
	pages := uint64(t.overflowNumPagesForSize(overflowBodySize(len(res.Bytes), res.Compressed)))
	return id, pages, nil
}

// Update rewrites the entry at id, keeping its id when the new form fits
// the existing allocation and falling back to delete-then-insert otherwise
// (spec.md §4.5).
func (t *Table) Update(id uint64, bld *builder.Builder, force bool) (uint64, error) {
	if t.readOnly() {
		return 0, ErrReadOnly
	}
	oldR, isOverflow, err := t.readByID(id)
	if err != nil {
		return 0, err
	}
	t.evictDecompressed(id)

	var fits bool
	if isOverflow {
		fits, err = t.tryUpdateOverflowInPlace(id, oldR, bld, force)
	} else {
		fits, err = t.tryUpdateSmallInPlace(id, oldR, bld, force)
	}
	if err != nil {
		return 0, err
	}
	if fits {
		return id, nil
	}
	return t.updateByDeleteInsert(id, bld)
}

func (t *Table) tryUpdateSmallInPlace(id uint64, oldR *entry.Reader, bld *builder.Builder, force bool) (bool, error) {
	sec, err := t.findSection(id)
	if err != nil {
		return false, err
	}
	dict, err := t.dictionaryFor(sec.CurrentCompressionDictionaryHash())
	if err != nil {
		return false, err
	}
	res, err := bld.Build(t.codec, dict)
	if err != nil {
		return false, err
	}
	if !fitsSmall(len(res.Bytes), t.opt.maxItemSize) {
		return false, nil
	}
	if err := sec.TryWriteDirect(t.pwtx, id, res.Bytes, res.Compressed); err != nil {
		if _, ok := err.(*section.ErrTooLarge); ok {
			return false, nil
		}
		return false, err
	}
	if res.Compressed {
		if err := sec.SetCompressionRate(t.pwtx, res.Ratio); err != nil {
			return false, err
		}
	}
	newR, err := entry.NewReader(res.Raw)
	if err != nil {
		return false, err
	}
	if err := t.diffUpdateIndexes(id, id, oldR, newR, force); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Table) tryUpdateOverflowInPlace(id uint64, oldR *entry.Reader, bld *builder.Builder, force bool) (bool, error) {
	oldNumPages, _, _, dictHash, err := t.readOverflowPages(id)
	if err != nil {
		return false, err
	}
	dict, err := t.dictionaryFor(dictHash)
	if err != nil {
		return false, err
	}
	res, err := bld.Build(t.codec, dict)
	if err != nil {
		return false, err
	}
	newNumPages := t.overflowNumPagesForSize(overflowBodySize(len(res.Bytes), res.Compressed))
	if newNumPages != oldNumPages {
		return false, nil
	}
	if err := t.rewriteOverflowInPlace(id, res.Bytes, res.Compressed, dictHash); err != nil {
		return false, err
	}
	newR, err := entry.NewReader(res.Raw)
	if err != nil {
		return false, err
	}
	if err := t.diffUpdateIndexes(id, id, oldR, newR, force); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Table) updateByDeleteInsert(id uint64, bld *builder.Builder) (uint64, error) {
	if err := t.Delete(id); err != nil {
		return 0, err
	}
	return t.Insert(bld)
}

// dictionaryFor resolves hash through the dictionary holder, but only for
// a compressed schema — an uncompressed table never offers a dictionary to
// the builder, matching resolveActiveDictionary's convention.
func (t *Table) dictionaryFor(hash [32]byte) (*dictionary.Handle, error) {
	if !t.sch.Compressed {
		return nil, nil
	}
	h, err := t.dictHolder.Get(hash, t.dictionaryLoader())
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Set inserts a new row if no entry exists for its primary key, or updates
// the existing one through Update otherwise, which keeps its id only when
// the new form fits in place (spec.md §6 "set(builder) -> inserted?").
func (t *Table) Set(bld *builder.Builder) (inserted bool, err error) {
	if t.readOnly() {
		return false, ErrReadOnly
	}
	if t.sch.PrimaryKey == nil {
		return false, fmt.Errorf("table: Set requires a primary key")
	}
	res, err := bld.Build(t.codec, nil)
	if err != nil {
		return false, err
	}
	r, err := entry.NewReader(res.Raw)
	if err != nil {
		return false, err
	}
	key := t.sch.PrimaryKey.ExtractSlice(r)

	existing, err := getOneOrNil(t.kv, primaryTableName(t.name), key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if _, err := t.Insert(bld); err != nil {
			return false, err
		}
		return true, nil
	}
	id := binary.LittleEndian.Uint64(existing)
	if _, err := t.Update(id, bld, false); err != nil {
		return false, err
	}
	return false, nil
}

// Delete removes the entry at id, maintaining every index, and runs the
// compaction trigger for small entries (spec.md §4.6).
func (t *Table) Delete(id uint64) error {
	if t.readOnly() {
		return ErrReadOnly
	}
	r, isOverflow, err := t.readByID(id)
	if err != nil {
		return err
	}
	if err := t.deleteIndexes(id, r); err != nil {
		return err
	}
	t.evictDecompressed(id)

	if isOverflow {
		numPages, _, _, _, err := t.readOverflowPages(id)
		if err != nil {
			return err
		}
		first, _ := section.SplitID(id, t.store.PageSize())
		if err := t.pwtx.FreePages(first, numPages); err != nil {
			return err
		}
		return t.bumpStats(-1, -int64(numPages))
	}

	sec, err := t.findSection(id)
	if err != nil {
		return err
	}
	activePage, err := t.activeSectionPage()
	if err != nil {
		return err
	}
	wasActive := sec.FirstPage() == activePage

	density, err := sec.Free(t.pwtx, id)
	if err != nil {
		return err
	}
	if err := t.bumpStats(-1, 0); err != nil {
		return err
	}

	// Boundary case (spec.md §8): deleting the last entry of the active
	// section must never trigger compaction — it would relocate into
	// itself. density > 0.5 is the ordinary "still mostly full" case.
	if wasActive || density > 0.5 {
		return nil
	}
	if density > 0.15 {
		candidates, err := t.candidateSections()
		if err != nil {
			return err
		}
		inactive, err := t.inactiveSections()
		if err != nil {
			return err
		}
		if err := t.setInactiveSections(removeValue(inactive, uint64(sec.FirstPage()))); err != nil {
			return err
		}
		return t.setCandidateSections(append(removeValue(candidates, uint64(sec.FirstPage())), uint64(sec.FirstPage())))
	}
	return t.compactAway(sec, t)
}

// DataMoved implements section.Observer for this table's own compact-away
// relocation loop (compaction.go): retarget every index entry from
// previousID to newID and evict the old id's decompression memo.
func (t *Table) DataMoved(previousID, newID uint64, raw []byte) error {
	r, err := entry.NewReader(raw)
	if err != nil {
		return err
	}
	if err := t.diffUpdateIndexes(previousID, newID, r, r, false); err != nil {
		return err
	}
	t.evictDecompressed(previousID)
	return nil
}

func (t *Table) bumpStats(deltaEntries, deltaOverflowPages int64) error {
	st, _, err := t.readStats()
	if err != nil {
		return err
	}
	st.NumEntries = uint64(int64(st.NumEntries) + deltaEntries)
	st.OverflowPageCount = uint64(int64(st.OverflowPageCount) + deltaOverflowPages)
	return t.writeStats(st)
}

// ReadByKey looks up the primary index for key and returns its entry
// (spec.md §4.8 "by primary key").
func (t *Table) ReadByKey(key []byte) (*entry.Reader, error) {
	if t.sch.PrimaryKey == nil {
		return nil, fmt.Errorf("table: schema has no primary key")
	}
	idBytes, err := getOneOrNil(t.kv, primaryTableName(t.name), key)
	if err != nil {
		return nil, err
	}
	if idBytes == nil {
		return nil, kvtree.ErrKeyNotFound
	}
	r, _, err := t.readByID(binary.LittleEndian.Uint64(idBytes))
	return r, err
}

// ReadByFixedIndex looks up a declared fixed-key secondary index (spec.md
// §4.8 "by fixed-size index").
func (t *Table) ReadByFixedIndex(indexName string, value uint64) (*entry.Reader, error) {
	idx, ok := t.findIndex(indexName)
	if !ok || idx.Kind != schema.IndexFixedKey {
		return nil, fmt.Errorf("table: %q is not a fixed-key index", indexName)
	}
	idBytes, err := getOneOrNil(t.kv, indexTableName(t.name, idx.Name), fixedKeyBytes(value))
	if err != nil {
		return nil, err
	}
	if idBytes == nil {
		return nil, kvtree.ErrKeyNotFound
	}
	r, _, err := t.readByID(binary.LittleEndian.Uint64(idBytes))
	return r, err
}

// DeleteByKey deletes the entry addressed by the primary key, if any.
func (t *Table) DeleteByKey(key []byte) (bool, error) {
	if t.readOnly() {
		return false, ErrReadOnly
	}
	idBytes, err := getOneOrNil(t.kv, primaryTableName(t.name), key)
	if err != nil {
		return false, err
	}
	if idBytes == nil {
		return false, nil
	}
	if err := t.Delete(binary.LittleEndian.Uint64(idBytes)); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByIndex deletes the entry addressed by a fixed-key secondary
// index's value, if any.
func (t *Table) DeleteByIndex(indexName string, value uint64) (bool, error) {
	if t.readOnly() {
		return false, ErrReadOnly
	}
	idx, ok := t.findIndex(indexName)
	if !ok || idx.Kind != schema.IndexFixedKey {
		return false, fmt.Errorf("table: %q is not a fixed-key index", indexName)
	}
	idBytes, err := getOneOrNil(t.kv, indexTableName(t.name, idx.Name), fixedKeyBytes(value))
	if err != nil {
		return false, err
	}
	if idBytes == nil {
		return false, nil
	}
	if err := t.Delete(binary.LittleEndian.Uint64(idBytes)); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByPrimaryPrefix deletes every entry whose primary key starts with
// prefix, re-seeking the tree after each delete (spec.md §9 "Iteration vs
// mutation": a delete can shift tree state arbitrarily, so the iterator
// must never be hoisted outside the mutation). shouldAbort is consulted
// before each delete and stops the scan without deleting that entry;
// beforeDelete runs immediately before the delete is applied.
func (t *Table) DeleteByPrimaryPrefix(prefix []byte, beforeDelete BeforeDeleteFunc, shouldAbort ShouldAbortFunc) (bool, error) {
	if t.readOnly() {
		return false, ErrReadOnly
	}
	name := primaryTableName(t.name)
	deletedAny := false
	for {
		cur, err := t.kv.Cursor(name)
		if err != nil {
			return deletedAny, err
		}
		k, v, err := cur.Seek(prefix)
		cur.Close()
		if err != nil {
			return deletedAny, err
		}
		if k == nil || !bytesHasPrefix(k, prefix) {
			return deletedAny, nil
		}
		id := binary.LittleEndian.Uint64(v)
		r, _, err := t.readByID(id)
		if err != nil {
			return deletedAny, err
		}
		if shouldAbort != nil && shouldAbort(id, r) {
			return deletedAny, nil
		}
		if beforeDelete != nil {
			if err := beforeDelete(id, r); err != nil {
				return deletedAny, err
			}
		}
		if err := t.Delete(id); err != nil {
			return deletedAny, err
		}
		deletedAny = true
	}
}

// DeleteForwardFrom deletes entries from a variable-key secondary index in
// forward key order starting at value, up to limit deletions (limit <= 0
// means unbounded). startsWith restricts the scan to keys sharing value as
// a prefix.
func (t *Table) DeleteForwardFrom(indexName string, value []byte, startsWith bool, limit int, beforeDelete BeforeDeleteFunc, shouldAbort ShouldAbortFunc) (int, error) {
	if t.readOnly() {
		return 0, ErrReadOnly
	}
	idx, ok := t.findIndex(indexName)
	if !ok || idx.Kind != schema.IndexVariableKey {
		return 0, fmt.Errorf("table: %q is not a variable-key index", indexName)
	}
	name := indexTableName(t.name, idx.Name)
	deleted := 0
	for limit <= 0 || deleted < limit {
		cur, err := t.kv.CursorDupSort(name)
		if err != nil {
			return deleted, err
		}
		k, v, err := cur.Seek(value)
		cur.Close()
		if err != nil {
			return deleted, err
		}
		if k == nil {
			break
		}
		if startsWith && !bytesHasPrefix(k, value) {
			break
		}
		id := binary.LittleEndian.Uint64(v)
		r, _, err := t.readByID(id)
		if err != nil {
			return deleted, err
		}
		if shouldAbort != nil && shouldAbort(id, r) {
			break
		}
		if beforeDelete != nil {
			if err := beforeDelete(id, r); err != nil {
				return deleted, err
			}
		}
		if err := t.Delete(id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// DeleteBackwardFrom deletes entries from a fixed-key secondary index in
// descending key order starting at value (inclusive), up to limit
// deletions (limit <= 0 means unbounded).
func (t *Table) DeleteBackwardFrom(indexName string, value uint64, limit int) (int, error) {
	if t.readOnly() {
		return 0, ErrReadOnly
	}
	idx, ok := t.findIndex(indexName)
	if !ok || idx.Kind != schema.IndexFixedKey {
		return 0, fmt.Errorf("table: %q is not a fixed-key index", indexName)
	}
	name := indexTableName(t.name, idx.Name)
	deleted := 0
	for limit <= 0 || deleted < limit {
		seekKey := fixedKeyBytes(value)
		cur, err := t.kv.Cursor(name)
		if err != nil {
			return deleted, err
		}
		k, v, err := cur.Seek(seekKey)
		if err != nil {
			cur.Close()
			return deleted, err
		}
		var targetKey, targetVal []byte
		switch {
		case k != nil && bytesEqual(k, seekKey):
			targetKey, targetVal = k, v
		case k == nil:
			targetKey, targetVal, err = cur.Last()
		default:
			targetKey, targetVal, err = cur.Prev()
		}
		cur.Close()
		if err != nil {
			return deleted, err
		}
		if targetKey == nil {
			break
		}
		id := binary.LittleEndian.Uint64(targetVal)
		if err := t.Delete(id); err != nil {
			return deleted, err
		}
		deleted++

		value = binary.LittleEndian.Uint64(targetKey)
		if value == 0 {
			break
		}
		value--
	}
	return deleted, nil
}

func bytesHasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	return bytesEqual(k[:len(prefix)], prefix)
}
