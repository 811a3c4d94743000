// Index maintenance: spec.md §4.9. Every declared index is kept in lock
// step with the entry heap on insert/update/delete, including the
// relocation path compaction drives (spec.md §4.6).
package table

import (
	"encoding/binary"

	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/schema"
)

func idBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, id)
	return b
}

func fixedKeyBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// insertIndexes adds id to the primary index and every declared secondary
// index, extracting each key from r.
func (t *Table) insertIndexes(id uint64, r *entry.Reader) error {
	if t.sch.PrimaryKey != nil {
		key := t.sch.PrimaryKey.ExtractSlice(r)
		existing, err := getOneOrNil(t.kvw, primaryTableName(t.name), key)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ErrDuplicateKey{Index: "primary", Key: key}
		}
		if err := t.kvw.Put(primaryTableName(t.name), key, idBytes(id)); err != nil {
			return err
		}
	}
	for _, idx := range t.sch.Indexes {
		if err := t.insertOneIndex(idx, id, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) insertOneIndex(idx schema.Index, id uint64, r *entry.Reader) error {
	name := indexTableName(t.name, idx.Name)
	switch idx.Kind {
	case schema.IndexFixedKey:
		key := fixedKeyBytes(idx.FixedExtractor.ExtractFixed(r))
		existing, err := getOneOrNil(t.kvw, name, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ErrDuplicateKey{Index: idx.Name, Key: key}
		}
		return t.kvw.Put(name, key, idBytes(id))
	case schema.IndexVariableKey:
		key := idx.Extractor.ExtractSlice(r)
		cur, err := t.kvw.RwCursorDupSort(name)
		if err != nil {
			return err
		}
		defer cur.Close()
		return cur.PutNoDupData(key, idBytes(id))
	}
	return nil
}

// deleteIndexes removes id from the primary index and every declared
// secondary index. A missing index entry is spec.md §7 error kind 4:
// unrecoverable corruption.
func (t *Table) deleteIndexes(id uint64, r *entry.Reader) error {
	if t.sch.PrimaryKey != nil {
		key := t.sch.PrimaryKey.ExtractSlice(r)
		existing, err := getOneOrNil(t.kvw, primaryTableName(t.name), key)
		if err != nil {
			return err
		}
		if existing == nil {
			return errCorrupt("primary index missing key for id %d on delete", id)
		}
		if err := t.kvw.Delete(primaryTableName(t.name), key); err != nil {
			return err
		}
	}
	for _, idx := range t.sch.Indexes {
		if err := t.deleteOneIndex(idx, id, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) deleteOneIndex(idx schema.Index, id uint64, r *entry.Reader) error {
	name := indexTableName(t.name, idx.Name)
	switch idx.Kind {
	case schema.IndexFixedKey:
		key := fixedKeyBytes(idx.FixedExtractor.ExtractFixed(r))
		existing, err := getOneOrNil(t.kvw, name, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return errCorrupt("fixed index %q missing key for id %d on delete", idx.Name, id)
		}
		return t.kvw.Delete(name, key)
	case schema.IndexVariableKey:
		key := idx.Extractor.ExtractSlice(r)
		cur, err := t.kvw.RwCursorDupSort(name)
		if err != nil {
			return err
		}
		defer cur.Close()
		v, err := cur.SeekBothExact(key, idBytes(id))
		if err != nil {
			return err
		}
		if v == nil {
			return errCorrupt("variable index %q missing (key,id=%d) on delete", idx.Name, id)
		}
		return cur.DeleteExact(key, idBytes(id))
	}
	return nil
}

// diffUpdateIndexes compares old and new extracted slices per index,
// rewriting only those that changed (spec.md §4.9 "diff mode"), unless
// force is set, matching spec.md §4.5's force_update.
func (t *Table) diffUpdateIndexes(oldID, newID uint64, oldR, newR *entry.Reader, force bool) error {
	if t.sch.PrimaryKey != nil {
		oldKey := t.sch.PrimaryKey.ExtractSlice(oldR)
		newKey := t.sch.PrimaryKey.ExtractSlice(newR)
		if force || !bytesEqual(oldKey, newKey) || oldID != newID {
			if err := t.kvw.Delete(primaryTableName(t.name), oldKey); err != nil {
				return err
			}
			if err := t.kvw.Put(primaryTableName(t.name), newKey, idBytes(newID)); err != nil {
				return err
			}
		}
	}
	for _, idx := range t.sch.Indexes {
		if err := t.diffUpdateOneIndex(idx, oldID, newID, oldR, newR, force); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) diffUpdateOneIndex(idx schema.Index, oldID, newID uint64, oldR, newR *entry.Reader, force bool) error {
	name := indexTableName(t.name, idx.Name)
	switch idx.Kind {
	case schema.IndexFixedKey:
		oldKey := fixedKeyBytes(idx.FixedExtractor.ExtractFixed(oldR))
		newKey := fixedKeyBytes(idx.FixedExtractor.ExtractFixed(newR))
		if !force && bytesEqual(oldKey, newKey) && oldID == newID {
			return nil
		}
		if err := t.kvw.Delete(name, oldKey); err != nil {
			return err
		}
		existing, err := getOneOrNil(t.kvw, name, newKey)
		if err != nil {
			return err
		}
		if existing != nil && !bytesEqual(oldKey, newKey) {
			return &ErrDuplicateKey{Index: idx.Name, Key: newKey}
		}
		return t.kvw.Put(name, newKey, idBytes(newID))
	case schema.IndexVariableKey:
		oldKey := idx.Extractor.ExtractSlice(oldR)
		newKey := idx.Extractor.ExtractSlice(newR)
		if !force && bytesEqual(oldKey, newKey) && oldID == newID {
			return nil
		}
		cur, err := t.kvw.RwCursorDupSort(name)
		if err != nil {
			return err
		}
		defer cur.Close()
		if err := cur.DeleteExact(oldKey, idBytes(oldID)); err != nil {
			return err
		}
		return cur.PutNoDupData(newKey, idBytes(newID))
	}
	return nil
}

// findIndex looks up a declared secondary index by name.
func (t *Table) findIndex(name string) (schema.Index, bool) {
	for _, idx := range t.sch.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return schema.Index{}, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
