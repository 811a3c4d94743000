package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tablestore/builder"
	"github.com/erigontech/tablestore/codec"
	"github.com/erigontech/tablestore/dictionary"
	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/kvtree/memkv"
	"github.com/erigontech/tablestore/pagestore"
	"github.com/erigontech/tablestore/schema"
)

// testRig bundles everything one Table instance needs, so each test opens
// a fresh store/kv pair rather than sharing state across tests.
type testRig struct {
	store  *pagestore.Store
	pwtx   *pagestore.RwTx
	kv     *memkv.Store
	kvw    *memkv.RwTx
	c      *codec.Codec
	holder *dictionary.Holder
	sch    *schema.Schema
	tbl    *Table
}

func newRig(t *testing.T, sch *schema.Schema, opts ...Option) *testRig {
	t.Helper()
	store, err := pagestore.Open("", pagestore.WithPageSize(512))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pwtx := store.BeginRw()
	kv := memkv.NewStore()
	kvw := memkv.NewRwTx(kv)

	c, err := codec.New()
	require.NoError(t, err)
	t.Cleanup(c.Close)

	holder := dictionary.NewHolder(64)

	tbl, err := OpenOrCreate(store, pwtx, kvw, "widgets", 0xf00d, sch, c, holder, opts...)
	require.NoError(t, err)

	return &testRig{store: store, pwtx: pwtx, kv: kv, kvw: kvw, c: c, holder: holder, sch: sch, tbl: tbl}
}

// simpleSchema: column 0 is the primary key (bytes), column 1 is a fixed
// secondary index value, column 2 is a variable secondary index value.
func simpleSchema(compressed bool) *schema.Schema {
	return &schema.Schema{
		TableType:  1,
		Compressed: compressed,
		NumColumns: 3,
		PrimaryKey: schema.ByColumnRange{Start: 0, Count: 1},
		Indexes: []schema.Index{
			{Name: "by_value", Kind: schema.IndexFixedKey, FixedExtractor: schema.ByColumnValue{Column: 1}},
			{Name: "by_tag", Kind: schema.IndexVariableKey, Extractor: schema.ByColumnRange{Start: 2, Count: 1}, AllowDuplicate: true},
		},
	}
}

func buildRow(key string, value uint64, tag string) *builder.Builder {
	return builder.New().
		Add(entry.Bytes([]byte(key))).
		Add(entry.Uint64(value)).
		Add(entry.Bytes([]byte(tag)))
}

func TestInsertAndReadByKey(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	id, err := rig.tbl.Insert(buildRow("alice", 7, "red"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	r, err := rig.tbl.ReadByKey([]byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), r.Column(0))
	assert.Equal(t, uint64(7), r.ColumnUint64(1))
}

func TestInsertDuplicatePrimaryKeyFails(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	_, err := rig.tbl.Insert(buildRow("alice", 7, "red"))
	require.NoError(t, err)

	_, err = rig.tbl.Insert(buildRow("alice", 8, "blue"))
	require.Error(t, err)
	var dup *ErrDuplicateKey
	assert.ErrorAs(t, err, &dup)
}

func TestReadByFixedIndex(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	_, err := rig.tbl.Insert(buildRow("bob", 42, "green"))
	require.NoError(t, err)

	r, err := rig.tbl.ReadByFixedIndex("by_value", 42)
	require.NoError(t, err)
	assert.Equal(t, []byte("bob"), r.Column(0))
}

func TestUpdateInPlaceSameSize(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	id, err := rig.tbl.Insert(buildRow("carl", 1, "red"))
	require.NoError(t, err)

	newID, err := rig.tbl.Update(id, buildRow("carl", 2, "red"), false)
	require.NoError(t, err)
	assert.Equal(t, id, newID, "same-size update keeps the id")

	r, err := rig.tbl.ReadByFixedIndex("by_value", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("carl"), r.Column(0))

	_, err = rig.tbl.ReadByFixedIndex("by_value", 1)
	assert.Error(t, err, "stale fixed-index entry must be gone")
}

func TestUpdateGrowsAcrossClassIntoOverflow(t *testing.T) {
	rig := newRig(t, simpleSchema(false), WithMaxItemSize(64))
	id, err := rig.tbl.Insert(buildRow("dana", 1, "red"))
	require.NoError(t, err)

	bigTag := make([]byte, 1024)
	for i := range bigTag {
		bigTag[i] = byte(i)
	}
	newID, err := rig.tbl.Update(id, buildRow("dana", 1, string(bigTag)), false)
	require.NoError(t, err)

	r, err := rig.tbl.ReadByKey([]byte("dana"))
	require.NoError(t, err)
	assert.Equal(t, bigTag, r.Column(2))
	_ = newID
}

func TestDeleteRemovesEveryIndex(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	id, err := rig.tbl.Insert(buildRow("erin", 5, "blue"))
	require.NoError(t, err)

	require.NoError(t, rig.tbl.Delete(id))

	_, err = rig.tbl.ReadByKey([]byte("erin"))
	assert.Error(t, err)
	_, err = rig.tbl.ReadByFixedIndex("by_value", 5)
	assert.Error(t, err)
}

func TestSetInsertsThenUpdates(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	inserted, err := rig.tbl.Set(buildRow("frank", 1, "red"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = rig.tbl.Set(buildRow("frank", 2, "red"))
	require.NoError(t, err)
	assert.False(t, inserted)

	r, err := rig.tbl.ReadByKey([]byte("frank"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.ColumnUint64(1))
}

func TestDeleteByIndexAndByKey(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	_, err := rig.tbl.Insert(buildRow("gail", 9, "red"))
	require.NoError(t, err)

	ok, err := rig.tbl.DeleteByIndex("by_value", 9)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rig.tbl.DeleteByKey([]byte("gail"))
	require.NoError(t, err)
	assert.False(t, ok, "already deleted")
}

func TestDeleteByPrimaryPrefix(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	for _, k := range []string{"cat1", "cat2", "dog1"} {
		_, err := rig.tbl.Insert(buildRow(k, uint64(len(k)), "x"))
		require.NoError(t, err)
	}

	deletedAny, err := rig.tbl.DeleteByPrimaryPrefix([]byte("cat"), nil, nil)
	require.NoError(t, err)
	assert.True(t, deletedAny)

	_, err = rig.tbl.ReadByKey([]byte("dog1"))
	assert.NoError(t, err)
	_, err = rig.tbl.ReadByKey([]byte("cat1"))
	assert.Error(t, err)
	_, err = rig.tbl.ReadByKey([]byte("cat2"))
	assert.Error(t, err)
}

func TestGetReportCountsEntriesAndIndexes(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	for i := 0; i < 4; i++ {
		_, err := rig.tbl.Insert(buildRow(fmt.Sprintf("k%d", i), uint64(i), "tag"))
		require.NoError(t, err)
	}

	rep, err := rig.tbl.GetReport(false)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rep.NumEntries)
	require.Len(t, rep.Indexes, 3) // primary + by_value + by_tag
	for _, ir := range rep.Indexes {
		assert.Equal(t, uint64(4), ir.EntryCount)
	}
	assert.Nil(t, rep.Sections, "section detail only populated on request")

	rep, err = rig.tbl.GetReport(true)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Sections)
}

func TestSeekerForwardOverPrimary(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	for _, k := range []string{"a", "b", "c", "d"} {
		_, err := rig.tbl.Insert(buildRow(k, 1, "x"))
		require.NoError(t, err)
	}

	res, err := rig.tbl.NewSeeker().Run()
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, []byte("a"), res[0].Key)
	assert.Equal(t, []byte("d"), res[3].Key)
}

func TestSeekerBackwardFromStart(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	for _, k := range []string{"a", "b", "c", "d"} {
		_, err := rig.tbl.Insert(buildRow(k, 1, "x"))
		require.NoError(t, err)
	}

	res, err := rig.tbl.NewSeeker(SeekBackward(), SeekFromBytes([]byte("c"))).Run()
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []byte("c"), res[0].Key)
	assert.Equal(t, []byte("a"), res[2].Key)
}

func TestSeekerExcludeStart(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	for _, k := range []string{"a", "b", "c"} {
		_, err := rig.tbl.Insert(buildRow(k, 1, "x"))
		require.NoError(t, err)
	}

	res, err := rig.tbl.NewSeeker(SeekBackward(), SeekFromBytes([]byte("b")), SeekExcludeStart()).Run()
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, []byte("a"), res[0].Key)
}

func TestSeekerLimitAndSkip(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	for _, k := range []string{"a", "b", "c", "d"} {
		_, err := rig.tbl.Insert(buildRow(k, 1, "x"))
		require.NoError(t, err)
	}

	res, err := rig.tbl.NewSeeker(SeekSkip(1), SeekLimit(2)).Run()
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []byte("b"), res[0].Key)
	assert.Equal(t, []byte("c"), res[1].Key)
}

func TestSeekOneOverVariableIndex(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	_, err := rig.tbl.Insert(buildRow("x1", 1, "shared"))
	require.NoError(t, err)
	_, err = rig.tbl.Insert(buildRow("x2", 2, "shared"))
	require.NoError(t, err)

	res, ok, err := rig.tbl.NewSeeker(SeekIndex("by_tag"), SeekFromBytes([]byte("shared"))).One()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("shared"), res.Key)
}

func TestCompressedSchemaRoundTrip(t *testing.T) {
	rig := newRig(t, simpleSchema(true))
	bigTag := make([]byte, 2000)
	for i := range bigTag {
		bigTag[i] = byte(i % 7)
	}
	id, err := rig.tbl.Insert(buildRow("zed", 1, string(bigTag)))
	require.NoError(t, err)

	r, err := rig.tbl.ReadByKey([]byte("zed"))
	require.NoError(t, err)
	assert.Equal(t, bigTag, r.Column(2))
	_ = id
}

func TestReadOnlyTableRejectsMutation(t *testing.T) {
	rig := newRig(t, simpleSchema(false))
	_, err := rig.tbl.Insert(buildRow("p", 1, "x"))
	require.NoError(t, err)
	require.NoError(t, rig.pwtx.Commit())

	rtx := rig.store.Begin()
	ro, err := OpenReadOnly(rig.store, rtx, memkv.NewTx(rig.kv), "widgets", 0xf00d, rig.sch, rig.c, rig.holder)
	require.NoError(t, err)

	_, err = ro.Insert(buildRow("q", 2, "x"))
	assert.ErrorIs(t, err, ErrReadOnly)

	r, err := ro.ReadByKey([]byte("p"))
	require.NoError(t, err)
	assert.Equal(t, []byte("p"), r.Column(0))
}

// primaryOnlySchema has no secondary indexes, so a section's density is
// driven purely by primary-key inserts/deletes.
func primaryOnlySchema() *schema.Schema {
	return &schema.Schema{
		TableType:  2,
		NumColumns: 1,
		PrimaryKey: schema.ByColumnRange{Start: 0, Count: 1},
	}
}

func buildKeyOnlyRow(key string) *builder.Builder {
	return builder.New().Add(entry.Bytes([]byte(key)))
}

// TestDeleteCompactsAwaySparseInactiveSection exercises end-to-end scenario
// 4: filling a section until it is pushed out of the active slot, then
// deleting most of its entries so its density drops below 0.15. The doomed
// section must be freed and every surviving id must remain reachable by
// primary key.
func TestDeleteCompactsAwaySparseInactiveSection(t *testing.T) {
	rig := newRig(t, primaryOnlySchema(), WithInitialSectionPages(1))

	firstSectionPage, err := rig.tbl.activeSectionPage()
	require.NoError(t, err)

	var ids []uint64
	var keys []string
	for i := 0; ; i++ {
		key := fmt.Sprintf("k%04d", i)
		id, err := rig.tbl.Insert(buildKeyOnlyRow(key))
		require.NoError(t, err)
		ids = append(ids, id)
		keys = append(keys, key)

		cur, err := rig.tbl.activeSectionPage()
		require.NoError(t, err)
		if cur != firstSectionPage {
			break // active section switched away from the first one
		}
		require.Less(t, i, 10000, "section never filled")
	}

	// Delete every entry from the first section except the last one
	// inserted into it, driving its density below the compaction floor.
	// Deletion goes by key, not by the id captured at insert time: once
	// compaction relocates the section's survivors mid-loop, their ids
	// change but their primary-key lookup does not.
	liveKey := keys[len(keys)-2]
	for i := 0; i < len(keys)-2; i++ {
		ok, err := rig.tbl.DeleteByKey([]byte(keys[i]))
		require.NoError(t, err)
		require.True(t, ok)
	}

	inactive, err := rig.tbl.inactiveSections()
	require.NoError(t, err)
	candidates, err := rig.tbl.candidateSections()
	require.NoError(t, err)
	assert.NotContains(t, inactive, uint64(firstSectionPage))
	assert.NotContains(t, candidates, uint64(firstSectionPage))

	r, err := rig.tbl.ReadByKey([]byte(liveKey))
	require.NoError(t, err)
	assert.Equal(t, []byte(liveKey), r.Column(0))
}

// TestSecondaryIndexDuplicateForwardSeek exercises end-to-end scenario 6: a
// variable secondary index shared by two rows must yield both in id order
// on a forward seek, and deleting one must leave only the other.
func TestSecondaryIndexDuplicateForwardSeek(t *testing.T) {
	rig := newRig(t, simpleSchema(false))

	idA, err := rig.tbl.Insert(buildRow("a", 1, "X"))
	require.NoError(t, err)
	idB, err := rig.tbl.Insert(buildRow("b", 2, "X"))
	require.NoError(t, err)

	res, err := rig.tbl.NewSeeker(
		SeekIndex("by_tag"),
		SeekForward(),
		SeekFromBytes([]byte("X")),
		SeekPrefix([]byte("X")),
	).Run()
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, idA, res[0].ID)
	assert.Equal(t, idB, res[1].ID)

	ok, err := rig.tbl.DeleteByKey([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	res, err = rig.tbl.NewSeeker(
		SeekIndex("by_tag"),
		SeekForward(),
		SeekFromBytes([]byte("X")),
		SeekPrefix([]byte("X")),
	).Run()
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, idB, res[0].ID)
}
