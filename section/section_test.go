package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tablestore/pagestore"
)

func newTestStore(t *testing.T) *pagestore.Store {
	t.Helper()
	s, err := pagestore.Open("", pagestore.WithPageSize(512))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAllocateWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()

	sec, err := Create(tx, 0xabc, 7, 2, store.PageSize())
	require.NoError(t, err)

	payload := []byte("hello, section")
	id, err := sec.TryAllocate(tx, len(payload))
	require.NoError(t, err)
	require.NoError(t, sec.TryWriteDirect(tx, id, payload, false))
	require.NoError(t, tx.Commit())

	rtx := store.Begin()
	got, compressed, ownerHash, _, err := DirectRead(rtx, id, store.PageSize())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.False(t, compressed)
	assert.Equal(t, uint64(0xabc), ownerHash)
}

func TestTryWriteDirectRejectsOversizedPayload(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 1, 1, 2, store.PageSize())
	require.NoError(t, err)

	id, err := sec.TryAllocate(tx, 10)
	require.NoError(t, err)
	err = sec.TryWriteDirect(tx, id, make([]byte, 999), false)
	require.Error(t, err)
	var tooLarge *ErrTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}

func TestTryAllocateReturnsErrFullWhenExhausted(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 1, 1, 1, store.PageSize())
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 1000; i++ {
		_, lastErr = sec.TryAllocate(tx, 32)
		if lastErr != nil {
			break
		}
	}
	assert.ErrorIs(t, lastErr, ErrFull)
}

func TestFreeThenReuseSlot(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 1, 1, 2, store.PageSize())
	require.NoError(t, err)

	id1, err := sec.TryAllocate(tx, 16)
	require.NoError(t, err)
	require.NoError(t, sec.TryWriteDirect(tx, id1, make([]byte, 16), false))

	density, err := sec.Free(tx, id1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), density)

	// A read after free reports ErrFreed.
	_, _, _, _, err = DirectRead(tx, id1, store.PageSize())
	var freed *ErrFreed
	assert.ErrorAs(t, err, &freed)

	// Freed slot reused by the next allocation of equal or smaller size.
	id2, err := sec.TryAllocate(tx, 16)
	require.NoError(t, err)
	require.NoError(t, sec.TryWriteDirect(tx, id2, []byte("reused!!!!!!!!!!"), false))
	require.NoError(t, tx.Commit())

	payload, _, _, _, err := DirectRead(store.Begin(), id2, store.PageSize())
	require.NoError(t, err)
	assert.Equal(t, []byte("reused!!!!!!!!!!"), payload)
}

func TestDoubleFreeReturnsErrFreed(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 1, 1, 1, store.PageSize())
	require.NoError(t, err)

	id, err := sec.TryAllocate(tx, 8)
	require.NoError(t, err)
	_, err = sec.Free(tx, id)
	require.NoError(t, err)

	_, err = sec.Free(tx, id)
	var freed *ErrFreed
	assert.ErrorAs(t, err, &freed)
}

func TestOpenRebuildsBookkeepingFromScan(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 9, 2, 3, store.PageSize())
	require.NoError(t, err)

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := sec.TryAllocate(tx, 20)
		require.NoError(t, err)
		require.NoError(t, sec.TryWriteDirect(tx, id, make([]byte, 20), false))
		ids = append(ids, id)
	}
	// Free one entry before reopening, to exercise the free-slot rebuild.
	_, err = sec.Free(tx, ids[2])
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	reopened, err := Open(store.Begin(), sec.FirstPage(), store.PageSize())
	require.NoError(t, err)
	assert.Equal(t, sec.NumPages(), reopened.NumPages())
	assert.Equal(t, sec.OwnerHash(), reopened.OwnerHash())

	live, err := reopened.GetAllIDs(store.Begin())
	require.NoError(t, err)
	assert.Len(t, live, 4)
	for _, id := range live {
		assert.NotEqual(t, ids[2], id)
	}
}

func TestSetDictionaryAndCompressionRate(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 1, 1, 2, store.PageSize())
	require.NoError(t, err)

	var hash [32]byte
	copy(hash[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))
	require.NoError(t, sec.SetDictionary(tx, hash))
	assert.Equal(t, hash, sec.CurrentCompressionDictionaryHash())

	require.NoError(t, sec.SetCompressionRate(tx, 40))
	assert.Equal(t, int32(40), sec.MinCompressionRatio())
	require.NoError(t, sec.SetCompressionRate(tx, 70))
	assert.Equal(t, int32(40), sec.MinCompressionRatio(), "tracked minimum never increases")
	require.NoError(t, sec.SetCompressionRate(tx, 10))
	assert.Equal(t, int32(10), sec.MinCompressionRatio())
	require.NoError(t, tx.Commit())

	reopened, err := Open(store.Begin(), sec.FirstPage(), store.PageSize())
	require.NoError(t, err)
	assert.Equal(t, hash, reopened.CurrentCompressionDictionaryHash())
	assert.Equal(t, int32(10), reopened.MinCompressionRatio())
}

func TestContains(t *testing.T) {
	store := newTestStore(t)
	tx := store.BeginRw()
	sec, err := Create(tx, 1, 1, 2, store.PageSize())
	require.NoError(t, err)
	id, err := sec.TryAllocate(tx, 8)
	require.NoError(t, err)

	assert.True(t, sec.Contains(id))
	outsideID := MakeID(sec.FirstPage()+pagestore.PageNumber(sec.NumPages()), 0, store.PageSize())
	assert.False(t, sec.Contains(outsideID))
}

func TestMakeIDSplitIDRoundTrip(t *testing.T) {
	pn := pagestore.PageNumber(37)
	offset := 123
	id := MakeID(pn, offset, 512)
	gotPn, gotOffset := SplitID(id, 512)
	assert.Equal(t, pn, gotPn)
	assert.Equal(t, offset, gotOffset)
}
