package pagestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", WithPageSize(256))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenReservesPageZero(t *testing.T) {
	s := openTest(t)
	assert.Equal(t, uint64(1), s.NumPages())

	tx := s.Begin()
	_, err := tx.ReadPage(0)
	assert.Error(t, err, "page 0 is reserved and never handed out")
}

func TestAllocWriteReadRoundTrip(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRw()

	pn, err := tx.AllocPages(3, RawData)
	require.NoError(t, err)
	assert.NotEqual(t, PageNumber(0), pn)

	buf, err := tx.ModifyPage(pn + 1)
	require.NoError(t, err)
	copy(buf, []byte("hello page"))
	require.NoError(t, tx.Commit())

	rtx := s.Begin()
	got, err := rtx.ReadPage(pn + 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello page"), got[:len("hello page")])
}

func TestFreePagesReusedByLaterAlloc(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRw()
	pn, err := tx.AllocPages(2, RawData)
	require.NoError(t, err)
	require.NoError(t, tx.FreePages(pn, 2))
	require.NoError(t, tx.Commit())

	before := s.NumPages()
	tx2 := s.BeginRw()
	pn2, err := tx2.AllocPages(2, RawData)
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	assert.Equal(t, pn, pn2, "freed run reused instead of growing the file")
	assert.Equal(t, before, s.NumPages(), "no growth needed when a free run fits")
}

func TestRollbackReturnsAllocatedPagesToFreeList(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRw()
	pn, err := tx.AllocPages(2, RawData)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	tx2 := s.BeginRw()
	pn2, err := tx2.AllocPages(2, RawData)
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
	assert.Equal(t, pn, pn2)
}

func TestModifyPageIsolatedUntilCommit(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRw()
	pn, err := tx.AllocPages(1, RawData)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := s.BeginRw()
	buf, err := tx2.ModifyPage(pn)
	require.NoError(t, err)
	buf[0] = 0xAB

	// Uncommitted write is visible within tx2 but not to a fresh read tx.
	same, err := tx2.ReadPage(pn)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), same[0])

	outside := s.Begin()
	untouched, err := outside.ReadPage(pn)
	require.NoError(t, err)
	assert.NotEqual(t, byte(0xAB), untouched[0])

	require.NoError(t, tx2.Commit())
	after, err := s.Begin().ReadPage(pn)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), after[0])
}

func TestCommitOnFinishedTxErrors(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRw()
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit())
}
