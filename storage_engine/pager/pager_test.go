package pager

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PackageDB/errdefs"
	"PackageDB/types"
)

const (
	testUnit = 8
	testPage = 2
)

func newTestPager(t *testing.T, opts Options, allocated ...[]types.PageID) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "var")
	p, err := Open(path, testUnit, testPage, allocated, opts)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, path
}

func entry(id uint64) *types.EntryIndex {
	idx := types.NewEntryIndex(types.NewEntryKey(1, id), types.EntryPersistent, "e", types.ValueScalar, nil, 0)
	return &idx
}

func unit(b byte) types.Unit {
	u := make(types.Unit, testUnit)
	for i := range u {
		u[i] = b
	}
	return u
}

func units(from byte, n int) []types.Unit {
	out := make([]types.Unit, n)
	for i := range out {
		out[i] = unit(from + byte(i))
	}
	return out
}

func TestOpenRejectsBadGeometry(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "var"), 4, 2, nil, Options{})
	assert.True(t, errdefs.IsValidation(err))

	_, err = Open(filepath.Join(dir, "var"), 8, 0, nil, Options{})
	assert.True(t, errdefs.IsValidation(err))

	_, err = Open(filepath.Join(dir, "var"), 8, types.MaxPageSize+1, nil, Options{})
	assert.True(t, errdefs.IsValidation(err))
}

func TestAllocateGrowsFirstFit(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})

	a, b, c := entry(0), entry(1), entry(2)
	require.NoError(t, p.Allocate(1, a))
	require.NoError(t, p.Allocate(1, b))
	assert.Equal(t, []types.PageID{0}, a.PageList())
	assert.Equal(t, []types.PageID{1}, b.PageList())

	require.NoError(t, p.Release(a))
	assert.Empty(t, a.PageList())
	assert.True(t, p.IsFree(0))

	// page 0 is reused first, the second page is appended at end of file
	require.NoError(t, p.Allocate(2, c))
	assert.Equal(t, []types.PageID{0, 2}, c.PageList())

	stats := p.Stats()
	assert.Equal(t, 3, stats.TotalPages)
	assert.Equal(t, 0, stats.FreePages)
	assert.Equal(t, int64(3*testUnit*testPage), stats.FileBytes)
}

func TestAllocateWithoutGrowth(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: false})

	idx := entry(0)
	err := p.Allocate(1, idx)
	assert.True(t, errdefs.IsCapacity(err))
	assert.Empty(t, idx.PageList())
	assert.Equal(t, 0, p.Stats().TotalPages)
}

func TestAllocateZeroPagesIsNoop(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(0, idx))
	assert.Empty(t, idx.PageList())
	assert.Equal(t, 0, p.Stats().TotalPages)
}

func TestAllocateTwiceIsStateError(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(1, idx))
	assert.True(t, errdefs.IsState(p.Allocate(1, idx)))
}

func TestBindEmptyEntryFails(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})

	full := entry(0)
	require.NoError(t, p.Allocate(1, full))
	require.NoError(t, p.Bind(full))
	assert.True(t, p.IsBound())

	err := p.Bind(entry(1))
	assert.True(t, errdefs.IsState(err))
	assert.False(t, p.IsBound())

	_, err = p.ReadUnit()
	assert.True(t, errdefs.IsState(err))
}

func TestReadFollowsPageListOrder(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true, CacheBytes: 1 << 16})

	filler, other, target := entry(0), entry(1), entry(2)
	require.NoError(t, p.Allocate(1, filler))
	require.NoError(t, p.Allocate(1, other))
	require.NoError(t, p.Release(filler))
	require.NoError(t, p.Allocate(2, target))
	require.Equal(t, []types.PageID{0, 2}, target.PageList())

	require.NoError(t, p.Bind(other))
	require.NoError(t, p.WriteUnits(units(0xA0, 2)))

	require.NoError(t, p.Bind(target))
	require.NoError(t, p.WriteUnits(units(1, 4)))

	require.NoError(t, p.MoveRelative(0))
	got, err := p.ReadAllUnits()
	require.NoError(t, err)
	assert.Equal(t, units(1, 4), got)
	assert.True(t, p.EndOfFile())

	// the neighbour stays untouched
	require.NoError(t, p.Bind(other))
	got, err = p.ReadUnits(2)
	require.NoError(t, err)
	assert.Equal(t, units(0xA0, 2), got)
}

func TestShortReadAndEOF(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(1, idx))
	require.NoError(t, p.Bind(idx))
	require.NoError(t, p.WriteUnits(units(5, 2)))
	require.NoError(t, p.MoveRelative(0))

	first, err := p.ReadUnit()
	require.NoError(t, err)
	assert.Equal(t, unit(5), first)
	assert.False(t, p.EndOfFile())

	rest, err := p.ReadUnits(3)
	assert.True(t, errdefs.IsCapacity(err))
	assert.Equal(t, []types.Unit{unit(6)}, rest)
	assert.True(t, p.EndOfFile())

	_, err = p.ReadUnit()
	assert.Equal(t, io.EOF, err)
}

func TestWriteBeyondCapacityWritesNothing(t *testing.T) {
	p, path := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(1, idx))
	require.NoError(t, p.Bind(idx))
	require.NoError(t, p.WriteUnits(units(1, 2)))
	require.NoError(t, p.Flush())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, p.MoveRelative(0))
	err = p.WriteUnits(units(9, 3))
	assert.True(t, errdefs.IsCapacity(err))
	assert.Equal(t, 0, p.RelativePosition())

	require.NoError(t, p.Flush())
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteRejectsWrongUnitWidth(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(1, idx))
	require.NoError(t, p.Bind(idx))
	assert.True(t, errdefs.IsValidation(p.WriteUnits([]types.Unit{make(types.Unit, 3)})))
}

func TestCursorMoves(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(2, idx))
	require.NoError(t, p.Bind(idx))
	require.NoError(t, p.WriteUnits(units(10, 4)))

	require.NoError(t, p.MoveAbsolute(1, 1))
	assert.Equal(t, 3, p.RelativePosition())
	u, err := p.ReadUnit()
	require.NoError(t, err)
	assert.Equal(t, unit(13), u)

	require.NoError(t, p.MoveRelative(0))
	require.NoError(t, p.Advance())
	assert.Equal(t, Position{Page: 0, Unit: 1}, p.AbsolutePosition())

	require.NoError(t, p.AdvancePage())
	assert.Equal(t, Position{Page: 1, Unit: 0}, p.AbsolutePosition())
	assert.Equal(t, io.EOF, p.AdvancePage())
	assert.True(t, p.EndOfFile())

	assert.True(t, errdefs.IsCapacity(p.MoveRelative(5)))
	assert.True(t, errdefs.IsCapacity(p.MoveAbsolute(2, 0)))
	assert.True(t, errdefs.IsCapacity(p.MoveAbsolute(0, testPage)))
}

func TestReopenDerivesFreePages(t *testing.T) {
	p, path := newTestPager(t, Options{AllowGrowth: true})
	a, b := entry(0), entry(1)
	require.NoError(t, p.Allocate(2, a))
	require.NoError(t, p.Allocate(1, b))
	require.NoError(t, p.Bind(b))
	require.NoError(t, p.WriteUnits(units(40, 2)))
	require.NoError(t, p.Close())

	// only b survives in the index; a's pages come back as free
	reopened, err := Open(path, testUnit, testPage, [][]types.PageID{b.PageList()}, Options{AllowGrowth: false})
	require.NoError(t, err)
	defer reopened.Close()

	stats := reopened.Stats()
	assert.Equal(t, 3, stats.TotalPages)
	assert.Equal(t, 2, stats.FreePages)
	assert.True(t, reopened.IsFree(0))
	assert.False(t, reopened.IsFree(2))

	require.NoError(t, reopened.Bind(b))
	got, err := reopened.ReadAllUnits()
	require.NoError(t, err)
	assert.Equal(t, units(40, 2), got)

	c := entry(2)
	require.NoError(t, reopened.Allocate(2, c))
	assert.Equal(t, []types.PageID{0, 1}, c.PageList())
}

func TestOpenRejectsDoubleClaimedPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var")
	require.NoError(t, os.WriteFile(path, make([]byte, 2*testUnit*testPage), 0644))
	_, err := Open(path, testUnit, testPage, [][]types.PageID{{0, 1}, {1}}, Options{})
	assert.True(t, errdefs.IsFormat(err))
}

func TestOpenRejectsPagePastEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var")
	require.NoError(t, os.WriteFile(path, make([]byte, testUnit*testPage), 0644))

	_, err := Open(path, testUnit, testPage, [][]types.PageID{{0}, {0xFFFFFFFF}}, Options{})
	assert.True(t, errdefs.IsFormat(err))

	p, err := Open(path, testUnit, testPage, [][]types.PageID{{0}}, Options{})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestWipeAll(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true})
	idx := entry(0)
	require.NoError(t, p.Allocate(3, idx))
	require.NoError(t, p.Bind(idx))

	require.NoError(t, p.WipeAll())
	assert.False(t, p.IsBound())
	stats := p.Stats()
	assert.Equal(t, 0, stats.TotalPages)
	assert.Equal(t, int64(0), stats.FileBytes)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true, CacheBytes: 1 << 12})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, errdefs.IsState(p.Allocate(1, entry(0))))
	assert.True(t, errdefs.IsState(p.Flush()))
}

func TestMetricsCountIO(t *testing.T) {
	Register()
	p, _ := newTestPager(t, Options{AllowGrowth: true})

	allocatedBefore := testutil.ToFloat64(pagesAllocated)
	writtenBefore := testutil.ToFloat64(unitsWritten)
	readBefore := testutil.ToFloat64(unitsRead)

	idx := entry(0)
	require.NoError(t, p.Allocate(2, idx))
	require.NoError(t, p.Bind(idx))
	require.NoError(t, p.WriteUnits(units(1, 3)))
	require.NoError(t, p.MoveRelative(0))
	_, err := p.ReadUnits(3)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(pagesAllocated)-allocatedBefore)
	assert.Equal(t, 3.0, testutil.ToFloat64(unitsWritten)-writtenBefore)
	assert.Equal(t, 3.0, testutil.ToFloat64(unitsRead)-readBefore)
}

func TestCacheNeverServesStaleBytes(t *testing.T) {
	p, _ := newTestPager(t, Options{AllowGrowth: true, CacheBytes: 1 << 16})
	idx := entry(0)
	require.NoError(t, p.Allocate(1, idx))
	require.NoError(t, p.Bind(idx))

	for round := byte(1); round <= 3; round++ {
		require.NoError(t, p.MoveRelative(0))
		require.NoError(t, p.WriteUnits(units(round*10, 2)))

		// read twice so the second read can come from the cache
		for i := 0; i < 2; i++ {
			require.NoError(t, p.MoveRelative(0))
			got, err := p.ReadAllUnits()
			require.NoError(t, err)
			assert.Equal(t, units(round*10, 2), got)
		}
	}

	require.NoError(t, p.Release(idx))
	other := entry(1)
	require.NoError(t, p.Allocate(1, other))
	require.NoError(t, p.Bind(other))
	got, err := p.ReadAllUnits()
	require.NoError(t, err)
	assert.Equal(t, []types.Unit{unit(0), unit(0)}, got)
}

func TestDisabledCache(t *testing.T) {
	c, err := newPageCache(0, testUnit*testPage)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, ok := c.get(0)
	assert.False(t, ok)
	hits, misses := c.stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}
