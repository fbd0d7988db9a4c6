package packagemanager

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PackageDB/config"
	"PackageDB/errdefs"
	"PackageDB/types"
)

// savedEntry adds value under name, saves and reopens the package so the entry starts unmaterialized.
func savedEntry(t *testing.T, name string, value types.Value) (*Package, *Entry) {
	t.Helper()
	p, landing := newTestPackage(t, config.Default())
	_, err := p.AddEntry(name, types.EntryPersistent, value)
	require.NoError(t, err)
	require.NoError(t, p.Save())
	require.NoError(t, p.Close())

	reopened, err := OpenFromDirectory(filepath.Join(landing, "P"), 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	e, err := reopened.ResolveEntry(name)
	require.NoError(t, err)
	return reopened, e
}

// emptyPayload zeroes the payload length behind the index's back, so a typed entry holds nothing.
func emptyPayload(t *testing.T, p *Package, e *Entry) {
	t.Helper()
	idx := e.Index()
	require.NoError(t, p.Pager().Bind(&idx))
	require.NoError(t, p.Pager().WriteUnits([]types.Unit{make(types.Unit, p.Pager().UnitSize())}))
	p.Pager().Unbind()
}

func TestDirtyTracking(t *testing.T) {
	p, e := savedEntry(t, "x", types.Integer(1))

	require.NoError(t, e.Load())
	assert.False(t, e.IsModified())
	assert.False(t, e.Index().IsModified())

	require.NoError(t, e.SetData(types.Integer(2)))
	assert.True(t, e.IsModified())
	assert.True(t, e.Index().IsModified())

	require.NoError(t, p.Save())
	assert.False(t, e.IsModified())
	assert.False(t, e.Index().IsModified())
}

func TestAddedEntryIsModified(t *testing.T) {
	p, _ := newTestPackage(t, config.Default())
	key, err := p.AddEntry("x", types.EntryPersistent, types.Integer(1))
	require.NoError(t, err)
	e, _ := p.Entry(key.EntryID)
	assert.True(t, e.IsModified())
	assert.Equal(t, Loaded, e.State())
}

func TestDataRequiresLoad(t *testing.T) {
	_, e := savedEntry(t, "x", types.Integer(1))

	assert.Equal(t, Unmaterialized, e.State())
	assert.Equal(t, NotLoaded, e.HasData())
	_, err := e.Data()
	assert.True(t, errdefs.IsState(err))

	require.NoError(t, e.Load())
	// a second load is a no-op
	require.NoError(t, e.Load())
	assert.Equal(t, LoadedValue, e.HasData())
}

func TestUnloadIsLossyAndIdempotent(t *testing.T) {
	_, e := savedEntry(t, "x", types.Integer(1))

	e.Unload()
	assert.Equal(t, NotLoaded, e.HasData())

	require.NoError(t, e.Load())
	require.NoError(t, e.SetData(types.Integer(99)))
	e.Unload()
	e.Unload()
	assert.False(t, e.IsModified())

	require.NoError(t, e.Load())
	v, err := e.Data()
	require.NoError(t, err)
	assert.True(t, types.Integer(1).Equal(v))

	// a dropped type change goes with the value
	require.NoError(t, e.SetData(mustVector(t, 1, 2)))
	assert.Equal(t, types.ValueVector, e.Index().Type())
	e.Unload()
	assert.Equal(t, types.ValueScalar, e.Index().Type())
	require.NoError(t, e.Load())
	v, err = e.Data()
	require.NoError(t, err)
	assert.True(t, types.Integer(1).Equal(v))
}

func TestReadOnlyEntry(t *testing.T) {
	_, e := savedEntry(t, "x", types.Integer(1))
	e.SetReadOnly(true)
	assert.True(t, e.Index().ReadOnly())

	assert.True(t, errdefs.IsState(e.SetData(types.Integer(2))))
	assert.True(t, errdefs.IsState(e.Reset()))
	assert.False(t, e.IsModified())

	// reading is still allowed
	require.NoError(t, e.Load())
}

func TestReadOnlyFlagPersists(t *testing.T) {
	p, landing := newTestPackage(t, config.Default())
	key, err := p.AddEntry("x", types.EntryPersistent, types.Integer(1))
	require.NoError(t, err)
	e, _ := p.Entry(key.EntryID)
	e.SetReadOnly(true)
	require.NoError(t, p.Save())
	require.NoError(t, p.Close())

	reopened, err := OpenFromDirectory(filepath.Join(landing, "P"), 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer reopened.Close()
	again, err := reopened.ResolveEntry("x")
	require.NoError(t, err)
	assert.True(t, again.Index().ReadOnly())
}

func TestResetZeroesPages(t *testing.T) {
	p, e := savedEntry(t, "x", types.Real(3.5))

	require.NoError(t, e.Reset())
	assert.Equal(t, Deleted, e.State())
	assert.Equal(t, LoadedEmpty, e.HasData())
	assert.Equal(t, types.ValueNone, e.Index().Type())
	assert.False(t, e.IsModified())
	assert.NotEmpty(t, e.Index().PageList())

	pg := p.Pager()
	idx := e.Index()
	require.NoError(t, pg.Bind(&idx))
	units, err := pg.ReadAllUnits()
	require.NoError(t, err)
	pg.Unbind()
	for _, u := range units {
		assert.Equal(t, make(types.Unit, 8), u)
	}

	require.NoError(t, p.Save())
	e.Unload()
	require.NoError(t, e.Load())
	assert.Equal(t, LoadedEmpty, e.HasData())
}

func TestTryLoad(t *testing.T) {
	_, e := savedEntry(t, "x", types.Integer(1))
	ok, msg := e.TryLoad()
	assert.True(t, ok)
	assert.Empty(t, msg)

	p, landing := newTestPackage(t, config.Default())
	key, err := p.AddEntry("emptied", types.EntryPersistent, types.Integer(1))
	require.NoError(t, err)
	require.NoError(t, p.Save())
	e, _ = p.Entry(key.EntryID)
	emptyPayload(t, p, e)
	require.NoError(t, p.Close())

	reopened, err := OpenFromDirectory(filepath.Join(landing, "P"), 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer reopened.Close()
	broken, err := reopened.ResolveEntry("emptied")
	require.NoError(t, err)

	ok, msg = broken.TryLoad()
	assert.False(t, ok)
	assert.Contains(t, msg, "emptied")
	assert.Equal(t, NotLoaded, broken.HasData())
}

func TestResetHoldsWithoutSave(t *testing.T) {
	p, e := savedEntry(t, "x", types.Real(3.5))
	e.SetLoadImmediate(true)
	require.NoError(t, p.Save())

	require.NoError(t, e.Reset())
	require.NoError(t, p.Close())

	reopened, err := OpenFromDirectory(p.Location(), 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer reopened.Close()
	again, err := reopened.ResolveEntry("x")
	require.NoError(t, err)
	assert.Equal(t, LoadedEmpty, again.HasData())
	assert.Equal(t, types.ValueNone, again.Index().Type())
}

func TestLoadRejectsTypeMismatch(t *testing.T) {
	p, e := savedEntry(t, "x", types.Integer(1))

	// rewrite the payload as a vector behind the index's back
	text := []byte("VEC 1 5")
	head := make(types.Unit, 8)
	binary.LittleEndian.PutUint64(head, uint64(len(text)))
	idx := e.Index()
	require.NoError(t, p.Pager().Bind(&idx))
	require.NoError(t, p.Pager().WriteUnits(append([]types.Unit{head}, types.ToUnits(text, 8)...)))
	p.Pager().Unbind()

	err := e.Load()
	assert.True(t, errdefs.IsFormat(err), "got %v", err)
	assert.Equal(t, NotLoaded, e.HasData())
}

func TestWriteDataRequiresLoad(t *testing.T) {
	_, e := savedEntry(t, "x", types.Integer(1))
	assert.True(t, errdefs.IsState(e.WriteData()))

	require.NoError(t, e.Load())
	require.NoError(t, e.SetData(types.Integer(3)))
	require.NoError(t, e.WriteData())
	assert.False(t, e.IsModified())

	e.Unload()
	require.NoError(t, e.Load())
	v, err := e.Data()
	require.NoError(t, err)
	assert.True(t, types.Integer(3).Equal(v))
}

func TestWriteDataUpdatesIndex(t *testing.T) {
	p, e := savedEntry(t, "x", types.Integer(1))
	require.NoError(t, e.Load())
	require.NoError(t, e.SetData(mustVector(t, 5)))
	require.NoError(t, e.WriteData())
	require.NoError(t, p.Close())

	reopened, err := OpenFromDirectory(p.Location(), 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer reopened.Close()
	again, err := reopened.ResolveEntry("x")
	require.NoError(t, err)
	require.NoError(t, again.Load())
	v, err := again.Data()
	require.NoError(t, err)
	assert.True(t, mustVector(t, 5).Equal(v))
}

func TestEntryDisplay(t *testing.T) {
	_, e := savedEntry(t, "v", mustVector(t, 1, 2))

	var out bytes.Buffer
	require.NoError(t, e.Display(&out))
	assert.Equal(t, "v @ P1:E0: (not loaded)\n", out.String())

	require.NoError(t, e.Load())
	out.Reset()
	require.NoError(t, e.Display(&out))
	assert.Equal(t, "v @ P1:E0: { 1 2 }\n", out.String())
}
