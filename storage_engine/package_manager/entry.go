package packagemanager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"PackageDB/errdefs"
	"PackageDB/storage_engine/pager"
	"PackageDB/types"
)

/*
Entry payload layout, in the entry's own unit address space (its page list, in order):

	unit 0     : little-endian uint64 byte length of the sterilized text, rest of the unit zero
	unit 1..k  : the sterilized text, last unit zero padded

An entry holding no value is a single header unit with length 0.
*/

func newEntry(idx types.EntryIndex, parent *Reference) *Entry {
	return &Entry{index: idx, parent: parent}
}

func (e *Entry) setModified(modified bool) {
	e.modified = modified
	e.index.SetModified(modified)
}

// markPersisted records the current metadata as what the index file may list for this entry.
// Call it only once the payload on disk matches e.index.
func (e *Entry) markPersisted() {
	snap := e.index
	snap.SetModified(false)
	e.persisted = &snap
}

// detach cuts the entry off from its pages so a handle kept by the caller can no longer
// read or write storage that may be handed to another entry.
func (e *Entry) detach() {
	e.value = nil
	e.state = Unmaterialized
	e.setModified(false)
	e.index.SetPageList(nil)
	e.persisted = nil
}

func (e *Entry) Key() types.EntryKey { return e.index.Key() }

func (e *Entry) Name() string { return e.index.Name() }

func (e *Entry) State() EntryState { return e.state }

// Index returns a copy of the entry's metadata record.
func (e *Entry) Index() types.EntryIndex { return e.index }

func (e *Entry) IsModified() bool { return e.modified }

// Reference returns a handle to this entry that does not keep its package alive.
func (e *Entry) Reference() EntryReference {
	return EntryReference{Ref: e.parent, Key: e.index.Key()}
}

func (e *Entry) owner() (*Package, error) {
	pkg, err := e.parent.Package()
	if err != nil {
		return nil, errors.Wrapf(err, "entry %s", e.index.Key())
	}
	if pkg.closed {
		return nil, errors.Wrapf(errdefs.ErrState, "entry %s: package %s is closed", e.index.Key(), pkg.name)
	}
	return pkg, nil
}

// Load reads the value from the package payload file. A loaded entry is left as is.
func (e *Entry) Load() error {
	if e.state != Unmaterialized {
		return nil
	}
	pkg, err := e.owner()
	if err != nil {
		return err
	}

	value, err := e.readValue(pkg.pager)
	pkg.pager.Unbind()
	if err != nil {
		return errors.Wrapf(err, "load entry %s (%s)", e.index.Key(), e.index.Name())
	}

	e.value = value
	e.state = Loaded
	e.setModified(false)
	return nil
}

func (e *Entry) readValue(p *pager.Pager) (types.Value, error) {
	if err := p.Bind(&e.index); err != nil {
		return nil, err
	}
	head, err := p.ReadUnit()
	if err == io.EOF {
		return nil, errors.Wrap(errdefs.ErrFormat, "missing payload header")
	}
	if err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint64(head[:8])

	if e.index.Type() == types.ValueNone {
		if length != 0 {
			return nil, errors.Wrapf(errdefs.ErrFormat, "entry is typed None but holds %d payload bytes", length)
		}
		return nil, nil
	}
	if length == 0 {
		return nil, errors.Wrapf(errdefs.ErrFormat, "entry is typed %s but holds no payload", e.index.Type())
	}

	capacity := uint64(e.index.Capacity(p.PageSize())-1) * uint64(p.UnitSize())
	if length > capacity {
		return nil, errors.Wrapf(errdefs.ErrFormat, "payload length %d exceeds the entry's %d bytes", length, capacity)
	}

	units, err := p.ReadUnits(types.UnitsFor(int(length), p.UnitSize()))
	if err != nil {
		return nil, err
	}
	text := types.JoinUnits(units)[:length]

	value, err := types.FromSterilize(bytes.NewReader(text))
	if err != nil {
		return nil, err
	}
	if value.Type() != e.index.Type() {
		return nil, errors.Wrapf(errdefs.ErrFormat, "payload is a %s, index records %s", value.Type(), e.index.Type())
	}
	return value, nil
}

// TryLoad is Load reporting the outcome as a flag and a message instead of an error.
func (e *Entry) TryLoad() (bool, string) {
	if err := e.Load(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Unload drops the value from memory without writing it. Unsaved changes are lost, including a
// type change, so the entry loads again as what is on disk.
func (e *Entry) Unload() {
	if e.state == Unmaterialized {
		return
	}
	if e.modified {
		if pkg, err := e.parent.Package(); err == nil {
			pkg.log.WithField("entry", e.index.Key().String()).Warn("unloading entry with unsaved changes")
		}
	}
	e.value = nil
	e.state = Unmaterialized
	e.setModified(false)
	if e.persisted != nil {
		e.index.SetType(e.persisted.Type())
	} else {
		e.index.SetType(types.ValueNone)
	}
}

// Reset drops the value and zeroes every page of the entry. The pages stay allocated to it and
// its type becomes None. The index is rewritten at once, so the reset holds without a Save.
func (e *Entry) Reset() error {
	if e.index.ReadOnly() {
		return errors.Wrapf(errdefs.ErrState, "entry %s is read-only", e.index.Key())
	}
	pkg, err := e.owner()
	if err != nil {
		return err
	}
	p := pkg.pager

	if err := p.Bind(&e.index); err != nil {
		return errors.Wrapf(err, "reset entry %s", e.index.Key())
	}
	zero := make([]types.Unit, e.index.Capacity(p.PageSize()))
	for i := range zero {
		zero[i] = make(types.Unit, p.UnitSize())
	}
	err = p.WriteUnits(zero)
	p.Unbind()
	if err != nil {
		return errors.Wrapf(err, "reset entry %s", e.index.Key())
	}

	e.value = nil
	e.index.SetType(types.ValueNone)
	e.state = Deleted
	e.setModified(false)
	// zeroed pages read back as an empty None payload
	e.markPersisted()
	return errors.Wrapf(pkg.writeIndex(), "reset entry %s", e.index.Key())
}

// WriteData writes the loaded value through the owning package's pager and rewrites the index
// so it records the new type. On failure the entry keeps its on-disk value and index record.
func (e *Entry) WriteData() error {
	pkg, err := e.owner()
	if err != nil {
		return err
	}
	if err := e.WriteDataTo(pkg.pager); err != nil {
		return err
	}
	e.markPersisted()
	return errors.Wrapf(pkg.writeIndex(), "write entry %s", e.index.Key())
}

// WriteDataTo writes the loaded value into the entry's pages through p. The pages are never grown:
// a value that no longer fits fails with ErrCapacity and nothing is written. The index file is
// left to the caller.
func (e *Entry) WriteDataTo(p *pager.Pager) error {
	if e.state == Unmaterialized {
		return errors.Wrapf(errdefs.ErrState, "entry %s is not loaded", e.index.Key())
	}

	text, err := types.Sterilized(e.value)
	if err != nil {
		return errors.Wrapf(err, "sterilize entry %s", e.index.Key())
	}
	head := make(types.Unit, p.UnitSize())
	binary.LittleEndian.PutUint64(head, uint64(len(text)))
	units := append([]types.Unit{head}, types.ToUnits(text, p.UnitSize())...)

	if err := p.Bind(&e.index); err != nil {
		return errors.Wrapf(err, "write entry %s", e.index.Key())
	}
	err = p.WriteUnits(units)
	p.Unbind()
	if err != nil {
		return errors.Wrapf(err, "write entry %s", e.index.Key())
	}

	e.setModified(false)
	return nil
}

// SetData replaces the held value and marks the entry modified. nil stores "no value".
func (e *Entry) SetData(v types.Value) error {
	if e.index.ReadOnly() {
		return errors.Wrapf(errdefs.ErrState, "entry %s is read-only", e.index.Key())
	}
	e.value = v
	e.index.SetType(types.TypeOf(v))
	e.state = Loaded
	e.setModified(true)
	return nil
}

// Data returns the held value, nil when the entry is loaded but empty.
// It never loads: an unmaterialized entry is ErrState.
func (e *Entry) Data() (types.Value, error) {
	if e.state == Unmaterialized {
		return nil, errors.Wrapf(errdefs.ErrState, "entry %s is not loaded", e.index.Key())
	}
	return e.value, nil
}

func (e *Entry) HasData() DataState {
	switch {
	case e.state == Unmaterialized:
		return NotLoaded
	case e.value == nil:
		return LoadedEmpty
	default:
		return LoadedValue
	}
}

func (e *Entry) SetLoadImmediate(on bool) { e.index.SetLoadImmediate(on) }

func (e *Entry) SetReadOnly(on bool) { e.index.SetReadOnly(on) }

// Display writes "name @ key: value".
func (e *Entry) Display(w io.Writer) error {
	var shown string
	switch e.HasData() {
	case NotLoaded:
		shown = "(not loaded)"
	case LoadedEmpty:
		shown = "(empty)"
	default:
		shown = e.value.String()
	}
	_, err := fmt.Fprintf(w, "%s @ %s: %s\n", e.index.Name(), e.index.Key(), shown)
	return err
}

func (s EntryState) String() string {
	switch s {
	case Unmaterialized:
		return "Unmaterialized"
	case Loaded:
		return "Loaded"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("EntryState(%d)", uint8(s))
	}
}
