package packagemanager

import (
	"io"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"PackageDB/errdefs"
	"PackageDB/types"
)

func (p *Package) checkOpen() error {
	if p.closed {
		return errors.Wrapf(errdefs.ErrState, "package %s is closed", p.name)
	}
	return nil
}

// AddEntry stores a new entry holding value (nil for none) and returns its key. The entry gets
// exactly enough pages for the value's current size, one page when value is nil, and is saved
// with the next Save. Only temporary entries may be unnamed.
func (p *Package) AddEntry(name string, kind types.EntryKind, value types.Value) (types.EntryKey, error) {
	if err := p.checkOpen(); err != nil {
		return types.EntryKey{}, err
	}
	if !kind.Valid() {
		return types.EntryKey{}, errors.Wrapf(errdefs.ErrValidation, "unknown entry kind %d", kind)
	}
	if kind != types.EntryTemporary && name == "" {
		return types.EntryKey{}, errors.Wrap(errdefs.ErrValidation, "a persistent entry needs a name")
	}

	units, err := types.RequiredUnits(value, p.pager.UnitSize())
	if err != nil {
		return types.EntryKey{}, errors.Wrapf(err, "size entry %q", name)
	}
	pages := types.PagesFor(units, p.pager.PageSize())

	key := types.NewEntryKey(p.id, p.currID)
	entry := newEntry(types.NewEntryIndex(key, kind, name, types.TypeOf(value), nil, 0), p.ref)
	if err := p.pager.Allocate(pages, &entry.index); err != nil {
		return types.EntryKey{}, errors.Wrapf(err, "allocate entry %q", name)
	}
	if err := entry.SetData(value); err != nil {
		p.pager.Release(&entry.index)
		return types.EntryKey{}, err
	}

	p.currID++
	p.entries = append(p.entries, entry)

	p.log.WithFields(logrus.Fields{
		"entry": key.String(),
		"name":  name,
		"type":  types.TypeOf(value).String(),
		"pages": pages,
	}).Debug("entry added")
	return key, nil
}

func (p *Package) find(id uint64) int {
	for i, e := range p.entries {
		if e.index.Key().EntryID == id {
			return i
		}
	}
	return -1
}

func (p *Package) take(id uint64) (*Entry, int, error) {
	if err := p.checkOpen(); err != nil {
		return nil, -1, err
	}
	i := p.find(id)
	if i < 0 {
		return nil, -1, errors.Wrapf(errdefs.ErrNotFound, "package %s has no entry %d", p.name, id)
	}
	entry := p.entries[i]
	p.entries = slices.Delete(p.entries, i, i+1)
	return entry, i, nil
}

// ReleaseEntry takes the entry out of the package and hands it to the caller. Its pages stay
// reserved while the package is open; they are free again once the package is reopened.
// The index drops the entry at the next Save or index rewrite.
func (p *Package) ReleaseEntry(id uint64) (*Entry, error) {
	entry, _, err := p.take(id)
	if err != nil {
		return nil, err
	}
	p.released = append(p.released, entry)
	return entry, nil
}

// RemoveEntry deletes the entry and returns its pages, zeroed, to the free set. The index is
// rewritten first, so it never lists pages that have been zeroed.
func (p *Package) RemoveEntry(id uint64) error {
	entry, i, err := p.take(id)
	if err != nil {
		return err
	}
	if entry.persisted != nil {
		if err := p.writeIndex(); err != nil {
			p.entries = slices.Insert(p.entries, i, entry)
			return errors.Wrapf(err, "remove entry %s", entry.Key())
		}
	}

	err = p.pager.Release(&entry.index)
	entry.detach()
	if err != nil {
		return errors.Wrapf(err, "release pages of entry %s", entry.Key())
	}

	p.log.WithField("entry", entry.Key().String()).Debug("entry removed")
	return nil
}

// RemoveAllEntries drops every entry, rewrites the empty index, wipes the payload file and resets
// the ID counter to 0. Entries still held by the caller, released ones included, are cut off
// from their pages. Irreversible.
func (p *Package) RemoveAllEntries() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if err := p.index.Write(nil); err != nil {
		return err
	}
	for _, e := range p.entries {
		e.detach()
	}
	for _, e := range p.released {
		e.detach()
	}
	p.entries, p.released = nil, nil
	p.currID = 0

	if err := p.pager.WipeAll(); err != nil {
		return err
	}
	p.log.Warn("all entries removed")
	return nil
}

// ResolveEntry returns the first entry called name.
func (p *Package) ResolveEntry(name string) (*Entry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	for _, e := range p.entries {
		if e.index.Name() == name {
			return e, nil
		}
	}
	return nil, errors.Wrapf(errdefs.ErrNotFound, "package %s has no entry named %q", p.name, name)
}

// ResolveEntryByKey returns the entry with exactly this key; a key of another package is not found.
func (p *Package) ResolveEntryByKey(key types.EntryKey) (*Entry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if key.PackageID != p.id {
		return nil, errors.Wrapf(errdefs.ErrNotFound, "entry %s is not in package %s (P%d)", key, p.name, p.id)
	}
	if i := p.find(key.EntryID); i >= 0 {
		return p.entries[i], nil
	}
	return nil, errors.Wrapf(errdefs.ErrNotFound, "package %s has no entry %s", p.name, key)
}

// Entry looks an entry up by ID without failing.
func (p *Package) Entry(id uint64) (*Entry, bool) {
	if i := p.find(id); i >= 0 {
		return p.entries[i], true
	}
	return nil, false
}

// Entries returns the entries in index order.
func (p *Package) Entries() []*Entry {
	return append([]*Entry(nil), p.entries...)
}

// LoadAllEntries loads every entry. Entries that fail stay unmaterialized and the others are
// still loaded; the failures are returned joined.
func (p *Package) LoadAllEntries() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	var errs []error
	for _, e := range p.entries {
		if err := e.Load(); err != nil {
			errs = append(errs, err)
		}
	}
	return errdefs.Join(errs...)
}

// UnloadAllEntries drops every loaded value. Unsaved changes are lost.
func (p *Package) UnloadAllEntries() {
	for _, e := range p.entries {
		e.Unload()
	}
}

// DisplayContents writes one "name @ key: value" line per entry.
func (p *Package) DisplayContents(w io.Writer) error {
	for _, e := range p.entries {
		if err := e.Display(w); err != nil {
			return err
		}
	}
	return nil
}
