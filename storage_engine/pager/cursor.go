package pager

import (
	"io"

	"github.com/pkg/errors"

	"PackageDB/errdefs"
	"PackageDB/types"
)

/*
This file holds the bound-entry cursor.
Binding makes one entry's page list the address space of the cursor. Unit r of that space lives at
unit (r % pageSize) of page list[r / pageSize], so pages that are not contiguous in the file are read
and written in list order. Nothing outside the bound list is ever touched.
*/

// Bind makes the entry's page list the cursor target and rewinds to its first unit.
// An entry without pages cannot be bound; the pager is left unbound.
func (p *Pager) Bind(idx *types.EntryIndex) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if len(idx.PageList()) == 0 {
		p.Unbind()
		return errors.Wrapf(errdefs.ErrState, "entry %s has no pages to bind", idx.Key())
	}
	p.binding = idx
	p.location = Position{}
	p.boundEOF = false
	return nil
}

// Unbind drops the current binding.
func (p *Pager) Unbind() {
	p.binding = nil
	p.location = Position{}
	p.boundEOF = false
}

func (p *Pager) IsBound() bool { return p.binding != nil }

func (p *Pager) EndOfFile() bool { return p.boundEOF }

func (p *Pager) checkBound() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if p.binding == nil {
		return errors.Wrap(errdefs.ErrState, "pager is not bound to an entry")
	}
	return nil
}

func (p *Pager) capacity() int {
	return len(p.binding.PageList()) * p.pageSize
}

// RelativePosition is the cursor as a flat unit offset in the bound entry.
func (p *Pager) RelativePosition() int {
	return p.location.Page*p.pageSize + p.location.Unit
}

// AbsolutePosition is the cursor as (index in page list, unit in page).
func (p *Pager) AbsolutePosition() Position {
	return p.location
}

func (p *Pager) setRelative(rel int) {
	p.location = Position{Page: rel / p.pageSize, Unit: rel % p.pageSize}
}

// ReadUnit returns the next unit. Reading past the last unit sets EndOfFile and returns io.EOF.
func (p *Pager) ReadUnit() (types.Unit, error) {
	units, err := p.ReadUnits(1)
	if len(units) == 0 {
		if err == nil || errdefs.IsCapacity(err) {
			return nil, io.EOF
		}
		return nil, err
	}
	return units[0], nil
}

// ReadUnits reads up to n units from the cursor. When fewer remain, the available units are
// returned together with an ErrCapacity short-read error and EndOfFile is set.
func (p *Pager) ReadUnits(n int) ([]types.Unit, error) {
	if err := p.checkBound(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	rel := p.RelativePosition()
	remaining := p.capacity() - rel
	if p.boundEOF || remaining <= 0 {
		p.boundEOF = true
		return nil, io.EOF
	}

	want := n
	if want > remaining {
		want = remaining
	}

	units, err := p.readRange(rel, want)
	if err != nil {
		return nil, err
	}
	p.setRelative(rel + len(units))
	unitsRead.Add(float64(len(units)))

	if len(units) < n {
		p.boundEOF = true
		return units, errors.Wrapf(errdefs.ErrCapacity, "short read: wanted %d units, entry %s had %d left", n, p.binding.Key(), len(units))
	}
	return units, nil
}

// ReadAllUnits reads from the cursor to the end of the bound entry and leaves the cursor at EOF.
func (p *Pager) ReadAllUnits() ([]types.Unit, error) {
	if err := p.checkBound(); err != nil {
		return nil, err
	}
	rel := p.RelativePosition()
	remaining := p.capacity() - rel
	if remaining <= 0 || p.boundEOF {
		p.boundEOF = true
		return nil, nil
	}
	units, err := p.readRange(rel, remaining)
	if err != nil {
		return nil, err
	}
	p.setRelative(p.capacity())
	p.boundEOF = true
	unitsRead.Add(float64(len(units)))
	return units, nil
}

func (p *Pager) readRange(rel, count int) ([]types.Unit, error) {
	pages := p.binding.PageList()
	units := make([]types.Unit, 0, count)
	for len(units) < count {
		pos := rel + len(units)
		data, err := p.readPage(pages[pos/p.pageSize])
		if err != nil {
			return units, err
		}
		for unit := pos % p.pageSize; unit < p.pageSize && len(units) < count; unit++ {
			u := make(types.Unit, p.unitSize)
			copy(u, data[unit*p.unitSize:])
			units = append(units, u)
		}
	}
	return units, nil
}

// WriteUnits writes units sequentially from the cursor. It never allocates: if the bound entry
// cannot hold all of them from the cursor on, nothing is written and ErrCapacity is returned.
func (p *Pager) WriteUnits(units []types.Unit) error {
	if err := p.checkBound(); err != nil {
		return err
	}
	for i, u := range units {
		if len(u) != p.unitSize {
			return errors.Wrapf(errdefs.ErrValidation, "unit %d is %d bytes, unit size is %d", i, len(u), p.unitSize)
		}
	}

	rel := p.RelativePosition()
	remaining := p.capacity() - rel
	if len(units) > remaining {
		return errors.Wrapf(errdefs.ErrCapacity, "write of %d units exceeds entry %s capacity (%d units left)", len(units), p.binding.Key(), remaining)
	}

	pages := p.binding.PageList()
	written := 0
	for written < len(units) {
		pos := rel + written
		unit := pos % p.pageSize
		chunk := p.pageSize - unit
		if chunk > len(units)-written {
			chunk = len(units) - written
		}
		if err := p.writeUnits(pages[pos/p.pageSize], unit, types.JoinUnits(units[written:written+chunk])); err != nil {
			return err
		}
		written += chunk
	}

	p.setRelative(rel + written)
	p.boundEOF = false
	unitsWritten.Add(float64(written))
	return nil
}

// Advance moves the cursor forward by one unit. Moving past the end sets EndOfFile.
func (p *Pager) Advance() error {
	if err := p.checkBound(); err != nil {
		return err
	}
	rel := p.RelativePosition()
	if rel >= p.capacity() {
		p.boundEOF = true
		return io.EOF
	}
	p.setRelative(rel + 1)
	return nil
}

// AdvancePage moves the cursor to the first unit of the next page in the bound list.
func (p *Pager) AdvancePage() error {
	if err := p.checkBound(); err != nil {
		return err
	}
	next := p.location.Page + 1
	if next >= len(p.binding.PageList()) {
		p.setRelative(p.capacity())
		p.boundEOF = true
		return io.EOF
	}
	p.location = Position{Page: next}
	return nil
}

// MoveRelative puts the cursor at a flat unit offset of the bound entry. The end position is allowed.
func (p *Pager) MoveRelative(unit int) error {
	if err := p.checkBound(); err != nil {
		return err
	}
	if unit < 0 || unit > p.capacity() {
		return errors.Wrapf(errdefs.ErrCapacity, "unit %d out of range for entry %s (%d units)", unit, p.binding.Key(), p.capacity())
	}
	p.setRelative(unit)
	p.boundEOF = false
	return nil
}

// MoveAbsolute puts the cursor at unit of the page-th page of the bound list.
func (p *Pager) MoveAbsolute(page, unit int) error {
	if err := p.checkBound(); err != nil {
		return err
	}
	if page < 0 || page >= len(p.binding.PageList()) || unit < 0 || unit >= p.pageSize {
		return errors.Wrapf(errdefs.ErrCapacity, "position (%d, %d) out of range for entry %s", page, unit, p.binding.Key())
	}
	p.location = Position{Page: page, Unit: unit}
	p.boundEOF = false
	return nil
}
