package pager

import (
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"PackageDB/errdefs"
	"PackageDB/types"
)

/*
This is the main file of the pager.
It owns:
the payload file descriptor (os.File), reading/writing raw bytes at page offsets (ReadAt, WriteAt),
page allocation (first-fit over the free set, growth at end of file) and the free/used bookkeeping.

Page offset:
offset(page, unit) = page * unitSize * pageSize + unit * unitSize

The pager does not persist which page belongs to which entry. That lives in the index file;
on open every entry's page list is handed back to the pager and anything not listed is free.

Streaming over a bound entry (Bind, ReadUnits, WriteUnits, cursor moves) is in cursor.go.
*/

// Open opens or creates the payload file at path and builds a pager over it.
func Open(path string, unitSize, pageSize int, allocated [][]types.PageID, opts Options) (*Pager, error) {
	if err := validateGeometry(unitSize, pageSize); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errdefs.IOError(err, "failed to open payload file %s", path)
	}

	p, err := New(file, unitSize, pageSize, allocated, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	return p, nil
}

// New builds a pager over an already opened payload file. The pager takes ownership of file.
func New(file *os.File, unitSize, pageSize int, allocated [][]types.PageID, opts Options) (*Pager, error) {
	if err := validateGeometry(unitSize, pageSize); err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, errdefs.IOError(err, "failed to stat payload file %s", file.Name())
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	p := &Pager{
		file:        file,
		path:        file.Name(),
		unitSize:    unitSize,
		pageSize:    pageSize,
		allowGrowth: opts.AllowGrowth,
		log:         log.WithField("module", "pager"),
	}

	pageBytes := p.pageBytes()
	filePages := int((stat.Size() + pageBytes - 1) / pageBytes)
	p.used = make([]bool, filePages)
	p.freeCount = filePages

	for _, list := range allocated {
		for _, pg := range list {
			// allocation grows the file before any index lists the page
			if int(pg) >= filePages {
				return nil, errors.Wrapf(errdefs.ErrFormat, "page %d is past the end of the payload file (%d pages)", pg, filePages)
			}
			if p.used[pg] {
				return nil, errors.Wrapf(errdefs.ErrFormat, "page %d is claimed by more than one entry", pg)
			}
			p.used[pg] = true
			p.freeCount--
		}
	}

	cache, err := newPageCache(opts.CacheBytes, int(pageBytes))
	if err != nil {
		return nil, err
	}
	p.cache = cache

	p.log.WithFields(logrus.Fields{
		"path":  p.path,
		"pages": len(p.used),
		"free":  p.freeCount,
		"size":  humanize.IBytes(uint64(stat.Size())),
	}).Debug("pager opened")

	return p, nil
}

func validateGeometry(unitSize, pageSize int) error {
	if unitSize < types.MinUnitSize {
		return errors.Wrapf(errdefs.ErrValidation, "unit size %d is below the minimum of %d", unitSize, types.MinUnitSize)
	}
	if unitSize > types.MaxUnitSize {
		return errors.Wrapf(errdefs.ErrValidation, "unit size %d is above the maximum of %d", unitSize, types.MaxUnitSize)
	}
	if pageSize <= 0 || pageSize > types.MaxPageSize {
		return errors.Wrapf(errdefs.ErrValidation, "page size must be in 1..%d, got %d", types.MaxPageSize, pageSize)
	}
	return nil
}

func (p *Pager) UnitSize() int { return p.unitSize }

func (p *Pager) PageSize() int { return p.pageSize }

func (p *Pager) pageBytes() int64 { return int64(p.unitSize) * int64(p.pageSize) }

func (p *Pager) offset(page types.PageID, unit int) int64 {
	return int64(page)*p.pageBytes() + int64(unit)*int64(p.unitSize)
}

func (p *Pager) extendBookkeeping(total int) {
	for len(p.used) < total {
		p.used = append(p.used, false)
		p.freeCount++
	}
}

func (p *Pager) checkOpen() error {
	if p.closed {
		return errors.Wrapf(errdefs.ErrState, "pager for %s is closed", p.path)
	}
	return nil
}

// Allocate claims pageCount free pages (lowest index first) and assigns them, in allocation order,
// as the entry's page list. When the free set runs short the file grows if growth is allowed,
// otherwise nothing is claimed and ErrCapacity is returned.
func (p *Pager) Allocate(pageCount int, idx *types.EntryIndex) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if pageCount < 0 {
		return errors.Wrapf(errdefs.ErrValidation, "negative page count %d", pageCount)
	}
	if pageCount == 0 {
		return nil
	}
	if len(idx.PageList()) != 0 {
		return errors.Wrapf(errdefs.ErrState, "entry %s already owns %d pages", idx.Key(), len(idx.PageList()))
	}

	pages := make([]types.PageID, 0, pageCount)
	for pg := 0; pg < len(p.used) && len(pages) < pageCount; pg++ {
		if !p.used[pg] {
			pages = append(pages, types.PageID(pg))
		}
	}

	missing := pageCount - len(pages)
	if missing > 0 {
		if !p.allowGrowth {
			return errors.Wrapf(errdefs.ErrCapacity, "need %d pages, only %d free", pageCount, len(pages))
		}
		oldTotal := len(p.used)
		newTotal := oldTotal + missing
		if err := p.file.Truncate(int64(newTotal) * p.pageBytes()); err != nil {
			return errdefs.IOError(err, "failed to grow payload file to %d pages", newTotal)
		}
		p.extendBookkeeping(newTotal)
		for pg := oldTotal; pg < newTotal; pg++ {
			pages = append(pages, types.PageID(pg))
		}
	}

	for _, pg := range pages {
		p.used[pg] = true
		p.freeCount--
	}
	idx.SetPageList(pages)
	pagesAllocated.Add(float64(len(pages)))

	p.log.WithFields(logrus.Fields{
		"entry": idx.Key().String(),
		"pages": pages,
		"grown": missing > 0,
	}).Debug("pages allocated")
	return nil
}

// Release zeroes the entry's pages, returns them to the free set and clears the entry's page list.
func (p *Pager) Release(idx *types.EntryIndex) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	pages := idx.PageList()
	if len(pages) == 0 {
		return nil
	}

	zero := make([]byte, p.pageBytes())
	for _, pg := range pages {
		if int(pg) >= len(p.used) || !p.used[pg] {
			return errors.Wrapf(errdefs.ErrState, "entry %s lists page %d which is not allocated", idx.Key(), pg)
		}
		if _, err := p.file.WriteAt(zero, p.offset(pg, 0)); err != nil {
			return errdefs.IOError(err, "failed to zero page %d", pg)
		}
		p.cache.invalidate(pg)
	}
	for _, pg := range pages {
		p.used[pg] = false
		p.freeCount++
	}

	if p.binding == idx {
		p.Unbind()
	}
	idx.SetPageList(nil)
	pagesReleased.Add(float64(len(pages)))

	p.log.WithField("entry", idx.Key().String()).WithField("pages", len(pages)).Debug("pages released")
	return nil
}

// WipeAll truncates the payload file and forgets every page. Irreversible.
func (p *Pager) WipeAll() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if err := p.file.Truncate(0); err != nil {
		return errdefs.IOError(err, "failed to truncate payload file %s", p.path)
	}
	p.Unbind()
	p.used = nil
	p.freeCount = 0
	p.cache.clear()

	p.log.WithField("path", p.path).Warn("payload file wiped")
	return nil
}

// readPage returns the full bytes of one physical page. Pages past end of file read as zeroes.
// The returned slice may be shared with the cache and must not be modified.
func (p *Pager) readPage(pg types.PageID) ([]byte, error) {
	if data, ok := p.cache.get(pg); ok {
		return data, nil
	}

	data := make([]byte, p.pageBytes())
	n, err := p.file.ReadAt(data, p.offset(pg, 0))
	if err != nil && err != io.EOF {
		return nil, errdefs.IOError(err, "failed to read page %d", pg)
	}

	// Pad with zeros if partial read
	for i := n; i < len(data); i++ {
		data[i] = 0
	}

	p.cache.put(pg, data)
	return data, nil
}

// writeUnits writes raw unit bytes inside one physical page, starting at unit.
func (p *Pager) writeUnits(pg types.PageID, unit int, data []byte) error {
	if _, err := p.file.WriteAt(data, p.offset(pg, unit)); err != nil {
		return errdefs.IOError(err, "failed to write page %d", pg)
	}
	p.cache.invalidate(pg)
	return nil
}

// Flush forces written units to stable storage.
func (p *Pager) Flush() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return errdefs.IOError(err, "failed to sync payload file %s", p.path)
	}
	return nil
}

// Close syncs and releases the payload file. Calling it again is a no-op.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.Unbind()
	p.cache.close()

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return errdefs.IOError(err, "failed to sync before close")
	}
	if err := p.file.Close(); err != nil {
		return errdefs.IOError(err, "failed to close payload file")
	}
	return nil
}

// IsFree reports whether a physical page is known and unallocated.
func (p *Pager) IsFree(pg types.PageID) bool {
	return int(pg) < len(p.used) && !p.used[pg]
}

func (p *Pager) Stats() Stats {
	s := Stats{
		UnitSize:   p.unitSize,
		PageSize:   p.pageSize,
		TotalPages: len(p.used),
		FreePages:  p.freeCount,
		UsedPages:  len(p.used) - p.freeCount,
	}
	if !p.closed {
		if stat, err := p.file.Stat(); err == nil {
			s.FileBytes = stat.Size()
		}
	}
	s.CacheHits, s.CacheMisses = p.cache.stats()
	return s
}
