package packagemanager

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"PackageDB/config"
	"PackageDB/errdefs"
	"PackageDB/storage_engine/header"
	"PackageDB/storage_engine/index"
	"PackageDB/storage_engine/pager"
	"PackageDB/types"
)

/*
This is the main file of the package manager.
A package lives in one directory:

	<dir>/header   opaque header blob
	<dir>/index    metadata of every entry
	<dir>/var      paged payload file

Opening reads the index first so the pager can be handed every allocated page list and derive
the free pages. Entries start unmaterialized, except LoadImmediate ones which are loaded on open.
Save writes the modified entries and then rewrites the whole index.
*/

// NewPackage creates the package name under landingDir. If that directory already exists
// the existing package is opened instead.
func NewPackage(name, landingDir string, id uint64, opts ...Option) (*Package, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := requireDir(landingDir); err != nil {
		return nil, err
	}

	dir := filepath.Join(landingDir, name)
	if _, err := os.Stat(dir); err == nil {
		o.log.WithField("dir", dir).Debug("package exists, opening")
		return OpenFromDirectory(dir, id, opts...)
	}

	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, errdefs.IOError(err, "failed to create package directory %s", dir)
	}

	p := &Package{id: id, name: name, location: dir, cfg: o.cfg}
	p.log = o.log.WithFields(logrus.Fields{"module": "package", "package": name, "package_id": id})

	if err := p.create(); err != nil {
		p.closeFiles()
		return nil, err
	}
	p.ref = newReference(p)
	p.track()

	p.log.WithField("dir", dir).Info("package created")
	return p, nil
}

func (p *Package) create() error {
	var err error
	if p.header, err = header.Open(filepath.Join(p.location, HeaderFile)); err != nil {
		return err
	}
	p.header.SetData(nil)
	if err := p.header.Write(); err != nil {
		return errors.Wrap(err, "the header could not be written")
	}

	geo := index.Geometry{UnitSize: p.cfg.UnitSize, PageSize: p.cfg.PageSize}
	if p.index, err = index.Open(filepath.Join(p.location, IndexFile), geo, p.log); err != nil {
		return err
	}
	// an empty index still records the geometry
	if err := p.index.Write(nil); err != nil {
		return err
	}

	p.pager, err = pager.Open(filepath.Join(p.location, VarFile), geo.UnitSize, geo.PageSize, nil, p.pagerOptions())
	return err
}

// OpenFromDirectory opens an existing package. header, index and var must all exist in dir.
// A LoadImmediate entry that cannot be loaded fails the open unless the configuration
// disables LoadImmediateFatal.
func OpenFromDirectory(dir string, id uint64, opts ...Option) (*Package, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := requireDir(dir); err != nil {
		return nil, err
	}
	for _, f := range []string{HeaderFile, IndexFile, VarFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrapf(errdefs.ErrNotFound, "package %s has no %s file", dir, f)
			}
			return nil, errdefs.IOError(err, "failed to stat %s", filepath.Join(dir, f))
		}
	}

	name := filepath.Base(dir)
	p := &Package{id: id, name: name, location: dir, cfg: o.cfg}
	p.log = o.log.WithFields(logrus.Fields{"module": "package", "package": name, "package_id": id})

	records, err := p.open()
	if err != nil {
		p.closeFiles()
		return nil, err
	}
	p.ref = newReference(p)
	p.track()

	if err := p.indexEntries(records); err != nil {
		p.Close()
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"dir":     dir,
		"entries": len(p.entries),
	}).Info("package opened")
	return p, nil
}

func (p *Package) open() ([]types.EntryIndex, error) {
	var err error
	if p.header, err = header.Open(filepath.Join(p.location, HeaderFile)); err != nil {
		return nil, err
	}

	geo := index.Geometry{UnitSize: p.cfg.UnitSize, PageSize: p.cfg.PageSize}
	if p.index, err = index.Open(filepath.Join(p.location, IndexFile), geo, p.log); err != nil {
		return nil, err
	}
	records, err := p.index.ReadIndex(p.id)
	if err != nil {
		return nil, err
	}

	geo = p.index.Geometry()
	lists := make([][]types.PageID, len(records))
	for i := range records {
		lists[i] = records[i].PageList()
	}
	if p.pager, err = pager.Open(filepath.Join(p.location, VarFile), geo.UnitSize, geo.PageSize, lists, p.pagerOptions()); err != nil {
		return nil, err
	}
	return records, nil
}

// indexEntries builds the entries from the index records and loads the LoadImmediate ones.
func (p *Package) indexEntries(records []types.EntryIndex) error {
	p.entries = make([]*Entry, 0, len(records))
	for _, rec := range records {
		if rec.Key().EntryID >= p.currID {
			p.currID = rec.Key().EntryID + 1
		}
		entry := newEntry(rec, p.ref)
		entry.markPersisted()
		p.entries = append(p.entries, entry)

		if !rec.LoadImmediate() {
			continue
		}
		if err := entry.Load(); err != nil {
			if p.cfg.LoadImmediateFatal {
				return errors.Wrapf(err, "entry %s::%s is flagged LoadImmediate but could not be loaded", p.name, rec.Name())
			}
			p.log.WithError(err).WithField("entry", rec.Key().String()).Warn("LoadImmediate entry left unloaded")
		}
	}
	return nil
}

// OpenFromCompressed opens a package from a compressed archive. Not implemented.
func OpenFromCompressed(archive, targetDir string, id uint64, opts ...Option) (*Package, error) {
	return nil, errors.Wrapf(errdefs.ErrNotImplemented, "open compressed package %s", archive)
}

// OpenFromUnloaded opens the package a session descriptor points at.
func OpenFromUnloaded(u UnloadedPackage, opts ...Option) (*Package, error) {
	p, err := OpenFromDirectory(u.Target, u.PackageID, opts...)
	if err != nil {
		return nil, err
	}
	if u.Name != "" {
		p.name = u.Name
	}
	return p, nil
}

func (p *Package) pagerOptions() pager.Options {
	return pager.Options{
		AllowGrowth: p.cfg.AllowGrowth,
		CacheBytes:  p.cfg.CacheBytes,
		Logger:      p.log,
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Wrap(errdefs.ErrValidation, "package name is empty")
	}
	if name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) || strings.ContainsRune(name, '/') {
		return errors.Wrapf(errdefs.ErrValidation, "package name %q is not a plain directory name", name)
	}
	return nil
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errdefs.ErrValidation, "%s does not exist", dir)
		}
		return errdefs.IOError(err, "failed to stat %s", dir)
	}
	if !info.IsDir() {
		return errors.Wrapf(errdefs.ErrValidation, "%s is not a directory", dir)
	}
	return nil
}

// Save writes every modified entry, the header when it changed, and rewrites the index.
// It is best effort: a failing entry does not stop the others or the index rewrite, and every
// failure is returned joined. A failed entry keeps its previous index record, which still
// matches its payload on disk; an entry never written successfully is left out of the index.
func (p *Package) Save() error {
	if p.closed {
		return errors.Wrapf(errdefs.ErrState, "package %s is closed", p.name)
	}

	var errs []error
	written := 0
	for _, e := range p.entries {
		if !e.IsModified() {
			if e.persisted != nil {
				// picks up flag changes
				e.markPersisted()
			}
			continue
		}
		if err := e.WriteDataTo(p.pager); err != nil {
			errs = append(errs, err)
			continue
		}
		e.markPersisted()
		written++
	}

	if err := p.header.Write(); err != nil {
		errs = append(errs, err)
	}
	if err := p.writeIndex(); err != nil {
		errs = append(errs, err)
	}
	if err := p.pager.Flush(); err != nil {
		errs = append(errs, err)
	}

	if p.IsCompressed() {
		if err := p.compress(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errdefs.Join(errs...)
	p.log.WithFields(logrus.Fields{
		"written":  written,
		"failures": len(errs),
	}).Info("package saved")
	return err
}

// writeIndex rewrites the index from the persisted records of the entries, so it only ever
// lists payloads that are on disk.
func (p *Package) writeIndex() error {
	records := make([]types.EntryIndex, 0, len(p.entries))
	for _, e := range p.entries {
		if e.persisted != nil {
			records = append(records, *e.persisted)
		}
	}
	return p.index.Write(records)
}

// compress is the hook that would write the package into its compressed location.
func (p *Package) compress() error {
	if p.compressedLocation == "" {
		return errors.Wrapf(errdefs.ErrState, "package %s is compressed but has no compressed location", p.name)
	}
	return errors.Wrapf(errdefs.ErrNotImplemented, "compress package %s", p.name)
}

// Close releases every file and drops the in-memory entries without saving. Every reference
// to the package fails afterwards. Calling it again is a no-op.
func (p *Package) Close() error {
	if p.closed {
		return nil
	}

	dirty := 0
	for _, e := range p.entries {
		if e.IsModified() {
			dirty++
		}
	}
	if dirty > 0 {
		p.log.WithField("unsaved", dirty).Warn("closing package with unsaved entries")
	}

	p.closed = true
	if p.ref != nil {
		p.ref.invalidate()
	}
	p.cleanup.Stop()
	p.entries = nil
	p.released = nil

	err := p.closeFiles()
	p.log.Info("package closed")
	return err
}

func (p *Package) files() packageFiles {
	return packageFiles{header: p.header, index: p.index, pager: p.pager}
}

func (p *Package) closeFiles() error {
	return p.files().close()
}

func (f packageFiles) close() error {
	var errs []error
	if f.index != nil {
		errs = append(errs, f.index.Close())
	}
	if f.header != nil {
		errs = append(errs, f.header.Close())
	}
	if f.pager != nil {
		errs = append(errs, f.pager.Close())
	}
	return errdefs.Join(errs...)
}

// track closes the files of a package that becomes unreachable without Close.
// Unsaved changes are still lost.
func (p *Package) track() {
	log := p.log
	p.cleanup = runtime.AddCleanup(p, func(f packageFiles) {
		err := f.close()
		log.WithError(err).Warn("package collected without Close, files closed")
	}, p.files())
}

func (p *Package) ID() uint64 { return p.id }

func (p *Package) Name() string { return p.name }

func (p *Package) Location() string { return p.location }

func (p *Package) VarLocation() string { return filepath.Join(p.location, VarFile) }

func (p *Package) IsCompressed() bool { return p.state&StateCompressed != 0 }

// Header returns a copy of the header blob.
func (p *Package) Header() []byte { return p.header.Data() }

// SetHeader replaces the header blob; it is written on the next Save.
func (p *Package) SetHeader(data []byte) { p.header.SetData(data) }

func (p *Package) Pager() *pager.Pager { return p.pager }

func (p *Package) Reference() *Reference { return p.ref }

func (p *Package) Config() config.Config { return p.cfg }
