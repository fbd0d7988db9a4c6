package index

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"PackageDB/errdefs"
	"PackageDB/types"
)

/*
This file is the main access of the Index.
The index persists the metadata of a package's entries (key, name, type, flags, page list) but never
their payload. It is loaded once when the package opens and written back whole on every save, so the
file is always a complete snapshot, not a log.
*/

// Open opens or creates the index file. geo is used until the file is read or written;
// ReadIndex replaces it with whatever geometry the file records.
func Open(path string, geo Geometry, log *logrus.Entry) (*Index, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errdefs.IOError(err, "failed to open index file %s", path)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Index{
		file:     file,
		path:     path,
		geometry: geo,
		log:      log.WithField("module", "index"),
	}, nil
}

func (ix *Index) Geometry() Geometry { return ix.geometry }

func (ix *Index) Path() string { return ix.path }

// ReadIndex parses the whole file. An empty file (fresh package) yields no records.
// Every key is stamped with packageID, the ID the package was opened under.
func (ix *Index) ReadIndex(packageID uint64) ([]types.EntryIndex, error) {
	if ix.closed {
		return nil, errors.Wrapf(errdefs.ErrState, "index %s is closed", ix.path)
	}

	data, err := io.ReadAll(io.NewSectionReader(ix.file, 0, 1<<62))
	if err != nil {
		return nil, errdefs.IOError(err, "failed to read index %s", ix.path)
	}
	if len(data) == 0 {
		return nil, nil
	}

	geo, records, err := decodeIndex(data, packageID)
	if err != nil {
		return nil, errors.Wrapf(err, "index %s", ix.path)
	}
	ix.geometry = geo

	ix.log.WithFields(logrus.Fields{
		"path":    ix.path,
		"entries": len(records),
	}).Debug("index read")
	return records, nil
}

// Write replaces the file content with the given records, in order.
func (ix *Index) Write(records []types.EntryIndex) error {
	if ix.closed {
		return errors.Wrapf(errdefs.ErrState, "index %s is closed", ix.path)
	}

	data, err := encodeIndex(ix.geometry, records)
	if err != nil {
		return err
	}

	if err := ix.file.Truncate(0); err != nil {
		return errdefs.IOError(err, "failed to truncate index %s", ix.path)
	}
	if _, err := ix.file.WriteAt(data, 0); err != nil {
		return errdefs.IOError(err, "failed to write index %s", ix.path)
	}
	if err := ix.file.Sync(); err != nil {
		return errdefs.IOError(err, "failed to sync index %s", ix.path)
	}

	ix.log.WithFields(logrus.Fields{
		"path":    ix.path,
		"entries": len(records),
		"bytes":   len(data),
	}).Debug("index written")
	return nil
}

// Close releases the file handle. Calling it again is a no-op.
func (ix *Index) Close() error {
	if ix.closed {
		return nil
	}
	ix.closed = true
	if err := ix.file.Close(); err != nil {
		return errdefs.IOError(err, "failed to close index %s", ix.path)
	}
	return nil
}
