package header

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"PackageDB/errdefs"
)

// Header is the package's opaque header blob (the "header" file). The engine never interprets it;
// it is read whole on open and written back whole on save when it changed.
type Header struct {
	file   *os.File
	path   string
	data   []byte
	dirty  bool
	closed bool
}

// Open opens or creates the header file and reads its content.
func Open(path string) (*Header, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errdefs.IOError(err, "failed to open header file %s", path)
	}
	h := &Header{file: file, path: path}
	if err := h.Read(); err != nil {
		file.Close()
		return nil, err
	}
	return h, nil
}

// Read reloads the blob from disk, dropping any unsaved change.
func (h *Header) Read() error {
	if h.closed {
		return errors.Wrapf(errdefs.ErrState, "header %s is closed", h.path)
	}
	data, err := io.ReadAll(io.NewSectionReader(h.file, 0, 1<<62))
	if err != nil {
		return errdefs.IOError(err, "failed to read header %s", h.path)
	}
	h.data = data
	h.dirty = false
	return nil
}

// Data returns a copy of the blob.
func (h *Header) Data() []byte {
	return append([]byte(nil), h.data...)
}

func (h *Header) SetData(data []byte) {
	h.data = append([]byte(nil), data...)
	h.dirty = true
}

func (h *Header) IsModified() bool { return h.dirty }

// Write replaces the file content with the blob if it changed since the last read or write.
func (h *Header) Write() error {
	if h.closed {
		return errors.Wrapf(errdefs.ErrState, "header %s is closed", h.path)
	}
	if !h.dirty {
		return nil
	}
	if err := h.file.Truncate(0); err != nil {
		return errdefs.IOError(err, "failed to truncate header %s", h.path)
	}
	if _, err := h.file.WriteAt(h.data, 0); err != nil {
		return errdefs.IOError(err, "failed to write header %s", h.path)
	}
	if err := h.file.Sync(); err != nil {
		return errdefs.IOError(err, "failed to sync header %s", h.path)
	}
	h.dirty = false
	return nil
}

// Close releases the file handle without writing. Calling it again is a no-op.
func (h *Header) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.file.Close(); err != nil {
		return errdefs.IOError(err, "failed to close header %s", h.path)
	}
	return nil
}
