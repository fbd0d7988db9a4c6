package index

import (
	"fmt"
	"io"
	"os"

	"PackageDB/errdefs"
)

// InspectFile prints a human-readable dump of an index file to stdout.
func InspectFile(path string) error {
	return InspectFileTo(os.Stdout, path)
}

// InspectFileTo writes the geometry recorded in the index file at path, then one line per
// entry record with its pages in stream order. The file is opened read-only.
func InspectFileTo(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errdefs.IOError(err, "read index file %s", path)
	}

	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	p("Index file: %s (%d bytes)\n", path, len(data))
	if len(data) == 0 {
		p("  (empty index)\n")
		return nil
	}

	geo, records, err := decodeIndex(data, 0)
	if err != nil {
		return err
	}
	p("  Geometry: unit size = %d bytes, page size = %d units\n", geo.UnitSize, geo.PageSize)
	p("  Entries: %d\n", len(records))
	p("  ---\n")
	for i := range records {
		rec := &records[i]
		p("  E%-4d %-10s %-7s %-16q flags=%02b pages=%v\n",
			rec.Key().EntryID, rec.Kind(), rec.Type(), rec.Name(), rec.Flags(), rec.PageList())
	}
	return nil
}
