package index

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Index is the durable snapshot of every entry's metadata in one package (the "index" file).
// It is rewritten in full on every Write; it is never appended to.
type Index struct {
	file     *os.File
	path     string
	geometry Geometry
	log      *logrus.Entry
	closed   bool
}

// Geometry is the payload layout a package was created with. It is recorded in the index
// header so a package always reopens with the unit and page size its pages were written in.
type Geometry struct {
	UnitSize int
	PageSize int
}
