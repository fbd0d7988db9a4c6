package pager

import (
	"os"

	"github.com/sirupsen/logrus"

	"PackageDB/types"
)

// ############################################# PAGER #############################################

// Pager owns the payload file of one package. It hands out pages to entries and turns an entry's
// page list into a flat stream of units. It is not safe for concurrent use: one bound entry at a time.
type Pager struct {
	file        *os.File
	path        string
	unitSize    int
	pageSize    int // units per page
	allowGrowth bool

	used      []bool // used[pageID] for every page known to the pager
	freeCount int

	binding  *types.EntryIndex
	location Position
	boundEOF bool

	cache  *pageCache
	log    *logrus.Entry
	closed bool
}

// Position is a cursor location inside the bound entry: index into its page list, unit inside that page.
type Position struct {
	Page int
	Unit int
}

// Options tune a pager beyond its geometry.
type Options struct {
	// AllowGrowth appends pages at end of file when the free set cannot satisfy an allocation.
	AllowGrowth bool
	// CacheBytes bounds the page read cache; 0 disables it.
	CacheBytes int64
	Logger     *logrus.Entry
}

// Stats is a snapshot of the pager's bookkeeping.
type Stats struct {
	UnitSize    int
	PageSize    int
	TotalPages  int
	UsedPages   int
	FreePages   int
	FileBytes   int64
	CacheHits   uint64
	CacheMisses uint64
}
