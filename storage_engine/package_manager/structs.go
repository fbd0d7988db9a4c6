package packagemanager

import (
	"runtime"
	"sync"
	"weak"

	"github.com/sirupsen/logrus"

	"PackageDB/config"
	"PackageDB/storage_engine/header"
	"PackageDB/storage_engine/index"
	"PackageDB/storage_engine/pager"
	"PackageDB/types"
)

// File names inside a package directory.
const (
	HeaderFile = "header"
	IndexFile  = "index"
	VarFile    = "var"
)

// State is the package state bitmask.
type State uint8

const (
	StateCompressed State = 1 << iota
)

// Package is one directory of stored values: an opaque header, the entry index and the
// paged payload file, plus the in-memory entries built from the index.
type Package struct {
	id                 uint64
	name               string
	location           string
	compressedLocation string
	state              State

	header *header.Header
	index  *index.Index
	pager  *pager.Pager

	entries  []*Entry
	released []*Entry // handed out by ReleaseEntry, their pages still reserved
	currID   uint64   // next EntryID to hand out

	ref     *Reference
	cfg     config.Config
	log     *logrus.Entry
	closed  bool
	cleanup runtime.Cleanup
}

// packageFiles are the open files of a package, closed by Close or, failing that, when the
// package is collected.
type packageFiles struct {
	header *header.Header
	index  *index.Index
	pager  *pager.Pager
}

// UnloadedPackage describes a package the session knows about but has not opened yet.
type UnloadedPackage struct {
	Name      string
	Target    string // package directory
	PackageID uint64
}

// Reference is the one shared, non-owning handle to a package. Entries and outside code hold it
// instead of the *Package so they never keep a package alive, and it fails once the package closed.
type Reference struct {
	mu    sync.RWMutex
	pkg   weak.Pointer[Package]
	alive bool
}

// EntryReference addresses "entry Key of the package behind Ref" without loading anything.
type EntryReference struct {
	Ref *Reference
	Key types.EntryKey
}

// EntryState is where an entry is in its lifecycle.
type EntryState uint8

const (
	Unmaterialized EntryState = iota // index known, no value in memory
	Loaded                           // value (possibly none) in memory
	Deleted                          // value dropped and pages zeroed by Reset
)

// DataState is the answer of Entry.HasData.
type DataState uint8

const (
	NotLoaded DataState = iota
	LoadedEmpty
	LoadedValue
)

// Entry is one named, typed, lazily loaded value of a package.
type Entry struct {
	index    types.EntryIndex
	value    types.Value
	state    EntryState
	modified bool
	parent   *Reference

	// persisted is the record the index file holds for this entry, nil while it has none.
	persisted *types.EntryIndex
}

type options struct {
	cfg config.Config
	log *logrus.Entry
}

// Option customizes how a package is created or opened.
type Option func(*options)
