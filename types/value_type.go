package types

import "fmt"

// ValueType is the tag recorded for the value stored in an entry.
type ValueType byte

const (
	ValueNone ValueType = iota
	ValueScalar
	ValueVector
	ValueMatrix
)

func (vt ValueType) String() string {
	switch vt {
	case ValueNone:
		return "None"
	case ValueScalar:
		return "Scalar"
	case ValueVector:
		return "Vector"
	case ValueMatrix:
		return "Matrix"
	default:
		return fmt.Sprintf("ValueType(%d)", byte(vt))
	}
}

func (vt ValueType) Valid() bool {
	return vt <= ValueMatrix
}

// EntryKind separates durable entries from scratch ones. Temporary entries may be unnamed.
type EntryKind byte

const (
	EntryPersistent EntryKind = iota
	EntryTemporary
)

func (k EntryKind) String() string {
	switch k {
	case EntryPersistent:
		return "Persistent"
	case EntryTemporary:
		return "Temporary"
	default:
		return fmt.Sprintf("EntryKind(%d)", byte(k))
	}
}

func (k EntryKind) Valid() bool {
	return k <= EntryTemporary
}

// EntryFlags are persisted with the entry's index record.
type EntryFlags byte

const (
	FlagLoadImmediate EntryFlags = 1 << iota
	FlagReadOnly
)

func (f EntryFlags) Has(flag EntryFlags) bool {
	return f&flag != 0
}
