package types

const (
	DefaultUnitSize = 8   // one float64
	DefaultPageSize = 11  // units per page
	MinUnitSize     = 8   // the payload length header needs a full uint64
	MaxUnitSize     = 255 // recorded in one byte of the index header
	MaxPageSize     = 1 << 16
)

// Unit is one fixed-width block of the payload file. Its length is the pager's unit size.
type Unit []byte

// PageID is the zero-based physical index of a page inside the payload file.
type PageID uint32

// ToUnits splits data into unitSize-wide units, zero-padding the last one.
func ToUnits(data []byte, unitSize int) []Unit {
	count := (len(data) + unitSize - 1) / unitSize
	units := make([]Unit, count)
	for i := 0; i < count; i++ {
		u := make(Unit, unitSize)
		copy(u, data[i*unitSize:])
		units[i] = u
	}
	return units
}

// JoinUnits concatenates units back into one byte slice.
func JoinUnits(units []Unit) []byte {
	size := 0
	for _, u := range units {
		size += len(u)
	}
	out := make([]byte, 0, size)
	for _, u := range units {
		out = append(out, u...)
	}
	return out
}

// UnitsFor returns how many units are needed to hold n bytes.
func UnitsFor(n, unitSize int) int {
	return (n + unitSize - 1) / unitSize
}

// PagesFor returns ceil(units / pageSize).
func PagesFor(units, pageSize int) int {
	return (units + pageSize - 1) / pageSize
}
