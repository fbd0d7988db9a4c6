package types

// EntryIndex is the metadata record of one stored value: identity, name, value type and the
// ordered list of pages holding its payload. It never holds the payload itself.
type EntryIndex struct {
	key      EntryKey
	kind     EntryKind
	name     string
	vtype    ValueType
	pages    []PageID
	flags    EntryFlags
	modified bool
}

func NewEntryIndex(key EntryKey, kind EntryKind, name string, vtype ValueType, pages []PageID, flags EntryFlags) EntryIndex {
	return EntryIndex{
		key:   key,
		kind:  kind,
		name:  name,
		vtype: vtype,
		pages: append([]PageID(nil), pages...),
		flags: flags,
	}
}

func (ei EntryIndex) Key() EntryKey { return ei.key }
func (ei EntryIndex) Kind() EntryKind { return ei.kind }
func (ei EntryIndex) Name() string { return ei.name }
func (ei EntryIndex) Type() ValueType { return ei.vtype }
func (ei EntryIndex) Flags() EntryFlags { return ei.flags }
func (ei EntryIndex) IsModified() bool { return ei.modified }
func (ei EntryIndex) LoadImmediate() bool { return ei.flags.Has(FlagLoadImmediate) }
func (ei EntryIndex) ReadOnly() bool { return ei.flags.Has(FlagReadOnly) }

// PageList returns the entry's pages in stream order. The slice is shared; do not modify it.
func (ei EntryIndex) PageList() []PageID { return ei.pages }

// Capacity is the number of units the entry's pages can hold.
func (ei EntryIndex) Capacity(pageSize int) int { return len(ei.pages) * pageSize }

func (ei *EntryIndex) SetModified(modified bool) { ei.modified = modified }
func (ei *EntryIndex) SetType(vtype ValueType) { ei.vtype = vtype }

// SetPageList replaces the page list. Only the pager should call this, as part of allocation.
func (ei *EntryIndex) SetPageList(pages []PageID) { ei.pages = pages }

// SetPackageID re-stamps the key when a package is opened under a new ID.
func (ei *EntryIndex) SetPackageID(id uint64) { ei.key.PackageID = id }

func (ei *EntryIndex) SetLoadImmediate(on bool) { ei.setFlag(FlagLoadImmediate, on) }
func (ei *EntryIndex) SetReadOnly(on bool) { ei.setFlag(FlagReadOnly, on) }

func (ei *EntryIndex) setFlag(flag EntryFlags, on bool) {
	if on {
		ei.flags |= flag
	} else {
		ei.flags &^= flag
	}
}
