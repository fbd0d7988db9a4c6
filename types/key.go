package types

import "fmt"

// EntryKey addresses one entry globally: the package it lives in plus its ID inside that package.
type EntryKey struct {
	PackageID uint64 `json:"package_id"`
	EntryID   uint64 `json:"entry_id"`
}

func NewEntryKey(packageID, entryID uint64) EntryKey {
	return EntryKey{PackageID: packageID, EntryID: entryID}
}

func (k EntryKey) Equal(other EntryKey) bool {
	return k.PackageID == other.PackageID && k.EntryID == other.EntryID
}

func (k EntryKey) String() string {
	return fmt.Sprintf("P%d:E%d", k.PackageID, k.EntryID)
}
