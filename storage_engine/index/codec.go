package index

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"PackageDB/errdefs"
	"PackageDB/types"
)

// File format (little endian):
//   - Header: magic "PKIX"(4), version(2), unitSize(1), pageSize(4), count(4)
//   - Per record: tag 'E'(1), entryID(8), kind(1), nameLen(2) + name, type(1), flags(1),
//     pageCount(4) + pageCount * pageID(4)
//
// The package ID is not stored: it is assigned when a package is opened.
const (
	magic         = "PKIX"
	formatVersion = 1
	headerSize    = 4 + 2 + 1 + 4 + 4
	minRecordSize = 1 + 8 + 1 + 2 + 1 + 1 + 4
	recordTag     = 'E'
	maxNameLen    = math.MaxUint16
)

func encodeIndex(geo Geometry, records []types.EntryIndex) ([]byte, error) {
	buf := make([]byte, 0, headerSize+len(records)*32)

	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint16(buf, formatVersion)
	buf = append(buf, byte(geo.UnitSize))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(geo.PageSize))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(records)))

	for i := range records {
		rec := &records[i]
		name := rec.Name()
		if len(name) > maxNameLen {
			return nil, errors.Wrapf(errdefs.ErrValidation, "entry %s: name is %d bytes (max: %d)", rec.Key(), len(name), maxNameLen)
		}

		buf = append(buf, recordTag)
		buf = binary.LittleEndian.AppendUint64(buf, rec.Key().EntryID)
		buf = append(buf, byte(rec.Kind()))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
		buf = append(buf, byte(rec.Type()), byte(rec.Flags()))

		pages := rec.PageList()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pages)))
		for _, pg := range pages {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(pg))
		}
	}

	return buf, nil
}

// decoder walks the index bytes; every read is bounds checked so truncation surfaces as ErrFormat.
type decoder struct {
	data   []byte
	offset int
}

func (d *decoder) take(n int) ([]byte, error) {
	if d.offset+n > len(d.data) {
		return nil, errors.Wrapf(errdefs.ErrFormat, "index truncated at byte %d (need %d more)", d.offset, n)
	}
	b := d.data[d.offset : d.offset+n]
	d.offset += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func decodeIndex(data []byte, packageID uint64) (Geometry, []types.EntryIndex, error) {
	d := &decoder{data: data}

	tag, err := d.take(len(magic))
	if err != nil {
		return Geometry{}, nil, err
	}
	if string(tag) != magic {
		return Geometry{}, nil, errors.Wrapf(errdefs.ErrFormat, "bad index header tag %q", tag)
	}
	version, err := d.u16()
	if err != nil {
		return Geometry{}, nil, err
	}
	if version != formatVersion {
		return Geometry{}, nil, errors.Wrapf(errdefs.ErrFormat, "unsupported index version %d", version)
	}
	unitSize, err := d.u8()
	if err != nil {
		return Geometry{}, nil, err
	}
	pageSize, err := d.u32()
	if err != nil {
		return Geometry{}, nil, err
	}
	count, err := d.u32()
	if err != nil {
		return Geometry{}, nil, err
	}
	geo := Geometry{UnitSize: int(unitSize), PageSize: int(pageSize)}
	if geo.UnitSize < types.MinUnitSize || pageSize == 0 || pageSize > types.MaxPageSize {
		return Geometry{}, nil, errors.Wrapf(errdefs.ErrFormat, "bad geometry in index: unit %d, page %d", geo.UnitSize, geo.PageSize)
	}

	if int64(count) > int64(len(d.data)-d.offset)/minRecordSize {
		return Geometry{}, nil, errors.Wrapf(errdefs.ErrFormat, "index claims %d records but holds %d bytes of them", count, len(d.data)-d.offset)
	}

	records := make([]types.EntryIndex, 0, count)
	for i := uint32(0); i < count; i++ {
		rec, err := d.record(packageID)
		if err != nil {
			return Geometry{}, nil, errors.Wrapf(err, "record %d", i)
		}
		records = append(records, rec)
	}
	if d.offset != len(d.data) {
		return Geometry{}, nil, errors.Wrapf(errdefs.ErrFormat, "%d trailing bytes after %d records", len(d.data)-d.offset, count)
	}

	return geo, records, nil
}

func (d *decoder) record(packageID uint64) (types.EntryIndex, error) {
	tag, err := d.u8()
	if err != nil {
		return types.EntryIndex{}, err
	}
	if tag != recordTag {
		return types.EntryIndex{}, errors.Wrapf(errdefs.ErrFormat, "bad record tag 0x%02x", tag)
	}
	entryID, err := d.u64()
	if err != nil {
		return types.EntryIndex{}, err
	}
	kindByte, err := d.u8()
	if err != nil {
		return types.EntryIndex{}, err
	}
	kind := types.EntryKind(kindByte)
	if !kind.Valid() {
		return types.EntryIndex{}, errors.Wrapf(errdefs.ErrFormat, "unknown entry kind %d", kindByte)
	}
	nameLen, err := d.u16()
	if err != nil {
		return types.EntryIndex{}, err
	}
	name, err := d.take(int(nameLen))
	if err != nil {
		return types.EntryIndex{}, err
	}
	typeByte, err := d.u8()
	if err != nil {
		return types.EntryIndex{}, err
	}
	vtype := types.ValueType(typeByte)
	if !vtype.Valid() {
		return types.EntryIndex{}, errors.Wrapf(errdefs.ErrFormat, "unknown value type tag %d", typeByte)
	}
	flags, err := d.u8()
	if err != nil {
		return types.EntryIndex{}, err
	}
	pageCount, err := d.u32()
	if err != nil {
		return types.EntryIndex{}, err
	}
	if int64(pageCount)*4 > int64(len(d.data)-d.offset) {
		return types.EntryIndex{}, errors.Wrapf(errdefs.ErrFormat, "page list of %d pages runs past end of index", pageCount)
	}
	pages := make([]types.PageID, pageCount)
	for i := range pages {
		pg, err := d.u32()
		if err != nil {
			return types.EntryIndex{}, err
		}
		pages[i] = types.PageID(pg)
	}

	key := types.NewEntryKey(packageID, entryID)
	return types.NewEntryIndex(key, kind, string(name), vtype, pages, types.EntryFlags(flags)), nil
}
