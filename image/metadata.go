package image

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/internal/binary"
)

// MetadataSignature is the magic number at the start of the metadata root ("BSJB").
const MetadataSignature = 0x424A5342

// Heap size flags in the table stream header.
const (
	heapWideStrings = 0x01
	heapWideGUID    = 0x02
	heapWideBlob    = 0x04
	heapExtraData   = 0x40
)

// Metadata is a parsed metadata root: heaps plus fixed-width row tables.
// Row data is decoded once at parse time and is read-only afterwards.
type Metadata struct {
	Version      string
	Strings      StringHeap
	Blobs        BlobHeap
	GUIDs        GUIDHeap
	UserStrings  UserStringHeap
	Sorted       uint64
	MajorVersion uint16
	MinorVersion uint16
	TablesMajor  uint8
	TablesMinor  uint8

	// Uncompressed is set for the #- table stream, which may carry pointer tables.
	Uncompressed bool

	tables [numTables]rawTable
}

type rawTable struct {
	data []uint32
	rows uint32
	cols int
}

func (t *rawTable) row(n uint32) []uint32 {
	if n == 0 || n > t.rows {
		return nil
	}
	start := int(n-1) * t.cols
	return t.data[start : start+t.cols]
}

// RowCount returns the number of rows in table t.
func (md *Metadata) RowCount(t Table) uint32 {
	if int(t) >= numTables {
		return 0
	}
	return md.tables[t].rows
}

// Valid reports whether tok names an existing row.
func (md *Metadata) Valid(tok Token) bool {
	row := tok.Row()
	return tok != NoToken && row != 0 && row <= md.RowCount(tok.Table())
}

func (md *Metadata) raw(t Table, row uint32) []uint32 {
	if int(t) >= numTables {
		return nil
	}
	return md.tables[t].row(row)
}

// ParseMetadata parses a metadata root (ECMA-335 II.24.2.1).
func ParseMetadata(root []byte) (*Metadata, error) {
	r := binary.NewReader(root)

	sig, err := r.ReadU32()
	if err != nil {
		return nil, errors.ParseFailed("metadata root", r.WrapError("root", err))
	}
	if sig != MetadataSignature {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Entity("metadata root").
			Value(sig).
			Detail("bad signature 0x%08x", sig).
			Build()
	}

	md := &Metadata{}
	if md.MajorVersion, err = r.ReadU16(); err != nil {
		return nil, errors.ParseFailed("metadata root", r.WrapError("root", err))
	}
	if md.MinorVersion, err = r.ReadU16(); err != nil {
		return nil, errors.ParseFailed("metadata root", r.WrapError("root", err))
	}
	if err := r.Skip(4); err != nil {
		return nil, errors.ParseFailed("metadata root", err)
	}
	vlen, err := r.ReadU32()
	if err != nil {
		return nil, errors.ParseFailed("metadata root", r.WrapError("root", err))
	}
	vbytes, err := r.ReadBytes(int(vlen))
	if err != nil {
		return nil, errors.Truncated(errors.PhaseParse, []string{"root", "version"}, int(vlen), r.Len())
	}
	md.Version = StringHeap(vbytes).Get(0)

	if err := r.Skip(2); err != nil { // flags
		return nil, errors.ParseFailed("metadata root", err)
	}
	nstreams, err := r.ReadU16()
	if err != nil {
		return nil, errors.ParseFailed("metadata root", r.WrapError("root", err))
	}

	var tables []byte
	for i := 0; i < int(nstreams); i++ {
		off, err := r.ReadU32()
		if err != nil {
			return nil, errors.ParseFailed("stream header", r.WrapError("streams", err))
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, errors.ParseFailed("stream header", r.WrapError("streams", err))
		}
		name, err := r.ReadCString()
		if err != nil {
			return nil, errors.ParseFailed("stream header", r.WrapError("streams", err))
		}
		if err := r.Align(4); err != nil {
			return nil, errors.ParseFailed("stream header", err)
		}
		if uint64(off)+uint64(size) > uint64(len(root)) {
			return nil, errors.New(errors.PhaseParse, errors.KindOutOfBounds).
				Path("streams", name).
				Entity("stream").
				Value(off).
				Detail("stream [0x%x, 0x%x) past metadata end 0x%x", off, uint64(off)+uint64(size), len(root)).
				Build()
		}
		data := root[off : off+size]

		switch name {
		case "#~":
			tables = data
		case "#-":
			tables = data
			md.Uncompressed = true
		case "#Strings":
			md.Strings = StringHeap(data)
		case "#Blob":
			md.Blobs = BlobHeap(data)
		case "#GUID":
			md.GUIDs = GUIDHeap(data)
		case "#US":
			md.UserStrings = UserStringHeap(data)
		default:
			Logger().Debug("skipping unknown metadata stream", zap.String("name", name))
		}
	}

	if tables == nil {
		return nil, errors.NotFound(errors.PhaseParse, "stream", "#~")
	}
	if err := md.parseTables(tables); err != nil {
		return nil, err
	}
	return md, nil
}

func (md *Metadata) parseTables(data []byte) error {
	r := binary.NewReader(data)

	if err := r.Skip(4); err != nil {
		return errors.ParseFailed("table stream header", err)
	}
	var hdr [4]byte
	for i := range hdr {
		b, err := r.ReadByte()
		if err != nil {
			return errors.Truncated(errors.PhaseParse, []string{"#~", "header"}, 24, len(data))
		}
		hdr[i] = b
	}
	md.TablesMajor, md.TablesMinor = hdr[0], hdr[1]
	heapSizes := hdr[2]

	valid, err := r.ReadU64()
	if err != nil {
		return errors.ParseFailed("table stream header", r.WrapError("#~", err))
	}
	if md.Sorted, err = r.ReadU64(); err != nil {
		return errors.ParseFailed("table stream header", r.WrapError("#~", err))
	}

	l := layout{
		wideString: heapSizes&heapWideStrings != 0,
		wideGUID:   heapSizes&heapWideGUID != 0,
		wideBlob:   heapSizes&heapWideBlob != 0,
	}
	for t := 0; t < 64; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		if t >= numTables {
			return errors.New(errors.PhaseParse, errors.KindUnsupported).
				Path("#~").
				Entity("table").
				Value(t).
				Detail("unknown table 0x%02x present", t).
				Build()
		}
		n, err := r.ReadU32()
		if err != nil {
			return errors.ParseFailed("row counts", r.WrapError("#~", err))
		}
		if n > 0x00FFFFFF {
			return errors.Overflow(errors.PhaseParse, []string{"#~", Table(t).String()}, n, "24-bit row number")
		}
		l.rows[t] = n
	}
	if heapSizes&heapExtraData != 0 {
		if err := r.Skip(4); err != nil {
			return errors.ParseFailed("table stream header", err)
		}
	}

	for t := 0; t < numTables; t++ {
		rows := l.rows[t]
		cols := schemas[t]
		tbl := &md.tables[t]
		tbl.rows = rows
		tbl.cols = len(cols)
		if rows == 0 {
			continue
		}

		wide := make([]bool, len(cols))
		rowSize := 0
		for i, c := range cols {
			wide[i] = l.columnWide(c)
			if wide[i] {
				rowSize += 4
			} else {
				rowSize += 2
			}
		}
		need := int64(rowSize) * int64(rows)
		if need > int64(r.Len()) {
			return errors.Truncated(errors.PhaseParse, []string{"#~", Table(t).String()}, int(need), r.Len())
		}

		tbl.data = make([]uint32, int(rows)*len(cols))
		k := 0
		for row := uint32(0); row < rows; row++ {
			for i := range cols {
				v, err := r.ReadIndex(wide[i])
				if err != nil {
					return errors.ParseFailed("table rows", r.WrapError(Table(t).String(), err))
				}
				tbl.data[k] = v
				k++
			}
		}
	}
	return nil
}
