package image

import (
	"bytes"
	"unicode/utf16"

	"github.com/wippyai/clrmeta/internal/binary"
)

// StringHeap is the #Strings heap: NUL-terminated UTF-8 strings.
type StringHeap []byte

// Get returns the string at off. Offsets past the heap yield "".
func (h StringHeap) Get(off uint32) string {
	if int64(off) >= int64(len(h)) {
		return ""
	}
	s := h[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// BlobHeap is the #Blob heap: length-prefixed byte sequences.
type BlobHeap []byte

// Get returns the blob at off, aliasing the heap. Malformed offsets yield nil.
func (h BlobHeap) Get(off uint32) []byte {
	if off == 0 || int64(off) >= int64(len(h)) {
		return nil
	}
	r := binary.NewReader(h[off:])
	n, err := r.ReadCompressedU32()
	if err != nil {
		return nil
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return nil
	}
	return b
}

// GUIDHeap is the #GUID heap: 16-byte entries addressed from 1.
type GUIDHeap []byte

// GUID is a 16-byte identifier in its on-disk byte order.
type GUID [16]byte

// Get returns GUID number idx. Index 0 and out-of-range indexes yield the zero GUID.
func (h GUIDHeap) Get(idx uint32) GUID {
	var g GUID
	if idx == 0 || int64(idx)*16 > int64(len(h)) {
		return g
	}
	copy(g[:], h[(idx-1)*16:idx*16])
	return g
}

// UserStringHeap is the #US heap: length-prefixed UTF-16LE strings with a trailing flag byte.
type UserStringHeap []byte

// Get returns the user string at off.
func (h UserStringHeap) Get(off uint32) (string, bool) {
	b := BlobHeap(h).Get(off)
	if b == nil {
		return "", false
	}
	n := len(b) / 2
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), true
}
