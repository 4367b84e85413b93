package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1
)

var (
	ErrCorrupt = errors.New("musicbox: corrupt entry")
	magic4     = [...]byte{'M', 'B', 'O', 'X'}
)

const entryHeader = 4 + 1 + 1 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | expiresAt(i64 be, unix ms) | vlen(u32 be) | payload(vlen)
//
// expiresAt must be positive. An entry without an expiry cannot be framed.
func EncodeEntry(expiresAtMs int64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(entryHeader + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAtMs))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeEntry returns the expiry and a sub-slice of b holding the payload.
// Missing or non-positive expiry, bad header, truncation and trailing bytes
// are all ErrCorrupt.
func DecodeEntry(b []byte) (expiresAtMs int64, payload []byte, err error) {
	if len(b) < entryHeader || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}

	off := 6

	expiresAtMs = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if expiresAtMs <= 0 {
		return 0, nil, ErrCorrupt
	}

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}

	return expiresAtMs, b[off : off+vlen], nil
}
