package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

const (
	version    byte = 1
	kindRecord byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt     = errors.New("recstore: corrupt entry")
	ErrInvalidName = errors.New("recstore: invalid field name length")
	magic4         = [...]byte{'R', 'E', 'C', 'S'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record:
//
//	magic(4) | ver(1) | kind(1=record) | gen(u64 be) | n(u32 be)
//	nameLen(u16 be) | name(nameLen) | vlen(u32 be) | value(vlen)  * n
//
// Fields are written in ascending name order so equal records encode equally.
func EncodeRecord(gen uint64, fields map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(fields))
	total := headerLen
	for name, v := range fields {
		if l := len(name); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("%w: %d", ErrInvalidName, l)
		}
		names = append(names, name)
		total += 2 + len(name) + 4 + len(v)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(names)))
	buf.Write(u4[:])

	for _, name := range names {
		binary.BigEndian.PutUint16(u2[:], uint16(len(name)))
		buf.Write(u2[:])
		buf.WriteString(name)

		v := fields[name]
		binary.BigEndian.PutUint32(u4[:], uint32(len(v)))
		buf.Write(u4[:])
		buf.Write(v)
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses a record frame. Field values alias b.
// Trailing bytes, duplicate names and short frames are rejected.
func DecodeRecord(b []byte) (gen uint64, fields map[string][]byte, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, nil, ErrCorrupt
	}
	off := 6

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// each field needs at least 2+1+4 bytes; refuse absurd counts before allocating
	if n < 0 || n > (len(b)-off)/7 {
		return 0, nil, ErrCorrupt
	}

	fields = make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return 0, nil, ErrCorrupt
		}
		nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if nlen <= 0 || nlen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		name := string(b[off : off+nlen])
		off += nlen

		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		if _, dup := fields[name]; dup {
			return 0, nil, ErrCorrupt
		}
		fields[name] = b[off : off+vlen]
		off += vlen
	}

	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return gen, fields, nil
}
