// Package fileedit implements the C6 file edit primitive: encoding-aware
// line and byte-offset mutation with per-path serialization (spec §4.6).
// Every write round-trips through the same encoding the file was read with.
package fileedit

import (
	"bytes"
	"unicode/utf16"
)

// Encoding identifies the byte encoding detected from (or written to) a file.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingUTF8BOM
	EncodingUTF16LE
	EncodingUTF16BE
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// detectEncoding inspects a leading byte-order mark. Absent any BOM, the
// content is assumed to be UTF-8 without one (the common case).
func detectEncoding(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	default:
		return EncodingUTF8
	}
}

// decode converts raw file bytes to a UTF-8 string, stripping any BOM and
// widening UTF-16 code units. The returned Encoding records exactly what
// was detected so encode can reproduce it byte-for-byte on write.
func decode(data []byte) (string, Encoding) {
	enc := detectEncoding(data)
	switch enc {
	case EncodingUTF8BOM:
		return string(data[len(bomUTF8):]), enc
	case EncodingUTF16LE:
		return decodeUTF16(data[len(bomUTF16LE):], false), enc
	case EncodingUTF16BE:
		return decodeUTF16(data[len(bomUTF16BE):], true), enc
	default:
		return string(data), enc
	}
}

func decodeUTF16(data []byte, bigEndian bool) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		if bigEndian {
			units[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
		} else {
			units[i] = uint16(data[2*i+1])<<8 | uint16(data[2*i])
		}
	}
	return string(utf16.Decode(units))
}

// encode converts a UTF-8 string back to raw bytes matching enc, restoring
// whatever BOM was detected on read so the write is a faithful round-trip.
func encode(s string, enc Encoding) []byte {
	switch enc {
	case EncodingUTF8BOM:
		return append(append([]byte{}, bomUTF8...), []byte(s)...)
	case EncodingUTF16LE:
		return append(append([]byte{}, bomUTF16LE...), encodeUTF16(s, false)...)
	case EncodingUTF16BE:
		return append(append([]byte{}, bomUTF16BE...), encodeUTF16(s, true)...)
	default:
		return []byte(s)
	}
}

func encodeUTF16(s string, bigEndian bool) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		if bigEndian {
			out[2*i] = byte(u >> 8)
			out[2*i+1] = byte(u)
		} else {
			out[2*i] = byte(u)
			out[2*i+1] = byte(u >> 8)
		}
	}
	return out
}
