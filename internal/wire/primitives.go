// Package wire implements the PostgreSQL v3 frontend/backend wire protocol:
// big-endian primitive encoding, frontend message serialization, and backend
// message identification and parsing.
package wire

import "encoding/binary"

// PutUint16 appends v as a big-endian 16-bit integer.
func PutUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// PutUint32 appends v as a big-endian 32-bit integer.
func PutUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// PutInt32 appends v as a big-endian signed 32-bit integer.
func PutInt32(dst []byte, v int32) []byte {
	return PutUint32(dst, uint32(v))
}

// PutCString appends s as its UTF-8 bytes followed by a single 0x00 terminator.
func PutCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

// GetUint16 reads a big-endian 16-bit integer from the front of b.
func GetUint16(b []byte) (uint16, []byte, bool) {
	if len(b) < 2 {
		return 0, b, false
	}
	return binary.BigEndian.Uint16(b[:2]), b[2:], true
}

// GetUint32 reads a big-endian 32-bit integer from the front of b.
func GetUint32(b []byte) (uint32, []byte, bool) {
	if len(b) < 4 {
		return 0, b, false
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], true
}

// GetInt32 reads a big-endian signed 32-bit integer from the front of b.
func GetInt32(b []byte) (int32, []byte, bool) {
	v, rest, ok := GetUint32(b)
	return int32(v), rest, ok
}

// GetCString reads a null-terminated string from the front of b, returning
// the string (without the terminator) and the remainder of b.
func GetCString(b []byte) (string, []byte, bool) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:], true
		}
	}
	return "", b, false
}

// finishFrontendFrame writes the 4-byte big-endian length (4+len(body)) after
// the type tag (if any) and appends the body, which is the serialization
// contract every frontend message follows.
func finishFrontendFrame(dst []byte, tag byte, hasTag bool, body []byte) []byte {
	if hasTag {
		dst = append(dst, tag)
	}
	dst = PutUint32(dst, uint32(4+len(body)))
	return append(dst, body...)
}
