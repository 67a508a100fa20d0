// Package bitutil holds the byte-order and hex helpers shared by the
// codec, job builder, and mining kernel.
package bitutil

import "encoding/hex"

// ReverseBytes reverses a byte slice in place and returns it.
func ReverseBytes(b []byte) []byte {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// ReverseBytesCopy returns a reversed copy, leaving b untouched.
func ReverseBytesCopy(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return ReverseBytes(out)
}

// DecodeHex decodes a hex string, returning an error on malformed input.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// EncodeHex lowercase-encodes bytes to hex.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// BEUint32 reads a big-endian uint32 from the first 4 bytes of b.
func BEUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// PutBEUint32 writes v as big-endian into the first 4 bytes of b.
func PutBEUint32(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// LEUint32 reads a little-endian uint32 from the first 4 bytes of b.
func LEUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// PutLEUint32 writes v as little-endian into the first 4 bytes of b.
func PutLEUint32(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// BEBytes serialises x into a big-endian byte slice of the given width.
func BEBytes(x uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[width-1-i] = byte(x >> uint(8*i))
	}
	return out
}

// LEBytes serialises x into a little-endian byte slice of the given
// width, the counterpart to BEBytes for wire formats (raw block
// submission, varint encoding) that pack integers little-endian.
func LEBytes(x uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(x >> uint(8*i))
	}
	return out
}

// VarInt encodes x as a Bitcoin CompactSize integer.
func VarInt(x uint64) []byte {
	switch {
	case x < 0xfd:
		return []byte{byte(x)}
	case x <= 0xffff:
		return append([]byte{0xfd}, LEBytes(x, 2)...)
	case x <= 0xffffffff:
		return append([]byte{0xfe}, LEBytes(x, 4)...)
	default:
		return append([]byte{0xff}, LEBytes(x, 8)...)
	}
}

// RestorePrevHashWordOrder un-reverses the 4-byte word order Stratum pools
// use when they hand back a previous-block hash, so that the header packs
// its 32 bytes in the order a reference client would serialise them.
func RestorePrevHashWordOrder(prevHash []byte) []byte {
	restored := make([]byte, len(prevHash))
	for i := 0; i < len(prevHash); i += 4 {
		copy(restored[len(prevHash)-i-4:len(prevHash)-i], prevHash[i:i+4])
	}
	return restored
}
