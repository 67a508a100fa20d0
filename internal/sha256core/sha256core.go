// Package sha256core implements FIPS-180-4 SHA-256, specialised for
// double-hashing an 80-byte Bitcoin block header with midstate reuse
// across the constant first 64 bytes.
package sha256core

import "encoding/binary"

// K holds the 64 SHA-256 round constants.
var K = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// IV holds the standard SHA-256 initial hash value.
var IV = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

func rotr(x uint32, n uint) uint32 { return (x >> n) | (x << (32 - n)) }

func ch(x, y, z uint32) uint32  { return z ^ (x & (y ^ z)) }
func maj(x, y, z uint32) uint32 { return (x & y) | (z & (x ^ y)) }
func ep0(x uint32) uint32       { return rotr(x, 2) ^ rotr(x, 13) ^ rotr(x, 22) }
func ep1(x uint32) uint32       { return rotr(x, 6) ^ rotr(x, 11) ^ rotr(x, 25) }
func sig0(x uint32) uint32      { return rotr(x, 7) ^ rotr(x, 18) ^ (x >> 3) }
func sig1(x uint32) uint32      { return rotr(x, 17) ^ rotr(x, 19) ^ (x >> 10) }

// Transform applies the SHA-256 compression function to a single
// 64-byte block, updating state in place.
func Transform(state *[8]uint32, block []byte) {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(block[i*4:])
	}
	for i := 16; i < 64; i++ {
		w[i] = sig1(w[i-2]) + w[i-7] + sig0(w[i-15]) + w[i-16]
	}

	a, b, c, d, e, f, g, h := state[0], state[1], state[2], state[3], state[4], state[5], state[6], state[7]

	for i := 0; i < 64; i++ {
		t1 := h + ep1(e) + ch(e, f, g) + K[i] + w[i]
		t2 := ep0(a) + maj(a, b, c)
		h, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}

	state[0] += a
	state[1] += b
	state[2] += c
	state[3] += d
	state[4] += e
	state[5] += f
	state[6] += g
	state[7] += h
}

// Context is a streaming SHA-256 hash state.
type Context struct {
	state     [8]uint32
	buffer    [64]byte
	byteCount uint64
}

// Init returns a freshly initialised streaming context.
func Init() *Context {
	return &Context{state: IV}
}

// Update accumulates more data into the context, correctly handling
// chunks that are not 64-byte aligned.
func (c *Context) Update(data []byte) {
	bufIdx := int(c.byteCount % 64)
	c.byteCount += uint64(len(data))

	if bufIdx > 0 {
		toCopy := 64 - bufIdx
		if toCopy > len(data) {
			toCopy = len(data)
		}
		copy(c.buffer[bufIdx:], data[:toCopy])
		data = data[toCopy:]
		bufIdx += toCopy
		if bufIdx == 64 {
			Transform(&c.state, c.buffer[:])
		}
	}

	for len(data) >= 64 {
		Transform(&c.state, data[:64])
		data = data[64:]
	}

	if len(data) > 0 {
		copy(c.buffer[:], data)
	}
}

// Finalize appends the standard padding (0x80, zero run, 64-bit
// big-endian bit length) and returns the 32-byte digest.
func (c *Context) Finalize() [32]byte {
	bufIdx := int(c.byteCount % 64)
	c.buffer[bufIdx] = 0x80
	bufIdx++

	if bufIdx > 56 {
		for i := bufIdx; i < 64; i++ {
			c.buffer[i] = 0
		}
		Transform(&c.state, c.buffer[:])
		bufIdx = 0
	}

	for i := bufIdx; i < 56; i++ {
		c.buffer[i] = 0
	}

	bitLen := c.byteCount * 8
	binary.BigEndian.PutUint64(c.buffer[56:], bitLen)
	Transform(&c.state, c.buffer[:])

	var out [32]byte
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(out[i*4:], c.state[i])
	}
	return out
}

// Hash is a one-shot SHA-256 over data.
func Hash(data []byte) [32]byte {
	ctx := Init()
	ctx.Update(data)
	return ctx.Finalize()
}

// DoubleHash computes SHA-256(SHA-256(data)).
func DoubleHash(data []byte) [32]byte {
	first := Hash(data)
	return Hash(first[:])
}

// Midstate runs the compression function once over the first 64 bytes
// of an 80-byte block header, starting from IV, without finalising.
// The result is exportable state reused across every nonce in a batch
// since those 64 bytes never change.
func Midstate(first64 []byte) [8]uint32 {
	state := IV
	Transform(&state, first64[:64])
	return state
}

// MidstateBytes is Midstate with the state serialised big-endian.
func MidstateBytes(first64 []byte) [32]byte {
	state := Midstate(first64)
	var out [32]byte
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(out[i*4:], state[i])
	}
	return out
}
