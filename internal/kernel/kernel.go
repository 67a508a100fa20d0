// Package kernel implements the bit-exact double-SHA256 proof-of-work
// search. Per-batch state that never varies with the nonce — the
// cached midstate, the block tail's first three words, W[16]/W[17],
// and the compression state through round 2 — is baked once; each
// candidate nonce then runs a cheap partial round 3, the full first
// hash, and the second hash's rounds 0-60 before an early termination
// check decides whether rounds 61-63 of the second hash are worth
// paying for.
package kernel

import (
	"encoding/binary"

	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/sha256core"
)

func rotr(x uint32, n uint) uint32 { return (x >> n) | (x << (32 - n)) }

func ch(x, y, z uint32) uint32  { return z ^ (x & (y ^ z)) }
func maj(x, y, z uint32) uint32 { return (x & y) | (z & (x ^ y)) }
func ep0(x uint32) uint32       { return rotr(x, 2) ^ rotr(x, 13) ^ rotr(x, 22) }
func ep1(x uint32) uint32       { return rotr(x, 6) ^ rotr(x, 11) ^ rotr(x, 25) }
func sig0(x uint32) uint32      { return rotr(x, 7) ^ rotr(x, 18) ^ (x >> 3) }
func sig1(x uint32) uint32      { return rotr(x, 17) ^ rotr(x, 19) ^ (x >> 10) }

// earlyTerminationMask is the low 16 bits state se must carry after
// round 60 of the second compression (before the IV[7] addition folds
// in) for the final digest word 7, IV[7]+se, to end in 16 zero bits.
// Rejects roughly 99.998% of candidates before they reach the
// expensive final three rounds of the second hash.
const earlyTerminationMask = 0x32E7

// baked holds the per-batch precomputation that doesn't depend on the
// nonce: the block tail's leading words, the two W-schedule entries
// that only ever mix zero terms, and the compression state through
// round 2. Round 3's t2 term is also nonce-independent (only t1 mixes
// in W[3]) so it is baked too.
type baked struct {
	w0, w1, w2             uint32
	w16, w17               uint32
	a, b, c, d, e, f, g, h uint32
	t1Base, t2             uint32
}

func bakeState(midstate [8]uint32, tail [16]byte) baked {
	var bk baked
	bk.w0 = binary.BigEndian.Uint32(tail[0:4])
	bk.w1 = binary.BigEndian.Uint32(tail[4:8])
	bk.w2 = binary.BigEndian.Uint32(tail[8:12])

	// W[9], W[10], W[14] are zero and W[15]=640 is the 640-bit length
	// field of the 80-byte header; SIG1(0) and SIG0 of a zero term both
	// vanish cleanly into these two entries.
	bk.w16 = sig1(0) + sig0(bk.w1) + bk.w0
	bk.w17 = sig1(640) + sig0(bk.w2) + bk.w1

	a, b, c, d, e, f, g, h := midstate[0], midstate[1], midstate[2], midstate[3], midstate[4], midstate[5], midstate[6], midstate[7]
	for i, w := range [3]uint32{bk.w0, bk.w1, bk.w2} {
		t1 := h + ep1(e) + ch(e, f, g) + sha256core.K[i] + w
		t2 := ep0(a) + maj(a, b, c)
		h, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}
	bk.a, bk.b, bk.c, bk.d, bk.e, bk.f, bk.g, bk.h = a, b, c, d, e, f, g, h

	bk.t1Base = h + ep1(e) + ch(e, f, g) + sha256core.K[3]
	bk.t2 = ep0(a) + maj(a, b, c)
	return bk
}

// sha256dBaked runs one candidate nonce through the baked first hash in
// full, then the second hash through round 60, and checks the second
// hash's residual there before paying for its last three rounds. ok is
// false when the early termination check rejected the candidate.
func sha256dBaked(midstate [8]uint32, bk baked, nonce uint32) (final [8]uint32, ok bool) {
	var w [64]uint32
	w[0], w[1], w[2] = bk.w0, bk.w1, bk.w2
	w[3] = nonce
	w[4] = 0x80000000
	w[15] = 640
	w[16] = bk.w16
	w[17] = bk.w17
	for i := 18; i < 64; i++ {
		w[i] = sig1(w[i-2]) + w[i-7] + sig0(w[i-15]) + w[i-16]
	}

	a, b, c, d, e, f, g, h := bk.a, bk.b, bk.c, bk.d, bk.e, bk.f, bk.g, bk.h

	t1 := bk.t1Base + nonce
	t2 := bk.t2
	h, g, f, e = g, f, e, d+t1
	d, c, b, a = c, b, a, t1+t2

	for i := 4; i < 64; i++ {
		t1 := h + ep1(e) + ch(e, f, g) + sha256core.K[i] + w[i]
		t2 := ep0(a) + maj(a, b, c)
		h, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}

	first := [8]uint32{
		midstate[0] + a, midstate[1] + b, midstate[2] + c, midstate[3] + d,
		midstate[4] + e, midstate[5] + f, midstate[6] + g, midstate[7] + h,
	}

	var w2 [64]uint32
	copy(w2[:8], first[:])
	w2[8] = 0x80000000
	w2[15] = 256
	for i := 16; i < 64; i++ {
		w2[i] = sig1(w2[i-2]) + w2[i-7] + sig0(w2[i-15]) + w2[i-16]
	}

	sa, sb, sc, sd := sha256core.IV[0], sha256core.IV[1], sha256core.IV[2], sha256core.IV[3]
	se, sf, sg, sh := sha256core.IV[4], sha256core.IV[5], sha256core.IV[6], sha256core.IV[7]
	for i := 0; i <= 60; i++ {
		t1 := sh + ep1(se) + ch(se, sf, sg) + sha256core.K[i] + w2[i]
		t2 := ep0(sa) + maj(sa, sb, sc)
		sh, sg, sf, se = sg, sf, se, sd+t1
		sd, sc, sb, sa = sc, sb, sa, t1+t2
	}

	// After round 60 of the second compression, se is the value that
	// becomes the final digest's word[7] contribution: three more
	// rounds only rotate it through sf/sg/sh without touching it
	// further.
	if se&0xFFFF != earlyTerminationMask {
		return final, false
	}

	for i := 61; i < 64; i++ {
		t1 := sh + ep1(se) + ch(se, sf, sg) + sha256core.K[i] + w2[i]
		t2 := ep0(sa) + maj(sa, sb, sc)
		sh, sg, sf, se = sg, sf, se, sd+t1
		sd, sc, sb, sa = sc, sb, sa, t1+t2
	}

	final = [8]uint32{
		sha256core.IV[0] + sa, sha256core.IV[1] + sb, sha256core.IV[2] + sc, sha256core.IV[3] + sd,
		sha256core.IV[4] + se, sha256core.IV[5] + sf, sha256core.IV[6] + sg, sha256core.IV[7] + sh,
	}
	return final, true
}

// meetsTarget reports whether hash (big-endian words, word 0 most
// significant) is numerically <= target under the same word ordering.
func meetsTarget(hash, target [8]uint32) bool {
	for i := 0; i < 8; i++ {
		if hash[i] > target[i] {
			return false
		}
		if hash[i] < target[i] {
			return true
		}
	}
	return true
}

// Search runs the nonce-range exhaustive search for mj, polling cancel
// before each candidate so a caller can abort on a job-version change
// without waiting for the whole range. It returns the winning nonce
// and true, or false if the range was exhausted or cancel returned
// true first.
func Search(mj job.MiningJob, cancel func() bool) (nonce uint32, found bool) {
	var midstate [8]uint32
	for i := 0; i < 8; i++ {
		midstate[i] = binary.BigEndian.Uint32(mj.Midstate[i*4:])
	}

	bk := bakeState(midstate, mj.Tail)

	n := mj.NonceStart
	for {
		if cancel != nil && cancel() {
			return 0, false
		}

		if final, ok := sha256dBaked(midstate, bk, n); ok && meetsTarget(final, mj.Target) {
			return n, true
		}

		if n == mj.NonceEnd {
			return 0, false
		}
		n++
	}
}

// HashesPerCall is the number of sha256dBaked evaluations a single
// Search call over [start, end] performs, used by callers sizing
// batches for cooperative cancellation granularity.
func HashesPerCall(start, end uint32) uint64 {
	return uint64(end-start) + 1
}
