package job

import (
	"encoding/binary"
	"math/big"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/sha256core"
)

// diff1Target is the Bitcoin "pool difficulty 1" base target:
// 0x00000000FFFF0000000000000000000000000000000000000000000000000000.
var diff1Target = func() *big.Int {
	t := new(big.Int)
	t.SetString("00000000ffff0000000000000000000000000000000000000000000000000000", 16)
	return t
}()

// Build assembles a MiningJob from a StratumJob plus the current
// nonce-range assignment, per spec.md §4.6:
//  1. coinbase = cb1 ‖ extranonce1 ‖ BE(extranonce2) ‖ cb2
//  2. merkle_root = double_hash(coinbase), folded with each branch
//  3. 80-byte header = LE32(version) ‖ prev_hash ‖ merkle_root ‖ LE32(ntime) ‖ LE32(nbits) ‖ 0
//  4. midstate = sha256_midstate(header[0:64])
//  5. tail = header[64:80]
//  6. target = floor(diff1Target / difficulty), as 8 big-endian uint32 words
func Build(sj StratumJob, alg algorithm.Algorithm, nonceStart, nonceEnd uint32) MiningJob {
	hashFunc := alg.HashFunc()

	en2 := make([]byte, sj.Extranonce2Size)
	putBE(en2, sj.Extranonce2)

	coinbase := make([]byte, 0, len(sj.Coinb1)+len(sj.Extranonce1)+len(en2)+len(sj.Coinb2))
	coinbase = append(coinbase, sj.Coinb1...)
	coinbase = append(coinbase, sj.Extranonce1...)
	coinbase = append(coinbase, en2...)
	coinbase = append(coinbase, sj.Coinb2...)

	merkleRoot := hashFunc(coinbase)
	for _, branch := range sj.MerkleBranches {
		buf := make([]byte, 0, len(merkleRoot)+32)
		buf = append(buf, merkleRoot...)
		buf = append(buf, branch[:]...)
		merkleRoot = hashFunc(buf)
	}

	header := make([]byte, 80)
	binary.LittleEndian.PutUint32(header[0:4], sj.Version)
	copy(header[4:36], sj.PrevHash[:])
	copy(header[36:68], merkleRoot)
	binary.LittleEndian.PutUint32(header[68:72], sj.NTime)
	binary.LittleEndian.PutUint32(header[72:76], sj.NBits)
	// header[76:80] nonce slot left zero; workers fill it per-candidate.

	mj := MiningJob{
		NonceStart:  nonceStart,
		NonceEnd:    nonceEnd,
		JobID:       sj.JobID,
		Extranonce2: sj.Extranonce2,
		NTime:       sj.NTime,
	}
	mj.Midstate = sha256core.MidstateBytes(header[:64])
	copy(mj.Tail[:], header[64:80])
	mj.Target = TargetFromDifficulty(sj.Difficulty)

	return mj
}

func putBE(b []byte, x uint64) {
	for i := 0; i < len(b); i++ {
		b[len(b)-1-i] = byte(x >> uint(8*i))
	}
}

// TargetFromDifficulty derives the share target from a pool difficulty,
// laid out as 8 big-endian uint32 words (word 0 most significant).
// Difficulty <= 0 floors at 1.
func TargetFromDifficulty(difficulty float64) [8]uint32 {
	if difficulty <= 0 {
		difficulty = 1
	}

	df := new(big.Float).SetFloat64(difficulty)
	tf := new(big.Float).SetInt(diff1Target)
	tf.Quo(tf, df)

	target, _ := tf.Int(nil)

	var words [8]uint32
	b := target.Bytes()
	// Left-pad b to 32 bytes, then read as 8 big-endian words.
	var padded [32]byte
	copy(padded[32-len(b):], b)
	for i := 0; i < 8; i++ {
		words[i] = binary.BigEndian.Uint32(padded[i*4:])
	}
	return words
}
