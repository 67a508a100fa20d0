// Package algorithm selects the proof-of-work hash function used to
// fold the coinbase and Merkle branches into a block header. The
// Stratum session and job builder are written against this interface so
// that a non-Bitcoin pool speaking the same Stratum V1 framing (e.g. a
// Scrypt-based altcoin) can still be mined with the same wire code; the
// 32-bit nonce search kernel itself is specified for SHA-256d only.
package algorithm

import (
	"errors"

	"gitlab.com/samli88/go-x11-hash"
	"golang.org/x/crypto/scrypt"

	"github.com/pdqminer/btcminer/internal/sha256core"
)

// Algorithm names a coin's proof-of-work hash function.
type Algorithm string

const (
	SHA256d Algorithm = "sha256d"
	Scrypt  Algorithm = "scrypt"
	X11     Algorithm = "x11"
)

func (a Algorithm) String() string { return string(a) }

// Parse validates a wire/config algorithm name.
func Parse(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case SHA256d, Scrypt, X11:
		return Algorithm(s), nil
	}
	return "", errors.New("unknown algorithm: " + s)
}

// HashFunc returns the proof-of-work hash function for the algorithm.
func (a Algorithm) HashFunc() func([]byte) []byte {
	switch a {
	case SHA256d:
		return sha256dHash
	case Scrypt:
		return scryptHash
	case X11:
		return x11Hash
	}
	panic("algorithm hash function not defined: " + string(a))
}

func sha256dHash(data []byte) []byte {
	h := sha256core.DoubleHash(data)
	return h[:]
}

// scryptHash matches Litecoin's parameterisation: N=1024, r=1, p=1,
// salt equal to the input, 256-bit output.
func scryptHash(data []byte) []byte {
	out, err := scrypt.Key(data, data, 1024, 1, 1, 32)
	if err != nil {
		panic(err)
	}
	return out
}

func x11Hash(data []byte) []byte {
	out := make([]byte, 32)
	x11.New().Hash(data, out)
	return out
}
