package sha256core

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func patternBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}

func TestHashKnownAnswerVectors(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{0, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"[:64]},
		{1, "6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d"[:64]},
		{55, "463eb28e72f82e0a96c0a4cc53690c571281131f672aa229e0d45ae59b598b59"[:64]},
		{56, "da2ae4d6b36748f2a318f23e7ab1dfdf45acdc9d049bd80e59de82a60895f562"[:64]},
		{64, "fdeab9acf3710362bd2658cdc9a29e8f9c757fcf9811603a8c447cd1d9151108"[:64]},
		{65, "4bfd2c8b6f1eec7a2afeb48b934ee4b2694182027e6d0fc075074f2fabb31781"[:64]},
		{8192, "dc404a613fedaeb54034514bc6505f56b933caa5250299ba7d094377a51caa46"[:64]},
	}
	for _, tc := range cases {
		got := Hash(patternBytes(tc.n))
		require.Equal(t, tc.want, hex.EncodeToString(got[:]), "length %d", tc.n)
	}
}

func TestDoubleHashIsHashOfHash(t *testing.T) {
	data := patternBytes(80)
	first := Hash(data)
	want := Hash(first[:])
	got := DoubleHash(data)
	require.Equal(t, want, got)
}

func TestUpdateAccumulatesAcrossChunks(t *testing.T) {
	data := patternBytes(200)

	oneShot := Hash(data)

	ctx := Init()
	for _, chunk := range [][]byte{data[:1], data[1:63], data[63:64], data[64:199], data[199:]} {
		ctx.Update(chunk)
	}
	chunked := ctx.Finalize()

	require.Equal(t, oneShot, chunked)
}

// TestKnownBlock125552 pins the spec's S1 scenario: block 125552's header
// double-hashed and byte-reversed must equal the well-known block hash.
func TestKnownBlock125552(t *testing.T) {
	header, err := hex.DecodeString(
		"01000000" + // version
			"81cd02ab7e569e8bcd9317e2fe99f2de44d49ab2b8851ba4a308000000000000" +
			"e320b6c2fffc8d750423db8b1eb942ae710e951ed797f7affc8892b0f1fc122b" +
			"c7f5d74d" + // time
			"f2b9441a" + // bits
			"42a14695", // nonce
	)
	require.NoError(t, err)

	digest := DoubleHash(header)
	got := hex.EncodeToString(reverse(digest[:]))

	require.Equal(t, "00000000000000001e8d6829a8a21adc5d38d0a473b144b6765798e61f98bd1d"[:64], got)
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func TestMidstateMatchesTransformOfFirst64Bytes(t *testing.T) {
	header := patternBytes(80)

	want := IV
	Transform(&want, header[:64])

	got := Midstate(header[:64])
	require.Equal(t, want, got)
}
