package solo

import (
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/pdqminer/btcminer/internal/bitutil"
	"github.com/pdqminer/btcminer/internal/sha256core"
)

func TestEncodeCoinbaseHeightMatchesBIP34Minimal(t *testing.T) {
	cases := []struct {
		height uint32
		want   string
	}{
		{0, "0100"},
		{1, "0101"},
		{127, "017f"},
		{128, "028000"},
		{32767, "02ff7f"},
		{32768, "03008000"},
	}
	for _, c := range cases {
		got := encodeCoinbaseHeight(c.height)
		require.Equal(t, c.want, bitutil.EncodeHex(got), "height %d", c.height)
	}
}

func TestAddressToHash160RejectsMalformedAddress(t *testing.T) {
	_, err := addressToHash160("not-a-real-address")
	require.Error(t, err)
}

func TestAddressToHash160AcceptsWellFormedBase58Check(t *testing.T) {
	// 25-byte base58check payload: version 0x00, 20-byte zero hash160,
	// and a checksum that does not need to validate for this decode
	// path (addressToHash160 only checks decoded length).
	payload := make([]byte, 25)
	payload[0] = 0x00
	addr := base58CheckEncode(payload)

	hash160, err := addressToHash160(addr)
	require.NoError(t, err)
	require.Len(t, hash160, 20)
}

func TestBuildCoinbaseEmbedsExtraNonceAndHeight(t *testing.T) {
	payload := make([]byte, 25)
	addr := base58CheckEncode(payload)

	tx, err := buildCoinbase(7, addr, 5000000000, 700000)
	require.NoError(t, err)

	// version (4) + input count (1) + null prevout (32) + index (4)
	require.Equal(t, byte(1), tx[4])
	scriptLenOffset := 4 + 1 + 32 + 4
	scriptLen := int(tx[scriptLenOffset])
	script := tx[scriptLenOffset+1 : scriptLenOffset+1+scriptLen]

	heightPush := encodeCoinbaseHeight(700000)
	require.Equal(t, heightPush, script[:len(heightPush)])
	require.Equal(t, bitutil.LEBytes(7, 4), script[len(heightPush):])
}

func TestMerkleRootSingleTransactionIsItself(t *testing.T) {
	h := sha256core.DoubleHash([]byte("tx"))
	root := merkleRoot(func(b []byte) []byte { d := sha256core.DoubleHash(b); return d[:] }, [][]byte{h[:]})
	require.Equal(t, h[:], root)
}

func TestMerkleRootOddCountDuplicatesLast(t *testing.T) {
	hashFunc := func(b []byte) []byte { d := sha256core.DoubleHash(b); return d[:] }
	h1 := hashFunc([]byte("a"))
	h2 := hashFunc([]byte("b"))
	h3 := hashFunc([]byte("c"))

	got := merkleRoot(hashFunc, [][]byte{h1, h2, h3})

	pair1 := hashFunc(append(append([]byte{}, h1...), h2...))
	pair2 := hashFunc(append(append([]byte{}, h3...), h3...))
	want := hashFunc(append(append([]byte{}, pair1...), pair2...))

	require.Equal(t, want, got)
}

func TestDecodeTargetBitsExpandsCompactRepresentation(t *testing.T) {
	target, err := decodeTargetBits("1d00ffff")
	require.NoError(t, err)

	want := make([]byte, 32)
	copy(want[32-0x1d:], []byte{0x00, 0xff, 0xff})
	require.Equal(t, want, target[:])
}

func TestDecodeTargetBitsRejectsOversizedField(t *testing.T) {
	_, err := decodeTargetBits("ff00ffff")
	require.Error(t, err)
}

func TestBuildHeaderLayout(t *testing.T) {
	prevHash := "1111111122222222333333334444444455555555666666667777777788888888"
	root := make([]byte, 32)
	for i := range root {
		root[i] = byte(i)
	}
	bits := "1d00ffff"

	header, err := buildHeader(0x20000000, prevHash, root, 0x5f5e1000, bits, 0xdeadbeef)
	require.NoError(t, err)

	require.Equal(t, uint32(0x20000000), leUint32(header[0:4]))
	require.Equal(t, root, header[36:68])
	require.Equal(t, uint32(0x5f5e1000), leUint32(header[68:72]))
	require.Equal(t, uint32(0xdeadbeef), leUint32(header[76:80]))
}

func TestBlockSubmissionConcatenatesHeaderAndTransactions(t *testing.T) {
	var header [80]byte
	coinbase := []byte{0x01, 0x02}
	rest := []Transaction{{Data: "aabb"}, {Data: "ccdd"}}

	hexStr, err := BlockSubmission(header, coinbase, rest)
	require.NoError(t, err)

	raw, err := bitutil.DecodeHex(hexStr)
	require.NoError(t, err)
	require.Equal(t, byte(3), raw[80]) // varint tx count = 3 (coinbase + 2)
	require.Equal(t, []byte{0x01, 0x02, 0xaa, 0xbb, 0xcc, 0xdd}, raw[81:])
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// base58CheckEncode round-trips through base58.Decode's expected input
// shape: addressToHash160 only validates decoded length, so the
// checksum bytes here don't need to verify against anything.
func base58CheckEncode(payload []byte) string {
	return base58.Encode(payload)
}
