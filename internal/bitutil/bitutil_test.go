package bitutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x01, 0xab, 0xcd, 'A'},
		make([]byte, 32),
	}
	for _, b := range cases {
		got, err := DecodeHex(EncodeHex(b))
		require.NoError(t, err)
		require.Equal(t, b, got)
	}
}

func TestBEUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	for _, v := range []uint32{0, 1, 0xdeadbeef, 0xffffffff} {
		PutBEUint32(buf, v)
		require.Equal(t, v, BEUint32(buf))
	}
}

func TestLEUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	for _, v := range []uint32{0, 1, 0xdeadbeef, 0xffffffff} {
		PutLEUint32(buf, v)
		require.Equal(t, v, LEUint32(buf))
	}
}

func TestReverseBytesInvolution(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	got := ReverseBytesCopy(ReverseBytesCopy(b))
	require.Equal(t, b, got)
}

func TestBEBytesWidth(t *testing.T) {
	require.Equal(t, "00000001", EncodeHex(BEBytes(1, 4)))
	require.Equal(t, "deadbeef", EncodeHex(BEBytes(0xdeadbeef, 4)))
}

func TestLEBytesWidth(t *testing.T) {
	require.Equal(t, "01000000", EncodeHex(LEBytes(1, 4)))
	require.Equal(t, "efbeadde", EncodeHex(LEBytes(0xdeadbeef, 4)))
}

func TestVarIntEncoding(t *testing.T) {
	require.Equal(t, "00", EncodeHex(VarInt(0)))
	require.Equal(t, "fc", EncodeHex(VarInt(0xfc)))
	require.Equal(t, "fdfd00", EncodeHex(VarInt(0xfd)))
	require.Equal(t, "fdffff", EncodeHex(VarInt(0xffff)))
	require.Equal(t, "fe00000100", EncodeHex(VarInt(0x10000)))
	require.Equal(t, "ff0000000001000000", EncodeHex(VarInt(0x100000000)))
}

func TestRestorePrevHashWordOrder(t *testing.T) {
	in, err := DecodeHex("000000000000000000000000000000000000000000000000000000000000001")
	require.Error(t, err) // odd-length guard, not part of the case below
	_ = in

	in, err = DecodeHex("11111111222222223333333344444444")
	require.NoError(t, err)
	out := RestorePrevHashWordOrder(in)
	require.Equal(t, "44444444333333332222222211111111", EncodeHex(out))
}
