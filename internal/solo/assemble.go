package solo

import (
	"encoding/binary"

	"github.com/btcsuite/btcutil/base58"

	"github.com/pdqminer/btcminer/internal/bitutil"
	"github.com/pdqminer/btcminer/internal/minererr"
	"github.com/pdqminer/btcminer/internal/sha256core"
)

// encodeCoinbaseHeight encodes the block height as a Bitcoin script
// push per BIP34: a length-prefixed little-endian minimal encoding.
func encodeCoinbaseHeight(n uint32) []byte {
	out := []byte{1}
	for n > 127 {
		out[0]++
		out = append(out, byte(n%256))
		n /= 256
	}
	out = append(out, byte(n))
	if len(out) < 2 {
		out = append(out, 0)
		out[0]++
	}
	return out
}

// addressToHash160 decodes a base58check P2PKH address into its
// 20-byte hash160 payload.
func addressToHash160(address string) ([]byte, error) {
	decoded := base58.Decode(address)
	if len(decoded) != 25 {
		return nil, minererr.Field(minererr.InvalidParam, "address", "not a valid base58check P2PKH address")
	}
	return decoded[1:21], nil
}

// buildCoinbase assembles the solo coinbase transaction: a single
// input carrying the BIP34 height push and the miner's extra-nonce,
// paying the full block reward to a P2PKH output for address.
func buildCoinbase(extraNonce uint32, address string, value uint64, height uint32) ([]byte, error) {
	hash160, err := addressToHash160(address)
	if err != nil {
		return nil, err
	}

	script := append(encodeCoinbaseHeight(height), bitutil.LEBytes(uint64(extraNonce), 4)...)

	pubkeyScript := []byte{0x76, 0xa9, 0x14}
	pubkeyScript = append(pubkeyScript, hash160...)
	pubkeyScript = append(pubkeyScript, 0x88, 0xac)

	tx := make([]byte, 0, 128)
	tx = append(tx, bitutil.LEBytes(1, 4)...) // version
	tx = append(tx, 0x01)                     // input count
	tx = append(tx, make([]byte, 32)...)      // null prevout hash
	tx = append(tx, 0xff, 0xff, 0xff, 0xff)   // prevout index
	tx = append(tx, bitutil.VarInt(uint64(len(script)))...)
	tx = append(tx, script...)
	tx = append(tx, 0xff, 0xff, 0xff, 0xff) // sequence
	tx = append(tx, 0x01)                   // output count
	tx = append(tx, bitutil.LEBytes(value, 8)...)
	tx = append(tx, bitutil.VarInt(uint64(len(pubkeyScript)))...)
	tx = append(tx, pubkeyScript...)
	tx = append(tx, bitutil.LEBytes(0, 4)...) // locktime

	return tx, nil
}

// merkleRoot folds a list of transaction hashes (already in internal,
// little-endian-reversed, hashing order) into the block's Merkle root.
func merkleRoot(hashFunc func([]byte) []byte, txHashes [][]byte) []byte {
	level := txHashes
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			pair := make([]byte, 0, 64)
			pair = append(pair, level[i]...)
			pair = append(pair, level[i+1]...)
			next = append(next, hashFunc(pair))
		}
		level = next
	}
	return level[0]
}

// decodeTargetBits expands a compact "nbits" hex string into a 32-byte
// big-endian target, per Bitcoin's compact representation: the first
// byte is the field's size in bytes, the remainder its most-significant
// bytes, right-aligned into the 32-byte buffer.
func decodeTargetBits(bits string) ([32]byte, error) {
	var target [32]byte

	raw, err := bitutil.DecodeHex(bits)
	if err != nil {
		return target, minererr.Wrap(minererr.Protocol, "bits", err)
	}
	if len(raw) < 2 || len(raw) > 32 || raw[0] > 32 {
		return target, minererr.Field(minererr.Protocol, "bits", "malformed compact target")
	}

	copy(target[32-raw[0]:], raw[1:])
	return target, nil
}

func targetWords(target [32]byte) [8]uint32 {
	var words [8]uint32
	for i := 0; i < 8; i++ {
		words[i] = binary.BigEndian.Uint32(target[i*4 : i*4+4])
	}
	return words
}

// buildHeader assembles the 80-byte block header. prevHash and bits
// are taken from the template as received (big-endian display form)
// and reversed into the wire's little-endian field order, matching
// the Stratum job builder's header layout exactly.
func buildHeader(version uint32, prevHashHex string, merkleRootBytes []byte, curTime uint32, bitsHex string, nonce uint32) ([80]byte, error) {
	var header [80]byte

	prevHash, err := bitutil.DecodeHex(prevHashHex)
	if err != nil || len(prevHash) != 32 {
		return header, minererr.Field(minererr.Protocol, "previousblockhash", "not 32 bytes of hex")
	}
	bits, err := bitutil.DecodeHex(bitsHex)
	if err != nil || len(bits) != 4 {
		return header, minererr.Field(minererr.Protocol, "bits", "not 4 bytes of hex")
	}

	binary.LittleEndian.PutUint32(header[0:4], version)
	copy(header[4:36], bitutil.ReverseBytesCopy(prevHash))
	copy(header[36:68], merkleRootBytes)
	binary.LittleEndian.PutUint32(header[68:72], curTime)
	copy(header[72:76], bitutil.ReverseBytesCopy(bits))
	binary.LittleEndian.PutUint32(header[76:80], nonce)

	return header, nil
}

// headerJob derives the midstate/tail/target job.MiningJob inputs
// (sans nonce range, which the caller assigns) from a fully-built
// 80-byte header and compact target.
func headerJob(header [80]byte, bitsHex string) (midstate [32]byte, tail [16]byte, target [8]uint32, err error) {
	t, err := decodeTargetBits(bitsHex)
	if err != nil {
		return midstate, tail, target, err
	}
	midstate = sha256core.MidstateBytes(header[:64])
	copy(tail[:], header[64:80])
	target = targetWords(t)
	return midstate, tail, target, nil
}

// BlockSubmission serialises the solved header and transaction list
// into the raw hex submitblock expects: header, tx count varint, then
// each transaction's raw bytes concatenated.
func BlockSubmission(header [80]byte, coinbase []byte, rest []Transaction) (string, error) {
	out := make([]byte, 0, 80+len(coinbase)+len(rest)*256)
	out = append(out, header[:]...)
	out = append(out, bitutil.VarInt(uint64(len(rest)+1))...)
	out = append(out, coinbase...)
	for _, tx := range rest {
		raw, err := bitutil.DecodeHex(tx.Data)
		if err != nil {
			return "", minererr.Wrap(minererr.Protocol, "transaction", err)
		}
		out = append(out, raw...)
	}
	return bitutil.EncodeHex(out), nil
}

