package lnwire

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/tv42/zbase32"
)

// MilliSatoshi are the native unit of the Lightning Network. 1000
// MilliSatoshi is equal to one Satoshi. Channel capacities, HTLC amounts,
// and balances are all denominated in MilliSatoshi.
type MilliSatoshi uint64

// mSatScale is the number of MilliSatoshi in a single satoshi.
const mSatScale = 1000

// NewMSatFromSatoshis creates a MilliSatoshi instance from a regular
// satoshi amount.
func NewMSatFromSatoshis(sat btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(sat * mSatScale)
}

// ToSatoshis rounds a MilliSatoshi amount down to the nearest whole
// satoshi, truncating any fractional remainder.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(m / mSatScale)
}

// String returns the MilliSatoshi amount as a human-readable string.
func (m MilliSatoshi) String() string {
	return fmt.Sprintf("%d mSAT", uint64(m))
}

// ChannelID is the unique identifier for a channel, derived by XOR'ing the
// funding outpoint's txid with its output index, expanded to 32 bytes.
type ChannelID [32]byte

// NewChanIDFromOutPoint derives the channel ID for the funding outpoint of a
// channel: the funding txid XOR'd with the big-endian output index in its
// final two bytes.
func NewChanIDFromOutPoint(txid [32]byte, index uint16) ChannelID {
	var cid ChannelID
	copy(cid[:], txid[:])

	cid[30] ^= byte(index >> 8)
	cid[31] ^= byte(index)

	return cid
}

// String returns the hex encoding of the channel ID.
func (c ChannelID) String() string {
	return fmt.Sprintf("%x", c[:])
}

// ZBase32 returns a short, human-readable zbase32 encoding of the channel
// ID, suitable for log lines and CLI status output where the full 64-byte
// hex string is unwieldy.
func (c ChannelID) ZBase32() string {
	return zbase32.EncodeToString(c[:])
}

// ShortChannelID encodes the block height, transaction index, and output
// index that identify a channel's funding transaction on-chain, packed into
// a single uint64 as 3 bytes block height : 3 bytes tx index : 2 bytes
// output index.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	TxPosition  uint16
}

// NewShortChanIDFromInt reinterprets the packed uint64 representation used
// on the wire as a ShortChannelID.
func NewShortChanIDFromInt(id uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(id >> 40),
		TxIndex:     uint32(id>>16) & 0xFFFFFF,
		TxPosition:  uint16(id),
	}
}

// ToUint64 packs the ShortChannelID back into its wire representation.
func (c ShortChannelID) ToUint64() uint64 {
	return (uint64(c.BlockHeight) << 40) |
		(uint64(c.TxIndex&0xFFFFFF) << 16) |
		uint64(c.TxPosition)
}

// String returns the human-readable blockxtxxoutput representation.
func (c ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", c.BlockHeight, c.TxIndex, c.TxPosition)
}

// ZBase32 returns a short zbase32 encoding of the packed short channel ID,
// for the same log-line/CLI-output use case as ChannelID.ZBase32.
func (c ShortChannelID) ZBase32() string {
	var b [8]byte
	id := c.ToUint64()
	for i := 7; i >= 0; i-- {
		b[i] = byte(id)
		id >>= 8
	}
	return zbase32.EncodeToString(b[:])
}

// Sig is a fixed 64-byte raw (r, s) ECDSA signature, the on-the-wire
// encoding the protocol uses for every signature field -- no DER envelope,
// no recovery byte.
type Sig struct {
	rawBytes [64]byte
}

// NewSigFromRawBytes wraps an already 64-byte raw signature.
func NewSigFromRawBytes(b [64]byte) Sig {
	return Sig{rawBytes: b}
}

// NewSigFromSignature converts a btcec ECDSA signature into its fixed
// 64-byte wire encoding, left-padding r and s to 32 bytes each.
func NewSigFromSignature(sig *ecdsa.Signature) (Sig, error) {
	if sig == nil {
		return Sig{}, fmt.Errorf("lnwire: cannot convert nil signature")
	}

	rVal, sVal, err := parseDERSignature(sig.Serialize())
	if err != nil {
		return Sig{}, err
	}

	var b [64]byte
	rBytes := rVal.Bytes()
	sBytes := sVal.Bytes()
	copy(b[32-len(rBytes):32], rBytes)
	copy(b[64-len(sBytes):64], sBytes)

	return Sig{rawBytes: b}, nil
}

// ToSignature reconstructs a btcec ECDSA signature from the raw 64-byte wire
// encoding.
func (s Sig) ToSignature() (*ecdsa.Signature, error) {
	var rVal, sVal btcec.ModNScalar
	rVal.SetByteSlice(s.rawBytes[:32])
	sVal.SetByteSlice(s.rawBytes[32:])

	return ecdsa.NewSignature(&rVal, &sVal), nil
}

// parseDERSignature extracts the raw (r, s) big.Int values out of a
// well-formed DER-encoded ECDSA signature: a 0x30 sequence header, a length
// byte, then two 0x02-tagged integers.
func parseDERSignature(der []byte) (*big.Int, *big.Int, error) {
	if len(der) < 8 || der[0] != 0x30 || der[2] != 0x02 {
		return nil, nil, fmt.Errorf("lnwire: malformed DER signature")
	}

	offset := 2
	rLen := int(der[offset+1])
	r := new(big.Int).SetBytes(der[offset+2 : offset+2+rLen])
	offset += 2 + rLen

	if offset >= len(der) || der[offset] != 0x02 {
		return nil, nil, fmt.Errorf("lnwire: malformed DER signature")
	}
	sLen := int(der[offset+1])
	s := new(big.Int).SetBytes(der[offset+2 : offset+2+sLen])

	return r, s, nil
}

// FeatureVector is a raw, length-prefixed bitvector of feature bits, MSB
// first, as used by init, node_announcement, and channel_update.
type FeatureVector []byte

// HasBit reports whether the given feature bit is set.
func (f FeatureVector) HasBit(bit uint16) bool {
	byteIdx := len(f) - 1 - int(bit/8)
	if byteIdx < 0 {
		return false
	}
	return f[byteIdx]&(1<<(bit%8)) != 0
}

// SetBit returns a copy of the feature vector with the given bit set,
// growing the underlying byte slice if necessary.
func (f FeatureVector) SetBit(bit uint16) FeatureVector {
	needed := int(bit/8) + 1
	out := make(FeatureVector, max(len(f), needed))
	copy(out[len(out)-len(f):], f)

	byteIdx := len(out) - 1 - int(bit/8)
	out[byteIdx] |= 1 << (bit % 8)

	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
