package lnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelAnnouncement is broadcast by both channel participants once the
// channel is locked, announcing its existence along with the four keys
// (node and bitcoin per-side) needed to verify any later channel_update for
// it.
type ChannelAnnouncement struct {
	NodeSig1       Sig
	NodeSig2       Sig
	BitcoinSig1    Sig
	BitcoinSig2    Sig
	Features       FeatureVector
	ChainHash      [32]byte
	ShortChannelID ShortChannelID
	NodeID1        *btcec.PublicKey
	NodeID2        *btcec.PublicKey
	BitcoinKey1    *btcec.PublicKey
	BitcoinKey2    *btcec.PublicKey
}

var _ Message = (*ChannelAnnouncement)(nil)

func (msg *ChannelAnnouncement) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.NodeSig1,
		&msg.NodeSig2,
		&msg.BitcoinSig1,
		&msg.BitcoinSig2,
		&msg.Features,
		&msg.ChainHash,
		&msg.ShortChannelID,
		&msg.NodeID1,
		&msg.NodeID2,
		&msg.BitcoinKey1,
		&msg.BitcoinKey2,
	)
}

func (msg *ChannelAnnouncement) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.NodeSig1,
		msg.NodeSig2,
		msg.BitcoinSig1,
		msg.BitcoinSig2,
		msg.Features,
		msg.ChainHash,
		msg.ShortChannelID,
		msg.NodeID1,
		msg.NodeID2,
		msg.BitcoinKey1,
		msg.BitcoinKey2,
	)
}

func (msg *ChannelAnnouncement) MsgType() MessageType {
	return MsgChannelAnnouncement
}

func (msg *ChannelAnnouncement) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// DataToSign returns the portion of the message covered by all four
// signatures.
func (msg *ChannelAnnouncement) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		msg.Features,
		msg.ChainHash,
		msg.ShortChannelID,
		msg.NodeID1,
		msg.NodeID2,
		msg.BitcoinKey1,
		msg.BitcoinKey2,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// ChanUpdateFlag carries the direction bit and the disable bit for a
// ChannelUpdate.
type ChanUpdateFlag uint16

const (
	ChanUpdateDirection ChanUpdateFlag = 1 << 0
	ChanUpdateDisabled  ChanUpdateFlag = 1 << 1
)

// ChannelUpdate is periodically broadcast by a channel participant to
// advertise its current forwarding policy for the channel.
type ChannelUpdate struct {
	Signature       Sig
	ChainHash       [32]byte
	ShortChannelID  ShortChannelID
	Timestamp       uint32
	Flags           ChanUpdateFlag
	TimeLockDelta   uint16
	HTLCMinimumMsat MilliSatoshi
	BaseFee         uint32
	FeeRate         uint32
}

var _ Message = (*ChannelUpdate)(nil)

func (msg *ChannelUpdate) Decode(r io.Reader, pver uint32) error {
	var flags uint16
	err := readElements(r,
		&msg.Signature,
		&msg.ChainHash,
		&msg.ShortChannelID,
		&msg.Timestamp,
		&flags,
		&msg.TimeLockDelta,
		&msg.HTLCMinimumMsat,
		&msg.BaseFee,
		&msg.FeeRate,
	)
	msg.Flags = ChanUpdateFlag(flags)
	return err
}

func (msg *ChannelUpdate) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.Signature,
		msg.ChainHash,
		msg.ShortChannelID,
		msg.Timestamp,
		uint16(msg.Flags),
		msg.TimeLockDelta,
		msg.HTLCMinimumMsat,
		msg.BaseFee,
		msg.FeeRate,
	)
}

func (msg *ChannelUpdate) MsgType() MessageType { return MsgChannelUpdate }

func (msg *ChannelUpdate) MaxPayloadLength(uint32) uint32 {
	return 64 + 32 + 8 + 4 + 2 + 2 + 8 + 4 + 4
}

// DataToSign returns the portion of the message covered by Signature.
func (msg *ChannelUpdate) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		msg.ChainHash,
		msg.ShortChannelID,
		msg.Timestamp,
		uint16(msg.Flags),
		msg.TimeLockDelta,
		msg.HTLCMinimumMsat,
		msg.BaseFee,
		msg.FeeRate,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// AnnounceSignatures is exchanged by the two channel participants after
// funding_locked so that each can assemble and broadcast a fully-signed
// ChannelAnnouncement.
type AnnounceSignatures struct {
	ChanID         ChannelID
	ShortChannelID ShortChannelID
	NodeSignature  Sig
	BitcoinSig     Sig
}

var _ Message = (*AnnounceSignatures)(nil)

func (msg *AnnounceSignatures) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.ChanID,
		&msg.ShortChannelID,
		&msg.NodeSignature,
		&msg.BitcoinSig,
	)
}

func (msg *AnnounceSignatures) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.ChanID,
		msg.ShortChannelID,
		msg.NodeSignature,
		msg.BitcoinSig,
	)
}

func (msg *AnnounceSignatures) MsgType() MessageType {
	return MsgAnnounceSignatures
}

func (msg *AnnounceSignatures) MaxPayloadLength(uint32) uint32 {
	return 32 + 8 + 64 + 64
}
