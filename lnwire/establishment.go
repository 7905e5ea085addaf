package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// OpenChannel is sent by the initiator of a new channel to propose its
// parameters to the responder.
type OpenChannel struct {
	ChainHash            [32]byte
	TempChanID           ChannelID
	FundingAmount        MilliSatoshi
	PushAmount           MilliSatoshi
	DustLimit            MilliSatoshi
	MaxValueInFlight     MilliSatoshi
	ChannelReserve       MilliSatoshi
	HTLCMinimum          MilliSatoshi
	FeePerKW             uint32
	CSVDelay             uint16
	MaxAcceptedHTLCs     uint16
	FundingKey           *btcec.PublicKey
	RevocationPoint      *btcec.PublicKey
	PaymentPoint         *btcec.PublicKey
	DelayedPaymentPoint  *btcec.PublicKey
	FirstCommitmentPoint *btcec.PublicKey
}

var _ Message = (*OpenChannel)(nil)

func (msg *OpenChannel) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.ChainHash,
		&msg.TempChanID,
		&msg.FundingAmount,
		&msg.PushAmount,
		&msg.DustLimit,
		&msg.MaxValueInFlight,
		&msg.ChannelReserve,
		&msg.HTLCMinimum,
		&msg.FeePerKW,
		&msg.CSVDelay,
		&msg.MaxAcceptedHTLCs,
		&msg.FundingKey,
		&msg.RevocationPoint,
		&msg.PaymentPoint,
		&msg.DelayedPaymentPoint,
		&msg.FirstCommitmentPoint,
	)
}

func (msg *OpenChannel) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.ChainHash,
		msg.TempChanID,
		msg.FundingAmount,
		msg.PushAmount,
		msg.DustLimit,
		msg.MaxValueInFlight,
		msg.ChannelReserve,
		msg.HTLCMinimum,
		msg.FeePerKW,
		msg.CSVDelay,
		msg.MaxAcceptedHTLCs,
		msg.FundingKey,
		msg.RevocationPoint,
		msg.PaymentPoint,
		msg.DelayedPaymentPoint,
		msg.FirstCommitmentPoint,
	)
}

func (msg *OpenChannel) MsgType() MessageType { return MsgOpenChannel }

func (msg *OpenChannel) MaxPayloadLength(uint32) uint32 {
	// chainhash(32) + tempChanID(32) + 6 amounts(8 each) + feerate(4) +
	// csvDelay(2) + maxAcceptedHTLCs(2) + 5 pubkeys(33 each)
	return 32 + 32 + 6*8 + 4 + 2 + 2 + 5*33
}

// AcceptChannel is the responder's reply to OpenChannel, sharing the same
// shape minus the chain hash, funding amount, push amount, and feerate
// (which the opener alone dictates), plus a minimum confirmation depth.
type AcceptChannel struct {
	TempChanID           ChannelID
	DustLimit            MilliSatoshi
	MaxValueInFlight     MilliSatoshi
	ChannelReserve       MilliSatoshi
	HTLCMinimum          MilliSatoshi
	MinAcceptDepth       uint32
	CSVDelay             uint16
	MaxAcceptedHTLCs     uint16
	FundingKey           *btcec.PublicKey
	RevocationPoint      *btcec.PublicKey
	PaymentPoint         *btcec.PublicKey
	DelayedPaymentPoint  *btcec.PublicKey
	FirstCommitmentPoint *btcec.PublicKey
}

var _ Message = (*AcceptChannel)(nil)

func (msg *AcceptChannel) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.TempChanID,
		&msg.DustLimit,
		&msg.MaxValueInFlight,
		&msg.ChannelReserve,
		&msg.HTLCMinimum,
		&msg.MinAcceptDepth,
		&msg.CSVDelay,
		&msg.MaxAcceptedHTLCs,
		&msg.FundingKey,
		&msg.RevocationPoint,
		&msg.PaymentPoint,
		&msg.DelayedPaymentPoint,
		&msg.FirstCommitmentPoint,
	)
}

func (msg *AcceptChannel) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.TempChanID,
		msg.DustLimit,
		msg.MaxValueInFlight,
		msg.ChannelReserve,
		msg.HTLCMinimum,
		msg.MinAcceptDepth,
		msg.CSVDelay,
		msg.MaxAcceptedHTLCs,
		msg.FundingKey,
		msg.RevocationPoint,
		msg.PaymentPoint,
		msg.DelayedPaymentPoint,
		msg.FirstCommitmentPoint,
	)
}

func (msg *AcceptChannel) MsgType() MessageType { return MsgAcceptChannel }

func (msg *AcceptChannel) MaxPayloadLength(uint32) uint32 {
	return 32 + 4*8 + 4 + 2 + 2 + 5*33
}

// FundingCreated is sent by the opener once the funding transaction has been
// assembled (but not yet broadcast), carrying its outpoint and the opener's
// signature for the responder's initial commitment transaction.
type FundingCreated struct {
	TempChanID  ChannelID
	FundingTxID [32]byte
	FundingIdx  uint16
	CommitSig   Sig
}

var _ Message = (*FundingCreated)(nil)

func (msg *FundingCreated) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.TempChanID,
		&msg.FundingTxID,
		&msg.FundingIdx,
		&msg.CommitSig,
	)
}

func (msg *FundingCreated) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.TempChanID,
		msg.FundingTxID,
		msg.FundingIdx,
		msg.CommitSig,
	)
}

func (msg *FundingCreated) MsgType() MessageType { return MsgFundingCreated }

func (msg *FundingCreated) MaxPayloadLength(uint32) uint32 {
	return 32 + 32 + 2 + 64
}

// FundingSigned is the responder's reply to FundingCreated, carrying its
// signature for the opener's initial commitment transaction and the now
// permanent channel id (derived from the funding outpoint).
type FundingSigned struct {
	ChanID    ChannelID
	CommitSig Sig
}

var _ Message = (*FundingSigned)(nil)

func (msg *FundingSigned) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.ChanID, &msg.CommitSig)
}

func (msg *FundingSigned) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.ChanID, msg.CommitSig)
}

func (msg *FundingSigned) MsgType() MessageType { return MsgFundingSigned }

func (msg *FundingSigned) MaxPayloadLength(uint32) uint32 {
	return 32 + 64
}

// ChannelReestablish is exchanged after a reconnection to resynchronize the
// two sides' views of the update log and the next commitment numbers,
// supplementing the core message set with the recovery path the distilled
// spec leaves implicit.
type ChannelReestablish struct {
	ChanID              ChannelID
	NextLocalCommitNum  uint64
	NextRemoteRevokeNum uint64

	// LastRemoteCommitSecret, if non-zero, proves the sender has already
	// revoked up through NextRemoteRevokeNum-1.
	LastRemoteCommitSecret [32]byte
	LocalUnrevokedPoint    *btcec.PublicKey
}

var _ Message = (*ChannelReestablish)(nil)

func (msg *ChannelReestablish) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.ChanID,
		&msg.NextLocalCommitNum,
		&msg.NextRemoteRevokeNum,
		&msg.LastRemoteCommitSecret,
		&msg.LocalUnrevokedPoint,
	)
}

func (msg *ChannelReestablish) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.ChanID,
		msg.NextLocalCommitNum,
		msg.NextRemoteRevokeNum,
		msg.LastRemoteCommitSecret,
		msg.LocalUnrevokedPoint,
	)
}

func (msg *ChannelReestablish) MsgType() MessageType { return MsgChannelReestablish }

func (msg *ChannelReestablish) MaxPayloadLength(uint32) uint32 {
	return 32 + 8 + 8 + 32 + 33
}
