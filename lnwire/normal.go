package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// OnionPacketSize is the fixed size of the onion routing packet attached to
// every update_add_htlc, per BOLT4.
const OnionPacketSize = 1366

// UpdateAddHTLC is sent by either side to offer a new HTLC to the other,
// identified within the channel by ID.
type UpdateAddHTLC struct {
	ChanID      ChannelID
	ID          uint64
	Amount      MilliSatoshi
	PaymentHash [32]byte
	Expiry      uint32
	OnionBlob   [OnionPacketSize]byte
}

var _ Message = (*UpdateAddHTLC)(nil)

func (msg *UpdateAddHTLC) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.ChanID,
		&msg.ID,
		&msg.Amount,
		&msg.PaymentHash,
		&msg.Expiry,
		&msg.OnionBlob,
	)
}

func (msg *UpdateAddHTLC) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.ChanID,
		msg.ID,
		msg.Amount,
		msg.PaymentHash,
		msg.Expiry,
		msg.OnionBlob,
	)
}

func (msg *UpdateAddHTLC) MsgType() MessageType { return MsgUpdateAddHTLC }

func (msg *UpdateAddHTLC) MaxPayloadLength(uint32) uint32 {
	return 32 + 8 + 8 + 32 + 4 + OnionPacketSize
}

// FailureReasonMaxLen is the maximum length of the encrypted failure reason
// blob carried by update_fail_htlc.
const FailureReasonMaxLen = 4096

// UpdateFailHTLC is sent by the receiving side of an HTLC to report that it
// could not be forwarded or settled, carrying an onion-encrypted failure
// reason.
type UpdateFailHTLC struct {
	ChanID ChannelID
	ID     uint64
	Reason []byte
}

var _ Message = (*UpdateFailHTLC)(nil)

func (msg *UpdateFailHTLC) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r, &msg.ChanID, &msg.ID); err != nil {
		return err
	}

	var reasonLen uint16
	if err := readElement(r, &reasonLen); err != nil {
		return err
	}

	msg.Reason = make([]byte, reasonLen)
	return readElement(r, &msg.Reason)
}

func (msg *UpdateFailHTLC) Encode(w io.Writer, pver uint32) error {
	if err := writeElements(w, msg.ChanID, msg.ID); err != nil {
		return err
	}
	if err := writeElement(w, uint16(len(msg.Reason))); err != nil {
		return err
	}
	return writeElement(w, msg.Reason)
}

func (msg *UpdateFailHTLC) MsgType() MessageType { return MsgUpdateFailHTLC }

func (msg *UpdateFailHTLC) MaxPayloadLength(uint32) uint32 {
	return 32 + 8 + 2 + FailureReasonMaxLen
}

// UpdateFailMalformedHTLC is sent instead of UpdateFailHTLC when the
// receiver could not even parse the onion packet well enough to produce an
// onion-encrypted failure, so it reports the raw SHA256 of the packet along
// with a failure code instead.
type UpdateFailMalformedHTLC struct {
	ChanID       ChannelID
	ID           uint64
	ShaOnionBlob [32]byte
	FailureCode  uint16
}

var _ Message = (*UpdateFailMalformedHTLC)(nil)

func (msg *UpdateFailMalformedHTLC) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.ChanID,
		&msg.ID,
		&msg.ShaOnionBlob,
		&msg.FailureCode,
	)
}

func (msg *UpdateFailMalformedHTLC) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.ChanID,
		msg.ID,
		msg.ShaOnionBlob,
		msg.FailureCode,
	)
}

func (msg *UpdateFailMalformedHTLC) MsgType() MessageType {
	return MsgUpdateFailMalformedHTLC
}

func (msg *UpdateFailMalformedHTLC) MaxPayloadLength(uint32) uint32 {
	return 32 + 8 + 32 + 2
}

// UpdateFee is sent by the funder of a channel to update the feerate used
// for its commitment transactions.
type UpdateFee struct {
	ChanID   ChannelID
	FeePerKW uint32
}

var _ Message = (*UpdateFee)(nil)

func (msg *UpdateFee) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.ChanID, &msg.FeePerKW)
}

func (msg *UpdateFee) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.ChanID, msg.FeePerKW)
}

func (msg *UpdateFee) MsgType() MessageType { return MsgUpdateFee }

func (msg *UpdateFee) MaxPayloadLength(uint32) uint32 {
	return 32 + 4
}

// CommitSig locks in the sender's pending changes to the counterparty's
// commitment transaction, carrying the signature for the funding input plus
// one HTLC signature per non-dust HTLC on that commitment.
type CommitSig struct {
	ChanID    ChannelID
	CommitSig Sig
	HTLCSigs  []Sig
}

var _ Message = (*CommitSig)(nil)

func (msg *CommitSig) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r, &msg.ChanID, &msg.CommitSig); err != nil {
		return err
	}

	var numSigs uint16
	if err := readElement(r, &numSigs); err != nil {
		return err
	}

	msg.HTLCSigs = make([]Sig, numSigs)
	for i := range msg.HTLCSigs {
		if err := readElement(r, &msg.HTLCSigs[i]); err != nil {
			return err
		}
	}

	return nil
}

func (msg *CommitSig) Encode(w io.Writer, pver uint32) error {
	if err := writeElements(w, msg.ChanID, msg.CommitSig); err != nil {
		return err
	}

	if err := writeElement(w, uint16(len(msg.HTLCSigs))); err != nil {
		return err
	}
	for _, sig := range msg.HTLCSigs {
		if err := writeElement(w, sig); err != nil {
			return err
		}
	}

	return nil
}

func (msg *CommitSig) MsgType() MessageType { return MsgCommitSig }

func (msg *CommitSig) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// RevokeAndAck completes a commitment update round: the sender reveals the
// per-commitment secret for the commitment it is replacing and discloses
// the point it will use for the one after.
type RevokeAndAck struct {
	ChanID             ChannelID
	Revocation         [32]byte
	NextPerCommitPoint *btcec.PublicKey
}

var _ Message = (*RevokeAndAck)(nil)

func (msg *RevokeAndAck) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.ChanID,
		&msg.Revocation,
		&msg.NextPerCommitPoint,
	)
}

func (msg *RevokeAndAck) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.ChanID,
		msg.Revocation,
		msg.NextPerCommitPoint,
	)
}

func (msg *RevokeAndAck) MsgType() MessageType { return MsgRevokeAndAck }

func (msg *RevokeAndAck) MaxPayloadLength(uint32) uint32 {
	return 32 + 32 + 33
}
