package lnwire

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// FundingLocked is the message that both parties to a new channel send once
// they have observed the funding transaction reach min_depth confirmations.
// It carries the per-commitment point the sender will use for its first
// commitment after the channel is locked.
type FundingLocked struct {
	// ChannelID serves to uniquely identify the channel created by the
	// current channel funding workflow.
	ChannelID ChannelID

	// NextPerCommitmentPoint is the per-commitment point to be used for
	// the sender's next commitment transaction.
	NextPerCommitmentPoint *btcec.PublicKey
}

// NewFundingLocked creates a new FundingLocked message, populating it with
// the necessary channel id and per-commitment point.
func NewFundingLocked(cid ChannelID, npcp *btcec.PublicKey) *FundingLocked {
	return &FundingLocked{
		ChannelID:              cid,
		NextPerCommitmentPoint: npcp,
	}
}

// A compile time check to ensure FundingLocked implements the
// lnwire.Message interface.
var _ Message = (*FundingLocked)(nil)

// Decode deserializes the serialized FundingLocked message stored in the
// passed io.Reader into the target FundingLocked using the deserialization
// rules defined by the passed protocol version.
//
// This is part of the lnwire.Message interface.
func (c *FundingLocked) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.ChannelID,
		&c.NextPerCommitmentPoint)
}

// Encode serializes the target FundingLocked message into the passed
// io.Writer implementation. Serialization will observe the rules defined by
// the passed protocol version.
//
// This is part of the lnwire.Message interface.
func (c *FundingLocked) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.ChannelID,
		c.NextPerCommitmentPoint)
}

// MsgType returns the uint16 code which uniquely identifies this message as
// a FundingLocked message on the wire.
//
// This is part of the lnwire.Message interface.
func (c *FundingLocked) MsgType() MessageType {
	return MsgFundingLocked
}

// MaxPayloadLength returns the maximum allowed payload length for a
// FundingLocked message.
//
// This is part of the lnwire.Message interface.
func (c *FundingLocked) MaxPayloadLength(uint32) uint32 {
	// ChannelID - 32 bytes
	// NextPerCommitmentPoint - 33 bytes
	return 32 + 33
}

// Validate examines each populated field within the FundingLocked message
// for field sanity. For example, signature fields MUST NOT be nil.
//
// This is part of the lnwire.Message interface.
func (c *FundingLocked) Validate() error {
	if c.NextPerCommitmentPoint == nil {
		return fmt.Errorf("the next per commitment point must be non-nil")
	}

	return nil
}
