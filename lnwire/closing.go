package lnwire

import "io"

// Shutdown is sent by a party wishing to begin a mutual close, carrying the
// scriptPubKey it wants its payout to be sent to.
type Shutdown struct {
	ChanID      ChannelID
	ScriptPubKey []byte
}

var _ Message = (*Shutdown)(nil)

func (msg *Shutdown) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.ChanID); err != nil {
		return err
	}

	var scriptLen uint16
	if err := readElement(r, &scriptLen); err != nil {
		return err
	}

	msg.ScriptPubKey = make([]byte, scriptLen)
	return readElement(r, &msg.ScriptPubKey)
}

func (msg *Shutdown) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.ChanID); err != nil {
		return err
	}
	if err := writeElement(w, uint16(len(msg.ScriptPubKey))); err != nil {
		return err
	}
	return writeElement(w, msg.ScriptPubKey)
}

func (msg *Shutdown) MsgType() MessageType { return MsgShutdown }

func (msg *Shutdown) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// ClosingSigned is exchanged during mutual close to negotiate the
// transaction fee. This implementation converges in a single round: each
// side signs the fee it was first offered rather than counter-proposing.
type ClosingSigned struct {
	ChanID      ChannelID
	FeeSatoshis uint64
	Signature   Sig
}

var _ Message = (*ClosingSigned)(nil)

func (msg *ClosingSigned) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.ChanID, &msg.FeeSatoshis, &msg.Signature)
}

func (msg *ClosingSigned) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.ChanID, msg.FeeSatoshis, msg.Signature)
}

func (msg *ClosingSigned) MsgType() MessageType { return MsgClosingSigned }

func (msg *ClosingSigned) MaxPayloadLength(uint32) uint32 {
	return 32 + 8 + 64
}
