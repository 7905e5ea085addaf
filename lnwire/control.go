package lnwire

import (
	"fmt"
	"io"
	"math/rand"
)

// Init is the first message sent over the wire once the noise handshake has
// completed, used to exchange each side's globally-advertised and locally-
// understood feature bits.
type Init struct {
	// GlobalFeatures is the set of globally advertised feature bits.
	GlobalFeatures FeatureVector

	// LocalFeatures is the set of feature bits relevant only to the
	// direct peering relationship.
	LocalFeatures FeatureVector
}

var _ Message = (*Init)(nil)

// Decode deserializes a serialized Init message stored in the passed
// io.Reader observing the specified protocol version.
func (msg *Init) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.GlobalFeatures, &msg.LocalFeatures)
}

// Encode serializes the target Init into the passed io.Writer observing the
// protocol version specified.
func (msg *Init) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.GlobalFeatures, msg.LocalFeatures)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (msg *Init) MsgType() MessageType {
	return MsgInit
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message.
func (msg *Init) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// Error is sent by either side at any time and, if the ChanID references an
// active channel, causes the receiver to force-close it. An all-zero ChanID
// applies to every channel held open with the sender.
type Error struct {
	ChanID ChannelID
	Data   []byte
}

var _ Message = (*Error)(nil)

// Decode deserializes a serialized Error message.
func (msg *Error) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.ChanID); err != nil {
		return err
	}

	var dataLen uint16
	if err := readElement(r, &dataLen); err != nil {
		return err
	}

	msg.Data = make([]byte, dataLen)
	return readElement(r, &msg.Data)
}

// Encode serializes the target Error message into w.
func (msg *Error) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.ChanID); err != nil {
		return err
	}
	if err := writeElement(w, uint16(len(msg.Data))); err != nil {
		return err
	}
	return writeElement(w, msg.Data)
}

// MsgType returns the message's wire type.
func (msg *Error) MsgType() MessageType {
	return MsgError
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message.
func (msg *Error) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// Error formats the message data as a Go error string, letting *Error
// itself satisfy the error interface.
func (msg *Error) Error() string {
	return string(msg.Data)
}

// PongPayloadMax is the largest num_pong_bytes a Ping may request; Decode
// rejects 65532 and above. 65531 is the largest value that keeps a Pong's
// resulting message within MaxMessagePayload once its own framing overhead
// is added.
const PongPayloadMax = 65531

// Ping is sent periodically to check that the connection is still alive and,
// via its PaddingBytes, to generate artificial traffic for cover purposes.
type Ping struct {
	// NumPongBytes is the number of bytes the remote party should include
	// in its pong response.
	NumPongBytes uint16

	// PaddingBytes is opaque filler data with no semantic meaning.
	PaddingBytes []byte
}

var _ Message = (*Ping)(nil)

// NewPing returns a Ping that requests the given number of pong bytes, along
// with a randomly-sized padding blob.
func NewPing(numPongBytes uint16) *Ping {
	padding := make([]byte, rand.Intn(256))

	return &Ping{
		NumPongBytes: numPongBytes,
		PaddingBytes: padding,
	}
}

// Decode deserializes a serialized Ping message.
func (msg *Ping) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.NumPongBytes); err != nil {
		return err
	}
	if msg.NumPongBytes >= 65532 {
		return fmt.Errorf("lnwire: num_pong_bytes too large: %d", msg.NumPongBytes)
	}

	var padLen uint16
	if err := readElement(r, &padLen); err != nil {
		return err
	}

	msg.PaddingBytes = make([]byte, padLen)
	if err := readElement(r, &msg.PaddingBytes); err != nil {
		return err
	}
	for _, b := range msg.PaddingBytes {
		if b != 0 {
			return fmt.Errorf("lnwire: ping padding contains non-zero byte")
		}
	}

	return nil
}

// Encode serializes the target Ping message into w.
func (msg *Ping) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.NumPongBytes); err != nil {
		return err
	}
	if err := writeElement(w, uint16(len(msg.PaddingBytes))); err != nil {
		return err
	}
	return writeElement(w, msg.PaddingBytes)
}

// MsgType returns the message's wire type.
func (msg *Ping) MsgType() MessageType {
	return MsgPing
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message.
func (msg *Ping) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// Pong is the reply to a Ping, carrying a caller-requested number of padding
// bytes back to the sender.
type Pong struct {
	PongBytes []byte
}

var _ Message = (*Pong)(nil)

// NewPong returns a Pong carrying numBytes of zero-filled padding.
func NewPong(numBytes uint16) *Pong {
	return &Pong{PongBytes: make([]byte, numBytes)}
}

// Decode deserializes a serialized Pong message.
func (msg *Pong) Decode(r io.Reader, pver uint32) error {
	var numBytes uint16
	if err := readElement(r, &numBytes); err != nil {
		return err
	}
	if numBytes >= 65532 {
		return fmt.Errorf("lnwire: pong byteslen too large: %d", numBytes)
	}

	msg.PongBytes = make([]byte, numBytes)
	if err := readElement(r, &msg.PongBytes); err != nil {
		return err
	}
	for _, b := range msg.PongBytes {
		if b != 0 {
			return fmt.Errorf("lnwire: pong payload contains non-zero byte")
		}
	}

	return nil
}

// Encode serializes the target Pong message into w.
func (msg *Pong) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, uint16(len(msg.PongBytes))); err != nil {
		return err
	}
	return writeElement(w, msg.PongBytes)
}

// MsgType returns the message's wire type.
func (msg *Pong) MsgType() MessageType {
	return MsgPong
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message.
func (msg *Pong) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}
