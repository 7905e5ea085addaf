package brontide

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// LengthHeaderSize is the size of the encrypted frame length prefix.
const LengthHeaderSize = 2

// Machine is the per-peer transport: a pair of directional ciphers plus
// chaining keys, produced by completing a HandshakeState and calling
// Split. It turns plaintext messages into the length-prefixed,
// double-MAC'd frames described in the transport section, and rotates
// each direction's key independently every RotationInterval frames.
type Machine struct {
	sendCipher *chachaCipher
	recvCipher *chachaCipher

	sendChainKey [32]byte
	recvChainKey [32]byte

	sendFrameCount uint64
	recvFrameCount uint64

	// pendingLen holds the decrypted length of an in-flight frame
	// between a ReadHeader and the matching ReadBody call.
	pendingLen uint32
}

// NewMachine builds a transport Machine from a completed handshake's
// directional keys, which also serve as the initial chaining keys for
// each direction's independent rekey schedule.
func NewMachine(sendKey, recvKey [32]byte) (*Machine, error) {
	send, err := newChaChaCipher(sendKey)
	if err != nil {
		return nil, err
	}
	recv, err := newChaChaCipher(recvKey)
	if err != nil {
		return nil, err
	}

	return &Machine{
		sendCipher:   send,
		recvCipher:   recv,
		sendChainKey: sendKey,
		recvChainKey: recvKey,
	}, nil
}

// rotate derives the next key for a direction via HKDF from that
// direction's chaining key, the same construction used to derive the
// handshake's final symmetric keys.
func rotate(chainKey [32]byte) (nextChainKey, nextKey [32]byte) {
	reader := hkdf.New(sha256.New, chainKey[:], chainKey[:], nil)
	io.ReadFull(reader, nextChainKey[:])
	io.ReadFull(reader, nextKey[:])
	return
}

// maybeRotateSend rekeys the send cipher once RotationInterval frames
// have been sent under the current key, resetting the nonce to zero
// under the new key.
func (m *Machine) maybeRotateSend() error {
	if m.sendFrameCount == 0 || m.sendFrameCount%RotationInterval != 0 {
		return nil
	}

	nextChainKey, nextKey := rotate(m.sendChainKey)
	m.sendChainKey = nextChainKey

	c, err := newChaChaCipher(nextKey)
	if err != nil {
		return err
	}
	m.sendCipher = c

	return nil
}

func (m *Machine) maybeRotateRecv() error {
	if m.recvFrameCount == 0 || m.recvFrameCount%RotationInterval != 0 {
		return nil
	}

	nextChainKey, nextKey := rotate(m.recvChainKey)
	m.recvChainKey = nextChainKey

	c, err := newChaChaCipher(nextKey)
	if err != nil {
		return err
	}
	m.recvCipher = c

	return nil
}

// WriteMessage encrypts plaintext into a complete frame: an encrypted
// 2-byte big-endian length plus its MAC, followed by the encrypted
// payload plus its own MAC.
func (m *Machine) WriteMessage(plaintext []byte) ([]byte, error) {
	if err := m.maybeRotateSend(); err != nil {
		return nil, err
	}

	var lenBytes [2]byte
	lenBytes[0] = byte(len(plaintext) >> 8)
	lenBytes[1] = byte(len(plaintext))

	lenCiphertext := m.sendCipher.Encrypt(nil, nil, lenBytes[:])
	bodyCiphertext := m.sendCipher.Encrypt(nil, nil, plaintext)

	m.sendFrameCount++

	out := make([]byte, 0, len(lenCiphertext)+len(bodyCiphertext))
	out = append(out, lenCiphertext...)
	out = append(out, bodyCiphertext...)

	return out, nil
}

// ReadHeader decrypts the length-prefix portion of a frame (the first
// LengthHeaderSize+macLen bytes read off the wire) and returns the
// plaintext body length bodyLen; the caller must next read bodyLen+macLen
// bytes before calling ReadBody.
func (m *Machine) ReadHeader(header []byte) (uint32, error) {
	if len(header) != LengthHeaderSize+macLen {
		return 0, fmt.Errorf("brontide: header must be %d bytes, got %d",
			LengthHeaderSize+macLen, len(header))
	}

	if err := m.maybeRotateRecv(); err != nil {
		return 0, err
	}

	plaintext, err := m.recvCipher.Decrypt(nil, nil, header)
	if err != nil {
		return 0, fmt.Errorf("brontide: header mac check failed: %w", err)
	}

	length := uint32(plaintext[0])<<8 | uint32(plaintext[1])
	m.pendingLen = length

	return length, nil
}

// ReadBody decrypts the body portion of a frame previously sized by
// ReadHeader (bodyLen+macLen bytes as read off the wire) and returns the
// plaintext message.
func (m *Machine) ReadBody(body []byte) ([]byte, error) {
	expected := int(m.pendingLen) + macLen
	if len(body) != expected {
		return nil, fmt.Errorf("brontide: body must be %d bytes, got %d",
			expected, len(body))
	}

	plaintext, err := m.recvCipher.Decrypt(nil, nil, body)
	if err != nil {
		return nil, fmt.Errorf("brontide: body mac check failed: %w", err)
	}

	m.recvFrameCount++

	return plaintext, nil
}
