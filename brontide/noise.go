// Package brontide implements the Noise_XK handshake and per-message AEAD
// framing used to authenticate and encrypt the wire-level byte stream
// between two channel peers. It is a small, self-contained protocol
// package in the same spirit as the teacher's elkrem package: no sockets,
// no goroutines, just state plus explicit error-returning transitions.
package brontide

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// protocolName is mixed into the initial chaining key and handshake hash,
// binding the handshake transcript to this specific protocol instance.
const protocolName = "Noise_XK_secp256k1_ChaChaPoly_SHA256"

// prologue is mixed into the handshake hash before any handshake material,
// preventing cross-protocol transcript confusion.
const prologue = "lnchannel"

const (
	keyLen = 32
	macLen = 16

	// Act1Size is version(1) || compressed ephemeral pubkey(33) || mac(16).
	Act1Size = 1 + 33 + macLen

	// Act2Size has the same shape as act one.
	Act2Size = 1 + 33 + macLen

	// Act3Size is version(1) || encrypted compressed static pubkey(33+16)
	// || mac(16).
	Act3Size = 1 + 33 + macLen + macLen

	// handshakeVersion is the only version this implementation speaks.
	handshakeVersion = 0

	// RotationInterval is the number of frames sent (or received) under
	// a single symmetric key before it is rotated via HKDF from the
	// chaining key.
	RotationInterval = 1000
)

// symmetricState implements the Noise "SymmetricState" object: a running
// chaining key, handshake transcript hash, and (once established) an AEAD
// encryption key.
type symmetricState struct {
	chainingKey [32]byte
	handshake   [32]byte

	hasKey bool
	key    [32]byte
}

// initialize seeds the chaining key and handshake hash from the protocol
// name, then mixes in the prologue.
func (s *symmetricState) initialize() {
	if len(protocolName) <= 32 {
		var h [32]byte
		copy(h[:], protocolName)
		s.chainingKey = h
	} else {
		s.chainingKey = sha256.Sum256([]byte(protocolName))
	}
	s.handshake = s.chainingKey
	s.mixHash([]byte(prologue))
}

// mixHash folds data into the running handshake transcript hash.
func (s *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(s.handshake[:])
	h.Write(data)
	copy(s.handshake[:], h.Sum(nil))
}

// mixKey derives a new chaining key and symmetric key from Diffie-Hellman
// output via HKDF, using the current chaining key as salt.
func (s *symmetricState) mixKey(input []byte) {
	var info []byte
	reader := hkdf.New(sha256.New, input, s.chainingKey[:], info)

	var ck, k [32]byte
	io.ReadFull(reader, ck[:])
	io.ReadFull(reader, k[:])

	s.chainingKey = ck
	s.key = k
	s.hasKey = true
}

// cipher returns an AEAD sealed/opened under the current symmetric key.
func (s *symmetricState) cipher() (cipher, error) {
	return newChaChaCipher(s.key)
}

// encryptAndHash encrypts plaintext (empty during the XK acts, since no
// payload is exchanged during the handshake itself) under the current key
// if one is established, authenticating the running handshake hash, then
// mixes the ciphertext into the transcript.
func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(plaintext)
		return plaintext, nil
	}

	c, err := s.cipher()
	if err != nil {
		return nil, err
	}

	ciphertext := c.Encrypt(nil, s.handshake[:], plaintext)
	s.mixHash(ciphertext)

	return ciphertext, nil
}

// decryptAndHash is the receive-side counterpart of encryptAndHash.
func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(ciphertext)
		return ciphertext, nil
	}

	c, err := s.cipher()
	if err != nil {
		return nil, err
	}

	plaintext, err := c.Decrypt(nil, s.handshake[:], ciphertext)
	if err != nil {
		return nil, fmt.Errorf("brontide: mac check failed: %w", err)
	}
	s.mixHash(ciphertext)

	return plaintext, nil
}

// HandshakeState drives one side of the three-act Noise_XK handshake. The
// zero value is not usable; construct with NewInitiator or NewResponder.
type HandshakeState struct {
	symmetricState

	initiator bool

	localStatic    *btcec.PrivateKey
	localEphemeral *btcec.PrivateKey

	remoteStatic    *btcec.PublicKey
	remoteEphemeral *btcec.PublicKey
}

// NewInitiator begins a handshake as the side that already knows the
// responder's static public key (the "XK" pattern: the initiator's static
// key is unknown to the responder in advance, the responder's is known).
func NewInitiator(localStatic *btcec.PrivateKey, remoteStatic *btcec.PublicKey) *HandshakeState {
	h := &HandshakeState{
		initiator:    true,
		localStatic:  localStatic,
		remoteStatic: remoteStatic,
	}
	h.initialize()
	h.mixHash(remoteStatic.SerializeCompressed())

	return h
}

// NewResponder begins a handshake as the side whose static key is known to
// the initiator in advance.
func NewResponder(localStatic *btcec.PrivateKey) *HandshakeState {
	h := &HandshakeState{
		initiator:   false,
		localStatic: localStatic,
	}
	h.initialize()
	h.mixHash(localStatic.PubKey().SerializeCompressed())

	return h
}

// ecdh computes the X-coordinate based Diffie-Hellman shared secret lnd's
// brontide uses: SHA256 of the compressed serialization of priv*pub.
func ecdh(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	var point btcec.JacobianPoint
	pub.AsJacobian(&point)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()

	sharedPub := btcec.NewPublicKey(&result.X, &result.Y)
	h := sha256.Sum256(sharedPub.SerializeCompressed())

	return h[:]
}

// GenActOne produces the initiator's first handshake message: an
// ephemeral public key plus a MAC over the (empty) payload.
func (h *HandshakeState) GenActOne() ([Act1Size]byte, error) {
	var act [Act1Size]byte

	e, err := btcec.NewPrivateKey()
	if err != nil {
		return act, err
	}
	h.localEphemeral = e

	ePub := e.PubKey().SerializeCompressed()
	h.mixHash(ePub)
	h.mixKey(ecdh(e, h.remoteStatic))

	payload, err := h.encryptAndHash(nil)
	if err != nil {
		return act, err
	}

	act[0] = handshakeVersion
	copy(act[1:34], ePub)
	copy(act[34:], payload)

	return act, nil
}

// RecvActOne processes the initiator's act one: learns the initiator's
// ephemeral key and performs the "es" (local-static, remote-ephemeral)
// mix before checking the act's MAC.
func (h *HandshakeState) RecvActOne(act [Act1Size]byte) error {
	if act[0] != handshakeVersion {
		return fmt.Errorf("brontide: unknown handshake version %d", act[0])
	}

	e, err := btcec.ParsePubKey(act[1:34])
	if err != nil {
		return fmt.Errorf("brontide: invalid act one ephemeral key: %w", err)
	}
	h.remoteEphemeral = e
	h.mixHash(act[1:34])
	h.mixKey(ecdh(h.localStatic, e))

	if _, err := h.decryptAndHash(act[34:]); err != nil {
		return err
	}

	return nil
}

// GenActTwo produces the responder's act two: a fresh ephemeral key, the
// "ee" DH mix, and the (now keyed) MAC over the empty payload.
func (h *HandshakeState) GenActTwo() ([Act2Size]byte, error) {
	var act [Act2Size]byte

	e, err := btcec.NewPrivateKey()
	if err != nil {
		return act, err
	}
	h.localEphemeral = e

	ePub := e.PubKey().SerializeCompressed()
	h.mixHash(ePub)
	h.mixKey(ecdh(e, h.remoteEphemeral))

	payload, err := h.encryptAndHash(nil)
	if err != nil {
		return act, err
	}

	act[0] = handshakeVersion
	copy(act[1:34], ePub)
	copy(act[34:], payload)

	return act, nil
}

// RecvActTwo processes the responder's act two on the initiator side.
func (h *HandshakeState) RecvActTwo(act [Act2Size]byte) error {
	if act[0] != handshakeVersion {
		return fmt.Errorf("brontide: unknown handshake version %d", act[0])
	}

	e, err := btcec.ParsePubKey(act[1:34])
	if err != nil {
		return fmt.Errorf("brontide: invalid act two ephemeral key: %w", err)
	}
	h.remoteEphemeral = e
	h.mixHash(act[1:34])
	h.mixKey(ecdh(h.localEphemeral, e))

	if _, err := h.decryptAndHash(act[34:]); err != nil {
		return err
	}

	return nil
}

// GenActThree produces the initiator's final handshake message: its own
// static key, encrypted under the current key, plus the "se" DH mix that
// lets the responder learn the initiator's identity.
func (h *HandshakeState) GenActThree() ([Act3Size]byte, error) {
	var act [Act3Size]byte

	ourPub := h.localStatic.PubKey().SerializeCompressed()
	ciphertext, err := h.encryptAndHash(ourPub)
	if err != nil {
		return act, err
	}

	h.mixKey(ecdh(h.localStatic, h.remoteEphemeral))

	payload, err := h.encryptAndHash(nil)
	if err != nil {
		return act, err
	}

	act[0] = handshakeVersion
	copy(act[1:1+33+macLen], ciphertext)
	copy(act[1+33+macLen:], payload)

	return act, nil
}

// RecvActThree processes the initiator's act three on the responder side,
// learning the initiator's static public key.
func (h *HandshakeState) RecvActThree(act [Act3Size]byte) error {
	if act[0] != handshakeVersion {
		return fmt.Errorf("brontide: unknown handshake version %d", act[0])
	}

	ciphertext := act[1 : 1+33+macLen]
	plaintext, err := h.decryptAndHash(ciphertext)
	if err != nil {
		return err
	}

	remoteStatic, err := btcec.ParsePubKey(plaintext)
	if err != nil {
		return fmt.Errorf("brontide: invalid remote static key: %w", err)
	}
	h.remoteStatic = remoteStatic

	h.mixKey(ecdh(h.localEphemeral, remoteStatic))

	if _, err := h.decryptAndHash(act[1+33+macLen:]); err != nil {
		return err
	}

	return nil
}

// RemoteStatic returns the peer's static public key, available once the
// handshake has completed (act three generated or received).
func (h *HandshakeState) RemoteStatic() *btcec.PublicKey {
	return h.remoteStatic
}

// Split derives the two directional symmetric keys from the final
// chaining key, per Noise's split() step: the initiator sends under the
// first derived key and receives under the second, the responder the
// reverse.
func (h *HandshakeState) Split() (sendKey, recvKey [32]byte) {
	var info []byte
	reader := hkdf.New(sha256.New, nil, h.chainingKey[:], info)

	var k1, k2 [32]byte
	io.ReadFull(reader, k1[:])
	io.ReadFull(reader, k2[:])

	if h.initiator {
		return k1, k2
	}
	return k2, k1
}

// cipher is the narrow AEAD boundary the symmetric state and the framing
// Machine both drive: a single chacha20poly1305 instance keyed for one
// direction.
type cipher interface {
	Encrypt(dst, ad, plaintext []byte) []byte
	Decrypt(dst, ad, ciphertext []byte) ([]byte, error)
}

type chachaCipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	nonce uint64
}

func newChaChaCipher(key [32]byte) (*chachaCipher, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &chachaCipher{aead: aead}, nil
}

// nonceBytes packs the 64-bit little-endian counter into chacha20poly1305's
// 12-byte nonce, with the first 4 bytes left zero as the IETF construction
// requires.
func (c *chachaCipher) nonceBytes() []byte {
	var n [12]byte
	for i := 0; i < 8; i++ {
		n[4+i] = byte(c.nonce >> (8 * uint(i)))
	}
	return n[:]
}

func (c *chachaCipher) Encrypt(dst, ad, plaintext []byte) []byte {
	out := c.aead.Seal(dst, c.nonceBytes(), plaintext, ad)
	c.nonce++
	return out
}

func (c *chachaCipher) Decrypt(dst, ad, ciphertext []byte) ([]byte, error) {
	out, err := c.aead.Open(dst, c.nonceBytes(), ciphertext, ad)
	if err != nil {
		return nil, err
	}
	c.nonce++
	return out, nil
}
