// Package chainhelpers defines the narrow boundary between the channel
// engine and the Bitcoin-layer primitives (scripts, sighashes, transaction
// sorting) it needs but never constructs on its own. A concrete adapter
// lives in chainhelpers/btcdhelpers; the engine itself only ever depends on
// this interface, grounded on the "external collaborator" framing of the
// commitment and HTLC engine.
package chainhelpers

import "github.com/btcsuite/btcd/btcec/v2"

// ScriptInfo pairs a redeem/witness script with its pay-to-witness-script-
// hash output script.
type ScriptInfo struct {
	WitnessScript []byte
	PkScript      []byte
}

// OutPoint identifies a transaction output the chain helper must build a
// sighash or witness for.
type OutPoint struct {
	Hash  [32]byte
	Index uint32
}

// TxOut mirrors wire.TxOut without requiring callers to import btcd's wire
// package directly.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// TxIn mirrors the subset of wire.TxIn the commitment engine needs to
// describe an input: which output it spends, and the relative-locktime
// encoded sequence number (0 for none).
type TxIn struct {
	PreviousOutPoint OutPoint
	Sequence         uint32
}

// Helper is the interface the commitment/HTLC engine uses to reach into the
// Bitcoin transaction layer. Every method is pure given its inputs -- no
// helper method touches chain state or persists anything.
type Helper interface {
	// FundingScript builds the 2-of-2 multisig redeem script and P2WSH
	// output script for a funding transaction.
	FundingScript(localFundingKey, remoteFundingKey *btcec.PublicKey,
		amount int64) (ScriptInfo, error)

	// CommitScriptToSelf builds the to_local output script: spendable
	// immediately by the revocation key, or by the delayed key after
	// to_self_delay CSV blocks.
	CommitScriptToSelf(csvDelay uint32, delayedPubKey,
		revocationPubKey *btcec.PublicKey) (ScriptInfo, error)

	// CommitScriptUnencumbered builds the to_remote P2WPKH output script,
	// spendable immediately.
	CommitScriptUnencumbered(pubKey *btcec.PublicKey) ([]byte, error)

	// OfferedHTLCScript builds the witness script for an HTLC offered by
	// the local party: the receiver can claim it with the payment
	// preimage, the revocation key can always sweep it, and otherwise it
	// is spent by a 2-of-2 sender/receiver signature (the second-tier
	// HTLC-timeout path); the script itself carries no CLTV.
	OfferedHTLCScript(revocationPubKey, senderPubKey, receiverPubKey *btcec.PublicKey,
		paymentHash [32]byte) (ScriptInfo, error)

	// ReceivedHTLCScript builds the witness script for an HTLC received
	// by the local party: claimable immediately with the preimage, by
	// the revocation key at any time, or by the sender after cltvExpiry.
	ReceivedHTLCScript(revocationPubKey, senderPubKey, receiverPubKey *btcec.PublicKey,
		paymentHash [32]byte, cltvExpiry uint32) (ScriptInfo, error)

	// DeriveRevocationPubKey homomorphically combines a commitment point
	// with a revocation base point, per BOLT3's per-channel revocation
	// key derivation.
	DeriveRevocationPubKey(commitPoint, revocationBasePoint *btcec.PublicKey) (*btcec.PublicKey, error)

	// DeriveRevocationPrivKey reconstructs the revocation private key
	// once both the per-commitment secret and the revocation base
	// private key are known (i.e. after a counterparty broadcasts a
	// revoked commitment).
	DeriveRevocationPrivKey(revocationBasePriv *btcec.PrivateKey,
		commitSecret [32]byte) (*btcec.PrivateKey, error)

	// TweakPubKey derives a per-commitment public key from a base point,
	// tweaking it by SHA256(commitPoint || basePoint) -- the payment,
	// HTLC, and delay key derivation used throughout the commitment
	// transaction.
	TweakPubKey(basePoint, commitPoint *btcec.PublicKey) *btcec.PublicKey

	// TweakPrivKey derives the private key counterpart of TweakPubKey,
	// used by the channel party that owns basePriv.
	TweakPrivKey(basePriv *btcec.PrivateKey, commitPoint *btcec.PublicKey) *btcec.PrivateKey

	// SignFundingInput produces the local party's signature for the
	// funding input of a commitment transaction.
	SignFundingInput(commitTxBytes []byte, fundingAmount int64,
		witnessScript []byte, signerKey *btcec.PrivateKey) ([]byte, error)

	// SignHTLCTimeoutOrSuccess signs a second-tier HTLC transaction with
	// SIGHASH_ALL|SIGHASH_SINGLE|ANYONECANPAY semantics.
	SignHTLCTimeoutOrSuccess(htlcTxBytes []byte, htlcAmount int64,
		witnessScript []byte, signerKey *btcec.PrivateKey) ([]byte, error)

	// VerifySignature checks a DER-encoded signature against a message
	// digest and a public key.
	VerifySignature(digest []byte, sig []byte, pubKey *btcec.PublicKey) bool

	// SigHashAll computes the BIP143 sighash a SIGHASH_ALL signature over
	// the given transaction's single input must commit to, spending an
	// output of the given amount and witness script.
	SigHashAll(txBytes []byte, amount int64, witnessScript []byte) ([]byte, error)

	// BIP69Sort returns the indices of a set of outputs reordered per
	// BIP69 (ascending amount, then ascending pkScript).
	BIP69Sort(outputs []TxOut) []int

	// BuildTx assembles and serializes a raw transaction from the given
	// inputs and outputs, so that callers never need to construct a
	// wire.MsgTx by hand. lockTime and the obscured commitment number
	// encoded into it are the caller's responsibility to compute.
	BuildTx(ins []TxIn, outs []TxOut, lockTime uint32) ([]byte, error)

	// TxID returns the double-SHA256 transaction id of a serialized
	// transaction, in the byte order used to reference it as an
	// OutPoint.Hash elsewhere.
	TxID(txBytes []byte) ([32]byte, error)
}
