// Package btcdhelpers is the reference chainhelpers.Helper implementation,
// built on btcsuite/btcd's txscript, wire, and chainhash packages. It
// adapts the script-building idiom of the teacher repo's
// lnwallet/script_utils.go -- txscript.NewScriptBuilder, witness-script-hash
// wrapping, homomorphic revocation key derivation -- to the modern BOLT3
// revocation-pubkey commitment and HTLC scripts the spec calls for, rather
// than the teacher's older revocation-hash scheme.
package btcdhelpers

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // BOLT3 calls for bare RIPEMD160, not hash160

	"github.com/lightningnetwork/lnchannel/chainhelpers"
)

// ripemd160H is the bare RIPEMD160 digest the BOLT3 HTLC scripts commit to
// (as opposed to btcutil.Hash160, which is SHA256 then RIPEMD160).
func ripemd160H(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}

// Helper is the btcd-backed implementation of chainhelpers.Helper.
type Helper struct{}

// New returns a ready-to-use btcd-backed chain helper.
func New() *Helper {
	return &Helper{}
}

var _ chainhelpers.Helper = (*Helper)(nil)

func witnessScriptHash(script []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	h := sha256.Sum256(script)
	bldr.AddData(h[:])
	return bldr.Script()
}

// FundingScript builds the 2-of-2 multisig redeem script and its P2WSH
// output, sorting the two pubkeys lexicographically per BOLT3.
func (h *Helper) FundingScript(localFundingKey, remoteFundingKey *btcec.PublicKey,
	amount int64) (chainhelpers.ScriptInfo, error) {

	if amount <= 0 {
		return chainhelpers.ScriptInfo{}, fmt.Errorf(
			"chainhelpers: funding amount must be positive")
	}

	aPub := localFundingKey.SerializeCompressed()
	bPub := remoteFundingKey.SerializeCompressed()
	if bytes.Compare(aPub, bPub) > 0 {
		aPub, bPub = bPub, aPub
	}

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_2)
	bldr.AddData(aPub)
	bldr.AddData(bPub)
	bldr.AddOp(txscript.OP_2)
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	redeemScript, err := bldr.Script()
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	pkScript, err := witnessScriptHash(redeemScript)
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	return chainhelpers.ScriptInfo{WitnessScript: redeemScript, PkScript: pkScript}, nil
}

// CommitScriptToSelf builds the to_local output script per the spec's
// literal BOLT3 form: OP_IF <revocation_pk> OP_ELSE <to_self_delay> OP_CSV
// OP_DROP <delayed_pk> OP_ENDIF OP_CHECKSIG.
func (h *Helper) CommitScriptToSelf(csvDelay uint32, delayedPubKey,
	revocationPubKey *btcec.PublicKey) (chainhelpers.ScriptInfo, error) {

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_IF)
	bldr.AddData(revocationPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_ELSE)
	bldr.AddInt64(int64(csvDelay))
	bldr.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	bldr.AddOp(txscript.OP_DROP)
	bldr.AddData(delayedPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_ENDIF)
	bldr.AddOp(txscript.OP_CHECKSIG)

	script, err := bldr.Script()
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	pkScript, err := witnessScriptHash(script)
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	return chainhelpers.ScriptInfo{WitnessScript: script, PkScript: pkScript}, nil
}

// CommitScriptUnencumbered builds the to_remote P2WKH output script.
func (h *Helper) CommitScriptUnencumbered(pubKey *btcec.PublicKey) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	bldr.AddData(btcutil.Hash160(pubKey.SerializeCompressed()))
	return bldr.Script()
}

// OfferedHTLCScript builds the witness script for an HTLC offered by the
// local party: revocation path, direct preimage-claim path for the
// receiver, or a 2-of-2 multisig path enabling the second-tier HTLC-timeout
// transaction to spend it after the sender's own CLTV/CSV delay elapses.
func (h *Helper) OfferedHTLCScript(revocationPubKey, senderPubKey,
	receiverPubKey *btcec.PublicKey, paymentHash [32]byte) (chainhelpers.ScriptInfo, error) {

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_IF)
	bldr.AddData(revocationPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ELSE)
	bldr.AddOp(txscript.OP_IF)
	bldr.AddOp(txscript.OP_SIZE)
	bldr.AddInt64(32)
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddOp(txscript.OP_HASH160)
	bldr.AddData(ripemd160H(paymentHash[:]))
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddData(receiverPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ELSE)
	bldr.AddOp(txscript.OP_2)
	bldr.AddData(senderPubKey.SerializeCompressed())
	bldr.AddData(receiverPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_2)
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	bldr.AddOp(txscript.OP_ENDIF)
	bldr.AddOp(txscript.OP_ENDIF)

	script, err := bldr.Script()
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	pkScript, err := witnessScriptHash(script)
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	return chainhelpers.ScriptInfo{WitnessScript: script, PkScript: pkScript}, nil
}

// ReceivedHTLCScript builds the witness script for an HTLC received by the
// local party: revocation path, direct preimage-claim path for the
// receiver, or a CLTV-gated reclaim path for the original sender.
func (h *Helper) ReceivedHTLCScript(revocationPubKey, senderPubKey,
	receiverPubKey *btcec.PublicKey, paymentHash [32]byte,
	cltvExpiry uint32) (chainhelpers.ScriptInfo, error) {

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_IF)
	bldr.AddData(revocationPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ELSE)
	bldr.AddOp(txscript.OP_IF)
	bldr.AddOp(txscript.OP_SIZE)
	bldr.AddInt64(32)
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddOp(txscript.OP_HASH160)
	bldr.AddData(ripemd160H(paymentHash[:]))
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddData(receiverPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ELSE)
	bldr.AddInt64(int64(cltvExpiry))
	bldr.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	bldr.AddOp(txscript.OP_DROP)
	bldr.AddData(senderPubKey.SerializeCompressed())
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ENDIF)
	bldr.AddOp(txscript.OP_ENDIF)

	script, err := bldr.Script()
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	pkScript, err := witnessScriptHash(script)
	if err != nil {
		return chainhelpers.ScriptInfo{}, err
	}

	return chainhelpers.ScriptInfo{WitnessScript: script, PkScript: pkScript}, nil
}

// DeriveRevocationPubKey homomorphically combines the commitment point with
// the revocation base point: revocationPubKey = revocationBasePoint +
// commitPoint, the BOLT3 "per_commitment_point tweaks the revocation
// basepoint" construction.
func (h *Helper) DeriveRevocationPubKey(commitPoint,
	revocationBasePoint *btcec.PublicKey) (*btcec.PublicKey, error) {

	if commitPoint == nil || revocationBasePoint == nil {
		return nil, fmt.Errorf("chainhelpers: nil point passed to " +
			"DeriveRevocationPubKey")
	}

	var combined btcec.JacobianPoint
	var p1, p2 btcec.JacobianPoint
	commitPoint.AsJacobian(&p1)
	revocationBasePoint.AsJacobian(&p2)
	btcec.AddNonConst(&p1, &p2, &combined)
	combined.ToAffine()

	return btcec.NewPublicKey(&combined.X, &combined.Y), nil
}

// DeriveRevocationPrivKey reconstructs the revocation private key once the
// per-commitment secret is known: revocationPriv = revocationBasePriv +
// commitSecret mod N.
func (h *Helper) DeriveRevocationPrivKey(revocationBasePriv *btcec.PrivateKey,
	commitSecret [32]byte) (*btcec.PrivateKey, error) {

	if revocationBasePriv == nil {
		return nil, fmt.Errorf("chainhelpers: nil private key passed to " +
			"DeriveRevocationPrivKey")
	}

	var secretScalar, sum btcec.ModNScalar
	secretScalar.SetByteSlice(commitSecret[:])

	baseScalar := revocationBasePriv.Key
	sum.Add2(&baseScalar, &secretScalar)

	priv := secp256k1PrivFromScalar(sum)
	return priv, nil
}

func secp256k1PrivFromScalar(s btcec.ModNScalar) *btcec.PrivateKey {
	b := s.Bytes()
	return btcec.PrivKeyFromBytes(b[:])
}

// tweakHash computes SHA256(commitPoint || basePoint), the scalar every
// per-commitment payment/HTLC/delay key is tweaked by.
func tweakHash(basePoint, commitPoint *btcec.PublicKey) [32]byte {
	return sha256.Sum256(append(
		commitPoint.SerializeCompressed(),
		basePoint.SerializeCompressed()...,
	))
}

// TweakPubKey derives basePoint + tweakHash(basePoint, commitPoint)*G.
func (h *Helper) TweakPubKey(basePoint, commitPoint *btcec.PublicKey) *btcec.PublicKey {
	tweak := tweakHash(basePoint, commitPoint)

	var tweakScalar btcec.ModNScalar
	tweakScalar.SetBytes(&tweak)

	var tweakPoint, basePointJ, combined btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)
	basePoint.AsJacobian(&basePointJ)
	btcec.AddNonConst(&tweakPoint, &basePointJ, &combined)
	combined.ToAffine()

	return btcec.NewPublicKey(&combined.X, &combined.Y)
}

// TweakPrivKey derives basePriv + tweakHash(basePriv.PubKey(), commitPoint)
// mod N.
func (h *Helper) TweakPrivKey(basePriv *btcec.PrivateKey,
	commitPoint *btcec.PublicKey) *btcec.PrivateKey {

	tweak := tweakHash(basePriv.PubKey(), commitPoint)

	var tweakScalar, sum btcec.ModNScalar
	tweakScalar.SetBytes(&tweak)

	baseScalar := basePriv.Key
	sum.Add2(&baseScalar, &tweakScalar)

	return secp256k1PrivFromScalar(sum)
}

// SignFundingInput signs a serialized commitment transaction's single
// funding input with ECDSA over its SHA256d sighash.
func (h *Helper) SignFundingInput(commitTxBytes []byte, fundingAmount int64,
	witnessScript []byte, signerKey *btcec.PrivateKey) ([]byte, error) {

	return signTx(commitTxBytes, fundingAmount, witnessScript, signerKey,
		txscript.SigHashAll)
}

// SignHTLCTimeoutOrSuccess signs a second-tier HTLC transaction with
// SIGHASH_ALL|SIGHASH_SINGLE|ANYONECANPAY, per BOLT3.
func (h *Helper) SignHTLCTimeoutOrSuccess(htlcTxBytes []byte, htlcAmount int64,
	witnessScript []byte, signerKey *btcec.PrivateKey) ([]byte, error) {

	return signTx(htlcTxBytes, htlcAmount, witnessScript, signerKey,
		txscript.SigHashSingle|txscript.SigHashAnyOneCanPay)
}

func signTx(txBytes []byte, amount int64, witnessScript []byte,
	signerKey *btcec.PrivateKey, hashType txscript.SigHashType) ([]byte, error) {

	sigHash, err := calcWitnessSigHash(txBytes, amount, witnessScript, hashType)
	if err != nil {
		return nil, err
	}

	sig := ecdsa.Sign(signerKey, sigHash)
	return append(sig.Serialize(), byte(hashType)), nil
}

func calcWitnessSigHash(txBytes []byte, amount int64, witnessScript []byte,
	hashType txscript.SigHashType) ([]byte, error) {

	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, err
	}
	if len(tx.TxIn) == 0 {
		return nil, fmt.Errorf("chainhelpers: transaction has no inputs to sign")
	}

	sigHashes := txscript.NewTxSigHashes(tx, txscript.NewCannedPrevOutputFetcher(
		witnessScript, amount))

	return txscript.CalcWitnessSigHash(witnessScript, sigHashes, hashType,
		tx, 0, amount)
}

// SigHashAll computes the SIGHASH_ALL witness sighash for a transaction's
// single input, so callers that only need to verify a signature (rather than
// produce one) don't need their own copy of the sighash logic.
func (h *Helper) SigHashAll(txBytes []byte, amount int64,
	witnessScript []byte) ([]byte, error) {

	return calcWitnessSigHash(txBytes, amount, witnessScript, txscript.SigHashAll)
}

// VerifySignature checks a DER-encoded ECDSA signature against a digest
// and a public key.
func (h *Helper) VerifySignature(digest []byte, sig []byte, pubKey *btcec.PublicKey) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pubKey)
}

// BIP69Sort returns the indices of outputs sorted by ascending amount, then
// ascending pkScript, per BIP69.
func (h *Helper) BIP69Sort(outputs []chainhelpers.TxOut) []int {
	idx := make([]int, len(outputs))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(i, j int) bool {
		a, b := outputs[idx[i]], outputs[idx[j]]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		return bytes.Compare(a.PkScript, b.PkScript) < 0
	})

	return idx
}

// BuildTx assembles a version-2 transaction from the given inputs and
// outputs and returns its wire serialization.
func (h *Helper) BuildTx(ins []chainhelpers.TxIn, outs []chainhelpers.TxOut,
	lockTime uint32) ([]byte, error) {

	tx := wire.NewMsgTx(2)
	tx.LockTime = lockTime

	for _, in := range ins {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash(in.PreviousOutPoint.Hash),
				Index: in.PreviousOutPoint.Index,
			},
			Sequence: in.Sequence,
		})
	}

	for _, out := range outs {
		tx.AddTxOut(&wire.TxOut{
			Value:    out.Value,
			PkScript: out.PkScript,
		})
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// TxID computes the double-SHA256 transaction id of a serialized
// transaction.
func (h *Helper) TxID(txBytes []byte) ([32]byte, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return [32]byte{}, err
	}

	return chainhash.Hash(tx.TxHash()), nil
}
