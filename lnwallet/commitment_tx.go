package lnwallet

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// obscuredCommitNumMask derives the 48-bit mask a commitment number is
// XORed with before being split across a commitment transaction's nLockTime
// and nSequence fields. It is built from the lower 48 bits of
// SHA256(local_payment_basepoint || remote_payment_basepoint), with the
// basepoints ordered by whichever party opened the channel -- the same
// obscuring the sender and receiver of a commitment transaction both
// reconstruct independently, without revealing the channel's state number
// on-chain to anyone who doesn't already know both basepoints.
func obscuredCommitNumMask(openerPaymentBasePoint, acceptorPaymentBasePoint *btcec.PublicKey) uint64 {
	h := sha256.New()
	h.Write(openerPaymentBasePoint.SerializeCompressed())
	h.Write(acceptorPaymentBasePoint.SerializeCompressed())
	sum := h.Sum(nil)

	return binary.BigEndian.Uint64(sum[24:32]) & 0xFFFFFFFFFFFF
}

// commitNumObscuredLocktimeSequence returns the (nLockTime, nSequence) pair
// that encode commitHeight XOR mask across a commitment transaction, per
// BOLT3: the upper 24 bits of the masked number go in the low bits of
// nLockTime, the lower 24 go in nSequence, each tagged with their required
// marker bits so the transaction still looks like an ordinary
// version-2, non-locked transaction to anything that doesn't know to look.
func commitNumObscuredLocktimeSequence(commitHeight uint64, mask uint64) (uint32, uint32) {
	obscured := (commitHeight ^ mask) & 0xFFFFFFFFFFFF

	lockTime := uint32(0x20000000) | uint32(obscured>>24)
	sequence := uint32(0x80000000) | uint32(obscured&0xFFFFFF)

	return lockTime, sequence
}

// CreateCommitTx builds the unsigned commitment transaction carrying only
// the to_local and to_remote outputs (HTLC outputs are added separately by
// the caller). fundingIn is tagged with the obscured commitment number
// in its Sequence field by the caller before this is invoked.
func CreateCommitTx(helper chainhelpers.Helper, fundingIn chainhelpers.TxIn,
	keyRing *commitmentKeyRing, csvTimeout uint32, amountToSelf,
	amountToThem, dustLimit btcutil.Amount, lockTime uint32) ([]byte, error) {

	ourScript, err := helper.CommitScriptToSelf(csvTimeout, keyRing.delayKey,
		keyRing.revocationKey)
	if err != nil {
		return nil, err
	}

	theirScript, err := helper.CommitScriptUnencumbered(keyRing.noDelayKey)
	if err != nil {
		return nil, err
	}

	var outs []chainhelpers.TxOut
	if amountToSelf >= dustLimit {
		outs = append(outs, chainhelpers.TxOut{
			Value:    int64(amountToSelf),
			PkScript: ourScript.PkScript,
		})
	}
	if amountToThem >= dustLimit {
		outs = append(outs, chainhelpers.TxOut{
			Value:    int64(amountToThem),
			PkScript: theirScript,
		})
	}

	return helper.BuildTx([]chainhelpers.TxIn{fundingIn}, outs, lockTime)
}

// ObscuredCommitmentLockTime exposes the obscured nLockTime/nSequence pair
// for a given commitment height, so that a caller building the very first
// (height 0) commitment transaction before an Engine exists -- the
// funding_created/funding_signed exchange -- can reproduce exactly the
// encoding Engine.createCommitmentTx uses for every later height.
func ObscuredCommitmentLockTime(openerPaymentBasePoint,
	acceptorPaymentBasePoint *btcec.PublicKey, height uint64) (uint32, uint32) {

	mask := obscuredCommitNumMask(openerPaymentBasePoint, acceptorPaymentBasePoint)
	return commitNumObscuredLocktimeSequence(height, mask)
}

// NewInitialCommitTx builds one party's very first (height 0) commitment
// transaction, before an Engine exists to track subsequent states -- the
// funding_created/funding_signed exchange needs both initial commitment
// transactions signed before either side has enough information to
// construct an Engine (which itself starts from height 0 and needs the
// already-built local commitment transaction's bytes).
func NewInitialCommitTx(helper chainhelpers.Helper, fundingIn chainhelpers.TxIn,
	isOurCommit bool, localChanCfg, remoteChanCfg *ChannelConfig,
	commitPoint *btcec.PublicKey, csvTimeout uint32, amountToSelf,
	amountToThem, dustLimit btcutil.Amount, lockTime uint32) ([]byte, error) {

	keyRing, err := deriveCommitmentKeys(helper, commitPoint, isOurCommit,
		localChanCfg, remoteChanCfg)
	if err != nil {
		return nil, err
	}

	return CreateCommitTx(helper, fundingIn, keyRing, csvTimeout,
		amountToSelf, amountToThem, dustLimit, lockTime)
}

// CreateCooperativeCloseTx builds the mutual-close transaction: a single
// input spending the funding output, and up to two outputs returning each
// party's settled balance to their delivery script, respecting dust limits.
func CreateCooperativeCloseTx(helper chainhelpers.Helper, fundingIn chainhelpers.TxIn,
	localDust, remoteDust, ourBalance, theirBalance btcutil.Amount,
	ourDeliveryScript, theirDeliveryScript []byte) ([]byte, error) {

	var outs []chainhelpers.TxOut
	if ourBalance >= localDust {
		outs = append(outs, chainhelpers.TxOut{
			Value:    int64(ourBalance),
			PkScript: ourDeliveryScript,
		})
	}
	if theirBalance >= remoteDust {
		outs = append(outs, chainhelpers.TxOut{
			Value:    int64(theirBalance),
			PkScript: theirDeliveryScript,
		})
	}

	idx := helper.BIP69Sort(outs)
	sorted := make([]chainhelpers.TxOut, len(outs))
	for i, j := range idx {
		sorted[i] = outs[j]
	}

	return helper.BuildTx([]chainhelpers.TxIn{fundingIn}, sorted, 0)
}

// genHtlcScript builds the witness script and P2WSH pkScript for a single
// HTLC output. Which of the offered/received script shapes is used depends
// on two bits: whether the HTLC is incoming from our point of view, and
// whether the output is being placed on our commitment transaction or the
// remote party's.
func genHtlcScript(helper chainhelpers.Helper, isIncoming, ourCommit bool,
	timeout uint32, rHash [32]byte, keyRing *commitmentKeyRing) (chainhelpers.ScriptInfo, error) {

	switch {
	case isIncoming && ourCommit:
		return helper.ReceivedHTLCScript(keyRing.revocationKey,
			keyRing.remoteHtlcKey, keyRing.localHtlcKey, rHash, timeout)
	case isIncoming && !ourCommit:
		return helper.OfferedHTLCScript(keyRing.revocationKey,
			keyRing.remoteHtlcKey, keyRing.localHtlcKey, rHash)
	case !isIncoming && ourCommit:
		return helper.OfferedHTLCScript(keyRing.revocationKey,
			keyRing.localHtlcKey, keyRing.remoteHtlcKey, rHash)
	default: // !isIncoming && !ourCommit
		return helper.ReceivedHTLCScript(keyRing.revocationKey,
			keyRing.localHtlcKey, keyRing.remoteHtlcKey, rHash, timeout)
	}
}

// createCommitmentTx generates the unsigned commitment transaction for a
// commitment view: it computes the post-HTLC balances and fee, builds the
// to_local/to_remote outputs plus one output per non-dust HTLC, BIP69-sorts
// the full output set, and stores the result (along with the final fee and
// balances) onto c.
func (e *Engine) createCommitmentTx(c *commitment, filteredHTLCView *htlcView,
	keyRing *commitmentKeyRing) error {

	ourBalance := c.ourBalance
	theirBalance := c.theirBalance

	var numHTLCs int64
	for _, htlc := range filteredHTLCView.ourUpdates {
		if htlcIsDust(false, c.isOurs, c.feePerKw, htlc.Amount.ToSatoshis(), c.dustLimit) {
			continue
		}
		numHTLCs++
	}
	for _, htlc := range filteredHTLCView.theirUpdates {
		if htlcIsDust(true, c.isOurs, c.feePerKw, htlc.Amount.ToSatoshis(), c.dustLimit) {
			continue
		}
		numHTLCs++
	}

	totalWeight := estimateCommitTxWeight(int(numHTLCs), false)
	commitFee := btcutil.Amount((int64(c.feePerKw) * totalWeight) / 1000)

	if e.isInitiator {
		ourBalance -= lnwire.NewMSatFromSatoshis(commitFee)
	} else {
		theirBalance -= lnwire.NewMSatFromSatoshis(commitFee)
	}

	var delay uint32
	var delayBalance, p2wkhBalance btcutil.Amount
	if c.isOurs {
		delay = uint32(e.localChanCfg.CsvDelay)
		delayBalance = ourBalance.ToSatoshis()
		p2wkhBalance = theirBalance.ToSatoshis()
	} else {
		delay = uint32(e.remoteChanCfg.CsvDelay)
		delayBalance = theirBalance.ToSatoshis()
		p2wkhBalance = ourBalance.ToSatoshis()
	}

	ourScript, err := e.helper.CommitScriptToSelf(delay, keyRing.delayKey,
		keyRing.revocationKey)
	if err != nil {
		return err
	}
	theirScript, err := e.helper.CommitScriptUnencumbered(keyRing.noDelayKey)
	if err != nil {
		return err
	}

	var outs []chainhelpers.TxOut
	if delayBalance >= c.dustLimit {
		outs = append(outs, chainhelpers.TxOut{
			Value: int64(delayBalance), PkScript: ourScript.PkScript,
		})
	}
	if p2wkhBalance >= c.dustLimit {
		outs = append(outs, chainhelpers.TxOut{
			Value: int64(p2wkhBalance), PkScript: theirScript,
		})
	}

	// htlcOutIdx maps an HTLC's position in the pre-sort outs slice to the
	// PaymentDescriptor it belongs to, so the real post-sort vout can be
	// looked up once BIP69Sort has permuted outs.
	htlcOutIdx := make(map[int]*PaymentDescriptor)

	addHTLCOutput := func(htlc *PaymentDescriptor, isIncoming bool) error {
		if htlcIsDust(isIncoming, c.isOurs, c.feePerKw, htlc.Amount.ToSatoshis(), c.dustLimit) {
			if c.isOurs {
				htlc.localOutputIndex = -1
			} else {
				htlc.remoteOutputIndex = -1
			}
			return nil
		}

		info, err := genHtlcScript(e.helper, isIncoming, c.isOurs,
			htlc.Timeout, htlc.RHash, keyRing)
		if err != nil {
			return err
		}

		outs = append(outs, chainhelpers.TxOut{
			Value:    int64(htlc.Amount.ToSatoshis()),
			PkScript: info.PkScript,
		})
		htlcOutIdx[len(outs)-1] = htlc

		return nil
	}

	for _, htlc := range filteredHTLCView.ourUpdates {
		if err := addHTLCOutput(htlc, false); err != nil {
			return err
		}
	}
	for _, htlc := range filteredHTLCView.theirUpdates {
		if err := addHTLCOutput(htlc, true); err != nil {
			return err
		}
	}

	idx := e.helper.BIP69Sort(outs)
	sorted := make([]chainhelpers.TxOut, len(outs))
	sortedPos := make([]int, len(outs))
	for i, j := range idx {
		sorted[i] = outs[j]
		sortedPos[j] = i
	}

	for origIdx, htlc := range htlcOutIdx {
		outputIndex := int32(sortedPos[origIdx])
		if c.isOurs {
			htlc.localOutputIndex = outputIndex
		} else {
			htlc.remoteOutputIndex = outputIndex
		}
	}

	lockTime, sequence := commitNumObscuredLocktimeSequence(c.height, e.obscuringMask)
	fundingIn := e.fundingTxIn
	fundingIn.Sequence = sequence

	commitTxBytes, err := e.helper.BuildTx([]chainhelpers.TxIn{fundingIn}, sorted, lockTime)
	if err != nil {
		return err
	}

	c.txn = commitTxBytes
	c.fee = commitFee
	c.ourBalance = ourBalance
	c.theirBalance = theirBalance

	return nil
}
