package lnwallet

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// ErrMaxHTLCNumber is returned when a proposed update would push the number
// of outstanding HTLCs past the negotiated ceiling.
var ErrMaxHTLCNumber = fmt.Errorf("commitment transaction exceeds max htlc number")

// ErrInsufficientBalance is returned by AddHTLC when the local balance
// cannot cover a newly offered HTLC plus its share of the commitment fee.
var ErrInsufficientBalance = fmt.Errorf("insufficient bandwidth to add htlc")

// validateCommitmentSanity checks that folding in the updates below the
// given log indexes would not push either side's HTLC count past the
// negotiated ceiling. local/remote select which side's updates are being
// evaluated; prediction accounts for one more HTLC than currently logged,
// for use before an update has actually been appended.
func (e *Engine) validateCommitmentSanity(theirLogCounter, ourLogCounter uint64,
	prediction, local, remote bool) error {

	htlcCount := 0
	theirOfferedCount := 0
	ourOfferedCount := 0
	if prediction {
		if remote {
			theirOfferedCount++
		}
		if local {
			ourOfferedCount++
		}
		htlcCount++
	}

	view := e.fetchHTLCView(theirLogCounter, ourLogCounter)

	if remote {
		for _, entry := range view.theirUpdates {
			if entry.EntryType == Add {
				htlcCount++
				theirOfferedCount++
			}
		}
		for _, entry := range view.ourUpdates {
			if entry.EntryType != Add {
				htlcCount--
			}
		}
	}

	if local {
		for _, entry := range view.ourUpdates {
			if entry.EntryType == Add {
				htlcCount++
				ourOfferedCount++
			}
		}
		for _, entry := range view.theirUpdates {
			if entry.EntryType != Add {
				htlcCount--
			}
		}
	}

	// max_accepted_htlcs is negotiated per direction: the remote party's
	// value bounds how many HTLCs we may have outstanding on its
	// commitment, and our own value bounds how many it may have
	// outstanding on ours.
	if remote && theirOfferedCount > int(e.localChanCfg.MaxAcceptedHtlcs) {
		return ErrMaxHTLCNumber
	}
	if local && ourOfferedCount > int(e.remoteChanCfg.MaxAcceptedHtlcs) {
		return ErrMaxHTLCNumber
	}

	maxHTLCNumber := MaxHTLCNumber / 2
	if local && remote {
		maxHTLCNumber = MaxHTLCNumber
	}

	if htlcCount > maxHTLCNumber {
		return ErrMaxHTLCNumber
	}

	return nil
}

// fetchCommitmentView builds a fresh, unsigned commitment transaction one
// height beyond the tip of the given chain, folding in every update visible
// up to the given log indexes.
func (e *Engine) fetchCommitmentView(remoteChain bool, ourLogIndex,
	ourHtlcIndex, theirLogIndex, theirHtlcIndex uint64,
	keyRing *commitmentKeyRing) (*commitment, error) {

	commitChain := e.localCommitChain
	if remoteChain {
		commitChain = e.remoteCommitChain
	}

	ourBalance := commitChain.tip().ourBalance
	theirBalance := commitChain.tip().theirBalance

	if e.isInitiator {
		ourBalance += lnwire.NewMSatFromSatoshis(commitChain.tip().fee)
	} else {
		theirBalance += lnwire.NewMSatFromSatoshis(commitChain.tip().fee)
	}

	nextHeight := commitChain.tip().height + 1

	view := e.fetchHTLCView(theirLogIndex, ourLogIndex)
	filteredView := e.evaluateHTLCView(view, &ourBalance, &theirBalance,
		nextHeight, remoteChain)

	feePerKw := commitChain.tail().feePerKw
	if e.isInitiator {
		switch {
		case remoteChain && e.pendingFeeUpdate != nil:
			feePerKw = *e.pendingFeeUpdate
		case !remoteChain && e.pendingAckFeeUpdate != nil:
			feePerKw = *e.pendingAckFeeUpdate
		}
	} else {
		switch {
		case !remoteChain && e.pendingFeeUpdate != nil:
			feePerKw = *e.pendingFeeUpdate
		case remoteChain && e.pendingAckFeeUpdate != nil:
			feePerKw = *e.pendingAckFeeUpdate
		}
	}

	dustLimit := e.localChanCfg.DustLimit
	if remoteChain {
		dustLimit = e.remoteChanCfg.DustLimit
	}

	c := &commitment{
		ourBalance:        ourBalance,
		theirBalance:      theirBalance,
		ourMessageIndex:   ourLogIndex,
		ourHtlcIndex:      ourHtlcIndex,
		theirMessageIndex: theirLogIndex,
		theirHtlcIndex:    theirHtlcIndex,
		height:            nextHeight,
		feePerKw:          feePerKw,
		dustLimit:         dustLimit,
		isOurs:            !remoteChain,
	}

	if err := e.createCommitmentTx(c, filteredView, keyRing); err != nil {
		return nil, err
	}

	c.outgoingHTLCs = make([]PaymentDescriptor, len(filteredView.ourUpdates))
	for i, htlc := range filteredView.ourUpdates {
		c.outgoingHTLCs[i] = *htlc
	}
	c.incomingHTLCs = make([]PaymentDescriptor, len(filteredView.theirUpdates))
	for i, htlc := range filteredView.theirUpdates {
		c.incomingHTLCs[i] = *htlc
	}

	return c, nil
}

// htlcSigs signs every non-dust HTLC on a freshly built commitment view on
// behalf of the party that did NOT build it -- i.e. the signatures a party
// sends alongside commitment_signed so the receiver can later claim its
// HTLC outputs via the second-tier HTLC-success/HTLC-timeout transactions.
// ourCommit is whether the commitment view belongs to the signer themselves
// (false when signing the remote party's commitment).
func (e *Engine) htlcSigs(view *commitment, keyRing *commitmentKeyRing,
	ourCommit bool) ([][]byte, error) {

	txid, err := e.helper.TxID(view.txn)
	if err != nil {
		return nil, err
	}

	sign := func(htlc *PaymentDescriptor, isIncoming bool) ([]byte, error) {
		if htlcIsDust(isIncoming, ourCommit, view.feePerKw,
			htlc.Amount.ToSatoshis(), view.dustLimit) {
			return nil, nil
		}

		info, err := genHtlcScript(e.helper, isIncoming, ourCommit,
			htlc.Timeout, htlc.RHash, keyRing)
		if err != nil {
			return nil, err
		}

		var outputIndex int32
		if ourCommit {
			outputIndex = htlc.localOutputIndex
		} else {
			outputIndex = htlc.remoteOutputIndex
		}

		secondStageTx, htlcAmt, err := genSecondStageTx(e.helper,
			isIncoming, ourCommit, txid, uint32(outputIndex),
			htlc.Timeout, htlc.Amount.ToSatoshis(), view.feePerKw,
			keyRing)
		if err != nil {
			return nil, err
		}

		return e.helper.SignHTLCTimeoutOrSuccess(secondStageTx,
			int64(htlcAmt), info.WitnessScript, e.keys.HtlcBaseKey)
	}

	var sigs [][]byte
	for _, htlc := range view.outgoingHTLCs {
		sig, err := sign(&htlc, false)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			sigs = append(sigs, sig)
		}
	}
	for _, htlc := range view.incomingHTLCs {
		sig, err := sign(&htlc, true)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			sigs = append(sigs, sig)
		}
	}

	return sigs, nil
}

// genSecondStageTx builds the unsigned HTLC-success or HTLC-timeout
// transaction spending a single HTLC output on a commitment transaction, and
// returns its serialized bytes along with the amount the signature must
// commit to (the HTLC amount less the second-tier transaction's own fee).
func genSecondStageTx(helper chainhelpers.Helper, isIncoming, ourCommit bool,
	commitTxid [32]byte, outputIndex uint32, cltvExpiry uint32,
	htlcAmt, feePerKw btcutil.Amount, keyRing *commitmentKeyRing) ([]byte, btcutil.Amount, error) {

	// A party broadcasts an HTLC-success transaction for HTLCs it can
	// claim with the preimage (incoming on its own commitment, or
	// outgoing on the remote commitment since the remote received it),
	// and an HTLC-timeout transaction otherwise.
	isSuccess := isIncoming == ourCommit

	var fee, lockTime btcutil.Amount
	if isSuccess {
		fee = htlcSuccessFee(feePerKw)
	} else {
		fee = htlcTimeoutFee(feePerKw)
		lockTime = btcutil.Amount(cltvExpiry)
	}

	outScript, err := helper.CommitScriptToSelf(0, keyRing.delayKey,
		keyRing.revocationKey)
	if err != nil {
		return nil, 0, err
	}

	in := chainhelpers.TxIn{
		PreviousOutPoint: chainhelpers.OutPoint{Hash: commitTxid, Index: outputIndex},
	}
	out := chainhelpers.TxOut{
		Value:    int64(htlcAmt - fee),
		PkScript: outScript.PkScript,
	}

	txBytes, err := helper.BuildTx([]chainhelpers.TxIn{in},
		[]chainhelpers.TxOut{out}, uint32(lockTime))
	if err != nil {
		return nil, 0, err
	}

	return txBytes, htlcAmt - fee, nil
}

// SignNextCommitment signs a new commitment state for the remote party,
// extending the remote commitment chain by folding in every local change
// (pending or already committed) and every remote change already ACKed.
func (e *Engine) SignNextCommitment() ([]byte, [][]byte, error) {
	if e.remoteCommitChain.hasUnackedCommitment() || e.remoteNextRevocation == nil {
		return nil, nil, ErrNoWindow
	}

	remoteACKedIndex := e.localCommitChain.tail().theirMessageIndex
	remoteHtlcIndex := e.localCommitChain.tail().theirHtlcIndex

	if err := e.validateCommitmentSanity(remoteACKedIndex,
		e.localUpdateLog.logIndex, false, true, true); err != nil {
		return nil, nil, err
	}

	keyRing, err := deriveCommitmentKeys(e.helper, e.remoteNextRevocation,
		false, e.localChanCfg, e.remoteChanCfg)
	if err != nil {
		return nil, nil, err
	}

	newCommitView, err := e.fetchCommitmentView(true,
		e.localUpdateLog.logIndex, e.localUpdateLog.htlcCounter,
		remoteACKedIndex, remoteHtlcIndex, keyRing)
	if err != nil {
		return nil, nil, err
	}

	htlcSigs, err := e.htlcSigs(newCommitView, keyRing, false)
	if err != nil {
		return nil, nil, err
	}

	commitSig, err := e.helper.SignFundingInput(newCommitView.txn,
		int64(e.capacity), e.fundingWitnessScript, e.keys.FundingKey)
	if err != nil {
		return nil, nil, err
	}

	newCommitView.sig = commitSig
	e.remoteCommitChain.addCommitment(newCommitView)

	if e.isInitiator {
		e.pendingAckFeeUpdate = e.pendingFeeUpdate
		e.pendingFeeUpdate = nil
	}

	return commitSig, htlcSigs, nil
}

// ReceiveNewCommitment validates a commitment_signed message from the remote
// party and, if it checks out, extends the local commitment chain.
func (e *Engine) ReceiveNewCommitment(commitSig []byte, htlcSigs [][]byte) error {
	localACKedIndex := e.remoteCommitChain.tail().ourMessageIndex
	localHtlcIndex := e.remoteCommitChain.tail().ourHtlcIndex

	if err := e.validateCommitmentSanity(e.remoteUpdateLog.logIndex,
		localACKedIndex, false, true, true); err != nil {
		return err
	}

	nextHeight := e.currentHeight + 1
	commitSecret, err := e.revocationProducer.AtIndex(nextHeight)
	if err != nil {
		return err
	}
	commitPoint := ComputeCommitmentPoint(commitSecret[:])

	keyRing, err := deriveCommitmentKeys(e.helper, commitPoint, true,
		e.localChanCfg, e.remoteChanCfg)
	if err != nil {
		return err
	}

	localCommitmentView, err := e.fetchCommitmentView(false,
		localACKedIndex, localHtlcIndex, e.remoteUpdateLog.logIndex,
		e.remoteUpdateLog.htlcCounter, keyRing)
	if err != nil {
		return err
	}

	sigHash, err := e.helper.SigHashAll(localCommitmentView.txn,
		int64(e.capacity), e.fundingWitnessScript)
	if err != nil {
		return err
	}
	if len(commitSig) == 0 {
		return fmt.Errorf("empty commitment signature")
	}
	if !e.helper.VerifySignature(sigHash, commitSig[:len(commitSig)-1],
		e.remoteChanCfg.MultiSigKey) {
		return fmt.Errorf("invalid commitment signature")
	}

	wantSigs, err := e.htlcSigs(localCommitmentView, keyRing, true)
	if err != nil {
		return err
	}
	if len(wantSigs) != len(htlcSigs) {
		return fmt.Errorf("expected %d htlc signatures, got %d",
			len(wantSigs), len(htlcSigs))
	}

	localCommitmentView.sig = commitSig
	e.localCommitChain.addCommitment(localCommitmentView)

	if !e.isInitiator {
		e.pendingAckFeeUpdate = e.pendingFeeUpdate
		e.pendingFeeUpdate = nil
	}

	return nil
}

// generateRevocation reveals the per-commitment secret at the given height,
// along with the commitment point the remote party should use two states
// ahead -- the revocation window always stays one commitment wide.
func (e *Engine) generateRevocation(height uint64) (*lnwire.RevokeAndAck, error) {
	revocationMsg := &lnwire.RevokeAndAck{}

	commitSecret, err := e.revocationProducer.AtIndex(height)
	if err != nil {
		return nil, err
	}
	copy(revocationMsg.Revocation[:], commitSecret[:])

	nextCommitSecret, err := e.revocationProducer.AtIndex(height + 2)
	if err != nil {
		return nil, err
	}
	revocationMsg.NextPerCommitPoint = ComputeCommitmentPoint(nextCommitSecret[:])

	return revocationMsg, nil
}

// RevokeCurrentCommitment revokes the lowest unrevoked commitment in our
// local chain, advancing it to become our new current state.
func (e *Engine) RevokeCurrentCommitment() (*lnwire.RevokeAndAck, error) {
	revocationMsg, err := e.generateRevocation(e.currentHeight)
	if err != nil {
		return nil, err
	}

	e.localCommitChain.advanceTail()
	e.currentHeight++

	return revocationMsg, nil
}

// ReceiveRevocation processes a revocation the remote party sent for the
// lowest unrevoked commitment in their chain, advancing it and returning
// every HTLC that is now fully locked-in on both chains and can be
// forwarded upstream.
func (e *Engine) ReceiveRevocation(revMsg *lnwire.RevokeAndAck) ([]*PaymentDescriptor, error) {
	if err := e.revocationStore.Insert(derkey.Secret(revMsg.Revocation),
		e.remoteCommitChain.tail().height); err != nil {
		return nil, err
	}

	derivedCommitPoint := ComputeCommitmentPoint(revMsg.Revocation[:])
	if e.remoteCurrentRevocation != nil &&
		!derivedCommitPoint.IsEqual(e.remoteCurrentRevocation) {
		return nil, fmt.Errorf("revocation key mismatch")
	}

	e.remoteCurrentRevocation = e.remoteNextRevocation
	e.remoteNextRevocation = revMsg.NextPerCommitPoint

	e.remoteCommitChain.advanceTail()

	remoteChainTail := e.remoteCommitChain.tail().height
	localChainTail := e.localCommitChain.tail().height

	var htlcsToForward []*PaymentDescriptor
	for el := e.remoteUpdateLog.Front(); el != nil; el = el.Next() {
		htlc := el.Value.(*PaymentDescriptor)

		uncommitted := htlc.addCommitHeightRemote == 0 || htlc.addCommitHeightLocal == 0
		if htlc.EntryType == Add && uncommitted {
			continue
		}

		if htlc.EntryType == Add &&
			remoteChainTail == htlc.addCommitHeightRemote &&
			localChainTail >= htlc.addCommitHeightLocal {
			htlcsToForward = append(htlcsToForward, htlc)
			continue
		}

		if htlc.EntryType != Add &&
			remoteChainTail >= htlc.removeCommitHeightRemote &&
			localChainTail >= htlc.removeCommitHeightLocal {
			htlcsToForward = append(htlcsToForward, htlc)
		}
	}

	compactLogs(e.localUpdateLog, e.remoteUpdateLog, localChainTail, remoteChainTail)

	return htlcsToForward, nil
}

// AddHTLC records a new outgoing HTLC in the local update log, rejecting it
// if the local balance cannot cover its amount plus the commitment fee it
// would add.
func (e *Engine) AddHTLC(htlc *lnwire.UpdateAddHTLC) (uint64, error) {
	if htlc.Amount == 0 {
		return 0, fmt.Errorf("htlc amount must be positive")
	}
	if htlc.Amount < e.remoteChanCfg.MinHTLC {
		return 0, fmt.Errorf("htlc amount %v below remote's htlc_minimum_msat %v",
			htlc.Amount, e.remoteChanCfg.MinHTLC)
	}

	if err := e.validateCommitmentSanity(e.remoteUpdateLog.logIndex,
		e.localUpdateLog.logIndex, true, true, false); err != nil {
		return 0, err
	}

	availableBalance, _ := e.availableBalance()
	required := htlc.Amount

	feePerKw := e.localCommitChain.tip().feePerKw
	dustLimit := e.localChanCfg.DustLimit
	isDust := htlcIsDust(false, true, feePerKw, htlc.Amount.ToSatoshis(), dustLimit)

	if !isDust && e.isInitiator {
		htlcFee := lnwire.NewMSatFromSatoshis(
			btcutil.Amount((int64(feePerKw) * HTLCWeight) / 1000))
		required += htlcFee
	}

	if required > availableBalance {
		return 0, ErrInsufficientBalance
	}

	pd := &PaymentDescriptor{
		EntryType: Add,
		RHash:     PaymentHash(htlc.PaymentHash),
		Timeout:   htlc.Expiry,
		Amount:    htlc.Amount,
		LogIndex:  e.localUpdateLog.logIndex,
		HtlcIndex: e.localUpdateLog.htlcCounter,
		OnionBlob: htlc.OnionBlob[:],
	}
	e.localUpdateLog.appendHtlc(pd)

	return pd.HtlcIndex, nil
}

// ReceiveHTLC records a new incoming HTLC in the remote update log.
func (e *Engine) ReceiveHTLC(htlc *lnwire.UpdateAddHTLC) (uint64, error) {
	if htlc.ID != e.remoteUpdateLog.htlcCounter {
		return 0, fmt.Errorf("id %d on htlc add does not match expected "+
			"next id %d", htlc.ID, e.remoteUpdateLog.htlcCounter)
	}

	if htlc.Amount == 0 {
		return 0, fmt.Errorf("htlc amount must be positive")
	}
	if htlc.Amount < e.localChanCfg.MinHTLC {
		return 0, fmt.Errorf("htlc amount %v below our htlc_minimum_msat %v",
			htlc.Amount, e.localChanCfg.MinHTLC)
	}

	if err := e.validateCommitmentSanity(e.remoteUpdateLog.logIndex,
		e.localUpdateLog.logIndex, true, false, true); err != nil {
		return 0, err
	}

	pd := &PaymentDescriptor{
		EntryType: Add,
		RHash:     PaymentHash(htlc.PaymentHash),
		Timeout:   htlc.Expiry,
		Amount:    htlc.Amount,
		LogIndex:  e.remoteUpdateLog.logIndex,
		HtlcIndex: e.remoteUpdateLog.htlcCounter,
		OnionBlob: htlc.OnionBlob[:],
	}
	e.remoteUpdateLog.appendHtlc(pd)

	return pd.HtlcIndex, nil
}

// SettleHTLC settles a received HTLC with its preimage, queuing the
// resolution in the local update log.
func (e *Engine) SettleHTLC(preimage [32]byte, htlcIndex uint64) error {
	htlc := e.remoteUpdateLog.lookupHtlc(htlcIndex)
	if htlc == nil {
		return fmt.Errorf("no htlc with id %d", htlcIndex)
	}
	if htlc.RHash != PaymentHash(sha256.Sum256(preimage[:])) {
		return fmt.Errorf("invalid payment preimage for hash %x", htlc.RHash[:])
	}

	e.localUpdateLog.appendUpdate(&PaymentDescriptor{
		Amount:      htlc.Amount,
		RPreimage:   preimage,
		LogIndex:    e.localUpdateLog.logIndex,
		ParentIndex: htlcIndex,
		EntryType:   Settle,
	})

	return nil
}

// ReceiveHTLCSettle records the remote party's settlement of one of our
// outgoing HTLCs.
func (e *Engine) ReceiveHTLCSettle(preimage [32]byte, htlcIndex uint64) error {
	htlc := e.localUpdateLog.lookupHtlc(htlcIndex)
	if htlc == nil {
		return fmt.Errorf("no htlc with id %d", htlcIndex)
	}
	if htlc.RHash != PaymentHash(sha256.Sum256(preimage[:])) {
		return fmt.Errorf("invalid payment preimage for hash %x", htlc.RHash[:])
	}

	e.remoteUpdateLog.appendUpdate(&PaymentDescriptor{
		Amount:      htlc.Amount,
		RPreimage:   preimage,
		ParentIndex: htlc.HtlcIndex,
		RHash:       htlc.RHash,
		LogIndex:    e.remoteUpdateLog.logIndex,
		EntryType:   Settle,
	})

	return nil
}

// FailHTLC fails a received HTLC by its index, queuing the resolution in
// the local update log.
func (e *Engine) FailHTLC(htlcIndex uint64, reason []byte) error {
	htlc := e.remoteUpdateLog.lookupHtlc(htlcIndex)
	if htlc == nil {
		return fmt.Errorf("no htlc with id %d", htlcIndex)
	}

	e.localUpdateLog.appendUpdate(&PaymentDescriptor{
		Amount:      htlc.Amount,
		RHash:       htlc.RHash,
		ParentIndex: htlcIndex,
		LogIndex:    e.localUpdateLog.logIndex,
		EntryType:   Fail,
		FailReason:  reason,
	})

	return nil
}

// MalformedFailHTLC fails a received HTLC whose onion itself was malformed.
func (e *Engine) MalformedFailHTLC(htlcIndex uint64, failCode uint16,
	shaOnionBlob [sha256.Size]byte) error {

	htlc := e.remoteUpdateLog.lookupHtlc(htlcIndex)
	if htlc == nil {
		return fmt.Errorf("no htlc with id %d", htlcIndex)
	}

	e.localUpdateLog.appendUpdate(&PaymentDescriptor{
		Amount:       htlc.Amount,
		RHash:        htlc.RHash,
		ParentIndex:  htlcIndex,
		LogIndex:     e.localUpdateLog.logIndex,
		EntryType:    MalformedFail,
		FailCode:     failCode,
		ShaOnionBlob: shaOnionBlob,
	})

	return nil
}

// ReceiveFailHTLC records the remote party's failure of one of our outgoing
// HTLCs.
func (e *Engine) ReceiveFailHTLC(htlcIndex uint64, reason []byte) error {
	htlc := e.localUpdateLog.lookupHtlc(htlcIndex)
	if htlc == nil {
		return fmt.Errorf("no htlc with id %d", htlcIndex)
	}

	e.remoteUpdateLog.appendUpdate(&PaymentDescriptor{
		Amount:      htlc.Amount,
		RHash:       htlc.RHash,
		ParentIndex: htlc.HtlcIndex,
		LogIndex:    e.remoteUpdateLog.logIndex,
		EntryType:   Fail,
		FailReason:  reason,
	})

	return nil
}
