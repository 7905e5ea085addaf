package channel

import (
	"fmt"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/lnwallet"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// FundingInfo is the funding transaction outpoint the host must supply
// before CreateOpenChannel on the initiator side. The responder instead
// learns the outpoint from the funding_created message itself, so it never
// needs to call this.
type FundingInfo struct {
	TxID  [32]byte
	Index uint32
}

// SetFundingInfo installs the funding transaction's outpoint ahead of
// CreateOpenChannel -- a proactive push, not a response to any entry in the
// host callback enum, since the host is expected to already know which
// UTXO it's funding the channel with before the open_channel handshake
// even starts.
func (c *Channel) SetFundingInfo(info FundingInfo) {
	c.fundingTxIn = chainhelpers.TxIn{
		PreviousOutPoint: chainhelpers.OutPoint{Hash: info.TxID, Index: info.Index},
	}
	c.fundingInfoSet = true
}

// initialLockTimeSequence returns the obscured nLockTime/nSequence pair for
// the channel's very first (height 0) commitment transactions, and a copy
// of the funding input tagged with that sequence number.
func (c *Channel) initialLockTimeSequence() (fundingIn chainhelpers.TxIn, lockTime uint32) {
	opener, acceptor := c.obscuringBasepoints()
	var sequence uint32
	lockTime, sequence = lnwallet.ObscuredCommitmentLockTime(opener, acceptor, 0)

	fundingIn = c.fundingTxIn
	fundingIn.Sequence = sequence
	return fundingIn, lockTime
}

// createFundingCreated builds both parties' initial commitment
// transactions, signs the remote party's with this side's funding key, and
// sends funding_created. Only ever called on the initiator side, once
// accept_channel has been processed.
func (c *Channel) createFundingCreated() bool {
	if c.fundingPriv == nil {
		c.h.FundingWIFReq()
	}
	if c.fundingPriv == nil {
		return c.fail(fmt.Errorf("host did not supply the funding private key"))
	}

	ourBalance, theirBalance := c.initialBalances()
	fundingIn, lockTime := c.initialLockTimeSequence()

	remoteCommitTx, err := lnwallet.NewInitialCommitTx(c.helper, fundingIn, false,
		c.localChanCfg, c.remoteChanCfg, c.remoteFirstPoint,
		uint32(c.remoteChanCfg.CsvDelay), theirBalance, ourBalance,
		c.remoteChanCfg.DustLimit, lockTime)
	if err != nil {
		return c.fail(fmt.Errorf("building remote initial commitment: %w", err))
	}

	rawSig, err := c.helper.SignFundingInput(remoteCommitTx, int64(c.capacity),
		c.fundingWitnessScript, c.fundingPriv)
	if err != nil {
		return c.fail(fmt.Errorf("signing remote initial commitment: %w", err))
	}
	sig, err := wireSig(rawSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}

	localCommitTx, err := lnwallet.NewInitialCommitTx(c.helper, fundingIn, true,
		c.localChanCfg, c.remoteChanCfg, c.localFirstPoint,
		uint32(c.localChanCfg.CsvDelay), ourBalance, theirBalance,
		c.localChanCfg.DustLimit, lockTime)
	if err != nil {
		return c.fail(fmt.Errorf("building local initial commitment: %w", err))
	}
	c.localInitialCommitTx = localCommitTx

	txid := c.fundingTxIn.PreviousOutPoint.Hash
	index := uint16(c.fundingTxIn.PreviousOutPoint.Index)

	msg := &lnwire.FundingCreated{
		TempChanID:  c.tempChanID,
		FundingTxID: txid,
		FundingIdx:  index,
		CommitSig:   sig,
	}

	c.chanID = deriveChanID(txid, index)
	c.setState(StateFundingCreated)

	return c.sendWire(msg)
}

// handleFundingCreated processes a received funding_created as the
// responder: it learns the funding outpoint for the first time, verifies
// the initiator's signature over this side's own initial commitment,
// constructs its own engine, and replies with funding_signed.
func (c *Channel) handleFundingCreated(msg *lnwire.FundingCreated) bool {
	if c.isInitiator {
		return c.fail(fmt.Errorf("initiator received funding_created"))
	}
	if c.state != StateAccepted {
		return c.fail(fmt.Errorf("funding_created in state %v", c.state))
	}
	if msg.TempChanID != c.tempChanID {
		return c.fail(fmt.Errorf("funding_created temp_chan_id mismatch"))
	}
	if c.fundingPriv == nil {
		c.h.FundingWIFReq()
	}
	if c.fundingPriv == nil {
		return c.fail(fmt.Errorf("host did not supply the funding private key"))
	}

	c.fundingTxIn = chainhelpers.TxIn{
		PreviousOutPoint: chainhelpers.OutPoint{
			Hash:  msg.FundingTxID,
			Index: uint32(msg.FundingIdx),
		},
	}
	c.fundingInfoSet = true

	ourBalance, theirBalance := c.initialBalances()
	fundingIn, lockTime := c.initialLockTimeSequence()

	localCommitTx, err := lnwallet.NewInitialCommitTx(c.helper, fundingIn, true,
		c.localChanCfg, c.remoteChanCfg, c.localFirstPoint,
		uint32(c.localChanCfg.CsvDelay), ourBalance, theirBalance,
		c.localChanCfg.DustLimit, lockTime)
	if err != nil {
		return c.fail(fmt.Errorf("building local initial commitment: %w", err))
	}

	sigHash, err := c.helper.SigHashAll(localCommitTx, int64(c.capacity),
		c.fundingWitnessScript)
	if err != nil {
		return c.fail(fmt.Errorf("computing sighash: %w", err))
	}
	rawSig, err := helperSig(msg.CommitSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}
	if !c.helper.VerifySignature(sigHash, rawSig[:len(rawSig)-1], c.remoteChanCfg.MultiSigKey) {
		return c.fail(fmt.Errorf("invalid funding_created signature"))
	}

	remoteCommitTx, err := lnwallet.NewInitialCommitTx(c.helper, fundingIn, false,
		c.localChanCfg, c.remoteChanCfg, c.remoteFirstPoint,
		uint32(c.remoteChanCfg.CsvDelay), theirBalance, ourBalance,
		c.remoteChanCfg.DustLimit, lockTime)
	if err != nil {
		return c.fail(fmt.Errorf("building remote initial commitment: %w", err))
	}

	ourRawSig, err := c.helper.SignFundingInput(remoteCommitTx, int64(c.capacity),
		c.fundingWitnessScript, c.fundingPriv)
	if err != nil {
		return c.fail(fmt.Errorf("signing remote initial commitment: %w", err))
	}
	ourSig, err := wireSig(ourRawSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}

	if err := c.buildEngine(localCommitTx); err != nil {
		return c.fail(err)
	}

	c.chanID = deriveChanID(msg.FundingTxID, msg.FundingIdx)
	c.setState(StateFundingSigned)

	reply := &lnwire.FundingSigned{ChanID: c.chanID, CommitSig: ourSig}
	return c.sendWire(reply)
}

// handleFundingSigned processes a received funding_signed as the
// initiator: it verifies the responder's signature over the initiator's
// own initial commitment (cached from createFundingCreated), constructs
// the engine, and waits for the funding transaction to confirm.
func (c *Channel) handleFundingSigned(msg *lnwire.FundingSigned) bool {
	if !c.isInitiator {
		return c.fail(fmt.Errorf("responder received funding_signed"))
	}
	if c.state != StateFundingCreated {
		return c.fail(fmt.Errorf("funding_signed in state %v", c.state))
	}
	if msg.ChanID != c.chanID {
		return c.fail(fmt.Errorf("funding_signed chan_id mismatch"))
	}

	sigHash, err := c.helper.SigHashAll(c.localInitialCommitTx, int64(c.capacity),
		c.fundingWitnessScript)
	if err != nil {
		return c.fail(fmt.Errorf("computing sighash: %w", err))
	}
	rawSig, err := helperSig(msg.CommitSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}
	if !c.helper.VerifySignature(sigHash, rawSig[:len(rawSig)-1], c.remoteChanCfg.MultiSigKey) {
		return c.fail(fmt.Errorf("invalid funding_signed signature"))
	}

	if err := c.buildEngine(c.localInitialCommitTx); err != nil {
		return c.fail(err)
	}
	c.localInitialCommitTx = nil

	c.setState(StateFundingSigned)
	c.setState(StateAwaitConfirm)
	c.h.FundingTxWait()
	return true
}

// buildEngine constructs the commitment engine once both initial
// commitment signatures have checked out, on whichever side is
// constructing it. The remote party's next per-commitment point isn't
// known yet -- it arrives with funding_locked -- so the engine starts out
// unable to propose a new commitment until ReceiveFundingLocked is called.
func (c *Channel) buildEngine(localCommitTx []byte) error {
	fee := lnwallet.InitialCommitFee(c.feePerKw)
	opener, acceptor := c.obscuringBasepoints()

	engine, err := lnwallet.NewEngine(c.helper, c.keys, c.isInitiator, c.capacity,
		c.fundingTxIn, c.fundingPkScript, c.fundingWitnessScript,
		c.localChanCfg, c.remoteChanCfg, opener, acceptor, c.revocationSeed,
		c.remoteFirstPoint, nil, localCommitTx, fee, c.feePerKw)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	c.engine = engine
	return nil
}

// FundingTxStabled is called by the host once the funding transaction has
// reached the confirmation depth this side requires, unblocking the
// transition to funding_locked. blockHeight/txIndex locate the funding
// transaction for the short_channel_id. The remote party's funding_locked
// may already have arrived first -- handleFundingLocked allows that -- in
// which case this side is already sitting in StateLockedOne rather than
// StateAwaitConfirm.
func (c *Channel) FundingTxStabled(blockHeight, txIndex uint32) bool {
	if c.state != StateAwaitConfirm && c.state != StateLockedOne {
		return c.fail(fmt.Errorf("funding_tx_stabled in state %v", c.state))
	}
	if c.sentFundingLocked {
		return c.fail(fmt.Errorf("funding_tx_stabled called twice"))
	}

	c.shortChanID = c.shortChannelID(blockHeight, txIndex)
	c.hasShortChanID = true

	producer := derkey.NewProducer(c.revocationSeed)
	nextSecret, err := producer.AtIndex(1)
	if err != nil {
		return c.fail(fmt.Errorf("deriving next commitment secret: %w", err))
	}
	nextPoint := lnwallet.ComputeCommitmentPoint(nextSecret[:])

	msg := lnwire.NewFundingLocked(c.chanID, nextPoint)
	if c.state == StateAwaitConfirm {
		c.setState(StateLockedOne)
	}
	c.sentFundingLocked = true

	if !c.sendWire(msg) {
		return false
	}

	return c.maybeChannelReady()
}

// handleFundingLocked processes a received funding_locked, which may
// arrive before this side has even finished confirming the funding
// transaction itself -- BOLT2 allows either order.
func (c *Channel) handleFundingLocked(msg *lnwire.FundingLocked) bool {
	if c.state != StateAwaitConfirm && c.state != StateLockedOne {
		return c.fail(fmt.Errorf("funding_locked in state %v", c.state))
	}
	if msg.ChannelID != c.chanID {
		return c.fail(fmt.Errorf("funding_locked chan_id mismatch"))
	}

	if c.state == StateAwaitConfirm {
		c.setState(StateLockedOne)
	}
	c.recvdFundingLocked = true
	c.engine.ReceiveFundingLocked(msg.NextPerCommitmentPoint)

	return c.maybeChannelReady()
}

// maybeChannelReady transitions to NORMAL and notifies the host once both
// sides' funding_locked messages have been seen, regardless of the order
// they arrived in.
func (c *Channel) maybeChannelReady() bool {
	if c.sentFundingLocked && c.recvdFundingLocked {
		c.setState(StateNormal)
		c.h.Established()
	}
	return true
}
