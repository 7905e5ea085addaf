package channel

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/lnwallet"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// CreateShutdown begins a mutual close: sends shutdown carrying this
// side's delivery script, installed earlier via SetShutdownVoutPubKey or
// SetShutdownVoutAddr. Valid only once the channel has no HTLCs in flight.
func (c *Channel) CreateShutdown() bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("create_shutdown in state %v", c.state))
	}
	if c.localShutdownScript == nil {
		return c.fail(fmt.Errorf("no shutdown delivery script installed"))
	}
	if len(c.pendingAdds) != 0 {
		return c.fail(fmt.Errorf("create_shutdown with %d htlcs in flight",
			len(c.pendingAdds)))
	}

	msg := &lnwire.Shutdown{ChanID: c.chanID, ScriptPubKey: c.localShutdownScript}
	if !c.sendWire(msg) {
		return false
	}

	c.sentShutdown = true
	if c.recvdShutdown {
		return c.beginNegotiation()
	}
	c.setState(StateShutdownSent)
	return true
}

// handleShutdown processes a received shutdown. If this side hasn't sent
// its own yet, it replies with one immediately -- BOLT2 allows either
// order, but there's no policy reason here to delay it.
func (c *Channel) handleShutdown(msg *lnwire.Shutdown) bool {
	if c.state != StateNormal && c.state != StateShutdownSent {
		return c.fail(fmt.Errorf("shutdown in state %v", c.state))
	}

	c.remoteShutdownScript = msg.ScriptPubKey
	c.recvdShutdown = true

	if !c.sentShutdown {
		c.setState(StateShutdownRecvd)
		if c.localShutdownScript == nil {
			return c.fail(fmt.Errorf("no shutdown delivery script installed"))
		}
		reply := &lnwire.Shutdown{ChanID: c.chanID, ScriptPubKey: c.localShutdownScript}
		if !c.sendWire(reply) {
			return false
		}
		c.sentShutdown = true
	}

	return c.beginNegotiation()
}

// beginNegotiation starts closing_signed fee negotiation once both
// shutdown messages have been exchanged. Only the initiator proposes the
// first fee, since it's the one paying it.
func (c *Channel) beginNegotiation() bool {
	c.setState(StateNegotiating)

	if !c.isInitiator {
		return true
	}

	return c.proposeClosingFee(lnwallet.InitialCommitFee(c.feePerKw))
}

// proposeClosingFee builds the cooperative close transaction at the given
// fee, signs it, and sends closing_signed.
func (c *Channel) proposeClosingFee(fee btcutil.Amount) bool {
	ourBalance, theirBalance := c.closingBalances(fee)

	closeTx, err := lnwallet.CreateCooperativeCloseTx(c.helper, c.fundingTxIn,
		c.localChanCfg.DustLimit, c.remoteChanCfg.DustLimit,
		ourBalance, theirBalance, c.localShutdownScript, c.remoteShutdownScript)
	if err != nil {
		return c.fail(fmt.Errorf("building cooperative close tx: %w", err))
	}

	rawSig, err := c.helper.SignFundingInput(closeTx, int64(c.capacity),
		c.fundingWitnessScript, c.fundingPriv)
	if err != nil {
		return c.fail(fmt.Errorf("signing cooperative close tx: %w", err))
	}
	sig, err := wireSig(rawSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}

	c.lastSentClosingFee = fee
	msg := &lnwire.ClosingSigned{
		ChanID:      c.chanID,
		FeeSatoshis: uint64(fee),
		Signature:   sig,
	}
	if !c.sendWire(msg) {
		return false
	}

	// Echoing back the fee we just received is itself agreement -- the
	// remote party has no further reason to send another closing_signed,
	// so this side must not wait for one.
	if c.hasRecvClosingFee && fee == c.lastRecvClosingFee {
		c.setState(StateClosed)
		c.h.Closed()
	}
	return true
}

// closingBalances returns each side's settled balance after paying fee,
// charged to whichever side is the channel initiator.
func (c *Channel) closingBalances(fee btcutil.Amount) (ourBalance, theirBalance btcutil.Amount) {
	ourMsat, theirMsat := c.engine.Balances()
	ourBalance, theirBalance = ourMsat.ToSatoshis(), theirMsat.ToSatoshis()

	if c.isInitiator {
		ourBalance -= fee
	} else {
		theirBalance -= fee
	}
	return ourBalance, theirBalance
}

// handleClosingSigned processes a received closing_signed: verifies the
// remote party's signature over the close transaction at their proposed
// fee, and either converges (the two proposals match) or counters halfway
// between the two.
func (c *Channel) handleClosingSigned(msg *lnwire.ClosingSigned) bool {
	if c.state != StateNegotiating {
		return c.fail(fmt.Errorf("closing_signed in state %v", c.state))
	}

	fee := btcutil.Amount(msg.FeeSatoshis)
	ourBalance, theirBalance := c.closingBalances(fee)

	closeTx, err := lnwallet.CreateCooperativeCloseTx(c.helper, c.fundingTxIn,
		c.localChanCfg.DustLimit, c.remoteChanCfg.DustLimit,
		ourBalance, theirBalance, c.localShutdownScript, c.remoteShutdownScript)
	if err != nil {
		return c.fail(fmt.Errorf("building cooperative close tx: %w", err))
	}

	sigHash, err := c.helper.SigHashAll(closeTx, int64(c.capacity), c.fundingWitnessScript)
	if err != nil {
		return c.fail(fmt.Errorf("computing sighash: %w", err))
	}
	rawSig, err := helperSig(msg.Signature)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}
	if !c.helper.VerifySignature(sigHash, rawSig[:len(rawSig)-1], c.remoteChanCfg.MultiSigKey) {
		return c.fail(fmt.Errorf("invalid closing_signed signature"))
	}

	c.lastRecvClosingFee = fee
	c.hasRecvClosingFee = true

	if fee == c.lastSentClosingFee {
		c.setState(StateClosed)
		c.h.Closed()
		return true
	}

	if !c.isInitiator {
		return c.proposeClosingFee(fee)
	}

	converged := (c.lastSentClosingFee + fee) / 2
	return c.proposeClosingFee(converged)
}
