package channel

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// CreateAddHTLC offers a new outgoing HTLC, assigning it the next id the
// engine expects and sending update_add_htlc.
func (c *Channel) CreateAddHTLC(amount lnwire.MilliSatoshi, paymentHash [32]byte,
	expiry uint32, onionBlob [1366]byte) (uint64, bool) {

	if c.state != StateNormal {
		return 0, c.fail(fmt.Errorf("create_add_htlc in state %v", c.state))
	}

	msg := &lnwire.UpdateAddHTLC{
		ChanID:      c.chanID,
		ID:          c.engine.NextHTLCID(),
		Amount:      amount,
		PaymentHash: paymentHash,
		Expiry:      expiry,
		OnionBlob:   onionBlob,
	}

	htlcIndex, err := c.engine.AddHTLC(msg)
	if err != nil {
		return 0, c.fail(fmt.Errorf("adding htlc: %w", err))
	}

	if !c.sendWire(msg) {
		return 0, false
	}

	c.pendingAdds[htlcIndex] = msg
	return htlcIndex, true
}

// handleUpdateAddHTLC processes an incoming HTLC offer. The message is
// reported via AddHTLCRecvPrev before the HTLC is committed to the remote
// update log, and via AddHTLCRecv after. The installed onion router is not
// called here, so the onion is left for the host to process; a channel
// with no router installed treats update_add_htlc as a protocol violation.
func (c *Channel) handleUpdateAddHTLC(msg *lnwire.UpdateAddHTLC) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("update_add_htlc in state %v", c.state))
	}
	if c.onionRouter == nil {
		return c.fail(fmt.Errorf("update_add_htlc received with no onion router installed"))
	}

	c.h.AddHTLCRecvPrev(msg)

	htlcIndex, err := c.engine.ReceiveHTLC(msg)
	if err != nil {
		return c.fail(fmt.Errorf("receiving htlc: %w", err))
	}

	c.pendingAdds[htlcIndex] = msg
	c.h.AddHTLCRecv(msg)
	return true
}

// CreateFulfillHTLC settles a received HTLC with its preimage and sends
// update_fulfill_htlc.
func (c *Channel) CreateFulfillHTLC(htlcIndex uint64, preimage [32]byte) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("create_fulfill_htlc in state %v", c.state))
	}

	if err := c.engine.SettleHTLC(preimage, htlcIndex); err != nil {
		return c.fail(fmt.Errorf("settling htlc: %w", err))
	}

	htlc, ok := c.pendingAdds[htlcIndex]
	if !ok {
		return c.fail(fmt.Errorf("no pending htlc with index %d", htlcIndex))
	}
	delete(c.pendingAdds, htlcIndex)

	msg := lnwire.NewUpdateFufillHTLC(c.chanID, htlc.ID, preimage)
	return c.sendWire(msg)
}

// handleUpdateFulfillHTLC processes an incoming settlement of one of this
// side's outgoing HTLCs.
func (c *Channel) handleUpdateFulfillHTLC(msg *lnwire.UpdateFufillHTLC) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("update_fulfill_htlc in state %v", c.state))
	}

	if err := c.engine.ReceiveHTLCSettle(msg.PaymentPreimage, msg.ID); err != nil {
		return c.fail(fmt.Errorf("receiving htlc settlement: %w", err))
	}

	delete(c.pendingAdds, msg.ID)
	c.h.FulfillHTLCRecv(msg)
	return true
}

// CreateFailHTLC fails a received HTLC by its index and sends
// update_fail_htlc.
func (c *Channel) CreateFailHTLC(htlcIndex uint64, reason []byte) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("create_fail_htlc in state %v", c.state))
	}

	if err := c.engine.FailHTLC(htlcIndex, reason); err != nil {
		return c.fail(fmt.Errorf("failing htlc: %w", err))
	}

	htlc, ok := c.pendingAdds[htlcIndex]
	if !ok {
		return c.fail(fmt.Errorf("no pending htlc with index %d", htlcIndex))
	}
	delete(c.pendingAdds, htlcIndex)

	msg := &lnwire.UpdateFailHTLC{ChanID: c.chanID, ID: htlc.ID, Reason: reason}
	return c.sendWire(msg)
}

// handleUpdateFailHTLC processes an incoming failure of one of this side's
// outgoing HTLCs.
func (c *Channel) handleUpdateFailHTLC(msg *lnwire.UpdateFailHTLC) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("update_fail_htlc in state %v", c.state))
	}

	if err := c.engine.ReceiveFailHTLC(msg.ID, msg.Reason); err != nil {
		return c.fail(fmt.Errorf("receiving htlc failure: %w", err))
	}

	delete(c.pendingAdds, msg.ID)
	return true
}

// CreateFailMalformedHTLC fails a received HTLC whose onion itself could
// not be decoded, and sends update_fail_malformed_htlc.
func (c *Channel) CreateFailMalformedHTLC(htlcIndex uint64, failCode uint16,
	shaOnionBlob [32]byte) bool {

	if c.state != StateNormal {
		return c.fail(fmt.Errorf("create_fail_malformed_htlc in state %v", c.state))
	}

	if err := c.engine.MalformedFailHTLC(htlcIndex, failCode, shaOnionBlob); err != nil {
		return c.fail(fmt.Errorf("failing malformed htlc: %w", err))
	}

	htlc, ok := c.pendingAdds[htlcIndex]
	if !ok {
		return c.fail(fmt.Errorf("no pending htlc with index %d", htlcIndex))
	}
	delete(c.pendingAdds, htlcIndex)

	msg := &lnwire.UpdateFailMalformedHTLC{
		ChanID:       c.chanID,
		ID:           htlc.ID,
		ShaOnionBlob: shaOnionBlob,
		FailureCode:  failCode,
	}
	return c.sendWire(msg)
}

// handleUpdateFailMalformedHTLC processes an incoming malformed-onion
// failure of one of this side's outgoing HTLCs. The engine has no separate
// malformed-failure path on the receiving side -- there's nothing for this
// side to decrypt either, since the remote party couldn't parse the onion
// at all -- so it's folded into the ordinary failure path with an empty
// reason.
func (c *Channel) handleUpdateFailMalformedHTLC(msg *lnwire.UpdateFailMalformedHTLC) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("update_fail_malformed_htlc in state %v", c.state))
	}

	if err := c.engine.ReceiveFailHTLC(msg.ID, nil); err != nil {
		return c.fail(fmt.Errorf("receiving malformed htlc failure: %w", err))
	}

	delete(c.pendingAdds, msg.ID)
	return true
}

// CreateUpdateFee proposes a new feerate for the channel. Must only be
// called by the initiator.
func (c *Channel) CreateUpdateFee(feePerKw uint32) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("create_update_fee in state %v", c.state))
	}

	if err := c.engine.UpdateFee(btcutil.Amount(feePerKw)); err != nil {
		return c.fail(fmt.Errorf("updating fee: %w", err))
	}

	msg := &lnwire.UpdateFee{ChanID: c.chanID, FeePerKW: feePerKw}
	return c.sendWire(msg)
}

// handleUpdateFee processes a fee update sent by the initiator. Must only
// be received by the non-initiator.
func (c *Channel) handleUpdateFee(msg *lnwire.UpdateFee) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("update_fee in state %v", c.state))
	}

	if err := c.engine.ReceiveUpdateFee(btcutil.Amount(msg.FeePerKW)); err != nil {
		return c.fail(fmt.Errorf("receiving fee update: %w", err))
	}
	return true
}

// CreateCommitSig signs every change queued since the last commitment and
// sends commitment_signed.
func (c *Channel) CreateCommitSig() bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("create_commit_signed in state %v", c.state))
	}

	rawSig, rawHtlcSigs, err := c.engine.SignNextCommitment()
	if err != nil {
		return c.fail(fmt.Errorf("signing next commitment: %w", err))
	}

	sig, err := wireSig(rawSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}

	htlcSigs := make([]lnwire.Sig, len(rawHtlcSigs))
	for i, raw := range rawHtlcSigs {
		htlcSigs[i], err = wireSig(raw)
		if err != nil {
			return c.fail(fmt.Errorf("converting htlc signature: %w", err))
		}
	}

	msg := &lnwire.CommitSig{ChanID: c.chanID, CommitSig: sig, HTLCSigs: htlcSigs}
	c.lastSentCommitSig = msg
	return c.sendWire(msg)
}

// handleCommitSig verifies and applies a received commitment_signed,
// immediately replying with revoke_and_ack -- there's no reason for a
// channel to withhold a valid revocation once it has one to give.
func (c *Channel) handleCommitSig(msg *lnwire.CommitSig) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("commit_signed in state %v", c.state))
	}

	rawSig, err := helperSig(msg.CommitSig)
	if err != nil {
		return c.fail(fmt.Errorf("converting signature: %w", err))
	}
	rawHtlcSigs := make([][]byte, len(msg.HTLCSigs))
	for i, s := range msg.HTLCSigs {
		rawHtlcSigs[i], err = helperSig(s)
		if err != nil {
			return c.fail(fmt.Errorf("converting htlc signature: %w", err))
		}
	}

	if err := c.engine.ReceiveNewCommitment(rawSig, rawHtlcSigs); err != nil {
		return c.fail(fmt.Errorf("receiving commitment: %w", err))
	}
	c.h.CommitSigRecv(msg)

	revocation, err := c.engine.RevokeCurrentCommitment()
	if err != nil {
		return c.fail(fmt.Errorf("revoking commitment: %w", err))
	}
	revocation.ChanID = c.chanID
	c.lastSentRevoke = revocation

	return c.sendWire(revocation)
}

// handleRevokeAndAck processes a received revocation, unlocking every HTLC
// that is now fully committed on both chains.
func (c *Channel) handleRevokeAndAck(msg *lnwire.RevokeAndAck) bool {
	if c.state != StateNormal {
		return c.fail(fmt.Errorf("revoke_and_ack in state %v", c.state))
	}

	if _, err := c.engine.ReceiveRevocation(msg); err != nil {
		return c.fail(fmt.Errorf("receiving revocation: %w", err))
	}

	c.h.HTLCChanged()
	return true
}
