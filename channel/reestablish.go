package channel

import (
	"fmt"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// CreateChannelReestablish builds and sends this side's channel_reestablish
// after a reconnect. Valid any time the commitment engine exists, from
// funding_signed onward -- a disconnect can happen at
// any point past funding_signed, and BOLT2 requires resynchronizing before
// anything else is exchanged.
func (c *Channel) CreateChannelReestablish() bool {
	if c.engine == nil {
		return c.fail(fmt.Errorf("create_channel_reestablish before funding_signed"))
	}

	st, err := c.engine.ReestablishState()
	if err != nil {
		return c.fail(fmt.Errorf("computing reestablish state: %w", err))
	}

	msg := &lnwire.ChannelReestablish{
		ChanID:              c.chanID,
		NextLocalCommitNum:  st.NextLocalCommitNum,
		NextRemoteRevokeNum: st.NextRevokeNum,
		LocalUnrevokedPoint: st.UnrevokedPoint,
	}
	if st.HasLastRevokedSecret {
		msg.LastRemoteCommitSecret = [32]byte(st.LastRevokedSecret)
	}

	return c.sendWire(msg)
}

// handleChannelReestablish processes the remote party's channel_reestablish,
// verifying its claimed last-revealed secret for data loss and retransmitting
// whichever of this side's last commitment_signed/revoke_and_ack the remote
// party reports it is still missing.
func (c *Channel) handleChannelReestablish(msg *lnwire.ChannelReestablish) bool {
	if c.engine == nil {
		return c.fail(fmt.Errorf("channel_reestablish before funding_signed"))
	}

	if msg.NextRemoteRevokeNum > 0 {
		claimedHeight := msg.NextRemoteRevokeNum - 1
		if err := c.engine.VerifyLastRevokedSecret(claimedHeight,
			msg.LastRemoteCommitSecret); err != nil {

			return c.fail(fmt.Errorf("verifying channel_reestablish: %w", err))
		}
	}

	if c.engine.OweCommitment(msg.NextLocalCommitNum) {
		if c.lastSentCommitSig == nil {
			return c.fail(fmt.Errorf("owe remote party a commitment_signed " +
				"with none cached to resend"))
		}
		if !c.sendWire(c.lastSentCommitSig) {
			return false
		}
	}

	if c.engine.OweRevocation(msg.NextRemoteRevokeNum) {
		if c.lastSentRevoke == nil {
			return c.fail(fmt.Errorf("owe remote party a revoke_and_ack " +
				"with none cached to resend"))
		}
		if !c.sendWire(c.lastSentRevoke) {
			return false
		}
	}

	return true
}
