package channel

import (
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// CreatePing sends a ping requesting numPongBytes worth of padding in the
// reply, counting it against the unanswered-ping budget until the matching
// pong arrives. Once MaxUnansweredPings pings are outstanding a warning is
// logged on every further ping; the channel itself stays open.
func (c *Channel) CreatePing(numPongBytes uint16) bool {
	msg := lnwire.NewPing(numPongBytes)

	if !c.sendWire(msg) {
		return false
	}

	c.numUnansweredPings++
	if c.numUnansweredPings >= MaxUnansweredPings {
		log.Warnf("channel %v: peer has not responded to %d consecutive pings",
			c.chanID, c.numUnansweredPings)
	}
	return true
}

// handlePing replies with a pong of the size requested, per BOLT1. An
// out-of-range num_pong_bytes never reaches here -- lnwire.Ping.Decode
// already rejects it during dispatch -- so the only case handled directly
// is num_pong_bytes == 0, which per spec means no pong reply is expected.
func (c *Channel) handlePing(msg *lnwire.Ping) bool {
	if msg.NumPongBytes == 0 {
		return true
	}

	return c.sendWire(lnwire.NewPong(msg.NumPongBytes))
}

// handlePong clears the unanswered-ping counter.
func (c *Channel) handlePong(msg *lnwire.Pong) bool {
	c.numUnansweredPings = 0
	return true
}
