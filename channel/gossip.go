package channel

import (
	"fmt"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// CreateAnnounceSignatures sends this side's announcement_signatures once
// the channel has a short_channel_id and the host has computed the node
// and Bitcoin signatures over the channel_announcement body -- assembling
// that body and signing it needs this party's node identity key, which
// lives with the host, not the channel.
func (c *Channel) CreateAnnounceSignatures(nodeSig, bitcoinSig lnwire.Sig) bool {
	if !c.hasShortChanID {
		return c.fail(fmt.Errorf("create_announce_signs before short_channel_id is known"))
	}

	msg := &lnwire.AnnounceSignatures{
		ChanID:         c.chanID,
		ShortChannelID: c.shortChanID,
		NodeSignature:  nodeSig,
		BitcoinSig:     bitcoinSig,
	}
	c.localAnnSigs = msg

	return c.sendWire(msg)
}

// handleAnnounceSignatures records the remote party's announcement_signatures
// and reports it to the host, which holds the channel_announcement body and
// assembles the fully-signed announcement once both sides' signatures are
// in hand.
func (c *Channel) handleAnnounceSignatures(msg *lnwire.AnnounceSignatures) bool {
	if !c.hasShortChanID {
		return c.fail(fmt.Errorf("announcement_signatures before short_channel_id is known"))
	}
	if msg.ChanID != c.chanID {
		return c.fail(fmt.Errorf("announcement_signatures chan_id mismatch"))
	}

	c.remoteAnnSigs = msg
	c.h.AnnoSignsRecv(msg)
	return true
}

// handleNodeAnnouncement forwards a received node_announcement to the
// host, which owns the gossip graph and applies it there.
func (c *Channel) handleNodeAnnouncement(msg *lnwire.NodeAnnouncement) bool {
	c.h.NodeAnnoRecv(msg)
	return true
}
