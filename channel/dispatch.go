package channel

import (
	"bytes"
	"fmt"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// Recv decodes a single wire message and dispatches it to the handler for
// its type, reporting a fatal error through host.Error (via fail) rather
// than returning one -- the boolean return is the only outcome signal the
// error-handling design exposes to the host. raw is the plaintext wire
// message; any brontide framing is expected to already have been removed
// by whatever fed these bytes in (typically the host, decrypting through
// the same Machine installed via SetTransport).
func (c *Channel) Recv(raw []byte) bool {
	msg, err := lnwire.ReadMessage(bytes.NewReader(raw), 0)
	if err != nil {
		return c.fail(fmt.Errorf("decoding message: %w", err))
	}

	switch m := msg.(type) {
	case *lnwire.Init:
		return c.handleInit(m)
	case *lnwire.Error:
		return c.handleError(m)
	case *lnwire.Ping:
		return c.handlePing(m)
	case *lnwire.Pong:
		return c.handlePong(m)
	case *lnwire.OpenChannel:
		return c.handleOpenChannel(m)
	case *lnwire.AcceptChannel:
		return c.handleAcceptChannel(m)
	case *lnwire.FundingCreated:
		return c.handleFundingCreated(m)
	case *lnwire.FundingSigned:
		return c.handleFundingSigned(m)
	case *lnwire.FundingLocked:
		return c.handleFundingLocked(m)
	case *lnwire.Shutdown:
		return c.handleShutdown(m)
	case *lnwire.ClosingSigned:
		return c.handleClosingSigned(m)
	case *lnwire.UpdateAddHTLC:
		return c.handleUpdateAddHTLC(m)
	case *lnwire.UpdateFufillHTLC:
		return c.handleUpdateFulfillHTLC(m)
	case *lnwire.UpdateFailHTLC:
		return c.handleUpdateFailHTLC(m)
	case *lnwire.UpdateFailMalformedHTLC:
		return c.handleUpdateFailMalformedHTLC(m)
	case *lnwire.UpdateFee:
		return c.handleUpdateFee(m)
	case *lnwire.CommitSig:
		return c.handleCommitSig(m)
	case *lnwire.RevokeAndAck:
		return c.handleRevokeAndAck(m)
	case *lnwire.ChannelReestablish:
		return c.handleChannelReestablish(m)
	case *lnwire.NodeAnnouncement:
		return c.handleNodeAnnouncement(m)
	case *lnwire.AnnounceSignatures:
		return c.handleAnnounceSignatures(m)
	default:
		return c.fail(fmt.Errorf("unhandled message type %T", msg))
	}
}

// sendWire encodes msg, frames it through the installed brontide Machine
// if one has been set, and hands the result to the host's SendReq. Hosts
// that prefer to own framing themselves can leave SetTransport unset and
// frame the plaintext bytes their SendReq implementation receives.
func (c *Channel) sendWire(msg lnwire.Message) bool {
	var buf bytes.Buffer
	if _, err := lnwire.WriteMessage(&buf, msg, 0); err != nil {
		return c.fail(fmt.Errorf("encoding %T: %w", msg, err))
	}

	payload := buf.Bytes()
	if c.noise != nil {
		framed, err := c.noise.WriteMessage(payload)
		if err != nil {
			return c.fail(fmt.Errorf("framing %T: %w", msg, err))
		}
		payload = framed
	}

	c.h.SendReq(payload)
	return true
}

// handleError processes a received error message: channel-specific errors
// force-close this channel; an all-zero chan_id applies to every channel
// the sender holds open with us, which a single Channel cannot act on
// itself and simply treats as fatal.
func (c *Channel) handleError(msg *lnwire.Error) bool {
	return c.fail(fmt.Errorf("received error: %s", msg.Data))
}
