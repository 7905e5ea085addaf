package channel

// State enumerates the lifecycle of a single channel, from the moment its
// transport is constructed through cooperative or unilateral close.
type State int

const (
	// StateNone is the initial state before any init message has been
	// exchanged.
	StateNone State = iota

	// StateInitExchanged marks that both sides' init messages have been
	// sent and received.
	StateInitExchanged

	// StateOpened marks that this side has sent (initiator) or received
	// (responder) open_channel.
	StateOpened

	// StateAccepted marks that accept_channel has been sent or received.
	StateAccepted

	// StateFundingCreated marks that funding_created has been sent or
	// received: the funding outpoint and the responder's initial
	// commitment signature are fixed.
	StateFundingCreated

	// StateFundingSigned marks that funding_signed has been sent or
	// received: both initial commitments are now fully signed and the
	// permanent channel id is assigned.
	StateFundingSigned

	// StateAwaitConfirm marks that the channel is waiting on the host
	// to report the funding transaction has reached sufficient depth.
	StateAwaitConfirm

	// StateLockedOne marks that one side's funding_locked has been seen
	// (sent or received, but not both).
	StateLockedOne

	// StateNormal is steady-state channel operation: HTLCs may be
	// added, settled, failed, and the commitment chains updated.
	StateNormal

	// StateShutdownSent marks that this side has sent shutdown and is
	// waiting for the remote party's shutdown in reply.
	StateShutdownSent

	// StateShutdownRecvd marks that the remote party's shutdown has
	// been received and this side has not yet replied.
	StateShutdownRecvd

	// StateNegotiating marks that both shutdown messages have been
	// exchanged and closing_signed fee negotiation is underway.
	StateNegotiating

	// StateClosed is terminal: the channel is no longer usable, whether
	// by mutual close, unilateral close, or fatal protocol error.
	StateClosed
)

// String renders the state the way the house loggers expect, for use in
// log lines like "channel %v: %v -> %v".
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateInitExchanged:
		return "INIT_EXCHANGED"
	case StateOpened:
		return "OPENED"
	case StateAccepted:
		return "ACCEPTED"
	case StateFundingCreated:
		return "FUNDING_CREATED"
	case StateFundingSigned:
		return "FUNDING_SIGNED"
	case StateAwaitConfirm:
		return "AWAIT_CONFIRM"
	case StateLockedOne:
		return "LOCKED_ONE"
	case StateNormal:
		return "NORMAL"
	case StateShutdownSent:
		return "SHUTDOWN_SENT"
	case StateShutdownRecvd:
		return "SHUTDOWN_RECVD"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// setState transitions the channel to s, logging the edge the way the
// teacher's peer.go logs its own less formal state changes.
func (c *Channel) setState(s State) {
	log.Debugf("channel %v: %v -> %v", c.chanID, c.state, s)
	c.state = s
}

// fail transitions the channel to CLOSED and reports err via the ERROR
// callback -- the only way out of any state other than a clean close.
func (c *Channel) fail(err error) bool {
	log.Errorf("channel %v: fatal error: %v", c.chanID, err)
	c.setState(StateClosed)
	c.h.Error(err)
	return false
}
