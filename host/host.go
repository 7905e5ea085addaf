// Package host defines the callback capability a channel hands control back
// to, one method per reason a channel needs its embedder to act: supply key
// material, persist a snapshot, hand bytes to a transport, or observe a
// state change. The channel package never holds a reference to anything
// below this interface -- sockets, wallets, and databases are all the
// host's problem.
package host

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// Host is the single capability a channel state machine is driven through.
// Every method corresponds to one reason in the callback enum of spec.md
// §6; the channel package calls exactly one of these per externally
// visible transition, synchronously, before returning control to its
// caller.
type Host interface {
	// Error reports a fatal protocol violation or transport failure.
	// The channel has already transitioned to CLOSED when this is
	// called.
	Error(err error)

	// InitRecv reports a received init message, after version/feature
	// negotiation has already happened inside the channel.
	InitRecv(msg *lnwire.Init)

	// FundingWIFReq asks the host for the funding private key, this
	// engine's only entry point that expects the host to mutate engine
	// state in response: the host must call the channel's
	// SetFundingWIF before returning.
	FundingWIFReq()

	// FundingTxWait reports that the channel is waiting for the
	// funding transaction to reach sufficient confirmation depth
	// before proceeding to funding_locked.
	FundingTxWait()

	// Established reports that both funding_locked messages have been
	// exchanged and the channel has entered NORMAL operation.
	Established()

	// NodeAnnoRecv reports a validated node_announcement applied to
	// the gossip graph.
	NodeAnnoRecv(ann *lnwire.NodeAnnouncement)

	// AnnoSignsRecv reports a received announcement_signatures; once
	// both sides' signatures are available the host may assemble and
	// broadcast the channel_announcement.
	AnnoSignsRecv(ann *lnwire.AnnounceSignatures)

	// AddHTLCRecvPrev fires before AddHTLCRecv, giving the host a
	// chance to look at an incoming HTLC before the channel commits it
	// to its update log. No onion processing has been done at this
	// point.
	AddHTLCRecvPrev(htlc *lnwire.UpdateAddHTLC)

	// AddHTLCRecv reports an incoming HTLC has been added to the
	// remote update log.
	AddHTLCRecv(htlc *lnwire.UpdateAddHTLC)

	// FulfillHTLCRecv reports an incoming HTLC settlement.
	FulfillHTLCRecv(htlc *lnwire.UpdateFufillHTLC)

	// HTLCChanged reports that the set of HTLCs committed on either
	// commitment transaction has changed following a revoke_and_ack.
	HTLCChanged()

	// Closed reports the channel has reached the CLOSED state,
	// cooperatively or unilaterally.
	Closed()

	// SendReq asks the host to deliver raw bytes to the remote peer
	// over whatever transport it owns. The channel has already
	// applied the corresponding state transition before this call.
	SendReq(rawMsg []byte)

	// CommitSigRecv reports a received commitment_signed that was
	// accepted and countersigned.
	CommitSigRecv(msg *lnwire.CommitSig)
}

// KeyProvider is implemented by hosts that answer FundingWIFReq with actual
// key material rather than performing the call themselves against the
// channel's SetFundingWIF method. Kept separate from Host because not every
// embedder needs to satisfy it -- a reconnect-only harness never opens a
// channel and never receives FundingWIFReq.
type KeyProvider interface {
	FundingPrivateKey() (*btcec.PrivateKey, error)
}

// CommitmentObserver is an optional capability a host can additionally
// implement to be told about a new local commitment's height and balances,
// independent of the coarser HTLCChanged/CommitSigRecv notifications. The
// channel package does not call NewLocalCommitment.
type CommitmentObserver interface {
	NewLocalCommitment(height uint64, ourBalance, theirBalance lnwire.MilliSatoshi)
}
