// Package onionadapter wraps the lightning-onion Sphinx implementation
// behind the narrow decode/process/dispatch surface the channel package
// needs for update_add_htlc, mirroring the teacher's handleUpstreamMsg.
package onionadapter

import (
	"bytes"

	sphinx "github.com/lightningnetwork/lightning-onion"
)

// Action classifies the outcome of processing an onion packet carried in
// an update_add_htlc.
type Action int

const (
	// ActionExitNode indicates this node is the final hop for the HTLC.
	ActionExitNode Action = iota

	// ActionMoreHops indicates the HTLC must be forwarded further; out
	// of scope for this engine (forwarding policy is a non-goal), but
	// the channel package still needs to distinguish it from a parse
	// failure so it can fail the HTLC cleanly rather than settle it.
	ActionMoreHops

	// ActionParseError indicates the onion blob was malformed or could
	// not be processed (e.g. a replayed packet).
	ActionParseError
)

// Result is the outcome of Process: an Action plus, for ActionExitNode and
// ActionMoreHops, the underlying processed packet.
type Result struct {
	Action Action
	Packet *sphinx.ProcessedPacket
}

// Router decodes and processes onion packets on behalf of a channel engine.
// It wraps a *sphinx.Router, which owns the node's onion private key and
// replay-protection log.
type Router struct {
	router *sphinx.Router
}

// NewRouter wraps an already-constructed sphinx router.
func NewRouter(router *sphinx.Router) *Router {
	return &Router{router: router}
}

// Process decodes the 1366-byte onion blob carried in an update_add_htlc and
// processes it against the node's onion key, using paymentHash as the
// associated data that binds the packet to this specific HTLC and thwarts
// replay across different payment hashes.
func (r *Router) Process(onionBlob [1366]byte, paymentHash [32]byte) Result {
	pkt := &sphinx.OnionPacket{}
	if err := pkt.Decode(bytes.NewReader(onionBlob[:])); err != nil {
		return Result{Action: ActionParseError}
	}

	processed, err := r.router.ProcessOnionPacket(pkt, paymentHash[:])
	if err != nil {
		return Result{Action: ActionParseError}
	}

	switch processed.Action {
	case sphinx.ExitNode:
		return Result{Action: ActionExitNode, Packet: processed}
	case sphinx.MoreHops:
		return Result{Action: ActionMoreHops, Packet: processed}
	default:
		return Result{Action: ActionParseError}
	}
}
