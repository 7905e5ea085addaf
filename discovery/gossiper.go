package discovery

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"

	"github.com/lightningnetwork/lnchannel/lnwire"
	"github.com/lightningnetwork/lnchannel/node"
)

// Gossiper validates incoming gossip announcements and applies them to a
// node graph. It holds no network state of its own -- every inbound message
// is processed synchronously and immediately reflected (or rejected) against
// the graph it was constructed with.
type Gossiper struct {
	graph *node.Graph
}

// New returns a gossiper that applies validated announcements to graph.
func New(graph *node.Graph) *Gossiper {
	return &Gossiper{graph: graph}
}

// ProcessChannelAnnouncement verifies a channel_announcement's four
// signatures and the key-ordering invariant, then records the channel in
// the graph. Node records for either endpoint that aren't already known are
// created as bare (HaveNodeAnnouncement == false) entries.
func (g *Gossiper) ProcessChannelAnnouncement(a *lnwire.ChannelAnnouncement) error {
	if !keysSortedConsistently(a.NodeID1, a.NodeID2) {
		return errors.New("discovery: channel announcement node keys " +
			"are not sorted consistently")
	}

	if err := validateChannelAnn(a); err != nil {
		return err
	}

	chanID := a.ShortChannelID.ToUint64()
	if g.graph.HasChannelEdge(chanID) {
		return errors.Errorf("discovery: channel %d already known", chanID)
	}

	log.Debugf("applying channel_announcement for %v", a.ShortChannelID)

	edge := &node.ChannelEdgeInfo{
		ChannelID:   chanID,
		ChainHash:   chainhash.Hash(a.ChainHash),
		NodeKey1:    a.NodeID1,
		NodeKey2:    a.NodeID2,
		BitcoinKey1: a.BitcoinKey1,
		BitcoinKey2: a.BitcoinKey2,
		Features:    []byte(a.Features),
		AuthProof: &node.ChannelAuthProof{
			NodeSig1:    a.NodeSig1,
			NodeSig2:    a.NodeSig2,
			BitcoinSig1: a.BitcoinSig1,
			BitcoinSig2: a.BitcoinSig2,
		},
		Capacity: btcutil.Amount(0),
	}

	if err := g.graph.AddChannelEdge(edge); err != nil {
		return err
	}

	for _, pub := range []*btcec.PublicKey{a.NodeID1, a.NodeID2} {
		if g.graph.HasLightningNode(pub) {
			continue
		}
		if err := g.graph.AddLightningNode(&node.LightningNode{
			PubKey: pub,
		}); err != nil {
			return err
		}
	}

	return nil
}

// ProcessNodeAnnouncement verifies a node_announcement's signature and
// records (or updates, if the new timestamp is newer) the advertising
// node's record.
func (g *Gossiper) ProcessNodeAnnouncement(a *lnwire.NodeAnnouncement) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := validateNodeAnn(a); err != nil {
		return err
	}

	if existing, err := g.graph.FetchLightningNode(a.NodeID); err == nil &&
		existing.HaveNodeAnnouncement &&
		existing.LastUpdate.Unix() >= int64(a.Timestamp) {

		return errors.Errorf("discovery: stale node announcement for %x",
			a.NodeID.SerializeCompressed())
	}

	n := &node.LightningNode{
		PubKey:               a.NodeID,
		HaveNodeAnnouncement: true,
		LastUpdate:           time.Unix(int64(a.Timestamp), 0),
		Alias:                a.Alias.String(),
		Color:                a.RGBColor,
		Addresses:            a.Addresses,
		Features:             a.Features,
		AuthSig:              a.Signature,
	}

	return g.graph.AddLightningNode(n)
}

// ProcessChannelUpdate verifies a channel_update's signature against
// whichever of the channel's two node keys the update's direction flag
// names, then records the forwarding policy.
func (g *Gossiper) ProcessChannelUpdate(a *lnwire.ChannelUpdate) error {
	chanID := a.ShortChannelID.ToUint64()

	edge, _, _, err := g.graph.FetchChannelEdgesByID(chanID)
	if err != nil {
		return err
	}

	signer := edge.NodeKey1
	if a.Flags&lnwire.ChanUpdateDirection != 0 {
		signer = edge.NodeKey2
	}

	if err := validateChannelUpdateAnn(signer, a); err != nil {
		return err
	}

	return g.graph.UpdateEdgePolicy(&node.ChannelEdgePolicy{
		Signature:                 a.Signature,
		ChannelID:                 chanID,
		LastUpdate:                time.Unix(int64(a.Timestamp), 0),
		Flags:                     a.Flags,
		TimeLockDelta:             a.TimeLockDelta,
		MinHTLC:                   a.HTLCMinimumMsat,
		FeeBaseMSat:               lnwire.MilliSatoshi(a.BaseFee),
		FeeProportionalMillionths: lnwire.MilliSatoshi(a.FeeRate),
	})
}

// AssembleChannelAnnouncement builds a fully-signed channel_announcement
// once both peers have exchanged announcement_signatures, per BOLT7: each
// side contributes its own node and Bitcoin signatures over the same
// announcement body.
func AssembleChannelAnnouncement(body lnwire.ChannelAnnouncement,
	localSigs, remoteSigs *lnwire.AnnounceSignatures, localIsNode1 bool) (*lnwire.ChannelAnnouncement, error) {

	if localIsNode1 {
		body.NodeSig1 = localSigs.NodeSignature
		body.BitcoinSig1 = localSigs.BitcoinSig
		body.NodeSig2 = remoteSigs.NodeSignature
		body.BitcoinSig2 = remoteSigs.BitcoinSig
	} else {
		body.NodeSig2 = localSigs.NodeSignature
		body.BitcoinSig2 = localSigs.BitcoinSig
		body.NodeSig1 = remoteSigs.NodeSignature
		body.BitcoinSig1 = remoteSigs.BitcoinSig
	}

	if err := validateChannelAnn(&body); err != nil {
		return nil, errors.Errorf("discovery: assembled announcement "+
			"failed verification: %v", err)
	}

	return &body, nil
}
