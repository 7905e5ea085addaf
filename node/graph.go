package node

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// ChannelAuthProof is the four signatures over a channel_announcement's
// signed data (features, chain hash, short channel ID, the two node keys and
// the two bitcoin keys), carried by a validated channel_announcement.
type ChannelAuthProof struct {
	NodeSig1    lnwire.Sig
	NodeSig2    lnwire.Sig
	BitcoinSig1 lnwire.Sig
	BitcoinSig2 lnwire.Sig
}

// ChannelEdgeInfo is the channel-existence half of a gossiped channel: the
// four identity keys and the on-chain outpoint, independent of either
// direction's forwarding policy.
type ChannelEdgeInfo struct {
	ChannelID uint64
	ChainHash chainhash.Hash

	NodeKey1 *btcec.PublicKey
	NodeKey2 *btcec.PublicKey

	BitcoinKey1 *btcec.PublicKey
	BitcoinKey2 *btcec.PublicKey

	Features []byte

	AuthProof *ChannelAuthProof

	ChannelPoint [36]byte
	Capacity     btcutil.Amount
}

// ChannelEdgePolicy is one direction's forwarding policy for a channel, as
// announced by a channel_update.
type ChannelEdgePolicy struct {
	Signature lnwire.Sig
	ChannelID uint64

	LastUpdate time.Time
	Flags      lnwire.ChanUpdateFlag

	TimeLockDelta             uint16
	MinHTLC                   lnwire.MilliSatoshi
	FeeBaseMSat               lnwire.MilliSatoshi
	FeeProportionalMillionths lnwire.MilliSatoshi
}

// Graph is a bounded, in-memory replay of the teacher's bolt-backed channel
// graph: a node table and a channel-edge table, each capped at a fixed size.
// Once a table is full, the oldest entry by LastUpdate is evicted to make
// room for the new one -- there is no persistence and no pruning by on-chain
// spend, since chain-watching is out of scope here.
type Graph struct {
	maxNodes    int
	maxChannels int

	nodes map[string]*LightningNode

	edges    map[uint64]*ChannelEdgeInfo
	policies map[uint64][2]*ChannelEdgePolicy
}

// NewGraph returns an empty graph bounded to the given table sizes.
func NewGraph(maxNodes, maxChannels int) *Graph {
	return &Graph{
		maxNodes:    maxNodes,
		maxChannels: maxChannels,
		nodes:       make(map[string]*LightningNode),
		edges:       make(map[uint64]*ChannelEdgeInfo),
		policies:    make(map[uint64][2]*ChannelEdgePolicy),
	}
}

func nodeKey(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// AddLightningNode inserts or replaces a node record, evicting the
// least-recently-updated node if the table is at capacity.
func (g *Graph) AddLightningNode(n *LightningNode) error {
	key := nodeKey(n.PubKey)

	if _, exists := g.nodes[key]; !exists && len(g.nodes) >= g.maxNodes {
		g.evictOldestNode()
	}

	g.nodes[key] = n
	return nil
}

func (g *Graph) evictOldestNode() {
	var oldestKey string
	var oldest time.Time

	first := true
	for k, n := range g.nodes {
		if first || n.LastUpdate.Before(oldest) {
			oldestKey = k
			oldest = n.LastUpdate
			first = false
		}
	}

	if !first {
		delete(g.nodes, oldestKey)
	}
}

// FetchLightningNode looks up a node by its identity public key.
func (g *Graph) FetchLightningNode(pub *btcec.PublicKey) (*LightningNode, error) {
	n, ok := g.nodes[nodeKey(pub)]
	if !ok {
		return nil, ErrGraphNodeNotFound
	}
	return n, nil
}

// HasLightningNode reports whether a node record for the given key exists.
func (g *Graph) HasLightningNode(pub *btcec.PublicKey) bool {
	_, ok := g.nodes[nodeKey(pub)]
	return ok
}

// ForEachNode invokes cb for every node record currently held.
func (g *Graph) ForEachNode(cb func(*LightningNode) error) error {
	for _, n := range g.nodes {
		if err := cb(n); err != nil {
			return err
		}
	}
	return nil
}

// AddChannelEdge inserts a new channel record, evicting the oldest channel
// (by either policy's LastUpdate) if the table is at capacity. Channels with
// no recorded policy are not considered; if no channel has one, an
// arbitrary channel is evicted.
func (g *Graph) AddChannelEdge(edge *ChannelEdgeInfo) error {
	if _, exists := g.edges[edge.ChannelID]; !exists && len(g.edges) >= g.maxChannels {
		g.evictOldestChannel()
	}

	g.edges[edge.ChannelID] = edge
	return nil
}

func (g *Graph) evictOldestChannel() {
	var oldestID uint64
	var oldest time.Time

	first := true
	for id, pols := range g.policies {
		for _, p := range pols {
			if p == nil {
				continue
			}
			if first || p.LastUpdate.Before(oldest) {
				oldestID = id
				oldest = p.LastUpdate
				first = false
			}
		}
	}

	if first {
		// No policy has ever been recorded for any channel; evict an
		// arbitrary one so the map insertion below can proceed.
		for id := range g.edges {
			oldestID = id
			break
		}
	}

	delete(g.edges, oldestID)
	delete(g.policies, oldestID)
}

// HasChannelEdge reports whether a channel record for the given short
// channel ID exists.
func (g *Graph) HasChannelEdge(chanID uint64) bool {
	_, ok := g.edges[chanID]
	return ok
}

// FetchChannelEdgesByID returns the channel record and both directions'
// policies (either of which may be nil if not yet announced).
func (g *Graph) FetchChannelEdgesByID(chanID uint64) (*ChannelEdgeInfo,
	*ChannelEdgePolicy, *ChannelEdgePolicy, error) {

	edge, ok := g.edges[chanID]
	if !ok {
		return nil, nil, nil, ErrEdgeNotFound
	}

	pols := g.policies[chanID]
	return edge, pols[0], pols[1], nil
}

// UpdateEdgePolicy records a direction's forwarding policy for an already
// known channel. The direction is determined by the update's flags: bit 0
// of ChanUpdateDirection selects which of the two channel endpoints the
// policy describes.
func (g *Graph) UpdateEdgePolicy(policy *ChannelEdgePolicy) error {
	if _, ok := g.edges[policy.ChannelID]; !ok {
		return ErrEdgeNotFound
	}

	pols := g.policies[policy.ChannelID]

	idx := 0
	if policy.Flags&lnwire.ChanUpdateDirection != 0 {
		idx = 1
	}
	pols[idx] = policy

	g.policies[policy.ChannelID] = pols
	return nil
}

// ForEachChannel invokes cb for every channel record currently held, along
// with both directions' policies.
func (g *Graph) ForEachChannel(cb func(*ChannelEdgeInfo, *ChannelEdgePolicy,
	*ChannelEdgePolicy) error) error {

	for id, edge := range g.edges {
		pols := g.policies[id]
		if err := cb(edge, pols[0], pols[1]); err != nil {
			return err
		}
	}
	return nil
}

// graph errors.
var (
	ErrGraphNodeNotFound = fmt.Errorf("node: node not found in graph")
	ErrEdgeNotFound      = fmt.Errorf("node: channel edge not found")
)
