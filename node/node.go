// Package node holds the process-wide node record and the bounded, in-memory
// peer node and channel-announcement tables the gossip layer maintains.
// Unlike the teacher's channeldb-backed graph, nothing here is persisted:
// persistence of channel and gossip state is out of scope, per spec.
package node

import (
	"net"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// LightningNode is a peer node record, populated either minimally (just a
// public key, learned from a channel_announcement) or fully (once a
// node_announcement for that key arrives).
type LightningNode struct {
	PubKey *btcec.PublicKey

	HaveNodeAnnouncement bool
	LastUpdate           time.Time
	Addresses            []net.Addr
	Color                lnwire.RGB
	Alias                string
	AuthSig              lnwire.Sig
	Features             lnwire.FeatureVector
}

// Self is the process-wide node record: our own identity, feature set, and
// the bounded tables of everything we've learned about the rest of the
// network through gossip.
type Self struct {
	PubKey   *btcec.PublicKey
	Alias    string
	Color    lnwire.RGB
	Features lnwire.FeatureVector

	Graph *Graph
}

// NewSelf returns a process-wide node record backed by a graph with the
// given table capacities.
func NewSelf(pubKey *btcec.PublicKey, alias string, color lnwire.RGB,
	features lnwire.FeatureVector, maxNodes, maxChannels int) *Self {

	return &Self{
		PubKey:   pubKey,
		Alias:    alias,
		Color:    color,
		Features: features,
		Graph:    NewGraph(maxNodes, maxChannels),
	}
}
