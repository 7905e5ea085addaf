package node

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

func randPubKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestAddAndFetchLightningNode(t *testing.T) {
	g := NewGraph(10, 10)
	pub := randPubKey(t)

	n := &LightningNode{PubKey: pub, Alias: "alice", LastUpdate: time.Now()}
	require.NoError(t, g.AddLightningNode(n))

	got, err := g.FetchLightningNode(pub)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Alias)

	require.True(t, g.HasLightningNode(pub))
}

func TestFetchLightningNodeNotFound(t *testing.T) {
	g := NewGraph(10, 10)
	_, err := g.FetchLightningNode(randPubKey(t))
	require.ErrorIs(t, err, ErrGraphNodeNotFound)
}

func TestNodeTableEvictsOldestOnceFull(t *testing.T) {
	g := NewGraph(2, 10)

	old := &LightningNode{PubKey: randPubKey(t), LastUpdate: time.Unix(1, 0)}
	mid := &LightningNode{PubKey: randPubKey(t), LastUpdate: time.Unix(2, 0)}
	new := &LightningNode{PubKey: randPubKey(t), LastUpdate: time.Unix(3, 0)}

	require.NoError(t, g.AddLightningNode(old))
	require.NoError(t, g.AddLightningNode(mid))
	require.NoError(t, g.AddLightningNode(new))

	require.False(t, g.HasLightningNode(old.PubKey))
	require.True(t, g.HasLightningNode(mid.PubKey))
	require.True(t, g.HasLightningNode(new.PubKey))
}

func TestAddChannelEdgeAndFetchByID(t *testing.T) {
	g := NewGraph(10, 10)

	edge := &ChannelEdgeInfo{
		ChannelID:   1,
		NodeKey1:    randPubKey(t),
		NodeKey2:    randPubKey(t),
		BitcoinKey1: randPubKey(t),
		BitcoinKey2: randPubKey(t),
	}
	require.NoError(t, g.AddChannelEdge(edge))
	require.True(t, g.HasChannelEdge(1))

	got, pol1, pol2, err := g.FetchChannelEdgesByID(1)
	require.NoError(t, err)
	require.Equal(t, edge, got)
	require.Nil(t, pol1)
	require.Nil(t, pol2)
}

func TestUpdateEdgePolicyPicksDirectionByFlag(t *testing.T) {
	g := NewGraph(10, 10)

	edge := &ChannelEdgeInfo{ChannelID: 42}
	require.NoError(t, g.AddChannelEdge(edge))

	fwd := &ChannelEdgePolicy{ChannelID: 42, Flags: 0, FeeBaseMSat: 1000}
	require.NoError(t, g.UpdateEdgePolicy(fwd))

	back := &ChannelEdgePolicy{
		ChannelID:   42,
		Flags:       lnwire.ChanUpdateDirection,
		FeeBaseMSat: 2000,
	}
	require.NoError(t, g.UpdateEdgePolicy(back))

	_, pol1, pol2, err := g.FetchChannelEdgesByID(42)
	require.NoError(t, err)
	require.Equal(t, lnwire.MilliSatoshi(1000), pol1.FeeBaseMSat)
	require.Equal(t, lnwire.MilliSatoshi(2000), pol2.FeeBaseMSat)
}

func TestUpdateEdgePolicyRejectsUnknownChannel(t *testing.T) {
	g := NewGraph(10, 10)
	err := g.UpdateEdgePolicy(&ChannelEdgePolicy{ChannelID: 99})
	require.ErrorIs(t, err, ErrEdgeNotFound)
}

func TestChannelTableEvictsLeastRecentlyUpdated(t *testing.T) {
	g := NewGraph(10, 2)

	require.NoError(t, g.AddChannelEdge(&ChannelEdgeInfo{ChannelID: 1}))
	require.NoError(t, g.UpdateEdgePolicy(&ChannelEdgePolicy{
		ChannelID: 1, LastUpdate: time.Unix(1, 0),
	}))

	require.NoError(t, g.AddChannelEdge(&ChannelEdgeInfo{ChannelID: 2}))
	require.NoError(t, g.UpdateEdgePolicy(&ChannelEdgePolicy{
		ChannelID: 2, LastUpdate: time.Unix(2, 0),
	}))

	require.NoError(t, g.AddChannelEdge(&ChannelEdgeInfo{ChannelID: 3}))

	require.False(t, g.HasChannelEdge(1))
	require.True(t, g.HasChannelEdge(2))
	require.True(t, g.HasChannelEdge(3))
}
