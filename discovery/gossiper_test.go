package discovery

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/lnwire"
	"github.com/lightningnetwork/lnchannel/node"
)

func genKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func signData(t *testing.T, priv *btcec.PrivateKey, data []byte) lnwire.Sig {
	t.Helper()
	dataHash := chainhash.DoubleHashB(data)
	sig := ecdsa.Sign(priv, dataHash)
	wire, err := lnwire.NewSigFromSignature(sig)
	require.NoError(t, err)
	return wire
}

// orderedKeys returns a, b reordered so that a's serialized compressed
// pubkey sorts lexicographically before b's, matching the NodeKey1/NodeKey2
// convention.
func orderedKeys(a, b *btcec.PrivateKey) (*btcec.PrivateKey, *btcec.PrivateKey) {
	if keysSortedConsistently(a.PubKey(), b.PubKey()) {
		return a, b
	}
	return b, a
}

func buildChannelAnn(t *testing.T, node1, node2, bitcoin1, bitcoin2 *btcec.PrivateKey) *lnwire.ChannelAnnouncement {
	t.Helper()

	a := &lnwire.ChannelAnnouncement{
		Features:       lnwire.FeatureVector{},
		ShortChannelID: lnwire.NewShortChanIDFromInt(1234),
		NodeID1:        node1.PubKey(),
		NodeID2:        node2.PubKey(),
		BitcoinKey1:    bitcoin1.PubKey(),
		BitcoinKey2:    bitcoin2.PubKey(),
	}

	data, err := a.DataToSign()
	require.NoError(t, err)

	a.NodeSig1 = signData(t, node1, data)
	a.NodeSig2 = signData(t, node2, data)
	a.BitcoinSig1 = signData(t, bitcoin1, data)
	a.BitcoinSig2 = signData(t, bitcoin2, data)

	return a
}

func TestProcessChannelAnnouncementAcceptsValid(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)

	ann := buildChannelAnn(t, node1, node2, bitcoin1, bitcoin2)

	g := New(node.NewGraph(10, 10))
	require.NoError(t, g.ProcessChannelAnnouncement(ann))

	require.True(t, g.graph.HasChannelEdge(ann.ShortChannelID.ToUint64()))
	require.True(t, g.graph.HasLightningNode(node1.PubKey()))
	require.True(t, g.graph.HasLightningNode(node2.PubKey()))
}

func TestProcessChannelAnnouncementRejectsBadSig(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)

	ann := buildChannelAnn(t, node1, node2, bitcoin1, bitcoin2)
	ann.NodeSig2 = signData(t, genKey(t), []byte("wrong data"))

	g := New(node.NewGraph(10, 10))
	require.Error(t, g.ProcessChannelAnnouncement(ann))
}

func TestProcessChannelAnnouncementRejectsInconsistentKeyOrder(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)

	// Swap the order so NodeID1/NodeID2 no longer sort consistently.
	ann := buildChannelAnn(t, node2, node1, bitcoin1, bitcoin2)

	g := New(node.NewGraph(10, 10))
	err := g.ProcessChannelAnnouncement(ann)
	require.ErrorContains(t, err, "not sorted consistently")
}

func TestProcessChannelAnnouncementRejectsDuplicate(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)
	ann := buildChannelAnn(t, node1, node2, bitcoin1, bitcoin2)

	g := New(node.NewGraph(10, 10))
	require.NoError(t, g.ProcessChannelAnnouncement(ann))
	require.Error(t, g.ProcessChannelAnnouncement(ann))
}

func TestProcessNodeAnnouncementAcceptsValid(t *testing.T) {
	priv := genKey(t)
	alias, err := lnwire.NewAlias("bob")
	require.NoError(t, err)

	a := &lnwire.NodeAnnouncement{
		Features:  lnwire.FeatureVector{},
		Timestamp: 100,
		NodeID:    priv.PubKey(),
		Alias:     alias,
	}
	data, err := a.DataToSign()
	require.NoError(t, err)
	a.Signature = signData(t, priv, data)

	g := New(node.NewGraph(10, 10))
	require.NoError(t, g.ProcessNodeAnnouncement(a))

	got, err := g.graph.FetchLightningNode(priv.PubKey())
	require.NoError(t, err)
	require.Equal(t, "bob", got.Alias)
}

func TestProcessNodeAnnouncementRejectsStaleTimestamp(t *testing.T) {
	priv := genKey(t)
	alias, err := lnwire.NewAlias("bob")
	require.NoError(t, err)

	newer := &lnwire.NodeAnnouncement{Timestamp: 200, NodeID: priv.PubKey(), Alias: alias}
	data, err := newer.DataToSign()
	require.NoError(t, err)
	newer.Signature = signData(t, priv, data)

	g := New(node.NewGraph(10, 10))
	require.NoError(t, g.ProcessNodeAnnouncement(newer))

	older := &lnwire.NodeAnnouncement{Timestamp: 50, NodeID: priv.PubKey(), Alias: alias}
	data, err = older.DataToSign()
	require.NoError(t, err)
	older.Signature = signData(t, priv, data)

	require.Error(t, g.ProcessNodeAnnouncement(older))
}

func TestProcessChannelUpdateAppliesToCorrectDirection(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)
	ann := buildChannelAnn(t, node1, node2, bitcoin1, bitcoin2)

	g := New(node.NewGraph(10, 10))
	require.NoError(t, g.ProcessChannelAnnouncement(ann))

	update := &lnwire.ChannelUpdate{
		ShortChannelID: ann.ShortChannelID,
		Timestamp:      1,
		Flags:          lnwire.ChanUpdateDirection,
		FeeBaseMSat:    5,
	}
	data, err := update.DataToSign()
	require.NoError(t, err)
	update.Signature = signData(t, node2, data)

	require.NoError(t, g.ProcessChannelUpdate(update))

	_, _, pol2, err := g.graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64())
	require.NoError(t, err)
	require.NotNil(t, pol2)
	require.Equal(t, lnwire.MilliSatoshi(5), pol2.FeeBaseMSat)
}

func TestProcessChannelUpdateRejectsWrongSigner(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)
	ann := buildChannelAnn(t, node1, node2, bitcoin1, bitcoin2)

	g := New(node.NewGraph(10, 10))
	require.NoError(t, g.ProcessChannelAnnouncement(ann))

	update := &lnwire.ChannelUpdate{ShortChannelID: ann.ShortChannelID, Timestamp: 1}
	data, err := update.DataToSign()
	require.NoError(t, err)
	update.Signature = signData(t, genKey(t), data)

	require.Error(t, g.ProcessChannelUpdate(update))
}

func TestAssembleChannelAnnouncementFromBothSigs(t *testing.T) {
	node1, node2 := orderedKeys(genKey(t), genKey(t))
	bitcoin1, bitcoin2 := genKey(t), genKey(t)

	body := lnwire.ChannelAnnouncement{
		Features:       lnwire.FeatureVector{},
		ShortChannelID: lnwire.NewShortChanIDFromInt(77),
		NodeID1:        node1.PubKey(),
		NodeID2:        node2.PubKey(),
		BitcoinKey1:    bitcoin1.PubKey(),
		BitcoinKey2:    bitcoin2.PubKey(),
	}
	data, err := body.DataToSign()
	require.NoError(t, err)

	localSigs := &lnwire.AnnounceSignatures{
		NodeSignature: signData(t, node1, data),
		BitcoinSig:    signData(t, bitcoin1, data),
	}
	remoteSigs := &lnwire.AnnounceSignatures{
		NodeSignature: signData(t, node2, data),
		BitcoinSig:    signData(t, bitcoin2, data),
	}

	full, err := AssembleChannelAnnouncement(body, localSigs, remoteSigs, true)
	require.NoError(t, err)
	require.NoError(t, validateChannelAnn(full))
}
