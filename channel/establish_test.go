package channel

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/chainhelpers/btcdhelpers"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/lnwallet"
	"github.com/lightningnetwork/lnchannel/lnwire"
	"github.com/lightningnetwork/lnchannel/onionadapter"
)

// pendingMsg is one wire message in flight between the two parties of a
// testBus, queued rather than delivered inline.
type pendingMsg struct {
	dest *Channel
	desc string
	raw  []byte
}

// testBus queues every message a Channel hands to SendReq instead of
// delivering it synchronously. A real transport hands bytes to a socket and
// returns immediately, with the peer's Recv running later on its own stack;
// recursing straight into the peer's Recv from inside SendReq would let a
// handler that sends more than one message (shutdown's own reply, or a
// second round of closing_signed) reenter this side before it has finished
// applying its own state transition. Queueing and draining afterward avoids
// that reordering and matches the real asynchronous delivery model.
type testBus struct {
	t       *testing.T
	pending []pendingMsg
}

func (b *testBus) enqueue(dest *Channel, desc string, raw []byte) {
	b.pending = append(b.pending, pendingMsg{dest: dest, desc: desc, raw: raw})
}

// drain delivers every queued message in order, including ones newly queued
// by an earlier delivery, until none remain.
func (b *testBus) drain() {
	b.t.Helper()
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		require.True(b.t, next.dest.Recv(next.raw), "%s: peer rejected message", next.desc)
	}
}

// drainOne delivers exactly the head of the queue, leaving any message the
// delivery itself enqueues for a later drain/drainOne call -- used to pick
// apart a multi-message exchange in tests simulating a dropped message.
func (b *testBus) drainOne() {
	b.t.Helper()
	require.NotEmpty(b.t, b.pending, "drainOne with nothing queued")
	next := b.pending[0]
	b.pending = b.pending[1:]
	require.True(b.t, next.dest.Recv(next.raw), "%s: peer rejected message", next.desc)
}

// loopbackHost is a host.Host that queues outgoing wire messages on a
// shared testBus rather than delivering them inline, modeled loosely on
// wallet_test.go's alice/bob reservation pair driving each other directly
// in a single test, but adapted for queued rather than synchronous delivery.
type loopbackHost struct {
	t    *testing.T
	name string
	self *Channel
	peer *loopbackHost
	bus  *testBus

	fundingPriv *btcec.PrivateKey

	established bool
	closed      bool

	addsRecvd      []*lnwire.UpdateAddHTLC
	fulfillsRecvd  []*lnwire.UpdateFufillHTLC
	htlcChangedCnt int
	annSigsRecvd   []*lnwire.AnnounceSignatures
	commitSigsRecvd []*lnwire.CommitSig

	// tolerateError lets a test assert on an expected protocol failure
	// instead of treating every Error callback as a harness bug.
	tolerateError bool
	lastError     error
}

func (h *loopbackHost) Error(err error) {
	if h.tolerateError {
		h.lastError = err
		return
	}
	h.t.Fatalf("%s: channel reported fatal error: %v", h.name, err)
}

func (h *loopbackHost) InitRecv(msg *lnwire.Init)                    {}
func (h *loopbackHost) FundingWIFReq()                               { h.self.SetFundingWIF(h.fundingPriv) }
func (h *loopbackHost) FundingTxWait()                               {}
func (h *loopbackHost) Established()                                 { h.established = true }
func (h *loopbackHost) NodeAnnoRecv(ann *lnwire.NodeAnnouncement)    {}
func (h *loopbackHost) AnnoSignsRecv(ann *lnwire.AnnounceSignatures) {
	h.annSigsRecvd = append(h.annSigsRecvd, ann)
}
func (h *loopbackHost) AddHTLCRecvPrev(htlc *lnwire.UpdateAddHTLC)   {}
func (h *loopbackHost) AddHTLCRecv(htlc *lnwire.UpdateAddHTLC) {
	h.addsRecvd = append(h.addsRecvd, htlc)
}
func (h *loopbackHost) FulfillHTLCRecv(htlc *lnwire.UpdateFufillHTLC) {
	h.fulfillsRecvd = append(h.fulfillsRecvd, htlc)
}
func (h *loopbackHost) HTLCChanged() { h.htlcChangedCnt++ }
func (h *loopbackHost) Closed()      { h.closed = true }
func (h *loopbackHost) SendReq(rawMsg []byte) {
	h.bus.enqueue(h.peer.self, h.name+"->"+h.peer.name, rawMsg)
}
func (h *loopbackHost) CommitSigRecv(msg *lnwire.CommitSig) {
	h.commitSigsRecvd = append(h.commitSigsRecvd, msg)
}

// testParty bundles one side's channel, host, and key material.
type testParty struct {
	host *loopbackHost
	ch   *Channel
	cfg  *lnwallet.ChannelConfig
	seed derkey.Secret
	keys lnwallet.Keys
}

func newTestKeys(t *testing.T) lnwallet.Keys {
	t.Helper()
	gen := func() *btcec.PrivateKey {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		return priv
	}
	return lnwallet.Keys{
		FundingKey:        gen(),
		RevocationBaseKey: gen(),
		PaymentBaseKey:    gen(),
		DelayBaseKey:      gen(),
		HtlcBaseKey:       gen(),
	}
}

func newTestParty(t *testing.T, bus *testBus, name string, isInitiator bool) *testParty {
	t.Helper()

	keys := newTestKeys(t)

	var seed derkey.Secret
	_, err := rand.Read(seed[:])
	require.NoError(t, err)

	cfg := &lnwallet.ChannelConfig{
		DustLimit:        600,
		ChanReserve:      10_000,
		MaxPendingAmount: lnwire.NewMSatFromSatoshis(1_000_000),
		MinHTLC:          1,
		MaxAcceptedHtlcs: 30,
		CsvDelay:         144,

		MultiSigKey:         keys.FundingKey.PubKey(),
		RevocationBasePoint: keys.RevocationBaseKey.PubKey(),
		PaymentBasePoint:    keys.PaymentBaseKey.PubKey(),
		DelayBasePoint:      keys.DelayBaseKey.PubKey(),
		HtlcBasePoint:       keys.PaymentBaseKey.PubKey(),
	}

	host := &loopbackHost{t: t, name: name, bus: bus, fundingPriv: keys.FundingKey}

	ch := New(host, btcdhelpers.New(), [32]byte{}, isInitiator, false)
	host.self = ch

	ch.SetEstablishParams(cfg)
	ch.SetRevocationSeed(seed, keys)
	// A nil-wrapped router satisfies handleUpdateAddHTLC's "installed"
	// check without needing a fully keyed sphinx node -- the channel
	// itself never calls into it, leaving onion processing to the host.
	ch.SetOnionRouter(onionadapter.NewRouter(nil))

	return &testParty{host: host, ch: ch, cfg: cfg, seed: seed, keys: keys}
}

// establishChannel drives alice (initiator) and bob (responder) through
// init, open_channel/accept_channel, funding_created/funding_signed, and
// funding_locked, returning both once StateNormal has been reached.
func establishChannel(t *testing.T, capacity btcutil.Amount,
	pushAmt lnwire.MilliSatoshi, feePerKw uint32) (alice, bob *testParty) {

	t.Helper()

	bus := &testBus{t: t}
	alice = newTestParty(t, bus, "alice", true)
	bob = newTestParty(t, bus, "bob", false)
	alice.host.peer = bob.host
	bob.host.peer = alice.host

	require.True(t, alice.ch.CreateInit(nil, nil))
	bus.drain()
	require.True(t, bob.ch.CreateInit(nil, nil))
	bus.drain()

	require.Equal(t, StateInitExchanged, alice.ch.State())
	require.Equal(t, StateInitExchanged, bob.ch.State())

	var fundingTxID [32]byte
	_, err := rand.Read(fundingTxID[:])
	require.NoError(t, err)
	alice.ch.SetFundingInfo(FundingInfo{TxID: fundingTxID, Index: 0})

	require.True(t, alice.ch.CreateOpenChannel(capacity, pushAmt, feePerKw))
	bus.drain()

	require.Equal(t, StateAwaitConfirm, alice.ch.State())
	require.Equal(t, StateAwaitConfirm, bob.ch.State())

	require.True(t, alice.ch.FundingTxStabled(500, 1))
	bus.drain()
	require.True(t, bob.ch.FundingTxStabled(500, 1))
	bus.drain()

	require.Equal(t, StateNormal, alice.ch.State())
	require.Equal(t, StateNormal, bob.ch.State())
	require.True(t, alice.host.established)
	require.True(t, bob.host.established)

	return alice, bob
}

func TestChannelEstablishment(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)

	require.Equal(t, alice.ch.ChanID(), bob.ch.ChanID())
}

func TestChannelHTLCRoundTrip(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var preimage [32]byte
	_, err := rand.Read(preimage[:])
	require.NoError(t, err)
	paymentHash := sha256.Sum256(preimage[:])

	var onion [1366]byte
	htlcIndex, ok := alice.ch.CreateAddHTLC(50_000_000, paymentHash, 500_000, onion)
	require.True(t, ok)
	bus.drain()

	require.Len(t, bob.host.addsRecvd, 1)

	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()
	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()

	require.Equal(t, 1, alice.host.htlcChangedCnt)
	require.Equal(t, 1, bob.host.htlcChangedCnt)

	require.True(t, bob.ch.CreateFulfillHTLC(htlcIndex, preimage))
	bus.drain()
	require.Len(t, alice.host.fulfillsRecvd, 1)

	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()
	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()

	require.Equal(t, 2, alice.host.htlcChangedCnt)
	require.Equal(t, 2, bob.host.htlcChangedCnt)
}

func TestChannelCooperativeClose(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	aliceAddr, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	bobAddr, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	require.NoError(t, alice.ch.SetShutdownVoutPubKey(aliceAddr.PubKey()))
	require.NoError(t, bob.ch.SetShutdownVoutPubKey(bobAddr.PubKey()))

	require.True(t, alice.ch.CreateShutdown())
	bus.drain()

	require.True(t, alice.host.closed)
	require.True(t, bob.host.closed)
	require.Equal(t, StateClosed, alice.ch.State())
	require.Equal(t, StateClosed, bob.ch.State())
}

func TestChannelReestablish(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)

	require.True(t, alice.ch.CreateChannelReestablish())
	require.True(t, bob.ch.CreateChannelReestablish())
}
