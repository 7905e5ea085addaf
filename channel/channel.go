// Package channel implements the per-channel state machine: the
// synchronous recv([]byte) bool / create_*(...) (bool) entry points that
// drive a single channel from the init handshake through normal operation
// to a cooperative or unilateral close, reporting every externally visible
// transition through a host.Host callback. It is grounded on the
// teacher's peer.go dispatch switch and commitmentState bookkeeping,
// stripped of goroutines, sockets, and the switch/invoice subsystems that
// are out of scope here.
package channel

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/brontide"
	"github.com/lightningnetwork/lnchannel/chainhelpers"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/host"
	"github.com/lightningnetwork/lnchannel/lnwallet"
	"github.com/lightningnetwork/lnchannel/lnwire"
	"github.com/lightningnetwork/lnchannel/onionadapter"
)

// MaxUnansweredPings is the liveness threshold named in the error-handling
// design: five consecutive pings without a pong is signalled but is not
// itself terminal.
const MaxUnansweredPings = 5

// pendingHTLCResolution is staged in htlcsToSettle/htlcsToFail between the
// moment an incoming HTLC's fate is decided and the next commitment_signed
// round that actually removes it from the update log -- mirroring
// peer.go's commitmentState of the same shape.
type pendingHTLCResolution struct {
	preimage [32]byte
	isFail   bool
	reason   []byte
}

// Channel is one side of a single Lightning channel. Every state mutation
// happens inside a call from the host -- recv, one of the create_*
// methods, or one of the set_*/funding_tx_stabled lifecycle entry points --
// and every externally visible effect (a message to send, a settled HTLC,
// a fatal error) is reported back through host before that call returns.
type Channel struct {
	h      host.Host
	helper chainhelpers.Helper

	state State

	isInitiator    bool
	compatVoutZero bool

	chainHash [32]byte

	tempChanID     lnwire.ChannelID
	chanID         lnwire.ChannelID
	shortChanID    lnwire.ShortChannelID
	hasShortChanID bool

	localChanCfg  *lnwallet.ChannelConfig
	remoteChanCfg *lnwallet.ChannelConfig

	// ourCsvDelayDemand and ourChanReserveDemand are the to_self_delay
	// and channel_reserve_satoshis we impose on the counterparty's
	// commitment, captured from the cfg passed to SetEstablishParams
	// before the counterparty's own message tells us what it imposes on
	// ours -- at which point localChanCfg.CsvDelay/ChanReserve are
	// overwritten in place with the received values.
	ourCsvDelayDemand    uint16
	ourChanReserveDemand btcutil.Amount

	capacity btcutil.Amount
	pushAmt  lnwire.MilliSatoshi
	feePerKw btcutil.Amount

	fundingInfoSet       bool
	fundingTxIn          chainhelpers.TxIn
	fundingPkScript      []byte
	fundingWitnessScript []byte

	// localInitialCommitTx caches the initiator's own height-0 commitment
	// transaction between createFundingCreated and handleFundingSigned,
	// the only place it's needed again -- to build the sighash that
	// funding_signed's signature is checked against.
	localInitialCommitTx []byte

	openMsg   *lnwire.OpenChannel
	acceptMsg *lnwire.AcceptChannel

	remoteFirstPoint *btcec.PublicKey
	localFirstPoint  *btcec.PublicKey

	sentFundingLocked bool
	recvdFundingLocked bool

	revocationSeed derkey.Secret
	fundingPriv    *btcec.PrivateKey
	keys           lnwallet.Keys

	engine *lnwallet.Engine

	onionRouter *onionadapter.Router
	noise       *brontide.Machine

	htlcResolutions map[uint64]pendingHTLCResolution
	pendingAdds     map[uint64]*lnwire.UpdateAddHTLC

	numUnansweredPings int

	localShutdownScript  []byte
	remoteShutdownScript []byte
	sentShutdown         bool
	recvdShutdown        bool
	lastSentClosingFee   btcutil.Amount
	lastRecvClosingFee   btcutil.Amount
	hasRecvClosingFee    bool

	localAnnSigs  *lnwire.AnnounceSignatures
	remoteAnnSigs *lnwire.AnnounceSignatures

	// lastSentCommitSig and lastSentRevoke cache the most recent
	// commitment_signed/revoke_and_ack this side transmitted, so a
	// channel_reestablish exchange after a reconnect can retransmit the
	// exact message the remote party is missing instead of advancing
	// engine state a second time.
	lastSentCommitSig *lnwire.CommitSig
	lastSentRevoke    *lnwire.RevokeAndAck

	sentInit bool
	recvInit bool
}

// New constructs a channel in StateNone. isInitiator selects which side of
// the open_channel/accept_channel exchange this instance plays;
// compatVoutZero reproduces the legacy short_channel_id behavior of
// hardcoding the funding output index to zero rather than using the real
// vout, per the ptarmigan-derived open question decision.
func New(h host.Host, helper chainhelpers.Helper, chainHash [32]byte,
	isInitiator, compatVoutZero bool) *Channel {

	return &Channel{
		h:               h,
		helper:          helper,
		chainHash:       chainHash,
		isInitiator:     isInitiator,
		compatVoutZero:  compatVoutZero,
		state:           StateNone,
		htlcResolutions: make(map[uint64]pendingHTLCResolution),
		pendingAdds:     make(map[uint64]*lnwire.UpdateAddHTLC),
	}
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State { return c.state }

// ChanID returns the channel's permanent channel_id, valid from
// StateFundingSigned onward.
func (c *Channel) ChanID() lnwire.ChannelID { return c.chanID }

// SetOnionRouter installs the sphinx onion router used to process incoming
// update_add_htlc payloads. Channels constructed purely for testing the
// establishment/close flow may leave this unset; any update_add_htlc
// received without one is treated as a protocol violation.
func (c *Channel) SetOnionRouter(r *onionadapter.Router) {
	c.onionRouter = r
}

// SetTransport installs the brontide Machine framing this channel's
// messages, once handshake_start/handshake_recv have completed. Channels
// driven directly with pre-framed bytes (e.g. in tests) may leave this
// unset and call recv/create_* with plaintext wire messages directly.
func (c *Channel) SetTransport(m *brontide.Machine) {
	c.noise = m
}

// SetEstablishParams installs this side's own channel parameters ahead of
// the open_channel/accept_channel exchange -- the host-called
// set_establish entry point. cfg.CsvDelay and cfg.ChanReserve are read as
// the demands this side will impose on the counterparty's commitment; once
// the counterparty's own open_channel/accept_channel arrives, the
// corresponding fields on localChanCfg are overwritten with what the
// counterparty demands of this side instead.
func (c *Channel) SetEstablishParams(cfg *lnwallet.ChannelConfig) {
	c.localChanCfg = cfg
	c.ourCsvDelayDemand = cfg.CsvDelay
	c.ourChanReserveDemand = cfg.ChanReserve
}

// SetFundingWIF supplies the funding private key the host was asked for
// via the FundingWIFReq callback -- the one callback in the surface that
// is expected to mutate engine state in response.
func (c *Channel) SetFundingWIF(priv *btcec.PrivateKey) {
	c.fundingPriv = priv
	c.keys.FundingKey = priv
}

// SetRevocationSeed supplies the seed for this party's per-commitment
// secret ratchet, and the basepoint private keys used to derive
// commitment keys. Must be called before CreateOpenChannel/handling a
// received open_channel.
func (c *Channel) SetRevocationSeed(seed derkey.Secret, keys lnwallet.Keys) {
	c.revocationSeed = seed
	c.keys = keys

	producer := derkey.NewProducer(seed)
	firstSecret, err := producer.AtIndex(0)
	if err != nil {
		c.fail(fmt.Errorf("deriving first commitment secret: %w", err))
		return
	}
	c.localFirstPoint = lnwallet.ComputeCommitmentPoint(firstSecret[:])
}

// SetShutdownVoutPubKey sets the public key this side's cooperative close
// output should pay to, building a P2WPKH delivery script from it.
func (c *Channel) SetShutdownVoutPubKey(pubKey *btcec.PublicKey) error {
	script, err := c.helper.CommitScriptUnencumbered(pubKey)
	if err != nil {
		return err
	}
	c.localShutdownScript = script
	return nil
}

// SetShutdownVoutAddr sets this side's cooperative close delivery script
// directly, for hosts that want to pay to an arbitrary address rather
// than a fresh P2WPKH key.
func (c *Channel) SetShutdownVoutAddr(pkScript []byte) {
	c.localShutdownScript = pkScript
}

// Term tears down the channel immediately without a close negotiation,
// for abrupt host-driven shutdown (e.g. process exit). No messages are
// sent; the host is responsible for persisting or discarding state before
// calling this.
func (c *Channel) Term() {
	c.setState(StateClosed)
}

// shortChannelID derives the short_channel_id for this channel's funding
// outpoint given its confirmation height and position, honoring the
// CompatVoutZero flag for reproducing ptarmigan's hardcoded-vout-0
// behavior.
func (c *Channel) shortChannelID(blockHeight, txIndex uint32) lnwire.ShortChannelID {
	vout := c.fundingTxIn.PreviousOutPoint.Index
	if c.compatVoutZero {
		vout = 0
	}

	return lnwire.ShortChannelID{
		BlockHeight: blockHeight,
		TxIndex:     txIndex,
		TxPosition:  uint16(vout),
	}
}

// deriveChanID computes the permanent channel_id for a funding outpoint:
// the funding txid XORed with the big-endian output index in its final
// two bytes, per ln.c's byte order (the raw txid bytes, not the
// display/reversed form).
func deriveChanID(txid [32]byte, index uint16) lnwire.ChannelID {
	return lnwire.NewChanIDFromOutPoint(txid, index)
}
