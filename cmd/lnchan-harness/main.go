// lnchan-harness drives two in-process channel engines through
// establishment, an HTLC round trip, and cooperative close, printing each
// transition as it happens. It exists to exercise the channel package end
// to end without a real peer connection or wallet backend.
package main

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"
	"github.com/tv42/zbase32"
	"github.com/urfave/cli"

	"github.com/lightningnetwork/lnchannel/chainhelpers/btcdhelpers"
	"github.com/lightningnetwork/lnchannel/channel"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/host"
	"github.com/lightningnetwork/lnchannel/lnwallet"
	"github.com/lightningnetwork/lnchannel/lnwire"
	"github.com/lightningnetwork/lnchannel/onionadapter"
)

// config holds the settings that stay constant across an invocation,
// separate from the per-command flags urfave/cli parses below: the kind of
// thing a real deployment would keep in an on-disk config file rather than
// retype on every run.
type config struct {
	LogLevel string `long:"loglevel" description:"log level for the channel package (trace, debug, info, warn, error, off)" default:"info"`
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "lnchan-harness:", err)
	os.Exit(1)
}

func main() {
	var cfg config
	if _, err := flags.NewParser(&cfg, flags.Default).Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fatal(err)
	}

	backend := btclog.NewBackend(os.Stdout)
	level, ok := btclog.LevelFromString(cfg.LogLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	logger := backend.Logger("LNCH")
	logger.SetLevel(level)
	channel.UseLogger(logger)

	app := cli.NewApp()
	app.Name = "lnchan-harness"
	app.Usage = "drive a loopback pair of channel engines through a full lifecycle"
	app.Flags = []cli.Flag{
		cli.Int64Flag{
			Name:  "capacity",
			Value: 1_000_000,
			Usage: "channel capacity, in satoshis",
		},
		cli.Int64Flag{
			Name:  "push_amt",
			Value: 0,
			Usage: "amount pushed to the responder at open, in satoshis",
		},
		cli.Int64Flag{
			Name:  "fee_per_kw",
			Value: 12500,
			Usage: "initial commitment feerate, in satoshis per kiloweight",
		},
		cli.Int64Flag{
			Name:  "htlc_amt",
			Value: 50_000_000,
			Usage: "HTLC amount to route through the channel, in millisatoshis",
		},
	}
	app.Action = runEstablish
	app.Commands = []cli.Command{
		{
			Name:   "establish",
			Usage:  "establish the channel, settle one HTLC, and close cooperatively",
			Action: runEstablish,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func runEstablish(ctx *cli.Context) error {
	capacity := btcutil.Amount(ctx.Int64("capacity"))
	pushAmt := lnwire.NewMSatFromSatoshis(btcutil.Amount(ctx.Int64("push_amt")))
	feePerKw := uint32(ctx.Int64("fee_per_kw"))
	htlcAmt := lnwire.MilliSatoshi(ctx.Int64("htlc_amt"))

	bus := &harnessBus{}
	alice, err := newHarnessParty(bus, "alice", true)
	if err != nil {
		return err
	}
	bob, err := newHarnessParty(bus, "bob", false)
	if err != nil {
		return err
	}
	alice.host.peer = bob.host
	bob.host.peer = alice.host

	fmt.Println("=== init ===")
	if !alice.ch.CreateInit(nil, nil) {
		return fmt.Errorf("alice: create_init rejected")
	}
	bus.drain()
	if !bob.ch.CreateInit(nil, nil) {
		return fmt.Errorf("bob: create_init rejected")
	}
	bus.drain()

	var fundingTxID [32]byte
	if _, err := rand.Read(fundingTxID[:]); err != nil {
		return err
	}
	alice.ch.SetFundingInfo(channel.FundingInfo{TxID: fundingTxID, Index: 0})

	fmt.Println("=== open_channel ===")
	if !alice.ch.CreateOpenChannel(capacity, pushAmt, feePerKw) {
		return fmt.Errorf("alice: open_channel rejected")
	}
	bus.drain()

	fmt.Println("=== funding_tx_stabled ===")
	if !alice.ch.FundingTxStabled(500, 1) {
		return fmt.Errorf("alice: funding_tx_stabled rejected")
	}
	bus.drain()
	if !bob.ch.FundingTxStabled(500, 1) {
		return fmt.Errorf("bob: funding_tx_stabled rejected")
	}
	bus.drain()

	if !alice.host.established || !bob.host.established {
		return fmt.Errorf("channel did not reach NORMAL")
	}
	fmt.Printf("channel established, chan_id=%s\n", shortID(alice.ch.ChanID()))

	fmt.Println("=== htlc round trip ===")
	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return err
	}
	paymentHash := sha256.Sum256(preimage[:])
	var onion [1366]byte
	htlcIndex, ok := alice.ch.CreateAddHTLC(htlcAmt, paymentHash, 500_000, onion)
	if !ok {
		return fmt.Errorf("alice: update_add_htlc rejected")
	}
	bus.drain()

	if !alice.ch.CreateCommitSig() {
		return fmt.Errorf("alice: commitment_signed rejected")
	}
	bus.drain()
	if !bob.ch.CreateCommitSig() {
		return fmt.Errorf("bob: commitment_signed rejected")
	}
	bus.drain()

	if !bob.ch.CreateFulfillHTLC(htlcIndex, preimage) {
		return fmt.Errorf("bob: update_fulfill_htlc rejected")
	}
	bus.drain()

	if !bob.ch.CreateCommitSig() {
		return fmt.Errorf("bob: commitment_signed rejected")
	}
	bus.drain()
	if !alice.ch.CreateCommitSig() {
		return fmt.Errorf("alice: commitment_signed rejected")
	}
	bus.drain()

	fmt.Println("=== cooperative close ===")
	aliceAddr, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}
	bobAddr, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}
	if err := alice.ch.SetShutdownVoutPubKey(aliceAddr.PubKey()); err != nil {
		return err
	}
	if err := bob.ch.SetShutdownVoutPubKey(bobAddr.PubKey()); err != nil {
		return err
	}
	if !alice.ch.CreateShutdown() {
		return fmt.Errorf("alice: shutdown rejected")
	}
	bus.drain()

	if !alice.host.closed || !bob.host.closed {
		return fmt.Errorf("channel did not reach CLOSED")
	}
	fmt.Println("channel closed cooperatively")

	return nil
}

func shortID(id lnwire.ChannelID) string {
	return zbase32.EncodeToString(id[:8])
}

// pendingMsg is one wire message queued for delivery on a harnessBus.
type pendingMsg struct {
	dest *channel.Channel
	raw  []byte
}

// harnessBus queues the raw bytes each channel hands to SendReq rather than
// delivering them inline, so a handler that sends more than one message in
// response to a single Recv can't reenter the peer before its own state
// transition has finished applying.
type harnessBus struct {
	pending []pendingMsg
}

func (b *harnessBus) enqueue(dest *channel.Channel, raw []byte) {
	b.pending = append(b.pending, pendingMsg{dest: dest, raw: raw})
}

func (b *harnessBus) drain() {
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		next.dest.Recv(next.raw)
	}
}

// harnessHost is a host.Host that forwards outgoing wire messages through a
// shared harnessBus and logs the callbacks a real embedder would act on.
type harnessHost struct {
	name string
	self *channel.Channel
	peer *harnessHost
	bus  *harnessBus

	fundingPriv *btcec.PrivateKey

	established bool
	closed      bool
}

func (h *harnessHost) Error(err error) {
	fmt.Printf("%s: fatal: %v\n", h.name, err)
}
func (h *harnessHost) InitRecv(msg *lnwire.Init)             {}
func (h *harnessHost) FundingWIFReq()                        { h.self.SetFundingWIF(h.fundingPriv) }
func (h *harnessHost) FundingTxWait()                        {}
func (h *harnessHost) Established()                          { h.established = true }
func (h *harnessHost) NodeAnnoRecv(*lnwire.NodeAnnouncement)  {}
func (h *harnessHost) AnnoSignsRecv(*lnwire.AnnounceSignatures) {}
func (h *harnessHost) AddHTLCRecvPrev(*lnwire.UpdateAddHTLC)  {}
func (h *harnessHost) AddHTLCRecv(htlc *lnwire.UpdateAddHTLC) {
	fmt.Printf("%s: received add_htlc amt=%s\n", h.name, htlc.Amount)
}
func (h *harnessHost) FulfillHTLCRecv(htlc *lnwire.UpdateFufillHTLC) {
	fmt.Printf("%s: received fulfill_htlc\n", h.name)
}
func (h *harnessHost) HTLCChanged() {}
func (h *harnessHost) Closed()      { h.closed = true }
func (h *harnessHost) SendReq(rawMsg []byte) {
	h.bus.enqueue(h.peer.self, rawMsg)
}
func (h *harnessHost) CommitSigRecv(*lnwire.CommitSig) {}

var _ host.Host = (*harnessHost)(nil)

// harnessParty bundles one side's channel, host, and key material, built
// directly against the channel package's own setup calls.
type harnessParty struct {
	host *harnessHost
	ch   *channel.Channel
}

func newHarnessParty(bus *harnessBus, name string, isInitiator bool) (*harnessParty, error) {
	keys, err := randomKeys()
	if err != nil {
		return nil, err
	}

	var seed derkey.Secret
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}

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

	hst := &harnessHost{name: name, bus: bus, fundingPriv: keys.FundingKey}
	ch := channel.New(hst, btcdhelpers.New(), [32]byte{}, isInitiator, false)
	hst.self = ch

	ch.SetEstablishParams(cfg)
	ch.SetRevocationSeed(seed, keys)
	ch.SetOnionRouter(onionadapter.NewRouter(nil))

	return &harnessParty{host: hst, ch: ch}, nil
}

func randomKeys() (lnwallet.Keys, error) {
	gen := func() (*btcec.PrivateKey, error) { return btcec.NewPrivateKey() }

	funding, err := gen()
	if err != nil {
		return lnwallet.Keys{}, err
	}
	revocation, err := gen()
	if err != nil {
		return lnwallet.Keys{}, err
	}
	payment, err := gen()
	if err != nil {
		return lnwallet.Keys{}, err
	}
	delay, err := gen()
	if err != nil {
		return lnwallet.Keys{}, err
	}
	htlc, err := gen()
	if err != nil {
		return lnwallet.Keys{}, err
	}

	return lnwallet.Keys{
		FundingKey:        funding,
		RevocationBaseKey: revocation,
		PaymentBaseKey:    payment,
		DelayBaseKey:      delay,
		HtlcBaseKey:       htlc,
	}, nil
}
