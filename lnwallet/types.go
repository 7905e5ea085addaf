// Package lnwallet implements the commitment/HTLC engine: constructing and
// updating commitment transactions, tracking the per-channel update logs,
// and building the second-tier HTLC-timeout/HTLC-success transactions. It
// never imports the Bitcoin script/transaction packages directly -- every
// script, sighash, and signature is produced through the narrow
// chainhelpers.Helper boundary, per the "external collaborator" design
// carried over from the teacher's channel.go.
package lnwallet

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// PaymentHash is the SHA256 hash of an HTLC's payment preimage.
type PaymentHash [32]byte

// updateType enumerates the kind of update a log entry represents.
type updateType uint8

const (
	// Add is an entry offering a new HTLC.
	Add updateType = iota

	// Settle resolves a previously offered HTLC with its preimage.
	Settle

	// Fail resolves a previously offered HTLC with a failure reason.
	Fail

	// MalformedFail resolves an HTLC whose onion blob itself was
	// malformed, carrying a failure code and a hash of the bad blob
	// rather than an opaque reason.
	MalformedFail
)

func (u updateType) String() string {
	switch u {
	case Add:
		return "Add"
	case Settle:
		return "Settle"
	case Fail:
		return "Fail"
	case MalformedFail:
		return "MalformedFail"
	default:
		return "Unknown"
	}
}

// PaymentDescriptor tracks everything the channel needs to know about a
// single HTLC update log entry: the HTLC itself if this is an Add, or a
// back-pointer to the HTLC it resolves if this is a Settle/Fail.
type PaymentDescriptor struct {
	RHash     PaymentHash
	RPreimage PaymentHash

	Timeout uint32
	Amount  lnwire.MilliSatoshi

	LogIndex    uint64
	HtlcIndex   uint64
	ParentIndex uint64

	// localOutputIndex and remoteOutputIndex record where this HTLC
	// landed on each commitment transaction; -1 if it was dust there.
	localOutputIndex  int32
	remoteOutputIndex int32

	// addCommitHeightRemote/Local record the commitment height at which
	// this HTLC was first included on each chain.
	addCommitHeightRemote uint64
	addCommitHeightLocal  uint64

	// removeCommitHeightRemote/Local record the height at which a
	// Settle/Fail/MalformedFail entry's parent was removed from each
	// chain.
	removeCommitHeightRemote uint64
	removeCommitHeightLocal  uint64

	OnionBlob    []byte
	ShaOnionBlob [sha256.Size]byte
	FailReason   []byte
	FailCode     uint16

	EntryType updateType
}

// commitmentKeyRing holds the full set of per-commitment keys needed to
// build a single party's version of the commitment transaction.
type commitmentKeyRing struct {
	commitPoint *btcec.PublicKey

	localHtlcKey  *btcec.PublicKey
	remoteHtlcKey *btcec.PublicKey

	delayKey      *btcec.PublicKey
	noDelayKey    *btcec.PublicKey
	revocationKey *btcec.PublicKey
}

// ChannelConfig collects one party's channel parameters and basepoints, the
// in-memory equivalent of the teacher's channeldb.ChannelConfig (persistence
// is out of scope, so this struct only ever lives in memory for the
// lifetime of the process).
type ChannelConfig struct {
	DustLimit        btcutil.Amount
	ChanReserve      btcutil.Amount
	MaxPendingAmount lnwire.MilliSatoshi
	MinHTLC          lnwire.MilliSatoshi
	MaxAcceptedHtlcs uint16
	CsvDelay         uint16

	MultiSigKey         *btcec.PublicKey
	RevocationBasePoint *btcec.PublicKey
	PaymentBasePoint    *btcec.PublicKey
	DelayBasePoint      *btcec.PublicKey
	HtlcBasePoint       *btcec.PublicKey
}

// commitment represents one party's version of a commitment transaction at
// a given height, along with the balances and HTLC set it reflects.
type commitment struct {
	height uint64
	isOurs bool

	ourMessageIndex   uint64
	theirMessageIndex uint64
	ourHtlcIndex      uint64
	theirHtlcIndex    uint64

	txn []byte
	sig []byte

	ourBalance   lnwire.MilliSatoshi
	theirBalance lnwire.MilliSatoshi

	fee       btcutil.Amount
	feePerKw  btcutil.Amount
	dustLimit btcutil.Amount

	outgoingHTLCs []PaymentDescriptor
	incomingHTLCs []PaymentDescriptor
}
