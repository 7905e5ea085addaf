package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// ErrNoWindow is returned by SignNextCommitment when the remote party's
// revocation window has already been fully consumed: we cannot propose a
// new commitment until they reveal the next per-commitment point.
var ErrNoWindow = fmt.Errorf("unable to sign new commitment, " +
	"revocation window exhausted")

// Keys bundles the static private keys one party needs to sign on a
// channel's behalf -- the funding multisig key, and every commitment
// basepoint private key used to derive per-commitment keys via TweakPrivKey
// and DeriveRevocationPrivKey.
type Keys struct {
	FundingKey        *btcec.PrivateKey
	RevocationBaseKey *btcec.PrivateKey
	PaymentBaseKey    *btcec.PrivateKey
	DelayBaseKey      *btcec.PrivateKey
	HtlcBaseKey       *btcec.PrivateKey
}

// Engine is the commitment/HTLC state machine for a single channel. It
// tracks both parties' update logs and commitment chains, and knows how to
// fold a batch of proposed HTLC changes into a new signed commitment
// transaction -- but it never persists anything and never touches the
// network; callers drive it by feeding in received wire messages and
// relaying the wire messages it produces.
type Engine struct {
	helper chainhelpers.Helper
	keys   Keys

	isInitiator bool

	capacity             btcutil.Amount
	fundingTxIn          chainhelpers.TxIn
	fundingPkScript      []byte
	fundingWitnessScript []byte

	localChanCfg  *ChannelConfig
	remoteChanCfg *ChannelConfig

	obscuringMask uint64

	currentHeight uint64

	localCommitChain  *commitmentChain
	remoteCommitChain *commitmentChain

	localUpdateLog  *updateLog
	remoteUpdateLog *updateLog

	revocationProducer *derkey.Producer
	revocationStore    *derkey.Store

	remoteCurrentRevocation *btcec.PublicKey
	remoteNextRevocation    *btcec.PublicKey

	pendingFeeUpdate    *btcutil.Amount
	pendingAckFeeUpdate *btcutil.Amount
}

// NewEngine creates a new commitment engine for a freshly opened channel.
// openerPaymentBasePoint/acceptorPaymentBasePoint must be given in the order
// they'll appear in the funding transaction so both ends derive the same
// commitment-number obscuring mask; revocationSeed seeds this party's
// per-commitment secret ratchet, and remoteCurrentRevocation and
// remoteNextRevocation are the remote party's current and next
// per-commitment points; remoteNextRevocation may be nil until
// ReceiveFundingLocked supplies it.
func NewEngine(helper chainhelpers.Helper, keys Keys, isInitiator bool,
	capacity btcutil.Amount, fundingTxIn chainhelpers.TxIn,
	fundingPkScript, fundingWitnessScript []byte,
	localChanCfg, remoteChanCfg *ChannelConfig,
	openerPaymentBasePoint, acceptorPaymentBasePoint *btcec.PublicKey,
	revocationSeed derkey.Secret, remoteCurrentRevocation,
	remoteNextRevocation *btcec.PublicKey, localCommitTx []byte,
	localCommitFee, feePerKw btcutil.Amount) (*Engine, error) {

	if err := validateDustLimit(localChanCfg.DustLimit); err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	if err := validateDustLimit(remoteChanCfg.DustLimit); err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	e := &Engine{
		helper:               helper,
		keys:                 keys,
		isInitiator:          isInitiator,
		capacity:             capacity,
		fundingTxIn:          fundingTxIn,
		fundingPkScript:      fundingPkScript,
		fundingWitnessScript: fundingWitnessScript,
		localChanCfg:         localChanCfg,
		remoteChanCfg:        remoteChanCfg,
		obscuringMask: obscuredCommitNumMask(openerPaymentBasePoint,
			acceptorPaymentBasePoint),
		localCommitChain:        newCommitmentChain(0),
		remoteCommitChain:       newCommitmentChain(0),
		localUpdateLog:          newUpdateLog(0, 0),
		remoteUpdateLog:         newUpdateLog(0, 0),
		revocationProducer:      derkey.NewProducer(revocationSeed),
		revocationStore:         derkey.NewStore(),
		remoteCurrentRevocation: remoteCurrentRevocation,
		remoteNextRevocation:    remoteNextRevocation,
	}

	e.localCommitChain.addCommitment(&commitment{
		height:       0,
		isOurs:       true,
		ourBalance:   0,
		theirBalance: 0,
		fee:          localCommitFee,
		feePerKw:     feePerKw,
		dustLimit:    localChanCfg.DustLimit,
		txn:          localCommitTx,
	})
	e.remoteCommitChain.addCommitment(&commitment{
		height:    0,
		isOurs:    false,
		feePerKw:  feePerKw,
		dustLimit: remoteChanCfg.DustLimit,
	})

	return e, nil
}

// ReceiveFundingLocked records the remote party's next per-commitment
// point, carried in the funding_locked message it sends once it has seen
// the funding transaction reach min_depth confirmations. Until this is
// called, SignNextCommitment refuses to propose a new commitment
// (ErrNoWindow), since the engine has nowhere to point the remote party's
// next state at.
func (e *Engine) ReceiveFundingLocked(nextPerCommitPoint *btcec.PublicKey) {
	e.remoteNextRevocation = nextPerCommitPoint
}

// Balances returns this party's view of both sides' settled balances on
// the current local commitment, the starting point a cooperative close
// negotiation works from.
func (e *Engine) Balances() (ourBalance, theirBalance lnwire.MilliSatoshi) {
	tip := e.localCommitChain.tip()
	return tip.ourBalance, tip.theirBalance
}

// NextHTLCID returns the id the next outgoing HTLC added via AddHTLC will
// be assigned, so a caller building the wire message can populate its ID
// field before the engine ever sees it.
func (e *Engine) NextHTLCID() uint64 {
	return e.localUpdateLog.htlcCounter
}

// ReestablishState bundles the commitment/revocation bookkeeping a
// channel_reestablish message reports about this party, and that its
// handling needs to compare against whatever the remote party reports about
// itself.
type ReestablishState struct {
	// NextLocalCommitNum is one greater than the height of the local
	// commitment this party last signed.
	NextLocalCommitNum uint64

	// NextRevokeNum is the count of revocations this party has given out
	// for its own prior commitments.
	NextRevokeNum uint64

	// LastRevokedSecret is the per-commitment secret for
	// NextRevokeNum-1, proving this party has already revoked that
	// commitment. Absent (ok=false) before any revocation has happened.
	LastRevokedSecret    derkey.Secret
	HasLastRevokedSecret bool

	// UnrevokedPoint is the per-commitment point for this party's
	// current, not-yet-revoked local commitment.
	UnrevokedPoint *btcec.PublicKey
}

// ReestablishState reports this party's own resync bookkeeping, the
// contents of the channel_reestablish message it should send.
func (e *Engine) ReestablishState() (ReestablishState, error) {
	var st ReestablishState

	st.NextLocalCommitNum = e.localCommitChain.tip().height + 1
	st.NextRevokeNum = e.currentHeight

	if e.currentHeight > 0 {
		secret, err := e.revocationProducer.AtIndex(e.currentHeight - 1)
		if err != nil {
			return ReestablishState{}, err
		}
		st.LastRevokedSecret = secret
		st.HasLastRevokedSecret = true
	}

	curSecret, err := e.revocationProducer.AtIndex(e.currentHeight)
	if err != nil {
		return ReestablishState{}, err
	}
	st.UnrevokedPoint = ComputeCommitmentPoint(curSecret[:])

	return st, nil
}

// OweCommitment reports whether the remote party's reported
// next_commitment_number shows it is still missing the last commitment_signed
// this party sent it.
func (e *Engine) OweCommitment(remoteNextLocalCommitNum uint64) bool {
	return remoteNextLocalCommitNum <= e.remoteCommitChain.tip().height
}

// OweRevocation reports whether the remote party's reported
// next_revocation_number shows it has not yet seen the last revoke_and_ack
// this party sent it.
func (e *Engine) OweRevocation(remoteNextRevokeNum uint64) bool {
	return remoteNextRevokeNum < e.currentHeight
}

// VerifyLastRevokedSecret checks a remote party's claimed
// your_last_per_commitment_secret against the secret it actually revealed to
// us for that commitment height, detecting whether either side has lost
// state. A height this party has no stored secret for is treated as
// unverifiable rather than a mismatch -- nothing to compare against yet.
func (e *Engine) VerifyLastRevokedSecret(height uint64, claimed [32]byte) error {
	stored, err := e.revocationStore.LookupSecret(height)
	if err != nil {
		return nil
	}
	if derkey.Secret(claimed) != stored {
		return fmt.Errorf("remote party's last revealed secret does not " +
			"match what it previously revoked -- possible state loss")
	}
	return nil
}

// ChannelPoint returns the outpoint of the funding transaction that opened
// this channel.
func (e *Engine) ChannelPoint() chainhelpers.OutPoint {
	return e.fundingTxIn.PreviousOutPoint
}

// IsInitiator reports whether this party opened the channel, and therefore
// pays on-chain fees for the commitment and cooperative close transactions.
func (e *Engine) IsInitiator() bool {
	return e.isInitiator
}

// CalcFee returns the commitment transaction fee, in satoshis, for a
// zero-HTLC commitment transaction at the given fee-per-kw.
func (e *Engine) CalcFee(feeRate btcutil.Amount) btcutil.Amount {
	return btcutil.Amount((int64(feeRate) * estimateCommitTxWeight(0, false)) / 1000)
}

// validateFeeRate checks that applying feePerKw to the channel still leaves
// the initiator above their channel reserve.
func (e *Engine) validateFeeRate(feePerKw btcutil.Amount) error {
	availableBalance, txWeight := e.availableBalance()

	newFee := lnwire.NewMSatFromSatoshis(
		btcutil.Amount((int64(feePerKw) * txWeight) / 1000))
	balanceAfterFee := availableBalance - newFee

	if newFee > availableBalance ||
		balanceAfterFee.ToSatoshis() < e.localChanCfg.ChanReserve {
		return fmt.Errorf("cannot apply fee_update=%v sat/kw, "+
			"insufficient balance: start=%v, end=%v",
			int64(feePerKw), availableBalance, balanceAfterFee)
	}

	return nil
}

// UpdateFee initiates a fee update for this channel. Must only be called by
// the channel initiator, before sending update_fee to the remote party.
func (e *Engine) UpdateFee(feePerKw btcutil.Amount) error {
	if !e.isInitiator {
		return fmt.Errorf("local fee update as non-initiator")
	}

	if err := e.validateFeeRate(feePerKw); err != nil {
		return err
	}

	e.pendingFeeUpdate = &feePerKw

	return nil
}

// ReceiveUpdateFee records a fee update sent by the remote party. Returns an
// error if called by the channel initiator, since only the non-initiator may
// receive a fee update.
func (e *Engine) ReceiveUpdateFee(feePerKw btcutil.Amount) error {
	if e.isInitiator {
		return fmt.Errorf("received fee update as initiator")
	}

	e.pendingFeeUpdate = &feePerKw

	return nil
}

// availableBalance returns the local party's spendable balance and the
// weight the commitment transaction would have if a new state were created
// right now, accounting for every HTLC that is not yet fully resolved.
func (e *Engine) availableBalance() (lnwire.MilliSatoshi, int64) {
	bal := e.localCommitChain.tip().ourBalance

	view := e.fetchHTLCView(e.remoteUpdateLog.logIndex, e.localUpdateLog.logIndex)
	numHTLCs := int64(len(view.ourUpdates) + len(view.theirUpdates))

	commitFee := e.localCommitChain.tip().fee
	if e.isInitiator {
		bal += lnwire.NewMSatFromSatoshis(commitFee)
	}

	weight := estimateCommitTxWeight(int(numHTLCs), true)

	return bal, weight
}
