package lnwallet

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
	"github.com/lightningnetwork/lnchannel/chainhelpers/btcdhelpers"
	"github.com/lightningnetwork/lnchannel/derkey"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// testEnginePair bundles two engines over the same funding output, built
// directly against the package's own exported construction helpers rather
// than going through the channel package's establish/funding flow.
type testEnginePair struct {
	alice, bob *Engine
}

func newTestChanCfg(t *testing.T) *ChannelConfig {
	t.Helper()
	gen := func() *btcec.PublicKey {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		return priv.PubKey()
	}
	return &ChannelConfig{
		DustLimit:        600,
		ChanReserve:      10_000,
		MaxPendingAmount: lnwire.NewMSatFromSatoshis(1_000_000),
		MinHTLC:          1,
		MaxAcceptedHtlcs: 30,
		CsvDelay:         144,

		MultiSigKey:         gen(),
		RevocationBasePoint: gen(),
		PaymentBasePoint:    gen(),
		DelayBasePoint:      gen(),
		HtlcBasePoint:       gen(),
	}
}

// buildTestEngines constructs a matched pair of engines over the same
// funding outpoint and initial commitment fee, mirroring the
// createFundingCreated/buildEngine flow in the channel package: both
// parties' height-0 commitment transactions are built with
// NewInitialCommitTx before either engine exists, then handed to NewEngine.
func buildTestEngines(t *testing.T, helper chainhelpers.Helper, capacity btcutil.Amount,
	pushAmt lnwire.MilliSatoshi, feePerKw uint32) testEnginePair {

	t.Helper()
	return buildTestEnginesWithCfg(t, helper, capacity, pushAmt, feePerKw, nil)
}

// buildTestEnginesWithCfg is buildTestEngines with an optional hook to
// tweak both parties' negotiated ChannelConfig before the engines are
// constructed, for tests that need a non-default htlc_minimum_msat or
// max_accepted_htlcs.
func buildTestEnginesWithCfg(t *testing.T, helper chainhelpers.Helper, capacity btcutil.Amount,
	pushAmt lnwire.MilliSatoshi, feePerKw uint32, tweak func(aliceCfg, bobCfg *ChannelConfig)) testEnginePair {

	t.Helper()

	aliceKeys := newTestKeys(t)
	bobKeys := newTestKeys(t)

	aliceCfg := newTestChanCfg(t)
	aliceCfg.MultiSigKey = aliceKeys.FundingKey.PubKey()
	aliceCfg.RevocationBasePoint = aliceKeys.RevocationBaseKey.PubKey()
	aliceCfg.PaymentBasePoint = aliceKeys.PaymentBaseKey.PubKey()
	aliceCfg.DelayBasePoint = aliceKeys.DelayBaseKey.PubKey()
	aliceCfg.HtlcBasePoint = aliceKeys.PaymentBaseKey.PubKey()

	bobCfg := newTestChanCfg(t)
	bobCfg.MultiSigKey = bobKeys.FundingKey.PubKey()
	bobCfg.RevocationBasePoint = bobKeys.RevocationBaseKey.PubKey()
	bobCfg.PaymentBasePoint = bobKeys.PaymentBaseKey.PubKey()
	bobCfg.DelayBasePoint = bobKeys.DelayBaseKey.PubKey()
	bobCfg.HtlcBasePoint = bobKeys.PaymentBaseKey.PubKey()

	if tweak != nil {
		tweak(aliceCfg, bobCfg)
	}

	info, err := helper.FundingScript(aliceCfg.MultiSigKey, bobCfg.MultiSigKey, int64(capacity))
	require.NoError(t, err)

	var fundingTxID [32]byte
	_, err = rand.Read(fundingTxID[:])
	require.NoError(t, err)
	fundingIn := chainhelpers.TxIn{
		PreviousOutPoint: chainhelpers.OutPoint{Hash: fundingTxID, Index: 0},
	}

	opener, acceptor := aliceCfg.PaymentBasePoint, bobCfg.PaymentBasePoint
	lockTime, sequence := ObscuredCommitmentLockTime(opener, acceptor, 0)
	fundingIn.Sequence = sequence

	fee := InitialCommitFee(btcutil.Amount(feePerKw))
	pushed := pushAmt.ToSatoshis()
	aliceBalance, bobBalance := capacity-pushed-fee, pushed

	var aliceSeed, bobSeed derkey.Secret
	_, err = rand.Read(aliceSeed[:])
	require.NoError(t, err)
	_, err = rand.Read(bobSeed[:])
	require.NoError(t, err)

	aliceFirstPoint := ComputeCommitmentPoint(mustSecretAt(t, aliceSeed, 0)[:])
	bobFirstPoint := ComputeCommitmentPoint(mustSecretAt(t, bobSeed, 0)[:])

	aliceCommitTx, err := NewInitialCommitTx(helper, fundingIn, true, aliceCfg, bobCfg,
		aliceFirstPoint, uint32(aliceCfg.CsvDelay), aliceBalance, bobBalance,
		aliceCfg.DustLimit, lockTime)
	require.NoError(t, err)

	bobCommitTx, err := NewInitialCommitTx(helper, fundingIn, true, bobCfg, aliceCfg,
		bobFirstPoint, uint32(bobCfg.CsvDelay), bobBalance, aliceBalance,
		bobCfg.DustLimit, lockTime)
	require.NoError(t, err)

	fundingWitnessScript := info.WitnessScript
	fundingPkScript := info.PkScript

	alice, err := NewEngine(helper, aliceKeys, true, capacity, fundingIn,
		fundingPkScript, fundingWitnessScript, aliceCfg, bobCfg,
		opener, acceptor, aliceSeed, bobFirstPoint, nil, aliceCommitTx, fee,
		btcutil.Amount(feePerKw))
	require.NoError(t, err)

	bob, err := NewEngine(helper, bobKeys, false, capacity, fundingIn,
		fundingPkScript, fundingWitnessScript, bobCfg, aliceCfg,
		opener, acceptor, bobSeed, aliceFirstPoint, nil, bobCommitTx, fee,
		btcutil.Amount(feePerKw))
	require.NoError(t, err)

	bobSecondPoint := ComputeCommitmentPoint(mustSecretAt(t, bobSeed, 1)[:])
	aliceSecondPoint := ComputeCommitmentPoint(mustSecretAt(t, aliceSeed, 1)[:])
	alice.ReceiveFundingLocked(bobSecondPoint)
	bob.ReceiveFundingLocked(aliceSecondPoint)

	return testEnginePair{alice: alice, bob: bob}
}

func mustSecretAt(t *testing.T, seed derkey.Secret, index uint64) derkey.Secret {
	t.Helper()
	secret, err := derkey.NewProducer(seed).AtIndex(index)
	require.NoError(t, err)
	return secret
}

func newTestKeys(t *testing.T) Keys {
	t.Helper()
	gen := func() *btcec.PrivateKey {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		return priv
	}
	return Keys{
		FundingKey:        gen(),
		RevocationBaseKey: gen(),
		PaymentBaseKey:    gen(),
		DelayBaseKey:      gen(),
		HtlcBaseKey:       gen(),
	}
}

func TestEngineHTLCCommitmentRoundTrip(t *testing.T) {
	helper := btcdhelpers.New()
	pair := buildTestEngines(t, helper, 1_000_000, 0, 12500)
	alice, bob := pair.alice, pair.bob

	aliceStart, bobStart := alice.Balances()
	require.NotZero(t, aliceStart)
	require.Zero(t, bobStart)

	var preimage [32]byte
	_, err := rand.Read(preimage[:])
	require.NoError(t, err)
	paymentHash := sha256.Sum256(preimage[:])

	htlc := &lnwire.UpdateAddHTLC{
		ID:          alice.NextHTLCID(),
		Amount:      50_000_000,
		PaymentHash: paymentHash,
		Expiry:      500_000,
	}

	htlcIndex, err := alice.AddHTLC(htlc)
	require.NoError(t, err)
	require.Equal(t, uint64(0), htlcIndex)

	bobHtlcIndex, err := bob.ReceiveHTLC(htlc)
	require.NoError(t, err)

	commitSig, htlcSigs, err := alice.SignNextCommitment()
	require.NoError(t, err)
	require.NotEmpty(t, commitSig)
	require.Len(t, htlcSigs, 1)

	require.NoError(t, bob.ReceiveNewCommitment(commitSig, htlcSigs))

	revoke, err := bob.RevokeCurrentCommitment()
	require.NoError(t, err)

	_, err = alice.ReceiveRevocation(revoke)
	require.NoError(t, err)

	require.NoError(t, bob.SettleHTLC(preimage, bobHtlcIndex))

	commitSig2, htlcSigs2, err := bob.SignNextCommitment()
	require.NoError(t, err)
	require.Empty(t, htlcSigs2)

	require.NoError(t, alice.ReceiveNewCommitment(commitSig2, htlcSigs2))

	aliceRevoke, err := alice.RevokeCurrentCommitment()
	require.NoError(t, err)

	_, err = bob.ReceiveRevocation(aliceRevoke)
	require.NoError(t, err)

	aliceBal, bobBal := alice.Balances()
	require.Equal(t, aliceStart-htlc.Amount, aliceBal)
	require.Equal(t, htlc.Amount, bobBal)
}

// TestEngineHTLCOutputIndexSurvivesBIP69Sort adds two HTLCs whose amounts sit
// well below the to_local/to_remote balances, so BIP69's ascending-value sort
// is guaranteed to move their outputs ahead of the balance outputs in the
// built transaction -- away from their insertion-order position. It then
// decodes the real commitment transaction bytes and checks the HTLC output
// recorded against each PaymentDescriptor actually carries that HTLC's
// amount, catching any case where the recorded index still points at the
// pre-sort position.
func TestEngineHTLCOutputIndexSurvivesBIP69Sort(t *testing.T) {
	helper := btcdhelpers.New()
	pair := buildTestEngines(t, helper, 1_000_000, 0, 12500)
	alice, bob := pair.alice, pair.bob

	amounts := []lnwire.MilliSatoshi{30_000_000, 12_000_000}
	for _, amt := range amounts {
		var paymentHash [32]byte
		_, err := rand.Read(paymentHash[:])
		require.NoError(t, err)

		htlc := &lnwire.UpdateAddHTLC{
			ID:          alice.NextHTLCID(),
			Amount:      amt,
			PaymentHash: paymentHash,
			Expiry:      500_000,
		}

		_, err = alice.AddHTLC(htlc)
		require.NoError(t, err)
		_, err = bob.ReceiveHTLC(htlc)
		require.NoError(t, err)
	}

	commitSig, htlcSigs, err := alice.SignNextCommitment()
	require.NoError(t, err)
	require.Len(t, htlcSigs, len(amounts))

	require.NoError(t, bob.ReceiveNewCommitment(commitSig, htlcSigs))

	bobCommit := bob.localCommitChain.tip()

	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(bobCommit.txn)))

	require.Len(t, bobCommit.incomingHTLCs, len(amounts))
	for _, htlc := range bobCommit.incomingHTLCs {
		require.GreaterOrEqual(t, htlc.localOutputIndex, int32(0))
		out := tx.TxOut[htlc.localOutputIndex]
		require.Equal(t, int64(htlc.Amount.ToSatoshis()), out.Value)
	}

	// The HTLC outputs are smaller than either balance output, so BIP69's
	// ascending sort must have pulled at least one of them away from its
	// insertion-order position (outs are appended to_local, to_remote,
	// then HTLCs, so an HTLC landing anywhere but the last two indices of
	// an N-output transaction proves the sort actually moved it).
	moved := false
	for _, htlc := range bobCommit.incomingHTLCs {
		if int(htlc.localOutputIndex) < len(tx.TxOut)-len(amounts) {
			moved = true
		}
	}
	require.True(t, moved, "expected BIP69 sort to reorder at least one HTLC output")
}

func TestEngineUpdateFeeRejectedForNonInitiator(t *testing.T) {
	helper := btcdhelpers.New()
	pair := buildTestEngines(t, helper, 1_000_000, 0, 12500)

	require.Error(t, pair.bob.UpdateFee(15000))
	require.Error(t, pair.alice.ReceiveUpdateFee(15000))
}

func TestEngineAddHTLCInsufficientBalance(t *testing.T) {
	helper := btcdhelpers.New()
	pair := buildTestEngines(t, helper, 1_000_000, 0, 12500)

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	htlc := &lnwire.UpdateAddHTLC{
		ID:          pair.alice.NextHTLCID(),
		Amount:      lnwire.NewMSatFromSatoshis(2_000_000),
		PaymentHash: paymentHash,
		Expiry:      500_000,
	}

	_, err = pair.alice.AddHTLC(htlc)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

// TestEngineAddHTLCRejectsZeroAmount checks the amount_msat > 0 invariant.
func TestEngineAddHTLCRejectsZeroAmount(t *testing.T) {
	helper := btcdhelpers.New()
	pair := buildTestEngines(t, helper, 1_000_000, 0, 12500)

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	htlc := &lnwire.UpdateAddHTLC{
		ID:          pair.alice.NextHTLCID(),
		Amount:      0,
		PaymentHash: paymentHash,
		Expiry:      500_000,
	}

	_, err = pair.alice.AddHTLC(htlc)
	require.Error(t, err)
}

// TestEngineAddHTLCMinHTLCBoundary checks the htlc_minimum_msat boundary:
// one below the negotiated floor is rejected, exactly at the floor is
// accepted.
func TestEngineAddHTLCMinHTLCBoundary(t *testing.T) {
	helper := btcdhelpers.New()
	const minHTLC = lnwire.MilliSatoshi(2000)

	pair := buildTestEnginesWithCfg(t, helper, 1_000_000, 0, 12500,
		func(aliceCfg, bobCfg *ChannelConfig) {
			aliceCfg.MinHTLC = minHTLC
			bobCfg.MinHTLC = minHTLC
		})

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	tooSmall := &lnwire.UpdateAddHTLC{
		ID:          pair.alice.NextHTLCID(),
		Amount:      minHTLC - 1,
		PaymentHash: paymentHash,
		Expiry:      500_000,
	}
	_, err = pair.alice.AddHTLC(tooSmall)
	require.Error(t, err)

	atFloor := &lnwire.UpdateAddHTLC{
		ID:          pair.alice.NextHTLCID(),
		Amount:      minHTLC,
		PaymentHash: paymentHash,
		Expiry:      500_000,
	}
	_, err = pair.alice.AddHTLC(atFloor)
	require.NoError(t, err)
}

// TestEngineAddHTLCMaxAcceptedHtlcs checks that filling the negotiated
// max_accepted_htlcs ceiling is accepted and the next HTLC past it is
// rejected.
func TestEngineAddHTLCMaxAcceptedHtlcs(t *testing.T) {
	helper := btcdhelpers.New()
	const maxAccepted = 3

	pair := buildTestEnginesWithCfg(t, helper, 1_000_000, 0, 12500,
		func(aliceCfg, bobCfg *ChannelConfig) {
			// AddHTLC on alice is bounded by what bob (the
			// remote side from alice's perspective) will accept.
			bobCfg.MaxAcceptedHtlcs = maxAccepted
		})

	for i := 0; i < maxAccepted; i++ {
		var paymentHash [32]byte
		_, err := rand.Read(paymentHash[:])
		require.NoError(t, err)

		htlc := &lnwire.UpdateAddHTLC{
			ID:          pair.alice.NextHTLCID(),
			Amount:      10_000_000,
			PaymentHash: paymentHash,
			Expiry:      500_000,
		}
		_, err = pair.alice.AddHTLC(htlc)
		require.NoError(t, err)
	}

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	overflow := &lnwire.UpdateAddHTLC{
		ID:          pair.alice.NextHTLCID(),
		Amount:      10_000_000,
		PaymentHash: paymentHash,
		Expiry:      500_000,
	}
	_, err = pair.alice.AddHTLC(overflow)
	require.ErrorIs(t, err, ErrMaxHTLCNumber)
}

func TestEngineCalcFee(t *testing.T) {
	helper := btcdhelpers.New()
	pair := buildTestEngines(t, helper, 1_000_000, 0, 12500)

	fee := pair.alice.CalcFee(12500)
	require.Positive(t, fee)
}
