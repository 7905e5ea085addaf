package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
)

// Weight constants mirror the teacher's size.go, derived from BOLT3's
// transaction layout rather than measured empirically.
const (
	p2wshSize   = 1 + 1 + 32
	p2wkhOutput = 8 + 1 + 22
	p2wshOutput = 8 + 1 + 34
	fundingInputSize = 32 + 4 + 1 + 4

	commitmentDelayOutput   = 8 + 1 + p2wshSize
	commitmentKeyHashOutput = 8 + 1 + (1 + 1 + 20)
	htlcOutputSize          = 8 + 1 + p2wshSize

	witnessHeaderSize = 1 + 1
	multiSigSize      = 1 + 1 + 33 + 1 + 33 + 1 + 1
	witnessSize       = 1 + 1 + 1 + 73 + 1 + 73 + 1 + multiSigSize

	baseCommitmentTxSize = 4 + 1 + fundingInputSize + 1 +
		commitmentDelayOutput + commitmentKeyHashOutput + 4

	// BaseCommitmentTxWeight is the weight of a commitment transaction
	// with no HTLC outputs.
	BaseCommitmentTxWeight = blockchain.WitnessScaleFactor * baseCommitmentTxSize

	// WitnessCommitmentTxWeight is the weight contributed by the 2-of-2
	// funding witness itself.
	WitnessCommitmentTxWeight = witnessHeaderSize + witnessSize

	// HTLCWeight is the weight a single HTLC output adds to a commitment
	// transaction.
	HTLCWeight = blockchain.WitnessScaleFactor * htlcOutputSize

	// HtlcTimeoutWeight is the weight of the second-tier HTLC-timeout
	// transaction.
	HtlcTimeoutWeight = 663

	// HtlcSuccessWeight is the weight of the second-tier HTLC-success
	// transaction.
	HtlcSuccessWeight = 703

	// MaxHTLCNumber bounds the number of HTLCs a commitment transaction
	// may carry, chosen so that a punishment transaction sweeping every
	// HTLC output still falls under standard weight limits.
	MaxHTLCNumber = 966
)

// estimateCommitTxWeight estimates the weight of a commitment transaction
// carrying count HTLCs, optionally predicting the weight with one more HTLC
// added.
func estimateCommitTxWeight(count int, prediction bool) int64 {
	if prediction {
		count++
	}

	htlcWeight := int64(count * HTLCWeight)
	baseWeight := int64(BaseCommitmentTxWeight)
	witnessWeight := int64(WitnessCommitmentTxWeight)

	return htlcWeight + baseWeight + witnessWeight
}

// InitialCommitFee returns the commitment transaction fee, in satoshis, for
// a zero-HTLC commitment at the given fee-per-kw -- the same calculation
// Engine.CalcFee performs, exposed standalone so a caller can size the very
// first (height 0) commitment transactions before an Engine exists to ask.
func InitialCommitFee(feePerKw btcutil.Amount) btcutil.Amount {
	return btcutil.Amount((int64(feePerKw) * estimateCommitTxWeight(0, false)) / 1000)
}

// htlcTimeoutFee returns the fee, in satoshis, for an HTLC-timeout
// transaction at the given fee rate.
func htlcTimeoutFee(feePerKw btcutil.Amount) btcutil.Amount {
	return (feePerKw * HtlcTimeoutWeight) / 1000
}

// htlcSuccessFee returns the fee, in satoshis, for an HTLC-success
// transaction at the given fee rate.
func htlcSuccessFee(feePerKw btcutil.Amount) btcutil.Amount {
	return (feePerKw * HtlcSuccessWeight) / 1000
}

// htlcIsDust reports whether an HTLC output would fall below the dust limit
// once the cost of its second-tier claim transaction is subtracted. incoming
// and ourCommit together select whether the relevant second-tier transaction
// is a success or a timeout transaction.
func htlcIsDust(incoming, ourCommit bool, feePerKw, htlcAmt, dustLimit btcutil.Amount) bool {
	var htlcFee btcutil.Amount
	switch {
	case incoming && ourCommit:
		htlcFee = htlcSuccessFee(feePerKw)
	case incoming && !ourCommit:
		htlcFee = htlcTimeoutFee(feePerKw)
	case !incoming && ourCommit:
		htlcFee = htlcTimeoutFee(feePerKw)
	case !incoming && !ourCommit:
		htlcFee = htlcSuccessFee(feePerKw)
	}

	return (htlcAmt - htlcFee) < dustLimit
}

// p2wshDustThreshold is the minimum standard-relay output value for a
// P2WSH output, below which bitcoind's mempool policy refuses to relay the
// transaction carrying it.
var p2wshDustThreshold = txrules.GetDustThreshold(
	p2wshOutput, txrules.DefaultRelayFeePerKb,
)

// validateDustLimit rejects a negotiated dust_limit_sat that falls below
// the network's own standardness dust threshold for a P2WSH output: a
// commitment output at or above dustLimit must still actually be
// relayable, or the to_local/to_remote output it is meant to protect can
// never be swept.
func validateDustLimit(dustLimit btcutil.Amount) error {
	if dustLimit < p2wshDustThreshold {
		return fmt.Errorf("lnwallet: dust limit %v is below the "+
			"network's minimum relayable P2WSH output value %v",
			dustLimit, p2wshDustThreshold)
	}
	return nil
}
