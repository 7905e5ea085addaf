package btcdhelpers

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
)

func randKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestFundingScriptIsCanonicalMultisig(t *testing.T) {
	h := New()
	a, b := randKey(t).PubKey(), randKey(t).PubKey()

	info, err := h.FundingScript(a, b, 1_000_000)
	require.NoError(t, err)
	require.NotEmpty(t, info.WitnessScript)
	require.NotEmpty(t, info.PkScript)

	// Swapping the argument order must not change the resulting script,
	// since the keys are always sorted before insertion.
	swapped, err := h.FundingScript(b, a, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, info.WitnessScript, swapped.WitnessScript)
}

func TestFundingScriptRejectsNonPositiveAmount(t *testing.T) {
	h := New()
	a, b := randKey(t).PubKey(), randKey(t).PubKey()

	_, err := h.FundingScript(a, b, 0)
	require.Error(t, err)
}

func TestCommitScriptToSelfParsesAsScript(t *testing.T) {
	h := New()
	delayed, revocation := randKey(t).PubKey(), randKey(t).PubKey()

	info, err := h.CommitScriptToSelf(144, delayed, revocation)
	require.NoError(t, err)

	tokenizer := txscript.MakeScriptTokenizer(0, info.WitnessScript)
	opCount := 0
	for tokenizer.Next() {
		opCount++
	}
	require.NoError(t, tokenizer.Err())
	require.Greater(t, opCount, 0)
}

func TestOfferedAndReceivedHTLCScriptsDiffer(t *testing.T) {
	h := New()
	revocation, sender, receiver := randKey(t).PubKey(), randKey(t).PubKey(), randKey(t).PubKey()

	var paymentHash [32]byte
	rand.Read(paymentHash[:])

	offered, err := h.OfferedHTLCScript(revocation, sender, receiver, paymentHash)
	require.NoError(t, err)

	received, err := h.ReceivedHTLCScript(revocation, sender, receiver, paymentHash, 500_000)
	require.NoError(t, err)

	require.NotEqual(t, offered.WitnessScript, received.WitnessScript)
	require.NotEqual(t, offered.PkScript, received.PkScript)
}

func TestDeriveRevocationPubKeyMatchesPrivKey(t *testing.T) {
	h := New()
	base := randKey(t)

	var commitSecret [32]byte
	rand.Read(commitSecret[:])
	commitPoint := btcec.PrivKeyFromBytes(commitSecret[:]).PubKey()

	pub, err := h.DeriveRevocationPubKey(commitPoint, base.PubKey())
	require.NoError(t, err)

	priv, err := h.DeriveRevocationPrivKey(base, commitSecret)
	require.NoError(t, err)

	require.True(t, pub.IsEqual(priv.PubKey()))
}

func TestDeriveRevocationPubKeyRejectsNil(t *testing.T) {
	h := New()
	_, err := h.DeriveRevocationPubKey(nil, randKey(t).PubKey())
	require.Error(t, err)
}

func TestBIP69SortOrdersByValueThenScript(t *testing.T) {
	h := New()

	outs := []chainhelpers.TxOut{
		{Value: 500, PkScript: []byte{0x02}},
		{Value: 100, PkScript: []byte{0x01}},
		{Value: 100, PkScript: []byte{0x00}},
	}

	idx := h.BIP69Sort(outs)
	require.Equal(t, []int{2, 1, 0}, idx)
}
