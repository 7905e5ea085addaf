package channel

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelReestablishNoOutstandingState(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	require.True(t, alice.ch.CreateChannelReestablish())
	bus.drain()
	require.True(t, bob.ch.CreateChannelReestablish())
	bus.drain()

	// Neither side had anything outstanding, so reestablishing exchanges
	// no commitment_signed/revoke_and_ack retransmissions.
	require.Empty(t, alice.host.commitSigsRecvd)
	require.Empty(t, bob.host.commitSigsRecvd)
}

// TestChannelReestablishResendsLostCommitSig simulates a disconnect that
// drops a commitment_signed in flight: bob never applies alice's signed
// commitment, so on reconnect bob's channel_reestablish still reports the
// commitment height it's been stuck on, and alice must resend the exact
// commitment_signed she cached rather than deriving a new one.
func TestChannelReestablishResendsLostCommitSig(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	var onion [1366]byte
	_, ok := alice.ch.CreateAddHTLC(50_000_000, paymentHash, 500_000, onion)
	require.True(t, ok)
	bus.drain()

	require.True(t, alice.ch.CreateCommitSig())
	// Drop the commitment_signed in flight -- bob never sees it.
	bus.pending = nil

	require.True(t, bob.ch.CreateChannelReestablish())
	bus.drain()

	require.Len(t, bob.host.commitSigsRecvd, 1)
	require.Equal(t, alice.ch.lastSentCommitSig.CommitSig, bob.host.commitSigsRecvd[0].CommitSig)
}

// TestChannelReestablishDetectsStateLoss exercises the claimed-secret
// mismatch path: a party claiming a last-revealed secret that doesn't match
// what this side actually revoked is reported as a fatal state-loss error
// rather than silently accepted.
func TestChannelReestablishDetectsStateLoss(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	var onion [1366]byte
	_, ok := alice.ch.CreateAddHTLC(50_000_000, paymentHash, 500_000, onion)
	require.True(t, ok)
	bus.drain()

	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()
	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()

	st, err := bob.ch.engine.ReestablishState()
	require.NoError(t, err)
	require.True(t, st.HasLastRevokedSecret)

	// Corrupt the secret bob claims to have revoked.
	claimed := [32]byte(st.LastRevokedSecret)
	claimed[0] ^= 0xff

	err = alice.ch.engine.VerifyLastRevokedSecret(st.NextRevokeNum-1, claimed)
	require.Error(t, err, "corrupted secret must not verify")

	// The genuine secret bob reports, on the other hand, must verify
	// cleanly against what alice actually has on record for bob.
	require.NoError(t, alice.ch.engine.VerifyLastRevokedSecret(
		st.NextRevokeNum-1, [32]byte(st.LastRevokedSecret)))
}
