package channel

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// TestChannelCooperativeCloseResponderInitiatesShutdown exercises the other
// ordering BOLT2 allows: the non-initiator sends shutdown first, and this
// side must reply with its own before fee negotiation can begin.
func TestChannelCooperativeCloseResponderInitiatesShutdown(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	aliceAddr, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	bobAddr, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	require.NoError(t, alice.ch.SetShutdownVoutPubKey(aliceAddr.PubKey()))
	require.NoError(t, bob.ch.SetShutdownVoutPubKey(bobAddr.PubKey()))

	require.True(t, bob.ch.CreateShutdown())
	bus.drain()

	require.True(t, alice.host.closed)
	require.True(t, bob.host.closed)
	require.Equal(t, StateClosed, alice.ch.State())
	require.Equal(t, StateClosed, bob.ch.State())
}

func TestChannelCreateShutdownWithoutDeliveryScript(t *testing.T) {
	alice, _ := establishChannel(t, 1_000_000, 0, 12500)
	alice.host.tolerateError = true

	require.False(t, alice.ch.CreateShutdown())
	require.Equal(t, StateClosed, alice.ch.State())
}

func TestChannelClosingSignedOutOfState(t *testing.T) {
	alice, _ := establishChannel(t, 1_000_000, 0, 12500)
	alice.host.tolerateError = true

	require.False(t, alice.ch.handleClosingSigned(nil))
	require.Equal(t, StateClosed, alice.ch.State())
}
