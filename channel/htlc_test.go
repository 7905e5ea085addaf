package channel

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelHTLCFail(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	var onion [1366]byte
	htlcIndex, ok := alice.ch.CreateAddHTLC(50_000_000, paymentHash, 500_000, onion)
	require.True(t, ok)
	bus.drain()

	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()
	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()

	require.True(t, bob.ch.CreateFailHTLC(htlcIndex, []byte("incorrect_payment_details")))
	bus.drain()

	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()
	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()

	require.Equal(t, 2, alice.host.htlcChangedCnt)
	require.Equal(t, 2, bob.host.htlcChangedCnt)
}

func TestChannelHTLCFailMalformed(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var paymentHash [32]byte
	_, err := rand.Read(paymentHash[:])
	require.NoError(t, err)

	var onion [1366]byte
	htlcIndex, ok := alice.ch.CreateAddHTLC(50_000_000, paymentHash, 500_000, onion)
	require.True(t, ok)
	bus.drain()

	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()
	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()

	var shaOnion [32]byte
	_, err = rand.Read(shaOnion[:])
	require.NoError(t, err)

	require.True(t, bob.ch.CreateFailMalformedHTLC(htlcIndex, 0x8000|1, shaOnion))
	bus.drain()

	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()
	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()

	require.Equal(t, 2, alice.host.htlcChangedCnt)
	require.Equal(t, 2, bob.host.htlcChangedCnt)
}

func TestChannelMultipleInFlightHTLCs(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var onion [1366]byte
	var preimages [3][32]byte
	var htlcIndexes [3]uint64

	for i := range preimages {
		_, err := rand.Read(preimages[i][:])
		require.NoError(t, err)

		idx, ok := alice.ch.CreateAddHTLC(10_000_000, sha256.Sum256(preimages[i][:]),
			500_000, onion)
		require.True(t, ok)
		htlcIndexes[i] = idx
	}
	bus.drain()

	require.Len(t, bob.host.addsRecvd, 3)

	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()
	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()

	for _, idx := range htlcIndexes {
		require.True(t, bob.ch.CreateFulfillHTLC(idx, preimages[idx]))
	}
	bus.drain()

	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()
	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()

	require.Len(t, alice.host.fulfillsRecvd, 3)
}

func TestChannelUpdateFee(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	require.True(t, alice.ch.CreateUpdateFee(15000))
	bus.drain()

	require.True(t, alice.ch.CreateCommitSig())
	bus.drain()
	require.True(t, bob.ch.CreateCommitSig())
	bus.drain()

	require.Equal(t, 1, alice.host.htlcChangedCnt)
	require.Equal(t, 1, bob.host.htlcChangedCnt)
}
