package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

func TestChannelAnnounceSignaturesExchange(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	var aliceNodeSig, aliceBitcoinSig, bobNodeSig, bobBitcoinSig [64]byte
	aliceNodeSig[0] = 0xaa
	aliceBitcoinSig[0] = 0xab
	bobNodeSig[0] = 0xba
	bobBitcoinSig[0] = 0xbb

	require.True(t, alice.ch.CreateAnnounceSignatures(
		lnwire.NewSigFromRawBytes(aliceNodeSig), lnwire.NewSigFromRawBytes(aliceBitcoinSig)))
	bus.drain()
	require.True(t, bob.ch.CreateAnnounceSignatures(
		lnwire.NewSigFromRawBytes(bobNodeSig), lnwire.NewSigFromRawBytes(bobBitcoinSig)))
	bus.drain()

	require.Len(t, bob.host.annSigsRecvd, 1)
	require.Len(t, alice.host.annSigsRecvd, 1)
}

func TestChannelAnnounceSignaturesBeforeShortChanID(t *testing.T) {
	alice, _ := establishChannel(t, 1_000_000, 0, 12500)

	alice.ch.hasShortChanID = false
	alice.host.tolerateError = true

	var sig [64]byte
	require.False(t, alice.ch.CreateAnnounceSignatures(
		lnwire.NewSigFromRawBytes(sig), lnwire.NewSigFromRawBytes(sig)))
	require.Equal(t, StateClosed, alice.ch.State())
}
