package channel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

func TestChannelPingPong(t *testing.T) {
	alice, bob := establishChannel(t, 1_000_000, 0, 12500)
	bus := alice.host.bus

	require.True(t, alice.ch.CreatePing(16))
	bus.drain()

	require.Equal(t, 0, alice.ch.numUnansweredPings)
}

func TestChannelUnansweredPingsNotTerminal(t *testing.T) {
	alice, _ := establishChannel(t, 1_000_000, 0, 12500)

	// Ping the peer repeatedly without ever delivering a pong back --
	// CreatePing counts the outstanding pings and only logs a warning
	// once the threshold is reached, so the channel stays open.
	for i := 0; i < MaxUnansweredPings; i++ {
		require.True(t, alice.ch.CreatePing(16))
	}

	require.True(t, alice.ch.CreatePing(16))
	require.Equal(t, MaxUnansweredPings+1, alice.ch.numUnansweredPings)
	require.Equal(t, StateNormal, alice.ch.State())
}

// TestChannelRecvRejectsOversizedPing exercises a ping frame with
// num_pong_bytes=65532: decoding must fail outright, so Recv reports
// failure and the channel force-closes rather than replying with a pong.
func TestChannelRecvRejectsOversizedPing(t *testing.T) {
	_, bob := establishChannel(t, 1_000_000, 0, 12500)
	bob.host.tolerateError = true

	var buf bytes.Buffer
	_, err := lnwire.WriteMessage(&buf, lnwire.NewPing(65532), 0)
	require.NoError(t, err)

	require.False(t, bob.ch.Recv(buf.Bytes()))
	require.Equal(t, StateClosed, bob.ch.State())
}
