package lnwire

import (
	"bytes"
	"crypto/rand"
	"net"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randPubKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func randSig() Sig {
	var b [64]byte
	rand.Read(b[:])
	return NewSigFromRawBytes(b)
}

// roundTrip encodes msg, decodes it into a freshly allocated value of the
// same concrete type, and returns the decoded Message for comparison.
func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()

	var buf bytes.Buffer
	n, err := WriteMessage(&buf, msg, 0)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	out, err := ReadMessage(&buf, 0)
	require.NoError(t, err)
	require.Equal(t, msg.MsgType(), out.MsgType())

	return out
}

func TestPingPongRoundTrip(t *testing.T) {
	p := NewPing(42)
	out := roundTrip(t, p).(*Ping)
	require.Equal(t, p.NumPongBytes, out.NumPongBytes)
	require.Equal(t, p.PaddingBytes, out.PaddingBytes)

	pong := NewPong(1000)
	outPong := roundTrip(t, pong).(*Pong)
	require.Equal(t, pong.PongBytes, outPong.PongBytes)
}

// TestPingBoundary exercises the num_pong_bytes/byteslen boundary through
// the actual codec rather than comparing two constants: 65531 round-trips,
// 65532 must fail to decode for both Ping and Pong.
func TestPingBoundary(t *testing.T) {
	require.Equal(t, uint16(65531), uint16(PongPayloadMax))

	ok := NewPing(PongPayloadMax)
	roundTrip(t, ok)

	tooLarge := NewPing(65532)
	var buf bytes.Buffer
	_, err := WriteMessage(&buf, tooLarge, 0)
	require.NoError(t, err)
	_, err = ReadMessage(&buf, 0)
	require.Error(t, err)

	okPong := NewPong(PongPayloadMax)
	roundTrip(t, okPong)

	tooLargePong := NewPong(65532)
	buf.Reset()
	_, err = WriteMessage(&buf, tooLargePong, 0)
	require.NoError(t, err)
	_, err = ReadMessage(&buf, 0)
	require.Error(t, err)
}

// TestPingPongRejectsNonZeroPadding checks that a ping/pong whose ignored
// padding region contains a non-zero byte fails to decode, per the
// ground-truth reference's "contain not ZERO" check.
func TestPingPongRejectsNonZeroPadding(t *testing.T) {
	ping := &Ping{NumPongBytes: 10, PaddingBytes: []byte{0, 0, 1, 0}}
	var buf bytes.Buffer
	_, err := WriteMessage(&buf, ping, 0)
	require.NoError(t, err)
	_, err = ReadMessage(&buf, 0)
	require.Error(t, err)

	pong := &Pong{PongBytes: []byte{0, 1, 0, 0}}
	buf.Reset()
	_, err = WriteMessage(&buf, pong, 0)
	require.NoError(t, err)
	_, err = ReadMessage(&buf, 0)
	require.Error(t, err)
}

func TestErrorRoundTrip(t *testing.T) {
	e := &Error{
		ChanID: ChannelID{1, 2, 3},
		Data:   []byte("synchronization error"),
	}
	out := roundTrip(t, e).(*Error)
	require.Equal(t, e.ChanID, out.ChanID)
	require.Equal(t, e.Data, out.Data)
}

func TestInitRoundTrip(t *testing.T) {
	i := &Init{
		GlobalFeatures: FeatureVector{0x01},
		LocalFeatures:  FeatureVector{0x0a, 0x00},
	}
	out := roundTrip(t, i).(*Init)
	require.Equal(t, i.GlobalFeatures, out.GlobalFeatures)
	require.Equal(t, i.LocalFeatures, out.LocalFeatures)
}

func TestOpenChannelRoundTrip(t *testing.T) {
	msg := &OpenChannel{
		FundingAmount:        1_000_000_000,
		PushAmount:           100_000_000,
		DustLimit:            354_000,
		MaxValueInFlight:     1_000_000_000,
		ChannelReserve:       10_000_000,
		HTLCMinimum:          1000,
		FeePerKW:             253,
		CSVDelay:             144,
		MaxAcceptedHTLCs:     30,
		FundingKey:           randPubKey(t),
		RevocationPoint:      randPubKey(t),
		PaymentPoint:         randPubKey(t),
		DelayedPaymentPoint:  randPubKey(t),
		FirstCommitmentPoint: randPubKey(t),
	}
	rand.Read(msg.ChainHash[:])
	rand.Read(msg.TempChanID[:])

	out := roundTrip(t, msg).(*OpenChannel)
	require.Equal(t, msg.FundingAmount, out.FundingAmount)
	require.Equal(t, msg.CSVDelay, out.CSVDelay)
	require.True(t, msg.FundingKey.IsEqual(out.FundingKey))
	require.True(t, msg.FirstCommitmentPoint.IsEqual(out.FirstCommitmentPoint))
}

func TestFundingLockedRoundTrip(t *testing.T) {
	var cid ChannelID
	rand.Read(cid[:])

	msg := NewFundingLocked(cid, randPubKey(t))
	out := roundTrip(t, msg).(*FundingLocked)
	require.Equal(t, msg.ChannelID, out.ChannelID)
	require.True(t, msg.NextPerCommitmentPoint.IsEqual(out.NextPerCommitmentPoint))
}

func TestUpdateAddHTLCRoundTrip(t *testing.T) {
	msg := &UpdateAddHTLC{
		ID:     7,
		Amount: 50_000_000,
		Expiry: 500_010,
	}
	rand.Read(msg.ChanID[:])
	rand.Read(msg.PaymentHash[:])
	rand.Read(msg.OnionBlob[:])

	out := roundTrip(t, msg).(*UpdateAddHTLC)
	require.Equal(t, msg.ID, out.ID)
	require.Equal(t, msg.Amount, out.Amount)
	require.Equal(t, msg.PaymentHash, out.PaymentHash)
	require.Equal(t, msg.OnionBlob, out.OnionBlob)
}

func TestUpdateFulfillHTLCRoundTrip(t *testing.T) {
	var cid ChannelID
	rand.Read(cid[:])
	var preimage [32]byte
	rand.Read(preimage[:])

	msg := NewUpdateFufillHTLC(cid, 3, preimage)
	out := roundTrip(t, msg).(*UpdateFufillHTLC)
	require.Equal(t, msg.ID, out.ID)
	require.Equal(t, msg.PaymentPreimage, out.PaymentPreimage)
}

func TestCommitSigRoundTrip(t *testing.T) {
	msg := &CommitSig{
		CommitSig: randSig(),
		HTLCSigs:  []Sig{randSig(), randSig(), randSig()},
	}
	rand.Read(msg.ChanID[:])

	out := roundTrip(t, msg).(*CommitSig)
	require.Equal(t, msg.CommitSig, out.CommitSig)
	require.Equal(t, msg.HTLCSigs, out.HTLCSigs)
}

func TestRevokeAndAckRoundTrip(t *testing.T) {
	msg := &RevokeAndAck{
		NextPerCommitPoint: randPubKey(t),
	}
	rand.Read(msg.ChanID[:])
	rand.Read(msg.Revocation[:])

	out := roundTrip(t, msg).(*RevokeAndAck)
	require.Equal(t, msg.Revocation, out.Revocation)
	require.True(t, msg.NextPerCommitPoint.IsEqual(out.NextPerCommitPoint))
}

func TestShutdownRoundTrip(t *testing.T) {
	msg := &Shutdown{
		ScriptPubKey: []byte{0x00, 0x14, 0x01, 0x02, 0x03, 0x04},
	}
	rand.Read(msg.ChanID[:])

	out := roundTrip(t, msg).(*Shutdown)
	require.Equal(t, msg.ScriptPubKey, out.ScriptPubKey)
}

func TestClosingSignedRoundTrip(t *testing.T) {
	msg := &ClosingSigned{
		FeeSatoshis: 1000,
		Signature:   randSig(),
	}
	rand.Read(msg.ChanID[:])

	out := roundTrip(t, msg).(*ClosingSigned)
	require.Equal(t, msg.FeeSatoshis, out.FeeSatoshis)
	require.Equal(t, msg.Signature, out.Signature)
}

func TestNodeAnnouncementRoundTrip(t *testing.T) {
	alias, err := NewAlias("roundtrip-node")
	require.NoError(t, err)

	msg := &NodeAnnouncement{
		Signature: randSig(),
		Features:  FeatureVector{0x00, 0x01},
		Timestamp: 1_600_000_000,
		NodeID:    randPubKey(t),
		RGBColor:  RGB{red: 10, green: 20, blue: 30},
		Alias:     alias,
		Addresses: []net.Addr{
			&net.TCPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 9735},
		},
	}

	out := roundTrip(t, msg).(*NodeAnnouncement)
	require.Equal(t, msg.Features, out.Features)
	require.Equal(t, msg.Timestamp, out.Timestamp)
	require.True(t, msg.NodeID.IsEqual(out.NodeID))
	require.Equal(t, msg.Alias.String(), out.Alias.String())
	require.Len(t, out.Addresses, 1)
}

func TestChannelUpdateRoundTrip(t *testing.T) {
	msg := &ChannelUpdate{
		Signature:       randSig(),
		ShortChannelID:  NewShortChanIDFromInt(123456789),
		Timestamp:       1_600_000_001,
		Flags:           ChanUpdateDirection,
		TimeLockDelta:   144,
		HTLCMinimumMsat: 1000,
		BaseFee:         1000,
		FeeRate:         1,
	}
	rand.Read(msg.ChainHash[:])

	out := roundTrip(t, msg).(*ChannelUpdate)
	require.Equal(t, msg.ShortChannelID, out.ShortChannelID)
	require.Equal(t, msg.Flags, out.Flags)
	require.Equal(t, msg.BaseFee, out.BaseFee)
}

func TestShortChannelIDPacking(t *testing.T) {
	sid := ShortChannelID{BlockHeight: 500000, TxIndex: 12, TxPosition: 3}
	packed := sid.ToUint64()
	require.Equal(t, sid, NewShortChanIDFromInt(packed))
}

func TestUnknownMessageType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff})

	_, err := ReadMessage(&buf, 0)
	require.Error(t, err)
}
