package brontide

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func mustKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("unable to generate key: %v", err)
	}
	return priv
}

// completeHandshake runs the three-act exchange between a freshly
// constructed initiator and responder, returning a transport Machine for
// each side.
func completeHandshake(t *testing.T) (*Machine, *Machine) {
	t.Helper()

	respStatic := mustKey(t)
	initStatic := mustKey(t)

	initiator := NewInitiator(initStatic, respStatic.PubKey())
	responder := NewResponder(respStatic)

	act1, err := initiator.GenActOne()
	if err != nil {
		t.Fatalf("act one: %v", err)
	}
	if err := responder.RecvActOne(act1); err != nil {
		t.Fatalf("recv act one: %v", err)
	}

	act2, err := responder.GenActTwo()
	if err != nil {
		t.Fatalf("act two: %v", err)
	}
	if err := initiator.RecvActTwo(act2); err != nil {
		t.Fatalf("recv act two: %v", err)
	}

	act3, err := initiator.GenActThree()
	if err != nil {
		t.Fatalf("act three: %v", err)
	}
	if err := responder.RecvActThree(act3); err != nil {
		t.Fatalf("recv act three: %v", err)
	}

	if !responder.RemoteStatic().IsEqual(initStatic.PubKey()) {
		t.Fatalf("responder learned wrong initiator static key")
	}

	initSend, initRecv := initiator.Split()
	respSend, respRecv := responder.Split()

	if initSend != respRecv || initRecv != respSend {
		t.Fatalf("split keys did not cross-agree between initiator and responder")
	}

	initMachine, err := NewMachine(initSend, initRecv)
	if err != nil {
		t.Fatalf("new initiator machine: %v", err)
	}
	respMachine, err := NewMachine(respSend, respRecv)
	if err != nil {
		t.Fatalf("new responder machine: %v", err)
	}

	return initMachine, respMachine
}

func TestHandshakeActSizes(t *testing.T) {
	respStatic := mustKey(t)
	initStatic := mustKey(t)

	initiator := NewInitiator(initStatic, respStatic.PubKey())
	responder := NewResponder(respStatic)

	act1, err := initiator.GenActOne()
	if err != nil {
		t.Fatalf("act one: %v", err)
	}
	if len(act1) != 50 {
		t.Fatalf("act one must be 50 bytes, got %d", len(act1))
	}
	if err := responder.RecvActOne(act1); err != nil {
		t.Fatalf("recv act one: %v", err)
	}

	act2, err := responder.GenActTwo()
	if err != nil {
		t.Fatalf("act two: %v", err)
	}
	if len(act2) != 50 {
		t.Fatalf("act two must be 50 bytes, got %d", len(act2))
	}
	if err := initiator.RecvActTwo(act2); err != nil {
		t.Fatalf("recv act two: %v", err)
	}

	act3, err := initiator.GenActThree()
	if err != nil {
		t.Fatalf("act three: %v", err)
	}
	if len(act3) != 66 {
		t.Fatalf("act three must be 66 bytes, got %d", len(act3))
	}
}

func TestMessageRoundTrip(t *testing.T) {
	initMachine, respMachine := completeHandshake(t)

	msg := []byte("hello from the initiator")

	frame, err := initMachine.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write message: %v", err)
	}

	header := frame[:LengthHeaderSize+macLen]
	length, err := respMachine.ReadHeader(header)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}

	body := frame[LengthHeaderSize+macLen:]
	if len(body) != int(length)+macLen {
		t.Fatalf("body length mismatch: got %d, want %d", len(body), length+macLen)
	}

	plaintext, err := respMachine.ReadBody(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	if !bytes.Equal(plaintext, msg) {
		t.Fatalf("round-tripped message mismatch: got %q, want %q", plaintext, msg)
	}
}

func TestMessageRoundTripAcrossRekey(t *testing.T) {
	initMachine, respMachine := completeHandshake(t)

	for i := 0; i < RotationInterval+5; i++ {
		msg := []byte{byte(i), byte(i >> 8)}

		frame, err := initMachine.WriteMessage(msg)
		if err != nil {
			t.Fatalf("frame %d: write message: %v", i, err)
		}

		header := frame[:LengthHeaderSize+macLen]
		length, err := respMachine.ReadHeader(header)
		if err != nil {
			t.Fatalf("frame %d: read header: %v", i, err)
		}

		body := frame[LengthHeaderSize+macLen : LengthHeaderSize+macLen+int(length)+macLen]
		plaintext, err := respMachine.ReadBody(body)
		if err != nil {
			t.Fatalf("frame %d: read body: %v", i, err)
		}

		if !bytes.Equal(plaintext, msg) {
			t.Fatalf("frame %d: mismatch: got %v, want %v", i, plaintext, msg)
		}
	}
}

func TestTamperedFrameFailsMAC(t *testing.T) {
	initMachine, respMachine := completeHandshake(t)

	frame, err := initMachine.WriteMessage([]byte("authenticate me"))
	if err != nil {
		t.Fatalf("write message: %v", err)
	}

	frame[len(frame)-1] ^= 0xFF

	header := frame[:LengthHeaderSize+macLen]
	length, err := respMachine.ReadHeader(header)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}

	body := frame[LengthHeaderSize+macLen:]
	if len(body) != int(length)+macLen {
		t.Fatalf("unexpected body length")
	}

	if _, err := respMachine.ReadBody(body); err == nil {
		t.Fatalf("expected MAC failure on tampered frame")
	}
}
