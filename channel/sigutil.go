package channel

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// sigHashAllByte is the SIGHASH_ALL sighash-type byte chainhelpers.Helper
// appends to every commitment signature it produces, mirroring the raw
// signature format threaded through lnwallet.Engine (see its own commitSig
// handling in ReceiveNewCommitment).
const sigHashAllByte = 0x01

// wireSig converts a chainhelpers.Helper-produced signature -- DER-encoded,
// with a trailing sighash-type byte -- into the fixed 64-byte raw encoding
// the wire protocol uses for every signature field.
func wireSig(raw []byte) (lnwire.Sig, error) {
	if len(raw) == 0 {
		return lnwire.Sig{}, fmt.Errorf("empty signature")
	}

	sig, err := ecdsa.ParseDERSignature(raw[:len(raw)-1])
	if err != nil {
		return lnwire.Sig{}, err
	}

	return lnwire.NewSigFromSignature(sig)
}

// helperSig converts a wire Sig back into the DER-plus-sighash-byte format
// chainhelpers.Helper and lnwallet.Engine expect.
func helperSig(sig lnwire.Sig) ([]byte, error) {
	parsed, err := sig.ToSignature()
	if err != nil {
		return nil, err
	}

	return append(parsed.Serialize(), sigHashAllByte), nil
}
