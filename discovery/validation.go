// Package discovery implements the gossip layer: verifying and applying
// channel_announcement, node_announcement, and channel_update messages
// against the bounded node/channel tables in package node.
package discovery

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// verifySig checks that sig is a valid signature over dataHash under pubKey.
func verifySig(sig lnwire.Sig, dataHash []byte, pubKey *btcec.PublicKey) error {
	parsed, err := sig.ToSignature()
	if err != nil {
		return err
	}
	if !parsed.Verify(dataHash, pubKey) {
		return errors.New("discovery: signature verification failed")
	}
	return nil
}

// validateChannelAnn checks that both node signatures and both Bitcoin key
// signatures in a channel_announcement cover the announcement's signed data,
// attesting that each of the four keys it carries consented to pairing the
// channel identity with the funding multisig keys.
func validateChannelAnn(a *lnwire.ChannelAnnouncement) error {
	data, err := a.DataToSign()
	if err != nil {
		return err
	}
	dataHash := chainhash.DoubleHashB(data)

	if err := verifySig(a.BitcoinSig1, dataHash, a.BitcoinKey1); err != nil {
		return errors.Errorf("can't verify first bitcoin signature: %v", err)
	}
	if err := verifySig(a.BitcoinSig2, dataHash, a.BitcoinKey2); err != nil {
		return errors.Errorf("can't verify second bitcoin signature: %v", err)
	}
	if err := verifySig(a.NodeSig1, dataHash, a.NodeID1); err != nil {
		return errors.Errorf("can't verify first node signature: %v", err)
	}
	if err := verifySig(a.NodeSig2, dataHash, a.NodeID2); err != nil {
		return errors.Errorf("can't verify second node signature: %v", err)
	}

	return nil
}

// validateNodeAnn checks that the node_announcement's signature covers the
// announcement under the node's own advertised identity key.
func validateNodeAnn(a *lnwire.NodeAnnouncement) error {
	data, err := a.DataToSign()
	if err != nil {
		return err
	}
	dataHash := chainhash.DoubleHashB(data)

	if err := verifySig(a.Signature, dataHash, a.NodeID); err != nil {
		return errors.Errorf("signature on node announcement is invalid: %v", err)
	}

	return nil
}

// validateChannelUpdateAnn checks that the channel_update's signature was
// produced by the owner of pubKey, one of the two endpoints of the channel
// it describes.
func validateChannelUpdateAnn(pubKey *btcec.PublicKey, a *lnwire.ChannelUpdate) error {
	data, err := a.DataToSign()
	if err != nil {
		return errors.Errorf("unable to reconstruct message: %v", err)
	}
	dataHash := chainhash.DoubleHashB(data)

	if err := verifySig(a.Signature, dataHash, pubKey); err != nil {
		return errors.Errorf("invalid signature for channel update: %v", err)
	}

	return nil
}

// keysSortedConsistently reports whether the two node keys of a channel
// announcement sort consistently with being NodeKey1/NodeKey2 -- NodeKey1
// must be the lexicographically smaller of the two serialized compressed
// public keys.
func keysSortedConsistently(key1, key2 *btcec.PublicKey) bool {
	a := key1.SerializeCompressed()
	b := key2.SerializeCompressed()

	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
