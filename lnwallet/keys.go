package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/lnchannel/chainhelpers"
)

// ComputeCommitmentPoint returns the per-commitment point for a given
// per-commitment secret: simply the secret interpreted as a private key,
// scalar-base-multiplied against the curve generator.
func ComputeCommitmentPoint(secret []byte) *btcec.PublicKey {
	return btcec.PrivKeyFromBytes(secret).PubKey()
}

// deriveCommitmentKeys derives the full set of per-commitment keys used to
// build one party's version of the commitment transaction. isOurCommit
// selects whose to_local/to_remote keys to derive: when true, the delay key
// belongs to the local party and the revocation key is tweaked from the
// remote party's revocation basepoint, and vice versa.
func deriveCommitmentKeys(helper chainhelpers.Helper, commitPoint *btcec.PublicKey,
	isOurCommit bool, localChanCfg, remoteChanCfg *ChannelConfig) (*commitmentKeyRing, error) {

	keyRing := &commitmentKeyRing{
		commitPoint: commitPoint,

		localHtlcKey:  helper.TweakPubKey(localChanCfg.HtlcBasePoint, commitPoint),
		remoteHtlcKey: helper.TweakPubKey(remoteChanCfg.HtlcBasePoint, commitPoint),
	}

	var delayBasePoint, noDelayBasePoint, revocationBasePoint *btcec.PublicKey
	if isOurCommit {
		delayBasePoint = localChanCfg.DelayBasePoint
		noDelayBasePoint = remoteChanCfg.PaymentBasePoint
		revocationBasePoint = remoteChanCfg.RevocationBasePoint
	} else {
		delayBasePoint = remoteChanCfg.DelayBasePoint
		noDelayBasePoint = localChanCfg.PaymentBasePoint
		revocationBasePoint = localChanCfg.RevocationBasePoint
	}

	keyRing.delayKey = helper.TweakPubKey(delayBasePoint, commitPoint)
	keyRing.noDelayKey = helper.TweakPubKey(noDelayBasePoint, commitPoint)

	revocationKey, err := helper.DeriveRevocationPubKey(commitPoint, revocationBasePoint)
	if err != nil {
		return nil, err
	}
	keyRing.revocationKey = revocationKey

	return keyRing, nil
}
