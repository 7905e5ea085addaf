// Package derkey implements the per-commitment secret ratchet and the
// bounded counterparty secret store described by the channel engine's key
// derivation component.
//
// The scheme produces a sequence of 2^48 per-commitment secrets from a
// single 32-byte seed by a deterministic tree-walk: starting from the seed
// assigned to index 2^48-1, the secret for any index i is derived from a
// parent at some index p > i by flipping, one at a time from the highest bit
// down, every bit position at which p and i differ, hashing the 32-byte
// working value after each flip. Secrets are revealed in order of
// decreasing index, which lets a node holding only O(log 2^48) secrets
// reconstruct the secret for any index it has already revealed -- the
// producer never needs to remember more than 49 intermediate values, and a
// receiving counterparty never needs to store more than that either (see
// Store).
package derkey

import (
	"crypto/sha256"
	"fmt"

	"github.com/kkdai/bstream"
)

// MaxIndex is the largest valid commitment index, 2^48 - 1. Commitment
// numbers are 48 bits wide so that they fit, XOR-obscured, into the 24 bits
// of nLockTime and nSequence's low 24 bits (see the commitment builder).
const MaxIndex = (1 << 48) - 1

// SecretSize is the width in bytes of every per-commitment secret.
const SecretSize = 32

// Secret is a single per-commitment secret value.
type Secret [SecretSize]byte

// deriveChild walks from a secret known at index `fromIndex` down to the
// secret at `toIndex`, where `toIndex` must be reachable from `fromIndex`
// (every bit set in `toIndex` that differs from `fromIndex` must be unset in
// `fromIndex`, i.e. `fromIndex &^ toIndex == fromIndex ^ toIndex`). For each
// bit position from 47 down to 0 at which the two indices differ, the
// corresponding bit of the working value is flipped and the 32-byte value is
// rehashed with SHA-256.
func deriveChild(from Secret, fromIndex, toIndex uint64) (Secret, error) {
	if fromIndex&MaxIndex != fromIndex || toIndex&MaxIndex != toIndex {
		return Secret{}, fmt.Errorf("derkey: index exceeds 48 bits")
	}

	// Every bit that differs between the two indices must be a bit that
	// toIndex has set and fromIndex does not -- otherwise toIndex isn't a
	// descendant of fromIndex in the tree.
	differing := fromIndex ^ toIndex
	if fromIndex&differing != 0 {
		return Secret{}, fmt.Errorf("derkey: index %d is not a "+
			"descendant of %d", toIndex, fromIndex)
	}

	// Walk the 48-bit differing mask from its high bit down to its low
	// bit using a bit reader, rather than reaching into the uint64
	// ourselves bit by bit.
	var diffBytes [6]byte
	diffBytes[0] = byte(differing >> 40)
	diffBytes[1] = byte(differing >> 32)
	diffBytes[2] = byte(differing >> 24)
	diffBytes[3] = byte(differing >> 16)
	diffBytes[4] = byte(differing >> 8)
	diffBytes[5] = byte(differing)

	r := bstream.NewBStreamReader(diffBytes[:])

	working := from
	for b := 47; b >= 0; b-- {
		bit, err := r.ReadBit()
		if err != nil {
			return Secret{}, fmt.Errorf("derkey: reading bit %d: %v", b, err)
		}
		if !bit {
			continue
		}

		// Flip the corresponding bit in the working value, then hash
		// the result to advance one step down the tree.
		byteIdx := SecretSize - 1 - b/8
		bitIdx := uint(b % 8)
		working[byteIdx] ^= 1 << bitIdx

		working = sha256.Sum256(working[:])
	}

	return working, nil
}

// Producer derives the sequence of per-commitment secrets for one side of a
// channel from a single root seed, advancing from index MaxIndex down to
// zero. Only the seed is retained; every secret is derived directly from
// it, since the seed is itself the secret at index MaxIndex and every other
// index descends from it.
type Producer struct {
	seed Secret
}

// NewProducer returns a Producer rooted at the given 32-byte seed.
func NewProducer(seed Secret) *Producer {
	return &Producer{seed: seed}
}

// AtIndex derives the per-commitment secret for the given commitment index.
func (p *Producer) AtIndex(index uint64) (Secret, error) {
	if index > MaxIndex {
		return Secret{}, fmt.Errorf("derkey: index %d exceeds max %d",
			index, uint64(MaxIndex))
	}

	return deriveChild(p.seed, MaxIndex, index)
}
