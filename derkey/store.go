package derkey

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// numBuckets is the number of slots the counterparty secret store holds --
// one per possible trailing-bit run length of a 48-bit index, per the
// invariant that the store never needs more than ceil(log2(2^48))+1 entries
// to reconstruct any previously revealed secret.
const numBuckets = 49

// storeEntry is a single revealed secret held by a Store.
type storeEntry struct {
	secret Secret
	index  uint64
}

// entrySize is the serialized size of one storeEntry: 8 bytes of index
// followed by the 32-byte secret, matching the field order
// elkrem/serdes.go uses for its own (height, index, hash) records.
const entrySize = 8 + SecretSize

// Store holds at most 49 previously revealed per-commitment secrets from a
// counterparty and can reconstruct the secret for any previously revealed
// index from them, per the channel engine's key derivation component.
type Store struct {
	entries [numBuckets]*storeEntry
}

// NewStore returns an empty counterparty secret store.
func NewStore() *Store {
	return &Store{}
}

// comp returns the bit-complement of index within the 48-bit index space.
// The complement turns our "counts down from all-bits-set" index convention
// into the "counts up from all-bits-clear" convention bucket selection is
// naturally expressed in.
func comp(index uint64) uint64 {
	return (^index) & MaxIndex
}

// bucketFor returns the storage bucket for a secret at the given index: the
// number of trailing zero bits of comp(index), clamped to the top bucket.
func bucketFor(index uint64) int {
	v := comp(index)
	if v == 0 {
		return numBuckets - 1
	}

	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	if n > numBuckets-1 {
		n = numBuckets - 1
	}

	return n
}

// Insert records a newly revealed secret for the given index. The insertion
// is rejected if it is inconsistent with any previously stored secret: every
// already-stored (s', i') must be reproducible by deriving the sibling
// secret for i' from the new secret, if the new secret is an ancestor of it.
func (s *Store) Insert(secret Secret, index uint64) error {
	if index > MaxIndex {
		return fmt.Errorf("derkey: index %d exceeds max %d", index,
			uint64(MaxIndex))
	}

	bucket := bucketFor(index)

	for b := 0; b < bucket; b++ {
		e := s.entries[b]
		if e == nil {
			continue
		}

		derived, err := deriveChild(secret, index, e.index)
		if err != nil {
			return fmt.Errorf("derkey: secret at index %d is not "+
				"a valid ancestor of stored index %d: %v",
				index, e.index, err)
		}
		if derived != e.secret {
			return fmt.Errorf("derkey: secret at index %d fails "+
				"consistency check against previously stored "+
				"secret at index %d", index, e.index)
		}
	}

	s.entries[bucket] = &storeEntry{secret: secret, index: index}

	log.Debugf("inserted per-commitment secret at index %d into bucket %d",
		index, bucket)

	return nil
}

// LookupSecret reconstructs the secret for a previously revealed index. It
// returns an error if no stored secret is an ancestor of (or equal to) the
// requested index.
func (s *Store) LookupSecret(index uint64) (Secret, error) {
	if index > MaxIndex {
		return Secret{}, fmt.Errorf("derkey: index %d exceeds max %d",
			index, uint64(MaxIndex))
	}

	for b := numBuckets - 1; b >= 0; b-- {
		e := s.entries[b]
		if e == nil {
			continue
		}
		if e.index == index {
			return e.secret, nil
		}

		if secret, err := deriveChild(e.secret, e.index, index); err == nil {
			return secret, nil
		}
	}

	return Secret{}, fmt.Errorf("derkey: no stored secret can derive "+
		"index %d", index)
}

// NumEntries returns the count of occupied buckets, for diagnostics.
func (s *Store) NumEntries() int {
	n := 0
	for _, e := range s.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// ToBytes serializes the store as a count byte followed by fixed-width
// (index, secret) records for each occupied bucket, in bucket order.
func (s *Store) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	var occupied []*storeEntry
	for _, e := range s.entries {
		if e != nil {
			occupied = append(occupied, e)
		}
	}

	if len(occupied) > numBuckets {
		return nil, fmt.Errorf("derkey: store has %d entries, max %d",
			len(occupied), numBuckets)
	}

	if err := binary.Write(&buf, binary.BigEndian, uint8(len(occupied))); err != nil {
		return nil, err
	}

	for _, e := range occupied {
		if err := binary.Write(&buf, binary.BigEndian, e.index); err != nil {
			return nil, err
		}
		if _, err := buf.Write(e.secret[:]); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// StoreFromBytes deserializes a Store previously produced by ToBytes. Every
// record is re-inserted through Insert so that a tampered or out-of-order
// snapshot is rejected exactly as a live insertion would be.
func StoreFromBytes(b []byte) (*Store, error) {
	s := NewStore()

	if len(b) == 0 {
		return s, nil
	}

	buf := bytes.NewReader(b)

	numEntries, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(numEntries) > numBuckets {
		return nil, fmt.Errorf("derkey: serialized store claims %d "+
			"entries, max %d", numEntries, numBuckets)
	}

	expectedLen := 1 + int(numEntries)*entrySize
	if len(b) != expectedLen {
		return nil, fmt.Errorf("derkey: malformed store, expected "+
			"%d bytes got %d", expectedLen, len(b))
	}

	for i := 0; i < int(numEntries); i++ {
		var index uint64
		if err := binary.Read(buf, binary.BigEndian, &index); err != nil {
			return nil, err
		}

		var secret Secret
		if _, err := buf.Read(secret[:]); err != nil {
			return nil, err
		}

		if err := s.Insert(secret, index); err != nil {
			return nil, err
		}
	}

	return s, nil
}
