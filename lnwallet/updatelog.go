package lnwallet

import "container/list"

// commitmentChain is a chain of unrevoked commitments belonging to one
// party. The tail of the chain is the latest fully signed, yet unrevoked,
// commitment; new commitments we create extend the remote party's chain and
// vice versa. The chain is allowed to grow to a bounded length, after which
// the tail must be dropped (by receiving a revocation for it) before new
// commitments can be added.
type commitmentChain struct {
	commitments *list.List

	startingHeight uint64
}

// newCommitmentChain creates a new commitment chain from an initial height.
func newCommitmentChain(initialHeight uint64) *commitmentChain {
	return &commitmentChain{
		commitments:    list.New(),
		startingHeight: initialHeight,
	}
}

// addCommitment extends the chain with a newly proposed commitment.
func (s *commitmentChain) addCommitment(c *commitment) {
	s.commitments.PushBack(c)
}

// advanceTail drops the lowest unrevoked commitment once its revocation has
// been received.
func (s *commitmentChain) advanceTail() {
	s.commitments.Remove(s.commitments.Front())
}

// tip returns the latest commitment added to the chain.
func (s *commitmentChain) tip() *commitment {
	return s.commitments.Back().Value.(*commitment)
}

// tail returns the lowest unrevoked commitment in the chain.
func (s *commitmentChain) tail() *commitment {
	return s.commitments.Front().Value.(*commitment)
}

// hasUnackedCommitment reports whether more than one commitment is
// outstanding: the tail has been ACKed by revoking everything before it, but
// anything past it has not.
func (s *commitmentChain) hasUnackedCommitment() bool {
	return s.commitments.Front() != s.commitments.Back()
}

// updateLog is an append-only log of proposed HTLC updates, the in-memory
// "mempool" a party's changes sit in before they're locked into a signed
// commitment on both sides.
type updateLog struct {
	logIndex    uint64
	htlcCounter uint64

	*list.List

	updateIndex map[uint64]*list.Element
	htlcIndex   map[uint64]*list.Element
}

// newUpdateLog creates a new updateLog instance.
func newUpdateLog(logIndex, htlcCounter uint64) *updateLog {
	return &updateLog{
		List:        list.New(),
		updateIndex: make(map[uint64]*list.Element),
		htlcIndex:   make(map[uint64]*list.Element),
		logIndex:    logIndex,
		htlcCounter: htlcCounter,
	}
}

// restoreHtlc re-adds a prior HTLC without bumping either counter; used when
// rebuilding a log from a previously observed state instead of proposing a
// fresh update.
func (u *updateLog) restoreHtlc(pd *PaymentDescriptor) {
	if _, ok := u.htlcIndex[pd.HtlcIndex]; ok {
		return
	}

	u.htlcIndex[pd.HtlcIndex] = u.PushBack(pd)
}

// appendUpdate appends a new update to the tip of the log.
func (u *updateLog) appendUpdate(pd *PaymentDescriptor) {
	u.updateIndex[u.logIndex] = u.PushBack(pd)
	u.logIndex++
}

// appendHtlc appends a new HTLC offer to the tip of the log.
func (u *updateLog) appendHtlc(pd *PaymentDescriptor) {
	u.htlcIndex[u.htlcCounter] = u.PushBack(pd)
	u.htlcCounter++
	u.logIndex++
}

// lookupHtlc looks up an offered HTLC by its offer index, returning nil if
// not found.
func (u *updateLog) lookupHtlc(i uint64) *PaymentDescriptor {
	htlc, ok := u.htlcIndex[i]
	if !ok {
		return nil
	}

	return htlc.Value.(*PaymentDescriptor)
}

// removeUpdate removes an entry from the log and its update index.
func (u *updateLog) removeUpdate(i uint64) {
	entry := u.updateIndex[i]
	u.Remove(entry)
	delete(u.updateIndex, i)
}

// removeHtlc removes an HTLC offer from the log and its offer index.
func (u *updateLog) removeHtlc(i uint64) {
	entry := u.htlcIndex[i]
	u.Remove(entry)
	delete(u.htlcIndex, i)
}

// compactLogs garbage-collects HTLCs that have been removed from the
// point-of-view of the tail of both chains: once a Settle/Fail entry and its
// parent Add are below both chain tails, neither is needed to reconstruct
// any future state and both can be dropped.
func compactLogs(ourLog, theirLog *updateLog, localChainTail, remoteChainTail uint64) {
	compactLog := func(logA, logB *updateLog) {
		var nextA *list.Element
		for e := logA.Front(); e != nil; e = nextA {
			nextA = e.Next()

			htlc := e.Value.(*PaymentDescriptor)
			if htlc.EntryType == Add {
				continue
			}

			if htlc.removeCommitHeightRemote == 0 ||
				htlc.removeCommitHeightLocal == 0 {
				continue
			}

			if htlc.removeCommitHeightRemote > remoteChainTail ||
				htlc.removeCommitHeightLocal > localChainTail {
				continue
			}

			logA.removeUpdate(htlc.LogIndex)
			logB.removeHtlc(htlc.ParentIndex)
		}
	}

	compactLog(ourLog, theirLog)
	compactLog(theirLog, ourLog)
}
