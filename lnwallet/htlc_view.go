package lnwallet

import "github.com/lightningnetwork/lnchannel/lnwire"

// htlcView is the set of HTLC log entries active at a particular point
// within the history of the update logs.
type htlcView struct {
	ourUpdates   []*PaymentDescriptor
	theirUpdates []*PaymentDescriptor
}

// fetchHTLCView returns every candidate HTLC update below the given log
// indexes in each party's update log -- the set of updates a commitment at
// this point in the chain must consider.
func (e *Engine) fetchHTLCView(theirLogIndex, ourLogIndex uint64) *htlcView {
	var ourHTLCs []*PaymentDescriptor
	for el := e.localUpdateLog.Front(); el != nil; el = el.Next() {
		htlc := el.Value.(*PaymentDescriptor)
		if htlc.LogIndex < ourLogIndex {
			ourHTLCs = append(ourHTLCs, htlc)
		}
	}

	var theirHTLCs []*PaymentDescriptor
	for el := e.remoteUpdateLog.Front(); el != nil; el = el.Next() {
		htlc := el.Value.(*PaymentDescriptor)
		if htlc.LogIndex < theirLogIndex {
			theirHTLCs = append(theirHTLCs, htlc)
		}
	}

	return &htlcView{ourUpdates: ourHTLCs, theirUpdates: theirHTLCs}
}

// evaluateHTLCView walks the log entries visible at this height, applying
// settle/fail entries to the running balances first, then adding the
// balance effect of any not-yet-resolved Add entries, and returns the
// filtered view of HTLCs that should actually appear on the commitment
// transaction being built.
func (e *Engine) evaluateHTLCView(view *htlcView, ourBalance,
	theirBalance *lnwire.MilliSatoshi, nextHeight uint64, remoteChain bool) *htlcView {

	newView := &htlcView{}

	skipUs := make(map[uint64]struct{})
	skipThem := make(map[uint64]struct{})

	for _, entry := range view.ourUpdates {
		if entry.EntryType == Add {
			continue
		}

		addEntry := e.remoteUpdateLog.lookupHtlc(entry.ParentIndex)
		if addEntry == nil {
			continue
		}

		skipThem[addEntry.HtlcIndex] = struct{}{}
		processRemoveEntry(entry, ourBalance, theirBalance, nextHeight,
			remoteChain, true)
	}
	for _, entry := range view.theirUpdates {
		if entry.EntryType == Add {
			continue
		}

		addEntry := e.localUpdateLog.lookupHtlc(entry.ParentIndex)
		if addEntry == nil {
			continue
		}

		skipUs[addEntry.HtlcIndex] = struct{}{}
		processRemoveEntry(entry, ourBalance, theirBalance, nextHeight,
			remoteChain, false)
	}

	for _, entry := range view.ourUpdates {
		isAdd := entry.EntryType == Add
		if _, ok := skipUs[entry.HtlcIndex]; !isAdd || ok {
			continue
		}

		processAddEntry(entry, ourBalance, theirBalance, nextHeight,
			remoteChain, false)
		newView.ourUpdates = append(newView.ourUpdates, entry)
	}
	for _, entry := range view.theirUpdates {
		isAdd := entry.EntryType == Add
		if _, ok := skipThem[entry.HtlcIndex]; !isAdd || ok {
			continue
		}

		processAddEntry(entry, ourBalance, theirBalance, nextHeight,
			remoteChain, true)
		newView.theirUpdates = append(newView.theirUpdates, entry)
	}

	return newView
}

// processAddEntry debits the balance affected by a newly-offered HTLC the
// first time it's evaluated for a given chain, and records the height it was
// added at so the evaluation is idempotent on subsequent passes.
func processAddEntry(htlc *PaymentDescriptor, ourBalance, theirBalance *lnwire.MilliSatoshi,
	nextHeight uint64, remoteChain, isIncoming bool) {

	var addHeight *uint64
	if remoteChain {
		addHeight = &htlc.addCommitHeightRemote
	} else {
		addHeight = &htlc.addCommitHeightLocal
	}

	if *addHeight != 0 {
		return
	}

	if isIncoming {
		*theirBalance -= htlc.Amount
	} else {
		*ourBalance -= htlc.Amount
	}

	*addHeight = nextHeight
}

// processRemoveEntry credits the balance affected by a settle/fail entry the
// first time it's evaluated for a given chain.
func processRemoveEntry(htlc *PaymentDescriptor, ourBalance,
	theirBalance *lnwire.MilliSatoshi, nextHeight uint64, remoteChain, isIncoming bool) {

	var removeHeight *uint64
	if remoteChain {
		removeHeight = &htlc.removeCommitHeightRemote
	} else {
		removeHeight = &htlc.removeCommitHeightLocal
	}

	if *removeHeight != 0 {
		return
	}

	switch {
	case isIncoming && htlc.EntryType == Settle:
		*ourBalance += htlc.Amount
	case isIncoming && (htlc.EntryType == Fail || htlc.EntryType == MalformedFail):
		*theirBalance += htlc.Amount
	case !isIncoming && htlc.EntryType == Settle:
		*theirBalance += htlc.Amount
	case !isIncoming && (htlc.EntryType == Fail || htlc.EntryType == MalformedFail):
		*ourBalance += htlc.Amount
	}

	*removeHeight = nextHeight
}
