package channel

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningnetwork/lnchannel/lnwallet"
	"github.com/lightningnetwork/lnchannel/lnwire"
)

// DefaultMinDepth is the min_depth this side requires of the funding
// transaction before proceeding to funding_locked, absent any host-supplied
// override.
const DefaultMinDepth = 6

// randomChannelID draws a fresh temporary channel id for a new outbound
// channel proposal.
func randomChannelID() (lnwire.ChannelID, error) {
	var id lnwire.ChannelID
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// CreateInit builds and sends this side's init message. Feature negotiation
// itself is the host's concern -- the channel only tracks that both sides'
// init messages have now been seen.
func (c *Channel) CreateInit(global, local lnwire.FeatureVector) bool {
	if c.state != StateNone {
		return c.fail(fmt.Errorf("create_init in state %v", c.state))
	}

	msg := &lnwire.Init{GlobalFeatures: global, LocalFeatures: local}
	if !c.sendWire(msg) {
		return false
	}

	c.sentInit = true
	if c.recvInit {
		c.setState(StateInitExchanged)
	}
	return true
}

// handleInit processes a received init message.
func (c *Channel) handleInit(msg *lnwire.Init) bool {
	if c.state != StateNone {
		return c.fail(fmt.Errorf("unexpected init in state %v", c.state))
	}

	c.recvInit = true
	c.h.InitRecv(msg)

	if c.sentInit {
		c.setState(StateInitExchanged)
	}
	return true
}

// obscuringBasepoints returns the (opener, acceptor) payment basepoint pair
// in the canonical order BOLT3's commitment-number obscuring mask needs,
// regardless of which side of the channel this instance plays.
func (c *Channel) obscuringBasepoints() (opener, acceptor *btcec.PublicKey) {
	if c.isInitiator {
		return c.localChanCfg.PaymentBasePoint, c.remoteChanCfg.PaymentBasePoint
	}
	return c.remoteChanCfg.PaymentBasePoint, c.localChanCfg.PaymentBasePoint
}

// initialBalances returns each side's balance for the very first (height 0)
// commitment transactions, from this instance's own point of view: the
// channel's capacity minus the pushed amount minus the commitment fee
// (always paid by the initiator, never by whichever side's commitment is
// being built) on the initiator's side, and the pushed amount on the other.
func (c *Channel) initialBalances() (ourBalance, theirBalance btcutil.Amount) {
	fee := lnwallet.InitialCommitFee(c.feePerKw)
	pushed := c.pushAmt.ToSatoshis()

	if c.isInitiator {
		return c.capacity - pushed - fee, pushed
	}
	return pushed, c.capacity - pushed - fee
}

// CreateOpenChannel builds and sends open_channel, proposing a new channel
// of the given capacity to the remote party. SetEstablishParams,
// SetRevocationSeed, and SetFundingInfo must all have been called first.
func (c *Channel) CreateOpenChannel(capacity btcutil.Amount,
	pushAmt lnwire.MilliSatoshi, feePerKw uint32) bool {

	if !c.isInitiator {
		return c.fail(fmt.Errorf("only the initiator may send open_channel"))
	}
	if c.state != StateInitExchanged {
		return c.fail(fmt.Errorf("create_open_channel in state %v", c.state))
	}
	if c.localChanCfg == nil || c.localFirstPoint == nil {
		return c.fail(fmt.Errorf("channel parameters not established"))
	}
	if !c.fundingInfoSet {
		return c.fail(fmt.Errorf("funding info not set"))
	}

	tempID, err := randomChannelID()
	if err != nil {
		return c.fail(err)
	}
	c.tempChanID = tempID
	c.capacity = capacity
	c.pushAmt = pushAmt
	c.feePerKw = btcutil.Amount(feePerKw)
	c.localChanCfg.HtlcBasePoint = c.localChanCfg.PaymentBasePoint

	msg := &lnwire.OpenChannel{
		ChainHash:            c.chainHash,
		TempChanID:           tempID,
		FundingAmount:        lnwire.NewMSatFromSatoshis(c.capacity),
		PushAmount:           pushAmt,
		DustLimit:            lnwire.NewMSatFromSatoshis(c.localChanCfg.DustLimit),
		MaxValueInFlight:     c.localChanCfg.MaxPendingAmount,
		ChannelReserve:       lnwire.NewMSatFromSatoshis(c.ourChanReserveDemand),
		HTLCMinimum:          c.localChanCfg.MinHTLC,
		FeePerKW:             feePerKw,
		CSVDelay:             c.ourCsvDelayDemand,
		MaxAcceptedHTLCs:     c.localChanCfg.MaxAcceptedHtlcs,
		FundingKey:           c.localChanCfg.MultiSigKey,
		RevocationPoint:      c.localChanCfg.RevocationBasePoint,
		PaymentPoint:         c.localChanCfg.PaymentBasePoint,
		DelayedPaymentPoint:  c.localChanCfg.DelayBasePoint,
		FirstCommitmentPoint: c.localFirstPoint,
	}

	c.openMsg = msg
	c.setState(StateOpened)

	return c.sendWire(msg)
}

// handleOpenChannel processes a received open_channel as the responder,
// and immediately replies with accept_channel -- there is no policy
// decision point here beyond the parameters SetEstablishParams already
// installed, so the channel does not suspend waiting on the host.
func (c *Channel) handleOpenChannel(msg *lnwire.OpenChannel) bool {
	if c.isInitiator {
		return c.fail(fmt.Errorf("initiator received open_channel"))
	}
	if c.state != StateInitExchanged {
		return c.fail(fmt.Errorf("open_channel in state %v", c.state))
	}
	if c.localChanCfg == nil || c.localFirstPoint == nil {
		return c.fail(fmt.Errorf("channel parameters not established"))
	}
	if !bytes.Equal(msg.ChainHash[:], c.chainHash[:]) {
		return c.fail(fmt.Errorf("open_channel chain_hash mismatch"))
	}

	c.openMsg = msg
	c.tempChanID = msg.TempChanID
	c.capacity = msg.FundingAmount.ToSatoshis()
	c.pushAmt = msg.PushAmount
	c.feePerKw = btcutil.Amount(msg.FeePerKW)
	c.remoteFirstPoint = msg.FirstCommitmentPoint

	c.remoteChanCfg = &lnwallet.ChannelConfig{
		DustLimit:           msg.DustLimit.ToSatoshis(),
		MaxPendingAmount:    msg.MaxValueInFlight,
		MinHTLC:             msg.HTLCMinimum,
		MaxAcceptedHtlcs:    msg.MaxAcceptedHTLCs,
		CsvDelay:            c.ourCsvDelayDemand,
		ChanReserve:         c.ourChanReserveDemand,
		MultiSigKey:         msg.FundingKey,
		RevocationBasePoint: msg.RevocationPoint,
		PaymentBasePoint:    msg.PaymentPoint,
		DelayBasePoint:      msg.DelayedPaymentPoint,
		HtlcBasePoint:       msg.PaymentPoint,
	}
	c.localChanCfg.CsvDelay = msg.CSVDelay
	c.localChanCfg.ChanReserve = msg.ChannelReserve.ToSatoshis()
	c.localChanCfg.HtlcBasePoint = c.localChanCfg.PaymentBasePoint

	info, err := c.helper.FundingScript(c.localChanCfg.MultiSigKey, msg.FundingKey,
		int64(c.capacity))
	if err != nil {
		return c.fail(fmt.Errorf("building funding script: %w", err))
	}
	c.fundingWitnessScript = info.WitnessScript
	c.fundingPkScript = info.PkScript

	c.setState(StateOpened)

	accept := &lnwire.AcceptChannel{
		TempChanID:           c.tempChanID,
		DustLimit:            lnwire.NewMSatFromSatoshis(c.localChanCfg.DustLimit),
		MaxValueInFlight:     c.localChanCfg.MaxPendingAmount,
		ChannelReserve:       lnwire.NewMSatFromSatoshis(c.ourChanReserveDemand),
		HTLCMinimum:          c.localChanCfg.MinHTLC,
		MinAcceptDepth:       DefaultMinDepth,
		CSVDelay:             c.ourCsvDelayDemand,
		MaxAcceptedHTLCs:     c.localChanCfg.MaxAcceptedHtlcs,
		FundingKey:           c.localChanCfg.MultiSigKey,
		RevocationPoint:      c.localChanCfg.RevocationBasePoint,
		PaymentPoint:         c.localChanCfg.PaymentBasePoint,
		DelayedPaymentPoint:  c.localChanCfg.DelayBasePoint,
		FirstCommitmentPoint: c.localFirstPoint,
	}
	c.acceptMsg = accept
	c.setState(StateAccepted)

	return c.sendWire(accept)
}

// handleAcceptChannel processes a received accept_channel as the
// initiator. Once the remote party's parameters are recorded, it asks the
// host for the funding private key if it hasn't already been supplied, and
// proceeds straight to building and sending funding_created -- the funding
// outpoint itself must already be installed via SetFundingInfo, since
// nothing in the callback enum exists to request it.
func (c *Channel) handleAcceptChannel(msg *lnwire.AcceptChannel) bool {
	if !c.isInitiator {
		return c.fail(fmt.Errorf("responder received accept_channel"))
	}
	if c.state != StateOpened {
		return c.fail(fmt.Errorf("accept_channel in state %v", c.state))
	}
	if msg.TempChanID != c.tempChanID {
		return c.fail(fmt.Errorf("accept_channel temp_chan_id mismatch"))
	}

	c.acceptMsg = msg
	c.remoteFirstPoint = msg.FirstCommitmentPoint

	c.remoteChanCfg = &lnwallet.ChannelConfig{
		DustLimit:           msg.DustLimit.ToSatoshis(),
		MaxPendingAmount:    msg.MaxValueInFlight,
		MinHTLC:             msg.HTLCMinimum,
		MaxAcceptedHtlcs:    msg.MaxAcceptedHTLCs,
		CsvDelay:            c.ourCsvDelayDemand,
		ChanReserve:         c.ourChanReserveDemand,
		MultiSigKey:         msg.FundingKey,
		RevocationBasePoint: msg.RevocationPoint,
		PaymentBasePoint:    msg.PaymentPoint,
		DelayBasePoint:      msg.DelayedPaymentPoint,
		HtlcBasePoint:       msg.PaymentPoint,
	}
	c.localChanCfg.CsvDelay = msg.CSVDelay
	c.localChanCfg.ChanReserve = msg.ChannelReserve.ToSatoshis()
	c.localChanCfg.HtlcBasePoint = c.localChanCfg.PaymentBasePoint

	info, err := c.helper.FundingScript(c.localChanCfg.MultiSigKey, msg.FundingKey,
		int64(c.capacity))
	if err != nil {
		return c.fail(fmt.Errorf("building funding script: %w", err))
	}
	c.fundingWitnessScript = info.WitnessScript
	c.fundingPkScript = info.PkScript

	c.setState(StateAccepted)

	if c.fundingPriv == nil {
		c.h.FundingWIFReq()
	}
	if c.fundingPriv == nil {
		return c.fail(fmt.Errorf("host did not supply the funding private key"))
	}

	return c.createFundingCreated()
}
