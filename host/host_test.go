package host

import (
	"testing"

	"github.com/lightningnetwork/lnchannel/lnwire"
)

// recordingHost is a minimal Host used to confirm the interface is
// satisfiable and that a caller can observe which callback fired.
type recordingHost struct {
	calls []string
}

func (r *recordingHost) Error(err error)                                    { r.calls = append(r.calls, "Error") }
func (r *recordingHost) InitRecv(msg *lnwire.Init)                          { r.calls = append(r.calls, "InitRecv") }
func (r *recordingHost) FundingWIFReq()                                     { r.calls = append(r.calls, "FundingWIFReq") }
func (r *recordingHost) FundingTxWait()                                     { r.calls = append(r.calls, "FundingTxWait") }
func (r *recordingHost) Established()                                      { r.calls = append(r.calls, "Established") }
func (r *recordingHost) NodeAnnoRecv(ann *lnwire.NodeAnnouncement)          { r.calls = append(r.calls, "NodeAnnoRecv") }
func (r *recordingHost) AnnoSignsRecv(ann *lnwire.AnnounceSignatures)       { r.calls = append(r.calls, "AnnoSignsRecv") }
func (r *recordingHost) AddHTLCRecvPrev(htlc *lnwire.UpdateAddHTLC)         { r.calls = append(r.calls, "AddHTLCRecvPrev") }
func (r *recordingHost) AddHTLCRecv(htlc *lnwire.UpdateAddHTLC)            { r.calls = append(r.calls, "AddHTLCRecv") }
func (r *recordingHost) FulfillHTLCRecv(htlc *lnwire.UpdateFufillHTLC)      { r.calls = append(r.calls, "FulfillHTLCRecv") }
func (r *recordingHost) HTLCChanged()                                       { r.calls = append(r.calls, "HTLCChanged") }
func (r *recordingHost) Closed()                                            { r.calls = append(r.calls, "Closed") }
func (r *recordingHost) SendReq(rawMsg []byte)                              { r.calls = append(r.calls, "SendReq") }
func (r *recordingHost) CommitSigRecv(msg *lnwire.CommitSig)                { r.calls = append(r.calls, "CommitSigRecv") }

func TestRecordingHostSatisfiesHost(t *testing.T) {
	var h Host = &recordingHost{}

	h.Established()
	h.SendReq([]byte{0x00, 0x10})
	h.Closed()

	rh := h.(*recordingHost)
	want := []string{"Established", "SendReq", "Closed"}
	if len(rh.calls) != len(want) {
		t.Fatalf("got %v calls, want %v", rh.calls, want)
	}
	for i, call := range want {
		if rh.calls[i] != call {
			t.Fatalf("call %d: got %s, want %s", i, rh.calls[i], call)
		}
	}
}
