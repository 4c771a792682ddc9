package heymac

import (
	"testing"
	"time"

	"github.com/dwhall/lnk-heymac/phy"
)

func buildBeaconFrame(t *testing.T, src LinkAddress, ngbrs []LinkAddress) []byte {
	t.Helper()
	bcn, err := NewCmdCsmaBeacon(Fields{
		FldCaps:   uint16(0),
		FldStatus: uint16(0),
		FldNgbrs:  ngbrs,
	})
	if err != nil {
		t.Fatalf("NewCmdCsmaBeacon: %v", err)
	}
	payload, err := bcn.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary cmd: %v", err)
	}
	f := NewFrame(PidIdentHeymac|PidTypeCsma, FctlLong|FctlHasSrc)
	if err := f.SetField(FldSAddr, append([]byte(nil), src[:]...)); err != nil {
		t.Fatalf("SetField SADDR: %v", err)
	}
	if err := f.SetField(FldPayld, payload); err != nil {
		t.Fatalf("SetField PAYLD: %v", err)
	}
	buf, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary frame: %v", err)
	}
	return buf
}

func newTestLnk(t *testing.T) (*Lnk, *phy.FakePhy) {
	t.Helper()
	self := mkAddr("selfnode")
	fake := phy.NewFakePhy()
	l, err := NewLnk(self, NetIdentifier(1), 1, fake, nil, nil)
	if err != nil {
		t.Fatalf("NewLnk: %v", err)
	}
	l.machine.Dispatch(Event{Signal: SigEntry})
	t.Cleanup(func() { l.bcnTimer.Disarm(); l.updtTimer.Disarm() })
	return l, fake
}

func TestLnkStartsLurking(t *testing.T) {
	l, _ := newTestLnk(t)
	if l.machine.Current().Name() != "Lurking" {
		t.Fatalf("initial state = %s, want Lurking", l.machine.Current().Name())
	}
}

func TestLnkStaysLurkingWhileHearingNeighbors(t *testing.T) {
	l, _ := newTestLnk(t)
	peer := mkAddr("peernode")
	buf := buildBeaconFrame(t, peer, nil)

	l.machine.Dispatch(Event{Signal: SigRxFromPhy, Value: phyRxPayload{data: buf}})

	if l.machine.Current().Name() != "Lurking" {
		t.Fatalf("state after hearing a neighbor while lurking = %s, want Lurking (lurking only leaves on the beacon timeout)", l.machine.Current().Name())
	}
	if l.NeighborCount() != 1 {
		t.Fatalf("NeighborCount() = %d, want 1", l.NeighborCount())
	}
}

func TestLnkPromotesToLinkingWhenHeard(t *testing.T) {
	l, fake := newTestLnk(t)
	peer := mkAddr("peernode")

	l.machine.Dispatch(Event{Signal: SigBeaconTimeout})
	if l.machine.Current().Name() != "Beaconing" {
		t.Fatalf("state = %s, want Beaconing", l.machine.Current().Name())
	}

	if len(fake.Transmitted()) == 0 {
		t.Fatalf("entering Beaconing should have transmitted a beacon")
	}

	buf2 := buildBeaconFrame(t, peer, []LinkAddress{l.Self})
	l.machine.Dispatch(Event{Signal: SigRxFromPhy, Value: phyRxPayload{data: buf2}})

	if l.machine.Current().Name() != "Linking" {
		t.Fatalf("state after a neighbor advertises hearing us = %s, want Linking", l.machine.Current().Name())
	}
}

func TestLnkDemotesToBeaconingWhenNoLongerHeard(t *testing.T) {
	l, fake := newTestLnk(t)
	peer := mkAddr("peernode")

	l.machine.Dispatch(Event{Signal: SigBeaconTimeout})
	if l.machine.Current().Name() != "Beaconing" {
		t.Fatalf("state = %s, want Beaconing", l.machine.Current().Name())
	}

	buf := buildBeaconFrame(t, peer, []LinkAddress{l.Self})
	l.machine.Dispatch(Event{Signal: SigRxFromPhy, Value: phyRxPayload{data: buf}})
	if l.machine.Current().Name() != "Linking" {
		t.Fatalf("state after a neighbor advertises hearing us = %s, want Linking", l.machine.Current().Name())
	}
	sentBeforeUpdate := len(fake.Transmitted())
	if sentBeforeUpdate == 0 {
		t.Fatalf("Beaconing should have transmitted at least one beacon before promotion")
	}

	peerEntry, ok := l.ngbrs.ngbrs[peer]
	if !ok {
		t.Fatalf("neighbor table has no entry for %v", peer)
	}
	peerEntry.LastHeard = time.Now().Add(-2 * l.ngbrs.staleInterval)

	l.machine.Dispatch(Event{Signal: SigLinkUpdateTimeout})
	if l.machine.Current().Name() != "Beaconing" {
		t.Fatalf("state after update tick prunes the only hearing neighbor = %s, want Beaconing", l.machine.Current().Name())
	}

	l.machine.Dispatch(Event{Signal: SigBeaconTimeout})
	if len(fake.Transmitted()) <= sentBeforeUpdate {
		t.Fatalf("Beaconing should still transmit beacons after demotion from Linking")
	}
}

func TestLnkBeaconAdvertisesNoCapsOrNetsByDefault(t *testing.T) {
	l, fake := newTestLnk(t)
	l.machine.Dispatch(Event{Signal: SigBeaconTimeout})

	sent := fake.Transmitted()
	if len(sent) == 0 {
		t.Fatalf("entering Beaconing should have transmitted a beacon")
	}
	frame, err := ParseFrame(sent[0])
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	cmd, err := Parse(frame.Payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bcn, ok := cmd.(*CmdCsmaBeacon)
	if !ok {
		t.Fatalf("beacon payload parsed as %T, want *CmdCsmaBeacon", cmd)
	}
	if bcn.Caps != 0 {
		t.Fatalf("default beacon Caps = %#x, want 0", bcn.Caps)
	}
	if len(bcn.Nets) != 0 {
		t.Fatalf("default beacon Nets = %+v, want empty", bcn.Nets)
	}

	l.Caps = LnkCapContRecv
	l.machine.Dispatch(Event{Signal: SigBeaconTimeout})
	sent = fake.Transmitted()
	frame2, err := ParseFrame(sent[len(sent)-1])
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	cmd2, err := Parse(frame2.Payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bcn2 := cmd2.(*CmdCsmaBeacon)
	if bcn2.Caps != LnkCapContRecv {
		t.Fatalf("beacon Caps after setting l.Caps = %#x, want %#x", bcn2.Caps, LnkCapContRecv)
	}
}

func TestLnkRelaysMultiHopFrame(t *testing.T) {
	l, fake := newTestLnk(t)
	src := mkAddr("farawayn")
	dst := mkAddr("somebody")

	txt, err := NewCmdText(Fields{FldMsg: []byte("relay me")})
	if err != nil {
		t.Fatalf("NewCmdText: %v", err)
	}
	payload, err := txt.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary cmd: %v", err)
	}
	f := NewFrame(PidIdentHeymac|PidTypeCsma, FctlLong)
	if err := f.SetField(FldSAddr, append([]byte(nil), src[:]...)); err != nil {
		t.Fatalf("SetField SADDR: %v", err)
	}
	if err := f.SetField(FldDAddr, append([]byte(nil), dst[:]...)); err != nil {
		t.Fatalf("SetField DADDR: %v", err)
	}
	if err := f.SetField(FldHops, uint8(3)); err != nil {
		t.Fatalf("SetField HOPS: %v", err)
	}
	if err := f.SetField(FldPayld, payload); err != nil {
		t.Fatalf("SetField PAYLD: %v", err)
	}

	l.machine.Dispatch(Event{Signal: SigRxFromPhy, Value: phyRxPayload{data: mustMarshal(t, f)}})

	sent := fake.Transmitted()
	if len(sent) != 1 {
		t.Fatalf("relay should have transmitted exactly one frame, got %d", len(sent))
	}
	relayed, err := ParseFrame(sent[0])
	if err != nil {
		t.Fatalf("ParseFrame(relayed): %v", err)
	}
	if relayed.Hops != 2 {
		t.Fatalf("relayed Hops = %d, want 2", relayed.Hops)
	}
	retx, ok := relayed.GetField(FldTAddr)
	if !ok {
		t.Fatalf("relayed frame carries no retransmitter address")
	}
	if string(retx.([]byte)) != string(l.Self[:]) {
		t.Fatalf("retransmitter = %x, want this node's address", retx)
	}

	// A frame with only one hop left is not relayed further.
	if err := f.SetField(FldHops, uint8(1)); err != nil {
		t.Fatalf("SetField HOPS: %v", err)
	}
	l.machine.Dispatch(Event{Signal: SigRxFromPhy, Value: phyRxPayload{data: mustMarshal(t, f)}})
	if got := len(fake.Transmitted()); got != 1 {
		t.Fatalf("a frame with hop count 1 should not be relayed, got %d transmissions", got)
	}
}

func TestLnkDropsUnparseableFrameWithoutPanicking(t *testing.T) {
	l, _ := newTestLnk(t)
	l.machine.Dispatch(Event{Signal: SigRxFromPhy, Value: phyRxPayload{data: []byte{0x00}}})
	if l.machine.Current().Name() != "Lurking" {
		t.Fatalf("state after garbage frame = %s, want Lurking unchanged", l.machine.Current().Name())
	}
}

func TestLnkAssocDialogEndToEnd(t *testing.T) {
	responder, responderPhy := newTestLnk(t)
	initiator, initiatorPhy := newTestLnk(t)

	doneCh := make(chan DialogOutcome, 1)
	if err := initiator.StartCmdDlg(responder.Self, NetIdentifier(1), func(_ LinkAddress, o DialogOutcome) {
		doneCh <- o
	}); err != nil {
		t.Fatalf("StartCmdDlg: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(initiatorPhy.Transmitted()) > 0 })
	sent := initiatorPhy.Transmitted()
	req := sent[len(sent)-1]

	frame, err := ParseFrame(req)
	if err != nil {
		t.Fatalf("ParseFrame(request): %v", err)
	}
	cmd, err := Parse(frame.Payload)
	if err != nil {
		t.Fatalf("Parse(request cmd): %v", err)
	}
	if _, ok := cmd.(*CmdAssocRequest); !ok {
		t.Fatalf("initiator sent %T, want *CmdAssocRequest", cmd)
	}
	frame.RxMeta = &RxMetadata{}
	responder.onRxdFromPhy(phyRxPayload{data: mustMarshal(t, frame)})

	waitFor(t, time.Second, func() bool { return len(responderPhy.Transmitted()) > 0 })
	sent = responderPhy.Transmitted()
	acceptFrame, err := ParseFrame(sent[len(sent)-1])
	if err != nil {
		t.Fatalf("ParseFrame(accept): %v", err)
	}
	acceptFrame.RxMeta = &RxMetadata{}
	initiator.onRxdFromPhy(phyRxPayload{data: mustMarshal(t, acceptFrame)})

	waitFor(t, time.Second, func() bool { return len(initiatorPhy.Transmitted()) > 1 })
	sent = initiatorPhy.Transmitted()
	confirmFrame, err := ParseFrame(sent[len(sent)-1])
	if err != nil {
		t.Fatalf("ParseFrame(confirm): %v", err)
	}
	confirmFrame.RxMeta = &RxMetadata{}
	responder.onRxdFromPhy(phyRxPayload{data: mustMarshal(t, confirmFrame)})

	select {
	case o := <-doneCh:
		if !o.Success {
			t.Fatalf("initiator outcome = %+v, want success", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("initiator dialog never concluded")
	}
}

func mustMarshal(t *testing.T, f *Frame) []byte {
	t.Helper()
	b, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return b
}
