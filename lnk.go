package heymac

import (
	"time"

	"github.com/dwhall/lnk-heymac/phy"
)

// Timing constants for the LNK CSMA state machine.
const (
	BeaconPeriod     = 32 * time.Second
	LurkDuration     = 2 * BeaconPeriod
	LinkUpdatePeriod = 4 * time.Second
)

// Capability bits advertised in a CsmaBeacon's FLD_CAPS.
const (
	LnkCapSurplusPower uint16 = 0x0001
	LnkCapContRecv     uint16 = 0x0002
	LnkCapCrypto       uint16 = 0x0004
)

// Lnk is the CSMA data link layer state machine: it owns the PHY, the
// neighbor table, and the dialog manager, and walks through Lurking,
// Beaconing, and Linking according to what it hears.
type Lnk struct {
	Self     LinkAddress
	NetID    NetIdentifier
	Priority int
	Caps     uint16

	phy     phy.Phy
	log     Logger
	metrics *Metrics
	ngbrs   *NeighborTable
	dialogs *DialogManager
	machine *Machine

	bcnTimer  *TimerEvent
	updtTimer *TimerEvent

	netAddrCounter NetAddress
	dialogSeq      int
}

// NewLnk builds an Lnk ready to Start. phy must not yet be started; Lnk
// calls StartStack itself once its own machine is running.
func NewLnk(self LinkAddress, netID NetIdentifier, priority int, p phy.Phy, log Logger, metrics *Metrics) (*Lnk, error) {
	if err := ValidatePriority(priority); err != nil {
		return nil, err
	}
	if log == nil {
		log = discardLogger{}
	}
	l := &Lnk{
		Self:     self,
		NetID:    netID,
		Priority: priority,
		phy:      p,
		log:      log,
		metrics:  metrics,
		ngbrs:    NewNeighborTable(self, BeaconPeriod*DefaultStaleFactor, log),
		dialogs:  NewDialogManager(log),
	}
	l.bcnTimer = NewTimerEvent(SigBeaconTimeout)
	l.updtTimer = NewTimerEvent(SigLinkUpdateTimeout)

	top := &lnkTop{l: l}
	lurking := &lnkLurking{top: top}
	top.lurking = lurking
	top.beaconing = &lnkBeaconing{top: top}
	top.linking = &lnkLinking{top: top}

	l.machine = NewMachine("lnk", priority, lurking, log)
	return l, nil
}

// Start begins the LNK machine: it wires the PHY's receive callback, then
// launches the machine goroutine and the PHY itself.
func (l *Lnk) Start() error {
	l.phy.SetDefaultRxCallback(l.PhyRxCallback)
	l.phy.SetDefaultSettings(phy.DefaultSettings)
	go l.machine.Run()
	return l.phy.StartStack(l.Priority)
}

// Stop halts the LNK machine, every active dialog, and the PHY.
func (l *Lnk) Stop() {
	l.dialogs.StopAll()
	l.machine.Stop()
	_ = l.phy.Close()
}

// DialogsActive reports the number of Associate dialogs currently in
// progress, for wiring into a DialogsActive gauge.
func (l *Lnk) DialogsActive() int {
	return l.dialogs.Len()
}

// NeighborCount reports the current neighbor table size.
func (l *Lnk) NeighborCount() int {
	return l.ngbrs.Len()
}

// PhyRxCallback is registered with the PHY as its default receive
// callback; it posts a SigRxFromPhy event carrying the raw bytes and
// metadata for the machine to process on its own goroutine.
func (l *Lnk) PhyRxCallback(rxTime time.Time, rxBytes []byte, rxRssi, rxSnr int8) {
	l.machine.PostFifo(Event{Signal: SigRxFromPhy, Value: phyRxPayload{
		data: rxBytes,
		meta: RxMetadata{RxTime: rxTime, Rssi: rxRssi, Snr: float32(rxSnr)},
	}})
}

type phyRxPayload struct {
	data []byte
	meta RxMetadata
}

// onRxdFromPhy parses and dispatches one PHY receive. A frame that fails
// to parse is dropped outright; a frame whose payload is not a parseable
// command still updates the neighbor table (cmd stays nil) — the sender
// is alive regardless of what it carried.
func (l *Lnk) onRxdFromPhy(payload phyRxPayload) {
	frame, err := ParseFrame(payload.data)
	if err != nil {
		l.log.Infof("lnk: dropping unparseable frame: %v", err)
		if l.metrics != nil {
			l.metrics.CodecErrors.WithLabelValues(errKind(err)).Inc()
		}
		return
	}
	frame.RxMeta = &payload.meta
	if l.metrics != nil {
		l.metrics.FramesRx.Inc()
	}

	var cmd Command
	if len(frame.Payload) > 0 {
		cmd, err = Parse(frame.Payload)
		if err != nil {
			l.log.Infof("lnk: frame with unparseable command: %v", err)
			if l.metrics != nil {
				l.metrics.CodecErrors.WithLabelValues(errKind(err)).Inc()
			}
			cmd = nil
		}
	}

	l.ngbrs.ProcessFrame(frame, cmd)

	if frame.IsMhop() && frame.Hops > 1 {
		l.relay(frame)
	}

	if cmd != nil && frame.IsMeantFor(l.Self) {
		l.processCmd(frame, cmd)
	}
}

func errKind(err error) string {
	if ce, ok := err.(*CodecError); ok {
		return ce.Kind
	}
	return "unknown"
}

// relay retransmits a multi-hop frame with its hop count decremented and
// this node stamped as retransmitter.
func (l *Lnk) relay(frame *Frame) {
	out := *frame
	out.RxMeta = nil
	out.Hops--
	if err := out.SetField(FldTAddr, append([]byte(nil), l.Self[:]...)); err != nil {
		l.log.Debugf("lnk: relay: %v", err)
		return
	}
	buf, err := out.MarshalBinary()
	if err != nil {
		l.log.Debugf("lnk: relay: marshal failed: %v", err)
		return
	}
	if err := l.phy.PostTxAction(phy.TmNow, nil, buf); err != nil {
		l.log.Debugf("lnk: relay: transmit failed: %v", err)
		return
	}
	if l.metrics != nil {
		l.metrics.FramesTx.Inc()
	}
}

// processCmd routes a received Associate command to the dialog manager.
// Beacons need nothing further here: ngbrs.ProcessFrame has already
// recorded them.
func (l *Lnk) processCmd(frame *Frame, cmd Command) {
	sender, ok := frame.GetSender()
	if !ok {
		return
	}
	switch c := cmd.(type) {
	case *CmdCsmaBeacon:
		// already recorded by ngbrs.ProcessFrame above
	case AssocCommand:
		l.processAssocCmd(sender, frame, c)
	}
}

func (l *Lnk) processAssocCmd(sender LinkAddress, frame *Frame, cmd AssocCommand) {
	// Post rather than dispatch: the dialog's own Run goroutine is the
	// sole driver of its state, so a frame arriving here never races a
	// retry timer firing on the dialog's side.
	if slot, ok := l.dialogs.Get(sender); ok {
		slot.Machine.PostFifo(Event{Signal: SigFrame, Value: cmd})
		return
	}
	req, ok := cmd.(*CmdAssocRequest)
	if !ok {
		l.log.Debugf("lnk: %s sent an Associate reply with no dialog in progress", sender)
		return
	}
	l.dialogSeq++
	_, err := l.dialogs.StartResponder(sender, l.Priority+l.dialogSeq, l.sendCmd, req, l.admitAssocRequest, l.onDialogDone)
	if err != nil {
		l.log.Debugf("lnk: could not start responder dialog with %s: %v", sender, err)
	}
}

// admitAssocRequest is the default admission policy: accept any net_id,
// assigning the next sequential net_addr.
func (l *Lnk) admitAssocRequest(peer LinkAddress, req *CmdAssocRequest) (NetAddress, bool) {
	l.netAddrCounter++
	return l.netAddrCounter, true
}

func (l *Lnk) onDialogDone(peer LinkAddress, outcome DialogOutcome) {
	if l.metrics != nil {
		l.metrics.DialogOutcomes.WithLabelValues(outcome.Reason).Inc()
	}
	l.log.Infof("lnk: dialog with %s concluded: success=%v reason=%s", peer, outcome.Success, outcome.Reason)
}

// StartCmdDlg lets the next layer higher initiate an Associate dialog
// with a neighbor; done is invoked with the outcome when it concludes.
func (l *Lnk) StartCmdDlg(peer LinkAddress, netID NetIdentifier, done DialogDoneFunc) error {
	l.dialogSeq++
	_, err := l.dialogs.StartInitiator(peer, l.Priority+l.dialogSeq, l.sendCmd, netID, done)
	return err
}

// sendCmd wraps cmd in a frame addressed to peer and hands it to the PHY,
// the txFunc every dialog machine uses to transmit.
func (l *Lnk) sendCmd(peer LinkAddress, cmd Command) error {
	payload, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}
	frame := NewFrame(PidIdentHeymac|PidTypeCsma, FctlLong|FctlHasSrc|FctlHasDst)
	if err := frame.SetField(FldSAddr, append([]byte(nil), l.Self[:]...)); err != nil {
		return err
	}
	if err := frame.SetField(FldDAddr, append([]byte(nil), peer[:]...)); err != nil {
		return err
	}
	if err := frame.SetField(FldPayld, payload); err != nil {
		return err
	}
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	if err := l.phy.PostTxAction(phy.TmNow, nil, buf); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.FramesTx.Inc()
	}
	return nil
}

// postBcn builds and transmits a CsmaBeacon describing this node's
// current capabilities, status, and neighbor set.
func (l *Lnk) postBcn() {
	ngbrs := l.ngbrs.GetNgbrsLnkAddrs()
	bcn, err := NewCmdCsmaBeacon(Fields{
		FldCaps:   l.Caps,
		FldStatus: uint16(0),
		FldNgbrs:  ngbrs,
	})
	if err != nil {
		l.log.Debugf("lnk: failed to build beacon: %v", err)
		return
	}
	payload, err := bcn.MarshalBinary()
	if err != nil {
		l.log.Debugf("lnk: failed to marshal beacon: %v", err)
		return
	}
	frame := NewFrame(PidIdentHeymac|PidTypeCsma, FctlLong|FctlHasSrc)
	if err := frame.SetField(FldSAddr, append([]byte(nil), l.Self[:]...)); err != nil {
		l.log.Debugf("lnk: failed to address beacon: %v", err)
		return
	}
	if err := frame.SetField(FldPayld, payload); err != nil {
		l.log.Debugf("lnk: failed to attach beacon payload: %v", err)
		return
	}
	buf, err := frame.MarshalBinary()
	if err != nil {
		l.log.Debugf("lnk: failed to marshal beacon frame: %v", err)
		return
	}
	if err := l.phy.PostTxAction(phy.TmNow, nil, buf); err != nil {
		l.log.Debugf("lnk: failed to transmit beacon: %v", err)
		return
	}
	if l.metrics != nil {
		l.metrics.FramesTx.Inc()
	}
}

// lnkTop is the shared ancestor for Lurking, Beaconing, and Linking.
type lnkTop struct {
	l         *Lnk
	lurking   State
	beaconing State
	linking   State
}

func (s *lnkTop) Name() string { return "Top" }
func (s *lnkTop) Parent() State { return nil }
func (s *lnkTop) Handle(m *Machine, evt Event) (State, bool) { return nil, false }

// lnkLurking is the initial state: listen only, no beaconing, until
// LurkDuration elapses.
type lnkLurking struct {
	top *lnkTop
}

func (s *lnkLurking) Name() string { return "Lurking" }
func (s *lnkLurking) Parent() State { return s.top }

func (s *lnkLurking) Handle(m *Machine, evt Event) (State, bool) {
	l := s.top.l
	switch evt.Signal {
	case SigEntry:
		l.bcnTimer.PostIn(m, LurkDuration)
		return nil, true
	case SigExit:
		l.bcnTimer.Disarm()
		return nil, true
	case SigBeaconTimeout:
		return s.top.beaconing, true
	case SigRxFromPhy:
		payload := evt.Value.(phyRxPayload)
		l.onRxdFromPhy(payload)
		return nil, true
	}
	return nil, false
}

// lnkBeaconing periodically posts its own beacon but does not yet run the
// neighbor-maintenance timer; it promotes to Linking once a neighbor is
// confirmed to hear this node too. Linking nests inside Beaconing, so
// bcnTimer stays armed across the Beaconing<->Linking boundary; only
// Beaconing's own entry/exit touch it.
type lnkBeaconing struct {
	top *lnkTop
}

func (s *lnkBeaconing) Name() string { return "Beaconing" }
func (s *lnkBeaconing) Parent() State { return s.top.lurking }

func (s *lnkBeaconing) Handle(m *Machine, evt Event) (State, bool) {
	l := s.top.l
	switch evt.Signal {
	case SigEntry:
		l.postBcn()
		l.bcnTimer.PostEvery(m, BeaconPeriod)
		return nil, true
	case SigExit:
		l.bcnTimer.Disarm()
		return nil, true
	case SigBeaconTimeout:
		l.postBcn()
		return nil, true
	case SigRxFromPhy:
		payload := evt.Value.(phyRxPayload)
		l.onRxdFromPhy(payload)
		if l.ngbrs.NgbrHearsMe() {
			return s.top.linking, true
		}
		return nil, true
	}
	return nil, false
}

// lnkLinking is the steady-state: beaconing continues (owned by the
// Beaconing ancestor, untouched here) and the neighbor table is
// periodically pruned of stale entries. If a prune causes ngbr_hears_me()
// to go false, Linking demotes back to Beaconing.
type lnkLinking struct {
	top *lnkTop
}

func (s *lnkLinking) Name() string { return "Linking" }
func (s *lnkLinking) Parent() State { return s.top.beaconing }

func (s *lnkLinking) Handle(m *Machine, evt Event) (State, bool) {
	l := s.top.l
	switch evt.Signal {
	case SigEntry:
		l.updtTimer.PostEvery(m, LinkUpdatePeriod)
		return nil, true
	case SigExit:
		l.updtTimer.Disarm()
		return nil, true
	case SigBeaconTimeout:
		l.postBcn()
		return nil, true
	case SigLinkUpdateTimeout:
		l.ngbrs.Update()
		if l.metrics != nil {
			l.metrics.Neighbors.Set(float64(l.ngbrs.Len()))
		}
		if !l.ngbrs.NgbrHearsMe() {
			return s.top.beaconing, true
		}
		return nil, true
	case SigRxFromPhy:
		payload := evt.Value.(phyRxPayload)
		l.onRxdFromPhy(payload)
		return nil, true
	}
	return nil, false
}
