package heymac

import (
	"sync"
	"time"
)

// DialogRole distinguishes which side of an Associate exchange a slot's
// machine plays.
type DialogRole int

const (
	// RoleInitiator means this node sent AssocRequest.
	RoleInitiator DialogRole = iota
	// RoleResponder means this node received AssocRequest.
	RoleResponder
)

// DialogDoneFunc is invoked once, from the dialog's own machine goroutine,
// when a dialog concludes (success or failure). This is how the
// next layer higher learns the outcome of an association attempt.
type DialogDoneFunc func(peer LinkAddress, outcome DialogOutcome)

// DialogSlot pairs one neighbor's association attempt with the Machine
// running it. One map, keyed by neighbor address, with the Machine as a
// field of the slot — the role and the machine can never disagree about
// which neighbor they belong to.
type DialogSlot struct {
	Peer    LinkAddress
	Role    DialogRole
	Machine *Machine
	done    DialogDoneFunc
}

// DialogManager owns the at-most-one-slot-per-neighbor invariant: a
// neighbor may have at most one Associate dialog running against it at a
// time, whichever role started first.
type DialogManager struct {
	mu    sync.Mutex
	slots map[LinkAddress]*DialogSlot
	log   Logger
}

// NewDialogManager creates an empty manager.
func NewDialogManager(log Logger) *DialogManager {
	if log == nil {
		log = discardLogger{}
	}
	return &DialogManager{slots: make(map[LinkAddress]*DialogSlot), log: log}
}

// Get returns the slot for peer, if one is active.
func (d *DialogManager) Get(peer LinkAddress) (*DialogSlot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[peer]
	return s, ok
}

// StartInitiator begins an Associate-Request dialog toward peer, rejecting
// the attempt if a dialog with peer is already running.
func (d *DialogManager) StartInitiator(peer LinkAddress, priority int, phy txFunc, netID NetIdentifier, done DialogDoneFunc) (*DialogSlot, error) {
	d.mu.Lock()
	if _, exists := d.slots[peer]; exists {
		d.mu.Unlock()
		return nil, newCodecError(KindInvalidFrame, "a dialog with this neighbor is already in progress")
	}
	slot := &DialogSlot{Peer: peer, Role: RoleInitiator, done: done}
	d.slots[peer] = slot
	d.mu.Unlock()

	machine := NewMachine("dlg-init-"+peer.String(), priority, nil, d.log)
	init := newInitiatorSM(machine, peer, netID, phy, func(outcome DialogOutcome) {
		d.finish(peer, outcome)
	})
	machine.current = init
	slot.Machine = machine
	go machine.Run()
	return slot, nil
}

// StartResponder begins a dialog on the receiving side after an
// AssocRequest arrives, rejecting the attempt if a dialog with peer (in
// either role) is already running.
func (d *DialogManager) StartResponder(peer LinkAddress, priority int, phy txFunc, req *CmdAssocRequest, admit AdmitFunc, done DialogDoneFunc) (*DialogSlot, error) {
	d.mu.Lock()
	if _, exists := d.slots[peer]; exists {
		d.mu.Unlock()
		return nil, newCodecError(KindInvalidFrame, "a dialog with this neighbor is already in progress")
	}
	slot := &DialogSlot{Peer: peer, Role: RoleResponder, done: done}
	d.slots[peer] = slot
	d.mu.Unlock()

	machine := NewMachine("dlg-resp-"+peer.String(), priority, nil, d.log)
	resp := newResponderSM(machine, peer, req, phy, admit, func(outcome DialogOutcome) {
		d.finish(peer, outcome)
	})
	machine.current = resp
	slot.Machine = machine
	go machine.Run()
	return slot, nil
}

func (d *DialogManager) finish(peer LinkAddress, outcome DialogOutcome) {
	d.mu.Lock()
	slot, ok := d.slots[peer]
	if ok {
		delete(d.slots, peer)
	}
	d.mu.Unlock()
	if ok && slot.done != nil {
		slot.done(peer, outcome)
	}
}

// Len reports the number of dialogs currently in progress, for the
// dialogs-active metric.
func (d *DialogManager) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}

// StopAll halts every running dialog machine, used at LNK shutdown.
func (d *DialogManager) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.slots {
		s.Machine.Stop()
	}
}

// txFunc transmits a Command to a specific neighbor. The LNK machine
// supplies the closure that wraps the command in a Frame addressed to
// peer and hands it to the PHY.
type txFunc func(peer LinkAddress, cmd Command) error

// AdmitFunc decides whether to accept an incoming AssocRequest and, if
// so, assigns the net_addr to offer. Returning ok=false rejects.
type AdmitFunc func(peer LinkAddress, req *CmdAssocRequest) (netAddr NetAddress, ok bool)

// dialogRetryInterval and maxDialogRetries govern the initiator's
// retry/timeout behavior.
const (
	dialogRetryInterval = 4 * time.Second
	maxDialogRetries    = 3
)
