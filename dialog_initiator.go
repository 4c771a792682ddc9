package heymac

// initiatorCtx carries state shared across the initiator dialog's states.
type initiatorCtx struct {
	peer    LinkAddress
	netID   NetIdentifier
	phy     txFunc
	log     Logger
	finish  func(DialogOutcome)
	retries int
	timer   *TimerEvent
}

// dlgInitTop is the shared ancestor of every initiator state: it carries
// no behavior of its own, just the Parent() root for delegation.
type dlgInitTop struct {
	ctx *initiatorCtx
}

func (s *dlgInitTop) Name() string { return "DlgInitTop" }
func (s *dlgInitTop) Parent() State { return nil }
func (s *dlgInitTop) Handle(m *Machine, evt Event) (State, bool) { return nil, false }

// dlgInitAwaitingAccept sends AssocRequest on entry and waits for either
// AssocAccept or AssocReject, retrying on timeout.
type dlgInitAwaitingAccept struct {
	top *dlgInitTop
}

func (s *dlgInitAwaitingAccept) Name() string { return "AwaitingAccept" }
func (s *dlgInitAwaitingAccept) Parent() State { return s.top }

func (s *dlgInitAwaitingAccept) Handle(m *Machine, evt Event) (State, bool) {
	ctx := s.top.ctx
	switch evt.Signal {
	case SigEntry:
		req := &CmdAssocRequest{NetID: ctx.netID}
		if err := ctx.phy(ctx.peer, req); err != nil {
			ctx.log.Infof("dialog %s: failed to send AssocRequest: %v", ctx.peer, err)
		}
		ctx.timer.PostIn(m, dialogRetryInterval)
		return nil, true

	case SigExit:
		ctx.timer.Disarm()
		return nil, true

	case SigDialogTimeout:
		// The initial request doesn't count as a retry: the dialog
		// resends maxDialogRetries times before giving up.
		ctx.retries++
		if ctx.retries > maxDialogRetries {
			ctx.finish(DialogOutcome{Success: false, Reason: ReasonTimeout, NetID: ctx.netID})
			m.Stop()
			return nil, true
		}
		// A self-transition wouldn't cross any exit/entry boundary (its LCA
		// is itself), so resend and re-arm directly rather than returning s.
		req := &CmdAssocRequest{NetID: ctx.netID}
		if err := ctx.phy(ctx.peer, req); err != nil {
			ctx.log.Infof("dialog %s: failed to resend AssocRequest: %v", ctx.peer, err)
		}
		ctx.timer.PostIn(m, dialogRetryInterval)
		return nil, true

	case SigFrame:
		assoc, ok := evt.Value.(AssocCommand)
		if !ok {
			return nil, false
		}
		switch c := assoc.(type) {
		case *CmdAssocAccept:
			if c.NetID != ctx.netID {
				return nil, true // not for this dialog's network; ignore
			}
			return &dlgInitAwaitingConfirmAck{top: s.top, netAddr: c.NetAddr}, true
		case *CmdAssocReject:
			ctx.finish(DialogOutcome{Success: false, Reason: ReasonRejected, NetID: ctx.netID})
			m.Stop()
			return nil, true
		}
		return nil, true
	}
	return nil, false
}

// dlgInitAwaitingConfirmAck sends AssocConfirm on entry. The dialog
// completes as soon as the confirm is sent: Associate's three-message
// handshake (Request/Accept/Confirm) defines no reply to the confirm
// itself.
type dlgInitAwaitingConfirmAck struct {
	top     *dlgInitTop
	netAddr NetAddress
}

func (s *dlgInitAwaitingConfirmAck) Name() string { return "AwaitingConfirmAck" }
func (s *dlgInitAwaitingConfirmAck) Parent() State { return s.top }

func (s *dlgInitAwaitingConfirmAck) Handle(m *Machine, evt Event) (State, bool) {
	ctx := s.top.ctx
	switch evt.Signal {
	case SigEntry:
		confirm := &CmdAssocConfirm{NetID: ctx.netID, NetAddr: s.netAddr}
		if err := ctx.phy(ctx.peer, confirm); err != nil {
			ctx.log.Infof("dialog %s: failed to send AssocConfirm: %v", ctx.peer, err)
		}
		ctx.finish(DialogOutcome{Success: true, Reason: ReasonAccepted, NetID: ctx.netID, NetAddr: s.netAddr})
		m.Stop()
		return nil, true
	}
	return nil, false
}

// newInitiatorSM builds the leaf state an initiator dialog Machine should
// start in. The Machine's entry dispatch (Run) drives the SigEntry that
// sends the first AssocRequest.
func newInitiatorSM(m *Machine, peer LinkAddress, netID NetIdentifier, phy txFunc, finish func(DialogOutcome)) State {
	ctx := &initiatorCtx{
		peer:   peer,
		netID:  netID,
		phy:    phy,
		log:    m.Log,
		finish: finish,
		timer:  NewTimerEvent(SigDialogTimeout),
	}
	top := &dlgInitTop{ctx: ctx}
	return &dlgInitAwaitingAccept{top: top}
}
