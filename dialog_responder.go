package heymac

// responderCtx carries state shared across the responder dialog's states.
type responderCtx struct {
	peer    LinkAddress
	netID   NetIdentifier
	netAddr NetAddress
	phy     txFunc
	log     Logger
	finish  func(DialogOutcome)
	timer   *TimerEvent
}

type dlgRespTop struct {
	ctx *responderCtx
}

func (s *dlgRespTop) Name() string { return "DlgRespTop" }
func (s *dlgRespTop) Parent() State { return nil }
func (s *dlgRespTop) Handle(m *Machine, evt Event) (State, bool) { return nil, false }

// dlgRespOffered sends AssocAccept on entry and waits for the peer's
// AssocConfirm to complete the handshake, or times out.
type dlgRespOffered struct {
	top *dlgRespTop
}

func (s *dlgRespOffered) Name() string { return "Offered" }
func (s *dlgRespOffered) Parent() State { return s.top }

func (s *dlgRespOffered) Handle(m *Machine, evt Event) (State, bool) {
	ctx := s.top.ctx
	switch evt.Signal {
	case SigEntry:
		accept := &CmdAssocAccept{NetID: ctx.netID, NetAddr: ctx.netAddr}
		if err := ctx.phy(ctx.peer, accept); err != nil {
			ctx.log.Infof("dialog %s: failed to send AssocAccept: %v", ctx.peer, err)
		}
		ctx.timer.PostIn(m, dialogRetryInterval*maxDialogRetries)
		return nil, true

	case SigExit:
		ctx.timer.Disarm()
		return nil, true

	case SigDialogTimeout:
		ctx.finish(DialogOutcome{Success: false, Reason: ReasonTimeout, NetID: ctx.netID})
		m.Stop()
		return nil, true

	case SigFrame:
		assoc, ok := evt.Value.(AssocCommand)
		if !ok {
			return nil, false
		}
		switch c := assoc.(type) {
		case *CmdAssocConfirm:
			if c.NetID != ctx.netID || c.NetAddr != ctx.netAddr {
				return nil, true
			}
			ctx.finish(DialogOutcome{Success: true, Reason: ReasonAccepted, NetID: ctx.netID, NetAddr: ctx.netAddr})
			m.Stop()
			return nil, true
		case *CmdAssocLeave:
			ctx.finish(DialogOutcome{Success: false, Reason: ReasonLeave, NetID: ctx.netID})
			m.Stop()
			return nil, true
		}
		return nil, true
	}
	return nil, false
}

// dlgRespRejected sends AssocReject on entry then finishes immediately,
// used when the admission policy declines the request.
type dlgRespRejected struct {
	top *dlgRespTop
}

func (s *dlgRespRejected) Name() string { return "Rejected" }
func (s *dlgRespRejected) Parent() State { return s.top }

func (s *dlgRespRejected) Handle(m *Machine, evt Event) (State, bool) {
	ctx := s.top.ctx
	if evt.Signal == SigEntry {
		if err := ctx.phy(ctx.peer, &CmdAssocReject{}); err != nil {
			ctx.log.Infof("dialog %s: failed to send AssocReject: %v", ctx.peer, err)
		}
		ctx.finish(DialogOutcome{Success: false, Reason: ReasonRejected, NetID: ctx.netID})
		m.Stop()
		return nil, true
	}
	return nil, false
}

// newResponderSM builds the leaf state a responder dialog Machine should
// start in, applying admit to decide whether to offer or reject.
func newResponderSM(m *Machine, peer LinkAddress, req *CmdAssocRequest, phy txFunc, admit AdmitFunc, finish func(DialogOutcome)) State {
	ctx := &responderCtx{
		peer:   peer,
		netID:  req.NetID,
		phy:    phy,
		log:    m.Log,
		finish: finish,
		timer:  NewTimerEvent(SigDialogTimeout),
	}
	top := &dlgRespTop{ctx: ctx}

	netAddr, ok := admit(peer, req)
	if !ok {
		return &dlgRespRejected{top: top}
	}
	ctx.netAddr = netAddr
	return &dlgRespOffered{top: top}
}
