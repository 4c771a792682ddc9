package heymac

import "encoding/binary"

// Associate SUB_ID values.
const (
	SubIDAssocRequest uint8 = 1
	SubIDAssocAccept  uint8 = 2
	SubIDAssocConfirm uint8 = 3
	SubIDAssocReject  uint8 = 4
	SubIDAssocLeave   uint8 = 5
)

// AssocCommand is a Command that additionally carries an Associate SUB_ID.
type AssocCommand interface {
	Command
	SubID() uint8
}

func parseCmdAssoc(buf []byte) (Command, error) {
	if len(buf) < 2 {
		return nil, ErrInsufficientData("Associate buffer shorter than 2 bytes")
	}
	subID := buf[1]
	switch subID {
	case SubIDAssocRequest:
		const wantLen = 4
		if len(buf) < wantLen {
			return nil, ErrInsufficientData("AssocRequest missing net_id")
		}
		if len(buf) != wantLen {
			return nil, ErrIncorrectSize("AssocRequest has trailing bytes")
		}
		netID := binary.BigEndian.Uint16(buf[2:4])
		return &CmdAssocRequest{NetID: NetIdentifier(netID)}, nil

	case SubIDAssocAccept:
		cmd, err := parseNetIDNetAddr(buf)
		if err != nil {
			return nil, err
		}
		return &CmdAssocAccept{NetID: cmd.NetID, NetAddr: cmd.NetAddr}, nil

	case SubIDAssocConfirm:
		cmd, err := parseNetIDNetAddr(buf)
		if err != nil {
			return nil, err
		}
		return &CmdAssocConfirm{NetID: cmd.NetID, NetAddr: cmd.NetAddr}, nil

	case SubIDAssocReject:
		if len(buf) != 2 {
			return nil, ErrIncorrectSize("AssocReject must have an empty body")
		}
		return &CmdAssocReject{}, nil

	case SubIDAssocLeave:
		if len(buf) != 2 {
			return nil, ErrIncorrectSize("AssocLeave must have an empty body")
		}
		return &CmdAssocLeave{}, nil
	}
	return nil, ErrUnknownSubcommand("unknown Associate SUB_ID")
}

type netIDNetAddr struct {
	NetID   NetIdentifier
	NetAddr NetAddress
}

func parseNetIDNetAddr(buf []byte) (netIDNetAddr, error) {
	const wantLen = 6
	if len(buf) < wantLen {
		return netIDNetAddr{}, ErrInsufficientData("Associate sub-command missing net_id/net_addr")
	}
	if len(buf) != wantLen {
		return netIDNetAddr{}, ErrIncorrectSize("Associate sub-command has trailing bytes")
	}
	netID := binary.BigEndian.Uint16(buf[2:4])
	netAddr := binary.BigEndian.Uint16(buf[4:6])
	return netIDNetAddr{NetID: NetIdentifier(netID), NetAddr: NetAddress(netAddr)}, nil
}

// CmdAssocRequest is an Associate-Request: {5, 1, net_id}.
type CmdAssocRequest struct {
	NetID NetIdentifier
}

// NewCmdAssocRequest builds a CmdAssocRequest, validating the field set.
func NewCmdAssocRequest(fields Fields) (*CmdAssocRequest, error) {
	if err := checkFields(fields, FldNetID); err != nil {
		return nil, err
	}
	c := &CmdAssocRequest{}
	if v, ok := fields[FldNetID]; ok {
		id, ok := v.(NetIdentifier)
		if !ok {
			return nil, ErrUnknownField("FLD_NET_ID must be NetIdentifier")
		}
		c.NetID = id
	}
	return c, nil
}

// CmdID implements Command.
func (c *CmdAssocRequest) CmdID() uint8 { return CmdIDAssoc }

// SubID implements AssocCommand.
func (c *CmdAssocRequest) SubID() uint8 { return SubIDAssocRequest }

// MarshalBinary implements Command.
func (c *CmdAssocRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 4)
	buf = append(buf, CmdPrefix|CmdIDAssoc, SubIDAssocRequest)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.NetID))
	return buf, nil
}

// GetField implements Command.
func (c *CmdAssocRequest) GetField(name string) (interface{}, bool) {
	if name == FldNetID {
		return c.NetID, true
	}
	return nil, false
}

// CmdAssocAccept is an Associate-Accept: {5, 2, net_id, net_addr}.
type CmdAssocAccept struct {
	NetID   NetIdentifier
	NetAddr NetAddress
}

// NewCmdAssocAccept builds a CmdAssocAccept, validating the field set.
func NewCmdAssocAccept(fields Fields) (*CmdAssocAccept, error) {
	if err := checkFields(fields, FldNetID, FldNetAddr); err != nil {
		return nil, err
	}
	c := &CmdAssocAccept{}
	if v, ok := fields[FldNetID]; ok {
		id, ok := v.(NetIdentifier)
		if !ok {
			return nil, ErrUnknownField("FLD_NET_ID must be NetIdentifier")
		}
		c.NetID = id
	}
	if v, ok := fields[FldNetAddr]; ok {
		addr, ok := v.(NetAddress)
		if !ok {
			return nil, ErrUnknownField("FLD_NET_ADDR must be NetAddress")
		}
		c.NetAddr = addr
	}
	return c, nil
}

// CmdID implements Command.
func (c *CmdAssocAccept) CmdID() uint8 { return CmdIDAssoc }

// SubID implements AssocCommand.
func (c *CmdAssocAccept) SubID() uint8 { return SubIDAssocAccept }

// MarshalBinary implements Command.
func (c *CmdAssocAccept) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 6)
	buf = append(buf, CmdPrefix|CmdIDAssoc, SubIDAssocAccept)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.NetID))
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.NetAddr))
	return buf, nil
}

// GetField implements Command.
func (c *CmdAssocAccept) GetField(name string) (interface{}, bool) {
	switch name {
	case FldNetID:
		return c.NetID, true
	case FldNetAddr:
		return c.NetAddr, true
	}
	return nil, false
}

// CmdAssocConfirm is an Associate-Confirm: {5, 3, net_id, net_addr}.
type CmdAssocConfirm struct {
	NetID   NetIdentifier
	NetAddr NetAddress
}

// NewCmdAssocConfirm builds a CmdAssocConfirm, validating the field set.
func NewCmdAssocConfirm(fields Fields) (*CmdAssocConfirm, error) {
	if err := checkFields(fields, FldNetID, FldNetAddr); err != nil {
		return nil, err
	}
	c := &CmdAssocConfirm{}
	if v, ok := fields[FldNetID]; ok {
		id, ok := v.(NetIdentifier)
		if !ok {
			return nil, ErrUnknownField("FLD_NET_ID must be NetIdentifier")
		}
		c.NetID = id
	}
	if v, ok := fields[FldNetAddr]; ok {
		addr, ok := v.(NetAddress)
		if !ok {
			return nil, ErrUnknownField("FLD_NET_ADDR must be NetAddress")
		}
		c.NetAddr = addr
	}
	return c, nil
}

// CmdID implements Command.
func (c *CmdAssocConfirm) CmdID() uint8 { return CmdIDAssoc }

// SubID implements AssocCommand.
func (c *CmdAssocConfirm) SubID() uint8 { return SubIDAssocConfirm }

// MarshalBinary implements Command.
func (c *CmdAssocConfirm) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 6)
	buf = append(buf, CmdPrefix|CmdIDAssoc, SubIDAssocConfirm)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.NetID))
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.NetAddr))
	return buf, nil
}

// GetField implements Command.
func (c *CmdAssocConfirm) GetField(name string) (interface{}, bool) {
	switch name {
	case FldNetID:
		return c.NetID, true
	case FldNetAddr:
		return c.NetAddr, true
	}
	return nil, false
}

// CmdAssocReject is an Associate-Reject: {5, 4}, an empty body.
type CmdAssocReject struct{}

// NewCmdAssocReject builds a CmdAssocReject; it rejects any fields.
func NewCmdAssocReject(fields Fields) (*CmdAssocReject, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	return &CmdAssocReject{}, nil
}

// CmdID implements Command.
func (c *CmdAssocReject) CmdID() uint8 { return CmdIDAssoc }

// SubID implements AssocCommand.
func (c *CmdAssocReject) SubID() uint8 { return SubIDAssocReject }

// MarshalBinary implements Command.
func (c *CmdAssocReject) MarshalBinary() ([]byte, error) {
	return []byte{CmdPrefix | CmdIDAssoc, SubIDAssocReject}, nil
}

// GetField implements Command.
func (c *CmdAssocReject) GetField(string) (interface{}, bool) { return nil, false }

// CmdAssocLeave is an Associate-Leave: {5, 5}, an empty body.
type CmdAssocLeave struct{}

// NewCmdAssocLeave builds a CmdAssocLeave; it rejects any fields.
func NewCmdAssocLeave(fields Fields) (*CmdAssocLeave, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	return &CmdAssocLeave{}, nil
}

// CmdID implements Command.
func (c *CmdAssocLeave) CmdID() uint8 { return CmdIDAssoc }

// SubID implements AssocCommand.
func (c *CmdAssocLeave) SubID() uint8 { return SubIDAssocLeave }

// MarshalBinary implements Command.
func (c *CmdAssocLeave) MarshalBinary() ([]byte, error) {
	return []byte{CmdPrefix | CmdIDAssoc, SubIDAssocLeave}, nil
}

// GetField implements Command.
func (c *CmdAssocLeave) GetField(string) (interface{}, bool) { return nil, false }
