package heymac

import (
	"encoding/binary"
)

// Command prefix bits: the top two bits of the first byte are always '10';
// the low six bits carry the CMD_ID.
const (
	CmdPrefix    = 0b10000000
	CmdPrefixMsk = 0b11000000
	CmdIDMsk     = 0b00111111
)

// Defined CMD_ID values.
const (
	CmdIDText       uint8 = 3
	CmdIDCsmaBeacon uint8 = 4
	CmdIDAssoc      uint8 = 5
)

// Field names used by the field-by-name access surface.
const (
	FldMsg     = "FLD_MSG"
	FldCaps    = "FLD_CAPS"
	FldStatus  = "FLD_STATUS"
	FldNets    = "FLD_NETS"
	FldNgbrs   = "FLD_NGBRS"
	FldNetID   = "FLD_NET_ID"
	FldNetAddr = "FLD_NET_ADDR"
)

// Fields names a set of field values for command construction. Supplying a
// key a variant does not define fails construction with ErrUnknownField.
type Fields map[string]interface{}

// Command is a parsed or constructed Heymac command message. The
// field-by-name surface is read-only: unlike a Frame, a command is not
// mutated after construction — callers wanting different field values
// build a new one, which is cheap for these fixed shapes.
type Command interface {
	// CmdID returns the command's CMD_ID.
	CmdID() uint8
	// MarshalBinary serializes the command to its wire form.
	MarshalBinary() ([]byte, error)
	// GetField returns the named field's value. ok is false for an
	// unrecognized field name.
	GetField(name string) (value interface{}, ok bool)
}

// NetEntry is one entry of a beacon's FLD_NETS list: a network ID paired
// with its root node's link address (carried as raw 8 bytes on the wire).
type NetEntry struct {
	NetID   NetIdentifier
	NetRoot [LnkAddrSize]byte
}

// cmdParsers is the parse dispatch table keyed by CMD_ID.
var cmdParsers = map[uint8]func([]byte) (Command, error){
	CmdIDText:       parseCmdText,
	CmdIDCsmaBeacon: parseCmdCsmaBeacon,
	CmdIDAssoc:      parseCmdAssoc,
}

// commandBuilders is the by-name construction dispatch table.
var commandBuilders = map[string]func(Fields) (Command, error){
	"Text":         func(f Fields) (Command, error) { return NewCmdText(f) },
	"CsmaBeacon":   func(f Fields) (Command, error) { return NewCmdCsmaBeacon(f) },
	"AssocRequest": func(f Fields) (Command, error) { return NewCmdAssocRequest(f) },
	"AssocAccept":  func(f Fields) (Command, error) { return NewCmdAssocAccept(f) },
	"AssocConfirm": func(f Fields) (Command, error) { return NewCmdAssocConfirm(f) },
	"AssocReject":  func(f Fields) (Command, error) { return NewCmdAssocReject(f) },
	"AssocLeave":   func(f Fields) (Command, error) { return NewCmdAssocLeave(f) },
}

// BuildCommand constructs a Command by variant name and field set.
func BuildCommand(variant string, fields Fields) (Command, error) {
	ctor, ok := commandBuilders[variant]
	if !ok {
		return nil, ErrUnknownCommand("unknown command variant: " + variant)
	}
	return ctor(fields)
}

// Parse decodes a Heymac command message from its wire form.
func Parse(buf []byte) (Command, error) {
	if len(buf) < 1 {
		return nil, ErrInsufficientData("command buffer is empty")
	}
	if buf[0]&CmdPrefixMsk != CmdPrefix {
		return nil, ErrUnknownCommand("first byte does not carry the command prefix")
	}
	cmdID := buf[0] & CmdIDMsk
	fn, ok := cmdParsers[cmdID]
	if !ok {
		return nil, ErrUnknownCommand("unknown CMD_ID")
	}
	return fn(buf)
}

func checkFields(fields Fields, allowed ...string) error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = true
	}
	for k := range fields {
		if !allowedSet[k] {
			return ErrUnknownField("unknown field: " + k)
		}
	}
	return nil
}

// CmdText is a raw-text Heymac command: {3, msg}.
type CmdText struct {
	Msg []byte
}

// NewCmdText builds a CmdText, validating the supplied field set.
func NewCmdText(fields Fields) (*CmdText, error) {
	if err := checkFields(fields, FldMsg); err != nil {
		return nil, err
	}
	var msg []byte
	if v, ok := fields[FldMsg]; ok {
		b, ok := v.([]byte)
		if !ok {
			return nil, ErrUnknownField("FLD_MSG must be []byte")
		}
		msg = b
	}
	return &CmdText{Msg: msg}, nil
}

// CmdID implements Command.
func (c *CmdText) CmdID() uint8 { return CmdIDText }

// MarshalBinary implements Command.
func (c *CmdText) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 1+len(c.Msg))
	buf = append(buf, CmdPrefix|CmdIDText)
	buf = append(buf, c.Msg...)
	return buf, nil
}

// GetField implements Command.
func (c *CmdText) GetField(name string) (interface{}, bool) {
	if name == FldMsg {
		return c.Msg, true
	}
	return nil, false
}

func parseCmdText(buf []byte) (Command, error) {
	msg := make([]byte, len(buf)-1)
	copy(msg, buf[1:])
	return &CmdText{Msg: msg}, nil
}

// CmdCsmaBeacon is a CSMA beacon: {4, caps, status, nets[], ngbrs[]}.
type CmdCsmaBeacon struct {
	Caps   uint16
	Status uint16
	Nets   []NetEntry
	Ngbrs  []LinkAddress
}

// NewCmdCsmaBeacon builds a CmdCsmaBeacon, validating the supplied field set.
func NewCmdCsmaBeacon(fields Fields) (*CmdCsmaBeacon, error) {
	if err := checkFields(fields, FldCaps, FldStatus, FldNets, FldNgbrs); err != nil {
		return nil, err
	}
	c := &CmdCsmaBeacon{}
	if v, ok := fields[FldCaps]; ok {
		caps, ok := v.(uint16)
		if !ok {
			return nil, ErrUnknownField("FLD_CAPS must be uint16")
		}
		c.Caps = caps
	}
	if v, ok := fields[FldStatus]; ok {
		status, ok := v.(uint16)
		if !ok {
			return nil, ErrUnknownField("FLD_STATUS must be uint16")
		}
		c.Status = status
	}
	if v, ok := fields[FldNets]; ok {
		nets, ok := v.([]NetEntry)
		if !ok {
			return nil, ErrUnknownField("FLD_NETS must be []NetEntry")
		}
		c.Nets = nets
	}
	if v, ok := fields[FldNgbrs]; ok {
		ngbrs, ok := v.([]LinkAddress)
		if !ok {
			return nil, ErrUnknownField("FLD_NGBRS must be []LinkAddress")
		}
		c.Ngbrs = ngbrs
	}
	return c, nil
}

// CmdID implements Command.
func (c *CmdCsmaBeacon) CmdID() uint8 { return CmdIDCsmaBeacon }

// MarshalBinary implements Command.
func (c *CmdCsmaBeacon) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 6+len(c.Nets)*10+len(c.Ngbrs)*LnkAddrSize)
	buf = append(buf, CmdPrefix|CmdIDCsmaBeacon)
	buf = binary.BigEndian.AppendUint16(buf, c.Caps)
	buf = binary.BigEndian.AppendUint16(buf, c.Status)
	if len(c.Nets) > 255 {
		return nil, ErrIncorrectSize("too many nets to encode in one byte count")
	}
	buf = append(buf, byte(len(c.Nets)))
	for _, net := range c.Nets {
		buf = binary.BigEndian.AppendUint16(buf, uint16(net.NetID))
		buf = append(buf, net.NetRoot[:]...)
	}
	if len(c.Ngbrs) > 255 {
		return nil, ErrIncorrectSize("too many neighbors to encode in one byte count")
	}
	buf = append(buf, byte(len(c.Ngbrs)))
	for _, n := range c.Ngbrs {
		buf = append(buf, n[:]...)
	}
	return buf, nil
}

// GetField implements Command.
func (c *CmdCsmaBeacon) GetField(name string) (interface{}, bool) {
	switch name {
	case FldCaps:
		return c.Caps, true
	case FldStatus:
		return c.Status, true
	case FldNets:
		return c.Nets, true
	case FldNgbrs:
		return c.Ngbrs, true
	}
	return nil, false
}

const netEntrySize = 2 + LnkAddrSize

func parseCmdCsmaBeacon(buf []byte) (Command, error) {
	const minLen = 1 + 2 + 2 + 1 // prefix + caps + status + nets_count
	if len(buf) < minLen {
		return nil, ErrInsufficientData("CsmaBeacon shorter than minimum header")
	}
	caps := binary.BigEndian.Uint16(buf[1:3])
	status := binary.BigEndian.Uint16(buf[3:5])
	netsCount := int(buf[5])
	offset := 6
	needed := offset + netsCount*netEntrySize + 1 // +1 for ngbrs_count byte
	if len(buf) < needed {
		return nil, ErrInsufficientData("CsmaBeacon truncated in nets list")
	}
	nets := make([]NetEntry, netsCount)
	for i := 0; i < netsCount; i++ {
		start := offset + i*netEntrySize
		var net NetEntry
		net.NetID = NetIdentifier(binary.BigEndian.Uint16(buf[start : start+2]))
		copy(net.NetRoot[:], buf[start+2:start+netEntrySize])
		nets[i] = net
	}
	offset += netsCount * netEntrySize
	ngbrsCount := int(buf[offset])
	offset++
	needed = offset + ngbrsCount*LnkAddrSize
	if len(buf) < needed {
		return nil, ErrInsufficientData("CsmaBeacon truncated in neighbor list")
	}
	if len(buf) != needed {
		return nil, ErrIncorrectSize("CsmaBeacon has trailing bytes past the neighbor list")
	}
	ngbrs := make([]LinkAddress, ngbrsCount)
	for i := 0; i < ngbrsCount; i++ {
		start := offset + i*LnkAddrSize
		copy(ngbrs[i][:], buf[start:start+LnkAddrSize])
	}
	return &CmdCsmaBeacon{Caps: caps, Status: status, Nets: nets, Ngbrs: ngbrs}, nil
}
