package heymac

import "time"

// Protocol-id byte: identifier bits select the Heymac family, type bits
// select the subtype. CSMA is the only subtype this layer defines.
const (
	PidIdentMask   = 0b11100000
	PidIdentHeymac = 0b10100000
	PidTypeMask    = 0b00011111
	PidTypeCsma    = 0b00000001
)

// Frame-control flag bits. A single long/short flag governs
// the width of every address field present in the frame: LinkAddress (8
// bytes) when set, NetAddress (2 bytes) when clear.
const (
	FctlLong    byte = 0x01 // addresses in this frame are long (LinkAddress)
	FctlHasSrc  byte = 0x02
	FctlHasDst  byte = 0x04
	FctlHasRetx byte = 0x08
	FctlMhop    byte = 0x10 // multi-hop: a 1-byte hop-count field follows the addresses
)

// Frame field names for the SetField/GetField access surface.
const (
	FldSAddr = "FLD_SADDR"
	FldDAddr = "FLD_DADDR"
	FldTAddr = "FLD_TADDR" // retransmitter address
	FldHops  = "FLD_HOPS"
	FldPayld = "FLD_PAYLD"
)

// RxMetadata is attached to a Frame that arrived from the PHY's receive
// callback.
type RxMetadata struct {
	RxTime time.Time
	Rssi   int8
	Snr    float32
}

// Frame is a Heymac link-layer frame: a protocol-id byte, a frame-control
// byte, the address fields the control flags select, an optional hop
// count, and a payload.
type Frame struct {
	ProtocolID   byte
	FrameControl byte

	SrcAddr  []byte // present iff FctlHasSrc; 8 bytes if FctlLong, else 2
	DstAddr  []byte // present iff FctlHasDst
	RetxAddr []byte // present iff FctlHasRetx
	Hops     uint8  // present iff FctlMhop

	Payload []byte
	RxMeta  *RxMetadata
}

// NewFrame constructs an empty frame with the given protocol-id and
// frame-control bytes; address fields and payload are attached via
// SetField.
func NewFrame(protocolID, frameControl byte) *Frame {
	return &Frame{ProtocolID: protocolID, FrameControl: frameControl}
}

func (f *Frame) addrWidth() int {
	if f.FrameControl&FctlLong != 0 {
		return LnkAddrSize
	}
	return 2
}

// SetField sets a named logical field. value must be []byte for address
// and payload fields (sized to addrWidth() for addresses), or uint8 for
// FLD_HOPS.
func (f *Frame) SetField(name string, value interface{}) error {
	switch name {
	case FldSAddr:
		b, ok := value.([]byte)
		if !ok || len(b) != f.addrWidth() {
			return ErrInvalidFrame("FLD_SADDR has the wrong width for this frame's address mode")
		}
		f.SrcAddr = b
		f.FrameControl |= FctlHasSrc
	case FldDAddr:
		b, ok := value.([]byte)
		if !ok || len(b) != f.addrWidth() {
			return ErrInvalidFrame("FLD_DADDR has the wrong width for this frame's address mode")
		}
		f.DstAddr = b
		f.FrameControl |= FctlHasDst
	case FldTAddr:
		b, ok := value.([]byte)
		if !ok || len(b) != f.addrWidth() {
			return ErrInvalidFrame("FLD_TADDR has the wrong width for this frame's address mode")
		}
		f.RetxAddr = b
		f.FrameControl |= FctlHasRetx
	case FldHops:
		h, ok := value.(uint8)
		if !ok {
			return ErrInvalidFrame("FLD_HOPS must be uint8")
		}
		f.Hops = h
		f.FrameControl |= FctlMhop
	case FldPayld:
		b, ok := value.([]byte)
		if !ok {
			return ErrInvalidFrame("FLD_PAYLD must be []byte")
		}
		f.Payload = b
	default:
		return ErrInvalidFrame("unknown frame field: " + name)
	}
	return nil
}

// GetField returns the named field's value.
func (f *Frame) GetField(name string) (interface{}, bool) {
	switch name {
	case FldSAddr:
		if f.FrameControl&FctlHasSrc == 0 {
			return nil, false
		}
		return f.SrcAddr, true
	case FldDAddr:
		if f.FrameControl&FctlHasDst == 0 {
			return nil, false
		}
		return f.DstAddr, true
	case FldTAddr:
		if f.FrameControl&FctlHasRetx == 0 {
			return nil, false
		}
		return f.RetxAddr, true
	case FldHops:
		if f.FrameControl&FctlMhop == 0 {
			return nil, false
		}
		return f.Hops, true
	case FldPayld:
		return f.Payload, true
	}
	return nil, false
}

// IsMhop reports whether the multi-hop flag is set.
func (f *Frame) IsMhop() bool {
	return f.FrameControl&FctlMhop != 0
}

// IsMeantFor reports whether addr is this frame's destination, or the
// frame carries no destination at all (broadcast).
func (f *Frame) IsMeantFor(addr LinkAddress) bool {
	if f.FrameControl&FctlHasDst == 0 {
		return true
	}
	if f.FrameControl&FctlLong == 0 || len(f.DstAddr) != LnkAddrSize {
		return false
	}
	for i := 0; i < LnkAddrSize; i++ {
		if f.DstAddr[i] != addr[i] {
			return false
		}
	}
	return true
}

// GetSender returns the frame's long source link address, if present.
func (f *Frame) GetSender() (LinkAddress, bool) {
	var a LinkAddress
	if f.FrameControl&FctlHasSrc == 0 || f.FrameControl&FctlLong == 0 {
		return a, false
	}
	if len(f.SrcAddr) != LnkAddrSize {
		return a, false
	}
	copy(a[:], f.SrcAddr)
	return a, true
}

// MarshalBinary serializes the frame to its wire form.
func (f *Frame) MarshalBinary() ([]byte, error) {
	width := f.addrWidth()
	size := 2
	if f.FrameControl&FctlHasSrc != 0 {
		size += width
	}
	if f.FrameControl&FctlHasDst != 0 {
		size += width
	}
	if f.FrameControl&FctlHasRetx != 0 {
		size += width
	}
	if f.FrameControl&FctlMhop != 0 {
		size++
	}
	size += len(f.Payload)

	buf := make([]byte, 0, size)
	buf = append(buf, f.ProtocolID, f.FrameControl)
	if f.FrameControl&FctlHasSrc != 0 {
		if len(f.SrcAddr) != width {
			return nil, ErrInvalidFrame("source address width does not match frame control flags")
		}
		buf = append(buf, f.SrcAddr...)
	}
	if f.FrameControl&FctlHasDst != 0 {
		if len(f.DstAddr) != width {
			return nil, ErrInvalidFrame("destination address width does not match frame control flags")
		}
		buf = append(buf, f.DstAddr...)
	}
	if f.FrameControl&FctlHasRetx != 0 {
		if len(f.RetxAddr) != width {
			return nil, ErrInvalidFrame("retransmitter address width does not match frame control flags")
		}
		buf = append(buf, f.RetxAddr...)
	}
	if f.FrameControl&FctlMhop != 0 {
		buf = append(buf, f.Hops)
	}
	buf = append(buf, f.Payload...)
	return buf, nil
}

// ParseFrame decodes a Heymac frame from its wire form.
func ParseFrame(buf []byte) (*Frame, error) {
	if len(buf) < 2 {
		return nil, ErrInvalidFrame("frame shorter than the protocol-id/frame-control header")
	}
	pid, fctl := buf[0], buf[1]
	if pid&PidIdentMask != PidIdentHeymac {
		return nil, ErrInvalidFrame("protocol id is not Heymac")
	}
	width := 2
	if fctl&FctlLong != 0 {
		width = LnkAddrSize
	}
	offset := 2
	f := &Frame{ProtocolID: pid, FrameControl: fctl}
	if fctl&FctlHasSrc != 0 {
		if len(buf) < offset+width {
			return nil, ErrInvalidFrame("frame truncated before source address")
		}
		f.SrcAddr = append([]byte(nil), buf[offset:offset+width]...)
		offset += width
	}
	if fctl&FctlHasDst != 0 {
		if len(buf) < offset+width {
			return nil, ErrInvalidFrame("frame truncated before destination address")
		}
		f.DstAddr = append([]byte(nil), buf[offset:offset+width]...)
		offset += width
	}
	if fctl&FctlHasRetx != 0 {
		if len(buf) < offset+width {
			return nil, ErrInvalidFrame("frame truncated before retransmitter address")
		}
		f.RetxAddr = append([]byte(nil), buf[offset:offset+width]...)
		offset += width
	}
	if fctl&FctlMhop != 0 {
		if len(buf) < offset+1 {
			return nil, ErrInvalidFrame("frame truncated before hop count")
		}
		f.Hops = buf[offset]
		offset++
	}
	f.Payload = append([]byte(nil), buf[offset:]...)
	return f, nil
}
