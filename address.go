package heymac

import "fmt"

// LnkAddrSize is the fixed size, in octets, of a LinkAddress.
const LnkAddrSize = 8

// LinkAddress is the fixed 8-octet identifier of a node on the link.
// It is immutable for the lifetime of a node and is used in the
// source/destination/retransmitter fields of a Frame.
type LinkAddress [LnkAddrSize]byte

// String renders the address as upper-case hex, e.g. "DEADBEEF01020304".
func (a LinkAddress) String() string {
	return fmt.Sprintf("%X", [LnkAddrSize]byte(a))
}

// NewLinkAddress copies b (which must be LnkAddrSize bytes) into a LinkAddress.
func NewLinkAddress(b []byte) (LinkAddress, error) {
	var a LinkAddress
	if len(b) != LnkAddrSize {
		return a, fmt.Errorf("heymac: link address must be %d bytes, got %d", LnkAddrSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// NetIdentifier is a 16-bit network ID.
type NetIdentifier uint16

// NetAddress is a 16-bit short network-layer address assigned during association.
type NetAddress uint16
