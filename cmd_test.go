package heymac

import (
	"bytes"
	"testing"
)

func TestCmdTextRoundTrip(t *testing.T) {
	c, err := NewCmdText(Fields{FldMsg: []byte("Hello world")})
	if err != nil {
		t.Fatalf("NewCmdText: %v", err)
	}
	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	want := append([]byte{0x83}, []byte("Hello world")...)
	if !bytes.Equal(b, want) {
		t.Fatalf("MarshalBinary = % x, want % x", b, want)
	}

	parsed, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	txt, ok := parsed.(*CmdText)
	if !ok {
		t.Fatalf("Parse returned %T, want *CmdText", parsed)
	}
	msg, ok := txt.GetField(FldMsg)
	if !ok || !bytes.Equal(msg.([]byte), []byte("Hello world")) {
		t.Fatalf("GetField(FLD_MSG) = %v, %v", msg, ok)
	}
}

func TestCmdCsmaBeaconRoundTrip(t *testing.T) {
	var root [LnkAddrSize]byte
	copy(root[:], "\xfdnetroot")
	var ngbr LinkAddress
	copy(ngbr[:], "\xfd2345678")

	c, err := NewCmdCsmaBeacon(Fields{
		FldCaps:   uint16(0x0102),
		FldStatus: uint16(0x0304),
		FldNets:   []NetEntry{{NetID: NetIdentifier(0x0001), NetRoot: root}},
		FldNgbrs:  []LinkAddress{ngbr},
	})
	if err != nil {
		t.Fatalf("NewCmdCsmaBeacon: %v", err)
	}
	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	want := []byte("\x84\x01\x02\x03\x04\x01\x00\x01\xfdnetroot\x01\xfd2345678")
	if !bytes.Equal(b, want) {
		t.Fatalf("MarshalBinary = % x, want % x", b, want)
	}

	parsed, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bcn, ok := parsed.(*CmdCsmaBeacon)
	if !ok {
		t.Fatalf("Parse returned %T, want *CmdCsmaBeacon", parsed)
	}
	if bcn.Caps != 0x0102 || bcn.Status != 0x0304 {
		t.Fatalf("Caps/Status = %#x/%#x", bcn.Caps, bcn.Status)
	}
	if len(bcn.Nets) != 1 || bcn.Nets[0].NetID != 0x0001 || bcn.Nets[0].NetRoot != root {
		t.Fatalf("Nets = %+v", bcn.Nets)
	}
	if len(bcn.Ngbrs) != 1 || bcn.Ngbrs[0] != ngbr {
		t.Fatalf("Ngbrs = %+v", bcn.Ngbrs)
	}
}

func TestParseUnknownCmdID(t *testing.T) {
	_, err := Parse([]byte{0xFF, 0x01, 0x01, 0x02})
	if !IsKind(err, KindUnknownCommand) {
		t.Fatalf("Parse(bad CMD_ID) = %v, want UnknownCommand", err)
	}
}

func TestCmdAssocRequestRoundTrip(t *testing.T) {
	c, err := NewCmdAssocRequest(Fields{FldNetID: NetIdentifier(0x0102)})
	if err != nil {
		t.Fatalf("NewCmdAssocRequest: %v", err)
	}
	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	want := []byte("\x85\x01\x01\x02")
	if !bytes.Equal(b, want) {
		t.Fatalf("MarshalBinary = % x, want % x", b, want)
	}

	parsed, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := parsed.(*CmdAssocRequest); !ok {
		t.Fatalf("Parse returned %T, want *CmdAssocRequest", parsed)
	}
}

func TestCmdAssocRequestBadField(t *testing.T) {
	_, err := NewCmdAssocRequest(Fields{"FLD_BOB": 0x0102})
	if !IsKind(err, KindUnknownField) {
		t.Fatalf("NewCmdAssocRequest(bad field) = %v, want UnknownField", err)
	}
}

func TestCmdAssocRequestBadData(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		kind string
	}{
		{"bad CMD_ID", []byte{0xFF, 0x01, 0x01, 0x02}, KindUnknownCommand},
		{"bad SUB_ID", []byte{0x85, 0xFF, 0x01, 0x02}, KindUnknownSubcmd},
		{"too short", []byte{0x85, 0x01, 0x01}, KindInsufficientData},
		{"too long", []byte{0x85, 0x01, 0x01, 0x02, 0x03}, KindIncorrectSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.buf)
			if !IsKind(err, tc.kind) {
				t.Fatalf("Parse(%s) = %v, want %s", tc.name, err, tc.kind)
			}
		})
	}
}

func TestCmdAssocAcceptRoundTrip(t *testing.T) {
	c, err := NewCmdAssocAccept(Fields{FldNetID: NetIdentifier(0x0102), FldNetAddr: NetAddress(0x0123)})
	if err != nil {
		t.Fatalf("NewCmdAssocAccept: %v", err)
	}
	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	want := []byte("\x85\x02\x01\x02\x01\x23")
	if !bytes.Equal(b, want) {
		t.Fatalf("MarshalBinary = % x, want % x", b, want)
	}
	parsed, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := parsed.(*CmdAssocAccept); !ok {
		t.Fatalf("Parse returned %T, want *CmdAssocAccept", parsed)
	}
}

func TestCmdAssocAcceptBadData(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		kind string
	}{
		{"bad CMD_ID", []byte{0xFF, 0x02, 0x01, 0x02, 0x03, 0x04}, KindUnknownCommand},
		{"bad SUB_ID", []byte{0x85, 0xFF, 0x01, 0x02, 0x03, 0x04}, KindUnknownSubcmd},
		{"too short", []byte{0x85, 0x02, 0x01, 0x02, 0x03}, KindInsufficientData},
		{"too long", []byte{0x85, 0x02, 0x01, 0x02, 0x03, 0x04, 0x05}, KindIncorrectSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.buf)
			if !IsKind(err, tc.kind) {
				t.Fatalf("Parse(%s) = %v, want %s", tc.name, err, tc.kind)
			}
		})
	}
}

func TestCmdAssocRejectAndLeave(t *testing.T) {
	rej, err := NewCmdAssocReject(nil)
	if err != nil {
		t.Fatalf("NewCmdAssocReject: %v", err)
	}
	b, _ := rej.MarshalBinary()
	if !bytes.Equal(b, []byte("\x85\x04")) {
		t.Fatalf("AssocReject MarshalBinary = % x", b)
	}

	leav, err := NewCmdAssocLeave(nil)
	if err != nil {
		t.Fatalf("NewCmdAssocLeave: %v", err)
	}
	b, _ = leav.MarshalBinary()
	if !bytes.Equal(b, []byte("\x85\x05")) {
		t.Fatalf("AssocLeave MarshalBinary = % x", b)
	}

	if _, err := Parse([]byte("\x85")); !IsKind(err, KindInsufficientData) {
		t.Fatalf("Parse(too short) = %v, want InsufficientData", err)
	}
	if _, err := Parse([]byte("\x85\x04\x05")); !IsKind(err, KindIncorrectSize) {
		t.Fatalf("Parse(AssocReject with trailing byte) = %v, want IncorrectSize", err)
	}
}

func TestBuildCommandByName(t *testing.T) {
	cmd, err := BuildCommand("AssocLeave", nil)
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}
	if cmd.CmdID() != CmdIDAssoc {
		t.Fatalf("CmdID = %d, want %d", cmd.CmdID(), CmdIDAssoc)
	}
	if _, err := BuildCommand("NoSuchVariant", nil); !IsKind(err, KindUnknownCommand) {
		t.Fatalf("BuildCommand(unknown) = %v, want UnknownCommand", err)
	}
}
