package dhcpv4

import (
	"bytes"
	"testing"
)

func TestMessageTypeNames(t *testing.T) {
	names := map[MessageType]string{
		0:                   "UNKNOWN",
		MessageTypeDiscover: "DHCPDISCOVER",
		MessageTypeAck:      "DHCPACK",
		MessageTypeInform:   "DHCPINFORM",
		9:                   "UNKNOWN",
		255:                 "UNKNOWN",
	}
	for mt, want := range names {
		if got := mt.String(); got != want {
			t.Errorf("MessageType(%d).String() = %q, want %q", byte(mt), got, want)
		}
	}
	for mt := MessageType(0); mt < 16; mt++ {
		if got, want := mt.Valid(), mt >= 1 && mt <= 8; got != want {
			t.Errorf("MessageType(%d).Valid() = %v, want %v", byte(mt), got, want)
		}
	}
}

func TestCodeNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{OpCodeBootRequest.String(), "BOOTREQUEST"},
		{OpCode(7).String(), "OP(7)"},
		{OptionPad.String(), "Pad"},
		{OptionEnd.String(), "End"},
		{OptionRouter.String(), "Router"},
		{OptionRelayAgentInfo.String(), "Relay Agent Information"},
		{OptionCode(224).String(), "Option(224)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestWireLayout(t *testing.T) {
	// op..giaddr is 28 octets, then chaddr, sname and file.
	if got := 28 + CHAddrSize + SNameSize + FileSize; got != HeaderSize || HeaderSize != 236 {
		t.Errorf("header = %d octets (HeaderSize %d), want 236", got, HeaderSize)
	}
	if OptionsOffset != HeaderSize+len(MagicCookie) {
		t.Errorf("OptionsOffset = %d, want %d", OptionsOffset, HeaderSize+len(MagicCookie))
	}
	if !bytes.Equal(MagicCookie[:], []byte{0x63, 0x82, 0x53, 0x63}) {
		t.Errorf("MagicCookie = % x", MagicCookie)
	}
	if MinPacketSize != 300 || ServerPort != 67 || ClientPort != 68 {
		t.Errorf("MinPacketSize/ServerPort/ClientPort = %d/%d/%d", MinPacketSize, ServerPort, ClientPort)
	}
}
