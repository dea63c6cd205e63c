package dhcpv4

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// NewXID returns a random transaction ID.
func NewXID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generating transaction id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// NewRequestMessage returns a BOOTREQUEST of the given DHCP type with
// chaddr, xid and option 53 filled in and every address zero.
func NewRequestMessage(mt MessageType, mac net.HardwareAddr, xid uint32) *Message {
	m := &Message{
		Op:     OpCodeBootRequest,
		HType:  HardwareTypeEthernet,
		XID:    xid,
		CIAddr: net.IPv4zero,
		YIAddr: net.IPv4zero,
		SIAddr: net.IPv4zero,
		GIAddr: net.IPv4zero,
	}
	m.SetHardwareAddr(mac)
	m.Options.Set(OptionDHCPMessageType, mt)
	return m
}

// NewDiscover builds a DHCPDISCOVER. The broadcast flag is set because the
// client has no address to receive unicast on. A non-nil requested address
// is sent as option 50.
func NewDiscover(mac net.HardwareAddr, xid uint32, requested net.IP) *Message {
	m := NewRequestMessage(MessageTypeDiscover, mac, xid)
	m.SetBroadcast(true)
	if !IsZeroIP(requested) {
		m.Options.Set(OptionRequestedIP, IP(requested))
	}
	return m
}

// NewRequest builds a DHCPREQUEST. Which of ciaddr, option 50 and option 54
// are filled depends on the client state (RFC 2131 §4.3.6); the caller sets
// them.
func NewRequest(mac net.HardwareAddr, xid uint32) *Message {
	return NewRequestMessage(MessageTypeRequest, mac, xid)
}

// NewDecline builds a DHCPDECLINE for addr offered by serverID.
func NewDecline(mac net.HardwareAddr, xid uint32, addr, serverID net.IP) *Message {
	m := NewRequestMessage(MessageTypeDecline, mac, xid)
	m.Options.Set(OptionRequestedIP, IP(addr))
	m.Options.Set(OptionServerIdentifier, IP(serverID))
	return m
}

// NewRelease builds a DHCPRELEASE for the bound address ciaddr.
func NewRelease(mac net.HardwareAddr, xid uint32, ciaddr, serverID net.IP) *Message {
	m := NewRequestMessage(MessageTypeRelease, mac, xid)
	m.CIAddr = ciaddr
	m.Options.Set(OptionServerIdentifier, IP(serverID))
	return m
}

// NewInform builds a DHCPINFORM from a client that already has ciaddr.
func NewInform(mac net.HardwareAddr, xid uint32, ciaddr net.IP) *Message {
	m := NewRequestMessage(MessageTypeInform, mac, xid)
	m.CIAddr = ciaddr
	return m
}

// NewReply creates a response message from a request, with common fields
// pre-filled: xid, flags, giaddr and chaddr are copied, options 53 and 54
// are set and the client identifier is echoed. Relay agent information is
// appended separately by EchoRelayAgentInfo once the reply is complete.
func NewReply(req *Message, mt MessageType, serverID net.IP) *Message {
	reply := &Message{
		Op:     OpCodeBootReply,
		HType:  req.HType,
		HLen:   req.HLen,
		XID:    req.XID,
		Flags:  req.Flags,
		CHAddr: req.CHAddr,
		CIAddr: net.IPv4zero,
		YIAddr: net.IPv4zero,
		SIAddr: net.IPv4zero,
		GIAddr: cloneIP(req.GIAddr),
	}
	if reply.GIAddr == nil {
		reply.GIAddr = net.IPv4zero
	}

	// RFC 2131 §4.3.1: set message type
	reply.Options.Set(OptionDHCPMessageType, mt)
	// RFC 2131 §4.3.1: set server identifier
	reply.Options.Set(OptionServerIdentifier, IP(serverID))

	// RFC 6842: echo client-id back in responses
	if id, ok := req.ClientIdentifier(); ok {
		reply.Options.Set(OptionClientIdentifier, id)
	}
	return reply
}

// EchoRelayAgentInfo copies option 82 from req into reply; RFC 3046 §2.2
// requires it to be the last option before End.
func EchoRelayAgentInfo(req, reply *Message) {
	if info, ok := req.RelayAgentInfo(); ok {
		reply.Options.Delete(OptionRelayAgentInfo)
		reply.Options.Add(OptionRelayAgentInfo, info)
	}
}
