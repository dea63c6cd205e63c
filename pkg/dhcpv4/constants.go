// Package dhcpv4 implements the DHCPv4 wire format: the fixed BOOTP header,
// the RFC 2132 option vocabulary, option overload and RFC 3046 relay agent
// information. Everything in this package is pure and safe for concurrent use.
package dhcpv4

import (
	"fmt"
	"net"
)

// DHCP Message Types (RFC 2131 §9.6)
type MessageType byte

const (
	MessageTypeDiscover MessageType = 1 // DHCPDISCOVER
	MessageTypeOffer    MessageType = 2 // DHCPOFFER
	MessageTypeRequest  MessageType = 3 // DHCPREQUEST
	MessageTypeDecline  MessageType = 4 // DHCPDECLINE
	MessageTypeAck      MessageType = 5 // DHCPACK
	MessageTypeNak      MessageType = 6 // DHCPNAK
	MessageTypeRelease  MessageType = 7 // DHCPRELEASE
	MessageTypeInform   MessageType = 8 // DHCPINFORM
)

var messageTypeNames = [...]string{
	MessageTypeDiscover: "DHCPDISCOVER",
	MessageTypeOffer:    "DHCPOFFER",
	MessageTypeRequest:  "DHCPREQUEST",
	MessageTypeDecline:  "DHCPDECLINE",
	MessageTypeAck:      "DHCPACK",
	MessageTypeNak:      "DHCPNAK",
	MessageTypeRelease:  "DHCPRELEASE",
	MessageTypeInform:   "DHCPINFORM",
}

func (m MessageType) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return messageTypeNames[m]
}

// Valid reports whether m is one of the eight RFC 2131 message types.
func (m MessageType) Valid() bool {
	return m >= MessageTypeDiscover && m <= MessageTypeInform
}

// DHCP Op Codes (RFC 2131 §2)
type OpCode byte

const (
	OpCodeBootRequest OpCode = 1 // BOOTREQUEST
	OpCodeBootReply   OpCode = 2 // BOOTREPLY
)

func (o OpCode) String() string {
	switch o {
	case OpCodeBootRequest:
		return "BOOTREQUEST"
	case OpCodeBootReply:
		return "BOOTREPLY"
	default:
		return fmt.Sprintf("OP(%d)", byte(o))
	}
}

// Hardware Types (RFC 1700)
type HardwareType byte

const (
	HardwareTypeEthernet HardwareType = 1
)

// DHCP Option Codes (RFC 2132 and extensions)
type OptionCode byte

const (
	OptionPad                    OptionCode = 0
	OptionSubnetMask             OptionCode = 1
	OptionTimeOffset             OptionCode = 2
	OptionRouter                 OptionCode = 3
	OptionTimeServer             OptionCode = 4
	OptionNameServer             OptionCode = 5
	OptionDomainNameServer       OptionCode = 6
	OptionLogServer              OptionCode = 7
	OptionCookieServer           OptionCode = 8
	OptionLPRServer              OptionCode = 9
	OptionImpressServer          OptionCode = 10
	OptionResourceLocationServer OptionCode = 11
	OptionHostname               OptionCode = 12
	OptionBootFileSize           OptionCode = 13
	OptionMeritDumpFile          OptionCode = 14
	OptionDomainName             OptionCode = 15
	OptionSwapServer             OptionCode = 16
	OptionRootPath               OptionCode = 17
	OptionExtensionsPath         OptionCode = 18
	OptionIPForwarding           OptionCode = 19
	OptionNonLocalSourceRouting  OptionCode = 20
	OptionPolicyFilter           OptionCode = 21
	OptionMaxDatagramReassembly  OptionCode = 22
	OptionDefaultIPTTL           OptionCode = 23
	OptionPathMTUAgingTimeout    OptionCode = 24
	OptionPathMTUPlateauTable    OptionCode = 25
	OptionInterfaceMTU           OptionCode = 26
	OptionAllSubnetsLocal        OptionCode = 27
	OptionBroadcastAddress       OptionCode = 28
	OptionPerformMaskDiscovery   OptionCode = 29
	OptionMaskSupplier           OptionCode = 30
	OptionPerformRouterDiscovery OptionCode = 31
	OptionRouterSolicitAddr      OptionCode = 32
	OptionStaticRoute            OptionCode = 33
	OptionTrailerEncapsulation   OptionCode = 34
	OptionARPCacheTimeout        OptionCode = 35
	OptionEthernetEncapsulation  OptionCode = 36
	OptionTCPDefaultTTL          OptionCode = 37
	OptionTCPKeepaliveInterval   OptionCode = 38
	OptionTCPKeepaliveGarbage    OptionCode = 39
	OptionNISDomain              OptionCode = 40
	OptionNISServers             OptionCode = 41
	OptionNTPServers             OptionCode = 42
	OptionVendorSpecific         OptionCode = 43
	OptionNetBIOSNameServer      OptionCode = 44
	OptionNetBIOSDatagramDist    OptionCode = 45
	OptionNetBIOSNodeType        OptionCode = 46
	OptionNetBIOSScope           OptionCode = 47
	OptionXWindowFontServer      OptionCode = 48
	OptionXWindowDisplayManager  OptionCode = 49
	OptionRequestedIP            OptionCode = 50
	OptionIPLeaseTime            OptionCode = 51
	OptionOverload               OptionCode = 52
	OptionDHCPMessageType        OptionCode = 53
	OptionServerIdentifier       OptionCode = 54
	OptionParameterRequestList   OptionCode = 55
	OptionMessage                OptionCode = 56
	OptionMaxDHCPMessageSize     OptionCode = 57
	OptionRenewalTime            OptionCode = 58
	OptionRebindingTime          OptionCode = 59
	OptionVendorClassID          OptionCode = 60
	OptionClientIdentifier       OptionCode = 61
	OptionNetWareIPDomain        OptionCode = 62
	OptionNetWareIPOption        OptionCode = 63
	OptionNISPlusDomain          OptionCode = 64
	OptionNISPlusServers         OptionCode = 65
	OptionTFTPServerName         OptionCode = 66
	OptionBootfileName           OptionCode = 67
	OptionMobileIPHomeAgent      OptionCode = 68
	OptionSMTPServer             OptionCode = 69
	OptionPOP3Server             OptionCode = 70
	OptionNNTPServer             OptionCode = 71
	OptionWWWServer              OptionCode = 72
	OptionFingerServer           OptionCode = 73
	OptionIRCServer              OptionCode = 74
	OptionStreetTalkServer       OptionCode = 75
	OptionSTDAServer             OptionCode = 76
	OptionUserClass              OptionCode = 77
	OptionClientFQDN             OptionCode = 81
	OptionRelayAgentInfo         OptionCode = 82
	OptionSubnetSelection        OptionCode = 118
	OptionDomainSearch           OptionCode = 119
	OptionClasslessStaticRoute   OptionCode = 121
	OptionVIVendorClass          OptionCode = 124
	OptionVIVendorSpecific       OptionCode = 125
	OptionTFTPServerAddress      OptionCode = 150
	OptionEnd                    OptionCode = 255
)

// Relay Agent Information Sub-Option Types (RFC 3046)
const (
	RelaySubOptionCircuitID  byte = 1
	RelaySubOptionRemoteID   byte = 2
	RelaySubOptionLinkSelect byte = 5 // RFC 3527
)

// Option overload values (RFC 2132 §9.3)
const (
	OverloadFile  byte = 1
	OverloadSName byte = 2
	OverloadBoth  byte = 3
)

// NetBIOS over TCP/IP node types (RFC 2132 §8.7)
const (
	NetBIOSNodeB byte = 0x1
	NetBIOSNodeP byte = 0x2
	NetBIOSNodeM byte = 0x4
	NetBIOSNodeH byte = 0x8
)

// Fixed header layout (RFC 2131 §2)
const (
	HeaderSize      = 236 // op through file
	OptionsOffset   = 240 // HeaderSize + magic cookie
	CHAddrSize      = 16
	SNameSize       = 64
	FileSize        = 128
	FlagBroadcast   = 0x8000
	MaxOptionLength = 255
)

// DHCP Packet Size Limits
const (
	MinPacketSize     = 300  // BOOTP minimum (RFC 1542 §2.1)
	MaxPacketSize     = 1500 // Maximum DHCP packet size (Ethernet MTU)
	DefaultPacketSize = 576  // Default max packet size (RFC 2131 §2)
)

// DHCP Ports
const (
	ServerPort = 67
	ClientPort = 68
)

// DHCP Magic Cookie (RFC 2131 §3)
var MagicCookie = []byte{99, 130, 83, 99}

// Broadcast MAC and IP
var (
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	BroadcastIP  = net.IPv4(255, 255, 255, 255)
	ZeroIP       = net.IPv4(0, 0, 0, 0)
)
