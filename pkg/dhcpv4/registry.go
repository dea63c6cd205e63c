package dhcpv4

import (
	"errors"
	"fmt"
)

// OptionType defines the wire layout of a DHCP option.
type OptionType int

const (
	TypeOpaque         OptionType = iota // Raw bytes, re-emitted verbatim
	TypeIP                               // Single IPv4 address (4 bytes)
	TypeIPList                           // Multiple IPv4 addresses (N*4 bytes)
	TypeIPPairs                          // IPv4 address pairs (N*8 bytes)
	TypeUint8                            // Single byte
	TypeUint16                           // 2 bytes big-endian
	TypeUint16List                       // Multiple uint16 values
	TypeInt32                            // 4 bytes big-endian signed
	TypeSeconds                          // 4 bytes big-endian, seconds
	TypeBool                             // 1 byte, 0x00 or 0x01
	TypeString                           // Variable-length ASCII
	TypeMessageType                      // Option 53
	TypeCodes                            // Parameter request list
	TypeClientID                         // Type byte + identifier
	TypeRelayAgentInfo                   // RFC 3046 sub-options
	TypeDomainList                       // RFC 3397 compressed names
	TypeClientFQDN                       // RFC 4702
	TypeCIDRRoutes                       // RFC 3442 encoded routes
)

// OptionDef is the decoding rule for one option code.
type OptionDef struct {
	Code   OptionCode
	Name   string
	Type   OptionType
	MinLen int
	MaxLen int // 0 means up to 255

	// MinValue and MaxValue bound integer types; zero disables the check.
	MinValue int
	MaxValue int
	Allowed  []byte // permitted values for enumerations
}

var errTrailingData = errors.New("trailing data after name")

// step returns the element size for list types.
func (d *OptionDef) step() int {
	switch d.Type {
	case TypeIPList:
		return 4
	case TypeIPPairs:
		return 8
	case TypeUint16List:
		return 2
	}
	return 0
}

func ipList(code OptionCode, name string) OptionDef {
	return OptionDef{Code: code, Name: name, Type: TypeIPList, MinLen: 4}
}

func text(code OptionCode, name string) OptionDef {
	return OptionDef{Code: code, Name: name, Type: TypeString}
}

func flag(code OptionCode, name string) OptionDef {
	return OptionDef{Code: code, Name: name, Type: TypeBool, MinLen: 1, MaxLen: 1}
}

func seconds(code OptionCode, name string) OptionDef {
	return OptionDef{Code: code, Name: name, Type: TypeSeconds, MinLen: 4, MaxLen: 4}
}

func single(code OptionCode, name string) OptionDef {
	return OptionDef{Code: code, Name: name, Type: TypeIP, MinLen: 4, MaxLen: 4}
}

// optionRegistry maps option codes to their definitions. Codes not listed
// here decode to Opaque.
var optionRegistry = map[OptionCode]OptionDef{
	OptionSubnetMask:             single(OptionSubnetMask, "Subnet Mask"),
	OptionTimeOffset:             {Code: OptionTimeOffset, Name: "Time Offset", Type: TypeInt32, MinLen: 4, MaxLen: 4},
	OptionRouter:                 ipList(OptionRouter, "Router"),
	OptionTimeServer:             ipList(OptionTimeServer, "Time Server"),
	OptionNameServer:             ipList(OptionNameServer, "Name Server"),
	OptionDomainNameServer:       ipList(OptionDomainNameServer, "Domain Name Server"),
	OptionLogServer:              ipList(OptionLogServer, "Log Server"),
	OptionCookieServer:           ipList(OptionCookieServer, "Cookie Server"),
	OptionLPRServer:              ipList(OptionLPRServer, "LPR Server"),
	OptionImpressServer:          ipList(OptionImpressServer, "Impress Server"),
	OptionResourceLocationServer: ipList(OptionResourceLocationServer, "Resource Location Server"),
	OptionHostname:               text(OptionHostname, "Host Name"),
	OptionBootFileSize:           {Code: OptionBootFileSize, Name: "Boot File Size", Type: TypeUint16, MinLen: 2, MaxLen: 2},
	OptionMeritDumpFile:          text(OptionMeritDumpFile, "Merit Dump File"),
	OptionDomainName:             text(OptionDomainName, "Domain Name"),
	OptionSwapServer:             single(OptionSwapServer, "Swap Server"),
	OptionRootPath:               text(OptionRootPath, "Root Path"),
	OptionExtensionsPath:         text(OptionExtensionsPath, "Extensions Path"),
	OptionIPForwarding:           flag(OptionIPForwarding, "IP Forwarding"),
	OptionNonLocalSourceRouting:  flag(OptionNonLocalSourceRouting, "Non-Local Source Routing"),
	OptionPolicyFilter:           {Code: OptionPolicyFilter, Name: "Policy Filter", Type: TypeIPPairs, MinLen: 8},
	OptionMaxDatagramReassembly:  {Code: OptionMaxDatagramReassembly, Name: "Max Datagram Reassembly Size", Type: TypeUint16, MinLen: 2, MaxLen: 2, MinValue: 576},
	OptionDefaultIPTTL:           {Code: OptionDefaultIPTTL, Name: "Default IP TTL", Type: TypeUint8, MinLen: 1, MaxLen: 1, MinValue: 1},
	OptionPathMTUAgingTimeout:    seconds(OptionPathMTUAgingTimeout, "Path MTU Aging Timeout"),
	OptionPathMTUPlateauTable:    {Code: OptionPathMTUPlateauTable, Name: "Path MTU Plateau Table", Type: TypeUint16List, MinLen: 2},
	OptionInterfaceMTU:           {Code: OptionInterfaceMTU, Name: "Interface MTU", Type: TypeUint16, MinLen: 2, MaxLen: 2, MinValue: 68},
	OptionAllSubnetsLocal:        flag(OptionAllSubnetsLocal, "All Subnets Local"),
	OptionBroadcastAddress:       single(OptionBroadcastAddress, "Broadcast Address"),
	OptionPerformMaskDiscovery:   flag(OptionPerformMaskDiscovery, "Perform Mask Discovery"),
	OptionMaskSupplier:           flag(OptionMaskSupplier, "Mask Supplier"),
	OptionPerformRouterDiscovery: flag(OptionPerformRouterDiscovery, "Perform Router Discovery"),
	OptionRouterSolicitAddr:      single(OptionRouterSolicitAddr, "Router Solicitation Address"),
	OptionStaticRoute:            {Code: OptionStaticRoute, Name: "Static Route", Type: TypeIPPairs, MinLen: 8},
	OptionTrailerEncapsulation:   flag(OptionTrailerEncapsulation, "Trailer Encapsulation"),
	OptionARPCacheTimeout:        seconds(OptionARPCacheTimeout, "ARP Cache Timeout"),
	OptionEthernetEncapsulation:  flag(OptionEthernetEncapsulation, "Ethernet Encapsulation"),
	OptionTCPDefaultTTL:          {Code: OptionTCPDefaultTTL, Name: "TCP Default TTL", Type: TypeUint8, MinLen: 1, MaxLen: 1, MinValue: 1},
	OptionTCPKeepaliveInterval:   seconds(OptionTCPKeepaliveInterval, "TCP Keepalive Interval"),
	OptionTCPKeepaliveGarbage:    flag(OptionTCPKeepaliveGarbage, "TCP Keepalive Garbage"),
	OptionNISDomain:              text(OptionNISDomain, "NIS Domain"),
	OptionNISServers:             ipList(OptionNISServers, "NIS Servers"),
	OptionNTPServers:             ipList(OptionNTPServers, "NTP Servers"),
	OptionVendorSpecific:         {Code: OptionVendorSpecific, Name: "Vendor Specific", Type: TypeOpaque},
	OptionNetBIOSNameServer:      ipList(OptionNetBIOSNameServer, "NetBIOS Name Server"),
	OptionNetBIOSDatagramDist:    ipList(OptionNetBIOSDatagramDist, "NetBIOS Datagram Distribution"),
	OptionNetBIOSNodeType:        {Code: OptionNetBIOSNodeType, Name: "NetBIOS Node Type", Type: TypeUint8, MinLen: 1, MaxLen: 1, Allowed: []byte{NetBIOSNodeB, NetBIOSNodeP, NetBIOSNodeM, NetBIOSNodeH}},
	OptionNetBIOSScope:           text(OptionNetBIOSScope, "NetBIOS Scope"),
	OptionXWindowFontServer:      ipList(OptionXWindowFontServer, "X Window Font Server"),
	OptionXWindowDisplayManager:  ipList(OptionXWindowDisplayManager, "X Window Display Manager"),
	OptionRequestedIP:            single(OptionRequestedIP, "Requested IP"),
	OptionIPLeaseTime:            seconds(OptionIPLeaseTime, "IP Lease Time"),
	OptionOverload:               {Code: OptionOverload, Name: "Overload", Type: TypeUint8, MinLen: 1, MaxLen: 1, MinValue: 1, MaxValue: 3},
	OptionDHCPMessageType:        {Code: OptionDHCPMessageType, Name: "DHCP Message Type", Type: TypeMessageType, MinLen: 1, MaxLen: 1},
	OptionServerIdentifier:       single(OptionServerIdentifier, "Server Identifier"),
	OptionParameterRequestList:   {Code: OptionParameterRequestList, Name: "Parameter Request List", Type: TypeCodes, MinLen: 1},
	OptionMessage:                text(OptionMessage, "Message"),
	OptionMaxDHCPMessageSize:     {Code: OptionMaxDHCPMessageSize, Name: "Max DHCP Message Size", Type: TypeUint16, MinLen: 2, MaxLen: 2, MinValue: 576},
	OptionRenewalTime:            seconds(OptionRenewalTime, "Renewal Time (T1)"),
	OptionRebindingTime:          seconds(OptionRebindingTime, "Rebinding Time (T2)"),
	OptionVendorClassID:          text(OptionVendorClassID, "Vendor Class Identifier"),
	OptionClientIdentifier:       {Code: OptionClientIdentifier, Name: "Client Identifier", Type: TypeClientID, MinLen: 2},
	OptionNISPlusDomain:          text(OptionNISPlusDomain, "NIS+ Domain"),
	OptionNISPlusServers:         ipList(OptionNISPlusServers, "NIS+ Servers"),
	OptionTFTPServerName:         text(OptionTFTPServerName, "TFTP Server Name"),
	OptionBootfileName:           text(OptionBootfileName, "Bootfile Name"),
	OptionMobileIPHomeAgent:      {Code: OptionMobileIPHomeAgent, Name: "Mobile IP Home Agent", Type: TypeIPList},
	OptionSMTPServer:             ipList(OptionSMTPServer, "SMTP Server"),
	OptionPOP3Server:             ipList(OptionPOP3Server, "POP3 Server"),
	OptionNNTPServer:             ipList(OptionNNTPServer, "NNTP Server"),
	OptionWWWServer:              ipList(OptionWWWServer, "WWW Server"),
	OptionFingerServer:           ipList(OptionFingerServer, "Finger Server"),
	OptionIRCServer:              ipList(OptionIRCServer, "IRC Server"),
	OptionStreetTalkServer:       ipList(OptionStreetTalkServer, "StreetTalk Server"),
	OptionSTDAServer:             ipList(OptionSTDAServer, "StreetTalk Directory Assistance Server"),
	OptionClientFQDN:             {Code: OptionClientFQDN, Name: "Client FQDN", Type: TypeClientFQDN, MinLen: 3},
	OptionRelayAgentInfo:         {Code: OptionRelayAgentInfo, Name: "Relay Agent Information", Type: TypeRelayAgentInfo, MinLen: 2},
	OptionSubnetSelection:        single(OptionSubnetSelection, "Subnet Selection"),
	OptionDomainSearch:           {Code: OptionDomainSearch, Name: "Domain Search", Type: TypeDomainList},
	OptionClasslessStaticRoute:   {Code: OptionClasslessStaticRoute, Name: "Classless Static Route", Type: TypeCIDRRoutes, MinLen: 5},
}

// GetOptionDef returns the definition for an option code, or nil if unknown.
func GetOptionDef(code OptionCode) *OptionDef {
	def, ok := optionRegistry[code]
	if !ok {
		return nil
	}
	return &def
}

func (c OptionCode) String() string {
	switch c {
	case OptionPad:
		return "Pad"
	case OptionEnd:
		return "End"
	}
	if def, ok := optionRegistry[c]; ok {
		return def.Name
	}
	return fmt.Sprintf("Option(%d)", byte(c))
}

// DecodeOption decodes the payload of a single option. Unknown codes yield
// Opaque; a known code whose payload breaks its layout rule yields an error
// wrapping ErrMalformedOption.
func DecodeOption(code OptionCode, data []byte) (Option, error) {
	def, ok := optionRegistry[code]
	if !ok || def.Type == TypeOpaque {
		return Option{Code: code, Value: Opaque(clone(data))}, nil
	}
	if err := def.checkLen(len(data)); err != nil {
		return Option{}, err
	}
	v, err := def.decode(data)
	if err != nil {
		return Option{}, err
	}
	return Option{Code: code, Value: v}, nil
}

func (d *OptionDef) checkLen(n int) error {
	if n < d.MinLen {
		return optionErrorf(d.Code, "data too short (%d < %d)", n, d.MinLen)
	}
	if d.MaxLen > 0 && n > d.MaxLen {
		return optionErrorf(d.Code, "data too long (%d > %d)", n, d.MaxLen)
	}
	if s := d.step(); s > 0 && n%s != 0 {
		return optionErrorf(d.Code, "length %d not a multiple of %d", n, s)
	}
	return nil
}

func (d *OptionDef) checkRange(v int) error {
	if d.MinValue != 0 && v < d.MinValue {
		return optionErrorf(d.Code, "value %d below minimum %d", v, d.MinValue)
	}
	if d.MaxValue != 0 && v > d.MaxValue {
		return optionErrorf(d.Code, "value %d above maximum %d", v, d.MaxValue)
	}
	if len(d.Allowed) > 0 {
		for _, a := range d.Allowed {
			if int(a) == v {
				return nil
			}
		}
		return optionErrorf(d.Code, "value %d not permitted", v)
	}
	return nil
}

func (d *OptionDef) decode(data []byte) (Value, error) {
	switch d.Type {
	case TypeIP:
		return IP(BytesToIP(data)), nil
	case TypeIPList:
		return IPs(splitIPs(data)), nil
	case TypeIPPairs:
		pairs := make(IPPairs, 0, len(data)/8)
		for i := 0; i < len(data); i += 8 {
			pairs = append(pairs, IPPair{BytesToIP(data[i : i+4]), BytesToIP(data[i+4 : i+8])})
		}
		return pairs, nil
	case TypeUint8:
		if err := d.checkRange(int(data[0])); err != nil {
			return nil, err
		}
		return Uint8(data[0]), nil
	case TypeUint16:
		v := int(data[0])<<8 | int(data[1])
		if err := d.checkRange(v); err != nil {
			return nil, err
		}
		return Uint16(v), nil
	case TypeUint16List:
		list := make(Uint16s, 0, len(data)/2)
		for i := 0; i < len(data); i += 2 {
			list = append(list, uint16(data[i])<<8|uint16(data[i+1]))
		}
		return list, nil
	case TypeInt32:
		return Int32(int32(beUint32(data))), nil
	case TypeSeconds:
		return Seconds(beUint32(data)), nil
	case TypeBool:
		if data[0] > 1 {
			return nil, optionErrorf(d.Code, "boolean value %d", data[0])
		}
		return Bool(data[0] == 1), nil
	case TypeString:
		return Text(data), nil
	case TypeMessageType:
		mt := MessageType(data[0])
		if !mt.Valid() {
			return nil, optionErrorf(d.Code, "unknown message type %d", data[0])
		}
		return mt, nil
	case TypeCodes:
		codes := make(Codes, len(data))
		for i, b := range data {
			codes[i] = OptionCode(b)
		}
		return codes, nil
	case TypeClientID:
		return ClientID{Type: data[0], Data: clone(data[1:])}, nil
	case TypeRelayAgentInfo:
		info, err := ParseRelayAgentInfo(data)
		if err != nil {
			return nil, optionErrorf(d.Code, "%v", err)
		}
		return info, nil
	case TypeDomainList:
		list, err := parseDomainList(data)
		if err != nil {
			return nil, optionErrorf(d.Code, "%v", err)
		}
		return list, nil
	case TypeClientFQDN:
		f, err := parseClientFQDN(data)
		if err != nil {
			return nil, optionErrorf(d.Code, "%v", err)
		}
		return f, nil
	case TypeCIDRRoutes:
		routes, err := BytesToCIDRRoutes(data)
		if err != nil {
			return nil, optionErrorf(d.Code, "%v", err)
		}
		return Routes(routes), nil
	}
	return Opaque(clone(data)), nil
}

// accepts reports whether v is the Go type the registry expects for d.
// Opaque is accepted for every code.
func (d *OptionDef) accepts(v Value) bool {
	if _, ok := v.(Opaque); ok {
		return true
	}
	switch d.Type {
	case TypeIP:
		_, ok := v.(IP)
		return ok
	case TypeIPList:
		_, ok := v.(IPs)
		return ok
	case TypeIPPairs:
		_, ok := v.(IPPairs)
		return ok
	case TypeUint8:
		_, ok := v.(Uint8)
		return ok
	case TypeUint16:
		_, ok := v.(Uint16)
		return ok
	case TypeUint16List:
		_, ok := v.(Uint16s)
		return ok
	case TypeInt32:
		_, ok := v.(Int32)
		return ok
	case TypeSeconds:
		_, ok := v.(Seconds)
		return ok
	case TypeBool:
		_, ok := v.(Bool)
		return ok
	case TypeString:
		_, ok := v.(Text)
		return ok
	case TypeMessageType:
		_, ok := v.(MessageType)
		return ok
	case TypeCodes:
		_, ok := v.(Codes)
		return ok
	case TypeClientID:
		_, ok := v.(ClientID)
		return ok
	case TypeRelayAgentInfo:
		_, ok := v.(RelayAgentInfo)
		return ok
	case TypeDomainList:
		_, ok := v.(DomainList)
		return ok
	case TypeClientFQDN:
		_, ok := v.(ClientFQDN)
		return ok
	case TypeCIDRRoutes:
		_, ok := v.(Routes)
		return ok
	}
	return false
}

// EncodeOption returns the TLV bytes for o. Pad encodes as a single zero
// byte. A payload longer than 255 bytes, a nil value or a value of the wrong
// type for a known code returns an error wrapping ErrEncoding.
func EncodeOption(o Option) ([]byte, error) {
	return o.appendTo(nil)
}

// Encode is shorthand for EncodeOption(o).
func (o Option) Encode() ([]byte, error) { return EncodeOption(o) }

func (o Option) appendTo(b []byte) ([]byte, error) {
	switch o.Code {
	case OptionPad:
		return append(b, byte(OptionPad)), nil
	case OptionEnd:
		return nil, encodingf("End is appended by the encoder, not stored as an option")
	}
	if o.Value == nil {
		return nil, encodingf("option %d has no value", byte(o.Code))
	}
	if def, ok := optionRegistry[o.Code]; ok && !def.accepts(o.Value) {
		return nil, encodingf("option %d (%s): unexpected value type %T", byte(o.Code), def.Name, o.Value)
	}
	payload, err := o.Value.marshal()
	if err != nil {
		return nil, fmt.Errorf("option %d: %w", byte(o.Code), err)
	}
	if len(payload) > MaxOptionLength {
		return nil, encodingf("option %d: payload %d bytes exceeds %d", byte(o.Code), len(payload), MaxOptionLength)
	}
	b = append(b, byte(o.Code), byte(len(payload)))
	return append(b, payload...), nil
}

// encodedLen is the TLV size of o; it assumes o encodes without error.
func (o Option) encodedLen() int {
	if o.Code == OptionPad {
		return 1
	}
	p, _ := o.Value.marshal()
	return 2 + len(p)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
