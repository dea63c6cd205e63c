package dhcpv4

import (
	"net"
	"time"
)

// Value is the decoded payload of an option. The set of implementations is
// closed: every known code decodes to one of the types in this package and
// any other code decodes to Opaque.
type Value interface {
	marshal() ([]byte, error)
}

// Option is one entry of a message's option sequence. Pad entries have a
// nil Value; End is never stored, the encoder always appends its own.
type Option struct {
	Code  OptionCode
	Value Value
}

// IP is a single IPv4 address (subnet mask, server identifier, requested IP).
type IP net.IP

// IPs is a non-empty list of IPv4 addresses (routers, DNS servers).
type IPs []net.IP

// IPPair is an address/mask or destination/router pair.
type IPPair [2]net.IP

// IPPairs is the payload of Policy Filter (21) and Static Route (33).
type IPPairs []IPPair

// Uint8 is a one-byte integer or enumeration (TTL, overload, NetBIOS node type).
type Uint8 uint8

// Uint16 is a two-byte integer (MTU, maximum message size).
type Uint16 uint16

// Uint16s is a list of two-byte integers (path MTU plateau table).
type Uint16s []uint16

// Int32 is a signed four-byte integer (time offset).
type Int32 int32

// Seconds is an unsigned 32-bit count of seconds (lease, T1, T2 and timeouts).
type Seconds uint32

// Infinite is the lease time RFC 2131 uses for a permanent assignment.
const Infinite Seconds = 0xffffffff

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) * time.Second }

// SecondsOf truncates d to whole seconds, saturating at Infinite.
func SecondsOf(d time.Duration) Seconds {
	if d <= 0 {
		return 0
	}
	s := d / time.Second
	if s >= time.Duration(Infinite) {
		return Infinite
	}
	return Seconds(s)
}

// Bool is a one-byte flag, 0 or 1.
type Bool bool

// Text is an NVT ASCII string (host name, domain name, message).
type Text string

// Codes is the Parameter Request List (55).
type Codes []OptionCode

// ClientID is the Client Identifier (61): a type byte then the identifier.
// Type 1 means the identifier is an Ethernet hardware address.
type ClientID struct {
	Type byte
	Data []byte
}

// Routes is the Classless Static Route option (121).
type Routes []CIDRRoute

// Opaque is the raw payload of an unknown option, or of a known option that
// failed validation in Lenient mode.
type Opaque []byte

func (v IP) marshal() ([]byte, error) {
	ip4 := net.IP(v).To4()
	if ip4 == nil {
		return nil, encodingf("%v is not an IPv4 address", net.IP(v))
	}
	return []byte{ip4[0], ip4[1], ip4[2], ip4[3]}, nil
}

func (v IPs) marshal() ([]byte, error) {
	buf := make([]byte, 0, 4*len(v))
	for _, ip := range v {
		b, err := IP(ip).marshal()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

func (v IPPairs) marshal() ([]byte, error) {
	buf := make([]byte, 0, 8*len(v))
	for _, p := range v {
		b, err := IPs(p[:]).marshal()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

func (v Uint8) marshal() ([]byte, error)  { return []byte{byte(v)}, nil }
func (v Uint16) marshal() ([]byte, error) { return []byte{byte(v >> 8), byte(v)}, nil }

func (v Uint16s) marshal() ([]byte, error) {
	buf := make([]byte, 0, 2*len(v))
	for _, n := range v {
		buf = append(buf, byte(n>>8), byte(n))
	}
	return buf, nil
}

func (v Int32) marshal() ([]byte, error) {
	return Seconds(uint32(v)).marshal()
}

func (v Seconds) marshal() ([]byte, error) {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}, nil
}

func (v Bool) marshal() ([]byte, error) {
	if v {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (v Text) marshal() ([]byte, error) { return []byte(v), nil }

func (m MessageType) marshal() ([]byte, error) { return []byte{byte(m)}, nil }

func (v Codes) marshal() ([]byte, error) {
	buf := make([]byte, len(v))
	for i, c := range v {
		buf[i] = byte(c)
	}
	return buf, nil
}

func (v ClientID) marshal() ([]byte, error) {
	return append([]byte{v.Type}, v.Data...), nil
}

func (v Routes) marshal() ([]byte, error) {
	for _, r := range v {
		if r.PrefixLen < 0 || r.PrefixLen > 32 {
			return nil, encodingf("route %s: prefix length out of range", r)
		}
	}
	return CIDRRoutesToBytes(v), nil
}

func (v Opaque) marshal() ([]byte, error) { return []byte(v), nil }

// HardwareClientID builds the conventional type-1 client identifier for mac.
func HardwareClientID(mac net.HardwareAddr) ClientID {
	return ClientID{Type: byte(HardwareTypeEthernet), Data: append([]byte(nil), mac...)}
}

// Key returns a stable string form of the identifier for use as a map key.
func (v ClientID) Key() string {
	b, _ := v.marshal()
	return string(b)
}
