package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IPToBytes returns the four wire octets of ip, or 0.0.0.0 when ip is not
// IPv4.
func IPToBytes(ip net.IP) []byte {
	var b [4]byte
	if v4 := ip.To4(); v4 != nil {
		copy(b[:], v4)
	}
	return b[:]
}

// BytesToIP is the inverse of IPToBytes; b must be exactly four octets.
func BytesToIP(b []byte) net.IP {
	if len(b) != net.IPv4len {
		return nil
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}

// splitIPs cuts a list-of-addresses payload into addresses. A trailing
// partial address is ignored; length checks happen before decoding.
func splitIPs(b []byte) []net.IP {
	out := make([]net.IP, 0, len(b)/4)
	for len(b) >= 4 {
		out = append(out, BytesToIP(b[:4]))
		b = b[4:]
	}
	return out
}

func IsZeroIP(ip net.IP) bool {
	return ip == nil || ip.Equal(net.IPv4zero)
}

// IPToUint32 treats ip as a big-endian number. Non-IPv4 input is 0.
func IPToUint32(ip net.IP) uint32 {
	if v4 := ip.To4(); v4 != nil {
		return binary.BigEndian.Uint32(v4)
	}
	return 0
}

func Uint32ToIP(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// CIDRRoute is one classless static route (RFC 3442).
type CIDRRoute struct {
	Destination net.IP
	PrefixLen   int
	Gateway     net.IP
}

func (r CIDRRoute) String() string {
	return fmt.Sprintf("%s/%d via %s", r.Destination, r.PrefixLen, r.Gateway)
}

// significant is the number of destination octets carried on the wire.
func significant(prefixLen int) int { return (prefixLen + 7) / 8 }

// CIDRRoutesToBytes writes each route as width, significant destination
// octets, gateway.
func CIDRRoutesToBytes(routes []CIDRRoute) []byte {
	var buf []byte
	for _, r := range routes {
		buf = append(buf, byte(r.PrefixLen))
		buf = append(buf, IPToBytes(r.Destination)[:significant(r.PrefixLen)]...)
		buf = append(buf, IPToBytes(r.Gateway)...)
	}
	return buf
}

// BytesToCIDRRoutes parses an option 121 payload. Destinations keep the
// octets exactly as sent, so re-encoding reproduces the input.
func BytesToCIDRRoutes(b []byte) ([]CIDRRoute, error) {
	var routes []CIDRRoute
	for off := 0; off < len(b); {
		width := int(b[off])
		if width > 32 {
			return nil, fmt.Errorf("invalid CIDR prefix length %d at offset %d", width, off)
		}
		n := significant(width)
		rest := b[off+1:]
		if len(rest) < n+4 {
			return nil, fmt.Errorf("truncated CIDR route at offset %d", off)
		}
		var dst [4]byte
		copy(dst[:], rest[:n])
		routes = append(routes, CIDRRoute{
			Destination: net.IP(dst[:]).To16(),
			PrefixLen:   width,
			Gateway:     BytesToIP(rest[n : n+4]),
		})
		off += 1 + n + 4
	}
	return routes, nil
}
