package dhcpv4

import (
	"bytes"
	"net"
	"testing"
)

func TestIPUint32(t *testing.T) {
	tests := []struct {
		ip   net.IP
		want uint32
	}{
		{net.IPv4zero, 0},
		{net.IPv4bcast, 0xffffffff},
		{net.IPv4(172, 16, 0, 9), 0xac100009},
		{net.ParseIP("fe80::1"), 0},
		{nil, 0},
	}
	for _, tt := range tests {
		got := IPToUint32(tt.ip)
		if got != tt.want {
			t.Errorf("IPToUint32(%v) = %#08x, want %#08x", tt.ip, got, tt.want)
		}
		if tt.ip.To4() != nil && !Uint32ToIP(got).Equal(tt.ip) {
			t.Errorf("Uint32ToIP(%#08x) = %v, want %v", got, Uint32ToIP(got), tt.ip)
		}
	}
}

func TestIPBytes(t *testing.T) {
	if got := IPToBytes(net.ParseIP("2001:db8::1")); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("IPToBytes(v6) = %v, want zeros", got)
	}
	if got := BytesToIP([]byte{10, 1, 2}); got != nil {
		t.Errorf("BytesToIP(3 octets) = %v, want nil", got)
	}
	got := splitIPs([]byte{9, 9, 9, 9, 149, 112, 112, 112, 1})
	if len(got) != 2 || !got[1].Equal(net.IPv4(149, 112, 112, 112)) {
		t.Errorf("splitIPs = %v", got)
	}
}

func TestCIDRRoutes(t *testing.T) {
	routes := []CIDRRoute{
		{Destination: net.IPv4(172, 20, 0, 0), PrefixLen: 16, Gateway: net.IPv4(10, 0, 0, 1)},
		{Destination: net.IPv4(192, 0, 2, 128), PrefixLen: 25, Gateway: net.IPv4(10, 0, 0, 2)},
		{Destination: net.IPv4zero, PrefixLen: 0, Gateway: net.IPv4(10, 0, 0, 254)},
	}
	wire := []byte{
		16, 172, 20, 10, 0, 0, 1,
		25, 192, 0, 2, 128, 10, 0, 0, 2,
		0, 10, 0, 0, 254,
	}
	if got := CIDRRoutesToBytes(routes); !bytes.Equal(got, wire) {
		t.Fatalf("CIDRRoutesToBytes = %v, want %v", got, wire)
	}

	got, err := BytesToCIDRRoutes(wire)
	if err != nil {
		t.Fatalf("BytesToCIDRRoutes: %v", err)
	}
	if len(got) != len(routes) {
		t.Fatalf("decoded %d routes, want %d", len(got), len(routes))
	}
	for i := range routes {
		if got[i].String() != routes[i].String() {
			t.Errorf("route %d = %s, want %s", i, got[i], routes[i])
		}
	}
}

func TestBytesToCIDRRoutesErrors(t *testing.T) {
	tests := map[string][]byte{
		"width over 32":        {33, 1, 2, 3, 4, 5, 6, 7, 8},
		"missing gateway":      {8, 10, 192, 168},
		"missing destination":  {24, 10},
		"second route cut off": {0, 10, 0, 0, 1, 16, 172},
	}
	for name, b := range tests {
		if _, err := BytesToCIDRRoutes(b); err == nil {
			t.Errorf("%s: BytesToCIDRRoutes(%v) succeeded", name, b)
		}
	}
	if routes, err := BytesToCIDRRoutes(nil); err != nil || len(routes) != 0 {
		t.Errorf("BytesToCIDRRoutes(nil) = %v, %v", routes, err)
	}
}
