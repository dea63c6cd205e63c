package dhcpv4

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeOptionStreamBasic(t *testing.T) {
	data := []byte{
		byte(OptionDHCPMessageType), 1, byte(MessageTypeDiscover),
		byte(OptionHostname), 4, 't', 'e', 's', 't',
		byte(OptionSubnetMask), 4, 255, 255, 255, 0,
		byte(OptionEnd),
	}

	opts, err := DecodeOptionStream(data, Strict)
	if err != nil {
		t.Fatalf("DecodeOptionStream error: %v", err)
	}
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	if v, _ := opts.Get(OptionDHCPMessageType); v != MessageTypeDiscover {
		t.Errorf("message type = %v, want %v", v, MessageTypeDiscover)
	}
	if v, _ := opts.Get(OptionHostname); v != Text("test") {
		t.Errorf("hostname = %v, want %q", v, "test")
	}
	mask, _ := opts.Get(OptionSubnetMask)
	if ip, ok := mask.(IP); !ok || !net.IP(ip).Equal(net.IPv4(255, 255, 255, 0)) {
		t.Errorf("subnet mask = %v, want 255.255.255.0", mask)
	}
}

func TestDecodeOptionStreamKeepsPadAndOrder(t *testing.T) {
	data := []byte{
		byte(OptionPad),
		byte(OptionDHCPMessageType), 1, byte(MessageTypeRequest),
		byte(OptionPad),
		byte(OptionRouter), 4, 10, 0, 0, 1,
		byte(OptionRouter), 4, 10, 0, 0, 2,
		byte(OptionEnd),
		0, 0, 0, // trailing pad after End is dropped
	}
	opts, err := DecodeOptionStream(data, Strict)
	if err != nil {
		t.Fatalf("DecodeOptionStream error: %v", err)
	}
	codes := make([]OptionCode, len(opts))
	for i, o := range opts {
		codes[i] = o.Code
	}
	want := []OptionCode{OptionPad, OptionDHCPMessageType, OptionPad, OptionRouter, OptionRouter}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}

	enc, err := opts.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(enc, data[:len(data)-3]) {
		t.Errorf("re-encoded = %v, want %v", enc, data[:len(data)-3])
	}
}

func TestDecodeOptionStreamTruncated(t *testing.T) {
	tests := map[string][]byte{
		"no length byte": {byte(OptionHostname)},
		"short value":    {byte(OptionHostname), 10, 'a', 'b'},
	}
	for name, data := range tests {
		for _, mode := range []Mode{Strict, Lenient} {
			_, err := DecodeOptionStream(data, mode)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("%s/%s: err = %v, want ErrMalformedMessage", name, mode, err)
			}
		}
	}
}

func TestDecodeOptionStreamStrictVersusLenient(t *testing.T) {
	// Router with 5 bytes breaks the multiple-of-4 rule.
	data := []byte{
		byte(OptionRouter), 5, 10, 0, 0, 1, 9,
		byte(OptionHostname), 2, 'h', 'i',
		byte(OptionEnd),
	}

	_, err := DecodeOptionStream(data, Strict)
	if !errors.Is(err, ErrMalformedMessage) || !errors.Is(err, ErrMalformedOption) {
		t.Fatalf("strict err = %v, want ErrMalformedMessage wrapping ErrMalformedOption", err)
	}
	var oe *OptionError
	if !errors.As(err, &oe) || oe.Code != OptionRouter {
		t.Errorf("errors.As OptionError = %v, want code %d", oe, OptionRouter)
	}

	opts, err := DecodeOptionStream(data, Lenient)
	if err != nil {
		t.Fatalf("lenient error: %v", err)
	}
	v, _ := opts.Get(OptionRouter)
	if diff := cmp.Diff(Opaque{10, 0, 0, 1, 9}, v); diff != "" {
		t.Errorf("degraded router (-want +got):\n%s", diff)
	}
	if v, _ := opts.Get(OptionHostname); v != Text("hi") {
		t.Errorf("hostname after degraded option = %v, want hi", v)
	}

	enc, _ := opts.Encode()
	if !bytes.Equal(enc, data) {
		t.Errorf("degraded option did not re-encode verbatim: %v", enc)
	}
}

func TestDecodeOptionArity(t *testing.T) {
	tests := []struct {
		name string
		code OptionCode
		data []byte
		ok   bool
	}{
		{"router one", OptionRouter, []byte{10, 0, 0, 1}, true},
		{"router two", OptionRouter, []byte{10, 0, 0, 1, 10, 0, 0, 2}, true},
		{"router empty", OptionRouter, nil, false},
		{"router odd", OptionRouter, []byte{10, 0, 0}, false},
		{"mask long", OptionSubnetMask, []byte{255, 255, 255, 0, 0}, false},
		{"lease short", OptionIPLeaseTime, []byte{0, 0, 1}, false},
		{"msg type bad", OptionDHCPMessageType, []byte{9}, false},
		{"overload 3", OptionOverload, []byte{3}, true},
		{"overload 4", OptionOverload, []byte{4}, false},
		{"bool 2", OptionIPForwarding, []byte{2}, false},
		{"mtu 67", OptionInterfaceMTU, []byte{0, 67}, false},
		{"max size 576", OptionMaxDHCPMessageSize, []byte{0x02, 0x40}, true},
		{"max size 575", OptionMaxDHCPMessageSize, []byte{0x02, 0x3f}, false},
		{"reassembly 575", OptionMaxDatagramReassembly, []byte{0x02, 0x3f}, false},
		{"ttl 0", OptionDefaultIPTTL, []byte{0}, false},
		{"tcp ttl 0", OptionTCPDefaultTTL, []byte{0}, false},
		{"netbios H", OptionNetBIOSNodeType, []byte{8}, true},
		{"netbios 3", OptionNetBIOSNodeType, []byte{3}, false},
		{"static route 12", OptionStaticRoute, make([]byte, 12), false},
		{"prl empty", OptionParameterRequestList, nil, false},
		{"client id short", OptionClientIdentifier, []byte{1}, false},
		{"hostname empty", OptionHostname, nil, true},
		{"relay truncated", OptionRelayAgentInfo, []byte{1, 5, 'a'}, false},
		{"fqdn short", OptionClientFQDN, []byte{0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOption(tt.code, tt.data)
			if tt.ok && err != nil {
				t.Errorf("DecodeOption(%d, %v) error: %v", tt.code, tt.data, err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformedOption) {
				t.Errorf("DecodeOption(%d, %v) = %v, want ErrMalformedOption", tt.code, tt.data, err)
			}
		})
	}
}

func TestDecodeOptionTypedValues(t *testing.T) {
	tests := []struct {
		code OptionCode
		data []byte
		want Value
	}{
		{OptionIPLeaseTime, []byte{0, 0, 0x0e, 0x10}, Seconds(3600)},
		{OptionTimeOffset, []byte{0xff, 0xff, 0xff, 0xf6}, Int32(-10)},
		{OptionInterfaceMTU, []byte{0x05, 0xdc}, Uint16(1500)},
		{OptionPathMTUPlateauTable, []byte{0x05, 0xdc, 0x02, 0x40}, Uint16s{1500, 576}},
		{OptionIPForwarding, []byte{1}, Bool(true)},
		{OptionDomainName, []byte("example.com"), Text("example.com")},
		{OptionParameterRequestList, []byte{1, 3, 6}, Codes{OptionSubnetMask, OptionRouter, OptionDomainNameServer}},
		{OptionClientIdentifier, []byte{1, 0xaa, 0xbb}, ClientID{Type: 1, Data: []byte{0xaa, 0xbb}}},
		{OptionCode(224), []byte{1, 2, 3}, Opaque{1, 2, 3}},
		{OptionVendorSpecific, []byte{1, 1, 9}, Opaque{1, 1, 9}},
	}
	for _, tt := range tests {
		o, err := DecodeOption(tt.code, tt.data)
		if err != nil {
			t.Errorf("DecodeOption(%d) error: %v", tt.code, err)
			continue
		}
		if diff := cmp.Diff(tt.want, o.Value); diff != "" {
			t.Errorf("DecodeOption(%d) (-want +got):\n%s", tt.code, diff)
		}
		enc, err := o.Encode()
		if err != nil {
			t.Errorf("Encode(%d) error: %v", tt.code, err)
			continue
		}
		want := append([]byte{byte(tt.code), byte(len(tt.data))}, tt.data...)
		if !bytes.Equal(enc, want) {
			t.Errorf("Encode(%d) = %v, want %v", tt.code, enc, want)
		}
	}
}

func TestUnknownOptionRoundTrip(t *testing.T) {
	tlv := []byte{224, 5, 'h', 'e', 'l', 'l', 'o'}
	opts, err := DecodeOptionStream(append(tlv, byte(OptionEnd)), Strict)
	if err != nil {
		t.Fatalf("DecodeOptionStream error: %v", err)
	}
	if _, ok := opts[0].Value.(Opaque); !ok {
		t.Fatalf("unknown option decoded as %T, want Opaque", opts[0].Value)
	}
	enc, err := EncodeOption(opts[0])
	if err != nil {
		t.Fatalf("EncodeOption error: %v", err)
	}
	if !bytes.Equal(enc, tlv) {
		t.Errorf("EncodeOption = %v, want %v", enc, tlv)
	}
}

func TestEncodeOptionErrors(t *testing.T) {
	tests := map[string]Option{
		"too long":   {Code: OptionHostname, Value: Text(strings.Repeat("a", 256))},
		"nil value":  {Code: OptionHostname},
		"end":        {Code: OptionEnd},
		"wrong type": {Code: OptionRouter, Value: Text("10.0.0.1")},
		"not ipv4":   {Code: OptionServerIdentifier, Value: IP(net.ParseIP("2001:db8::1"))},
	}
	for name, o := range tests {
		if _, err := EncodeOption(o); !errors.Is(err, ErrEncoding) {
			t.Errorf("%s: err = %v, want ErrEncoding", name, err)
		}
	}

	// 255 is the largest legal payload.
	if _, err := EncodeOption(Option{Code: OptionHostname, Value: Text(strings.Repeat("a", 255))}); err != nil {
		t.Errorf("255-byte payload: %v", err)
	}
}

func TestRelayAgentInfo(t *testing.T) {
	data := []byte{
		1, 4, 'e', 't', 'h', '0',
		2, 3, 'r', 'i', 'd',
		9, 2, 0xca, 0xfe, // unknown sub-option, passed through
	}
	o, err := DecodeOption(OptionRelayAgentInfo, data)
	if err != nil {
		t.Fatalf("DecodeOption error: %v", err)
	}
	info := o.Value.(RelayAgentInfo)
	if string(info.CircuitID()) != "eth0" {
		t.Errorf("CircuitID = %q, want %q", info.CircuitID(), "eth0")
	}
	if string(info.RemoteID()) != "rid" {
		t.Errorf("RemoteID = %q, want %q", info.RemoteID(), "rid")
	}
	if raw, ok := info.Get(9); !ok || !bytes.Equal(raw, []byte{0xca, 0xfe}) {
		t.Errorf("sub-option 9 = %v, %v", raw, ok)
	}
	enc, _ := o.Encode()
	if !bytes.Equal(enc[2:], data) {
		t.Errorf("relay info re-encoded = %v, want %v", enc[2:], data)
	}
}

func TestDomainSearch(t *testing.T) {
	// RFC 3397 §2 example: eng.apple.com. and marketing.apple.com. with a
	// compression pointer to offset 4.
	data := []byte{
		3, 'e', 'n', 'g', 5, 'a', 'p', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		9, 'm', 'a', 'r', 'k', 'e', 't', 'i', 'n', 'g', 0xc0, 0x04,
	}
	o, err := DecodeOption(OptionDomainSearch, data)
	if err != nil {
		t.Fatalf("DecodeOption error: %v", err)
	}
	list := o.Value.(DomainList)
	want := []string{"eng.apple.com.", "marketing.apple.com."}
	if diff := cmp.Diff(want, list.Names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	enc, _ := o.Encode()
	if !bytes.Equal(enc[2:], data) {
		t.Errorf("decoded list did not re-encode verbatim")
	}

	built, err := EncodeOption(Option{Code: OptionDomainSearch, Value: NewDomainList("eng.apple.com", "marketing.apple.com")})
	if err != nil {
		t.Fatalf("EncodeOption error: %v", err)
	}
	if !bytes.Equal(built[2:], data) {
		t.Errorf("built list = %v, want %v", built[2:], data)
	}

	if _, err := DecodeOption(OptionDomainSearch, []byte{3, 'c', 'o'}); !errors.Is(err, ErrMalformedOption) {
		t.Errorf("truncated label err = %v, want ErrMalformedOption", err)
	}
}

func TestStrictDecodeSplitDomainSearch(t *testing.T) {
	// example.com. split across two instances; neither half parses alone.
	first := []byte{7, 'e', 'x', 'a', 'm'}
	second := []byte{'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	stream := func(a, b []byte) []byte {
		data := []byte{byte(OptionDomainSearch), byte(len(a))}
		data = append(data, a...)
		data = append(data, byte(OptionDomainSearch), byte(len(b)))
		data = append(data, b...)
		return append(data, byte(OptionEnd))
	}

	opts, err := DecodeOptionStream(stream(first, second), Strict)
	if err != nil {
		t.Fatalf("DecodeOptionStream(Strict) error: %v", err)
	}
	v, ok, err := opts.Logical(OptionDomainSearch)
	if err != nil || !ok {
		t.Fatalf("Logical(119) = %v, %v, %v", v, ok, err)
	}
	if diff := cmp.Diff([]string{"example.com."}, v.(DomainList).Names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	// The joined payload still has to be a valid name list.
	bad := []byte{'p', 'l', 'e', 3, 'c', 'o'}
	if _, err := DecodeOptionStream(stream(first, bad), Strict); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("bad joined payload err = %v, want ErrMalformedMessage", err)
	}
	if _, err := DecodeOptionStream(stream(first, bad), Lenient); err != nil {
		t.Errorf("Lenient error = %v, want nil", err)
	}
}

func TestClientFQDN(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ClientFQDN
	}{
		{
			name: "ascii",
			data: []byte{FQDNFlagS, 0, 0, 'h', 'o', 's', 't'},
			want: ClientFQDN{Flags: FQDNFlagS, Name: "host"},
		},
		{
			name: "wire complete",
			data: []byte{FQDNFlagE | FQDNFlagS, 255, 255, 4, 'h', 'o', 's', 't', 3, 'l', 'a', 'n', 0},
			want: ClientFQDN{Flags: FQDNFlagE | FQDNFlagS, RCode1: 255, RCode2: 255, Name: "host.lan."},
		},
		{
			name: "wire partial",
			data: []byte{FQDNFlagE, 0, 0, 4, 'h', 'o', 's', 't'},
			want: ClientFQDN{Flags: FQDNFlagE, Name: "host", Partial: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := DecodeOption(OptionClientFQDN, tt.data)
			if err != nil {
				t.Fatalf("DecodeOption error: %v", err)
			}
			if diff := cmp.Diff(tt.want, o.Value); diff != "" {
				t.Errorf("value (-want +got):\n%s", diff)
			}
			enc, err := o.Encode()
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if !bytes.Equal(enc[2:], tt.data) {
				t.Errorf("re-encoded = %v, want %v", enc[2:], tt.data)
			}
		})
	}
}

func TestOptionsSetDeleteLogical(t *testing.T) {
	var opts Options
	opts.Add(OptionRouter, IPs{net.IPv4(10, 0, 0, 1)})
	opts.Add(OptionHostname, Text("a"))
	opts.Add(OptionRouter, IPs{net.IPv4(10, 0, 0, 2)})

	v, ok, err := opts.Logical(OptionRouter)
	if err != nil || !ok {
		t.Fatalf("Logical = %v, %v", ok, err)
	}
	if ips := v.(IPs); len(ips) != 2 || !ips[1].Equal(net.IPv4(10, 0, 0, 2)) {
		t.Errorf("Logical router = %v, want two addresses", v)
	}

	opts.Set(OptionRouter, IPs{net.IPv4(10, 0, 0, 9)})
	if len(opts) != 2 || opts[0].Code != OptionRouter {
		t.Fatalf("Set did not collapse duplicates in place: %v", opts)
	}

	opts.Delete(OptionRouter)
	if opts.Has(OptionRouter) {
		t.Error("Has(Router) after Delete = true")
	}
	if !opts.Has(OptionHostname) {
		t.Error("Delete removed an unrelated option")
	}
}
