package dhcpv4

import (
	"strings"

	"github.com/miekg/dns"
)

// DomainList is the Domain Search option (119, RFC 3397): a sequence of DNS
// names in wire format with message compression relative to the start of
// the option data.
type DomainList struct {
	Names []string

	// wire is the payload as received; it is re-emitted verbatim so that a
	// decoded list keeps its original compression.
	wire []byte
}

// NewDomainList builds a search list from presentation-format names.
func NewDomainList(names ...string) DomainList {
	fq := make([]string, len(names))
	for i, n := range names {
		fq[i] = dns.Fqdn(n)
	}
	return DomainList{Names: fq}
}

func parseDomainList(data []byte) (DomainList, error) {
	var names []string
	for off := 0; off < len(data); {
		name, next, err := dns.UnpackDomainName(data, off)
		if err != nil {
			return DomainList{}, err
		}
		names = append(names, name)
		off = next
	}
	return DomainList{Names: names, wire: append([]byte(nil), data...)}, nil
}

func (d DomainList) marshal() ([]byte, error) {
	if d.wire != nil {
		return d.wire, nil
	}
	size := 0
	for _, n := range d.Names {
		size += len(n) + 2
	}
	buf := make([]byte, size)
	compression := make(map[string]int)
	off := 0
	for _, n := range d.Names {
		var err error
		off, err = dns.PackDomainName(dns.Fqdn(n), buf, off, compression, true)
		if err != nil {
			return nil, encodingf("domain search %q: %v", n, err)
		}
	}
	return buf[:off], nil
}

// Client FQDN flag bits (RFC 4702 §2.1).
const (
	FQDNFlagS byte = 0x01 // server should perform A RR updates
	FQDNFlagO byte = 0x02 // server overrode the client's S bit
	FQDNFlagE byte = 0x04 // name is in canonical wire format
	FQDNFlagN byte = 0x08 // server should not perform any updates
)

// ClientFQDN is the Client FQDN option (81, RFC 4702).
type ClientFQDN struct {
	Flags  byte
	RCode1 byte
	RCode2 byte
	Name   string

	// Partial marks a wire-format name sent without its root label.
	Partial bool
}

func parseClientFQDN(data []byte) (ClientFQDN, error) {
	f := ClientFQDN{Flags: data[0], RCode1: data[1], RCode2: data[2]}
	name := data[3:]
	if f.Flags&FQDNFlagE == 0 {
		f.Name = string(name)
		return f, nil
	}
	if len(name) == 0 {
		return f, nil
	}
	if name[len(name)-1] != 0 {
		f.Partial = true
		name = append(append([]byte(nil), name...), 0)
	}
	n, off, err := dns.UnpackDomainName(name, 0)
	if err != nil {
		return ClientFQDN{}, err
	}
	if off != len(name) {
		return ClientFQDN{}, errTrailingData
	}
	f.Name = n
	if f.Partial {
		f.Name = strings.TrimSuffix(n, ".")
	}
	return f, nil
}

func (f ClientFQDN) marshal() ([]byte, error) {
	buf := []byte{f.Flags, f.RCode1, f.RCode2}
	if f.Flags&FQDNFlagE == 0 || f.Name == "" {
		return append(buf, f.Name...), nil
	}
	wire := make([]byte, len(f.Name)+2)
	off, err := dns.PackDomainName(dns.Fqdn(f.Name), wire, 0, nil, false)
	if err != nil {
		return nil, encodingf("client FQDN %q: %v", f.Name, err)
	}
	wire = wire[:off]
	if f.Partial {
		wire = wire[:off-1]
	}
	return append(buf, wire...), nil
}
