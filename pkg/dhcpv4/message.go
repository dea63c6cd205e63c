package dhcpv4

import (
	"bytes"
	"encoding/binary"
	"net"
	"time"
)

// Message represents a decoded DHCPv4 message (RFC 2131 §2).
type Message struct {
	Op     OpCode       // Message op code: 1=BOOTREQUEST, 2=BOOTREPLY
	HType  HardwareType // Hardware address type (1=Ethernet)
	HLen   byte         // Hardware address length (6 for Ethernet)
	Hops   byte         // Relay hops
	XID    uint32       // Transaction ID
	Secs   uint16       // Seconds elapsed
	Flags  uint16       // Flags (bit 0 = broadcast)
	CIAddr net.IP       // Client IP address
	YIAddr net.IP       // 'Your' (client) IP address
	SIAddr net.IP       // Next server IP address
	GIAddr net.IP       // Relay agent IP address
	CHAddr [CHAddrSize]byte
	SName  [SNameSize]byte
	File   [FileSize]byte

	// Options is the logical option sequence. For an overloaded message it
	// holds the primary area, then the file area, then the sname area, and
	// the Overload option itself is removed.
	Options Options

	// Legacy marks a BOOTP message without magic cookie or options: either
	// no vendor area at all or an all-zero one.
	Legacy bool
}

// Decode parses a raw DHCPv4 message. Every failure wraps ErrMalformedMessage.
// RFC 2131 §2: packet format.
func Decode(data []byte, mode Mode) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, malformedf("packet too short: %d bytes (minimum %d)", len(data), HeaderSize)
	}

	m := &Message{
		Op:     OpCode(data[0]),
		HType:  HardwareType(data[1]),
		HLen:   data[2],
		Hops:   data[3],
		XID:    binary.BigEndian.Uint32(data[4:8]),
		Secs:   binary.BigEndian.Uint16(data[8:10]),
		Flags:  binary.BigEndian.Uint16(data[10:12]),
		CIAddr: BytesToIP(data[12:16]),
		YIAddr: BytesToIP(data[16:20]),
		SIAddr: BytesToIP(data[20:24]),
		GIAddr: BytesToIP(data[24:28]),
	}
	if m.Op != OpCodeBootRequest && m.Op != OpCodeBootReply {
		return nil, malformedf("invalid op code %d", data[0])
	}
	if m.HLen > CHAddrSize {
		return nil, malformedf("hardware address length %d exceeds %d", m.HLen, CHAddrSize)
	}
	copy(m.CHAddr[:], data[28:44])
	copy(m.SName[:], data[44:108])
	copy(m.File[:], data[108:236])

	// BOOTP without a vendor area.
	if len(data) < OptionsOffset {
		m.Legacy = true
		return m, nil
	}

	// RFC 2131 §3: options need the magic cookie. An RFC 951 vendor area
	// that is all zero is plain BOOTP with nothing in it.
	if !bytes.Equal(data[HeaderSize:OptionsOffset], MagicCookie) {
		if isZero(data[HeaderSize:]) {
			m.Legacy = true
			return m, nil
		}
		return nil, malformedf("invalid DHCP magic cookie: %v", data[HeaderSize:OptionsOffset])
	}

	// Areas are scanned leniently and validated once spliced together, since
	// a split option may continue in file or sname.
	opts, err := scanOptions(data[OptionsOffset:])
	if err != nil {
		return nil, err
	}

	overload, opts, err := takeOverload(opts)
	if err != nil {
		return nil, err
	}
	if overload&OverloadFile != 0 {
		fileOpts, err := scanOptions(m.File[:])
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpts...)
		m.File = [FileSize]byte{}
	}
	if overload&OverloadSName != 0 {
		snameOpts, err := scanOptions(m.SName[:])
		if err != nil {
			return nil, err
		}
		opts = append(opts, snameOpts...)
		m.SName = [SNameSize]byte{}
	}
	if mode == Strict {
		if err := opts.validate(); err != nil {
			return nil, err
		}
	}
	m.Options = opts
	return m, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// takeOverload removes the first Overload option from the primary area and
// returns its value. Values outside 1..3 fail the message in every mode.
func takeOverload(opts Options) (byte, Options, error) {
	for i, o := range opts {
		if o.Code != OptionOverload {
			continue
		}
		var v byte
		switch val := o.Value.(type) {
		case Uint8:
			v = byte(val)
		case Opaque:
			if len(val) != 1 {
				return 0, nil, malformedf("overload option length %d", len(val))
			}
			v = val[0]
		}
		if v < OverloadFile || v > OverloadBoth {
			return 0, nil, malformedf("overload value %d outside 1..3", v)
		}
		out := append(opts[:i:i], opts[i+1:]...)
		return v, out, nil
	}
	return 0, opts, nil
}

// EncodeOptions controls optional encoder behaviour.
type EncodeOptions struct {
	// Overload lets options that do not fit in MaxSize spill into the file
	// field and then the sname field (RFC 2132 §9.3). Both fields must be
	// empty when they are needed.
	Overload bool

	// MaxSize is the datagram size limit used with Overload. Zero means
	// DefaultPacketSize.
	MaxSize int

	// PadTo pads the datagram with Pad bytes after End up to this size.
	PadTo int
}

// Encode serializes the message: header, magic cookie, options in stored
// order and one End option. No overload splitting and no padding.
func (m *Message) Encode() ([]byte, error) {
	return m.EncodeWith(EncodeOptions{})
}

// EncodeWith serializes the message with the given placement options.
func (m *Message) EncodeWith(eo EncodeOptions) ([]byte, error) {
	sname, file := m.SName, m.File
	primary := m.Options

	if m.Legacy && len(m.Options) == 0 && !eo.Overload {
		buf := make([]byte, HeaderSize, max(HeaderSize, eo.PadTo))
		m.putHeader(buf, sname, file)
		return padTo(buf, eo.PadTo), nil
	}

	if eo.Overload {
		var err error
		primary, err = m.placeOverload(eo.MaxSize, &sname, &file)
		if err != nil {
			return nil, err
		}
	}

	optBytes, err := primary.Encode()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, OptionsOffset, OptionsOffset+len(optBytes))
	m.putHeader(buf, sname, file)
	copy(buf[HeaderSize:OptionsOffset], MagicCookie)
	buf = append(buf, optBytes...)
	return padTo(buf, eo.PadTo), nil
}

func (m *Message) putHeader(buf []byte, sname [SNameSize]byte, file [FileSize]byte) {
	buf[0] = byte(m.Op)
	buf[1] = byte(m.HType)
	buf[2] = m.HLen
	buf[3] = m.Hops
	binary.BigEndian.PutUint32(buf[4:8], m.XID)
	binary.BigEndian.PutUint16(buf[8:10], m.Secs)
	binary.BigEndian.PutUint16(buf[10:12], m.Flags)
	copy(buf[12:16], IPToBytes(m.CIAddr))
	copy(buf[16:20], IPToBytes(m.YIAddr))
	copy(buf[20:24], IPToBytes(m.SIAddr))
	copy(buf[24:28], IPToBytes(m.GIAddr))
	copy(buf[28:44], m.CHAddr[:])
	copy(buf[44:108], sname[:])
	copy(buf[108:236], file[:])
}

func padTo(buf []byte, size int) []byte {
	for len(buf) < size {
		buf = append(buf, byte(OptionPad))
	}
	return buf
}

// placeOverload distributes the options over the primary area, the file
// field and the sname field in that order, preserving sequence order. It
// returns the options for the primary area, including the Overload option
// when any spill happened.
func (m *Message) placeOverload(maxSize int, sname *[SNameSize]byte, file *[FileSize]byte) (Options, error) {
	if maxSize == 0 {
		maxSize = DefaultPacketSize
	}
	for _, o := range m.Options {
		if o.Code == OptionOverload {
			return nil, encodingf("overload option is inserted by the encoder")
		}
		if _, err := o.Encode(); err != nil {
			return nil, err
		}
	}

	// Everything fits: no overload at all.
	room := maxSize - OptionsOffset - 1
	total := 0
	for _, o := range m.Options {
		total += o.encodedLen()
	}
	if total <= room {
		return m.Options, nil
	}

	// Reserve 3 bytes for the Overload option itself.
	areas := []struct {
		room int
		opts Options
	}{
		{room: room - 3},
		{room: FileSize - 1},
		{room: SNameSize - 1},
	}
	area := 0
	for _, o := range m.Options {
		n := o.encodedLen()
		for area < len(areas) && n > areas[area].room {
			area++
		}
		if area == len(areas) {
			return nil, encodingf("options do not fit in %d bytes with overload", maxSize)
		}
		areas[area].room -= n
		areas[area].opts = append(areas[area].opts, o)
	}

	var flag byte
	if len(areas[1].opts) > 0 {
		if *file != ([FileSize]byte{}) {
			return nil, encodingf("file field in use, cannot carry overloaded options")
		}
		b, _ := areas[1].opts.Encode()
		*file = [FileSize]byte{}
		copy(file[:], b)
		flag |= OverloadFile
	}
	if len(areas[2].opts) > 0 {
		if *sname != ([SNameSize]byte{}) {
			return nil, encodingf("sname field in use, cannot carry overloaded options")
		}
		b, _ := areas[2].opts.Encode()
		*sname = [SNameSize]byte{}
		copy(sname[:], b)
		flag |= OverloadSName
	}
	primary := append(Options{{Code: OptionOverload, Value: Uint8(flag)}}, areas[0].opts...)
	return primary, nil
}

// HardwareAddr returns the significant HLen bytes of chaddr.
func (m *Message) HardwareAddr() net.HardwareAddr {
	n := int(m.HLen)
	if n > CHAddrSize {
		n = CHAddrSize
	}
	return net.HardwareAddr(append([]byte(nil), m.CHAddr[:n]...))
}

// SetHardwareAddr stores mac in chaddr and sets HLen.
func (m *Message) SetHardwareAddr(mac net.HardwareAddr) {
	m.CHAddr = [CHAddrSize]byte{}
	n := copy(m.CHAddr[:], mac)
	m.HLen = byte(n)
}

// ServerName returns sname up to the first NUL.
func (m *Message) ServerName() string { return cString(m.SName[:]) }

// BootFile returns file up to the first NUL.
func (m *Message) BootFile() string { return cString(m.File[:]) }

// SetServerName stores name in sname. The field keeps a terminating NUL, so
// names of 64 bytes or more are rejected.
func (m *Message) SetServerName(name string) error {
	if len(name) >= SNameSize {
		return encodingf("server name is %d bytes, field holds %d", len(name), SNameSize-1)
	}
	m.SName = [SNameSize]byte{}
	copy(m.SName[:], name)
	return nil
}

// SetBootFile stores name in file.
func (m *Message) SetBootFile(name string) error {
	if len(name) >= FileSize {
		return encodingf("boot file name is %d bytes, field holds %d", len(name), FileSize-1)
	}
	m.File = [FileSize]byte{}
	copy(m.File[:], name)
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// MessageType returns the DHCP message type from option 53, or 0.
func (m *Message) MessageType() MessageType {
	if v, ok := m.Options.Get(OptionDHCPMessageType); ok {
		if mt, ok := v.(MessageType); ok {
			return mt
		}
	}
	return 0
}

// Option returns the logical value of code: repeated instances are joined
// (RFC 3396). A split value that does not decode reads as absent.
func (m *Message) Option(code OptionCode) (Value, bool) {
	v, ok, err := m.Options.Logical(code)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func (m *Message) ip(code OptionCode) net.IP {
	if v, ok := m.Option(code); ok {
		if ip, ok := v.(IP); ok {
			return net.IP(ip)
		}
	}
	return nil
}

func (m *Message) seconds(code OptionCode) (Seconds, bool) {
	if v, ok := m.Option(code); ok {
		if s, ok := v.(Seconds); ok {
			return s, true
		}
	}
	return 0, false
}

func (m *Message) text(code OptionCode) string {
	if v, ok := m.Option(code); ok {
		if s, ok := v.(Text); ok {
			return string(s)
		}
	}
	return ""
}

// RequestedIP returns the requested IP address from option 50.
func (m *Message) RequestedIP() net.IP { return m.ip(OptionRequestedIP) }

// ServerIdentifier returns the server identifier from option 54.
func (m *Message) ServerIdentifier() net.IP { return m.ip(OptionServerIdentifier) }

// SubnetMask returns option 1 as a mask.
func (m *Message) SubnetMask() net.IPMask {
	if ip := m.ip(OptionSubnetMask); ip != nil {
		return net.IPMask(ip.To4())
	}
	return nil
}

// Routers returns option 3.
func (m *Message) Routers() []net.IP {
	if v, ok := m.Option(OptionRouter); ok {
		if ips, ok := v.(IPs); ok {
			return []net.IP(ips)
		}
	}
	return nil
}

// LeaseTime returns option 51.
func (m *Message) LeaseTime() (time.Duration, bool) {
	s, ok := m.seconds(OptionIPLeaseTime)
	return s.Duration(), ok
}

// RenewalTime returns option 58 (T1).
func (m *Message) RenewalTime() (time.Duration, bool) {
	s, ok := m.seconds(OptionRenewalTime)
	return s.Duration(), ok
}

// RebindingTime returns option 59 (T2).
func (m *Message) RebindingTime() (time.Duration, bool) {
	s, ok := m.seconds(OptionRebindingTime)
	return s.Duration(), ok
}

// ClientIdentifier returns option 61.
func (m *Message) ClientIdentifier() (ClientID, bool) {
	if v, ok := m.Option(OptionClientIdentifier); ok {
		if id, ok := v.(ClientID); ok {
			return id, true
		}
	}
	return ClientID{}, false
}

// ClientKey identifies the client: option 61 when present, else htype+chaddr.
func (m *Message) ClientKey() string {
	if id, ok := m.ClientIdentifier(); ok {
		return id.Key()
	}
	return ClientID{Type: byte(m.HType), Data: m.HardwareAddr()}.Key()
}

// Hostname returns the hostname from option 12.
func (m *Message) Hostname() string { return m.text(OptionHostname) }

// ErrorMessage returns option 56, typically set on DHCPNAK.
func (m *Message) ErrorMessage() string { return m.text(OptionMessage) }

// ParameterRequestList returns the list of requested option codes.
func (m *Message) ParameterRequestList() []OptionCode {
	if v, ok := m.Option(OptionParameterRequestList); ok {
		if codes, ok := v.(Codes); ok {
			return []OptionCode(codes)
		}
	}
	return nil
}

// MaxMessageSize returns the maximum DHCP message size from option 57.
func (m *Message) MaxMessageSize() int {
	if v, ok := m.Option(OptionMaxDHCPMessageSize); ok {
		if n, ok := v.(Uint16); ok {
			return int(n)
		}
	}
	return 0
}

// RelayAgentInfo returns option 82.
func (m *Message) RelayAgentInfo() (RelayAgentInfo, bool) {
	if v, ok := m.Option(OptionRelayAgentInfo); ok {
		if info, ok := v.(RelayAgentInfo); ok {
			return info, true
		}
	}
	return RelayAgentInfo{}, false
}

// IsBroadcast returns true if the broadcast flag is set.
func (m *Message) IsBroadcast() bool {
	return m.Flags&FlagBroadcast != 0
}

// SetBroadcast sets or clears the broadcast flag.
func (m *Message) SetBroadcast(on bool) {
	if on {
		m.Flags |= FlagBroadcast
	} else {
		m.Flags &^= FlagBroadcast
	}
}

// IsRelayed returns true if the packet was relayed (GIAddr is non-zero).
func (m *Message) IsRelayed() bool {
	return !IsZeroIP(m.GIAddr)
}

// Clone returns a copy that shares no slices with m except option values.
func (m *Message) Clone() *Message {
	c := *m
	c.CIAddr = cloneIP(m.CIAddr)
	c.YIAddr = cloneIP(m.YIAddr)
	c.SIAddr = cloneIP(m.SIAddr)
	c.GIAddr = cloneIP(m.GIAddr)
	c.Options = m.Options.Clone()
	return &c
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	return append(net.IP(nil), ip...)
}
