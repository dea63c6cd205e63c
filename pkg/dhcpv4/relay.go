package dhcpv4

import "fmt"

// SubOption is one RFC 3046 relay agent sub-option, kept as raw bytes.
type SubOption struct {
	Code byte
	Data []byte
}

// RelayAgentInfo is the decoded Relay Agent Information option (82). Only
// Circuit ID and Remote ID have accessors; every sub-option is kept in
// encounter order and re-encoded verbatim.
type RelayAgentInfo struct {
	SubOptions []SubOption
}

// ParseRelayAgentInfo decodes Option 82 sub-options from raw bytes.
// RFC 3046: Relay Agent Information Option.
func ParseRelayAgentInfo(data []byte) (RelayAgentInfo, error) {
	var info RelayAgentInfo
	for i := 0; i < len(data); {
		if i+1 >= len(data) {
			return RelayAgentInfo{}, fmt.Errorf("truncated relay agent sub-option at offset %d", i)
		}
		code := data[i]
		n := int(data[i+1])
		i += 2
		if i+n > len(data) {
			return RelayAgentInfo{}, fmt.Errorf("truncated relay agent sub-option %d at offset %d", code, i-2)
		}
		info.SubOptions = append(info.SubOptions, SubOption{
			Code: code,
			Data: append([]byte(nil), data[i:i+n]...),
		})
		i += n
	}
	return info, nil
}

func (r RelayAgentInfo) marshal() ([]byte, error) {
	var buf []byte
	for _, s := range r.SubOptions {
		if len(s.Data) > MaxOptionLength {
			return nil, encodingf("relay sub-option %d: %d bytes exceeds %d", s.Code, len(s.Data), MaxOptionLength)
		}
		buf = append(buf, s.Code, byte(len(s.Data)))
		buf = append(buf, s.Data...)
	}
	return buf, nil
}

// Get returns the first sub-option with the given code.
func (r RelayAgentInfo) Get(code byte) ([]byte, bool) {
	for _, s := range r.SubOptions {
		if s.Code == code {
			return s.Data, true
		}
	}
	return nil, false
}

// CircuitID returns sub-option 1, or nil.
func (r RelayAgentInfo) CircuitID() []byte {
	b, _ := r.Get(RelaySubOptionCircuitID)
	return b
}

// RemoteID returns sub-option 2, or nil.
func (r RelayAgentInfo) RemoteID() []byte {
	b, _ := r.Get(RelaySubOptionRemoteID)
	return b
}
