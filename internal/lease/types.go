// Package lease holds the server-side lease record, the in-memory lease
// table and its bbolt persistence.
package lease

import (
	"encoding/json"
	"net"
	"time"
)

// Status is the lifecycle state of a lease.
type Status string

const (
	StatusOffered  Status = "offered"
	StatusBound    Status = "bound"
	StatusExpired  Status = "expired"
	StatusReleased Status = "released"
)

// Holds reports whether a lease in this status keeps its address allocated.
func (s Status) Holds() bool {
	return s == StatusOffered || s == StatusBound
}

// Lease is a time-bounded grant of an address to one client.
// T1 and T2 are offsets from Start.
type Lease struct {
	ClientKey string           `json:"client_key"`
	IP        net.IP           `json:"ip"`
	MAC       net.HardwareAddr `json:"mac"`
	Hostname  string           `json:"hostname,omitempty"`
	Status    Status           `json:"status"`
	Start     time.Time        `json:"start"`
	Duration  time.Duration    `json:"duration"`
	T1        time.Duration    `json:"t1"`
	T2        time.Duration    `json:"t2"`
	RelayInfo *RelayInfo       `json:"relay_info,omitempty"`
	UpdateSeq uint64           `json:"update_seq"`
}

// RelayInfo stores relay agent information associated with a lease.
type RelayInfo struct {
	GIAddr    net.IP `json:"giaddr,omitempty"`
	CircuitID string `json:"circuit_id,omitempty"`
	RemoteID  string `json:"remote_id,omitempty"`
}

// Expiry returns the time the lease runs out.
func (l *Lease) Expiry() time.Time {
	return l.Start.Add(l.Duration)
}

// IsExpired returns true if the lease has run out at now.
func (l *Lease) IsExpired(now time.Time) bool {
	return !now.Before(l.Expiry())
}

// Remaining returns the time left on the lease at now.
func (l *Lease) Remaining(now time.Time) time.Duration {
	r := l.Expiry().Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// MarshalJSON implements custom JSON marshalling.
func (l *Lease) MarshalJSON() ([]byte, error) {
	type Alias Lease
	return json.Marshal(&struct {
		IP  string `json:"ip"`
		MAC string `json:"mac"`
		*Alias
	}{
		IP:    l.IP.String(),
		MAC:   l.MAC.String(),
		Alias: (*Alias)(l),
	})
}

// UnmarshalJSON implements custom JSON unmarshalling.
func (l *Lease) UnmarshalJSON(data []byte) error {
	type Alias Lease
	aux := &struct {
		IP  string `json:"ip"`
		MAC string `json:"mac"`
		*Alias
	}{
		Alias: (*Alias)(l),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	l.IP = net.ParseIP(aux.IP)
	if aux.MAC == "" {
		l.MAC = nil
		return nil
	}
	var err error
	l.MAC, err = net.ParseMAC(aux.MAC)
	return err
}

// Clone returns a deep copy of the lease.
func (l *Lease) Clone() *Lease {
	c := *l
	c.IP = append(net.IP(nil), l.IP...)
	c.MAC = append(net.HardwareAddr(nil), l.MAC...)
	if l.RelayInfo != nil {
		ri := *l.RelayInfo
		ri.GIAddr = append(net.IP(nil), l.RelayInfo.GIAddr...)
		c.RelayInfo = &ri
	}
	return &c
}
