// Package client implements the DHCPv4 client: a single-threaded session
// state machine (RFC 2131 §4.4), the event loop that feeds it packets and
// timer expiries, its UDP transport and the bbolt store that keeps the
// binding across restarts.
package client

import (
	"fmt"
	"net"
	"time"
)

// State is a client protocol state (RFC 2131 Figure 5).
type State string

const (
	StateInit       State = "INIT"
	StateSelecting  State = "SELECTING"
	StateRequesting State = "REQUESTING"
	StateInitReboot State = "INIT_REBOOT"
	StateRebooting  State = "REBOOTING"
	StateBound      State = "BOUND"
	StateRenewing   State = "RENEWING"
	StateRebinding  State = "REBINDING"
)

// AllStates lists every state, for metrics.
var AllStates = []State{
	StateInit, StateSelecting, StateRequesting, StateInitReboot,
	StateRebooting, StateBound, StateRenewing, StateRebinding,
}

// HasBinding reports whether the client holds an address in s.
func (s State) HasBinding() bool {
	return s == StateBound || s == StateRenewing || s == StateRebinding
}

// Binding is what the client learned from its last DHCPACK. T1 and T2 are
// offsets from Start, the time the acknowledged request was first sent.
type Binding struct {
	IP         net.IP        `json:"ip"`
	SubnetMask net.IPMask    `json:"subnet_mask,omitempty"`
	Routers    []net.IP      `json:"routers,omitempty"`
	DNSServers []net.IP      `json:"dns_servers,omitempty"`
	DomainName string        `json:"domain_name,omitempty"`
	ServerID   net.IP        `json:"server_id"`
	Start      time.Time     `json:"start"`
	LeaseTime  time.Duration `json:"lease_time"`
	T1         time.Duration `json:"t1"`
	T2         time.Duration `json:"t2"`
}

// RenewAt returns when the client enters RENEWING.
func (b *Binding) RenewAt() time.Time { return b.Start.Add(b.T1) }

// RebindAt returns when the client enters REBINDING.
func (b *Binding) RebindAt() time.Time { return b.Start.Add(b.T2) }

// Expiry returns when the address must be given up.
func (b *Binding) Expiry() time.Time { return b.Start.Add(b.LeaseTime) }

func (b *Binding) String() string {
	return fmt.Sprintf("%s from %s until %s", b.IP, b.ServerID, b.Expiry().Format(time.RFC3339))
}

// TimerKind names a session timer.
type TimerKind int

const (
	TimerRetransmit TimerKind = iota
	TimerRenew
	TimerRebind
	TimerExpiry
	TimerRestart
)

func (k TimerKind) String() string {
	switch k {
	case TimerRetransmit:
		return "retransmit"
	case TimerRenew:
		return "renew"
	case TimerRebind:
		return "rebind"
	case TimerExpiry:
		return "expiry"
	case TimerRestart:
		return "restart"
	default:
		return fmt.Sprintf("TimerKind(%d)", int(k))
	}
}

// Timer is an armed deadline.
type Timer struct {
	Kind TimerKind
	At   time.Time
}
