// Package events provides the event bus and hook dispatcher for the dhcpcore
// server and client.
package events

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// EventType represents a DHCP lifecycle event.
type EventType string

// Server-side lease events.
const (
	EventLeaseOffer   EventType = "lease.offer"
	EventLeaseAck     EventType = "lease.ack"
	EventLeaseRenew   EventType = "lease.renew"
	EventLeaseNak     EventType = "lease.nak"
	EventLeaseRelease EventType = "lease.release"
	EventLeaseDecline EventType = "lease.decline"
	EventLeaseExpire  EventType = "lease.expire"
	EventLeaseReclaim EventType = "lease.reclaim"
	EventLeaseInform  EventType = "lease.inform"
)

// Client-side session events.
const (
	EventClientBound    EventType = "client.bound"
	EventClientRenewed  EventType = "client.renewed"
	EventClientNak      EventType = "client.nak"
	EventClientExpired  EventType = "client.expired"
	EventClientDeclined EventType = "client.declined"
	EventClientReleased EventType = "client.released"
)

// Event is the core event payload passed through the event bus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Lease     *LeaseData  `json:"lease,omitempty"`
	Client    *ClientData `json:"client,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// LeaseData carries server lease information in events.
type LeaseData struct {
	IP       net.IP           `json:"ip"`
	MAC      net.HardwareAddr `json:"mac"`
	ClientID string           `json:"client_id,omitempty"`
	Hostname string           `json:"hostname,omitempty"`
	Start    int64            `json:"start"`
	Expiry   int64            `json:"expiry"`
	State    string           `json:"state"`
	OldIP    net.IP           `json:"old_ip,omitempty"`
	Relay    *RelayData       `json:"relay,omitempty"`
}

// RelayData carries relay agent info in events.
type RelayData struct {
	GIAddr    net.IP `json:"giaddr,omitempty"`
	CircuitID string `json:"circuit_id,omitempty"`
	RemoteID  string `json:"remote_id,omitempty"`
}

// ClientData carries the client's binding in events, so a hook can
// configure the interface.
type ClientData struct {
	Interface  string        `json:"interface"`
	OldState   string        `json:"old_state,omitempty"`
	State      string        `json:"state"`
	IP         net.IP        `json:"ip,omitempty"`
	SubnetMask net.IPMask    `json:"subnet_mask,omitempty"`
	Routers    []net.IP      `json:"routers,omitempty"`
	DNSServers []net.IP      `json:"dns_servers,omitempty"`
	DomainName string        `json:"domain_name,omitempty"`
	ServerID   net.IP        `json:"server_id,omitempty"`
	LeaseTime  time.Duration `json:"lease_time,omitempty"`
}

func joinIPs(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, " ")
}

// ToEnvVars converts an event to environment variables for script hooks.
func (e *Event) ToEnvVars() map[string]string {
	env := map[string]string{
		"DHCPCORE_EVENT": string(e.Type),
	}
	if e.Reason != "" {
		env["DHCPCORE_REASON"] = e.Reason
	}

	if e.Lease != nil {
		l := e.Lease
		if l.IP != nil {
			env["DHCPCORE_IP"] = l.IP.String()
		}
		if l.MAC != nil {
			env["DHCPCORE_MAC"] = l.MAC.String()
		}
		if l.Hostname != "" {
			env["DHCPCORE_HOSTNAME"] = l.Hostname
		}
		if l.ClientID != "" {
			env["DHCPCORE_CLIENT_ID"] = l.ClientID
		}
		if l.Start != 0 {
			env["DHCPCORE_LEASE_START"] = fmt.Sprintf("%d", l.Start)
		}
		if l.Expiry != 0 {
			env["DHCPCORE_LEASE_EXPIRY"] = fmt.Sprintf("%d", l.Expiry)
		}
		if l.Start != 0 && l.Expiry != 0 {
			env["DHCPCORE_LEASE_DURATION"] = fmt.Sprintf("%d", l.Expiry-l.Start)
		}
		if l.OldIP != nil {
			env["DHCPCORE_OLD_IP"] = l.OldIP.String()
		}
		if l.Relay != nil {
			if l.Relay.GIAddr != nil {
				env["DHCPCORE_GATEWAY"] = l.Relay.GIAddr.String()
			}
			if l.Relay.CircuitID != "" {
				env["DHCPCORE_RELAY_AGENT_CIRCUIT_ID"] = l.Relay.CircuitID
			}
			if l.Relay.RemoteID != "" {
				env["DHCPCORE_RELAY_AGENT_REMOTE_ID"] = l.Relay.RemoteID
			}
		}
	}

	if e.Client != nil {
		c := e.Client
		env["DHCPCORE_INTERFACE"] = c.Interface
		env["DHCPCORE_STATE"] = c.State
		if c.OldState != "" {
			env["DHCPCORE_OLD_STATE"] = c.OldState
		}
		if c.IP != nil {
			env["DHCPCORE_IP"] = c.IP.String()
		}
		if c.SubnetMask != nil {
			env["DHCPCORE_SUBNET_MASK"] = net.IP(c.SubnetMask).String()
		}
		if len(c.Routers) > 0 {
			env["DHCPCORE_ROUTERS"] = joinIPs(c.Routers)
		}
		if len(c.DNSServers) > 0 {
			env["DHCPCORE_DNS_SERVERS"] = joinIPs(c.DNSServers)
		}
		if c.DomainName != "" {
			env["DHCPCORE_DOMAIN"] = c.DomainName
		}
		if c.ServerID != nil {
			env["DHCPCORE_SERVER_ID"] = c.ServerID.String()
		}
		if c.LeaseTime > 0 {
			env["DHCPCORE_LEASE_TIME"] = fmt.Sprintf("%d", int64(c.LeaseTime/time.Second))
		}
	}

	return env
}
