// Package dhcp implements the DHCP server: the allocation engine that turns
// client messages into lease decisions and replies, and the UDP transport
// that feeds it.
package dhcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/hostname"
	"github.com/athena-dhcpd/dhcpcore/internal/lease"
	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
	"github.com/athena-dhcpd/dhcpcore/internal/pool"
	"github.com/athena-dhcpd/dhcpcore/internal/quarantine"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// Outcome classifies what the engine did with a message.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeOffer
	OutcomeAck
	OutcomeNak
	OutcomeReleased
	OutcomeDeclined
	OutcomeExhausted
	OutcomeInform
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeOffer:
		return "offer"
	case OutcomeAck:
		return "ack"
	case OutcomeNak:
		return "nak"
	case OutcomeReleased:
		return "released"
	case OutcomeDeclined:
		return "declined"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeInform:
		return "inform"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the engine's answer to one message. Reply is nil when nothing
// is to be sent (release, decline, exhaustion, ignored messages).
type Result struct {
	Outcome Outcome
	Reply   *dhcpv4.Message
	Lease   *lease.Lease
	Reason  string
}

// EngineConfig is the address plan and timing the engine serves.
type EngineConfig struct {
	ServerID     net.IP
	Network      *net.IPNet
	RangeStart   net.IP
	RangeEnd     net.IP
	LeaseTime    time.Duration
	RenewalTime  time.Duration // T1; zero means half the lease
	RebindTime   time.Duration // T2; zero means 7/8 of the lease
	OfferTimeout time.Duration
	Routers      []net.IP
	DNSServers   []net.IP
	NTPServers   []net.IP
	DomainName   string
	DomainSearch []string
	Hostname     hostname.Config
}

// Persister is where lease mutations are written through. *lease.Store
// implements it.
type Persister interface {
	Put(l lease.Lease) error
	Delete(ip net.IP) error
}

// Engine is the server allocation engine. The lease table, the pool and the
// quarantine are guarded by one mutex; a request holds it for its whole
// read-modify-write so two clients can never be handed the same address.
type Engine struct {
	cfg        EngineConfig
	mu         sync.Mutex
	table      *lease.Table
	pool       *pool.Pool
	quarantine *quarantine.Table
	hostnames  *hostname.Sanitiser
	store      Persister
	bus        *events.Bus
	logger     *slog.Logger
	now        func() time.Time
	seq        uint64
}

// NewEngine creates an engine for cfg. store, bus and quarantine may be
// nil; a nil quarantine gives a memory-only one-hour hold.
func NewEngine(cfg EngineConfig, store Persister, q *quarantine.Table, bus *events.Bus, logger *slog.Logger) (*Engine, error) {
	if cfg.ServerID.To4() == nil {
		return nil, fmt.Errorf("server identifier %v is not IPv4", cfg.ServerID)
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("no network configured")
	}
	if cfg.LeaseTime <= 0 {
		return nil, fmt.Errorf("lease time must be positive, got %s", cfg.LeaseTime)
	}
	if cfg.RenewalTime == 0 {
		cfg.RenewalTime = cfg.LeaseTime / 2
	}
	if cfg.RebindTime == 0 {
		cfg.RebindTime = cfg.LeaseTime * 7 / 8
	}
	if !(cfg.RenewalTime < cfg.RebindTime && cfg.RebindTime < cfg.LeaseTime) {
		return nil, fmt.Errorf("need T1 (%s) < T2 (%s) < lease (%s)", cfg.RenewalTime, cfg.RebindTime, cfg.LeaseTime)
	}
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = time.Minute
	}

	p, err := pool.NewPool(cfg.Network.String(), cfg.RangeStart, cfg.RangeEnd, cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if q == nil {
		q, _ = quarantine.NewTable(nil, time.Hour, 0)
	}
	cfg.ServerID = cfg.ServerID.To4()

	e := &Engine{
		cfg:        cfg,
		table:      lease.NewTable(),
		pool:       p,
		quarantine: q,
		store:      store,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
	}
	e.hostnames, err = hostname.New(cfg.Hostname, e.hostnameTaken, logger)
	if err != nil {
		return nil, fmt.Errorf("hostname sanitiser: %w", err)
	}
	for _, r := range q.Active(e.now()) {
		p.AllocateSpecific(r.IP)
	}
	metrics.PoolSize.WithLabelValues(p.Name).Set(float64(p.Size()))
	return e, nil
}

// SetClock replaces the engine's time source. Tests use it.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Restore loads persisted leases into the table. Records holding an
// address re-reserve it in the pool; released and expired records are kept
// so returning clients get their old address back.
func (e *Engine) Restore(leases []lease.Lease, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seq > e.seq {
		e.seq = seq
	}
	restored := 0
	for _, l := range leases {
		if !e.cfg.Network.Contains(l.IP) {
			e.logger.Warn("skipping persisted lease outside network", "ip", l.IP.String())
			continue
		}
		if l.Status.Holds() && !e.pool.AllocateSpecific(l.IP) && e.pool.Contains(l.IP) {
			e.logger.Warn("persisted lease collides with an allocated address", "ip", l.IP.String())
			continue
		}
		e.table.Put(l)
		restored++
	}
	e.updateGauges()
	e.logger.Info("leases restored", "count", restored, "seq", e.seq)
}

// Handle processes one client message.
func (e *Engine) Handle(ctx context.Context, msg *dhcpv4.Message) (*Result, error) {
	if msg.Op != dhcpv4.OpCodeBootRequest {
		return &Result{Outcome: OutcomeIgnored, Reason: "not a BOOTREQUEST"}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mt := msg.MessageType()
	e.logger.Debug("handling DHCP message",
		"msg_type", mt.String(),
		"mac", msg.HardwareAddr().String(),
		"xid", fmt.Sprintf("%08x", msg.XID),
		"ciaddr", msg.CIAddr.String(),
		"giaddr", msg.GIAddr.String())

	switch mt {
	case dhcpv4.MessageTypeDiscover:
		return e.handleDiscover(msg)
	case dhcpv4.MessageTypeRequest:
		return e.handleRequest(msg)
	case dhcpv4.MessageTypeRelease:
		return e.handleRelease(msg)
	case dhcpv4.MessageTypeDecline:
		return e.handleDecline(msg)
	case dhcpv4.MessageTypeInform:
		return e.handleInform(msg), nil
	default:
		return &Result{Outcome: OutcomeIgnored, Reason: "unsupported message type " + mt.String()}, nil
	}
}

// handleDiscover processes DHCPDISCOVER → DHCPOFFER.
// RFC 2131 §4.3.1: server response to DHCPDISCOVER.
func (e *Engine) handleDiscover(msg *dhcpv4.Message) (*Result, error) {
	key := msg.ClientKey()
	mac := msg.HardwareAddr()
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ip, fresh := e.selectAddress(key, msg.RequestedIP())
	if ip == nil {
		metrics.PoolExhausted.WithLabelValues(e.pool.Name).Inc()
		e.logger.Warn("pool exhausted, no offer",
			"mac", mac.String(),
			"pool", e.pool.RangeString())
		return &Result{Outcome: OutcomeExhausted, Reason: "no free address"}, nil
	}

	l := e.newLease(msg, ip, lease.StatusOffered, now)
	if err := e.put(&l); err != nil {
		// nothing records the address yet, so the sweep would never free it
		if _, recorded := e.table.ByAddr(ip); fresh && !recorded {
			e.pool.Release(ip)
		}
		return nil, fmt.Errorf("recording offer of %s to %s: %w", ip, mac, err)
	}

	reply := dhcpv4.NewReply(msg, dhcpv4.MessageTypeOffer, e.cfg.ServerID)
	reply.YIAddr = ip
	e.setSubnetOptions(reply, true)
	dhcpv4.EchoRelayAgentInfo(msg, reply)

	metrics.LeaseOperations.WithLabelValues("offer").Inc()
	e.publish(events.EventLeaseOffer, &l, "")
	e.logger.Info("DHCPOFFER", "mac", mac.String(), "ip", ip.String())
	return &Result{Outcome: OutcomeOffer, Reply: reply, Lease: l.Clone()}, nil
}

// selectAddress picks an address for key and marks it allocated: the
// address the client already holds or held before, then the one it asks
// for, then the lowest free one. fresh is false when the client already
// held the address. Returns nil when the pool is exhausted.
func (e *Engine) selectAddress(key string, requested net.IP) (ip net.IP, fresh bool) {
	if prev, ok := e.table.ByClient(key); ok {
		if prev.Status.Holds() {
			return prev.IP, false
		}
		if e.pool.AllocateSpecific(prev.IP) {
			return prev.IP, true
		}
	}
	// quarantined addresses keep their pool bit, so AllocateSpecific and
	// Allocate never return one
	if requested != nil && e.pool.AllocateSpecific(requested) {
		return requested.To4(), true
	}
	if ip := e.pool.Allocate(); ip != nil {
		return ip, true
	}
	return nil, false
}

// handleRequest processes DHCPREQUEST → DHCPACK or DHCPNAK.
// RFC 2131 §4.3.2: the server identifier tells SELECTING apart from
// INIT-REBOOT, RENEWING and REBINDING.
func (e *Engine) handleRequest(msg *dhcpv4.Message) (*Result, error) {
	key := msg.ClientKey()
	mac := msg.HardwareAddr()
	now := e.now()
	serverID := msg.ServerIdentifier()

	e.mu.Lock()
	defer e.mu.Unlock()

	if serverID != nil && !serverID.Equal(e.cfg.ServerID) {
		// The client selected another server; drop our offer.
		if l, ok := e.table.ByClient(key); ok && l.Status == lease.StatusOffered {
			if err := e.reclaim(&l, lease.StatusReleased); err != nil {
				return nil, err
			}
		}
		e.logger.Debug("DHCPREQUEST for another server, ignoring",
			"mac", mac.String(),
			"server_id", serverID.String())
		return &Result{Outcome: OutcomeIgnored, Reason: "request for another server"}, nil
	}

	ip := msg.RequestedIP()
	if ip == nil && !dhcpv4.IsZeroIP(msg.CIAddr) {
		ip = msg.CIAddr // renewing or rebinding
	}
	if ip == nil {
		return e.nak(msg, "no IP address in request"), nil
	}
	if !e.cfg.Network.Contains(ip) {
		return e.nak(msg, "requested IP not in subnet"), nil
	}

	l, ok := e.table.ByAddr(ip)
	switch {
	case !ok || l.ClientKey != key:
		return e.nak(msg, "no lease for this client"), nil
	case !l.Status.Holds():
		return e.nak(msg, "lease is "+string(l.Status)), nil
	case l.IsExpired(now):
		return e.nak(msg, "lease expired"), nil
	case l.Status == lease.StatusOffered && now.Sub(l.Start) >= e.cfg.OfferTimeout:
		return e.nak(msg, "offer timed out"), nil
	}

	renewing := l.Status == lease.StatusBound
	bound := e.newLease(msg, ip, lease.StatusBound, now)
	if err := e.put(&bound); err != nil {
		return nil, fmt.Errorf("binding %s to %s: %w", ip, mac, err)
	}

	reply := dhcpv4.NewReply(msg, dhcpv4.MessageTypeAck, e.cfg.ServerID)
	reply.YIAddr = ip
	if !dhcpv4.IsZeroIP(msg.CIAddr) {
		reply.CIAddr = msg.CIAddr
	}
	e.setSubnetOptions(reply, true)
	dhcpv4.EchoRelayAgentInfo(msg, reply)

	op, evt := "ack", events.EventLeaseAck
	if renewing {
		op, evt = "renew", events.EventLeaseRenew
	}
	metrics.LeaseOperations.WithLabelValues(op).Inc()
	e.publish(evt, &bound, "")
	e.logger.Info("DHCPACK", "mac", mac.String(), "ip", ip.String(), "renew", renewing)
	return &Result{Outcome: OutcomeAck, Reply: reply, Lease: bound.Clone()}, nil
}

// nak builds a DHCPNAK. RFC 2131 Table 3: yiaddr and ciaddr zero, no lease
// options. A relay must broadcast it to the client.
func (e *Engine) nak(msg *dhcpv4.Message, reason string) *Result {
	e.logger.Warn("DHCPNAK",
		"mac", msg.HardwareAddr().String(),
		"reason", reason)

	reply := dhcpv4.NewReply(msg, dhcpv4.MessageTypeNak, e.cfg.ServerID)
	reply.Options.Set(dhcpv4.OptionMessage, dhcpv4.Text(reason))
	if msg.IsRelayed() {
		reply.SetBroadcast(true)
	}
	dhcpv4.EchoRelayAgentInfo(msg, reply)

	metrics.LeaseOperations.WithLabelValues("nak").Inc()
	e.bus.Publish(events.Event{
		Type:      events.EventLeaseNak,
		Timestamp: e.now(),
		Lease: &events.LeaseData{
			IP:       msg.RequestedIP(),
			MAC:      msg.HardwareAddr(),
			ClientID: msg.ClientKey(),
		},
		Reason: reason,
	})
	return &Result{Outcome: OutcomeNak, Reply: reply, Reason: reason}
}

// handleRelease processes DHCPRELEASE. RFC 2131 §4.4.4: no reply.
func (e *Engine) handleRelease(msg *dhcpv4.Message) (*Result, error) {
	key := msg.ClientKey()
	ip := msg.CIAddr

	e.mu.Lock()
	defer e.mu.Unlock()

	if sid := msg.ServerIdentifier(); sid != nil && !sid.Equal(e.cfg.ServerID) {
		return &Result{Outcome: OutcomeIgnored, Reason: "release for another server"}, nil
	}
	l, ok := e.table.ByAddr(ip)
	if !ok || l.ClientKey != key || !l.Status.Holds() {
		e.logger.Debug("DHCPRELEASE for unknown lease",
			"mac", msg.HardwareAddr().String(),
			"ip", ip.String())
		return &Result{Outcome: OutcomeIgnored, Reason: "no lease to release"}, nil
	}

	if err := e.reclaim(&l, lease.StatusReleased); err != nil {
		return nil, fmt.Errorf("releasing %s: %w", ip, err)
	}
	metrics.LeaseOperations.WithLabelValues("release").Inc()
	e.publish(events.EventLeaseRelease, &l, "")
	e.logger.Info("DHCPRELEASE", "mac", l.MAC.String(), "ip", ip.String())
	return &Result{Outcome: OutcomeReleased, Lease: l.Clone()}, nil
}

// handleDecline processes DHCPDECLINE: the client found the address in use.
// RFC 2131 §4.3.3: the address is marked unusable and its lease removed.
func (e *Engine) handleDecline(msg *dhcpv4.Message) (*Result, error) {
	key := msg.ClientKey()
	mac := msg.HardwareAddr()
	ip := msg.RequestedIP()
	now := e.now()

	if ip == nil {
		e.logger.Warn("DHCPDECLINE without requested IP", "mac", mac.String())
		return &Result{Outcome: OutcomeIgnored, Reason: "decline without requested IP"}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if sid := msg.ServerIdentifier(); sid != nil && !sid.Equal(e.cfg.ServerID) {
		return &Result{Outcome: OutcomeIgnored, Reason: "decline for another server"}, nil
	}
	l, ok := e.table.ByAddr(ip)
	if !ok || l.ClientKey != key {
		e.logger.Warn("DHCPDECLINE for an address not leased to the client",
			"mac", mac.String(),
			"ip", ip.String())
		return &Result{Outcome: OutcomeIgnored, Reason: "no lease to decline"}, nil
	}

	permanent, err := e.quarantine.Add(ip, key, mac, now)
	if err != nil {
		return nil, fmt.Errorf("quarantining %s: %w", ip, err)
	}
	// the pool bit stays set until the quarantine expires
	e.pool.AllocateSpecific(ip)
	e.table.Delete(ip)
	if e.store != nil {
		if err := e.store.Delete(ip); err != nil {
			return nil, fmt.Errorf("deleting declined lease %s: %w", ip, err)
		}
	}
	e.updateGauges()

	metrics.LeaseOperations.WithLabelValues("decline").Inc()
	reason := "address in use"
	if permanent {
		reason = "address in use, held permanently"
	}
	e.publish(events.EventLeaseDecline, &l, reason)
	e.logger.Warn("DHCPDECLINE",
		"mac", mac.String(),
		"ip", ip.String(),
		"permanent", permanent)
	return &Result{Outcome: OutcomeDeclined, Lease: l.Clone(), Reason: reason}, nil
}

// handleInform processes DHCPINFORM: configuration only, no lease.
// RFC 2131 §4.3.5: yiaddr zero, no lease time options.
func (e *Engine) handleInform(msg *dhcpv4.Message) *Result {
	reply := dhcpv4.NewReply(msg, dhcpv4.MessageTypeAck, e.cfg.ServerID)
	reply.CIAddr = msg.CIAddr
	e.setSubnetOptions(reply, false)
	dhcpv4.EchoRelayAgentInfo(msg, reply)

	metrics.LeaseOperations.WithLabelValues("inform").Inc()
	e.bus.Publish(events.Event{
		Type:      events.EventLeaseInform,
		Timestamp: e.now(),
		Lease: &events.LeaseData{
			IP:  msg.CIAddr,
			MAC: msg.HardwareAddr(),
		},
	})
	e.logger.Info("DHCPINFORM", "mac", msg.HardwareAddr().String(), "ciaddr", msg.CIAddr.String())
	return &Result{Outcome: OutcomeInform, Reply: reply}
}

// SweepStats reports what one sweep did.
type SweepStats struct {
	Expired       int
	Reclaimed     int
	Unquarantined int
}

// Sweep expires bound and offered leases past their end, reclaims offers
// older than the offer timeout and lifts finished quarantines. The table is
// scanned from a snapshot and the lock is taken per lease.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := e.now()

	e.mu.Lock()
	snapshot := e.table.Snapshot()
	e.mu.Unlock()

	for _, snap := range snapshot {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !snap.Status.Holds() {
			continue
		}
		expired := snap.IsExpired(now)
		stale := snap.Status == lease.StatusOffered && now.Sub(snap.Start) >= e.cfg.OfferTimeout
		if !expired && !stale {
			continue
		}

		e.mu.Lock()
		err := e.sweepOne(snap, now, &stats)
		e.mu.Unlock()
		if err != nil {
			return stats, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	released, err := e.quarantine.Expire(now)
	for _, ip := range released {
		if l, ok := e.table.ByAddr(ip); !ok || !l.Status.Holds() {
			e.pool.Release(ip)
		}
		stats.Unquarantined++
		e.logger.Info("quarantine lifted", "ip", ip.String())
	}
	e.updateGauges()
	if err != nil {
		return stats, fmt.Errorf("expiring quarantine: %w", err)
	}
	return stats, nil
}

// sweepOne re-reads the record under the lock, since a request may have
// renewed or released it after the snapshot was taken.
func (e *Engine) sweepOne(snap lease.Lease, now time.Time, stats *SweepStats) error {
	l, ok := e.table.ByAddr(snap.IP)
	if !ok || l.ClientKey != snap.ClientKey || !l.Status.Holds() {
		return nil
	}

	evt, op := events.EventLeaseExpire, "expire"
	switch {
	case l.IsExpired(now):
		stats.Expired++
	case l.Status == lease.StatusOffered && now.Sub(l.Start) >= e.cfg.OfferTimeout:
		evt, op = events.EventLeaseReclaim, "reclaim"
		stats.Reclaimed++
	default:
		return nil
	}

	if err := e.reclaim(&l, lease.StatusExpired); err != nil {
		return fmt.Errorf("expiring %s: %w", l.IP, err)
	}
	metrics.LeaseOperations.WithLabelValues(op).Inc()
	e.publish(evt, &l, "")
	e.logger.Info("lease "+op, "ip", l.IP.String(), "mac", l.MAC.String())
	return nil
}

// reclaim moves l to status and returns its address to the pool.
func (e *Engine) reclaim(l *lease.Lease, status lease.Status) error {
	l.Status = status
	if err := e.put(l); err != nil {
		return err
	}
	if !e.quarantine.IsHeld(l.IP, e.now()) {
		e.pool.Release(l.IP)
	}
	return nil
}

func (e *Engine) newLease(msg *dhcpv4.Message, ip net.IP, status lease.Status, now time.Time) lease.Lease {
	l := lease.Lease{
		ClientKey: msg.ClientKey(),
		IP:        ip.To4(),
		MAC:       msg.HardwareAddr(),
		Hostname:  e.hostnames.Sanitise(msg.Hostname(), msg.HardwareAddr(), msg.ClientKey()),
		Status:    status,
		Start:     now,
		Duration:  e.cfg.LeaseTime,
		T1:        e.cfg.RenewalTime,
		T2:        e.cfg.RebindTime,
	}
	if msg.IsRelayed() {
		ri := &lease.RelayInfo{GIAddr: msg.GIAddr}
		if info, ok := msg.RelayAgentInfo(); ok {
			ri.CircuitID = string(info.CircuitID())
			ri.RemoteID = string(info.RemoteID())
		}
		l.RelayInfo = ri
	}
	return l
}

// hostnameTaken reports whether another client's live lease carries name.
// Caller holds e.mu.
func (e *Engine) hostnameTaken(name, clientKey string) bool {
	for _, l := range e.table.Snapshot() {
		if l.Hostname == name && l.ClientKey != clientKey && l.Status.Holds() {
			return true
		}
	}
	return false
}

// put stamps l with the next sequence number, writes it through to the
// store and then to the table. The caller's copy carries the stamp.
func (e *Engine) put(l *lease.Lease) error {
	e.seq++
	l.UpdateSeq = e.seq
	if e.store != nil {
		if err := e.store.Put(*l); err != nil {
			return fmt.Errorf("persisting lease: %w", err)
		}
	}
	if displaced := e.table.Put(*l); displaced != nil && e.store != nil {
		if err := e.store.Delete(displaced.IP); err != nil {
			return fmt.Errorf("deleting displaced lease %s: %w", displaced.IP, err)
		}
	}
	e.updateGauges()
	return nil
}

// setSubnetOptions populates reply options from the address plan.
func (e *Engine) setSubnetOptions(reply *dhcpv4.Message, withLease bool) {
	network := e.cfg.Network

	reply.Options.Set(dhcpv4.OptionSubnetMask, dhcpv4.IP(net.IP(network.Mask)))
	if len(e.cfg.Routers) > 0 {
		reply.Options.Set(dhcpv4.OptionRouter, dhcpv4.IPs(e.cfg.Routers))
	}
	if len(e.cfg.DNSServers) > 0 {
		reply.Options.Set(dhcpv4.OptionDomainNameServer, dhcpv4.IPs(e.cfg.DNSServers))
	}
	if e.cfg.DomainName != "" {
		reply.Options.Set(dhcpv4.OptionDomainName, dhcpv4.Text(e.cfg.DomainName))
	}
	if len(e.cfg.NTPServers) > 0 {
		reply.Options.Set(dhcpv4.OptionNTPServers, dhcpv4.IPs(e.cfg.NTPServers))
	}
	broadcastIP := dhcpv4.Uint32ToIP(dhcpv4.IPToUint32(network.IP) | ^dhcpv4.IPToUint32(net.IP(network.Mask)))
	reply.Options.Set(dhcpv4.OptionBroadcastAddress, dhcpv4.IP(broadcastIP))
	if len(e.cfg.DomainSearch) > 0 {
		reply.Options.Set(dhcpv4.OptionDomainSearch, dhcpv4.NewDomainList(e.cfg.DomainSearch...))
	}

	if withLease {
		reply.Options.Set(dhcpv4.OptionIPLeaseTime, dhcpv4.SecondsOf(e.cfg.LeaseTime))
		reply.Options.Set(dhcpv4.OptionRenewalTime, dhcpv4.SecondsOf(e.cfg.RenewalTime))
		reply.Options.Set(dhcpv4.OptionRebindingTime, dhcpv4.SecondsOf(e.cfg.RebindTime))
	}
}

func (e *Engine) publish(t events.EventType, l *lease.Lease, reason string) {
	data := &events.LeaseData{
		IP:       l.IP,
		MAC:      l.MAC,
		ClientID: l.ClientKey,
		Hostname: l.Hostname,
		Start:    l.Start.Unix(),
		Expiry:   l.Expiry().Unix(),
		State:    string(l.Status),
	}
	if l.RelayInfo != nil {
		data.Relay = &events.RelayData{
			GIAddr:    l.RelayInfo.GIAddr,
			CircuitID: l.RelayInfo.CircuitID,
			RemoteID:  l.RelayInfo.RemoteID,
		}
	}
	e.bus.Publish(events.Event{Type: t, Timestamp: e.now(), Lease: data, Reason: reason})
}

// updateGauges refreshes lease and pool metrics. Caller holds e.mu.
func (e *Engine) updateGauges() {
	for _, s := range []lease.Status{lease.StatusOffered, lease.StatusBound, lease.StatusExpired, lease.StatusReleased} {
		metrics.Leases.WithLabelValues(string(s)).Set(0)
	}
	for s, n := range e.table.CountByStatus() {
		metrics.Leases.WithLabelValues(string(s)).Set(float64(n))
	}
	metrics.PoolAllocated.WithLabelValues(e.pool.Name).Set(float64(e.pool.Allocated()))
	metrics.PoolUtilization.WithLabelValues(e.pool.Name).Set(e.pool.Utilization())
	metrics.QuarantinedAddresses.Set(float64(e.quarantine.Count()))
}

// Lease returns a copy of the record at ip.
func (e *Engine) Lease(ip net.IP) (lease.Lease, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.ByAddr(ip)
}

// Leases returns copies of every record in address order.
func (e *Engine) Leases() []lease.Lease {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Snapshot()
}

// Pool returns the engine's address pool.
func (e *Engine) Pool() *pool.Pool {
	return e.pool
}
