package client

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// declineWait is how long the client waits after DHCPDECLINE before
// restarting discovery (RFC 2131 §3.1.5).
const declineWait = 10 * time.Second

// ErrNotBound is returned by Decline when the session holds no address.
var ErrNotBound = errors.New("client holds no address")

// defaultParams is the Parameter Request List sent with DISCOVER and REQUEST.
var defaultParams = dhcpv4.Codes{
	dhcpv4.OptionSubnetMask,
	dhcpv4.OptionRouter,
	dhcpv4.OptionDomainNameServer,
	dhcpv4.OptionDomainName,
	dhcpv4.OptionBroadcastAddress,
	dhcpv4.OptionNTPServers,
	dhcpv4.OptionIPLeaseTime,
	dhcpv4.OptionRenewalTime,
	dhcpv4.OptionRebindingTime,
	dhcpv4.OptionDomainSearch,
}

// Packet is a message the session wants transmitted. Broadcast messages go
// to 255.255.255.255:67, the rest are unicast to Server:67.
type Packet struct {
	Msg       *dhcpv4.Message
	Broadcast bool
	Server    net.IP
}

// Output tells the caller what to do after feeding the session one input.
type Output struct {
	// Send lists messages to transmit, in order.
	Send []Packet
	// Timers is the complete set of armed timers. It replaces whatever was
	// armed before.
	Timers []Timer
	// Bound is set when a binding was installed or refreshed.
	Bound *Binding
	// Cleared is set when the session gave up its binding.
	Cleared bool
	From    State
	To      State
	Event   events.EventType
	Reason  string
}

// Transitioned reports whether the input changed the session state.
func (o *Output) Transitioned() bool { return o.From != o.To }

// OfferPolicy decides whether the session takes an offer while SELECTING.
// The first offer accepted wins; later ones for the same transaction are
// ignored.
type OfferPolicy interface {
	Accept(offer *dhcpv4.Message) bool
}

// FirstOffer accepts every well-formed offer.
type FirstOffer struct{}

// Accept implements OfferPolicy.
func (FirstOffer) Accept(*dhcpv4.Message) bool { return true }

// SessionConfig configures one client session.
type SessionConfig struct {
	Interface      string
	MAC            net.HardwareAddr
	ClientID       *dhcpv4.ClientID // nil sends no option 61
	Hostname       string
	RequestedLease time.Duration
	RetransmitBase time.Duration
	RetransmitMax  time.Duration
	MaxAttempts    int
	OfferPolicy    OfferPolicy
	Rand           *rand.Rand
}

// Session is the client state machine for one interface. It does no I/O
// and starts no goroutines: every input returns an Output saying what to
// send, which timers to arm and what to persist. It is not safe for
// concurrent use; the Runner serialises inputs.
type Session struct {
	cfg     SessionConfig
	logger  *slog.Logger
	rng     *rand.Rand
	backoff *Backoff

	state        State
	xid          uint32
	began        time.Time
	sentAt       time.Time
	pending      *Packet
	attempts     int
	retransmitAt time.Time
	restartAt    time.Time

	offerIP     net.IP
	offerServer net.IP
	binding     *Binding
	hint        net.IP
}

// NewSession creates a session in INIT, or in INIT_REBOOT when a prior
// binding is supplied.
func NewSession(cfg SessionConfig, prior *Binding, logger *slog.Logger) *Session {
	if cfg.RetransmitBase <= 0 {
		cfg.RetransmitBase = 4 * time.Second
	}
	if cfg.RetransmitMax < cfg.RetransmitBase {
		cfg.RetransmitMax = max(64*time.Second, cfg.RetransmitBase)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.OfferPolicy == nil {
		cfg.OfferPolicy = FirstOffer{}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger.With("interface", cfg.Interface),
		rng:     rng,
		backoff: NewBackoff(cfg.RetransmitBase, cfg.RetransmitMax, rng),
		state:   StateInit,
	}
	if prior != nil && prior.IP != nil {
		b := *prior
		s.binding = &b
		s.hint = b.IP
		s.state = StateInitReboot
	}
	s.setStateGauge()
	return s
}

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// XID returns the transaction id of the exchange in progress.
func (s *Session) XID() uint32 { return s.xid }

// Binding returns a copy of the binding the session holds, if any.
func (s *Session) Binding() (Binding, bool) {
	if s.binding == nil {
		return Binding{}, false
	}
	return *s.binding, true
}

// Start begins acquisition: INIT broadcasts DHCPDISCOVER, INIT_REBOOT
// broadcasts a DHCPREQUEST for the remembered address. Other states are
// left alone.
func (s *Session) Start(now time.Time) Output {
	out := s.begin()
	switch s.state {
	case StateInitReboot:
		if s.binding == nil || !now.Before(s.binding.Expiry()) {
			s.binding = nil
			out.Cleared = true
			s.transition(&out, StateInit, "remembered lease has expired")
			s.startDiscover(&out, now)
			break
		}
		s.startReboot(&out, now)
	case StateInit:
		s.startDiscover(&out, now)
	}
	return s.finish(out)
}

// HandleMessage feeds a decoded server message into the session. Messages
// for another transaction or another hardware address are ignored. A
// DHCPACK without a lease time returns an error wrapping
// dhcpv4.ErrProtocolViolation; the returned Output is still to be applied
// (the session has moved to INIT).
func (s *Session) HandleMessage(msg *dhcpv4.Message, now time.Time) (Output, error) {
	out := s.begin()
	if !s.accepts(msg) {
		return s.finish(out), nil
	}

	var err error
	switch mt := msg.MessageType(); {
	case mt == dhcpv4.MessageTypeNak && s.state != StateSelecting:
		s.handleNak(&out, msg, now)
	case mt == dhcpv4.MessageTypeOffer && s.state == StateSelecting:
		s.handleOffer(&out, msg, now)
	case mt == dhcpv4.MessageTypeAck && s.state != StateSelecting:
		err = s.handleAck(&out, msg, now)
	default:
		s.logger.Debug("ignoring message",
			"msg_type", mt.String(),
			"state", string(s.state))
	}
	return s.finish(out), err
}

// accepts filters replies that do not belong to the exchange in progress.
func (s *Session) accepts(msg *dhcpv4.Message) bool {
	switch s.state {
	case StateSelecting, StateRequesting, StateRebooting, StateRenewing, StateRebinding:
	default:
		return false
	}
	if msg.Op != dhcpv4.OpCodeBootReply {
		return false
	}
	if msg.XID != s.xid {
		s.logger.Debug("ignoring reply for another transaction",
			"xid", fmt.Sprintf("%08x", msg.XID),
			"want_xid", fmt.Sprintf("%08x", s.xid))
		return false
	}
	if !bytes.Equal(msg.HardwareAddr(), s.cfg.MAC) {
		s.logger.Debug("ignoring reply for another client", "mac", msg.HardwareAddr().String())
		return false
	}
	return true
}

func (s *Session) handleOffer(out *Output, msg *dhcpv4.Message, now time.Time) {
	sid := msg.ServerIdentifier()
	if dhcpv4.IsZeroIP(msg.YIAddr) || sid == nil {
		s.logger.Debug("ignoring offer without address or server identifier")
		return
	}
	if !s.cfg.OfferPolicy.Accept(msg) {
		s.logger.Debug("offer refused by policy", "ip", msg.YIAddr.String(), "server_id", sid.String())
		return
	}
	s.offerIP = append(net.IP(nil), msg.YIAddr.To4()...)
	s.offerServer = append(net.IP(nil), sid.To4()...)

	req := dhcpv4.NewRequest(s.cfg.MAC, s.xid)
	req.Options.Set(dhcpv4.OptionRequestedIP, dhcpv4.IP(s.offerIP))
	req.Options.Set(dhcpv4.OptionServerIdentifier, dhcpv4.IP(s.offerServer))
	s.decorate(req, true)
	s.sentAt = now
	s.sendFirst(out, Packet{Msg: req, Broadcast: true}, now)
	s.transition(out, StateRequesting, "offer of "+s.offerIP.String()+" from "+s.offerServer.String())
}

func (s *Session) handleAck(out *Output, msg *dhcpv4.Message, now time.Time) error {
	sid := msg.ServerIdentifier()
	if s.state == StateRequesting && sid != nil && !sid.Equal(s.offerServer) {
		s.logger.Debug("ignoring ACK from a server not selected", "server_id", sid.String())
		return nil
	}
	if s.state == StateRequesting && !dhcpv4.IsZeroIP(msg.YIAddr) && !msg.YIAddr.Equal(s.offerIP) {
		s.logger.Debug("ignoring ACK for an address not offered",
			"ip", msg.YIAddr.String(), "offered", s.offerIP.String())
		return nil
	}
	if sid == nil {
		switch {
		case s.state == StateRequesting:
			sid = s.offerServer
		case s.binding != nil:
			sid = s.binding.ServerID
		}
	}

	leaseTime, ok := msg.LeaseTime()
	if !ok || leaseTime <= 0 || dhcpv4.IsZeroIP(msg.YIAddr) || sid == nil {
		s.dropBinding(out)
		s.toInit(out, now, "unusable DHCPACK", s.backoff.Delay(1))
		return fmt.Errorf("%w: DHCPACK without lease time, address or server identifier", dhcpv4.ErrProtocolViolation)
	}

	t1, ok1 := msg.RenewalTime()
	t2, ok2 := msg.RebindingTime()
	if !ok1 {
		t1 = leaseTime / 2
	}
	if !ok2 {
		t2 = leaseTime * 7 / 8
	}
	if !(0 < t1 && t1 < t2 && t2 < leaseTime) {
		t1, t2 = leaseTime/2, leaseTime*7/8
	}

	b := &Binding{
		IP:         append(net.IP(nil), msg.YIAddr.To4()...),
		SubnetMask: msg.SubnetMask(),
		Routers:    msg.Routers(),
		DNSServers: ipsOption(msg, dhcpv4.OptionDomainNameServer),
		DomainName: textOption(msg, dhcpv4.OptionDomainName),
		ServerID:   append(net.IP(nil), sid.To4()...),
		Start:      s.sentAt,
		LeaseTime:  leaseTime,
		T1:         t1,
		T2:         t2,
	}

	out.Event = events.EventClientBound
	if s.state == StateRenewing || s.state == StateRebinding {
		out.Event = events.EventClientRenewed
	}
	s.binding = b
	s.hint = b.IP
	s.pending = nil
	s.attempts = 0
	s.offerIP, s.offerServer = nil, nil
	bound := *b
	out.Bound = &bound
	s.transition(out, StateBound, "ACK for "+b.IP.String()+" from "+b.ServerID.String())
	return nil
}

func (s *Session) handleNak(out *Output, msg *dhcpv4.Message, now time.Time) {
	reason := msg.ErrorMessage()
	if reason == "" {
		reason = "no reason given"
	}
	s.dropBinding(out)
	out.Event = events.EventClientNak
	out.Reason = reason
	s.toInit(out, now, "NAK: "+reason, s.backoff.Delay(1))
}

// HandleTimer feeds a timer expiry into the session. Timers that no longer
// apply to the current state are ignored.
func (s *Session) HandleTimer(kind TimerKind, now time.Time) Output {
	out := s.begin()
	switch kind {
	case TimerRetransmit:
		s.retransmit(&out, now)
	case TimerRenew:
		if s.state == StateBound {
			s.startRenew(&out, now)
		}
	case TimerRebind:
		if s.state == StateBound || s.state == StateRenewing {
			s.startRebind(&out, now)
		}
	case TimerExpiry:
		if s.state.HasBinding() {
			s.hint = s.binding.IP
			s.dropBinding(&out)
			out.Event = events.EventClientExpired
			s.transition(&out, StateInit, "lease expired")
			s.startDiscover(&out, now)
		}
	case TimerRestart:
		if s.state == StateInit && !s.restartAt.IsZero() {
			s.startDiscover(&out, now)
		}
	}
	return s.finish(out)
}

func (s *Session) retransmit(out *Output, now time.Time) {
	switch s.state {
	case StateSelecting, StateRequesting, StateRebooting:
		if s.attempts >= s.cfg.MaxAttempts {
			s.giveUp(out, now)
			return
		}
		s.attempts++
		s.resend(out, now)
		s.retransmitAt = now.Add(s.backoff.Delay(s.attempts))
	case StateRenewing:
		s.resend(out, now)
		s.retransmitAt = now.Add(renewRetry(now, s.binding.RebindAt()))
	case StateRebinding:
		s.resend(out, now)
		s.retransmitAt = now.Add(renewRetry(now, s.binding.Expiry()))
	}
}

// giveUp ends an exchange that got no answer. A reboot falls straight back
// to discovery; discovery and selection pause before starting over.
func (s *Session) giveUp(out *Output, now time.Time) {
	reason := fmt.Sprintf("no answer after %d attempts", s.attempts)
	if s.state == StateRebooting {
		s.dropBinding(out)
		s.transition(out, StateInit, reason)
		s.startDiscover(out, now)
		return
	}
	s.toInit(out, now, reason, s.backoff.Delay(s.cfg.MaxAttempts))
}

func (s *Session) resend(out *Output, now time.Time) {
	if s.pending == nil {
		return
	}
	p := *s.pending
	p.Msg = p.Msg.Clone()
	p.Msg.Secs = s.secs(now)
	s.pending = &p
	out.Send = append(out.Send, p)
	metrics.ClientRetransmissions.WithLabelValues(s.cfg.Interface, p.Msg.MessageType().String()).Inc()
	s.logger.Debug("retransmitting",
		"msg_type", p.Msg.MessageType().String(),
		"xid", fmt.Sprintf("%08x", p.Msg.XID),
		"attempt", s.attempts)
}

func (s *Session) startDiscover(out *Output, now time.Time) {
	s.xid = s.rng.Uint32()
	s.began = now
	s.restartAt = time.Time{}
	s.offerIP, s.offerServer = nil, nil

	msg := dhcpv4.NewDiscover(s.cfg.MAC, s.xid, s.hint)
	s.decorate(msg, true)
	s.sendFirst(out, Packet{Msg: msg, Broadcast: true}, now)
	s.transition(out, StateSelecting, "discovering")
}

func (s *Session) startReboot(out *Output, now time.Time) {
	s.xid = s.rng.Uint32()
	s.began = now
	s.sentAt = now

	req := dhcpv4.NewRequest(s.cfg.MAC, s.xid)
	req.Options.Set(dhcpv4.OptionRequestedIP, dhcpv4.IP(s.binding.IP))
	s.decorate(req, true)
	s.sendFirst(out, Packet{Msg: req, Broadcast: true}, now)
	s.transition(out, StateRebooting, "verifying remembered address "+s.binding.IP.String())
}

// startRenew unicasts a DHCPREQUEST to the bound server. RFC 2131 §4.3.2:
// ciaddr carries the address, options 50 and 54 are left out.
func (s *Session) startRenew(out *Output, now time.Time) {
	s.xid = s.rng.Uint32()
	s.began = now
	s.sentAt = now

	req := dhcpv4.NewRequest(s.cfg.MAC, s.xid)
	req.CIAddr = s.binding.IP
	s.decorate(req, true)
	s.sendFirst(out, Packet{Msg: req, Server: s.binding.ServerID}, now)
	s.retransmitAt = now.Add(renewRetry(now, s.binding.RebindAt()))
	s.transition(out, StateRenewing, "T1 reached")
}

func (s *Session) startRebind(out *Output, now time.Time) {
	s.xid = s.rng.Uint32()
	s.began = now
	s.sentAt = now

	req := dhcpv4.NewRequest(s.cfg.MAC, s.xid)
	req.CIAddr = s.binding.IP
	s.decorate(req, true)
	s.sendFirst(out, Packet{Msg: req, Broadcast: true}, now)
	s.retransmitAt = now.Add(renewRetry(now, s.binding.Expiry()))
	s.transition(out, StateRebinding, "T2 reached")
}

// sendFirst transmits the first message of an exchange and arms the
// retransmission timer.
func (s *Session) sendFirst(out *Output, p Packet, now time.Time) {
	p.Msg.Secs = s.secs(now)
	s.pending = &p
	s.attempts = 1
	s.retransmitAt = now.Add(s.backoff.Delay(1))
	out.Send = append(out.Send, p)
}

// Release gives up the binding with a DHCPRELEASE and stops the session in
// INIT with no timers. Releasing an idle session does nothing.
func (s *Session) Release(now time.Time) Output {
	out := s.begin()
	if s.state == StateInit && s.restartAt.IsZero() {
		return s.finish(out)
	}
	if s.state.HasBinding() {
		msg := dhcpv4.NewRelease(s.cfg.MAC, s.rng.Uint32(), s.binding.IP, s.binding.ServerID)
		s.decorate(msg, false)
		out.Send = append(out.Send, Packet{Msg: msg, Server: s.binding.ServerID})
		out.Event = events.EventClientReleased
	}
	s.dropBinding(&out)
	s.toInit(&out, now, "released", 0)
	return s.finish(out)
}

// Decline reports that the bound address is already in use. The session
// broadcasts DHCPDECLINE, forgets the address and restarts discovery after
// ten seconds.
func (s *Session) Decline(now time.Time) (Output, error) {
	if !s.state.HasBinding() {
		return s.finish(s.begin()), ErrNotBound
	}
	out := s.begin()
	msg := dhcpv4.NewDecline(s.cfg.MAC, s.rng.Uint32(), s.binding.IP, s.binding.ServerID)
	s.decorate(msg, false)
	out.Send = append(out.Send, Packet{Msg: msg, Broadcast: true})
	out.Event = events.EventClientDeclined
	out.Reason = "address in use"

	s.hint = nil
	s.dropBinding(&out)
	s.toInit(&out, now, "declined "+msg.RequestedIP().String(), declineWait)
	return s.finish(out), nil
}

func (s *Session) dropBinding(out *Output) {
	if s.binding != nil {
		s.binding = nil
		out.Cleared = true
	}
}

// toInit abandons the exchange in progress. A zero restartAfter leaves the
// session idle.
func (s *Session) toInit(out *Output, now time.Time, reason string, restartAfter time.Duration) {
	s.pending = nil
	s.attempts = 0
	s.offerIP, s.offerServer = nil, nil
	s.restartAt = time.Time{}
	if restartAfter > 0 {
		s.restartAt = now.Add(restartAfter)
	}
	s.transition(out, StateInit, reason)
}

// decorate adds the options every client message carries. full adds the
// ones only DISCOVER and REQUEST need.
func (s *Session) decorate(msg *dhcpv4.Message, full bool) {
	if s.cfg.ClientID != nil {
		msg.Options.Set(dhcpv4.OptionClientIdentifier, *s.cfg.ClientID)
	}
	if !full {
		return
	}
	msg.Options.Set(dhcpv4.OptionMaxDHCPMessageSize, dhcpv4.Uint16(dhcpv4.MaxPacketSize))
	if s.cfg.Hostname != "" {
		msg.Options.Set(dhcpv4.OptionHostname, dhcpv4.Text(s.cfg.Hostname))
	}
	if s.cfg.RequestedLease > 0 {
		msg.Options.Set(dhcpv4.OptionIPLeaseTime, dhcpv4.SecondsOf(s.cfg.RequestedLease))
	}
	msg.Options.Set(dhcpv4.OptionParameterRequestList, defaultParams)
}

func (s *Session) secs(now time.Time) uint16 {
	return uint16(min(max(now.Sub(s.began)/time.Second, 0), 0xffff))
}

func (s *Session) begin() Output {
	return Output{From: s.state, To: s.state}
}

// finish fills in the timers armed for the state the session ended in.
func (s *Session) finish(out Output) Output {
	out.To = s.state
	out.Timers = s.timers()
	return out
}

func (s *Session) timers() []Timer {
	retransmit := Timer{Kind: TimerRetransmit, At: s.retransmitAt}
	switch s.state {
	case StateSelecting, StateRequesting, StateRebooting:
		return []Timer{retransmit}
	case StateBound:
		return []Timer{
			{Kind: TimerRenew, At: s.binding.RenewAt()},
			{Kind: TimerRebind, At: s.binding.RebindAt()},
			{Kind: TimerExpiry, At: s.binding.Expiry()},
		}
	case StateRenewing:
		return []Timer{
			retransmit,
			{Kind: TimerRebind, At: s.binding.RebindAt()},
			{Kind: TimerExpiry, At: s.binding.Expiry()},
		}
	case StateRebinding:
		return []Timer{retransmit, {Kind: TimerExpiry, At: s.binding.Expiry()}}
	case StateInit:
		if !s.restartAt.IsZero() {
			return []Timer{{Kind: TimerRestart, At: s.restartAt}}
		}
	}
	return nil
}

// transition changes state with logging and metrics.
func (s *Session) transition(out *Output, to State, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	out.To = to

	s.logger.Info("client state transition",
		"old_state", string(from),
		"new_state", string(to),
		"reason", reason)
	metrics.ClientTransitions.WithLabelValues(s.cfg.Interface, string(to)).Inc()
	s.setStateGauge()
}

func (s *Session) setStateGauge() {
	for _, st := range AllStates {
		v := 0.0
		if st == s.state {
			v = 1
		}
		metrics.ClientState.WithLabelValues(s.cfg.Interface, string(st)).Set(v)
	}
}

func ipsOption(msg *dhcpv4.Message, code dhcpv4.OptionCode) []net.IP {
	if v, ok := msg.Option(code); ok {
		if ips, ok := v.(dhcpv4.IPs); ok {
			return []net.IP(ips)
		}
	}
	return nil
}

func textOption(msg *dhcpv4.Message, code dhcpv4.OptionCode) string {
	if v, ok := msg.Option(code); ok {
		if t, ok := v.(dhcpv4.Text); ok {
			return string(t)
		}
	}
	return ""
}
