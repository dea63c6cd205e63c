package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// Status is a snapshot of a running client.
type Status struct {
	State   State
	Binding *Binding
}

type command struct {
	decline bool
	done    chan error
}

// Runner is the event loop around a Session. It is the only goroutine that
// touches the session: packets, timer expiries and operator commands are
// funnelled into it one at a time.
type Runner struct {
	session   *Session
	transport Transport
	store     *BindingStore
	bus       *events.Bus
	logger    *slog.Logger
	mode      dhcpv4.Mode
	now       func() time.Time

	commands chan command
	timers   []Timer

	mu     sync.RWMutex
	status Status
}

// NewRunner wires a session to its transport. store and bus may be nil.
func NewRunner(session *Session, transport Transport, store *BindingStore, bus *events.Bus, mode dhcpv4.Mode, logger *slog.Logger) *Runner {
	r := &Runner{
		session:   session,
		transport: transport,
		store:     store,
		bus:       bus,
		logger:    logger.With("interface", session.cfg.Interface),
		mode:      mode,
		now:       time.Now,
		commands:  make(chan command),
	}
	r.setStatus()
	return r
}

// Status returns the session state as of the last processed input.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Release asks the running loop to give up the lease. It blocks until the
// DHCPRELEASE has been sent or ctx is done.
func (r *Runner) Release(ctx context.Context) error {
	return r.do(ctx, command{})
}

// Decline asks the running loop to decline the bound address.
func (r *Runner) Decline(ctx context.Context) error {
	return r.do(ctx, command{decline: true})
}

func (r *Runner) do(ctx context.Context, cmd command) error {
	cmd.done = make(chan error, 1)
	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the session and processes input until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	packets := make(chan *dhcpv4.Message)
	readErr := make(chan error, 1)
	go r.read(ctx, packets, readErr)

	r.apply(ctx, r.session.Start(r.now()), Binding{})

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next, armed := r.nextTimer()
		timer.Stop()
		var fire <-chan time.Time
		if armed {
			timer.Reset(max(next.At.Sub(r.now()), 0))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("receiving: %w", err)
		case msg := <-packets:
			prev, _ := r.session.Binding()
			out, err := r.session.HandleMessage(msg, r.now())
			if err != nil {
				r.logger.Warn("server reply rejected", "error", err)
			}
			r.apply(ctx, out, prev)
		case <-fire:
			prev, _ := r.session.Binding()
			r.apply(ctx, r.session.HandleTimer(next.Kind, r.now()), prev)
		case cmd := <-r.commands:
			prev, _ := r.session.Binding()
			if cmd.decline {
				out, err := r.session.Decline(r.now())
				if err == nil {
					r.apply(ctx, out, prev)
				}
				cmd.done <- err
				continue
			}
			r.apply(ctx, r.session.Release(r.now()), prev)
			cmd.done <- nil
		}
	}
}

// read decodes datagrams off the transport. Malformed packets are dropped.
func (r *Runner) read(ctx context.Context, packets chan<- *dhcpv4.Message, errs chan<- error) {
	for {
		data, err := r.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errs <- err
			}
			return
		}
		msg, err := dhcpv4.Decode(data, r.mode)
		if err != nil {
			metrics.PacketErrors.WithLabelValues("decode").Inc()
			r.logger.Debug("dropping malformed packet", "error", err, "size", len(data))
			continue
		}
		metrics.PacketsReceived.WithLabelValues(msg.MessageType().String()).Inc()
		select {
		case packets <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) nextTimer() (Timer, bool) {
	if len(r.timers) == 0 {
		return Timer{}, false
	}
	next := r.timers[0]
	for _, t := range r.timers[1:] {
		if t.At.Before(next.At) {
			next = t
		}
	}
	return next, true
}

// apply carries out a session Output: transmit, persist, publish.
func (r *Runner) apply(ctx context.Context, out Output, prev Binding) {
	for _, p := range out.Send {
		r.send(ctx, p)
	}
	r.timers = out.Timers

	if r.store != nil {
		switch {
		case out.Bound != nil:
			if err := r.store.Save(r.session.cfg.Interface, *out.Bound); err != nil {
				r.logger.Error("saving binding", "error", err)
			}
		case out.Cleared:
			if err := r.store.Delete(r.session.cfg.Interface); err != nil {
				r.logger.Error("deleting binding", "error", err)
			}
		}
	}

	if out.Event != "" {
		b := prev
		if out.Bound != nil {
			b = *out.Bound
		}
		r.bus.Publish(events.Event{
			Type:      out.Event,
			Timestamp: r.now(),
			Client:    r.clientData(out, b),
			Reason:    out.Reason,
		})
	}
	if out.Bound != nil {
		r.logger.Info("lease bound",
			"ip", out.Bound.IP.String(),
			"server_id", out.Bound.ServerID.String(),
			"lease_time", out.Bound.LeaseTime.String(),
			"t1", out.Bound.T1.String(),
			"t2", out.Bound.T2.String())
	}
	r.setStatus()
}

func (r *Runner) send(ctx context.Context, p Packet) {
	payload, err := p.Msg.EncodeWith(dhcpv4.EncodeOptions{PadTo: dhcpv4.MinPacketSize})
	if err != nil {
		metrics.PacketErrors.WithLabelValues("encode").Inc()
		r.logger.Error("encoding message", "error", err, "msg_type", p.Msg.MessageType().String())
		return
	}
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: dhcpv4.ServerPort}
	if !p.Broadcast {
		dst = &net.UDPAddr{IP: p.Server, Port: dhcpv4.ServerPort}
	}
	if err := r.transport.Send(ctx, payload, dst); err != nil {
		metrics.PacketErrors.WithLabelValues("send").Inc()
		r.logger.Error("sending message", "error", err, "dst", dst.String())
		return
	}
	metrics.PacketsSent.WithLabelValues(p.Msg.MessageType().String()).Inc()
	r.logger.Debug("sent message",
		"msg_type", p.Msg.MessageType().String(),
		"xid", fmt.Sprintf("%08x", p.Msg.XID),
		"dst", dst.String())
}

func (r *Runner) clientData(out Output, b Binding) *events.ClientData {
	return &events.ClientData{
		Interface:  r.session.cfg.Interface,
		OldState:   string(out.From),
		State:      string(out.To),
		IP:         b.IP,
		SubnetMask: b.SubnetMask,
		Routers:    b.Routers,
		DNSServers: b.DNSServers,
		DomainName: b.DomainName,
		ServerID:   b.ServerID,
		LeaseTime:  b.LeaseTime,
	}
}

func (r *Runner) setStatus() {
	st := Status{State: r.session.State()}
	if b, ok := r.session.Binding(); ok {
		st.Binding = &b
	}
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}
