package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/dhcp"
	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/lease"
	"github.com/athena-dhcpd/dhcpcore/internal/logging"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// loopback delivers client messages straight to an engine and queues the
// encoded replies for Receive.
type loopback struct {
	engine *dhcp.Engine
	in     chan []byte

	mu   sync.Mutex
	sent []dhcpv4.MessageType
	dsts []string
}

func newLoopback(e *dhcp.Engine) *loopback {
	return &loopback{engine: e, in: make(chan []byte, 16)}
}

func (l *loopback) Send(ctx context.Context, payload []byte, dst *net.UDPAddr) error {
	msg, err := dhcpv4.Decode(payload, dhcpv4.Strict)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.sent = append(l.sent, msg.MessageType())
	l.dsts = append(l.dsts, dst.String())
	l.mu.Unlock()

	res, err := l.engine.Handle(ctx, msg)
	if err != nil || res.Reply == nil {
		return err
	}
	out, err := res.Reply.EncodeWith(dhcpv4.EncodeOptions{PadTo: dhcpv4.MinPacketSize})
	if err != nil {
		return err
	}
	l.in <- out
	return nil
}

func (l *loopback) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-l.in:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *loopback) Close() error { return nil }

func (l *loopback) sentTypes() []dhcpv4.MessageType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]dhcpv4.MessageType(nil), l.sent...)
}

func newLoopbackEngine(t *testing.T) *dhcp.Engine {
	t.Helper()
	_, network, _ := net.ParseCIDR("192.168.1.0/24")
	e, err := dhcp.NewEngine(dhcp.EngineConfig{
		ServerID:   serverID,
		Network:    network,
		RangeStart: net.IPv4(192, 168, 1, 100),
		RangeEnd:   net.IPv4(192, 168, 1, 110),
		LeaseTime:  time.Hour,
		Routers:    []net.IP{serverID},
		DNSServers: []net.IP{net.IPv4(1, 1, 1, 1)},
		DomainName: "example.lan",
	}, nil, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// newFastSession retransmits and restarts within milliseconds.
func newFastSession(t *testing.T, prior *Binding) *Session {
	t.Helper()
	cfg := testSessionConfig()
	cfg.RetransmitBase = 10 * time.Millisecond
	cfg.RetransmitMax = 100 * time.Millisecond
	return NewSession(cfg, prior, logging.Discard())
}

func waitForState(t *testing.T, r *Runner, want State) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := r.Status(); st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s after 5s, want %s", r.Status().State, want)
	return Status{}
}

func waitForEvent(t *testing.T, ch chan events.Event, want events.EventType) events.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type == want {
				return evt
			}
		case <-timeout:
			t.Fatalf("no %s event within 5s", want)
			return events.Event{}
		}
	}
}

func TestRunnerAgainstEngine(t *testing.T) {
	engine := newLoopbackEngine(t)
	tr := newLoopback(engine)
	tr.in <- []byte{0x02, 0x01, 0x06} // malformed, dropped

	store := newTestBindingStore(t)
	bus := events.NewBus(64, logging.Discard())
	go bus.Start()
	defer bus.Stop()
	ch := bus.Subscribe(64)

	r := NewRunner(newTestSession(t, nil), tr, store, bus, dhcpv4.Strict, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	st := waitForState(t, r, StateBound)
	if st.Binding == nil {
		t.Fatal("bound status without binding")
	}
	ip := st.Binding.IP
	if !ip.Equal(net.IPv4(192, 168, 1, 100)) {
		t.Errorf("bound to %v, want 192.168.1.100", ip)
	}
	if st.Binding.DomainName != "example.lan" {
		t.Errorf("domain = %q, want example.lan", st.Binding.DomainName)
	}

	evt := waitForEvent(t, ch, events.EventClientBound)
	if evt.Client == nil || !evt.Client.IP.Equal(ip) || evt.Client.State != string(StateBound) {
		t.Errorf("bound event client data = %+v", evt.Client)
	}

	saved, err := store.Load("eth0")
	if err != nil || saved == nil || !saved.IP.Equal(ip) {
		t.Errorf("stored binding = %v, %v; want %v", saved, err, ip)
	}
	if l, ok := engine.Lease(ip); !ok || l.Status != lease.StatusBound {
		t.Errorf("engine lease = %+v, %v; want bound", l, ok)
	}

	if err := r.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := r.Status().State; got != StateInit {
		t.Errorf("state after release = %s, want INIT", got)
	}
	evt = waitForEvent(t, ch, events.EventClientReleased)
	if evt.Client == nil || !evt.Client.IP.Equal(ip) {
		t.Errorf("released event client data = %+v", evt.Client)
	}
	if l, ok := engine.Lease(ip); !ok || l.Status != lease.StatusReleased {
		t.Errorf("engine lease after release = %+v, %v; want released", l, ok)
	}
	if saved, _ := store.Load("eth0"); saved != nil {
		t.Errorf("binding still stored after release: %v", saved)
	}
	if err := r.Decline(ctx); !errors.Is(err, ErrNotBound) {
		t.Errorf("Decline after release: err = %v, want ErrNotBound", err)
	}

	want := []dhcpv4.MessageType{dhcpv4.MessageTypeDiscover, dhcpv4.MessageTypeRequest, dhcpv4.MessageTypeRelease}
	got := tr.sentTypes()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %s, want %s", i, got[i], want[i])
		}
	}
	if tr.dsts[2] != "192.168.1.1:67" {
		t.Errorf("release sent to %s, want 192.168.1.1:67", tr.dsts[2])
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunnerRebootsFromStore(t *testing.T) {
	engine := newLoopbackEngine(t)
	tr := newLoopback(engine)

	path := filepath.Join(t.TempDir(), "client.db")
	store, err := NewBindingStore(path)
	if err != nil {
		t.Fatalf("NewBindingStore: %v", err)
	}
	defer store.Close()

	// The engine has never leased this address, so it NAKs the reboot.
	prior := &Binding{
		IP:        net.IPv4(192, 168, 1, 105).To4(),
		ServerID:  serverID,
		Start:     time.Now().Add(-time.Minute),
		LeaseTime: time.Hour,
		T1:        30 * time.Minute,
		T2:        3150 * time.Second,
	}
	if err := store.Save("eth0", *prior); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load("eth0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := NewRunner(newFastSession(t, loaded), tr, store, nil, dhcpv4.Strict, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// NAKed, the client rediscovers and asks for the same address again.
	st := waitForState(t, r, StateBound)
	got := tr.sentTypes()
	if len(got) < 3 || got[0] != dhcpv4.MessageTypeRequest || !slices.Contains(got, dhcpv4.MessageTypeDiscover) {
		t.Errorf("sent %v, want a DHCPREQUEST first and a DHCPDISCOVER after the NAK", got)
	}
	if st.Binding == nil || !st.Binding.IP.Equal(prior.IP) {
		t.Errorf("bound to %v, want %v", st.Binding, prior.IP)
	}
}
