package dhcp

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/athena-dhcpd/dhcpcore/internal/logging"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

func TestReplyDestination(t *testing.T) {
	ciaddr := net.IPv4(192, 168, 1, 50)
	relay := net.IPv4(10, 0, 0, 1)

	tests := []struct {
		name    string
		ciaddr  net.IP
		giaddr  net.IP
		bcast   bool
		msgType dhcpv4.MessageType
		want    *net.UDPAddr
	}{
		{"relayed", nil, relay, false, dhcpv4.MessageTypeOffer, &net.UDPAddr{IP: relay, Port: 67}},
		{"relayed nak", ciaddr, relay, false, dhcpv4.MessageTypeNak, &net.UDPAddr{IP: relay, Port: 67}},
		{"no address", nil, nil, false, dhcpv4.MessageTypeOffer, &net.UDPAddr{IP: net.IPv4bcast, Port: 68}},
		{"broadcast flag", ciaddr, nil, true, dhcpv4.MessageTypeAck, &net.UDPAddr{IP: net.IPv4bcast, Port: 68}},
		{"renewing client", ciaddr, nil, false, dhcpv4.MessageTypeAck, &net.UDPAddr{IP: ciaddr, Port: 68}},
		{"nak to renewing client", ciaddr, nil, false, dhcpv4.MessageTypeNak, &net.UDPAddr{IP: net.IPv4bcast, Port: 68}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := dhcpv4.NewRequest(testMAC(1), 1)
			if tt.ciaddr != nil {
				req.CIAddr = tt.ciaddr
			}
			if tt.giaddr != nil {
				req.GIAddr = tt.giaddr
			}
			req.SetBroadcast(tt.bcast)
			reply := dhcpv4.NewReply(req, tt.msgType, testServerID)

			got := replyDestination(req, reply)
			if !got.IP.Equal(tt.want.IP) || got.Port != tt.want.Port {
				t.Errorf("replyDestination() = %v, want %v", got, tt.want)
			}
		})
	}
}

type stubHandler struct {
	res   *Result
	err   error
	calls int
}

func (h *stubHandler) Handle(_ context.Context, msg *dhcpv4.Message) (*Result, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return h.res, nil
}

func encodeRequest(t *testing.T, msg *dhcpv4.Message) []byte {
	t.Helper()
	b, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func TestProcessEncodesReply(t *testing.T) {
	e, _ := newTestEngine(t, testEngineConfig("192.168.1.100", "192.168.1.110"), nil, nil)
	s := NewServer(e, nil, dhcpv4.Strict, "", "", logging.Discard())

	disc := dhcpv4.NewDiscover(testMAC(1), 0xabcd, nil)
	payload, dst, ok := s.process(context.Background(), encodeRequest(t, disc), nil)
	if !ok {
		t.Fatal("process returned no reply for DISCOVER")
	}
	if len(payload) < dhcpv4.MinPacketSize {
		t.Errorf("reply length = %d, want >= %d", len(payload), dhcpv4.MinPacketSize)
	}
	if !dst.IP.Equal(net.IPv4bcast) || dst.Port != dhcpv4.ClientPort {
		t.Errorf("dst = %v, want broadcast:68", dst)
	}

	reply, err := dhcpv4.Decode(payload, dhcpv4.Strict)
	if err != nil {
		t.Fatalf("Decode reply: %v", err)
	}
	if reply.Op != dhcpv4.OpCodeBootReply || reply.XID != 0xabcd {
		t.Errorf("reply op/xid = %v/%#x, want BOOTREPLY/0xabcd", reply.Op, reply.XID)
	}
	if reply.MessageType() != dhcpv4.MessageTypeOffer {
		t.Errorf("reply type = %v, want OFFER", reply.MessageType())
	}
}

func TestProcessDrops(t *testing.T) {
	disc := dhcpv4.NewDiscover(testMAC(1), 1, nil)
	good := encodeRequest(t, disc)

	tests := []struct {
		name      string
		data      []byte
		handler   *stubHandler
		limiter   *RateLimiter
		wantCalls int
	}{
		{"malformed", []byte{1, 2, 3}, &stubHandler{}, nil, 0},
		{"handler error", good, &stubHandler{err: errors.New("boom")}, nil, 1},
		{"no reply", good, &stubHandler{res: &Result{Outcome: OutcomeExhausted}}, nil, 1},
		{"nil result", good, &stubHandler{}, nil, 1},
		{"rate limited", good, &stubHandler{}, func() *RateLimiter {
			rl, _ := newTestLimiter(1, 1)
			rl.Allow(disc.ClientKey())
			return rl
		}(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(tt.handler, tt.limiter, dhcpv4.Lenient, "", "", logging.Discard())
			if _, _, ok := s.process(context.Background(), tt.data, nil); ok {
				t.Error("process returned a reply, want drop")
			}
			if tt.handler.calls != tt.wantCalls {
				t.Errorf("handler calls = %d, want %d", tt.handler.calls, tt.wantCalls)
			}
		})
	}
}

func TestProcessIgnoresBootReply(t *testing.T) {
	h := &stubHandler{}
	s := NewServer(h, nil, dhcpv4.Strict, "", "", logging.Discard())

	reply := dhcpv4.NewReply(dhcpv4.NewDiscover(testMAC(1), 1, nil), dhcpv4.MessageTypeOffer, testServerID)
	if _, _, ok := s.process(context.Background(), encodeRequest(t, reply), nil); ok {
		t.Error("process answered a BOOTREPLY")
	}
	if h.calls != 0 {
		t.Errorf("handler calls = %d, want 0", h.calls)
	}
}
