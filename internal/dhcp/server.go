package dhcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// ipUDPHeaderLen is subtracted from the client's maximum message size,
// which counts the IP and UDP headers.
const ipUDPHeaderLen = 28

// MessageHandler turns a decoded client message into a result. *Engine
// implements it.
type MessageHandler interface {
	Handle(ctx context.Context, msg *dhcpv4.Message) (*Result, error)
}

// bufferPool reuses receive buffers in the read loop.
var bufferPool = sync.Pool{
	New: func() any {
		return make([]byte, dhcpv4.MaxPacketSize)
	},
}

func getBuffer() []byte { return bufferPool.Get().([]byte) }

func putBuffer(b []byte) {
	bufferPool.Put(b[:cap(b)])
}

// Server is the DHCPv4 UDP server. It reads packets on port 67, hands them
// to the engine and writes replies out of the receiving interface.
type Server struct {
	conn    *ipv4.PacketConn
	handler MessageHandler
	limiter *RateLimiter
	mode    dhcpv4.Mode
	logger  *slog.Logger
	addr    string
	iface   string
	ifIndex int
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewServer creates a new DHCP server. limiter may be nil.
func NewServer(handler MessageHandler, limiter *RateLimiter, mode dhcpv4.Mode, iface, addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = fmt.Sprintf(":%d", dhcpv4.ServerPort)
	}
	return &Server{
		handler: handler,
		limiter: limiter,
		mode:    mode,
		logger:  logger,
		addr:    addr,
		iface:   iface,
		done:    make(chan struct{}),
	}
}

// Start opens the socket and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.iface != "" {
		ifi, err := net.InterfaceByName(s.iface)
		if err != nil {
			return fmt.Errorf("looking up interface %s: %w", s.iface, err)
		}
		s.ifIndex = ifi.Index
	}

	conn, err := net.ListenPacket("udp4", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		conn.Close()
		return fmt.Errorf("enabling interface control messages: %w", err)
	}
	s.conn = pc

	s.logger.Info("DHCP server started",
		"address", s.addr,
		"interface", s.iface)

	s.wg.Add(1)
	go s.serve(ctx)
	return nil
}

// serve is the main packet processing loop.
func (s *Server) serve(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		buf := getBuffer()
		n, cm, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			putBuffer(buf)
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Error("reading UDP packet", "error", err)
			continue
		}
		if s.ifIndex != 0 && cm != nil && cm.IfIndex != s.ifIndex {
			putBuffer(buf)
			continue
		}

		s.wg.Add(1)
		go func(data []byte, src net.Addr) {
			defer s.wg.Done()
			defer putBuffer(data)

			payload, dst, ok := s.process(ctx, data, src)
			if !ok {
				return
			}
			var wcm *ipv4.ControlMessage
			if s.ifIndex != 0 {
				wcm = &ipv4.ControlMessage{IfIndex: s.ifIndex}
			}
			if _, err := s.conn.WriteTo(payload, wcm, dst); err != nil {
				metrics.PacketErrors.WithLabelValues("send").Inc()
				s.logger.Error("sending reply", "error", err, "dst", dst.String())
			}
		}(buf[:n], src)
	}
}

// process decodes one datagram, runs it through the rate limiter and the
// handler and returns the encoded reply and where to send it. ok is false
// when nothing is to be sent.
func (s *Server) process(ctx context.Context, data []byte, src net.Addr) (payload []byte, dst *net.UDPAddr, ok bool) {
	msg, err := dhcpv4.Decode(data, s.mode)
	if err != nil {
		metrics.PacketErrors.WithLabelValues("decode").Inc()
		s.logger.Warn("dropping malformed packet",
			"error", err,
			"src", addrString(src),
			"size", len(data))
		return nil, nil, false
	}
	if msg.Op != dhcpv4.OpCodeBootRequest {
		return nil, nil, false
	}

	msgType := msg.MessageType().String()
	metrics.PacketsReceived.WithLabelValues(msgType).Inc()

	if !s.limiter.Allow(msg.ClientKey()) {
		metrics.RateLimited.Inc()
		s.logger.Debug("rate limited", "mac", msg.HardwareAddr().String(), "msg_type", msgType)
		return nil, nil, false
	}

	start := time.Now()
	res, err := s.handler.Handle(ctx, msg)
	metrics.PacketProcessingDuration.WithLabelValues(msgType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PacketErrors.WithLabelValues("handler").Inc()
		s.logger.Error("handling DHCP message",
			"error", err,
			"mac", msg.HardwareAddr().String(),
			"msg_type", msgType)
		return nil, nil, false
	}
	if res == nil || res.Reply == nil {
		return nil, nil, false
	}

	limit := dhcpv4.DefaultPacketSize
	if n := int(msg.MaxMessageSize()); n > limit {
		limit = min(n, dhcpv4.MaxPacketSize)
	}
	payload, err = res.Reply.EncodeWith(dhcpv4.EncodeOptions{
		Overload: true,
		MaxSize:  limit - ipUDPHeaderLen,
		PadTo:    dhcpv4.MinPacketSize,
	})
	if err != nil {
		metrics.PacketErrors.WithLabelValues("encode").Inc()
		s.logger.Error("encoding reply",
			"error", err,
			"mac", msg.HardwareAddr().String())
		return nil, nil, false
	}

	metrics.PacketsSent.WithLabelValues(res.Reply.MessageType().String()).Inc()
	return payload, replyDestination(msg, res.Reply), true
}

// replyDestination determines where to send a reply.
// RFC 2131 §4.1: relay agent first, then broadcast for NAKs and clients that
// cannot take unicast yet, then the client's own address.
func replyDestination(req, reply *dhcpv4.Message) *net.UDPAddr {
	if req.IsRelayed() {
		return &net.UDPAddr{IP: req.GIAddr, Port: dhcpv4.ServerPort}
	}
	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: dhcpv4.ClientPort}
	if reply.MessageType() == dhcpv4.MessageTypeNak {
		return broadcast
	}
	if dhcpv4.IsZeroIP(req.CIAddr) || req.IsBroadcast() {
		return broadcast
	}
	return &net.UDPAddr{IP: req.CIAddr, Port: dhcpv4.ClientPort}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Stop gracefully shuts down the server and waits for in-flight packets.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	s.wg.Wait()
	s.logger.Info("DHCP server stopped")
}
