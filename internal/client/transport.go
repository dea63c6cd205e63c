package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// pollInterval bounds how long Receive blocks before rechecking its context.
const pollInterval = 500 * time.Millisecond

// Transport moves encoded client messages. UDPTransport is the production
// implementation; tests substitute an in-memory one.
type Transport interface {
	Send(ctx context.Context, payload []byte, dst *net.UDPAddr) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// UDPTransport sends from and listens on UDP port 68 of one interface.
type UDPTransport struct {
	conn    *ipv4.PacketConn
	ifIndex int
	buf     []byte
}

// NewUDPTransport opens the client socket for iface. addr defaults to
// 0.0.0.0:68.
func NewUDPTransport(iface, addr string) (*UDPTransport, error) {
	if addr == "" {
		addr = fmt.Sprintf(":%d", dhcpv4.ClientPort)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", iface, err)
	}
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling interface control messages: %w", err)
	}
	return &UDPTransport{
		conn:    pc,
		ifIndex: ifi.Index,
		buf:     make([]byte, dhcpv4.MaxPacketSize),
	}, nil
}

// Send writes payload to dst out of the transport's interface.
func (t *UDPTransport) Send(ctx context.Context, payload []byte, dst *net.UDPAddr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cm := &ipv4.ControlMessage{IfIndex: t.ifIndex}
	if _, err := t.conn.WriteTo(payload, cm, dst); err != nil {
		return fmt.Errorf("sending to %s: %w", dst, err)
	}
	return nil
}

// Receive returns the next datagram that arrived on the interface. It is
// not safe for concurrent use.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return nil, err
		}
		n, cm, _, err := t.conn.ReadFrom(t.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return nil, err
		}
		if cm != nil && cm.IfIndex != t.ifIndex {
			continue
		}
		return append([]byte(nil), t.buf[:n]...), nil
	}
}

// Close closes the socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
