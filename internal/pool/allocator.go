// Package pool tracks which addresses of a contiguous IPv4 range are in use.
//
// Allocation always returns the lowest free address, so a server that
// restarts from the same lease set hands out the same addresses again.
package pool

import (
	"fmt"
	"math/bits"
	"net"
	"sync"

	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// bitmap holds one bit per offset; a set bit means in use.
type bitmap []uint64

func newBitmap(n uint32) bitmap { return make(bitmap, (uint64(n)+63)/64) }

func (b bitmap) test(i uint32) bool { return b[i>>6]&(1<<(i&63)) != 0 }

// put sets bit i to v and reports whether it changed.
func (b bitmap) put(i uint32, v bool) bool {
	if b.test(i) == v {
		return false
	}
	b[i>>6] ^= 1 << (i & 63)
	return true
}

// lowestClear returns the first clear bit below limit.
func (b bitmap) lowestClear(limit uint32) (uint32, bool) {
	for w, word := range b {
		if ^word == 0 {
			continue
		}
		i := uint32(w)<<6 + uint32(bits.TrailingZeros64(^word))
		return i, i < limit
	}
	return 0, false
}

// Pool is an allocatable address range inside one network.
type Pool struct {
	Name    string
	Start   net.IP
	End     net.IP
	Network *net.IPNet

	base uint32
	size uint32

	mu    sync.Mutex
	used  bitmap
	count uint32
}

// NewPool validates start..end (inclusive) against network.
func NewPool(name string, start, end net.IP, network *net.IPNet) (*Pool, error) {
	s4, e4 := start.To4(), end.To4()
	if s4 == nil || e4 == nil {
		return nil, fmt.Errorf("pool %s: range %s-%s is not IPv4", name, start, end)
	}
	lo, hi := dhcpv4.IPToUint32(s4), dhcpv4.IPToUint32(e4)
	switch {
	case hi < lo:
		return nil, fmt.Errorf("pool %s: end %s is before start %s", name, end, start)
	case !network.Contains(s4):
		return nil, fmt.Errorf("pool %s: start %s not in network %s", name, start, network)
	case !network.Contains(e4):
		return nil, fmt.Errorf("pool %s: end %s not in network %s", name, end, network)
	}
	size := hi - lo + 1
	return &Pool{
		Name:    name,
		Start:   s4,
		End:     e4,
		Network: network,
		base:    lo,
		size:    size,
		used:    newBitmap(size),
	}, nil
}

// Size is the number of addresses in the range.
func (p *Pool) Size() uint32 { return p.size }

func (p *Pool) Allocated() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *Pool) Available() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - p.count
}

// Utilization is the share of the range in use, in percent.
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.count) / float64(p.size) * 100
}

func (p *Pool) offset(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	i := dhcpv4.IPToUint32(v4) - p.base
	return i, i < p.size
}

// Allocate claims the lowest free address. It returns nil when the range is
// exhausted.
func (p *Pool) Allocate() net.IP {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == p.size {
		return nil
	}
	i, ok := p.used.lowestClear(p.size)
	if !ok {
		return nil
	}
	p.used.put(i, true)
	p.count++
	return dhcpv4.Uint32ToIP(p.base + i)
}

// AllocateSpecific claims ip. It fails when ip is outside the range or
// already in use.
func (p *Pool) AllocateSpecific(ip net.IP) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.offset(ip)
	if !ok || !p.used.put(i, true) {
		return false
	}
	p.count++
	return true
}

// Release returns ip to the free set and reports whether it was in use.
func (p *Pool) Release(ip net.IP) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.offset(ip)
	if !ok || !p.used.put(i, false) {
		return false
	}
	p.count--
	return true
}

// Contains reports whether ip lies inside the range.
func (p *Pool) Contains(ip net.IP) bool {
	_, ok := p.offset(ip)
	return ok
}

func (p *Pool) IsAllocated(ip net.IP) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.offset(ip)
	return ok && p.used.test(i)
}

func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("%s (%s-%s, %d/%d used)", p.Name, p.Start, p.End, p.count, p.size)
}

// RangeString formats the range as "start-end".
func (p *Pool) RangeString() string {
	return p.Start.String() + "-" + p.End.String()
}
