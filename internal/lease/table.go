package lease

import (
	"net"
	"sort"

	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

// Table is the in-memory lease table: one record per address, indexed by
// address, with a secondary index from client key to address. A client has
// at most one record.
//
// Table does no locking; the owner serializes access.
type Table struct {
	leases   []Lease           // arena
	free     []int             // reusable arena slots
	byAddr   map[uint32]int    // address → arena slot
	byClient map[string]uint32 // client key → address
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		byAddr:   make(map[uint32]int),
		byClient: make(map[string]uint32),
	}
}

// ByAddr returns a copy of the record for ip.
func (t *Table) ByAddr(ip net.IP) (Lease, bool) {
	slot, ok := t.byAddr[dhcpv4.IPToUint32(ip)]
	if !ok {
		return Lease{}, false
	}
	return *t.leases[slot].Clone(), true
}

// ByClient returns a copy of the record held by client key.
func (t *Table) ByClient(key string) (Lease, bool) {
	addr, ok := t.byClient[key]
	if !ok {
		return Lease{}, false
	}
	return *t.leases[t.byAddr[addr]].Clone(), true
}

// Put stores l, replacing the record at its address. If the client held a
// record at another address, that record is removed and returned.
func (t *Table) Put(l Lease) (displaced *Lease) {
	addr := dhcpv4.IPToUint32(l.IP)
	l = *l.Clone()

	if prev, ok := t.byClient[l.ClientKey]; ok && prev != addr {
		old := t.remove(prev)
		displaced = &old
	}

	if slot, ok := t.byAddr[addr]; ok {
		if owner := t.leases[slot].ClientKey; owner != l.ClientKey && t.byClient[owner] == addr {
			delete(t.byClient, owner)
		}
		t.leases[slot] = l
	} else {
		t.byAddr[addr] = t.alloc(l)
	}
	t.byClient[l.ClientKey] = addr
	return displaced
}

// Delete removes the record for ip.
func (t *Table) Delete(ip net.IP) (Lease, bool) {
	addr := dhcpv4.IPToUint32(ip)
	if _, ok := t.byAddr[addr]; !ok {
		return Lease{}, false
	}
	return t.remove(addr), true
}

func (t *Table) alloc(l Lease) int {
	if n := len(t.free); n > 0 {
		slot := t.free[n-1]
		t.free = t.free[:n-1]
		t.leases[slot] = l
		return slot
	}
	t.leases = append(t.leases, l)
	return len(t.leases) - 1
}

func (t *Table) remove(addr uint32) Lease {
	slot := t.byAddr[addr]
	l := t.leases[slot]
	delete(t.byAddr, addr)
	if t.byClient[l.ClientKey] == addr {
		delete(t.byClient, l.ClientKey)
	}
	t.leases[slot] = Lease{}
	t.free = append(t.free, slot)
	return l
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.byAddr)
}

// Snapshot returns copies of all records in address order.
func (t *Table) Snapshot() []Lease {
	addrs := make([]uint32, 0, len(t.byAddr))
	for a := range t.byAddr {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	out := make([]Lease, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, *t.leases[t.byAddr[a]].Clone())
	}
	return out
}

// CountByStatus returns the number of records in each status.
func (t *Table) CountByStatus() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, slot := range t.byAddr {
		counts[t.leases[slot].Status]++
	}
	return counts
}
