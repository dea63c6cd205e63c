// Package quarantine holds addresses that clients declined (DHCPDECLINE)
// out of the pool for a hold period.
package quarantine

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketQuarantine = []byte("quarantine")

// Record is one quarantined address.
type Record struct {
	IP         net.IP    `json:"ip"`
	DeclinedAt time.Time `json:"declined_at"`
	ClientKey  string    `json:"client_key,omitempty"`
	MAC        string    `json:"mac,omitempty"`
	HoldUntil  time.Time `json:"hold_until"`
	Count      int       `json:"count"`
	Permanent  bool      `json:"permanent"`
}

// Table manages the quarantine table with optional BoltDB persistence and
// an in-memory cache.
type Table struct {
	db       *bolt.DB
	records  map[string]*Record // IP string → Record
	mu       sync.RWMutex
	holdTime time.Duration
	maxCount int
}

// NewTable creates a quarantine table. db may be nil for a memory-only
// table. An address declined maxCount times is held permanently; zero
// disables that.
func NewTable(db *bolt.DB, holdTime time.Duration, maxCount int) (*Table, error) {
	t := &Table{
		db:       db,
		records:  make(map[string]*Record),
		holdTime: holdTime,
		maxCount: maxCount,
	}
	if db == nil {
		return t, nil
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQuarantine)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating quarantine bucket: %w", err)
	}
	if err := t.loadAll(); err != nil {
		return nil, fmt.Errorf("loading quarantine table: %w", err)
	}
	return t, nil
}

func (t *Table) loadAll() error {
	return t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuarantine).ForEach(func(k, v []byte) error {
			r := &Record{}
			if err := json.Unmarshal(v, r); err != nil {
				return fmt.Errorf("unmarshalling quarantine record %s: %w", k, err)
			}
			t.records[string(k)] = r
			return nil
		})
	})
}

// Add quarantines ip, or extends the hold of an address declined before.
// Returns true if the address is now held permanently.
func (t *Table) Add(ip net.IP, clientKey string, mac net.HardwareAddr, now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ipStr := ip.String()
	r, exists := t.records[ipStr]
	if !exists {
		r = &Record{IP: append(net.IP(nil), ip...)}
		t.records[ipStr] = r
	}
	r.Count++
	r.DeclinedAt = now
	r.ClientKey = clientKey
	r.MAC = mac.String()
	r.HoldUntil = now.Add(t.holdTime)
	if t.maxCount > 0 && r.Count >= t.maxCount {
		r.Permanent = true
	}

	if err := t.persist(ipStr, r); err != nil {
		return r.Permanent, fmt.Errorf("persisting quarantine for %s: %w", ip, err)
	}
	return r.Permanent, nil
}

// IsHeld reports whether ip is quarantined at now.
func (t *Table) IsHeld(ip net.IP, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[ip.String()]
	return ok && r.held(now)
}

func (r *Record) held(now time.Time) bool {
	return r.Permanent || now.Before(r.HoldUntil)
}

// Get returns a copy of the record for ip, or nil.
func (t *Table) Get(ip net.IP) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[ip.String()]
	if !ok {
		return nil
	}
	rc := *r
	return &rc
}

// Expire removes records whose hold has ended and returns their addresses.
// Permanent records stay until cleared.
func (t *Table) Expire(now time.Time) ([]net.IP, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var released []net.IP
	for ipStr, r := range t.records {
		if r.held(now) {
			continue
		}
		if err := t.remove(ipStr); err != nil {
			return released, err
		}
		released = append(released, r.IP)
	}
	sort.Slice(released, func(i, j int) bool {
		return string(released[i].To16()) < string(released[j].To16())
	})
	return released, nil
}

// Clear removes a record regardless of its hold (manual admin action).
func (t *Table) Clear(ip net.IP) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(ip.String())
}

func (t *Table) remove(ipStr string) error {
	delete(t.records, ipStr)
	if t.db == nil {
		return nil
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuarantine).Delete([]byte(ipStr))
	})
}

// Active returns copies of the records held at now.
func (t *Table) Active(now time.Time) []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []*Record
	for _, r := range t.records {
		if r.held(now) {
			rc := *r
			active = append(active, &rc)
		}
	}
	return active
}

// Count returns the number of records, held or not yet expired by a sweep.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// PermanentCount returns the number of permanently held addresses.
func (t *Table) PermanentCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, r := range t.records {
		if r.Permanent {
			count++
		}
	}
	return count
}

func (t *Table) persist(ipStr string, r *Record) error {
	if t.db == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuarantine).Put([]byte(ipStr), data)
	})
}
