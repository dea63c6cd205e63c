package quarantine

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	t0  = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mac = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
)

func newTestDB(t *testing.T) (*bolt.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db, path
}

func TestNewTableMemoryOnly(t *testing.T) {
	table, err := NewTable(nil, time.Hour, 3)
	if err != nil {
		t.Fatalf("NewTable error: %v", err)
	}
	ip := net.IPv4(10, 0, 0, 5)
	if _, err := table.Add(ip, "c1", mac, t0); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if !table.IsHeld(ip, t0.Add(time.Minute)) {
		t.Error("address should be held")
	}
}

func TestTableHoldAndExpire(t *testing.T) {
	db, _ := newTestDB(t)
	defer db.Close()
	table, err := NewTable(db, time.Hour, 3)
	if err != nil {
		t.Fatalf("NewTable error: %v", err)
	}

	ip := net.IPv4(192, 168, 1, 100)
	if table.IsHeld(ip, t0) {
		t.Error("IP should not be held initially")
	}

	permanent, err := table.Add(ip, "c1", mac, t0)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if permanent {
		t.Error("should not be permanent after one decline")
	}
	if !table.IsHeld(ip, t0.Add(59*time.Minute)) {
		t.Error("IP should be held inside the hold time")
	}
	if table.IsHeld(ip, t0.Add(time.Hour)) {
		t.Error("IP should not be held once the hold time has passed")
	}

	released, err := table.Expire(t0.Add(30 * time.Minute))
	if err != nil || len(released) != 0 {
		t.Errorf("Expire inside hold = %v, %v; want none", released, err)
	}
	released, err = table.Expire(t0.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("Expire error: %v", err)
	}
	if len(released) != 1 || !released[0].Equal(ip) {
		t.Errorf("Expire = %v, want [%s]", released, ip)
	}
	if table.Count() != 0 {
		t.Errorf("Count after expire = %d, want 0", table.Count())
	}
}

func TestTablePermanentAfterRepeatedDeclines(t *testing.T) {
	table, _ := NewTable(nil, time.Minute, 3)
	ip := net.IPv4(192, 168, 1, 7)

	var permanent bool
	for i := 0; i < 3; i++ {
		permanent, _ = table.Add(ip, "c1", mac, t0.Add(time.Duration(i)*time.Minute))
	}
	if !permanent {
		t.Fatal("expected permanent hold after 3 declines")
	}
	if r := table.Get(ip); r == nil || r.Count != 3 {
		t.Errorf("Get = %+v, want count 3", r)
	}
	later := t0.Add(24 * time.Hour)
	if !table.IsHeld(ip, later) {
		t.Error("permanent record should stay held")
	}
	if released, _ := table.Expire(later); len(released) != 0 {
		t.Errorf("Expire released permanent record: %v", released)
	}
	if table.PermanentCount() != 1 {
		t.Errorf("PermanentCount = %d, want 1", table.PermanentCount())
	}

	if err := table.Clear(ip); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if table.IsHeld(ip, later) {
		t.Error("cleared address still held")
	}
}

func TestTablePersistence(t *testing.T) {
	db, path := newTestDB(t)
	table, err := NewTable(db, time.Hour, 0)
	if err != nil {
		t.Fatalf("NewTable error: %v", err)
	}
	ip := net.IPv4(172, 16, 0, 9)
	table.Add(ip, "c9", mac, t0)
	db.Close()

	db2, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	table2, err := NewTable(db2, time.Hour, 0)
	if err != nil {
		t.Fatalf("NewTable after reopen: %v", err)
	}
	r := table2.Get(ip)
	if r == nil {
		t.Fatal("record lost after reopen")
	}
	if r.MAC != mac.String() || r.ClientKey != "c9" {
		t.Errorf("record = %+v", r)
	}
	if len(table2.Active(t0.Add(time.Minute))) != 1 {
		t.Error("Active should list the record")
	}
}
