package lease

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"

	bolt "go.etcd.io/bbolt"
)

// BoltDB bucket names.
var (
	bucketLeases = []byte("leases")
	bucketMeta   = []byte("meta")

	keySeq = []byte("seq")
)

// Store persists lease records in BoltDB, keyed by address, with JSON values.
type Store struct {
	db *bolt.DB
}

// NewStore opens or creates a BoltDB database.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		NoSync: false,
	})
	if err != nil {
		return nil, fmt.Errorf("opening lease database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketLeases, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put creates or updates the record for l.IP and advances the stored
// sequence counter to l.UpdateSeq.
func (s *Store) Put(l Lease) error {
	data, err := json.Marshal(&l)
	if err != nil {
		return fmt.Errorf("marshalling lease for %s: %w", l.IP, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketLeases).Put([]byte(l.IP.String()), data); err != nil {
			return fmt.Errorf("writing lease for %s: %w", l.IP, err)
		}
		meta := tx.Bucket(bucketMeta)
		if l.UpdateSeq > decodeSeq(meta.Get(keySeq)) {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], l.UpdateSeq)
			if err := meta.Put(keySeq, buf[:]); err != nil {
				return fmt.Errorf("writing sequence: %w", err)
			}
		}
		return nil
	})
}

// Delete removes the record for ip. Deleting a missing record is not an error.
func (s *Store) Delete(ip net.IP) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketLeases).Delete([]byte(ip.String())); err != nil {
			return fmt.Errorf("deleting lease for %s: %w", ip, err)
		}
		return nil
	})
}

// Load reads every stored record and the last sequence number.
func (s *Store) Load() ([]Lease, uint64, error) {
	var (
		leases []Lease
		seq    uint64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		seq = decodeSeq(tx.Bucket(bucketMeta).Get(keySeq))
		return tx.Bucket(bucketLeases).ForEach(func(k, v []byte) error {
			var l Lease
			if err := json.Unmarshal(v, &l); err != nil {
				return fmt.Errorf("unmarshalling lease %s: %w", k, err)
			}
			leases = append(leases, l)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return leases, seq, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketLeases).Stats().KeyN
		return nil
	})
	return n
}

// DB returns the underlying BoltDB instance so other tables can share the file.
func (s *Store) DB() *bolt.DB {
	return s.db
}

func decodeSeq(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
