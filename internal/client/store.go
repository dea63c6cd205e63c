package client

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketBindings = []byte("bindings")

// BindingStore keeps the last binding per interface in BoltDB so a
// restarted client can go through INIT-REBOOT instead of rediscovering.
type BindingStore struct {
	db *bolt.DB
}

// NewBindingStore opens or creates the client state database.
func NewBindingStore(path string) (*BindingStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening client database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBindings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", bucketBindings, err)
	}
	return &BindingStore{db: db}, nil
}

// Close closes the database.
func (s *BindingStore) Close() error {
	return s.db.Close()
}

// Save records b as the binding for iface.
func (s *BindingStore) Save(iface string, b Binding) error {
	data, err := json.Marshal(&b)
	if err != nil {
		return fmt.Errorf("marshalling binding for %s: %w", iface, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBindings).Put([]byte(iface), data); err != nil {
			return fmt.Errorf("writing binding for %s: %w", iface, err)
		}
		return nil
	})
}

// Load returns the binding saved for iface, or nil when there is none.
func (s *BindingStore) Load(iface string) (*Binding, error) {
	var b *Binding
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBindings).Get([]byte(iface))
		if data == nil {
			return nil
		}
		b = &Binding{}
		if err := json.Unmarshal(data, b); err != nil {
			return fmt.Errorf("unmarshalling binding for %s: %w", iface, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Delete forgets the binding for iface.
func (s *BindingStore) Delete(iface string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBindings).Delete([]byte(iface)); err != nil {
			return fmt.Errorf("deleting binding for %s: %w", iface, err)
		}
		return nil
	})
}
