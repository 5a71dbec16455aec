package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCommunities = []byte("communities")

// Store is the durable mapping from community id to that community's
// campaign record, backed by BoltDB. Every operation on a community is
// serialized behind a per-community mutex held across the full
// load-mutate-save span, so read-modify-write callers never race.
type Store struct {
	db *bolt.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCommunities)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create communities bucket: %w", err)
	}

	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing operations on one community.
func (s *Store) lockFor(community string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[community]
	if !ok {
		l = &sync.Mutex{}
		s.locks[community] = l
	}
	return l
}

func (s *Store) load(community string) (*Record, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketCommunities).Get([]byte(community)); data != nil {
			raw = append([]byte{}, data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load community %s: %w", community, err)
	}

	if raw == nil {
		// Records are created lazily on first access.
		return NewRecord(), nil
	}

	rec := &Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("failed to decode community %s: %w", community, err)
	}
	rec.ensureDefaults()
	return rec, nil
}

func (s *Store) persist(community string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode community %s: %w", community, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommunities).Put([]byte(community), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist community %s: %w", community, err)
	}
	return nil
}

// Get returns a private copy of the community's current record. Absent
// communities yield a defaulted record.
func (s *Store) Get(ctx context.Context, community string) (*Record, error) {
	return s.load(community)
}

// Update runs fn against the community's current record and persists the
// result. The community's mutex is held for the whole span, so fn may
// perform blocking work (transport calls, paced delays) without another
// operation observing or clobbering intermediate state. A non-nil error
// from fn aborts the write and is returned unchanged.
func (s *Store) Update(ctx context.Context, community string, fn func(*Record) error) error {
	l := s.lockFor(community)
	l.Lock()
	defer l.Unlock()

	rec, err := s.load(community)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	return s.persist(community, rec)
}

// Communities lists ids with a persisted record.
func (s *Store) Communities(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommunities).ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying bolt.DB instance.
func (s *Store) DB() *bolt.DB {
	return s.db
}
