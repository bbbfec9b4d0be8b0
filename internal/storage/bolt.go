package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hakim/bughunter/internal/models"
)

const (
	bucketSessions     = "sessions"
	bucketSessionIndex = "session_index"
)

// BoltStore wraps a bbolt database for session persistence
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens a bbolt database at the given path and initializes required buckets
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db %s: %w", path, err)
	}

	// Create required buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSessions)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSessionIndex)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the bbolt database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put persists a session snapshot and indexes it under its domain
func (s *BoltStore) Put(session *models.ScanSession) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}

		sessions := tx.Bucket([]byte(bucketSessions))
		if err := sessions.Put([]byte(session.ID), data); err != nil {
			return err
		}

		// Update session index (domain -> []session_id mapping)
		index := tx.Bucket([]byte(bucketSessionIndex))
		ids, err := readIndex(index, session.Domain)
		if err != nil {
			return err
		}

		for _, id := range ids {
			if id == session.ID {
				return nil
			}
		}
		return writeIndex(index, session.Domain, append(ids, session.ID))
	})
}

// Get retrieves a session by ID
func (s *BoltStore) Get(id string) (*models.ScanSession, error) {
	var session *models.ScanSession

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		session = &models.ScanSession{}
		return json.Unmarshal(data, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session and its index entry
func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(bucketSessions))
		data := sessions.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var session models.ScanSession
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		if err := sessions.Delete([]byte(id)); err != nil {
			return err
		}

		index := tx.Bucket([]byte(bucketSessionIndex))
		ids, err := readIndex(index, session.Domain)
		if err != nil {
			return err
		}
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		if len(kept) == 0 {
			return index.Delete([]byte(session.Domain))
		}
		return writeIndex(index, session.Domain, kept)
	})
}

// List retrieves the sessions for a domain, sorted by StartedAt descending.
// An empty domain walks the whole sessions bucket.
func (s *BoltStore) List(domain string) ([]*models.ScanSession, error) {
	var sessions []*models.ScanSession

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketSessions))

		if domain == "" {
			return bucket.ForEach(func(_, data []byte) error {
				var session models.ScanSession
				if err := json.Unmarshal(data, &session); err != nil {
					return err
				}
				sessions = append(sessions, &session)
				return nil
			})
		}

		ids, err := readIndex(tx.Bucket([]byte(bucketSessionIndex)), domain)
		if err != nil {
			return err
		}
		for _, id := range ids {
			data := bucket.Get([]byte(id))
			if data == nil {
				continue
			}
			var session models.ScanSession
			if err := json.Unmarshal(data, &session); err != nil {
				return err
			}
			sessions = append(sessions, &session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(sessions)
	return sessions, nil
}

func readIndex(index *bbolt.Bucket, domain string) ([]string, error) {
	var ids []string
	if existing := index.Get([]byte(domain)); existing != nil {
		if err := json.Unmarshal(existing, &ids); err != nil {
			return nil, fmt.Errorf("decode session index for %s: %w", domain, err)
		}
	}
	return ids, nil
}

func writeIndex(index *bbolt.Bucket, domain string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return index.Put([]byte(domain), data)
}
