package storage

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hakim/bughunter/internal/models"
)

// MemoryStore keeps snapshots in process memory. Entries expire after the
// retention period so abandoned sessions do not accumulate.
type MemoryStore struct {
	cache *ttlcache.Cache[string, *models.ScanSession]
}

// NewMemoryStore creates a store; a zero retention keeps entries forever
func NewMemoryStore(retention time.Duration) *MemoryStore {
	opts := []ttlcache.Option[string, *models.ScanSession]{
		// reads must not extend retention; only Put does
		ttlcache.WithDisableTouchOnHit[string, *models.ScanSession](),
	}
	if retention > 0 {
		opts = append(opts, ttlcache.WithTTL[string, *models.ScanSession](retention))
	}
	cache := ttlcache.New[string, *models.ScanSession](opts...)
	go cache.Start()

	return &MemoryStore{cache: cache}
}

// Get returns a copy of the stored session
func (m *MemoryStore) Get(id string) (*models.ScanSession, error) {
	item := m.cache.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	return item.Value().Snapshot(), nil
}

// Put stores a copy of session and refreshes its retention
func (m *MemoryStore) Put(session *models.ScanSession) error {
	m.cache.Set(session.ID, session.Snapshot(), ttlcache.DefaultTTL)
	return nil
}

// Delete removes a session
func (m *MemoryStore) Delete(id string) error {
	if m.cache.Get(id) == nil {
		return ErrNotFound
	}
	m.cache.Delete(id)
	return nil
}

// List returns copies of the sessions for domain, newest first
func (m *MemoryStore) List(domain string) ([]*models.ScanSession, error) {
	var sessions []*models.ScanSession
	for _, item := range m.cache.Items() {
		if item.IsExpired() {
			continue
		}
		s := item.Value()
		if domain != "" && s.Domain != domain {
			continue
		}
		sessions = append(sessions, s.Snapshot())
	}
	sortNewestFirst(sessions)
	return sessions, nil
}

// Close stops the expiry loop
func (m *MemoryStore) Close() error {
	m.cache.Stop()
	return nil
}
