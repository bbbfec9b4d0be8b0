// Package storage persists scan session snapshots
package storage

import (
	"errors"
	"sort"

	"github.com/hakim/bughunter/internal/models"
)

// ErrNotFound is returned when no session exists for an id
var ErrNotFound = errors.New("session not found")

// SessionStore keeps session snapshots by id. Implementations must be safe
// for concurrent use.
type SessionStore interface {
	Get(id string) (*models.ScanSession, error)
	Put(session *models.ScanSession) error
	Delete(id string) error
	// List returns the sessions for domain, newest first. An empty domain
	// lists every session.
	List(domain string) ([]*models.ScanSession, error)
	Close() error
}

// Latest returns the most recent session for domain
func Latest(store SessionStore, domain string) (*models.ScanSession, error) {
	sessions, err := store.List(domain)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return sessions[0], nil
}

// sortNewestFirst orders sessions by StartedAt descending
func sortNewestFirst(sessions []*models.ScanSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
}
