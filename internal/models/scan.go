package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanSession is one discovery run for one target domain. It is owned by the
// connection handling the scan; stores only ever receive snapshots.
type ScanSession struct {
	ID               string          `json:"id"`
	Domain           string          `json:"domain"`
	Status           SessionStatus   `json:"status"`
	WildcardDetected bool            `json:"wildcard_detected"`
	WildcardAddrs    []string        `json:"wildcard_addresses,omitempty"`
	Candidates       []Candidate     `json:"candidates,omitempty"`
	LiveResults      []ClassifiedHit `json:"live_results"`
	TotalFound       int             `json:"total_found"`
	Summary          Summary         `json:"summary"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// NewSession creates a session in the initializing state
func NewSession(domain string) *ScanSession {
	return &ScanSession{
		ID:          uuid.New().String(),
		Domain:      domain,
		Status:      StatusInitializing,
		LiveResults: []ClassifiedHit{},
		Summary:     NewSummary(),
		StartedAt:   time.Now(),
	}
}

// Finish moves the session into a terminal state. Calls after the first
// terminal transition are ignored.
func (s *ScanSession) Finish(status SessionStatus, errMsg string) bool {
	if s.Status.Terminal() {
		return false
	}
	now := time.Now()
	s.Status = status
	s.Error = errMsg
	s.CompletedAt = &now
	return true
}

// Snapshot returns a copy safe to hand to a store or another goroutine
func (s *ScanSession) Snapshot() *ScanSession {
	cp := *s
	cp.WildcardAddrs = append([]string(nil), s.WildcardAddrs...)
	cp.Candidates = append([]Candidate(nil), s.Candidates...)
	cp.LiveResults = append([]ClassifiedHit{}, s.LiveResults...)
	cp.Summary.Sources = make(map[Source]int, len(s.Summary.Sources))
	for k, v := range s.Summary.Sources {
		cp.Summary.Sources[k] = v
	}
	cp.Summary.Risk = make(map[RiskLevel]int, len(s.Summary.Risk))
	for k, v := range s.Summary.Risk {
		cp.Summary.Risk[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
