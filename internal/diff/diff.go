// Package diff computes the delta between two scan sessions of one domain.
// It identifies hits that are new, gone, or whose risk tier or provenance
// changed between consecutive runs.
package diff

import (
	"sort"

	"github.com/hakim/bughunter/internal/models"
)

// ---------------------------------------------------------------------------
// DiffResult
// ---------------------------------------------------------------------------

// HitChange pairs the previous and current form of a hit that was reported
// in both sessions but with different attributes.
type HitChange struct {
	Subdomain string               `json:"subdomain"`
	Previous  models.ClassifiedHit `json:"previous"`
	Current   models.ClassifiedHit `json:"current"`
}

// DiffResult holds the complete delta between a current and a previous
// session. All slice fields are non-nil (empty slices, not nil) so callers
// can range over them unconditionally.
type DiffResult struct {
	Domain     string `json:"domain"`
	CurrentID  string `json:"current_id"`
	PreviousID string `json:"previous_id,omitempty"`

	NewHits     []models.ClassifiedHit `json:"new_hits"`
	RemovedHits []models.ClassifiedHit `json:"removed_hits"`
	RiskChanged []HitChange            `json:"risk_changed"`
	// SourceChanged covers provenance moves such as wordlist -> both
	SourceChanged []HitChange `json:"source_changed"`

	// WildcardChanged is set when wildcard detection flipped between runs
	WildcardChanged bool `json:"wildcard_changed"`

	// Summary counts (convenient for rendering without re-iterating slices)
	CurrentCount  int `json:"current_count"`
	PreviousCount int `json:"previous_count"`
}

// HasChanges reports whether anything differs between the two sessions
func (d *DiffResult) HasChanges() bool {
	return len(d.NewHits) > 0 || len(d.RemovedHits) > 0 || len(d.RiskChanged) > 0 ||
		len(d.SourceChanged) > 0 || d.WildcardChanged
}

// ---------------------------------------------------------------------------
// ComputeDiff
// ---------------------------------------------------------------------------

// ComputeDiff calculates the delta between current and previous sessions.
// previous may be nil for the "no previous scan" case, in which every
// current hit is new.
func ComputeDiff(current, previous *models.ScanSession) *DiffResult {
	dr := &DiffResult{
		Domain:        current.Domain,
		CurrentID:     current.ID,
		NewHits:       []models.ClassifiedHit{},
		RemovedHits:   []models.ClassifiedHit{},
		RiskChanged:   []HitChange{},
		SourceChanged: []HitChange{},
		CurrentCount:  len(current.LiveResults),
	}

	var prevHits []models.ClassifiedHit
	if previous != nil {
		dr.PreviousID = previous.ID
		dr.PreviousCount = len(previous.LiveResults)
		dr.WildcardChanged = previous.WildcardDetected != current.WildcardDetected
		prevHits = previous.LiveResults
	}

	diffHits(dr, current.LiveResults, prevHits)
	return dr
}

// ---------------------------------------------------------------------------
// Hit diff
// ---------------------------------------------------------------------------

// diffHits computes new, removed and changed hits.
// Key: ClassifiedHit.Subdomain.
func diffHits(dr *DiffResult, current, previous []models.ClassifiedHit) {
	prevByName := make(map[string]models.ClassifiedHit, len(previous))
	for _, h := range previous {
		prevByName[h.Subdomain] = h
	}

	currByName := make(map[string]models.ClassifiedHit, len(current))
	for _, h := range current {
		currByName[h.Subdomain] = h
	}

	// New and changed relative to previous
	for _, h := range current {
		prev, existed := prevByName[h.Subdomain]
		if !existed {
			dr.NewHits = append(dr.NewHits, h)
			continue
		}
		if prev.RiskLevel != h.RiskLevel {
			dr.RiskChanged = append(dr.RiskChanged, HitChange{Subdomain: h.Subdomain, Previous: prev, Current: h})
		}
		if prev.Source != h.Source {
			dr.SourceChanged = append(dr.SourceChanged, HitChange{Subdomain: h.Subdomain, Previous: prev, Current: h})
		}
	}

	// Removed: reported before but absent now
	for _, h := range previous {
		if _, exists := currByName[h.Subdomain]; !exists {
			dr.RemovedHits = append(dr.RemovedHits, h)
		}
	}

	// Stable output order for rendering
	sortHits(dr.NewHits)
	sortHits(dr.RemovedHits)
}

func sortHits(hits []models.ClassifiedHit) {
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Subdomain < hits[j].Subdomain
	})
}
