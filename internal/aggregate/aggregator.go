package aggregate

import (
	"github.com/hakim/bughunter/internal/models"
)

// Config holds the per-session inputs of an Aggregator
type Config struct {
	Domain           string
	WildcardDetected bool
	// CTNames is the certificate transparency result set for the session
	CTNames map[string]bool
	// WordlistNames are the names expanded from the wordlist
	WordlistNames map[string]bool
	// StrictCT requires DNS success on top of CT presence
	StrictCT bool
}

// Aggregator decides which probe results are genuine hits. It is meant to be
// driven by a single consumer goroutine and holds no locks.
type Aggregator struct {
	cfg     Config
	emitted map[string]bool
	hits    []models.ClassifiedHit
	summary models.Summary
}

// New creates an Aggregator for one session
func New(cfg Config) *Aggregator {
	if cfg.CTNames == nil {
		cfg.CTNames = map[string]bool{}
	}
	if cfg.WordlistNames == nil {
		cfg.WordlistNames = map[string]bool{}
	}
	return &Aggregator{
		cfg:     cfg,
		emitted: make(map[string]bool),
		summary: models.NewSummary(),
	}
}

// Qualifies applies the liveness rule: a web server answered, or CT vouches
// for the name, or DNS answered and no wildcard is masking it.
func (a *Aggregator) Qualifies(r models.ProbeResult) bool {
	if r.WebLive() {
		return true
	}
	if a.cfg.CTNames[r.Candidate.Name] {
		if !a.cfg.StrictCT || r.DNSLive {
			return true
		}
	}
	return !a.cfg.WildcardDetected && r.DNSLive
}

// Add consumes one probe result. It returns the hit and true when the result
// qualifies and its name was not reported before.
func (a *Aggregator) Add(r models.ProbeResult) (models.ClassifiedHit, bool) {
	a.summary.Checked++

	name := r.Candidate.Name
	if a.emitted[name] || !a.Qualifies(r) {
		return models.ClassifiedHit{}, false
	}
	a.emitted[name] = true

	hit := models.ClassifiedHit{
		Subdomain: name,
		RiskLevel: Classify(Label(name, a.cfg.Domain)),
		Source:    a.source(r.Candidate),
		Addresses: r.ResolvedAddresses,
		HTTP:      r.HTTPLive,
		HTTPS:     r.HTTPSLive,
	}

	a.hits = append(a.hits, hit)
	a.summary.TotalFound++
	a.summary.Sources[hit.Source]++
	a.summary.Risk[hit.RiskLevel]++

	return hit, true
}

// source reports both when the name came out of the wordlist and CT logs
func (a *Aggregator) source(c models.Candidate) models.Source {
	fromWordlist := c.Origin == models.OriginWordlist || a.cfg.WordlistNames[c.Name]
	fromCT := c.Origin == models.OriginCertificateTransparency || a.cfg.CTNames[c.Name]
	if fromWordlist && fromCT {
		return models.SourceBoth
	}
	return models.Source(c.Origin)
}

// SetCandidates records the size of the candidate set in the summary
func (a *Aggregator) SetCandidates(n int) {
	a.summary.Candidates = n
}

// Hits returns the emitted hits in emission order
func (a *Aggregator) Hits() []models.ClassifiedHit {
	return append([]models.ClassifiedHit(nil), a.hits...)
}

// Summary returns a copy of the running counters
func (a *Aggregator) Summary() models.Summary {
	s := a.summary
	s.Sources = make(map[models.Source]int, len(a.summary.Sources))
	for k, v := range a.summary.Sources {
		s.Sources[k] = v
	}
	s.Risk = make(map[models.RiskLevel]int, len(a.summary.Risk))
	for k, v := range a.summary.Risk {
		s.Risk[k] = v
	}
	return s
}

// Total returns the number of emitted hits
func (a *Aggregator) Total() int {
	return a.summary.TotalFound
}
