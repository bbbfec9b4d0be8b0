package discovery

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hakim/bughunter/internal/models"
)

// CandidateSet contains the result of candidate generation
type CandidateSet struct {
	Domain     string             `json:"domain"`
	Candidates []models.Candidate `json:"candidates"`
	// WordlistNames and CTNames record which origin produced each name,
	// including names merged away by deduplication
	WordlistNames map[string]bool `json:"-"`
	CTNames       map[string]bool `json:"-"`
	Sources       map[string]int  `json:"sources"`
	CTFailed      bool            `json:"ct_failed"`
	CTError       string          `json:"ct_error,omitempty"`
}

// Generator expands a target domain into candidate hostnames
type Generator struct {
	words         []string
	ct            CTFetcher
	maxCandidates int
	logger        *slog.Logger
}

// GeneratorConfig contains configuration for the generator
type GeneratorConfig struct {
	Words []string
	// CT is optional; nil disables certificate transparency enrichment
	CT            CTFetcher
	MaxCandidates int
	Logger        *slog.Logger
}

// NewGenerator creates a Generator from cfg
func NewGenerator(cfg GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		words:         cfg.Words,
		ct:            cfg.CT,
		maxCandidates: cfg.MaxCandidates,
		logger:        logger,
	}
}

// Generate validates domain, then builds the deduplicated candidate set from
// the wordlist and, when configured, certificate transparency logs.
// CT failures are recorded on the set and never returned as errors.
func (g *Generator) Generate(ctx context.Context, domain string) (*CandidateSet, error) {
	domain, err := ValidateDomain(domain)
	if err != nil {
		return nil, err
	}
	if len(g.words) == 0 {
		return nil, ErrEmptyWordlist
	}

	set := &CandidateSet{
		Domain:        domain,
		WordlistNames: make(map[string]bool),
		CTNames:       make(map[string]bool),
		Sources:       make(map[string]int),
	}

	// Map for deduplication: key=normalized name, value=index into Candidates
	index := make(map[string]int)
	add := func(name string, origin models.Origin) bool {
		name = normalizeSubdomain(name)
		if name == "" {
			return false
		}
		if _, exists := index[name]; exists {
			return false
		}
		index[name] = len(set.Candidates)
		set.Candidates = append(set.Candidates, models.Candidate{Name: name, Origin: origin})
		return true
	}

	// Step 1: wordlist expansion
	for _, word := range g.words {
		name := normalizeSubdomain(word + "." + domain)
		if name == "" {
			continue
		}
		set.WordlistNames[name] = true
		if add(name, models.OriginWordlist) {
			set.Sources[string(models.OriginWordlist)]++
		}
	}

	// Step 2: certificate transparency enrichment (best effort)
	if g.ct != nil {
		names, err := g.ct.Fetch(ctx, domain)
		if err != nil {
			g.logger.Warn("certificate transparency lookup failed", "domain", domain, "error", err)
			set.CTFailed = true
			set.CTError = err.Error()
		} else {
			for _, name := range names {
				name = normalizeSubdomain(name)
				if name == "" || !strings.HasSuffix(name, "."+domain) {
					continue
				}
				set.CTNames[name] = true
				if add(name, models.OriginCertificateTransparency) {
					set.Sources[string(models.OriginCertificateTransparency)]++
				}
			}
		}
	}

	if g.maxCandidates > 0 && len(set.Candidates) > g.maxCandidates {
		g.logger.Info("candidate list truncated", "domain", domain, "total", len(set.Candidates), "max", g.maxCandidates)
		set.Candidates = set.Candidates[:g.maxCandidates]
	}

	return set, nil
}

// normalizeSubdomain normalizes a subdomain for deduplication.
// It converts to lowercase, strips trailing dots and whitespace.
// Returns empty string for invalid entries (wildcards).
func normalizeSubdomain(subdomain string) string {
	s := strings.TrimSpace(subdomain)

	if strings.Contains(s, "*") {
		return ""
	}

	s = strings.ToLower(s)
	return strings.TrimSuffix(s, ".")
}
