package models

// Candidate represents a constructed hostname not yet verified to exist
type Candidate struct {
	Name   string `json:"name"`
	Origin Origin `json:"origin"`
}

// ProbeResult is the outcome of verifying one candidate.
// DNSLive false implies HTTPLive and HTTPSLive are false.
type ProbeResult struct {
	Candidate         Candidate `json:"candidate"`
	DNSLive           bool      `json:"dns_live"`
	HTTPLive          bool      `json:"http_live"`
	HTTPSLive         bool      `json:"https_live"`
	ResolvedAddresses []string  `json:"resolved_addresses,omitempty"`
	CNAME             string    `json:"cname,omitempty"`
}

// WebLive reports whether an HTTP server answered on either scheme
func (r ProbeResult) WebLive() bool {
	return r.HTTPLive || r.HTTPSLive
}

// ClassifiedHit is a qualifying probe result promoted into output form
type ClassifiedHit struct {
	Subdomain string    `json:"subdomain"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Source    Source    `json:"source"`
	Addresses []string  `json:"addresses,omitempty"`
	HTTP      bool      `json:"http"`
	HTTPS     bool      `json:"https"`
}

// Summary carries the running counters of a session
type Summary struct {
	Candidates int               `json:"candidates"`
	Checked    int               `json:"checked"`
	TotalFound int               `json:"total_found"`
	Sources    map[Source]int    `json:"sources"`
	Risk       map[RiskLevel]int `json:"risk"`
}

// NewSummary returns a Summary with initialized maps
func NewSummary() Summary {
	return Summary{
		Sources: make(map[Source]int),
		Risk:    make(map[RiskLevel]int),
	}
}
