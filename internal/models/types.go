package models

// SessionStatus represents the lifecycle state of a scan session
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusRunning      SessionStatus = "running"
	StatusCompleted    SessionStatus = "completed"
	StatusFailed       SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RiskLevel is the coarse label-based priority of a discovered subdomain
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Origin identifies which discovery source produced a candidate
type Origin string

const (
	OriginWordlist                Origin = "wordlist"
	OriginCertificateTransparency Origin = "certificate_transparency"
)

// Source is the reported provenance of a classified hit. It extends Origin
// with SourceBoth for names found by more than one origin.
type Source string

const (
	SourceWordlist                Source = Source(OriginWordlist)
	SourceCertificateTransparency Source = Source(OriginCertificateTransparency)
	SourceBoth                    Source = "both"
)
