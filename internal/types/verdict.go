package types

import "time"

// Verdict sources recorded in the audit trail.
const (
	SourceNavigation  = "navigation"
	SourceStatusQuery = "status_query"
)

// VerdictRecord is one completed classification, appended to the audit log.
type VerdictRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	TabID      string    `json:"tab_id,omitempty"`
	URL        string    `json:"url"`
	Domain     string    `json:"domain"`
	IsPhishing bool      `json:"is_phishing"`
	Label      string    `json:"label,omitempty"`
	Source     string    `json:"source"`
}
