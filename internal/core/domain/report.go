package domain

import "time"

// Failure is one isolated per-document or per-record error collected during
// a build run.
type Failure struct {
	Stage  string `json:"stage"` // fetch, parse, merge
	URL    string `json:"url,omitempty"`
	CertID string `json:"cert_id,omitempty"`
	Err    string `json:"error"`
}

// BuildReport aggregates the outcome of one pipeline run. Individual
// failures never abort a run; they end up here.
type BuildReport struct {
	RunID     string    `json:"run_id"`
	Framework Framework `json:"framework"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Fetched   int `json:"fetched"`
	CacheHits int `json:"cache_hits"`
	Parsed    int `json:"parsed"`
	Enriched  int `json:"enriched"`
	Conflicts int `json:"conflicts"`

	Failures []Failure `json:"failures,omitempty"`

	// Unmatched lists cert_ids with zero CPE candidates, for audit.
	Unmatched []string `json:"unmatched,omitempty"`

	// Degraded names reference corpora that were unavailable this run.
	Degraded []string `json:"degraded,omitempty"`
}

// Failed is the total number of isolated failures.
func (r *BuildReport) Failed() int { return len(r.Failures) }

// AddFailure appends one isolated failure.
func (r *BuildReport) AddFailure(stage, url, certID string, err error) {
	r.Failures = append(r.Failures, Failure{Stage: stage, URL: url, CertID: certID, Err: err.Error()})
}
