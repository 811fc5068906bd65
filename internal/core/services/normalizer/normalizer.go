// Package normalizer reconciles partial records from multiple source
// documents into one canonical certificate record per identifier.
package normalizer

import (
	"fmt"
	"sort"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// Policy selects the tie-break rule among narrative candidates for a field
// with no structured value.
type Policy string

const (
	// PolicyMajority promotes the most frequently observed candidate,
	// breaking ties by earliest fetch timestamp.
	PolicyMajority Policy = "majority"
	// PolicyFirstSeen promotes the earliest-fetched candidate.
	PolicyFirstSeen Policy = "first_seen"
)

// canonicalFields are the normalized text fields chosen by precedence.
var canonicalFields = []string{domain.FieldName, domain.FieldVendor, domain.FieldCategory}

// Normalizer merges PartialRecords into Certificates. Merging is
// deterministic and idempotent: re-applying the same partial record is a
// no-op, deduplicated by document content hash.
type Normalizer struct {
	policy Policy
}

// New returns a normalizer with the given tie-break policy.
func New(policy Policy) *Normalizer {
	if policy == "" {
		policy = PolicyMajority
	}
	return &Normalizer{policy: policy}
}

// Merge applies one partial record. existing may be nil on first sighting.
// The input record is never mutated; the returned record is a new value, so
// a caller can treat the swap as atomic. Newly detected structured-source
// conflicts are returned alongside.
func (n *Normalizer) Merge(existing *domain.Certificate, pr domain.PartialRecord) (*domain.Certificate, []domain.FieldConflict, error) {
	if pr.CertID == "" {
		return nil, nil, fmt.Errorf("partial record without cert_id")
	}

	var rec *domain.Certificate
	if existing == nil {
		rec = &domain.Certificate{
			CertID:    pr.CertID,
			Framework: pr.Framework,
			Status:    domain.StatusActive,
			RawFields: make(map[string][]domain.FieldObservation),
		}
	} else {
		if existing.CertID != pr.CertID {
			return nil, nil, fmt.Errorf("cert_id mismatch: record %s, partial %s", existing.CertID, pr.CertID)
		}
		if existing.Framework != pr.Framework {
			return nil, nil, fmt.Errorf("framework mismatch for %s: record %s, partial %s", pr.CertID, existing.Framework, pr.Framework)
		}
		rec = existing.Clone()
	}

	// Same document already merged: no-op.
	if rec.HasDocument(pr.Kind, pr.ContentHash) {
		return rec, nil, nil
	}

	conflicts := n.detectConflicts(rec, pr)

	rec.SourceDocuments = append(rec.SourceDocuments, domain.SourceDocument{
		Kind:        pr.Kind,
		URL:         pr.URL,
		FetchedAt:   pr.FetchedAt,
		ContentHash: pr.ContentHash,
	})

	if rec.RawFields == nil {
		rec.RawFields = make(map[string][]domain.FieldObservation)
	}
	for field, values := range pr.Fields {
		for _, v := range values {
			rec.RawFields[field] = append(rec.RawFields[field], domain.FieldObservation{
				Value:       v,
				Kind:        pr.Kind,
				URL:         pr.URL,
				FetchedAt:   pr.FetchedAt,
				ContentHash: pr.ContentHash,
			})
		}
	}

	// Lifecycle state only moves on listing evidence.
	if pr.Kind.Structured() && pr.Status != "" {
		rec.Status = pr.Status
	}

	rec.Conflicts = append(rec.Conflicts, conflicts...)

	rec.Name = n.canonical(rec, domain.FieldName)
	rec.Vendor = n.canonical(rec, domain.FieldVendor)
	rec.Category = n.canonical(rec, domain.FieldCategory)

	return rec, conflicts, nil
}

// detectConflicts reports structured sources disagreeing on a canonical
// field. Both values stay in RawFields; the conflict is surfaced for review.
func (n *Normalizer) detectConflicts(rec *domain.Certificate, pr domain.PartialRecord) []domain.FieldConflict {
	if !pr.Kind.Structured() {
		return nil
	}

	var conflicts []domain.FieldConflict
	for _, field := range canonicalFields {
		incoming := pr.Fields[field]
		if len(incoming) == 0 {
			continue
		}
		existing := latestStructured(rec.Observations(field))
		if existing == "" || existing == incoming[0] {
			continue
		}
		conflicts = append(conflicts, domain.FieldConflict{
			Field:    field,
			Existing: existing,
			Incoming: incoming[0],
			URL:      pr.URL,
		})
	}
	return conflicts
}

// canonical recomputes a field's canonical value from raw observations.
// Structured sources win; narrative candidates are only promoted when no
// structured value exists.
func (n *Normalizer) canonical(rec *domain.Certificate, field string) string {
	obs := rec.Observations(field)
	if len(obs) == 0 {
		return ""
	}

	if v := latestStructured(obs); v != "" {
		return v
	}

	switch n.policy {
	case PolicyFirstSeen:
		return firstSeen(obs)
	default:
		return majority(obs)
	}
}

// latestStructured returns the most recently fetched structured value,
// ties broken by append order (later wins, matching overwrite semantics).
func latestStructured(obs []domain.FieldObservation) string {
	var (
		value string
		found bool
		idx   int
	)
	for i, o := range obs {
		if !o.Kind.Structured() {
			continue
		}
		if !found || o.FetchedAt.After(obs[idx].FetchedAt) || o.FetchedAt.Equal(obs[idx].FetchedAt) {
			value, idx, found = o.Value, i, true
		}
	}
	return value
}

// firstSeen returns the earliest-fetched narrative candidate.
func firstSeen(obs []domain.FieldObservation) string {
	var (
		value string
		found bool
		idx   int
	)
	for i, o := range obs {
		if o.Kind.Structured() {
			continue
		}
		if !found || o.FetchedAt.Before(obs[idx].FetchedAt) {
			value, idx, found = o.Value, i, true
		}
	}
	return value
}

// majority returns the most frequent narrative candidate; ties resolve to
// the earliest fetch timestamp, then lexicographically smallest value so the
// outcome never depends on map iteration order.
func majority(obs []domain.FieldObservation) string {
	type stat struct {
		count int
		first domain.FieldObservation
	}
	stats := make(map[string]*stat)
	for _, o := range obs {
		if o.Kind.Structured() {
			continue
		}
		s, ok := stats[o.Value]
		if !ok {
			stats[o.Value] = &stat{count: 1, first: o}
			continue
		}
		s.count++
		if o.FetchedAt.Before(s.first.FetchedAt) {
			s.first = o
		}
	}
	if len(stats) == 0 {
		return ""
	}

	values := make([]string, 0, len(stats))
	for v := range stats {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		si, sj := stats[values[i]], stats[values[j]]
		if si.count != sj.count {
			return si.count > sj.count
		}
		if !si.first.FetchedAt.Equal(sj.first.FetchedAt) {
			return si.first.FetchedAt.Before(sj.first.FetchedAt)
		}
		return values[i] < values[j]
	})
	return values[0]
}
