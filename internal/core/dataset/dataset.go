// Package dataset holds the aggregate root: an ordered, deduplicated
// collection of canonical certificate records with versioned snapshot
// serialization.
package dataset

import (
	"sync"
	"time"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// SchemaVersion is the snapshot schema this build reads and writes.
// Loading a snapshot with any other version fails with SchemaMismatchError.
const SchemaVersion = "1"

// SnapshotMetadata describes one build of the dataset.
type SnapshotMetadata struct {
	RunID          string    `json:"run_id"`
	BuildTimestamp time.Time `json:"build_timestamp"`
	ToolVersion    string    `json:"tool_version,omitempty"`
}

// Dataset is keyed by cert_id and iterates in insertion order. All methods
// are safe for concurrent use; Upsert is atomic per record.
type Dataset struct {
	mu      sync.RWMutex
	records map[string]*domain.Certificate
	order   []string
	meta    SnapshotMetadata
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{records: make(map[string]*domain.Certificate)}
}

// Meta returns the snapshot metadata.
func (d *Dataset) Meta() SnapshotMetadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.meta
}

// SetMeta replaces the snapshot metadata.
func (d *Dataset) SetMeta(meta SnapshotMetadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta = meta
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Get returns the record for a cert_id.
func (d *Dataset) Get(certID string) (*domain.Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[certID]
	return rec, ok
}

// Contains reports whether a cert_id exists.
func (d *Dataset) Contains(certID string) bool {
	_, ok := d.Get(certID)
	return ok
}

// Upsert inserts or replaces the record for cert.CertID. A replacement may
// never lose previously recorded history: source documents and raw field
// observations present on the stored record but missing from the incoming
// one are carried over. Calling Upsert twice with the same record is a
// no-op the second time.
func (d *Dataset) Upsert(cert *domain.Certificate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.records[cert.CertID]
	if !ok {
		d.order = append(d.order, cert.CertID)
		d.records[cert.CertID] = cert.Clone()
		return
	}

	merged := cert.Clone()
	for _, doc := range existing.SourceDocuments {
		if !merged.HasDocument(doc.Kind, doc.ContentHash) {
			merged.SourceDocuments = append(merged.SourceDocuments, doc)
		}
	}
	for field, obs := range existing.RawFields {
		for _, o := range obs {
			if !hasObservation(merged.RawFields[field], o) {
				if merged.RawFields == nil {
					merged.RawFields = make(map[string][]domain.FieldObservation)
				}
				merged.RawFields[field] = append(merged.RawFields[field], o)
			}
		}
	}
	d.records[cert.CertID] = merged
}

// Records returns all records in insertion order.
func (d *Dataset) Records() []*domain.Certificate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*domain.Certificate, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.records[id])
	}
	return out
}

func hasObservation(obs []domain.FieldObservation, o domain.FieldObservation) bool {
	for _, have := range obs {
		if have.Value == o.Value && have.Kind == o.Kind && have.ContentHash == o.ContentHash {
			return true
		}
	}
	return false
}
