package domain

import "time"

// PartialRecord is the parser's output for one source document: the cert_id
// plus raw candidate values per field. It never carries normalized state;
// choosing canonical values is the normalizer's job.
type PartialRecord struct {
	CertID      string       `json:"cert_id"`
	Framework   Framework    `json:"framework"`
	Kind        DocumentKind `json:"kind"`
	URL         string       `json:"url"`
	FetchedAt   time.Time    `json:"fetched_at"`
	ContentHash string       `json:"content_hash"`

	// Status is only populated by listing parsers; narrative documents
	// say nothing about lifecycle state.
	Status Status `json:"status,omitempty"`

	// Fields maps field name to zero or more candidate values, in
	// document order.
	Fields map[string][]string `json:"fields"`
}

// AddField appends a candidate value, skipping empties and exact duplicates.
func (p *PartialRecord) AddField(name, value string) {
	if value == "" {
		return
	}
	if p.Fields == nil {
		p.Fields = make(map[string][]string)
	}
	for _, v := range p.Fields[name] {
		if v == value {
			return
		}
	}
	p.Fields[name] = append(p.Fields[name], value)
}
