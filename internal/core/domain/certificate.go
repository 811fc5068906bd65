package domain

import "time"

// Framework identifies the certification scheme a certificate belongs to.
type Framework string

const (
	FrameworkCC   Framework = "cc"
	FrameworkFIPS Framework = "fips"
)

// Status reflects the certificate's lifecycle position on the scheme side.
// A record never disappears from the dataset; only its status moves.
type Status string

const (
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusHistorical Status = "historical"
)

// DocumentKind identifies what sort of source document a value came from.
type DocumentKind string

const (
	KindCCListing      DocumentKind = "cc_listing"
	KindFIPSListing    DocumentKind = "fips_listing"
	KindCCReport       DocumentKind = "cc_report"
	KindFIPSReport     DocumentKind = "fips_report"
	KindSecurityTarget DocumentKind = "security_target"
)

// Structured reports whether the kind is a structured listing source.
// Structured sources win precedence ties over narrative ones.
func (k DocumentKind) Structured() bool {
	return k == KindCCListing || k == KindFIPSListing
}

// Well-known extracted field names. Parsers may emit others; these are the
// ones the normalizer and heuristics engine care about.
const (
	FieldName        = "name"
	FieldVendor      = "vendor"
	FieldCategory    = "category"
	FieldVersion     = "version"
	FieldCVEMention  = "cve_mention"
	FieldCertMention = "cert_mention"
)

// SourceDocument is one entry in a certificate's append-only document log.
type SourceDocument struct {
	Kind        DocumentKind `json:"kind"`
	URL         string       `json:"url"`
	FetchedAt   time.Time    `json:"fetched_at"`
	ContentHash string       `json:"content_hash"`
}

// FieldObservation is a single raw value for a field as seen in one source
// document. Observations are retained verbatim for auditability even after a
// canonical value has been chosen.
type FieldObservation struct {
	Value       string       `json:"value"`
	Kind        DocumentKind `json:"kind"`
	URL         string       `json:"url"`
	FetchedAt   time.Time    `json:"fetched_at"`
	ContentHash string       `json:"content_hash"`
}

// FieldConflict records two structured sources disagreeing on a field that
// should be authoritative. Both values are kept for manual review.
type FieldConflict struct {
	Field    string `json:"field"`
	Existing string `json:"existing"`
	Incoming string `json:"incoming"`
	URL      string `json:"url"`
}

// Certificate is the canonical per-certificate record, one per scheme
// identifier. Name, Vendor and Category hold the best available value under
// the structured-wins precedence rule; RawFields keeps everything ever seen.
type Certificate struct {
	CertID    string    `json:"cert_id"`
	Framework Framework `json:"framework"`
	Status    Status    `json:"status"`

	Name     string `json:"name"`
	Vendor   string `json:"vendor"`
	Category string `json:"category"`

	SourceDocuments []SourceDocument              `json:"source_documents"`
	RawFields       map[string][]FieldObservation `json:"raw_extracted_fields"`
	Conflicts       []FieldConflict               `json:"conflicts,omitempty"`

	Heuristics Heuristics `json:"heuristics"`
}

// HasDocument reports whether a document with the given kind and content
// hash has already been merged into the record.
func (c *Certificate) HasDocument(kind DocumentKind, contentHash string) bool {
	for _, d := range c.SourceDocuments {
		if d.Kind == kind && d.ContentHash == contentHash {
			return true
		}
	}
	return false
}

// Observations returns the raw observations for a field, nil if none exist.
func (c *Certificate) Observations(field string) []FieldObservation {
	if c.RawFields == nil {
		return nil
	}
	return c.RawFields[field]
}

// Clone returns a deep copy. Merges operate on a clone so a cancelled or
// failed merge never leaves a half-updated record in the dataset.
func (c *Certificate) Clone() *Certificate {
	out := *c
	out.SourceDocuments = append([]SourceDocument(nil), c.SourceDocuments...)
	out.Conflicts = append([]FieldConflict(nil), c.Conflicts...)
	if c.RawFields != nil {
		out.RawFields = make(map[string][]FieldObservation, len(c.RawFields))
		for k, v := range c.RawFields {
			out.RawFields[k] = append([]FieldObservation(nil), v...)
		}
	}
	out.Heuristics = c.Heuristics.Clone()
	return &out
}
