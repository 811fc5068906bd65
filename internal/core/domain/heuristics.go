package domain

// CVEProvenance records how a CVE reference was established.
type CVEProvenance string

const (
	// ViaProductMatch means the CVE was reached through a CPE candidate.
	ViaProductMatch CVEProvenance = "via_product_match"
	// ViaDirectMention means the CVE identifier appeared literally in a
	// certificate's narrative text.
	ViaDirectMention CVEProvenance = "via_direct_mention"
)

// CPEMatch is one candidate product identity with its similarity score.
// Multiple candidates are retained; the engine never force-resolves to one.
type CPEMatch struct {
	URI    string  `json:"uri"`
	Vendor string  `json:"vendor"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"` // 0.0-1.0 token-set similarity
}

// CVEReference links a certificate to a known vulnerability.
type CVEReference struct {
	ID         string        `json:"cve_id"`
	Provenance CVEProvenance `json:"provenance"`
	// Score is the similarity of the product match that justified
	// inclusion; zero for direct mentions.
	Score float64 `json:"score,omitempty"`
}

// Heuristics is the derived enrichment sub-record. It is recomputed from
// RawFields plus reference corpora and is never edited by hand.
type Heuristics struct {
	CPECandidates []CPEMatch     `json:"matched_cpe_candidates"`
	RelatedCVEs   []CVEReference `json:"related_cves"`
	RelatedCerts  []string       `json:"related_certs"`
}

// Clone returns a deep copy.
func (h Heuristics) Clone() Heuristics {
	return Heuristics{
		CPECandidates: append([]CPEMatch(nil), h.CPECandidates...),
		RelatedCVEs:   append([]CVEReference(nil), h.RelatedCVEs...),
		RelatedCerts:  append([]string(nil), h.RelatedCerts...),
	}
}
