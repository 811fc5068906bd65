package domain

import "time"

// CVERecord represents a Common Vulnerabilities and Exposures entry
// from the National Vulnerability Database (NVD) or similar sources.
type CVERecord struct {
	ID          string  `json:"cve_id"` // e.g. "CVE-2019-12345"
	Description string  `json:"description"`
	Severity    float64 `json:"severity"`              // CVSS score 0-10
	CVSSVector  string  `json:"cvss_vector,omitempty"` // e.g. "CVSS:3.1/AV:N/AC:L/..."

	PublishedDate time.Time `json:"published_date"`
	LastModified  time.Time `json:"last_modified,omitempty"`

	CWEID string `json:"cwe_id,omitempty"` // e.g. "CWE-79"

	// VulnerableCPEs lists the CPE URIs of affected product configurations.
	// The heuristics engine reaches CVEs through these.
	VulnerableCPEs []string `json:"vulnerable_cpes,omitempty"`

	References []string `json:"references,omitempty"`
}

// CorpusSyncStatus tracks the last synchronization of a reference corpus
// (CPE dictionary or CVE feed) with its upstream source.
type CorpusSyncStatus struct {
	LastSyncTime time.Time `json:"last_sync_time"`
	RecordCount  int       `json:"record_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
