package domain

// CPERecord is one entry of the product-naming reference corpus
// (Common Platform Enumeration dictionary).
type CPERecord struct {
	URI     string `json:"uri"` // e.g. "cpe:2.3:a:openssl:openssl:1.0.2:*:*:*:*:*:*:*"
	Vendor  string `json:"vendor"`
	Name    string `json:"name"`    // item name, e.g. "openssl"
	Version string `json:"version"` // "*" when unspecified
	Title   string `json:"title,omitempty"`
}
