package parser

import (
	"fmt"

	"github.com/seccerts/certpipe/internal/core/domain"
	"github.com/seccerts/certpipe/internal/telemetry"
)

// CCParser extracts partial records from Common Criteria documents.
type CCParser struct{}

// FIPSParser extracts partial records from FIPS 140 documents.
type FIPSParser struct{}

// NewCCParser returns the Common Criteria parsing strategy.
func NewCCParser() *CCParser { return &CCParser{} }

// NewFIPSParser returns the FIPS 140 parsing strategy.
func NewFIPSParser() *FIPSParser { return &FIPSParser{} }

// Framework identifies the strategy.
func (p *CCParser) Framework() domain.Framework { return domain.FrameworkCC }

// Framework identifies the strategy.
func (p *FIPSParser) Framework() domain.Framework { return domain.FrameworkFIPS }

// Parse dispatches on document kind. Listing documents yield one record per
// table entry; narrative documents a single record for certID.
func (p *CCParser) Parse(kind domain.DocumentKind, certID string, res *domain.FetchResult) ([]domain.PartialRecord, error) {
	switch kind {
	case domain.KindCCListing:
		return parseCCListing(res)
	case domain.KindCCReport, domain.KindSecurityTarget:
		return parseNarrative(domain.FrameworkCC, kind, certID, res)
	default:
		return nil, &domain.ParseError{URL: res.URL, CertID: certID, Reason: fmt.Sprintf("kind %q is not a Common Criteria document", kind)}
	}
}

// Parse dispatches on document kind.
func (p *FIPSParser) Parse(kind domain.DocumentKind, certID string, res *domain.FetchResult) ([]domain.PartialRecord, error) {
	switch kind {
	case domain.KindFIPSListing:
		return parseFIPSListing(res)
	case domain.KindFIPSReport, domain.KindSecurityTarget:
		return parseNarrative(domain.FrameworkFIPS, kind, certID, res)
	default:
		return nil, &domain.ParseError{URL: res.URL, CertID: certID, Reason: fmt.Sprintf("kind %q is not a FIPS document", kind)}
	}
}

func countParsed(framework domain.Framework, kind domain.DocumentKind, n int) {
	telemetry.DocumentsParsed.WithLabelValues(string(framework), string(kind)).Add(float64(n))
}
