package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/seccerts/certpipe/internal/core/domain"
)

var (
	cveExpr     = regexp.MustCompile(`CVE-\d{4}-\d{4,7}`)
	versionExpr = regexp.MustCompile(`\bv?\d+(?:\.\d+)+\b`)

	vendorLabelExpr = regexp.MustCompile(`(?im)^\s*(?:developer|sponsor|manufacturer|vendor)\s*:\s*(\S[^\r\n]*)`)
	nameLabelExpr   = regexp.MustCompile(`(?im)^\s*(?:product|toe name|toe|module name)\s*:\s*(\S[^\r\n]*)`)

	htmlTagExpr = regexp.MustCompile(`<[^>]+>`)
)

const maxVersionCandidates = 10

// parseNarrative mines fields from the free text of a certification report
// or security target. Values found here are candidates only; the normalizer
// decides whether any of them become canonical.
func parseNarrative(framework domain.Framework, kind domain.DocumentKind, certID string, res *domain.FetchResult) ([]domain.PartialRecord, error) {
	text, err := documentText(res.Data)
	if err != nil {
		return nil, &domain.ParseError{URL: res.URL, CertID: certID, Reason: err.Error()}
	}

	if certID == "" {
		certID = findOwnCertID(framework, text)
	}
	if certID == "" {
		return nil, &domain.ParseError{URL: res.URL, Reason: "no certificate identifier in document"}
	}

	pr := domain.PartialRecord{
		CertID:      certID,
		Framework:   framework,
		Kind:        kind,
		URL:         res.URL,
		FetchedAt:   res.FetchedAt,
		ContentHash: res.ContentHash,
	}

	for _, m := range vendorLabelExpr.FindAllStringSubmatch(text, -1) {
		pr.AddField(domain.FieldVendor, strings.TrimSpace(m[1]))
	}
	for _, m := range nameLabelExpr.FindAllStringSubmatch(text, -1) {
		pr.AddField(domain.FieldName, strings.TrimSpace(m[1]))
	}

	versions := versionExpr.FindAllString(text, -1)
	if len(versions) > maxVersionCandidates {
		versions = versions[:maxVersionCandidates]
	}
	for _, v := range versions {
		pr.AddField(domain.FieldVersion, strings.TrimPrefix(v, "v"))
	}

	for _, cve := range cveExpr.FindAllString(text, -1) {
		pr.AddField(domain.FieldCVEMention, strings.ToUpper(cve))
	}

	for _, ref := range certMentions(framework, text) {
		if ref != certID {
			pr.AddField(domain.FieldCertMention, ref)
		}
	}

	countParsed(framework, kind, 1)
	return []domain.PartialRecord{pr}, nil
}

// findOwnCertID locates the document's own scheme identifier, used for
// reports fetched without a listing hint.
func findOwnCertID(framework domain.Framework, text string) string {
	switch framework {
	case domain.FrameworkCC:
		return findCCCertID(text)
	case domain.FrameworkFIPS:
		if m := fipsCertMentionExpr.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// certMentions returns references to other certificates of the same
// framework found in narrative text.
func certMentions(framework domain.Framework, text string) []string {
	switch framework {
	case domain.FrameworkCC:
		return findAllCCCertIDs(text)
	case domain.FrameworkFIPS:
		var out []string
		seen := map[string]struct{}{}
		for _, m := range fipsCertMentionExpr.FindAllStringSubmatch(text, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			out = append(out, m[1])
		}
		return out
	}
	return nil
}

// documentText turns raw document bytes into plain text: PDF via the
// content-stream extractor, HTML by stripping tags, anything else verbatim.
func documentText(data []byte) (string, error) {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return extractPDFText(data)
	}
	text := string(data)
	if strings.Contains(text, "<html") || strings.Contains(text, "<HTML") || strings.Contains(text, "<body") {
		text = htmlTagExpr.ReplaceAllString(text, " ")
	}
	return text, nil
}
