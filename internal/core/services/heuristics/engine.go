// Package heuristics enriches normalized certificate records with product
// identity (CPE), vulnerability linkage (CVE) and cross-certificate
// references. Given the same record fields and the same corpus snapshots,
// its output is bit-identical: every candidate list is sorted and every
// lookup path is deterministic.
package heuristics

import (
	"context"
	"sort"
	"strings"

	"github.com/seccerts/certpipe/internal/core/domain"
	"github.com/seccerts/certpipe/internal/core/ports"
	"github.com/seccerts/certpipe/internal/telemetry"
)

const (
	// defaultThreshold is the minimum token-set similarity for a CPE
	// candidate to be retained.
	defaultThreshold = 0.8
	// strictThreshold applies while version-restricted matching is in
	// effect; relaxing the version requirement lowers the bar back to
	// defaultThreshold.
	strictThreshold = 0.95
	// maxCandidates caps retained CPE matches per certificate.
	maxCandidates = 10
	// minItemNameLen filters out CPE entries too short to match reliably.
	minItemNameLen = 3
)

// Engine computes the derived heuristics sub-record. Corpora are passed in
// explicitly; a nil repository means that corpus is unavailable and the
// engine degrades to empty candidate sets for it.
type Engine struct {
	cpes ports.CPERepository
	cves ports.CVERepository

	threshold float64
}

// NewEngine wires the reference corpora. Either may be nil.
func NewEngine(cpes ports.CPERepository, cves ports.CVERepository) *Engine {
	return &Engine{cpes: cpes, cves: cves, threshold: defaultThreshold}
}

// Enrich recomputes the heuristics for one record from its raw fields plus
// the reference corpora. It returns the corpora that were unavailable, if
// any; that is degraded mode, not an error.
func (e *Engine) Enrich(ctx context.Context, cert *domain.Certificate) (degraded []string, err error) {
	h := domain.Heuristics{}

	if e.cpes == nil {
		degraded = append(degraded, "cpe")
	} else {
		h.CPECandidates, err = e.resolveProduct(ctx, cert)
		if err != nil {
			return degraded, err
		}
	}

	if e.cves == nil {
		degraded = append(degraded, "cve")
	} else {
		refs, err := e.cvesForCandidates(ctx, h.CPECandidates)
		if err != nil {
			return degraded, err
		}
		h.RelatedCVEs = refs
	}

	// Direct mentions stand on their own, with or without any corpus.
	h.RelatedCVEs = unionCVERefs(h.RelatedCVEs, directMentions(cert))

	// RelatedCerts is filled by the second pass; keep whatever the
	// previous pass computed until then.
	h.RelatedCerts = cert.Heuristics.RelatedCerts

	cert.Heuristics = h
	telemetry.RecordsEnriched.WithLabelValues(string(cert.Framework)).Inc()
	return degraded, nil
}

// resolveProduct searches the CPE dictionary for candidate product
// identities. Zero matches is a valid outcome.
func (e *Engine) resolveProduct(ctx context.Context, cert *domain.Certificate) ([]domain.CPEMatch, error) {
	if cert.Name == "" {
		return nil, nil
	}

	vendors, err := e.candidateVendors(ctx, cert.Vendor)
	if err != nil {
		return nil, err
	}
	if len(vendors) == 0 {
		return nil, nil
	}

	versions := knownVersions(cert)

	// First pass restricts candidates to the versions mined from the
	// record and demands a near-perfect name match; if nothing clears
	// that bar, a second pass drops the version restriction and scores
	// at the normal threshold. The relaxed pass also runs when no
	// versions were extracted at all, so versionless products still see
	// the full candidate range.
	matches, err := e.scoreCandidates(ctx, cert, vendors, versions, strictThreshold)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		matches, err = e.scoreCandidates(ctx, cert, vendors, nil, e.threshold)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].URI < matches[j].URI
	})
	if len(matches) > maxCandidates {
		matches = matches[:maxCandidates]
	}
	return matches, nil
}

func (e *Engine) scoreCandidates(ctx context.Context, cert *domain.Certificate, vendors, versions []string, threshold float64) ([]domain.CPEMatch, error) {
	var matches []domain.CPEMatch
	sanName := sanitize(cert.Name)

	for _, vendor := range vendors {
		cpes, err := e.cpes.FindByVendor(ctx, vendor)
		if err != nil {
			return nil, err
		}
		for _, cpe := range cpes {
			if len(cpe.Name) <= minItemNameLen {
				continue
			}
			if len(versions) > 0 && cpe.Version != "*" && !contains(versions, cpe.Version) {
				continue
			}

			score := e.score(sanName, vendors, versions, cpe)
			if score < threshold {
				continue
			}
			matches = append(matches, domain.CPEMatch{
				URI:    cpe.URI,
				Vendor: cpe.Vendor,
				Name:   cpe.Name,
				Score:  score,
			})
		}
	}
	return matches, nil
}

// score compares the certificate's product name against a CPE entry, both
// against its full title and against the bare item name with vendor and
// version tokens stripped.
func (e *Engine) score(sanName string, vendors, versions []string, cpe domain.CPERecord) float64 {
	title := cpe.Title
	if title == "" {
		title = cpe.Vendor + " " + cpe.Name + " " + cpe.Version
	}

	stripped := stripTokens(sanName, append(append([]string(nil), vendors...), versions...))
	if stripped == "" {
		stripped = sanName
	}

	onTitle := tokenSetSimilarity(sanName, title)
	onItem := tokenSetSimilarity(stripped, cpe.Name)
	if onItem > onTitle {
		return onItem
	}
	return onTitle
}

// candidateVendors maps the record's free-text vendor onto dictionary
// vendor strings, expanding joint vendors and matching squashed forms.
func (e *Engine) candidateVendors(ctx context.Context, vendor string) ([]string, error) {
	if vendor == "" {
		return nil, nil
	}

	known, err := e.cpes.Vendors(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]struct{})
	for _, part := range vendorParts(vendor) {
		sq := squash(part)
		if sq == "" {
			continue
		}
		for _, kv := range known {
			if kv == sq {
				out[kv] = struct{}{}
				continue
			}
			// "redhatinc" vs "redhat"; demand some length before
			// allowing substring containment.
			if len(kv) >= 4 && len(sq) >= 4 && (strings.Contains(sq, kv) || strings.Contains(kv, sq)) {
				out[kv] = struct{}{}
			}
		}
	}
	return sortedKeys(out), nil
}

// cvesForCandidates unions vulnerability lookups over all matched product
// candidates, tagging each CVE with the similarity score that justified it.
// Each candidate is resolved twice: by its exact CPE URI and by its
// vendor/product pair, the latter catching CVEs recorded against other
// versions of the same product.
func (e *Engine) cvesForCandidates(ctx context.Context, candidates []domain.CPEMatch) ([]domain.CVEReference, error) {
	best := make(map[string]float64)
	for _, cand := range candidates {
		exact, err := e.cves.FindByCPEURI(ctx, cand.URI)
		if err != nil {
			return nil, err
		}
		anyVersion, err := e.cves.FindByVendorProduct(ctx, cand.Vendor, cand.Name)
		if err != nil {
			return nil, err
		}
		for _, cve := range append(exact, anyVersion...) {
			if cand.Score > best[cve.ID] {
				best[cve.ID] = cand.Score
			}
		}
	}

	refs := make([]domain.CVEReference, 0, len(best))
	for id := range best {
		refs = append(refs, domain.CVEReference{
			ID:         id,
			Provenance: domain.ViaProductMatch,
			Score:      best[id],
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// directMentions collects CVE identifiers the parsers found literally in
// narrative text.
func directMentions(cert *domain.Certificate) []domain.CVEReference {
	ids := make(map[string]struct{})
	for _, obs := range cert.Observations(domain.FieldCVEMention) {
		ids[strings.ToUpper(obs.Value)] = struct{}{}
	}

	var refs []domain.CVEReference
	for _, id := range sortedKeys(ids) {
		refs = append(refs, domain.CVEReference{ID: id, Provenance: domain.ViaDirectMention})
	}
	return refs
}

// unionCVERefs merges the two provenance sets. A direct mention wins over a
// product match for the same identifier. Output is sorted by CVE id.
func unionCVERefs(byProduct, direct []domain.CVEReference) []domain.CVEReference {
	merged := make(map[string]domain.CVEReference)
	for _, r := range byProduct {
		merged[r.ID] = r
	}
	for _, r := range direct {
		merged[r.ID] = r
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []domain.CVEReference
	for _, id := range ids {
		out = append(out, merged[id])
	}
	return out
}

// LinkRelatedCerts resolves cross-certificate references over the full
// record set. It must run after every record of the build is normalized;
// the outcome does not depend on processing order.
func (e *Engine) LinkRelatedCerts(certs []*domain.Certificate) {
	known := make(map[string]struct{}, len(certs))
	for _, c := range certs {
		known[c.CertID] = struct{}{}
	}

	for _, c := range certs {
		refs := make(map[string]struct{})
		for _, obs := range c.Observations(domain.FieldCertMention) {
			id := strings.TrimSpace(obs.Value)
			if id == "" || id == c.CertID {
				continue
			}
			if _, ok := known[id]; ok {
				refs[id] = struct{}{}
			}
		}
		c.Heuristics.RelatedCerts = sortedKeys(refs)
	}
}

// knownVersions unions version candidates mined by the parsers with ones
// embedded in the product name itself.
func knownVersions(cert *domain.Certificate) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, obs := range cert.Observations(domain.FieldVersion) {
		add(obs.Value)
	}
	for _, v := range extractVersions(cert.Name) {
		add(v)
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
