package heuristics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seccerts/certpipe/internal/adapters/corpus"
	"github.com/seccerts/certpipe/internal/core/domain"
)

func seededCorpus(t *testing.T) *corpus.SQLiteCorpus {
	t.Helper()

	repo, err := corpus.NewSQLiteCorpus(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()

	cpes := []domain.CPERecord{
		{
			URI:     "cpe:2.3:a:acme:safeguard_token:2.0:*:*:*:*:*:*:*",
			Vendor:  "acme",
			Name:    "safeguard_token",
			Version: "2.0",
			Title:   "Acme SafeGuard Token 2.0",
		},
		{
			URI:     "cpe:2.3:a:acme:safeguard_token:3.1:*:*:*:*:*:*:*",
			Vendor:  "acme",
			Name:    "safeguard_token",
			Version: "3.1",
			Title:   "Acme SafeGuard Token 3.1",
		},
		{
			URI:     "cpe:2.3:a:acme:mailrelay:1.0:*:*:*:*:*:*:*",
			Vendor:  "acme",
			Name:    "mailrelay",
			Version: "1.0",
			Title:   "Acme MailRelay 1.0",
		},
		{
			URI:     "cpe:2.3:a:gemalto:idprime:*:*:*:*:*:*:*:*",
			Vendor:  "gemalto",
			Name:    "idprime",
			Version: "*",
			Title:   "Gemalto IDPrime",
		},
	}
	for _, c := range cpes {
		require.NoError(t, repo.UpsertCPE(ctx, c))
	}

	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	cves := []domain.CVERecord{
		{
			ID:             "CVE-2020-1111",
			Description:    "Buffer overflow in Acme SafeGuard Token",
			Severity:       9.8,
			PublishedDate:  now,
			LastModified:   now,
			VulnerableCPEs: []string{"cpe:2.3:a:acme:safeguard_token:2.0:*:*:*:*:*:*:*"},
		},
		{
			ID:             "CVE-2021-2222",
			Description:    "Weak randomness in Acme SafeGuard Token",
			Severity:       5.3,
			PublishedDate:  now,
			LastModified:   now,
			VulnerableCPEs: []string{"cpe:2.3:a:acme:safeguard_token:3.1:*:*:*:*:*:*:*"},
		},
		{
			ID:             "CVE-2022-3333",
			Description:    "Unrelated mail relay issue",
			Severity:       7.5,
			PublishedDate:  now,
			LastModified:   now,
			VulnerableCPEs: []string{"cpe:2.3:a:acme:mailrelay:1.0:*:*:*:*:*:*:*"},
		},
	}
	for _, c := range cves {
		require.NoError(t, repo.UpsertCVE(ctx, c))
	}

	return repo
}

func certFixture(name, vendor string) *domain.Certificate {
	return &domain.Certificate{
		CertID:    "BSI-DSZ-CC-1000-2026",
		Framework: domain.FrameworkCC,
		Status:    domain.StatusActive,
		Name:      name,
		Vendor:    vendor,
		RawFields: make(map[string][]domain.FieldObservation),
	}
}

func addObservation(c *domain.Certificate, field, value string) {
	c.RawFields[field] = append(c.RawFields[field], domain.FieldObservation{
		Value:     value,
		Kind:      domain.KindCCReport,
		URL:       "https://example.org/report.pdf",
		FetchedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
}

func TestEnrich_ResolvesProductAndLinksCVEs(t *testing.T) {
	repo := seededCorpus(t)
	engine := NewEngine(repo, repo)
	ctx := context.Background()

	cert := certFixture("SafeGuard Token 2.0", "Acme")

	degraded, err := engine.Enrich(ctx, cert)
	require.NoError(t, err)
	assert.Empty(t, degraded)

	require.NotEmpty(t, cert.Heuristics.CPECandidates)
	top := cert.Heuristics.CPECandidates[0]
	assert.Equal(t, "cpe:2.3:a:acme:safeguard_token:2.0:*:*:*:*:*:*:*", top.URI)
	assert.GreaterOrEqual(t, top.Score, strictThreshold)

	var ids []string
	for _, ref := range cert.Heuristics.RelatedCVEs {
		ids = append(ids, ref.ID)
		assert.Equal(t, domain.ViaProductMatch, ref.Provenance)
		assert.Greater(t, ref.Score, 0.0)
	}
	assert.Contains(t, ids, "CVE-2020-1111")
	assert.NotContains(t, ids, "CVE-2022-3333", "unrelated product must not leak in")
}

func TestEnrich_VersionRelaxationFallback(t *testing.T) {
	repo := seededCorpus(t)
	engine := NewEngine(repo, repo)
	ctx := context.Background()

	// No dictionary entry carries version 9.9, so the version-restricted
	// pass finds nothing and the relaxed pass must take over.
	cert := certFixture("SafeGuard Token 9.9", "Acme")

	_, err := engine.Enrich(ctx, cert)
	require.NoError(t, err)

	require.NotEmpty(t, cert.Heuristics.CPECandidates)
	for _, m := range cert.Heuristics.CPECandidates {
		assert.Equal(t, "safeguard_token", m.Name)
		assert.GreaterOrEqual(t, m.Score, defaultThreshold)
	}
}

func TestEnrich_VersionlessNameReachesRelaxedThreshold(t *testing.T) {
	repo, err := corpus.NewSQLiteCorpus(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	// Token-set similarity against the title is exactly 0.8: four of five
	// tokens shared, no subset relation. The strict pass rejects it, so
	// only the relaxed pass can retain it — and the name carries no
	// version tokens to trigger that pass by itself.
	require.NoError(t, repo.UpsertCPE(ctx, domain.CPERecord{
		URI:     "cpe:2.3:a:acme:alpha_beta_zeta:1.0:*:*:*:*:*:*:*",
		Vendor:  "acme",
		Name:    "alpha_beta_zeta",
		Version: "1.0",
		Title:   "alpha beta gamma delta zeta",
	}))

	engine := NewEngine(repo, repo)
	cert := certFixture("Alpha Beta Gamma Delta Epsilon", "Acme")

	_, err = engine.Enrich(ctx, cert)
	require.NoError(t, err)

	require.Len(t, cert.Heuristics.CPECandidates, 1)
	assert.InDelta(t, 0.8, cert.Heuristics.CPECandidates[0].Score, 1e-9)
}

func TestEnrich_LinksCVEsByExactCPEURI(t *testing.T) {
	repo := seededCorpus(t)
	engine := NewEngine(repo, repo)
	ctx := context.Background()

	cert := certFixture("SafeGuard Token 2.0", "Acme")

	_, err := engine.Enrich(ctx, cert)
	require.NoError(t, err)

	require.NotEmpty(t, cert.Heuristics.CPECandidates)
	assert.Equal(t, "cpe:2.3:a:acme:safeguard_token:2.0:*:*:*:*:*:*:*",
		cert.Heuristics.CPECandidates[0].URI)

	// CVE-2020-1111 is recorded against exactly that URI, so the exact
	// lookup and the any-version lookup must agree on it.
	var ids []string
	for _, ref := range cert.Heuristics.RelatedCVEs {
		ids = append(ids, ref.ID)
	}
	assert.Contains(t, ids, "CVE-2020-1111")

	exact, err := repo.FindByCPEURI(ctx, cert.Heuristics.CPECandidates[0].URI)
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "CVE-2020-1111", exact[0].ID)
}

func TestEnrich_DirectMentionProvenance(t *testing.T) {
	repo := seededCorpus(t)
	engine := NewEngine(repo, repo)
	ctx := context.Background()

	cert := certFixture("SafeGuard Token 2.0", "Acme")
	addObservation(cert, domain.FieldCVEMention, "cve-2019-12345")
	// Also mentioned literally; direct provenance must win over the
	// product-match path for the same id.
	addObservation(cert, domain.FieldCVEMention, "CVE-2020-1111")

	_, err := engine.Enrich(ctx, cert)
	require.NoError(t, err)

	byID := make(map[string]domain.CVEReference)
	for _, ref := range cert.Heuristics.RelatedCVEs {
		byID[ref.ID] = ref
	}

	require.Contains(t, byID, "CVE-2019-12345", "mention must be uppercased")
	assert.Equal(t, domain.ViaDirectMention, byID["CVE-2019-12345"].Provenance)
	assert.Equal(t, domain.ViaDirectMention, byID["CVE-2020-1111"].Provenance)
}

func TestEnrich_DegradedWithoutCorpora(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx := context.Background()

	cert := certFixture("SafeGuard Token 2.0", "Acme")
	addObservation(cert, domain.FieldCVEMention, "CVE-2019-12345")

	degraded, err := engine.Enrich(ctx, cert)
	require.NoError(t, err, "missing corpora degrade, they do not fail the build")
	assert.ElementsMatch(t, []string{"cpe", "cve"}, degraded)

	assert.Empty(t, cert.Heuristics.CPECandidates)
	require.Len(t, cert.Heuristics.RelatedCVEs, 1)
	assert.Equal(t, "CVE-2019-12345", cert.Heuristics.RelatedCVEs[0].ID)
	assert.Equal(t, domain.ViaDirectMention, cert.Heuristics.RelatedCVEs[0].Provenance)
}

func TestEnrich_Deterministic(t *testing.T) {
	repo := seededCorpus(t)
	engine := NewEngine(repo, repo)
	ctx := context.Background()

	a := certFixture("SafeGuard Token 2.0", "Acme")
	addObservation(a, domain.FieldCVEMention, "CVE-2019-12345")
	b := a.Clone()

	_, err := engine.Enrich(ctx, a)
	require.NoError(t, err)
	_, err = engine.Enrich(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, a.Heuristics, b.Heuristics, "same inputs must yield identical heuristics")
}

func TestEnrich_NoVendorMeansNoCandidates(t *testing.T) {
	repo := seededCorpus(t)
	engine := NewEngine(repo, repo)
	ctx := context.Background()

	cert := certFixture("SafeGuard Token 2.0", "Unknown Vendor GmbH")

	degraded, err := engine.Enrich(ctx, cert)
	require.NoError(t, err)
	assert.Empty(t, degraded)
	assert.Empty(t, cert.Heuristics.CPECandidates, "zero matches is a valid outcome")
}

func TestLinkRelatedCerts(t *testing.T) {
	engine := NewEngine(nil, nil)

	a := certFixture("Product A", "Acme")
	a.CertID = "BSI-DSZ-CC-1000-2026"
	addObservation(a, domain.FieldCertMention, "ANSSI-CC-2026/07")
	addObservation(a, domain.FieldCertMention, "BSI-DSZ-CC-1000-2026") // self
	addObservation(a, domain.FieldCertMention, "NSCIB-CC-99999")      // unknown

	b := certFixture("Product B", "Acme")
	b.CertID = "ANSSI-CC-2026/07"
	addObservation(b, domain.FieldCertMention, "BSI-DSZ-CC-1000-2026")

	c := certFixture("Product C", "Acme")
	c.CertID = "OCSI/CERT/ATS/01/2026"

	engine.LinkRelatedCerts([]*domain.Certificate{a, b, c})

	assert.Equal(t, []string{"ANSSI-CC-2026/07"}, a.Heuristics.RelatedCerts,
		"self references and unknown ids are dropped")
	assert.Equal(t, []string{"BSI-DSZ-CC-1000-2026"}, b.Heuristics.RelatedCerts,
		"forward references resolve regardless of processing order")
	assert.Empty(t, c.Heuristics.RelatedCerts)
}
