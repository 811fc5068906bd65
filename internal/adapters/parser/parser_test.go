package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/seccerts/certpipe/internal/core/domain"
)

const ccListingHTML = `<html><body>
<table>
  <tr><th>Category</th><th>Product</th><th>Vendor</th><th>Certificate</th></tr>
  <tr>
    <td>ICs, Smart Cards</td>
    <td>SafeCard v2</td>
    <td>Vendor X</td>
    <td>BSI-DSZ-CC-1234-2026</td>
    <td><a href="/reports/1234.pdf">Certification Report</a>
        <a href="/targets/1234-st.pdf">Security Target</a></td>
  </tr>
  <tr>
    <td>Network Devices</td>
    <td>EdgeGuard Firewall 3.1</td>
    <td>Acme / Beta GmbH</td>
    <td>ANSSI-CC-2026/07</td>
    <td><a href="/reports/anssi-07.pdf">Rapport de certification</a></td>
  </tr>
  <tr><td colspan="4">separator</td></tr>
</table>
</body></html>`

const fipsListingHTML = `<html><body>
<table>
  <tr><th>Cert#</th><th>Module</th><th>Vendor</th><th>Type</th><th>Status</th></tr>
  <tr>
    <td>#4321</td>
    <td>CryptoModule 2.0</td>
    <td>Acme Inc.</td>
    <td>Hardware</td>
    <td>Active</td>
    <td><a href="/certificates/4321.pdf">Certificate</a></td>
  </tr>
  <tr>
    <td>100</td>
    <td>LegacyCrypt 1.0</td>
    <td>Old Corp</td>
    <td>Software</td>
    <td>Historical</td>
  </tr>
  <tr>
    <td>2026-05-12</td>
    <td>Not a module row</td>
    <td>Nobody</td>
    <td>Date cell</td>
    <td>Active</td>
  </tr>
</table>
</body></html>`

func fetchResult(url string, body string) *domain.FetchResult {
	return &domain.FetchResult{
		URL:         url,
		Data:        []byte(body),
		ContentHash: "hash-of-" + url,
		FetchedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCCParser_Listing(t *testing.T) {
	p := NewCCParser()

	records, err := p.Parse(domain.KindCCListing, "", fetchResult("https://example.org/cc/index.html", ccListingHTML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.CertID != "BSI-DSZ-CC-1234-2026" {
		t.Errorf("Wrong cert id: %s", first.CertID)
	}
	if first.Framework != domain.FrameworkCC || first.Kind != domain.KindCCListing {
		t.Errorf("Wrong framework/kind: %s/%s", first.Framework, first.Kind)
	}
	if first.Status != domain.StatusActive {
		t.Errorf("Expected active status, got %s", first.Status)
	}
	if got := first.Fields[domain.FieldName]; len(got) != 1 || got[0] != "SafeCard v2" {
		t.Errorf("Wrong name field: %v", got)
	}
	if got := first.Fields[domain.FieldVendor]; len(got) != 1 || got[0] != "Vendor X" {
		t.Errorf("Wrong vendor field: %v", got)
	}
	if got := first.Fields["report_url"]; len(got) != 1 || got[0] != "/reports/1234.pdf" {
		t.Errorf("Wrong report link: %v", got)
	}
	if got := first.Fields["target_url"]; len(got) != 1 || got[0] != "/targets/1234-st.pdf" {
		t.Errorf("Wrong target link: %v", got)
	}

	if records[1].CertID != "ANSSI-CC-2026/07" {
		t.Errorf("Wrong second cert id: %s", records[1].CertID)
	}
}

func TestCCParser_ArchivedListing(t *testing.T) {
	p := NewCCParser()

	records, err := p.Parse(domain.KindCCListing, "", fetchResult("https://example.org/cc/index-archived.html", ccListingHTML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	for _, r := range records {
		if r.Status != domain.StatusArchived {
			t.Errorf("Archived index must yield archived status, got %s for %s", r.Status, r.CertID)
		}
	}
}

func TestCCParser_EmptyListing(t *testing.T) {
	p := NewCCParser()

	_, err := p.Parse(domain.KindCCListing, "", fetchResult("https://example.org/empty.html", "<html><body><p>nothing</p></body></html>"))
	if err == nil {
		t.Fatal("Expected an error for a listing without rows")
	}
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ParseError, got %T", err)
	}
}

func TestCCParser_RejectsForeignKind(t *testing.T) {
	p := NewCCParser()

	_, err := p.Parse(domain.KindFIPSListing, "", fetchResult("https://example.org/x", "<html></html>"))
	if err == nil {
		t.Fatal("Expected an error for a FIPS document kind")
	}
}

func TestFIPSParser_Listing(t *testing.T) {
	p := NewFIPSParser()

	records, err := p.Parse(domain.KindFIPSListing, "", fetchResult("https://example.org/fips/modules.html", fipsListingHTML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records (the date cell is not a cert number), got %d", len(records))
	}

	first := records[0]
	if first.CertID != "4321" {
		t.Errorf("Cert number must be extracted without the hash sign: %s", first.CertID)
	}
	if first.Framework != domain.FrameworkFIPS {
		t.Errorf("Wrong framework: %s", first.Framework)
	}
	if first.Status != domain.StatusActive {
		t.Errorf("Wrong status: %s", first.Status)
	}
	if got := first.Fields["report_url"]; len(got) != 1 || got[0] != "/certificates/4321.pdf" {
		t.Errorf("Wrong report link: %v", got)
	}

	second := records[1]
	if second.CertID != "100" {
		t.Errorf("Bare cert number must parse: %s", second.CertID)
	}
	if second.Status != domain.StatusHistorical {
		t.Errorf("Expected historical status, got %s", second.Status)
	}
}

func TestNarrative_CCReport(t *testing.T) {
	text := `Certification Report BSI-DSZ-CC-1234-2026

Product: SafeCard v2
Developer: Vendor X Corp

The evaluation covered firmware 2.0.1 of the product. This report
supersedes BSI-DSZ-CC-0987-2024. During the evaluation the issues
cve-2019-12345 and CVE-2021-44228 were assessed.`

	p := NewCCParser()
	records, err := p.Parse(domain.KindCCReport, "BSI-DSZ-CC-1234-2026", fetchResult("https://example.org/reports/1234.pdf", text))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	pr := records[0]
	if pr.CertID != "BSI-DSZ-CC-1234-2026" {
		t.Errorf("Wrong cert id: %s", pr.CertID)
	}
	if got := pr.Fields[domain.FieldName]; len(got) != 1 || got[0] != "SafeCard v2" {
		t.Errorf("Product label not mined: %v", got)
	}
	if got := pr.Fields[domain.FieldVendor]; len(got) != 1 || got[0] != "Vendor X Corp" {
		t.Errorf("Developer label not mined: %v", got)
	}
	if got := pr.Fields[domain.FieldVersion]; len(got) == 0 || got[0] != "2.0.1" {
		t.Errorf("Version not mined: %v", got)
	}

	mentions := pr.Fields[domain.FieldCVEMention]
	if len(mentions) != 1 || mentions[0] != "CVE-2021-44228" {
		// lowercase "cve-..." does not match; only canonical spellings do
		t.Errorf("Wrong CVE mentions: %v", mentions)
	}

	refs := pr.Fields[domain.FieldCertMention]
	if len(refs) != 1 || refs[0] != "BSI-DSZ-CC-0987-2024" {
		t.Errorf("Cross-certificate mention must exclude the document's own id: %v", refs)
	}
}

func TestNarrative_FindsOwnCertID(t *testing.T) {
	text := "Rapport de certification ANSSI-CC-2026/07\n\nProduct: EdgeGuard Firewall"

	p := NewCCParser()
	records, err := p.Parse(domain.KindCCReport, "", fetchResult("https://example.org/anssi-07.pdf", text))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if records[0].CertID != "ANSSI-CC-2026/07" {
		t.Errorf("Own identifier not located: %s", records[0].CertID)
	}
}

func TestNarrative_NoCertID(t *testing.T) {
	p := NewCCParser()
	_, err := p.Parse(domain.KindCCReport, "", fetchResult("https://example.org/blank.txt", "no identifiers here"))
	if err == nil {
		t.Fatal("Expected an error for a document without identifiers")
	}
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ParseError, got %T", err)
	}
}

func TestNarrative_FIPSCertMentions(t *testing.T) {
	text := `Security Policy for CryptoModule 2.0, Cert. #4321.
The module embeds the approved core validated under Certificate #1111
and interoperates with cert #2222.`

	p := NewFIPSParser()
	records, err := p.Parse(domain.KindFIPSReport, "4321", fetchResult("https://example.org/sp-4321.pdf", text))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	refs := records[0].Fields[domain.FieldCertMention]
	want := map[string]bool{"1111": true, "2222": true}
	if len(refs) != 2 {
		t.Fatalf("Expected 2 mentions, got %v", refs)
	}
	for _, r := range refs {
		if !want[r] {
			t.Errorf("Unexpected mention %q", r)
		}
	}
}

func TestNarrative_HTMLStripping(t *testing.T) {
	html := `<html><body>
<h1>Certification Report BSI-DSZ-CC-5555-2026</h1>
<p>Developer: <b>HTML Vendor</b></p>
</body></html>`

	p := NewCCParser()
	records, err := p.Parse(domain.KindCCReport, "", fetchResult("https://example.org/report.html", html))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if records[0].CertID != "BSI-DSZ-CC-5555-2026" {
		t.Errorf("Wrong cert id: %s", records[0].CertID)
	}
}

func TestFindCCCertID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report BSI-DSZ-CC-1234-2026 final", "BSI-DSZ-CC-1234-2026"},
		{"ANSSI-CC-2026/07 issued", "ANSSI-CC-2026/07"},
		{"see NSCIB-CC-2300071-CR2", "NSCIB-CC-2300071-CR2"},
		{"OCSI/CERT/ATS/01/2026 cover page", "OCSI/CERT/ATS/01/2026"},
		{"CCEVS-VR-VID-11111-2026", "CCEVS-VR-VID-11111-2026"},
		{"nothing here", ""},
	}
	for _, tc := range cases {
		if got := findCCCertID(tc.in); got != tc.want {
			t.Errorf("findCCCertID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
