package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// ccCertIDExprs matches certificate identifiers of the major CC schemes.
var ccCertIDExprs = []*regexp.Regexp{
	regexp.MustCompile(`BSI-DSZ-CC-\d{3,5}(?:-[vV]\d+)?(?:-\d{4})?`),
	regexp.MustCompile(`ANSSI-CC-\d{4}[/_-]\d{2,3}(?:[vV]\d+)?`),
	regexp.MustCompile(`NSCIB-CC-\d{4,7}(?:-CR\d*)?`),
	regexp.MustCompile(`OCSI/CERT/\w{3}/\d{2}/\d{4}`),
	regexp.MustCompile(`CCEVS-VR-(?:VID)?-?\d{4,5}(?:-\d{4})?`),
}

// findCCCertID returns the first scheme identifier found in text.
func findCCCertID(text string) string {
	for _, expr := range ccCertIDExprs {
		if m := expr.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// findAllCCCertIDs returns every scheme identifier found in text, in order.
func findAllCCCertIDs(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, expr := range ccCertIDExprs {
		for _, m := range expr.FindAllString(text, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// parseCCListing extracts one PartialRecord per row of a Common Criteria
// products listing. Expected row shape: category, name, vendor, cert id
// cells, with report/target links anchored in the row.
func parseCCListing(res *domain.FetchResult) ([]domain.PartialRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Data))
	if err != nil {
		return nil, &domain.ParseError{URL: res.URL, Reason: "parse html: " + err.Error()}
	}

	status := listingStatus(res.URL)
	var records []domain.PartialRecord

	doc.Find("table tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return // header or separator row
		}

		category := strings.TrimSpace(cells.Eq(0).Text())
		name := strings.TrimSpace(cells.Eq(1).Text())
		vendor := strings.TrimSpace(cells.Eq(2).Text())
		certID := findCCCertID(cells.Eq(3).Text())
		if certID == "" {
			// Some schemes put the identifier inside the name cell.
			certID = findCCCertID(name)
		}
		if certID == "" {
			return
		}

		pr := domain.PartialRecord{
			CertID:      certID,
			Framework:   domain.FrameworkCC,
			Kind:        domain.KindCCListing,
			URL:         res.URL,
			FetchedAt:   res.FetchedAt,
			ContentHash: res.ContentHash,
			Status:      status,
		}
		pr.AddField(domain.FieldName, name)
		pr.AddField(domain.FieldVendor, vendor)
		pr.AddField(domain.FieldCategory, category)

		tr.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !strings.HasSuffix(strings.ToLower(href), ".pdf") {
				return
			}
			label := strings.ToLower(a.Text())
			switch {
			case strings.Contains(label, "target"):
				pr.AddField("target_url", href)
			default:
				pr.AddField("report_url", href)
			}
		})

		records = append(records, pr)
	})

	if len(records) == 0 {
		return nil, &domain.ParseError{URL: res.URL, Reason: "no certificate rows found"}
	}

	countParsed(domain.FrameworkCC, domain.KindCCListing, 1)
	return records, nil
}

// listingStatus derives lifecycle status from the listing endpoint itself;
// certification bodies publish separate active and archived indexes.
func listingStatus(url string) domain.Status {
	if strings.Contains(strings.ToLower(url), "archiv") {
		return domain.StatusArchived
	}
	return domain.StatusActive
}
