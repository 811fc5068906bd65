package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// fipsCertNumberExpr matches a validation certificate number as rendered in
// CMVP listings ("#4321" or a bare number cell). Anchored so cells holding
// dates or footnote markers never yield a fabricated identifier.
var fipsCertNumberExpr = regexp.MustCompile(`^#?\s*(\d{1,5})$`)

// fipsCertMentionExpr matches certificate references inside FIPS narrative
// text ("Cert. #1234", "Certificate #1234").
var fipsCertMentionExpr = regexp.MustCompile(`(?i)cert(?:\.|ificate)?\s*#\s*(\d{1,5})`)

// parseFIPSListing extracts one PartialRecord per row of a CMVP validated
// modules listing. Expected row shape: cert number, module name, vendor,
// category/type, status cells.
func parseFIPSListing(res *domain.FetchResult) ([]domain.PartialRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Data))
	if err != nil {
		return nil, &domain.ParseError{URL: res.URL, Reason: "parse html: " + err.Error()}
	}

	var records []domain.PartialRecord

	doc.Find("table tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}

		m := fipsCertNumberExpr.FindStringSubmatch(strings.TrimSpace(cells.Eq(0).Text()))
		if m == nil {
			return
		}
		certID := m[1]

		name := strings.TrimSpace(cells.Eq(1).Text())
		vendor := strings.TrimSpace(cells.Eq(2).Text())
		category := strings.TrimSpace(cells.Eq(3).Text())

		status := domain.StatusActive
		if cells.Length() > 4 {
			status = fipsStatus(cells.Eq(4).Text())
		}

		pr := domain.PartialRecord{
			CertID:      certID,
			Framework:   domain.FrameworkFIPS,
			Kind:        domain.KindFIPSListing,
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
			if strings.HasSuffix(strings.ToLower(href), ".pdf") {
				pr.AddField("report_url", href)
			}
		})

		records = append(records, pr)
	})

	if len(records) == 0 {
		return nil, &domain.ParseError{URL: res.URL, Reason: "no certificate rows found"}
	}

	countParsed(domain.FrameworkFIPS, domain.KindFIPSListing, 1)
	return records, nil
}

func fipsStatus(text string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "historical":
		return domain.StatusHistorical
	case "archived":
		return domain.StatusArchived
	default:
		return domain.StatusActive
	}
}
