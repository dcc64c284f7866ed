package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapekit/saasdir/internal/scrape"
)

// ExtractProfile parses a company detail page into the enrichment fields.
// Every field is optional; a page missing a section yields nils, not errors.
func ExtractProfile(markup []byte) (scrape.ProfileFields, error) {
	var fields scrape.ProfileFields

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return fields, fmt.Errorf("parse profile markup: %w", err)
	}

	fields.Description = textOrNil(doc.Find("p.p-text.p-text_details"))
	extractIndicators(doc, &fields)
	fields.EmployeeCount = extractTeamSize(doc)
	return fields, nil
}

// extractIndicators reads the headline metric tiles in the details section and
// maps them by label text.
func extractIndicators(doc *goquery.Document, fields *scrape.ProfileFields) {
	doc.Find("section#details div.indicators div.indicators__i").Each(func(_ int, indicator *goquery.Selection) {
		text := indicator.Find("div.indicators-text")
		value := textOrNil(text.Find("h4.h4"))
		label := textOrNil(text.Find("p.p-indicators"))
		if value == nil || label == nil {
			return
		}
		switch lowered := strings.ToLower(*label); {
		case strings.Contains(lowered, "founded"):
			fields.FoundedYear = value
		case strings.Contains(lowered, "revenue"):
			fields.IndicatorRevenue = value
		case strings.Contains(lowered, "yoy"):
			fields.IndicatorGrowth = value
		case strings.Contains(lowered, "funding"):
			fields.IndicatorFunding = value
		}
	})
}

// extractTeamSize finds the "Total team size" row in the team table and
// converts the adjacent cell.
func extractTeamSize(doc *goquery.Document) *int64 {
	var count *int64
	doc.Find("section#team table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		bullet := row.Find("td.table__td_bullet").First()
		if bullet.Length() == 0 {
			return true
		}
		if !strings.Contains(bullet.Text(), "Total team size") {
			return true
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return false
		}
		count = ConvertEmployeeCount(strings.TrimSpace(cells.Eq(1).Text()))
		return false
	})
	return count
}

// ConvertEmployeeCount turns a display string like "1.4K" or "2M" into a
// number. Unparseable input yields nil.
func ConvertEmployeeCount(raw string) *int64 {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(cleaned, "K"):
		multiplier = 1_000
		cleaned = strings.TrimSuffix(cleaned, "K")
	case strings.HasSuffix(cleaned, "M"):
		multiplier = 1_000_000
		cleaned = strings.TrimSuffix(cleaned, "M")
	}

	number, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return scrape.Int64(int64(number * float64(multiplier)))
}
