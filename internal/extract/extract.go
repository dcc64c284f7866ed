// Package extract parses company records out of already-fetched markup. It
// never touches the network: every function is pure parsing, and a missing
// structural element yields a missing field rather than an error.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapekit/saasdir/internal/scrape"
)

// Listing-table selectors for the directory markup.
const (
	rowSelector      = "tr.data-table_row__aX_dq"
	cellSelector     = "td.data-table_cell__a_9gs"
	nameLinkSelector = "a.cells_link__PfQot"
	founderSelector  = "a.cells_name__pBrsJ"
	industrySelector = "a.saas-companies_ellipses__Y9AeV"
	lockSelector     = "button[class*='btn_lock']"
)

// Column indexes in the listing table.
const (
	cellName     = 1
	cellRevenue  = 2
	cellFunding  = 6
	cellGrowth   = 8
	cellFounder  = 9
	cellLocation = 13
	cellIndustry = 14
)

// ExtractCompanies parses one listing page into ordered company records. Rows
// that carry no company name are not company entries and are skipped; within
// a row, each field is extracted independently so one absent node never costs
// the rest of the record.
func ExtractCompanies(markup []byte, baseURL string) ([]scrape.CompanyRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse listing markup: %w", err)
	}

	var records []scrape.CompanyRecord
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		record := extractRow(row, baseURL)
		if record.CompanyName != nil {
			records = append(records, record)
		}
	})
	return records, nil
}

func extractRow(row *goquery.Selection, baseURL string) scrape.CompanyRecord {
	var record scrape.CompanyRecord
	cells := row.Find(cellSelector)

	if nameCell := cellAt(cells, cellName); nameCell != nil {
		extractNameCell(nameCell, baseURL, &record)
	}
	record.Revenue = lockedCellText(cellAt(cells, cellRevenue))
	record.Funding = lockedCellText(cellAt(cells, cellFunding))
	record.Growth = lockedCellText(cellAt(cells, cellGrowth))
	if founderCell := cellAt(cells, cellFounder); founderCell != nil {
		record.FounderName = textOrNil(founderCell.Find(founderSelector))
	}
	if locationCell := cellAt(cells, cellLocation); locationCell != nil {
		record.Location = textOrNil(locationCell.Find("a").First())
	}
	if industryCell := cellAt(cells, cellIndustry); industryCell != nil {
		record.Industry = textOrNil(industryCell.Find(industrySelector))
	}
	return record
}

func extractNameCell(cell *goquery.Selection, baseURL string, record *scrape.CompanyRecord) {
	nameLink := cell.Find(nameLinkSelector).First()
	record.CompanyName = textOrNil(nameLink)
	if href, ok := nameLink.Attr("href"); ok && href != "" {
		record.DetailURL = scrape.String(resolveURL(baseURL, href))
	}

	cell.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		if record.LinkedinURL == nil && strings.Contains(href, "linkedin.com") {
			record.LinkedinURL = scrape.String(href)
		}
		if record.WebsiteURL == nil && strings.HasPrefix(href, "//") {
			record.WebsiteURL = scrape.String("https:" + href)
		}
		return record.LinkedinURL == nil || record.WebsiteURL == nil
	})
}

// lockedCellText returns the cell text unless the value is behind a paywall
// lock button, which counts as missing.
func lockedCellText(cell *goquery.Selection) *string {
	if cell == nil {
		return nil
	}
	if cell.Find(lockSelector).Length() > 0 {
		return nil
	}
	return textOrNil(cell)
}

func cellAt(cells *goquery.Selection, idx int) *goquery.Selection {
	if idx >= cells.Length() {
		return nil
	}
	return cells.Eq(idx)
}

func textOrNil(sel *goquery.Selection) *string {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.First().Text())
	if text == "" {
		return nil
	}
	return &text
}

func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseParsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseParsed.ResolveReference(ref).String()
}
