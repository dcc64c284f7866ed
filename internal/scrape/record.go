package scrape

// CompanyRecord is one company row, keyed by its detail-page URL. Every field
// is a pointer: nil means the extractor could not locate the value, and it
// serializes as JSON null. Keys are a fixed contract consumers depend on, so
// none of the fields carry omitempty.
type CompanyRecord struct {
	CompanyName   *string `json:"Company Name"`
	LinkedinURL   *string `json:"Company Linkedin Url"`
	DetailURL     *string `json:"Company Hyperlink"`
	WebsiteURL    *string `json:"Company Website URL"`
	Revenue       *string `json:"Revenue"`
	Funding       *string `json:"Funding"`
	Growth        *string `json:"Growth"`
	FounderName   *string `json:"Founder Name"`
	Location      *string `json:"Location"`
	Industry      *string `json:"Industry"`
	EmployeeCount *int64  `json:"employee_count"`
	CEOName       *string `json:"ceo_name"`
	FoundedYear   *string `json:"founded_year"`
	PricingInfo   *string `json:"pricing_info"`
	TopProducts   *string `json:"top_products"`
	Description   *string `json:"description"`
}

// Merge returns a copy of base with profile fields filled in. Non-missing
// base fields are never overwritten; enrichment only adds.
func Merge(base CompanyRecord, profile ProfileFields) CompanyRecord {
	merged := base
	if merged.EmployeeCount == nil {
		merged.EmployeeCount = profile.EmployeeCount
	}
	if merged.CEOName == nil {
		merged.CEOName = profile.CEOName
	}
	if merged.FoundedYear == nil {
		merged.FoundedYear = profile.FoundedYear
	}
	if merged.PricingInfo == nil {
		merged.PricingInfo = profile.PricingInfo
	}
	if merged.TopProducts == nil {
		merged.TopProducts = profile.TopProducts
	}
	if merged.Description == nil {
		merged.Description = profile.Description
	}
	if merged.Revenue == nil {
		merged.Revenue = profile.IndicatorRevenue
	}
	if merged.Growth == nil {
		merged.Growth = profile.IndicatorGrowth
	}
	if merged.Funding == nil {
		merged.Funding = profile.IndicatorFunding
	}
	return merged
}

// String returns a pointer to s, for building records in extractors and tests.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to n.
func Int64(n int64) *int64 {
	return &n
}
