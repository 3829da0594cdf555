package openalex

// Author is the subset of an OpenAlex author object the registry reads.
type Author struct {
	ID           string       `json:"id"`
	ORCID        string       `json:"orcid"`
	DisplayName  string       `json:"display_name"`
	WorksCount   int          `json:"works_count"`
	CitedByCount int          `json:"cited_by_count"`
	SummaryStats SummaryStats `json:"summary_stats"`
	UpdatedDate  string       `json:"updated_date"`
}

// SummaryStats holds the derived author metrics.
type SummaryStats struct {
	HIndex               int     `json:"h_index"`
	I10Index             int     `json:"i10_index"`
	TwoYearMeanCitedness float64 `json:"2yr_mean_citedness"`
}
