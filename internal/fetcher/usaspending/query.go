package usaspending

import (
	"github.com/JakeFAU/govcontracts-loader/internal/award"
)

const dateLayout = "2006-01-02"

// Query is the spending_by_award request body.
type Query struct {
	Filters Filters  `json:"filters"`
	Fields  []string `json:"fields"`
	Limit   int      `json:"limit"`
	Sort    string   `json:"sort"`
	Order   string   `json:"order"`
}

// Filters narrows the search to one keyword, the contract award types and a time window.
type Filters struct {
	Keywords       []string     `json:"keywords"`
	AwardTypeCodes []string     `json:"award_type_codes"`
	TimePeriod     []TimePeriod `json:"time_period"`
}

// TimePeriod is an inclusive date range formatted as YYYY-MM-DD.
type TimePeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// BuildQuery returns the request for keyword, ending the window at the clock's current date.
func (f *Fetcher) BuildQuery(keyword string, limit int) Query {
	return Query{
		Filters: Filters{
			Keywords:       []string{keyword},
			AwardTypeCodes: append([]string(nil), f.cfg.AwardTypeCodes...),
			TimePeriod: []TimePeriod{{
				StartDate: f.cfg.StartDate,
				EndDate:   f.clock.Now().Format(dateLayout),
			}},
		},
		Fields: append([]string(nil), award.RequestedFields...),
		Limit:  limit,
		Sort:   sortField,
		Order:  sortOrder,
	}
}
