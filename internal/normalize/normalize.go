// Package normalize maps raw search records onto the fixed contract schema.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	award.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// Stats counts what normalization kept and discarded.
type Stats struct {
	Input      int `json:"input"`
	Rows       int `json:"rows"`
	Duplicates int `json:"duplicates"`
	MissingID  int `json:"missing_id"`
	BadDates   int `json:"bad_dates"`
}

// Normalize converts awards into a table with one row per generated_internal_id,
// keeping the first occurrence. It never fails: values that cannot be coerced
// become null, except the amount which becomes zero.
func Normalize(awards []award.Raw) (award.Table, Stats) {
	stats := Stats{Input: len(awards)}
	seen := make(map[string]struct{}, len(awards))
	rows := make([]award.Contract, 0, len(awards))

	for _, rec := range awards {
		id, ok := rec.GeneratedID()
		if !ok {
			stats.MissingID++
			continue
		}
		if _, dup := seen[id]; dup {
			stats.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		c := award.Contract{
			InternalID:          toInt64(rec[award.FieldInternalID]),
			AwardID:             toString(rec[award.FieldAwardID]),
			GeneratedInternalID: id,
			RecipientName:       toString(rec[award.FieldRecipientName]),
			AwardAmount:         Amount(rec[award.FieldAwardAmount]),
			Description:         toString(rec[award.FieldDescription]),
			AwardingAgency:      toString(rec[award.FieldAwardingAgency]),
			AwardingSubAgency:   toString(rec[award.FieldAwardingSubAgency]),
			NAICSCode:           toString(rec[award.FieldNAICSCode]),
			NAICSDescription:    toString(rec[award.FieldNAICSDescription]),
			PSCCode:             toString(rec[award.FieldPSCCode]),
		}
		var bad bool
		if c.StartDate, bad = Date(rec[award.FieldStartDate]); bad {
			stats.BadDates++
		}
		if c.EndDate, bad = Date(rec[award.FieldEndDate]); bad {
			stats.BadDates++
		}
		rows = append(rows, c)
	}

	stats.Rows = len(rows)
	return award.Table{Rows: rows}, stats
}

// Amount coerces v to a non-negative decimal. Anything missing, falsy,
// unparseable or negative is zero.
func Amount(v any) decimal.Decimal {
	var d decimal.Decimal
	switch x := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		d = decimal.NewFromFloat(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Date parses v as a calendar date in UTC. bad reports a non-empty value that
// matched none of the known layouts.
func Date(v any) (t *time.Time, bad bool) {
	s, ok := v.(string)
	if !ok {
		return nil, v != nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		return &day, false
	}
	return nil, true
}

func toString(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

func toInt64(v any) *int64 {
	var n int64
	switch x := v.(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil
		}
		n = i
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int64:
		n = x
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}
