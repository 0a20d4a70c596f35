// Package award defines the records that flow through the loader pipeline.
package award

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Field names returned by the spending_by_award search endpoint.
const (
	FieldAwardID             = "Award ID"
	FieldRecipientName       = "Recipient Name"
	FieldAwardAmount         = "Award Amount"
	FieldDescription         = "Description"
	FieldAwardingAgency      = "Awarding Agency"
	FieldAwardingSubAgency   = "Awarding Sub Agency"
	FieldStartDate           = "Start Date"
	FieldEndDate             = "End Date"
	FieldNAICSCode           = "NAICS Code"
	FieldNAICSDescription    = "NAICS Description"
	FieldPSCCode             = "Product or Service Code"
	FieldInternalID          = "internal_id"
	FieldGeneratedInternalID = "generated_internal_id"
)

// RequestedFields is the ordered field list sent with every search query.
var RequestedFields = []string{
	FieldAwardID,
	FieldRecipientName,
	FieldAwardAmount,
	FieldDescription,
	FieldAwardingAgency,
	FieldAwardingSubAgency,
	FieldStartDate,
	FieldEndDate,
	FieldNAICSCode,
	FieldNAICSDescription,
	FieldPSCCode,
}

// Raw is one award object as decoded from the API. Numbers are json.Number.
type Raw map[string]any

// GeneratedID returns the dedup key and whether it is usable. String and
// numeric identifiers are accepted; nil, empty and non-scalar values are not.
func (r Raw) GeneratedID() (string, bool) {
	var s string
	switch v := r[FieldGeneratedInternalID].(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case int64:
		s = strconv.FormatInt(v, 10)
	case int:
		s = strconv.Itoa(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "", false
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// Output column names, in schema order.
const (
	ColInternalID          = "INTERNAL_ID"
	ColAwardID             = "AWARD_ID"
	ColGeneratedInternalID = "GENERATED_INTERNAL_ID"
	ColRecipientName       = "RECIPIENT_NAME"
	ColAwardAmount         = "AWARD_AMOUNT"
	ColDescription         = "DESCRIPTION"
	ColAwardingAgency      = "AWARDING_AGENCY"
	ColAwardingSubAgency   = "AWARDING_SUB_AGENCY"
	ColStartDate           = "START_DATE"
	ColEndDate             = "END_DATE"
	ColNAICSCode           = "NAICS_CODE"
	ColNAICSDescription    = "NAICS_DESCRIPTION"
	ColPSCCode             = "PSC_CODE"
)

// Columns is the fixed output schema. The CSV header and warehouse column list use it verbatim.
var Columns = []string{
	ColInternalID,
	ColAwardID,
	ColGeneratedInternalID,
	ColRecipientName,
	ColAwardAmount,
	ColDescription,
	ColAwardingAgency,
	ColAwardingSubAgency,
	ColStartDate,
	ColEndDate,
	ColNAICSCode,
	ColNAICSDescription,
	ColPSCCode,
}

// DateLayout is the serialized form of START_DATE and END_DATE.
const DateLayout = "2006-01-02"

// Contract is the canonical output row. Nil pointers are nulls.
type Contract struct {
	InternalID          *int64
	AwardID             *string
	GeneratedInternalID string
	RecipientName       *string
	AwardAmount         decimal.Decimal
	Description         *string
	AwardingAgency      *string
	AwardingSubAgency   *string
	StartDate           *time.Time
	EndDate             *time.Time
	NAICSCode           *string
	NAICSDescription    *string
	PSCCode             *string
}

// Values returns the row in Columns order for bulk loaders.
func (c Contract) Values() []any {
	return []any{
		c.InternalID,
		c.AwardID,
		c.GeneratedInternalID,
		c.RecipientName,
		c.AwardAmount,
		c.Description,
		c.AwardingAgency,
		c.AwardingSubAgency,
		c.StartDate,
		c.EndDate,
		c.NAICSCode,
		c.NAICSDescription,
		c.PSCCode,
	}
}

// Strings returns the row in Columns order as text, with nulls as empty strings.
func (c Contract) Strings() []string {
	out := make([]string, 0, len(Columns))
	if c.InternalID != nil {
		out = append(out, strconv.FormatInt(*c.InternalID, 10))
	} else {
		out = append(out, "")
	}
	out = append(out,
		deref(c.AwardID),
		c.GeneratedInternalID,
		deref(c.RecipientName),
		c.AwardAmount.String(),
		deref(c.Description),
		deref(c.AwardingAgency),
		deref(c.AwardingSubAgency),
		formatDate(c.StartDate),
		formatDate(c.EndDate),
		deref(c.NAICSCode),
		deref(c.NAICSDescription),
		deref(c.PSCCode),
	)
	return out
}

// Table is the normalized record set handed to delivery.
type Table struct {
	Rows []Contract
}

// Len reports the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Shape reports rows x columns.
func (t Table) Shape() (int, int) {
	return len(t.Rows), len(Columns)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
