// Package bigquery streams contracts into a BigQuery table.
package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/option"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

// Driver is the profile driver name handled by this package.
const Driver = "bigquery"

// chunkSize bounds the rows sent per insertAll request.
const chunkSize = 500

// Row mirrors the RAW_CONTRACTS columns.
type Row struct {
	InternalID          bigquery.NullInt64  `bigquery:"INTERNAL_ID"`
	AwardID             bigquery.NullString `bigquery:"AWARD_ID"`
	GeneratedInternalID string              `bigquery:"GENERATED_INTERNAL_ID"`
	RecipientName       bigquery.NullString `bigquery:"RECIPIENT_NAME"`
	AwardAmount         *big.Rat            `bigquery:"AWARD_AMOUNT"`
	Description         bigquery.NullString `bigquery:"DESCRIPTION"`
	AwardingAgency      bigquery.NullString `bigquery:"AWARDING_AGENCY"`
	AwardingSubAgency   bigquery.NullString `bigquery:"AWARDING_SUB_AGENCY"`
	StartDate           bigquery.NullDate   `bigquery:"START_DATE"`
	EndDate             bigquery.NullDate   `bigquery:"END_DATE"`
	NAICSCode           bigquery.NullString `bigquery:"NAICS_CODE"`
	NAICSDescription    bigquery.NullString `bigquery:"NAICS_DESCRIPTION"`
	PSCCode             bigquery.NullString `bigquery:"PSC_CODE"`
}

type putter interface {
	Put(ctx context.Context, src any) error
}

// Loader streams rows through a table inserter.
type Loader struct {
	client   *bigquery.Client
	inserter func(target warehouse.Target) putter
}

// Open creates a client for the profile project, overridden by target.Database.
// target.Schema is the dataset.
func Open(ctx context.Context, profile warehouse.Profile, target warehouse.Target) (warehouse.Loader, error) {
	project := profile.Project
	if target.Database != "" {
		project = target.Database
	}
	if project == "" {
		return nil, fmt.Errorf("profile %q: project is required", profile.Name)
	}
	if target.Schema == "" {
		return nil, fmt.Errorf("warehouse.schema (dataset) is required for bigquery")
	}
	var opts []option.ClientOption
	if profile.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(profile.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &Loader{
		client: client,
		inserter: func(t warehouse.Target) putter {
			return client.Dataset(t.Schema).Table(t.Table).Inserter()
		},
	}, nil
}

// NewLoaderWithPutter builds a Loader around a fixed inserter (primarily for testing).
func NewLoaderWithPutter(p putter) (*Loader, error) {
	if p == nil {
		return nil, fmt.Errorf("putter is required")
	}
	return &Loader{inserter: func(warehouse.Target) putter { return p }}, nil
}

// Load streams table into target in chunks. GENERATED_INTERNAL_ID is the
// insert ID so a retried chunk is deduplicated by BigQuery.
func (l *Loader) Load(ctx context.Context, target warehouse.Target, table award.Table) (int64, error) {
	if l == nil || l.inserter == nil {
		return 0, fmt.Errorf("bigquery loader is not connected")
	}
	ins := l.inserter(target)
	var loaded int64
	for start := 0; start < table.Len(); start += chunkSize {
		end := min(start+chunkSize, table.Len())
		savers := make([]*bigquery.StructSaver, 0, end-start)
		for _, c := range table.Rows[start:end] {
			savers = append(savers, &bigquery.StructSaver{
				Struct:   NewRow(c),
				InsertID: c.GeneratedInternalID,
			})
		}
		if err := ins.Put(ctx, savers); err != nil {
			return loaded, fmt.Errorf("insert rows %d-%d into %s: %w", start, end-1, target, err)
		}
		loaded += int64(end - start)
	}
	return loaded, nil
}

// Close closes the client.
func (l *Loader) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

// NewRow converts a contract to its BigQuery representation.
func NewRow(c award.Contract) Row {
	r := Row{
		AwardID:             nullString(c.AwardID),
		GeneratedInternalID: c.GeneratedInternalID,
		RecipientName:       nullString(c.RecipientName),
		AwardAmount:         c.AwardAmount.Rat(),
		Description:         nullString(c.Description),
		AwardingAgency:      nullString(c.AwardingAgency),
		AwardingSubAgency:   nullString(c.AwardingSubAgency),
		NAICSCode:           nullString(c.NAICSCode),
		NAICSDescription:    nullString(c.NAICSDescription),
		PSCCode:             nullString(c.PSCCode),
	}
	if c.InternalID != nil {
		r.InternalID = bigquery.NullInt64{Int64: *c.InternalID, Valid: true}
	}
	if c.StartDate != nil {
		r.StartDate = bigquery.NullDate{Date: civil.DateOf(*c.StartDate), Valid: true}
	}
	if c.EndDate != nil {
		r.EndDate = bigquery.NullDate{Date: civil.DateOf(*c.EndDate), Valid: true}
	}
	return r
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}
