package bigquery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

type fakePutter struct {
	calls  [][]*bigquery.StructSaver
	failAt int
}

func (p *fakePutter) Put(_ context.Context, src any) error {
	savers, ok := src.([]*bigquery.StructSaver)
	if !ok {
		return fmt.Errorf("unexpected src %T", src)
	}
	p.calls = append(p.calls, savers)
	if p.failAt > 0 && len(p.calls) == p.failAt {
		return errors.New("quota exceeded")
	}
	return nil
}

var target = warehouse.Target{Database: "eplayground", Schema: "govcontracts", Table: "RAW_CONTRACTS"}

func contracts(n int) award.Table {
	rows := make([]award.Contract, n)
	for i := range rows {
		rows[i] = award.Contract{GeneratedInternalID: fmt.Sprintf("CONT_AWD_%d", i)}
	}
	return award.Table{Rows: rows}
}

func TestLoadChunksRows(t *testing.T) {
	t.Parallel()

	p := &fakePutter{}
	loader, err := NewLoaderWithPutter(p)
	require.NoError(t, err)

	n, err := loader.Load(context.Background(), target, contracts(chunkSize+10))
	require.NoError(t, err)
	assert.Equal(t, int64(chunkSize+10), n)
	require.Len(t, p.calls, 2)
	assert.Len(t, p.calls[0], chunkSize)
	assert.Len(t, p.calls[1], 10)
	assert.Equal(t, "CONT_AWD_0", p.calls[0][0].InsertID)
	require.NoError(t, loader.Close())
}

func TestLoadStopsOnFailure(t *testing.T) {
	t.Parallel()

	p := &fakePutter{failAt: 2}
	loader, err := NewLoaderWithPutter(p)
	require.NoError(t, err)

	n, err := loader.Load(context.Background(), target, contracts(chunkSize*3))
	require.Error(t, err)
	assert.Equal(t, int64(chunkSize), n)
	assert.Contains(t, err.Error(), "eplayground.govcontracts.RAW_CONTRACTS")
	assert.Len(t, p.calls, 2)
}

func TestNewRow(t *testing.T) {
	t.Parallel()

	id := int64(42)
	name := "ACME"
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	r := NewRow(award.Contract{
		InternalID:          &id,
		GeneratedInternalID: "G",
		RecipientName:       &name,
		AwardAmount:         decimal.RequireFromString("10.25"),
		StartDate:           &start,
	})

	assert.Equal(t, bigquery.NullInt64{Int64: 42, Valid: true}, r.InternalID)
	assert.Equal(t, bigquery.NullString{StringVal: "ACME", Valid: true}, r.RecipientName)
	assert.False(t, r.AwardID.Valid)
	assert.Equal(t, "41/4", r.AwardAmount.String())
	assert.Equal(t, civil.Date{Year: 2023, Month: time.January, Day: 2}, r.StartDate.Date)
	assert.True(t, r.StartDate.Valid)
	assert.False(t, r.EndDate.Valid)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), warehouse.Profile{Name: "bq"}, warehouse.Target{Schema: "ds", Table: "t"})
	assert.ErrorContains(t, err, "project is required")

	_, err = Open(context.Background(), warehouse.Profile{Name: "bq", Project: "p"}, warehouse.Target{Table: "t"})
	assert.ErrorContains(t, err, "dataset")
}
