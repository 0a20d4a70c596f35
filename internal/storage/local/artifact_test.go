// Package local_test tests the CSV artifact writer.
package local_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/storage/local"
)

func strPtr(s string) *string { return &s }

func sampleTable(n int) award.Table {
	rows := make([]award.Contract, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, award.Contract{
			GeneratedInternalID: "CONT_AWD_" + string(rune('A'+i)),
			RecipientName:       strPtr("ACME, \"Data\" Inc."),
			AwardAmount:         decimal.NewFromInt(int64(1000 * (i + 1))),
		})
	}
	return award.Table{Rows: rows}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		w, err := local.New(local.Config{Path: filepath.Join(t.TempDir(), "out.csv")})
		require.NoError(t, err)
		assert.NotNil(t, w)
	})

	t.Run("MissingPath", func(t *testing.T) {
		_, err := local.New(local.Config{Path: "  "})
		assert.Error(t, err)
	})

	t.Run("PathIsDirectory", func(t *testing.T) {
		_, err := local.New(local.Config{Path: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestWrite(t *testing.T) {
	t.Run("HeaderAndRows", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "govcontracts_data.csv")
		w, err := local.New(local.Config{Path: path})
		require.NoError(t, err)

		uri, err := w.Write(context.Background(), sampleTable(10))
		require.NoError(t, err)
		assert.Equal(t, "file://"+path, uri)

		records := readCSV(t, path)
		require.Len(t, records, 11)
		assert.Equal(t, award.Columns, records[0])
		assert.Equal(t, "ACME, \"Data\" Inc.", records[1][3])
		assert.Equal(t, "1000", records[1][4])
	})

	t.Run("EmptyTableWritesHeaderOnly", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.csv")
		w, err := local.New(local.Config{Path: path})
		require.NoError(t, err)

		_, err = w.Write(context.Background(), award.Table{})
		require.NoError(t, err)
		assert.Equal(t, [][]string{award.Columns}, readCSV(t, path))
	})

	t.Run("OverwritesPreviousRun", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		w, err := local.New(local.Config{Path: path})
		require.NoError(t, err)

		_, err = w.Write(context.Background(), sampleTable(5))
		require.NoError(t, err)
		_, err = w.Write(context.Background(), sampleTable(2))
		require.NoError(t, err)
		assert.Len(t, readCSV(t, path), 3)

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("UnwritableDirectory", func(t *testing.T) {
		dir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(dir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- restore permissions so cleanup succeeds.
			_ = os.Chmod(dir, 0o700)
		})
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}

		w, err := local.New(local.Config{Path: filepath.Join(dir, "out.csv")})
		require.NoError(t, err)
		_, err = w.Write(context.Background(), sampleTable(1))
		assert.Error(t, err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		w, err := local.New(local.Config{Path: filepath.Join(t.TempDir(), "out.csv")})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = w.Write(ctx, sampleTable(1))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
