// Package local writes the CSV artifact to the local filesystem.
package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
)

// Config captures where the artifact is written.
type Config struct {
	// Path is the full file path of the CSV artifact. It is overwritten on every run.
	Path string `mapstructure:"path" yaml:"path"`
}

// ArtifactWriter writes a table as CSV to a fixed path.
type ArtifactWriter struct {
	path string
}

// New validates cfg and returns an ArtifactWriter.
func New(cfg Config) (*ArtifactWriter, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("artifact path is required")
	}
	path := filepath.Clean(cfg.Path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("artifact path %s is a directory", path)
	}
	return &ArtifactWriter{path: path}, nil
}

// Path returns the artifact location.
func (w *ArtifactWriter) Path() string {
	return w.path
}

// Write replaces the artifact with table and returns a file:// URI. The file is
// written to a temporary sibling first so a failed write never leaves a
// truncated artifact behind.
func (w *ArtifactWriter) Write(ctx context.Context, table award.Table) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".govcontracts-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := Encode(tmp, table); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return fmt.Sprintf("file://%s", w.path), nil
}

// Encode writes the header and every row of table as CSV.
func Encode(out io.Writer, table award.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(award.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range table.Rows {
		if err := cw.Write(row.Strings()); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
