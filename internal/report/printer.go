// Package report prints run progress for people watching a terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/JakeFAU/govcontracts-loader/internal/delivery"
	"github.com/JakeFAU/govcontracts-loader/internal/pipeline"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

const ruleWidth = 60

// Printer writes progress lines. It implements pipeline.Progress and delivery.Observer.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func rule() string {
	return strings.Repeat("=", ruleWidth)
}

// Start prints the banner.
func (p *Printer) Start(runID string, keywords []string) {
	p.printf("%s\nGovContracts Data Loader\n%s\n", rule(), rule())
	p.printf("Run %s: %d keywords\n", runID, len(keywords))
}

// Fetching announces a keyword query.
func (p *Printer) Fetching(keyword string) {
	p.printf("\nFetching contracts for: '%s'...\n", keyword)
}

// Fetched prints what a keyword returned.
func (p *Printer) Fetched(stats pipeline.KeywordStats) {
	if stats.Failed() {
		p.printf("  Error fetching '%s': %s\n", stats.Keyword, stats.Failure)
		return
	}
	p.printf("  Found %d contracts, %d new\n", stats.Fetched, stats.Added)
}

// Aggregated prints the unique total.
func (p *Printer) Aggregated(totalUnique int) {
	p.printf("\n%s\nTotal unique contracts: %d\n", rule(), totalUnique)
}

// Empty reports that there is nothing to deliver.
func (p *Printer) Empty() {
	p.printf("No contracts found!\n")
}

// Normalized prints the table shape.
func (p *Printer) Normalized(rows, cols int) {
	p.printf("Table shape: (%d, %d)\n", rows, cols)
}

// ArtifactSaved prints the artifact location.
func (p *Printer) ArtifactSaved(path string) {
	p.printf("Saved to: %s\n", path)
}

// Connecting announces the warehouse connection.
func (p *Printer) Connecting(target warehouse.Target) {
	p.printf("\nConnecting to warehouse %s...\n", target)
}

// Loading announces the bulk insert.
func (p *Printer) Loading(target warehouse.Target) {
	p.printf("Loading data to %s...\n", target.Table)
}

// Delivered prints the load result and, on failure, the manual recovery path.
func (p *Printer) Delivered(r delivery.Report) {
	if r.Failure != nil && r.Failure.Stage == delivery.StageArtifact {
		p.printf("Error writing %s: %v\n", r.ArtifactPath, r.Failure.Err)
	}
	switch {
	case r.WarehouseLoaded:
		p.printf("Successfully loaded %d rows!\n", r.LoadedRows)
	case r.Failure != nil && r.Failure.Stage != delivery.StageArtifact:
		p.printf("Error loading to warehouse: %v\n", r.Failure.Err)
		if hint := r.RecoveryHint(); hint != "" {
			p.printf("Data saved to CSV: %s\n", r.ArtifactPath)
			p.printf("You can manually upload using: %s\n", hint)
		}
	}
	if r.MirrorURI != "" {
		p.printf("Mirrored to: %s\n", r.MirrorURI)
	}
}

// Finished prints the per-keyword table.
func (p *Printer) Finished(s pipeline.Summary) {
	if len(s.Keywords) == 0 {
		return
	}
	rows := [][]string{{"KEYWORD", "FOUND", "NEW", "DUPLICATE", "STATUS"}}
	for _, k := range s.Keywords {
		status := "ok"
		if k.Failed() {
			status = string(k.FailureKind)
		}
		rows = append(rows, []string{
			k.Keyword,
			strconv.Itoa(k.Fetched),
			strconv.Itoa(k.Added),
			strconv.Itoa(k.Duplicates),
			status,
		})
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, line := range Table(rows) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Run %s finished in %s\n", s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(1e6)))
	p.printf("%s", b.String())
}

// Table aligns rows into columns by display width. The first row is the header.
func Table(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	colCount := 0
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}
	widths := make([]int, colCount)
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	out := make([]string, 0, len(rows)+1)
	for r, row := range rows {
		var sb strings.Builder
		for i := 0; i < colCount; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		out = append(out, strings.TrimRight(sb.String(), " "))
		if r == 0 {
			var sep strings.Builder
			for i, w := range widths {
				if i > 0 {
					sep.WriteString("  ")
				}
				sep.WriteString(strings.Repeat("-", w))
			}
			out = append(out, sep.String())
		}
	}
	return out
}
