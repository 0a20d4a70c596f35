// Package aggregate merges per-keyword search results into one deduplicated record set.
package aggregate

import (
	"github.com/JakeFAU/govcontracts-loader/internal/award"
)

// BatchStats describes what one keyword contributed.
type BatchStats struct {
	Keyword    string `json:"keyword"`
	Fetched    int    `json:"fetched"`
	Added      int    `json:"added"`
	Duplicates int    `json:"duplicates"`
	MissingID  int    `json:"missing_id"`
}

// Aggregator keeps the first occurrence of every generated_internal_id in arrival order.
// It is scoped to a single run and is not safe for concurrent use.
type Aggregator struct {
	seen   map[string]struct{}
	awards []award.Raw
	stats  []BatchStats
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// Add appends the unseen awards from one keyword's batch. Awards without a
// generated_internal_id are dropped.
func (a *Aggregator) Add(keyword string, awards []award.Raw) BatchStats {
	stats := BatchStats{Keyword: keyword, Fetched: len(awards)}
	for _, rec := range awards {
		id, ok := rec.GeneratedID()
		if !ok {
			stats.MissingID++
			continue
		}
		if _, dup := a.seen[id]; dup {
			stats.Duplicates++
			continue
		}
		a.seen[id] = struct{}{}
		a.awards = append(a.awards, rec)
		stats.Added++
	}
	a.stats = append(a.stats, stats)
	return stats
}

// Awards returns the accepted records in first-seen order.
func (a *Aggregator) Awards() []award.Raw {
	return append([]award.Raw(nil), a.awards...)
}

// Len reports the number of unique records accepted so far.
func (a *Aggregator) Len() int {
	return len(a.awards)
}

// Stats returns the per-batch statistics in the order batches were added.
func (a *Aggregator) Stats() []BatchStats {
	return append([]BatchStats(nil), a.stats...)
}

// Aggregate folds fetch results in order. Failed results contribute an empty batch.
func Aggregate(results []award.FetchResult) ([]award.Raw, []BatchStats) {
	a := New()
	for _, res := range results {
		a.Add(res.Keyword, res.Awards)
	}
	return a.Awards(), a.Stats()
}
