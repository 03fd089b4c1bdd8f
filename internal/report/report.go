// Package report renders refresh snapshots for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Missing marks a value that could not be computed
const Missing = "—"

var header = []string{"Rank", "Symbol", "Name", "Price", "Source", "As Of", "Trend", "Momentum", "5d Return", "Score", "RSI14"}

// Rows returns the table body: ranked symbols first in rank order, then unscoreable
// symbols in instrument order.
func Rows(snap *refresh.Snapshot) [][]string {
	res := snap.Result

	positions := make(map[string]int, len(res.Ranking))
	for _, e := range res.Ranking {
		positions[e.Symbol] = e.Position
	}

	scores := make([]model.ScoreResult, len(res.Scores))
	copy(scores, res.Scores)
	sort.SliceStable(scores, func(i, j int) bool {
		pi, iok := positions[scores[i].Symbol]
		pj, jok := positions[scores[j].Symbol]
		if iok != jok {
			return iok
		}
		return iok && pi < pj
	})

	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		rank := Missing
		if p, ok := positions[s.Symbol]; ok {
			rank = fmt.Sprintf("%d", p)
		}

		price, source, asOf := Missing, Missing, Missing
		if dp, ok := res.PriceFor(s.Symbol); ok && dp.HasValue() {
			price = fmt.Sprintf("%.2f", *dp.Value)
			source = string(dp.Source)
			if dp.AsOf != nil {
				asOf = formatAsOf(*dp.AsOf)
			}
		}

		trend, momentum, recent, score := Missing, Missing, Missing, Missing
		if s.Scoreable() {
			trend = fmt.Sprintf("%+.3f", s.Trend)
			momentum = fmt.Sprintf("%+.2f%%", s.Momentum*100)
			recent = fmt.Sprintf("%+.2f%%", s.Recent*100)
			score = fmt.Sprintf("%.4f", s.Composite)
		}

		rsi := Missing
		if s.RSI > 0 {
			rsi = fmt.Sprintf("%.1f", s.RSI)
		}

		rows = append(rows, []string{
			rank,
			s.Symbol,
			snap.NameFor(s.Symbol),
			price,
			source,
			asOf,
			trend,
			momentum,
			recent,
			score,
			rsi,
		})
	}
	return rows
}

// Table writes the ranking table followed by the recommendation line
func Table(w io.Writer, snap *refresh.Snapshot) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader(header),
	)
	for _, row := range Rows(snap) {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	_, err := fmt.Fprintln(w, Summary(snap))
	if err != nil {
		return err
	}

	for _, sym := range failedSymbols(snap) {
		if _, err := fmt.Fprintf(w, "  ! %s: %s\n", sym, snap.Failures[sym]); err != nil {
			return err
		}
	}
	return nil
}

// Summary is the one-line verdict for snap
func Summary(snap *refresh.Snapshot) string {
	res := snap.Result
	at := snap.StartedAt.Format("2006-01-02 15:04:05")
	if !res.HasRecommendation {
		return fmt.Sprintf("No data yet (%s via %s)", at, snap.Provider)
	}
	name := snap.NameFor(res.Recommendation)
	if name == "" || name == res.Recommendation {
		return fmt.Sprintf("This week: buy %s (%s via %s)", res.Recommendation, at, snap.Provider)
	}
	return fmt.Sprintf("This week: buy %s, %s (%s via %s)", res.Recommendation, name, at, snap.Provider)
}

// JSON writes snap as indented JSON
func JSON(w io.Writer, snap *refresh.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func failedSymbols(snap *refresh.Snapshot) []string {
	syms := make([]string, 0, len(snap.Failures))
	for sym := range snap.Failures {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func formatAsOf(t time.Time) string {
	if t.Equal(model.Day(t)) {
		return t.Format(model.DateLayout)
	}
	return t.Local().Format("2006-01-02 15:04")
}
