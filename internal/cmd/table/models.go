// Package table converts clinmap results into rows for the table formatter.
package table

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/clinmap/pkg/consequence"
	"github.com/agentstation/clinmap/pkg/differ"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/reconcile"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// RunsToTableData converts ledger runs to table format. Wide adds the
// finish time and error columns.
func RunsToTableData(runs []ledger.Run, wide bool) Data {
	headers := []string{"ID", "Pipeline", "Status", "Started", "Duration", "Inputs", "Outputs", "Failures"}
	align := []Align{AlignDefault, AlignDefault, AlignDefault, AlignDefault, AlignRight, AlignRight, AlignRight, AlignRight}
	if wide {
		headers = append(headers, "Finished", "Error")
		align = append(align, AlignDefault, AlignDefault)
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		id := run.ID
		if !wide && len(id) > 8 {
			id = id[:8]
		}
		row := []string{
			id,
			run.Pipeline,
			run.Status,
			FormatTime(run.StartedAt),
			FormatDuration(run.Duration),
			FormatNumber(int64(run.Inputs)),
			FormatNumber(int64(run.Outputs)),
			FormatNumber(int64(run.Failures)),
		}
		if wide {
			row = append(row, FormatTime(run.FinishedAt), Truncate(run.Error, 80))
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// ConsequenceStatsToTableData renders mapper statistics as a two-column table.
func ConsequenceStatsToTableData(res *consequence.Result) Data {
	s := res.Metadata.Stats
	return statsTable([][2]string{
		{"Input keys", FormatNumber(int64(s.InputKeys))},
		{"Variants", FormatNumber(int64(s.Variants))},
		{"Batches", FormatNumber(int64(s.Batches))},
		{"Failed batches", FormatNumber(int64(s.BatchesFailed))},
		{"Attempts", FormatNumber(int64(s.Attempts))},
		{"Annotated", FormatNumber(int64(s.Annotated))},
		{"Unresolved", FormatNumber(int64(s.Unresolved))},
		{"Dropped", FormatNumber(int64(s.Dropped))},
		{"Duration", FormatDuration(res.Metadata.Duration)},
	})
}

// ReconcileStatsToTableData renders reconciliation statistics as a
// two-column table.
func ReconcileStatsToTableData(res *reconcile.Result) Data {
	s := res.Metadata.Stats
	return statsTable([][2]string{
		{"Automated rows", FormatNumber(int64(s.AutomatedRows))},
		{"Manual rows", FormatNumber(int64(s.ManualRows))},
		{"Baseline rows", FormatNumber(int64(s.BaselineRows))},
		{"Current rows", FormatNumber(int64(s.CurrentRows))},
		{"Orphan traits", FormatNumber(int64(s.OrphanTraits))},
		{"Carried forward", FormatNumber(int64(s.CarriedForward))},
		{"Retained", FormatNumber(int64(s.Retained))},
		{"Merged rows", FormatNumber(int64(s.MergedRows))},
		{"Merged traits", FormatNumber(int64(s.MergedTraits))},
		{"Multi-mapped traits", FormatNumber(int64(s.MultiMapped))},
		{"Duplicate rows", FormatNumber(int64(s.DuplicateRows))},
		{"Carry forward", string(res.Metadata.CarryForward)},
		{"Dry run", strconv.FormatBool(res.Metadata.DryRun)},
	})
}

// MultiMappedToTableData lists one-to-many traits, one row per trait.
func MultiMappedToTableData(multi map[string][]string) Data {
	traits := make([]string, 0, len(multi))
	for t := range multi {
		traits = append(traits, t)
	}
	slices.Sort(traits)

	rows := make([][]string, 0, len(traits))
	for _, t := range traits {
		rows = append(rows, []string{t, strconv.Itoa(len(multi[t])), strings.Join(multi[t], ", ")})
	}
	return Data{
		Headers:         []string{"Trait", "URIs", "Mappings"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignDefault, AlignRight, AlignDefault},
	}
}

// DuplicatesToTableData lists repeated rows with their counts.
func DuplicatesToTableData(dups []reconcile.Duplicate) Data {
	rows := make([][]string, 0, len(dups))
	for _, d := range dups {
		rows = append(rows, []string{d.Row.TraitName, d.Row.URI, d.Row.Label, strconv.Itoa(d.Count)})
	}
	return Data{
		Headers:         []string{"Trait", "URI", "Label", "Count"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignDefault, AlignDefault, AlignDefault, AlignRight},
	}
}

func statsTable(pairs [][2]string) Data {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return Data{
		Headers:         []string{"Metric", "Value"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignDefault, AlignRight},
	}
}

// FormatNumber formats a number with thousands separators.
func FormatNumber(n int64) string {
	str := strconv.FormatInt(n, 10)
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if len(str) <= 3 {
		return str
	}

	// Add commas every 3 digits
	var b strings.Builder
	for i, r := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatDuration rounds a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// FormatTime renders a timestamp in UTC, or "-" when unset.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:n-3]))
}

// ChangesToTableData lists a changeset one row per changed mapping.
func ChangesToTableData(c *differ.Changeset) Data {
	var rows [][]string
	for _, r := range c.Added {
		rows = append(rows, []string{"+", r.TraitName, r.URI, r.Label})
	}
	for _, r := range c.Removed {
		rows = append(rows, []string{"-", r.TraitName, r.URI, r.Label})
	}
	slices.SortStableFunc(rows, func(a, b []string) int {
		return cmp.Or(cmp.Compare(a[1], b[1]), cmp.Compare(a[2], b[2]), cmp.Compare(a[0], b[0]))
	})
	return Data{
		Headers:         []string{"", "Trait", "URI", "Label"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignCenter, AlignDefault, AlignDefault, AlignDefault},
	}
}
