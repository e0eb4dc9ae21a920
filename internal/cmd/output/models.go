package output

import (
	"fmt"
	"io"

	"github.com/agentstation/clinmap/internal/cmd/table"
	"github.com/agentstation/clinmap/internal/pipeline"
	"github.com/agentstation/clinmap/pkg/consequence"
	"github.com/agentstation/clinmap/pkg/differ"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/reconcile"
	"github.com/agentstation/clinmap/pkg/report"
)

// IsTable reports whether format renders as a table.
func IsTable(format Format) bool {
	return format == FormatTable || format == FormatWide || format == ""
}

// Print handles the common pattern of formatting for output: table formats
// render tableData, structured formats encode raw.
func Print(w io.Writer, format Format, tableData Data, raw any) error {
	if IsTable(format) {
		return NewFormatter(format).Format(w, tableData)
	}
	return NewFormatter(format).Format(w, raw)
}

// FormatRuns formats ledger runs.
func FormatRuns(w io.Writer, runs []ledger.Run, format Format) error {
	return Print(w, format, table.RunsToTableData(runs, format == FormatWide), runs)
}

// FormatConsequences formats a mapper run. Structured formats encode the
// run report.
func FormatConsequences(w io.Writer, res *consequence.Result, rep *report.Report, format Format) error {
	if res == nil {
		return nil
	}
	if !IsTable(format) {
		return NewFormatter(format).Format(w, rep)
	}
	if err := NewFormatter(format).Format(w, table.ConsequenceStatsToTableData(res)); err != nil {
		return err
	}
	if format == FormatWide && len(res.Failed) > 0 {
		rows := make([][]string, 0, len(res.Failed))
		for _, f := range res.Failed {
			rows = append(rows, []string{fmt.Sprint(f.Index), fmt.Sprint(f.Attempts), fmt.Sprint(len(f.Keys)), table.Truncate(f.Err.Error(), 80)})
		}
		return NewFormatter(format).Format(w, Data{
			Headers: []string{"Batch", "Attempts", "Keys", "Error"},
			Rows:    rows,
		})
	}
	return nil
}

// FormatReconcile formats a reconciliation. Wide adds the one-to-many
// traits.
func FormatReconcile(w io.Writer, res *reconcile.Result, rep *report.Report, format Format) error {
	if res == nil {
		return nil
	}
	if !IsTable(format) {
		return NewFormatter(format).Format(w, rep)
	}
	if err := NewFormatter(format).Format(w, table.ReconcileStatsToTableData(res)); err != nil {
		return err
	}
	if format == FormatWide && len(res.MultiMapped) > 0 {
		return NewFormatter(format).Format(w, table.MultiMappedToTableData(res.MultiMapped))
	}
	return nil
}

// FormatVerify formats a table verification.
func FormatVerify(w io.Writer, res *pipeline.VerifyResult, format Format) error {
	if res == nil {
		return nil
	}
	if !IsTable(format) {
		return NewFormatter(format).Format(w, res)
	}
	summary := Data{
		Headers:         []string{"Metric", "Value"},
		ColumnAlignment: []table.Align{table.AlignDefault, table.AlignRight},
		Rows: [][]string{
			{"Rows", table.FormatNumber(int64(res.Rows))},
			{"Traits", table.FormatNumber(int64(res.Traits))},
			{"Duplicate rows", table.FormatNumber(int64(len(res.Duplicates)))},
			{"Multi-mapped traits", table.FormatNumber(int64(len(res.MultiMapped)))},
		},
	}
	if err := NewFormatter(format).Format(w, summary); err != nil {
		return err
	}
	if len(res.Duplicates) > 0 {
		if err := NewFormatter(format).Format(w, table.DuplicatesToTableData(res.Duplicates)); err != nil {
			return err
		}
	}
	if format == FormatWide && len(res.MultiMapped) > 0 {
		return NewFormatter(format).Format(w, table.MultiMappedToTableData(res.MultiMapped))
	}
	return nil
}

// FormatChanges formats a changeset. The table form ends with the summary
// line.
func FormatChanges(w io.Writer, c *differ.Changeset, format Format) error {
	if !IsTable(format) {
		return NewFormatter(format).Format(w, c)
	}
	if c.HasChanges() {
		if err := NewFormatter(format).Format(w, table.ChangesToTableData(c)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, c.String())
	return err
}
