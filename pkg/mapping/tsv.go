package mapping

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
)

// ReadOptions controls Read.
type ReadOptions struct {
	// MinColumns is the fewest columns a row may have: 2 admits rows with
	// no label, 0 means 3.
	MinColumns int
	// Tolerant skips malformed rows instead of failing the read.
	Tolerant bool
	// Name labels the table in logs and errors.
	Name string
}

// ReadStats reports what Read consumed.
type ReadStats struct {
	Lines      int
	Headers    int
	Rows       int
	Duplicates int
	Skipped    int
}

// ParseRow splits one tab-separated line into a row.
func ParseRow(line string, minColumns int) (Row, error) {
	if minColumns <= 0 || minColumns > 3 {
		minColumns = 3
	}
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) < minColumns || len(fields) > 3 {
		return Row{}, fmt.Errorf("expected %d to 3 tab-separated columns, got %d", minColumns, len(fields))
	}
	row := Row{TraitName: strings.TrimSpace(fields[0]), URI: strings.TrimSpace(fields[1])}
	if len(fields) == 3 {
		row.Label = strings.TrimSpace(fields[2])
	}
	if row.TraitName == "" {
		return Row{}, fmt.Errorf("empty trait name")
	}
	if row.URI == "" {
		return Row{}, fmt.Errorf("empty ontology URI")
	}
	return row, nil
}

// ReadRows returns every row of a mapping table in file order, repeats
// included. Header lines and blank lines are skipped; any other line,
// including one starting with '#', must be a valid row.
func ReadRows(ctx context.Context, r io.Reader, opts ReadOptions) ([]Row, ReadStats, error) {
	logger := logging.FromContext(ctx)
	var rows []Row
	var stats ReadStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		stats.Lines++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isHeader(line) {
			stats.Headers++
			continue
		}
		row, err := ParseRow(line, opts.MinColumns)
		if err != nil {
			perr := errors.NewParseError("mapping", stats.Lines, err.Error())
			perr.Err = err
			if !opts.Tolerant {
				return nil, stats, perr
			}
			stats.Skipped++
			logger.Warn().Err(perr).Str("table", opts.Name).Msg("Skipping malformed mapping row")
			continue
		}
		stats.Rows++
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, errors.WrapIO("read", opts.Name, err)
	}
	return rows, stats, nil
}

func isHeader(line string) bool {
	first, _, _ := strings.Cut(line, "\t")
	return strings.TrimSpace(first) == constants.MappingHeaderField
}

// Read loads a mapping table. Rows repeated in the input are kept once and
// counted in ReadStats.Duplicates.
func Read(ctx context.Context, r io.Reader, opts ReadOptions) (*Table, ReadStats, error) {
	rows, stats, err := ReadRows(ctx, r, opts)
	if err != nil {
		return nil, stats, err
	}
	table := NewTable()
	for _, row := range rows {
		if !table.Add(row) {
			stats.Duplicates++
		}
	}
	return table, stats, nil
}

// ReadFile loads a mapping table from path.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*Table, ReadStats, error) {
	rows, stats, err := ReadRowsFile(ctx, path, opts)
	if err != nil {
		return nil, stats, err
	}
	table := NewTable()
	for _, row := range rows {
		if !table.Add(row) {
			stats.Duplicates++
		}
	}
	return table, stats, nil
}

// ReadRowsFile returns the raw rows of the table at path.
func ReadRowsFile(ctx context.Context, path string, opts ReadOptions) ([]Row, ReadStats, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ReadStats{}, errors.NewNotFoundError("mapping table", path)
		}
		return nil, ReadStats{}, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	if opts.Name == "" {
		opts.Name = path
	}
	rows, stats, err := ReadRows(ctx, f, opts)
	return rows, stats, errors.WithFile(err, path)
}

// Write emits the header line followed by the rows in sorted order.
func Write(w io.Writer, table *Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(constants.MappingHeader + "\n"); err != nil {
		return errors.WrapIO("write", "mapping table", err)
	}
	for _, r := range table.Sorted() {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\n", r.TraitName, r.URI, r.Label); err != nil {
			return errors.WrapIO("write", "mapping table", err)
		}
	}
	return errors.WrapIO("flush", "mapping table", bw.Flush())
}
