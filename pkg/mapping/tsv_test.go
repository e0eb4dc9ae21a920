package mapping_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/mapping"
)

const sample = "#clinvar_trait_name\turi\tlabel\n" +
	"fanconi anemia\thttp://www.orpha.net/ORDO/Orphanet_84\tFanconi anemia\n" +
	"\n" +
	"breast cancer\thttp://www.ebi.ac.uk/efo/EFO_0000305\tbreast carcinoma\n" +
	"fanconi anemia\thttp://www.orpha.net/ORDO/Orphanet_84\tFanconi anemia\n"

func TestRead(t *testing.T) {
	table, stats, err := mapping.Read(context.Background(), strings.NewReader(sample), mapping.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, mapping.ReadStats{Lines: 5, Headers: 1, Rows: 3, Duplicates: 1}, stats)
}

func TestReadColumns(t *testing.T) {
	twoColumns := "lynch syndrome\thttp://www.orpha.net/ORDO/Orphanet_144\n"

	_, _, err := mapping.Read(context.Background(), strings.NewReader(twoColumns), mapping.ReadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	table, _, err := mapping.Read(context.Background(), strings.NewReader(twoColumns), mapping.ReadOptions{MinColumns: 2})
	require.NoError(t, err)
	assert.Equal(t, []mapping.Row{{TraitName: "lynch syndrome", URI: "http://www.orpha.net/ORDO/Orphanet_144"}}, table.Rows())
}

func TestReadKeepsHashPrefixedTraits(t *testing.T) {
	input := "#clinvar_trait_name\turi\n" +
		"#1 hereditary cancer panel\thttp://www.ebi.ac.uk/efo/EFO_0000311\tcancer\n" +
		"# not a row\n"

	_, _, err := mapping.Read(context.Background(), strings.NewReader(input), mapping.ReadOptions{})
	var pe *errors.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Line)

	table, stats, err := mapping.Read(context.Background(), strings.NewReader(input), mapping.ReadOptions{Tolerant: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Headers)
	assert.Equal(t, 1, stats.Skipped)
	require.Equal(t, 1, table.Len())
	hashed := table.Rows()[0]
	assert.Equal(t, "#1 hereditary cancer panel", hashed.TraitName)

	// the row sorts ahead of letters and must survive a write and reread
	var buf bytes.Buffer
	require.NoError(t, mapping.Write(&buf, mapping.NewTable(hashed, mapping.Row{TraitName: "asthma", URI: "u", Label: "asthma"})))
	reread, _, err := mapping.Read(context.Background(), &buf, mapping.ReadOptions{})
	require.NoError(t, err)
	assert.True(t, reread.Has(hashed))
	assert.Equal(t, 2, reread.Len())
}

func TestReadFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "empty trait", line: "\thttp://x\tlabel"},
		{name: "empty uri", line: "trait\t\tlabel"},
		{name: "too many columns", line: "trait\thttp://x\tlabel\textra"},
		{name: "single column", line: "trait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "ok\thttp://ok\tok\n" + tt.line + "\n"
			_, _, err := mapping.Read(context.Background(), strings.NewReader(input), mapping.ReadOptions{})
			require.Error(t, err)
			var pe *errors.ParseError
			require.True(t, stderrors.As(err, &pe))
			assert.Equal(t, 2, pe.Line)

			table, stats, err := mapping.Read(context.Background(), strings.NewReader(input), mapping.ReadOptions{Tolerant: true})
			require.NoError(t, err)
			assert.Equal(t, 1, table.Len())
			assert.Equal(t, 1, stats.Skipped)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	table, _, err := mapping.Read(context.Background(), strings.NewReader(sample), mapping.ReadOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, mapping.Write(&buf, table))
	want := "#clinvar_trait_name\turi\tlabel\n" +
		"breast cancer\thttp://www.ebi.ac.uk/efo/EFO_0000305\tbreast carcinoma\n" +
		"fanconi anemia\thttp://www.orpha.net/ORDO/Orphanet_84\tFanconi anemia\n"
	assert.Equal(t, want, buf.String())

	again, _, err := mapping.Read(context.Background(), &buf, mapping.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, table.Sorted(), again.Sorted())
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	_, _, err := mapping.ReadFile(context.Background(), filepath.Join(dir, "missing.tsv"), mapping.ReadOptions{})
	assert.True(t, errors.IsNotFound(err))

	path := filepath.Join(dir, "bad.tsv")
	require.NoError(t, os.WriteFile(path, []byte("only-one-column\n"), 0o600))
	_, _, err = mapping.ReadFile(context.Background(), path, mapping.ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), path+":1")
}

func TestReadRowsKeepsRepeats(t *testing.T) {
	rows, stats, err := mapping.ReadRows(context.Background(), strings.NewReader(sample), mapping.ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, rows[0], rows[2])
	assert.Equal(t, 0, stats.Duplicates)
}
