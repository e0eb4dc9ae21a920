package pipeline

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/metrics"
	"github.com/agentstation/clinmap/pkg/reconcile"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func fixedClock() func() time.Time {
	now := time.Date(2024, 3, 7, 9, 5, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func testEnv(t *testing.T) *Env {
	t.Helper()
	logging.DisableLoggingForTest(t)
	dir := t.TempDir()
	l, err := ledger.Open(context.Background(), filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return &Env{
		Ledger:      l,
		Metrics:     metrics.New(),
		MetricsFile: filepath.Join(dir, "clinmap.prom"),
		ReportFile:  filepath.Join(dir, "report.json"),
		Now:         fixedClock(),
	}
}

const lookupTable = `1:100:A:G	missense_variant
1:200:C:T	stop_gained,splice_region_variant
2:50:G:A	-
`

func TestRunConsequencesWithLookup(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	input := writeFile(t, dir, "variants.txt", "# keys\n2:50:G:A\n1:200:C:T\n1:100:A:G\n1:100:A:G\n")
	lookup := writeFile(t, dir, "lookup.tsv", lookupTable)
	out := filepath.Join(dir, "out", "consequences.tsv")
	unresolved := filepath.Join(dir, "unresolved.txt")

	result, rep, err := RunConsequences(context.Background(), ConsequencesConfig{
		Input:            input,
		Output:           out,
		UnresolvedOutput: unresolved,
		Lookup:           lookup,
		BatchSize:        2,
		Workers:          2,
	}, env)
	require.NoError(t, err)

	assert.Equal(t, "1:100:A:G\tmissense_variant\n1:200:C:T\tsplice_region_variant,stop_gained\n", readFile(t, out))
	assert.Equal(t, "2:50:G:A\n", readFile(t, unresolved))
	assert.Equal(t, 3, result.Metadata.Stats.Variants)
	assert.Equal(t, 2, result.Metadata.Stats.Batches)

	assert.Equal(t, ledger.StatusSucceeded, rep.Status)
	assert.Equal(t, out, rep.Outputs["consequences"])
	require.NotNil(t, rep.Consequences)
	assert.Equal(t, []string{"2:50:G:A"}, rep.Consequences.Unresolved)

	runs, err := env.Ledger.List(context.Background(), ledger.ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, NameConsequences, runs[0].Pipeline)
	assert.Equal(t, 3, runs[0].Inputs)
	assert.Equal(t, 2, runs[0].Outputs)

	assert.FileExists(t, env.MetricsFile)
	assert.Contains(t, readFile(t, env.MetricsFile), "clinmap_consequences_batches_dispatched_total 2")
	assert.Contains(t, readFile(t, env.ReportFile), `"run_id": "`+rep.RunID+`"`)
}

func TestRunConsequencesStdio(t *testing.T) {
	logging.DisableLoggingForTest(t)
	dir := t.TempDir()
	lookup := writeFile(t, dir, "lookup.tsv", lookupTable)
	var stdout bytes.Buffer
	env := &Env{Stdin: strings.NewReader("1:100:A:G\n"), Stdout: &stdout}

	_, _, err := RunConsequences(context.Background(), ConsequencesConfig{
		Input: Stdio, Output: Stdio, Lookup: lookup,
	}, env)
	require.NoError(t, err)
	assert.Equal(t, "1:100:A:G\tmissense_variant\n", stdout.String())
}

func TestRunConsequencesFailedBatchesFailClosed(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	env := testEnv(t)
	dir := t.TempDir()
	input := writeFile(t, dir, "variants.txt", "1:100:A:G\n1:200:C:T\n")
	out := filepath.Join(dir, "consequences.tsv")
	failed := filepath.Join(dir, "failed.txt")

	result, rep, err := RunConsequences(context.Background(), ConsequencesConfig{
		Input:        input,
		Output:       out,
		FailedOutput: failed,
		Annotator:    []string{"sh", "-c", "echo boom >&2; exit 3"},
		Retries:      0,
	}, env)
	require.Error(t, err)
	assert.True(t, errors.IsBatchFailure(err))
	require.NotNil(t, result)
	assert.Len(t, result.Failed, 1)

	assert.NoFileExists(t, out)
	content := readFile(t, failed)
	assert.Contains(t, content, "# batch 0 (1 attempt(s))")
	assert.Contains(t, content, "1:100:A:G\n1:200:C:T\n")

	assert.Equal(t, ledger.StatusFailed, rep.Status)
	assert.NotEmpty(t, rep.Error)
	runs, lerr := env.Ledger.List(context.Background(), ledger.ListOptions{Status: ledger.StatusFailed})
	require.NoError(t, lerr)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Failures)
}

func TestRunConsequencesValidation(t *testing.T) {
	logging.DisableLoggingForTest(t)
	tests := []struct {
		name string
		cfg  ConsequencesConfig
	}{
		{"no input", ConsequencesConfig{Output: "o", Lookup: "l"}},
		{"no output", ConsequencesConfig{Input: "i", Lookup: "l"}},
		{"no annotator", ConsequencesConfig{Input: "i", Output: "o"}},
		{"both annotators", ConsequencesConfig{Input: "i", Output: "o", Lookup: "l", Annotator: []string{"vep"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, rep, err := RunConsequences(context.Background(), tt.cfg, nil)
			assert.Nil(t, res)
			assert.True(t, errors.IsValidationError(err))
			assert.Equal(t, ledger.StatusFailed, rep.Status)
		})
	}
}

func TestRunConsequencesMissingInput(t *testing.T) {
	logging.DisableLoggingForTest(t)
	dir := t.TempDir()
	_, _, err := RunConsequences(context.Background(), ConsequencesConfig{
		Input:  filepath.Join(dir, "missing.txt"),
		Output: filepath.Join(dir, "out.tsv"),
		Lookup: writeFile(t, dir, "lookup.tsv", lookupTable),
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "load variants")
}

const (
	automatedTable = "#clinvar_trait_name\turi\tlabel\n" +
		"asthma\thttp://purl.obolibrary.org/obo/MONDO_0004979\tasthma\n" +
		"cystic fibrosis\thttp://purl.obolibrary.org/obo/MONDO_0009061\tcystic fibrosis\n"
	manualTable = "#clinvar_trait_name\turi\tlabel\n" +
		"rare syndrome\thttp://www.orpha.net/ORDO/Orphanet_1\trare syndrome\n"
	baselineTable = "#clinvar_trait_name\turi\tlabel\n" +
		"asthma\thttp://www.ebi.ac.uk/efo/EFO_0000270\tasthma\n" +
		"retired trait\thttp://purl.obolibrary.org/obo/MONDO_0000001\tdisease\n"
)

func reconcileFixture(t *testing.T) (string, ReconcileConfig) {
	t.Helper()
	dir := t.TempDir()
	return dir, ReconcileConfig{
		Automated: writeFile(t, dir, "automated.tsv", automatedTable),
		Manual:    writeFile(t, dir, "manual.tsv", manualTable),
		Baseline:  writeFile(t, dir, "baseline.tsv", baselineTable),
		Output:    filepath.Join(dir, "merged.tsv"),
		Feedback:  filepath.Join(dir, "feedback.tsv"),
	}
}

func TestRunReconcile(t *testing.T) {
	env := testEnv(t)
	_, cfg := reconcileFixture(t)

	result, rep, err := RunReconcile(context.Background(), cfg, env)
	require.NoError(t, err)

	assert.Equal(t, []string{"retired trait"}, result.Orphans)
	assert.Equal(t, 5, result.Merged.Len())
	assert.Contains(t, result.MultiMapped, "asthma")

	merged := readFile(t, cfg.Output)
	assert.True(t, strings.HasPrefix(merged, "#clinvar_trait_name\turi\tlabel\n"))
	assert.Contains(t, merged, "retired trait\thttp://purl.obolibrary.org/obo/MONDO_0000001\tdisease\n")
	assert.Equal(t, merged, readFile(t, cfg.Baseline), "baseline replaced with merged table")

	fb := readFile(t, cfg.Feedback)
	assert.Contains(t, fb, "\tdisease\tasthma\thttp://www.ebi.ac.uk/efo/EFO_0000270\teva\t24/03/07 09:05\n")

	assert.Equal(t, ledger.StatusSucceeded, rep.Status)
	assert.Equal(t, cfg.Baseline, rep.Outputs["baseline"])
	require.NotNil(t, rep.Reconcile)
	assert.Equal(t, []string{"retired trait"}, rep.Reconcile.Orphans)
	require.NotNil(t, rep.Reconcile.Changes)
	assert.Equal(t, 3, rep.Reconcile.Changes.RowsAdded)
	assert.Equal(t, 0, rep.Reconcile.Changes.RowsRemoved, "no baseline row is lost")
	assert.Equal(t, 2, rep.Reconcile.Changes.TraitsAdded)
}

func TestRunReconcileIsIdempotent(t *testing.T) {
	logging.DisableLoggingForTest(t)
	_, cfg := reconcileFixture(t)

	_, _, err := RunReconcile(context.Background(), cfg, nil)
	require.NoError(t, err)
	first := readFile(t, cfg.Baseline)

	_, _, err = RunReconcile(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, cfg.Baseline))
}

func TestRunReconcileDryRun(t *testing.T) {
	env := testEnv(t)
	_, cfg := reconcileFixture(t)
	cfg.DryRun = true

	_, rep, err := RunReconcile(context.Background(), cfg, env)
	require.NoError(t, err)
	assert.Equal(t, baselineTable, readFile(t, cfg.Baseline))
	assert.FileExists(t, cfg.Output)
	assert.Equal(t, ledger.StatusDryRun, rep.Status)
	assert.NotContains(t, rep.Outputs, "baseline")
}

func TestRunReconcileMissingBaseline(t *testing.T) {
	logging.DisableLoggingForTest(t)
	dir, cfg := reconcileFixture(t)
	cfg.Baseline = filepath.Join(dir, "state", "baseline.tsv")

	_, _, err := RunReconcile(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.NoFileExists(t, cfg.Output)

	cfg.AllowMissingBaseline = true
	result, _, err := RunReconcile(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Orphans)
	assert.Equal(t, readFile(t, cfg.Output), readFile(t, cfg.Baseline))
}

func TestRunReconcileHistory(t *testing.T) {
	logging.DisableLoggingForTest(t)
	dir, cfg := reconcileFixture(t)
	cfg.History = filepath.Join(dir, "history")

	_, rep, err := RunReconcile(context.Background(), cfg, nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(cfg.History)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), rep.RunID)
	assert.Equal(t, baselineTable, readFile(t, filepath.Join(cfg.History, entries[0].Name())))
}

func TestRunReconcileOrphanPolicy(t *testing.T) {
	logging.DisableLoggingForTest(t)
	_, cfg := reconcileFixture(t)
	cfg.CarryForward = reconcile.CarryOrphans

	result, _, err := RunReconcile(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Merged.Len())
	assert.NotContains(t, readFile(t, cfg.Baseline), "EFO_0000270")
}

func TestRunReconcileStrictDuplicates(t *testing.T) {
	logging.DisableLoggingForTest(t)
	dir, cfg := reconcileFixture(t)
	cfg.Automated = writeFile(t, dir, "automated.tsv", automatedTable+"asthma\thttp://purl.obolibrary.org/obo/MONDO_0004979\tasthma\n")
	cfg.StrictDuplicates = true

	_, rep, err := RunReconcile(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInconsistent(err))
	assert.Equal(t, baselineTable, readFile(t, cfg.Baseline))
	assert.Equal(t, ledger.StatusFailed, rep.Status)
}

func TestRunReconcileMemoryBaseline(t *testing.T) {
	logging.DisableLoggingForTest(t)
	_, cfg := reconcileFixture(t)
	cfg.Baseline = "mem://baseline"
	cfg.AllowMissingBaseline = true

	_, rep, err := RunReconcile(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem://baseline", rep.Outputs["baseline"])
}

func TestRunReconcileValidation(t *testing.T) {
	logging.DisableLoggingForTest(t)
	for _, cfg := range []ReconcileConfig{
		{Baseline: "b"},
		{Automated: "a"},
		{Automated: "a", Baseline: "b", CarryForward: "everything"},
	} {
		_, _, err := RunReconcile(context.Background(), cfg, nil)
		assert.True(t, errors.IsValidationError(err), "%+v", cfg)
	}
}

func TestVerifyTable(t *testing.T) {
	dir := t.TempDir()
	clean := writeFile(t, dir, "clean.tsv", baselineTable+"asthma\thttp://purl.obolibrary.org/obo/MONDO_0004979\n")
	res, err := VerifyTable(context.Background(), clean, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Traits)
	assert.Empty(t, res.Duplicates)
	assert.Len(t, res.MultiMapped["asthma"], 2)

	dup := writeFile(t, dir, "dup.tsv", baselineTable+"asthma\thttp://www.ebi.ac.uk/efo/EFO_0000270\tasthma\n")
	res, err = VerifyTable(context.Background(), dup, false)
	require.Error(t, err)
	assert.True(t, errors.IsInconsistent(err))
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, 2, res.Duplicates[0].Count)
}

func TestReportFileFollowsExtension(t *testing.T) {
	logging.DisableLoggingForTest(t)
	dir, cfg := reconcileFixture(t)
	env := &Env{ReportFile: filepath.Join(dir, "report.yaml"), Now: fixedClock()}

	_, rep, err := RunReconcile(context.Background(), cfg, env)
	require.NoError(t, err)
	content := readFile(t, env.ReportFile)
	assert.Contains(t, content, rep.RunID)
	assert.Contains(t, content, "pipeline: reconcile")
	assert.Contains(t, content, "carry_forward: rows")
}

func TestDiffTables(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.tsv", baselineTable)
	cur := writeFile(t, dir, "new.tsv", automatedTable)

	c, err := DiffTables(context.Background(), old, cur, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"cystic fibrosis"}, c.TraitsAdded)
	assert.Equal(t, []string{"retired trait"}, c.TraitsRemoved)
	require.Len(t, c.TraitsUpdated, 1)
	assert.Equal(t, "asthma", c.TraitsUpdated[0].Trait)

	_, err = DiffTables(context.Background(), filepath.Join(dir, "missing.tsv"), cur, false)
	assert.True(t, errors.IsNotFound(err))
}
