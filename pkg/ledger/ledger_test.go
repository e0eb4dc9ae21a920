package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/ledger"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runs := []ledger.Run{
		{ID: "a", Pipeline: "reconcile", Status: ledger.StatusSucceeded, StartedAt: base, FinishedAt: base.Add(2 * time.Second), Inputs: 10, Outputs: 12},
		{ID: "b", Pipeline: "consequences", Status: ledger.StatusFailed, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute), Inputs: 500, Outputs: 300, Failures: 1, Error: "batch 2 failed"},
		{ID: "c", Pipeline: "reconcile", Status: ledger.StatusDryRun, StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, l.Record(ctx, r))
	}

	all, err := l.List(ctx, ledger.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 2*time.Second, all[2].Duration)
	assert.True(t, base.Equal(all[2].StartedAt))

	reconciles, err := l.List(ctx, ledger.ListOptions{Pipeline: "reconcile", Limit: 1})
	require.NoError(t, err)
	require.Len(t, reconciles, 1)
	assert.Equal(t, "c", reconciles[0].ID)

	failed, err := l.List(ctx, ledger.ListOptions{Status: ledger.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "batch 2 failed", failed[0].Error)
	assert.Equal(t, 1, failed[0].Failures)
}

func TestRecordUpdatesExistingRun(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	start := time.Now().UTC()

	require.NoError(t, l.Record(ctx, ledger.Run{ID: "r1", Pipeline: "reconcile", Status: "running", StartedAt: start}))
	require.NoError(t, l.Record(ctx, ledger.Run{ID: "r1", Pipeline: "reconcile", Status: ledger.StatusSucceeded, StartedAt: start, FinishedAt: start.Add(time.Second), Outputs: 4}))

	run, err := l.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSucceeded, run.Status)
	assert.Equal(t, 4, run.Outputs)
	assert.Equal(t, time.Second, run.Duration)

	_, err = l.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestRecordValidation(t *testing.T) {
	l := openTestLedger(t)
	err := l.Record(context.Background(), ledger.Run{Pipeline: "reconcile"})
	assert.True(t, errors.IsValidationError(err))
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	l, err := ledger.Open(ctx, "sqlite://"+path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, ledger.Run{ID: "x", Pipeline: "reconcile", Status: ledger.StatusSucceeded, StartedAt: time.Now()}))
	require.NoError(t, l.Close())

	l, err = ledger.Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	runs, err := l.List(ctx, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDriver(t *testing.T) {
	tests := []struct {
		dsn, driver, source string
	}{
		{"postgres://user@db/clinmap?sslmode=disable", "pgx", "postgres://user@db/clinmap?sslmode=disable"},
		{"postgresql://db/clinmap", "pgx", "postgresql://db/clinmap"},
		{"sqlite:///var/lib/clinmap/runs.db", "sqlite", "/var/lib/clinmap/runs.db"},
		{"runs.db", "sqlite", "runs.db"},
	}
	for _, tt := range tests {
		driver, source := ledger.Driver(tt.dsn)
		assert.Equal(t, tt.driver, driver, tt.dsn)
		assert.Equal(t, tt.source, source, tt.dsn)
	}

	_, err := ledger.Open(context.Background(), "")
	assert.True(t, errors.IsValidationError(err))
}
