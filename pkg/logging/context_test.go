package logging_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/logging"
)

func TestContextLogger(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := tl.Context(context.Background())

	ctx = logging.WithRun(ctx, "run-123")
	ctx = logging.WithStage(ctx, "dispatch")
	ctx = logging.WithBatch(ctx, 4)

	logging.FromContext(ctx).Info().Msg("annotating")

	assert.Equal(t, "run-123", logging.RunID(ctx))
	tl.AssertContains(t, `"run_id":"run-123"`)
	tl.AssertContains(t, `"stage":"dispatch"`)
	tl.AssertContains(t, `"batch":4`)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	assert.Same(t, logging.Default(), logging.FromContext(nil))
	assert.Same(t, logging.Default(), logging.FromContext(context.Background()))
	assert.Empty(t, logging.RunID(context.Background()))
}

func TestWithFields(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := tl.Context(context.Background())
	ctx = logging.WithFields(ctx, map[string]any{
		"rows":   12,
		"source": "manual",
	})

	logging.FromContext(ctx).Debug().Msg("loaded")

	events := tl.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "debug", events[0]["level"])
	assert.EqualValues(t, 12, events[0]["rows"])
	assert.Equal(t, "manual", events[0]["source"])
}

func TestWithFieldKeepsValueTypes(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := tl.Context(context.Background())
	ctx = logging.WithField(ctx, "variants", int64(500))
	ctx = logging.WithField(ctx, "dry_run", true)
	ctx = logging.WithField(ctx, "err", stderrors.New("annotator crashed"))
	ctx = logging.WithField(ctx, "cause", stderrors.New("exit 3"))

	logging.FromContext(ctx).Info().Msg("batch failed")

	events := tl.Events()
	require.Len(t, events, 1)
	assert.EqualValues(t, 500, events[0]["variants"])
	assert.Equal(t, true, events[0]["dry_run"])
	assert.Equal(t, "annotator crashed", events[0]["error"])
	assert.Equal(t, "exit 3", events[0]["cause"])
}
