package reconcile_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/mapping"
	"github.com/agentstation/clinmap/pkg/reconcile"
)

func TestVerify(t *testing.T) {
	a := row("a", "U1", "a")
	b := row("b", "U2", "b")

	assert.NoError(t, reconcile.Verify("table", []mapping.Row{a, b}))
	assert.NoError(t, reconcile.Verify("table", nil))

	err := reconcile.Verify("table", []mapping.Row{a, b, a, b, b})
	require.Error(t, err)

	var ce *errors.ConsistencyError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "table", ce.Stage)
	assert.Equal(t, []string{`table: "a" -> U1 (x2)`, `table: "b" -> U2 (x3)`}, ce.Duplicates)
}

func TestMultiMapped(t *testing.T) {
	table := mapping.NewTable(
		row("a", "U1", "a"),
		row("a", "U1", "a relabeled"),
		row("b", "U2", "b"),
		row("b", "U3", "b"),
	)
	assert.Equal(t, map[string][]string{"b": {"U2", "U3"}}, reconcile.MultiMapped(table))
}
