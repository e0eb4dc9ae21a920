package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/clinmap/pkg/reconcile"
)

func TestFormatNumber(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in), in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", FormatDuration(0))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond+300*time.Microsecond))
	assert.Equal(t, "1m2.5s", FormatDuration(62*time.Second+540*time.Millisecond))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", Truncate("a\nb", 10))
}

func TestMultiMappedToTableData(t *testing.T) {
	data := MultiMappedToTableData(map[string][]string{
		"b trait": {"u1", "u2"},
		"a trait": {"u3", "u4", "u5"},
	})
	assert.Equal(t, [][]string{
		{"a trait", "3", "u3, u4, u5"},
		{"b trait", "2", "u1, u2"},
	}, data.Rows)
}

func TestReconcileStatsToTableData(t *testing.T) {
	res := &reconcile.Result{}
	res.Metadata.CarryForward = reconcile.CarryRows
	res.Metadata.Stats.MergedRows = 1200
	data := ReconcileStatsToTableData(res)
	assert.Contains(t, data.Rows, []string{"Merged rows", "1,200"})
	assert.Contains(t, data.Rows, []string{"Carry forward", "rows"})
}
