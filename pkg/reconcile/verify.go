package reconcile

import (
	"fmt"
	"slices"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/mapping"
)

// Groups counts rows by full identity. Only rows seen more than once are
// returned, in mapping.Compare order.
func Groups(rows []mapping.Row) []Duplicate {
	counts := make(map[mapping.Row]int, len(rows))
	for _, r := range rows {
		counts[r]++
	}
	var dups []Duplicate
	for r, n := range counts {
		if n > 1 {
			dups = append(dups, Duplicate{Row: r, Count: n})
		}
	}
	slices.SortFunc(dups, func(a, b Duplicate) int { return mapping.Compare(a.Row, b.Row) })
	return dups
}

// Verify fails with *errors.ConsistencyError when any row occurs more
// than once. stage names the table being checked.
func Verify(stage string, rows []mapping.Row) error {
	dups := Groups(rows)
	if len(dups) == 0 {
		return nil
	}
	desc := make([]string, len(dups))
	for i, d := range dups {
		d.Source = stage
		desc[i] = d.String()
	}
	return &errors.ConsistencyError{
		Stage:      stage,
		Message:    fmt.Sprintf("%d row(s) occur more than once", len(dups)),
		Duplicates: desc,
	}
}

// MultiMapped returns the traits of table that map to more than one URI,
// with their sorted URIs.
func MultiMapped(table *mapping.Table) map[string][]string {
	uris := make(map[string][]string)
	for trait, rows := range table.ByTrait() {
		var list []string
		for _, r := range rows {
			list = append(list, r.URI)
		}
		slices.Sort(list)
		list = slices.Compact(list)
		if len(list) > 1 {
			uris[trait] = list
		}
	}
	return uris
}
