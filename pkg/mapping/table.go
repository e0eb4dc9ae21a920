// Package mapping holds trait-to-ontology mapping rows and their
// tab-separated file form.
package mapping

import (
	"cmp"
	"slices"
)

// Row maps a trait name to one ontology term. Identity is the full tuple.
type Row struct {
	TraitName string `json:"trait_name" yaml:"trait_name"`
	URI       string `json:"uri" yaml:"uri"`
	Label     string `json:"label" yaml:"label"`
}

// Compare orders rows by trait name, then URI, then label, each by byte order.
func Compare(a, b Row) int {
	return cmp.Or(
		cmp.Compare(a.TraitName, b.TraitName),
		cmp.Compare(a.URI, b.URI),
		cmp.Compare(a.Label, b.Label),
	)
}

// Table is an insertion-ordered set of rows. The zero value is not
// usable; call NewTable.
type Table struct {
	rows  []Row
	index map[Row]struct{}
}

// NewTable returns a table holding rows, dropping repeats.
func NewTable(rows ...Row) *Table {
	t := &Table{index: make(map[Row]struct{}, len(rows))}
	for _, r := range rows {
		t.Add(r)
	}
	return t
}

// Add appends r and reports whether it was not already present.
func (t *Table) Add(r Row) bool {
	if _, ok := t.index[r]; ok {
		return false
	}
	t.index[r] = struct{}{}
	t.rows = append(t.rows, r)
	return true
}

// Has reports whether r is in the table.
func (t *Table) Has(r Row) bool {
	_, ok := t.index[r]
	return ok
}

// Len returns the number of distinct rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the rows in insertion order.
func (t *Table) Rows() []Row {
	return slices.Clone(t.rows)
}

// Sorted returns the rows in Compare order.
func (t *Table) Sorted() []Row {
	out := slices.Clone(t.rows)
	slices.SortFunc(out, Compare)
	return out
}

// TraitNames returns the distinct trait names, sorted.
func (t *Table) TraitNames() []string {
	seen := make(map[string]struct{}, len(t.rows))
	names := make([]string, 0, len(t.rows))
	for _, r := range t.rows {
		if _, ok := seen[r.TraitName]; ok {
			continue
		}
		seen[r.TraitName] = struct{}{}
		names = append(names, r.TraitName)
	}
	slices.Sort(names)
	return names
}

// ByTrait groups rows by trait name, keeping insertion order in each group.
func (t *Table) ByTrait() map[string][]Row {
	out := make(map[string][]Row)
	for _, r := range t.rows {
		out[r.TraitName] = append(out[r.TraitName], r)
	}
	return out
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	return NewTable(t.rows...)
}
