package differ

import (
	"slices"
	"strings"

	"github.com/agentstation/clinmap/pkg/mapping"
)

// Differ handles change detection between mapping tables.
type Differ interface {
	// Tables compares an existing table with its successor.
	Tables(existing, updated *mapping.Table) *Changeset
}

// differ is the default implementation of Differ.
type differ struct {
	ignoreLabels bool
}

// New creates a Differ with default settings.
func New(opts ...Option) Differ {
	d := &differ{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Option is a functional option for configuring Differ.
type Option func(*differ)

// WithIgnoreLabels compares rows by trait and URI only, so a relabelled
// mapping is not reported.
func WithIgnoreLabels(ignore bool) Option {
	return func(d *differ) {
		d.ignoreLabels = ignore
	}
}

// Tables compares two tables. Every list in the changeset is sorted.
func (d *differ) Tables(existing, updated *mapping.Table) *Changeset {
	if existing == nil {
		existing = mapping.NewTable()
	}
	if updated == nil {
		updated = mapping.NewTable()
	}
	old := d.normalize(existing)
	cur := d.normalize(updated)

	c := &Changeset{}
	for _, r := range cur.Sorted() {
		if !old.Has(r) {
			c.Added = append(c.Added, r)
		}
	}
	for _, r := range old.Sorted() {
		if !cur.Has(r) {
			c.Removed = append(c.Removed, r)
		}
	}

	oldTraits := old.ByTrait()
	curTraits := cur.ByTrait()
	for _, trait := range cur.TraitNames() {
		if _, ok := oldTraits[trait]; !ok {
			c.TraitsAdded = append(c.TraitsAdded, trait)
		}
	}
	for _, trait := range old.TraitNames() {
		rows, ok := curTraits[trait]
		if !ok {
			c.TraitsRemoved = append(c.TraitsRemoved, trait)
			continue
		}
		if changes := traitChanges(oldTraits[trait], rows); len(changes) > 0 {
			c.TraitsUpdated = append(c.TraitsUpdated, TraitUpdate{Trait: trait, Changes: changes})
		}
	}

	c.Summary = calculateSummary(c)
	return c
}

func (d *differ) normalize(t *mapping.Table) *mapping.Table {
	if !d.ignoreLabels {
		return t
	}
	out := mapping.NewTable()
	for _, r := range t.Rows() {
		out.Add(mapping.Row{TraitName: r.TraitName, URI: r.URI})
	}
	return out
}

// traitChanges compares the rows of one trait by URI.
func traitChanges(existing, updated []mapping.Row) []FieldChange {
	oldLabels := labelsByURI(existing)
	newLabels := labelsByURI(updated)

	uris := make([]string, 0, len(oldLabels)+len(newLabels))
	for uri := range oldLabels {
		uris = append(uris, uri)
	}
	for uri := range newLabels {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	uris = slices.Compact(uris)

	var changes []FieldChange
	for _, uri := range uris {
		before, inOld := oldLabels[uri]
		after, inNew := newLabels[uri]
		switch {
		case !inOld:
			changes = append(changes, FieldChange{Path: "uri", URI: uri, NewValue: uri, Type: ChangeTypeAdd})
		case !inNew:
			changes = append(changes, FieldChange{Path: "uri", URI: uri, OldValue: uri, Type: ChangeTypeRemove})
		case !slices.Equal(before, after):
			changes = append(changes, FieldChange{
				Path:     "label",
				URI:      uri,
				OldValue: joinLabels(before),
				NewValue: joinLabels(after),
				Type:     ChangeTypeUpdate,
			})
		}
	}
	return changes
}

func labelsByURI(rows []mapping.Row) map[string][]string {
	m := make(map[string][]string, len(rows))
	for _, r := range rows {
		m[r.URI] = append(m[r.URI], r.Label)
	}
	for uri, labels := range m {
		slices.Sort(labels)
		m[uri] = slices.Compact(labels)
	}
	return m
}

func joinLabels(labels []string) string {
	return strings.Join(labels, " | ")
}
