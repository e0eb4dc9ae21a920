// Package differ compares two mapping tables and reports what changed,
// per row and per trait.
package differ

import (
	"fmt"
	"strings"

	"github.com/agentstation/clinmap/pkg/mapping"
)

// ChangeType represents the type of change.
type ChangeType string

const (
	// ChangeTypeAdd indicates an item was added.
	ChangeTypeAdd ChangeType = "add"
	// ChangeTypeUpdate indicates an item was updated.
	ChangeTypeUpdate ChangeType = "update"
	// ChangeTypeRemove indicates an item was removed.
	ChangeTypeRemove ChangeType = "remove"
)

// FieldChange represents a change to one mapping of a trait.
type FieldChange struct {
	Path     string     `json:"path" yaml:"path"` // "uri" or "label"
	URI      string     `json:"uri" yaml:"uri"`
	OldValue string     `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue string     `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	Type     ChangeType `json:"type" yaml:"type"`
}

// String renders the change on one line.
func (c FieldChange) String() string {
	switch c.Type {
	case ChangeTypeAdd:
		return "+ " + c.URI
	case ChangeTypeRemove:
		return "- " + c.URI
	default:
		return fmt.Sprintf("~ %s %s: %q -> %q", c.URI, c.Path, c.OldValue, c.NewValue)
	}
}

// TraitUpdate represents a trait present in both tables whose mappings differ.
type TraitUpdate struct {
	Trait   string        `json:"trait" yaml:"trait"`
	Changes []FieldChange `json:"changes" yaml:"changes"`
}

// Changeset represents all changes between two tables.
type Changeset struct {
	Added         []mapping.Row    `json:"added,omitempty" yaml:"added,omitempty"`     // rows only in the updated table
	Removed       []mapping.Row    `json:"removed,omitempty" yaml:"removed,omitempty"` // rows only in the existing table
	TraitsAdded   []string         `json:"traits_added,omitempty" yaml:"traits_added,omitempty"`
	TraitsRemoved []string         `json:"traits_removed,omitempty" yaml:"traits_removed,omitempty"`
	TraitsUpdated []TraitUpdate    `json:"traits_updated,omitempty" yaml:"traits_updated,omitempty"`
	Summary       ChangesetSummary `json:"summary" yaml:"summary"`
}

// ChangesetSummary provides summary statistics for a changeset.
type ChangesetSummary struct {
	RowsAdded     int `json:"rows_added" yaml:"rows_added"`
	RowsRemoved   int `json:"rows_removed" yaml:"rows_removed"`
	TraitsAdded   int `json:"traits_added" yaml:"traits_added"`
	TraitsRemoved int `json:"traits_removed" yaml:"traits_removed"`
	TraitsUpdated int `json:"traits_updated" yaml:"traits_updated"`
	TotalChanges  int `json:"total_changes" yaml:"total_changes"`
}

// HasChanges returns true if the changeset contains any changes.
func (c *Changeset) HasChanges() bool {
	return c.Summary.TotalChanges > 0
}

// IsEmpty returns true if the changeset contains no changes.
func (c *Changeset) IsEmpty() bool {
	return c.Summary.TotalChanges == 0
}

// calculateSummary computes the summary for a changeset.
func calculateSummary(c *Changeset) ChangesetSummary {
	s := ChangesetSummary{
		RowsAdded:     len(c.Added),
		RowsRemoved:   len(c.Removed),
		TraitsAdded:   len(c.TraitsAdded),
		TraitsRemoved: len(c.TraitsRemoved),
		TraitsUpdated: len(c.TraitsUpdated),
	}
	s.TotalChanges = s.RowsAdded + s.RowsRemoved
	return s
}

// String returns a human-readable summary of the changeset.
func (c *Changeset) String() string {
	if c.IsEmpty() {
		return "No changes"
	}
	var parts []string
	if n := c.Summary.RowsAdded; n > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) added", n))
	}
	if n := c.Summary.RowsRemoved; n > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) removed", n))
	}
	if n := c.Summary.TraitsAdded; n > 0 {
		parts = append(parts, fmt.Sprintf("%d new trait(s)", n))
	}
	if n := c.Summary.TraitsRemoved; n > 0 {
		parts = append(parts, fmt.Sprintf("%d trait(s) dropped", n))
	}
	if n := c.Summary.TraitsUpdated; n > 0 {
		parts = append(parts, fmt.Sprintf("%d trait(s) remapped", n))
	}
	return strings.Join(parts, ", ")
}
