package mapping_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/agentstation/clinmap/pkg/mapping"
)

func TestTableSetSemantics(t *testing.T) {
	a := mapping.Row{TraitName: "fanconi anemia", URI: "http://www.orpha.net/ORDO/Orphanet_84", Label: "Fanconi anemia"}
	b := mapping.Row{TraitName: "breast cancer", URI: "http://www.ebi.ac.uk/efo/EFO_0000305", Label: "breast carcinoma"}
	relabeled := a
	relabeled.Label = "Fanconi anaemia"

	table := mapping.NewTable(a, b, a)
	assert.Equal(t, 2, table.Len())
	assert.False(t, table.Add(b))
	assert.True(t, table.Add(relabeled), "rows differing only in label are distinct")
	assert.True(t, table.Has(relabeled))

	if diff := cmp.Diff([]mapping.Row{a, b, relabeled}, table.Rows()); diff != "" {
		t.Errorf("insertion order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]mapping.Row{b, relabeled, a}, table.Sorted()); diff != "" {
		t.Errorf("sorted order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"breast cancer", "fanconi anemia"}, table.TraitNames())
	assert.Len(t, table.ByTrait()["fanconi anemia"], 2)
}

func TestTableCloneIsIndependent(t *testing.T) {
	orig := mapping.NewTable(mapping.Row{TraitName: "t", URI: "u"})
	clone := orig.Clone()
	clone.Add(mapping.Row{TraitName: "t2", URI: "u2"})
	assert.Equal(t, 1, orig.Len())
	assert.Equal(t, 2, clone.Len())
}
