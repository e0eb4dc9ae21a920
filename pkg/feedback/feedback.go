// Package feedback builds the ontology feedback export sent to the external
// mapping service after a reconciliation.
package feedback

import (
	"bufio"
	"cmp"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/mapping"
)

// Header is the first line of every feedback file.
const Header = "STUDY\tBIOENTITY\tPROPERTY_TYPE\tPROPERTY_VALUE\tSEMANTIC_TAG\tANNOTATOR\tANNOTATION_DATE"

// Record is one feedback row.
type Record struct {
	Study          string
	Bioentity      string
	PropertyType   string
	PropertyValue  string
	SemanticTag    string
	Annotator      string
	AnnotationDate string
}

// Fields returns the record's columns in header order.
func (r Record) Fields() []string {
	return []string{r.Study, r.Bioentity, r.PropertyType, r.PropertyValue, r.SemanticTag, r.Annotator, r.AnnotationDate}
}

// Options controls Build. Zero fields take the package defaults.
type Options struct {
	PropertyType string
	Annotator    string
	// Now is the run clock; every record carries the same date.
	Now time.Time
}

// Build projects table to one record per distinct (trait, URI) pair,
// sorted by trait then URI.
func Build(table *mapping.Table, opts Options) []Record {
	propertyType := cmp.Or(opts.PropertyType, constants.FeedbackPropertyType)
	annotator := cmp.Or(opts.Annotator, constants.FeedbackAnnotator)
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	date := now.Format(constants.FeedbackDateLayout)

	type pair struct{ trait, uri string }
	seen := make(map[pair]struct{}, table.Len())
	records := make([]Record, 0, table.Len())
	for _, r := range table.Rows() {
		p := pair{r.TraitName, r.URI}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		records = append(records, Record{
			PropertyType:   propertyType,
			PropertyValue:  r.TraitName,
			SemanticTag:    r.URI,
			Annotator:      annotator,
			AnnotationDate: date,
		})
	}
	slices.SortFunc(records, func(a, b Record) int {
		return cmp.Or(cmp.Compare(a.PropertyValue, b.PropertyValue), cmp.Compare(a.SemanticTag, b.SemanticTag))
	})
	return records
}

// Write emits the header followed by one tab-separated line per record.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return errors.WrapIO("write", "feedback", err)
	}
	for _, r := range records {
		if _, err := bw.WriteString(strings.Join(r.Fields(), "\t") + "\n"); err != nil {
			return errors.WrapIO("write", "feedback", err)
		}
	}
	return errors.WrapIO("flush", "feedback", bw.Flush())
}
