package consequence

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/variant"
)

// Record is the aggregated consequence set of one variant.
type Record struct {
	Key   variant.Key
	Terms []string
}

// String renders the record as a table line without the trailing newline.
func (r Record) String() string {
	return r.Key.String() + "\t" + strings.Join(r.Terms, ",")
}

// Line is one annotator answer for one key. Unresolved lines carry no terms.
type Line struct {
	Key        variant.Key
	Terms      []string
	Unresolved bool
}

// ParseLine parses KEY<TAB>term[,term...] or KEY<TAB>- into a Line.
// Terms are trimmed; empty terms are rejected.
func ParseLine(s string) (Line, error) {
	s = strings.TrimRight(s, "\r\n")
	keyField, termField, found := strings.Cut(s, "\t")
	if !found {
		return Line{}, errors.New("expected KEY<TAB>TERMS")
	}
	key, err := variant.ParseKey(keyField)
	if err != nil {
		return Line{}, err
	}
	termField = strings.TrimSpace(termField)
	if termField == constants.UnresolvedSentinel {
		return Line{Key: key, Unresolved: true}, nil
	}
	if termField == "" || strings.Contains(termField, "\t") {
		return Line{}, fmt.Errorf("malformed consequence field %q", termField)
	}
	parts := strings.Split(termField, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == constants.UnresolvedSentinel {
			return Line{}, fmt.Errorf("malformed consequence field %q", termField)
		}
		terms = append(terms, p)
	}
	return Line{Key: key, Terms: terms}, nil
}

// ReadLines reads an annotator table. Blank and '#' lines are skipped; the
// first malformed line fails the read.
func ReadLines(ctx context.Context, r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, constants.CommentPrefix) {
			continue
		}
		line, err := ParseLine(text)
		if err != nil {
			perr := errors.NewParseError("consequence", n, err.Error())
			perr.Err = err
			return nil, perr
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapIO("read", "consequences", err)
	}
	return lines, nil
}

// WriteTable writes one KEY<TAB>term,term line per record. Records are
// written in canonical key order so identical input yields identical bytes.
func WriteTable(w io.Writer, records []Record) error {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int { return variant.Compare(a.Key, b.Key) })

	bw := bufio.NewWriter(w)
	for _, r := range sorted {
		if _, err := bw.WriteString(r.String() + "\n"); err != nil {
			return errors.WrapIO("write", "consequence table", err)
		}
	}
	return errors.WrapIO("flush", "consequence table", bw.Flush())
}

// WriteFailedBatches writes the keys of every failed batch, one per line,
// under a "# batch N" comment. The file is valid key-format input for a
// follow-up run.
func WriteFailedBatches(w io.Writer, failures []*errors.BatchError) error {
	bw := bufio.NewWriter(w)
	for _, f := range failures {
		if _, err := fmt.Fprintf(bw, "%s batch %d (%d attempt(s)): %v\n", constants.CommentPrefix, f.Index, f.Attempts, oneLine(f.Err)); err != nil {
			return errors.WrapIO("write", "failed batches", err)
		}
		for _, k := range f.Keys {
			if _, err := bw.WriteString(k + "\n"); err != nil {
				return errors.WrapIO("write", "failed batches", err)
			}
		}
	}
	return errors.WrapIO("flush", "failed batches", bw.Flush())
}

func oneLine(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
