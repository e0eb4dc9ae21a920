// Package variant defines the canonical variant identifier used by the
// consequence mapper and the readers that reduce raw records to it.
package variant

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/clinmap/pkg/errors"
)

// Key identifies a genomic variant by chromosome, position and alleles.
type Key struct {
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
}

// String returns the canonical CHROM:POS:REF:ALT form.
func (k Key) String() string {
	return k.Chrom + ":" + strconv.FormatInt(k.Pos, 10) + ":" + k.Ref + ":" + k.Alt
}

// NewKey validates and canonicalizes the four components of a key.
// Alleles are upper-cased; the chromosome is kept as given.
func NewKey(chrom string, pos int64, ref, alt string) (Key, error) {
	chrom = strings.TrimSpace(chrom)
	if chrom == "" || strings.ContainsAny(chrom, ": \t") {
		return Key{}, errors.NewValidationError("chrom", chrom, "must be non-empty and contain no ':' or whitespace")
	}
	if pos < 1 {
		return Key{}, errors.NewValidationError("pos", pos, "must be a positive integer")
	}
	ref = strings.ToUpper(strings.TrimSpace(ref))
	alt = strings.ToUpper(strings.TrimSpace(alt))
	if !validAllele(ref) {
		return Key{}, errors.NewValidationError("ref", ref, "must be a non-empty sequence of A, C, G, T, N")
	}
	if !validAllele(alt) {
		return Key{}, errors.NewValidationError("alt", alt, "must be a non-empty sequence of A, C, G, T, N or '*'")
	}
	return Key{Chrom: chrom, Pos: pos, Ref: ref, Alt: alt}, nil
}

// ParseKey parses the canonical CHROM:POS:REF:ALT form.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return Key{}, errors.NewValidationError("key", s, fmt.Sprintf("expected CHROM:POS:REF:ALT, got %d field(s)", len(parts)))
	}
	pos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Key{}, errors.NewValidationError("pos", parts[1], "not an integer")
	}
	return NewKey(parts[0], pos, parts[2], parts[3])
}

// Compare orders keys by the byte order of their canonical strings, as
// LC_ALL=C sort would order the output table. It is not a genomic order:
// "10:5:A:C" sorts before "1:20:A:C" and "1:20:A:C" before "1:3:A:C".
func Compare(a, b Key) int {
	return strings.Compare(a.String(), b.String())
}

func validAllele(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch r {
		case 'A', 'C', 'G', 'T', 'N', '*':
		default:
			return false
		}
	}
	return true
}

// Strings returns the canonical form of every key, in order.
func Strings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// Sort orders keys in place by canonical string.
func Sort(keys []Key) {
	slices.SortFunc(keys, Compare)
}
