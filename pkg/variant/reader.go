package variant

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
)

// Format names the shape of raw variant records.
type Format string

const (
	// FormatKey is one CHROM:POS:REF:ALT key per line.
	FormatKey Format = "key"
	// FormatVCF is VCF data lines: CHROM POS ID REF ALT ... (tab-separated).
	FormatVCF Format = "vcf"
)

// ParseFormat validates a format name; empty selects FormatKey.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatKey:
		return FormatKey, nil
	case FormatVCF:
		return FormatVCF, nil
	default:
		return "", errors.NewValidationError("input_format", s, "must be one of: key, vcf")
	}
}

// ReadOptions controls ReadKeys.
type ReadOptions struct {
	Format Format
	// Tolerant skips malformed records instead of failing the read.
	Tolerant bool
}

// ReadStats reports what ReadKeys consumed.
type ReadStats struct {
	Lines   int
	Records int
	Skipped int
}

// ParseLine reduces one raw record to a key. ok is false for blank and
// comment lines, which carry no record.
func ParseLine(line string, format Format) (key Key, ok bool, err error) {
	trimmed := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(trimmed) == "" || strings.HasPrefix(trimmed, "#") {
		return Key{}, false, nil
	}

	switch format {
	case FormatVCF:
		fields := strings.Split(trimmed, "\t")
		if len(fields) < 5 {
			return Key{}, false, errors.New("expected at least 5 tab-separated VCF columns")
		}
		pos, perr := strconv.ParseInt(fields[1], 10, 64)
		if perr != nil {
			return Key{}, false, errors.New("POS is not an integer: " + fields[1])
		}
		key, err = NewKey(fields[0], pos, fields[3], fields[4])
	default:
		key, err = ParseKey(strings.TrimSpace(trimmed))
	}
	if err != nil {
		return Key{}, false, err
	}
	return key, true, nil
}

// ReadKeys reads every record from r and returns the distinct keys.
// The first malformed record fails the read unless opts.Tolerant is set.
func ReadKeys(ctx context.Context, r io.Reader, opts ReadOptions) (*Set, ReadStats, error) {
	logger := logging.FromContext(ctx)
	format := opts.Format
	if format == "" {
		format = FormatKey
	}

	set := NewSet()
	var stats ReadStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		stats.Lines++
		key, ok, err := ParseLine(scanner.Text(), format)
		if err != nil {
			perr := errors.NewParseError(string(format), stats.Lines, err.Error())
			perr.Err = err
			if !opts.Tolerant {
				return nil, stats, perr
			}
			stats.Skipped++
			logger.Warn().Err(perr).Msg("Skipping malformed variant record")
			continue
		}
		if !ok {
			continue
		}
		stats.Records++
		set.Add(key)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, errors.WrapIO("read", "variants", err)
	}
	return set, stats, nil
}
