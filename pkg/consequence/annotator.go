package consequence

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/variant"
)

// Annotator resolves a batch of keys to one consequence line per key.
// Implementations must be safe for concurrent use; the mapper calls
// Annotate from several workers at once.
type Annotator interface {
	Annotate(ctx context.Context, keys []variant.Key) ([]Line, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(ctx context.Context, keys []variant.Key) ([]Line, error)

// Annotate calls f.
func (f AnnotatorFunc) Annotate(ctx context.Context, keys []variant.Key) ([]Line, error) {
	return f(ctx, keys)
}

// CommandAnnotator runs an external command once per batch. Keys are written
// to its stdin one per line; stdout must hold one KEY<TAB>terms line per key.
type CommandAnnotator struct {
	Path string
	Args []string
	// Env entries are appended to the current process environment.
	Env []string
	Dir string
}

// NewCommandAnnotator returns an annotator running path with args.
func NewCommandAnnotator(path string, args ...string) *CommandAnnotator {
	return &CommandAnnotator{Path: path, Args: args}
}

// String returns the command line.
func (a *CommandAnnotator) String() string {
	return strings.Join(append([]string{a.Path}, a.Args...), " ")
}

// Annotate implements Annotator.
func (a *CommandAnnotator) Annotate(ctx context.Context, keys []variant.Key) ([]Line, error) {
	var stdin bytes.Buffer
	for _, k := range keys {
		stdin.WriteString(k.String())
		stdin.WriteByte('\n')
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.Path, a.Args...)
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = a.Dir
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), a.Env...)
	}
	// wrappers often fork the real annotator; cancel must reach the whole
	// group or a grandchild holding stdout keeps Run blocked
	killProcessGroup(cmd)
	cmd.WaitDelay = constants.AnnotatorWaitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, errors.NewProcessError("annotate", a.String(), strings.TrimSpace(stderr.String()), exitCode, err)
	}

	lines, err := ReadLines(ctx, &stdout)
	if err != nil {
		return nil, fmt.Errorf("annotator %s: %w", a.Path, err)
	}
	return lines, nil
}

// LookupAnnotator answers from a precomputed table. Keys missing from the
// table are answered as unresolved.
type LookupAnnotator struct {
	lines map[variant.Key]Line
}

// NewLookupAnnotator indexes lines by key. A key listed twice keeps the
// union of its terms.
func NewLookupAnnotator(lines []Line) *LookupAnnotator {
	a := &LookupAnnotator{lines: make(map[variant.Key]Line, len(lines))}
	for _, l := range lines {
		a.add(l)
	}
	return a
}

// LoadLookupAnnotator reads a KEY<TAB>terms table from r.
func LoadLookupAnnotator(ctx context.Context, r io.Reader) (*LookupAnnotator, error) {
	lines, err := ReadLines(ctx, r)
	if err != nil {
		return nil, err
	}
	return NewLookupAnnotator(lines), nil
}

// LoadLookupFile reads a KEY<TAB>terms table from path.
func LoadLookupFile(ctx context.Context, path string) (*LookupAnnotator, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()
	a, err := LoadLookupAnnotator(ctx, f)
	return a, errors.WithFile(err, path)
}

func (a *LookupAnnotator) add(l Line) {
	prev, ok := a.lines[l.Key]
	if !ok || prev.Unresolved {
		a.lines[l.Key] = l
		return
	}
	if l.Unresolved {
		return
	}
	prev.Terms = append(append([]string(nil), prev.Terms...), l.Terms...)
	a.lines[l.Key] = prev
}

// Len returns the number of indexed keys.
func (a *LookupAnnotator) Len() int {
	return len(a.lines)
}

// Annotate implements Annotator.
func (a *LookupAnnotator) Annotate(ctx context.Context, keys []variant.Key) ([]Line, error) {
	out := make([]Line, 0, len(keys))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l, ok := a.lines[k]; ok {
			out = append(out, l)
			continue
		}
		out = append(out, Line{Key: k, Unresolved: true})
	}
	return out, nil
}
