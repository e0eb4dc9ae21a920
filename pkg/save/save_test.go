package save_test

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/save"
)

func TestFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "table.tsv")

	require.NoError(t, save.Bytes(path, []byte("first\n")))
	require.NoError(t, save.Bytes(path, []byte("second\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.tsv")
	require.NoError(t, save.Bytes(path, []byte("prior\n")))

	boom := stderrors.New("disk full")
	err := save.File(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prior\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private.tsv")
	require.NoError(t, save.Bytes(path, []byte("x"), save.WithPerm(0o600), save.WithDirSync(false)))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncode(t *testing.T) {
	v := map[string]int{"rows": 3}

	var buf bytes.Buffer
	require.NoError(t, save.Encode(&buf, v, save.FormatJSON))
	assert.JSONEq(t, `{"rows": 3}`, buf.String())

	buf.Reset()
	require.NoError(t, save.Encode(&buf, v, save.FormatYAML))
	assert.Equal(t, "rows: 3\n", buf.String())

	assert.Error(t, save.Encode(&buf, v, save.Format(9)))
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, save.FormatJSON, save.FormatFromPath("report.JSON"))
	assert.Equal(t, save.FormatYAML, save.FormatFromPath("report.yaml"))
	assert.Equal(t, save.FormatYAML, save.FormatFromPath("report"))
	assert.Equal(t, "yaml", save.FormatYAML.String())
	assert.Equal(t, "unknown", save.Format(7).String())
}
