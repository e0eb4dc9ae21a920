// Package save writes pipeline artifacts so that readers only ever observe
// the previous file or the complete new one.
//
// Every write goes to a temporary file in the target directory, is synced,
// closed and renamed over the target. A failure at any step removes the
// temporary file and leaves the target untouched.
package save

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/clinmap/pkg/errors"
)

// File atomically replaces path with whatever write produces.
func File(path string, write func(io.Writer) error, opts ...Option) (err error) {
	o := Defaults().Apply(opts...)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, o.dirPerm); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WrapIO("create", "temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return errors.WrapIO("write", tmpPath, err)
	}
	if err = tmp.Chmod(o.perm); err != nil {
		return errors.WrapIO("chmod", tmpPath, err)
	}
	if err = tmp.Sync(); err != nil {
		return errors.WrapIO("sync", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return errors.WrapIO("close", tmpPath, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return errors.WrapIO("rename", path, err)
	}

	if o.syncDir {
		syncDir(dir)
	}
	return nil
}

// Bytes atomically replaces path with data.
func Bytes(path string, data []byte, opts ...Option) error {
	return File(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, opts...)
}

// Encode writes v to w as JSON or YAML.
func Encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, bytes.NewReader(data))
		return err
	default:
		return errors.NewValidationError("format", format.String(), "unsupported save format")
	}
}

// syncDir is best effort; some filesystems reject fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // directory of a path we just wrote
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
