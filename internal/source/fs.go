// Package source reads staged raw documents written by the external fetcher.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS exposes a staging directory as a document source. Files follow the
// `<source>-<suffix>` naming convention; everything else is ignored.
type FS struct {
	dir string
}

// NewFS validates the staging directory and returns an FS.
func NewFS(dir string) (*FS, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat staging directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("staging path %q is not a directory", dir)
	}
	return &FS{dir: dir}, nil
}

// List returns the names of staged documents for the source, sorted for
// deterministic ingestion order.
func (f *FS) List(ctx context.Context, source string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read staging directory: %w", err)
	}
	prefix := source + "-"
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the raw bytes of one staged document. The name must be a bare
// filename; path separators are rejected to keep reads inside the staging
// directory.
func (f *FS) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid document name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", name, err)
	}
	return data, nil
}
