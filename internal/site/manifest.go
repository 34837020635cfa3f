package site

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// Manifest lists every file written by one build as sorted absolute paths below Root.
// A manifest is created fresh per build and only returned for successful builds.
type Manifest struct {
	Root  string   `json:"root"`
	Files []string `json:"files"`
}

// Len returns the number of files.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Files)
}

// Relative returns the manifest entries as slash-separated paths relative to Root.
func (m *Manifest) Relative() ([]string, error) {
	out := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		rel, err := filepath.Rel(m.Root, f)
		if err != nil {
			return nil, err
		}
		if !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("manifest entry %s is outside %s", f, m.Root)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out, nil
}

// Contains reports whether rel (slash-separated, relative to Root) is part of the manifest.
func (m *Manifest) Contains(rel string) bool {
	abs := filepath.Join(m.Root, filepath.FromSlash(rel))
	i := sort.SearchStrings(m.Files, abs)
	return i < len(m.Files) && m.Files[i] == abs
}

// collectManifest enumerates the regular files below stageDir and maps them to their final
// location below root.
func collectManifest(stageDir, root string) (*Manifest, error) {
	var files []string
	err := filepath.WalkDir(stageDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(stageDir, p)
		if err != nil {
			return err
		}
		if strings.HasSuffix(rel, ".tmp") {
			return fmt.Errorf("unexpected temporary file %s in staging output", rel)
		}
		files = append(files, filepath.Join(root, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return &Manifest{Root: root, Files: files}, nil
}

// ScanManifest lists the files of a previously built output directory.
func ScanManifest(outputDir string) (*Manifest, error) {
	root, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}
	root = filepath.Clean(root)
	if _, err := os.Stat(filepath.Join(root, indexFile)); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryNotFound, "output directory holds no built site").
			WithContext("path", root).UserAction().Build()
	}
	return collectManifest(root, root)
}
