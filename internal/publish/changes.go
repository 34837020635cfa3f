package publish

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangeSet classifies manifest entries against the last published tree. Paths are
// slash-separated and relative to the work tree.
type ChangeSet struct {
	Added     []string `json:"added,omitempty"`
	Modified  []string `json:"modified,omitempty"`
	Deleted   []string `json:"deleted,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`

	// hashes holds the blob hash of every manifest file as read by computeChanges.
	hashes map[string]plumbing.Hash
}

// Empty reports whether nothing needs to be committed.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Count returns the number of changed paths.
func (c ChangeSet) Count() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// treeBlobs maps every file of the commit's tree to its blob hash. A nil commit hash yields an
// empty map.
func treeBlobs(repo *git.Repository, commit plumbing.Hash) (map[string]plumbing.Hash, error) {
	out := make(map[string]plumbing.Hash)
	if commit.IsZero() {
		return out, nil
	}
	c, err := repo.CommitObject(commit)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", commit, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", commit, err)
	}
	err = tree.Files().ForEach(func(f *object.File) error {
		out[f.Name] = f.Hash
		return nil
	})
	return out, err
}

// computeChanges compares the files on disk with the published tree by blob hash.
func computeChanges(root string, files []string, published map[string]plumbing.Hash) (ChangeSet, error) {
	cs := ChangeSet{hashes: make(map[string]plumbing.Hash, len(files))}
	remaining := make(map[string]bool, len(published))
	for p := range published {
		remaining[p] = true
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	for _, rel := range sorted {
		h, err := blobHash(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return ChangeSet{}, err
		}
		cs.hashes[rel] = h
		old, ok := published[rel]
		switch {
		case !ok:
			cs.Added = append(cs.Added, rel)
		case old != h:
			cs.Modified = append(cs.Modified, rel)
		default:
			cs.Unchanged = append(cs.Unchanged, rel)
		}
		delete(remaining, rel)
	}
	for p := range remaining {
		cs.Deleted = append(cs.Deleted, p)
	}
	sort.Strings(cs.Deleted)
	return cs, nil
}

// verifyStaged checks that the index and the work tree still hold the content the change set
// was computed from. A build promoted in the middle of a publish swaps the files underneath it.
func verifyStaged(root string, idx *index.Index, cs ChangeSet) error {
	for _, group := range [][]string{cs.Added, cs.Modified} {
		for _, p := range group {
			e, err := idx.Entry(p)
			if err != nil {
				return fmt.Errorf("%w: %s is not staged", ErrOutputChanged, p)
			}
			if e.Hash != cs.hashes[p] {
				return fmt.Errorf("%w: %s", ErrOutputChanged, p)
			}
		}
	}
	for _, group := range [][]string{cs.Added, cs.Modified, cs.Unchanged} {
		for _, p := range group {
			h, err := blobHash(filepath.Join(root, filepath.FromSlash(p)))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrOutputChanged, p, err)
			}
			if h != cs.hashes[p] {
				return fmt.Errorf("%w: %s", ErrOutputChanged, p)
			}
		}
	}
	return nil
}

func blobHash(path string) (plumbing.Hash, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the build manifest
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !info.Mode().IsRegular() {
		return plumbing.ZeroHash, errors.New("not a regular file: " + path)
	}
	h := plumbing.NewHasher(plumbing.BlobObject, info.Size())
	if _, err := io.Copy(h, f); err != nil {
		return plumbing.ZeroHash, err
	}
	return h.Sum(), nil
}

// isAncestor reports whether a is reachable from b. History missing from a shallow clone
// ends the walk.
func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}
