package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/progress"
	"github.com/pagepress/pagepress/internal/site"
	"github.com/pagepress/pagepress/internal/version"
)

type publishFixture struct {
	remote   string
	meta     string
	worktree string
	sync     *Synchronizer
}

func newPublishFixture(t *testing.T) *publishFixture {
	t.Helper()
	tmp := t.TempDir()
	f := &publishFixture{
		remote:   filepath.Join(tmp, "remote.git"),
		meta:     filepath.Join(tmp, "data", "repository.git"),
		worktree: filepath.Join(tmp, "output"),
	}
	_, err := git.PlainInit(f.remote, true)
	require.NoError(t, err)
	f.sync = f.newSynchronizer(t, f.meta)
	return f
}

func (f *publishFixture) newSynchronizer(t *testing.T, meta string) *Synchronizer {
	t.Helper()
	s, err := New(Options{
		MetadataDir: meta,
		WorktreeDir: f.worktree,
		RemoteURL:   f.remote,
		AuthorName:  "pagepress",
		AuthorEmail: "pagepress@example.com",
		Now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return s
}

// writeOutput replaces the work tree contents and returns the matching manifest.
func (f *publishFixture) writeOutput(t *testing.T, files map[string]string) *site.Manifest {
	t.Helper()
	entries, err := os.ReadDir(f.worktree)
	if err == nil {
		for _, e := range entries {
			require.NoError(t, os.RemoveAll(filepath.Join(f.worktree, e.Name())))
		}
	}
	m := &site.Manifest{Root: f.worktree}
	for rel, body := range files {
		p := filepath.Join(f.worktree, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		m.Files = append(m.Files, p)
	}
	sort.Strings(m.Files)
	return m
}

func remoteTree(t *testing.T, remote string) (map[string]string, *object.Commit) {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)
	out := map[string]string{}
	require.NoError(t, tree.Files().ForEach(func(f *object.File) error {
		body, err := f.Contents()
		out[f.Name] = body
		return err
	}))
	return out, commit
}

func TestPublishDelta(t *testing.T) {
	f := newPublishFixture(t)
	ctx := context.Background()

	m := f.writeOutput(t, map[string]string{"a.html": "A", "b.html": "B", "c/index.html": "C"})
	res, err := f.sync.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)
	assert.False(t, res.NoChanges)
	assert.Equal(t, []string{"a.html", "b.html", "c/index.html"}, res.Changes.Added)
	assert.NotEmpty(t, res.PublishID)

	tree, commit := remoteTree(t, f.remote)
	assert.Equal(t, map[string]string{"a.html": "A", "b.html": "B", "c/index.html": "C"}, tree)
	assert.Equal(t, version.CommitMessage(), commit.Message)
	assert.Equal(t, "pagepress", commit.Author.Name)
	assert.Equal(t, res.Commit, commit.Hash.String())

	m = f.writeOutput(t, map[string]string{"a.html": "A", "c/index.html": "C2", "d.html": "D"})
	res, err = f.sync.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d.html"}, res.Changes.Added)
	assert.Equal(t, []string{"c/index.html"}, res.Changes.Modified)
	assert.Equal(t, []string{"b.html"}, res.Changes.Deleted)
	assert.Equal(t, []string{"a.html"}, res.Changes.Unchanged)

	tree, commit = remoteTree(t, f.remote)
	assert.Equal(t, map[string]string{"a.html": "A", "c/index.html": "C2", "d.html": "D"}, tree)
	assert.Len(t, commit.ParentHashes, 1)
	assert.Equal(t, StateInitialized, f.sync.State())
	assert.Equal(t, string(StateSucceeded), f.sync.Progress().Phase)
}

func TestPublishWithoutChangesIsNoop(t *testing.T) {
	f := newPublishFixture(t)
	ctx := context.Background()

	m := f.writeOutput(t, map[string]string{"index.html": "home"})
	first, err := f.sync.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)

	second, err := f.sync.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)
	assert.True(t, second.NoChanges)
	assert.Empty(t, second.Commit)
	assert.Equal(t, []string{"index.html"}, second.Changes.Unchanged)

	_, commit := remoteTree(t, f.remote)
	assert.Equal(t, first.Commit, commit.Hash.String())
}

func TestPublishDivergedRemote(t *testing.T) {
	f := newPublishFixture(t)
	ctx := context.Background()

	m := f.writeOutput(t, map[string]string{"index.html": "v1"})
	first, err := f.sync.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)
	tip, entries := localState(t, f.sync)
	require.Equal(t, first.Commit, tip.String())

	// Someone else pushes to the branch.
	otherPath := filepath.Join(t.TempDir(), "other")
	other, err := git.PlainClone(otherPath, false, &git.CloneOptions{
		URL:           f.remote,
		ReferenceName: plumbing.NewBranchReferenceName("main"),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(otherPath, "foreign.txt"), []byte("x"), 0o600))
	wt, err := other.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("foreign.txt")
	require.NoError(t, err)
	sig := &object.Signature{Name: "other", Email: "other@example.com", When: time.Now()}
	foreign, err := wt.Commit("foreign", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	require.NoError(t, other.Push(&git.PushOptions{RemoteName: "origin"}))

	m = f.writeOutput(t, map[string]string{"index.html": "v2"})
	_, err = f.sync.Publish(ctx, m, PublishOptions{})
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConflict))
	_, commit := remoteTree(t, f.remote)
	assert.Equal(t, foreign, commit.Hash)
	assert.Equal(t, string(StateFailed), f.sync.Progress().Phase)
	tipAfter, entriesAfter := localState(t, f.sync)
	assert.Equal(t, tip, tipAfter, "conflict must leave the local branch untouched")
	assert.Equal(t, entries, entriesAfter)
	body, err := os.ReadFile(filepath.Join(f.worktree, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))

	res, err := f.sync.Publish(ctx, m, PublishOptions{Force: true})
	require.NoError(t, err)
	tree, commit := remoteTree(t, f.remote)
	assert.Equal(t, map[string]string{"index.html": "v2"}, tree)
	assert.Equal(t, res.Commit, commit.Hash.String())
}

func TestPublishRecreatesMissingMetadata(t *testing.T) {
	f := newPublishFixture(t)
	ctx := context.Background()

	m := f.writeOutput(t, map[string]string{"index.html": "home", "css/site.css": "body{}"})
	first, err := f.sync.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(f.meta))
	fresh := f.newSynchronizer(t, f.meta)
	require.NoError(t, fresh.Init(ctx, Credentials{}))
	assert.Equal(t, StateInitialized, fresh.State())

	res, err := fresh.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)
	assert.True(t, res.NoChanges)

	m = f.writeOutput(t, map[string]string{"index.html": "home v2", "css/site.css": "body{}"})
	res, err = fresh.Publish(ctx, m, PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html"}, res.Changes.Modified)
	_, commit := remoteTree(t, f.remote)
	assert.Equal(t, []plumbing.Hash{plumbing.NewHash(first.Commit)}, commit.ParentHashes)
}

func TestPublishRejectsForeignManifest(t *testing.T) {
	f := newPublishFixture(t)
	m := &site.Manifest{Root: t.TempDir()}
	_, err := f.sync.Publish(context.Background(), m, PublishOptions{})
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
}

func TestPublishRejectsConcurrentCall(t *testing.T) {
	f := newPublishFixture(t)
	f.sync.mu.Lock()
	defer f.sync.mu.Unlock()
	_, err := f.sync.Publish(context.Background(), &site.Manifest{Root: f.worktree}, PublishOptions{})
	assert.ErrorIs(t, err, ErrPublishInProgress)
	assert.ErrorIs(t, f.sync.Init(context.Background(), Credentials{}), ErrPublishInProgress)
}

func TestNewRequiresRemote(t *testing.T) {
	_, err := New(Options{MetadataDir: t.TempDir(), WorktreeDir: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))

	_, err = New(Options{MetadataDir: t.TempDir(), WorktreeDir: t.TempDir(), RemoteURL: "x", Branch: "bad..name"})
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
}

func TestCredentials(t *testing.T) {
	c := Credentials{Account: "me", Token: "secret"}
	assert.NotContains(t, c.String(), "secret")

	auth, err := c.authMethod("https://example.com/site.git")
	require.NoError(t, err)
	assert.NotNil(t, auth)

	_, err = Credentials{Account: "me"}.authMethod("https://example.com/site.git")
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryAuth))

	auth, err = c.authMethod("/srv/git/site.git")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestClassifyGitError(t *testing.T) {
	cases := []struct {
		err  error
		want foundationerrors.ErrorCategory
	}{
		{transport.ErrAuthenticationRequired, foundationerrors.CategoryAuth},
		{transport.ErrAuthorizationFailed, foundationerrors.CategoryAuth},
		{git.ErrNonFastForwardUpdate, foundationerrors.CategoryConflict},
		{errors.New("! [rejected] main -> main (fetch first)"), foundationerrors.CategoryConflict},
		{context.DeadlineExceeded, foundationerrors.CategoryNetwork},
		{errors.New("dial tcp: connection refused"), foundationerrors.CategoryNetwork},
		{transport.ErrRepositoryNotFound, foundationerrors.CategoryNotFound},
		{errors.New("object not found"), foundationerrors.CategoryGit},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			err := classifyGitError(tc.err, "push", "https://user:pw@example.com/x.git")
			ce, ok := foundationerrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, ce.Category())
			assert.ErrorIs(t, err, tc.err)
			assert.NotContains(t, err.Error(), "pw@")
		})
	}
	assert.NoError(t, classifyGitError(nil, "push", ""))
}

func TestSidebandProgress(t *testing.T) {
	tr := progress.NewTracker("publishing")
	w := newSidebandWriter(tr)
	_, err := w.Write([]byte("remote: Counting objects:  10% (1/10)\rremote: Counting objects:  40% (4/10)\r"))
	require.NoError(t, err)
	snap := tr.Snapshot()
	assert.Equal(t, 40, snap.Current)
	assert.Equal(t, 100, snap.Total)

	_, err = w.Write([]byte("Compressing objects: 10"))
	require.NoError(t, err)
	_, err = w.Write([]byte("0% (3/3), done.\n"))
	require.NoError(t, err)
	assert.Equal(t, 100, tr.Snapshot().Current)

	_, err = w.Write([]byte("remote: Resolving deltas done\n"))
	require.NoError(t, err)
	assert.Equal(t, "Resolving deltas done", tr.Snapshot().Message)
}

func TestSidebandConcurrentWrites(t *testing.T) {
	w := newSidebandWriter(progress.NewTracker("publishing"))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Write([]byte("Writing objects:  50% (1/2)\n"))
		}()
	}
	wg.Wait()
}

func TestComputeChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "same.txt"), []byte("same"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("new"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "edit.txt"), []byte("edited"), 0o600))

	same, err := blobHash(filepath.Join(root, "same.txt"))
	require.NoError(t, err)
	published := map[string]plumbing.Hash{
		"same.txt": same,
		"edit.txt": plumbing.ComputeHash(plumbing.BlobObject, []byte("original")),
		"gone.txt": plumbing.ComputeHash(plumbing.BlobObject, []byte("gone")),
	}
	cs, err := computeChanges(root, []string{"same.txt", "new.txt", "edit.txt"}, published)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, cs.Added)
	assert.Equal(t, []string{"edit.txt"}, cs.Modified)
	assert.Equal(t, []string{"gone.txt"}, cs.Deleted)
	assert.Equal(t, []string{"same.txt"}, cs.Unchanged)
	assert.Equal(t, 3, cs.Count())
	assert.False(t, cs.Empty())
	assert.Equal(t, plumbing.ComputeHash(plumbing.BlobObject, []byte("same")), same)
}

func TestVerifyStagedDetectsRewrittenOutput(t *testing.T) {
	root := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o600))
	}
	write("a.html", "A")
	write("b.html", "B")

	published := map[string]plumbing.Hash{"b.html": plumbing.ComputeHash(plumbing.BlobObject, []byte("B"))}
	cs, err := computeChanges(root, []string{"a.html", "b.html"}, published)
	require.NoError(t, err)
	idx := &index.Index{Version: 2}
	idx.Add("a.html").Hash = plumbing.ComputeHash(plumbing.BlobObject, []byte("A"))
	require.NoError(t, verifyStaged(root, idx, cs))

	// A build promoted mid-publish rewrites an unchanged file.
	write("b.html", "B2")
	assert.ErrorIs(t, verifyStaged(root, idx, cs), ErrOutputChanged)

	write("b.html", "B")
	idx.Entries[0].Hash = plumbing.ComputeHash(plumbing.BlobObject, []byte("A2"))
	assert.ErrorIs(t, verifyStaged(root, idx, cs), ErrOutputChanged)

	assert.ErrorIs(t, verifyStaged(root, &index.Index{Version: 2}, cs), ErrOutputChanged)
}
