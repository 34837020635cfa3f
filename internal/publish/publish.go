package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/uuid"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/site"
	"github.com/pagepress/pagepress/internal/version"
)

// PublishOptions are per-call inputs to Publish.
type PublishOptions struct {
	Credentials Credentials
	// Force overwrites a diverged remote branch.
	Force bool
}

// Result describes a completed publish.
type Result struct {
	PublishID string
	// Commit is the published commit; empty when NoChanges is set.
	Commit    string
	Changes   ChangeSet
	NoChanges bool
}

// Publish commits the manifest's files and pushes them to the remote branch.
func (s *Synchronizer) Publish(ctx context.Context, manifest *site.Manifest, opts PublishOptions) (*Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrPublishInProgress
	}
	defer s.mu.Unlock()

	id := uuid.NewString()
	start := s.now()
	log := slog.With(logfields.PublishID(id), logfields.Branch(s.branch.Short()))

	res, outcome, err := s.publish(ctx, id, manifest, opts, log)
	s.recorder.ObservePublishDuration(s.now().Sub(start))
	s.recorder.IncPublishOutcome(outcome)
	if err != nil {
		s.setState(StateInitialized)
		if s.repo == nil {
			s.setState(StateUnconfigured)
		}
		s.progress.SetPhase(string(StateFailed), err.Error())
		log.Error("Publish failed", logfields.Error(err))
		return nil, err
	}
	s.setState(StateInitialized)
	msg := "no changes to publish"
	if !res.NoChanges {
		msg = fmt.Sprintf("published %d changes", res.Changes.Count())
	}
	s.progress.SetPhase(string(StateSucceeded), msg)
	log.Info("Publish completed", logfields.Commit(res.Commit), slog.Bool("no_changes", res.NoChanges),
		logfields.DurationMS(float64(s.now().Sub(start).Milliseconds())))
	return res, nil
}

func (s *Synchronizer) publish(ctx context.Context, id string, manifest *site.Manifest, opts PublishOptions, log *slog.Logger) (*Result, string, error) {
	if manifest == nil {
		return nil, "failed", foundationerrors.InternalError("publish requires a build manifest").Build()
	}
	if filepath.Clean(manifest.Root) != s.worktreeDir {
		return nil, "failed", foundationerrors.ConfigError("manifest does not belong to the publish work tree").
			WithContext("manifest_root", manifest.Root).WithContext("worktree", s.worktreeDir).Build()
	}
	files, err := manifest.Relative()
	if err != nil {
		return nil, "failed", foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "invalid manifest").Build()
	}

	s.progress.Start(string(StatePublishing), 0, "preparing repository")
	if s.repo == nil {
		if err := s.init(ctx, opts.Credentials); err != nil {
			return nil, outcomeFor(err), err
		}
	}
	s.setState(StatePublishing)
	repo := s.repo

	auth, err := opts.Credentials.authMethod(s.remoteURL)
	if err != nil {
		return nil, "auth", err
	}

	s.progress.SetMessage("fetching " + s.branch.Short())
	remoteTip, err := s.fetch(ctx, repo, auth)
	if err != nil {
		return nil, outcomeFor(err), err
	}
	localTip := plumbing.ZeroHash
	if ref, err := repo.Reference(s.branch, true); err == nil {
		localTip = ref.Hash()
	}

	if !opts.Force && !remoteTip.IsZero() {
		ok := false
		if !localTip.IsZero() {
			if ok, err = isAncestor(repo, remoteTip, localTip); err != nil {
				return nil, "failed", classifyGitError(err, "ancestry", s.remoteURL)
			}
		}
		if !ok {
			err := foundationerrors.ConflictError("remote branch has diverged from the last publish").
				WithContext("remote", remoteTip.String()).WithContext("local", localTip.String()).
				WithContext("hint", "publish with --force to overwrite the remote").Build()
			return nil, "conflict", err
		}
	}

	s.progress.SetMessage("computing changes")
	published, err := treeBlobs(repo, localTip)
	if err != nil {
		return nil, "failed", classifyGitError(err, "diff", s.remoteURL)
	}
	changes, err := computeChanges(s.worktreeDir, files, published)
	if err != nil {
		return nil, "failed", foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to hash output files").Build()
	}
	log.Info("Computed publish changes", slog.Int("added", len(changes.Added)), slog.Int("modified", len(changes.Modified)),
		slog.Int("deleted", len(changes.Deleted)), slog.Int("unchanged", len(changes.Unchanged)))

	result := &Result{PublishID: id, Changes: changes}
	if changes.Empty() && (localTip.IsZero() || localTip == remoteTip) {
		result.NoChanges = true
		return result, "no_changes", nil
	}

	snap, err := s.snapshot(repo)
	if err != nil {
		return nil, "failed", err
	}

	commit := localTip
	if !changes.Empty() {
		s.progress.SetMessage(fmt.Sprintf("committing %d changes", changes.Count()))
		if commit, err = s.commit(repo, changes); err != nil {
			s.restore(repo, snap, log)
			return nil, "failed", err
		}
	}

	s.progress.SetMessage("pushing to " + redact(s.remoteURL))
	if err := s.push(ctx, repo, auth, opts.Force); err != nil {
		s.restore(repo, snap, log)
		return nil, outcomeFor(err), err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(s.remoteRef(), commit)); err != nil {
		log.Warn("Failed to update remote tracking reference", logfields.Error(err))
	}

	s.recorder.AddFilesChanged("added", len(changes.Added))
	s.recorder.AddFilesChanged("modified", len(changes.Modified))
	s.recorder.AddFilesChanged("deleted", len(changes.Deleted))
	result.Commit = commit.String()
	return result, "success", nil
}

// fetch updates the remote tracking reference and returns the remote tip, or the zero hash
// when the remote branch does not exist.
func (s *Synchronizer) fetch(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) (plumbing.Hash, error) {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []ggitcfg.RefSpec{s.fetchSpec()},
		Auth:       auth,
		Tags:       git.NoTags,
		Force:      true,
		Progress:   newSidebandWriter(s.progress),
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository), isMissingBranch(err):
		return plumbing.ZeroHash, nil
	default:
		return plumbing.ZeroHash, classifyGitError(err, "fetch", s.remoteURL)
	}
	ref, err := repo.Reference(s.remoteRef(), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, classifyGitError(err, "fetch", s.remoteURL)
	}
	return ref.Hash(), nil
}

type snapshot struct {
	ref   *plumbing.Reference
	index *index.Index
}

func (s *Synchronizer) snapshot(repo *git.Repository) (*snapshot, error) {
	snap := &snapshot{}
	ref, err := repo.Storer.Reference(s.branch)
	switch {
	case err == nil:
		snap.ref = ref
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return nil, classifyGitError(err, "snapshot", s.remoteURL)
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, classifyGitError(err, "snapshot", s.remoteURL)
	}
	snap.index = idx
	return snap, nil
}

// restore resets the branch reference and index to their pre-publish state.
func (s *Synchronizer) restore(repo *git.Repository, snap *snapshot, log *slog.Logger) {
	var err error
	if snap.ref == nil {
		err = repo.Storer.RemoveReference(s.branch)
	} else {
		err = repo.Storer.SetReference(snap.ref)
	}
	if err != nil {
		log.Error("Failed to restore branch reference", logfields.Error(err))
	}
	if err := repo.Storer.SetIndex(snap.index); err != nil {
		log.Error("Failed to restore index", logfields.Error(err))
	}
	log.Warn("Rolled back local publish state")
}

func (s *Synchronizer) commit(repo *git.Repository, changes ChangeSet) (plumbing.Hash, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, classifyGitError(err, "commit", s.remoteURL)
	}
	for _, group := range [][]string{changes.Added, changes.Modified} {
		for _, p := range group {
			if err := wt.AddWithOptions(&git.AddOptions{Path: p, SkipStatus: true}); err != nil {
				return plumbing.ZeroHash, classifyGitError(fmt.Errorf("stage %s: %w", p, err), "commit", s.remoteURL)
			}
		}
	}
	for _, p := range changes.Deleted {
		if _, err := wt.Remove(p); err != nil {
			return plumbing.ZeroHash, classifyGitError(fmt.Errorf("unstage %s: %w", p, err), "commit", s.remoteURL)
		}
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return plumbing.ZeroHash, classifyGitError(err, "commit", s.remoteURL)
	}
	if err := verifyStaged(s.worktreeDir, idx, changes); err != nil {
		return plumbing.ZeroHash, foundationerrors.WrapError(err, foundationerrors.CategoryBuild, "output changed while publishing").
			WithContext("hint", "wait for the running build to finish and publish again").Build()
	}
	sig := &object.Signature{Name: s.author, Email: s.email, When: s.now()}
	h, err := wt.Commit(version.CommitMessage(), &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return plumbing.ZeroHash, classifyGitError(err, "commit", s.remoteURL)
	}
	return h, nil
}

func (s *Synchronizer) push(ctx context.Context, repo *git.Repository, auth transport.AuthMethod, force bool) error {
	spec := ggitcfg.RefSpec(fmt.Sprintf("%s:%s", s.branch, s.branch))
	if force {
		spec = "+" + spec
	}
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []ggitcfg.RefSpec{spec},
		Auth:       auth,
		Force:      force,
		Progress:   newSidebandWriter(s.progress),
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return classifyGitError(err, "push", s.remoteURL)
}

// outcomeFor maps an error to the publish outcome label.
func outcomeFor(err error) string {
	switch {
	case foundationerrors.HasCategory(err, foundationerrors.CategoryAuth):
		return "auth"
	case foundationerrors.HasCategory(err, foundationerrors.CategoryNetwork):
		return "network"
	case foundationerrors.HasCategory(err, foundationerrors.CategoryConflict):
		return "conflict"
	default:
		return "failed"
	}
}
