package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/metrics"
	"github.com/pagepress/pagepress/internal/progress"
)

const remoteName = "origin"

// State is the lifecycle state of a Synchronizer.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateInitialized  State = "initialized"
	StatePublishing   State = "publishing"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// Options configures a Synchronizer.
type Options struct {
	// MetadataDir holds the git object store and references.
	MetadataDir string
	// WorktreeDir is the site output directory.
	WorktreeDir string
	RemoteURL   string
	// Branch defaults to "main".
	Branch      string
	AuthorName  string
	AuthorEmail string
	Recorder    metrics.Recorder
	// Now is the clock used for commit timestamps; nil means time.Now.
	Now func() time.Time
}

// Synchronizer publishes one output directory to one remote branch. Init and Publish must not
// overlap; concurrent calls fail with ErrPublishInProgress.
type Synchronizer struct {
	metadataDir string
	worktreeDir string
	remoteURL   string
	branch      plumbing.ReferenceName
	author      string
	email       string
	recorder    metrics.Recorder
	now         func() time.Time

	mu       sync.Mutex
	repo     *git.Repository
	progress *progress.Tracker

	stateMu sync.RWMutex
	state   State
}

// New creates a synchronizer. No filesystem or network access happens until Init or Publish.
func New(opts Options) (*Synchronizer, error) {
	if opts.RemoteURL == "" {
		return nil, foundationerrors.WrapError(ErrNotConfigured, foundationerrors.CategoryConfig, "publish remote is not configured").
			UserAction().Build()
	}
	if opts.MetadataDir == "" || opts.WorktreeDir == "" {
		return nil, foundationerrors.InternalError("publish requires metadata and worktree directories").Build()
	}
	meta, err := filepath.Abs(opts.MetadataDir)
	if err != nil {
		return nil, err
	}
	wt, err := filepath.Abs(opts.WorktreeDir)
	if err != nil {
		return nil, err
	}
	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	ref := plumbing.NewBranchReferenceName(branch)
	if err := ref.Validate(); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid publish branch").
			WithContext("branch", branch).Build()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		metadataDir: filepath.Clean(meta),
		worktreeDir: filepath.Clean(wt),
		remoteURL:   opts.RemoteURL,
		branch:      ref,
		author:      opts.AuthorName,
		email:       opts.AuthorEmail,
		recorder:    rec,
		now:         now,
		progress:    progress.NewTracker(string(StateUnconfigured)),
		state:       StateUnconfigured,
	}, nil
}

// Progress returns a snapshot of the current or last operation.
func (s *Synchronizer) Progress() progress.Snapshot {
	return s.progress.Snapshot()
}

// State returns the lifecycle state.
func (s *Synchronizer) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Synchronizer) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Init opens the repository metadata, or recreates it from the remote when it is absent or
// unusable.
func (s *Synchronizer) Init(ctx context.Context, creds Credentials) error {
	if !s.mu.TryLock() {
		return ErrPublishInProgress
	}
	defer s.mu.Unlock()
	s.progress.Start(string(StateUnconfigured), 0, "initializing repository")
	if err := s.init(ctx, creds); err != nil {
		s.progress.SetPhase(string(StateFailed), err.Error())
		return err
	}
	s.progress.SetPhase(string(StateInitialized), "repository ready")
	return nil
}

func (s *Synchronizer) storage() *filesystem.Storage {
	return filesystem.NewStorage(osfs.New(s.metadataDir), cache.NewObjectLRUDefault())
}

func (s *Synchronizer) init(ctx context.Context, creds Credentials) error {
	if err := os.MkdirAll(s.worktreeDir, 0o755); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to create work tree").
			WithContext("path", s.worktreeDir).Build()
	}

	repo, err := git.Open(s.storage(), osfs.New(s.worktreeDir))
	switch {
	case err == nil:
		if reason := s.unusable(repo); reason != "" {
			slog.Warn("Repository metadata unusable, recreating", logfields.Path(s.metadataDir), slog.String("reason", reason))
			repo = nil
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		repo = nil
	default:
		slog.Warn("Failed to open repository metadata, recreating", logfields.Path(s.metadataDir), logfields.Error(err))
		repo = nil
	}

	if repo == nil {
		if repo, err = s.recreate(ctx, creds); err != nil {
			return err
		}
	}
	if err := s.configureIdentity(repo); err != nil {
		return err
	}
	s.repo = repo
	s.setState(StateInitialized)
	return nil
}

// unusable returns a reason when an existing repository cannot be reused.
func (s *Synchronizer) unusable(repo *git.Repository) string {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return "missing origin remote"
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != s.remoteURL {
		return "origin points to a different remote"
	}
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "missing HEAD"
	}
	if head.Type() == plumbing.SymbolicReference && head.Target() != s.branch {
		return "HEAD points to a different branch"
	}
	if _, err := repo.Storer.Index(); err != nil {
		return "unreadable index"
	}
	return ""
}

// recreate replaces the metadata directory with a depth-1 clone of the remote branch without
// checkout. An empty remote, or one without the branch, is initialized locally instead.
func (s *Synchronizer) recreate(ctx context.Context, creds Credentials) (*git.Repository, error) {
	if err := os.RemoveAll(s.metadataDir); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to reset repository metadata").
			WithContext("path", s.metadataDir).Build()
	}
	auth, err := creds.authMethod(s.remoteURL)
	if err != nil {
		return nil, err
	}
	s.progress.SetMessage("cloning " + redact(s.remoteURL))
	slog.Info("Cloning publish repository", logfields.URL(redact(s.remoteURL)), logfields.Branch(s.branch.Short()))

	repo, err := git.CloneContext(ctx, s.storage(), osfs.New(s.worktreeDir), &git.CloneOptions{
		URL:           s.remoteURL,
		Auth:          auth,
		RemoteName:    remoteName,
		ReferenceName: s.branch,
		SingleBranch:  true,
		Depth:         1,
		NoCheckout:    true,
		Tags:          git.NoTags,
		Progress:      newSidebandWriter(s.progress),
	})
	switch {
	case err == nil:
		head, herr := repo.Reference(s.branch, true)
		if herr != nil {
			return nil, classifyGitError(herr, "clone", s.remoteURL)
		}
		wt, werr := repo.Worktree()
		if werr != nil {
			return nil, classifyGitError(werr, "clone", s.remoteURL)
		}
		if err := wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.MixedReset}); err != nil {
			return nil, classifyGitError(err, "reset index", s.remoteURL)
		}
		return repo, nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository), isMissingBranch(err):
		slog.Info("Remote branch does not exist yet, initializing locally", logfields.Branch(s.branch.Short()))
		if rerr := os.RemoveAll(s.metadataDir); rerr != nil {
			return nil, foundationerrors.WrapError(rerr, foundationerrors.CategoryFileSystem, "failed to reset repository metadata").Build()
		}
		return s.initLocal()
	default:
		_ = os.RemoveAll(s.metadataDir)
		return nil, classifyGitError(err, "clone", s.remoteURL)
	}
}

func isMissingBranch(err error) bool {
	return errors.Is(err, git.NoMatchingRefSpecError{}) || errors.Is(err, plumbing.ErrReferenceNotFound)
}

func (s *Synchronizer) initLocal() (*git.Repository, error) {
	repo, err := git.Init(s.storage(), osfs.New(s.worktreeDir))
	if err != nil {
		return nil, classifyGitError(err, "init", s.remoteURL)
	}
	_, err = repo.CreateRemote(&ggitcfg.RemoteConfig{
		Name:  remoteName,
		URLs:  []string{s.remoteURL},
		Fetch: []ggitcfg.RefSpec{s.fetchSpec()},
	})
	if err != nil {
		return nil, classifyGitError(err, "init", s.remoteURL)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, s.branch)); err != nil {
		return nil, classifyGitError(err, "init", s.remoteURL)
	}
	return repo, nil
}

func (s *Synchronizer) configureIdentity(repo *git.Repository) error {
	cfg, err := repo.Config()
	if err != nil {
		return classifyGitError(err, "config", s.remoteURL)
	}
	cfg.User.Name = s.author
	cfg.User.Email = s.email
	if err := repo.Storer.SetConfig(cfg); err != nil {
		return classifyGitError(err, "config", s.remoteURL)
	}
	return nil
}

func (s *Synchronizer) remoteRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(remoteName, s.branch.Short())
}

func (s *Synchronizer) fetchSpec() ggitcfg.RefSpec {
	return ggitcfg.RefSpec(fmt.Sprintf("+%s:%s", s.branch, s.remoteRef()))
}
