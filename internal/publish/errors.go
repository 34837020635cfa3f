package publish

import (
	"context"
	"errors"
	"net"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

var (
	// ErrPublishInProgress is returned while another publish of the same synchronizer runs.
	ErrPublishInProgress = errors.New("a publish is already in progress")
	// ErrNotConfigured is returned when no remote URL is configured.
	ErrNotConfigured = errors.New("publishing is not configured")
	// ErrOutputChanged is returned when the output directory changes between hashing and staging.
	ErrOutputChanged = errors.New("output directory changed while publishing")
)

// classifyGitError translates go-git errors into classified errors with distinct auth,
// network and conflict categories.
func classifyGitError(err error, op, remote string) error {
	if err == nil {
		return nil
	}
	if _, ok := foundationerrors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())
	var netErr net.Error
	var b *foundationerrors.ErrorBuilder
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod),
		strings.Contains(l, "authentication failed"),
		strings.Contains(l, "invalid credentials"):
		b = foundationerrors.AuthError("remote rejected the credentials")
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		errors.Is(err, git.ErrForceNeeded),
		strings.Contains(l, "non-fast-forward"),
		strings.Contains(l, "fetch first"):
		b = foundationerrors.ConflictError("remote branch has diverged")
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		strings.Contains(l, "connection refused"),
		strings.Contains(l, "connection reset"),
		strings.Contains(l, "remote hung up"),
		strings.Contains(l, "no such host"),
		strings.Contains(l, "i/o timeout"):
		b = foundationerrors.NetworkError("remote is unreachable")
	case errors.Is(err, transport.ErrRepositoryNotFound):
		b = foundationerrors.NewError(foundationerrors.CategoryNotFound, "remote repository not found").UserAction()
	default:
		b = foundationerrors.GitError("git operation failed")
	}
	return b.WithCause(err).WithContext("op", op).WithContext("url", redact(remote)).Build()
}
