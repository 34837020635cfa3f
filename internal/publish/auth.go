package publish

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
)

// Credentials authenticate one clone, fetch or push. They are never stored.
type Credentials struct {
	Account string
	Token   string
}

// String hides the token.
func (c Credentials) String() string {
	if c.Token == "" {
		return c.Account
	}
	return c.Account + ":***"
}

// authMethod returns HTTP basic auth for http(s) remotes. Other transports (local paths in
// tests, file://) are used without authentication.
func (c Credentials) authMethod(remote string) (transport.AuthMethod, error) {
	if c.Account == "" && c.Token == "" {
		return nil, nil
	}
	u, err := url.Parse(remote)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		slog.Debug("Ignoring credentials for non-HTTP remote", logfields.URL(redact(remote)))
		return nil, nil
	}
	if c.Token == "" {
		return nil, foundationerrors.AuthError("publish token is missing").
			WithContext("account", c.Account).Build()
	}
	user := c.Account
	if user == "" {
		user = "x-access-token"
	}
	return &githttp.BasicAuth{Username: user, Password: c.Token}, nil
}

// redact strips user info from a URL for logging.
func redact(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	u.User = nil
	return strings.TrimSpace(u.String())
}
