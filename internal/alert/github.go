package alert

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// ErrTokenNotSet is returned when a GitHub client is built without a token.
var ErrTokenNotSet = errors.New("GitHub token not set")

// NewGitHubClient creates a GitHub client authenticated with token.
func NewGitHubClient(ctx context.Context, token config.Secret) (*github.Client, error) {
	if !token.IsSet() {
		return nil, ErrTokenNotSet
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	tc := oauth2.NewClient(ctx, ts)
	return github.NewClient(tc), nil
}

// GitHubNotifier comments on a tracking issue for every alert.
type GitHubNotifier struct {
	client *github.Client
	owner  string
	repo   string
	issue  int
	status string
	retry  *RetryConfig
	logger *logging.Logger
}

// NewGitHubNotifier returns a notifier commenting on cfg's issue.
func NewGitHubNotifier(client *github.Client, cfg config.GitHubConfig, status string, retry *RetryConfig, logger *logging.Logger) *GitHubNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GitHubNotifier{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		issue:  cfg.Issue,
		status: status,
		retry:  retry,
		logger: logger.Named("alert.github"),
	}
}

// WithBaseURL points the notifier at another API root, such as GitHub
// Enterprise or a test server.
func (n *GitHubNotifier) WithBaseURL(base string) (*GitHubNotifier, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	n.client.BaseURL = u
	return n, nil
}

func (n *GitHubNotifier) body(identifier string) string {
	icon := ":white_check_mark:"
	if n.status == StatusFailure {
		icon = ":x:"
	}
	return fmt.Sprintf("%s dbt pipeline %s\n\n`%s`", icon, n.status, identifier)
}

// Notify posts the comment, retrying transient API errors.
func (n *GitHubNotifier) Notify(ctx context.Context, identifier string) bool {
	comment := &github.IssueComment{Body: github.String(n.body(identifier))}

	var created *github.IssueComment
	_, err := retryGitHubOperation(ctx, n.retry, n.logger, func() (*github.Response, error) {
		c, resp, err := n.client.Issues.CreateComment(ctx, n.owner, n.repo, n.issue, comment)
		created = c
		return resp, err
	})
	if err != nil {
		n.logger.Warn(ctx, "GitHub alert failed",
			zap.String("identifier", identifier),
			zap.String("repo", n.owner+"/"+n.repo),
			zap.Int("issue", n.issue),
			zap.Error(err),
		)
		return false
	}

	n.logger.Debug(ctx, "GitHub alert posted", zap.String("url", created.GetHTMLURL()))
	return true
}
