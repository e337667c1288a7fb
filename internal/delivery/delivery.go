package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"basegraph.app/codeask/core/config"
	"github.com/google/go-github/v66/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

var ErrInvalidRepository = errors.New("repository must be owner/name")

type Email struct {
	To      string
	Subject string
	Text    string // canonical markdown, sent as the plain-text part
	HTML    string // Optional: rendered alternative
}

// Mailer sends a single transactional email. One attempt, no retry.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type CreateIssueParams struct {
	Repository string // "owner/name"
	Title      string
	Body       string
}

type CreatedIssue struct {
	Provider string `json:"provider"`
	Number   int64  `json:"number"`
	URL      string `json:"url"`
}

// IssueCreator opens an issue in a repository. One attempt, no retry.
type IssueCreator interface {
	Create(ctx context.Context, params CreateIssueParams) (*CreatedIssue, error)
	Provider() string
}

// NewIssueCreator returns the creator for the configured provider.
func NewIssueCreator(cfg config.IssueConfig) (IssueCreator, error) {
	switch cfg.Provider {
	case config.IssueProviderGitHub:
		return NewGitHubIssueCreator(cfg.GitHubToken, cfg.GitHubBaseURL)
	case config.IssueProviderGitLab:
		return NewGitLabIssueCreator(cfg.GitLabToken, cfg.GitLabBaseURL)
	default:
		return nil, fmt.Errorf("unsupported issue provider: %s", cfg.Provider)
	}
}

// StatusCode returns the HTTP status carried by a provider error, or 0.
func StatusCode(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	var glErr *gitlab.ErrorResponse
	if errors.As(err, &glErr) && glErr.Response != nil {
		return glErr.Response.StatusCode
	}
	return 0
}

func splitRepository(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, repo)
	}
	return owner, name, nil
}
