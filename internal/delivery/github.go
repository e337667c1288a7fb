package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"

	"basegraph.app/codeask/common/logger"
)

type gitHubIssueCreator struct {
	client *github.Client
}

// NewGitHubIssueCreator authenticates with a personal access token.
// baseURL is only needed for GitHub Enterprise.
func NewGitHubIssueCreator(token, baseURL string) (IssueCreator, error) {
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN missing")
	}

	client := github.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing github base url: %w", err)
		}
		client.BaseURL = u
	}

	return &gitHubIssueCreator{client: client}, nil
}

func (c *gitHubIssueCreator) Create(ctx context.Context, params CreateIssueParams) (*CreatedIssue, error) {
	owner, name, err := splitRepository(params.Repository)
	if err != nil {
		return nil, err
	}

	sc := logger.StartSpan(ctx, "delivery.github.create_issue")
	defer sc.End()
	ctx = sc.Context()

	issue, _, err := c.client.Issues.Create(ctx, owner, name, &github.IssueRequest{
		Title: github.String(params.Title),
		Body:  github.String(params.Body),
	})
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("creating issue in github %s: %w", params.Repository, err)
	}

	created := &CreatedIssue{
		Provider: c.Provider(),
		Number:   int64(issue.GetNumber()),
		URL:      issue.GetHTMLURL(),
	}
	slog.InfoContext(ctx, "issue created", "provider", created.Provider, "repo", params.Repository, "url", created.URL)
	return created, nil
}

func (c *gitHubIssueCreator) Provider() string {
	return "github"
}
