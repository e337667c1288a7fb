package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/codeask/common/logger"
)

type gitLabIssueCreator struct {
	client *gitlab.Client
}

// NewGitLabIssueCreator authenticates with a personal access token.
// baseURL is the instance root for self-hosted GitLab, e.g. https://gitlab.example.com.
func NewGitLabIssueCreator(token, baseURL string) (IssueCreator, error) {
	if token == "" {
		return nil, fmt.Errorf("GITLAB_TOKEN missing")
	}

	opts := []gitlab.ClientOptionFunc{gitlab.WithCustomRetryMax(0)}
	if baseURL != "" {
		apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
		opts = append(opts, gitlab.WithBaseURL(apiURL))
	}

	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &gitLabIssueCreator{client: client}, nil
}

func (c *gitLabIssueCreator) Create(ctx context.Context, params CreateIssueParams) (*CreatedIssue, error) {
	if _, _, err := splitRepository(params.Repository); err != nil {
		return nil, err
	}

	sc := logger.StartSpan(ctx, "delivery.gitlab.create_issue")
	defer sc.End()
	ctx = sc.Context()

	// GitLab accepts the URL-encoded "owner/name" path wherever a project ID is expected.
	issue, _, err := c.client.Issues.CreateIssue(
		params.Repository,
		&gitlab.CreateIssueOptions{
			Title:       gitlab.Ptr(params.Title),
			Description: gitlab.Ptr(params.Body),
		},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("creating issue in gitlab %s: %w", params.Repository, err)
	}

	created := &CreatedIssue{
		Provider: c.Provider(),
		Number:   int64(issue.IID),
		URL:      issue.WebURL,
	}
	slog.InfoContext(ctx, "issue created", "provider", created.Provider, "repo", params.Repository, "url", created.URL)
	return created, nil
}

func (c *gitLabIssueCreator) Provider() string {
	return "gitlab"
}
