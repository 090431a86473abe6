// Package github reads the commit history and check suites of a repository
// from the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ci-tracker/src/contracts"
	"ci-tracker/src/provider"
)

const (
	// APIBaseURL is the base URL for the GitHub API.
	APIBaseURL = "https://api.github.com"

	providerName = "GitHub"
	maxPerPage   = 100
)

// Client is a GitHub API client scoped to one repository.
type Client struct {
	token      string
	repo       string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new GitHub client for repo ("owner/name").
func NewClient(token, repo string, timeout time.Duration) *Client {
	return &Client{
		token:      token,
		repo:       repo,
		httpClient: provider.NewHTTPClient(timeout),
		baseURL:    APIBaseURL,
	}
}

// WithBaseURL points the client at another API root, such as GitHub Enterprise.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

// Repo returns the owner/name the client reads from.
func (c *Client) Repo() string {
	return c.repo
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	header.Set("Accept", "application/vnd.github+json")
	return provider.GetJSON(ctx, c.httpClient, providerName, c.baseURL+path, header, out)
}

// ListCommits returns the newest n commits of the default branch, newest
// first, with Index set to the position in that order.
func (c *Client) ListCommits(ctx context.Context, n int) ([]contracts.Commit, error) {
	perPage := n
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	var commits []contracts.Commit
	for page := 1; len(commits) < n; page++ {
		var items []CommitItem
		path := fmt.Sprintf("/repos/%s/commits?per_page=%d&page=%d", c.repo, perPage, page)
		if err := c.get(ctx, path, &items); err != nil {
			return nil, fmt.Errorf("failed to list commits: %w", err)
		}

		for _, item := range items {
			if len(commits) == n {
				break
			}
			commits = append(commits, toCommit(item, len(commits)))
		}

		if len(items) < perPage {
			break
		}
	}

	return commits, nil
}

func toCommit(item CommitItem, idx int) contracts.Commit {
	message, _, _ := strings.Cut(item.Commit.Message, "\n")
	login, avatar := contracts.OwnerUnknown, ""
	if item.Author != nil {
		login, avatar = item.Author.Login, item.Author.AvatarURL
	}
	return contracts.Commit{
		SHA:             item.SHA,
		UnixTime:        item.Commit.Author.Date.Unix(),
		Index:           idx,
		Message:         message,
		URL:             item.HTMLURL,
		AuthorLogin:     login,
		AuthorAvatarURL: avatar,
	}
}

// CheckSuites lists the check suites attached to a commit.
func (c *Client) CheckSuites(ctx context.Context, sha string) ([]CheckSuite, error) {
	var resp CheckSuitesResponse
	path := fmt.Sprintf("/repos/%s/commits/%s/check-suites?per_page=%d", c.repo, sha, maxPerPage)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list check suites for %s: %w", sha, err)
	}
	return resp.CheckSuites, nil
}

// CheckRuns lists the runs of a check suite.
func (c *Client) CheckRuns(ctx context.Context, suiteID int64) ([]CheckRun, error) {
	var resp CheckRunsResponse
	path := fmt.Sprintf("/repos/%s/check-suites/%d/check-runs?per_page=%d", c.repo, suiteID, maxPerPage)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list check runs for suite %d: %w", suiteID, err)
	}
	return resp.CheckRuns, nil
}

// FindSuite returns the first suite created by the app with the given slug.
func FindSuite(suites []CheckSuite, appSlug string) (CheckSuite, bool) {
	for _, s := range suites {
		if s.App.Slug == appSlug {
			return s, true
		}
	}
	return CheckSuite{}, false
}
