// Package buildkite reads job verdicts, artifacts and PR build times from the
// Buildkite GraphQL API.
package buildkite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ci-tracker/src/provider"
	"ci-tracker/src/retry"
)

const (
	// GraphQLURL is the Buildkite GraphQL endpoint.
	GraphQLURL = "https://graphql.buildkite.com/v1"

	providerName = "Buildkite"
)

// Client is a Buildkite GraphQL client.
type Client struct {
	apiToken   string
	httpClient *http.Client
	url        string
}

// NewClient creates a new Buildkite API client.
func NewClient(apiToken string, timeout time.Duration) *Client {
	return &Client{
		apiToken:   apiToken,
		httpClient: provider.NewHTTPClient(timeout),
		url:        GraphQLURL,
	}
}

// WithURL points the client at another GraphQL endpoint.
func (c *Client) WithURL(url string) *Client {
	if url != "" {
		c.url = url
	}
	return c
}

// HTTPClient returns the client used for API calls and artifact downloads.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query runs a GraphQL query and decodes its data member into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
	req.Header.Set("Content-Type", "application/json")

	var resp graphQLResponse
	if err := provider.DoJSON(c.httpClient, providerName, req, &resp); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: graphql errors: %s", provider.ErrMalformedResponse, strings.Join(msgs, "; "))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("%w: graphql response without data", provider.ErrMalformedResponse)
	}

	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	return nil
}

// PipelineSlug returns the org/pipeline slug used by the GraphQL pipeline field.
func PipelineSlug(org, pipeline string) string {
	return org + "/" + pipeline
}

// BuildJobs returns the jobs of every build of pipeline slug for commit on branch.
func (c *Client) BuildJobs(ctx context.Context, slug, branch, commit string) ([]Job, error) {
	var data buildsData
	vars := map[string]any{"slug": slug, "branch": []string{branch}, "commit": []string{commit}}
	if err := c.Query(ctx, buildJobsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("failed to query builds of %s for %s: %w", slug, commit, err)
	}
	if data.Pipeline == nil {
		return nil, retry.Fatal(fmt.Errorf("%w: pipeline %s", provider.ErrNotFound, slug))
	}

	var jobs []Job
	for _, b := range data.Pipeline.Builds.Edges {
		if b.Node == nil {
			continue
		}
		for _, j := range b.Node.Jobs.Edges {
			// Wait steps, triggers and block steps come back as empty nodes.
			if j.Node == nil || j.Node.UUID == "" {
				continue
			}
			jobs = append(jobs, *j.Node)
		}
	}
	return jobs, nil
}

// PRBuilds returns the newest builds of pipeline slug.
func (c *Client) PRBuilds(ctx context.Context, slug string) ([]PRBuildNode, error) {
	var data prBuildsData
	if err := c.Query(ctx, prBuildsQuery, map[string]any{"slug": slug}, &data); err != nil {
		return nil, fmt.Errorf("failed to query builds of %s: %w", slug, err)
	}
	if data.Pipeline == nil {
		return nil, retry.Fatal(fmt.Errorf("%w: pipeline %s", provider.ErrNotFound, slug))
	}

	var builds []PRBuildNode
	for _, b := range data.Pipeline.Builds.Edges {
		if b.Node != nil {
			builds = append(builds, *b.Node)
		}
	}
	return builds, nil
}
