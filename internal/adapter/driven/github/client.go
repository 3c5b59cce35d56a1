// Package github implements an alert channel that posts comments on a
// GitHub issue using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*IssueNotifier)(nil)

// IssueNotifier delivers alerts as comments on a single tracking issue, so the
// on-call history of credential lapses lives next to the runbook.
type IssueNotifier struct {
	gh    *gh.Client
	owner string
	repo  string
	issue int
}

// NewIssueNotifier creates an IssueNotifier with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewIssueNotifier(token, repoFullName string, issue int) (*IssueNotifier, error) {
	if token == "" {
		return nil, errors.New("github notifier: token is required")
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return newIssueNotifier(client, repoFullName, issue)
}

// NewIssueNotifierWithHTTPClient creates an IssueNotifier with a custom
// http.Client and base URL. This constructor is intended for testing.
func NewIssueNotifierWithHTTPClient(httpClient *http.Client, baseURL, repoFullName string, issue int) (*IssueNotifier, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return newIssueNotifier(client, repoFullName, issue)
}

func newIssueNotifier(client *gh.Client, repoFullName string, issue int) (*IssueNotifier, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}
	if issue <= 0 {
		return nil, fmt.Errorf("github notifier: invalid issue number %d", issue)
	}
	return &IssueNotifier{gh: client, owner: owner, repo: repo, issue: issue}, nil
}

// Send posts message as a new comment on the tracking issue.
func (n *IssueNotifier) Send(ctx context.Context, message string) error {
	comment := &gh.IssueComment{Body: gh.Ptr(message)}
	created, resp, err := n.gh.Issues.CreateComment(ctx, n.owner, n.repo, n.issue, comment)
	if err != nil {
		return fmt.Errorf("%w: creating comment on %s/%s#%d: %w",
			driven.ErrNotifierFailure, n.owner, n.repo, n.issue, err)
	}

	logRateLimit(resp, n.owner+"/"+n.repo+"/create-comment")
	slog.Debug("alert comment posted", "issue", n.issue, "comment_id", created.GetID())
	return nil
}

// logRateLimit logs the remaining API budget and warns when it runs low.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
