package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the page size used when listing issues.
	DefaultPageSize = 100
)

// Options configures a Client.
type Options struct {
	// Token is the service-level credential used for read calls.
	Token string
	// UserAgent identifies this service to GitHub.
	UserAgent string
	// BaseURL overrides https://api.github.com/ (tests, GitHub Enterprise).
	BaseURL string
	// Timeout bounds every HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
	// PageSize is the per_page value for issue listing. Zero means DefaultPageSize.
	PageSize int
	Logger   *zap.Logger
}

// Client is a thin wrapper around go-github exposing just the endpoints the
// onboarding flow requires.
type Client struct {
	gh          *gh.Client
	opts        Options
	baseURL     *url.URL
	rateLimiter *RateLimiter
	log         *zap.Logger
}

// RepoMetadata is the subset of repository fields stored on a card.
type RepoMetadata struct {
	Stars       int
	Forks       int
	Description string
}

// Issue is a raw open issue record as listed by GitHub. GitHub returns pull
// requests from the same endpoint; those carry PullRequest=true.
type Issue struct {
	ID          int64
	Number      int
	Title       string
	Body        string
	HTMLURL     string
	Labels      []string
	PullRequest bool
}

// NewClient returns a ready-to-use GitHub API client.
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		opts:        opts,
		rateLimiter: NewRateLimiter(opts.RequestsPerSecond),
		log:         opts.Logger.Named("github"),
	}
	if opts.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: invalid base URL %q: %w", opts.BaseURL, err)
		}
		c.baseURL = u
	}
	c.gh = c.newGitHub(opts.Token)
	return c, nil
}

// newGitHub builds a go-github client authenticated with token.
func (c *Client) newGitHub(token string) *gh.Client {
	httpClient := &http.Client{Timeout: c.opts.Timeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = c.opts.Timeout
	}

	client := gh.NewClient(httpClient)
	if c.opts.UserAgent != "" {
		client.UserAgent = c.opts.UserAgent
	}
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// FetchRepoMetadata returns star count, fork count and description for owner/repo.
func (c *Client) FetchRepoMetadata(ctx context.Context, owner, repo string) (RepoMetadata, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return RepoMetadata{}, fmt.Errorf("rate limit wait: %w", err)
	}

	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return RepoMetadata{}, c.wrapError(err, "get repo")
	}

	return RepoMetadata{
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		Description: r.GetDescription(),
	}, nil
}

// FetchDominantLanguage returns the language with the highest byte count.
// Ties go to the language GitHub listed first; an empty breakdown yields "".
func (c *Client) FetchDominantLanguage(ctx context.Context, owner, repo string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	// go-github decodes languages into a map, which loses GitHub's ordering,
	// so the raw object is decoded here instead.
	u := fmt.Sprintf("repos/%v/%v/languages", owner, repo)
	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	var raw json.RawMessage
	resp, err := c.gh.Do(ctx, req, &raw)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return "", c.wrapError(err, "list languages")
	}
	return dominantLanguage(raw)
}

// FetchAllIssues lists every open issue of owner/repo, page by page, until a
// page comes back empty or short. The first failing page aborts the fetch.
func (c *Client) FetchAllIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	var all []Issue

	for page := 1; ; page++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		opts := &gh.IssueListByRepoOptions{
			State:       "open",
			ListOptions: gh.ListOptions{Page: page, PerPage: c.opts.PageSize},
		}
		items, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		c.updateRateLimitFromResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("fetch issues page %d: %w", page, c.wrapError(err, "list issues"))
		}

		for _, it := range items {
			all = append(all, toIssue(it))
		}
		c.log.Debug("fetched issues page",
			zap.String("repo", owner+"/"+repo),
			zap.Int("page", page),
			zap.Int("count", len(items)),
		)

		if len(items) < c.opts.PageSize {
			break
		}
	}

	return all, nil
}

func toIssue(it *gh.Issue) Issue {
	labels := make([]string, 0, len(it.Labels))
	for _, l := range it.Labels {
		labels = append(labels, l.GetName())
	}
	return Issue{
		ID:          it.GetID(),
		Number:      it.GetNumber(),
		Title:       it.GetTitle(),
		Body:        it.GetBody(),
		HTMLURL:     it.GetHTMLURL(),
		Labels:      labels,
		PullRequest: it.IsPullRequest(),
	}
}

// dominantLanguage scans a {"Go": 1234, ...} object in document order.
func dominantLanguage(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("decode languages: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", fmt.Errorf("decode languages: expected object, got %v", tok)
	}

	var (
		best      string
		bestBytes int64 = -1
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("decode languages: %w", err)
		}
		name, _ := keyTok.(string)

		var n int64
		if err := dec.Decode(&n); err != nil {
			return "", fmt.Errorf("decode languages: %s: %w", name, err)
		}
		if n > bestBytes {
			best, bestBytes = name, n
		}
	}
	return best, nil
}

// updateRateLimitFromResponse updates the rate limiter from GitHub response headers.
func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.UpdateFromResponse(resp.Response)
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		for _, e := range ghErr.Errors {
			if e.Message != "" {
				apiErr.Details = append(apiErr.Details, e.Message)
			}
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
