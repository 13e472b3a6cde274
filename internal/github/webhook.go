package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"go.uber.org/zap"
)

// WebhookConfig describes the listener GitHub should deliver issue events to.
type WebhookConfig struct {
	URL    string
	Secret string
}

// CreateIssueWebhook registers a repository webhook for "issues" events,
// acting on behalf of the user that owns delegatedToken.
//
// It returns ErrHookExists when GitHub reports an identical hook and
// ErrBadCredentials when the token is missing or rejected. The call counts
// against the user's quota, so its rate limit headers never reach the
// service limiter.
func (c *Client) CreateIssueWebhook(ctx context.Context, delegatedToken, owner, repo string, cfg WebhookConfig) (int64, error) {
	if delegatedToken == "" {
		return 0, fmt.Errorf("%w: no delegated access token", ErrBadCredentials)
	}
	if err := c.rateLimiter.Throttle(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	hookCfg := &gh.HookConfig{
		URL:         gh.Ptr(cfg.URL),
		ContentType: gh.Ptr("json"),
		InsecureSSL: gh.Ptr("0"),
	}
	if cfg.Secret != "" {
		hookCfg.Secret = gh.Ptr(cfg.Secret)
	}

	client := c.newGitHub(delegatedToken)
	hook, resp, err := client.Repositories.CreateHook(ctx, owner, repo, &gh.Hook{
		Config: hookCfg,
		Events: []string{"issues"},
		Active: gh.Ptr(true),
	})
	if resp != nil {
		c.log.Debug("delegated rate limit",
			zap.String("repo", owner+"/"+repo),
			zap.Int("remaining", resp.Rate.Remaining),
		)
	}
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) {
			switch {
			case hookAlreadyExists(ghErr):
				return 0, ErrHookExists
			case ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnauthorized,
				strings.EqualFold(ghErr.Message, "Bad credentials"):
				return 0, fmt.Errorf("%w: %s", ErrBadCredentials, ghErr.Message)
			}
		}
		return 0, c.wrapError(err, "create hook")
	}

	c.log.Info("webhook created",
		zap.String("repo", owner+"/"+repo),
		zap.Int64("hook_id", hook.GetID()),
	)
	return hook.GetID(), nil
}

func hookAlreadyExists(e *gh.ErrorResponse) bool {
	if strings.Contains(strings.ToLower(e.Message), "already exists") {
		return true
	}
	for _, d := range e.Errors {
		if strings.Contains(strings.ToLower(d.Message), "already exists") {
			return true
		}
	}
	return false
}
