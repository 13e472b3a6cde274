package github

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHook = WebhookConfig{URL: "https://hooks.oss-hub.dev/github", Secret: "s3cret"}

func TestCreateIssueWebhook_Created(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_user", r.Header.Get("Authorization"), "must act with the delegated token")

		var body struct {
			Name   string            `json:"name"`
			Events []string          `json:"events"`
			Active bool              `json:"active"`
			Config map[string]string `json:"config"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "web", body.Name)
		assert.Equal(t, []string{"issues"}, body.Events)
		assert.True(t, body.Active)
		assert.Equal(t, testHook.URL, body.Config["url"])
		assert.Equal(t, "json", body.Config["content_type"])
		assert.Equal(t, testHook.Secret, body.Config["secret"])

		writeJSON(w, http.StatusCreated, map[string]any{"id": 99})
	})

	c := newTestClient(t, mux, 0)
	id, err := c.CreateIssueWebhook(context.Background(), "gho_user", "octo", "hello", testHook)
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
}

func TestCreateIssueWebhook_AlreadyExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation Failed",
			"errors": []map[string]any{
				{"resource": "Hook", "code": "custom", "message": "Hook already exists on this repository"},
			},
		})
	})

	c := newTestClient(t, mux, 0)
	_, err := c.CreateIssueWebhook(context.Background(), "gho_user", "octo", "hello", testHook)
	assert.ErrorIs(t, err, ErrHookExists)
}

func TestCreateIssueWebhook_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Bad credentials"})
	})

	c := newTestClient(t, mux, 0)
	_, err := c.CreateIssueWebhook(context.Background(), "gho_expired", "octo", "hello", testHook)
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.True(t, IsUnauthorized(err))
}

func TestCreateIssueWebhook_MissingTokenMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	c := newTestClient(t, mux, 0)
	_, err := c.CreateIssueWebhook(context.Background(), "", "octo", "hello", testHook)
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.Zero(t, calls.Load())
}

func TestCreateIssueWebhook_OtherFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})

	c := newTestClient(t, mux, 0)
	_, err := c.CreateIssueWebhook(context.Background(), "gho_user", "octo", "hello", testHook)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHookExists)
	assert.NotErrorIs(t, err, ErrBadCredentials)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestCreateIssueWebhook_UserQuotaLeavesServiceLimiterAlone(t *testing.T) {
	reset := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "3")
		w.Header().Set("X-RateLimit-Reset", reset)
		writeJSON(w, http.StatusCreated, map[string]any{"id": 7})
	})
	mux.HandleFunc("GET /repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"stargazers_count": 1})
	})

	c := newTestClient(t, mux, 0)
	before := c.RateLimiter().Remaining()

	_, err := c.CreateIssueWebhook(context.Background(), "gho_user", "octo", "hello", testHook)
	require.NoError(t, err)
	assert.Equal(t, before, c.RateLimiter().Remaining())
	assert.True(t, c.RateLimiter().ResetTime().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	meta, err := c.FetchRepoMetadata(ctx, "octo", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Stars)
}
