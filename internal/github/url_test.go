package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	valid := []struct {
		in, owner, repo string
	}{
		{"https://github.com/golang/go", "golang", "go"},
		{"https://github.com/golang/go.git", "golang", "go"},
		{"https://GitHub.COM/octo-org/hello.world", "octo-org", "hello.world"},
		{"http://www.github.com/octo/repo_name/issues/12", "octo", "repo_name"},
		{"github.com/a/b.git", "a", "b"},
	}
	for _, tt := range valid {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}

	invalid := []string{
		"",
		"https://gitlab.com/golang/go",
		"https://github.com/golang",
		"https://github.com/",
		"not a url",
		"https://github.com/owner/.git",
	}
	for _, in := range invalid {
		t.Run("invalid "+in, func(t *testing.T) {
			_, _, err := ParseRepoURL(in)
			assert.ErrorIs(t, err, ErrInvalidRepoURL)
		})
	}
}
