package github

import (
	"regexp"
	"strings"
)

var repoURLPattern = regexp.MustCompile(`(?i)github\.com/([\w-]+)/([\w.-]+)`)

// ParseRepoURL extracts owner and repository name from a GitHub URL such as
// https://github.com/golang/go. The host match is case-insensitive and a
// trailing ".git" is removed from the repository name.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", "", ErrInvalidRepoURL
	}
	owner = m[1]
	repo = strings.TrimSuffix(m[2], ".git")
	if repo == "" {
		return "", "", ErrInvalidRepoURL
	}
	return owner, repo, nil
}
