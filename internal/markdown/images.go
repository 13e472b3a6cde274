// Package markdown holds the small amount of markdown inspection the
// onboarding flow needs.
package markdown

import "regexp"

var imagePattern = regexp.MustCompile(`!\[.*?\]\((https?://[^)]+\.(?:png|jpe?g|gif|svg))\)`)

// ExtractImages returns the URLs of every image embedded in md with
// ![alt](url) syntax, in document order. Only http(s) links to png, jpg,
// jpeg, gif or svg resources match. The result is never nil.
func ExtractImages(md string) []string {
	matches := imagePattern.FindAllStringSubmatch(md, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	return urls
}

// FirstImage returns the first image URL in md, or nil when there is none.
func FirstImage(md string) *string {
	m := imagePattern.FindStringSubmatch(md)
	if m == nil {
		return nil
	}
	return &m[1]
}
