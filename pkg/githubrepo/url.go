package githubrepo

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidRepoURL indicates the input is not a recognizable GitHub
// repository reference.
var ErrInvalidRepoURL = errors.New("invalid GitHub repository URL")

var (
	// Matches: https://github.com/owner/repo, with optional .git and trailing slash
	httpsPattern = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

	// Matches: git@github.com:owner/repo.git
	scpPattern = regexp.MustCompile(`^git@github\.com:([^/\s]+)/([^/\s]+?)(?:\.git)?$`)

	// Matches: ssh://git@github.com/owner/repo.git
	sshPattern = regexp.MustCompile(`^ssh://git@github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?$`)

	// Matches a bare "owner/repo" shorthand
	shortPattern = regexp.MustCompile(`^([\w.-]+)/([\w.-]+?)(?:\.git)?$`)
)

// ParseRepoURL extracts the owner and repository name from a GitHub URL.
// Accepts https, SCP-style SSH, ssh:// and bare "owner/repo" forms.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrInvalidRepoURL
	}

	for _, pattern := range []*regexp.Regexp{httpsPattern, scpPattern, sshPattern, shortPattern} {
		if matches := pattern.FindStringSubmatch(raw); matches != nil {
			return matches[1], matches[2], nil
		}
	}

	return "", "", ErrInvalidRepoURL
}

// SourceURL returns the canonical browse URL for a file within a repository.
func SourceURL(owner, repo, path string) string {
	return "https://github.com/" + owner + "/" + repo + "/blob/main/" + path
}
