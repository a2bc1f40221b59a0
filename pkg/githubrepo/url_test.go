package githubrepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		url   string
		owner string
		repo  string
	}{
		{"https://github.com/octocat/Hello-World", "octocat", "Hello-World"},
		{"https://github.com/octocat/Hello-World.git", "octocat", "Hello-World"},
		{"https://github.com/octocat/Hello-World/", "octocat", "Hello-World"},
		{"http://github.com/octocat/Hello-World", "octocat", "Hello-World"},
		{"https://www.github.com/octocat/Hello-World", "octocat", "Hello-World"},
		{"git@github.com:octocat/Hello-World.git", "octocat", "Hello-World"},
		{"git@github.com:octocat/Hello-World", "octocat", "Hello-World"},
		{"ssh://git@github.com/octocat/Hello-World.git", "octocat", "Hello-World"},
		{"octocat/Hello-World", "octocat", "Hello-World"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestParseRepoURLInvalid(t *testing.T) {
	tests := []string{
		"not-a-valid-url",
		"",
		"https://gitlab.com/octocat/Hello-World",
		"https://github.com/octocat",
		"ftp://github.com/octocat/Hello-World",
	}

	for _, url := range tests {
		t.Run(url, func(t *testing.T) {
			_, _, err := ParseRepoURL(url)
			assert.ErrorIs(t, err, ErrInvalidRepoURL)
		})
	}
}

func TestSourceURL(t *testing.T) {
	assert.Equal(t,
		"https://github.com/octocat/Hello-World/blob/main/src/main.go",
		SourceURL("octocat", "Hello-World", "src/main.go"))
}
