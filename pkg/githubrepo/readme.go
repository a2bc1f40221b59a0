package githubrepo

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FetchRenderedReadme pulls the repository README pre-rendered to HTML and
// extracts its plain text. Used as narration context by the render
// pipeline; a missing README is not an error for the caller to abort on.
func (f *Fetcher) FetchRenderedReadme(ctx context.Context, owner, repo string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/readme", f.config.APIBaseURL, owner, repo)

	body, err := f.get(ctx, endpoint, "application/vnd.github.html")
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered README: %v", err)
	}

	// Drop code blocks, they add noise to narration context
	doc.Find("pre").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	return strings.Join(strings.Fields(text), " "), nil
}
