package githubrepo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abhay-lal/Visper/internal/models"
	"golang.org/x/time/rate"
)

const defaultAPIBaseURL = "https://api.github.com"

// Content sentinels stored in place of real file content.
const (
	BinaryContentSentinel = "[binary content not included]"
	DecodeFailedSentinel  = "[content could not be decoded]"
)

var (
	// ErrRepoNotFound maps a GitHub 404.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRateLimited maps a GitHub 403 (rate limit or missing permission).
	ErrRateLimited = errors.New("github rate limit exceeded or access denied")
)

// binaryExtensions are never fetched or decoded.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".svg": true, ".bmp": true, ".webp": true, ".tiff": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".jar": true, ".war": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".class": true, ".pyc": true, ".o": true, ".obj": true, ".bin": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".mkv": true, ".lock": true,
}

type FetcherConfig struct {
	Token      string
	APIBaseURL string
	RateLimit  float64 // requests per second against the GitHub API
	Timeout    time.Duration
	PerPage    int
	OnProgress func(path string) // progress callback per visited entry
}

// Fetcher walks a repository tree depth-first through the GitHub contents
// API and returns decoded text files.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config FetcherConfig) (*Fetcher, error) {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.PerPage == 0 {
		config.PerPage = 100
	}

	if _, err := url.Parse(config.APIBaseURL); err != nil {
		return nil, err
	}

	return &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func New() *Fetcher {
	f, _ := NewWithConfig(FetcherConfig{})
	return f
}

// contentEntry is the subset of the GitHub contents API response we use.
type contentEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FetchRepository aggregates a flat list of files starting at the
// repository root. Binary-extension files are reported with a sentinel
// content and are never downloaded. No call is retried; upstream errors
// are surfaced to the caller.
func (f *Fetcher) FetchRepository(ctx context.Context, owner, repo string) ([]models.FetchedFile, error) {
	var files []models.FetchedFile
	if err := f.fetchDir(ctx, owner, repo, "", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (f *Fetcher) fetchDir(ctx context.Context, owner, repo, dir string, files *[]models.FetchedFile) error {
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?per_page=%d&page=%d",
			f.config.APIBaseURL, owner, repo, dir, f.config.PerPage, page)

		body, err := f.get(ctx, endpoint, "application/vnd.github+json")
		if err != nil {
			return err
		}

		var entries []contentEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return fmt.Errorf("failed to decode directory listing for %q: %v", dir, err)
		}

		for _, entry := range entries {
			if f.config.OnProgress != nil {
				f.config.OnProgress(entry.Path)
			}

			switch entry.Type {
			case "dir":
				if err := f.fetchDir(ctx, owner, repo, entry.Path, files); err != nil {
					return err
				}
			case "file":
				file := models.FetchedFile{
					Path: entry.Path,
					Name: entry.Name,
					Type: entry.Type,
					Size: entry.Size,
				}
				if isBinaryPath(entry.Path) {
					file.Content = BinaryContentSentinel
				} else {
					file.Content = f.fetchContent(ctx, owner, repo, entry.Path)
				}
				*files = append(*files, file)
			}
		}

		if len(entries) < f.config.PerPage {
			return nil
		}
	}
}

// fetchContent downloads and base64-decodes a single file. Decode failures
// substitute a sentinel rather than failing the walk.
func (f *Fetcher) fetchContent(ctx context.Context, owner, repo, filePath string) string {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", f.config.APIBaseURL, owner, repo, filePath)

	body, err := f.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return DecodeFailedSentinel
	}

	var entry contentEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return DecodeFailedSentinel
	}
	if entry.Encoding != "base64" {
		return DecodeFailedSentinel
	}

	raw := strings.ReplaceAll(entry.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return DecodeFailedSentinel
	}
	if !utf8.Valid(decoded) {
		return DecodeFailedSentinel
	}

	return string(decoded)
}

// get performs one rate-limited GitHub API request and maps upstream
// status codes onto the error taxonomy.
func (f *Fetcher) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if f.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, endpoint)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("github api error: status %d for %s", resp.StatusCode, endpoint)
	}

	return io.ReadAll(resp.Body)
}

func isBinaryPath(p string) bool {
	return binaryExtensions[strings.ToLower(path.Ext(p))]
}
