package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"am/internal/domain"
)

const defaultAPIBaseURL = "https://api.github.com"

var versionRe = regexp.MustCompile(`^\d+\.\d+\.\d+([-+][0-9A-Za-z.-]+)?$`)

// latestRelease is the subset of the GitHub release document we need.
type latestRelease struct {
	TagName string `json:"tag_name"`
}

// Resolver resolves the latest release version of a GitHub repository.
type Resolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewResolver creates a Resolver that uses client for requests. A nil
// client gets a 15 second timeout.
func NewResolver(client *http.Client, userAgent string) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{client: client, baseURL: defaultAPIBaseURL, userAgent: userAgent}
}

// Latest returns the version of the release tagged "latest", with any
// leading "v" removed.
func (r *Resolver) Latest(ctx context.Context, owner, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", r.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("resolve latest %s: %w", repo, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &domain.DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &domain.DownloadError{URL: url, Err: fmt.Errorf("release API returned HTTP %d", resp.StatusCode)}
	}

	var result latestRelease
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &domain.DownloadError{URL: url, Err: fmt.Errorf("invalid API response: %w", err)}
	}

	version := NormalizeVersion(result.TagName)
	if !versionRe.MatchString(version) {
		return "", &domain.DownloadError{URL: url, Err: fmt.Errorf("unexpected tag format %q", result.TagName)}
	}
	return version, nil
}

// NormalizeVersion trims whitespace and a leading "v".
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}
