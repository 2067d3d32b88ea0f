package downloader

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"am/internal/domain"
)

const defaultReleaseHost = "https://github.com"

// HTTPDownloader downloads release archives and verifies them against the
// release's sha256sums.txt.
type HTTPDownloader struct {
	client    *http.Client
	baseURL   string
	tempDir   string
	userAgent string
	logger    domain.Logger
}

// NewHTTPDownloader creates a downloader that writes temp files in tempDir.
// tempDir should be on the same filesystem as the install cache.
func NewHTTPDownloader(client *http.Client, tempDir, userAgent string, logger domain.Logger) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{
		client:    client,
		baseURL:   defaultReleaseHost,
		tempDir:   tempDir,
		userAgent: userAgent,
		logger:    logger,
	}
}

// WithBaseURL points the downloader at a different release host.
func (d *HTTPDownloader) WithBaseURL(base string) *HTTPDownloader {
	d.baseURL = strings.TrimRight(base, "/")
	return d
}

// Download fetches the archive for target, hashing it while it is written,
// then checks the digest against the release checksum file. On any error
// the temp file has already been removed.
func (d *HTTPDownloader) Download(ctx context.Context, target domain.InstallTarget) (string, func(), error) {
	url := target.DownloadURL(d.baseURL)
	d.logger.Info("downloading release", "repo", target.Repo, "version", target.Version, "url", url)

	resp, err := d.get(ctx, url)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.tempDir, ".download-"+target.CacheKey()+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	hasher := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		cleanup()
		return "", nil, &domain.DownloadError{URL: url, Err: fmt.Errorf("write archive: %w", copyErr)}
	}
	if closeErr != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", closeErr)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	d.logger.Debug("archive downloaded", "path", tmpPath, "bytes", written, "sha256", actual)

	expected, err := d.expectedChecksum(ctx, target)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if !strings.EqualFold(expected, actual) {
		cleanup()
		return "", nil, &domain.IntegrityError{
			Archive:  target.ArchiveName(),
			Expected: expected,
			Actual:   actual,
			Reason:   domain.ErrChecksumMismatch,
		}
	}

	d.logger.Info("checksum verified", "archive", target.ArchiveName())
	return tmpPath, cleanup, nil
}

// expectedChecksum fetches sha256sums.txt and returns the digest listed for
// the target archive.
func (d *HTTPDownloader) expectedChecksum(ctx context.Context, target domain.InstallTarget) (string, error) {
	url := target.ChecksumURL(d.baseURL)
	resp, err := d.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sums, err := ParseChecksums(resp.Body)
	if err != nil {
		return "", &domain.DownloadError{URL: url, Err: fmt.Errorf("read checksum file: %w", err)}
	}
	sum, ok := sums[target.ArchiveName()]
	if !ok {
		return "", &domain.IntegrityError{Archive: target.ArchiveName(), Reason: domain.ErrChecksumNotListed}
	}
	return sum, nil
}

func (d *HTTPDownloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.DownloadError{URL: url, Err: err}
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &domain.DownloadError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, &domain.DownloadError{URL: url, Err: fmt.Errorf("not found (HTTP 404); check the version exists for this platform")}
		}
		return nil, &domain.DownloadError{URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return resp, nil
}

// ParseChecksums reads "<hex>  <filename>" lines. A leading '*' on the file
// name (binary mode marker) is ignored.
func ParseChecksums(r io.Reader) (map[string]string, error) {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		sums[strings.TrimPrefix(fields[1], "*")] = strings.ToLower(fields[0])
	}
	return sums, scanner.Err()
}
