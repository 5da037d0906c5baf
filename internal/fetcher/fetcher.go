// Package fetcher performs the plain HTTP requests of the pipeline: the
// release index page, auxiliary release files and OpenPGP key lookups.
//
// Requests are single attempts. A failed fetch is reported to the caller,
// which treats it as fatal for its stage.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lxc/incus/v6/shared/revert"

	"github.com/oshokin/archburn/internal/version"
)

const (
	// maxRedirects bounds the redirect chain of a single request.
	maxRedirects = 10
	// DefaultBodyLimit caps in-memory bodies such as index pages and keys.
	DefaultBodyLimit int64 = 8 << 20
)

var (
	// ErrBadHTTPStatus is returned for any non-200 response.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// ErrNotFound is returned for 404 responses, a normal outcome of key lookups.
	ErrNotFound = errors.New("not found")
	// errBodyTooLarge is returned when a body exceeds the caller's limit.
	errBodyTooLarge = errors.New("response body exceeds limit")
	// errTooManyRedirects is returned from the redirect policy.
	errTooManyRedirects = errors.New("too many redirects")
)

// Client is a thin HTTP client with a fixed User-Agent.
type Client struct {
	// httpClient executes the requests.
	httpClient *http.Client
	// userAgent is sent with every request.
	userAgent string
}

// New creates a client whose requests are bounded by timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}

				return nil
			},
		},
		userAgent: version.UserAgent(),
	}
}

// Get fetches rawURL into memory, failing when the body exceeds limit bytes.
func (c *Client) Get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	resp, err := c.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if limit <= 0 {
		limit = DefaultBodyLimit
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s: %w (%d bytes)", rawURL, errBodyTooLarge, limit)
	}

	return body, nil
}

// DownloadToFile streams rawURL into destPath. The body is written to a
// temporary sibling file first and renamed into place once complete.
func (c *Client) DownloadToFile(ctx context.Context, rawURL, destPath string) error {
	resp, err := c.open(ctx, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if err = os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".part"

	tmpFile, err := os.Create(filepath.Clean(tmpPath))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	reverter := revert.New()
	defer reverter.Fail()

	reverter.Add(func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	})

	if _, err = io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	reverter.Success()

	return nil
}

// open issues a GET request and checks the status code.
func (c *Client) open(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	default:
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", rawURL, resp.Status, ErrBadHTTPStatus)
	}
}
