// Package resolver determines the newest published release version from the
// release index page.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/logger"
)

// indexPageLimit caps the size of the index page held in memory.
const indexPageLimit = 4 << 20

var errNoVersion = errors.New("no release version found on index page")

// PageFetcher retrieves a page into memory.
type PageFetcher interface {
	Get(ctx context.Context, rawURL string, limit int64) ([]byte, error)
}

// Resolve fetches indexURL and returns the greatest release version it lists.
// Every failure wraps release.ErrResolution.
func Resolve(ctx context.Context, fetcher PageFetcher, indexURL string) (release.Version, error) {
	logger.InfoKV(ctx, "Fetching release index", "url", indexURL)

	page, err := fetcher.Get(ctx, indexURL, indexPageLimit)
	if err != nil {
		return "", fmt.Errorf("%w: fetch index: %w", release.ErrResolution, err)
	}

	versions := release.FindVersions(string(page))
	logger.DebugKV(ctx, "Parsed release index", "candidates", len(versions))

	latest, ok := release.Latest(versions)
	if !ok {
		return "", fmt.Errorf("%w: %s: %w", release.ErrResolution, indexURL, errNoVersion)
	}

	logger.InfoKV(ctx, "Resolved latest release", "version", latest)

	return latest, nil
}
