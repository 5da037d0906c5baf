package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/anacrolix/torrent"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/oshokin/archburn/internal/logger"
)

const (
	// uploadBurst lets a single 16KiB request chunk through the trickle limiter.
	uploadBurst = 256 << 10
	// clientLoggerName names messages emitted by the torrent client itself.
	clientLoggerName = "torrent"
)

// errStalled is returned when no payload byte arrived for the stall timeout.
var errStalled = errors.New("torrent transfer stalled")

// Options tunes the torrent client.
type Options struct {
	// UploadRateLimit caps uploads in bytes per second during the download.
	UploadRateLimit int
	// ListenPort is the peer port; 0 picks a random free port.
	ListenPort int
	// ProgressInterval is how often progress is logged and completion polled.
	ProgressInterval time.Duration
	// StallTimeout aborts a transfer without progress for this long.
	StallTimeout time.Duration
	// DisableDHT turns off DHT peer discovery.
	DisableDHT bool
}

// TorrentDownloader downloads single-file torrents with anacrolix/torrent.
type TorrentDownloader struct {
	// opts tunes every client the downloader creates.
	opts Options
}

// NewTorrentDownloader creates a downloader.
func NewTorrentDownloader(opts Options) *TorrentDownloader {
	return &TorrentDownloader{opts: opts}
}

// Download retrieves the payload of d into destDir and returns its path.
// The client is closed before returning, so nothing keeps seeding.
func (t *TorrentDownloader) Download(ctx context.Context, d *Descriptor, destDir string) (string, error) {
	client, err := torrent.NewClient(t.clientConfig(ctx, destDir))
	if err != nil {
		return "", fmt.Errorf("start torrent client: %w", err)
	}

	defer client.Close()

	tor, err := client.AddTorrent(d.MetaInfo)
	if err != nil {
		return "", fmt.Errorf("add torrent: %w", err)
	}

	// Drop runs before Close, ending the swarm membership first.
	defer tor.Drop()

	select {
	case <-tor.GotInfo():
	case <-ctx.Done():
		return "", ctx.Err()
	}

	logger.InfoKV(ctx, "Starting torrent transfer", "name", d.Name(), "bytes", d.Length())

	tor.DownloadAll()

	if err = t.wait(ctx, tor); err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Torrent transfer complete, seeding stopped", "name", d.Name())

	return filepath.Join(destDir, d.Name()), nil
}

// clientConfig builds a non-seeding client configuration storing data in dir.
// The client logs through the logger carried by ctx.
func (t *TorrentDownloader) clientConfig(ctx context.Context, dir string) *torrent.ClientConfig {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = dir
	cfg.Seed = false
	cfg.NoDHT = t.opts.DisableDHT
	cfg.ListenPort = t.opts.ListenPort
	cfg.UploadRateLimiter = rate.NewLimiter(rate.Limit(t.opts.UploadRateLimit), uploadBurst)
	cfg.Slogger = slog.New(zapslog.NewHandler(clientLogCore(ctx), zapslog.WithName(clientLoggerName)))

	return cfg
}

// clientLogCore returns the core for client messages. Outside debug mode only
// errors pass: announce and DHT warnings are routine for a short-lived client.
func clientLogCore(ctx context.Context) zapcore.Core {
	core := logger.FromContext(ctx).Desugar().Core()
	if logger.Level() <= zapcore.DebugLevel {
		return core
	}

	quiet, err := zapcore.NewIncreaseLevelCore(core, zapcore.ErrorLevel)
	if err != nil {
		// The core is already stricter than error.
		return core
	}

	return quiet
}

// wait polls until the torrent is complete, logging progress on every tick.
func (t *TorrentDownloader) wait(ctx context.Context, tor *torrent.Torrent) error {
	interval := t.opts.ProgressInterval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		total        = tor.Length()
		lastBytes    = int64(-1)
		lastProgress = time.Now()
	)

	for {
		completed := tor.BytesCompleted()
		if completed >= total {
			return nil
		}

		if completed != lastBytes {
			lastBytes = completed
			lastProgress = time.Now()

			logger.InfoKV(ctx, "Downloading",
				"percent", fmt.Sprintf("%.1f", float64(completed)*100/float64(total)),
				"completed", completed,
				"total", total,
				"peers", tor.Stats().ActivePeers)
		} else if t.opts.StallTimeout > 0 && time.Since(lastProgress) > t.opts.StallTimeout {
			return fmt.Errorf("%w: no progress for %s", errStalled, t.opts.StallTimeout)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
