package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/archburn/internal/logger"
)

const (
	// BlockSize is the fixed size of every raw write.
	BlockSize = 4 << 20
	// progressEvery logs progress once per this many blocks.
	progressEvery = 64
)

// rawCopy writes the image onto target in BlockSize chunks and syncs it.
// The image is opened read-only.
func rawCopy(ctx context.Context, image, target string) error {
	src, err := os.OpenFile(filepath.Clean(image), os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	stat, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}

	dst, err := os.OpenFile(filepath.Clean(target), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}

	defer func() {
		_ = dst.Close()
	}()

	total := stat.Size()

	var written int64

	for block := 1; ; block++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		n, err := io.CopyN(dst, src, BlockSize)
		written += n

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("write block %d: %w", block, err)
		}

		if block%progressEvery == 0 {
			logger.InfoKV(ctx, "Writing",
				"percent", fmt.Sprintf("%.1f", float64(written)*100/float64(total)),
				"written", written,
				"total", total)
		}
	}

	if written != total {
		return fmt.Errorf("short write: %d of %d bytes", written, total)
	}

	logger.InfoKV(ctx, "Flushing device", "device", target)

	if err = dst.Sync(); err != nil {
		return fmt.Errorf("sync device: %w", err)
	}

	return dst.Close()
}
