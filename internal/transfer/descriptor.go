package transfer

import (
	"context"
	"crypto/sha1" //nolint:gosec // BitTorrent v1 piece hashes are SHA-1 by definition.
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/anacrolix/torrent/metainfo"
)

var (
	// ErrPieceMismatch is returned when a piece of a local file does not match the descriptor.
	ErrPieceMismatch = errors.New("piece hash mismatch")
	// ErrLengthMismatch is returned when a local file has a different size than the descriptor.
	ErrLengthMismatch = errors.New("length mismatch")
	// errMultiFile is returned for descriptors that describe more than one file.
	errMultiFile = errors.New("torrent describes more than one file")
	// errMalformed is returned for descriptors with inconsistent piece data.
	errMalformed = errors.New("malformed torrent info")
)

// Descriptor is a parsed single-file torrent descriptor.
type Descriptor struct {
	// MetaInfo is the decoded .torrent file.
	MetaInfo *metainfo.MetaInfo
	// Info is the decoded info dictionary.
	Info metainfo.Info
}

// LoadDescriptor reads and validates a .torrent file.
func LoadDescriptor(path string) (*Descriptor, error) {
	mi, err := metainfo.LoadFromFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("load torrent %s: %w", path, err)
	}

	return NewDescriptor(mi)
}

// NewDescriptor validates an already decoded torrent.
func NewDescriptor(mi *metainfo.MetaInfo) (*Descriptor, error) {
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("decode torrent info: %w", err)
	}

	if len(info.Files) > 0 {
		return nil, fmt.Errorf("%s: %w", info.Name, errMultiFile)
	}

	if info.PieceLength <= 0 || info.Length <= 0 || len(info.Pieces)%sha1.Size != 0 {
		return nil, fmt.Errorf("%s: %w", info.Name, errMalformed)
	}

	wantPieces := (info.Length + info.PieceLength - 1) / info.PieceLength
	if int64(len(info.Pieces)/sha1.Size) != wantPieces {
		return nil, fmt.Errorf("%s: %w: %d pieces for %d bytes", info.Name, errMalformed, len(info.Pieces)/sha1.Size, info.Length)
	}

	return &Descriptor{MetaInfo: mi, Info: info}, nil
}

// Name returns the payload filename.
func (d *Descriptor) Name() string {
	return d.Info.Name
}

// Length returns the payload size in bytes.
func (d *Descriptor) Length() int64 {
	return d.Info.Length
}

// NumPieces returns the number of pieces of the payload.
func (d *Descriptor) NumPieces() int {
	return len(d.Info.Pieces) / sha1.Size
}

// VerifyFile hashes path piece by piece and compares every piece with the descriptor.
func (d *Descriptor) VerifyFile(ctx context.Context, path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat payload: %w", err)
	}

	if stat.Size() != d.Length() {
		return fmt.Errorf("%s: %w: have %d bytes, want %d", path, ErrLengthMismatch, stat.Size(), d.Length())
	}

	buf := make([]byte, d.Info.PieceLength)

	for piece := range d.NumPieces() {
		if err = ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read piece %d: %w", piece, err)
		}

		sum := sha1.Sum(buf[:n]) //nolint:gosec // See import.
		want := d.Info.Pieces[piece*sha1.Size : (piece+1)*sha1.Size]

		if string(sum[:]) != string(want) {
			return fmt.Errorf("%s: %w at piece %d", path, ErrPieceMismatch, piece)
		}
	}

	return nil
}
