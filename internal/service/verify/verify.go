// Package verify implements the verification stage: the checksum manifest
// check followed by the detached OpenPGP signature check.
package verify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/oshokin/archburn/internal/checksum"
	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/logger"
)

// KeyResolver finds the signing keys of an identity.
type KeyResolver interface {
	// Resolve returns the keys carrying a user ID for email.
	Resolve(ctx context.Context, email string) (openpgp.EntityList, error)
}

// Input names the files the stage checks.
type Input struct {
	// ArtifactPath is the image in the working directory.
	ArtifactPath string
	// ManifestPath is the checksum manifest.
	ManifestPath string
	// SignaturePath is the detached signature of the image.
	SignaturePath string
}

// Verifier runs both checks in order.
type Verifier struct {
	// algorithm is the manifest hash algorithm.
	algorithm string
	// identity is the email of the signer.
	identity string
	// keys resolves the signer's public key.
	keys KeyResolver
}

// New creates a verifier.
func New(algorithm, identity string, keys KeyResolver) *Verifier {
	return &Verifier{
		algorithm: algorithm,
		identity:  identity,
		keys:      keys,
	}
}

// Verify checks the checksum first and the signature second.
// A checksum failure returns before any key lookup happens.
func (v *Verifier) Verify(ctx context.Context, in Input) error {
	ctx = logger.WithName(ctx, "verify")

	logger.InfoKV(ctx, "Checking checksum", "algorithm", v.algorithm, "file", filepath.Base(in.ArtifactPath))

	if err := checksum.VerifyFile(in.ArtifactPath, in.ManifestPath, v.algorithm); err != nil {
		return fmt.Errorf("%w: %w", release.ErrIntegrity, err)
	}

	logger.InfoKV(ctx, "Checking signature", "identity", v.identity)

	signer, err := v.checkSignature(ctx, in)
	if err != nil {
		return fmt.Errorf("%w: %w", release.ErrSignature, err)
	}

	logger.InfoKV(ctx, "Signature is valid", "signer", signer)

	return nil
}

// checkSignature resolves the key and checks the detached signature, armored or binary.
func (v *Verifier) checkSignature(ctx context.Context, in Input) (string, error) {
	keys, err := v.keys.Resolve(ctx, v.identity)
	if err != nil {
		return "", fmt.Errorf("resolve key: %w", err)
	}

	artifact, err := os.Open(filepath.Clean(in.ArtifactPath))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = artifact.Close()
	}()

	signature, err := os.Open(filepath.Clean(in.SignaturePath))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = signature.Close()
	}()

	signer, err := openpgp.CheckArmoredDetachedSignature(keys, artifact, signature, nil)
	if err != nil {
		if err = rewind(artifact, signature); err != nil {
			return "", err
		}

		signer, err = openpgp.CheckDetachedSignature(keys, artifact, signature, nil)
	}

	if err != nil {
		return "", fmt.Errorf("check detached signature: %w", err)
	}

	return fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint), nil
}

// rewind seeks every file back to its start.
func rewind(files ...io.Seeker) error {
	for _, f := range files {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	return nil
}
