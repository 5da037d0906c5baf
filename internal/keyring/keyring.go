package keyring

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/archburn/internal/logger"
)

const (
	// keyBodyLimit caps a single key response.
	keyBodyLimit = 1 << 20
	// keyFileMode is the permission of cached key files.
	keyFileMode = 0o644
	// keyDirMode is the permission of the key cache directory.
	keyDirMode = 0o755
)

var (
	// ErrKeyNotFound is returned when no source yields a key for the identity.
	ErrKeyNotFound = errors.New("public key not found")
	// errNoMatchingIdentity is returned when a key block lacks the requested user ID.
	errNoMatchingIdentity = errors.New("no key carries the requested identity")
	// errEmptyKeyring is returned for key blocks without any entity.
	errEmptyKeyring = errors.New("key block is empty")
)

// Fetcher downloads small documents.
type Fetcher interface {
	// Get returns the body of url, failing above limit bytes.
	Get(ctx context.Context, url string, limit int64) ([]byte, error)
}

// Resolver finds public keys for email identities.
type Resolver struct {
	// fetcher downloads key documents.
	fetcher Fetcher
	// dir holds cached keys, one armored file per identity.
	dir string
	// keyServer is the base URL of the VKS keyserver.
	keyServer string
}

// NewResolver creates a resolver caching keys under dir.
func NewResolver(fetcher Fetcher, dir, keyServer string) *Resolver {
	return &Resolver{
		fetcher:   fetcher,
		dir:       dir,
		keyServer: keyServer,
	}
}

// Resolve returns the keys carrying a user ID for email.
func (r *Resolver) Resolve(ctx context.Context, email string) (openpgp.EntityList, error) {
	ctx = logger.WithKV(ctx, "identity", email)

	keys, err := r.loadCached(email)
	if err == nil {
		logger.Debug(ctx, "Using cached public key")

		return keys, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Ignoring unusable cached key", "error", err)
	}

	urls, err := r.lookupURLs(email)
	if err != nil {
		return nil, err
	}

	for _, u := range urls {
		keys, err = r.fetch(ctx, u, email)
		if err != nil {
			logger.DebugKV(ctx, "Key lookup failed", "url", u, "error", err)

			continue
		}

		logger.InfoKV(ctx, "Public key found", "url", u, "fingerprint", fmt.Sprintf("%X", keys[0].PrimaryKey.Fingerprint))

		if err = r.store(email, keys); err != nil {
			logger.WarnKV(ctx, "Unable to cache public key", "error", err)
		}

		return keys, nil
	}

	return nil, fmt.Errorf("%s: %w", email, ErrKeyNotFound)
}

// lookupURLs returns the network sources in preference order.
func (r *Resolver) lookupURLs(email string) ([]string, error) {
	advanced, err := WKDAdvancedURL(email)
	if err != nil {
		return nil, err
	}

	direct, err := WKDDirectURL(email)
	if err != nil {
		return nil, err
	}

	urls := []string{advanced, direct}
	if r.keyServer != "" {
		urls = append(urls, VKSURL(r.keyServer, email))
	}

	return urls, nil
}

// fetch downloads a key block and keeps the entities matching email.
func (r *Resolver) fetch(ctx context.Context, url, email string) (openpgp.EntityList, error) {
	data, err := r.fetcher.Get(ctx, url, keyBodyLimit)
	if err != nil {
		return nil, err
	}

	return Parse(data, email)
}

// Path returns the cache file of email.
func (r *Resolver) Path(email string) string {
	return filepath.Join(r.dir, strings.ToLower(email)+".asc")
}

// loadCached reads the cached key of email.
func (r *Resolver) loadCached(email string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(r.Path(email))
	if err != nil {
		return nil, err
	}

	return Parse(data, email)
}

// store writes keys armored into the cache, replacing any previous file atomically.
func (r *Resolver) store(email string, keys openpgp.EntityList) error {
	var buf bytes.Buffer

	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err = key.Serialize(w); err != nil {
			return err
		}
	}

	if err = w.Close(); err != nil {
		return err
	}

	if err = os.MkdirAll(r.dir, keyDirMode); err != nil {
		return err
	}

	target := r.Path(email)

	// go-update swaps an existing file, so the target has to exist first.
	if _, err = os.Stat(target); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(target, nil, keyFileMode); err != nil {
			return err
		}
	}

	checksum := sha256.Sum256(buf.Bytes())

	err = goupdate.Apply(bytes.NewReader(buf.Bytes()), goupdate.Options{
		TargetPath: target,
		TargetMode: keyFileMode,
		Checksum:   checksum[:],
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return err
	}

	_ = os.Remove(target + ".old")

	return nil
}

// Parse reads an armored or binary key block and returns the entities with a user ID for email.
func Parse(data []byte, email string) (openpgp.EntityList, error) {
	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keys, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read key block: %w", err)
		}
	}

	if len(keys) == 0 {
		return nil, errEmptyKeyring
	}

	var matching openpgp.EntityList

	for _, key := range keys {
		if hasIdentity(key, email) {
			matching = append(matching, key)
		}
	}

	if len(matching) == 0 {
		return nil, fmt.Errorf("%s: %w", email, errNoMatchingIdentity)
	}

	return matching, nil
}

// hasIdentity reports whether key carries a user ID with email.
func hasIdentity(key *openpgp.Entity, email string) bool {
	for _, id := range key.Identities {
		if id.UserId != nil && strings.EqualFold(id.UserId.Email, email) {
			return true
		}
	}

	return false
}
