package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/fetcher"
	"github.com/oshokin/archburn/internal/platform"
	"github.com/oshokin/archburn/internal/repository/state"
	"github.com/oshokin/archburn/internal/service/acquire"
	"github.com/oshokin/archburn/internal/service/installer"
	"github.com/oshokin/archburn/internal/service/verify"
	"github.com/oshokin/archburn/internal/transfer"
)

const (
	testVersion  = "2025.03.11"
	testIdentity = "pierre@archlinux.org"
	testIndex    = `<a href="2024.11.01/">2024.11.01/</a>
<a href="2025.03.11/">2025.03.11/</a>
<a href="2025.02.15/">2025.02.15/</a>
<a href="latest/">latest/</a>`
)

// fakeDownloader writes the payload instead of joining a swarm.
type fakeDownloader struct {
	payload []byte
	calls   atomic.Int32
}

// Download writes the payload under the descriptor name.
func (f *fakeDownloader) Download(_ context.Context, d *transfer.Descriptor, destDir string) (string, error) {
	f.calls.Add(1)

	path := filepath.Join(destDir, d.Name())

	return path, os.WriteFile(path, f.payload, 0o600)
}

// staticKeys resolves every identity to one entity.
type staticKeys struct {
	entity *openpgp.Entity
}

// Resolve returns the entity.
func (s staticKeys) Resolve(context.Context, string) (openpgp.EntityList, error) {
	return openpgp.EntityList{s.entity}, nil
}

// recordingInstaller remembers the image it was offered.
type recordingInstaller struct {
	image string
}

// Run records image and reports a write.
func (r *recordingInstaller) Run(_ context.Context, image string) (installer.Outcome, error) {
	r.image = image

	return installer.OutcomeWritten, nil
}

// world is a mirror, a home directory and a runner wired to both.
type world struct {
	cfg        *config.Config
	payload    []byte
	manifest   []byte
	downloader *fakeDownloader
	records    *state.FileRepository
	deps       Dependencies
	tempRoot   string
}

// newWorld serves a signed release and prepares an empty home directory.
func newWorld(t *testing.T) *world {
	t.Helper()

	w := &world{
		payload:  bytes.Repeat([]byte("arch"), 30_000),
		tempRoot: t.TempDir(),
	}

	artifact := release.NewArtifact(testVersion)

	src := filepath.Join(t.TempDir(), artifact.Filename)
	require.NoError(t, os.WriteFile(src, w.payload, 0o600))

	info := metainfo.Info{PieceLength: 32 << 10}
	require.NoError(t, info.BuildFromFilePath(src))

	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{InfoBytes: infoBytes}

	var torrentFile bytes.Buffer
	require.NoError(t, mi.Write(&torrentFile))

	signer, err := openpgp.NewEntity("Pierre", "", testIdentity, nil)
	require.NoError(t, err)

	var signature bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&signature, signer, bytes.NewReader(w.payload), nil))

	sum := sha256.Sum256(w.payload)
	w.manifest = []byte(hex.EncodeToString(sum[:]) + "  " + artifact.Filename + "\n")

	mux := http.NewServeMux()
	mux.HandleFunc("/iso/", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write([]byte(testIndex))
	})
	mux.HandleFunc("/releng/"+testVersion+"/torrent", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(torrentFile.Bytes())
	})
	mux.HandleFunc("/iso/"+testVersion+"/"+artifact.Filename+".sig", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(signature.Bytes())
	})
	mux.HandleFunc("/iso/"+testVersion+"/sha256sums.txt", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(w.manifest)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	home := t.TempDir()

	cfg := config.Default()
	cfg.IndexURL = srv.URL + "/iso/"
	cfg.TorrentURL = srv.URL + "/releng/{version}/torrent"
	cfg.SignatureURL = srv.URL + "/iso/{version}/{filename}.sig"
	cfg.ChecksumURL = srv.URL + "/iso/{version}/{manifest}"
	cfg.DownloadsDir = filepath.Join(home, "Downloads")
	cfg.CacheDir = filepath.Join(home, ".cache", "archlinux")

	w.cfg = cfg
	w.downloader = &fakeDownloader{payload: w.payload}
	w.records = state.NewFileRepository(filepath.Join(cfg.CacheDir, state.DefaultFilename))

	keys := staticKeys{entity: signer}
	client := fetcher.New(5 * time.Second)

	w.deps = Dependencies{
		Pages:    client,
		Acquirer: acquire.New(cfg, client, w.downloader),
		Verifier: verify.New(cfg.ChecksumAlgorithm, cfg.SigningIdentity, keys),
		Records:  w.records,
	}

	return w
}

// runner returns a runner whose working directories live under tempRoot.
func (w *world) runner() *Runner {
	r := New(w.cfg, w.deps)
	r.tempDir = w.tempRoot

	return r
}

// requireNoLeftovers checks that neither a working directory nor the run marker survived.
func (w *world) requireNoLeftovers(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(w.tempRoot)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoFileExists(t, filepath.Join(w.cfg.CacheDir, MarkerFilename))
}

// TestRun_EndToEnd checks a fresh run and an idempotent second run over the cache.
func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	w := newWorld(t)

	report, err := w.runner().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, release.Version(testVersion), report.Record.Version)
	require.False(t, report.Record.FromCache)
	require.Equal(t, installer.OutcomeDeclined, report.Outcome)

	published, err := os.ReadFile(filepath.Join(w.cfg.DownloadsDir, "archlinux-2025.03.11-x86_64.iso"))
	require.NoError(t, err)
	require.Equal(t, w.payload, published)

	cached, err := os.ReadFile(filepath.Join(w.cfg.CacheDir, "archlinux-2025.03.11-x86_64.iso"))
	require.NoError(t, err)
	require.Equal(t, published, cached)

	record, err := w.records.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, report.Record.SHA256, record.SHA256)

	w.requireNoLeftovers(t)

	// Second run: the cache serves the image, nothing is downloaded again.
	report, err = w.runner().Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Record.FromCache)
	require.EqualValues(t, 1, w.downloader.calls.Load())

	w.requireNoLeftovers(t)
}

// TestRun_ChecksumMismatch checks that a bad manifest aborts before publication.
func TestRun_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	copy(w.manifest, "0000")

	_, err := w.runner().Run(context.Background())
	require.ErrorIs(t, err, release.ErrIntegrity)
	require.Equal(t, release.ErrIntegrity, release.StageOf(err))

	require.NoDirExists(t, w.cfg.DownloadsDir)
	require.NoFileExists(t, filepath.Join(w.cfg.CacheDir, "archlinux-2025.03.11-x86_64.iso"))

	w.requireNoLeftovers(t)
}

// TestRun_Installer checks that the installer receives the published image.
func TestRun_Installer(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	inst := &recordingInstaller{}
	w.deps.Installer = inst

	report, err := w.runner().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, installer.OutcomeWritten, report.Outcome)
	require.Equal(t, report.Record.PublishedPath, inst.image)
}

// TestRun_ResolutionFailure checks that an index without versions is a resolution error.
func TestRun_ResolutionFailure(t *testing.T) {
	t.Parallel()

	w := newWorld(t)

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write([]byte("<html>maintenance</html>"))
	}))
	t.Cleanup(srv.Close)

	w.cfg.IndexURL = srv.URL

	_, err := w.runner().Run(context.Background())
	require.ErrorIs(t, err, release.ErrResolution)

	w.requireNoLeftovers(t)
}

// TestLoadConfig checks that flags win over the environment defaults.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := LoadConfig(&Options{
		DownloadsDir: filepath.Join(dir, "iso"),
		CacheDir:     filepath.Join(dir, "cache"),
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "iso"), cfg.DownloadsDir)
	require.Equal(t, filepath.Join(dir, "cache"), cfg.CacheDir)
	require.Equal(t, config.DefaultIndexURL, cfg.IndexURL)

	_, err = LoadConfig(&Options{ConfigPath: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}

// TestNewInstaller_Headless checks that --no-install and a non-terminal stdin disable the installer.
func TestNewInstaller_Headless(t *testing.T) {
	t.Parallel()

	inst, err := newInstaller(context.Background(), platform.Info{OS: platform.Linux}, &Options{NoInstall: true})
	require.NoError(t, err)
	require.Nil(t, inst)

	inst, err = newInstaller(context.Background(), platform.Info{OS: "plan9"}, &Options{})
	require.NoError(t, err)
	require.Nil(t, inst)
}
