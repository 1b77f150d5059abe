// Package poolfetch downloads calibrated pool snapshots published over HTTP
// by the calibration job, verifying them against a checksums file.
package poolfetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gioe/aiq/internal/itempool"
)

var (
	ErrChecksum   = errors.New("checksum verification failed")
	ErrNoChecksum = errors.New("no checksum listed")
)

// DefaultTimeout bounds a whole fetch.
const DefaultTimeout = 30 * time.Second

// FetchInput names a published snapshot.
type FetchInput struct {
	// URL of the pool document: plain JSON, gzipped JSON (.gz) or a tarball
	// (.tar.gz, .tgz) holding one .json file.
	URL string

	// ChecksumsURL points at a "<sha256>  <file name>" listing. Empty skips
	// verification.
	ChecksumsURL string
}

type FetchProgress struct {
	Stage   string
	Message string
}

// Fetcher downloads and decodes pool snapshots.
type Fetcher struct {
	client *http.Client
	filter itempool.CalibrationFilter
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithFilter screens decoded items against calibration thresholds.
func WithFilter(filter itempool.CalibrationFilter) Option {
	return func(f *Fetcher) { f.filter = filter }
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{client: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsRemote reports whether src is an HTTP(S) URL rather than a local path.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads, verifies and decodes the snapshot named by in. progress
// may be nil.
func (f *Fetcher) Fetch(ctx context.Context, in *FetchInput, progress func(FetchProgress)) (*itempool.Decoded, error) {
	if progress == nil {
		progress = func(FetchProgress) {}
	}
	name, err := fileName(in.URL)
	if err != nil {
		return nil, err
	}

	progress(FetchProgress{Stage: "download", Message: fmt.Sprintf("Downloading %s...", name)})
	data, err := f.downloadFile(ctx, in.URL)
	if err != nil {
		return nil, fmt.Errorf("download pool: %w", err)
	}

	if in.ChecksumsURL != "" {
		progress(FetchProgress{Stage: "verify", Message: "Verifying checksum..."})
		checksumsData, err := f.downloadFile(ctx, in.ChecksumsURL)
		if err != nil {
			return nil, fmt.Errorf("download checksums: %w", err)
		}
		expected, ok := parseChecksums(checksumsData)[name]
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoChecksum, name)
		}
		if err := verifyChecksum(data, expected); err != nil {
			return nil, err
		}
	}

	doc, err := extractDocument(data, name)
	if err != nil {
		return nil, fmt.Errorf("extract pool: %w", err)
	}

	progress(FetchProgress{Stage: "decode", Message: "Validating items..."})
	dec, err := itempool.Decode(bytes.NewReader(doc), f.filter)
	if err != nil {
		return nil, err
	}
	progress(FetchProgress{Stage: "done", Message: fmt.Sprintf("Fetched pool %s", dec.Snapshot.Version)})
	return dec, nil
}

func (f *Fetcher) downloadFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

func fileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse pool url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return "", fmt.Errorf("pool url %q has no file name", raw)
	}
	return name, nil
}

func parseChecksums(data []byte) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		result[strings.TrimPrefix(parts[1], "*")] = strings.ToLower(parts[0])
	}
	return result
}

func verifyChecksum(data []byte, expectedHex string) error {
	h := sha256.Sum256(data)
	actual := hex.EncodeToString(h[:])
	if actual != expectedHex {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksum, expectedHex, actual)
	}
	return nil
}

// extractDocument unpacks the pool JSON according to the file name.
func extractDocument(data []byte, name string) ([]byte, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractFromTarGz(data)
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		return io.ReadAll(gz)
	default:
		return data, nil
	}
}

func extractFromTarGz(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if strings.HasSuffix(hdr.Name, ".json") && hdr.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
	return nil, errors.New("no .json document in archive")
}

// Provider fetches the pool on every call. It implements itempool.Provider.
type Provider struct {
	Fetcher *Fetcher
	Input   FetchInput
	Logger  *slog.Logger
}

// LoadPool implements itempool.Provider.
func (p *Provider) LoadPool(ctx context.Context) (*itempool.Pool, error) {
	dec, err := p.Fetcher.Fetch(ctx, &p.Input, nil)
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, rej := range dec.Rejected {
		logger.Warn("item refused", "url", p.Input.URL, "error", rej)
	}
	return itempool.NewPool(dec.Snapshot)
}
