package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/voxlog/voxlog/internal/observe"
)

// ErrIntegrity is returned when a downloaded model fails its size or
// checksum validation. The partial download is removed before returning.
var ErrIntegrity = errors.New("engine: model integrity check failed")

// Progress reports download state to a progress callback.
type Progress struct {
	// Received is the number of bytes fetched so far.
	Received int64

	// Total is the expected total size, or 0 when the server did not report
	// a content length and no expected size was configured.
	Total int64
}

// ProgressFunc receives download progress updates. Called from the download
// goroutine; implementations should return quickly.
type ProgressFunc func(Progress)

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithExpectedSize sets the exact byte size the downloaded model must have.
func WithExpectedSize(n int64) DownloaderOption {
	return func(d *Downloader) { d.expectedSize = n }
}

// WithChecksum sets the hex-encoded SHA-256 the downloaded model must hash to.
func WithChecksum(hexSum string) DownloaderOption {
	return func(d *Downloader) { d.expectedSHA256 = hexSum }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) DownloaderOption {
	return func(d *Downloader) { d.onProgress = fn }
}

// WithHTTPClient overrides the HTTP client. Default has a 30 minute timeout
// sized for multi-hundred-MB model archives.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) { d.client = c }
}

// WithDownloadMetrics overrides the metrics instance.
func WithDownloadMetrics(m *observe.Metrics) DownloaderOption {
	return func(d *Downloader) { d.met = m }
}

// Downloader fetches a model archive to a local path on first use. Failed or
// interrupted downloads never leave a partial file behind: data streams into
// a .partial sibling that is renamed over the destination only after the
// size and checksum validate.
type Downloader struct {
	url            string
	dest           string
	expectedSize   int64
	expectedSHA256 string
	client         *http.Client
	onProgress     ProgressFunc
	met            *observe.Metrics
}

// NewDownloader creates a downloader that fetches url to dest.
func NewDownloader(url, dest string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		url:    url,
		dest:   dest,
		client: &http.Client{Timeout: 30 * time.Minute},
	}
	for _, o := range opts {
		o(d)
	}
	if d.met == nil {
		d.met = observe.DefaultMetrics()
	}
	return d
}

// Ensure makes the model available at the destination path, downloading it
// when absent. A cached file with the expected size is trusted without
// re-hashing.
func (d *Downloader) Ensure(ctx context.Context) error {
	if st, err := os.Stat(d.dest); err == nil {
		if d.expectedSize == 0 || st.Size() == d.expectedSize {
			return nil
		}
		slog.Warn("engine: cached model has wrong size, re-downloading",
			"path", d.dest, "size", st.Size(), "want", d.expectedSize)
	}
	return d.download(ctx)
}

func (d *Downloader) download(ctx context.Context) (err error) {
	if mkErr := os.MkdirAll(filepath.Dir(d.dest), 0o755); mkErr != nil {
		return fmt.Errorf("engine: create model dir: %w", mkErr)
	}

	partial := d.dest + ".partial"
	defer func() {
		if err != nil {
			os.Remove(partial)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return fmt.Errorf("engine: build model request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine: fetch model %s: %w", d.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine: fetch model %s: unexpected status %s", d.url, resp.Status)
	}

	total := d.expectedSize
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}
	if d.expectedSize > 0 && resp.ContentLength > 0 && resp.ContentLength != d.expectedSize {
		return fmt.Errorf("engine: model %s advertises %d bytes, want %d: %w",
			d.url, resp.ContentLength, d.expectedSize, ErrIntegrity)
	}

	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("engine: create %s: %w", partial, err)
	}

	hash := sha256.New()
	received, err := d.copyWithProgress(ctx, io.MultiWriter(out, hash), resp.Body, total)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("engine: download model: %w", err)
	}

	if d.expectedSize > 0 && received != d.expectedSize {
		return fmt.Errorf("engine: model is %d bytes, want %d: %w", received, d.expectedSize, ErrIntegrity)
	}
	if d.expectedSHA256 != "" {
		if sum := hex.EncodeToString(hash.Sum(nil)); sum != d.expectedSHA256 {
			return fmt.Errorf("engine: model sha256 %s, want %s: %w", sum, d.expectedSHA256, ErrIntegrity)
		}
	}

	if err := os.Rename(partial, d.dest); err != nil {
		return fmt.Errorf("engine: move model into place: %w", err)
	}
	slog.Info("engine: model downloaded", "path", d.dest, "bytes", received)
	return nil
}

// copyWithProgress streams body to w in fixed-size reads, reporting progress
// and byte counts as it goes and aborting promptly on context cancellation.
func (d *Downloader) copyWithProgress(ctx context.Context, w io.Writer, body io.Reader, total int64) (int64, error) {
	buf := make([]byte, 1<<20)
	var received int64
	for {
		if err := ctx.Err(); err != nil {
			return received, err
		}
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return received, werr
			}
			received += int64(n)
			d.met.ModelDownloadBytes.Add(ctx, int64(n))
			if d.onProgress != nil {
				d.onProgress(Progress{Received: received, Total: total})
			}
		}
		if err == io.EOF {
			return received, nil
		}
		if err != nil {
			return received, err
		}
	}
}
