package corpus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wordmap/internal/domain"
)

// Fetcher downloads the raw corpus archive.
type Fetcher struct {
	client          *http.Client
	maxRetries      int
	initialInterval time.Duration
	log             *slog.Logger
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Timeout bounds a whole download attempt. Zero means no limit; the corpus is large.
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	Logger          *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client:          &http.Client{Timeout: cfg.Timeout},
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		log:             cfg.Logger,
	}
}

// Download fetches url into dest unless dest already exists. The body is
// streamed to dest+".part" and renamed on success, so dest is never partial.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	if fileExists(dest) {
		f.log.Info("corpus archive already present", "path", dest)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteFetch, err)
	}
	f.log.Info("downloading corpus", "url", url, "path", dest)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialInterval
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	start := time.Now()
	var written int64
	err := backoff.RetryNotify(
		func() error {
			n, err := f.fetchOnce(ctx, url, dest)
			written = n
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.maxRetries)), ctx),
		func(err error, d time.Duration) {
			f.log.Warn("corpus download failed, retrying", "err", err, "in", d)
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteFetch, err)
	}
	f.log.Info("corpus downloaded", "path", dest, "bytes", written, "took", time.Since(start))
	return nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("GET %s: %s", url, resp.Status)
		// client errors will not fix themselves
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return n, err
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return n, backoff.Permanent(err)
	}
	return n, nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
