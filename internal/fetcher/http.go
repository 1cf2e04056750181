package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/graintrack/weighbridge-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit caps requests per second against the export host. Zero
	// means unlimited.
	RateLimit float64
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "weighbridge-cli"
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries + 1
	retry.OnRetry = resilience.RetryLogger("http", "download")

	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: limiter,
		retry:   retry,
	}
}

// Download fetches the URL and returns the response body. Transient failures
// (network errors, 5xx, 429) are retried with backoff; anything else fails
// immediately.
func (f *HTTPFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (io.ReadCloser, error) {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "http: rate limit wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "http: build request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "http: get"), 0)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, resilience.NewTransientError(
				eris.Errorf("http: server error %d for %s", resp.StatusCode, url), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, eris.Errorf("http: unexpected status %d for %s", resp.StatusCode, url)
		}
		return resp.Body, nil
	})
}

// DownloadToFile fetches the URL and writes it to the given path. Returns
// bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, url string, dest string) (int64, error) {
	rc, err := f.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	file, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "http: create file")
	}
	defer file.Close()

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrap(err, "http: write file")
	}
	zap.L().Debug("http: download complete", zap.String("url", url), zap.Int64("bytes", n))
	return n, nil
}
