package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/seccerts/certpipe/internal/core/domain"
	"github.com/seccerts/certpipe/internal/core/ports"
	"github.com/seccerts/certpipe/internal/telemetry"
)

const defaultUserAgent = "certpipe/1.0"

func hostOf(rawURL string) string {
	u, err := neturl.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// HTTPFetcher implements ports.Fetcher against HTTP(S) endpoints with a
// content cache, bounded retries and a bounded worker pool for batches.
type HTTPFetcher struct {
	client     *http.Client
	cache      ports.DocumentCache
	maxRetries int
	baseDelay  time.Duration
	workers    int
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient overrides the HTTP client (used by tests).
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRetries sets retry count and base backoff delay.
func WithRetries(n int, base time.Duration) Option {
	return func(f *HTTPFetcher) { f.maxRetries, f.baseDelay = n, base }
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(f *HTTPFetcher) { f.workers = n }
}

// New creates a fetcher backed by the given cache.
func New(cache ports.DocumentCache, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cache:      cache,
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		workers:    8,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves one URL, honoring the cache policy.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, policy domain.CachePolicy) (*domain.FetchResult, error) {
	var cached *domain.FetchResult
	if f.cache != nil {
		hit, ok, err := f.cache.Get(url)
		if err != nil {
			slog.Warn("cache read failed, falling through to network", "url", url, "error", err)
		} else if ok {
			if policy == domain.UseCacheIfFresh {
				telemetry.CacheHits.WithLabelValues("document").Inc()
				return hit, nil
			}
			cached = hit
		}
	}

	res, err := f.retrieve(ctx, url)
	if err != nil {
		telemetry.FetchFailures.WithLabelValues(hostOf(url)).Inc()
		return nil, &domain.FetchError{URL: url, Cause: err}
	}

	res.Changed = cached == nil || cached.ContentHash != res.ContentHash
	if f.cache != nil {
		if err := f.cache.Put(res); err != nil {
			slog.Warn("cache write failed", "url", url, "error", err)
		}
	}

	telemetry.DocumentsFetched.WithLabelValues("network").Inc()
	return res, nil
}

// FetchBatch retrieves URLs through a bounded worker pool. Individual
// failures never abort the batch.
func (f *HTTPFetcher) FetchBatch(ctx context.Context, urls []string, policy domain.CachePolicy) ([]*domain.FetchResult, []error) {
	type outcome struct {
		idx int
		res *domain.FetchResult
		err error
	}

	sem := make(chan struct{}, f.workers)
	out := make(chan outcome, len(urls))
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out <- outcome{idx: idx, err: &domain.FetchError{URL: url, Cause: ctx.Err()}}
				return
			}
			res, err := f.Fetch(ctx, url, policy)
			out <- outcome{idx: idx, res: res, err: err}
		}(i, u)
	}

	wg.Wait()
	close(out)

	ordered := make([]*domain.FetchResult, len(urls))
	var errs []error
	for o := range out {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		ordered[o.idx] = o.res
	}

	var results []*domain.FetchResult
	for _, r := range ordered {
		if r != nil {
			results = append(results, r)
		}
	}
	return results, errs
}

// retrieve performs the network round trips with exponential backoff on
// transient failures (transport errors, 5xx, 429).
func (f *HTTPFetcher) retrieve(ctx context.Context, url string) (*domain.FetchResult, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.baseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, retryable, err := f.attempt(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		slog.Debug("retrying fetch", "url", url, "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (f *HTTPFetcher) attempt(ctx context.Context, url string) (*domain.FetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("server returned %s", resp.Status)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("server returned %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	sum := sha256.Sum256(data)
	return &domain.FetchResult{
		URL:         url,
		Data:        data,
		ContentHash: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now().UTC(),
		ETag:        resp.Header.Get("ETag"),
	}, false, nil
}
