package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seccerts/certpipe/internal/core/domain"
)

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cache, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return New(cache, WithRetries(2, time.Millisecond), WithWorkers(4))
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	res, err := f.Fetch(context.Background(), srv.URL, domain.UseCacheIfFresh)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if string(res.Data) != "hello" {
		t.Errorf("Expected body %q, got %q", "hello", res.Data)
	}
	if res.ContentHash == "" {
		t.Error("Expected a content hash")
	}
	if res.FromCache {
		t.Error("First fetch must not come from cache")
	}
	if !res.Changed {
		t.Error("First fetch must report content as changed")
	}
}

func TestFetch_CacheHit(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("cached content"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	ctx := context.Background()

	first, err := f.Fetch(ctx, srv.URL, domain.UseCacheIfFresh)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	second, err := f.Fetch(ctx, srv.URL, domain.UseCacheIfFresh)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("Expected 1 network request, got %d", got)
	}
	if !second.FromCache {
		t.Error("Second fetch must be served from cache")
	}
	if second.ContentHash != first.ContentHash {
		t.Errorf("Cache returned different hash: %s vs %s", second.ContentHash, first.ContentHash)
	}
	if string(second.Data) != "cached content" {
		t.Errorf("Cache returned wrong body: %q", second.Data)
	}
}

func TestFetch_ForceRefreshDetectsChange(t *testing.T) {
	var version int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "version %d", atomic.LoadInt32(&version))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, srv.URL, domain.ForceRefresh); err != nil {
		t.Fatalf("Initial fetch failed: %v", err)
	}

	// Unchanged content refetched: Changed must be false.
	res, err := f.Fetch(ctx, srv.URL, domain.ForceRefresh)
	if err != nil {
		t.Fatalf("Refetch failed: %v", err)
	}
	if res.Changed {
		t.Error("Identical content must not be reported as changed")
	}

	atomic.StoreInt32(&version, 1)
	res, err = f.Fetch(ctx, srv.URL, domain.ForceRefresh)
	if err != nil {
		t.Fatalf("Refetch after change failed: %v", err)
	}
	if !res.Changed {
		t.Error("Modified content must be reported as changed")
	}
}

func TestFetch_RetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	res, err := f.Fetch(context.Background(), srv.URL, domain.ForceRefresh)
	if err != nil {
		t.Fatalf("Fetch should have recovered after retries: %v", err)
	}
	if string(res.Data) != "finally" {
		t.Errorf("Unexpected body: %q", res.Data)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL, domain.ForceRefresh)
	if err == nil {
		t.Fatal("Expected an error for 404")
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected FetchError, got %T", err)
	}
	if fe.URL != srv.URL {
		t.Errorf("FetchError carries wrong URL: %s", fe.URL)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Client errors must not be retried, got %d attempts", got)
	}
}

func TestFetchBatch_PartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken/3" || r.URL.Path == "/broken/7" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, "document %s", r.URL.Path)
	}))
	defer srv.Close()

	urls := make([]string, 10)
	for i := range urls {
		if i == 3 || i == 7 {
			urls[i] = fmt.Sprintf("%s/broken/%d", srv.URL, i)
		} else {
			urls[i] = fmt.Sprintf("%s/doc/%d", srv.URL, i)
		}
	}

	f := newTestFetcher(t)
	results, errs := f.FetchBatch(context.Background(), urls, domain.ForceRefresh)

	if len(results) != 8 {
		t.Errorf("Expected 8 successful results, got %d", len(results))
	}
	if len(errs) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errs))
	}
	for _, err := range errs {
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			t.Errorf("Expected FetchError, got %T", err)
		}
	}

	// Successful results keep request order.
	prev := -1
	for _, res := range results {
		var idx int
		if _, err := fmt.Sscanf(res.URL, srv.URL+"/doc/%d", &idx); err != nil {
			t.Fatalf("Unexpected result URL %s", res.URL)
		}
		if idx <= prev {
			t.Errorf("Results out of order: %d after %d", idx, prev)
		}
		prev = idx
	}
}

func TestFileCache_MissAndRoundTrip(t *testing.T) {
	cache, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	if _, ok, err := cache.Get("https://example.org/absent"); err != nil || ok {
		t.Fatalf("Expected clean miss, got ok=%v err=%v", ok, err)
	}

	res := &domain.FetchResult{
		URL:         "https://example.org/doc",
		Data:        []byte("payload"),
		ContentHash: "abc123",
		FetchedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := cache.Put(res); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := cache.Get(res.URL)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Data) != "payload" {
		t.Errorf("Wrong cached data: %q", got.Data)
	}
	if got.ContentHash != "abc123" {
		t.Errorf("Wrong cached hash: %s", got.ContentHash)
	}
	if !got.FromCache {
		t.Error("Cache hits must be marked FromCache")
	}
}
