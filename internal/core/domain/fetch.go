package domain

import "time"

// CachePolicy controls how a fetch consults the content cache.
type CachePolicy int

const (
	// UseCacheIfFresh serves the cached copy when one exists and is fresh.
	UseCacheIfFresh CachePolicy = iota
	// ForceRefresh always performs a network retrieval.
	ForceRefresh
)

// FetchResult is the outcome of retrieving one URL.
type FetchResult struct {
	URL         string    `json:"url"`
	Data        []byte    `json:"-"`
	ContentHash string    `json:"content_hash"` // sha256 of Data, hex
	FetchedAt   time.Time `json:"fetched_at"`
	ETag        string    `json:"etag,omitempty"`

	// FromCache is true when the bytes were served from the cache.
	FromCache bool `json:"-"`
	// Changed is false when a refresh found content identical to the
	// cached copy. Downstream re-parsing can be skipped in that case.
	Changed bool `json:"-"`
}
