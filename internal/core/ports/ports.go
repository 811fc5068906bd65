package ports

import (
	"context"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// Fetcher retrieves raw documents from certification-body endpoints.
type Fetcher interface {
	// Fetch retrieves one URL under the given cache policy. A terminal
	// failure is returned as *domain.FetchError.
	Fetch(ctx context.Context, url string, policy domain.CachePolicy) (*domain.FetchResult, error)

	// FetchBatch retrieves many URLs concurrently. Failures are isolated:
	// the result slice holds an entry per successful URL and errs collects
	// one *domain.FetchError per failed URL.
	FetchBatch(ctx context.Context, urls []string, policy domain.CachePolicy) (results []*domain.FetchResult, errs []error)
}

// DocumentCache stores fetched documents keyed by URL, with enough metadata
// to detect an unchanged resource.
type DocumentCache interface {
	Get(url string) (*domain.FetchResult, bool, error)
	Put(res *domain.FetchResult) error
}

// DocumentParser extracts partial records from one fetched document.
// Listing documents yield one PartialRecord per certificate entry; narrative
// documents yield a single PartialRecord for certID. certID may be empty for
// listings, whose entries carry their own identifiers.
type DocumentParser interface {
	Parse(kind domain.DocumentKind, certID string, res *domain.FetchResult) ([]domain.PartialRecord, error)
	Framework() domain.Framework
}

// DatasetStore persists certificates between runs, independently of the
// snapshot interchange format.
type DatasetStore interface {
	SaveCertificate(ctx context.Context, cert *domain.Certificate) error
	LoadAll(ctx context.Context) ([]*domain.Certificate, error)
	Close() error
}
