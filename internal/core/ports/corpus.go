package ports

import (
	"context"
	"time"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// CPERepository is the product-naming reference corpus (CPE dictionary).
type CPERepository interface {
	// Vendors returns every distinct vendor in the corpus, sorted.
	Vendors(ctx context.Context) ([]string, error)

	// FindByVendor returns all CPE entries for a vendor.
	FindByVendor(ctx context.Context, vendor string) ([]domain.CPERecord, error)

	UpsertCPE(ctx context.Context, cpe domain.CPERecord) error
	GetTotalCount(ctx context.Context) (int, error)
	Close() error
}

// CVERepository is the vulnerability reference corpus.
type CVERepository interface {
	// FindByCPEURI returns CVEs whose vulnerable configurations name the
	// exact CPE URI.
	FindByCPEURI(ctx context.Context, uri string) ([]domain.CVERecord, error)

	// FindByVendorProduct returns CVEs affecting any version of the
	// vendor's product.
	FindByVendorProduct(ctx context.Context, vendor, product string) ([]domain.CVERecord, error)

	GetByID(ctx context.Context, cveID string) (*domain.CVERecord, error)

	UpsertCVE(ctx context.Context, cve domain.CVERecord) error
	GetLastSyncTime(ctx context.Context) (time.Time, error)
	UpdateSyncStatus(ctx context.Context, status domain.CorpusSyncStatus) error
	GetTotalCount(ctx context.Context) (int, error)
	Close() error
}
