// Package corpus provides SQLite-backed reference corpora: the CPE product
// dictionary and the CVE vulnerability feed.
package corpus

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seccerts/certpipe/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteCorpus implements both ports.CPERepository and ports.CVERepository
// on a single SQLite database.
type SQLiteCorpus struct {
	db *sql.DB
}

// NewSQLiteCorpus opens (or creates) the corpus database.
func NewSQLiteCorpus(dbPath string) (*SQLiteCorpus, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCorpus{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteCorpus) Close() error { return r.db.Close() }

// --- CPE dictionary ---

// Vendors returns every distinct vendor in the CPE dictionary, sorted.
func (r *SQLiteCorpus) Vendors(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT vendor FROM cpe_records ORDER BY vendor")
	if err != nil {
		return nil, fmt.Errorf("vendor query failed: %w", err)
	}
	defer rows.Close()

	var vendors []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// FindByVendor returns all CPE entries for a vendor, sorted by URI for
// deterministic candidate ordering.
func (r *SQLiteCorpus) FindByVendor(ctx context.Context, vendor string) ([]domain.CPERecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uri, vendor, name, version, COALESCE(title, '')
		FROM cpe_records
		WHERE vendor = ?
		ORDER BY uri
	`, vendor)
	if err != nil {
		return nil, fmt.Errorf("cpe query failed: %w", err)
	}
	defer rows.Close()

	var cpes []domain.CPERecord
	for rows.Next() {
		var c domain.CPERecord
		if err := rows.Scan(&c.URI, &c.Vendor, &c.Name, &c.Version, &c.Title); err != nil {
			return nil, err
		}
		cpes = append(cpes, c)
	}
	return cpes, rows.Err()
}

// UpsertCPE inserts or updates a dictionary entry.
func (r *SQLiteCorpus) UpsertCPE(ctx context.Context, cpe domain.CPERecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cpe_records (uri, vendor, name, version, title)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			vendor = excluded.vendor,
			name = excluded.name,
			version = excluded.version,
			title = excluded.title,
			updated_at = CURRENT_TIMESTAMP
	`, cpe.URI, cpe.Vendor, cpe.Name, cpe.Version, cpe.Title)
	return err
}

// --- CVE feed ---

// FindByCPEURI returns CVEs whose vulnerable configurations name the URI.
func (r *SQLiteCorpus) FindByCPEURI(ctx context.Context, uri string) ([]domain.CVERecord, error) {
	return r.queryCVEs(ctx, `
		SELECT c.cve_id, c.description, c.severity, c.cvss_vector,
		       c.published_date, c.last_modified, c.cwe_id, c.refs
		FROM cve_records c
		JOIN cve_cpes v ON v.cve_id = c.cve_id
		WHERE v.cpe_uri = ?
		ORDER BY c.cve_id
	`, uri)
}

// FindByVendorProduct returns CVEs affecting any version of the product.
func (r *SQLiteCorpus) FindByVendorProduct(ctx context.Context, vendor, product string) ([]domain.CVERecord, error) {
	return r.queryCVEs(ctx, `
		SELECT DISTINCT c.cve_id, c.description, c.severity, c.cvss_vector,
		       c.published_date, c.last_modified, c.cwe_id, c.refs
		FROM cve_records c
		JOIN cve_cpes v ON v.cve_id = c.cve_id
		WHERE LOWER(v.vendor) = LOWER(?) AND LOWER(v.product) = LOWER(?)
		ORDER BY c.cve_id
	`, vendor, product)
}

// GetByID retrieves a specific CVE, nil when absent.
func (r *SQLiteCorpus) GetByID(ctx context.Context, cveID string) (*domain.CVERecord, error) {
	cves, err := r.queryCVEs(ctx, `
		SELECT cve_id, description, severity, cvss_vector,
		       published_date, last_modified, cwe_id, refs
		FROM cve_records
		WHERE cve_id = ?
	`, strings.ToUpper(cveID))
	if err != nil {
		return nil, err
	}
	if len(cves) == 0 {
		return nil, nil
	}
	return &cves[0], nil
}

// UpsertCVE inserts or updates a CVE record and its vulnerable CPEs.
func (r *SQLiteCorpus) UpsertCVE(ctx context.Context, cve domain.CVERecord) error {
	refsJSON, err := json.Marshal(cve.References)
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cve_records (cve_id, description, severity, cvss_vector,
			published_date, last_modified, cwe_id, refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cve_id) DO UPDATE SET
			description = excluded.description,
			severity = excluded.severity,
			cvss_vector = excluded.cvss_vector,
			published_date = excluded.published_date,
			last_modified = excluded.last_modified,
			cwe_id = excluded.cwe_id,
			refs = excluded.refs,
			updated_at = CURRENT_TIMESTAMP
	`, strings.ToUpper(cve.ID), cve.Description, cve.Severity, cve.CVSSVector,
		cve.PublishedDate.Format(time.RFC3339), cve.LastModified.Format(time.RFC3339),
		cve.CWEID, string(refsJSON))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cve_cpes WHERE cve_id = ?", strings.ToUpper(cve.ID)); err != nil {
		return err
	}
	for _, uri := range cve.VulnerableCPEs {
		vendor, product := splitCPEURI(uri)
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO cve_cpes (cve_id, cpe_uri, vendor, product)
			VALUES (?, ?, ?, ?)
		`, strings.ToUpper(cve.ID), uri, vendor, product)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetLastSyncTime returns the timestamp of the last corpus sync.
func (r *SQLiteCorpus) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	var lastSync string
	err := r.db.QueryRowContext(ctx, "SELECT last_sync_time FROM corpus_sync_status WHERE id = 1").Scan(&lastSync)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, lastSync)
}

// UpdateSyncStatus records the outcome of a sync run.
func (r *SQLiteCorpus) UpdateSyncStatus(ctx context.Context, status domain.CorpusSyncStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE corpus_sync_status
		SET last_sync_time = ?, record_count = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, status.LastSyncTime.Format(time.RFC3339), status.RecordCount, status.ErrorMessage)
	return err
}

// GetTotalCount returns the number of CVE records.
func (r *SQLiteCorpus) GetTotalCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cve_records").Scan(&count)
	return count, err
}

// CPECount returns the number of CPE dictionary entries.
func (r *SQLiteCorpus) CPECount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cpe_records").Scan(&count)
	return count, err
}

func (r *SQLiteCorpus) queryCVEs(ctx context.Context, query string, args ...interface{}) ([]domain.CVERecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cve query failed: %w", err)
	}
	defer rows.Close()

	var cves []domain.CVERecord
	for rows.Next() {
		var cve domain.CVERecord
		var publishedDate, lastModified, refsJSON string
		var cvssVector, cweID sql.NullString

		err := rows.Scan(&cve.ID, &cve.Description, &cve.Severity, &cvssVector,
			&publishedDate, &lastModified, &cweID, &refsJSON)
		if err != nil {
			return nil, err
		}

		cve.CVSSVector = cvssVector.String
		cve.CWEID = cweID.String
		cve.PublishedDate, _ = time.Parse(time.RFC3339, publishedDate)
		cve.LastModified, _ = time.Parse(time.RFC3339, lastModified)
		if refsJSON != "" {
			json.Unmarshal([]byte(refsJSON), &cve.References)
		}

		cves = append(cves, cve)
	}
	return cves, rows.Err()
}

// splitCPEURI pulls vendor and product out of a cpe:2.3 URI.
func splitCPEURI(uri string) (vendor, product string) {
	parts := strings.Split(uri, ":")
	// cpe:2.3:part:vendor:product:version:...
	if len(parts) > 3 {
		vendor = parts[3]
	}
	if len(parts) > 4 {
		product = parts[4]
	}
	return vendor, product
}
