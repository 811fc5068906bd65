// Package storage persists certificate records between runs using GORM and
// SQLite, independently of the snapshot interchange format.
package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// SQLiteAdapter implements ports.DatasetStore using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// CertificateModel is the GORM model for certificate records. Nested
// structures (documents, raw fields, heuristics) live in JSON columns; the
// canonical scalar fields get real columns so they stay queryable.
type CertificateModel struct {
	CertID    string `gorm:"primaryKey;uniqueIndex"`
	Framework string `gorm:"index"`
	Status    string
	Name      string
	Vendor    string `gorm:"index"`
	Category  string

	// Seq preserves dataset insertion order across restarts.
	Seq int64 `gorm:"autoIncrement;uniqueIndex"`

	SourceDocuments string // JSON encoded []domain.SourceDocument
	RawFields       string // JSON encoded map[string][]domain.FieldObservation
	Conflicts       string // JSON encoded []domain.FieldConflict
	Heuristics      string // JSON encoded domain.Heuristics
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open dataset store: %w", err)
	}

	if err := db.AutoMigrate(&CertificateModel{}); err != nil {
		return nil, fmt.Errorf("migrate dataset store: %w", err)
	}

	return &SQLiteAdapter{db: db}, nil
}

// SaveCertificate inserts or updates one record by cert_id.
func (a *SQLiteAdapter) SaveCertificate(ctx context.Context, cert *domain.Certificate) error {
	model, err := toModel(cert)
	if err != nil {
		return err
	}

	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cert_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "name", "vendor", "category",
			"source_documents", "raw_fields", "conflicts", "heuristics",
		}),
	}).Create(model).Error
}

// LoadAll returns every stored record in insertion order.
func (a *SQLiteAdapter) LoadAll(ctx context.Context) ([]*domain.Certificate, error) {
	var models []CertificateModel
	if err := a.db.WithContext(ctx).Order("seq").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load dataset store: %w", err)
	}

	certs := make([]*domain.Certificate, 0, len(models))
	for i := range models {
		cert, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// Close closes the underlying connection pool.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
