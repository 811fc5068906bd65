package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// SeedLoader loads reference-corpus records from JSON files into the
// database.
type SeedLoader struct {
	repo *SQLiteCorpus
}

// NewSeedLoader creates a new seed loader.
func NewSeedLoader(repo *SQLiteCorpus) *SeedLoader {
	return &SeedLoader{repo: repo}
}

// LoadCPEFile loads CPE dictionary entries from a JSON array file.
func (s *SeedLoader) LoadCPEFile(ctx context.Context, filepath string) error {
	log.Printf("[CORPUS-SEED] Loading CPEs from %s", filepath)

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var cpes []domain.CPERecord
	if err := json.Unmarshal(data, &cpes); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	loaded := 0
	failed := 0
	for _, cpe := range cpes {
		if err := s.repo.UpsertCPE(ctx, cpe); err != nil {
			log.Printf("[CORPUS-SEED] Failed to load %s: %v", cpe.URI, err)
			failed++
		} else {
			loaded++
		}
	}

	log.Printf("[CORPUS-SEED] Loaded %d CPEs (%d failed)", loaded, failed)
	return nil
}

// LoadCVEFile loads CVE records from a JSON array file.
func (s *SeedLoader) LoadCVEFile(ctx context.Context, filepath string) error {
	log.Printf("[CORPUS-SEED] Loading CVEs from %s", filepath)

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var cves []domain.CVERecord
	if err := json.Unmarshal(data, &cves); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	loaded := 0
	failed := 0
	for _, cve := range cves {
		if err := s.repo.UpsertCVE(ctx, cve); err != nil {
			log.Printf("[CORPUS-SEED] Failed to load %s: %v", cve.ID, err)
			failed++
		} else {
			loaded++
		}
	}

	log.Printf("[CORPUS-SEED] Loaded %d CVEs (%d failed)", loaded, failed)

	s.repo.UpdateSyncStatus(ctx, domain.CorpusSyncStatus{
		LastSyncTime: time.Now().UTC(),
		RecordCount:  loaded,
	})
	return nil
}
