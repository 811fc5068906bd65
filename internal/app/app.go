// Package app assembles the pipeline from configuration. It acts as the
// facade the CLI drives: open the cache, corpora and dataset store, load any
// prior snapshot, run the requested stage, persist the result.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/seccerts/certpipe/internal/adapters/corpus"
	"github.com/seccerts/certpipe/internal/adapters/fetcher"
	"github.com/seccerts/certpipe/internal/adapters/parser"
	"github.com/seccerts/certpipe/internal/adapters/storage"
	"github.com/seccerts/certpipe/internal/config"
	"github.com/seccerts/certpipe/internal/core/dataset"
	"github.com/seccerts/certpipe/internal/core/domain"
	"github.com/seccerts/certpipe/internal/core/ports"
	"github.com/seccerts/certpipe/internal/core/services/heuristics"
	"github.com/seccerts/certpipe/internal/core/services/normalizer"
	"github.com/seccerts/certpipe/internal/core/services/pipeline"
	"github.com/seccerts/certpipe/internal/telemetry"
)

// Application wires adapters and services for one run.
type Application struct {
	cfg      *config.Config
	sources  *config.Sources
	pipeline *pipeline.Pipeline
	ds       *dataset.Dataset
	store    ports.DatasetStore
	corpusDB *corpus.SQLiteCorpus
	stage    pipeline.Stage
}

// New builds the application. Configuration errors here are unrecoverable;
// the CLI exits non-zero on them.
func New(cfg *config.Config) (*Application, error) {
	telemetry.InitMetrics()

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}
	if _, err := sources.ForFramework(cfg.Framework); err != nil {
		return nil, err
	}

	stage, err := pipeline.ParseStage(cfg.Stage)
	if err != nil {
		return nil, err
	}

	cache, err := fetcher.NewFileCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	httpFetcher := fetcher.New(cache, fetcher.WithWorkers(cfg.Workers))

	var docParser ports.DocumentParser
	switch domain.Framework(cfg.Framework) {
	case domain.FrameworkCC:
		docParser = parser.NewCCParser()
	case domain.FrameworkFIPS:
		docParser = parser.NewFIPSParser()
	default:
		return nil, fmt.Errorf("unknown framework %q", cfg.Framework)
	}

	// A missing corpus is degraded mode, never a startup failure.
	corpusDB, cpes, cves := openCorpus(cfg.CorpusDB)

	store, err := storage.NewSQLiteAdapter(cfg.DatasetDB)
	if err != nil {
		return nil, err
	}

	ds, err := loadOrCreateDataset(cfg.SnapshotPath, store)
	if err != nil {
		return nil, err
	}

	norm := normalizer.New(normalizer.Policy(cfg.Policy))
	engine := heuristics.NewEngine(cpes, cves)

	p := pipeline.New(httpFetcher, docParser, norm, engine, ds,
		pipeline.WithStore(store),
		pipeline.WithWorkers(cfg.Workers),
	)

	return &Application{
		cfg:      cfg,
		sources:  sources,
		pipeline: p,
		ds:       ds,
		store:    store,
		corpusDB: corpusDB,
		stage:    stage,
	}, nil
}

// Run executes the configured stage and writes the snapshot.
func (a *Application) Run(ctx context.Context) (*domain.BuildReport, error) {
	urls, err := a.sources.ForFramework(a.cfg.Framework)
	if err != nil {
		return nil, err
	}

	policy := domain.UseCacheIfFresh
	if a.cfg.ForceRefresh {
		policy = domain.ForceRefresh
	}

	report, err := a.pipeline.Run(ctx, urls, policy, a.stage)
	if err != nil {
		return report, err
	}

	if err := a.ds.WriteFile(a.cfg.SnapshotPath); err != nil {
		return report, err
	}
	return report, nil
}

// Close releases adapter resources.
func (a *Application) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.corpusDB != nil {
		a.corpusDB.Close()
	}
}

// openCorpus opens the reference corpus when its database file exists.
// A missing or unopenable corpus yields nil repositories, which the
// heuristics engine reports as a degraded run. Opening blindly would
// create an empty database and mask the absence as an empty corpus.
func openCorpus(path string) (*corpus.SQLiteCorpus, ports.CPERepository, ports.CVERepository) {
	if _, err := os.Stat(path); err != nil {
		slog.Warn("reference corpus unavailable, proceeding degraded",
			"path", path, "error", errors.Join(domain.ErrReferenceCorpusUnavailable, err))
		return nil, nil, nil
	}

	db, err := corpus.NewSQLiteCorpus(path)
	if err != nil {
		slog.Warn("reference corpus unavailable, proceeding degraded",
			"path", path, "error", errors.Join(domain.ErrReferenceCorpusUnavailable, err))
		return nil, nil, nil
	}
	return db, db, db
}

// loadOrCreateDataset resumes from a prior snapshot when one exists,
// falling back to the incremental dataset store. A schema mismatch is
// fatal; guessing a migration would corrupt the dataset.
func loadOrCreateDataset(path string, store ports.DatasetStore) (*dataset.Dataset, error) {
	ds, err := dataset.ReadFile(path)
	if err == nil {
		slog.Info("resumed from snapshot", "path", path, "records", ds.Len())
		return ds, nil
	}

	var mismatch *domain.SchemaMismatchError
	if errors.As(err, &mismatch) {
		return nil, err
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// No snapshot: a prior run may still have persisted records
	// incrementally.
	certs, err := store.LoadAll(context.Background())
	if err != nil {
		return nil, err
	}
	ds = dataset.New()
	for _, c := range certs {
		ds.Upsert(c)
	}
	if ds.Len() > 0 {
		slog.Info("resumed from dataset store", "records", ds.Len())
	}
	return ds, nil
}
