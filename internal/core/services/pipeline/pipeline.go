// Package pipeline orchestrates a dataset build: fetch, parse, normalize,
// enrich. Per-document failures are isolated and aggregated into a build
// report; only configuration and schema errors abort a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	neturl "net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seccerts/certpipe/internal/core/dataset"
	"github.com/seccerts/certpipe/internal/core/domain"
	"github.com/seccerts/certpipe/internal/core/ports"
	"github.com/seccerts/certpipe/internal/core/services/heuristics"
	"github.com/seccerts/certpipe/internal/core/services/normalizer"
	"github.com/seccerts/certpipe/internal/telemetry"
)

// Stage selects how much of the pipeline a run executes.
type Stage string

// toolVersion is stamped into snapshot metadata for traceability.
const toolVersion = "1.0.0"

const (
	StageAll        Stage = "all"
	StageFetch      Stage = "fetch"
	StageParse      Stage = "parse"
	StageHeuristics Stage = "heuristics"
)

// ParseStage validates a stage flag value.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageAll, StageFetch, StageParse, StageHeuristics:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

// narrativeDoc is a per-certificate document discovered in a listing row.
type narrativeDoc struct {
	certID string
	kind   domain.DocumentKind
	url    string
}

// Pipeline wires the stages together for one framework.
type Pipeline struct {
	fetcher ports.Fetcher
	parser  ports.DocumentParser
	norm    *normalizer.Normalizer
	engine  *heuristics.Engine
	ds      *dataset.Dataset
	store   ports.DatasetStore // optional incremental persistence

	workers int

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore enables incremental persistence of merged records.
func WithStore(store ports.DatasetStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithWorkers bounds parse/merge concurrency.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New assembles a pipeline over an existing dataset (empty or loaded from a
// prior snapshot).
func New(f ports.Fetcher, parser ports.DocumentParser, norm *normalizer.Normalizer, engine *heuristics.Engine, ds *dataset.Dataset, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:  f,
		parser:   parser,
		norm:     norm,
		engine:   engine,
		ds:       ds,
		workers:  4,
		keyLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the selected stage over the framework's listing endpoints
// and returns the aggregated build report. The error is non-nil only for
// run-level failures (cancellation); per-document errors land in the report.
func (p *Pipeline) Run(ctx context.Context, listingURLs []string, policy domain.CachePolicy, stage Stage) (*domain.BuildReport, error) {
	report := &domain.BuildReport{
		RunID:     uuid.NewString(),
		Framework: p.parser.Framework(),
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.EndedAt = time.Now().UTC() }()

	if stage == StageHeuristics {
		if err := p.enrich(ctx, report); err != nil {
			return report, err
		}
		p.stampMeta(report)
		return report, nil
	}

	docs, err := p.processListings(ctx, listingURLs, policy, stage, report)
	if err != nil {
		return report, err
	}

	if err := p.processNarratives(ctx, docs, policy, stage, report); err != nil {
		return report, err
	}

	if stage == StageAll {
		if err := p.enrich(ctx, report); err != nil {
			return report, err
		}
	}

	p.stampMeta(report)

	slog.Info("pipeline run finished",
		"framework", report.Framework,
		"fetched", report.Fetched,
		"parsed", report.Parsed,
		"failed", report.Failed(),
		"enriched", report.Enriched)
	return report, nil
}

// processListings fetches and parses the listing endpoints and merges their
// rows, returning the narrative documents they link to.
func (p *Pipeline) processListings(ctx context.Context, urls []string, policy domain.CachePolicy, stage Stage, report *domain.BuildReport) ([]narrativeDoc, error) {
	results, errs := p.fetcher.FetchBatch(ctx, urls, policy)
	report.Fetched += len(results)
	for _, err := range errs {
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			report.AddFailure("fetch", fe.URL, "", err)
		} else {
			report.AddFailure("fetch", "", "", err)
		}
	}

	listingKind := domain.KindCCListing
	if p.parser.Framework() == domain.FrameworkFIPS {
		listingKind = domain.KindFIPSListing
	}

	var docs []narrativeDoc
	for _, res := range results {
		if res.FromCache {
			report.CacheHits++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		partials, err := p.parser.Parse(listingKind, "", res)
		if err != nil {
			telemetry.ParseFailures.WithLabelValues(string(p.parser.Framework())).Inc()
			report.AddFailure("parse", res.URL, "", err)
			continue
		}
		report.Parsed++

		for _, pr := range partials {
			if stage != StageFetch {
				if err := p.mergeOne(ctx, pr, report); err != nil {
					return nil, err
				}
			}
			docs = append(docs, narrativeLinks(pr)...)
		}
	}
	return docs, nil
}

// narrativeLinks extracts the report/target URLs a listing row points to,
// resolved against the listing URL so relative hrefs stay fetchable.
func narrativeLinks(pr domain.PartialRecord) []narrativeDoc {
	reportKind := domain.KindCCReport
	if pr.Framework == domain.FrameworkFIPS {
		reportKind = domain.KindFIPSReport
	}

	base, _ := neturl.Parse(pr.URL)
	resolve := func(raw string) string {
		if base == nil {
			return raw
		}
		ref, err := neturl.Parse(raw)
		if err != nil {
			return raw
		}
		return base.ResolveReference(ref).String()
	}

	var docs []narrativeDoc
	for _, u := range pr.Fields["report_url"] {
		docs = append(docs, narrativeDoc{certID: pr.CertID, kind: reportKind, url: resolve(u)})
	}
	for _, u := range pr.Fields["target_url"] {
		docs = append(docs, narrativeDoc{certID: pr.CertID, kind: domain.KindSecurityTarget, url: resolve(u)})
	}
	return docs
}

// processNarratives fetches and parses per-certificate documents through a
// bounded worker pool. Merges targeting the same cert_id are serialized.
func (p *Pipeline) processNarratives(ctx context.Context, docs []narrativeDoc, policy domain.CachePolicy, stage Stage, report *domain.BuildReport) error {
	if len(docs) == 0 {
		return nil
	}

	type outcome struct {
		doc domain.PartialRecord
		url string
		id  string
		err error
	}

	sem := make(chan struct{}, p.workers)
	out := make(chan outcome, len(docs))
	var wg sync.WaitGroup

	for _, doc := range docs {
		wg.Add(1)
		go func(doc narrativeDoc) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out <- outcome{url: doc.url, id: doc.certID, err: ctx.Err()}
				return
			}

			res, err := p.fetcher.Fetch(ctx, doc.url, policy)
			if err != nil {
				out <- outcome{url: doc.url, id: doc.certID, err: err}
				return
			}

			// Unchanged cached document already merged into this
			// record: skip re-parsing.
			if rec, ok := p.ds.Get(doc.certID); ok && rec.HasDocument(doc.kind, res.ContentHash) {
				out <- outcome{url: doc.url, id: doc.certID}
				return
			}

			partials, err := p.parser.Parse(doc.kind, doc.certID, res)
			if err != nil {
				out <- outcome{url: doc.url, id: doc.certID, err: err}
				return
			}
			if len(partials) == 0 {
				out <- outcome{url: doc.url, id: doc.certID}
				return
			}
			out <- outcome{doc: partials[0], url: doc.url, id: doc.certID}
		}(doc)
	}

	wg.Wait()
	close(out)

	for o := range out {
		if o.err != nil {
			if ctx.Err() != nil && o.err == ctx.Err() {
				return o.err
			}
			stageName := "fetch"
			var pe *domain.ParseError
			if errors.As(o.err, &pe) {
				stageName = "parse"
				telemetry.ParseFailures.WithLabelValues(string(p.parser.Framework())).Inc()
			}
			report.AddFailure(stageName, o.url, o.id, o.err)
			continue
		}
		report.Fetched++
		if o.doc.CertID == "" {
			continue
		}
		report.Parsed++
		if stage == StageFetch {
			continue
		}
		if err := p.mergeOne(ctx, o.doc, report); err != nil {
			return err
		}
	}
	return nil
}

// mergeOne applies one partial record under the per-key lock so merges for
// the same cert_id never interleave. The dataset swap is atomic: a
// cancelled run leaves no half-merged record behind.
func (p *Pipeline) mergeOne(ctx context.Context, pr domain.PartialRecord, report *domain.BuildReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := p.keyLock(pr.CertID)
	l.Lock()
	defer l.Unlock()

	existing, _ := p.ds.Get(pr.CertID)
	merged, conflicts, err := p.norm.Merge(existing, pr)
	if err != nil {
		report.AddFailure("merge", pr.URL, pr.CertID, err)
		return nil
	}
	report.Conflicts += len(conflicts)
	for _, c := range conflicts {
		slog.Warn("structured sources disagree",
			"cert_id", pr.CertID, "field", c.Field,
			"existing", c.Existing, "incoming", c.Incoming)
	}

	p.ds.Upsert(merged)

	if p.store != nil {
		if err := p.store.SaveCertificate(ctx, merged); err != nil {
			report.AddFailure("merge", pr.URL, pr.CertID, err)
		}
	}
	return nil
}

// enrich recomputes heuristics for every record, then resolves
// cross-certificate references in a second pass over the full dataset.
func (p *Pipeline) enrich(ctx context.Context, report *domain.BuildReport) error {
	degraded := make(map[string]struct{})

	records := p.ds.Records()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		deg, err := p.engine.Enrich(ctx, rec)
		if err != nil {
			report.AddFailure("heuristics", "", rec.CertID, err)
			continue
		}
		for _, d := range deg {
			degraded[d] = struct{}{}
		}
		report.Enriched++
		if len(rec.Heuristics.CPECandidates) == 0 {
			report.Unmatched = append(report.Unmatched, rec.CertID)
		}
	}

	// Cross-certificate linkage needs the full identifier space, so it
	// runs strictly after the per-record pass.
	p.engine.LinkRelatedCerts(records)
	for _, rec := range records {
		p.ds.Upsert(rec)
	}

	for d := range degraded {
		report.Degraded = append(report.Degraded, d)
	}
	sort.Strings(report.Degraded)
	sort.Strings(report.Unmatched)
	return nil
}

// stampMeta records the run's identity in the snapshot metadata. Every
// stage that can change records must stamp, or the next snapshot write
// would carry a stale run id.
func (p *Pipeline) stampMeta(report *domain.BuildReport) {
	p.ds.SetMeta(dataset.SnapshotMetadata{
		RunID:          report.RunID,
		BuildTimestamp: report.StartedAt,
		ToolVersion:    toolVersion,
	})
}

func (p *Pipeline) keyLock(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		p.keyLocks[key] = l
	}
	return l
}

