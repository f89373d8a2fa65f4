// Package pipeline binds the processing stages into the five scheduler
// tiers. Each RunX method is one tier cycle: it pulls its input from the
// store, drives the stage packages, writes results back, and reports
// counters. Failures are contained per item wherever possible; a
// returned error means the whole cycle could not run and the scheduler
// retries it next tick.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/chorus/internal/cluster"
	"github.com/abelbrown/chorus/internal/coherence"
	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/coverage"
	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/factcheck"
	"github.com/abelbrown/chorus/internal/fetch"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/normalize"
	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/sched"
	"github.com/abelbrown/chorus/internal/store"
	"github.com/abelbrown/chorus/internal/truth"
	"github.com/abelbrown/chorus/internal/work"
)

// fetchTimeout bounds each feed request.
const fetchTimeout = 30 * time.Second

// maxConcurrentFetches limits parallel feed requests.
const maxConcurrentFetches = 5

// feedFetcher is the fetch surface the ingest tier needs; the
// indirection lets tests feed canned items.
type feedFetcher interface {
	FetchAll(ctx context.Context, feeds []fetch.Feed) ([]fetch.Item, []error)
}

// Pipeline owns the tier cycles and the stage components they drive.
type Pipeline struct {
	cfg     *config.Config
	store   *store.Store
	sources *model.Registry

	fetcher   feedFetcher
	norm      *normalize.Normalizer
	embedder  embed.Embedder
	clusterer *cluster.Clusterer
	scorer    *truth.Scorer
	coherence *coherence.Engine
	coverage  *coverage.Detector
	verifier  factcheck.Verifier

	pool   *work.Pool
	events *otel.Logger
	log    *log.Logger

	mu     sync.Mutex
	dirty  map[string]struct{} // events awaiting a derived-field refresh
	primed bool                // set once the first full derive pass completes
}

// New wires the stage components around the shared store and registry.
// embedder and verifier may be unavailable or nil; the owning tiers
// degrade to reporting pending work instead of failing.
func New(cfg *config.Config, st *store.Store, sources *model.Registry, embedder embed.Embedder, verifier factcheck.Verifier, pool *work.Pool, events *otel.Logger, logger *log.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		sources:   sources,
		fetcher:   fetch.NewFetcher(fetchTimeout, maxConcurrentFetches),
		norm:      normalize.New(st, sources, cfg.Normalize, logger),
		embedder:  embedder,
		clusterer: cluster.New(st, cfg.Cluster, logger),
		scorer:    truth.New(cfg.Truth, sources),
		coherence: coherence.New(cfg.Coherence, sources),
		coverage:  coverage.New(cfg.Coverage, sources),
		verifier:  verifier,
		pool:      pool,
		events:    events,
		log:       logger,
		dirty:     make(map[string]struct{}),
	}
}

// Tiers returns the five scheduler tiers. The ingest interval follows
// the peak/off-peak schedule; the rest run at fixed cadences.
func (p *Pipeline) Tiers() []sched.Tier {
	return []sched.Tier{
		{
			Name: "ingest",
			Interval: func(now time.Time) time.Duration {
				return p.cfg.IngestInterval(now.UTC().Hour())
			},
			Run: p.RunIngest,
		},
		{Name: "cluster", Interval: fixedInterval(p.cfg.Tiers.ClusterMinutes), Run: p.RunCluster},
		{Name: "coherence", Interval: fixedInterval(p.cfg.Tiers.CoherenceMinutes), Run: p.RunCoherence},
		{Name: "factcheck", Interval: fixedInterval(p.cfg.Tiers.FactCheckMinutes), Run: p.RunFactCheck},
		{Name: "retention", Interval: fixedInterval(p.cfg.Tiers.RetentionMinutes), Run: p.RunRetention},
	}
}

func fixedInterval(minutes int) func(time.Time) time.Duration {
	d := time.Duration(minutes) * time.Minute
	return func(time.Time) time.Duration { return d }
}

// markDirty queues events for the next derive cycle. Safe from any tier
// goroutine.
func (p *Pipeline) markDirty(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.dirty[id] = struct{}{}
	}
}

// rescoreEvents refreshes the truth snapshot of the given events from
// their full member sets. Per-event failures are logged and skipped so
// the rest of the list still runs; the failed count feeds the cycle
// summary.
func (p *Pipeline) rescoreEvents(ctx context.Context, ids []string, now time.Time) (scored, failed int) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return scored, failed
		}
		ev, err := p.store.GetEvent(id)
		if err != nil {
			p.events.Error(otel.KindStoreError, "truth", err)
			failed++
			continue
		}
		if ev == nil {
			continue // merged away since it was touched
		}
		members, err := p.store.EventMembers(id)
		if err != nil {
			p.events.Error(otel.KindStoreError, "truth", err)
			failed++
			continue
		}
		p.scorer.Recompute(ev, members, now)
		if err := p.store.UpdateEventScores(*ev); err != nil {
			p.events.Error(otel.KindStoreError, "truth", err)
			failed++
			continue
		}
		p.events.Emit(otel.Event{
			Level:   otel.LevelDebug,
			Kind:    otel.KindScored,
			Comp:    "truth",
			EventID: id,
			Count:   ev.ArticlesCount,
		})
		scored++
	}
	return scored, failed
}

func sortedSet(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
