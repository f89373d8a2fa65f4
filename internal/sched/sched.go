// Package sched runs the tiered maintenance loop: one goroutine per
// tier, an immediate first run, then ticker-driven cycles with a single
// execution slot per tier. A trigger that fires while the previous run
// is still in flight is skipped and logged, never queued.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/chorus/internal/otel"
)

// Result aggregates one tier run's counters for the cycle summary.
type Result struct {
	Processed int
	Created   int
	Skipped   int
	Errors    int
}

// Tier is one independently scheduled pipeline stage. Interval is
// re-consulted after every tick, so cadences that depend on the hour
// (peak and off-peak ingest) apply without a restart. Run must be
// idempotent; a failed run is retried on its own next tick, and a
// failure in one tier never touches the others.
type Tier struct {
	Name     string
	Interval func(now time.Time) time.Duration
	Run      func(ctx context.Context, now time.Time) (Result, error)
}

// Scheduler owns the tier goroutines. Constructed once at startup.
type Scheduler struct {
	tiers  []Tier
	clock  Clock
	events *otel.Logger
	log    *log.Logger

	wg sync.WaitGroup
}

func New(tiers []Tier, clock Clock, events *otel.Logger, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{tiers: tiers, clock: clock, events: events, log: logger}
}

// Start launches every tier. Each runs immediately, then on its ticker,
// until ctx is cancelled. Cancellation lets an in-flight run finish its
// batch; Wait returns once every tier has wound down.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tiers {
		t := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runTier(ctx, t)
		}()
	}
	s.log.Info("scheduler started", "tiers", len(s.tiers))
}

// Wait blocks until all tier goroutines have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runTier(ctx context.Context, t Tier) {
	var busy atomic.Bool
	var runs sync.WaitGroup
	defer runs.Wait()

	launch := func() {
		if !busy.CompareAndSwap(false, true) {
			s.events.Emit(otel.Event{
				Level: otel.LevelWarn,
				Kind:  otel.KindTierSkip,
				Comp:  "sched",
				Tier:  t.Name,
			})
			s.log.Warn("tier still running, trigger skipped", "tier", t.Name)
			return
		}
		runs.Add(1)
		go func() {
			defer runs.Done()
			defer busy.Store(false)
			s.execute(ctx, t)
		}()
	}

	launch()

	interval := t.Interval(s.clock.Now())
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			launch()
			if next := t.Interval(s.clock.Now()); next != interval {
				s.log.Debug("tier cadence change", "tier", t.Name, "interval", next)
				interval = next
				ticker.Reset(next)
			}
		}
	}
}

// execute runs the tier once and emits its lifecycle events. Failures
// stop here: logged, recorded, left for the next tick.
func (s *Scheduler) execute(ctx context.Context, t Tier) {
	if ctx.Err() != nil {
		return
	}

	start := s.clock.Now()
	s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindTierStart, Comp: "sched", Tier: t.Name})

	res, err := t.Run(ctx, start)
	dur := s.clock.Now().Sub(start)
	if err != nil {
		s.events.Emit(otel.Event{
			Level: otel.LevelError,
			Kind:  otel.KindTierError,
			Comp:  "sched",
			Tier:  t.Name,
			Dur:   dur,
			Err:   err.Error(),
		})
		s.log.Error("tier failed", "tier", t.Name, "took", dur, "err", err)
		return
	}

	s.events.Emit(otel.Summary(t.Name, dur, res.Processed, res.Created, res.Skipped, res.Errors))
	s.log.Info("tier complete",
		"tier", t.Name,
		"took", dur,
		"processed", res.Processed,
		"created", res.Created,
		"skipped", res.Skipped,
		"errors", res.Errors)
}
