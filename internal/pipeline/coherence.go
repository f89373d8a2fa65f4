package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/sched"
)

// RunCoherence is tier 3: re-derive coherence, conflict and coverage for
// events whose membership changed since the previous cycle. The first
// cycle after startup walks every stored event instead, so a restart
// cannot leave stale derived fields behind. Events that fail are queued
// again and retried next cycle.
func (p *Pipeline) RunCoherence(ctx context.Context, now time.Time) (sched.Result, error) {
	var res sched.Result

	events, full, err := p.deriveQueue()
	if err != nil {
		return res, err
	}

	for i := range events {
		if err := ctx.Err(); err != nil {
			p.markDirty(eventIDs(events[i:])...)
			return res, err
		}
		ev := &events[i]
		updated, err := p.deriveOne(ev, now)
		if err != nil {
			p.events.Error(otel.KindStoreError, "coherence", err)
			p.markDirty(ev.ID)
			res.Errors++
			continue
		}
		if !updated {
			res.Skipped++
			continue
		}
		res.Processed++
	}

	if full {
		p.mu.Lock()
		p.primed = true
		p.mu.Unlock()
	}
	return res, nil
}

// deriveQueue returns the events this cycle should process: every stored
// event until the first full pass completes, the drained dirty set
// afterwards. On a load failure the undrained remainder is queued again.
func (p *Pipeline) deriveQueue() ([]model.Event, bool, error) {
	p.mu.Lock()
	primed := p.primed
	var ids []string
	if primed {
		ids = make([]string, 0, len(p.dirty))
		for id := range p.dirty {
			ids = append(ids, id)
		}
		p.dirty = make(map[string]struct{})
	}
	p.mu.Unlock()

	if !primed {
		events, err := p.store.EventsTouchedSince(time.Time{})
		if err != nil {
			return nil, true, fmt.Errorf("pipeline: load events: %w", err)
		}
		return events, true, nil
	}

	sort.Strings(ids)
	events := make([]model.Event, 0, len(ids))
	for i, id := range ids {
		ev, err := p.store.GetEvent(id)
		if err != nil {
			p.markDirty(ids[i:]...)
			return nil, false, fmt.Errorf("pipeline: load event %s: %w", id, err)
		}
		if ev == nil {
			continue // merged away since it was marked
		}
		events = append(events, *ev)
	}
	return events, false, nil
}

// deriveOne recomputes every derived field of one event from a single
// member read, so the truth, coherence and coverage values in the
// written row agree with each other. Returns false for an event with no
// members left.
func (p *Pipeline) deriveOne(ev *model.Event, now time.Time) (bool, error) {
	members, err := p.store.EventMembers(ev.ID)
	if err != nil {
		return false, fmt.Errorf("members of %s: %w", ev.ID, err)
	}
	if len(members) == 0 {
		return false, nil
	}

	hashes := make([]string, len(members))
	for i, m := range members {
		hashes[i] = m.ContentHash
	}
	vectors, err := p.store.EmbeddingsByHash(hashes)
	if err != nil {
		return false, fmt.Errorf("vectors of %s: %w", ev.ID, err)
	}

	p.scorer.Recompute(ev, members, now)

	eval := p.coherence.Evaluate(members, vectors)
	score := eval.Score
	ev.CoherenceScore = &score
	ev.HasConflict = eval.HasConflict
	ev.ConflictSeverity = eval.Severity
	ev.Conflict = eval.Explanation

	cov := p.coverage.Assess(ev, members)
	ev.Underreported = cov.Underreported
	ev.WireSeen = cov.WireSeen

	if err := p.store.UpdateEventDerived(*ev); err != nil {
		return false, fmt.Errorf("update %s: %w", ev.ID, err)
	}

	p.events.Emit(otel.Event{
		Level:   otel.LevelDebug,
		Kind:    otel.KindCoherence,
		Comp:    "coherence",
		EventID: ev.ID,
		Count:   len(members),
	})
	if eval.HasConflict {
		p.events.Emit(otel.Event{
			Level:   otel.LevelWarn,
			Kind:    otel.KindConflict,
			Comp:    "coherence",
			EventID: ev.ID,
			Msg:     string(eval.Severity),
		})
	}
	return true, nil
}

func eventIDs(events []model.Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}
