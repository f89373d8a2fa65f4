package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/sched"
	"github.com/abelbrown/chorus/internal/work"
)

// RunFactCheck is tier 4: verify pending article claims through the
// shared work pool, record the verdicts, and rescore the events they
// belong to. The whole cycle defers when the pool is already backed up;
// external verification is the lowest-priority consumer of those
// workers.
func (p *Pipeline) RunFactCheck(ctx context.Context, now time.Time) (sched.Result, error) {
	var res sched.Result

	if p.verifier == nil || !p.verifier.Available() {
		return res, nil
	}
	if n := p.pool.PendingCount(); n > 0 {
		p.events.Emit(otel.Event{
			Level: otel.LevelWarn,
			Kind:  otel.KindFactCheckDefer,
			Comp:  "factcheck",
			Count: n,
			Msg:   "work pool backed up",
		})
		return res, nil
	}

	articles, err := p.store.ArticlesForFactCheck(p.cfg.FactCheck.BatchSize)
	if err != nil {
		return res, err
	}
	if len(articles) == 0 {
		return res, nil
	}

	var (
		mu       sync.Mutex
		verified int
		failed   int
		affected = make(map[string]struct{})
	)
	var wg sync.WaitGroup
	for _, a := range articles {
		a := a
		wg.Add(1)
		p.pool.SubmitFunc(work.TypeVerify, "verify "+a.ID, func() (string, error) {
			defer wg.Done()
			verdict, err := p.verifier.Verify(ctx, a.Title)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return "", err
			}
			if err := p.store.SetFactCheckStatus(a.ID, verdict); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return "", err
			}
			mu.Lock()
			if verdict == model.FactCheckVerified {
				verified++
			}
			if a.ClusterID != "" {
				affected[a.ClusterID] = struct{}{}
			}
			mu.Unlock()
			return verdict, nil
		})
	}

	// The pool drops still-pending items at shutdown, so the wait gives
	// up with the context instead of relying on every submitted fn
	// running.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return res, ctx.Err()
	}

	res.Processed = len(articles)
	res.Errors = failed

	ids := sortedSet(affected)
	_, rescoreFailed := p.rescoreEvents(ctx, ids, now)
	res.Errors += rescoreFailed
	p.markDirty(ids...)

	p.events.Emit(otel.Event{
		Level:     otel.LevelInfo,
		Kind:      otel.KindFactCheck,
		Comp:      "factcheck",
		Count:     verified,
		Processed: len(articles),
		Errors:    failed,
	})
	return res, nil
}
