package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/sched"
)

// RunRetention is tier 5: delete events and articles older than the
// horizon, plus any embeddings they strand.
func (p *Pipeline) RunRetention(ctx context.Context, now time.Time) (sched.Result, error) {
	var res sched.Result

	cutoff := now.AddDate(0, 0, -p.cfg.Retention.HorizonDays)
	stats, err := p.store.SweepExpired(cutoff)
	if err != nil {
		res.Errors++
		return res, fmt.Errorf("pipeline: retention sweep: %w", err)
	}

	res.Processed = int(stats.Events + stats.Articles + stats.Embeddings)
	if res.Processed > 0 {
		p.events.Emit(otel.Event{
			Level: otel.LevelInfo,
			Kind:  otel.KindRetention,
			Comp:  "retention",
			Msg:   fmt.Sprintf("removed %d events, %d articles, %d embeddings", stats.Events, stats.Articles, stats.Embeddings),
		})
	}
	return res, nil
}
