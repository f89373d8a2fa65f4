package pipeline

import (
	"context"
	"time"

	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/sched"
)

// RunCluster is tier 2: backfill missing embeddings, run one clustering
// cycle, then rescore every event the cycle touched and queue them for
// the derive tier.
func (p *Pipeline) RunCluster(ctx context.Context, now time.Time) (sched.Result, error) {
	var res sched.Result

	embedded, embedFailed, err := p.embedPending(ctx)
	if err != nil {
		return res, err
	}
	res.Processed += embedded
	res.Errors += embedFailed

	cres, err := p.clusterer.Run(ctx, now)
	res.Processed += cres.Scanned
	res.Created += cres.Opened
	res.Skipped += cres.Noise
	if err != nil {
		res.Errors++
		return res, err
	}

	if cres.Opened > 0 {
		p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindEventOpened, Comp: "cluster", Count: cres.Opened})
	}
	if cres.Merged > 0 {
		p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindEventMerged, Comp: "cluster", Count: cres.Merged})
	}
	if cres.Assigned > 0 {
		p.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindAssigned, Comp: "cluster", Count: cres.Assigned})
	}

	_, failed := p.rescoreEvents(ctx, cres.Touched, now)
	res.Errors += failed
	p.markDirty(cres.Touched...)
	return res, nil
}
