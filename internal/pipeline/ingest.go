package pipeline

import (
	"context"
	"time"

	"github.com/abelbrown/chorus/internal/fetch"
	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/sched"
)

// RunIngest is tier 1: fetch every configured feed and normalize the
// results into the store. Feed failures are contained per feed; the
// cycle fails only when the store does.
func (p *Pipeline) RunIngest(ctx context.Context, now time.Time) (sched.Result, error) {
	var res sched.Result

	feeds := make([]fetch.Feed, len(p.cfg.Feeds))
	for i, f := range p.cfg.Feeds {
		feeds[i] = fetch.Feed{Name: f.Name, URL: f.URL}
	}

	p.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindFetchStart, Comp: "fetch", Count: len(feeds)})
	items, errs := p.fetcher.FetchAll(ctx, feeds)
	for _, err := range errs {
		p.events.Error(otel.KindFetchError, "fetch", err)
	}
	res.Errors = len(errs)
	p.events.Emit(otel.Event{
		Level:  otel.LevelInfo,
		Kind:   otel.KindFetchComplete,
		Comp:   "fetch",
		Count:  len(items),
		Errors: len(errs),
	})

	ing, err := p.norm.Ingest(ctx, items, now)
	res.Processed = ing.Processed
	res.Created = ing.New
	res.Skipped = ing.Duplicates + ing.Skipped
	if err != nil {
		res.Errors++
		return res, err
	}

	if ing.Duplicates > 0 {
		p.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindDuplicate, Comp: "ingest", Count: ing.Duplicates})
	}
	if ing.Skipped > 0 {
		p.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindBadRecord, Comp: "ingest", Count: ing.Skipped})
	}
	return res, nil
}
