package pipeline

import (
	"context"
	"fmt"

	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/otel"
)

// embedPending backfills vectors for articles that still need one, up
// to the configured batch per cycle. Batch-capable embedders get one
// call; a failed batch falls back to per-article requests so one bad
// text cannot poison the rest. Articles that fail get their attempt
// counter bumped and are retried next cycle.
func (p *Pipeline) embedPending(ctx context.Context) (embedded, failed int, err error) {
	pending, err := p.store.ArticlesNeedingEmbedding(p.cfg.Embed.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("pipeline: load pending embeddings: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	if p.embedder == nil || !p.embedder.Available() {
		p.events.Emit(otel.Event{
			Level: otel.LevelWarn,
			Kind:  otel.KindEmbedPending,
			Comp:  "embed",
			Count: len(pending),
			Msg:   "embedder unavailable",
		})
		return 0, 0, nil
	}

	vecs := p.embedArticles(ctx, pending)

	var failedIDs []string
	for i, a := range pending {
		if ctx.Err() != nil {
			break
		}
		if vecs[i] == nil {
			failedIDs = append(failedIDs, a.ID)
			continue
		}
		if err := p.store.SaveEmbedding(a.ContentHash, vecs[i], p.embedModel()); err != nil {
			p.events.Error(otel.KindStoreError, "embed", err)
			failedIDs = append(failedIDs, a.ID)
			continue
		}
		embedded++
	}

	if len(failedIDs) > 0 {
		if err := p.store.BumpEmbedAttempts(failedIDs); err != nil {
			p.events.Error(otel.KindStoreError, "embed", err)
		}
		p.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindEmbedError, Comp: "embed", Count: len(failedIDs)})
	}
	if embedded > 0 {
		p.events.Emit(otel.Event{
			Level: otel.LevelInfo,
			Kind:  otel.KindEmbedBatch,
			Comp:  "embed",
			Count: embedded,
			Dims:  p.cfg.Embed.Dimensions,
		})
	}
	return embedded, len(failedIDs), nil
}

// embedArticles returns one vector per article, nil where embedding
// failed.
func (p *Pipeline) embedArticles(ctx context.Context, articles []model.Article) [][]float32 {
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.EmbedText(p.cfg.Embed.MaxChars)
	}

	if batcher, ok := p.embedder.(embed.BatchEmbedder); ok {
		vecs, err := batcher.EmbedBatch(ctx, texts)
		if err == nil && len(vecs) == len(articles) {
			return vecs
		}
		if err != nil {
			p.events.Error(otel.KindEmbedError, "embed", err)
		}
	}

	vecs := make([][]float32, len(articles))
	for i := range articles {
		if ctx.Err() != nil {
			return vecs
		}
		vec, err := p.embedder.Embed(ctx, texts[i])
		if err != nil {
			p.events.Error(otel.KindEmbedError, "embed", err)
			continue
		}
		vecs[i] = vec
	}
	return vecs
}

// embedModel names the model recorded alongside saved vectors.
func (p *Pipeline) embedModel() string {
	if p.cfg.Embed.Provider == "http" {
		return p.cfg.Embed.Model
	}
	return p.cfg.Embed.OllamaModel
}
