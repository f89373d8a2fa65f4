package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/model"
)

func runBackfill() {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	batchSize := fs.Int("batch-size", 0, "Articles per batch (default: config embed batch size)")
	dryRun := fs.Bool("dry-run", false, "Show counts without embedding")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	if *batchSize <= 0 {
		*batchSize = cfg.Embed.BatchSize
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st := openDB(cfg)
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		fatal("chorus: stats: %v", err)
	}
	fmt.Printf("Database: %s\n", cfg.DatabasePath())
	fmt.Printf("Total articles: %d\n", stats.Articles)
	fmt.Printf("Needing embedding: %d\n", stats.PendingEmbeddings)
	fmt.Println()

	if *dryRun {
		fmt.Println("(dry run, no changes made)")
		return
	}
	if stats.PendingEmbeddings == 0 {
		fmt.Println("Nothing to do.")
		return
	}

	embedder, err := embed.FromConfig(cfg.Embed)
	if err != nil {
		fatal("chorus: %v", err)
	}
	if !embedder.Available() {
		fatal("chorus: embedding provider %q is not reachable", cfg.Embed.Provider)
	}
	modelName := cfg.Embed.OllamaModel
	if cfg.Embed.Provider == "http" {
		modelName = cfg.Embed.Model
	}
	fmt.Printf("Using %s via %s\n", modelName, cfg.Embed.Provider)
	fmt.Println("Starting backfill... (Ctrl+C to stop, re-run to resume)")
	fmt.Println()

	embedded := 0
	for {
		if ctx.Err() != nil {
			fmt.Printf("\nInterrupted. Embedded %d articles. Re-run to continue.\n", embedded)
			return
		}

		articles, err := st.ArticlesNeedingEmbedding(*batchSize)
		if err != nil {
			fatal("chorus: load articles: %v", err)
		}
		if len(articles) == 0 {
			break
		}

		vecs := embedBatch(ctx, embedder, articles, cfg.Embed.MaxChars)

		saved := 0
		var failed []string
		for i, a := range articles {
			if ctx.Err() != nil {
				break
			}
			if vecs[i] == nil {
				failed = append(failed, a.ID)
				continue
			}
			if err := st.SaveEmbedding(a.ContentHash, vecs[i], modelName); err != nil {
				fmt.Fprintf(os.Stderr, "warning: save embedding for %s: %v\n", a.ID, err)
				failed = append(failed, a.ID)
				continue
			}
			saved++
		}
		if len(failed) > 0 {
			if err := st.BumpEmbedAttempts(failed); err != nil {
				fmt.Fprintf(os.Stderr, "warning: record failed attempts: %v\n", err)
			}
		}

		embedded += saved
		if saved == 0 {
			fmt.Printf("\nNo progress on a batch of %d, stopping. Re-run to retry.\n", len(articles))
			return
		}

		after, _ := st.GetStats()
		fmt.Printf("Embedded %d articles (%d remaining)\n", embedded, after.PendingEmbeddings)
	}

	fmt.Printf("\nDone! Embedded %d articles total.\n", embedded)
}

// embedBatch embeds article texts, preferring the batch endpoint when the
// provider supports it. The result has the same length as articles; a nil
// vector marks a failed item.
func embedBatch(ctx context.Context, embedder embed.Embedder, articles []model.Article, maxChars int) [][]float32 {
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.EmbedText(maxChars)
	}

	if batcher, ok := embedder.(embed.BatchEmbedder); ok {
		vecs, err := batcher.EmbedBatch(ctx, texts)
		if err == nil && len(vecs) == len(articles) {
			return vecs
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: batch embed failed, falling back to per-article: %v\n", err)
		}
	}

	vecs := make([][]float32, len(articles))
	for i, text := range texts {
		if ctx.Err() != nil {
			break
		}
		v, err := embedder.Embed(ctx, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: embed %s: %v\n", articles[i].ID, err)
			continue
		}
		vecs[i] = v
	}
	return vecs
}
