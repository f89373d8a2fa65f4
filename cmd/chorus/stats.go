package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	top := fs.Int("top", 0, "Also list the top N events by importance")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		fatal("chorus: stats: %v", err)
	}

	fmt.Printf("Database:              %s\n\n", cfg.DatabasePath())

	fmt.Printf("Articles:              %d\n", stats.Articles)
	fmt.Printf("Pending embeddings:    %d\n", stats.PendingEmbeddings)
	if stats.Articles > 0 {
		covered := stats.Articles - stats.PendingEmbeddings
		fmt.Printf("Embedding coverage:    %.1f%%\n", float64(covered)/float64(stats.Articles)*100)
	}
	fmt.Printf("Unclustered:           %d\n", stats.Unclustered)

	fmt.Printf("\nEvents:                %d\n", stats.Events)
	fmt.Printf("  confirmed:           %d\n", stats.Confirmed)
	fmt.Printf("  developing:          %d\n", stats.Developing)
	fmt.Printf("  unverified:          %d\n", stats.Unverified)
	fmt.Printf("  with conflict:       %d\n", stats.Conflicted)
	fmt.Printf("  underreported:       %d\n", stats.Underreported)

	if !stats.LastIngested.IsZero() {
		fmt.Printf("\nLast ingested:         %s (%.0fm ago)\n",
			stats.LastIngested.Format(time.RFC3339),
			time.Since(stats.LastIngested).Minutes())
	}

	if *top <= 0 {
		return
	}

	events, err := st.TopEvents(*top)
	if err != nil {
		fatal("chorus: top events: %v", err)
	}
	fmt.Printf("\nTop %d events by importance:\n", len(events))
	for _, ev := range events {
		coherence := "-"
		if ev.CoherenceScore != nil {
			coherence = fmt.Sprintf("%.0f", *ev.CoherenceScore)
		}
		flags := ""
		if ev.HasConflict {
			flags += " !conflict"
		}
		if ev.Underreported {
			flags += " !underreported"
		}
		fmt.Printf("  %-10s truth=%-3.0f coh=%-3s %-11s src=%-2d art=%-3d %s%s\n",
			truncate(ev.ID, 10), ev.TruthScore, coherence, ev.ConfidenceTier,
			ev.UniqueSources, ev.ArticlesCount, truncate(ev.Summary, 60), flags)
	}
}
