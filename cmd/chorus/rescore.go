package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abelbrown/chorus/internal/coherence"
	"github.com/abelbrown/chorus/internal/coverage"
	"github.com/abelbrown/chorus/internal/truth"
)

// runRescore walks every stored event and recomputes truth, coherence
// and coverage from the current member set, the same derivation the
// daemon's tier 3 performs. Useful after changing scoring weights or
// the source registry.
func runRescore() {
	fs := flag.NewFlagSet("rescore", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Stop after N events (0 = all)")
	verbose := fs.Bool("v", false, "Print a line per event")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	registry := sourceRegistry(cfg)
	scorer := truth.New(cfg.Truth, registry)
	engine := coherence.New(cfg.Coherence, registry)
	detector := coverage.New(cfg.Coverage, registry)

	events, err := st.EventsTouchedSince(time.Time{})
	if err != nil {
		fatal("chorus: load events: %v", err)
	}
	fmt.Printf("Rescoring %d events...\n", len(events))

	now := time.Now().UTC()
	updated, empty, failed := 0, 0, 0
	for i := range events {
		if *limit > 0 && updated >= *limit {
			break
		}
		ev := &events[i]

		members, err := st.EventMembers(ev.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: members of %s: %v\n", ev.ID, err)
			failed++
			continue
		}
		if len(members) == 0 {
			empty++
			continue
		}

		hashes := make([]string, len(members))
		for j, m := range members {
			hashes[j] = m.ContentHash
		}
		vectors, err := st.EmbeddingsByHash(hashes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: vectors of %s: %v\n", ev.ID, err)
			failed++
			continue
		}

		before := ev.TruthScore
		scorer.Recompute(ev, members, now)

		eval := engine.Evaluate(members, vectors)
		score := eval.Score
		ev.CoherenceScore = &score
		ev.HasConflict = eval.HasConflict
		ev.ConflictSeverity = eval.Severity
		ev.Conflict = eval.Explanation

		cov := detector.Assess(ev, members)
		ev.Underreported = cov.Underreported
		ev.WireSeen = cov.WireSeen

		if err := st.UpdateEventDerived(*ev); err != nil {
			fmt.Fprintf(os.Stderr, "warning: update %s: %v\n", ev.ID, err)
			failed++
			continue
		}
		updated++

		if *verbose {
			fmt.Printf("  %-10s truth %3.0f -> %3.0f  coherence %3.0f  members %d  %s\n",
				truncate(ev.ID, 10), before, ev.TruthScore, score, len(members),
				truncate(ev.Summary, 50))
		}
	}

	fmt.Printf("Done: %d updated, %d empty, %d failed.\n", updated, empty, failed)
}
