// Command chorus is the debug and maintenance CLI for the Chorus daemon.
//
// Usage:
//
//	chorus                  Show help
//	chorus stats            Pipeline statistics and event tier distribution
//	chorus events           JSONL event log viewer
//	chorus backfill         Batch embed articles missing vectors
//	chorus rescore          Recompute truth, coherence and coverage for all events
package main

import (
	"fmt"
	"os"
)

const usage = `chorus - pipeline debug & maintenance CLI

Usage:
  chorus <command> [flags]

Commands:
  stats       Pipeline statistics: articles, embeddings, events by tier
  events      JSONL event log viewer (filter by kind, level, tier)
  backfill    Batch embed articles missing vectors
  rescore     Recompute derived fields for every stored event

Environment:
  CHORUS_CONFIG      Config file path (default: built-in defaults)
  CHORUS_DATA_DIR    Data directory override
  CHORUS_DB_PATH     Database path override

Run 'chorus <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "stats":
		runStats()
	case "events":
		runEvents()
	case "backfill":
		runBackfill()
	case "rescore":
		runRescore()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "chorus: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
