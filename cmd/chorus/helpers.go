package main

import (
	"fmt"
	"os"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/store"
)

// loadConfig loads the config the same way the daemon does: file named
// by CHORUS_CONFIG if set, then env overrides, then validation.
func loadConfig() *config.Config {
	cfg, err := config.Load(os.Getenv("CHORUS_CONFIG"))
	if err != nil {
		fatal("chorus: %v", err)
	}
	return cfg
}

// openDB opens the store read-write or exits.
func openDB(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		fatal("chorus: open database %s: %v", cfg.DatabasePath(), err)
	}
	return st
}

// sourceRegistry builds the same registry the daemon runs with.
func sourceRegistry(cfg *config.Config) *model.Registry {
	r := model.NewRegistry(model.DefaultSources())
	r.Merge(cfg.Sources)
	return r
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
