// Command chorusd is the Chorus pipeline daemon.
//
// It loads the configuration, opens the SQLite store and the JSONL
// event log, wires the processing stages into the five scheduler
// tiers, and runs until SIGINT or SIGTERM. Shutdown cancels the root
// context; in-flight tier runs finish their current batch before the
// scheduler winds down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/factcheck"
	"github.com/abelbrown/chorus/internal/logging"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/pipeline"
	"github.com/abelbrown/chorus/internal/sched"
	"github.com/abelbrown/chorus/internal/store"
	"github.com/abelbrown/chorus/internal/work"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (empty: built-in defaults plus CHORUS_* env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("chorusd: %v", err)
	}

	if err := logging.Init(cfg.DataDir, cfg.LogLevel); err != nil {
		fatal("chorusd: %v", err)
	}
	defer logging.Close()
	logging.Info("chorusd starting", "data_dir", cfg.DataDir, "feeds", len(cfg.Feeds))

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		logging.Fatal("open store", "path", cfg.DatabasePath(), "error", err)
	}
	defer st.Close()
	logging.Info("store opened", "path", cfg.DatabasePath())

	events, eventFile, err := otel.OpenFileLogger(cfg.EventLogPath())
	if err != nil {
		logging.Fatal("open event log", "path", cfg.EventLogPath(), "error", err)
	}
	defer eventFile.Close()
	defer events.Close()
	events.SetRingBuffer(otel.NewRingBuffer(otel.DefaultRingSize))

	registry := model.NewRegistry(model.DefaultSources())
	registry.Merge(cfg.Sources)

	embedder, err := embed.FromConfig(cfg.Embed)
	if err != nil {
		logging.Fatal("configure embedder", "error", err)
	}
	if !embedder.Available() {
		logging.Warn("embedder unreachable, articles will queue until it comes up",
			"provider", cfg.Embed.Provider)
	}

	verifier := factcheck.NewClient(cfg.FactCheck)
	if !verifier.Available() {
		logging.Info("fact-check endpoint not configured, tier 4 idles")
	}

	pool := work.NewPool(cfg.FactCheck.Workers)
	pool.Start(context.Background())
	defer pool.Stop()

	p := pipeline.New(cfg, st, registry, embedder, verifier, pool, events, logging.WithPrefix("pipeline"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler := sched.New(p.Tiers(), nil, events, logging.WithPrefix("sched"))
	scheduler.Start(ctx)
	events.Info(otel.KindStartup, "sys", "chorusd started")

	<-ctx.Done()
	logging.Info("signal received, shutting down")

	scheduler.Wait()
	events.Info(otel.KindShutdown, "sys", "chorusd stopped")
	logging.Info("chorusd stopped")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
