package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/fetch"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/otel"
	"github.com/abelbrown/chorus/internal/store"
	"github.com/abelbrown/chorus/internal/work"
)

var pipeBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// keywordEmbedder maps texts onto fixed unit vectors by keyword, so
// related fixtures land in the same neighborhood without a live
// service. Texts about blame sit at cosine 0.66 from plain quake
// coverage: close enough to share an event, far enough to read as a
// different telling.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string // non-empty: refuse texts containing this substring
}

func (e *keywordEmbedder) Available() bool { return true }

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	lower := strings.ToLower(text)
	if e.fail != "" && strings.Contains(lower, e.fail) {
		return nil, errors.New("embed refused")
	}
	switch {
	case strings.Contains(lower, "blame"):
		return []float32{0.66, 0.75127, 0, 0}, nil
	case strings.Contains(lower, "quake"):
		return []float32{1, 0, 0, 0}, nil
	case strings.Contains(lower, "market"):
		return []float32{0, 1, 0, 0}, nil
	default:
		return []float32{0, 0, 1, 0}, nil
	}
}

// batchEmbedder adds the batch surface on top of keywordEmbedder.
type batchEmbedder struct {
	keywordEmbedder
	batches int
}

func (e *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.keywordEmbedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

type offlineEmbedder struct{}

func (offlineEmbedder) Available() bool { return false }
func (offlineEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("offline")
}

// cannedVerifier returns fixed verdicts by claim substring and records
// every claim it sees.
type cannedVerifier struct {
	mu      sync.Mutex
	claims  []string
	verdict map[string]string
	off     bool
}

func (v *cannedVerifier) Available() bool { return !v.off }

func (v *cannedVerifier) Verify(_ context.Context, claim string) (string, error) {
	v.mu.Lock()
	v.claims = append(v.claims, claim)
	v.mu.Unlock()

	lower := strings.ToLower(claim)
	for sub, verdict := range v.verdict {
		if strings.Contains(lower, sub) {
			return verdict, nil
		}
	}
	return model.FactCheckUnclear, nil
}

func (v *cannedVerifier) seen() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.claims...)
}

type cannedFetcher struct {
	items []fetch.Item
	errs  []error
}

func (f *cannedFetcher) FetchAll(context.Context, []fetch.Feed) ([]fetch.Item, []error) {
	return f.items, f.errs
}

func testPipeline(t *testing.T) (*Pipeline, *store.Store, *otel.Logger, *otel.RingBuffer) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	events := otel.NewNullLogger()
	ring := otel.NewRingBuffer(256)
	events.SetRingBuffer(ring)
	t.Cleanup(func() { events.Close() })

	registry := model.NewRegistry(model.DefaultSources())
	p := New(config.Default(), s, registry, &keywordEmbedder{}, nil, nil, events, log.New(io.Discard))
	return p, s, events, ring
}

func seedMember(t *testing.T, s *store.Store, source, title, body string, published time.Time, entities []string) model.Article {
	t.Helper()
	url := "https://" + source + "/" + strings.ReplaceAll(strings.ToLower(title), " ", "-")
	a := model.Article{
		ID:          model.HashID(url),
		URL:         url,
		Source:      source,
		SourceName:  source,
		Title:       title,
		Body:        body,
		Entities:    entities,
		Language:    "en",
		ContentHash: model.ContentHashOf(url),
		PublishedAt: published,
		IngestedAt:  published,
	}
	if _, err := s.SaveArticles([]model.Article{a}); err != nil {
		t.Fatalf("SaveArticles: %v", err)
	}
	return a
}

func singleEvent(t *testing.T, s *store.Store) model.Event {
	t.Helper()
	events, err := s.EventsTouchedSince(time.Time{})
	if err != nil {
		t.Fatalf("EventsTouchedSince: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("store has %d events, want 1", len(events))
	}
	return events[0]
}

func TestTiersSchedule(t *testing.T) {
	p, _, _, _ := testPipeline(t)

	tiers := p.Tiers()
	want := []string{"ingest", "cluster", "coherence", "factcheck", "retention"}
	if len(tiers) != len(want) {
		t.Fatalf("got %d tiers, want %d", len(tiers), len(want))
	}
	for i, name := range want {
		if tiers[i].Name != name {
			t.Errorf("tier[%d] = %q, want %q", i, tiers[i].Name, name)
		}
	}

	peak := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	offPeak := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	if got := tiers[0].Interval(peak); got != 5*time.Minute {
		t.Errorf("ingest interval at noon = %v, want 5m", got)
	}
	if got := tiers[0].Interval(offPeak); got != 15*time.Minute {
		t.Errorf("ingest interval at 03:00 = %v, want 15m", got)
	}
	if got := tiers[1].Interval(peak); got != 20*time.Minute {
		t.Errorf("cluster interval = %v, want 20m", got)
	}
	if got := tiers[4].Interval(peak); got != 24*time.Hour {
		t.Errorf("retention interval = %v, want 24h", got)
	}
}

func TestRunIngestStoresFetchedItems(t *testing.T) {
	p, s, _, _ := testPipeline(t)
	p.fetcher = &cannedFetcher{
		items: []fetch.Item{
			{
				URL:       "https://reuters.com/world/quake-1",
				Title:     "Earthquake strikes mountain region",
				Summary:   "A strong earthquake hit the mountain region on Sunday.",
				FeedName:  "Reuters World",
				Published: pipeBase,
			},
			{
				URL:       "https://bbc.co.uk/news/quake-2",
				Title:     "Villages cut off after powerful quake",
				Summary:   "Roads into the valley remain closed after the quake.",
				FeedName:  "BBC World",
				Published: pipeBase.Add(10 * time.Minute),
			},
			{
				URL:       "https://reuters.com/world/quake-1",
				Title:     "Earthquake strikes mountain region",
				Summary:   "A strong earthquake hit the mountain region on Sunday.",
				FeedName:  "Reuters World",
				Published: pipeBase,
			},
		},
		errs: []error{errors.New("feed timeout: example.org")},
	}

	res, err := p.RunIngest(context.Background(), pipeBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}
	if res.Processed != 3 || res.Created != 2 || res.Skipped != 1 || res.Errors != 1 {
		t.Errorf("Result = %+v, want 3 processed, 2 created, 1 skipped, 1 error", res)
	}

	stored, err := s.FindRecent(pipeBase.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("FindRecent: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d articles, want 2", len(stored))
	}

	// The same batch again is all duplicates.
	res, err = p.RunIngest(context.Background(), pipeBase.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second RunIngest: %v", err)
	}
	if res.Created != 0 || res.Skipped != 3 {
		t.Errorf("second Result = %+v, want 0 created, 3 skipped", res)
	}
}

func TestRunClusterFormsEventAcrossSources(t *testing.T) {
	p, s, _, _ := testPipeline(t)
	be := &batchEmbedder{}
	p.embedder = be

	entities := []string{"geo:himalaya", "topic:earthquake"}
	titles := map[string]string{
		"bbc.co.uk":     "Powerful quake shakes mountain villages",
		"reuters.com":   "Strong earthquake hits remote mountain region",
		"nytimes.com":   "Earthquake strikes high mountain valleys",
		"foxnews.com":   "Major quake rocks mountain communities",
		"aljazeera.com": "Quake felt across mountain provinces",
	}
	i := 0
	for source, title := range titles {
		seedMember(t, s, source, title, "Coverage of the quake continues as reports arrive.", pipeBase.Add(time.Duration(i)*time.Hour), entities)
		i++
	}

	res, err := p.RunCluster(context.Background(), pipeBase.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("RunCluster: %v", err)
	}
	if res.Created != 1 || res.Errors != 0 || res.Skipped != 0 {
		t.Errorf("Result = %+v, want 1 created", res)
	}
	if res.Processed != 10 { // 5 embedded + 5 scanned
		t.Errorf("Processed = %d, want 10", res.Processed)
	}
	if be.batches != 1 {
		t.Errorf("EmbedBatch called %d times, want 1", be.batches)
	}

	ev := singleEvent(t, s)
	if ev.ArticlesCount != 5 || ev.UniqueSources != 5 {
		t.Errorf("counts = %d/%d, want 5/5", ev.ArticlesCount, ev.UniqueSources)
	}
	// Three countries (uk, us, qa) against a ceiling of five.
	if ev.GeoDiversity < 0.59 || ev.GeoDiversity > 0.61 {
		t.Errorf("GeoDiversity = %v, want 0.6", ev.GeoDiversity)
	}
	if ev.TruthScore < 45 || ev.TruthScore > 55 {
		t.Errorf("TruthScore = %v, want around 49", ev.TruthScore)
	}
	if ev.ConfidenceTier != model.TierDeveloping {
		t.Errorf("tier = %q, want developing", ev.ConfidenceTier)
	}
	if ev.Summary == "" {
		t.Error("summary not set by rescore")
	}

	// A second cycle with nothing new is a no-op.
	res, err = p.RunCluster(context.Background(), pipeBase.Add(7*time.Hour))
	if err != nil {
		t.Fatalf("second RunCluster: %v", err)
	}
	if res.Processed != 0 || res.Created != 0 {
		t.Errorf("second Result = %+v, want all zero", res)
	}
}

func TestRunClusterEmbedFailureRetried(t *testing.T) {
	p, s, _, _ := testPipeline(t)
	p.embedder = &keywordEmbedder{fail: "cursed"}

	good := seedMember(t, s, "bbc.co.uk", "Quake update from the coast", "Steady coverage of the quake.", pipeBase, nil)
	bad := seedMember(t, s, "cnn.com", "Cursed quake coverage", "This cursed text never embeds.", pipeBase.Add(time.Hour), nil)

	res, err := p.RunCluster(context.Background(), pipeBase.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("RunCluster: %v", err)
	}
	if res.Errors != 1 {
		t.Errorf("Errors = %d, want 1", res.Errors)
	}

	stored, err := s.FindByURL(bad.URL)
	if err != nil || stored == nil {
		t.Fatalf("FindByURL: %v %v", stored, err)
	}
	if stored.EmbedAttempts != 1 {
		t.Errorf("EmbedAttempts = %d, want 1", stored.EmbedAttempts)
	}
	if _, ok, _ := s.GetEmbedding(bad.ContentHash); ok {
		t.Error("failed article has a stored vector")
	}
	if _, ok, _ := s.GetEmbedding(good.ContentHash); !ok {
		t.Error("good article missing its vector")
	}
}

func TestRunClusterEmbedderOffline(t *testing.T) {
	p, s, events, ring := testPipeline(t)
	p.embedder = offlineEmbedder{}

	seedMember(t, s, "bbc.co.uk", "Quake hits the coast", "Coverage of the quake.", pipeBase, nil)

	res, err := p.RunCluster(context.Background(), pipeBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunCluster: %v", err)
	}
	if res.Errors != 0 || res.Processed != 0 {
		t.Errorf("Result = %+v, want quiet no-op", res)
	}

	events.Close()
	if got := ring.Filter(string(otel.KindEmbedPending), otel.LevelDebug); len(got) != 1 {
		t.Errorf("embed.pending events = %d, want 1", len(got))
	}
}

func TestRunCoherenceScoresCoherentEvent(t *testing.T) {
	p, s, _, _ := testPipeline(t)

	entities := []string{"geo:chile", "topic:earthquake"}
	seedMember(t, s, "bbc.co.uk", "Strong earthquake shakes northern Chile", "Reports describe shaking across the north of the country.", pipeBase, entities)
	seedMember(t, s, "reuters.com", "Earthquake strikes northern Chile coast", "Coastal towns reported strong and sustained shaking.", pipeBase.Add(time.Hour), entities)
	seedMember(t, s, "aljazeera.com", "Powerful quake hits Chile", "Residents described long shaking and brief power cuts.", pipeBase.Add(2*time.Hour), entities)

	if _, err := p.RunCluster(context.Background(), pipeBase.Add(3*time.Hour)); err != nil {
		t.Fatalf("RunCluster: %v", err)
	}
	res, err := p.RunCoherence(context.Background(), pipeBase.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("RunCoherence: %v", err)
	}
	if res.Processed != 1 || res.Errors != 0 {
		t.Errorf("Result = %+v, want 1 processed", res)
	}

	ev := singleEvent(t, s)
	if ev.CoherenceScore == nil {
		t.Fatal("CoherenceScore still unset")
	}
	if *ev.CoherenceScore < 85 {
		t.Errorf("CoherenceScore = %v, want >= 85 for agreeing coverage", *ev.CoherenceScore)
	}
	if ev.HasConflict || ev.ConflictSeverity != model.SeverityNone || ev.Conflict != nil {
		t.Errorf("conflict = %v/%q/%v, want none", ev.HasConflict, ev.ConflictSeverity, ev.Conflict)
	}
	if !ev.WireSeen {
		t.Error("WireSeen = false with a Reuters member")
	}
	if ev.Underreported {
		t.Error("Underreported = true for wire-covered event")
	}
}

func TestRunCoherenceExplainsConflict(t *testing.T) {
	p, s, _, _ := testPipeline(t)

	// Two tellings of the same quake: outlets rated left praise the
	// recovery, outlets rated right blame officials. Shared location
	// entity keeps them in one event; org entities differ per outlet.
	seedMember(t, s, "nytimes.com", "Crews praised for rapid quake recovery",
		"Crews were praised as the quake recovery gathered pace across the region.",
		pipeBase, []string{"geo:nepal", "org:fema"})
	seedMember(t, s, "cnn.com", "Rescue teams praised as quake recovery advances",
		"Volunteers joined the rescue effort and praised the pace of recovery.",
		pipeBase.Add(30*time.Minute), []string{"geo:nepal", "org:redcross"})
	seedMember(t, s, "foxnews.com", "Officials blamed for quake response chaos",
		"Residents described chaos and blamed slow official response after the quake.",
		pipeBase.Add(time.Hour), []string{"geo:nepal", "org:parliament"})
	seedMember(t, s, "telegraph.co.uk", "Quake response chaos prompts blame for officials",
		"Opposition figures blamed ministers for the chaos that followed the quake.",
		pipeBase.Add(90*time.Minute), []string{"geo:nepal", "org:army"})

	if _, err := p.RunCluster(context.Background(), pipeBase.Add(2*time.Hour)); err != nil {
		t.Fatalf("RunCluster: %v", err)
	}
	ev := singleEvent(t, s)
	if ev.ArticlesCount != 4 {
		t.Fatalf("fixtures split into separate events: ArticlesCount = %d, want 4", ev.ArticlesCount)
	}

	if _, err := p.RunCoherence(context.Background(), pipeBase.Add(3*time.Hour)); err != nil {
		t.Fatalf("RunCoherence: %v", err)
	}

	ev = singleEvent(t, s)
	if ev.CoherenceScore == nil {
		t.Fatal("CoherenceScore still unset")
	}
	if *ev.CoherenceScore >= 80 || *ev.CoherenceScore < 60 {
		t.Errorf("CoherenceScore = %v, want in [60,80)", *ev.CoherenceScore)
	}
	if !ev.HasConflict || ev.ConflictSeverity != model.SeverityLow {
		t.Errorf("conflict = %v/%q, want low-severity conflict", ev.HasConflict, ev.ConflictSeverity)
	}
	if ev.Conflict == nil {
		t.Fatal("conflict explanation missing")
	}
	if err := ev.Conflict.Validate(); err != nil {
		t.Fatalf("explanation invalid: %v", err)
	}

	if len(ev.Conflict.Perspectives) != 2 {
		t.Fatalf("got %d perspectives, want 2", len(ev.Conflict.Perspectives))
	}
	left, right := ev.Conflict.Perspectives[0], ev.Conflict.Perspectives[1]
	if left.Group != "left" || right.Group != "right" {
		t.Errorf("groups = %q/%q, want left/right", left.Group, right.Group)
	}
	if left.Basis != model.BasisPolitical || right.Basis != model.BasisPolitical {
		t.Errorf("basis = %q/%q, want political", left.Basis, right.Basis)
	}
	if left.SourceCount != 2 || right.SourceCount != 2 {
		t.Errorf("source counts = %d/%d, want 2/2", left.SourceCount, right.SourceCount)
	}
	if left.Sentiment != "positive" || right.Sentiment != "negative" {
		t.Errorf("sentiments = %q/%q, want positive/negative", left.Sentiment, right.Sentiment)
	}
	if ev.Conflict.DifferenceType != model.DifferenceFraming {
		t.Errorf("difference type = %q, want framing", ev.Conflict.DifferenceType)
	}
	if !strings.Contains(ev.Conflict.KeyDifference, "left sources emphasize") {
		t.Errorf("KeyDifference = %q, want group emphasis wording", ev.Conflict.KeyDifference)
	}
	if len(ev.Conflict.NumericDiscrepancies) != 0 {
		t.Errorf("discrepancies = %v, want none in digit-free fixtures", ev.Conflict.NumericDiscrepancies)
	}
}

func TestUnderreportedFlagLifecycle(t *testing.T) {
	p, s, _, _ := testPipeline(t)

	entities := []string{"geo:atacama", "topic:earthquake"}
	seedMember(t, s, "usgs.gov", "Quake of notable depth recorded in Atacama", "The survey recorded a shallow quake in the Atacama region.", pipeBase, entities)
	seedMember(t, s, "gazette-one.example", "Atacama quake rattles mining towns", "Local mining towns felt the quake through the morning.", pipeBase.Add(time.Hour), entities)
	seedMember(t, s, "gazette-two.example", "Residents describe Atacama quake", "Residents across the valley described the quake.", pipeBase.Add(2*time.Hour), entities)
	seedMember(t, s, "gazette-three.example", "Atacama quake closes mountain road", "A rockfall after the quake closed the mountain road.", pipeBase.Add(3*time.Hour), entities)

	if _, err := p.RunCluster(context.Background(), pipeBase.Add(4*time.Hour)); err != nil {
		t.Fatalf("RunCluster: %v", err)
	}
	if _, err := p.RunCoherence(context.Background(), pipeBase.Add(5*time.Hour)); err != nil {
		t.Fatalf("RunCoherence: %v", err)
	}

	ev := singleEvent(t, s)
	if !ev.Underreported {
		t.Fatal("official-sourced event without wire coverage not flagged")
	}
	if ev.WireSeen {
		t.Error("WireSeen = true before any wire member")
	}

	// A wire picks the story up: the next cluster cycle assigns the
	// article and the next derive cycle clears the flag for good.
	seedMember(t, s, "reuters.com", "Quake strikes Atacama region", "The quake was felt across the Atacama region.", pipeBase.Add(6*time.Hour), entities)
	if _, err := p.RunCluster(context.Background(), pipeBase.Add(7*time.Hour)); err != nil {
		t.Fatalf("second RunCluster: %v", err)
	}
	res, err := p.RunCoherence(context.Background(), pipeBase.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("second RunCoherence: %v", err)
	}
	if res.Processed != 1 {
		t.Errorf("derive queue processed %d events, want the 1 touched", res.Processed)
	}

	ev = singleEvent(t, s)
	if ev.ArticlesCount != 5 {
		t.Fatalf("wire article not assigned: ArticlesCount = %d, want 5", ev.ArticlesCount)
	}
	if ev.Underreported {
		t.Error("Underreported still set after wire coverage")
	}
	if !ev.WireSeen {
		t.Error("WireSeen not latched")
	}
}

func TestRunFactCheckRecordsVerdicts(t *testing.T) {
	p, s, _, _ := testPipeline(t)

	verifier := &cannedVerifier{verdict: map[string]string{
		"aid convoy":  model.FactCheckVerified,
		"toll claims": model.FactCheckDisputed,
	}}
	pool := work.NewPool(2)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	p.verifier = verifier
	p.pool = pool

	if err := s.CreateEvent(model.Event{
		ID: "ev-fc", Summary: "quake aid", ConfidenceTier: model.TierUnverified,
		FirstSeen: pipeBase, LastSeen: pipeBase.Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	a1 := seedMember(t, s, "smallville.example", "Aid convoy reaches quake zone", "The convoy arrived overnight.", pipeBase, nil)
	a2 := seedMember(t, s, "bigcity.example", "Toll claims disputed in quake zone", "Numbers circulating online differ.", pipeBase.Add(time.Hour), nil)
	for _, a := range []model.Article{a1, a2} {
		if err := s.AssignCluster(a.ID, "ev-fc"); err != nil {
			t.Fatalf("AssignCluster: %v", err)
		}
	}
	seedMember(t, s, "elsewhere.example", "Unclustered market note", "Markets were quiet.", pipeBase, nil)

	res, err := p.RunFactCheck(context.Background(), pipeBase.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("RunFactCheck: %v", err)
	}
	if res.Processed != 2 || res.Errors != 0 {
		t.Errorf("Result = %+v, want 2 processed", res)
	}
	if got := verifier.seen(); len(got) != 2 {
		t.Errorf("verifier saw %d claims, want 2: %v", len(got), got)
	}

	for url, want := range map[string]string{
		a1.URL: model.FactCheckVerified,
		a2.URL: model.FactCheckDisputed,
	} {
		stored, err := s.FindByURL(url)
		if err != nil || stored == nil {
			t.Fatalf("FindByURL: %v %v", stored, err)
		}
		if stored.FactCheckStatus != want {
			t.Errorf("status of %s = %q, want %q", url, stored.FactCheckStatus, want)
		}
	}

	ev, err := s.GetEvent("ev-fc")
	if err != nil || ev == nil {
		t.Fatalf("GetEvent: %v %v", ev, err)
	}
	if !ev.EvidenceFlag {
		t.Error("EvidenceFlag not set after a verified member")
	}

	// Everything in the batch now carries a verdict; the next cycle has
	// nothing to do.
	res, err = p.RunFactCheck(context.Background(), pipeBase.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("second RunFactCheck: %v", err)
	}
	if res.Processed != 0 {
		t.Errorf("second Result = %+v, want idle", res)
	}
	if got := verifier.seen(); len(got) != 2 {
		t.Errorf("verifier called again on settled articles: %v", got)
	}
}

func TestRunFactCheckDefersWhenPoolBusy(t *testing.T) {
	p, s, events, ring := testPipeline(t)

	verifier := &cannedVerifier{}
	pool := work.NewPool(1) // never started: submitted work stays pending
	pool.SubmitFunc(work.TypeOther, "held", func() (string, error) { return "", nil })
	p.verifier = verifier
	p.pool = pool

	seedMember(t, s, "smallville.example", "Pending claim about the quake", "Unverified details circulate.", pipeBase, nil)

	res, err := p.RunFactCheck(context.Background(), pipeBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunFactCheck: %v", err)
	}
	if res.Processed != 0 || res.Errors != 0 {
		t.Errorf("Result = %+v, want deferred no-op", res)
	}
	if len(verifier.seen()) != 0 {
		t.Error("verifier called during a deferred cycle")
	}

	events.Close()
	if got := ring.Filter(string(otel.KindFactCheckDefer), otel.LevelDebug); len(got) != 1 {
		t.Errorf("factcheck.deferred events = %d, want 1", len(got))
	}
}

func TestRunFactCheckWithoutVerifier(t *testing.T) {
	p, _, _, _ := testPipeline(t)
	p.verifier = &cannedVerifier{off: true}

	res, err := p.RunFactCheck(context.Background(), pipeBase)
	if err != nil {
		t.Fatalf("RunFactCheck: %v", err)
	}
	if res.Processed != 0 || res.Created != 0 || res.Skipped != 0 || res.Errors != 0 {
		t.Errorf("Result = %+v, want zero", res)
	}
}

func TestRunRetentionSweepsExpired(t *testing.T) {
	p, s, _, _ := testPipeline(t)

	old := pipeBase.AddDate(0, 0, -40)
	if err := s.CreateEvent(model.Event{
		ID: "ev-old", Summary: "stale", ConfidenceTier: model.TierUnverified,
		FirstSeen: old, LastSeen: old.Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	stale := seedMember(t, s, "bbc.co.uk", "Old quake wrapup", "Archived coverage of the quake.", old, nil)
	if err := s.AssignCluster(stale.ID, "ev-old"); err != nil {
		t.Fatalf("AssignCluster: %v", err)
	}
	if err := s.SaveEmbedding(stale.ContentHash, []float32{1, 0, 0, 0}, "test-model"); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	if err := s.CreateEvent(model.Event{
		ID: "ev-fresh", Summary: "current", ConfidenceTier: model.TierUnverified,
		FirstSeen: pipeBase, LastSeen: pipeBase,
	}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	fresh := seedMember(t, s, "reuters.com", "Fresh quake coverage", "Ongoing reporting on the quake.", pipeBase, nil)
	if err := s.AssignCluster(fresh.ID, "ev-fresh"); err != nil {
		t.Fatalf("AssignCluster: %v", err)
	}

	res, err := p.RunRetention(context.Background(), pipeBase)
	if err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if res.Processed < 2 {
		t.Errorf("Processed = %d, want at least the stale event and article", res.Processed)
	}

	if ev, _ := s.GetEvent("ev-old"); ev != nil {
		t.Error("stale event survived the sweep")
	}
	if a, _ := s.FindByURL(stale.URL); a != nil {
		t.Error("stale article survived the sweep")
	}
	if _, ok, _ := s.GetEmbedding(stale.ContentHash); ok {
		t.Error("stranded embedding survived the sweep")
	}
	if ev, _ := s.GetEvent("ev-fresh"); ev == nil {
		t.Error("fresh event was swept")
	}
	if a, _ := s.FindByURL(fresh.URL); a == nil {
		t.Error("fresh article was swept")
	}
}
