// Package truth derives an event's truth score, confidence tier, and
// aggregate counters from its full member set. Every value is a pure
// recompute: nothing here reads a previous score, so a rescore after any
// membership change always lands on the same answer as a fresh one.
package truth

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/model"
)

// Scorer computes truth scores and event aggregates against a source
// registry.
type Scorer struct {
	cfg     config.TruthConfig
	sources *model.Registry
}

func New(cfg config.TruthConfig, sources *model.Registry) *Scorer {
	return &Scorer{cfg: cfg, sources: sources}
}

// Component is one named, weighted sub-score. Value is normalized to
// [0,100] before weighting.
type Component struct {
	Name   string
	Weight float64
	Value  float64
}

// Score returns the weighted truth score in [0,100] and the components
// behind it.
func (s *Scorer) Score(members []model.Article) (float64, []Component) {
	comps := []Component{
		{
			Name:   "source_diversity",
			Weight: s.cfg.WeightSourceDiversity,
			Value:  100 * ratio(countSources(members), s.cfg.SourceCeiling),
		},
		{
			Name:   "geo_diversity",
			Weight: s.cfg.WeightGeoDiversity,
			Value:  100 * ratio(s.countCountries(members), s.cfg.GeoCeiling),
		},
		{
			Name:   "official_match",
			Weight: s.cfg.WeightOfficialMatch,
			Value:  boolScore(s.hasOfficial(members)),
		},
		{
			Name:   "evidence",
			Weight: s.cfg.WeightEvidence,
			Value:  s.evidenceScore(members),
		},
	}

	var score float64
	for _, c := range comps {
		score += c.Weight * c.Value
	}
	return clamp(score, 0, 100), comps
}

// TierFor maps a truth score to its confidence tier. Pure and without
// hysteresis: 74.9 is developing, 75.0 is confirmed.
func TierFor(score float64) model.ConfidenceTier {
	switch {
	case score >= 75:
		return model.TierConfirmed
	case score >= 40:
		return model.TierDeveloping
	default:
		return model.TierUnverified
	}
}

// Recompute refreshes every field the scoring pass owns on ev from the
// full member set: truth score and tier, the aggregate counters, bias
// compass, languages, category, importance, summary, and the seen span.
// Coherence and coverage fields are left untouched.
func (s *Scorer) Recompute(ev *model.Event, members []model.Article, now time.Time) {
	if len(members) == 0 {
		return
	}

	ev.ArticlesCount = len(members)
	ev.UniqueSources = countSources(members)
	ev.GeoDiversity = ratio(s.countCountries(members), s.cfg.GeoCeiling)
	ev.EvidenceFlag = s.countEvidence(members) > 0
	ev.OfficialMatch = s.hasOfficial(members)

	score, _ := s.Score(members)
	ev.TruthScore = score
	ev.ConfidenceTier = TierFor(score)

	ev.BiasCompass = s.meanBias(members)
	ev.Languages = languages(members)
	ev.Category, ev.CategoryConfidence = Classify(members)
	ev.Summary = representativeTitle(members)

	ev.FirstSeen, ev.LastSeen = span(members)
	ev.ImportanceScore = importance(members, now)
}

func countSources(members []model.Article) int {
	seen := make(map[string]bool)
	for _, m := range members {
		seen[m.Source] = true
	}
	return len(seen)
}

// countCountries counts distinct outlet countries. Outlets the registry
// does not place anywhere contribute nothing; geo diversity claims only
// what the registry can back up.
func (s *Scorer) countCountries(members []model.Article) int {
	seen := make(map[string]bool)
	for _, m := range members {
		if c := s.sources.Country(m.Source); c != "" {
			seen[c] = true
		}
	}
	return len(seen)
}

func (s *Scorer) hasOfficial(members []model.Article) bool {
	for _, m := range members {
		if s.sources.Kind(m.Source) == model.SourceOfficial {
			return true
		}
	}
	return false
}

// attributionPhrases mark an official statement or report reference in
// article text. Lowercase; bodies are matched case-insensitively.
var attributionPhrases = []string{
	"in a statement",
	"in a press release",
	"officials said",
	"officials confirmed",
	"according to officials",
	"according to a statement",
	"the ministry said",
	"the agency said",
	"spokesperson said",
}

// hasEvidence reports whether one member carries corroborating material:
// an image, an external verification, a primary-document reference, or
// an official-statement attribution.
func (s *Scorer) hasEvidence(a model.Article) bool {
	if len(a.Images) > 0 {
		return true
	}
	if a.FactCheckStatus == model.FactCheckVerified {
		return true
	}
	body := strings.ToLower(a.Body)
	if strings.Contains(body, ".gov") || strings.Contains(body, ".int") {
		return true
	}
	for _, p := range attributionPhrases {
		if strings.Contains(body, p) {
			return true
		}
	}
	return false
}

func (s *Scorer) countEvidence(members []model.Article) int {
	n := 0
	for _, m := range members {
		if s.hasEvidence(m) {
			n++
		}
	}
	return n
}

// evidenceScore is the evidence-carrying fraction of the member set,
// in [0,100].
func (s *Scorer) evidenceScore(members []model.Article) float64 {
	if len(members) == 0 {
		return 0
	}
	return 100 * float64(s.countEvidence(members)) / float64(len(members))
}

// meanBias averages the member sources' compasses, skipping outlets with
// no rating. Zero when nothing in the event is rated.
func (s *Scorer) meanBias(members []model.Article) model.BiasCompass {
	var sum model.BiasCompass
	rated := 0
	for _, m := range members {
		b := s.sources.Bias(m.Source)
		if b.Zero() {
			continue
		}
		sum.Left += b.Left
		sum.Center += b.Center
		sum.Right += b.Right
		rated++
	}
	if rated == 0 {
		return model.BiasCompass{}
	}
	return model.BiasCompass{
		Left:   sum.Left / float64(rated),
		Center: sum.Center / float64(rated),
		Right:  sum.Right / float64(rated),
	}.Normalized()
}

func languages(members []model.Article) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range members {
		if m.Language == "" || seen[m.Language] {
			continue
		}
		seen[m.Language] = true
		out = append(out, m.Language)
	}
	sort.Strings(out)
	return out
}

// representativeTitle picks the member sharing the most entities with
// the rest of the event. Plain intersection counts, not Jaccard: a
// member should not win by having almost no entities of its own.
// Members arrive published-ordered, so ties keep the earliest.
func representativeTitle(members []model.Article) string {
	if len(members) == 1 {
		return members[0].Title
	}
	best, bestScore := 0, -1
	for i := range members {
		total := 0
		for j := range members {
			if i != j {
				total += sharedEntities(members[i].Entities, members[j].Entities)
			}
		}
		if total > bestScore {
			best, bestScore = i, total
		}
	}
	return members[best].Title
}

func sharedEntities(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, e := range a {
		set[e] = true
	}
	n := 0
	for _, e := range b {
		if set[e] {
			n++
		}
	}
	return n
}

func span(members []model.Article) (time.Time, time.Time) {
	first, last := members[0].PublishedAt, members[0].PublishedAt
	for _, m := range members[1:] {
		if m.PublishedAt.Before(first) {
			first = m.PublishedAt
		}
		if m.PublishedAt.After(last) {
			last = m.PublishedAt
		}
	}
	return first, last
}

// ratio is n over ceiling capped at 1. A non-positive ceiling saturates
// immediately rather than dividing by zero.
func ratio(n, ceiling int) float64 {
	if n <= 0 {
		return 0
	}
	if ceiling <= 0 || n >= ceiling {
		return 1
	}
	return float64(n) / float64(ceiling)
}

func boolScore(b bool) float64 {
	if b {
		return 100
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
