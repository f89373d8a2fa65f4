// Package coherence measures how consistently an event's members tell
// the same story, and explains the disagreement when they do not. The
// score blends three signals: semantic similarity of member embeddings,
// entity agreement across distinct sources, and title consistency. An
// event below the conflict threshold gets a freshly derived narrative
// explanation; explanations are never patched.
package coherence

import (
	"math"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/normalize"
)

// Raw pairwise Jaccard tops out well below 1 even for same-story
// coverage; these ceilings mark where each signal saturates to a fully
// coherent 100.
const (
	entitySaturation = 0.5
	titleSaturation  = 0.35
)

// Engine evaluates event coherence against a source registry.
type Engine struct {
	cfg     config.CoherenceConfig
	sources *model.Registry
}

func New(cfg config.CoherenceConfig, sources *model.Registry) *Engine {
	return &Engine{cfg: cfg, sources: sources}
}

// Evaluation is the outcome of one coherence pass over an event.
type Evaluation struct {
	Score       float64
	HasConflict bool
	Severity    model.ConflictSeverity
	Explanation *model.ConflictExplanation
}

// Evaluate scores the members' coherence. vectors maps content hashes to
// embeddings; the semantic signal drops out when fewer than two members
// have one, and the remaining weights renormalize. Events with fewer
// than two members are fully coherent by definition.
func (e *Engine) Evaluate(members []model.Article, vectors map[string][]float32) Evaluation {
	if len(members) < 2 {
		return Evaluation{Score: 100, Severity: model.SeverityNone}
	}

	var weighted, total float64
	if v, ok := semanticScore(members, vectors); ok {
		weighted += e.cfg.WeightSemantic * v
		total += e.cfg.WeightSemantic
	}
	if v, ok := entityScore(members); ok {
		weighted += e.cfg.WeightEntity * v
		total += e.cfg.WeightEntity
	}
	if v, ok := titleScore(members); ok {
		weighted += e.cfg.WeightTitle * v
		total += e.cfg.WeightTitle
	}
	if total == 0 {
		// Nothing measurable; do not invent a conflict out of silence.
		return Evaluation{Score: 100, Severity: model.SeverityNone}
	}

	score := clamp(weighted/total, 0, 100)
	out := Evaluation{Score: score, Severity: model.SeverityNone}
	if score < e.cfg.ConflictThreshold {
		out.HasConflict = true
		out.Severity = SeverityFor(score)
		if out.Severity == model.SeverityNone {
			// Threshold raised above the fixed bands; mildest bucket.
			out.Severity = model.SeverityLow
		}
		out.Explanation = e.explain(members, vectors)
	}
	return out
}

// SeverityFor buckets a coherence score into the fixed severity bands:
// below 40 high, below 60 medium, below 80 low, otherwise none. The
// bands do not move with the configured conflict threshold.
func SeverityFor(score float64) model.ConflictSeverity {
	switch {
	case score < 40:
		return model.SeverityHigh
	case score < 60:
		return model.SeverityMedium
	case score < 80:
		return model.SeverityLow
	default:
		return model.SeverityNone
	}
}

// semanticScore is the mean pairwise cosine similarity over members with
// vectors, in [0,100]. Negative similarity counts as zero agreement.
func semanticScore(members []model.Article, vectors map[string][]float32) (float64, bool) {
	vecs := make([][]float32, 0, len(members))
	for _, m := range members {
		if v, ok := vectors[m.ContentHash]; ok && v != nil {
			vecs = append(vecs, v)
		}
	}
	if len(vecs) < 2 {
		return 0, false
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sum += math.Max(0, float64(embed.CosineSimilarity(vecs[i], vecs[j])))
			pairs++
		}
	}
	return 100 * sum / float64(pairs), true
}

// entityScore is the mean entity Jaccard over member pairs from distinct
// sources, scaled by the saturation ceiling. Same-source pairs carry no
// cross-outlet information; pairs where a side has no entities carry no
// signal either way. Both are skipped.
func entityScore(members []model.Article) (float64, bool) {
	var sum float64
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if members[i].Source == members[j].Source {
				continue
			}
			if len(members[i].Entities) == 0 || len(members[j].Entities) == 0 {
				continue
			}
			sum += normalize.EntityOverlap(members[i].Entities, members[j].Entities)
			pairs++
		}
	}
	if pairs == 0 {
		return 0, false
	}
	mean := sum / float64(pairs)
	return 100 * math.Min(1, mean/entitySaturation), true
}

// titleScore is the mean pairwise title token-Jaccard over all members,
// scaled by the saturation ceiling.
func titleScore(members []model.Article) (float64, bool) {
	sets := make([]map[string]struct{}, len(members))
	for i, m := range members {
		sets[i] = normalize.TokenSet(m.Title)
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += normalize.SetJaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0, false
	}
	mean := sum / float64(pairs)
	return 100 * math.Min(1, mean/titleSaturation), true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
