package truth

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/normalize"
)

// CategoryOther is the fallback when no keyword fires.
const CategoryOther = "other"

// categoryTerms maps each category to single-token markers; matching is
// exact against the token set of member titles and entities, so "app"
// never fires inside "apple".
var categoryTerms = map[string][]string{
	"disaster": {"earthquake", "quake", "aftershock", "magnitude", "flood", "flooding", "hurricane", "typhoon", "cyclone", "wildfire", "tsunami", "landslide", "eruption", "volcano", "drought", "tornado", "blizzard", "evacuation", "evacuated"},
	"conflict": {"war", "airstrike", "airstrikes", "missile", "missiles", "troops", "military", "ceasefire", "offensive", "invasion", "rebels", "insurgents", "shelling", "hostage", "hostages", "casualties", "combat"},
	"politics": {"election", "elections", "parliament", "senate", "congress", "minister", "president", "vote", "ballot", "coalition", "campaign", "legislation", "referendum", "cabinet", "impeachment", "sanctions", "treaty", "summit"},
	"health":   {"outbreak", "virus", "vaccine", "vaccines", "epidemic", "pandemic", "cholera", "ebola", "hospital", "hospitals", "infection", "infections", "disease", "malaria", "measles", "quarantine"},
	"science":  {"telescope", "spacecraft", "nasa", "probe", "genome", "fossil", "climate", "species", "asteroid", "lunar", "orbit", "researchers", "physicists", "astronomers"},
	"tech":     {"software", "startup", "chip", "chips", "semiconductor", "cyberattack", "ransomware", "smartphone", "algorithm", "outage", "hackers"},
	"finance":  {"market", "markets", "stocks", "shares", "inflation", "bank", "banks", "earnings", "currency", "bond", "bonds", "ipo", "merger", "bailout", "deficit", "gdp", "tariff", "tariffs"},
}

// categoryPhrases holds the multi-word markers, matched as substrings of
// the cleaned text.
var categoryPhrases = map[string][]string{
	"tech":    {"artificial intelligence", "data breach", "machine learning"},
	"finance": {"interest rate", "interest rates", "central bank", "stock market"},
	"science": {"space station", "climate change", "clinical trial"},
	"health":  {"public health", "health ministry"},
}

// Classify buckets an event by keyword hits over member titles and
// entities. Confidence is the winning bucket's share of all hits; zero
// hits fall through to "other" with zero confidence.
func Classify(members []model.Article) (string, float64) {
	counts := make(map[string]int)
	total := 0

	for _, m := range members {
		text := m.Title + " " + strings.Join(m.Entities, " ")
		tokens := normalize.TokenSet(text)
		cleaned := normalize.Clean(text)

		for cat, terms := range categoryTerms {
			for _, term := range terms {
				if _, ok := tokens[term]; ok {
					counts[cat]++
					total++
				}
			}
		}
		for cat, phrases := range categoryPhrases {
			for _, p := range phrases {
				if strings.Contains(cleaned, p) {
					counts[cat]++
					total++
				}
			}
		}
	}

	if total == 0 {
		return CategoryOther, 0
	}

	// Alphabetical walk keeps ties deterministic.
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	best, bestN := CategoryOther, 0
	for _, c := range cats {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return best, float64(bestN) / float64(total)
}

// Importance formula constants. Volume and reach dominate; momentum
// keeps a fast-moving story above an equally large stale one.
const (
	importanceArticlesWeight = 0.5
	importanceSourcesWeight  = 0.3
	importanceMomentumWeight = 0.2

	importanceHalflife = 48 * time.Hour
	momentumWindow     = 6 * time.Hour
)

// importance scores how much attention the event deserves right now:
// log-damped volume, reach, and momentum, scaled by recency decay and
// clamped to [0,100]. Momentum is members published inside the last
// momentumWindow, per hour.
func importance(members []model.Article, now time.Time) float64 {
	articles := float64(len(members))
	sources := float64(countSources(members))

	recent := 0
	for _, m := range members {
		if age := now.Sub(m.PublishedAt); age >= 0 && age <= momentumWindow {
			recent++
		}
	}
	momentum := float64(recent) / momentumWindow.Hours()

	_, last := span(members)
	age := now.Sub(last)
	if age < 0 {
		age = 0
	}

	raw := importanceArticlesWeight*math.Log1p(articles) +
		importanceSourcesWeight*math.Log1p(sources) +
		importanceMomentumWeight*math.Log1p(momentum)
	return clamp(100*raw*math.Exp(-age.Hours()/importanceHalflife.Hours()), 0, 100)
}
