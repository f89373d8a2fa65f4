package coherence

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/abelbrown/chorus/internal/model"
)

// highRatio marks a discrepancy as headline-grade: the largest reported
// value is at least ten times the smallest.
const highRatio = 10

type quantityPattern struct {
	context string
	re      *regexp.Regexp
	scaled  bool // second capture group is a scale word
}

// Each pattern captures the value in group 1. Both keyword orders are
// covered for counts ("600 killed", "killed at least 600").
var quantityPatterns = []quantityPattern{
	{context: "casualties", re: regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(?:people\s+|persons\s+)?(?:dead|killed|died|deaths?|fatalities|casualties)\b`)},
	{context: "casualties", re: regexp.MustCompile(`(?i)\b(?:death toll|killed|kills?|deaths?|fatalities|toll)\b\D{0,24}?(\d[\d,]*)`)},
	{context: "injured", re: regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(?:people\s+|persons\s+)?(?:injured|wounded|hurt)\b`)},
	{context: "injured", re: regexp.MustCompile(`(?i)\b(?:injured|wounded)\b\D{0,24}?(\d[\d,]*)`)},
	{context: "magnitude", re: regexp.MustCompile(`(?i)\bmagnitude[\s-]*(\d+(?:\.\d+)?)`)},
	{context: "magnitude", re: regexp.MustCompile(`\bM(\d\.\d+)\b`)},
	{context: "money", re: regexp.MustCompile(`(?i)[$€£]\s?(\d[\d,]*(?:\.\d+)?)\s*(million|billion|trillion)?`), scaled: true},
	{context: "money", re: regexp.MustCompile(`(?i)\b(\d[\d,]*(?:\.\d+)?)\s*(million|billion|trillion)\s+(?:dollars|euros|pounds)`), scaled: true},
	{context: "percent", re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:%|percent\b)`)},
}

// findDiscrepancies compares the quantities each group reports. A context
// becomes a discrepancy when at least two groups report it with different
// values; each group contributes its largest figure for the context.
func findDiscrepancies(groups []memberGroup) []model.NumericDiscrepancy {
	byContext := map[string]map[string]float64{}
	for _, g := range groups {
		agg := map[string]float64{}
		for _, m := range g.members {
			for ctx, v := range quantitiesIn(m.Title + " " + m.Summary + " " + m.Body) {
				if v > agg[ctx] {
					agg[ctx] = v
				}
			}
		}
		for ctx, v := range agg {
			if byContext[ctx] == nil {
				byContext[ctx] = map[string]float64{}
			}
			byContext[ctx][g.name] = v
		}
	}

	contexts := make([]string, 0, len(byContext))
	for ctx := range byContext {
		contexts = append(contexts, ctx)
	}
	sort.Strings(contexts)

	var out []model.NumericDiscrepancy
	for _, ctx := range contexts {
		vals := byContext[ctx]
		if len(vals) < 2 {
			continue
		}
		lo, hi := minMax(vals)
		if lo == hi {
			continue
		}
		ratio := hi / lo
		sig := "low"
		if ratio >= highRatio {
			sig = "high"
		}
		out = append(out, model.NumericDiscrepancy{
			Context:       ctx,
			ValuesByGroup: vals,
			Ratio:         ratio,
			Significance:  sig,
		})
	}
	return out
}

// quantitiesIn extracts context-tagged quantities from one text, keeping
// the largest value per context. Only positive values are kept.
func quantitiesIn(text string) map[string]float64 {
	out := map[string]float64{}
	for _, p := range quantityPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			scale := ""
			if p.scaled && len(m) > 2 {
				scale = m[2]
			}
			v, ok := parseQuantity(m[1], scale)
			if !ok {
				continue
			}
			if v > out[p.context] {
				out[p.context] = v
			}
		}
	}
	return out
}

func parseQuantity(raw, scale string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(scale) {
	case "million":
		v *= 1e6
	case "billion":
		v *= 1e9
	case "trillion":
		v *= 1e12
	}
	return v, true
}

func minMax(vals map[string]float64) (lo, hi float64) {
	first := true
	for _, v := range vals {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
