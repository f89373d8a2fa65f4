package coherence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/normalize"
)

const (
	// rawKeywordCount is how many frequent terms each group contributes
	// before overlap with other groups is subtracted.
	rawKeywordCount = 8
	// focusKeywordCount caps the distinct terms kept per perspective.
	focusKeywordCount = 5

	minExcerptChars = 40
	maxExcerptChars = 240
	// sentencesScanned bounds how deep into a body excerpt ranking looks.
	sentencesScanned = 12
)

// memberGroup is one perspective's articles before derivation.
type memberGroup struct {
	name    string
	members []model.Article
}

// explain derives a complete conflict explanation from scratch. Nothing
// here reads the previous explanation; a stale narrative is worse than a
// recomputed one.
func (e *Engine) explain(members []model.Article, vectors map[string][]float32) *model.ConflictExplanation {
	groups, basis := e.groupMembers(members)

	raw := make(map[string][]string, len(groups))
	for _, g := range groups {
		raw[g.name] = topKeywords(g.members, rawKeywordCount)
	}

	perspectives := make([]model.NarrativePerspective, 0, len(groups))
	for _, g := range groups {
		focus := subtractKeywords(raw[g.name], raw, g.name)
		perspectives = append(perspectives, model.NarrativePerspective{
			Group:               g.name,
			Basis:               basis,
			SourceCount:         countGroupSources(g.members),
			RepresentativeTitle: representativeTitle(g.members, vectors),
			FocusKeywords:       focus,
			Sentiment:           sentimentLabel(g.members),
			Excerpts:            rankExcerpts(g.members, focus, e.cfg.MaxExcerpts),
		})
	}

	discrepancies := findDiscrepancies(groups)

	return &model.ConflictExplanation{
		Perspectives:         perspectives,
		KeyDifference:        keyDifference(perspectives, raw, discrepancies),
		DifferenceType:       differenceType(perspectives, raw, discrepancies),
		NumericDiscrepancies: discrepancies,
	}
}

// groupMembers partitions members into perspective groups. Political
// lean wins when at least two distinct leans are represented; country
// is the fallback; failing both, each source stands alone so the
// explanation still names who disagrees with whom.
func (e *Engine) groupMembers(members []model.Article) ([]memberGroup, model.PerspectiveBasis) {
	byLean := map[string][]model.Article{}
	for _, m := range members {
		if lean := e.sources.Bias(m.Source).Dominant(); lean != "" {
			byLean[lean] = append(byLean[lean], m)
		}
	}
	if len(byLean) >= 2 {
		return orderedGroups(byLean, []string{"left", "center", "right"}), model.BasisPolitical
	}

	byCountry := map[string][]model.Article{}
	for _, m := range members {
		if c := e.sources.Country(m.Source); c != "" {
			byCountry[c] = append(byCountry[c], m)
		}
	}
	if len(byCountry) >= 2 {
		return orderedGroups(byCountry, nil), model.BasisGeographic
	}

	bySource := map[string][]model.Article{}
	for _, m := range members {
		bySource[m.Source] = append(bySource[m.Source], m)
	}
	return orderedGroups(bySource, nil), model.BasisGeographic
}

// orderedGroups flattens a group map deterministically: preferred names
// first in their given order, the rest alphabetical.
func orderedGroups(m map[string][]model.Article, preferred []string) []memberGroup {
	out := make([]memberGroup, 0, len(m))
	taken := map[string]bool{}
	for _, name := range preferred {
		if members, ok := m[name]; ok {
			out = append(out, memberGroup{name: name, members: members})
			taken[name] = true
		}
	}
	rest := make([]string, 0, len(m))
	for name := range m {
		if !taken[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, memberGroup{name: name, members: m[name]})
	}
	return out
}

func countGroupSources(members []model.Article) int {
	seen := map[string]struct{}{}
	for _, m := range members {
		seen[m.Source] = struct{}{}
	}
	return len(seen)
}

// representativeTitle returns the title of the member whose embedding
// sits closest to the group's vector centroid. Groups without vectors
// fall back to the first member.
func representativeTitle(members []model.Article, vectors map[string][]float32) string {
	if len(members) == 0 {
		return ""
	}

	var sum []float64
	n := 0
	for _, m := range members {
		v, ok := vectors[m.ContentHash]
		if !ok || len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return members[0].Title
	}

	centroid := make([]float32, len(sum))
	for i, x := range sum {
		centroid[i] = float32(x / float64(n))
	}

	best, bestSim := members[0].Title, float32(-2)
	for _, m := range members {
		v, ok := vectors[m.ContentHash]
		if !ok || len(v) != len(centroid) {
			continue
		}
		if sim := embed.CosineSimilarity(v, centroid); sim > bestSim {
			best, bestSim = m.Title, sim
		}
	}
	return best
}

// topKeywords returns the n most frequent informative tokens across the
// members' titles and summaries. Ties break alphabetically.
func topKeywords(members []model.Article, n int) []string {
	freq := map[string]int{}
	for _, m := range members {
		for _, tok := range normalize.Tokenize(m.Title + " " + m.Summary) {
			if len(tok) < 3 || stopwords[tok] || isNumeric(tok) {
				continue
			}
			freq[tok]++
		}
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// subtractKeywords drops terms that also rank highly for another group,
// leaving what this group uniquely dwells on.
func subtractKeywords(own []string, all map[string][]string, self string) []string {
	others := map[string]bool{}
	for name, kws := range all {
		if name == self {
			continue
		}
		for _, k := range kws {
			others[k] = true
		}
	}

	out := make([]string, 0, focusKeywordCount)
	for _, k := range own {
		if others[k] {
			continue
		}
		out = append(out, k)
		if len(out) == focusKeywordCount {
			break
		}
	}
	return out
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(tok) > 0
}

// sentimentLabel counts lexicon hits over titles and summaries.
func sentimentLabel(members []model.Article) string {
	neg, pos := 0, 0
	for _, m := range members {
		for _, tok := range normalize.Tokenize(m.Title + " " + m.Summary) {
			if negativeWords[tok] {
				neg++
			}
			if positiveWords[tok] {
				pos++
			}
		}
	}
	switch {
	case neg > pos:
		return "negative"
	case pos > neg:
		return "positive"
	default:
		return "neutral"
	}
}

// rankExcerpts picks up to max body sentences that best illustrate the
// group's focus: keyword hits dominate, earlier sentences break ties,
// boilerplate and syndicated duplicates are dropped.
func rankExcerpts(members []model.Article, keywords []string, max int) []string {
	if max <= 0 {
		return nil
	}
	kw := map[string]bool{}
	for _, k := range keywords {
		kw[k] = true
	}

	type candidate struct {
		text  string
		score float64
	}
	var cands []candidate
	seen := map[string]bool{}
	for _, m := range members {
		for idx, s := range splitSentences(m.Body) {
			if idx >= sentencesScanned {
				break
			}
			s = strings.TrimSpace(s)
			if len(s) < minExcerptChars || isBoilerplate(s) {
				continue
			}
			key := normalize.Clean(s)
			if seen[key] {
				continue
			}
			seen[key] = true

			hits := 0
			for _, tok := range normalize.Tokenize(s) {
				if kw[tok] {
					hits++
				}
			}
			cands = append(cands, candidate{
				text:  s,
				score: float64(hits)*2 + 1/float64(idx+1),
			})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	out := make([]string, 0, max)
	for _, c := range cands {
		if len(out) == max {
			break
		}
		out = append(out, normalize.Truncate(c.text, maxExcerptChars))
	}
	return out
}

func splitSentences(text string) []string {
	return sentenceRe.Split(text, -1)
}

func isBoilerplate(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, frag := range boilerplate {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// keyDifference names the groups and what each dwells on. Groups whose
// focus set came out empty fall back to their raw keywords.
func keyDifference(perspectives []model.NarrativePerspective, raw map[string][]string, discrepancies []model.NumericDiscrepancy) string {
	if len(perspectives) == 1 {
		p := perspectives[0]
		if len(discrepancies) > 0 {
			return fmt.Sprintf("coverage within %s differs on reported figures (%s)", p.Group, discrepancies[0].Context)
		}
		return fmt.Sprintf("coverage within %s diverges in emphasis", p.Group)
	}

	parts := make([]string, 0, len(perspectives))
	for _, p := range perspectives {
		kws := p.FocusKeywords
		if len(kws) == 0 {
			kws = raw[p.Group]
		}
		if len(kws) > 2 {
			kws = kws[:2]
		}
		if len(kws) == 0 {
			parts = append(parts, fmt.Sprintf("%s sources cover similar themes", p.Group))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s sources emphasize %s", p.Group, strings.Join(kws, ", ")))
	}
	return strings.Join(parts, "; ")
}

// differenceType classifies the disagreement. Numeric discrepancies mean
// the facts themselves differ; differing sentiment means framing; raw
// keyword sets with no overlap mean emphasis; anything else is
// interpretation. The emphasis check uses raw keywords because focus
// sets are disjoint by construction.
func differenceType(perspectives []model.NarrativePerspective, raw map[string][]string, discrepancies []model.NumericDiscrepancy) model.DifferenceType {
	if len(discrepancies) > 0 {
		return model.DifferenceFact
	}

	sentiments := map[string]bool{}
	for _, p := range perspectives {
		sentiments[p.Sentiment] = true
	}
	if len(sentiments) > 1 {
		return model.DifferenceFraming
	}

	if len(perspectives) > 1 && rawDisjoint(perspectives, raw) {
		return model.DifferenceEmphasis
	}
	return model.DifferenceInterpretation
}

func rawDisjoint(perspectives []model.NarrativePerspective, raw map[string][]string) bool {
	seen := map[string]string{}
	for _, p := range perspectives {
		for _, k := range raw[p.Group] {
			if owner, ok := seen[k]; ok && owner != p.Group {
				return false
			}
			seen[k] = p.Group
		}
	}
	return true
}
