package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// Entity extraction is dictionary and pattern based: no model calls, so
// it runs on every article at ingestion and is fully deterministic.
// Entity ids are namespaced ("country:", "org:", "person:", "ticker:",
// "topic:") so different kinds never collide during overlap checks.

// maxEntities caps the list stored per article.
const maxEntities = 16

// countryAliases maps mention forms to a canonical country id. Names,
// adjectives, and capital cities all resolve to the same id.
var countryAliases = map[string]string{
	"united states": "united_states", "usa": "united_states", "u.s.": "united_states", "america": "united_states", "american": "united_states", "washington": "united_states",
	"china": "china", "chinese": "china", "beijing": "china",
	"russia": "russia", "russian": "russia", "moscow": "russia", "kremlin": "russia",
	"united kingdom": "united_kingdom", "uk": "united_kingdom", "britain": "united_kingdom", "british": "united_kingdom", "london": "united_kingdom",
	"germany": "germany", "german": "germany", "berlin": "germany",
	"france": "france", "french": "france", "paris": "france",
	"japan": "japan", "japanese": "japan", "tokyo": "japan",
	"india": "india", "indian": "india", "new delhi": "india",
	"ukraine": "ukraine", "ukrainian": "ukraine", "kyiv": "ukraine",
	"israel": "israel", "israeli": "israel", "jerusalem": "israel",
	"palestine": "palestine", "palestinian": "palestine", "gaza": "palestine", "west bank": "palestine",
	"iran": "iran", "iranian": "iran", "tehran": "iran",
	"north korea": "north_korea", "pyongyang": "north_korea",
	"south korea": "south_korea", "seoul": "south_korea",
	"taiwan": "taiwan", "taiwanese": "taiwan", "taipei": "taiwan",
	"syria": "syria", "syrian": "syria", "damascus": "syria",
	"afghanistan": "afghanistan", "afghan": "afghanistan", "kabul": "afghanistan",
	"iraq": "iraq", "iraqi": "iraq", "baghdad": "iraq",
	"canada": "canada", "canadian": "canada", "ottawa": "canada",
	"australia": "australia", "australian": "australia", "canberra": "australia",
	"brazil": "brazil", "brazilian": "brazil", "brasilia": "brazil",
	"mexico": "mexico", "mexican": "mexico",
	"italy": "italy", "italian": "italy", "rome": "italy",
	"spain": "spain", "spanish": "spain", "madrid": "spain",
	"netherlands": "netherlands", "dutch": "netherlands", "amsterdam": "netherlands",
	"switzerland": "switzerland", "swiss": "switzerland",
	"sweden": "sweden", "swedish": "sweden", "stockholm": "sweden",
	"norway": "norway", "norwegian": "norway", "oslo": "norway",
	"poland": "poland", "polish": "poland", "warsaw": "poland",
	"turkey": "turkey", "turkish": "turkey", "ankara": "turkey",
	"saudi arabia": "saudi_arabia", "saudi": "saudi_arabia", "riyadh": "saudi_arabia",
	"uae": "uae", "emirates": "uae", "dubai": "uae", "abu dhabi": "uae",
	"egypt": "egypt", "egyptian": "egypt", "cairo": "egypt",
	"south africa": "south_africa",
	"nigeria": "nigeria", "nigerian": "nigeria",
	"indonesia": "indonesia", "indonesian": "indonesia", "jakarta": "indonesia",
	"singapore": "singapore",
	"hong kong": "hong_kong",
	"vietnam": "vietnam", "vietnamese": "vietnam", "hanoi": "vietnam",
	"thailand": "thailand", "thai": "thailand", "bangkok": "thailand",
	"philippines": "philippines", "filipino": "philippines", "manila": "philippines",
	"malaysia": "malaysia", "malaysian": "malaysia",
	"argentina": "argentina", "argentine": "argentina", "buenos aires": "argentina",
	"chile": "chile", "chilean": "chile", "santiago": "chile",
	"colombia": "colombia", "colombian": "colombia", "bogota": "colombia",
	"venezuela": "venezuela", "venezuelan": "venezuela", "caracas": "venezuela",
	"greece": "greece", "greek": "greece", "athens": "greece",
	"portugal": "portugal", "portuguese": "portugal", "lisbon": "portugal",
	"pakistan": "pakistan", "pakistani": "pakistan", "islamabad": "pakistan",
	"bangladesh": "bangladesh", "dhaka": "bangladesh",
	"myanmar": "myanmar", "yangon": "myanmar",
	"ethiopia": "ethiopia", "ethiopian": "ethiopia",
	"kenya": "kenya", "kenyan": "kenya", "nairobi": "kenya",
	"sudan": "sudan", "sudanese": "sudan", "khartoum": "sudan",
	"haiti": "haiti", "haitian": "haiti", "port-au-prince": "haiti",
	"european union": "european_union", "eu": "european_union", "brussels": "european_union",
	"nato": "nato",
	"opec": "opec",
}

var (
	// tickerRe matches stock tickers like $AAPL, $BRK.A.
	tickerRe = regexp.MustCompile(`\$([A-Z]{1,5}(?:\.[A-Z])?)`)

	// acronymRe matches standalone org acronyms like USGS, WHO, UNHCR.
	acronymRe = regexp.MustCompile(`\b[A-Z]{2,6}\b`)

	// speakerRe matches attributed statements ("Jane Doe said ...").
	speakerRe = regexp.MustCompile(`([A-Z][a-z]+(?: [A-Z][a-z]+)+)\s+(?:said|says|announced|confirmed|stated|told|warned|denied)\b`)

	// properRe matches capitalized multi-word phrases for topic entities.
	properRe = regexp.MustCompile(`\b[A-Z][A-Za-z]+(?: [A-Z][A-Za-z]+)+\b`)
)

// Acronym noise that reads as an org but is not one.
var acronymStop = map[string]struct{}{
	"THE": {}, "AND": {}, "FOR": {}, "NOT": {}, "BUT": {}, "ALL": {},
	"NEW": {}, "TOP": {}, "OFF": {}, "OUT": {}, "OVER": {}, "AFTER": {},
	"AM": {}, "PM": {}, "GMT": {}, "UTC": {}, "TV": {}, "UPDATE": {},
	"US": {}, "UK": {}, "EU": {}, // handled by the country table
}

// ExtractEntities pulls countries, org acronyms, attributed speakers,
// tickers, and capitalized topic phrases from an article. The result is
// deduped and sorted, so repeated normalization of the same text yields
// an identical record.
func ExtractEntities(title, body string) []string {
	text := title + " " + body
	lower := strings.ToLower(text)

	seen := make(map[string]struct{})
	add := func(id string) {
		seen[id] = struct{}{}
	}

	for alias, id := range countryAliases {
		if containsWord(lower, alias) {
			add("country:" + id)
		}
	}

	for _, m := range acronymRe.FindAllString(text, -1) {
		if _, stop := acronymStop[m]; stop {
			continue
		}
		add("org:" + strings.ToLower(m))
	}

	for _, m := range tickerRe.FindAllStringSubmatch(text, -1) {
		add("ticker:" + strings.ToLower(m[1]))
	}

	for _, m := range speakerRe.FindAllStringSubmatch(text, -1) {
		add("person:" + entityID(m[1]))
	}

	// Topic phrases must show up in the title, or more than once in the
	// body, to count; one-off capitalized runs are usually sentence noise.
	titlePhrases := properRe.FindAllString(title, -1)
	for _, p := range titlePhrases {
		if id := topicID(p); id != "" {
			add(id)
		}
	}
	bodyCounts := make(map[string]int)
	for _, p := range properRe.FindAllString(body, -1) {
		bodyCounts[p]++
	}
	for p, n := range bodyCounts {
		if n < 2 {
			continue
		}
		if id := topicID(p); id != "" {
			add(id)
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) > maxEntities {
		out = out[:maxEntities]
	}
	return out
}

// EntityOverlap computes Jaccard similarity of two entity lists.
// Articles with no entities on either side score 0; callers decide
// whether that passes their gate.
func EntityOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, e := range a {
		setA[e] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, e := range b {
		setB[e] = struct{}{}
	}
	return SetJaccard(setA, setB)
}

// topicID normalizes a capitalized phrase to a topic entity id, or ""
// when the phrase is too generic to keep.
func topicID(phrase string) string {
	phrase = strings.TrimPrefix(phrase, "The ")
	words := strings.Fields(phrase)
	if len(words) < 2 {
		return ""
	}
	// Phrases that are just a country mention are already covered.
	if _, ok := countryAliases[strings.ToLower(phrase)]; ok {
		return ""
	}
	return "topic:" + entityID(phrase)
}

func entityID(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// containsWord checks if text contains word at word boundaries, so
// "american" never matches inside "panamerican".
func containsWord(text, word string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start

		leftOK := idx == 0 || !isAlphaNum(text[idx-1])
		end := idx + len(word)
		rightOK := end >= len(text) || !isAlphaNum(text[end])
		if leftOK && rightOK {
			return true
		}
		start = end
	}
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
