package coherence

import (
	"reflect"
	"strings"
	"testing"

	"github.com/abelbrown/chorus/internal/model"
)

func groupNames(groups []memberGroup) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.name
	}
	return names
}

func TestGroupMembersPolitical(t *testing.T) {
	e := testEngine()
	members := []model.Article{
		evalMember("nytimes.com", "h1", "a"),
		evalMember("foxnews.com", "h2", "b"),
		evalMember("telegraph.co.uk", "h3", "c"),
	}

	groups, basis := e.groupMembers(members)
	if basis != model.BasisPolitical {
		t.Fatalf("basis = %q, want political", basis)
	}
	// The Telegraph leans right alongside Fox; lean order is fixed.
	if got := groupNames(groups); !reflect.DeepEqual(got, []string{"left", "right"}) {
		t.Fatalf("groups = %v, want [left right]", got)
	}
	if len(groups[1].members) != 2 {
		t.Errorf("right group has %d members, want 2", len(groups[1].members))
	}
}

func TestGroupMembersCountryFallback(t *testing.T) {
	e := testEngine()
	// Officials carry no political rating, so grouping falls to country.
	members := []model.Article{
		evalMember("usgs.gov", "h1", "a"),
		evalMember("who.int", "h2", "b"),
	}

	groups, basis := e.groupMembers(members)
	if basis != model.BasisGeographic {
		t.Fatalf("basis = %q, want geographic", basis)
	}
	if got := groupNames(groups); !reflect.DeepEqual(got, []string{"ch", "us"}) {
		t.Fatalf("groups = %v, want [ch us]", got)
	}
}

func TestGroupMembersSourceFallback(t *testing.T) {
	e := testEngine()
	// One lean bucket and one country bucket are not a contrast; each
	// source stands alone.
	members := []model.Article{
		evalMember("bbc.co.uk", "h1", "a"),
		evalMember("reuters.com", "h2", "b"),
	}

	groups, basis := e.groupMembers(members)
	if basis != model.BasisGeographic {
		t.Fatalf("basis = %q, want geographic", basis)
	}
	if got := groupNames(groups); !reflect.DeepEqual(got, []string{"bbc.co.uk", "reuters.com"}) {
		t.Fatalf("groups = %v, want per-source split", got)
	}
}

func TestTopKeywords(t *testing.T) {
	members := []model.Article{
		evalMember("a.example", "h1", "Wildfire spreads across the northern hills"),
		evalMember("b.example", "h2", "Wildfire evacuation ordered for 300 residents"),
	}

	got := topKeywords(members, 3)
	if len(got) != 3 || got[0] != "wildfire" {
		t.Fatalf("keywords = %v, want wildfire first", got)
	}
	for _, k := range got {
		if k == "the" || k == "for" || k == "300" {
			t.Errorf("keyword %q should have been filtered", k)
		}
	}
}

func TestSubtractKeywords(t *testing.T) {
	raw := map[string][]string{
		"left":  {"rescue", "storm", "recovery"},
		"right": {"blame", "storm", "costs"},
	}

	got := subtractKeywords(raw["left"], raw, "left")
	if !reflect.DeepEqual(got, []string{"rescue", "recovery"}) {
		t.Errorf("focus = %v, want shared term removed", got)
	}
}

func TestSentimentLabel(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Rescue teams praised for swift recovery", "positive"},
		{"Death toll climbs as chaos spreads", "negative"},
		{"Committee schedules quarterly meeting", "neutral"},
	}
	for _, c := range cases {
		got := sentimentLabel([]model.Article{{Title: c.title}})
		if got != c.want {
			t.Errorf("sentiment(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestRepresentativeTitle(t *testing.T) {
	members := []model.Article{
		evalMember("a.example", "h1", "Edge one"),
		evalMember("b.example", "h2", "Middle"),
		evalMember("c.example", "h3", "Edge two"),
	}
	vectors := map[string][]float32{
		"h1": {1, 0, 0, 0},
		"h2": {0.9806, 0.1961, 0, 0},
		"h3": {0, 1, 0, 0},
	}

	if got := representativeTitle(members, vectors); got != "Middle" {
		t.Errorf("title = %q, want the member nearest the centroid", got)
	}
	if got := representativeTitle(members, nil); got != "Edge one" {
		t.Errorf("title without vectors = %q, want first member", got)
	}
	if got := representativeTitle(nil, nil); got != "" {
		t.Errorf("title of empty group = %q, want empty", got)
	}
}

func TestRankExcerptsFiltersBoilerplate(t *testing.T) {
	body := "Please enable JavaScript to view this site. " +
		"Rescue crews pulled dozens of residents from flooded homes on Tuesday as waters kept rising. " +
		"Subscribe to our newsletter for updates. " +
		"The governor praised rescue teams for their fast response to the flooding emergency."
	members := []model.Article{{Source: "a.example", Body: body}}

	got := rankExcerpts(members, []string{"rescue", "flooding"}, 3)
	if len(got) != 2 {
		t.Fatalf("excerpts = %v, want the two reporting sentences", got)
	}
	if !strings.Contains(got[0], "governor praised") {
		t.Errorf("first excerpt = %q, want the sentence densest in keywords", got[0])
	}
	for _, ex := range got {
		lower := strings.ToLower(ex)
		if strings.Contains(lower, "javascript") || strings.Contains(lower, "subscribe") {
			t.Errorf("boilerplate survived: %q", ex)
		}
	}
}

func TestRankExcerptsDeduplicates(t *testing.T) {
	sentence := "Rescue crews pulled dozens of residents from flooded homes overnight."
	members := []model.Article{
		{Source: "a.example", Body: sentence},
		{Source: "b.example", Body: sentence},
	}

	got := rankExcerpts(members, nil, 3)
	if len(got) != 1 {
		t.Errorf("excerpts = %v, want syndicated duplicate collapsed", got)
	}
}

func TestDifferenceTypeChain(t *testing.T) {
	two := []model.NarrativePerspective{
		{Group: "left", Sentiment: "neutral"},
		{Group: "right", Sentiment: "neutral"},
	}
	disjoint := map[string][]string{"left": {"rescue"}, "right": {"blame"}}
	overlapping := map[string][]string{"left": {"storm", "rescue"}, "right": {"storm", "blame"}}

	if got := differenceType(two, overlapping, []model.NumericDiscrepancy{{Context: "casualties"}}); got != model.DifferenceFact {
		t.Errorf("with discrepancies = %q, want fact", got)
	}

	framed := []model.NarrativePerspective{
		{Group: "left", Sentiment: "positive"},
		{Group: "right", Sentiment: "negative"},
	}
	if got := differenceType(framed, overlapping, nil); got != model.DifferenceFraming {
		t.Errorf("with split sentiment = %q, want framing", got)
	}

	if got := differenceType(two, disjoint, nil); got != model.DifferenceEmphasis {
		t.Errorf("with disjoint keywords = %q, want emphasis", got)
	}
	if got := differenceType(two, overlapping, nil); got != model.DifferenceInterpretation {
		t.Errorf("with shared keywords = %q, want interpretation", got)
	}
}

func TestKeyDifferenceNamesGroups(t *testing.T) {
	ps := []model.NarrativePerspective{
		{Group: "left", FocusKeywords: []string{"rescue", "recovery", "teams"}},
		{Group: "right", FocusKeywords: []string{"blame", "costs"}},
	}

	got := keyDifference(ps, nil, nil)
	want := "left sources emphasize rescue, recovery; right sources emphasize blame, costs"
	if got != want {
		t.Errorf("key difference = %q, want %q", got, want)
	}
}
