package coherence

import (
	"testing"

	"github.com/abelbrown/chorus/internal/model"
)

func TestQuantitiesIn(t *testing.T) {
	cases := []struct {
		text    string
		context string
		want    float64
	}{
		{"600 killed in floods", "casualties", 600},
		{"death toll rises to 1,200", "casualties", 1200},
		{"Storm kills 50 across region", "casualties", 50},
		{"12 injured in blast", "injured", 12},
		{"wounded at least 45 people", "injured", 45},
		{"magnitude 7.8 earthquake", "magnitude", 7.8},
		{"M7.8 quake off the coast", "magnitude", 7.8},
		{"$2 million in damages", "money", 2e6},
		{"losses put at 3 billion dollars", "money", 3e9},
		{"30% of homes without power", "percent", 30},
	}
	for _, c := range cases {
		got := quantitiesIn(c.text)
		if got[c.context] != c.want {
			t.Errorf("quantitiesIn(%q)[%s] = %v, want %v (all: %v)", c.text, c.context, got[c.context], c.want, got)
		}
	}

	if got := quantitiesIn("no figures in this sentence"); len(got) != 0 {
		t.Errorf("quantitiesIn without numbers = %v, want empty", got)
	}
}

func TestQuantitiesInKeepsLargest(t *testing.T) {
	got := quantitiesIn("First reports said 20 dead; officials later confirmed 35 killed.")
	if got["casualties"] != 35 {
		t.Errorf("casualties = %v, want the largest figure 35", got["casualties"])
	}
}

func TestFindDiscrepanciesHigh(t *testing.T) {
	groups := []memberGroup{
		{name: "left", members: []model.Article{{Title: "At least 50 dead after quake"}}},
		{name: "right", members: []model.Article{{Title: "Death toll climbs to 600"}}},
	}

	ds := findDiscrepancies(groups)
	if len(ds) != 1 {
		t.Fatalf("discrepancies = %+v, want one", ds)
	}
	d := ds[0]
	if d.Context != "casualties" {
		t.Errorf("context = %q, want casualties", d.Context)
	}
	if d.Significance != "high" {
		t.Errorf("significance = %q, want high for 50 vs 600", d.Significance)
	}
	if d.ValuesByGroup["left"] != 50 || d.ValuesByGroup["right"] != 600 {
		t.Errorf("values = %v", d.ValuesByGroup)
	}
}

func TestFindDiscrepanciesLow(t *testing.T) {
	groups := []memberGroup{
		{name: "left", members: []model.Article{{Title: "At least 50 dead after quake"}}},
		{name: "right", members: []model.Article{{Title: "Flood deaths reach 55"}}},
	}

	ds := findDiscrepancies(groups)
	if len(ds) != 1 {
		t.Fatalf("discrepancies = %+v, want one", ds)
	}
	if ds[0].Significance != "low" {
		t.Errorf("significance = %q, want low for 50 vs 55", ds[0].Significance)
	}
}

func TestFindDiscrepanciesAgreementIsNotADiscrepancy(t *testing.T) {
	groups := []memberGroup{
		{name: "left", members: []model.Article{{Title: "50 dead in storm"}}},
		{name: "right", members: []model.Article{{Title: "Storm leaves 50 dead"}}},
	}

	if ds := findDiscrepancies(groups); len(ds) != 0 {
		t.Errorf("matching figures produced discrepancies: %+v", ds)
	}
}

func TestFindDiscrepanciesNeedTwoGroups(t *testing.T) {
	groups := []memberGroup{
		{name: "left", members: []model.Article{{Title: "600 dead in floods"}}},
	}

	if ds := findDiscrepancies(groups); len(ds) != 0 {
		t.Errorf("single group produced discrepancies: %+v", ds)
	}
}
