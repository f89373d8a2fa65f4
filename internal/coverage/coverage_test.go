package coverage

import (
	"testing"
	"time"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/model"
)

var coverBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testDetector() *Detector {
	return New(config.Default().Coverage, model.NewRegistry(model.DefaultSources()))
}

func coverEvent() *model.Event {
	return &model.Event{ID: "ev-1", FirstSeen: coverBase, LastSeen: coverBase}
}

func coverMember(source string, published time.Time) model.Article {
	return model.Article{
		ID:          source,
		URL:         "https://" + source + "/story",
		Source:      source,
		PublishedAt: published,
	}
}

func TestAssessOfficialWithoutWire(t *testing.T) {
	d := testDetector()
	members := []model.Article{
		coverMember("usgs.gov", coverBase),
		coverMember("gazette-a.example", coverBase.Add(time.Hour)),
		coverMember("gazette-b.example", coverBase.Add(2*time.Hour)),
		coverMember("gazette-c.example", coverBase.Add(3*time.Hour)),
	}

	got := d.Assess(coverEvent(), members)
	if !got.Underreported {
		t.Fatal("official coverage with wire silence should flag underreported")
	}
	if got.WireSeen {
		t.Error("no wire member, WireSeen should be false")
	}
	if got.QualifiedBy != "official" {
		t.Errorf("qualified by %q, want official", got.QualifiedBy)
	}
}

func TestAssessLocalOutletThreshold(t *testing.T) {
	d := testDetector()

	three := []model.Article{
		coverMember("gazette-a.example", coverBase),
		coverMember("gazette-b.example", coverBase),
		coverMember("gazette-c.example", coverBase),
	}
	if got := d.Assess(coverEvent(), three); !got.Underreported || got.QualifiedBy != "local" {
		t.Errorf("three local outlets = %+v, want underreported via local", got)
	}

	// Two distinct outlets, one syndicating twice: below the bar.
	two := []model.Article{
		coverMember("gazette-a.example", coverBase),
		coverMember("gazette-a.example", coverBase.Add(time.Hour)),
		coverMember("gazette-b.example", coverBase),
	}
	if got := d.Assess(coverEvent(), two); got.Underreported {
		t.Errorf("two local outlets = %+v, want not underreported", got)
	}
}

func TestAssessWireDefeatsFlag(t *testing.T) {
	d := testDetector()
	members := []model.Article{
		coverMember("usgs.gov", coverBase),
		coverMember("reuters.com", coverBase.Add(time.Hour)),
	}

	got := d.Assess(coverEvent(), members)
	if got.Underreported {
		t.Error("wire coverage should defeat the flag")
	}
	if !got.WireSeen {
		t.Error("wire member should set WireSeen")
	}
}

func TestAssessLatchIsMonotonic(t *testing.T) {
	d := testDetector()
	ev := coverEvent()
	ev.WireSeen = true
	// Frozen member set with no wire member at all: the persisted latch
	// still wins.
	members := []model.Article{
		coverMember("usgs.gov", coverBase),
		coverMember("gazette-a.example", coverBase),
	}

	got := d.Assess(ev, members)
	if got.Underreported {
		t.Error("latched event must never be re-flagged")
	}
	if !got.WireSeen {
		t.Error("latch should carry through the assessment")
	}
}

func TestAssessLateWireStillLatches(t *testing.T) {
	d := testDetector()
	members := []model.Article{
		coverMember("usgs.gov", coverBase),
		coverMember("apnews.com", coverBase.Add(60*time.Hour)),
	}

	got := d.Assess(coverEvent(), members)
	if got.Underreported || !got.WireSeen {
		t.Errorf("late wire member = %+v, want latched and unflagged", got)
	}
}

func TestAssessWindowBoundsQualification(t *testing.T) {
	d := testDetector()
	// All qualifying coverage lands after the 48h window.
	members := []model.Article{
		coverMember("gazette-a.example", coverBase.Add(49*time.Hour)),
		coverMember("gazette-b.example", coverBase.Add(50*time.Hour)),
		coverMember("gazette-c.example", coverBase.Add(51*time.Hour)),
	}

	got := d.Assess(coverEvent(), members)
	if got.Underreported || got.QualifiedBy != "" {
		t.Errorf("out-of-window coverage = %+v, want unqualified", got)
	}
}

func TestAssessNationalOutletsDoNotQualify(t *testing.T) {
	d := testDetector()
	members := []model.Article{
		coverMember("bbc.co.uk", coverBase),
		coverMember("cnn.com", coverBase),
		coverMember("lemonde.fr", coverBase),
	}

	got := d.Assess(coverEvent(), members)
	if got.Underreported {
		t.Errorf("national-only coverage = %+v, want not underreported", got)
	}
}

func TestMatchesAnySubdomains(t *testing.T) {
	domains := []string{"reuters.com"}
	cases := []struct {
		source string
		want   bool
	}{
		{"reuters.com", true},
		{"www.reuters.com", true},
		{"feeds.reuters.com", true},
		{"notreuters.com", false},
		{"reuters.com.evil.example", false},
	}
	for _, c := range cases {
		if got := matchesAny(c.source, domains); got != c.want {
			t.Errorf("matchesAny(%q) = %v, want %v", c.source, got, c.want)
		}
	}
}
