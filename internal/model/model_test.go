package model

import (
	"math"
	"testing"
)

func TestBiasCompassNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   BiasCompass
		want BiasCompass
	}{
		{"already normalized", BiasCompass{0.2, 0.6, 0.2}, BiasCompass{0.2, 0.6, 0.2}},
		{"unscaled ratings", BiasCompass{Left: 2, Center: 6, Right: 2}, BiasCompass{0.2, 0.6, 0.2}},
		{"zero stays zero", BiasCompass{}, BiasCompass{}},
	}

	for _, tt := range tests {
		got := tt.in.Normalized()
		if math.Abs(got.Left-tt.want.Left) > 1e-9 ||
			math.Abs(got.Center-tt.want.Center) > 1e-9 ||
			math.Abs(got.Right-tt.want.Right) > 1e-9 {
			t.Errorf("%s: Normalized() = %+v, want %+v", tt.name, got, tt.want)
		}
		if !got.Valid() {
			t.Errorf("%s: normalized compass not valid: %+v", tt.name, got)
		}
	}
}

func TestBiasCompassDominant(t *testing.T) {
	if d := (BiasCompass{Left: 0.7, Center: 0.2, Right: 0.1}).Dominant(); d != "left" {
		t.Errorf("Dominant() = %q, want left", d)
	}
	if d := (BiasCompass{Left: 0.1, Center: 0.2, Right: 0.7}).Dominant(); d != "right" {
		t.Errorf("Dominant() = %q, want right", d)
	}
	if d := (BiasCompass{Left: 0.2, Center: 0.6, Right: 0.2}).Dominant(); d != "center" {
		t.Errorf("Dominant() = %q, want center", d)
	}
	if d := (BiasCompass{}).Dominant(); d != "" {
		t.Errorf("zero compass Dominant() = %q, want empty", d)
	}
}

func TestConflictExplanationRoundTrip(t *testing.T) {
	ce := ConflictExplanation{
		Perspectives: []NarrativePerspective{
			{Group: "left", Basis: BasisPolitical, SourceCount: 2, RepresentativeTitle: "Protests swell downtown", FocusKeywords: []string{"protests", "rights"}, Sentiment: "negative"},
			{Group: "right", Basis: BasisPolitical, SourceCount: 2, RepresentativeTitle: "Riots disrupt downtown businesses", FocusKeywords: []string{"riots", "damage"}, Sentiment: "negative"},
		},
		KeyDifference:  "left sources emphasize protests, rights; right sources emphasize riots, damage",
		DifferenceType: DifferenceFraming,
		NumericDiscrepancies: []NumericDiscrepancy{
			{Context: "injured", ValuesByGroup: map[string]float64{"left": 50, "right": 600}, Ratio: 12, Significance: "high"},
		},
	}

	v, err := ce.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var back ConflictExplanation
	if err := back.Scan(v); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(back.Perspectives) != 2 {
		t.Fatalf("got %d perspectives, want 2", len(back.Perspectives))
	}
	if back.DifferenceType != DifferenceFraming {
		t.Errorf("difference type = %q, want framing", back.DifferenceType)
	}
	if back.NumericDiscrepancies[0].Significance != "high" {
		t.Errorf("significance = %q, want high", back.NumericDiscrepancies[0].Significance)
	}
}

func TestConflictExplanationValidate(t *testing.T) {
	bad := ConflictExplanation{
		Perspectives:   []NarrativePerspective{{Group: "left", Basis: "vibes"}},
		DifferenceType: DifferenceFact,
	}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown basis")
	}

	empty := ConflictExplanation{DifferenceType: DifferenceFact}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty perspectives")
	}

	if _, err := bad.Value(); err == nil {
		t.Error("Value must refuse invalid payloads")
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(DefaultSources())

	info, ok := reg.Lookup("www.reuters.com")
	if !ok || info.Kind != SourceWire {
		t.Fatalf("reuters.com: ok=%v kind=%v", ok, info.Kind)
	}

	// Subdomain falls back to parent.
	info, ok = reg.Lookup("edition.cnn.com")
	if !ok || info.Name != "CNN" {
		t.Fatalf("edition.cnn.com: ok=%v name=%q", ok, info.Name)
	}

	if kind := reg.Kind("smalltowngazette.example"); kind != SourceLocal {
		t.Errorf("unknown outlet kind = %v, want local", kind)
	}

	// All registry bias vectors must be normalized.
	for _, src := range DefaultSources() {
		got := reg.Bias(src.Domain)
		if !got.Valid() {
			t.Errorf("%s: bias not normalized: %+v", src.Domain, got)
		}
	}
}

func TestArticleEmbedText(t *testing.T) {
	a := Article{Title: "Quake hits coast", Body: "A strong earthquake struck the coast early Monday."}
	text := a.EmbedText(30)
	if len(text) > 30 {
		t.Errorf("embed text exceeds cap: %d chars", len(text))
	}
	if text[:16] != "Quake hits coast" {
		t.Errorf("embed text must start with the title, got %q", text)
	}
}
