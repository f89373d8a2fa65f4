package cluster

import (
	"fmt"
	"math"
	"testing"
	"time"
)

var scanBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func pt(id string, vec []float32, published time.Time, entities ...string) Point {
	return Point{ID: id, Vec: vec, Published: published, Entities: entities}
}

// angled returns a unit vector at the given angle (degrees) in the first
// two dimensions, padded to four.
func angled(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad)), 0, 0}
}

func TestScanSeparatesGroups(t *testing.T) {
	points := []Point{
		pt("a1", []float32{1, 0, 0, 0}, scanBase),
		pt("a2", []float32{0.9806, 0.1961, 0, 0}, scanBase),
		pt("a3", []float32{0.9806, 0, 0.1961, 0}, scanBase),
		pt("b1", []float32{0, 1, 0, 0}, scanBase),
		pt("b2", []float32{0.1961, 0.9806, 0, 0}, scanBase),
		pt("n1", []float32{0, 0, 1, 0}, scanBase),
	}
	labels := Scan(points, Params{Eps: 0.35, MinPts: 2})

	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("a-group split: labels %v", labels[:3])
	}
	if labels[3] != labels[4] {
		t.Errorf("b-group split: labels %v", labels[3:5])
	}
	if labels[0] == labels[3] {
		t.Errorf("a-group and b-group share label %d", labels[0])
	}
	if labels[0] == Noise || labels[3] == Noise {
		t.Errorf("grouped points labeled noise: %v", labels)
	}
	if labels[5] != Noise {
		t.Errorf("lone point label = %d, want Noise", labels[5])
	}
}

func TestScanLonePointIsNoise(t *testing.T) {
	labels := Scan([]Point{pt("a", []float32{1, 0, 0, 0}, scanBase)}, Params{Eps: 0.35, MinPts: 2})
	if labels[0] != Noise {
		t.Errorf("label = %d, want Noise", labels[0])
	}
}

func TestScanMinPtsCountsSelf(t *testing.T) {
	points := []Point{
		pt("a", []float32{1, 0, 0, 0}, scanBase),
		pt("b", []float32{0.9806, 0.1961, 0, 0}, scanBase),
	}
	labels := Scan(points, Params{Eps: 0.35, MinPts: 2})
	if labels[0] == Noise || labels[0] != labels[1] {
		t.Errorf("pair not grouped: labels %v", labels)
	}
}

func TestScanTimeGate(t *testing.T) {
	vec := []float32{1, 0, 0, 0}
	prm := Params{Eps: 0.35, MinPts: 2, Window: 72 * time.Hour}

	far := []Point{
		pt("a", vec, scanBase),
		pt("b", vec, scanBase.Add(100*time.Hour)),
	}
	labels := Scan(far, prm)
	if labels[0] != Noise || labels[1] != Noise {
		t.Errorf("points 100h apart grouped: labels %v", labels)
	}

	near := []Point{
		pt("a", vec, scanBase),
		pt("b", vec, scanBase.Add(10*time.Hour)),
	}
	labels = Scan(near, prm)
	if labels[0] == Noise || labels[0] != labels[1] {
		t.Errorf("points 10h apart not grouped: labels %v", labels)
	}
}

func TestScanEntityGate(t *testing.T) {
	vec := []float32{1, 0, 0, 0}
	prm := Params{Eps: 0.35, MinPts: 2, MinEntityOverlap: 0.1}

	tests := []struct {
		name    string
		aEnts   []string
		bEnts   []string
		grouped bool
	}{
		{"disjoint entities", []string{"Alpha Corp"}, []string{"Beta Inc"}, false},
		{"overlapping entities", []string{"Alpha Corp", "Beta Inc"}, []string{"Alpha Corp"}, true},
		{"one side empty", []string{"Alpha Corp"}, nil, true},
		{"both empty", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := []Point{
				pt("a", vec, scanBase, tt.aEnts...),
				pt("b", vec, scanBase, tt.bEnts...),
			}
			labels := Scan(points, prm)
			grouped := labels[0] != Noise && labels[0] == labels[1]
			if grouped != tt.grouped {
				t.Errorf("grouped = %v, want %v (labels %v)", grouped, tt.grouped, labels)
			}
		})
	}
}

// A chain where only the middle point is core: border points join the
// group without expanding it further.
func TestScanBorderAdoption(t *testing.T) {
	points := []Point{
		pt("a", angled(0), scanBase),
		pt("b", angled(40), scanBase),
		pt("c", angled(80), scanBase),
	}
	labels := Scan(points, Params{Eps: 0.35, MinPts: 3})

	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("chain split: labels %v", labels)
	}
	if labels[0] == Noise {
		t.Errorf("chain labeled noise: %v", labels)
	}
}

func TestScanDeterministic(t *testing.T) {
	var points []Point
	for i := 0; i < 6; i++ {
		points = append(points, pt(fmt.Sprintf("a%d", i), angled(float64(i*3)), scanBase))
	}
	for i := 0; i < 4; i++ {
		points = append(points, pt(fmt.Sprintf("b%d", i), angled(90+float64(i*3)), scanBase))
	}
	points = append(points, pt("lone", []float32{0, 0, 0, 1}, scanBase))

	prm := Params{Eps: 0.35, MinPts: 2}
	first := Scan(points, prm)
	second := Scan(points, prm)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("labels differ between runs at %d: %d vs %d", i, first[i], second[i])
		}
	}
	if first[0] != 1 {
		t.Errorf("first group id = %d, want 1", first[0])
	}
}

func TestScanEmpty(t *testing.T) {
	if got := Scan(nil, Params{Eps: 0.35, MinPts: 2}); len(got) != 0 {
		t.Errorf("Scan(nil) = %v, want empty", got)
	}
}
