package cluster

import (
	"time"

	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/normalize"
)

// Noise labels points that end up in no group.
const Noise = -1

// Point is one article in clustering space.
type Point struct {
	ID        string
	Vec       []float32
	Published time.Time
	Entities  []string
}

// Params bound the neighbor relation. Two points are neighbors when
// their cosine distance is at most Eps AND they pass the time and
// entity gates.
type Params struct {
	// Eps is the maximum cosine distance between neighbors.
	Eps float64

	// MinPts is the neighborhood size needed for a core point; the point
	// itself counts.
	MinPts int

	// Window gates neighbors on published-time proximity. Zero disables
	// the gate.
	Window time.Duration

	// MinEntityOverlap gates neighbors on entity Jaccard. Pairs where
	// either side carries no entities pass the gate.
	MinEntityOverlap float64
}

// Scan labels every point with DBSCAN semantics: returned labels align
// with the input slice, values >= 1 identify a group and Noise marks
// unassigned points. The expansion order follows input order, so callers
// pass points sorted (published, id) and identical input always yields
// identical labels.
func Scan(points []Point, prm Params) []int {
	n := len(points)
	labels := make([]int, n) // 0 = unvisited

	// Exact O(n^2) neighborhoods. Run sizes are capped by the cluster
	// batch limit, so this stays cheap and fully deterministic.
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if isNeighbor(points[i], points[j], prm) {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	group := 0
	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		if len(neighbors[i])+1 < prm.MinPts {
			labels[i] = Noise
			continue
		}

		group++
		labels[i] = group

		// Breadth-first expansion from the core point. Border points
		// (reachable but not dense enough themselves) join the group
		// without expanding it further.
		queue := append([]int(nil), neighbors[i]...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == Noise {
				labels[j] = group
				continue
			}
			if labels[j] != 0 {
				continue
			}
			labels[j] = group
			if len(neighbors[j])+1 >= prm.MinPts {
				queue = append(queue, neighbors[j]...)
			}
		}
	}

	return labels
}

func isNeighbor(a, b Point, prm Params) bool {
	if prm.Window > 0 {
		gap := a.Published.Sub(b.Published)
		if gap < 0 {
			gap = -gap
		}
		if gap > prm.Window {
			return false
		}
	}
	if prm.MinEntityOverlap > 0 && len(a.Entities) > 0 && len(b.Entities) > 0 {
		if normalize.EntityOverlap(a.Entities, b.Entities) < prm.MinEntityOverlap {
			return false
		}
	}
	return cosineDistance(a.Vec, b.Vec) <= prm.Eps
}

// cosineDistance is 1 - cosine similarity: 0 for identical direction,
// 1 for orthogonal vectors.
func cosineDistance(a, b []float32) float64 {
	return 1 - float64(embed.CosineSimilarity(a, b))
}
