// Package cluster groups embedded articles into events. New arrivals are
// first matched against open events' centroids; the remainder goes
// through a fresh DBSCAN pass that can open new events or merge existing
// ones. Events only grow or merge, never split.
package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/embed"
	"github.com/abelbrown/chorus/internal/model"
	"github.com/abelbrown/chorus/internal/normalize"
	"github.com/abelbrown/chorus/internal/store"
)

const (
	// candidateK is how many centroid candidates the HNSW index proposes
	// per article before the exact recheck.
	candidateK = 8

	// contextCap is how many recent members per open event join the
	// DBSCAN pass, so fresh groups can reach into existing events.
	contextCap = 5
)

// Clusterer assigns unclustered embedded articles to events.
type Clusterer struct {
	cfg   config.ClusterConfig
	store *store.Store
	log   *log.Logger
}

func New(st *store.Store, cfg config.ClusterConfig, logger *log.Logger) *Clusterer {
	return &Clusterer{cfg: cfg, store: st, log: logger}
}

// Result summarizes one clustering run.
type Result struct {
	Scanned  int // unclustered embedded articles examined
	Assigned int // appended to existing events
	Opened   int // new events created
	Merged   int // merge operations performed
	Noise    int // left unclustered for the next cycle

	// Touched lists events whose member set changed, sorted; the caller
	// rescores exactly these.
	Touched []string
}

// Run executes one clustering cycle at the given time. The same input
// always produces the same grouping: the batch arrives sorted
// (published, id) from the store and every internal iteration is
// ordered.
func (c *Clusterer) Run(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	batch, err := c.store.UnclusteredEmbedded(c.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("cluster: load unclustered: %w", err)
	}
	res.Scanned = len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	points, artByID, err := c.loadPoints(batch)
	if err != nil {
		return res, err
	}

	states, err := c.loadOpenEvents(now)
	if err != nil {
		return res, err
	}
	graph := newCentroidGraph(states)

	touched := make(map[string]bool)

	// Phase 1: incremental assignment. Each article joins the closest
	// open event whose centroid is within eps and whose member set
	// passes the gates; everything else falls through to DBSCAN.
	var remainder []Point
	for _, pt := range points {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		best := c.matchOpenEvent(graph, states, pt)
		if best == "" {
			remainder = append(remainder, pt)
			continue
		}
		if err := c.store.AssignCluster(pt.ID, best); err != nil {
			return res, fmt.Errorf("cluster: assign %s: %w", pt.ID, err)
		}
		st := states[best]
		st.absorb(pt)
		graph.Add(hnsw.MakeNode(best, st.centroid))
		touched[best] = true
		res.Assigned++
	}

	// Phase 2: DBSCAN over the remainder plus a few recent members per
	// open event. A group spanning two existing events is the merge
	// signal; a group with no existing members opens a new event.
	dbPoints, owner := c.dbscanInput(remainder, states)
	labels := Scan(dbPoints, Params{
		Eps:              c.cfg.Eps,
		MinPts:           c.cfg.MinPts,
		Window:           time.Duration(c.cfg.WindowHours) * time.Hour,
		MinEntityOverlap: c.cfg.MinEntityOverlap,
	})

	groups := make(map[int][]int)
	for i, lbl := range labels {
		if lbl == Noise {
			if _, isContext := owner[dbPoints[i].ID]; !isContext {
				res.Noise++
			}
			continue
		}
		groups[lbl] = append(groups[lbl], i)
	}

	// Merges performed while walking earlier groups re-point cluster
	// ids; later groups resolve through the redirects.
	redirect := make(map[string]string)
	resolve := func(id string) string {
		for {
			next, ok := redirect[id]
			if !ok {
				return id
			}
			id = next
		}
	}

	labelOrder := make([]int, 0, len(groups))
	for lbl := range groups {
		labelOrder = append(labelOrder, lbl)
	}
	sort.Ints(labelOrder)

	for _, lbl := range labelOrder {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var fresh []Point
		existing := make(map[string]bool)
		for _, i := range groups[lbl] {
			pt := dbPoints[i]
			if own, ok := owner[pt.ID]; ok {
				existing[resolve(own)] = true
			} else {
				fresh = append(fresh, pt)
			}
		}
		exIDs := sortedKeys(existing)

		switch {
		case len(exIDs) == 0:
			ev, err := c.openEvent(fresh, artByID)
			if err != nil {
				return res, err
			}
			touched[ev.ID] = true
			res.Opened++

		case len(exIDs) == 1:
			if len(fresh) == 0 {
				continue
			}
			if err := c.adopt(fresh, exIDs[0], states); err != nil {
				return res, err
			}
			touched[exIDs[0]] = true
			res.Assigned += len(fresh)

		default:
			survivor := pickSurvivor(exIDs, states)
			for _, absorbed := range exIDs {
				if absorbed == survivor {
					continue
				}
				if err := c.store.MergeEvents(survivor, absorbed); err != nil {
					return res, fmt.Errorf("cluster: merge %s into %s: %w", absorbed, survivor, err)
				}
				if surv, abs := states[survivor], states[absorbed]; surv != nil && abs != nil {
					surv.merge(abs)
				}
				delete(states, absorbed)
				delete(touched, absorbed)
				redirect[absorbed] = survivor
				res.Merged++
				c.log.Info("events merged", "survivor", survivor, "absorbed", absorbed)
			}
			if err := c.adopt(fresh, survivor, states); err != nil {
				return res, err
			}
			touched[survivor] = true
			res.Assigned += len(fresh)
		}
	}

	res.Touched = sortedKeys(touched)

	c.log.Debug("cluster run",
		"scanned", res.Scanned, "assigned", res.Assigned,
		"opened", res.Opened, "merged", res.Merged, "noise", res.Noise)
	return res, nil
}

// loadPoints turns the batch into clustering points, skipping any
// article whose cached vector vanished between the query and the load
// (it stays pending and is retried next cycle).
func (c *Clusterer) loadPoints(batch []model.Article) ([]Point, map[string]model.Article, error) {
	hashes := make([]string, len(batch))
	for i, a := range batch {
		hashes[i] = a.ContentHash
	}
	vecs, err := c.store.EmbeddingsByHash(hashes)
	if err != nil {
		return nil, nil, fmt.Errorf("cluster: load vectors: %w", err)
	}

	points := make([]Point, 0, len(batch))
	artByID := make(map[string]model.Article, len(batch))
	for _, a := range batch {
		vec, ok := vecs[a.ContentHash]
		if !ok {
			c.log.Warn("vector missing for unclustered article", "id", a.ID)
			continue
		}
		points = append(points, Point{
			ID:        a.ID,
			Vec:       vec,
			Published: a.PublishedAt,
			Entities:  a.Entities,
		})
		artByID[a.ID] = a
	}
	return points, artByID, nil
}

// matchOpenEvent returns the closest qualifying open event for the
// point, or "". The graph proposes candidates; the decision uses the
// live centroid, exact cosine distance and the member gates. Ties go to
// the earlier first_seen, then the smaller id.
func (c *Clusterer) matchOpenEvent(graph *hnsw.Graph[string], states map[string]*eventState, pt Point) string {
	if graph.Len() == 0 {
		return ""
	}

	window := time.Duration(c.cfg.WindowHours) * time.Hour
	seen := make(map[string]bool)
	var bestID string
	var bestDist float64

	for _, node := range graph.Search(pt.Vec, candidateK) {
		id := node.Key
		if seen[id] {
			continue
		}
		seen[id] = true

		st := states[id]
		if st == nil || st.centroid == nil {
			continue
		}
		dist := cosineDistance(pt.Vec, st.centroid)
		if dist > c.cfg.Eps {
			continue
		}
		if !st.reachableBy(pt, window, c.cfg.MinEntityOverlap) {
			continue
		}

		if bestID == "" || dist < bestDist {
			bestID, bestDist = id, dist
			continue
		}
		if dist == bestDist {
			b := states[bestID]
			if st.firstSeen.Before(b.firstSeen) ||
				(st.firstSeen.Equal(b.firstSeen) && id < bestID) {
				bestID = id
			}
		}
	}
	return bestID
}

// dbscanInput combines unassigned points with up to contextCap recent
// members per open event. owner maps context point ids to their event.
func (c *Clusterer) dbscanInput(remainder []Point, states map[string]*eventState) ([]Point, map[string]string) {
	points := append([]Point(nil), remainder...)
	owner := make(map[string]string)

	for _, id := range sortedKeys(states) {
		for i, m := range states[id].recentMembers(contextCap) {
			key := fmt.Sprintf("ctx:%s:%d", id, i)
			owner[key] = id
			points = append(points, Point{
				ID:        key,
				Vec:       m.vec,
				Published: m.published,
				Entities:  m.entities,
			})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if !points[i].Published.Equal(points[j].Published) {
			return points[i].Published.Before(points[j].Published)
		}
		return points[i].ID < points[j].ID
	})
	return points, owner
}

// openEvent creates a new event from an all-fresh DBSCAN group and
// assigns its members. The medoid member's title becomes the initial
// summary; the scoring pass refreshes it along with the aggregates.
func (c *Clusterer) openEvent(members []Point, artByID map[string]model.Article) (model.Event, error) {
	first, last := members[0].Published, members[0].Published
	sources := make(map[string]bool)
	for _, m := range members {
		if m.Published.Before(first) {
			first = m.Published
		}
		if m.Published.After(last) {
			last = m.Published
		}
		sources[artByID[m.ID].Source] = true
	}

	ev := model.Event{
		ID:             uuid.NewString(),
		Summary:        artByID[members[medoid(members)].ID].Title,
		ArticlesCount:  len(members),
		UniqueSources:  len(sources),
		ConfidenceTier: model.TierUnverified,
		FirstSeen:      first,
		LastSeen:       last,
	}
	if err := c.store.CreateEvent(ev); err != nil {
		return ev, fmt.Errorf("cluster: create event: %w", err)
	}
	for _, m := range members {
		if err := c.store.AssignCluster(m.ID, ev.ID); err != nil {
			return ev, fmt.Errorf("cluster: assign %s: %w", m.ID, err)
		}
	}

	c.log.Debug("event opened", "id", ev.ID, "members", len(members), "summary", ev.Summary)
	return ev, nil
}

// adopt assigns fresh points to an existing event.
func (c *Clusterer) adopt(fresh []Point, eventID string, states map[string]*eventState) error {
	for _, pt := range fresh {
		if err := c.store.AssignCluster(pt.ID, eventID); err != nil {
			return fmt.Errorf("cluster: assign %s: %w", pt.ID, err)
		}
		if st := states[eventID]; st != nil {
			st.absorb(pt)
		}
	}
	return nil
}

// pickSurvivor picks the merge survivor: largest member count, ties by
// earliest first_seen, then smallest id.
func pickSurvivor(ids []string, states map[string]*eventState) string {
	best := ids[0]
	for _, id := range ids[1:] {
		a, b := states[id], states[best]
		if a == nil || b == nil {
			continue
		}
		switch {
		case a.size != b.size:
			if a.size > b.size {
				best = id
			}
		case !a.firstSeen.Equal(b.firstSeen):
			if a.firstSeen.Before(b.firstSeen) {
				best = id
			}
		default:
			if id < best {
				best = id
			}
		}
	}
	return best
}

// medoid returns the index of the member with the highest total cosine
// similarity to the rest. Input is sorted (published, id), so ties keep
// the earliest.
func medoid(points []Point) int {
	best, bestScore := 0, math.Inf(-1)
	for i := range points {
		var score float64
		for j := range points {
			if i != j {
				score += float64(embed.CosineSimilarity(points[i].Vec, points[j].Vec))
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// eventState tracks one open event's live clustering state during a run.
type eventState struct {
	id        string
	size      int
	firstSeen time.Time
	lastSeen  time.Time

	members []memberInfo

	sum      []float64
	vecCount int
	centroid []float32
}

type memberInfo struct {
	published time.Time
	entities  []string
	vec       []float32
}

func (e *eventState) addVec(vec []float32) {
	if e.sum == nil {
		e.sum = make([]float64, len(vec))
	}
	if len(vec) != len(e.sum) {
		return
	}
	for i, v := range vec {
		e.sum[i] += float64(v)
	}
	e.vecCount++
	e.centroid = normalizedMean(e.sum, e.vecCount)
}

func (e *eventState) absorb(pt Point) {
	e.size++
	e.members = append(e.members, memberInfo{
		published: pt.Published,
		entities:  pt.Entities,
		vec:       pt.Vec,
	})
	if pt.Published.Before(e.firstSeen) {
		e.firstSeen = pt.Published
	}
	if pt.Published.After(e.lastSeen) {
		e.lastSeen = pt.Published
	}
	e.addVec(pt.Vec)
}

func (e *eventState) merge(o *eventState) {
	e.size += o.size
	if o.firstSeen.Before(e.firstSeen) {
		e.firstSeen = o.firstSeen
	}
	if o.lastSeen.After(e.lastSeen) {
		e.lastSeen = o.lastSeen
	}
	e.members = append(e.members, o.members...)
	if e.sum != nil && o.sum != nil && len(e.sum) == len(o.sum) {
		for i := range o.sum {
			e.sum[i] += o.sum[i]
		}
		e.vecCount += o.vecCount
		e.centroid = normalizedMean(e.sum, e.vecCount)
	}
}

// reachableBy reports whether the point passes the time and entity gates
// against at least one member, i.e. it could be a DBSCAN neighbor of the
// event's existing membership.
func (e *eventState) reachableBy(pt Point, window time.Duration, minOverlap float64) bool {
	for _, m := range e.members {
		if memberGates(pt, m, window, minOverlap) {
			return true
		}
	}
	return false
}

func memberGates(pt Point, m memberInfo, window time.Duration, minOverlap float64) bool {
	if window > 0 {
		gap := pt.Published.Sub(m.published)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			return false
		}
	}
	if minOverlap > 0 && len(pt.Entities) > 0 && len(m.entities) > 0 {
		if normalize.EntityOverlap(pt.Entities, m.entities) < minOverlap {
			return false
		}
	}
	return true
}

// recentMembers returns up to limit members with vectors, newest first.
func (e *eventState) recentMembers(limit int) []memberInfo {
	withVec := make([]memberInfo, 0, len(e.members))
	for _, m := range e.members {
		if m.vec != nil {
			withVec = append(withVec, m)
		}
	}
	sort.SliceStable(withVec, func(i, j int) bool {
		return withVec[i].published.After(withVec[j].published)
	})
	if len(withVec) > limit {
		withVec = withVec[:limit]
	}
	return withVec
}

// loadOpenEvents loads every open event's members and vectors and builds
// its live state. Events with no member vectors cannot participate in
// matching and are skipped.
func (c *Clusterer) loadOpenEvents(now time.Time) (map[string]*eventState, error) {
	staleAfter := time.Duration(c.cfg.StaleAfterHours) * time.Hour
	events, err := c.store.OpenEvents(now.Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("cluster: load open events: %w", err)
	}

	states := make(map[string]*eventState, len(events))
	for _, ev := range events {
		members, err := c.store.EventMembers(ev.ID)
		if err != nil {
			return nil, fmt.Errorf("cluster: members of %s: %w", ev.ID, err)
		}
		hashes := make([]string, len(members))
		for i, m := range members {
			hashes[i] = m.ContentHash
		}
		vecs, err := c.store.EmbeddingsByHash(hashes)
		if err != nil {
			return nil, fmt.Errorf("cluster: vectors of %s: %w", ev.ID, err)
		}

		st := &eventState{
			id:        ev.ID,
			size:      len(members),
			firstSeen: ev.FirstSeen,
			lastSeen:  ev.LastSeen,
		}
		for _, m := range members {
			mi := memberInfo{published: m.PublishedAt, entities: m.Entities}
			if vec, ok := vecs[m.ContentHash]; ok {
				mi.vec = vec
				st.addVec(vec)
			}
			st.members = append(st.members, mi)
		}
		if st.vecCount == 0 {
			continue
		}
		states[ev.ID] = st
	}
	return states, nil
}

func newCentroidGraph(states map[string]*eventState) *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 32
	for _, id := range sortedKeys(states) {
		g.Add(hnsw.MakeNode(id, states[id].centroid))
	}
	return g
}

// normalizedMean is the L2-renormalized mean of count summed vectors.
func normalizedMean(sum []float64, count int) []float32 {
	if count == 0 {
		return nil
	}
	mean := make([]float64, len(sum))
	var norm float64
	for i, v := range sum {
		m := v / float64(count)
		mean[i] = m
		norm += m * m
	}
	out := make([]float32, len(mean))
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i, m := range mean {
		out[i] = float32(m / norm)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
