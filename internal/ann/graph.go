package ann

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

// nodeID is an arena index into a Graph's node pool; 0 means "no node",
// mirroring the dense-integer-over-pointer convention the rest of this
// module uses for version chains.
type nodeID uint32

type node struct {
	rowID     int64
	vector    []float32
	topLayer  int
	neighbors [][]nodeID // neighbors[layer] for layer in [0, topLayer]
	deleted   bool
}

// Graph is one hierarchical proximity graph over vectors of a single
// dimension; Manager keeps one Graph per embedding table+column, so two
// columns of the same dimension get separate graphs. Safe for
// concurrent use; every operation takes the single coarse mutex per spec §5 ("ANN graph
// global locks during insert... a future refinement would push locking
// to the node level" — not attempted here, matching the spec's own
// admission that coarse locking is the baseline).
type Graph struct {
	mu sync.Mutex

	dim            int
	m              int // max neighbors per node at layer >= 1
	mMax0          int // max neighbors per node at layer 0 (2*m)
	efConstruction int
	efSearch       int
	levelMult      float64

	arena      []node // arena[0] is an unused sentinel
	entryPoint nodeID
	rowToNode  map[int64]nodeID
	rng        *rand.Rand
}

// SearchResult is one hit returned by Search, ordered by ascending
// distance (closest first, per spec §4.5/§8 property 11).
type SearchResult struct {
	RowID    int64
	Distance float64
}

// NewGraph builds an empty graph over vectors of the given dimension. m
// controls the steady-state neighbor degree, efConstruction the
// build-time beam width, efSearch the query-time beam width — named
// directly after the base spec's own parameter names.
func NewGraph(dim, m, efConstruction, efSearch int) *Graph {
	if m < 2 {
		m = 2
	}
	if efConstruction < m {
		efConstruction = m
	}
	if efSearch < 1 {
		efSearch = efConstruction
	}
	return &Graph{
		dim:            dim,
		m:              m,
		mMax0:          2 * m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		levelMult:      1.0 / math.Log(float64(m)),
		arena:          make([]node, 1, 64),
		rowToNode:      make(map[int64]nodeID),
		rng:            rand.New(rand.NewSource(1)),
	}
}

func (g *Graph) at(id nodeID) *node {
	if id == 0 {
		return nil
	}
	return &g.arena[id]
}

// randomLevel draws a layer from the geometric distribution HNSW uses:
// level = floor(-ln(U) * levelMult), U uniform in (0, 1].
func (g *Graph) randomLevel() int {
	u := g.rng.Float64()
	if u <= 0 {
		u = 1e-12
	}
	level := int(math.Floor(-math.Log(u) * g.levelMult))
	if level < 0 {
		level = 0
	}
	return level
}

// Insert adds vector under external row id, per spec §4.5's insert
// algorithm: descend from the entry point greedily down to the new
// node's own top layer, then run a bounded beam search at and below
// that layer to gather neighbor candidates, wiring bidirectional edges
// with a diversity-aware selection and enforcing the degree cap.
//
// Re-inserting an already-present row id first removes the old node
// (spec §4.5 remove: "on insert reuse, issue a new internal id rather
// than reviving the tombstone").
func (g *Graph) Insert(rowID int64, vector []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.rowToNode[rowID]; ok {
		g.at(existing).deleted = true
		delete(g.rowToNode, rowID)
	}

	topLayer := g.randomLevel()
	n := node{
		rowID:     rowID,
		vector:    append([]float32(nil), vector...),
		topLayer:  topLayer,
		neighbors: make([][]nodeID, topLayer+1),
	}
	g.arena = append(g.arena, n)
	id := nodeID(len(g.arena) - 1)
	g.rowToNode[rowID] = id

	if g.entryPoint == 0 {
		g.entryPoint = id
		return
	}

	entry := g.entryPoint
	entryTop := g.at(entry).topLayer

	// Greedy single-nearest descent on layers above the new node's top.
	cur := entry
	for layer := entryTop; layer > topLayer; layer-- {
		cur = g.greedyNearest(cur, vector, layer)
	}

	// Beam search + wiring at and below the new node's top layer.
	for layer := min(entryTop, topLayer); layer >= 0; layer-- {
		cap := g.m
		if layer == 0 {
			cap = g.mMax0
		}
		candidates := g.searchLayer(cur, vector, g.efConstruction, layer)
		selected := g.selectNeighbors(vector, candidates, cap)
		g.at(id).neighbors[layer] = selected
		for _, nb := range selected {
			g.addEdge(nb, id, layer, cap)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	// A tombstoned entry point may have no edge to the new node (e.g. it
	// was the only node and was just replaced), so hand entry to a live one.
	if topLayer > entryTop || g.at(entry).deleted {
		g.entryPoint = id
	}
}

// addEdge adds a bidirectional edge from nb to id at layer, pruning nb's
// neighbor list back down to cap via the diversity heuristic if it now
// exceeds the degree cap (spec §4.5: "maintain degree cap by
// re-selecting if any neighbor's degree exceeds the cap").
func (g *Graph) addEdge(nb, id nodeID, layer, cap int) {
	other := g.at(nb)
	if layer >= len(other.neighbors) {
		return
	}
	other.neighbors[layer] = append(other.neighbors[layer], id)
	if len(other.neighbors[layer]) <= cap {
		return
	}
	cands := make([]candidate, 0, len(other.neighbors[layer]))
	for _, nid := range other.neighbors[layer] {
		cands = append(cands, candidate{id: nid, dist: CosineDistance(other.vector, g.at(nid).vector)})
	}
	other.neighbors[layer] = g.selectNeighbors(other.vector, cands, cap)
}

type candidate struct {
	id   nodeID
	dist float64
}

// greedyNearest walks from start to whichever neighbor at layer is
// closer to query, repeating until no neighbor improves, and returns the
// node it settles on — the upper-layer descent step.
func (g *Graph) greedyNearest(start nodeID, query []float32, layer int) nodeID {
	best := start
	bestDist := CosineDistance(query, g.at(start).vector)
	improved := true
	for improved {
		improved = false
		cur := g.at(best)
		if layer >= len(cur.neighbors) {
			break
		}
		for _, nb := range cur.neighbors[layer] {
			nbNode := g.at(nb)
			if nbNode.deleted {
				continue
			}
			d := CosineDistance(query, nbNode.vector)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}

// searchLayer runs a bounded best-first search from entry, returning up
// to ef candidates sorted by ascending distance, per spec §4.5's
// "bounded best-first search with beam size ef_construction/ef_search".
func (g *Graph) searchLayer(entry nodeID, query []float32, ef, layer int) []candidate {
	visited := map[nodeID]bool{entry: true}
	entryDist := CosineDistance(query, g.at(entry).vector)

	candidateHeap := []candidate{{id: entry, dist: entryDist}}
	var results []candidate
	if !g.at(entry).deleted {
		results = append(results, candidate{id: entry, dist: entryDist})
	}

	for len(candidateHeap) > 0 {
		sort.Slice(candidateHeap, func(i, j int) bool { return candidateHeap[i].dist < candidateHeap[j].dist })
		cur := candidateHeap[0]
		candidateHeap = candidateHeap[1:]

		if len(results) >= ef {
			sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
			if cur.dist > results[len(results)-1].dist {
				break
			}
		}

		curNode := g.at(cur.id)
		if layer >= len(curNode.neighbors) {
			continue
		}
		for _, nb := range curNode.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode := g.at(nb)
			d := CosineDistance(query, nbNode.vector)
			candidateHeap = append(candidateHeap, candidate{id: nb, dist: d})
			if !nbNode.deleted {
				results = append(results, candidate{id: nb, dist: d})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

// selectNeighbors implements the diversity heuristic: walk candidates in
// ascending distance-to-query order, keeping a candidate only if it is
// closer to the query than it is to every neighbor already selected —
// this favors spreading neighbors across distinct directions over
// packing them all toward the single nearest cluster (spec §4.5:
// "neighbors are chosen by a heuristic that prefers diverse directions").
func (g *Graph) selectNeighbors(query []float32, candidates []candidate, cap int) []nodeID {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	var selected []nodeID
	for _, c := range sorted {
		if len(selected) >= cap {
			break
		}
		if g.at(c.id).deleted {
			continue
		}
		diverse := true
		for _, s := range selected {
			if CosineDistance(g.at(c.id).vector, g.at(s).vector) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c.id)
		}
	}
	// If the diversity filter was too strict to fill the cap, top up with
	// the closest remaining candidates regardless of diversity.
	if len(selected) < cap {
		have := make(map[nodeID]bool, len(selected))
		for _, id := range selected {
			have[id] = true
		}
		for _, c := range sorted {
			if len(selected) >= cap {
				break
			}
			if have[c.id] || g.at(c.id).deleted {
				continue
			}
			selected = append(selected, c.id)
			have[c.id] = true
		}
	}
	return selected
}

// Search returns the k nearest live (non-tombstoned) nodes to query, per
// spec §4.5's search algorithm: greedy-navigate upper layers down to a
// single nearest node, then best-first search at layer 0 with beam
// efSearch.
func (g *Graph) Search(query []float32, k int) []SearchResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.entryPoint == 0 {
		return nil
	}
	cur := g.entryPoint
	top := g.at(cur).topLayer
	for layer := top; layer > 0; layer-- {
		cur = g.greedyNearest(cur, query, layer)
	}

	ef := g.efSearch
	if ef < k {
		ef = k
	}
	cands := g.searchLayer(cur, query, ef, 0)
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]SearchResult, 0, len(cands))
	for _, c := range cands {
		out = append(out, SearchResult{RowID: g.at(c.id).rowID, Distance: c.dist})
	}
	return out
}

// Remove tombstones the node for rowID. Subsequent searches skip it;
// a later Insert under the same row id allocates a fresh node rather
// than reviving this one (spec §4.5).
func (g *Graph) Remove(rowID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.rowToNode[rowID]
	if !ok {
		return false
	}
	g.at(id).deleted = true
	delete(g.rowToNode, rowID)
	return true
}

// Len reports the number of live (non-tombstoned) nodes.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for i := 1; i < len(g.arena); i++ {
		if !g.arena[i].deleted {
			n++
		}
	}
	return n
}
