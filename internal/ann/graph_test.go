package ann

import (
	"math/rand"
	"testing"
)

func randomUnitVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestGraphSearchFindsExactDuplicateAtTop1(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	g := NewGraph(128, DefaultM, DefaultEfConstruction, DefaultEfSearch)

	vectors := make(map[int64][]float32, 200)
	for i := int64(0); i < 200; i++ {
		vectors[i] = randomUnitVector(r, 128)
		g.Insert(i, vectors[i])
	}

	target := vectors[57]
	dup := append([]float32(nil), target...)
	results := g.Search(dup, 5)
	if len(results) == 0 {
		t.Fatal("expected at least one search result")
	}
	if results[0].RowID != 57 {
		t.Errorf("expected row 57 (exact duplicate) at top-1, got row %d", results[0].RowID)
	}
	if results[0].Distance > 1e-6 {
		t.Errorf("expected ~0 distance for an exact duplicate, got %f", results[0].Distance)
	}
}

func TestGraphSearchReturnsAscendingDistance(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	g := NewGraph(32, DefaultM, DefaultEfConstruction, DefaultEfSearch)
	for i := int64(0); i < 100; i++ {
		g.Insert(i, randomUnitVector(r, 32))
	}
	query := randomUnitVector(r, 32)
	results := g.Search(query, 10)
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Fatalf("results not sorted by ascending distance at index %d: %v", i, results)
		}
	}
}

func TestGraphRemoveExcludesFromSearch(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	g := NewGraph(16, DefaultM, DefaultEfConstruction, DefaultEfSearch)
	vecs := make(map[int64][]float32)
	for i := int64(0); i < 50; i++ {
		vecs[i] = randomUnitVector(r, 16)
		g.Insert(i, vecs[i])
	}
	g.Remove(10)

	results := g.Search(vecs[10], 50)
	for _, res := range results {
		if res.RowID == 10 {
			t.Fatal("removed row id should never appear in search results")
		}
	}
}

func TestGraphLenReflectsLiveNodesOnly(t *testing.T) {
	g := NewGraph(4, DefaultM, DefaultEfConstruction, DefaultEfSearch)
	g.Insert(1, []float32{1, 0, 0, 0})
	g.Insert(2, []float32{0, 1, 0, 0})
	if g.Len() != 2 {
		t.Fatalf("expected 2 live nodes, got %d", g.Len())
	}
	g.Remove(1)
	if g.Len() != 1 {
		t.Fatalf("expected 1 live node after removal, got %d", g.Len())
	}
}

func TestGraphReinsertSameRowIDReplacesVector(t *testing.T) {
	g := NewGraph(4, DefaultM, DefaultEfConstruction, DefaultEfSearch)
	g.Insert(1, []float32{1, 0, 0, 0})
	g.Insert(1, []float32{0, 1, 0, 0})

	results := g.Search([]float32{0, 1, 0, 0}, 1)
	if len(results) != 1 || results[0].RowID != 1 {
		t.Fatalf("expected row 1 at the new vector position, got %v", results)
	}
	if results[0].Distance > 1e-6 {
		t.Errorf("expected ~0 distance to the new (re-inserted) vector, got %f", results[0].Distance)
	}
}

func TestGraphSearchEmptyGraphReturnsNil(t *testing.T) {
	g := NewGraph(4, DefaultM, DefaultEfConstruction, DefaultEfSearch)
	if results := g.Search([]float32{1, 2, 3, 4}, 5); results != nil {
		t.Errorf("expected nil results from an empty graph, got %v", results)
	}
}

func TestCosineDistanceSentinelForZeroNorm(t *testing.T) {
	d := CosineDistance([]float32{0, 0}, []float32{1, 1})
	if d != 2.0 {
		t.Errorf("expected sentinel distance 2.0, got %f", d)
	}
}
