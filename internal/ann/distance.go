// Package ann implements the hierarchical proximity graph used for
// approximate nearest-neighbor search over embedding columns: one graph
// per table and embedding column, built and queried the way an HNSW index is
// normally described (layered navigable small-world graph, bounded
// beam search, diversity-aware neighbor selection, tombstone deletes).
package ann

import "math"

// CosineDistance is 1 - cosine_similarity(a, b). Mirrors
// storage.CosineDistance's sentinel behavior (2.0 for a zero-norm or
// mismatched-dimension pair) exactly, duplicated here rather than
// imported so this package stays a leaf with no import of storage;
// recovery reaches ann only through the storage.EmbeddingSink
// interface, which the engine implements.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2.0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
