package engine

import "hash/fnv"

// Embedder turns a text literal into an embedding vector for `ORDER BY
// SIMILARITY TO <literal>`. The base query engine treats this as an
// external collaborator (spec §6) — callers normally supply a real
// text-embedding model. HashEmbedder is a deterministic stand-in used
// when no model is configured, so the SIMILARITY path stays exercisable
// without a network dependency.
type Embedder interface {
	Embed(text string, dimension int) ([]float32, error)
}

// HashEmbedder derives a vector from repeated FNV-1a hashing of the
// input text. It has no semantic properties whatsoever — two
// unrelated strings are not "close" in any meaningful sense — but it
// is deterministic and dimension-stable, which is all the executor's
// plumbing requires to be testable end to end.
type HashEmbedder struct{}

func (HashEmbedder) Embed(text string, dimension int) ([]float32, error) {
	out := make([]float32, dimension)
	seed := []byte(text)
	for i := range out {
		h := fnv.New32a()
		h.Write(seed)
		h.Write([]byte{byte(i), byte(i >> 8)})
		v := h.Sum32()
		out[i] = float32(int32(v)) / float32(1<<31)
	}
	return out, nil
}
