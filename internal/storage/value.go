package storage

import (
	"fmt"
	"math"
)

// ValueType tags the variant carried by a Value.
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeInt
	TypeFloat
	TypeText
	TypeBool
	TypeEmbedding
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeText:
		return "TEXT"
	case TypeBool:
		return "BOOL"
	case TypeEmbedding:
		return "EMBEDDING"
	default:
		return "UNKNOWN"
	}
}

// Value is the tagged union every column cell and literal is stored as.
// Text and Embedding own their backing buffers; Clone deep-copies them,
// Release is a no-op placeholder kept for symmetry with the reference
// design's explicit-free discipline (Go's GC owns the memory, but Clone
// still performs a real copy so callers can mutate their copy freely).
type Value struct {
	Type  ValueType
	Int   int64
	Float float64
	Text  string
	Bool  bool
	Vec   []float32
}

// Null is the shared zero-value null Value.
var Null = Value{Type: TypeNull}

func IntValue(v int64) Value      { return Value{Type: TypeInt, Int: v} }
func FloatValue(v float64) Value  { return Value{Type: TypeFloat, Float: v} }
func TextValue(v string) Value    { return Value{Type: TypeText, Text: v} }
func BoolValue(v bool) Value      { return Value{Type: TypeBool, Bool: v} }
func EmbeddingValue(v []float32) Value {
	cp := make([]float32, len(v))
	copy(cp, v)
	return Value{Type: TypeEmbedding, Vec: cp}
}

func (v Value) IsNull() bool { return v.Type == TypeNull }

// Clone deep-copies owned bytes (text is immutable in Go so this is
// cheap; embeddings get a fresh backing array).
func (v Value) Clone() Value {
	if v.Type == TypeEmbedding {
		cp := make([]float32, len(v.Vec))
		copy(cp, v.Vec)
		v.Vec = cp
	}
	return v
}

// Release exists for symmetry with the reference design's explicit
// ownership discipline. Go values are garbage collected, so there is
// nothing to free; kept as a named no-op so call sites read the same
// way they would in a manually-memory-managed target.
func (v Value) Release() {}

// Dimension returns the embedding length, or 0 for non-embedding values.
func (v Value) Dimension() int {
	if v.Type != TypeEmbedding {
		return 0
	}
	return len(v.Vec)
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "NULL"
	case TypeInt:
		return fmt.Sprintf("%d", v.Int)
	case TypeFloat:
		return fmt.Sprintf("%g", v.Float)
	case TypeText:
		return v.Text
	case TypeBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeEmbedding:
		return fmt.Sprintf("<embedding:%d>", len(v.Vec))
	default:
		return "?"
	}
}

// Compare orders two values of the same type. Cross-type comparison is
// undefined per spec §4.4 and must never be invoked by the planner or
// B-tree; this helper panics on a cross-type call to surface the bug
// loudly during development rather than return a silently-wrong order.
func Compare(a, b Value) int {
	if a.Type != b.Type {
		panic(fmt.Sprintf("storage: cross-type comparison %s vs %s", a.Type, b.Type))
	}
	switch a.Type {
	case TypeNull:
		return 0
	case TypeInt:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case TypeFloat:
		switch {
		case a.Float < b.Float:
			return -1
		case a.Float > b.Float:
			return 1
		default:
			return 0
		}
	case TypeText:
		switch {
		case a.Text < b.Text:
			return -1
		case a.Text > b.Text:
			return 1
		default:
			return 0
		}
	case TypeBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case TypeEmbedding:
		// Embeddings have no natural total order; compare by length then
		// lexicographically so the B-tree can still maintain a consistent
		// (if not semantically meaningful) order if ever asked to.
		if len(a.Vec) != len(b.Vec) {
			if len(a.Vec) < len(b.Vec) {
				return -1
			}
			return 1
		}
		for i := range a.Vec {
			if a.Vec[i] != b.Vec[i] {
				if a.Vec[i] < b.Vec[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	default:
		return 0
	}
}

// Equal reports whether two values are of the same type and equal.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == TypeEmbedding {
		if len(a.Vec) != len(b.Vec) {
			return false
		}
		for i := range a.Vec {
			if a.Vec[i] != b.Vec[i] {
				return false
			}
		}
		return true
	}
	return Compare(a, b) == 0
}

// CosineDistance computes 1 - cosine_similarity(a, b). A zero-norm
// vector yields the sentinel maximum distance of 2.0 (the farthest two
// unit vectors can be is distance 2, so 2.0 is an unreachable-but-safe
// "infinitely far" sentinel).
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
