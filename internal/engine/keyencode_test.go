package engine

import (
	"testing"

	"github.com/vectorbase/vectorbase/internal/storage"
)

func TestEncodeValue(t *testing.T) {
	cases := []struct {
		v    storage.Value
		want string
	}{
		{storage.Value{Type: storage.TypeNull}, "NULL"},
		{storage.IntValue(5), "i:5"},
		{storage.FloatValue(1.5), "f:1.5"},
		{storage.TextValue("x"), "t:x"},
		{storage.BoolValue(true), "b:1"},
		{storage.BoolValue(false), "b:0"},
	}
	for _, c := range cases {
		if got := EncodeValue(c.v); got != c.want {
			t.Errorf("EncodeValue(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestGroupKeyNullsCollide(t *testing.T) {
	null := storage.Value{Type: storage.TypeNull}
	k1 := GroupKey([]storage.Value{null, storage.IntValue(1)})
	k2 := GroupKey([]storage.Value{null, storage.IntValue(1)})
	if k1 != k2 {
		t.Fatalf("expected identical group keys for identical rows, got %q vs %q", k1, k2)
	}

	different := GroupKey([]storage.Value{storage.IntValue(2), storage.IntValue(1)})
	if different == k1 {
		t.Fatal("expected differing group keys for differing rows")
	}
}

func TestGroupKeyDistinguishesColumnBoundary(t *testing.T) {
	// "ab" | "c" must not collide with "a" | "bc".
	k1 := GroupKey([]storage.Value{storage.TextValue("ab"), storage.TextValue("c")})
	k2 := GroupKey([]storage.Value{storage.TextValue("a"), storage.TextValue("bc")})
	if k1 == k2 {
		t.Fatalf("expected column-boundary separator to disambiguate %q from %q", k1, k2)
	}
}
