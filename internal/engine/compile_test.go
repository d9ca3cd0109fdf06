package engine

import "testing"

func TestQueryCacheCompileReturnsCachedEntry(t *testing.T) {
	qc := NewQueryCache(2)
	sql := "SELECT id FROM t"

	first, err := qc.Compile(sql)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := qc.Compile(sql)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if first != second {
		t.Fatal("expected the second compile of identical SQL to return the cached entry")
	}
	if qc.Size() != 1 {
		t.Fatalf("expected cache size 1, got %d", qc.Size())
	}
}

func TestQueryCacheCompileError(t *testing.T) {
	qc := NewQueryCache(2)
	if _, err := qc.Compile("SELECT FROM"); err == nil {
		t.Fatal("expected compile error for malformed SQL")
	}
}

func TestQueryCacheEvictsOldestOnOverflow(t *testing.T) {
	qc := NewQueryCache(2)
	qc.MustCompile("SELECT a FROM t")
	qc.MustCompile("SELECT b FROM t")
	qc.MustCompile("SELECT c FROM t")

	if qc.Size() != 2 {
		t.Fatalf("expected cache size capped at 2, got %d", qc.Size())
	}
	if _, ok := qc.entries["SELECT a FROM t"]; ok {
		t.Fatal("expected least-recently-used entry to be evicted")
	}
}

func TestQueryCacheClear(t *testing.T) {
	qc := NewQueryCache(10)
	qc.MustCompile("SELECT a FROM t")
	qc.Clear()
	if qc.Size() != 0 {
		t.Fatalf("expected empty cache after Clear, got size %d", qc.Size())
	}
}

func TestQueryCacheMustCompilePanicsOnError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustCompile to panic on malformed SQL")
		}
	}()
	NewQueryCache(1).MustCompile("SELECT FROM")
}
