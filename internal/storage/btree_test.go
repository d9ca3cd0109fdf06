package storage

import "testing"

func TestBTreeInsertAndSearch(t *testing.T) {
	tree := NewBTree()
	tree.Insert(IntValue(5), 100)
	tree.Insert(IntValue(5), 101)
	tree.Insert(IntValue(3), 102)

	ids := tree.Search(IntValue(5))
	if len(ids) != 2 {
		t.Fatalf("expected 2 row ids for key 5, got %d", len(ids))
	}
	if _, ok := ids[100]; !ok {
		t.Error("missing row 100 in search result")
	}
	if _, ok := ids[101]; !ok {
		t.Error("missing row 101 in search result")
	}

	if ids := tree.Search(IntValue(9)); len(ids) != 0 {
		t.Error("search on absent key should return empty set")
	}
}

func TestBTreeRemove(t *testing.T) {
	tree := NewBTree()
	tree.Insert(IntValue(1), 10)
	tree.Insert(IntValue(1), 11)
	tree.Remove(IntValue(1), 10)

	ids := tree.Search(IntValue(1))
	if len(ids) != 1 {
		t.Fatalf("expected only row 11 to remain, got %v", ids)
	}
	if _, ok := ids[11]; !ok {
		t.Fatalf("expected row 11 to remain, got %v", ids)
	}

	tree.Remove(IntValue(1), 11)
	if tree.Len() != 0 {
		t.Error("key with no remaining row ids should be dropped from the tree entirely")
	}
}

func TestBTreeRangeInclusiveBounds(t *testing.T) {
	tree := NewBTree()
	for _, v := range []int64{5, 1, 3, 9, 7} {
		tree.Insert(IntValue(v), v)
	}

	lo, hi := IntValue(3), IntValue(7)
	ids := tree.Range(&lo, &hi, true, true)
	want := map[int64]bool{3: true, 5: true, 7: true}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got keys %v", want, ids)
	}
	for id := range want {
		if _, ok := ids[id]; !ok {
			t.Errorf("expected row id %d in range result", id)
		}
	}
}

func TestBTreeRangeExclusiveBounds(t *testing.T) {
	tree := NewBTree()
	for _, v := range []int64{1, 2, 3, 4, 5} {
		tree.Insert(IntValue(v), v)
	}
	lo, hi := IntValue(1), IntValue(5)
	ids := tree.Range(&lo, &hi, false, false)
	if _, ok := ids[1]; ok {
		t.Error("exclusive lower bound must not include the bound value")
	}
	if _, ok := ids[5]; ok {
		t.Error("exclusive upper bound must not include the bound value")
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 ids strictly between 1 and 5, got %v", ids)
	}
}

func TestBTreeRangeUnbounded(t *testing.T) {
	tree := NewBTree()
	for _, v := range []int64{1, 2, 3} {
		tree.Insert(IntValue(v), v)
	}
	ids := tree.Range(nil, nil, true, true)
	if len(ids) != 3 {
		t.Errorf("unbounded range should return every row id, got %v", ids)
	}
}
