package storage

import "testing"

func TestIndexManagerCreateDuplicateName(t *testing.T) {
	im := NewIndexManager()
	if _, err := im.Create("idx_a", "t", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := im.Create("idx_a", "t", "b"); err == nil {
		t.Fatal("expected IndexAlreadyExists for a duplicate name")
	}
}

func TestIndexManagerOnInsertAndLookup(t *testing.T) {
	im := NewIndexManager()
	im.Create("idx_a", "t", "a")

	if err := im.OnInsert("t", 1, map[string]Value{"a": IntValue(5), "b": IntValue(9)}); err != nil {
		t.Fatal(err)
	}
	indexes := im.IndexesOn("t", "a")
	if len(indexes) != 1 {
		t.Fatalf("expected 1 index on t.a, got %d", len(indexes))
	}
	ids := indexes[0].Tree.Search(IntValue(5))
	if _, ok := ids[1]; !ok {
		t.Error("row 1 should be indexed under value 5")
	}

	// column b has no index registered, so nothing should happen there.
	if len(im.IndexesOn("t", "b")) != 0 {
		t.Error("no index should exist on an unregistered column")
	}
}

func TestIndexManagerOnUpdateMovesEntry(t *testing.T) {
	im := NewIndexManager()
	im.Create("idx_a", "t", "a")
	im.OnInsert("t", 1, map[string]Value{"a": IntValue(5)})

	old := map[string]Value{"a": IntValue(5)}
	newRow := map[string]Value{"a": IntValue(6)}
	if err := im.OnUpdate("t", 1, old, newRow); err != nil {
		t.Fatal(err)
	}
	info, _ := im.Lookup("idx_a")
	if ids := info.Tree.Search(IntValue(5)); len(ids) != 0 {
		t.Error("old value should no longer be indexed after update")
	}
	if ids := info.Tree.Search(IntValue(6)); len(ids) == 0 {
		t.Error("new value should be indexed after update")
	}
}

func TestIndexManagerOnUpdateSkipsUnchangedValue(t *testing.T) {
	im := NewIndexManager()
	im.Create("idx_a", "t", "a")
	im.OnInsert("t", 1, map[string]Value{"a": IntValue(5)})

	old := map[string]Value{"a": IntValue(5)}
	newRow := map[string]Value{"a": IntValue(5)}
	im.OnUpdate("t", 1, old, newRow)

	info, _ := im.Lookup("idx_a")
	ids := info.Tree.Search(IntValue(5))
	if len(ids) != 1 {
		t.Errorf("unchanged value should keep exactly one entry, got %v", ids)
	}
}

func TestIndexManagerOnDelete(t *testing.T) {
	im := NewIndexManager()
	im.Create("idx_a", "t", "a")
	im.OnInsert("t", 1, map[string]Value{"a": IntValue(5)})
	im.OnDelete("t", 1, map[string]Value{"a": IntValue(5)})

	info, _ := im.Lookup("idx_a")
	if ids := info.Tree.Search(IntValue(5)); len(ids) != 0 {
		t.Error("deleted row should be removed from every index")
	}
}

func TestIndexManagerDropTable(t *testing.T) {
	im := NewIndexManager()
	im.Create("idx_a", "t", "a")
	im.DropTable("t")
	if _, ok := im.Lookup("idx_a"); ok {
		t.Error("DropTable should remove every index defined on that table")
	}
	if len(im.IndexesOn("t", "a")) != 0 {
		t.Error("DropTable should clear the byColumn side index too")
	}
}
