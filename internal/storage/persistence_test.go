package storage

import "testing"

func TestSaveAndLoadTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl := NewTable("widgets", schemaXY())
	tbl.InsertWithID(1, map[string]Value{"x": IntValue(10)}, 0)
	tbl.InsertWithID(2, map[string]Value{"x": IntValue(20)}, 0)

	if err := SaveTable(dir, tbl, nil); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadTable(dir + "/table_widgets.gob")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name != "widgets" {
		t.Errorf("expected name widgets, got %s", loaded.Name)
	}
	row, ok := loaded.Get(1, nil, nil)
	if !ok || row["x"].Int != 10 {
		t.Error("row 1 did not round-trip correctly")
	}
	if n := loaded.RowCount(nil, nil); n != 2 {
		t.Errorf("expected 2 rows after load, got %d", n)
	}

	next := loaded.ReserveRowID()
	if next <= 2 {
		t.Errorf("loaded table's row id counter should be past the highest loaded row id, got %d", next)
	}
}

func TestSaveAndLoadIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	im := NewIndexManager()
	info, err := im.Create("idx_x", "widgets", "x")
	if err != nil {
		t.Fatal(err)
	}
	info.Tree.Insert(IntValue(5), 1)
	info.Tree.Insert(IntValue(5), 2)

	if err := SaveIndex(dir, info); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadIndex(dir + "/index_idx_x.gob")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Table != "widgets" || loaded.Column != "x" {
		t.Errorf("unexpected index metadata after load: %+v", loaded)
	}
	ids := loaded.Tree.Search(IntValue(5))
	if len(ids) != 2 {
		t.Errorf("expected 2 row ids under key 5, got %v", ids)
	}
}

func TestSaveAllLoadAllRoundTrip(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog()
	tbl, err := catalog.CreateTable("widgets", schemaXY(), false)
	if err != nil {
		t.Fatal(err)
	}
	tbl.InsertWithID(1, map[string]Value{"x": IntValue(7)}, 0)
	catalog.Indexes.Create("idx_x", "widgets", "x")
	catalog.Indexes.OnInsert("widgets", 1, map[string]Value{"x": IntValue(7)})

	if err := SaveAll(dir, catalog); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadAll(dir)
	if err != nil {
		t.Fatal(err)
	}
	lt, err := loaded.Table("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lt.Get(1, nil, nil); !ok {
		t.Error("expected row 1 to survive a full save/load round trip")
	}
	if _, ok := loaded.Indexes.Lookup("idx_x"); !ok {
		t.Error("expected index idx_x to survive a full save/load round trip")
	}
}
