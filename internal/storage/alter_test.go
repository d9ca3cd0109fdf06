package storage

import "testing"

func TestAddColumnRejectsDuplicate(t *testing.T) {
	tbl := NewTable("t", schemaAB())
	if err := tbl.AddColumn(Column{Name: "a", Type: ColInt}); err == nil {
		t.Fatal("expected an error adding a column name that already exists")
	}
}

func TestDropColumnRemovesFromSchemaButKeepsRowData(t *testing.T) {
	tbl := NewTable("t", schemaAB())
	tbl.InsertWithID(1, map[string]Value{"a": IntValue(1), "b": TextValue("x")}, 0)

	if err := tbl.DropColumn("b"); err != nil {
		t.Fatal(err)
	}
	if tbl.Schema.ColumnIndex("b") >= 0 {
		t.Error("dropped column should no longer appear in the schema")
	}
	row, ok := tbl.Get(1, nil, nil)
	if !ok {
		t.Fatal("row should still be retrievable")
	}
	if _, present := row["b"]; !present {
		t.Error("historical row data for a dropped column is harmless to keep around")
	}
}

func TestDropColumnNotFound(t *testing.T) {
	tbl := NewTable("t", schemaAB())
	if err := tbl.DropColumn("nope"); err == nil {
		t.Fatal("expected ColumnNotFound for an unknown column")
	}
}

func TestRenameColumnUpdatesSchemaAndLiveData(t *testing.T) {
	tbl := NewTable("t", schemaAB())
	tbl.InsertWithID(1, map[string]Value{"a": IntValue(5), "b": TextValue("x")}, 0)

	if err := tbl.RenameColumn("a", "renamed"); err != nil {
		t.Fatal(err)
	}
	if tbl.Schema.ColumnIndex("a") >= 0 {
		t.Error("old column name should be gone from the schema")
	}
	if tbl.Schema.ColumnIndex("renamed") < 0 {
		t.Error("new column name should be present in the schema")
	}
	row, _ := tbl.Get(1, nil, nil)
	if _, stillOld := row["a"]; stillOld {
		t.Error("live row data should be keyed under the new name after rename")
	}
	if row["renamed"].Int != 5 {
		t.Error("renamed column should preserve its value")
	}
}

func TestRenameColumnRejectsExistingTarget(t *testing.T) {
	tbl := NewTable("t", schemaAB())
	if err := tbl.RenameColumn("a", "b"); err == nil {
		t.Fatal("expected an error renaming onto an already-existing column name")
	}
}
