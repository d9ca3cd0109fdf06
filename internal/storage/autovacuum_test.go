package storage

import "testing"

func TestAutoVacuumSweepRemovesDeadVersions(t *testing.T) {
	catalog := NewCatalog()
	tbl, err := catalog.CreateTable("t", schemaXY(), false)
	if err != nil {
		t.Fatal(err)
	}
	w1 := catalog.Txns.Begin()
	tbl.InsertWithID(1, map[string]Value{"x": IntValue(1)}, w1.ID)
	catalog.Txns.Commit(w1.ID)

	w2 := catalog.Txns.Begin()
	tbl.UpdateRow(1, map[string]Value{"x": IntValue(2)}, w2.ID, catalog.CLog)
	catalog.Txns.Commit(w2.ID)

	av := NewAutoVacuum(catalog, catalog.Txns, 1000)
	stats := av.Sweep()
	if _, ok := stats["t"]; !ok {
		t.Fatal("expected sweep stats for table t")
	}
	if stats["t"].VersionsRemoved != 1 {
		t.Errorf("expected 1 superseded version removed, got %d", stats["t"].VersionsRemoved)
	}
	row, ok := tbl.Get(1, nil, nil)
	if !ok || row["x"].Int != 2 {
		t.Error("sweep must preserve the live visible value")
	}
}

func TestAutoVacuumRecordWriteTriggersAtThreshold(t *testing.T) {
	catalog := NewCatalog()
	catalog.CreateTable("t", schemaXY(), false)
	av := NewAutoVacuum(catalog, catalog.Txns, 3)

	av.RecordWrite()
	av.RecordWrite()
	if av.written.Load() != 2 {
		t.Fatalf("expected counter at 2 before threshold, got %d", av.written.Load())
	}
	av.RecordWrite()
	if av.written.Load() != 0 {
		t.Error("counter should reset to 0 once the threshold triggers a sweep")
	}
}

func TestNewAutoVacuumDefaultsThreshold(t *testing.T) {
	catalog := NewCatalog()
	av := NewAutoVacuum(catalog, catalog.Txns, 0)
	if av.threshold != 1000 {
		t.Errorf("expected default threshold of 1000, got %d", av.threshold)
	}
}
