package engine

import (
	"testing"

	"github.com/vectorbase/vectorbase/internal/storage"
)

func TestJoinAlgorithmChoosesHashForLargeInputs(t *testing.T) {
	if got := JoinAlgorithm(1000, 1000); got != "hash" {
		t.Fatalf("expected hash join for two large inputs, got %q", got)
	}
	if got := JoinAlgorithm(2, 3); got != "nested_loop" {
		t.Fatalf("expected nested loop for tiny inputs, got %q", got)
	}
}

func TestPlanAccessWithoutIndexIsTableScan(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE t (id INT)`)

	where := &Binary{Op: "=", Left: &ColumnRef{Name: "id"}, Right: &Literal{Val: int64(5)}}
	path := PlanAccess(conn.db.Catalog, "t", where, 1000)
	if path.Index {
		t.Fatal("expected a table scan when no index exists on the predicate column")
	}
}

func TestPlanAccessUsesIndexForSelectiveEquality(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE t (id INT)`)
	mustExec(t, conn, `CREATE INDEX idx_t_id ON t (id)`)

	tbl, err := conn.db.Catalog.Table("t")
	if err != nil {
		t.Fatalf("lookup table: %v", err)
	}
	for i := int64(0); i < 500; i++ {
		rowID := tbl.ReserveRowID()
		values := map[string]storage.Value{"id": storage.IntValue(i)}
		if err := tbl.InsertWithID(rowID, values, 0); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := conn.db.Catalog.Indexes.OnInsert("t", rowID, values); err != nil {
			t.Fatalf("index insert: %v", err)
		}
	}

	where := &Binary{Op: "=", Left: &ColumnRef{Name: "id"}, Right: &Literal{Val: int64(42)}}
	path := PlanAccess(conn.db.Catalog, "t", where, 500)
	if !path.Index {
		t.Fatal("expected an index scan for a selective equality predicate over 500 rows")
	}
	if _, ok := path.RowIDs[43]; !ok {
		t.Fatalf("expected row id 43 (holding id=42) among the index's candidate rows, got %v", path.RowIDs)
	}
}
