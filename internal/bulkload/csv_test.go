package bulkload

import (
	"context"
	"strings"
	"testing"

	"github.com/vectorbase/vectorbase/internal/engine"
	"github.com/vectorbase/vectorbase/internal/storage"
)

func TestImportCSV_TypeInferenceAndQuery(t *testing.T) {
	ctx := context.Background()
	db := engine.NewDatabase(engine.DefaultConfig())
	conn := db.Connect()

	csvData := "id,name,active\n1,Alice,true\n2,Bob,false\n"
	result, err := ImportCSV(ctx, conn, "users", strings.NewReader(csvData), nil)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.RowsInserted != 2 {
		t.Fatalf("expected 2 rows inserted, got %d", result.RowsInserted)
	}
	wantTypes := []storage.ColType{storage.ColInt, storage.ColText, storage.ColBool}
	for i, ct := range result.ColumnTypes {
		if ct != wantTypes[i] {
			t.Fatalf("column %d: got %v want %v", i, ct, wantTypes[i])
		}
	}

	rs, err := conn.Execute(ctx, "SELECT id, name FROM users WHERE active = TRUE")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	resultSet, ok := rs.(*engine.ResultSet)
	if !ok {
		t.Fatalf("expected *engine.ResultSet, got %T", rs)
	}
	if len(resultSet.Rows) != 1 {
		t.Fatalf("expected 1 active row, got %d", len(resultSet.Rows))
	}
	if resultSet.Rows[0][1].Text != "Alice" {
		t.Fatalf("expected Alice, got %q", resultSet.Rows[0][1].Text)
	}
}

func TestImportCSV_NoHeader(t *testing.T) {
	ctx := context.Background()
	db := engine.NewDatabase(engine.DefaultConfig())
	conn := db.Connect()

	csvData := "1,10.5\n2,20.5\n"
	opts := &ImportOptions{HeaderMode: "absent"}
	result, err := ImportCSV(ctx, conn, "points", strings.NewReader(csvData), opts)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.HadHeader {
		t.Fatal("expected no header detected")
	}
	if result.RowsInserted != 2 {
		t.Fatalf("expected 2 rows, got %d", result.RowsInserted)
	}
}

func TestImportJSON_ArrayOfObjects(t *testing.T) {
	ctx := context.Background()
	db := engine.NewDatabase(engine.DefaultConfig())
	conn := db.Connect()

	jsonData := `[{"id": 1, "name": "Ada"}, {"id": 2, "name": "Grace"}]`
	result, err := ImportJSON(ctx, conn, "people", strings.NewReader(jsonData), nil)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if result.RowsInserted != 2 {
		t.Fatalf("expected 2 rows, got %d", result.RowsInserted)
	}
}

func TestImportCSV_TruncateBeforeLoad(t *testing.T) {
	ctx := context.Background()
	db := engine.NewDatabase(engine.DefaultConfig())
	conn := db.Connect()

	if _, err := ImportCSV(ctx, conn, "t", strings.NewReader("id\n1\n2\n"), nil); err != nil {
		t.Fatalf("first import: %v", err)
	}
	opts := &ImportOptions{Truncate: true, CreateTable: false}
	if _, err := ImportCSV(ctx, conn, "t", strings.NewReader("id\n9\n"), opts); err != nil {
		t.Fatalf("second import: %v", err)
	}
	rs, err := conn.Execute(ctx, "SELECT id FROM t")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	resultSet := rs.(*engine.ResultSet)
	if len(resultSet.Rows) != 1 || resultSet.Rows[0][0].Int != 9 {
		t.Fatalf("expected single row with id=9, got %+v", resultSet.Rows)
	}
}
