package storage

import (
	"os"
	"testing"
)

func schemaXY() Schema {
	return Schema{Columns: []Column{
		{Name: "x", Type: ColInt},
	}}
}

func TestRecoverReplaysOnlyCommittedTransactions(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog()
	catalog.CreateTable("t", schemaXY(), false)

	w, err := OpenWAL(dir)
	if err != nil {
		t.Fatal(err)
	}

	committedRow := EncodeRow(map[string]Value{"x": IntValue(1)})
	abortedRow := EncodeRow(map[string]Value{"x": IntValue(2)})

	w.Append(Record{Type: RecBeginTx, TxID: 10})
	w.Append(Record{Type: RecInsertRow, TxID: 10, Table: "t", RowID: 1, Data: committedRow})
	w.Append(Record{Type: RecCommitTx, TxID: 10})

	w.Append(Record{Type: RecBeginTx, TxID: 20})
	w.Append(Record{Type: RecInsertRow, TxID: 20, Table: "t", RowID: 2, Data: abortedRow})
	// no commit record for tx 20: simulates a crash mid-transaction
	w.Close()

	stats, err := Recover(dir, catalog, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RecordsApplied != 3 { // begin(no-op) + insert + commit(no-op) all count as applied
		t.Errorf("expected 3 applied records, got %d", stats.RecordsApplied)
	}
	if stats.RecordsSkipped != 2 {
		t.Errorf("expected the uncommitted transaction's begin and insert to be skipped, got %d skipped", stats.RecordsSkipped)
	}

	tbl, err := catalog.Table("t")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Get(1, nil, nil); !ok {
		t.Error("row from the committed transaction should be present after recovery")
	}
	if _, ok := tbl.Get(2, nil, nil); ok {
		t.Error("row from the never-committed transaction must not appear after recovery")
	}
}

func TestRecoverBumpsNextRowIDPastReplayedRows(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog()
	catalog.CreateTable("t", schemaXY(), false)

	w, err := OpenWAL(dir)
	if err != nil {
		t.Fatal(err)
	}
	row := EncodeRow(map[string]Value{"x": IntValue(1)})
	w.Append(Record{Type: RecInsertRow, TxID: 0, Table: "t", RowID: 42, Data: row})
	w.Close()

	if _, err := Recover(dir, catalog, nil, nil); err != nil {
		t.Fatal(err)
	}
	tbl, err := catalog.Table("t")
	if err != nil {
		t.Fatal(err)
	}
	next := tbl.ReserveRowID()
	if next <= 42 {
		t.Fatalf("expected a freshly reserved row id past the replayed max (42), got %d", next)
	}
}

func TestRecoverDeleteReplayDoesNotResurrectRow(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog()
	catalog.CreateTable("t", schemaXY(), false)

	w, err := OpenWAL(dir)
	if err != nil {
		t.Fatal(err)
	}
	row := EncodeRow(map[string]Value{"x": IntValue(1)})

	w.Append(Record{Type: RecBeginTx, TxID: 10})
	w.Append(Record{Type: RecInsertRow, TxID: 10, Table: "t", RowID: 1, Data: row})
	w.Append(Record{Type: RecCommitTx, TxID: 10})

	w.Append(Record{Type: RecBeginTx, TxID: 11})
	w.Append(Record{Type: RecDeleteRow, TxID: 11, Table: "t", RowID: 1, Data: row})
	w.Append(Record{Type: RecCommitTx, TxID: 11})
	w.Close()

	if _, err := Recover(dir, catalog, nil, nil); err != nil {
		t.Fatal(err)
	}
	tbl, err := catalog.Table("t")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Get(1, nil, nil); ok {
		t.Error("a row deleted by a committed transaction must not reappear after recovery")
	}
	if n := tbl.RowCount(nil, nil); n != 0 {
		t.Errorf("expected 0 rows after replaying a committed delete, got %d", n)
	}
}

func TestResolveNilSnapshotExcludesCommittedDelete(t *testing.T) {
	clog := NewCommitLog()
	tbl := NewTable("t", schemaXY())
	tbl.InsertWithID(1, map[string]Value{"x": IntValue(1)}, 1)
	clog.Set(1, TxCommitted)

	clog.Set(2, TxCommitted)
	if err := tbl.Delete(1, 2, clog); err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Get(1, nil, clog); ok {
		t.Error("a row deleted by a committed transaction should not be visible to a nil-snapshot read")
	}
	if n := tbl.RowCount(nil, clog); n != 0 {
		t.Errorf("expected 0 rows after a committed delete, got %d", n)
	}
}

func TestResolveNilSnapshotKeepsUncommittedDeleteVisible(t *testing.T) {
	clog := NewCommitLog()
	tbl := NewTable("t", schemaXY())
	tbl.InsertWithID(1, map[string]Value{"x": IntValue(1)}, 1)
	clog.Set(1, TxCommitted)

	clog.Set(3, TxInProgress)
	if err := tbl.Delete(1, 3, clog); err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Get(1, nil, clog); !ok {
		t.Error("a row deleted by a still-in-progress transaction should remain visible to a nil-snapshot read")
	}
}

func TestRecoverStopsAtBadCRC(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog()
	catalog.CreateTable("t", schemaXY(), false)

	w, err := OpenWAL(dir)
	if err != nil {
		t.Fatal(err)
	}
	row := EncodeRow(map[string]Value{"x": IntValue(1)})
	w.Append(Record{Type: RecInsertRow, TxID: 0, Table: "t", RowID: 1, Data: row})
	w.Close()

	files, _ := listWALFiles(dir)
	path := walFilePath(dir, files[0])
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := Recover(dir, catalog, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Truncated {
		t.Error("recovery should report truncation when a wal file's tail is corrupt")
	}
}

func TestRecoverEmptyDirIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog()
	stats, err := Recover(dir, catalog, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesRead != 0 {
		t.Errorf("expected no wal files in a fresh directory, got %d", stats.FilesRead)
	}
}

func TestRecoverMissingDirIsNotAnError(t *testing.T) {
	catalog := NewCatalog()
	if _, err := Recover("/nonexistent/path/for/recovery/test", catalog, nil, nil); err != nil {
		t.Fatal(err)
	}
}
