package driver

import (
	"database/sql"
	"testing"
)

func TestParseDSN(t *testing.T) {
	c, err := parseDSN("mem://")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.walDir != "" || c.persistDir != "" {
		t.Fatalf("expected empty cfg, got %+v", c)
	}

	c, err = parseDSN("file:/tmp/db?wal=/tmp/db/wal&persist=/tmp/db/snap&autosave=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.walDir != "/tmp/db/wal" || c.persistDir != "/tmp/db/snap" || !c.autosave {
		t.Fatalf("unexpected cfg: %+v", c)
	}
}

func TestParseDSN_UnknownOption(t *testing.T) {
	if _, err := parseDSN("mem://?bogus=1"); err == nil {
		t.Fatal("expected error for unknown DSN option")
	}
}

func TestDriver_ExecAndQuery(t *testing.T) {
	db, err := sql.Open("vectorbase", "mem://unit-test")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE users (id INT, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec("INSERT INTO users VALUES (?, ?)", 1, "Ada"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := db.Query("SELECT id, name FROM users WHERE id = ?", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var id int64
	var name string
	if err := rows.Scan(&id, &name); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if id != 1 || name != "Ada" {
		t.Fatalf("got id=%d name=%q", id, name)
	}
}

func TestDriver_Transaction(t *testing.T) {
	db, err := sql.Open("vectorbase", "mem://unit-test-tx")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	rows, err := db.Query("SELECT id FROM t")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if rows.Next() {
		t.Fatal("expected no rows after rollback")
	}
}
