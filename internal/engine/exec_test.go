package engine

import (
	"context"
	"testing"

	"github.com/vectorbase/vectorbase/internal/storage"
)

func mustExec(t *testing.T, conn *Conn, sqlText string) any {
	t.Helper()
	res, err := conn.Execute(context.Background(), sqlText)
	if err != nil {
		t.Fatalf("exec %q: %v", sqlText, err)
	}
	return res
}

func mustSelect(t *testing.T, conn *Conn, sqlText string) *ResultSet {
	t.Helper()
	res := mustExec(t, conn, sqlText)
	rs, ok := res.(*ResultSet)
	if !ok {
		t.Fatalf("exec %q: expected *ResultSet, got %T", sqlText, res)
	}
	return rs
}

func newTestConn() *Conn {
	db := NewDatabase(DefaultConfig())
	return db.Connect()
}

func TestExecDDLAndDML(t *testing.T) {
	conn := newTestConn()
	ctx := context.Background()

	mustExec(t, conn, `CREATE TABLE users (id INT, name TEXT, score FLOAT)`)
	res := mustExec(t, conn, `INSERT INTO users (id, name, score) VALUES (1, 'alice', 9.5), (2, 'bob', 7.25)`)
	ra, ok := res.(*RowsAffected)
	if !ok || ra.Count != 2 {
		t.Fatalf("expected RowsAffected{2}, got %#v", res)
	}

	rs := mustSelect(t, conn, `SELECT id, name FROM users WHERE score > 8`)
	if len(rs.Rows) != 1 || rs.Rows[0][1].Text != "alice" {
		t.Fatalf("unexpected filtered rows: %+v", rs.Rows)
	}

	mustExec(t, conn, `UPDATE users SET score = 10 WHERE name = 'bob'`)
	rs = mustSelect(t, conn, `SELECT score FROM users WHERE name = 'bob'`)
	if rs.Rows[0][0].Float != 10 {
		t.Fatalf("expected updated score 10, got %v", rs.Rows[0][0])
	}

	mustExec(t, conn, `DELETE FROM users WHERE id = 1`)
	rs = mustSelect(t, conn, `SELECT id FROM users`)
	if len(rs.Rows) != 1 {
		t.Fatalf("expected 1 row after delete, got %d", len(rs.Rows))
	}

	if _, err := conn.Execute(ctx, `SELECT * FROM nope`); err == nil {
		t.Fatal("expected error selecting from unknown table")
	}
}

func TestExecJoinsAndAggregates(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE orders (id INT, customer TEXT, amount FLOAT)`)
	mustExec(t, conn, `CREATE TABLE customers (name TEXT, country TEXT)`)
	mustExec(t, conn, `INSERT INTO customers (name, country) VALUES ('alice', 'DE'), ('bob', 'US')`)
	mustExec(t, conn, `INSERT INTO orders (id, customer, amount) VALUES (1, 'alice', 10), (2, 'alice', 20), (3, 'bob', 5)`)

	rs := mustSelect(t, conn, `SELECT customers.country, orders.amount FROM orders JOIN customers ON orders.customer = customers.name ORDER BY orders.id`)
	if len(rs.Rows) != 3 {
		t.Fatalf("expected 3 joined rows, got %d: %+v", len(rs.Rows), rs.Rows)
	}
	if rs.Rows[0][0].Text != "DE" {
		t.Fatalf("expected first row country DE, got %+v", rs.Rows[0])
	}

	rs = mustSelect(t, conn, `SELECT customer, COUNT(*), SUM(amount) FROM orders GROUP BY customer ORDER BY customer`)
	if len(rs.Rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(rs.Rows))
	}
	if rs.Rows[0][0].Text != "alice" || rs.Rows[0][1].Int != 2 || rs.Rows[0][2].Float != 30 {
		t.Fatalf("unexpected alice aggregate row: %+v", rs.Rows[0])
	}
}

func TestExecTransactionRollback(t *testing.T) {
	conn := newTestConn()
	ctx := context.Background()
	mustExec(t, conn, `CREATE TABLE t (id INT)`)
	mustExec(t, conn, `INSERT INTO t (id) VALUES (1)`)

	mustExec(t, conn, `BEGIN`)
	mustExec(t, conn, `INSERT INTO t (id) VALUES (2)`)
	mustExec(t, conn, `ROLLBACK`)

	rs := mustSelect(t, conn, `SELECT id FROM t`)
	if len(rs.Rows) != 1 {
		t.Fatalf("expected rollback to discard insert, got %d rows", len(rs.Rows))
	}

	mustExec(t, conn, `BEGIN`)
	mustExec(t, conn, `INSERT INTO t (id) VALUES (3)`)
	mustExec(t, conn, `COMMIT`)
	rs = mustSelect(t, conn, `SELECT id FROM t`)
	if len(rs.Rows) != 2 {
		t.Fatalf("expected commit to keep insert, got %d rows", len(rs.Rows))
	}

	if _, err := conn.Execute(ctx, `COMMIT`); err == nil {
		t.Fatal("expected error committing with no active transaction")
	}
}

func TestExecSubquery(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE orders (id INT, customer TEXT, amount FLOAT)`)
	mustExec(t, conn, `INSERT INTO orders (id, customer, amount) VALUES (1, 'alice', 10), (2, 'bob', 50)`)

	rs := mustSelect(t, conn, `SELECT customer FROM orders WHERE amount > (SELECT AVG(amount) FROM orders)`)
	if len(rs.Rows) != 1 || rs.Rows[0][0].Text != "bob" {
		t.Fatalf("expected only bob above average, got %+v", rs.Rows)
	}
}

func TestExecOrderByLimitOffset(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE t (id INT)`)
	mustExec(t, conn, `INSERT INTO t (id) VALUES (3), (1), (2)`)

	rs := mustSelect(t, conn, `SELECT id FROM t ORDER BY id DESC LIMIT 2 OFFSET 1`)
	if len(rs.Rows) != 2 || rs.Rows[0][0].Int != 2 || rs.Rows[1][0].Int != 1 {
		t.Fatalf("unexpected ordered/limited rows: %+v", rs.Rows)
	}
}

func TestExecAlterTable(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE t (id INT)`)
	mustExec(t, conn, `ALTER TABLE t ADD COLUMN label TEXT`)
	mustExec(t, conn, `INSERT INTO t (id, label) VALUES (1, 'x')`)
	rs := mustSelect(t, conn, `SELECT id, label FROM t`)
	if rs.Rows[0][1].Text != "x" {
		t.Fatalf("expected label x after ALTER ADD COLUMN, got %+v", rs.Rows)
	}

	mustExec(t, conn, `ALTER TABLE t RENAME COLUMN label TO tag`)
	rs = mustSelect(t, conn, `SELECT tag FROM t`)
	if rs.Rows[0][0].Text != "x" {
		t.Fatalf("expected tag x after rename, got %+v", rs.Rows)
	}
}

func TestExecCreateTableIfNotExistsIdempotent(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE IF NOT EXISTS t (id INT)`)
	mustExec(t, conn, `CREATE TABLE IF NOT EXISTS t (id INT)`)

	if _, err := conn.Execute(context.Background(), `CREATE TABLE t (id INT)`); err == nil {
		t.Fatal("expected error creating duplicate table without IF NOT EXISTS")
	}
}

// Embedding values have no SQL literal syntax; callers populate them
// through the storage API directly, the same path execInsert itself
// uses once a value has already been evaluated.
func TestEmbeddingColumnRoundTrip(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE docs (id INT, vec EMBEDDING(3))`)

	tbl, err := conn.db.Catalog.Table("docs")
	if err != nil {
		t.Fatalf("lookup table: %v", err)
	}
	rowID := tbl.ReserveRowID()
	values := map[string]storage.Value{
		"id":  storage.IntValue(1),
		"vec": storage.EmbeddingValue([]float32{1, 0, 0}),
	}
	if err := tbl.InsertWithID(rowID, values, 0); err != nil {
		t.Fatalf("insert embedding row: %v", err)
	}

	rs := mustSelect(t, conn, `SELECT vec FROM docs WHERE id = 1`)
	if len(rs.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rs.Rows))
	}
	got := rs.Rows[0][0]
	if got.Type != storage.TypeEmbedding || len(got.Vec) != 3 {
		t.Fatalf("expected a 3-dim embedding value, got %+v", got)
	}
}

// A row deleted (and committed) before a Save must not come back on
// the next Load.
func TestSaveLoadRoundTripExcludesCommittedDelete(t *testing.T) {
	conn := newTestConn()
	mustExec(t, conn, `CREATE TABLE docs (id INT, vec EMBEDDING(2))`)
	mustExec(t, conn, `INSERT INTO docs (id) VALUES (1), (2)`)
	mustExec(t, conn, `DELETE FROM docs WHERE id = 1`)

	dir := t.TempDir()
	conn.db.EnablePersistence(dir, false)
	if err := conn.db.SaveAll(); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	loaded := NewDatabase(DefaultConfig())
	if err := loaded.LoadAll(dir); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	loadedConn := loaded.Connect()
	rs := mustSelect(t, loadedConn, `SELECT id FROM docs`)
	if len(rs.Rows) != 1 || rs.Rows[0][0].Int != 2 {
		t.Fatalf("expected only row id=2 to survive Save/Load, got %v", rs.Rows)
	}
}
