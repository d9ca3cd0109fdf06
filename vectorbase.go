// Package vectorbase provides a lightweight, embeddable hybrid
// vector-relational database for Go applications.
//
// vectorbase is a SQL database that combines row-oriented relational
// storage with native vector similarity search, including:
//   - SQL parsing and execution (DDL, DML, SELECT with joins, aggregates,
//     subqueries, ORDER BY SIMILARITY TO)
//   - Multi-Version Concurrency Control (MVCC) with snapshot isolation
//   - Write-Ahead Logging (WAL) for durability and crash recovery
//   - A B-tree secondary index manager and an HNSW-style ANN index for
//     embedding columns
//   - Full-database GOB snapshots for persistence
//
// # Basic usage
//
//	db := vectorbase.New(vectorbase.DefaultConfig())
//	conn := db.Connect()
//	ctx := context.Background()
//
//	conn.Execute(ctx, "CREATE TABLE docs (id INT, body TEXT, embedding EMBEDDING(4))")
//	conn.Execute(ctx, "INSERT INTO docs (id, body) VALUES (1, 'hello')")
//	rs, _ := conn.Execute(ctx, "SELECT * FROM docs ORDER BY SIMILARITY TO 'hi' LIMIT 5")
//
// SQL text has no literal or function that produces an embedding value,
// so INSERT and UPDATE statements cannot fill an EMBEDDING column.
// SIMILARITY TO embeds its text literal with the Database's Embedder.
//
// # Durability and persistence
//
//	db.EnableWAL("data/wal")
//	db.EnablePersistence("data/snapshot", true)
//
// See SPEC_FULL.md for the full module and operation reference.
package vectorbase

import (
	"context"

	"github.com/vectorbase/vectorbase/internal/ann"
	"github.com/vectorbase/vectorbase/internal/engine"
	"github.com/vectorbase/vectorbase/internal/storage"
)

// ============================================================================
// Core types - re-exported from internal packages for the public API
// ============================================================================

// Database is a single-process hybrid vector-relational database
// instance. Use New to create one, then Connect to obtain a Conn.
type Database = engine.Database

// Conn is a single logical connection to a Database. A Conn carries at
// most one explicit transaction (BEGIN/COMMIT/ROLLBACK); statements run
// outside an explicit transaction each get their own implicit one.
type Conn = engine.Conn

// Config controls validation strictness and row/embedding limits for a
// Database. Use DefaultConfig for sensible defaults.
type Config = engine.Config

// ValidationMode names a validation level for Config. The executor does
// not read it: every write is checked against its table schema, and a
// type or dimension mismatch fails the statement under every mode.
type ValidationMode = engine.ValidationMode

const (
	ValidationStrict   = engine.ValidationStrict
	ValidationWarnings = engine.ValidationWarnings
	ValidationDisabled = engine.ValidationDisabled
)

// Statement is the parsed form of one SQL statement. Obtain one with
// Parse, or let Conn.Execute parse (and cache) SQL text directly.
type Statement = engine.Statement

// ResultSet holds the columns and rows returned by a SELECT statement.
type ResultSet = engine.ResultSet

// RowsAffected reports how many rows a DDL/DML statement touched.
type RowsAffected = engine.RowsAffected

// Row is one result row, addressable by table-qualified or bare column
// name.
type Row = engine.Row

// QueryCache caches parsed statements keyed by their exact SQL text, so
// a repeatedly-issued query is parsed once. A Database holds its own
// QueryCache internally; use NewQueryCache only to manage a pool
// separately from a Database's default Compile path.
type QueryCache = engine.QueryCache

// CompiledQuery is a cached, pre-parsed statement.
type CompiledQuery = engine.CompiledQuery

// Embedder turns text into a fixed-dimension vector for ORDER BY
// SIMILARITY TO literal text. HashEmbedder is the built-in
// deterministic stand-in; supply your own for a real embedding model.
type Embedder = engine.Embedder

// Column describes one column of a table schema.
type Column = storage.Column

// ColType enumerates the column data types a schema can declare.
type ColType = storage.ColType

const (
	ColInt       = storage.ColInt
	ColFloat     = storage.ColFloat
	ColText      = storage.ColText
	ColBool      = storage.ColBool
	ColEmbedding = storage.ColEmbedding
)

// Value is the tagged union every column cell and literal is carried
// as: exactly one of Int, Float, Text, Bool, or Vec is meaningful,
// selected by Type.
type Value = storage.Value

// RebuildStats summarizes one ANN graph rebuild, as returned by
// Database.RebuildVectorIndexes.
type RebuildStats = ann.RebuildStats

// ============================================================================
// Database creation and lifecycle
// ============================================================================

// DefaultConfig returns a Config with strict validation, at most 16
// embedding columns per row, and autosave disabled.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// New creates a new in-memory Database with no tables. Use SQL DDL via
// a Conn to create tables, or EnableWAL/EnablePersistence plus LoadAll
// to restore a prior database.
func New(cfg Config) *Database {
	return engine.NewDatabase(cfg)
}

// Connect opens a new logical connection to db. A Conn is not safe for
// concurrent use by multiple goroutines; open one Conn per goroutine.
func Connect(db *Database) *Conn {
	return db.Connect()
}

// ============================================================================
// SQL parsing
// ============================================================================

// Parse parses a single SQL statement.
//
// Example:
//
//	stmt, err := vectorbase.Parse("SELECT id, name FROM users")
func Parse(sql string) (Statement, error) {
	return engine.ParseStatement(sql)
}

// MustParse is like Parse but panics if parsing fails. Useful for
// static SQL in tests or initialization code.
func MustParse(sql string) Statement {
	stmt, err := Parse(sql)
	if err != nil {
		panic(err)
	}
	return stmt
}

// ============================================================================
// Execution
// ============================================================================

// Execute parses (or retrieves from the connection's cache) and runs
// one SQL statement against conn's Database.
//
// Returns a *ResultSet for SELECT, a *RowsAffected for DDL/DML and
// transaction-control statements.
func Execute(ctx context.Context, conn *Conn, sql string) (any, error) {
	return conn.Execute(ctx, sql)
}

// ============================================================================
// Persistence
// ============================================================================

// EnableWAL turns on write-ahead logging under dir and replays any
// records left from an unclean shutdown before returning.
func EnableWAL(db *Database, dir string) error {
	return db.EnableWAL(dir)
}

// EnablePersistence configures dir as the target for full-database GOB
// snapshots. When autosave is true, Close also writes a final
// snapshot.
func EnablePersistence(db *Database, dir string, autosave bool) {
	db.EnablePersistence(dir, autosave)
}

// SaveAll writes a full snapshot of db to its configured persistence
// directory. EnablePersistence must have been called first.
func SaveAll(db *Database) error {
	return db.SaveAll()
}

// LoadAll reads a full snapshot from dir into a fresh Database,
// including rebuilding every ANN graph from the loaded rows.
func LoadAll(dir string) (*Database, error) {
	loaded := engine.NewDatabase(DefaultConfig())
	if err := loaded.LoadAll(dir); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Close flushes a final snapshot (if autosave is enabled) and closes
// the WAL (if enabled).
func Close(db *Database) error {
	return db.Close()
}

// ============================================================================
// Vector search tuning
// ============================================================================

// InitVectorSearch sets the M (max graph edges per node) and
// ef_construction (build-time candidate list size) parameters used by
// ANN graphs created from this point on. Existing graphs keep their
// current parameters.
func InitVectorSearch(db *Database, m, efConstruction int) {
	db.InitVectorSearch(m, efConstruction)
}

// RebuildVectorIndexes discards and rebuilds every ANN graph from the
// embedding columns currently present in each table's live rows. Use
// this to recover graph quality after heavy delete/update churn.
func RebuildVectorIndexes(db *Database) map[string]RebuildStats {
	return db.RebuildVectorIndexes()
}
