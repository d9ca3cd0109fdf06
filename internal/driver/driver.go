// Package driver implements a database/sql driver for vectorbase.
//
// What: a minimal driver that exposes a vectorbase Database via the
// standard database/sql interfaces. Supports in-memory databases
// (mem://) and WAL-backed persistence
// (file:/path?wal=/path/to/wal&persist=/path/to/snapshots).
// How: one process-wide registry maps a DSN to a shared
// engine.Database; each database/sql connection gets its own
// engine.Conn. Placeholders (?, $1, :1) are bound by literal
// substitution with proper escaping, same as tinySQL's driver.
// Why: integrating with database/sql gives familiar APIs, tooling
// (sqlx, migrations, ORMs) and portability while keeping the driver
// itself small.
package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/vectorbase/vectorbase/internal/engine"
	"github.com/vectorbase/vectorbase/internal/storage"
)

func init() {
	sql.Register("vectorbase", &drv{})
}

// registry keeps one engine.Database per DSN alive for the process
// lifetime, so repeated sql.Open calls with the same DSN share state
// the way a real server would.
var registry = struct {
	mu sync.Mutex
	db map[string]*engine.Database
}{db: make(map[string]*engine.Database)}

func databaseFor(dsn string, c cfg) (*engine.Database, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if db, ok := registry.db[dsn]; ok {
		return db, nil
	}
	db := engine.NewDatabase(engine.DefaultConfig())
	if c.walDir != "" {
		if err := db.EnableWAL(c.walDir); err != nil {
			return nil, fmt.Errorf("vectorbase: WAL init: %w", err)
		}
	}
	if c.persistDir != "" {
		db.EnablePersistence(c.persistDir, c.autosave)
	}
	registry.db[dsn] = db
	return db, nil
}

// SetDefaultDB lets embedding code register a pre-built Database under
// a DSN before the first sql.Open("vectorbase", dsn) call.
func SetDefaultDB(dsn string, db *engine.Database) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.db[dsn] = db
}

// OpenInMemory returns a *sql.DB backed by a fresh in-memory database.
func OpenInMemory() (*sql.DB, error) {
	return sql.Open("vectorbase", "mem://")
}

// cfg holds the connection parameters derived from a parsed DSN.
type cfg struct {
	walDir     string
	persistDir string
	autosave   bool
}

// parseDSN parses a vectorbase DSN into a driver configuration.
// Supported forms:
//
//	mem://
//	mem://?wal=/path/to/wal
//	file:/data/mydb?wal=/data/wal&persist=/data/snapshot&autosave=1
func parseDSN(dsn string) (cfg, error) {
	var c cfg
	rest := dsn
	if i := strings.Index(dsn, "?"); i >= 0 {
		rest = dsn[i+1:]
	}
	if rest == dsn {
		return c, nil
	}
	for _, kv := range strings.Split(rest, "&") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		key := parts[0]
		val := ""
		if len(parts) == 2 {
			val = parts[1]
		}
		switch key {
		case "wal":
			c.walDir = val
		case "persist":
			c.persistDir = val
		case "autosave":
			c.autosave = val == "1" || val == "true"
		default:
			return c, fmt.Errorf("vectorbase: unknown DSN option %q", key)
		}
	}
	return c, nil
}

type drv struct{}

func (d *drv) Open(dsn string) (driver.Conn, error) {
	c, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := databaseFor(dsn, c)
	if err != nil {
		return nil, err
	}
	return &conn{db: db, conn: db.Connect()}, nil
}

// conn wraps one engine.Conn. Statement execution always goes through
// conn.Execute; transaction control is driven by database/sql calling
// BeginTx then Commit/Rollback on the returned Tx.
type conn struct {
	db   *engine.Database
	conn *engine.Conn
}

func (c *conn) Prepare(query string) (driver.Stmt, error) { return &stmt{c: c, sql: query}, nil }
func (c *conn) Close() error                              { return nil }
func (c *conn) Begin() (driver.Tx, error)                 { return c.BeginTx(context.Background(), driver.TxOptions{}) }

func (c *conn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if _, err := c.conn.Execute(ctx, "BEGIN"); err != nil {
		return nil, err
	}
	return &tx{c: c}, nil
}

type tx struct{ c *conn }

func (t *tx) Commit() error {
	_, err := t.c.conn.Execute(context.Background(), "COMMIT")
	return err
}

func (t *tx) Rollback() error {
	_, err := t.c.conn.Execute(context.Background(), "ROLLBACK")
	return err
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	sqlStr, err := bindPlaceholders(query, args)
	if err != nil {
		return nil, err
	}
	result, err := c.conn.Execute(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	if ra, ok := result.(*engine.RowsAffected); ok {
		return execResult{rowsAffected: ra.Count}, nil
	}
	return execResult{}, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	sqlStr, err := bindPlaceholders(query, args)
	if err != nil {
		return nil, err
	}
	result, err := c.conn.Execute(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	rs, ok := result.(*engine.ResultSet)
	if !ok {
		return &emptyRows{}, nil
	}
	return &rows{rs: rs}, nil
}

func (c *conn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, namedFromValues(args))
}

func (c *conn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, namedFromValues(args))
}

func namedFromValues(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func (c *conn) CheckNamedValue(nv *driver.NamedValue) error { return nil }

type execResult struct {
	rowsAffected int64
	lastInsertID int64
}

func (r execResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r execResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type stmt struct {
	c   *conn
	sql string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.c.Exec(s.sql, args)
}
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.c.Query(s.sql, args)
}
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.c.ExecContext(ctx, s.sql, args)
}
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.c.QueryContext(ctx, s.sql, args)
}

// rows adapts an *engine.ResultSet to driver.Rows.
type rows struct {
	rs  *engine.ResultSet
	pos int
}

func (r *rows) Columns() []string { return r.rs.Columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rs.Rows) {
		return errRowsDone
	}
	row := r.rs.Rows[r.pos]
	r.pos++
	for i := range dest {
		if i >= len(row) {
			dest[i] = nil
			continue
		}
		dest[i] = valueToDriver(row[i])
	}
	return nil
}

func (r *rows) ColumnTypeDatabaseTypeName(i int) string { return "TEXT" }
func (r *rows) ColumnTypeNullable(i int) (bool, bool)   { return true, true }
func (r *rows) ColumnTypeScanType(i int) any            { return "interface{}" }

type emptyRows struct{}

func (emptyRows) Columns() []string                     { return []string{} }
func (emptyRows) Close() error                          { return nil }
func (emptyRows) Next([]driver.Value) error              { return errRowsDone }
func (emptyRows) ColumnTypeDatabaseTypeName(int) string { return "TEXT" }
func (emptyRows) ColumnTypeNullable(int) (bool, bool)   { return true, true }
func (emptyRows) ColumnTypeScanType(int) any            { return "interface{}" }

func valueToDriver(v storage.Value) driver.Value {
	switch v.Type {
	case storage.TypeInt:
		return v.Int
	case storage.TypeFloat:
		return v.Float
	case storage.TypeText:
		return v.Text
	case storage.TypeBool:
		return v.Bool
	case storage.TypeEmbedding:
		b, _ := json.Marshal(v.Vec)
		return string(b)
	default:
		return nil
	}
}

// bindPlaceholders substitutes ?, $N, and :N placeholders with literal
// SQL text, respecting quoted string literals so a placeholder
// character inside a string isn't mistaken for one.
func bindPlaceholders(sqlStr string, args []driver.NamedValue) (string, error) {
	var sb strings.Builder
	sb.Grow(len(sqlStr) + len(args)*10)
	argi := 0
	for i := 0; i < len(sqlStr); i++ {
		ch := sqlStr[i]
		if ch == '\'' {
			sb.WriteByte(ch)
			i++
			for i < len(sqlStr) {
				sb.WriteByte(sqlStr[i])
				if sqlStr[i] == '\'' {
					if i+1 < len(sqlStr) && sqlStr[i+1] == '\'' {
						i++
						sb.WriteByte(sqlStr[i])
						i++
						continue
					}
					break
				}
				i++
			}
			continue
		}
		if ch == '?' {
			if argi >= len(args) {
				return "", fmt.Errorf("vectorbase: not enough args for placeholders")
			}
			sb.WriteString(sqlLiteral(args[argi].Value))
			argi++
			continue
		}
		if (ch == '$' || ch == ':') && i+1 < len(sqlStr) && sqlStr[i+1] >= '0' && sqlStr[i+1] <= '9' {
			j := i + 2
			for j < len(sqlStr) && sqlStr[j] >= '0' && sqlStr[j] <= '9' {
				j++
			}
			idxStr := sqlStr[i+1 : j]
			n, err := strconv.Atoi(idxStr)
			if err != nil || n <= 0 || n > len(args) {
				return "", fmt.Errorf("vectorbase: invalid placeholder %c%s", ch, idxStr)
			}
			sb.WriteString(sqlLiteral(args[n-1].Value))
			i = j - 1
			continue
		}
		sb.WriteByte(ch)
	}
	if argi != len(args) {
		return "", fmt.Errorf("vectorbase: too many args for placeholders")
	}
	return sb.String(), nil
}

// sqlLiteral converts a Go value into a SQL literal string.
func sqlLiteral(v any) string {
	if v == nil {
		return "NULL"
	}
	switch x := v.(type) {
	case int64:
		return fmt.Sprintf("%d", x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return fmt.Sprintf("%g", x)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case string:
		s := strings.ReplaceAll(x, "'", "''")
		return "'" + s + "'"
	case []float32:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = fmt.Sprintf("%g", f)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		b, _ := json.Marshal(x)
		s := strings.ReplaceAll(string(b), "'", "''")
		return "'" + s + "'"
	}
}

var errRowsDone = io.EOF
