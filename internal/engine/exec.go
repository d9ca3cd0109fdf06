// Package engine implements the query execution engine: the SQL parser,
// expression evaluator, join/aggregate/order machinery, and the
// top-level statement executor that ties all of it to the storage
// layer's MVCC tables, write-ahead log, secondary indexes, and ANN
// graphs.
//
// What: Database owns one catalog, one WAL, one ANN manager and a
// compiled-query cache; Conn is a single logical connection that may
// hold an explicit transaction across several statements.
// How: every INSERT/UPDATE/DELETE/DDL statement runs through the same
// strict validate -> reserve id -> serialize -> append WAL -> mutate ->
// update B-tree indexes -> update ANN graph -> record operation order,
// wrapped in an implicit single-statement transaction unless the
// connection already has an explicit one open.
// Why: centralizing the mutation order in one place is what lets
// crash recovery and live execution agree byte-for-byte on what a
// committed statement did.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/vectorbase/vectorbase/internal/ann"
	"github.com/vectorbase/vectorbase/internal/storage"
)

// ValidationMode names a validation level for Config. The executor does
// not read it: every INSERT and UPDATE value is checked with
// Column.Validate, and a type or dimension mismatch fails the statement
// under every mode.
type ValidationMode int

const (
	ValidationStrict ValidationMode = iota
	ValidationWarnings
	ValidationDisabled
)

// Config holds the options named as the public surface's enumerated
// configuration: validation strictness, the resource-exhaustion guard
// on embeddings-per-row, and whether Close saves the database.
type Config struct {
	ValidationMode      ValidationMode
	MaxEmbeddingsPerRow int
	Autosave            bool

	// AutoVacuumSchedule is a cron spec (e.g. "@every 1m") for a sweep
	// independent of the write-count watermark already driven by every
	// commit. Empty disables the scheduled sweep.
	AutoVacuumSchedule string
}

func DefaultConfig() Config {
	return Config{
		ValidationMode:      ValidationStrict,
		MaxEmbeddingsPerRow: 16,
		Autosave:            false,
	}
}

// Database is one logical instance: catalog, optional WAL, ANN
// manager, embedder, and compiled-query cache. Safe for concurrent use
// through its Conn handles, which share the underlying catalog.
type Database struct {
	Catalog  *storage.Catalog
	Ann      *ann.Manager
	Embedder Embedder
	Cache    *QueryCache
	Config   Config
	Vacuum   *storage.AutoVacuum

	wal        *storage.WAL
	walDir     string
	persistDir string
}

// NewDatabase builds an empty, WAL-less, non-persistent database ready
// for Connect. Call EnableWAL and/or EnablePersistence to turn on
// durability.
func NewDatabase(cfg Config) *Database {
	catalog := storage.NewCatalog()
	d := &Database{
		Catalog:  catalog,
		Ann:      ann.NewManager(),
		Embedder: HashEmbedder{},
		Cache:    NewQueryCache(1000),
		Config:   cfg,
		Vacuum:   storage.NewAutoVacuum(catalog, catalog.Txns, 0),
	}
	if cfg.AutoVacuumSchedule != "" {
		if err := d.Vacuum.StartSchedule(cfg.AutoVacuumSchedule); err != nil {
			log.Printf("engine: invalid auto-vacuum schedule %q: %v", cfg.AutoVacuumSchedule, err)
		}
	}
	return d
}

// RebuildVectorIndexes discards and rebuilds every ANN graph from
// currently live rows, offsetting the gradual search-quality decay a
// proximity graph suffers from tombstoned, never-removed neighbor
// edges under heavy update/delete churn. Safe to call periodically
// (e.g. from the same schedule driving Vacuum) or on demand.
func (d *Database) RebuildVectorIndexes() map[string]ann.RebuildStats {
	out := make(map[string]ann.RebuildStats)
	for name, t := range d.Catalog.AllTables() {
		if len(embeddingColumnNames(t.Schema)) == 0 {
			continue
		}
		rows := make(map[int64]map[string][]float32)
		for rowID, data := range t.GetAllRows(nil, d.Catalog.CLog) {
			if embeddings := extractEmbeddings(data); len(embeddings) > 0 {
				rows[rowID] = embeddings
			}
		}
		out[name] = d.Ann.RebuildTable(name, rows)
	}
	return out
}

// Connect returns a new logical connection. Connections share the
// database's catalog but each holds its own independent explicit
// transaction, if any.
func (d *Database) Connect() *Conn { return &Conn{db: d} }

// EnableWAL opens (creating if necessary) a WAL directory and replays
// it against the current catalog before returning, so the database is
// immediately consistent with everything durably committed before a
// prior crash or restart.
func (d *Database) EnableWAL(dir string) error {
	w, err := storage.OpenWAL(dir)
	if err != nil {
		return err
	}
	applier := &ddlApplier{catalog: d.Catalog, annMgr: d.Ann}
	sink := &embeddingSinkAdapter{mgr: d.Ann}
	if _, err := storage.Recover(dir, d.Catalog, applier, sink); err != nil {
		w.Close()
		return err
	}
	d.wal = w
	d.walDir = dir
	return nil
}

// EnablePersistence records where SaveAll/LoadAll read and write full
// snapshots and whether Close should call SaveAll automatically.
func (d *Database) EnablePersistence(dir string, autosave bool) {
	d.persistDir = dir
	d.Config.Autosave = autosave
}

// SaveAll writes every table and index under the configured
// persistence directory.
func (d *Database) SaveAll() error {
	if d.persistDir == "" {
		return fmt.Errorf("engine: persistence not enabled")
	}
	return storage.SaveAll(d.persistDir, d.Catalog)
}

// LoadAll replaces the current catalog with one loaded from dir and
// rebuilds every ANN graph from the loaded rows' embedding columns,
// since table/index snapshots are saved independently of the ANN
// graphs (which have no on-disk form of their own).
func (d *Database) LoadAll(dir string) error {
	catalog, err := storage.LoadAll(dir)
	if err != nil {
		return err
	}
	d.Catalog = catalog
	d.Ann = ann.NewManager()
	for _, t := range catalog.AllTables() {
		if len(embeddingColumnNames(t.Schema)) == 0 {
			continue
		}
		rows := make(map[int64]map[string][]float32)
		for rowID, data := range t.GetAllRows(nil, catalog.CLog) {
			if embeddings := extractEmbeddings(data); len(embeddings) > 0 {
				rows[rowID] = embeddings
			}
		}
		d.Ann.RebuildTable(t.Name, rows)
	}
	d.persistDir = dir
	return nil
}

func embeddingColumnNames(schema storage.Schema) []string {
	var out []string
	for _, c := range schema.Columns {
		if c.Type == storage.ColEmbedding {
			out = append(out, c.Name)
		}
	}
	return out
}

// InitVectorSearch changes the M / efConstruction parameters used by
// every ANN graph created from this point on.
func (d *Database) InitVectorSearch(m, efConstruction int) {
	d.Ann.SetParams(m, efConstruction)
}

// Close stops the scheduled auto-vacuum sweep, saves the database if
// autosave is configured, then closes the WAL file handle.
func (d *Database) Close() error {
	d.Vacuum.Stop()
	if d.Config.Autosave && d.persistDir != "" {
		if err := d.SaveAll(); err != nil {
			return err
		}
	}
	if d.wal != nil {
		return d.wal.Close()
	}
	return nil
}

// Conn is one logical connection: it may hold an explicit transaction
// open across several Execute calls, or none, in which case every
// mutating statement gets its own implicit single-statement
// transaction.
type Conn struct {
	db *Database
	tx *storage.Transaction
}

// Execute parses (or fetches from cache), then runs sqlText, returning
// either *ResultSet (SELECT) or *RowsAffected (everything else).
func (c *Conn) Execute(ctx context.Context, sqlText string) (any, error) {
	cq, err := c.db.Cache.Compile(sqlText)
	if err != nil {
		return nil, err
	}
	return c.executeStatement(ctx, cq.Statement)
}

func (c *Conn) executeStatement(ctx context.Context, stmt Statement) (any, error) {
	switch s := stmt.(type) {
	case *BeginStmt:
		return c.execBegin()
	case *CommitStmt:
		return c.execCommit()
	case *RollbackStmt:
		return c.execRollback()
	case *CreateTableStmt:
		return c.execCreateTable(s)
	case *DropTableStmt:
		return c.execDropTable(s)
	case *CreateIndexStmt:
		return c.execCreateIndex(s)
	case *DropIndexStmt:
		return c.execDropIndex(s)
	case *AlterAddColumn:
		return c.execAlterAddColumn(s)
	case *AlterDropColumn:
		return c.execAlterDropColumn(s)
	case *AlterRenameColumn:
		return c.execAlterRenameColumn(s)
	case *InsertStmt:
		return c.execInsertStmt(s)
	case *UpdateStmt:
		return c.execUpdateStmt(s)
	case *DeleteStmt:
		return c.execDeleteStmt(s)
	case *SelectStmt:
		return c.execSelectStmt(ctx, s)
	default:
		return nil, fmt.Errorf("engine: unsupported statement type %T", stmt)
	}
}

// withTx runs fn against the connection's explicit transaction if one
// is open, leaving commit/rollback to the later BEGIN/COMMIT/ROLLBACK
// statements; otherwise it opens an implicit single-statement
// transaction, commits it (writing a commit WAL record first, if a WAL
// is enabled) on success, or rolls it back with no commit record on
// failure (spec's "implicit single-statement transaction wraps any
// statement executed outside an explicit BEGIN").
func (c *Conn) withTx(fn func(tx *storage.Transaction) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}
	tx := c.db.Catalog.Txns.Begin()
	if err := fn(tx); err != nil {
		c.db.Catalog.Txns.Rollback(tx.ID)
		return err
	}
	if c.db.wal != nil {
		if _, err := c.db.wal.Append(storage.Record{Type: storage.RecCommitTx, TxID: tx.ID}); err != nil {
			c.db.Catalog.Txns.Rollback(tx.ID)
			return err
		}
	}
	if err := c.db.Catalog.Txns.Commit(tx.ID); err != nil {
		return err
	}
	if c.db.Vacuum != nil {
		c.db.Vacuum.RecordWrite()
	}
	return nil
}

func (c *Conn) execBegin() (*RowsAffected, error) {
	if c.tx != nil {
		return nil, ErrTransactionAlreadyActive
	}
	c.tx = c.db.Catalog.Txns.Begin()
	return &RowsAffected{}, nil
}

func (c *Conn) execCommit() (*RowsAffected, error) {
	if c.tx == nil {
		return nil, ErrNoActiveTransaction
	}
	id := c.tx.ID
	if c.db.wal != nil {
		if _, err := c.db.wal.Append(storage.Record{Type: storage.RecCommitTx, TxID: id}); err != nil {
			return nil, err
		}
	}
	err := c.db.Catalog.Txns.Commit(id)
	c.tx = nil
	if err == nil && c.db.Vacuum != nil {
		c.db.Vacuum.RecordWrite()
	}
	return &RowsAffected{}, err
}

// execRollback marks the transaction aborted and walks its operation
// log in reverse, fixing up secondary indexes and the ANN graph (spec §4.8) — no
// physical version manipulation is needed since MVCC visibility alone
// already hides an aborted transaction's writes.
func (c *Conn) execRollback() (*RowsAffected, error) {
	if c.tx == nil {
		return nil, ErrNoActiveTransaction
	}
	ops := c.tx.Operations()
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Kind {
		case storage.OpInsert:
			c.db.Catalog.Indexes.OnDelete(op.Table, op.RowID, op.NewRow)
			if emb := extractEmbeddings(op.NewRow); len(emb) > 0 {
				c.db.Ann.OnDelete(op.Table, op.RowID)
			}
		case storage.OpDelete:
			c.db.Catalog.Indexes.OnInsert(op.Table, op.RowID, op.OldRow)
			if emb := extractEmbeddings(op.OldRow); len(emb) > 0 {
				c.db.Ann.OnInsert(op.Table, op.RowID, emb)
			}
		case storage.OpUpdate:
			// Swap the arguments: remove the new value, reinsert the old one.
			c.db.Catalog.Indexes.OnUpdate(op.Table, op.RowID, op.NewRow, op.OldRow)
			if emb := extractEmbeddings(op.OldRow); len(emb) > 0 {
				c.db.Ann.OnUpdate(op.Table, op.RowID, emb)
			}
		}
	}
	id := c.tx.ID
	if c.db.wal != nil {
		c.db.wal.Append(storage.Record{Type: storage.RecRollbackTx, TxID: id})
	}
	err := c.db.Catalog.Txns.Rollback(id)
	c.tx = nil
	return &RowsAffected{}, err
}

// extractEmbeddings pulls every embedding-typed cell out of a decoded
// row, the shared shape both the live mutation path and rollback need
// to talk to the ANN manager.
func extractEmbeddings(row map[string]storage.Value) map[string][]float32 {
	var out map[string][]float32
	for col, v := range row {
		if v.Type == storage.TypeEmbedding {
			if out == nil {
				out = make(map[string][]float32)
			}
			out[col] = v.Vec
		}
	}
	return out
}

// --- DDL ---

func colTypeFromString(t string) (storage.ColType, error) {
	switch strings.ToUpper(t) {
	case "INT":
		return storage.ColInt, nil
	case "FLOAT":
		return storage.ColFloat, nil
	case "TEXT":
		return storage.ColText, nil
	case "BOOL":
		return storage.ColBool, nil
	case "EMBEDDING":
		return storage.ColEmbedding, nil
	default:
		return 0, fmt.Errorf("engine: unknown column type %q", t)
	}
}

func schemaFromColumnDefs(defs []ColumnDef) (storage.Schema, error) {
	cols := make([]storage.Column, len(defs))
	for i, d := range defs {
		ct, err := colTypeFromString(d.Type)
		if err != nil {
			return storage.Schema{}, err
		}
		cols[i] = storage.Column{Name: d.Name, Type: ct, Dimension: d.Dimension}
	}
	return storage.Schema{Columns: cols}, nil
}

// execDDL appends the WAL record (if a WAL is enabled) then applies
// the schema change through the same applyDDL function recovery uses,
// so live execution and replay can never drift apart.
func (c *Conn) execDDL(tx *storage.Transaction, kind string, payload ddlPayload) error {
	payload.Kind = kind
	if c.db.wal != nil {
		data := encodeDDL(payload)
		if _, err := c.db.wal.Append(storage.Record{
			Type:  recordTypeForDDL(kind),
			TxID:  tx.ID,
			Table: payload.Table,
			Data:  data,
		}); err != nil {
			return err
		}
	}
	return applyDDL(c.db.Catalog, c.db.Ann, payload)
}

func (c *Conn) execCreateTable(s *CreateTableStmt) (*RowsAffected, error) {
	schema, err := schemaFromColumnDefs(s.Columns)
	if err != nil {
		return nil, err
	}
	payload := ddlPayload{Table: s.Name, Schema: schema, IfNotExists: s.IfNotExists}
	err = c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "create_table", payload)
	})
	return &RowsAffected{}, err
}

func (c *Conn) execDropTable(s *DropTableStmt) (*RowsAffected, error) {
	payload := ddlPayload{Table: s.Name, IfExists: s.IfExists}
	err := c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "drop_table", payload)
	})
	return &RowsAffected{}, err
}

func (c *Conn) execCreateIndex(s *CreateIndexStmt) (*RowsAffected, error) {
	payload := ddlPayload{Table: s.Table, IndexName: s.Name, Column: s.Column}
	err := c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "create_index", payload)
	})
	return &RowsAffected{}, err
}

func (c *Conn) execDropIndex(s *DropIndexStmt) (*RowsAffected, error) {
	payload := ddlPayload{IndexName: s.Name}
	err := c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "drop_index", payload)
	})
	return &RowsAffected{}, err
}

func (c *Conn) execAlterAddColumn(s *AlterAddColumn) (*RowsAffected, error) {
	ct, err := colTypeFromString(s.Col.Type)
	if err != nil {
		return nil, err
	}
	payload := ddlPayload{
		Table: s.Table,
		Col:   storage.Column{Name: s.Col.Name, Type: ct, Dimension: s.Col.Dimension},
	}
	err = c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "add_column", payload)
	})
	return &RowsAffected{}, err
}

func (c *Conn) execAlterDropColumn(s *AlterDropColumn) (*RowsAffected, error) {
	payload := ddlPayload{Table: s.Table, Column: s.Column}
	err := c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "drop_column", payload)
	})
	return &RowsAffected{}, err
}

func (c *Conn) execAlterRenameColumn(s *AlterRenameColumn) (*RowsAffected, error) {
	payload := ddlPayload{Table: s.Table, OldName: s.Old, NewName: s.New}
	err := c.withTx(func(tx *storage.Transaction) error {
		return c.execDDL(tx, "rename_column", payload)
	})
	return &RowsAffected{}, err
}

// --- DML ---

func (c *Conn) subqueryRunner(ctx context.Context, snap *storage.Snapshot) SubqueryRunner {
	return func(sel *SelectStmt) ([]Row, error) {
		rows, _, err := c.runSelect(ctx, sel, snap)
		return rows, err
	}
}

func buildRow(alias string, data map[string]storage.Value) Row {
	row := NewRow()
	for k, v := range data {
		row.Set(alias, k, v)
	}
	return row
}

// rowValues extracts a plain map[string]Value back out of an engine
// Row for the one table it was built from, the shape the storage layer
// and WAL codec deal in.
func rowValues(row Row, table string) map[string]storage.Value {
	out := make(map[string]storage.Value)
	for _, k := range row.Columns() {
		if k.Table == table {
			out[k.Name] = row.cols[k]
		}
	}
	return out
}

func cloneValues(m map[string]storage.Value) map[string]storage.Value {
	out := make(map[string]storage.Value, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func (c *Conn) execInsertStmt(s *InsertStmt) (*RowsAffected, error) {
	var n int64
	err := c.withTx(func(tx *storage.Transaction) error {
		count, err := c.execInsert(tx, s)
		n = count
		return err
	})
	return &RowsAffected{Count: n}, err
}

// execInsert implements spec §4.7's strict mutation order for one
// INSERT statement, possibly over several value tuples.
func (c *Conn) execInsert(tx *storage.Transaction, s *InsertStmt) (int64, error) {
	t, err := c.db.Catalog.Table(s.Table)
	if err != nil {
		return 0, err
	}
	cols := s.Columns
	if len(cols) == 0 {
		cols = make([]string, len(t.Schema.Columns))
		for i, col := range t.Schema.Columns {
			cols[i] = col.Name
		}
	}
	runner := c.subqueryRunner(context.Background(), &tx.Snapshot)

	var affected int64
	for _, valExprs := range s.Values {
		if len(valExprs) != len(cols) {
			return affected, fmt.Errorf("engine: INSERT has %d columns but %d values", len(cols), len(valExprs))
		}

		// 1. Validate.
		values := make(map[string]storage.Value, len(cols))
		for i, colName := range cols {
			v, err := Eval(valExprs[i], NewRow(), runner)
			if err != nil {
				return affected, err
			}
			colDef, ok := t.Schema.Column(colName)
			if !ok {
				return affected, fmt.Errorf("%w: %s", ErrUnknownColumn, colName)
			}
			if colDef.Type == storage.ColFloat && v.Type == storage.TypeInt {
				v = storage.FloatValue(float64(v.Int))
			}
			if err := colDef.Validate(v); err != nil {
				return affected, err
			}
			values[colName] = v
		}

		// 2. Reserve row id.
		rowID := t.ReserveRowID()

		// 3-4. Serialize and append to WAL.
		if c.db.wal != nil {
			data := storage.EncodeRow(values)
			if _, err := c.db.wal.Append(storage.Record{
				Type: storage.RecInsertRow, TxID: tx.ID, Table: s.Table, RowID: rowID, Data: data,
			}); err != nil {
				return affected, err
			}
		}

		// 5. Apply to version chain.
		if err := t.InsertWithID(rowID, values, tx.ID); err != nil {
			return affected, err
		}

		// 6. Update B-tree indexes.
		if err := c.db.Catalog.Indexes.OnInsert(s.Table, rowID, values); err != nil {
			t.PhysicalDelete(rowID)
			return affected, err
		}

		// 7. Update ANN index, enforcing the per-row embedding cap.
		embeddings := extractEmbeddings(values)
		if len(embeddings) > c.db.Config.MaxEmbeddingsPerRow {
			c.db.Catalog.Indexes.OnDelete(s.Table, rowID, values)
			t.PhysicalDelete(rowID)
			return affected, fmt.Errorf("engine: row has %d embedding columns, exceeds max_embeddings_per_row (%d)",
				len(embeddings), c.db.Config.MaxEmbeddingsPerRow)
		}
		if len(embeddings) > 0 {
			c.db.Ann.OnInsert(s.Table, rowID, embeddings)
		}

		// 8. Record operation.
		tx.RecordOp(storage.Operation{Kind: storage.OpInsert, Table: s.Table, RowID: rowID, NewRow: values})
		affected++
	}
	return affected, nil
}

func (c *Conn) execUpdateStmt(s *UpdateStmt) (*RowsAffected, error) {
	var n int64
	err := c.withTx(func(tx *storage.Transaction) error {
		count, err := c.execUpdate(tx, s)
		n = count
		return err
	})
	return &RowsAffected{Count: n}, err
}

func (c *Conn) execUpdate(tx *storage.Transaction, s *UpdateStmt) (int64, error) {
	t, err := c.db.Catalog.Table(s.Table)
	if err != nil {
		return 0, err
	}
	runner := c.subqueryRunner(context.Background(), &tx.Snapshot)
	matches, err := c.scanTableRows(s.Table, s.Table, s.Where, &tx.Snapshot, runner)
	if err != nil {
		return 0, err
	}

	var affected int64
	for rowID, row := range matches {
		oldValues := rowValues(row, s.Table)
		newValues := cloneValues(oldValues)

		// 1. Validate each SET expression.
		for col, expr := range s.Set {
			v, err := Eval(expr, row, runner)
			if err != nil {
				return affected, err
			}
			colDef, ok := t.Schema.Column(col)
			if !ok {
				return affected, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
			}
			if colDef.Type == storage.ColFloat && v.Type == storage.TypeInt {
				v = storage.FloatValue(float64(v.Int))
			}
			if err := colDef.Validate(v); err != nil {
				return affected, err
			}
			newValues[col] = v
		}

		// 3-4. Serialize and append to WAL.
		if c.db.wal != nil {
			data := storage.EncodeUpdatePayload(oldValues, newValues)
			if _, err := c.db.wal.Append(storage.Record{
				Type: storage.RecUpdateRow, TxID: tx.ID, Table: s.Table, RowID: rowID, Data: data,
			}); err != nil {
				return affected, err
			}
		}

		// 5. Apply to version chain.
		if err := t.UpdateRow(rowID, newValues, tx.ID, c.db.Catalog.CLog); err != nil {
			return affected, err
		}

		// 6. Update B-tree indexes.
		if err := c.db.Catalog.Indexes.OnUpdate(s.Table, rowID, oldValues, newValues); err != nil {
			return affected, err
		}

		// 7. Update ANN index.
		newEmb := extractEmbeddings(newValues)
		if len(newEmb) > c.db.Config.MaxEmbeddingsPerRow {
			return affected, fmt.Errorf("engine: row has %d embedding columns, exceeds max_embeddings_per_row (%d)",
				len(newEmb), c.db.Config.MaxEmbeddingsPerRow)
		}
		if len(newEmb) > 0 {
			c.db.Ann.OnUpdate(s.Table, rowID, newEmb)
		}

		// 8. Record operation.
		tx.RecordOp(storage.Operation{Kind: storage.OpUpdate, Table: s.Table, RowID: rowID, OldRow: oldValues, NewRow: newValues})
		affected++
	}
	return affected, nil
}

func (c *Conn) execDeleteStmt(s *DeleteStmt) (*RowsAffected, error) {
	var n int64
	err := c.withTx(func(tx *storage.Transaction) error {
		count, err := c.execDelete(tx, s)
		n = count
		return err
	})
	return &RowsAffected{Count: n}, err
}

func (c *Conn) execDelete(tx *storage.Transaction, s *DeleteStmt) (int64, error) {
	t, err := c.db.Catalog.Table(s.Table)
	if err != nil {
		return 0, err
	}
	runner := c.subqueryRunner(context.Background(), &tx.Snapshot)
	matches, err := c.scanTableRows(s.Table, s.Table, s.Where, &tx.Snapshot, runner)
	if err != nil {
		return 0, err
	}

	var affected int64
	for rowID, row := range matches {
		oldValues := rowValues(row, s.Table)

		if c.db.wal != nil {
			data := storage.EncodeRow(oldValues)
			if _, err := c.db.wal.Append(storage.Record{
				Type: storage.RecDeleteRow, TxID: tx.ID, Table: s.Table, RowID: rowID, Data: data,
			}); err != nil {
				return affected, err
			}
		}

		if err := t.Delete(rowID, tx.ID, c.db.Catalog.CLog); err != nil {
			return affected, err
		}

		if err := c.db.Catalog.Indexes.OnDelete(s.Table, rowID, oldValues); err != nil {
			return affected, err
		}
		c.db.Ann.OnDelete(s.Table, rowID)

		tx.RecordOp(storage.Operation{Kind: storage.OpDelete, Table: s.Table, RowID: rowID, OldRow: oldValues})
		affected++
	}
	return affected, nil
}

// --- SELECT ---

func (c *Conn) execSelectStmt(ctx context.Context, s *SelectStmt) (*ResultSet, error) {
	snap := c.readSnapshot()
	rows, cols, err := c.runSelect(ctx, s, snap)
	if err != nil {
		return nil, err
	}
	return rowsToResultSet(rows, cols), nil
}

// readSnapshot returns the connection's explicit transaction's
// snapshot if one is open, otherwise takes a throwaway one: begin and
// immediately commit a transaction that never records an operation, so
// the read is consistent without leaving anything to roll back.
func (c *Conn) readSnapshot() *storage.Snapshot {
	if c.tx != nil {
		return &c.tx.Snapshot
	}
	tx := c.db.Catalog.Txns.Begin()
	snap := tx.Snapshot
	c.db.Catalog.Txns.Commit(tx.ID)
	return &snap
}

// runSelect is the recursive core of SELECT execution: scanFrom's
// table/join result, the SIMILARITY TO search-then-filter path,
// aggregation, HAVING, ORDER BY, LIMIT/OFFSET and final projection all
// live here so a subquery can call back into exactly the same pipeline
// an outer query uses.
func (c *Conn) runSelect(ctx context.Context, sel *SelectStmt, snap *storage.Snapshot) ([]Row, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	runner := c.subqueryRunner(ctx, snap)

	if item, ok := soleSimilarityOrder(sel); ok {
		return c.runSimilaritySelect(ctx, sel, item, snap, runner)
	}

	rows, err := c.scanFrom(ctx, sel, snap, runner)
	if err != nil {
		return nil, nil, err
	}

	if sel.Where != nil && len(sel.Joins) > 0 {
		rows, err = filterRows(rows, sel.Where, runner)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(sel.GroupBy) > 0 || hasAggregates(sel) {
		if err := ValidateGroupBySelect(sel); err != nil {
			return nil, nil, err
		}
		funcs := collectAllFuncs(sel)
		rows, err = ExecuteAggregate(rows, sel.GroupBy, funcs, runner)
		if err != nil {
			return nil, nil, err
		}
		if sel.Having != nil {
			rows, err = filterRows(rows, sel.Having, runner)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	rows, err = ApplyOrderBy(rows, sel.OrderBy, runner)
	if err != nil {
		return nil, nil, err
	}
	rows = ApplyLimitOffset(rows, sel.Limit, sel.Offset)

	return c.projectRows(sel, rows, runner)
}

// soleSimilarityOrder reports the query's single ORDER BY SIMILARITY
// TO key, if that is the only ORDER BY key present; SIMILARITY TO has
// no generic comparator (order.go never inspects it), so it is only
// ever handled by this dedicated search-then-filter path.
func soleSimilarityOrder(sel *SelectStmt) (*OrderItem, bool) {
	if len(sel.OrderBy) != 1 || sel.OrderBy[0].Similarity == nil {
		return nil, false
	}
	return &sel.OrderBy[0], true
}

// runSimilaritySelect implements "ORDER BY SIMILARITY TO <literal>
// LIMIT k": embed the literal, search the ANN graph for k nearest row
// ids, fetch those rows under the snapshot, and apply WHERE post-hoc.
func (c *Conn) runSimilaritySelect(ctx context.Context, sel *SelectStmt, item *OrderItem, snap *storage.Snapshot, runner SubqueryRunner) ([]Row, []string, error) {
	if len(sel.Joins) != 0 {
		return nil, nil, fmt.Errorf("engine: ORDER BY SIMILARITY TO does not support joins")
	}
	if sel.Limit == nil {
		return nil, nil, fmt.Errorf("engine: ORDER BY SIMILARITY TO requires LIMIT")
	}
	alias := sel.FromAlias
	if alias == "" {
		alias = sel.From
	}
	t, err := c.db.Catalog.Table(sel.From)
	if err != nil {
		return nil, nil, err
	}
	col, ok := firstEmbeddingColumn(t.Schema)
	if !ok {
		return nil, nil, fmt.Errorf("engine: table %q has no embedding column", sel.From)
	}
	litVal, err := Eval(item.Similarity, NewRow(), runner)
	if err != nil {
		return nil, nil, err
	}
	if litVal.Type != storage.TypeText {
		return nil, nil, fmt.Errorf("engine: SIMILARITY TO requires a text literal")
	}
	vec, err := c.db.Embedder.Embed(litVal.Text, col.Dimension)
	if err != nil {
		return nil, nil, err
	}

	graph := c.db.Ann.Graph(sel.From, col.Name)
	var rows []Row
	if graph != nil {
		results := graph.Search(vec, *sel.Limit)
		clog := c.db.Catalog.CLog
		for _, res := range results {
			data, ok := t.Get(res.RowID, snap, clog)
			if !ok {
				continue
			}
			row := buildRow(alias, data)
			matched, err := EvalBool(sel.Where, row, runner)
			if err != nil {
				return nil, nil, err
			}
			if matched {
				rows = append(rows, row)
			}
		}
	}
	rows = ApplyLimitOffset(rows, nil, sel.Offset)
	return c.projectRows(sel, rows, runner)
}

func firstEmbeddingColumn(schema storage.Schema) (storage.Column, bool) {
	for _, c := range schema.Columns {
		if c.Type == storage.ColEmbedding {
			return c, true
		}
	}
	return storage.Column{}, false
}

// scanFrom materializes the FROM table and every JOIN target, in
// order, pushing WHERE down to the single table scan only when there
// are no joins (cross-table predicates can only be evaluated once
// every side is present).
func (c *Conn) scanFrom(ctx context.Context, sel *SelectStmt, snap *storage.Snapshot, runner SubqueryRunner) ([]Row, error) {
	baseAlias := sel.FromAlias
	if baseAlias == "" {
		baseAlias = sel.From
	}
	var baseWhere Expr
	if len(sel.Joins) == 0 {
		baseWhere = sel.Where
	}
	baseMatches, err := c.scanTableRows(sel.From, baseAlias, baseWhere, snap, runner)
	if err != nil {
		return nil, err
	}
	rows := rowsOf(baseMatches)
	if len(sel.Joins) == 0 {
		return rows, nil
	}

	leftTables := map[string]bool{baseAlias: true}
	for _, jc := range sel.Joins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rightAlias := jc.Alias
		if rightAlias == "" {
			rightAlias = jc.Table
		}
		rightMatches, err := c.scanTableRows(jc.Table, rightAlias, nil, snap, runner)
		if err != nil {
			return nil, err
		}
		rightCols, err := c.tableColumnKeys(jc.Table, rightAlias)
		if err != nil {
			return nil, err
		}
		jcCopy := jc
		rows, err = ExecuteJoin(rows, leftTables, rowsOf(rightMatches), rightCols, &jcCopy, runner)
		if err != nil {
			return nil, err
		}
		leftTables[rightAlias] = true
	}
	return rows, nil
}

func rowsOf(m map[int64]Row) []Row {
	out := make([]Row, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

func (c *Conn) tableColumnKeys(table, alias string) ([]colKey, error) {
	t, err := c.db.Catalog.Table(table)
	if err != nil {
		return nil, err
	}
	keys := make([]colKey, len(t.Schema.Columns))
	for i, col := range t.Schema.Columns {
		keys[i] = colKey{alias, col.Name}
	}
	return keys, nil
}

func (c *Conn) schemaColumnKeys(sel *SelectStmt) ([]colKey, error) {
	baseAlias := sel.FromAlias
	if baseAlias == "" {
		baseAlias = sel.From
	}
	keys, err := c.tableColumnKeys(sel.From, baseAlias)
	if err != nil {
		return nil, err
	}
	for _, jc := range sel.Joins {
		alias := jc.Alias
		if alias == "" {
			alias = jc.Table
		}
		jk, err := c.tableColumnKeys(jc.Table, alias)
		if err != nil {
			return nil, err
		}
		keys = append(keys, jk...)
	}
	return keys, nil
}

// scanTableRows reads every row of table visible under snap (planning
// an index lookup when where recognizably narrows it, per PlanAccess),
// builds it into a table-qualified Row, and keeps only the rows where
// evaluates true.
func (c *Conn) scanTableRows(table, alias string, where Expr, snap *storage.Snapshot, runner SubqueryRunner) (map[int64]Row, error) {
	t, err := c.db.Catalog.Table(table)
	if err != nil {
		return nil, err
	}
	clog := c.db.Catalog.CLog
	out := make(map[int64]Row)

	n := t.RowCount(snap, clog)
	path := PlanAccess(c.db.Catalog, table, where, n)
	if path.Index {
		for id := range path.RowIDs {
			data, ok := t.Get(id, snap, clog)
			if !ok {
				continue
			}
			row := buildRow(alias, data)
			matched, err := EvalBool(where, row, runner)
			if err != nil {
				return nil, err
			}
			if matched {
				out[id] = row
			}
		}
		return out, nil
	}

	for id, data := range t.GetAllRows(snap, clog) {
		row := buildRow(alias, data)
		matched, err := EvalBool(where, row, runner)
		if err != nil {
			return nil, err
		}
		if matched {
			out[id] = row
		}
	}
	return out, nil
}

func filterRows(rows []Row, where Expr, runner SubqueryRunner) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		matched, err := EvalBool(where, r, runner)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, r)
		}
	}
	return out, nil
}

func hasAggregates(sel *SelectStmt) bool {
	return len(collectAllFuncs(sel)) > 0
}

// collectAllFuncs gathers every aggregate call in the select list,
// HAVING clause, and ORDER BY keys, so a function referenced only in
// ORDER BY (e.g. "ORDER BY COUNT(*)") still gets an accumulator.
func collectAllFuncs(sel *SelectStmt) []*FuncCall {
	var exprs []Expr
	for _, item := range sel.Columns {
		if !item.Star {
			exprs = append(exprs, item.Expr)
		}
	}
	if sel.Having != nil {
		exprs = append(exprs, sel.Having)
	}
	for _, o := range sel.OrderBy {
		if o.Expr != nil {
			exprs = append(exprs, o.Expr)
		}
	}
	return CollectFuncCalls(exprs...)
}

func hasStar(items []SelectItem) bool {
	for _, item := range items {
		if item.Star {
			return true
		}
	}
	return false
}

func displayName(item SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	switch e := item.Expr.(type) {
	case *ColumnRef:
		return e.Name
	case *FuncCall:
		return FuncSignature(e)
	default:
		return "?column?"
	}
}

// projectRows evaluates the SELECT list against each input row,
// expanding "*" into every source column (looked up from the FROM/JOIN
// schemas so the column list is known even over zero rows), and
// returns the projected rows alongside their display column names.
func (c *Conn) projectRows(sel *SelectStmt, rows []Row, runner SubqueryRunner) ([]Row, []string, error) {
	var starKeys []colKey
	if hasStar(sel.Columns) {
		keys, err := c.schemaColumnKeys(sel)
		if err != nil {
			return nil, nil, err
		}
		starKeys = keys
	}

	var outCols []string
	for _, item := range sel.Columns {
		if item.Star {
			for _, k := range starKeys {
				outCols = append(outCols, k.Name)
			}
			continue
		}
		outCols = append(outCols, displayName(item))
	}

	outRows := make([]Row, 0, len(rows))
	for _, row := range rows {
		out := NewRow()
		for _, item := range sel.Columns {
			if item.Star {
				for _, k := range starKeys {
					out.Set("", k.Name, row.cols[k])
				}
				continue
			}
			v, err := Eval(item.Expr, row, runner)
			if err != nil {
				return nil, nil, err
			}
			out.Set("", displayName(item), v)
		}
		outRows = append(outRows, out)
	}
	return outRows, outCols, nil
}

func rowsToResultSet(rows []Row, cols []string) *ResultSet {
	rs := &ResultSet{Columns: cols}
	for _, row := range rows {
		vals := make([]storage.Value, len(cols))
		for i, name := range cols {
			v, _ := row.GetNamed(name)
			vals[i] = v
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs
}
