package storage

import (
	"sync"
)

// Catalog owns every table, the secondary-index manager, the commit
// log and the transaction manager for one database instance. Grounded
// on tinySQL's CatalogManager (internal/storage/catalog.go) and its
// DB's table map under a sync.RWMutex (internal/storage/db.go),
// collapsed from tinySQL's multi-tenant design (the base spec has no
// tenant concept) into a single-namespace registry.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*Table

	CLog    *CommitLog
	Txns    *TransactionManager
	Indexes *IndexManager
}

func NewCatalog() *Catalog {
	clog := NewCommitLog()
	return &Catalog{
		tables:  make(map[string]*Table),
		CLog:    clog,
		Txns:    NewTransactionManager(clog),
		Indexes: NewIndexManager(),
	}
}

// CreateTable registers a new table. Returns ErrTableAlreadyExists if
// name is taken (unless ifNotExists is set, in which case it's a no-op).
func (c *Catalog) CreateTable(name string, schema Schema, ifNotExists bool) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, exists := c.tables[name]; exists {
		if ifNotExists {
			return existing, nil
		}
		return nil, newErr(KindTableAlreadyExists, name, nil)
	}
	t := NewTable(name, schema)
	c.tables[name] = t
	return t, nil
}

// DropTable removes a table and its indexes. ifExists suppresses the
// not-found error.
func (c *Catalog) DropTable(name string, ifExists bool) error {
	c.mu.Lock()
	_, exists := c.tables[name]
	if exists {
		delete(c.tables, name)
	}
	c.mu.Unlock()
	if !exists {
		if ifExists {
			return nil
		}
		return newErr(KindTableNotFound, name, nil)
	}
	c.Indexes.DropTable(name)
	return nil
}

func (c *Catalog) Table(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, newErr(KindTableNotFound, name, nil)
	}
	return t, nil
}

// Tables returns every registered table name, unordered.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	return out
}

// AllTables returns the live Table map (read-locked snapshot of keys,
// pointers are shared). Used by persistence and vacuum sweeps.
func (c *Catalog) AllTables() map[string]*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Table, len(c.tables))
	for k, v := range c.tables {
		out[k] = v
	}
	return out
}

// RegisterExisting installs an already-built Table, used by recovery
// and load to reinstantiate a catalog without going through
// CreateTable's duplicate check semantics.
func (c *Catalog) RegisterExisting(t *Table) {
	c.mu.Lock()
	c.tables[t.Name] = t
	c.mu.Unlock()
}
