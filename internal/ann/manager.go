package ann

import (
	"fmt"
	"sync"
)

// Default graph parameters, named after the base spec's own parameter
// names (M, ef_construction, ef_search).
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
)

// key identifies one graph: a table+column pair. The base spec frames
// the index as "one per embedding dimension encountered", but two
// different embedding columns can share a dimension while holding
// semantically unrelated vectors, so graphs are kept one per
// table+column and simply parameterized by that column's declared
// dimension — the dimension still determines which rows *could* share a
// graph, but table+column is what the query planner actually asks for.
type key struct {
	table  string
	column string
}

// Manager owns every per-column ANN graph in the database. Grounded on
// IndexManager's table+column keying (internal/storage/indexmanager.go),
// generalized from "Value -> row-id set" B-tree indexes to "row-id ->
// vector" proximity graphs.
type Manager struct {
	mu     sync.RWMutex
	graphs map[key]*Graph
	dims   map[key]int

	m              int
	efConstruction int
	efSearch       int
}

func NewManager() *Manager {
	return &Manager{
		graphs:         make(map[key]*Graph),
		dims:           make(map[key]int),
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
	}
}

// SetParams changes the M / efConstruction used by graphs created from
// this point on (spec §6 database.init_vector_search). Graphs already
// built keep their existing parameters; only new table.column graphs
// pick up the change.
func (m *Manager) SetParams(mEdges, efConstruction int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mEdges > 0 {
		m.m = mEdges
	}
	if efConstruction > 0 {
		m.efConstruction = efConstruction
	}
}

// EnsureGraph returns the graph for table.column, creating it with the
// given dimension on first use.
func (m *Manager) EnsureGraph(table, column string, dimension int) *Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{table, column}
	if g, ok := m.graphs[k]; ok {
		return g
	}
	g := NewGraph(dimension, m.m, m.efConstruction, m.efSearch)
	m.graphs[k] = g
	m.dims[k] = dimension
	return g
}

// Graph returns the existing graph for table.column, or nil if none has
// been created yet.
func (m *Manager) Graph(table, column string) *Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graphs[key{table, column}]
}

// DropTable removes every graph defined on table (DROP TABLE).
func (m *Manager) DropTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.graphs {
		if k.table == table {
			delete(m.graphs, k)
			delete(m.dims, k)
		}
	}
}

// OnInsert updates every embedding column of row, per spec §4.7 step 7:
// "for each embedding column, insert/remove in the per-dimension graph."
func (m *Manager) OnInsert(table string, rowID int64, row map[string][]float32) {
	for col, vec := range row {
		g := m.EnsureGraph(table, col, len(vec))
		g.Insert(rowID, vec)
	}
}

// OnDelete removes rowID from every graph defined on table.
func (m *Manager) OnDelete(table string, rowID int64) {
	m.mu.RLock()
	var graphs []*Graph
	for k, g := range m.graphs {
		if k.table == table {
			graphs = append(graphs, g)
		}
	}
	m.mu.RUnlock()
	for _, g := range graphs {
		g.Remove(rowID)
	}
}

// OnUpdate re-indexes rowID's embedding columns: remove the old vector,
// insert the new one (Graph.Insert already does this atomically when
// given the same row id again, but callers that changed the vector
// across columns should remove every column not still present first).
func (m *Manager) OnUpdate(table string, rowID int64, newRow map[string][]float32) {
	m.OnInsert(table, rowID, newRow)
}

// RebuildStats summarizes a full graph rebuild (spec §9's acceptance
// of "a periodic rebuild from live rows" to offset tombstone-driven
// quality decay under heavy churn).
type RebuildStats struct {
	GraphsTouched  int
	VectorsIndexed int
}

// RebuildTable discards and rebuilds every graph defined on table from
// the given embedding columns, keyed by row id. Used by the periodic
// rebuild sweep, not by individual DML operations.
func (m *Manager) RebuildTable(table string, rows map[int64]map[string][]float32) RebuildStats {
	m.mu.Lock()
	for k := range m.graphs {
		if k.table == table {
			delete(m.graphs, k)
			delete(m.dims, k)
		}
	}
	m.mu.Unlock()

	var stats RebuildStats
	touched := make(map[string]bool)
	for rowID, cols := range rows {
		for col, vec := range cols {
			g := m.EnsureGraph(table, col, len(vec))
			g.Insert(rowID, vec)
			touched[col] = true
			stats.VectorsIndexed++
		}
	}
	stats.GraphsTouched = len(touched)
	return stats
}

// OnRow re-indexes every embedding column already extracted from one
// row. The engine's recovery adapter implements storage.EmbeddingSink
// and calls this after pulling embedding columns out of the row's
// map[string]storage.Value representation — kept out of this package so
// ann never needs to import internal/storage (spec §4.9: "rebuild the
// ANN graph incrementally as embedding rows are seen").
func (m *Manager) OnRow(table string, rowID int64, embeddings map[string][]float32) {
	for col, vec := range embeddings {
		g := m.EnsureGraph(table, col, len(vec))
		g.Insert(rowID, vec)
	}
}

// OnRowDeleted implements the deletion half of storage.EmbeddingSink.
func (m *Manager) OnRowDeleted(table string, rowID int64) {
	m.OnDelete(table, rowID)
}

// String reports a short summary, e.g. for diagnostics.
func (m *Manager) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("ann.Manager{%d graphs}", len(m.graphs))
}
