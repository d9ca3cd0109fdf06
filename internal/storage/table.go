package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// VacuumStats reports the outcome of a Table.Vacuum call (spec §4.3).
type VacuumStats struct {
	ChainsScanned   int
	VersionsRemoved int
	LongestChain    int
	TotalVersions   int
}

// Table is the versioned heap: schema, version chains keyed by row id,
// and a monotonic row-id counter. Grounded on tinySQL's MVCCTable
// (internal/storage/mvcc.go), reshaped to carry a map[string]Value row
// representation (rather than tinySQL's positional []any) so columns
// can be looked up by name the way the base spec's RowVersion.data
// requires, and locked with a single RWMutex per spec §5's "coarser in
// the baseline: one table-level write lock" note.
type Table struct {
	Name   string
	Schema Schema

	mu        sync.RWMutex
	chains    map[int64]*versionChain
	nextRowID atomic.Int64
}

func NewTable(name string, schema Schema) *Table {
	return &Table{
		Name:   name,
		Schema: schema,
		chains: make(map[int64]*versionChain),
	}
}

// ReserveRowID atomically allocates the next row id (spec §4.7 step 2).
func (t *Table) ReserveRowID() int64 { return t.nextRowID.Add(1) }

// InsertWithID creates a new chain head with xmin=txID, xmax=0. Fails
// with ErrDuplicateRowId if rowID is already present (spec §4.3).
func (t *Table) InsertWithID(rowID int64, values map[string]Value, txID TxID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.chains[rowID]; exists {
		return newErr(KindDuplicateRowId, fmt.Sprintf("table %q row %d", t.Name, rowID), nil)
	}
	t.chains[rowID] = newVersionChain(rowID, txID, cloneRow(values))
	return nil
}

// Update locates the current head; if it's already deleted by a
// committed transaction, RowNotFound. Otherwise set head.xmax=txID and
// prepend a clone of head with the named column replaced (spec §4.3).
func (t *Table) Update(rowID int64, column string, value Value, txID TxID, clog *CommitLog) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	chain, ok := t.chains[rowID]
	if !ok {
		return newErr(KindRowNotFound, fmt.Sprintf("table %q row %d", t.Name, rowID), nil)
	}
	head := chain.headVersion()
	if head.xmax != 0 && clog.IsCommitted(head.xmax) {
		return newErr(KindRowNotFound, fmt.Sprintf("table %q row %d already deleted", t.Name, rowID), nil)
	}
	newData := cloneRow(head.data)
	newData[column] = value.Clone()
	head.xmax = txID
	chain.prepend(txID, newData)
	return nil
}

// UpdateRow replaces the entire row (all columns) in one new version,
// used by the executor for multi-column SET clauses so only a single
// version is appended per UPDATE statement rather than one per column.
func (t *Table) UpdateRow(rowID int64, newValues map[string]Value, txID TxID, clog *CommitLog) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	chain, ok := t.chains[rowID]
	if !ok {
		return newErr(KindRowNotFound, fmt.Sprintf("table %q row %d", t.Name, rowID), nil)
	}
	head := chain.headVersion()
	if head.xmax != 0 && clog.IsCommitted(head.xmax) {
		return newErr(KindRowNotFound, fmt.Sprintf("table %q row %d already deleted", t.Name, rowID), nil)
	}
	head.xmax = txID
	chain.prepend(txID, cloneRow(newValues))
	return nil
}

// Delete sets head.xmax=txID. RowNotFound if no chain or already
// deleted by a committed transaction (spec §4.3).
func (t *Table) Delete(rowID int64, txID TxID, clog *CommitLog) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	chain, ok := t.chains[rowID]
	if !ok {
		return newErr(KindRowNotFound, fmt.Sprintf("table %q row %d", t.Name, rowID), nil)
	}
	head := chain.headVersion()
	if head.xmax != 0 && clog.IsCommitted(head.xmax) {
		return newErr(KindRowNotFound, fmt.Sprintf("table %q row %d already deleted", t.Name, rowID), nil)
	}
	head.xmax = txID
	return nil
}

// PhysicalDelete unconditionally removes the entire chain: used to
// undo an INSERT before any transaction state becomes visible to
// anyone else, and by WAL replay to redo a committed DELETE (recovery
// rewrites every surviving version's xmin to 0, so a logical tombstone
// via Delete's xmax=txID would collide with the xmin=0/xmax=0
// "unconditionally visible" sentinel; removing the chain sidesteps the
// collision entirely).
func (t *Table) PhysicalDelete(rowID int64) {
	t.mu.Lock()
	delete(t.chains, rowID)
	t.mu.Unlock()
}

// Get returns the visible version's row data for rowID under the given
// snapshot/CLOG, or ok==false if no version is visible. A nil snapshot
// means "newest globally-committed version" rather than one scoped to
// a transaction's active set, used by recovery, persistence and ANN
// index rebuild (spec §4.3); see resolve for the exact rule.
func (t *Table) Get(rowID int64, snap *Snapshot, clog *CommitLog) (map[string]Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	chain, ok := t.chains[rowID]
	if !ok {
		return nil, false
	}
	v := t.resolve(chain, snap, clog)
	if v == nil {
		return nil, false
	}
	return cloneRow(v.data), true
}

// resolve finds the version visible under (snap, clog). With a nil
// snapshot it returns the newest globally-committed version instead of
// one scoped to a transaction's active set: the chain head, unless
// that head was deleted by a transaction clog reports committed, in
// which case the row is gone for every such caller (recovery's
// post-replay row-id scan, persistence snapshots, ANN index rebuilds).
// A head deleted by a still-in-progress transaction stays visible
// here, matching isVisible's own rule that an uncommitted delete never
// hides a row from anyone but its own transaction.
func (t *Table) resolve(chain *versionChain, snap *Snapshot, clog *CommitLog) *rowVersion {
	if snap != nil {
		return chain.visibleVersion(*snap, clog)
	}
	head := chain.headVersion()
	if head == nil || head.xmax == 0 {
		return head
	}
	if clog != nil && clog.IsCommitted(head.xmax) {
		return nil
	}
	return head
}

// GetAllRows iterates chains and returns the row ids whose chain has at
// least one visible version, together with that version's data (spec
// §4.3 getAllRows).
func (t *Table) GetAllRows(snap *Snapshot, clog *CommitLog) map[int64]map[string]Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]map[string]Value, len(t.chains))
	for rowID, chain := range t.chains {
		v := t.resolve(chain, snap, clog)
		if v != nil {
			out[rowID] = cloneRow(v.data)
		}
	}
	return out
}

// RowCount returns the number of row ids with at least one visible
// version under (snap, clog); used by the planner's cost estimates.
func (t *Table) RowCount(snap *Snapshot, clog *CommitLog) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, chain := range t.chains {
		if t.resolve(chain, snap, clog) != nil {
			n++
		}
	}
	return n
}

// Vacuum prunes versions invisible to every possible future snapshot
// (spec §4.3, §8 property 10).
func (t *Table) Vacuum(minVisibleTxID TxID, clog *CommitLog) VacuumStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var stats VacuumStats
	for _, chain := range t.chains {
		stats.ChainsScanned++
		stats.VersionsRemoved += chain.vacuum(minVisibleTxID, clog)
		if l := chain.length(); l > stats.LongestChain {
			stats.LongestChain = l
		}
		stats.TotalVersions += chain.length()
	}
	return stats
}

func cloneRow(row map[string]Value) map[string]Value {
	out := make(map[string]Value, len(row))
	for k, v := range row {
		out[k] = v.Clone()
	}
	return out
}
