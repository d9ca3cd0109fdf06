package storage

import (
	"encoding/gob"
	"os"
	"path/filepath"
)

// Persistence implements spec §4/§6's full-database snapshot
// (save_all/load_all): one file per table containing schema + newest
// versions only (no history), grounded on tinySQL's GOB-based
// SaveToFile/LoadFromFile (tinysql.go) — the teacher's own choice of
// encoding/gob for this concern, kept as-is. Not byte-compatible with
// the WAL.

func init() {
	gob.Register(Value{})
}

// tableSnapshot is the serializable projection of a Table: schema plus
// the newest version of every row (no history, per spec §6).
type tableSnapshot struct {
	Name    string
	Schema  Schema
	Rows    map[int64]map[string]Value
}

// SaveTable writes one table's snapshot file under dir. clog resolves
// each row's newest version against its committed status, so a row
// deleted (and committed) since the last checkpoint is excluded from
// the snapshot rather than resurrected on the next load. Pass nil only
// for a table that can have no committed deletes yet (fresh in tests).
func SaveTable(dir string, t *Table, clog *CommitLog) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newErr(KindPersistenceLoadFailed, "mkdir", err)
	}
	snap := tableSnapshot{
		Name:   t.Name,
		Schema: t.Schema,
		Rows:   t.GetAllRows(nil, clog),
	}
	path := filepath.Join(dir, "table_"+t.Name+".gob")
	f, err := os.Create(path)
	if err != nil {
		return newErr(KindPersistenceLoadFailed, "create table file", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return newErr(KindPersistenceLoadFailed, "encode table", err)
	}
	return nil
}

// LoadTable reads one table's snapshot file, reinstantiating a Table
// whose rows all carry xmin=0 (unconditionally visible), matching the
// same "newest committed version only" semantics WAL recovery produces.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(KindPersistenceLoadFailed, "open table file", err)
	}
	defer f.Close()
	var snap tableSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, newErr(KindPersistenceLoadFailed, "decode table", err)
	}
	t := NewTable(snap.Name, snap.Schema)
	var maxRowID int64
	for rowID, row := range snap.Rows {
		if err := t.InsertWithID(rowID, row, 0); err != nil {
			return nil, newErr(KindPersistenceLoadFailed, "replay row", err)
		}
		if rowID > maxRowID {
			maxRowID = rowID
		}
	}
	t.nextRowID.Store(maxRowID)
	return t, nil
}

// SaveIndex writes one B-tree index's contents. Key order is not
// preserved on disk (the tree rebuilds sorted order on load); this only
// needs to capture key -> row-id-set pairs.
type indexSnapshot struct {
	Name   string
	Table  string
	Column string
	Pairs  []indexPair
}

type indexPair struct {
	Key    Value
	RowIDs []int64
}

func SaveIndex(dir string, info *IndexInfo) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newErr(KindPersistenceLoadFailed, "mkdir", err)
	}
	snap := indexSnapshot{Name: info.Name, Table: info.Table, Column: info.Column}
	info.Tree.mu.RLock()
	for i, k := range info.Tree.keys {
		ids := make([]int64, 0, len(info.Tree.rowSets[i]))
		for id := range info.Tree.rowSets[i] {
			ids = append(ids, id)
		}
		snap.Pairs = append(snap.Pairs, indexPair{Key: k, RowIDs: ids})
	}
	info.Tree.mu.RUnlock()

	path := filepath.Join(dir, "index_"+info.Name+".gob")
	f, err := os.Create(path)
	if err != nil {
		return newErr(KindPersistenceLoadFailed, "create index file", err)
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(snap)
}

func LoadIndex(path string) (*IndexInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(KindPersistenceLoadFailed, "open index file", err)
	}
	defer f.Close()
	var snap indexSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, newErr(KindPersistenceLoadFailed, "decode index", err)
	}
	tree := NewBTree()
	for _, pair := range snap.Pairs {
		for _, id := range pair.RowIDs {
			tree.Insert(pair.Key, id)
		}
	}
	return &IndexInfo{Name: snap.Name, Table: snap.Table, Column: snap.Column, Tree: tree}, nil
}

// SaveAll writes every table and index under dir. The ANN graph is
// saved separately by internal/ann (spec §6: "one file for the ANN
// graph").
func SaveAll(dir string, catalog *Catalog) error {
	for _, t := range catalog.AllTables() {
		if err := SaveTable(dir, t, catalog.CLog); err != nil {
			return err
		}
	}
	catalog.Indexes.mu.RLock()
	infos := make([]*IndexInfo, 0, len(catalog.Indexes.byName))
	for _, info := range catalog.Indexes.byName {
		infos = append(infos, info)
	}
	catalog.Indexes.mu.RUnlock()
	for _, info := range infos {
		if err := SaveIndex(dir, info); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll reads every table_*.gob and index_*.gob file under dir into a
// fresh Catalog.
func LoadAll(dir string) (*Catalog, error) {
	catalog := NewCatalog()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newErr(KindPersistenceLoadFailed, "read dir", err)
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case len(name) > len("table_") && name[:len("table_")] == "table_":
			t, err := LoadTable(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			catalog.RegisterExisting(t)
		case len(name) > len("index_") && name[:len("index_")] == "index_":
			info, err := LoadIndex(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			catalog.Indexes.mu.Lock()
			catalog.Indexes.byName[info.Name] = info
			catalog.Indexes.byColumn[columnKey(info.Table, info.Column)] = append(
				catalog.Indexes.byColumn[columnKey(info.Table, info.Column)], info)
			catalog.Indexes.mu.Unlock()
		}
	}
	return catalog, nil
}
