package storage

import (
	"encoding/binary"
	"os"
)

// ReplayStats summarizes a recovery pass.
type ReplayStats struct {
	FilesRead      int
	RecordsApplied int
	RecordsSkipped int
	Truncated      bool
}

// DDLApplier lets recovery redo schema changes without importing the
// engine package (which itself imports storage), avoiding an import
// cycle. The engine registers a concrete implementation.
type DDLApplier interface {
	ApplyDDL(data []byte) error
}

// EmbeddingSink receives every embedding-column cell seen during redo so
// the ANN graph can be rebuilt incrementally, per spec §4.5 ("rebuilt
// from live rows on startup after WAL replay... rebuild the ANN graph
// incrementally as embedding rows are seen").
type EmbeddingSink interface {
	OnRow(table string, rowID int64, row map[string]Value)
	OnRowDeleted(table string, rowID int64)
}

// Recover replays every WAL file in dir against catalog, per spec §4.9.
//
//  1. Read files in sequence order; verify header magic+version.
//  2. For each record, verify CRC; a bad CRC marks end-of-log for that
//     file — stop replaying from there onward.
//  3. First pass: determine committed tx ids.
//  4. Second pass: redo records whose tx id is committed or 0 (DDL/
//     recovery-authored rows), recreating versions with xmin=0 so they
//     are unconditionally visible (spec §4.9 step 4).
//  5. Records from aborted or in-progress transactions are discarded.
func Recover(dir string, catalog *Catalog, ddl DDLApplier, sink EmbeddingSink) (ReplayStats, error) {
	var stats ReplayStats
	files, err := listWALFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, newErr(KindWalCorrupt, "list wal dir", err)
	}

	var allRecords []Record
	for _, idx := range files {
		stats.FilesRead++
		recs, truncated, err := readWALFile(walFilePath(dir, idx))
		if err != nil {
			return stats, newErr(KindWalCorrupt, "read wal file", err)
		}
		allRecords = append(allRecords, recs...)
		if truncated {
			stats.Truncated = true
			break // spec §4.9 step 2: stop replaying from this file onward
		}
	}

	committed := make(map[TxID]bool)
	for _, r := range allRecords {
		if r.Type == RecCommitTx {
			committed[r.TxID] = true
		}
	}

	for _, r := range allRecords {
		if r.TxID != 0 && !committed[r.TxID] {
			stats.RecordsSkipped++
			continue
		}
		if err := redo(r, catalog, ddl, sink); err != nil {
			return stats, err
		}
		stats.RecordsApplied++
	}

	// Replayed inserts go straight through InsertWithID and never touch
	// nextRowID, so every table's counter needs to catch up to the
	// highest row id actually present before the engine can allocate new
	// ids safely (spec §4.9: recovery must leave the catalog ready for
	// new writes, not just readable).
	for _, t := range catalog.AllTables() {
		bumpNextRowID(t, catalog.CLog)
	}
	return stats, nil
}

func bumpNextRowID(t *Table, clog *CommitLog) {
	var max int64
	for id := range t.GetAllRows(nil, clog) {
		if id > max {
			max = id
		}
	}
	if cur := t.nextRowID.Load(); max > cur {
		t.nextRowID.Store(max)
	}
}

func redo(r Record, catalog *Catalog, ddl DDLApplier, sink EmbeddingSink) error {
	switch r.Type {
	case RecBeginTx, RecCommitTx, RecRollbackTx, RecCheckpoint:
		return nil
	case RecCreateTable, RecDropTable, RecCreateIndex, RecDropIndex,
		RecAlterTableAddColumn, RecAlterTableDropColumn, RecAlterTableRenameColumn:
		if ddl == nil {
			return nil
		}
		return ddl.ApplyDDL(r.Data)
	case RecInsertRow:
		row, err := DecodeRow(r.Data)
		if err != nil {
			return newErr(KindWalCorrupt, "decode insert row", err)
		}
		t, err := catalog.Table(r.Table)
		if err != nil {
			return nil // table dropped later in the log; ignore stale insert
		}
		// Idempotent: InsertWithID fails DuplicateRowId on a repeat replay
		// of the same row id, which we treat as already-applied and skip
		// re-indexing to avoid double-counting.
		if err := t.InsertWithID(r.RowID, row, 0); err != nil {
			return nil
		}
		if err := catalog.Indexes.OnInsert(r.Table, r.RowID, row); err != nil {
			return err
		}
		if sink != nil {
			sink.OnRow(r.Table, r.RowID, row)
		}
		return nil
	case RecDeleteRow:
		oldRow, err := DecodeRow(r.Data)
		if err != nil {
			return newErr(KindWalCorrupt, "decode delete row", err)
		}
		t, err := catalog.Table(r.Table)
		if err != nil {
			return nil
		}
		// Delete would set head.xmax=0, which under the xmin=0 recovery
		// regime is indistinguishable from "never deleted" (xmax==0 is
		// isVisible's unconditional-live sentinel). Remove the chain
		// outright instead, so the row is actually gone post-replay.
		t.PhysicalDelete(r.RowID)
		if err := catalog.Indexes.OnDelete(r.Table, r.RowID, oldRow); err != nil {
			return err
		}
		if sink != nil {
			sink.OnRowDeleted(r.Table, r.RowID)
		}
		return nil
	case RecUpdateRow:
		oldRow, newRow, err := DecodeUpdatePayload(r.Data)
		if err != nil {
			return newErr(KindWalCorrupt, "decode update row", err)
		}
		t, err := catalog.Table(r.Table)
		if err != nil {
			return nil
		}
		_ = t.UpdateRow(r.RowID, newRow, 0, catalog.CLog)
		if err := catalog.Indexes.OnUpdate(r.Table, r.RowID, oldRow, newRow); err != nil {
			return err
		}
		if sink != nil {
			sink.OnRow(r.Table, r.RowID, newRow)
		}
		return nil
	default:
		return nil
	}
}

// readWALFile reads and validates one file's header and records,
// returning the decoded records and whether the file was truncated by
// a bad CRC partway through.
func readWALFile(path string) ([]Record, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	if len(data) < walHeaderSize {
		return nil, true, nil
	}
	if string(data[0:8]) != walMagic || binary.LittleEndian.Uint32(data[8:12]) != walVersion {
		return nil, true, nil
	}
	off := walHeaderSize
	var recs []Record
	for off < len(data) {
		rec, n, crcOK, err := decodeRecord(data[off:])
		if err != nil || !crcOK {
			return recs, true, nil
		}
		recs = append(recs, rec)
		off += n
	}
	return recs, false, nil
}
