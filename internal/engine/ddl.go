package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/vectorbase/vectorbase/internal/ann"
	"github.com/vectorbase/vectorbase/internal/storage"
)

// ddlPayload is the WAL record body for every schema-changing
// statement, gob-encoded the same way persistence.go encodes table
// snapshots — the teacher's own choice of codec for structured,
// non-hot-path data.
type ddlPayload struct {
	Kind        string
	Table       string
	Schema      storage.Schema
	IfNotExists bool
	IfExists    bool
	IndexName   string
	Column      string
	Col         storage.Column
	OldName     string
	NewName     string
}

func encodeDDL(p ddlPayload) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		panic(fmt.Sprintf("engine: DDL payload must always encode: %v", err))
	}
	return buf.Bytes()
}

func decodeDDL(data []byte) (ddlPayload, error) {
	var p ddlPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return ddlPayload{}, fmt.Errorf("engine: decode DDL payload: %w", err)
	}
	return p, nil
}

// applyDDL performs one schema change against catalog (and, for DROP
// TABLE, the ANN manager's graphs). Shared between the live execution
// path and the recovery DDLApplier adapter so the two can never drift.
func applyDDL(catalog *storage.Catalog, annMgr *ann.Manager, p ddlPayload) error {
	switch p.Kind {
	case "create_table":
		_, err := catalog.CreateTable(p.Table, p.Schema, p.IfNotExists)
		return err
	case "drop_table":
		if err := catalog.DropTable(p.Table, p.IfExists); err != nil {
			return err
		}
		annMgr.DropTable(p.Table)
		return nil
	case "create_index":
		_, err := catalog.Indexes.Create(p.IndexName, p.Table, p.Column)
		return err
	case "drop_index":
		return catalog.Indexes.Drop(p.IndexName)
	case "add_column":
		t, err := catalog.Table(p.Table)
		if err != nil {
			return err
		}
		return t.AddColumn(p.Col)
	case "drop_column":
		t, err := catalog.Table(p.Table)
		if err != nil {
			return err
		}
		return t.DropColumn(p.Column)
	case "rename_column":
		t, err := catalog.Table(p.Table)
		if err != nil {
			return err
		}
		return t.RenameColumn(p.OldName, p.NewName)
	default:
		return fmt.Errorf("engine: unknown DDL payload kind %q", p.Kind)
	}
}

// ddlApplier implements storage.DDLApplier for WAL recovery: it
// decodes the payload recovery handed it and replays the same
// mutation applyDDL would have performed live, without re-appending to
// the WAL (recovery is reading the WAL, not writing it).
type ddlApplier struct {
	catalog *storage.Catalog
	annMgr  *ann.Manager
}

func (d *ddlApplier) ApplyDDL(data []byte) error {
	p, err := decodeDDL(data)
	if err != nil {
		return err
	}
	return applyDDL(d.catalog, d.annMgr, p)
}

// recordTypeForDDL maps a payload kind to its WAL record type.
func recordTypeForDDL(kind string) storage.RecordType {
	switch kind {
	case "create_table":
		return storage.RecCreateTable
	case "drop_table":
		return storage.RecDropTable
	case "create_index":
		return storage.RecCreateIndex
	case "drop_index":
		return storage.RecDropIndex
	case "add_column":
		return storage.RecAlterTableAddColumn
	case "drop_column":
		return storage.RecAlterTableDropColumn
	case "rename_column":
		return storage.RecAlterTableRenameColumn
	default:
		return 0
	}
}

// embeddingSinkAdapter implements storage.EmbeddingSink by extracting
// embedding-typed cells out of a row's map[string]storage.Value and
// forwarding just those to the ANN manager, which never imports
// storage itself (see internal/ann/distance.go).
type embeddingSinkAdapter struct {
	mgr *ann.Manager
}

func (a *embeddingSinkAdapter) OnRow(table string, rowID int64, row map[string]storage.Value) {
	var embeddings map[string][]float32
	for col, v := range row {
		if v.Type == storage.TypeEmbedding {
			if embeddings == nil {
				embeddings = make(map[string][]float32)
			}
			embeddings[col] = v.Vec
		}
	}
	if embeddings != nil {
		a.mgr.OnRow(table, rowID, embeddings)
	}
}

func (a *embeddingSinkAdapter) OnRowDeleted(table string, rowID int64) {
	a.mgr.OnRowDeleted(table, rowID)
}
