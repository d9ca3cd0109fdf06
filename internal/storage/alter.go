package storage

// AddColumn appends a new column to the schema. Existing rows simply
// read as null for the new column since row data is a sparse
// map[string]Value keyed by name — no rewrite of existing versions is
// needed.
func (t *Table) AddColumn(col Column) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Schema.ColumnIndex(col.Name) >= 0 {
		return newErr(KindValidationFailed, "column "+col.Name+" already exists", nil)
	}
	t.Schema.Columns = append(t.Schema.Columns, col)
	return nil
}

// DropColumn removes a column from the schema. Historical version data
// keeps the stale key (harmless: nothing in the schema references it
// any more, and the evaluator only ever looks up columns the schema
// still names).
func (t *Table) DropColumn(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.Schema.ColumnIndex(name)
	if idx < 0 {
		return newErr(KindColumnNotFound, name, nil)
	}
	t.Schema.Columns = append(t.Schema.Columns[:idx], t.Schema.Columns[idx+1:]...)
	return nil
}

// RenameColumn renames a column in the schema and in every chain's
// current head version, so subsequent reads under the new name see
// live data. Versions superseded before the rename keep the old key;
// they are only reachable by snapshots old enough to predate the
// rename and are, by construction, about to be vacuumed eventually.
func (t *Table) RenameColumn(oldName, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.Schema.ColumnIndex(oldName)
	if idx < 0 {
		return newErr(KindColumnNotFound, oldName, nil)
	}
	if t.Schema.ColumnIndex(newName) >= 0 {
		return newErr(KindValidationFailed, "column "+newName+" already exists", nil)
	}
	t.Schema.Columns[idx].Name = newName
	for _, chain := range t.chains {
		head := chain.headVersion()
		if v, ok := head.data[oldName]; ok {
			head.data[newName] = v
			delete(head.data, oldName)
		}
	}
	return nil
}
