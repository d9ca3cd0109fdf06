package engine

import "github.com/vectorbase/vectorbase/internal/storage"

// ResultSet is the final, ordered projection returned by a SELECT:
// column names in SELECT-list order, and one []Value per output row
// in the same order.
type ResultSet struct {
	Columns []string
	Rows    [][]storage.Value
}

// RowsAffected is returned by INSERT/UPDATE/DELETE/DDL statements in
// place of a ResultSet.
type RowsAffected struct {
	Count int64
}
