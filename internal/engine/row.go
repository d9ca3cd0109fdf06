package engine

import (
	"strings"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// colKey identifies one cell in a Row by its source table and column
// name. Synthesized columns (aggregate results, computed expressions)
// use an empty Table.
type colKey struct{ Table, Name string }

// Row is one materialized tuple flowing through the executor: a join
// output, a group's finalized aggregates, or a plain table scan. Values
// are keyed by table-qualified name so joins can carry same-named
// columns from both sides without collision; unqualified lookups
// succeed only when exactly one source column matches.
type Row struct {
	cols  map[colKey]storage.Value
	order []colKey
}

func NewRow() Row {
	return Row{cols: make(map[colKey]storage.Value)}
}

// Set stores a value under (table, name), appending to the projection
// order the first time that key is seen.
func (r *Row) Set(table, name string, v storage.Value) {
	k := colKey{table, name}
	if _, exists := r.cols[k]; !exists {
		r.order = append(r.order, k)
	}
	r.cols[k] = v
}

// Columns returns the (table, name) pairs in first-seen order, used
// for SELECT * projection.
func (r Row) Columns() []colKey { return r.order }

// Get resolves a column reference. A table-qualified reference is an
// exact lookup; an unqualified one matches against every column in the
// row by bare name and fails if zero or more than one source matches.
func (r Row) Get(ref *ColumnRef) (storage.Value, error) {
	if ref.Table != "" {
		if v, ok := r.cols[colKey{ref.Table, ref.Name}]; ok {
			return v, nil
		}
		return storage.Null, ErrUnknownColumn
	}
	var found storage.Value
	matches := 0
	for _, k := range r.order {
		if k.Name == ref.Name {
			found = r.cols[k]
			matches++
		}
	}
	switch matches {
	case 0:
		return storage.Null, ErrUnknownColumn
	case 1:
		return found, nil
	default:
		return storage.Null, ErrAmbiguousColumn
	}
}

// GetNamed looks up a synthesized (unqualified, table-less) column by
// exact name, used for aggregate result columns like "COUNT(*)".
func (r Row) GetNamed(name string) (storage.Value, bool) {
	v, ok := r.cols[colKey{"", name}]
	return v, ok
}

// Merge returns a new Row containing every column of both inputs,
// right-hand columns taking precedence only when both sides define the
// identical (table, name) pair (which should not normally happen
// between two distinct source tables).
func Merge(left, right Row) Row {
	out := NewRow()
	for _, k := range left.order {
		out.Set(k.Table, k.Name, left.cols[k])
	}
	for _, k := range right.order {
		out.Set(k.Table, k.Name, right.cols[k])
	}
	return out
}

// FuncSignature renders the synthesized column name an aggregate's
// result is stored under, e.g. "COUNT(*)" or "SUM(amount)". Both
// aggregate.go (when populating a group's Row) and expr.go (when
// resolving a FuncCall leaf during HAVING evaluation) must agree on
// this spelling.
func FuncSignature(fc *FuncCall) string {
	if fc.Star {
		return fc.Name + "(*)"
	}
	var b strings.Builder
	b.WriteString(fc.Name)
	b.WriteByte('(')
	for i, a := range fc.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(exprSignature(a))
	}
	b.WriteByte(')')
	return b.String()
}

func exprSignature(e Expr) string {
	switch v := e.(type) {
	case *ColumnRef:
		if v.Table != "" {
			return v.Table + "." + v.Name
		}
		return v.Name
	case *Literal:
		return "?"
	default:
		return "?"
	}
}
