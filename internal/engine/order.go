package engine

import (
	"math/rand"
	"sort"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// ApplyOrderBy stably sorts rows by the given multi-key ORDER BY list.
// NULL sorts less than any value; comparing values of different types
// is undefined and treated as equal (neither key breaks the tie). A
// VIBES key shuffles the entire row set uniformly and ignores every
// other key, per its documented "randomizes row order" semantics.
func ApplyOrderBy(rows []Row, orderBy []OrderItem, run SubqueryRunner) ([]Row, error) {
	if len(orderBy) == 0 {
		return rows, nil
	}
	for _, item := range orderBy {
		if item.Vibes {
			out := make([]Row, len(rows))
			copy(out, rows)
			rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
			return out, nil
		}
	}

	out := make([]Row, len(rows))
	copy(out, rows)

	// Pre-evaluate every sort key for every row once, rather than
	// re-evaluating (and re-running subqueries) on every comparator call.
	keys := make([][]storage.Value, len(out))
	var evalErr error
	for i, row := range out {
		vals := make([]storage.Value, len(orderBy))
		for k, item := range orderBy {
			v, err := Eval(item.Expr, row, run)
			if err != nil {
				evalErr = err
				break
			}
			vals[k] = v
		}
		keys[i] = vals
	}
	if evalErr != nil {
		return nil, evalErr
	}

	sort.SliceStable(out, func(i, j int) bool {
		for k, item := range orderBy {
			c := compareOrdered(keys[i][k], keys[j][k])
			if c == 0 {
				continue
			}
			if item.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out, nil
}

// compareOrdered returns -1/0/1 for ORDER BY purposes: NULL is least,
// a type mismatch between two non-null values is an undefined
// ordering reported as equal (0), and otherwise it defers to the
// type's natural ordering.
func compareOrdered(a, b storage.Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}
	if a.Type != b.Type {
		return 0
	}
	return storage.Compare(a, b)
}

// ApplyLimitOffset slices rows after ordering, per the documented
// "LIMIT/OFFSET applied after ordering" rule. A nil offset/limit means
// unbounded on that side.
func ApplyLimitOffset(rows []Row, limit, offset *int) []Row {
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start >= len(rows) {
		return nil
	}
	rows = rows[start:]
	if limit != nil && *limit < len(rows) {
		if *limit < 0 {
			return nil
		}
		rows = rows[:*limit]
	}
	return rows
}
