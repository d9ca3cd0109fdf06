package engine

import "github.com/vectorbase/vectorbase/internal/storage"

// ExecuteJoin evaluates one JoinClause against an already-materialized
// left-hand row set (the FROM table, or the output of a prior join in
// an N-table chain) and a right-hand row set (one JOIN target),
// choosing nested-loop or hash execution per JoinAlgorithm. leftTables
// names every table/alias already present in left's rows, used to
// orient an equality predicate's two sides onto left vs right without
// re-deriving it per row.
func ExecuteJoin(left []Row, leftTables map[string]bool, right []Row, rightCols []colKey, jc *JoinClause, run SubqueryRunner) ([]Row, error) {
	rightTable := jc.Alias
	if rightTable == "" {
		rightTable = jc.Table
	}
	leftEq, rightEq, ok := extractEquiJoin(jc.On, leftTables, rightTable)
	if ok && JoinAlgorithm(len(left), len(right)) == "hash" {
		return hashJoin(left, right, leftEq, rightEq, jc, rightCols)
	}
	return nestedLoopJoin(left, leftTables, right, rightCols, jc, run)
}

// extractEquiJoin recognizes `a.x = b.y` (in either order) as an
// equality predicate and reports which side belongs to the
// already-built left set versus the incoming right table.
func extractEquiJoin(on Expr, leftTables map[string]bool, rightTable string) (left, right *ColumnRef, ok bool) {
	b, isBin := on.(*Binary)
	if !isBin || b.Op != "=" {
		return nil, nil, false
	}
	l, lok := b.Left.(*ColumnRef)
	r, rok := b.Right.(*ColumnRef)
	if !lok || !rok {
		return nil, nil, false
	}
	if leftTables[l.Table] && r.Table == rightTable {
		return l, r, true
	}
	if leftTables[r.Table] && l.Table == rightTable {
		return r, l, true
	}
	return nil, nil, false
}

func nullRow(cols []colKey) Row {
	row := NewRow()
	for _, c := range cols {
		row.Set(c.Table, c.Name, storage.Null)
	}
	return row
}

func nestedLoopJoin(left []Row, leftTables map[string]bool, right []Row, rightCols []colKey, jc *JoinClause, run SubqueryRunner) ([]Row, error) {
	var out []Row
	leftMatched := make([]bool, len(left))
	rightMatched := make([]bool, len(right))

	for i, l := range left {
		for j, r := range right {
			merged := Merge(l, r)
			matched, err := EvalBool(jc.On, merged, run)
			if err != nil {
				return nil, err
			}
			if matched {
				out = append(out, merged)
				leftMatched[i] = true
				rightMatched[j] = true
			}
		}
	}

	if jc.Kind == "LEFT" {
		for i, l := range left {
			if !leftMatched[i] {
				out = append(out, Merge(l, nullRow(rightCols)))
			}
		}
	}
	if jc.Kind == "RIGHT" {
		leftCols := rowShape(left)
		for j, r := range right {
			if !rightMatched[j] {
				out = append(out, Merge(nullRow(leftCols), r))
			}
		}
	}
	return out, nil
}

// hashJoin builds an index over whichever side is smaller and probes
// with the other, per the documented "build the smaller side" rule;
// unmatched-row tracking for LEFT/RIGHT works off matched-index sets
// gathered during the probe, independent of which side was built, so
// outer-join results are identical regardless of build-side choice.
func hashJoin(left []Row, right []Row, leftKey, rightKey *ColumnRef, jc *JoinClause, rightCols []colKey) ([]Row, error) {
	var out []Row
	leftMatched := make([]bool, len(left))
	rightMatched := make([]bool, len(right))

	buildOnRight := len(right) <= len(left)
	if buildOnRight {
		index := make(map[string][]int, len(right))
		for j, r := range right {
			v, err := r.Get(rightKey)
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				continue
			}
			k := EncodeValue(v)
			index[k] = append(index[k], j)
		}
		for i, l := range left {
			v, err := l.Get(leftKey)
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				continue
			}
			for _, j := range index[EncodeValue(v)] {
				out = append(out, Merge(l, right[j]))
				leftMatched[i] = true
				rightMatched[j] = true
			}
		}
	} else {
		index := make(map[string][]int, len(left))
		for i, l := range left {
			v, err := l.Get(leftKey)
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				continue
			}
			k := EncodeValue(v)
			index[k] = append(index[k], i)
		}
		for j, r := range right {
			v, err := r.Get(rightKey)
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				continue
			}
			for _, i := range index[EncodeValue(v)] {
				out = append(out, Merge(left[i], r))
				leftMatched[i] = true
				rightMatched[j] = true
			}
		}
	}

	if jc.Kind == "LEFT" {
		for i, l := range left {
			if !leftMatched[i] {
				out = append(out, Merge(l, nullRow(rightCols)))
			}
		}
	}
	if jc.Kind == "RIGHT" {
		leftCols := rowShape(left)
		for j, r := range right {
			if !rightMatched[j] {
				out = append(out, Merge(nullRow(leftCols), r))
			}
		}
	}
	return out, nil
}

// rowShape returns the column shape of a row set by inspecting its
// first row, used only to synthesize an all-null row of the right
// width for a RIGHT JOIN's unmatched left side.
func rowShape(rows []Row) []colKey {
	if len(rows) == 0 {
		return nil
	}
	return rows[0].Columns()
}
