package engine

import "github.com/vectorbase/vectorbase/internal/storage"

// aggState is the running accumulator for one aggregate function over
// one group. COUNT/SUM default to zero on an empty group; AVG/MIN/MAX
// finalize to NULL on an empty group, per the documented finalize
// semantics.
type aggState struct {
	fn       string
	count    int64 // rows seen (COUNT(*)) or non-null values seen (COUNT(col), AVG)
	sumInt   int64
	sumFloat float64
	sawFloat bool
	min, max *storage.Value
}

func newAggState(fn string) *aggState { return &aggState{fn: fn} }

func (a *aggState) add(v storage.Value, star bool) {
	if star {
		a.count++
		return
	}
	if v.IsNull() {
		return
	}
	a.count++
	switch v.Type {
	case storage.TypeInt:
		a.sumInt += v.Int
		a.sumFloat += float64(v.Int)
	case storage.TypeFloat:
		a.sawFloat = true
		a.sumFloat += v.Float
	}
	if a.min == nil || compareOp("<", v, *a.min) {
		cp := v
		a.min = &cp
	}
	if a.max == nil || compareOp(">", v, *a.max) {
		cp := v
		a.max = &cp
	}
}

func (a *aggState) finalize() storage.Value {
	switch a.fn {
	case "COUNT":
		return storage.IntValue(a.count)
	case "SUM":
		if a.count == 0 {
			return storage.IntValue(0)
		}
		if a.sawFloat {
			return storage.FloatValue(a.sumFloat)
		}
		return storage.IntValue(a.sumInt)
	case "AVG":
		if a.count == 0 {
			return storage.Null
		}
		return storage.FloatValue(a.sumFloat / float64(a.count))
	case "MIN":
		if a.min == nil {
			return storage.Null
		}
		return *a.min
	case "MAX":
		if a.max == nil {
			return storage.Null
		}
		return *a.max
	default:
		return storage.Null
	}
}

// groupState holds one GROUP BY bucket's original group-column values
// (for re-projection) and one accumulator per distinct aggregate
// function call that appears in the query.
type groupState struct {
	groupCols []Expr
	groupVals []storage.Value
	accs      map[string]*aggState
	accOrder  []*FuncCall
}

// ExecuteAggregate buckets rows by groupBy (or a single implicit group
// if groupBy is empty), feeds every row through each aggregate's
// accumulator, and returns one finalized Row per group. Each result
// row carries the group-by columns under their original name plus one
// synthesized column per aggregate, named by FuncSignature.
func ExecuteAggregate(rows []Row, groupBy []Expr, funcs []*FuncCall, run SubqueryRunner) ([]Row, error) {
	groups := make(map[string]*groupState)
	var order []string

	for _, row := range rows {
		var keyVals []storage.Value
		for _, g := range groupBy {
			v, err := Eval(g, row, run)
			if err != nil {
				return nil, err
			}
			keyVals = append(keyVals, v)
		}
		key := GroupKey(keyVals)
		gs, ok := groups[key]
		if !ok {
			gs = &groupState{groupCols: groupBy, groupVals: keyVals, accs: make(map[string]*aggState)}
			for _, fc := range funcs {
				gs.accs[FuncSignature(fc)] = newAggState(fc.Name)
				gs.accOrder = append(gs.accOrder, fc)
			}
			groups[key] = gs
			order = append(order, key)
		}
		for _, fc := range funcs {
			acc := gs.accs[FuncSignature(fc)]
			if fc.Star {
				acc.add(storage.Null, true)
				continue
			}
			v, err := Eval(fc.Args[0], row, run)
			if err != nil {
				return nil, err
			}
			acc.add(v, false)
		}
	}

	// A query with aggregates and no GROUP BY always returns exactly one
	// row, even over zero input rows (every accumulator finalizes empty).
	if len(groupBy) == 0 && len(order) == 0 {
		gs := &groupState{accs: make(map[string]*aggState)}
		for _, fc := range funcs {
			gs.accs[FuncSignature(fc)] = newAggState(fc.Name)
			gs.accOrder = append(gs.accOrder, fc)
		}
		groups[""] = gs
		order = append(order, "")
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		gs := groups[key]
		result := NewRow()
		for i, g := range gs.groupCols {
			if ref, ok := g.(*ColumnRef); ok {
				result.Set(ref.Table, ref.Name, gs.groupVals[i])
			}
		}
		for _, fc := range gs.accOrder {
			result.Set("", FuncSignature(fc), gs.accs[FuncSignature(fc)].finalize())
		}
		out = append(out, result)
	}
	return out, nil
}

// CollectFuncCalls walks a set of expression trees (select list,
// HAVING, ORDER BY keys) and returns every aggregate FuncCall found,
// so the executor can decide whether a query is an aggregate query at
// all and which accumulators it needs.
func CollectFuncCalls(exprs ...Expr) []*FuncCall {
	var out []*FuncCall
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case nil:
			return
		case *FuncCall:
			out = append(out, v)
		case *Unary:
			walk(v.Expr)
		case *Binary:
			walk(v.Left)
			walk(v.Right)
		case *IsNullExpr:
			walk(v.Expr)
		case *InExpr:
			walk(v.Expr)
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return out
}

// ValidateGroupBySelect enforces the two documented GROUP BY
// restrictions: SELECT * is rejected, and every non-aggregate selected
// column must itself appear in GROUP BY.
func ValidateGroupBySelect(stmt *SelectStmt) error {
	if len(stmt.GroupBy) == 0 {
		return nil
	}
	for _, item := range stmt.Columns {
		if item.Star {
			return ErrCannotUseStarWithGroupBy
		}
		if _, isFunc := item.Expr.(*FuncCall); isFunc {
			continue
		}
		if !exprInGroupBy(item.Expr, stmt.GroupBy) {
			return ErrColumnNotInGroupBy
		}
	}
	return nil
}

func exprInGroupBy(e Expr, groupBy []Expr) bool {
	ref, ok := e.(*ColumnRef)
	if !ok {
		return true // non-column expressions (literals, arithmetic) are not restricted
	}
	for _, g := range groupBy {
		if gref, ok := g.(*ColumnRef); ok && gref.Table == ref.Table && gref.Name == ref.Name {
			return true
		}
	}
	return false
}
