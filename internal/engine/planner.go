package engine

import (
	"math"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// AccessPath is the planner's choice of how to read one table: a full
// scan, or a B-tree lookup that has already produced the candidate row
// ids (so the executor never has to re-derive the predicate shape that
// justified the index choice).
type AccessPath struct {
	Index  bool
	RowIDs map[int64]struct{} // valid only when Index is true
}

// scanPredicate is the subset of WHERE shapes the planner recognizes
// as index-eligible: an exact match, or a one- or two-sided range, all
// against a single column compared to a literal.
type scanPredicate struct {
	column  string
	op      string // "=", "<", "<=", ">", ">=", or "between"
	literal storage.Value
	upper   storage.Value // only set when op == "between"
	upperOp string        // "<" or "<="
}

// PlanAccess chooses between a table scan and a B-tree index scan for
// one table given its WHERE clause, using the fixed selectivity
// heuristics and 20%-improvement threshold: index cost is
// log2(N)+selectivity*N against N for a scan, and the index only wins
// if it costs at most 80% of the scan.
func PlanAccess(cat *storage.Catalog, table string, where Expr, n int) AccessPath {
	pred, ok := recognizePredicate(where)
	if !ok || n == 0 {
		return AccessPath{}
	}
	indexes := cat.Indexes.IndexesOn(table, pred.column)
	if len(indexes) == 0 {
		return AccessPath{}
	}
	idx := indexes[0]

	var selectivity float64
	switch pred.op {
	case "=":
		selectivity = 0.01
	case "between":
		selectivity = 0.10
	default: // single-sided range
		selectivity = 0.33
	}

	scanCost := float64(n)
	indexCost := math.Log2(float64(n)) + selectivity*float64(n)
	if indexCost > scanCost*0.8 {
		return AccessPath{}
	}

	return AccessPath{Index: true, RowIDs: rowIDsForPredicate(idx.Tree, pred)}
}

func rowIDsForPredicate(tree *storage.BTree, pred scanPredicate) map[int64]struct{} {
	switch pred.op {
	case "=":
		return tree.Search(pred.literal)
	case "<":
		return tree.Range(nil, &pred.literal, false, false)
	case "<=":
		return tree.Range(nil, &pred.literal, false, true)
	case ">":
		return tree.Range(&pred.literal, nil, false, false)
	case ">=":
		return tree.Range(&pred.literal, nil, true, false)
	case "between":
		lo, hi := pred.literal, pred.upper
		hiInclusive := pred.upperOp == "<="
		return tree.Range(&lo, &hi, true, hiInclusive)
	default:
		return nil
	}
}

// recognizePredicate inspects a WHERE tree for the shapes spec's
// planner names explicitly: "col op literal", or two range
// comparisons on the same column ANDed together (a BETWEEN written out
// by hand). Anything else falls back to a full scan.
func recognizePredicate(where Expr) (scanPredicate, bool) {
	if where == nil {
		return scanPredicate{}, false
	}
	if b, ok := where.(*Binary); ok {
		switch b.Op {
		case "=", "<", "<=", ">", ">=":
			if p, ok := colLiteral(b); ok {
				return p, true
			}
		case "AND":
			left, lok := colLiteral(asBinary(b.Left))
			right, rok := colLiteral(asBinary(b.Right))
			if lok && rok && left.column == right.column && isLowerBound(left.op) && isUpperBound(right.op) {
				return scanPredicate{
					column:  left.column,
					op:      "between",
					literal: left.literal,
					upper:   right.literal,
					upperOp: right.op,
				}, true
			}
			if lok && rok && left.column == right.column && isUpperBound(left.op) && isLowerBound(right.op) {
				return scanPredicate{
					column:  left.column,
					op:      "between",
					literal: right.literal,
					upper:   left.literal,
					upperOp: left.op,
				}, true
			}
		}
	}
	return scanPredicate{}, false
}

func asBinary(e Expr) *Binary {
	b, _ := e.(*Binary)
	return b
}

func isLowerBound(op string) bool { return op == ">" || op == ">=" }
func isUpperBound(op string) bool { return op == "<" || op == "<=" }

func colLiteral(b *Binary) (scanPredicate, bool) {
	if b == nil {
		return scanPredicate{}, false
	}
	if col, ok := b.Left.(*ColumnRef); ok {
		if lit, ok := b.Right.(*Literal); ok {
			return scanPredicate{column: col.Name, op: b.Op, literal: literalValue(lit.Val)}, true
		}
	}
	if col, ok := b.Right.(*ColumnRef); ok {
		if lit, ok := b.Left.(*Literal); ok {
			return scanPredicate{column: col.Name, op: flipOp(b.Op), literal: literalValue(lit.Val)}, true
		}
	}
	return scanPredicate{}, false
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// JoinAlgorithm reports which join strategy the cost formula selects
// for two inputs of size n1 and n2: hash join only pays off once both
// inputs are sizeable and the cross-product would dwarf their sum.
func JoinAlgorithm(n1, n2 int) string {
	if n1+n2 >= 100 && 5*(n1+n2) < n1*n2 {
		return "hash"
	}
	return "nested_loop"
}
