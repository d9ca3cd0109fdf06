package engine

import (
	"fmt"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// SubqueryRunner executes a nested SelectStmt against the same
// snapshot/transaction context as the enclosing query and returns its
// result rows. exec.go supplies the concrete implementation; expr.go
// only depends on this narrow function type so the evaluator stays
// independent of the statement executor.
type SubqueryRunner func(*SelectStmt) ([]Row, error)

// Eval walks an expression tree against one row and returns its value.
// Comparisons against NULL yield false rather than propagating
// three-valued logic; IS [NOT] NULL is the only explicit null test, per
// the WHERE/HAVING evaluator's documented semantics.
func Eval(e Expr, row Row, run SubqueryRunner) (storage.Value, error) {
	switch v := e.(type) {
	case *Literal:
		return literalValue(v.Val), nil

	case *ColumnRef:
		return row.Get(v)

	case *Unary:
		return evalUnary(v, row, run)

	case *Binary:
		return evalBinary(v, row, run)

	case *IsNullExpr:
		inner, err := Eval(v.Expr, row, run)
		if err != nil {
			return storage.Null, err
		}
		isNull := inner.IsNull()
		if v.Negate {
			return storage.BoolValue(!isNull), nil
		}
		return storage.BoolValue(isNull), nil

	case *InExpr:
		return evalIn(v, row, run)

	case *ExistsExpr:
		rows, err := run(v.Sub)
		if err != nil {
			return storage.Null, err
		}
		exists := len(rows) > 0
		if v.Negate {
			exists = !exists
		}
		return storage.BoolValue(exists), nil

	case *SubqueryExpr:
		rows, err := run(v.Sub)
		if err != nil {
			return storage.Null, err
		}
		return scalarSubqueryResult(rows)

	case *FuncCall:
		val, ok := row.GetNamed(FuncSignature(v))
		if !ok {
			return storage.Null, fmt.Errorf("%w: %s", ErrUnknownColumn, FuncSignature(v))
		}
		return val, nil

	default:
		return storage.Null, fmt.Errorf("engine: unhandled expression type %T", e)
	}
}

// EvalBool evaluates e and coerces the result to a boolean, treating
// NULL and non-bool results as false.
func EvalBool(e Expr, row Row, run SubqueryRunner) (bool, error) {
	if e == nil {
		return true, nil
	}
	v, err := Eval(e, row, run)
	if err != nil {
		return false, err
	}
	return v.Type == storage.TypeBool && v.Bool, nil
}

func literalValue(v any) storage.Value {
	switch t := v.(type) {
	case nil:
		return storage.Null
	case int64:
		return storage.IntValue(t)
	case float64:
		return storage.FloatValue(t)
	case string:
		return storage.TextValue(t)
	case bool:
		return storage.BoolValue(t)
	default:
		return storage.Null
	}
}

func scalarSubqueryResult(rows []Row) (storage.Value, error) {
	switch len(rows) {
	case 0:
		return storage.Null, nil
	case 1:
		cols := rows[0].Columns()
		if len(cols) == 0 {
			return storage.Null, ErrInvalidSubquery
		}
		return rows[0].cols[cols[0]], nil
	default:
		return storage.Null, ErrSubqueryReturnedMultipleRows
	}
}

func evalUnary(u *Unary, row Row, run SubqueryRunner) (storage.Value, error) {
	inner, err := Eval(u.Expr, row, run)
	if err != nil {
		return storage.Null, err
	}
	switch u.Op {
	case "NOT":
		if inner.IsNull() {
			return storage.BoolValue(false), nil
		}
		return storage.BoolValue(!(inner.Type == storage.TypeBool && inner.Bool)), nil
	case "-":
		switch inner.Type {
		case storage.TypeInt:
			return storage.IntValue(-inner.Int), nil
		case storage.TypeFloat:
			return storage.FloatValue(-inner.Float), nil
		default:
			return storage.Null, nil
		}
	default:
		return storage.Null, fmt.Errorf("engine: unknown unary operator %q", u.Op)
	}
}

func evalBinary(b *Binary, row Row, run SubqueryRunner) (storage.Value, error) {
	switch b.Op {
	case "AND", "OR":
		left, err := EvalBool(b.Left, row, run)
		if err != nil {
			return storage.Null, err
		}
		if b.Op == "AND" && !left {
			return storage.BoolValue(false), nil
		}
		if b.Op == "OR" && left {
			return storage.BoolValue(true), nil
		}
		right, err := EvalBool(b.Right, row, run)
		if err != nil {
			return storage.Null, err
		}
		return storage.BoolValue(right), nil
	}

	left, err := Eval(b.Left, row, run)
	if err != nil {
		return storage.Null, err
	}
	right, err := Eval(b.Right, row, run)
	if err != nil {
		return storage.Null, err
	}

	switch b.Op {
	case "=", "!=", "<", ">", "<=", ">=":
		return storage.BoolValue(compareOp(b.Op, left, right)), nil
	case "+", "-", "*", "/":
		return arith(b.Op, left, right), nil
	default:
		return storage.Null, fmt.Errorf("engine: unknown binary operator %q", b.Op)
	}
}

// compareOp applies a comparison operator. A NULL operand always
// yields false. Int/float operands are numerically promoted; any other
// type mismatch is treated as not-equal/undefined-order rather than
// panicking, since WHERE predicates routinely compare literals of a
// different Go-side type than the column's declared type.
func compareOp(op string, l, r storage.Value) bool {
	if l.IsNull() || r.IsNull() {
		return false
	}
	if l.Type != r.Type {
		lf, lok := asFloat(l)
		rf, rok := asFloat(r)
		if !lok || !rok {
			return op == "!="
		}
		return compareFloats(op, lf, rf)
	}
	if l.Type == storage.TypeEmbedding {
		return op == "!=" && !storage.Equal(l, r)
	}
	cmp := storage.Compare(l, r)
	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func compareFloats(op string, l, r float64) bool {
	switch op {
	case "=":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case ">":
		return l > r
	case "<=":
		return l <= r
	case ">=":
		return l >= r
	default:
		return false
	}
}

func asFloat(v storage.Value) (float64, bool) {
	switch v.Type {
	case storage.TypeInt:
		return float64(v.Int), true
	case storage.TypeFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// arith evaluates +, -, *, / with int/int staying integral and any
// float operand promoting the result to float. Division by zero and
// operands that aren't numeric both yield NULL rather than a runtime
// panic, matching the evaluator's general null-on-undefined stance.
func arith(op string, l, r storage.Value) storage.Value {
	if l.Type == storage.TypeInt && r.Type == storage.TypeInt {
		switch op {
		case "+":
			return storage.IntValue(l.Int + r.Int)
		case "-":
			return storage.IntValue(l.Int - r.Int)
		case "*":
			return storage.IntValue(l.Int * r.Int)
		case "/":
			if r.Int == 0 {
				return storage.Null
			}
			return storage.IntValue(l.Int / r.Int)
		}
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return storage.Null
	}
	switch op {
	case "+":
		return storage.FloatValue(lf + rf)
	case "-":
		return storage.FloatValue(lf - rf)
	case "*":
		return storage.FloatValue(lf * rf)
	case "/":
		if rf == 0 {
			return storage.Null
		}
		return storage.FloatValue(lf / rf)
	default:
		return storage.Null
	}
}

// evalIn runs the subquery once, requires exactly one projected
// column, and tests membership. A NOT IN whose set contains a NULL
// matches nothing, per SQL's standard (if optional) NULL-in-set rule.
func evalIn(in *InExpr, row Row, run SubqueryRunner) (storage.Value, error) {
	left, err := Eval(in.Expr, row, run)
	if err != nil {
		return storage.Null, err
	}
	rows, err := run(in.Sub)
	if err != nil {
		return storage.Null, err
	}

	hasNull := false
	member := false
	for _, r := range rows {
		cols := r.Columns()
		if len(cols) != 1 {
			return storage.Null, ErrInvalidSubquery
		}
		v := r.cols[cols[0]]
		if v.IsNull() {
			hasNull = true
			continue
		}
		if v.Type == left.Type && storage.Equal(v, left) {
			member = true
		}
	}

	if in.Negate {
		if hasNull {
			return storage.BoolValue(false), nil
		}
		return storage.BoolValue(!member), nil
	}
	return storage.BoolValue(member), nil
}
