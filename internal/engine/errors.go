package engine

import "errors"

// Sentinel errors surfaced by the evaluator, aggregator, and planner.
// Wrapped with context via fmt.Errorf("...: %w", ...) at the call site.
var (
	ErrSubqueryReturnedMultipleRows = errors.New("engine: subquery returned more than one row")
	ErrInvalidSubquery              = errors.New("engine: subquery must project exactly one column")
	ErrColumnNotInGroupBy           = errors.New("engine: column not in GROUP BY")
	ErrCannotUseStarWithGroupBy     = errors.New("engine: SELECT * is not allowed with GROUP BY")
	ErrAmbiguousColumn              = errors.New("engine: ambiguous column reference")
	ErrUnknownColumn                = errors.New("engine: unknown column reference")
	ErrUnknownTable                 = errors.New("engine: unknown table")
	ErrTableAlreadyExists           = errors.New("engine: table already exists")
	ErrIndexAlreadyExists           = errors.New("engine: index already exists")
	ErrNoActiveTransaction          = errors.New("engine: no active transaction")
	ErrTransactionAlreadyActive     = errors.New("engine: a transaction is already active on this connection")
)
