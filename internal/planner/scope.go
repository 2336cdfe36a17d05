// Package planner turns relation metadata plus recorded filter scopes into
// grouped aggregate SQL. It builds queries only; execution lives in the
// loader package.
package planner

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Operation names recorded by Scope.
const (
	opWhere   = "where"
	opOrder   = "order"
	opLimit   = "limit"
	opOffset  = "offset"
	opInvalid = "invalid"
)

// Op is one recorded scope operation: its name, an SQL expression, and plain
// arguments. Ops carry no closures; per-row computations never enter a scope.
type Op struct {
	Name string
	Expr string
	Args []interface{}
}

// Scope is an ordered, immutable chain of recorded operations. Appending
// returns a new Scope; the receiver is never mutated, so scopes can be
// shared by reference across goroutines.
type Scope struct {
	ops []Op
}

// Append returns a new scope with op added at the end.
func (s Scope) Append(op Op) Scope {
	ops := make([]Op, len(s.ops), len(s.ops)+1)
	copy(ops, s.ops)
	return Scope{ops: append(ops, op)}
}

// Where records a condition expression with positional arguments.
func (s Scope) Where(cond string, args ...interface{}) Scope {
	return s.Append(Op{Name: opWhere, Expr: cond, Args: args})
}

// WhereExpr records a squirrel expression. The expression renders
// immediately so it keys like any other condition; a rendering failure is
// recorded and surfaces when the scope materializes.
func (s Scope) WhereExpr(expr sq.Sqlizer) Scope {
	rendered, args, err := expr.ToSql()
	if err != nil {
		return s.Append(Op{Name: opInvalid, Expr: err.Error()})
	}
	return s.Where(rendered, args...)
}

// OrderBy records an ordering expression.
func (s Scope) OrderBy(expr string) Scope {
	return s.Append(Op{Name: opOrder, Expr: expr})
}

// Limit records a row limit.
func (s Scope) Limit(n uint64) Scope {
	return s.Append(Op{Name: opLimit, Args: []interface{}{n}})
}

// Offset records a row offset.
func (s Scope) Offset(n uint64) Scope {
	return s.Append(Op{Name: opOffset, Args: []interface{}{n}})
}

// Len returns the number of recorded operations.
func (s Scope) Len() int { return len(s.ops) }

// Key returns an order-sensitive canonical encoding of the scope. Two scopes
// with the same operations in a different order produce different keys; no
// reordering or canonicalization is applied.
func (s Scope) Key() string {
	if len(s.ops) == 0 {
		return ""
	}
	parts := make([]string, len(s.ops))
	for i, op := range s.ops {
		args := make([]string, len(op.Args))
		for j, arg := range op.Args {
			// Quoted so an argument containing the separator cannot
			// collide with a different argument list.
			args[j] = strconv.Quote(fmt.Sprint(arg))
		}
		parts[i] = fmt.Sprintf("%s(%s;%s)", op.Name, op.Expr, strings.Join(args, ","))
	}
	return strings.Join(parts, "|")
}

// Materialize replays the recorded operations onto a base select builder in
// insertion order. Errors surface here, not at record time.
func (s Scope) Materialize(base sq.SelectBuilder) (sq.SelectBuilder, error) {
	for _, op := range s.ops {
		switch op.Name {
		case opWhere:
			base = base.Where(sq.Expr(op.Expr, op.Args...))
		case opOrder:
			base = base.OrderBy(op.Expr)
		case opLimit:
			n, err := opRowCount(op)
			if err != nil {
				return base, err
			}
			base = base.Limit(n)
		case opOffset:
			n, err := opRowCount(op)
			if err != nil {
				return base, err
			}
			base = base.Offset(n)
		case opInvalid:
			return base, fmt.Errorf("scope: invalid expression: %s", op.Expr)
		default:
			return base, fmt.Errorf("scope: unsupported operation %q", op.Name)
		}
	}
	return base, nil
}

func opRowCount(op Op) (uint64, error) {
	if len(op.Args) != 1 {
		return 0, fmt.Errorf("scope: %s expects one argument, got %d", op.Name, len(op.Args))
	}
	n, ok := op.Args[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("scope: %s expects a row count, got %T", op.Name, op.Args[0])
	}
	return n, nil
}
