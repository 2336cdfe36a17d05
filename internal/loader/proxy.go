package loader

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"aggbatch/internal/planner"
)

// Proxy stands in for one parent's relation. Chain methods refine the
// relation scope without touching the database; aggregate methods resolve
// against the loader's shared batch cache. Proxies are immutable, so a
// chained call returns a new Proxy and the receiver stays reusable.
type Proxy struct {
	loader   *Loader
	parent   Row
	relation string
	scope    planner.Scope
}

func (p *Proxy) withScope(scope planner.Scope) *Proxy {
	return &Proxy{loader: p.loader, parent: p.parent, relation: p.relation, scope: scope}
}

// Where appends a SQL condition over the relation's columns.
func (p *Proxy) Where(expr string, args ...interface{}) *Proxy {
	return p.withScope(p.scope.Where(expr, args...))
}

// WhereExpr appends a squirrel expression as a condition.
func (p *Proxy) WhereExpr(expr sq.Sqlizer) *Proxy {
	return p.withScope(p.scope.WhereExpr(expr))
}

// OrderBy appends an ordering applied inside the scoped row set.
func (p *Proxy) OrderBy(expr string) *Proxy {
	return p.withScope(p.scope.OrderBy(expr))
}

// Limit caps the scoped row set before aggregation.
func (p *Proxy) Limit(n uint64) *Proxy {
	return p.withScope(p.scope.Limit(n))
}

// Offset skips leading rows of the scoped row set before aggregation.
func (p *Proxy) Offset(n uint64) *Proxy {
	return p.withScope(p.scope.Offset(n))
}

// aggregate resolves the relation path, fetches (or joins) the batched
// result for this descriptor, and looks up this parent's value. ok reports
// whether the parent had any matching rows.
func (p *Proxy) aggregate(ctx context.Context, fn planner.AggregateFunc, column string) (interface{}, bool, error) {
	path, err := planner.ResolvePath(p.loader.schema, p.loader.table, p.relation)
	if err != nil {
		return nil, false, err
	}

	key := p.descriptorKey(path, fn, column)
	mapping, hit, err := p.loader.cache.getOrCompute(key, func() (ResultMapping, error) {
		return p.loader.executeGrouped(ctx, path, p.scope, fn, column)
	})
	if m := p.loader.metrics; m != nil {
		kind := path.Relation.Kind.String()
		if hit {
			m.RecordCacheHit(ctx, kind)
		} else {
			m.RecordCacheMiss(ctx, kind)
		}
	}
	if err != nil {
		return nil, false, err
	}

	value, ok := mapping[normalizeKey(p.parent[path.LocalColumn])]
	return value, ok, nil
}

// Count reports the number of related rows matching the chain. Pass
// planner.Wildcard to count rows rather than a column. Through relations
// count distinct target rows, so duplicate junction entries do not inflate
// the result.
func (p *Proxy) Count(ctx context.Context, column string) (int64, error) {
	value, ok, err := p.aggregate(ctx, planner.FuncCount, column)
	if err != nil || !ok {
		return 0, err
	}
	return value.(int64), nil
}

// Sum totals column over the matching rows. A parent with no matching rows
// sums to zero.
func (p *Proxy) Sum(ctx context.Context, column string) (float64, error) {
	value, ok, err := p.aggregate(ctx, planner.FuncSum, column)
	if err != nil || !ok {
		return 0, err
	}
	return value.(float64), nil
}

// Avg averages column over the matching rows. ok is false when the parent
// has no matching rows; an average of nothing has no meaningful zero.
func (p *Proxy) Avg(ctx context.Context, column string) (float64, bool, error) {
	value, ok, err := p.aggregate(ctx, planner.FuncAvg, column)
	if err != nil || !ok {
		return 0, false, err
	}
	return value.(float64), true, nil
}

// Min returns the smallest column value among the matching rows. ok is
// false when the parent has no matching rows.
func (p *Proxy) Min(ctx context.Context, column string) (interface{}, bool, error) {
	return p.aggregate(ctx, planner.FuncMin, column)
}

// Max returns the largest column value among the matching rows. ok is
// false when the parent has no matching rows.
func (p *Proxy) Max(ctx context.Context, column string) (interface{}, bool, error) {
	return p.aggregate(ctx, planner.FuncMax, column)
}

// Exists reports whether the parent has any matching rows.
func (p *Proxy) Exists(ctx context.Context) (bool, error) {
	_, ok, err := p.aggregate(ctx, planner.FuncExists, planner.Wildcard)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// AsyncCount defers the count until its Value is read. The batched query
// still runs at most once per descriptor across the whole batch.
func (p *Proxy) AsyncCount(ctx context.Context, column string) *Deferred {
	return newDeferred(func() (interface{}, bool, error) {
		n, err := p.Count(ctx, column)
		return n, err == nil, err
	})
}

// AsyncSum defers the sum until its Value is read.
func (p *Proxy) AsyncSum(ctx context.Context, column string) *Deferred {
	return newDeferred(func() (interface{}, bool, error) {
		total, err := p.Sum(ctx, column)
		return total, err == nil, err
	})
}

// AsyncAvg defers the average until its Value is read.
func (p *Proxy) AsyncAvg(ctx context.Context, column string) *Deferred {
	return newDeferred(func() (interface{}, bool, error) {
		avg, ok, err := p.Avg(ctx, column)
		return avg, ok, err
	})
}

// AsyncExists defers the existence check until its Value is read.
func (p *Proxy) AsyncExists(ctx context.Context) *Deferred {
	return newDeferred(func() (interface{}, bool, error) {
		exists, err := p.Exists(ctx)
		return exists, err == nil, err
	})
}

// Rows materializes the relation rows for this parent with the chained
// scope applied. Unlike the aggregate methods this issues one query per
// parent.
func (p *Proxy) Rows(ctx context.Context) ([]Row, error) {
	path, err := planner.ResolvePath(p.loader.schema, p.loader.table, p.relation)
	if err != nil {
		return nil, err
	}
	return p.loader.relationRows(ctx, path, p.scope, p.parent[path.LocalColumn])
}

// Reduce folds the relation rows for this parent through fold. Arbitrary
// per-row computation cannot be expressed as a grouped aggregate, so this
// materializes the rows for this parent only.
func (p *Proxy) Reduce(ctx context.Context, initial interface{}, fold func(acc interface{}, row Row) interface{}) (interface{}, error) {
	rows, err := p.Rows(ctx)
	if err != nil {
		return nil, err
	}
	acc := initial
	for _, row := range rows {
		acc = fold(acc, row)
	}
	return acc, nil
}

// CountBy counts the relation rows for this parent satisfying pred. Like
// Reduce it materializes the rows rather than batching.
func (p *Proxy) CountBy(ctx context.Context, pred func(row Row) bool) (int64, error) {
	rows, err := p.Rows(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range rows {
		if pred(row) {
			n++
		}
	}
	return n, nil
}
