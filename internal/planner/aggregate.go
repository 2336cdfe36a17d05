package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"aggbatch/internal/schema"
	"aggbatch/internal/sqlutil"
)

// AggregateFunc names a grouped aggregate computation.
type AggregateFunc string

const (
	FuncCount  AggregateFunc = "count"
	FuncSum    AggregateFunc = "sum"
	FuncAvg    AggregateFunc = "avg"
	FuncMin    AggregateFunc = "min"
	FuncMax    AggregateFunc = "max"
	FuncExists AggregateFunc = "exists"
)

// AggregateValueType indicates how to scan an aggregate result value.
type AggregateValueType int

const (
	// AggregateInt is for COUNT, COUNT DISTINCT - always an integer.
	AggregateInt AggregateValueType = iota
	// AggregateFloat is for AVG, SUM - returns float (nullable).
	AggregateFloat
	// AggregateAny is for MIN, MAX - can be any comparable type.
	AggregateAny
	// AggregateBool is for EXISTS - group membership.
	AggregateBool
)

// ValueType returns how results of this function scan.
func (f AggregateFunc) ValueType() AggregateValueType {
	switch f {
	case FuncCount:
		return AggregateInt
	case FuncSum, FuncAvg:
		return AggregateFloat
	case FuncExists:
		return AggregateBool
	default:
		return AggregateAny
	}
}

const (
	// GroupKeyAlias names the projected parent-facing key in grouped queries.
	GroupKeyAlias = "__group_key"
	// ValueAlias names the projected aggregate value.
	ValueAlias = "__agg_value"
	// Wildcard is the column sentinel meaning "whole row".
	Wildcard = "*"
)

// SQLQuery pairs a SQL string with its positional arguments.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// PlanGroupedAggregate builds the single grouped query for one descriptor:
// the parent-facing key is projected as GroupKeyAlias, the row set is scoped
// to parentValues and the replayed scope inside a subquery (so order/limit
// filter the dataset, not the aggregate result), and the aggregate is applied
// per group outside.
//
// For exists the plan is a distinct projection of group keys rather than a
// count. For count over a through path the aggregate deduplicates by the
// target key, so join-row duplication never inflates the result.
func PlanGroupedAggregate(path ResolvedPath, parentValues []interface{}, scope Scope, fn AggregateFunc, column string) (SQLQuery, error) {
	if len(parentValues) == 0 {
		return SQLQuery{}, nil
	}

	innerSQL, args, err := planScopedRowSet(path, parentValues, scope)
	if err != nil {
		return SQLQuery{}, err
	}

	if fn == FuncExists {
		query := fmt.Sprintf("SELECT DISTINCT %s FROM (%s) AS __agg", GroupKeyAlias, innerSQL)
		return SQLQuery{SQL: query, Args: args}, nil
	}

	expr, err := aggregateExpr(path, fn, column)
	if err != nil {
		return SQLQuery{}, err
	}
	query := fmt.Sprintf(
		"SELECT %s, %s AS %s FROM (%s) AS __agg GROUP BY %s",
		GroupKeyAlias, expr, ValueAlias, innerSQL, GroupKeyAlias,
	)
	return SQLQuery{SQL: query, Args: args}, nil
}

// planScopedRowSet builds the inner row set: target columns plus the aliased
// group key, joined through the junction when the path requires it.
func planScopedRowSet(path ResolvedPath, parentValues interface{}, scope Scope) (string, []interface{}, error) {
	groupCol := sqlutil.Qualify(path.GroupTable, path.GroupColumn)
	quotedTarget := sqlutil.QuoteIdentifier(path.Target.Name)

	base := sq.Select().
		Column(quotedTarget + ".*").
		Column(fmt.Sprintf("%s AS %s", groupCol, GroupKeyAlias)).
		From(quotedTarget)

	if path.Join != nil {
		join := fmt.Sprintf(
			"%s ON %s = %s",
			sqlutil.QuoteIdentifier(path.Join.JunctionTable),
			sqlutil.Qualify(path.Join.JunctionTable, path.Join.JunctionRemoteColumn),
			sqlutil.Qualify(path.Target.Name, path.Join.TargetKeyColumn),
		)
		base = base.InnerJoin(join)
	}

	base = base.Where(sq.Eq{groupCol: parentValues})
	base, err := scope.Materialize(base)
	if err != nil {
		return "", nil, err
	}
	return base.PlaceholderFormat(sq.Question).ToSql()
}

func aggregateExpr(path ResolvedPath, fn AggregateFunc, column string) (string, error) {
	switch fn {
	case FuncCount:
		if path.RequiresDistinct {
			// Count distinct target rows, not join rows.
			col := column
			if col == Wildcard {
				pk, ok := path.Target.PrimaryKeyColumn()
				if !ok {
					return "", &ResolutionError{
						Table:    path.Parent.Name,
						Relation: path.Relation.FieldName,
						Reason:   fmt.Sprintf("distinct count needs a concrete column and target %q has no single primary key", path.Target.Name),
					}
				}
				col = pk.Name
			}
			return fmt.Sprintf("COUNT(DISTINCT %s)", sqlutil.QuoteIdentifier(col)), nil
		}
		if column == Wildcard {
			return "COUNT(*)", nil
		}
		return fmt.Sprintf("COUNT(%s)", sqlutil.QuoteIdentifier(column)), nil

	case FuncSum, FuncAvg, FuncMin, FuncMax:
		sqlName := map[AggregateFunc]string{
			FuncSum: "SUM",
			FuncAvg: "AVG",
			FuncMin: "MIN",
			FuncMax: "MAX",
		}[fn]
		// The wildcard passes through unmodified; the database rejects it.
		col := column
		if col != Wildcard {
			col = sqlutil.QuoteIdentifier(col)
		}
		return fmt.Sprintf("%s(%s)", sqlName, col), nil

	default:
		return "", fmt.Errorf("unsupported aggregate function %q", fn)
	}
}

// PlanRelationRows builds the per-parent row query used when the loader
// falls back to materializing the real relation. The returned column list
// matches the SELECT order for scanning.
func PlanRelationRows(path ResolvedPath, parentValue interface{}, scope Scope) (SQLQuery, []schema.Column, error) {
	groupCol := sqlutil.Qualify(path.GroupTable, path.GroupColumn)
	quotedTarget := sqlutil.QuoteIdentifier(path.Target.Name)

	columns := path.Target.Columns
	selected := make([]string, len(columns))
	for i, col := range columns {
		selected[i] = sqlutil.Qualify(path.Target.Name, col.Name)
	}

	base := sq.Select(selected...).From(quotedTarget)
	if path.Join != nil {
		join := fmt.Sprintf(
			"%s ON %s = %s",
			sqlutil.QuoteIdentifier(path.Join.JunctionTable),
			sqlutil.Qualify(path.Join.JunctionTable, path.Join.JunctionRemoteColumn),
			sqlutil.Qualify(path.Target.Name, path.Join.TargetKeyColumn),
		)
		base = base.InnerJoin(join)
	}
	base = base.Where(sq.Eq{groupCol: parentValue})

	base, err := scope.Materialize(base)
	if err != nil {
		return SQLQuery{}, nil, err
	}
	sqlText, args, err := base.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, nil, err
	}
	return SQLQuery{SQL: sqlText, Args: args}, columns, nil
}
