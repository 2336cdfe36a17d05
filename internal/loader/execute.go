package loader

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"aggbatch/internal/dbexec"
	"aggbatch/internal/logging"
	"aggbatch/internal/planner"
	"aggbatch/internal/schema"
)

// executeGrouped runs one batched aggregation over every parent in the
// loader's batch and returns the group-key to value mapping. Parents absent
// from the mapping had no matching relation rows.
func (l *Loader) executeGrouped(ctx context.Context, path planner.ResolvedPath, scope planner.Scope, fn planner.AggregateFunc, column string) (ResultMapping, error) {
	ctx, span := startSpan(ctx, "loader.aggregate",
		attribute.String("db.sql.table", path.Target.Name),
		attribute.String("aggbatch.relation", path.Relation.FieldName),
		attribute.String("aggbatch.function", string(fn)),
	)
	defer span.End()

	kind := path.Relation.Kind.String()
	mapping := make(ResultMapping)

	parentValues := uniqueParentValues(l.parents, path.LocalColumn)
	if len(parentValues) == 0 {
		return mapping, nil
	}

	chunks := chunkValues(parentValues, l.maxInClause)
	if l.metrics != nil {
		l.metrics.RecordQueriesSaved(ctx, queriesSaved(len(parentValues), len(chunks)), kind)
		l.metrics.RecordParentCount(ctx, int64(len(parentValues)), kind)
	}

	var resultRows int64
	for _, chunk := range chunks {
		query, err := planner.PlanGroupedAggregate(path, chunk, scope, fn, column)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if query.SQL == "" {
			continue
		}

		l.queriesExecuted.Add(1)
		rows, err := l.exec.QueryContext(ctx, query.SQL, query.Args...)
		if err != nil {
			err = dbexec.NormalizeError(err)
			recordSpanError(span, err)
			return nil, err
		}
		scanned, err := scanAggregateRows(rows, fn.ValueType(), mapping)
		rows.Close()
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		resultRows += scanned
	}

	if l.metrics != nil {
		l.metrics.RecordResultRows(ctx, resultRows, kind)
	}
	span.SetAttributes(attribute.Int64("aggbatch.result_rows", resultRows))
	logging.FromContext(ctx).WithFields("relation", path.Relation.FieldName, "function", string(fn)).Debug(
		"batched aggregation complete",
		"parents", len(parentValues),
		"queries", len(chunks),
		"result_rows", resultRows,
	)
	return mapping, nil
}

func scanAggregateRows(rows dbexec.Rows, valueType planner.AggregateValueType, mapping ResultMapping) (int64, error) {
	var scanned int64
	for rows.Next() {
		if valueType == planner.AggregateBool {
			var key interface{}
			if err := rows.Scan(&key); err != nil {
				return scanned, err
			}
			mapping[normalizeKey(key)] = true
			scanned++
			continue
		}

		var key, raw interface{}
		if err := rows.Scan(&key, &raw); err != nil {
			return scanned, err
		}
		value, ok, err := convertAggregateValue(raw, valueType)
		if err != nil {
			return scanned, err
		}
		if !ok {
			// NULL aggregate over an empty or all-NULL group; the
			// parent keeps its absence default.
			continue
		}
		mapping[normalizeKey(key)] = value
		scanned++
	}
	return scanned, rows.Err()
}

func convertAggregateValue(raw interface{}, valueType planner.AggregateValueType) (interface{}, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	switch valueType {
	case planner.AggregateInt:
		n, err := toInt64(raw)
		if err != nil {
			return nil, false, err
		}
		return n, true, nil
	case planner.AggregateFloat:
		f, err := toFloat64(raw)
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	default:
		if b, ok := raw.([]byte); ok {
			return string(b), true, nil
		}
		return raw, true, nil
	}
}

// relationRows materializes the relation rows for a single parent. This is
// the per-parent escape hatch behind Rows, Reduce and CountBy; it issues one
// query per call and bypasses the batch cache.
func (l *Loader) relationRows(ctx context.Context, path planner.ResolvedPath, scope planner.Scope, parentValue interface{}) ([]Row, error) {
	ctx, span := startSpan(ctx, "loader.relation_rows",
		attribute.String("db.sql.table", path.Target.Name),
		attribute.String("aggbatch.relation", path.Relation.FieldName),
	)
	defer span.End()

	query, columns, err := planner.PlanRelationRows(path, parentValue, scope)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	l.queriesExecuted.Add(1)
	rows, err := l.exec.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		err = dbexec.NormalizeError(err)
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	results, err := scanRelationRows(rows, columns)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("aggbatch.result_rows", len(results)))
	return results, nil
}

func scanRelationRows(rows dbexec.Rows, columns []schema.Column) ([]Row, error) {
	var results []Row
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[col.Name] = value
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
