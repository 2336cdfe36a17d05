package schema

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aggbatch/internal/dbexec"
)

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("aggbatch/schema")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Introspect discovers tables, columns, and foreign keys for a database from
// information_schema and derives relation metadata from them. Composite-key
// foreign keys are skipped with a warning; the loader operates on
// single-column keys.
func Introspect(ctx context.Context, exec dbexec.QueryExecutor, databaseName string) (*Schema, error) {
	ctx, span := startSpan(ctx, "schema.introspect",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	names, err := tableNames(ctx, exec, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s := &Schema{Name: databaseName}
	for _, name := range names {
		columns, err := tableColumns(ctx, exec, databaseName, name)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		fks, err := tableForeignKeys(ctx, exec, databaseName, name)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		s.Tables = append(s.Tables, Table{Name: name, Columns: columns, ForeignKeys: fks})
	}

	DeriveRelations(s)
	span.SetAttributes(attribute.Int("schema.table_count", len(s.Tables)))
	return s, nil
}

func tableNames(ctx context.Context, exec dbexec.QueryExecutor, databaseName string) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	rows, err := exec.QueryContext(ctx, query, databaseName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func tableColumns(ctx context.Context, exec dbexec.QueryExecutor, databaseName, tableName string) ([]Column, error) {
	query := `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := exec.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var name, dataType, isNullable, columnKey string
		if err := rows.Scan(&name, &dataType, &isNullable, &columnKey); err != nil {
			return nil, err
		}
		columns = append(columns, Column{
			Name:         name,
			DataType:     dataType,
			IsNullable:   strings.EqualFold(isNullable, "YES"),
			IsPrimaryKey: strings.EqualFold(columnKey, "PRI"),
		})
	}
	return columns, rows.Err()
}

func tableForeignKeys(ctx context.Context, exec dbexec.QueryExecutor, databaseName, tableName string) ([]ForeignKey, error) {
	query := `
		SELECT CONSTRAINT_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`
	rows, err := exec.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var all []ForeignKey
	perConstraint := make(map[string]int)
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		perConstraint[fk.ConstraintName]++
		all = append(all, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fks := make([]ForeignKey, 0, len(all))
	warned := make(map[string]struct{})
	for _, fk := range all {
		if perConstraint[fk.ConstraintName] > 1 {
			if _, seen := warned[fk.ConstraintName]; !seen {
				warned[fk.ConstraintName] = struct{}{}
				slog.Default().Warn("skipping unsupported composite foreign key",
					"table", tableName,
					"constraint", fk.ConstraintName,
					"referenced_table", fk.ReferencedTable,
				)
			}
			continue
		}
		fks = append(fks, fk)
	}
	return fks, nil
}
