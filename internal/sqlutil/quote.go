// Package sqlutil provides SQL identifier helpers shared by the planner.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualify returns a quoted table.column reference.
func Qualify(table, column string) string {
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}
