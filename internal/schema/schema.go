// Package schema models the relational metadata the aggregation loader works
// from: tables, columns, foreign keys, and the relations derived from them.
// Metadata can be declared directly or discovered from information_schema.
package schema

import "fmt"

// Column represents a database column.
type Column struct {
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
}

// ForeignKey represents a single-column foreign key constraint.
type ForeignKey struct {
	ConstraintName   string
	ColumnName       string // e.g., "customer_id"
	ReferencedTable  string // e.g., "customers"
	ReferencedColumn string // e.g., "id"
}

// RelationKind distinguishes the shapes of a derived relation.
type RelationKind int

const (
	// ManyToOne points from a child row to its single parent.
	ManyToOne RelationKind = iota
	// OneToMany points from a parent to the child rows holding its key.
	OneToMany
	// ManyToManyThrough reaches target rows via an intermediate junction table.
	ManyToManyThrough
)

func (k RelationKind) String() string {
	switch k {
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToManyThrough:
		return "many_to_many_through"
	default:
		return "unknown"
	}
}

// Relation describes how a table reaches a related row set.
//
// For OneToMany, RemoteColumn is the FK column on the remote table and
// LocalColumn the referenced key on this table. For ManyToManyThrough,
// the junction fields describe both hops: JunctionLocalColumn joins back to
// LocalColumn, JunctionRemoteColumn joins forward to RemoteColumn (the
// target table's key).
type Relation struct {
	Kind                 RelationKind
	FieldName            string
	LocalColumn          string
	RemoteTable          string
	RemoteColumn         string
	JunctionTable        string
	JunctionLocalColumn  string
	JunctionRemoteColumn string
}

// IsCollection reports whether the relation yields many rows per parent.
func (r Relation) IsCollection() bool {
	return r.Kind == OneToMany || r.Kind == ManyToManyThrough
}

// Table represents a database table with its derived relations.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
	Relations   []Relation
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// PrimaryKeyColumn returns the table's primary key when it is a single column.
func (t Table) PrimaryKeyColumn() (Column, bool) {
	var pk Column
	found := false
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			if found {
				return Column{}, false
			}
			pk = col
			found = true
		}
	}
	return pk, found
}

// Relation returns the relation with the given field name.
func (t Table) Relation(fieldName string) (Relation, bool) {
	for _, rel := range t.Relations {
		if rel.FieldName == fieldName {
			return rel, true
		}
	}
	return Relation{}, false
}

// Schema holds the tables of one database.
type Schema struct {
	Name   string
	Tables []Table
}

// Table returns the named table.
func (s *Schema) Table(name string) (Table, error) {
	for _, table := range s.Tables {
		if table.Name == name {
			return table, nil
		}
	}
	return Table{}, fmt.Errorf("table %s not found in schema %s", name, s.Name)
}
