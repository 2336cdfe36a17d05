package schema

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// ManyToOneFieldName derives the field name for a child-to-parent relation
// from its FK column: "customer_id" becomes "customer".
func ManyToOneFieldName(fkColumn string) string {
	name := strings.TrimSuffix(fkColumn, "_id")
	if name == "" {
		name = fkColumn
	}
	return inflection.Singular(name)
}

// CollectionFieldName derives the field name for a parent-to-children
// relation from the child table name: "order_items" stays plural.
func CollectionFieldName(remoteTable string) string {
	return inflection.Plural(remoteTable)
}

// OneToManyFieldName derives the field name for a one-to-many relation.
// When the child holds a single FK to the parent the plural child table
// name is used directly. When the child holds several FKs to the same
// parent each edge is prefixed with its FK column so all of them stay
// addressable: users with posts(author_id, editor_id) get "author_posts"
// and "editor_posts".
func OneToManyFieldName(remoteTable, fkColumn string, isOnlyFK bool) string {
	if isOnlyFK {
		return CollectionFieldName(remoteTable)
	}
	return ManyToOneFieldName(fkColumn) + "_" + CollectionFieldName(remoteTable)
}

// ThroughFieldName derives the field name for a through-relation from the
// far table name, pluralized.
func ThroughFieldName(targetTable string) string {
	return inflection.Plural(targetTable)
}
