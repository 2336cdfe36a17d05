package schema

import "log/slog"

// DeriveRelations builds bidirectional relation metadata from foreign keys:
// many-to-one for every FK, one-to-many in the reverse direction, and
// many-to-many-through for pure junction tables. Pure junctions do not
// surface as one-to-many collections; they are reached through their
// endpoints. Attribute junctions keep their one-to-many edges because
// their rows carry data of their own.
func DeriveRelations(s *Schema) {
	junctions := DetectJunctions(s)

	tableByName := make(map[string]*Table, len(s.Tables))
	for i := range s.Tables {
		tableByName[s.Tables[i].Name] = &s.Tables[i]
	}

	// FKs per (child, parent) pair, so field names can disambiguate when a
	// child references the same parent more than once.
	fkCount := make(map[string]map[string]int, len(s.Tables))
	for i := range s.Tables {
		table := &s.Tables[i]
		counts := make(map[string]int, len(table.ForeignKeys))
		for _, fk := range table.ForeignKeys {
			counts[fk.ReferencedTable]++
		}
		fkCount[table.Name] = counts
	}

	// Many-to-one from each FK column. Junction tables keep these so the
	// loader can fall back to enumerating junction rows.
	for i := range s.Tables {
		table := &s.Tables[i]
		for _, fk := range table.ForeignKeys {
			referenced, ok := tableByName[fk.ReferencedTable]
			if !ok {
				slog.Default().Warn("skipping relation for foreign key with unknown referenced table",
					"table", table.Name,
					"constraint", fk.ConstraintName,
					"referenced_table", fk.ReferencedTable,
				)
				continue
			}
			table.Relations = append(table.Relations, Relation{
				Kind:         ManyToOne,
				FieldName:    ManyToOneFieldName(fk.ColumnName),
				LocalColumn:  fk.ColumnName,
				RemoteTable:  referenced.Name,
				RemoteColumn: fk.ReferencedColumn,
			})
		}
	}

	// One-to-many in the reverse direction, skipping pure junction sources:
	// a pure junction's rows are exposed as through-relations instead.
	for i := range s.Tables {
		table := &s.Tables[i]
		for j := range s.Tables {
			other := &s.Tables[j]
			if jc, ok := junctions[other.Name]; ok && jc.Type == PureJunction {
				continue
			}
			isOnlyFK := fkCount[other.Name][table.Name] == 1
			for _, fk := range other.ForeignKeys {
				if fk.ReferencedTable != table.Name {
					continue
				}
				table.Relations = append(table.Relations, Relation{
					Kind:         OneToMany,
					FieldName:    OneToManyFieldName(other.Name, fk.ColumnName, isOnlyFK),
					LocalColumn:  fk.ReferencedColumn,
					RemoteTable:  other.Name,
					RemoteColumn: fk.ColumnName,
				})
			}
		}
	}

	// Many-to-many-through for each pure junction, both directions.
	for _, jc := range junctions {
		if jc.Type != PureJunction {
			continue
		}
		left := tableByName[jc.LeftFK.ReferencedTable]
		right := tableByName[jc.RightFK.ReferencedTable]
		if left == nil || right == nil {
			slog.Default().Warn("skipping junction with unknown endpoint table",
				"junction", jc.Table,
				"left_table", jc.LeftFK.ReferencedTable,
				"right_table", jc.RightFK.ReferencedTable,
			)
			continue
		}

		left.Relations = append(left.Relations, Relation{
			Kind:                 ManyToManyThrough,
			FieldName:            ThroughFieldName(right.Name),
			LocalColumn:          jc.LeftFK.ReferencedColumn,
			RemoteTable:          right.Name,
			RemoteColumn:         jc.RightFK.ReferencedColumn,
			JunctionTable:        jc.Table,
			JunctionLocalColumn:  jc.LeftFK.ColumnName,
			JunctionRemoteColumn: jc.RightFK.ColumnName,
		})
		if left == right {
			continue
		}
		right.Relations = append(right.Relations, Relation{
			Kind:                 ManyToManyThrough,
			FieldName:            ThroughFieldName(left.Name),
			LocalColumn:          jc.RightFK.ReferencedColumn,
			RemoteTable:          left.Name,
			RemoteColumn:         jc.LeftFK.ReferencedColumn,
			JunctionTable:        jc.Table,
			JunctionLocalColumn:  jc.RightFK.ColumnName,
			JunctionRemoteColumn: jc.LeftFK.ColumnName,
		})
	}
}
