package schema

import "sort"

// JunctionType classifies how a junction table participates in relations.
type JunctionType int

const (
	// NotJunction indicates the table is not a junction table.
	NotJunction JunctionType = iota
	// PureJunction indicates a junction with only FK (and PK) columns.
	PureJunction
	// AttributeJunction indicates a junction carrying extra columns of its own.
	AttributeJunction
)

func (t JunctionType) String() string {
	switch t {
	case NotJunction:
		return "NotJunction"
	case PureJunction:
		return "PureJunction"
	case AttributeJunction:
		return "AttributeJunction"
	default:
		return "Unknown"
	}
}

// JunctionInfo describes a detected junction table. LeftFK/RightFK are
// ordered alphabetically by referenced table for determinism.
type JunctionInfo struct {
	Table            string
	Type             JunctionType
	LeftFK           ForeignKey
	RightFK          ForeignKey
	AttributeColumns []string
}

// ClassifyJunction inspects a table and reports whether it is a junction.
// A table qualifies when it has exactly two single-column FKs on distinct
// columns; both may reference the same table, which forms a self-junction
// such as a "follows" edge. If every non-key column belongs to an FK it is
// a pure junction; otherwise it carries attributes.
func ClassifyJunction(table Table) (JunctionInfo, bool) {
	if len(table.ForeignKeys) != 2 {
		return JunctionInfo{}, false
	}

	fks := make([]ForeignKey, 2)
	copy(fks, table.ForeignKeys)
	sort.Slice(fks, func(i, j int) bool {
		if fks[i].ReferencedTable != fks[j].ReferencedTable {
			return fks[i].ReferencedTable < fks[j].ReferencedTable
		}
		return fks[i].ColumnName < fks[j].ColumnName
	})
	if fks[0].ReferencedTable == fks[1].ReferencedTable {
		// Self-pairs (e.g. a "follows" edge) still form a junction; both
		// sides point at the same table.
		if fks[0].ColumnName == fks[1].ColumnName {
			return JunctionInfo{}, false
		}
	}

	fkColumns := map[string]struct{}{
		fks[0].ColumnName: {},
		fks[1].ColumnName: {},
	}

	var attributes []string
	for _, col := range table.Columns {
		if _, ok := fkColumns[col.Name]; ok {
			continue
		}
		if col.IsPrimaryKey {
			continue
		}
		attributes = append(attributes, col.Name)
	}

	info := JunctionInfo{
		Table:            table.Name,
		Type:             PureJunction,
		LeftFK:           fks[0],
		RightFK:          fks[1],
		AttributeColumns: attributes,
	}
	if len(attributes) > 0 {
		info.Type = AttributeJunction
	}
	return info, true
}

// DetectJunctions classifies every table in the schema.
func DetectJunctions(s *Schema) map[string]JunctionInfo {
	junctions := make(map[string]JunctionInfo)
	for _, table := range s.Tables {
		if info, ok := ClassifyJunction(table); ok {
			junctions[table.Name] = info
		}
	}
	return junctions
}
