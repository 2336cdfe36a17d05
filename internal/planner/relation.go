package planner

import (
	"fmt"

	"aggbatch/internal/schema"
)

// ResolutionError reports a relation path that cannot be grouped. It is a
// configuration error: callers should not retry.
type ResolutionError struct {
	Table    string
	Relation string
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve relation %q on table %q: %s", e.Relation, e.Table, e.Reason)
}

// JoinPlan describes the through-hop of a many-to-many path.
type JoinPlan struct {
	JunctionTable        string
	JunctionLocalColumn  string // joins back to the parent key
	JunctionRemoteColumn string // joins forward to the target key
	TargetKeyColumn      string
}

// ResolvedPath carries everything a grouped query needs: the target rows,
// the parent-side key, the grouping column (on the target for direct paths,
// on the junction for through paths), and whether aggregation must
// deduplicate target rows.
type ResolvedPath struct {
	Parent           schema.Table
	Relation         schema.Relation
	Target           schema.Table
	LocalColumn      string
	GroupTable       string
	GroupColumn      string
	RequiresDistinct bool
	Join             *JoinPlan
}

// ResolvePath resolves a named relation on a table into a ResolvedPath.
// Only collection relations can be grouped; anything else is a
// ResolutionError.
func ResolvePath(s *schema.Schema, table schema.Table, relationName string) (ResolvedPath, error) {
	rel, ok := table.Relation(relationName)
	if !ok {
		return ResolvedPath{}, &ResolutionError{Table: table.Name, Relation: relationName, Reason: "relation not declared"}
	}
	if !rel.IsCollection() {
		return ResolvedPath{}, &ResolutionError{Table: table.Name, Relation: relationName, Reason: "relation is not a collection"}
	}
	if _, ok := table.Column(rel.LocalColumn); !ok {
		return ResolvedPath{}, &ResolutionError{
			Table:    table.Name,
			Relation: relationName,
			Reason:   fmt.Sprintf("local key column %q not found", rel.LocalColumn),
		}
	}
	target, err := s.Table(rel.RemoteTable)
	if err != nil {
		return ResolvedPath{}, &ResolutionError{
			Table:    table.Name,
			Relation: relationName,
			Reason:   fmt.Sprintf("target table %q not found", rel.RemoteTable),
		}
	}

	path := ResolvedPath{
		Parent:      table,
		Relation:    rel,
		Target:      target,
		LocalColumn: rel.LocalColumn,
	}

	switch rel.Kind {
	case schema.OneToMany:
		if _, ok := target.Column(rel.RemoteColumn); !ok {
			return ResolvedPath{}, &ResolutionError{
				Table:    table.Name,
				Relation: relationName,
				Reason:   fmt.Sprintf("target %q declares no foreign key column %q", target.Name, rel.RemoteColumn),
			}
		}
		path.GroupTable = target.Name
		path.GroupColumn = rel.RemoteColumn
		return path, nil

	case schema.ManyToManyThrough:
		if rel.JunctionTable == "" || rel.JunctionLocalColumn == "" || rel.JunctionRemoteColumn == "" {
			return ResolvedPath{}, &ResolutionError{
				Table:    table.Name,
				Relation: relationName,
				Reason:   "through relation is missing its junction mapping",
			}
		}
		if _, err := s.Table(rel.JunctionTable); err != nil {
			return ResolvedPath{}, &ResolutionError{
				Table:    table.Name,
				Relation: relationName,
				Reason:   fmt.Sprintf("junction table %q not found", rel.JunctionTable),
			}
		}
		if _, ok := target.Column(rel.RemoteColumn); !ok {
			return ResolvedPath{}, &ResolutionError{
				Table:    table.Name,
				Relation: relationName,
				Reason:   fmt.Sprintf("target %q declares no key column %q connecting it to junction %q", target.Name, rel.RemoteColumn, rel.JunctionTable),
			}
		}
		path.GroupTable = rel.JunctionTable
		path.GroupColumn = rel.JunctionLocalColumn
		path.RequiresDistinct = true
		path.Join = &JoinPlan{
			JunctionTable:        rel.JunctionTable,
			JunctionLocalColumn:  rel.JunctionLocalColumn,
			JunctionRemoteColumn: rel.JunctionRemoteColumn,
			TargetKeyColumn:      rel.RemoteColumn,
		}
		return path, nil

	default:
		return ResolvedPath{}, &ResolutionError{Table: table.Name, Relation: relationName, Reason: "unsupported relation kind"}
	}
}
