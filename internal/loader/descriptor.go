package loader

import (
	"fmt"

	"aggbatch/internal/planner"
)

// descriptorKey identifies one batched aggregation: relation path identity,
// scope chain, function and column. Two proxies share a batch result only
// when every component matches, including the exact order of chained scope
// operations.
func (p *Proxy) descriptorKey(path planner.ResolvedPath, fn planner.AggregateFunc, column string) string {
	return fmt.Sprintf("%s|%s|%s|%s.%s|%s|%s|%s",
		p.loader.table.Name, p.relation, path.Target.Name,
		path.GroupTable, path.GroupColumn,
		p.scope.Key(), fn, column)
}
