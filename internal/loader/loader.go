// Package loader batches per-parent relation aggregations into grouped
// queries. A Loader is scoped to one parent batch (one request, one page of
// rows); proxies obtained from it share a result cache so that the same
// aggregation over the batch hits the database exactly once.
package loader

import (
	"sync/atomic"

	"aggbatch/internal/dbexec"
	"aggbatch/internal/observability"
	"aggbatch/internal/schema"
)

// Row is a loaded parent record keyed by column name.
type Row = map[string]interface{}

const defaultMaxInClause = 1000

// Loader coordinates batched aggregation for one batch of parent rows.
type Loader struct {
	schema  *schema.Schema
	table   schema.Table
	exec    dbexec.QueryExecutor
	parents []Row

	cache       *resultCache
	metrics     *observability.BatchMetrics
	maxInClause int

	queriesExecuted atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithMetrics attaches batch metric instruments to the loader.
func WithMetrics(m *observability.BatchMetrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithMaxInClause caps the number of parent identifiers per IN clause.
// Batches above the cap are split into multiple grouped queries whose
// results are merged.
func WithMaxInClause(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxInClause = n
		}
	}
}

// New builds a Loader over one batch of parent rows from table.
func New(s *schema.Schema, table schema.Table, exec dbexec.QueryExecutor, parents []Row, opts ...Option) *Loader {
	l := &Loader{
		schema:      s,
		table:       table,
		exec:        exec,
		parents:     parents,
		cache:       newResultCache(),
		maxInClause: defaultMaxInClause,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProxyFor returns a relation proxy for one parent row. It performs no
// database work and no relation validation; both happen when an aggregation
// is requested.
func (l *Loader) ProxyFor(parent Row, relationName string) *Proxy {
	return &Proxy{loader: l, parent: parent, relation: relationName}
}

// QueriesExecuted reports how many grouped queries this loader has run.
func (l *Loader) QueriesExecuted() int64 { return l.queriesExecuted.Load() }

// CacheHits reports how many aggregations were served from a previously
// computed batch result.
func (l *Loader) CacheHits() int64 { return l.cache.Hits() }

// CacheMisses reports how many aggregations triggered a batch computation.
func (l *Loader) CacheMisses() int64 { return l.cache.Misses() }
