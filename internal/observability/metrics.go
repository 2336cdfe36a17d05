package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BatchMetrics holds custom metrics for batched aggregation queries
type BatchMetrics struct {
	parentCount  metric.Int64Histogram
	resultRows   metric.Int64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	queriesSaved metric.Int64Counter
}

// InitBatchMetrics initializes the aggregation batching metrics
func InitBatchMetrics() (*BatchMetrics, error) {
	meter := otel.Meter("aggbatch")

	parentCount, err := meter.Int64Histogram(
		"aggbatch.batch.parent_count",
		metric.WithDescription("Number of parent keys included in a batch query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"aggbatch.batch.result_rows",
		metric.WithDescription("Number of rows returned by a batch query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"aggbatch.batch.cache_hits",
		metric.WithDescription("Number of batch cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"aggbatch.batch.cache_misses",
		metric.WithDescription("Number of batch cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache misses counter: %w", err)
	}

	queriesSaved, err := meter.Int64Counter(
		"aggbatch.batch.queries_saved",
		metric.WithDescription("Number of per-parent queries avoided by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}

	return &BatchMetrics{
		parentCount:  parentCount,
		resultRows:   resultRows,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
		queriesSaved: queriesSaved,
	}, nil
}

func (m *BatchMetrics) RecordParentCount(ctx context.Context, count int64, relationType string) {
	m.parentCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *BatchMetrics) RecordResultRows(ctx context.Context, count int64, relationType string) {
	m.resultRows.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *BatchMetrics) RecordCacheHit(ctx context.Context, relationType string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *BatchMetrics) RecordCacheMiss(ctx context.Context, relationType string) {
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *BatchMetrics) RecordQueriesSaved(ctx context.Context, count int64, relationType string) {
	if count <= 0 {
		return
	}
	m.queriesSaved.Add(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

// InitMetrics initializes all custom metrics and returns the BatchMetrics instance
func InitMetrics(logger *slog.Logger) (*BatchMetrics, error) {
	metrics, err := InitBatchMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize batch metrics: %w", err)
	}

	logger.Info("custom batch metrics initialized")
	return metrics, nil
}
