package loader

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggbatch/internal/planner"
)

func TestChainingIsSideEffectFree(t *testing.T) {
	l, mock := newTestLoader(t, postBatch(1))
	ctx := context.Background()

	base := l.ProxyFor(Row{"id": int64(1)}, "comments")
	filtered := base.Where("kind = ?", "Even")

	mock.ExpectQuery(regexp.QuoteMeta("IN (?) AND kind = ?")).
		WithArgs(int64(1), "Even").
		WillReturnRows(sqlmock.NewRows([]string{"__group_key", "__agg_value"}).
			AddRow(int64(1), int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("IN (?)) AS __agg")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"__group_key", "__agg_value"}).
			AddRow(int64(1), int64(5)))

	n, err := filtered.Count(ctx, "*")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// The base proxy kept its empty scope, so this is a second descriptor.
	n, err = base.Count(ctx, "*")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	assert.EqualValues(t, 2, l.CacheMisses())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChainOrderDistinguishesDescriptors(t *testing.T) {
	l, mock := newTestLoader(t, postBatch(1))
	ctx := context.Background()

	rows := func(n int64) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"__group_key", "__agg_value"}).AddRow(int64(1), n)
	}
	// Both chains render identical SQL; they still batch separately because
	// the descriptor key preserves operation order.
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY score")).WillReturnRows(rows(2))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY score")).WillReturnRows(rows(2))

	a := l.ProxyFor(Row{"id": int64(1)}, "comments").Where("kind = ?", "Even").OrderBy("score")
	b := l.ProxyFor(Row{"id": int64(1)}, "comments").OrderBy("score").Where("kind = ?", "Even")

	_, err := a.Count(ctx, "*")
	require.NoError(t, err)
	_, err = b.Count(ctx, "*")
	require.NoError(t, err)

	assert.EqualValues(t, 2, l.QueriesExecuted())
	assert.EqualValues(t, 2, l.CacheMisses())
	assert.EqualValues(t, 0, l.CacheHits())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionErrorSurfacesAtAggregation(t *testing.T) {
	l, _ := newTestLoader(t, postBatch(1))
	ctx := context.Background()

	// Obtaining the proxy never validates the relation.
	proxy := l.ProxyFor(Row{"id": int64(1)}, "reviews")

	_, err := proxy.Count(ctx, "*")
	var resErr *planner.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "reviews", resErr.Relation)
	assert.EqualValues(t, 0, l.QueriesExecuted())
}

func TestMinMaxReportPresence(t *testing.T) {
	l, mock := newTestLoader(t, postBatch(1, 2))
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("MAX(`score`) AS __agg_value")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"__group_key", "__agg_value"}).
			AddRow(int64(1), int64(42)))

	value, ok, err := l.ProxyFor(Row{"id": int64(1)}, "comments").Max(ctx, "score")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 42, value)

	_, ok, err = l.ProxyFor(Row{"id": int64(2)}, "comments").Max(ctx, "score")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAsyncAggregationDefersTheQuery(t *testing.T) {
	l, mock := newTestLoader(t, postBatch(1))
	ctx := context.Background()

	deferred := l.ProxyFor(Row{"id": int64(1)}, "comments").AsyncCount(ctx, "*")
	assert.EqualValues(t, 0, l.QueriesExecuted(), "creating a deferred must not query")

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) AS __agg_value")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"__group_key", "__agg_value"}).
			AddRow(int64(1), int64(7)))

	value, present, err := deferred.Value()
	require.NoError(t, err)
	assert.True(t, present)
	assert.EqualValues(t, 7, value)

	// Re-reading resolves from the deferred's own memo.
	value, present, err = deferred.Value()
	require.NoError(t, err)
	assert.True(t, present)
	assert.EqualValues(t, 7, value)

	assert.EqualValues(t, 1, l.QueriesExecuted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowsMaterializesOneParent(t *testing.T) {
	l, mock := newTestLoader(t, postBatch(7))
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT `comments`.`id`, `comments`.`post_id`, `comments`.`kind`, `comments`.`score` "+
			"FROM `comments` WHERE `comments`.`post_id` = ? AND kind = ? ORDER BY score")).
		WithArgs(int64(7), "Odd").
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "kind", "score"}).
			AddRow(int64(1), int64(7), []byte("Odd"), int64(3)).
			AddRow(int64(2), int64(7), []byte("Odd"), int64(9)))

	rows, err := l.ProxyFor(Row{"id": int64(7)}, "comments").
		Where("kind = ?", "Odd").
		OrderBy("score").
		Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Odd", rows[0]["kind"])
	assert.EqualValues(t, 3, rows[0]["score"])
	assert.EqualValues(t, 9, rows[1]["score"])
}

func TestReduceAndCountByFoldPerParent(t *testing.T) {
	l, mock := newTestLoader(t, postBatch(7))
	ctx := context.Background()

	commentRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "post_id", "kind", "score"}).
			AddRow(int64(1), int64(7), "Odd", int64(3)).
			AddRow(int64(2), int64(7), "Even", int64(4)).
			AddRow(int64(3), int64(7), "Odd", int64(9))
	}
	// Per-row computation bypasses the batch cache, one query per call.
	mock.ExpectQuery(regexp.QuoteMeta("FROM `comments` WHERE `comments`.`post_id` = ?")).
		WithArgs(int64(7)).
		WillReturnRows(commentRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM `comments` WHERE `comments`.`post_id` = ?")).
		WithArgs(int64(7)).
		WillReturnRows(commentRows())

	proxy := l.ProxyFor(Row{"id": int64(7)}, "comments")

	total, err := proxy.Reduce(ctx, int64(0), func(acc interface{}, row Row) interface{} {
		return acc.(int64) + row["score"].(int64)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 16, total)

	odd, err := proxy.CountBy(ctx, func(row Row) bool {
		return row["kind"] == "Odd"
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, odd)

	assert.EqualValues(t, 2, l.QueriesExecuted())
	assert.NoError(t, mock.ExpectationsWereMet())
}
