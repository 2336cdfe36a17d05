package planner

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeAppendIsPure(t *testing.T) {
	base := Scope{}.Where("kind = ?", "Even")

	withOrder := base.OrderBy("score DESC")
	withLimit := base.Limit(10)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, withOrder.Len())
	assert.Equal(t, 2, withLimit.Len())
	assert.NotEqual(t, withOrder.Key(), withLimit.Key())
}

func TestScopeKey(t *testing.T) {
	t.Run("empty scope has empty key", func(t *testing.T) {
		assert.Equal(t, "", Scope{}.Key())
	})

	t.Run("same operations same key", func(t *testing.T) {
		a := Scope{}.Where("kind = ?", "Even").OrderBy("score")
		b := Scope{}.Where("kind = ?", "Even").OrderBy("score")
		assert.Equal(t, a.Key(), b.Key())
	})

	t.Run("operation order is significant", func(t *testing.T) {
		a := Scope{}.Where("kind = ?", "Even").Where("score > ?", 3)
		b := Scope{}.Where("score > ?", 3).Where("kind = ?", "Even")
		assert.NotEqual(t, a.Key(), b.Key())
	})

	t.Run("arguments are significant", func(t *testing.T) {
		a := Scope{}.Where("kind = ?", "Even")
		b := Scope{}.Where("kind = ?", "Odd")
		assert.NotEqual(t, a.Key(), b.Key())
	})

	t.Run("argument boundaries are significant", func(t *testing.T) {
		a := Scope{}.Where("kind IN (?, ?)", "a,b")
		b := Scope{}.Where("kind IN (?, ?)", "a", "b")
		assert.NotEqual(t, a.Key(), b.Key())
	})
}

func TestScopeMaterialize(t *testing.T) {
	t.Run("replays operations in order", func(t *testing.T) {
		scope := Scope{}.Where("kind = ?", "Even").OrderBy("score DESC").Limit(5).Offset(2)

		base := sq.Select("*").From("`comments`")
		built, err := scope.Materialize(base)
		require.NoError(t, err)

		sqlText, args, err := built.PlaceholderFormat(sq.Question).ToSql()
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM `comments` WHERE kind = ? ORDER BY score DESC LIMIT 5 OFFSET 2", sqlText)
		assert.Equal(t, []interface{}{"Even"}, args)
	})

	t.Run("squirrel expressions render at record time", func(t *testing.T) {
		scope := Scope{}.WhereExpr(sq.Eq{"kind": "Even"})

		built, err := scope.Materialize(sq.Select("*").From("`comments`"))
		require.NoError(t, err)

		sqlText, args, err := built.PlaceholderFormat(sq.Question).ToSql()
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM `comments` WHERE kind = ?", sqlText)
		assert.Equal(t, []interface{}{"Even"}, args)

		same := Scope{}.Where("kind = ?", "Even")
		assert.Equal(t, same.Key(), scope.Key())
	})

	t.Run("unknown operation fails", func(t *testing.T) {
		scope := Scope{}.Append(Op{Name: "pluck", Expr: "name"})
		_, err := scope.Materialize(sq.Select("*").From("`comments`"))
		assert.ErrorContains(t, err, "unsupported operation")
	})

	t.Run("malformed limit fails", func(t *testing.T) {
		scope := Scope{}.Append(Op{Name: "limit", Args: []interface{}{"ten"}})
		_, err := scope.Materialize(sq.Select("*").From("`comments`"))
		assert.ErrorContains(t, err, "row count")
	})
}
