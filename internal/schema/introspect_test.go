package schema

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggbatch/internal/dbexec"
)

func TestIntrospect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).
			AddRow("comments").
			AddRow("posts"))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "comments").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_KEY"}).
			AddRow("id", "bigint", "NO", "PRI").
			AddRow("post_id", "bigint", "NO", "MUL").
			AddRow("kind", "varchar", "YES", ""))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "comments").
		WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("comments_ibfk_1", "post_id", "posts", "id"))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_KEY"}).
			AddRow("id", "bigint", "NO", "PRI").
			AddRow("title", "varchar", "NO", ""))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}))

	s, err := Introspect(context.Background(), dbexec.NewStandardExecutor(db), "blog")
	require.NoError(t, err)
	require.Len(t, s.Tables, 2)

	comments, err := s.Table("comments")
	require.NoError(t, err)
	require.Len(t, comments.ForeignKeys, 1)
	assert.Equal(t, "posts", comments.ForeignKeys[0].ReferencedTable)

	pk, ok := comments.PrimaryKeyColumn()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)

	posts, err := s.Table("posts")
	require.NoError(t, err)
	rel, ok := posts.Relation("comments")
	require.True(t, ok)
	assert.Equal(t, OneToMany, rel.Kind)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntrospectSkipsCompositeForeignKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("warehouse").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("shipments"))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("warehouse", "shipments").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_KEY"}).
			AddRow("id", "bigint", "NO", "PRI").
			AddRow("region", "varchar", "NO", "MUL").
			AddRow("depot", "varchar", "NO", "MUL"))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("warehouse", "shipments").
		WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("shipments_ibfk_1", "region", "depots", "region").
			AddRow("shipments_ibfk_1", "depot", "depots", "name"))

	s, err := Introspect(context.Background(), dbexec.NewStandardExecutor(db), "warehouse")
	require.NoError(t, err)

	shipments, err := s.Table("shipments")
	require.NoError(t, err)
	assert.Empty(t, shipments.ForeignKeys)
	assert.NoError(t, mock.ExpectationsWereMet())
}
