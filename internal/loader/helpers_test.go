package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueParentValues(t *testing.T) {
	rows := []Row{
		{"id": int64(3)},
		{"id": int64(1)},
		{"id": int64(3)},
		{"id": nil},
		{"other": "x"},
		{"id": []byte("abc")},
		{"id": "abc"},
	}

	values := uniqueParentValues(rows, "id")
	// Order preserved, duplicates collapse, byte slices and strings of the
	// same content count once.
	require.Len(t, values, 3)
	assert.Equal(t, int64(3), values[0])
	assert.Equal(t, int64(1), values[1])
	assert.Equal(t, []byte("abc"), values[2])
}

func TestChunkValues(t *testing.T) {
	values := []interface{}{1, 2, 3, 4, 5}

	assert.Nil(t, chunkValues(nil, 2))
	assert.Equal(t, [][]interface{}{values}, chunkValues(values, 0))
	assert.Equal(t, [][]interface{}{values}, chunkValues(values, 10))

	chunks := chunkValues(values, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []interface{}{1, 2}, chunks[0])
	assert.Equal(t, []interface{}{3, 4}, chunks[1])
	assert.Equal(t, []interface{}{5}, chunks[2])
}

func TestQueriesSaved(t *testing.T) {
	assert.EqualValues(t, 4, queriesSaved(5, 1))
	assert.EqualValues(t, 2, queriesSaved(5, 3))
	assert.EqualValues(t, 0, queriesSaved(1, 1))
	assert.EqualValues(t, 0, queriesSaved(0, 0))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "42", normalizeKey(int64(42)))
	assert.Equal(t, "42", normalizeKey(42))
	assert.Equal(t, "abc", normalizeKey([]byte("abc")))
	assert.Equal(t, "abc", normalizeKey("abc"))
}

func TestValueCoercion(t *testing.T) {
	n, err := toInt64([]byte("12"))
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)

	n, err = toInt64(int32(7))
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	_, err = toInt64(struct{}{})
	assert.Error(t, err)

	f, err := toFloat64([]byte("2.5"))
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	f, err = toFloat64(int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = toFloat64(struct{}{})
	assert.Error(t, err)
}
