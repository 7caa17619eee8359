package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentrunner/internal/record"
)

func table(prices ...float64) record.List {
	out := make(record.List, 0, len(prices))
	for _, p := range prices {
		out = append(out, record.Map{"price": p})
	}
	return out
}

func prices(t *testing.T, v record.Value) []float64 {
	t.Helper()
	table, ok := v.(record.List)
	require.True(t, ok)
	out := make([]float64, 0, len(table))
	for _, item := range table {
		p, ok := record.Field(item, "price")
		require.True(t, ok)
		n, ok := record.AsNumber(p)
		require.True(t, ok)
		out = append(out, n)
	}
	return out
}

func TestTableSort(t *testing.T) {
	t.Run("Ascending default", func(t *testing.T) {
		out, err := applySort(&SortStep{Field: "price", Order: "asc"}, table(150, 50, 100))
		require.NoError(t, err)
		assert.Equal(t, []float64{50, 100, 150}, prices(t, out))
	})

	t.Run("Idempotent", func(t *testing.T) {
		sorted, err := applySort(&SortStep{Field: "price", Order: "asc"}, table(150, 50, 100))
		require.NoError(t, err)
		again, err := applySort(&SortStep{Field: "price", Order: "asc"}, sorted)
		require.NoError(t, err)
		assert.Equal(t, sorted, again)
	})

	t.Run("Descending reverses distinct keys", func(t *testing.T) {
		asc, err := applySort(&SortStep{Field: "price", Order: "asc"}, table(150, 50, 100))
		require.NoError(t, err)
		desc, err := applySort(&SortStep{Field: "price", Order: "desc"}, asc)
		require.NoError(t, err)
		assert.Equal(t, []float64{150, 100, 50}, prices(t, desc))
	})

	t.Run("Missing field sorts as zero", func(t *testing.T) {
		input := record.List{record.Map{"price": 10.0}, record.Map{"name": "free"}}
		out, err := applySort(&SortStep{Field: "price", Order: "asc"}, input)
		require.NoError(t, err)
		first, _ := out.(record.List)[0].(record.Map)
		assert.Equal(t, "free", first["name"])
	})

	t.Run("Non-table input", func(t *testing.T) {
		_, err := applySort(&SortStep{Field: "price", Order: "asc"}, record.Map{"price": 1.0})
		assert.Error(t, err)
	})
}

func TestTableFilter(t *testing.T) {
	t.Run("Less than", func(t *testing.T) {
		out, err := applyFilter(&FilterStep{Field: "price", Op: "<", Value: 100.0}, table(150, 50, 100))
		require.NoError(t, err)
		assert.Equal(t, []float64{50}, prices(t, out))
	})

	t.Run("Absent field dropped", func(t *testing.T) {
		input := record.List{record.Map{"price": 50.0}, record.Map{"name": "x"}}
		out, err := applyFilter(&FilterStep{Field: "price", Op: "<", Value: 100.0}, input)
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("Equality across numeric types", func(t *testing.T) {
		out, err := applyFilter(&FilterStep{Field: "price", Op: "==", Value: 100}, table(100, 50))
		require.NoError(t, err)
		assert.Equal(t, []float64{100}, prices(t, out))
	})

	t.Run("Incomparable types error", func(t *testing.T) {
		input := record.List{record.Map{"price": "expensive"}}
		_, err := applyFilter(&FilterStep{Field: "price", Op: "<", Value: 100.0}, input)
		assert.Error(t, err)
	})
}

func TestTableSelect(t *testing.T) {
	input := record.List{record.Map{"price": 10.0, "name": "a", "extra": true}}
	out, err := applySelect(&SelectStep{Fields: []string{"name", "missing"}}, input)
	require.NoError(t, err)

	row, ok := out.(record.List)[0].(record.Map)
	require.True(t, ok)
	assert.Equal(t, "a", row["name"])
	assert.Contains(t, row, "missing")
	assert.Nil(t, row["missing"])
	assert.NotContains(t, row, "extra")
}

func TestTopK(t *testing.T) {
	t.Run("Truncates", func(t *testing.T) {
		out, err := applyTopK(&TopKStep{K: 2}, table(1, 2, 3))
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("K beyond length returns input unchanged", func(t *testing.T) {
		in := table(1, 2)
		out, err := applyTopK(&TopKStep{K: 10}, in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}
