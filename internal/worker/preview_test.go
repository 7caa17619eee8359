package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentrunner/internal/record"
)

func TestPreview(t *testing.T) {
	t.Run("dataset keeps the first rows and the full count", func(t *testing.T) {
		result := record.Map{"data": record.List{
			record.Map{"n": 1}, record.Map{"n": 2}, record.Map{"n": 3}, record.Map{"n": 4},
		}}
		p := preview(result)
		assert.Equal(t, "dataset", p["kind"])
		assert.Equal(t, 4, p["row_count"])
		assert.Equal(t, true, p["truncated"])
		require.Len(t, p["rows"].(record.List), 3)
	})

	t.Run("small dataset is not truncated", func(t *testing.T) {
		p := preview(record.Map{"data": record.List{record.Map{"n": 1}}})
		assert.Equal(t, 1, p["row_count"])
		assert.NotContains(t, p, "truncated")
	})

	t.Run("patch result keeps id and op count", func(t *testing.T) {
		p := preview(record.Map{"status": "success", "patch_id": "patch-1", "op_count": 2})
		assert.Equal(t, "patch", p["kind"])
		assert.Equal(t, "patch-1", p["patch_id"])
		assert.Equal(t, 2, p["op_count"])
	})

	t.Run("large object is excerpted", func(t *testing.T) {
		p := preview(record.Map{"blob": strings.Repeat("x", 2000)})
		assert.Equal(t, "object", p["kind"])
		assert.Equal(t, true, p["truncated"])
		assert.Len(t, p["excerpt"], previewBytes)
	})

	t.Run("nil result is an empty map", func(t *testing.T) {
		assert.Equal(t, record.Map{}, preview(nil))
	})
}
