package worker

import (
	"encoding/json"

	"github.com/avi3tal/agentrunner/internal/record"
)

const (
	previewRows  = 3
	previewBytes = 512
)

// preview builds the compact result summary published to the legacy
// per-job result list. Full results live in the result store; the
// preview keeps Redis payloads small.
func preview(result record.Map) record.Map {
	if result == nil {
		return record.Map{}
	}

	if rows, ok := result["data"].(record.List); ok {
		p := record.Map{
			"kind":      "dataset",
			"row_count": len(rows),
		}
		n := len(rows)
		if n > previewRows {
			n = previewRows
			p["truncated"] = true
		}
		p["rows"] = rows[:n]
		return p
	}

	if _, ok := result["patch_id"]; ok {
		return record.Map{
			"kind":     "patch",
			"patch_id": result["patch_id"],
			"op_count": result["op_count"],
		}
	}

	raw, err := json.Marshal(result)
	if err != nil || len(raw) <= previewBytes {
		return record.Map{"kind": "object", "value": result}
	}
	return record.Map{
		"kind":      "object",
		"truncated": true,
		"excerpt":   string(raw[:previewBytes]),
	}
}
