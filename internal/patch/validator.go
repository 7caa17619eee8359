// Package patch validates workflow patch operations locally and forwards
// accepted batches to the orchestrator's run-scoped patch endpoint.
package patch

import (
	"fmt"

	"github.com/avi3tal/agentrunner/internal/record"
)

// maxAgentNodesPerPatch bounds how many agent nodes one patch may add.
const maxAgentNodesPerPatch = 5

// ValidationError reports the first failing operation and the broken
// constraint. Any violation aborts the whole batch.
type ValidationError struct {
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("patch validation failed: %s", e.Message)
	}
	return fmt.Sprintf("operation %d: %s", e.Index, e.Message)
}

// ValidateOperations statically checks patch operations before forwarding.
// Purely structural, no network calls.
func ValidateOperations(operations []record.Map) error {
	agentCount := 0

	for i, op := range operations {
		if err := validateOperation(op, i); err != nil {
			return err
		}

		if op["op"] == "add" && op["path"] == "/nodes/-" {
			if value, ok := op["value"].(record.Map); ok {
				if nodeType, ok := value["type"].(string); ok && nodeType == "agent" {
					agentCount++
				}
			}
		}
	}

	if agentCount > maxAgentNodesPerPatch {
		return &ValidationError{
			Index:   -1,
			Message: fmt.Sprintf("cannot add more than %d agent nodes per patch (attempted: %d)", maxAgentNodesPerPatch, agentCount),
		}
	}

	return nil
}

func validateOperation(op record.Map, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return &ValidationError{Index: index, Message: "missing or invalid 'op' field"}
	}

	path, ok := op["path"].(string)
	if !ok || path == "" {
		return &ValidationError{Index: index, Message: "missing or invalid 'path' field"}
	}

	switch opType {
	case "add", "replace":
		value, present := op["value"]
		if !present {
			return &ValidationError{Index: index, Message: fmt.Sprintf("'value' required for %s operation", opType)}
		}
		return validateValue(value, path, index)

	case "remove":
		return nil

	default:
		return &ValidationError{Index: index, Message: fmt.Sprintf("unsupported operation type: %s", opType)}
	}
}

func validateValue(value record.Value, path string, index int) error {
	m, ok := value.(record.Map)
	if !ok {
		return &ValidationError{Index: index, Message: fmt.Sprintf("value must be an object, got %T", value)}
	}

	if isEdgeShaped(m) {
		return validateEdgeValue(m, index)
	}
	if path == "/nodes/-" || isNodeShaped(m) {
		return validateNodeValue(m, index)
	}
	return nil
}

func isNodeShaped(m record.Map) bool {
	_, hasID := m["id"]
	_, hasType := m["type"]
	return hasID && hasType
}

func isEdgeShaped(m record.Map) bool {
	_, hasFrom := m["from"]
	_, hasTo := m["to"]
	return hasFrom || hasTo
}

func validateNodeValue(m record.Map, index int) error {
	if _, ok := m["id"].(string); !ok {
		return &ValidationError{Index: index, Message: "node must have 'id' field (string)"}
	}
	if _, ok := m["type"].(string); !ok {
		return &ValidationError{Index: index, Message: "node must have 'type' field (string)"}
	}

	// Config must be an object, never an array. Upstream tool callers have
	// emitted arrays here; letting one through corrupts the node schema.
	if config, exists := m["config"]; exists {
		if _, ok := config.(record.Map); !ok {
			return &ValidationError{
				Index:   index,
				Message: fmt.Sprintf("node 'config' must be an object, got %T (hint: use {\"key\": \"value\"}, not [\"key\"])", config),
			}
		}
	}

	return nil
}

func validateEdgeValue(m record.Map, index int) error {
	if _, ok := m["from"].(string); !ok {
		return &ValidationError{Index: index, Message: "edge must have 'from' field (string)"}
	}
	if _, ok := m["to"].(string); !ok {
		return &ValidationError{Index: index, Message: "edge must have 'to' field (string)"}
	}
	return nil
}
