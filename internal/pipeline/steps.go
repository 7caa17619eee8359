// Package pipeline implements the ephemeral data-transformation lane:
// five composable primitives and a sequential executor.
package pipeline

import (
	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/record"
)

// Kind identifies a pipeline primitive. The set is closed: adding a
// primitive means touching the parser and the executor switch.
type Kind string

const (
	KindHTTPRequest Kind = "http_request"
	KindTableSort   Kind = "table_sort"
	KindTableFilter Kind = "table_filter"
	KindTableSelect Kind = "table_select"
	KindTopK        Kind = "top_k"
)

// Step is a tagged variant over the five primitive kinds. Exactly one of
// the config pointers is set, matching Kind.
type Step struct {
	Kind   Kind
	HTTP   *HTTPStep
	Sort   *SortStep
	Filter *FilterStep
	Select *SelectStep
	TopK   *TopKStep
}

// HTTPStep fetches a record over the network. Input is ignored.
type HTTPStep struct {
	URL    string
	Method string
	Params record.Map
}

// SortStep orders a table by a named field.
type SortStep struct {
	Field string
	Order string // "asc" (default) or "desc"
}

// FilterStep keeps records matching a binary comparison.
type FilterStep struct {
	Field string
	Op    string // one of < > <= >= == !=
	Value record.Value
}

// SelectStep projects records onto the requested fields.
type SelectStep struct {
	Fields []string
}

// TopKStep truncates a table to its first K records.
type TopKStep struct {
	K int
}

// ParseSteps parses the raw pipeline array from tool arguments.
func ParseSteps(raw record.List) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(record.Map)
		if !ok {
			return nil, errors.Errorf("step %d: expected object, got %T", i, item)
		}
		step, err := parseStep(m)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(m record.Map) (Step, error) {
	kind, _ := m["step"].(string)
	if kind == "" {
		return Step{}, errors.New("missing 'step' field")
	}

	switch Kind(kind) {
	case KindHTTPRequest:
		url, _ := m["url"].(string)
		if url == "" {
			return Step{}, errors.New("http_request requires 'url'")
		}
		method, _ := m["method"].(string)
		if method == "" {
			method = "GET"
		}
		params, _ := m["params"].(record.Map)
		return Step{Kind: KindHTTPRequest, HTTP: &HTTPStep{URL: url, Method: method, Params: params}}, nil

	case KindTableSort:
		field, _ := m["field"].(string)
		if field == "" {
			return Step{}, errors.New("table_sort requires 'field'")
		}
		order, _ := m["order"].(string)
		if order == "" {
			order = "asc"
		}
		if order != "asc" && order != "desc" {
			return Step{}, errors.Errorf("table_sort order must be asc or desc, got %q", order)
		}
		return Step{Kind: KindTableSort, Sort: &SortStep{Field: field, Order: order}}, nil

	case KindTableFilter:
		cond, ok := m["condition"].(record.Map)
		if !ok {
			return Step{}, errors.New("table_filter requires 'condition'")
		}
		field, _ := cond["field"].(string)
		op, _ := cond["op"].(string)
		value, hasValue := cond["value"]
		if field == "" || op == "" || !hasValue {
			return Step{}, errors.New("condition requires 'field', 'op' and 'value'")
		}
		if !validOp(op) {
			return Step{}, errors.Errorf("unsupported operator: %s", op)
		}
		return Step{Kind: KindTableFilter, Filter: &FilterStep{Field: field, Op: op, Value: value}}, nil

	case KindTableSelect:
		rawFields, ok := m["fields"].(record.List)
		if !ok || len(rawFields) == 0 {
			return Step{}, errors.New("table_select requires 'fields'")
		}
		fields := make([]string, 0, len(rawFields))
		for _, f := range rawFields {
			name, ok := f.(string)
			if !ok {
				return Step{}, errors.Errorf("table_select field names must be strings, got %T", f)
			}
			fields = append(fields, name)
		}
		return Step{Kind: KindTableSelect, Select: &SelectStep{Fields: fields}}, nil

	case KindTopK:
		k, ok := record.AsNumber(m["k"])
		if !ok || k < 1 {
			return Step{}, errors.New("top_k requires 'k' (positive integer)")
		}
		return Step{Kind: KindTopK, TopK: &TopKStep{K: int(k)}}, nil

	default:
		return Step{}, errors.Errorf("unknown primitive: %s", kind)
	}
}

func validOp(op string) bool {
	switch op {
	case "<", ">", "<=", ">=", "==", "!=":
		return true
	}
	return false
}
