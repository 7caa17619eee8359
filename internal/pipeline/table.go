package pipeline

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/record"
)

func asTable(v record.Value) (record.List, error) {
	table, ok := v.(record.List)
	if !ok {
		return nil, errors.Errorf("requires table input, got %T", v)
	}
	return table, nil
}

// applySort orders records by the named field using a stable comparator.
// A missing field sorts as the number zero. That conflates absence with 0
// for numeric data; kept as-is because upstream emitters rely on it.
func applySort(step *SortStep, input record.Value) (record.Value, error) {
	table, err := asTable(input)
	if err != nil {
		return nil, err
	}

	out := make(record.List, len(table))
	copy(out, table)

	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		a := sortKey(out[i], step.Field)
		b := sortKey(out[j], step.Field)
		c, err := record.Compare(a, b)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if step.Order == "desc" {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, errors.Wrapf(sortErr, "cannot sort by %q", step.Field)
	}
	return out, nil
}

func sortKey(item record.Value, field string) record.Value {
	if v, ok := record.Field(item, field); ok && v != nil {
		return v
	}
	return 0.0
}

// applyFilter keeps records where the field is present and the comparison
// holds. Records missing the field are dropped, not errored.
func applyFilter(step *FilterStep, input record.Value) (record.Value, error) {
	table, err := asTable(input)
	if err != nil {
		return nil, err
	}

	out := make(record.List, 0, len(table))
	for i, item := range table {
		v, ok := record.Field(item, step.Field)
		if !ok {
			continue
		}
		keep, err := evalCondition(v, step.Op, step.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

func evalCondition(v record.Value, op string, literal record.Value) (bool, error) {
	switch op {
	case "==":
		return record.Equal(v, literal), nil
	case "!=":
		return !record.Equal(v, literal), nil
	}

	c, err := record.Compare(v, literal)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case ">":
		return c > 0, nil
	case "<=":
		return c <= 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, errors.Errorf("unsupported operator: %s", op)
}

// applySelect projects each record onto the requested fields, substituting
// nil for fields not present on the source record.
func applySelect(step *SelectStep, input record.Value) (record.Value, error) {
	table, err := asTable(input)
	if err != nil {
		return nil, err
	}

	out := make(record.List, 0, len(table))
	for _, item := range table {
		projected := make(record.Map, len(step.Fields))
		for _, field := range step.Fields {
			v, _ := record.Field(item, field)
			projected[field] = v
		}
		out = append(out, projected)
	}
	return out, nil
}

// applyTopK truncates to the first K records. K beyond the input length
// returns the input unchanged.
func applyTopK(step *TopKStep, input record.Value) (record.Value, error) {
	table, err := asTable(input)
	if err != nil {
		return nil, err
	}
	if step.K >= len(table) {
		return table, nil
	}
	return table[:step.K], nil
}
