// Package resolver resolves variable expressions in node configurations:
//
//	$nodes.node_id          entire node output
//	$nodes.node_id.field    nested field access, single [i] index allowed
//	"text ${expr} text"     string interpolation
//
// Node outputs come from the run-scoped context store.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/record"
)

const nodeRefPrefix = "$nodes."

var interpolationPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Source loads a node's output for a run. Implementations resolve the
// two-level indirection (output pointer, then content-addressed value) and
// report the two miss cases as distinct errors.
type Source interface {
	NodeOutput(ctx context.Context, runID, nodeID string) (record.Value, error)
}

// Resolver walks config trees and substitutes variable expressions.
type Resolver struct {
	src Source
}

// New creates a resolver over the given output source.
func New(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve recursively resolves all expressions in a config value. Only
// string leaves are candidates; everything else passes through unchanged.
func (r *Resolver) Resolve(ctx context.Context, runID string, config record.Value) (record.Value, error) {
	switch v := config.(type) {
	case record.Map:
		out := make(record.Map, len(v))
		for key, val := range v {
			resolved, err := r.Resolve(ctx, runID, val)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve config key %q", key)
			}
			out[key] = resolved
		}
		return out, nil

	case record.List:
		out := make(record.List, 0, len(v))
		for i, item := range v {
			resolved, err := r.Resolve(ctx, runID, item)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve element %d", i)
			}
			out = append(out, resolved)
		}
		return out, nil

	case string:
		return r.resolveString(ctx, runID, v)

	default:
		return config, nil
	}
}

func (r *Resolver) resolveString(ctx context.Context, runID, text string) (record.Value, error) {
	if strings.HasPrefix(text, nodeRefPrefix) {
		return r.resolveNodeReference(ctx, runID, text)
	}
	if strings.Contains(text, "${") {
		return r.resolveInterpolation(ctx, runID, text)
	}
	return text, nil
}

// resolveNodeReference handles "$nodes.node_id" and "$nodes.node_id.path".
// The whole leaf is replaced by the referenced value, whatever its type.
func (r *Resolver) resolveNodeReference(ctx context.Context, runID, expr string) (record.Value, error) {
	rest := strings.TrimPrefix(expr, nodeRefPrefix)

	nodeID, fieldPath, hasPath := strings.Cut(rest, ".")
	if nodeID == "" {
		return nil, errors.Errorf("invalid node reference %q", expr)
	}

	output, err := r.src.NodeOutput(ctx, runID, nodeID)
	if err != nil {
		return nil, err
	}

	if !hasPath {
		return output, nil
	}

	segments, err := parsePath(fieldPath)
	if err != nil {
		return nil, err
	}
	return traverse(output, segments, fieldPath)
}

// resolveInterpolation substitutes each ${expr} span with the string form
// of its resolved value. Maps and sequences serialize to canonical JSON.
func (r *Resolver) resolveInterpolation(ctx context.Context, runID, text string) (string, error) {
	var resolveErr error
	out := interpolationPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]
		value, err := r.resolveString(ctx, runID, expr)
		if err != nil {
			if resolveErr == nil {
				resolveErr = err
			}
			return match
		}
		return record.Canonical(value)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

// traverse walks a value along parsed path segments. Traversing through a
// non-map, indexing a non-list, or running past the end of a list is a
// resolution error naming the failing path.
func traverse(value record.Value, segments []segment, fullPath string) (record.Value, error) {
	current := value
	for _, seg := range segments {
		if seg.field != "" {
			v, ok := record.Field(current, seg.field)
			if !ok {
				if _, isMap := current.(record.Map); !isMap {
					return nil, errors.Errorf("cannot access field %q on non-object value in path %q", seg.field, fullPath)
				}
				return nil, errors.Errorf("field %q not found in path %q", seg.field, fullPath)
			}
			current = v
		}

		if seg.hasIndex {
			list, ok := current.(record.List)
			if !ok {
				return nil, errors.Errorf("cannot index non-sequence value at %q in path %q", seg.field, fullPath)
			}
			if seg.index < 0 || seg.index >= len(list) {
				return nil, errors.Errorf("index %d out of range at %q in path %q", seg.index, seg.field, fullPath)
			}
			current = list[seg.index]
		}
	}
	return current, nil
}
