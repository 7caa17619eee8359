package resolver

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// segment is one dot-path component: a field name, an optional bracket
// index, or both ("items[0]" traverses field then index).
type segment struct {
	field    string
	index    int
	hasIndex bool
}

// parsePath splits a dot path into segments. Each component is a field
// name optionally followed by exactly one "[<integer>]" suffix. Nested or
// repeated brackets are rejected here so traversal never has to guess.
func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}

	parts := strings.Split(path, ".")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, errors.Errorf("empty path component in %q", path)
		}
		seg, err := parseSegment(part)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid path component %q", part)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func parseSegment(part string) (segment, error) {
	open := strings.IndexByte(part, '[')
	if open == -1 {
		if strings.IndexByte(part, ']') != -1 {
			return segment{}, errors.New("unmatched ']'")
		}
		return segment{field: part}, nil
	}

	if !strings.HasSuffix(part, "]") {
		return segment{}, errors.New("unmatched '['")
	}

	inner := part[open+1 : len(part)-1]
	if strings.ContainsAny(inner, "[]") {
		return segment{}, errors.New("only a single index per component is supported")
	}

	index, err := strconv.Atoi(inner)
	if err != nil {
		return segment{}, errors.Errorf("index %q is not an integer", inner)
	}

	return segment{field: part[:open], index: index, hasIndex: true}, nil
}
