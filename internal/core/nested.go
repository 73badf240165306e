package core

// nested.go implements the nested key expander: a pure post-pass that
// turns bracket/dot path keys ("user[name]", "a[b][0]", "user.name") into
// a nested tree of maps and slices. Keys without path syntax, and keys
// with unbalanced brackets, pass through unchanged.

import (
	"strconv"
	"strings"
)

// ExpandNested returns an equivalent mapping where path-syntax keys have
// been expanded into nested map[string]any / []any trees. The input map is
// not modified; leaf values are carried over as-is.
func ExpandNested(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for key, value := range flat {
		segs := parsePath(key)
		if segs == nil {
			out[key] = value
			continue
		}
		root := segs[0]
		out[root] = insertPath(out[root], segs[1:], value)
	}
	return out
}

// parsePath splits a key into path segments, or returns nil when the key
// has no path syntax or is malformed.
func parsePath(key string) []string {
	if !strings.ContainsAny(key, "[.") {
		return nil
	}

	var segs []string
	rest := key

	// Leading segment runs up to the first '[' or '.'.
	end := strings.IndexAny(rest, "[.")
	if end == 0 {
		return nil
	}
	segs = append(segs, rest[:end])
	rest = rest[end:]

	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, "[.")
			if end == -1 {
				end = len(rest)
			}
			if end == 0 {
				return nil
			}
			segs = append(segs, rest[:end])
			rest = rest[end:]
		case '[':
			close := strings.IndexByte(rest, ']')
			if close <= 1 {
				return nil
			}
			segs = append(segs, rest[1:close])
			rest = rest[close+1:]
		default:
			return nil
		}
	}

	if len(segs) < 2 {
		return nil
	}
	return segs
}

// insertPath places value under the remaining segments, creating maps for
// name segments and slices for numeric segments. A container that
// conflicts with an existing scalar replaces it.
func insertPath(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}

	seg := segs[0]
	if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 {
		slice, ok := node.([]any)
		if !ok {
			slice = nil
		}
		for len(slice) <= idx {
			slice = append(slice, nil)
		}
		slice[idx] = insertPath(slice[idx], segs[1:], value)
		return slice
	}

	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	m[seg] = insertPath(m[seg], segs[1:], value)
	return m
}
