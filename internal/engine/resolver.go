package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// templatePattern matches {{ ... }} placeholders, same shape as the
// teacher's {{var}} substitution in executors/email.go, generalized to the
// two reference forms this engine supports.
var templatePattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// NodeLookup resolves a reference node name (its ID, or its display label)
// to the JSON-shaped output that node last produced.
type NodeLookup func(name string) (interface{}, bool)

// Resolver substitutes {{ $json.path }} and {{ $('Name').json.path }}
// template expressions found in a node's parameter values.
type Resolver struct {
	lookup NodeLookup
}

func NewResolver(lookup NodeLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// ResolveValues walks every string in values (recursively through nested
// maps and slices) and resolves template expressions against input and
// prior node outputs. Non-string values pass through unchanged, as do the
// dispatch keys credential_id and operation.
func (r *Resolver) ResolveValues(values map[string]interface{}, input map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if k == "credential_id" || k == "operation" {
			out[k] = v
			continue
		}
		out[k] = r.resolveAny(v, input)
	}
	return out
}

func (r *Resolver) resolveAny(v interface{}, input map[string]interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.resolveString(val, input)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			m[k] = r.resolveAny(vv, input)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, vv := range val {
			s[i] = r.resolveAny(vv, input)
		}
		return s
	default:
		return v
	}
}

// resolveString substitutes every {{ ... }} expression found in s. If the
// entire string is exactly one expression, the resolved value's native type
// is returned (so e.g. an array template yields a real array); otherwise
// each match is substituted as text within the surrounding string.
func (r *Resolver) resolveString(s string, input map[string]interface{}) interface{} {
	matches := templatePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	if len(matches) == 1 {
		m := matches[0]
		if m[0] == 0 && m[1] == len(s) {
			expr := s[m[2]:m[3]]
			resolved, ok := r.resolveExpr(expr, input)
			if !ok {
				return s // leave placeholder literally
			}
			return resolved
		}
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		expr := s[m[2]:m[3]]
		resolved, ok := r.resolveExpr(expr, input)
		if !ok {
			b.WriteString(s[m[0]:m[1]]) // leave placeholder literally
		} else {
			b.WriteString(toText(resolved))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// resolveExpr resolves a single expression body (without the surrounding
// {{ }}), e.g. `$json.prices[0]` or `$('A').json.x`.
func (r *Resolver) resolveExpr(expr string, input map[string]interface{}) (interface{}, bool) {
	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "$json") {
		path := strings.TrimPrefix(expr, "$json")
		return resolvePath(unwrapJSON(input), path)
	}

	if strings.HasPrefix(expr, "$(") {
		end := strings.Index(expr, ")")
		if end < 0 {
			return nil, false
		}
		nameLit := strings.TrimSpace(expr[2:end])
		nameLit = strings.Trim(nameLit, "'\"")
		rest := expr[end+1:]
		if !strings.HasPrefix(rest, ".json") {
			return nil, false
		}
		path := strings.TrimPrefix(rest, ".json")

		out, ok := r.lookup(nameLit)
		if !ok {
			return nil, false
		}
		return resolvePath(unwrapJSON(out), path)
	}

	return nil, false
}

// unwrapJSON strips one level of a {"json": ...} wrapper shape, the
// convention some node outputs use to distinguish payload from metadata.
func unwrapJSON(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		if inner, ok := m["json"]; ok {
			return inner
		}
	}
	return v
}

// pathSegment is either a field name or an array index.
type pathSegment struct {
	field string
	index int
	isIdx bool
}

// parsePath parses a leading-dot/bracket path like ".prices[0].name" or
// "[-1]" into ordered segments. An empty path yields no segments.
func parsePath(path string) []pathSegment {
	var segments []pathSegment
	i := 0
	n := len(path)
	for i < n {
		switch path[i] {
		case '.':
			i++
		case '[':
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return segments
			}
			idxStr := path[i+1 : i+j]
			idxStr = strings.Trim(idxStr, "'\"")
			if idx, err := strconv.Atoi(idxStr); err == nil {
				segments = append(segments, pathSegment{index: idx, isIdx: true})
			} else {
				segments = append(segments, pathSegment{field: idxStr})
			}
			i += j + 1
		default:
			j := i
			for j < n && path[j] != '.' && path[j] != '[' {
				j++
			}
			field := path[i:j]
			if field != "" {
				segments = append(segments, pathSegment{field: field})
			}
			i = j
		}
	}
	return segments
}

// resolvePath navigates v by path, supporting dot-notation object keys and
// bracket array indices (negative indices count from the end). Returns
// ok=false if any segment along the way is missing.
func resolvePath(v interface{}, path string) (interface{}, bool) {
	segments := parsePath(path)
	current := v
	for _, seg := range segments {
		if seg.isIdx {
			arr, ok := current.([]interface{})
			if !ok {
				return nil, false
			}
			idx := seg.index
			if idx < 0 {
				idx += len(arr)
			}
			if idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		} else {
			m, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			val, exists := m[seg.field]
			if !exists {
				return nil, false
			}
			current = val
		}
	}
	return current, true
}

// toText renders a resolved value as the text to splice into a larger
// string: scalars print directly, objects/arrays marshal to JSON.
func toText(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64, int, int64, bool:
		return toScalarText(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func toScalarText(v interface{}) string {
	b, _ := json.Marshal(v)
	return strings.Trim(string(b), `"`)
}
