package attr

import (
	"fmt"
	"regexp"
	"strings"
)

// Ref is a reference from one node's attribute expression to another node's
// output, written as the whole-string expression "${node.output}".
type Ref struct {
	Node   string `json:"node"`
	Output string `json:"output"`
}

func (r Ref) String() string {
	return fmt.Sprintf("${%s.%s}", r.Node, r.Output)
}

// refPattern matches a whole-string reference expression. Partial
// interpolation ("prefix-${a.b}") is not part of the expression language and
// is rejected at validation time.
var refPattern = regexp.MustCompile(`^\$\{([a-z][a-z0-9_-]*)\.([a-z][a-z0-9_]*)\}$`)

// ParseRef reports whether s is a reference expression and, if so, which
// node and output it names.
//
// Examples:
//
//	"${bucket.id}"  → Ref{Node: "bucket", Output: "id"}, true
//	"literal value" → Ref{}, false
func ParseRef(s string) (Ref, bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return Ref{}, false
	}
	return Ref{Node: m[1], Output: m[2]}, true
}

// HasRefSyntax reports whether s contains a "${" marker anywhere. Used by
// validation to reject strings that look like interpolation but do not parse
// as a whole-string reference.
func HasRefSyntax(s string) bool {
	return strings.Contains(s, "${")
}

// CollectRefs walks a value tree and returns every reference expression it
// contains, in deterministic order (list order, then RFC 8785 key order for
// maps). Duplicates are preserved; callers dedupe as needed.
func CollectRefs(v Value) []Ref {
	var refs []Ref
	collectRefs(v, &refs)
	return refs
}

func collectRefs(v Value, refs *[]Ref) {
	switch val := v.(type) {
	case String:
		if r, ok := ParseRef(string(val)); ok {
			*refs = append(*refs, r)
		}
	case List:
		for _, elem := range val {
			collectRefs(elem, refs)
		}
	case Map:
		for _, k := range val.SortedKeys() {
			collectRefs(val[k], refs)
		}
	}
}

// ResolveRefs returns a copy of v with every reference expression replaced by
// the value the lookup reports for it. A lookup miss is an error naming the
// unresolvable reference.
func ResolveRefs(v Value, lookup func(Ref) (Value, bool)) (Value, error) {
	switch val := v.(type) {
	case String:
		r, ok := ParseRef(string(val))
		if !ok {
			return val, nil
		}
		resolved, found := lookup(r)
		if !found {
			return nil, fmt.Errorf("reference %s cannot be resolved", r)
		}
		return resolved, nil
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			rv, err := ResolveRefs(elem, lookup)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = rv
		}
		return out, nil
	case Map:
		out := make(Map, len(val))
		for k, elem := range val {
			rv, err := ResolveRefs(elem, lookup)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			out[k] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
