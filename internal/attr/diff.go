package attr

import "slices"

// Change records one attribute's movement between the observed baseline and
// the desired declaration. A nil Before means the attribute is being added;
// a nil After means it is being removed.
type Change struct {
	Before        Value `json:"before,omitempty"`
	After         Value `json:"after,omitempty"`
	ForcesReplace bool  `json:"forces_replace,omitempty"`
}

// Diff is the set of attribute changes between observed and desired state,
// keyed by attribute name. An empty Diff means the node is converged.
type Diff map[string]Change

// Empty reports whether there are no changes.
func (d Diff) Empty() bool {
	return len(d) == 0
}

// ForcesReplace reports whether any changed attribute is immutable, which
// upgrades an update to a destroy-then-create.
func (d Diff) ForcesReplace() bool {
	for _, c := range d {
		if c.ForcesReplace {
			return true
		}
	}
	return false
}

// SortedKeys returns the changed attribute names in lexicographic order for
// stable rendering.
func (d Diff) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ComputeDiff compares the observed baseline against the desired attributes.
// immutable names the attributes whose change forces replacement. Attributes
// present in the baseline but absent from the desired set count as removals;
// the reverse count as additions.
func ComputeDiff(observed, desired Map, immutable map[string]bool) Diff {
	d := make(Diff)

	for name, want := range desired {
		have, ok := observed[name]
		if !ok {
			d[name] = Change{After: want, ForcesReplace: immutable[name]}
			continue
		}
		if !Equal(have, want) {
			d[name] = Change{Before: have, After: want, ForcesReplace: immutable[name]}
		}
	}

	for name, have := range observed {
		if _, ok := desired[name]; !ok {
			d[name] = Change{Before: have, ForcesReplace: immutable[name]}
		}
	}

	return d
}
