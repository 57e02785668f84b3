package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiffEmpty(t *testing.T) {
	observed := Map{"name": String("b"), "versioning": Bool(true)}
	desired := Map{"name": String("b"), "versioning": Bool(true)}

	d := ComputeDiff(observed, desired, nil)
	assert.True(t, d.Empty())
	assert.False(t, d.ForcesReplace())
}

func TestComputeDiffChangedValue(t *testing.T) {
	observed := Map{"name": String("b"), "versioning": Bool(false)}
	desired := Map{"name": String("b"), "versioning": Bool(true)}

	d := ComputeDiff(observed, desired, nil)
	require.Len(t, d, 1)

	c := d["versioning"]
	assert.Equal(t, Bool(false), c.Before)
	assert.Equal(t, Bool(true), c.After)
	assert.False(t, c.ForcesReplace)
}

func TestComputeDiffImmutableForcesReplace(t *testing.T) {
	observed := Map{"name": String("old"), "versioning": Bool(true)}
	desired := Map{"name": String("new"), "versioning": Bool(true)}
	immutable := map[string]bool{"name": true}

	d := ComputeDiff(observed, desired, immutable)
	require.Len(t, d, 1)
	assert.True(t, d["name"].ForcesReplace)
	assert.True(t, d.ForcesReplace())
}

func TestComputeDiffAddedAndRemoved(t *testing.T) {
	observed := Map{"name": String("b"), "legacy": Int(1)}
	desired := Map{"name": String("b"), "ttl": Int(60)}

	d := ComputeDiff(observed, desired, nil)
	require.Len(t, d, 2)

	added := d["ttl"]
	assert.Nil(t, added.Before)
	assert.Equal(t, Int(60), added.After)

	removed := d["legacy"]
	assert.Equal(t, Int(1), removed.Before)
	assert.Nil(t, removed.After)
}

func TestComputeDiffNestedValues(t *testing.T) {
	observed := Map{"policy": Map{"scope": String("admin")}}
	desired := Map{"policy": Map{"scope": String("read-only")}}

	d := ComputeDiff(observed, desired, nil)
	require.Len(t, d, 1)
	assert.Equal(t, Map{"scope": String("admin")}, d["policy"].Before)
	assert.Equal(t, Map{"scope": String("read-only")}, d["policy"].After)
}

func TestDiffSortedKeys(t *testing.T) {
	d := Diff{
		"zeta":  Change{},
		"alpha": Change{},
		"mid":   Change{},
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, d.SortedKeys())
}
