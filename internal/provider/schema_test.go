package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundworklabs/groundwork/internal/attr"
)

func TestDefaultRegistryTypes(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{
		"assumable-role",
		"federation-trust",
		"lock-table",
		"object-store-bucket",
	}, reg.Types())
}

func TestSchemaLookup(t *testing.T) {
	reg := DefaultRegistry()

	s, ok := reg.Lookup("object-store-bucket")
	require.True(t, ok)
	assert.True(t, s.KnownInput("name"))
	assert.True(t, s.KnownInput("versioning"))
	assert.False(t, s.KnownInput("nonexistent"))
	assert.True(t, s.HasOutput("arn"))
	assert.False(t, s.HasOutput("name"))
	assert.True(t, s.ImmutableSet()["name"])
	assert.False(t, s.ImmutableSet()["versioning"])

	_, ok = reg.Lookup("no-such-type")
	assert.False(t, ok)
}

func TestSchemaEnums(t *testing.T) {
	reg := DefaultRegistry()

	role, ok := reg.Lookup("assumable-role")
	require.True(t, ok)
	assert.Equal(t, PolicyScopes, role.Enum["policy_scope"])

	table, ok := reg.Lookup("lock-table")
	require.True(t, ok)
	assert.Contains(t, table.Enum["billing_mode"], "on-demand")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		v    attr.Value
		want Kind
	}{
		{"string", attr.String("x"), KindString},
		{"int", attr.Int(1), KindInt},
		{"bool", attr.Bool(true), KindBool},
		{"list", attr.List{}, KindList},
		{"map", attr.Map{}, KindMap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.v))
		})
	}
}
