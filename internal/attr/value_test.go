package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalValueBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Value
	}{
		{"string", `"hello"`, String("hello")},
		{"int", `42`, Int(42)},
		{"negative int", `-7`, Int(-7)},
		{"bool true", `true`, Bool(true)},
		{"bool false", `false`, Bool(false)},
		{"list", `[1,"a",true]`, List{Int(1), String("a"), Bool(true)}},
		{"map", `{"a":1,"b":"x"}`, Map{"a": Int(1), "b": String("x")}},
		{"nested", `{"l":[{"k":2}]}`, Map{"l": List{Map{"k": Int(2)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := UnmarshalValue([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestUnmarshalValueRejectsFloats(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain float", `1.5`},
		{"exponent", `1e3`},
		{"float in list", `[1, 2.5]`},
		{"float in map", `{"a": 0.1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalValue([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "float")
		})
	}
}

func TestUnmarshalValueRejectsNull(t *testing.T) {
	_, err := UnmarshalValue([]byte(`null`))
	require.Error(t, err)

	_, err = UnmarshalValue([]byte(`{"a": null}`))
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal strings", String("x"), String("x"), true},
		{"different strings", String("x"), String("y"), false},
		{"string vs int", String("1"), Int(1), false},
		{"equal ints", Int(3), Int(3), true},
		{"equal bools", Bool(true), Bool(true), true},
		{"equal lists", List{Int(1), Int(2)}, List{Int(1), Int(2)}, true},
		{"reordered lists differ", List{Int(1), Int(2)}, List{Int(2), Int(1)}, false},
		{"shorter list differs", List{Int(1)}, List{Int(1), Int(2)}, false},
		{"equal maps", Map{"a": Int(1), "b": String("x")}, Map{"b": String("x"), "a": Int(1)}, true},
		{"map extra key differs", Map{"a": Int(1)}, Map{"a": Int(1), "b": Int(2)}, false},
		{"nested equal", Map{"l": List{Map{"k": Int(2)}}}, Map{"l": List{Map{"k": Int(2)}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestMapSortedKeysASCII(t *testing.T) {
	m := Map{"zebra": Int(1), "alpha": Int(2), "beta": Int(3)}
	assert.Equal(t, []string{"alpha", "beta", "zebra"}, m.SortedKeys())
}

func TestMapClone(t *testing.T) {
	orig := Map{
		"name": String("bucket"),
		"tags": List{String("a")},
		"cfg":  Map{"ttl": Int(5)},
	}

	cp := orig.Clone()
	require.True(t, Equal(orig, cp))

	// Mutations of the copy must not leak back
	cp["name"] = String("changed")
	cp["cfg"].(Map)["ttl"] = Int(9)
	cp["tags"].(List)[0] = String("b")

	assert.Equal(t, String("bucket"), orig["name"])
	assert.Equal(t, Int(5), orig["cfg"].(Map)["ttl"])
	assert.Equal(t, String("a"), orig["tags"].(List)[0])
}

func TestMarshalValueRoundTrip(t *testing.T) {
	orig := Map{
		"name":       String("state-bucket"),
		"versioning": Bool(true),
		"ttl":        Int(300),
		"audiences":  List{String("sts"), String("iam")},
	}

	data, err := MarshalValue(orig)
	require.NoError(t, err)

	back, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.True(t, Equal(orig, back))
}

func TestNewMapConstruction(t *testing.T) {
	m := NewMap(
		P("name", NewString("locks")),
		P("read_capacity", NewInt(5)),
		P("stream", NewBool(false)),
	)

	assert.Equal(t, String("locks"), m["name"])
	assert.Equal(t, Int(5), m["read_capacity"])
	assert.Equal(t, Bool(false), m["stream"])
}
