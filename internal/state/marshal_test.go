package state

import (
	"testing"

	"github.com/groundworklabs/groundwork/internal/attr"
)

func TestMarshalAttrs_Deterministic(t *testing.T) {
	m := attr.NewMap(
		attr.P("zebra", attr.NewString("z")),
		attr.P("alpha", attr.NewInt(1)),
		attr.P("mid", attr.NewBool(true)),
	)

	first, err := marshalAttrs(m)
	if err != nil {
		t.Fatalf("marshalAttrs() failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := marshalAttrs(m)
		if err != nil {
			t.Fatalf("marshalAttrs() failed: %v", err)
		}
		if again != first {
			t.Fatalf("marshalAttrs() not deterministic: %q vs %q", again, first)
		}
	}

	want := `{"alpha":1,"mid":true,"zebra":"z"}`
	if first != want {
		t.Errorf("marshalAttrs() = %q, want %q", first, want)
	}
}

func TestMarshalAttrs_NilMap(t *testing.T) {
	got, err := marshalAttrs(nil)
	if err != nil {
		t.Fatalf("marshalAttrs(nil) failed: %v", err)
	}
	if got != "{}" {
		t.Errorf("marshalAttrs(nil) = %q, want {}", got)
	}
}

func TestUnmarshalAttrs_RoundTrip(t *testing.T) {
	m := attr.NewMap(
		attr.P("name", attr.NewString("state")),
		attr.P("count", attr.NewInt(42)),
		attr.P("tags", attr.NewList(attr.NewString("a"), attr.NewString("b"))),
	)

	data, err := marshalAttrs(m)
	if err != nil {
		t.Fatalf("marshalAttrs() failed: %v", err)
	}
	got, err := unmarshalAttrs(data)
	if err != nil {
		t.Fatalf("unmarshalAttrs() failed: %v", err)
	}
	if !attr.Equal(got, m) {
		t.Errorf("round trip = %v, want %v", got, m)
	}
}

func TestUnmarshalAttrs_Empty(t *testing.T) {
	for _, data := range []string{"", "{}"} {
		got, err := unmarshalAttrs(data)
		if err != nil {
			t.Fatalf("unmarshalAttrs(%q) failed: %v", data, err)
		}
		if len(got) != 0 {
			t.Errorf("unmarshalAttrs(%q) = %v, want empty map", data, got)
		}
	}
}

func TestMarshalDependencies_RoundTrip(t *testing.T) {
	deps := []string{"network", "vault", "bucket"}

	data, err := marshalDependencies(deps)
	if err != nil {
		t.Fatalf("marshalDependencies() failed: %v", err)
	}
	if data != `["network","vault","bucket"]` {
		t.Errorf("marshalDependencies() = %q", data)
	}

	got, err := unmarshalDependencies(data)
	if err != nil {
		t.Fatalf("unmarshalDependencies() failed: %v", err)
	}
	if len(got) != 3 || got[0] != "network" || got[1] != "vault" || got[2] != "bucket" {
		t.Errorf("round trip = %v, want %v", got, deps)
	}
}

func TestMarshalDependencies_Empty(t *testing.T) {
	data, err := marshalDependencies(nil)
	if err != nil {
		t.Fatalf("marshalDependencies(nil) failed: %v", err)
	}
	if data != "[]" {
		t.Errorf("marshalDependencies(nil) = %q, want []", data)
	}

	got, err := unmarshalDependencies(data)
	if err != nil {
		t.Fatalf("unmarshalDependencies() failed: %v", err)
	}
	if got != nil {
		t.Errorf("unmarshalDependencies(\"[]\") = %v, want nil", got)
	}
}

func TestSnapshotBody_Deterministic(t *testing.T) {
	records := []Record{*testRecord("alpha"), *testRecord("beta")}

	first, err := snapshotBody(records)
	if err != nil {
		t.Fatalf("snapshotBody() failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := snapshotBody(records)
		if err != nil {
			t.Fatalf("snapshotBody() failed: %v", err)
		}
		if string(again) != string(first) {
			t.Fatal("snapshotBody() not deterministic")
		}
	}
}

func TestSnapshotBody_Empty(t *testing.T) {
	body, err := snapshotBody(nil)
	if err != nil {
		t.Fatalf("snapshotBody(nil) failed: %v", err)
	}
	if string(body) != "[]" {
		t.Errorf("snapshotBody(nil) = %q, want []", body)
	}
}

func TestSnapshotBody_SensitiveToEveryField(t *testing.T) {
	base := []Record{*testRecord("alpha")}
	baseBody, err := snapshotBody(base)
	if err != nil {
		t.Fatalf("snapshotBody() failed: %v", err)
	}

	mutations := map[string]func(*Record){
		"identity":     func(r *Record) { r.Identity = "other" },
		"type":         func(r *Record) { r.Type = "lock-table" },
		"inputs_hash":  func(r *Record) { r.InputsHash = "other" },
		"protect":      func(r *Record) { r.Protect = true },
		"dependencies": func(r *Record) { r.Dependencies = []string{"x"} },
		"seq":          func(r *Record) { r.Seq = 99 },
	}

	for field, mutate := range mutations {
		rec := *testRecord("alpha")
		mutate(&rec)
		body, err := snapshotBody([]Record{rec})
		if err != nil {
			t.Fatalf("snapshotBody() with %s mutated failed: %v", field, err)
		}
		if string(body) == string(baseBody) {
			t.Errorf("snapshotBody() unchanged when %s differs", field)
		}
	}
}
