package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundworklabs/groundwork/internal/attr"
)

func TestRenderTextNoChanges(t *testing.T) {
	p := &Plan{Entries: []PlanEntry{
		{Name: "bucket", Action: ActionNoop},
		{Name: "policy", Action: ActionNoop},
	}}
	p.Summary = summarize(p.Entries)

	var buf strings.Builder
	require.NoError(t, RenderText(&buf, p))
	assert.Equal(t, "No changes. 2 resource(s) are up to date.\n", buf.String())
}

func TestRenderTextChangeBlocks(t *testing.T) {
	p := &Plan{Entries: []PlanEntry{
		{
			Name:   "bucket",
			Type:   "object-store-bucket",
			Action: ActionCreate,
			Diff: attr.Diff{
				"name":       {After: attr.NewString("tf-state")},
				"versioning": {After: attr.NewBool(true)},
			},
		},
		{
			Name:     "table",
			Type:     "lock-table",
			Action:   ActionUpdate,
			Identity: "mem-lock-table-1",
			Diff: attr.Diff{
				"billing_mode": {Before: attr.NewString("provisioned"), After: attr.NewString("on-demand")},
			},
		},
		{Name: "quiet", Type: "lock-table", Action: ActionNoop},
		{
			Name:      "old",
			Type:      "assumable-role",
			Action:    ActionDestroy,
			Identity:  "mem-assumable-role-7",
			Protected: true,
			Diff: attr.Diff{
				"name": {Before: attr.NewString("ci")},
			},
		},
	}}
	p.Summary = summarize(p.Entries)

	var buf strings.Builder
	require.NoError(t, RenderText(&buf, p))

	want := strings.Join([]string{
		"+ bucket (object-store-bucket)",
		`    + name = "tf-state"`,
		"    + versioning = true",
		"",
		"~ table (lock-table) id=mem-lock-table-1",
		`    ~ billing_mode = "provisioned" -> "on-demand"`,
		"",
		"- old (assumable-role) id=mem-assumable-role-7 [protected]",
		`    - name = "ci"`,
		"",
		"Plan: 1 to create, 1 to update, 0 to replace, 1 to destroy. 1 unchanged.",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestRenderTextReplaceMarksForcedAttributes(t *testing.T) {
	p := &Plan{Entries: []PlanEntry{
		{
			Name:     "bucket",
			Type:     "object-store-bucket",
			Action:   ActionReplace,
			Identity: "mem-object-store-bucket-1",
			Diff: attr.Diff{
				"name": {Before: attr.NewString("alpha"), After: attr.NewString("beta"), ForcesReplace: true},
			},
		},
	}}
	p.Summary = summarize(p.Entries)

	var buf strings.Builder
	require.NoError(t, RenderText(&buf, p))

	out := buf.String()
	assert.Contains(t, out, "-/+ bucket (object-store-bucket) id=mem-object-store-bucket-1\n")
	assert.Contains(t, out, `    ~ name = "alpha" -> "beta" (forces replacement)`+"\n")
	assert.Contains(t, out, "Plan: 0 to create, 0 to update, 1 to replace, 0 to destroy. 0 unchanged.\n")
}

func TestRenderJSON(t *testing.T) {
	p := &Plan{Entries: []PlanEntry{
		{
			Name:   "bucket",
			Type:   "object-store-bucket",
			Action: ActionCreate,
			Diff:   attr.Diff{"name": {After: attr.NewString("tf-state")}},
		},
		{Name: "table", Type: "lock-table", Action: ActionNoop, Identity: "mem-lock-table-1"},
	}}
	p.Summary = summarize(p.Entries)

	var buf strings.Builder
	require.NoError(t, RenderJSON(&buf, p))

	var decoded struct {
		Entries []struct {
			Name   string `json:"name"`
			Action string `json:"action"`
		} `json:"entries"`
		Summary map[string]int `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &decoded))

	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, "create", decoded.Entries[0].Action)
	assert.Equal(t, "no-op", decoded.Entries[1].Action)
	assert.Equal(t, 1, decoded.Summary["create"])
	assert.Equal(t, 1, decoded.Summary["no_op"])
}
