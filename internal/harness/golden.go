package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/groundworklabs/groundwork/internal/engine"
)

// Transcript renders a run as a deterministic text document: each step's
// plan, its applied counts, and the final record set. Under parallelism 1
// and sequential tokens the provider assigns the same identities every
// run, so the transcript compares byte for byte.
func Transcript(scenario *Scenario, result *RunResult) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenario.Name)

	for _, step := range result.Steps {
		fmt.Fprintf(&buf, "\n== %s ==\n", step.Label)
		if err := engine.RenderText(&buf, step.Plan); err != nil {
			return nil, err
		}
		if step.Result != nil {
			res := step.Result
			fmt.Fprintf(&buf, "applied: created=%d updated=%d replaced=%d destroyed=%d failed=%d skipped=%d\n",
				res.Created, res.Updated, res.Replaced, res.Destroyed, res.Failed, res.Skipped)
		}
	}

	fmt.Fprintf(&buf, "\n== final state ==\n")
	fmt.Fprintf(&buf, "serial: %d\n", result.Snapshot.Serial)
	if len(result.Snapshot.Records) == 0 {
		fmt.Fprintln(&buf, "no records")
	}
	for _, rec := range result.Snapshot.Records {
		fmt.Fprintf(&buf, "%s (%s) id=%s protect=%v deps=%v\n",
			rec.Name, rec.Type, rec.Identity, rec.Protect, rec.Dependencies)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, runner *Runner, scenario *Scenario) (*RunResult, error) {
	t.Helper()

	result, err := runner.Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	transcript, err := Transcript(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, transcript)
	return result, nil
}
