package cli

import (
	"fmt"
	"time"

	"github.com/groundworklabs/groundwork/internal/engine"
)

// resultView is the JSON shape of an apply or destroy outcome.
type resultView struct {
	Plan      *engine.Plan `json:"plan"`
	Nodes     []nodeView   `json:"nodes"`
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Replaced  int          `json:"replaced"`
	Destroyed int          `json:"destroyed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	OK        bool         `json:"ok"`
}

type nodeView struct {
	Name     string `json:"name"`
	Action   string `json:"action"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
	Duration string `json:"duration"`
}

func viewOf(res *engine.Result) resultView {
	v := resultView{
		Plan:      res.Plan,
		Nodes:     make([]nodeView, 0, len(res.Nodes)),
		Created:   res.Created,
		Updated:   res.Updated,
		Replaced:  res.Replaced,
		Destroyed: res.Destroyed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		OK:        res.OK(),
	}
	for _, name := range res.Names() {
		nr := res.Nodes[name]
		nv := nodeView{
			Name:     nr.Name,
			Action:   string(nr.Action),
			Status:   string(nr.Status),
			Attempts: nr.Attempts,
			Duration: nr.Duration.String(),
		}
		if nr.Err != nil {
			nv.Error = nr.Err.Error()
		}
		v.Nodes = append(v.Nodes, nv)
	}
	return v
}

// renderResult prints a pass outcome. verb is "Apply" or "Destroy" and
// only shapes the summary line.
func renderResult(formatter *OutputFormatter, res *engine.Result, verb string) error {
	if formatter.JSON() {
		return formatter.Success(viewOf(res))
	}

	w := formatter.Writer
	for _, name := range res.Names() {
		nr := res.Nodes[name]
		switch nr.Status {
		case engine.StatusApplied:
			fmt.Fprintf(w, "✓ %s %s (%s)\n",
				nr.Name, pastTense(nr.Action), nr.Duration.Round(time.Microsecond))
		case engine.StatusFailed:
			fmt.Fprintf(w, "✗ %s %s failed after %d attempt(s): %v\n",
				nr.Name, string(nr.Action), nr.Attempts, nr.Err)
		case engine.StatusSkipped:
			fmt.Fprintf(w, "- %s skipped: %v\n", nr.Name, nr.Err)
		}
	}
	if len(res.Nodes) > 0 {
		fmt.Fprintln(w)
	}

	outcome := "complete"
	if !res.OK() {
		outcome = "incomplete"
	}
	fmt.Fprintf(w, "%s %s. %d created, %d updated, %d replaced, %d destroyed.\n",
		verb, outcome, res.Created, res.Updated, res.Replaced, res.Destroyed)
	if !res.OK() {
		fmt.Fprintf(w, "%d node(s) failed, %d skipped.\n", res.Failed, res.Skipped)
	}
	return nil
}

func pastTense(a engine.Action) string {
	switch a {
	case engine.ActionCreate:
		return "created"
	case engine.ActionUpdate:
		return "updated"
	case engine.ActionReplace:
		return "replaced"
	case engine.ActionDestroy:
		return "destroyed"
	}
	return string(a)
}
