package engine

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// RenderText writes the human-facing plan: one block per change with its
// attribute movements, then the action summary. Converged nodes stay out of
// the listing and only count toward the summary.
func RenderText(w io.Writer, p *Plan) error {
	if !p.HasChanges() {
		_, err := fmt.Fprintf(w, "No changes. %d resource(s) are up to date.\n", p.Summary.Noop)
		return err
	}

	for _, entry := range p.Entries {
		if entry.Action == ActionNoop {
			continue
		}
		if err := renderEntry(w, entry); err != nil {
			return err
		}
	}

	s := p.Summary
	_, err := fmt.Fprintf(w, "Plan: %d to create, %d to update, %d to replace, %d to destroy. %d unchanged.\n",
		s.Create, s.Update, s.Replace, s.Destroy, s.Noop)
	return err
}

func renderEntry(w io.Writer, entry PlanEntry) error {
	header := fmt.Sprintf("%s %s (%s)", actionSymbol(entry.Action), entry.Name, entry.Type)
	if entry.Identity != "" {
		header += " id=" + entry.Identity
	}
	if entry.Protected {
		header += " [protected]"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	for _, key := range entry.Diff.SortedKeys() {
		line, err := renderChange(key, entry.Diff[key])
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func renderChange(key string, c attr.Change) (string, error) {
	suffix := ""
	if c.ForcesReplace {
		suffix = " (forces replacement)"
	}
	switch {
	case c.Before == nil:
		after, err := renderValue(c.After)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("    + %s = %s%s", key, after, suffix), nil
	case c.After == nil:
		before, err := renderValue(c.Before)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("    - %s = %s%s", key, before, suffix), nil
	default:
		before, err := renderValue(c.Before)
		if err != nil {
			return "", err
		}
		after, err := renderValue(c.After)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("    ~ %s = %s -> %s%s", key, before, after, suffix), nil
	}
}

func renderValue(v attr.Value) (string, error) {
	b, err := attr.MarshalValue(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func actionSymbol(a Action) string {
	switch a {
	case ActionCreate:
		return "+"
	case ActionUpdate:
		return "~"
	case ActionReplace:
		return "-/+"
	case ActionDestroy:
		return "-"
	default:
		return " "
	}
}

// RenderJSON writes the machine-facing plan as indented JSON.
func RenderJSON(w io.Writer, p *Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
