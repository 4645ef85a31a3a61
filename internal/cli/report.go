package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
)

// WriteReport renders r in the given format.
func WriteReport(w io.Writer, r *Report, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case formatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeText(w io.Writer, r *Report) error {
	var b strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "%3d  %-32s %s\n", s.Index, s.Label, outcome(s))
	}
	for _, t := range r.Trees {
		st := t.Stats
		fmt.Fprintf(&b, "\ntree %s: passes=%d executions=%d failures=%d deferred=%d queued=%d\n",
			t.ID, st.Passes, st.Executions, st.Failures, st.Deferred, st.Queued)
		for _, n := range t.Nodes {
			line := fmt.Sprintf("  %-8s %-10s %-16s %s", n.Name, n.Kind, n.Fault, outputs(n))
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
		if len(t.Panel) > 0 {
			fmt.Fprintf(&b, "  panel: %s\n", strings.Join(t.Panel, " "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func outcome(s StepResult) string {
	if s.Err != "" {
		return "error: " + s.Err
	}
	var parts []string
	if len(s.Ran) > 0 {
		parts = append(parts, "ran "+strings.Join(s.Ran, " "))
	}
	if len(s.Failed) > 0 {
		parts = append(parts, "failed "+strings.Join(s.Failed, " "))
	}
	if len(s.Skipped) > 0 {
		parts = append(parts, "skipped "+strings.Join(s.Skipped, " "))
	}
	if s.Deferred {
		parts = append(parts, "deferred")
	}
	if s.Baked > 0 {
		parts = append(parts, fmt.Sprintf("baked %d", s.Baked))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}

func outputs(n NodeState) string {
	parts := make([]string, 0, len(n.order)+1)
	for _, name := range n.order {
		v, ok := n.Outputs[name]
		if !ok {
			parts = append(parts, name+"=?")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, v))
	}
	if n.Err != "" {
		parts = append(parts, "error="+n.Err)
	}
	return strings.Join(parts, " ")
}
