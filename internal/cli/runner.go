package cli

import (
	"context"
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// StepResult records what one script step did to its tree.
type StepResult struct {
	Index    int      `json:"index"`
	Label    string   `json:"label"`
	Tree     string   `json:"tree"`
	Ran      []string `json:"ran,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
	Deferred bool     `json:"deferred,omitempty"`
	Baked    int      `json:"baked,omitempty"`
	Err      string   `json:"error,omitempty"`
}

// NodeState is a node's state at the end of a run.
type NodeState struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Fault   string         `json:"fault"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Err     string         `json:"error,omitempty"`

	order []string
}

// TreeState is a tree's state at the end of a run.
type TreeState struct {
	ID    string         `json:"id"`
	Stats nodeflow.Stats `json:"stats"`
	Panel []string       `json:"panel,omitempty"`
	Nodes []NodeState    `json:"nodes"`
}

// Report is the outcome of replaying a script.
type Report struct {
	Steps []StepResult `json:"steps"`
	Trees []TreeState  `json:"trees"`
}

// Runner replays scripts against an engine.
type Runner struct {
	engine *nodeflow.Engine
}

// NewRunner creates a runner for e.
func NewRunner(e *nodeflow.Engine) *Runner {
	return &Runner{engine: e}
}

// Run replays every step of s. Rejected steps are recorded in the report
// and do not stop the run.
func (r *Runner) Run(ctx context.Context, s *Script) (*Report, error) {
	report := &Report{}
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := r.Step(ctx, s.Tree, step)
		if err != nil {
			return report, fmt.Errorf("step %d: %w", i+1, err)
		}
		res.Index = i + 1
		report.Steps = append(report.Steps, res)
	}
	report.Trees = r.Snapshot()
	return report, nil
}

// Step applies one step and reports its effect on the step's tree.
// The returned error is reserved for failures outside the graph.
func (r *Runner) Step(ctx context.Context, defaultTree string, step Step) (StepResult, error) {
	treeID := step.Tree
	if treeID == "" {
		treeID = defaultTree
	}
	step.Tree = treeID

	tree, err := r.tree(treeID)
	if err != nil {
		return StepResult{}, err
	}
	before := tree.Stats()

	res := StepResult{Label: step.Label(), Tree: treeID}
	var stepErr error
	switch step.Do {
	case "":
		stepErr = r.engine.Handle(ctx, step.Notification)
	case actionFreeze:
		r.engine.Freeze()
	case actionUnfreeze:
		stepErr = r.engine.Unfreeze(ctx, false)
	case actionUnfreezeHard:
		stepErr = r.engine.Unfreeze(ctx, true)
	case actionUpdateAll:
		stepErr = r.engine.UpdateAll(ctx)
	case actionUpdateCurrent:
		stepErr = r.engine.UpdateCurrent(ctx, treeID)
	case actionPurge:
		stepErr = tree.PurgeCaches()
	case actionBake:
		res.Baked, stepErr = tree.BakeAll(ctx)
	}
	if stepErr != nil {
		res.Err = stepErr.Error()
	}

	after := tree.Stats()
	if after.Passes > before.Passes {
		last := tree.LastPass()
		res.Ran = nodeNames(tree, last.Executed)
		res.Failed = nodeNames(tree, last.Failed)
		res.Skipped = nodeNames(tree, last.Skipped)
	}
	res.Deferred = after.Deferred > before.Deferred
	return res, nil
}

// Snapshot captures the state of every open tree.
func (r *Runner) Snapshot() []TreeState {
	var out []TreeState
	for _, id := range r.engine.Trees() {
		tree, ok := r.engine.Tree(id)
		if !ok {
			continue
		}
		ts := TreeState{ID: id, Stats: tree.Stats(), Panel: tree.PanelNodes()}
		for _, n := range tree.Graph().Nodes() {
			ts.Nodes = append(ts.Nodes, nodeState(n))
		}
		out = append(out, ts)
	}
	return out
}

func (r *Runner) tree(id string) (*nodeflow.Tree, error) {
	if t, ok := r.engine.Tree(id); ok {
		return t, nil
	}
	return r.engine.NewTree(id)
}

func nodeState(n *nodeflow.Node) NodeState {
	s := NodeState{
		Name:  n.Name(),
		Kind:  n.Kind().Name(),
		Fault: n.Fault().String(),
	}
	for _, out := range n.Outputs() {
		if s.Outputs == nil {
			s.Outputs = make(map[string]any)
		}
		s.order = append(s.order, out.Name())
		if v, ok := out.Value(); ok {
			s.Outputs[out.Name()] = v
		}
	}
	if err := n.Err(); err != nil {
		s.Err = err.Error()
	}
	return s
}

func nodeNames(tree *nodeflow.Tree, ids []nodeflow.NodeID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = tree.Graph().Name(id)
	}
	return out
}
