package nodeflow

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"

	"github.com/google/uuid"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// pass runs Ordering and, when any dirty node is runnable, Executing.
// It reports whether an Executing phase ran. Node failures never escape.
func (t *Tree) pass(ctx context.Context) bool {
	s := t.sched
	cfg := t.engine.cfg

	s.phase = PhaseOrdering
	order := s.orderFor(t.graph)
	if s.runnable(order) == 0 {
		t.reportUnresolved(ctx, order)
		s.phase = PhaseIdle
		return false
	}

	s.phase = PhaseExecuting
	t.engine.running.Store(t)
	s.stats.Passes++
	report := PassReport{ID: uuid.NewString()}
	elapsed := observability.TimedOperation()

	execCtx := ctx
	var span trace.Span
	if cfg.tracingEnabled {
		execCtx, span = cfg.spans.StartPassSpan(ctx, t.id, report.ID)
	}
	observability.LogPassStart(cfg.logger, t.id, report.ID, len(s.dirty))

	base := &execContext{logger: cfg.logger, treeID: t.id, passID: report.ID}
	for _, id := range order.Nodes {
		if _, dirty := s.dirty[id]; !dirty {
			continue
		}
		n := t.graph.nodes[id]
		retry := n.err != nil
		report.Executed = append(report.Executed, id)
		if err := t.executeNode(execCtx, base, n); err != nil {
			report.Failed = append(report.Failed, id)
			continue
		}
		s.clean(t.graph, id)
		if retry {
			// Dependents ran on the stale cache while this node was failing.
			s.markDirty(t.graph, slices.Collect(maps.Keys(t.graph.succ[id]))...)
		}
	}
	report.Skipped = t.reportUnresolved(execCtx, order)

	report.Duration = elapsed()
	s.last = report
	s.phase = PhaseIdle
	t.engine.running.Store(nil)

	cfg.metrics.RecordPass(execCtx, t.id, len(report.Executed), report.Duration)
	observability.LogPassComplete(cfg.logger, t.id, report.ID, report.Duration,
		len(report.Executed), len(report.Failed), len(report.Skipped))
	if cfg.tracingEnabled {
		cfg.spans.AddSpanEvent(execCtx, "pass.complete",
			attribute.Int("executed", len(report.Executed)),
			attribute.Int("failed", len(report.Failed)),
			attribute.Int("skipped", len(report.Skipped)))
		cfg.spans.EndSpanWithError(span, nil)
	}
	return true
}

// reportUnresolved logs the dirty nodes a cycle keeps from running.
func (t *Tree) reportUnresolved(ctx context.Context, order *Order) []NodeID {
	var skipped []NodeID
	for _, id := range t.sched.dirtyIDs() {
		if order.Unresolved(id) {
			skipped = append(skipped, id)
		}
	}
	if len(skipped) == 0 {
		return nil
	}

	cfg := t.engine.cfg
	names := make([]string, len(skipped))
	for i, id := range skipped {
		names[i] = t.graph.Name(id)
	}
	observability.LogUnresolved(cfg.logger, t.id, names)
	cfg.metrics.RecordUnresolved(ctx, t.id, len(skipped))
	return skipped
}

// executeNode runs one processor and updates the node's caches.
// On failure the outputs keep their previous values, the error is stored on
// the node and the node stays dirty, so the next pass retries it.
func (t *Tree) executeNode(ctx context.Context, base *execContext, n *Node) error {
	cfg := t.engine.cfg
	observability.LogNodeStart(cfg.logger, n.name)

	nodeCtx := ctx
	var span trace.Span
	if cfg.tracingEnabled {
		nodeCtx, span = cfg.spans.StartNodeSpan(ctx, n.name, n.kind.Name())
	}

	in := t.graph.gather(n)
	elapsed := observability.TimedOperation()
	out, err := invoke(base.forNode(nodeCtx, n), n, in)
	if err == nil {
		err = checkOutputs(n, out)
	}
	duration := elapsed()

	t.sched.stats.Executions++
	cfg.metrics.RecordNodeExecution(nodeCtx, n.kind.Name(), duration, err)
	if cfg.tracingEnabled {
		cfg.spans.EndSpanWithError(span, err)
	}

	if err != nil {
		t.sched.stats.Failures++
		n.err = err
		observability.LogNodeError(cfg.logger, n.name, err)
		return err
	}

	for _, s := range n.outputs {
		s.value = out[s.name]
		s.hasValue = true
	}
	n.err = nil
	observability.LogNodeComplete(cfg.logger, n.name, duration)
	return nil
}

// invoke calls the processor with panic recovery.
func invoke(ctx Context, n *Node, in Inputs) (out Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &PanicError{
				Node:  n.name,
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()

	out, err = n.kind.Process(ctx, in, n.params)
	if err != nil {
		return nil, &ProcessorError{Node: n.name, Kind: n.kind.Name(), Op: "process", Err: err}
	}
	return out, nil
}

func checkOutputs(n *Node, out Outputs) error {
	for name := range out {
		if n.Output(name) == nil {
			return &ProcessorError{
				Node: n.name,
				Kind: n.kind.Name(),
				Op:   "process",
				Err:  fmt.Errorf("%w: %q", ErrUnknownOutput, name),
			}
		}
	}
	return nil
}
