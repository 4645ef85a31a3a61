package nodeflow

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds A->B->C and A->D.
func diamond(t *testing.T, rec *recorder) *Tree {
	t.Helper()
	tree := newTestTree(t, rec)
	build(t, tree,
		[][2]string{{"A", "source"}, {"B", "sum"}, {"C", "sum"}, {"D", "sum"}},
		[][3]string{{"A", "B", "a"}, {"B", "C", "a"}, {"A", "D", "a"}},
	)
	rec.reset()
	return tree
}

func TestPass_RunsDirtyNodesInOrder(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	require.NoError(t, tree.SetParameter(context.Background(), "A", "value", 5.0))

	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.names)
	assert.Equal(t, []string{"A", "D", "B", "C"}, names(tree, tree.LastPass().Executed))
	for _, name := range []string{"A", "B", "C", "D"} {
		assert.InDelta(t, 5.0, value(t, tree, name), 1e-9, name)
		assert.False(t, mustNode(t, tree, name).Dirty(), name)
	}
	assert.Empty(t, tree.DirtySet())
	assert.Equal(t, PhaseIdle, tree.Phase())
	assert.NotEmpty(t, tree.LastPass().ID)
}

func TestPass_OnlyDownstreamRuns(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	require.NoError(t, tree.SetParameter(context.Background(), "B", "label", "x"))

	assert.Equal(t, []string{"B", "C"}, rec.names)
}

func TestPass_LinkMarksDestinationDirty(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	require.NoError(t, tree.AddLink(context.Background(), "D", "out", "C", "b"))

	assert.Equal(t, []string{"C"}, rec.names)
	assert.InDelta(t, 2.0, value(t, tree, "C"), 1e-9)
}

func TestPass_Idempotent(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	passes := tree.Stats().Passes

	require.NoError(t, tree.Update(context.Background()))
	require.NoError(t, tree.Update(context.Background()))

	assert.Empty(t, rec.names)
	assert.Equal(t, passes, tree.Stats().Passes)
}

func TestPass_RemoveNodeRerunsFormerSuccessors(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	require.NoError(t, tree.SetParameter(context.Background(), "A", "value", 4.0))
	rec.reset()

	require.NoError(t, tree.RemoveNode(context.Background(), "A"))

	assert.Equal(t, []string{"D", "B", "C"}, rec.names)
	assert.InDelta(t, 0.0, value(t, tree, "B"), 1e-9, "unlinked input reads its default")
	assert.InDelta(t, 0.0, value(t, tree, "D"), 1e-9)
}

// cyclic builds A->B, B->C, C->D and closes B<->C with C->B.
func cyclic(t *testing.T, rec *recorder) *Tree {
	t.Helper()
	tree := newTestTree(t, rec)
	build(t, tree,
		[][2]string{{"A", "source"}, {"B", "sum"}, {"C", "sum"}, {"D", "sum"}},
		[][3]string{{"A", "B", "a"}, {"B", "C", "a"}, {"C", "D", "a"}, {"C", "B", "b"}},
	)
	rec.reset()
	return tree
}

func TestPass_CycleIsContained(t *testing.T) {
	rec := &recorder{}
	tree := cyclic(t, rec)
	abcd := ids(t, tree, "A", "B", "C", "D")

	order := tree.Order()
	assert.Equal(t, []NodeID{abcd[0]}, order.Nodes)
	assert.Equal(t, abcd[1:], order.UnresolvedNodes())
	require.Len(t, order.Cycles, 1)
	assert.ElementsMatch(t, abcd[1:3], order.Cycles[0])

	for _, name := range []string{"B", "C", "D"} {
		n := mustNode(t, tree, name)
		assert.True(t, n.Unresolved(), name)
		assert.True(t, n.Dirty(), name)
		assert.Equal(t, FaultCycleUnresolved, n.Fault(), name)
		assert.InDelta(t, 1.0, value(t, tree, name), 1e-9, "last outputs are kept")
	}
	assert.Equal(t, FaultNone, mustNode(t, tree, "A").Fault())

	require.NoError(t, tree.SetParameter(context.Background(), "A", "value", 3.0))

	assert.Equal(t, []string{"A"}, rec.names)
	assert.Equal(t, abcd[1:], tree.LastPass().Skipped)
	assert.Equal(t, abcd[1:], tree.DirtySet())
	assert.InDelta(t, 1.0, value(t, tree, "D"), 1e-9)
}

func TestPass_CycleOnlyDoesNotExecute(t *testing.T) {
	rec := &recorder{}
	tree := cyclic(t, rec)
	passes := tree.Stats().Passes

	require.NoError(t, tree.SetParameter(context.Background(), "B", "label", "x"))

	assert.Empty(t, rec.names)
	assert.Equal(t, passes, tree.Stats().Passes)
	assert.Equal(t, PhaseIdle, tree.Phase())
}

func TestPass_BreakingCycleResumes(t *testing.T) {
	rec := &recorder{}
	tree := cyclic(t, rec)
	require.NoError(t, tree.SetParameter(context.Background(), "A", "value", 3.0))
	rec.reset()

	require.NoError(t, tree.RemoveLink(context.Background(), "B", "b"))

	assert.Equal(t, []string{"B", "C", "D"}, rec.names)
	for _, name := range []string{"B", "C", "D"} {
		n := mustNode(t, tree, name)
		assert.False(t, n.Unresolved(), name)
		assert.Equal(t, FaultNone, n.Fault(), name)
		assert.InDelta(t, 3.0, value(t, tree, name), 1e-9, name)
	}
	assert.Empty(t, tree.DirtySet())
	assert.Empty(t, tree.Order().Cycles)
}

func TestPass_ProcessorFailureIsIsolated(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()
	require.NoError(t, tree.SetParameter(ctx, "A", "value", 2.0))
	rec.reset()

	require.NoError(t, tree.SetParameters(ctx, "B", map[string]any{"fail": true}), "failures never surface as edit errors")

	b := mustNode(t, tree, "B")
	require.Error(t, b.Err())
	assert.ErrorIs(t, b.Err(), errBoom)
	var procErr *ProcessorError
	require.True(t, errors.As(b.Err(), &procErr))
	assert.Equal(t, "B", procErr.Node)
	assert.Equal(t, "sum", procErr.Kind)
	assert.Equal(t, FaultProcessorFailure, b.Fault())

	assert.InDelta(t, 2.0, value(t, tree, "B"), 1e-9, "outputs keep the last good value")
	assert.InDelta(t, 2.0, value(t, tree, "C"), 1e-9, "downstream still runs")
	assert.Equal(t, []string{"B", "C"}, rec.names)
	assert.Equal(t, []NodeID{b.ID()}, tree.LastPass().Failed)
	assert.Equal(t, []NodeID{b.ID()}, tree.DirtySet(), "failed nodes stay dirty")
	assert.True(t, b.Dirty())
	assert.Equal(t, 1, tree.Stats().Failures)

	require.NoError(t, tree.SetParameter(ctx, "B", "fail", false))
	assert.NoError(t, b.Err())
	assert.Equal(t, FaultNone, b.Fault())
	assert.Empty(t, tree.DirtySet())
}

func TestPass_FailedNodeIsRetried(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, rec)
	broken := true
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "flaky",
		In:   []SocketSpec{{Name: "x", Default: 0.0}},
		Out:  []SocketSpec{{Name: "out"}},
		Process: func(ctx Context, in Inputs, _ config.Config) (Outputs, error) {
			rec.record(ctx)
			if broken {
				return nil, errBoom
			}
			return Outputs{"out": in.Float("x", 0) * 2}, nil
		},
	})))
	tree, err := e.NewTree("T")
	require.NoError(t, err)
	build(t, tree,
		[][2]string{{"A", "source"}, {"F", "flaky"}, {"S", "sum"}, {"D", "sum"}},
		[][3]string{{"A", "F", "x"}, {"F", "S", "a"}, {"A", "D", "a"}},
	)
	ctx := context.Background()

	f := mustNode(t, tree, "F")
	require.ErrorIs(t, f.Err(), errBoom)
	assert.Equal(t, ids(t, tree, "F"), tree.DirtySet())
	assert.InDelta(t, 0.0, value(t, tree, "S"), 1e-9, "S ran on F's missing output")

	rec.reset()
	require.NoError(t, tree.Update(ctx))
	assert.Equal(t, []string{"F"}, rec.names, "a still failing node runs alone")
	assert.Equal(t, ids(t, tree, "F"), tree.LastPass().Failed)

	broken = false
	rec.reset()
	require.NoError(t, tree.Update(ctx))

	assert.Equal(t, []string{"F", "S"}, rec.names, "a recovered node re-runs its dependents")
	assert.NoError(t, f.Err())
	assert.Empty(t, tree.DirtySet())
	assert.InDelta(t, 2.0, value(t, tree, "S"), 1e-9)

	rec.reset()
	require.NoError(t, tree.Update(ctx))
	assert.Empty(t, rec.names)
}

func TestPass_PanicIsRecovered(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	require.NoError(t, tree.SetParameter(context.Background(), "C", "panic", true))

	c := mustNode(t, tree, "C")
	var panicErr *PanicError
	require.True(t, errors.As(c.Err(), &panicErr))
	assert.Equal(t, "C", panicErr.Node)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, FaultProcessorFailure, c.Fault())
	assert.Equal(t, PhaseIdle, tree.Phase())
}

func TestPass_OutputContract(t *testing.T) {
	e := newTestEngine(t, &recorder{})
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "partial",
		Out:  []SocketSpec{{Name: "x"}, {Name: "y"}},
		Process: func(Context, Inputs, config.Config) (Outputs, error) {
			return Outputs{"x": 1.0}, nil
		},
	})))
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "rogue",
		Out:  []SocketSpec{{Name: "x"}},
		Process: func(Context, Inputs, config.Config) (Outputs, error) {
			return Outputs{"x": 1.0, "bogus": 2.0}, nil
		},
	})))
	tree, err := e.NewTree("T")
	require.NoError(t, err)
	ctx := context.Background()

	p, err := tree.AddNode(ctx, "partial", "P", nil)
	require.NoError(t, err)
	y, ok := p.Value("y")
	assert.True(t, ok, "missing outputs are cached as nil")
	assert.Nil(t, y)
	assert.NoError(t, p.Err())

	r, err := tree.AddNode(ctx, "rogue", "R", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Err(), ErrUnknownOutput)
	_, ok = r.Value("x")
	assert.False(t, ok, "a rejected result caches nothing")
}

func TestPass_ProcessorSeesContext(t *testing.T) {
	e := newTestEngine(t, &recorder{})
	var got Context
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "inspect",
		Process: func(ctx Context, _ Inputs, _ config.Config) (Outputs, error) {
			got = ctx
			return nil, nil
		},
	})))
	tree, err := e.NewTree("T")
	require.NoError(t, err)

	n, err := tree.AddNode(context.Background(), "inspect", "P", nil)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "T", got.TreeID())
	assert.Equal(t, n.ID(), got.NodeID())
	assert.Equal(t, "P", got.NodeName())
	assert.Equal(t, tree.LastPass().ID, got.PassID())
	assert.NotNil(t, got.Logger())
}

func TestPass_ReentrantEdits(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, rec)
	tree, err := e.NewTree("T")
	require.NoError(t, err)

	var directErr, handleErr error
	fired := false
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "hook",
		In:   []SocketSpec{{Name: "x", Default: 0.0}},
		Out:  []SocketSpec{{Name: "out"}},
		Process: func(ctx Context, in Inputs, params config.Config) (Outputs, error) {
			rec.record(ctx)
			if params.Bool("armed", false) && !fired {
				fired = true
				assert.Equal(t, PhaseExecuting, tree.Phase())
				directErr = tree.SetParameter(ctx, "A", "value", 9.0)
				handleErr = tree.Handle(ctx, event.Notification{
					Callback: "node_update",
					NodeName: "A",
					Params:   map[string]any{"value": 7.0},
				})
			}
			return Outputs{"out": in.Float("x", 0)}, nil
		},
	})))
	ctx := context.Background()
	_, err = tree.AddNode(ctx, "source", "A", nil)
	require.NoError(t, err)
	_, err = tree.AddNode(ctx, "hook", "H", nil)
	require.NoError(t, err)
	require.NoError(t, tree.AddLink(ctx, "A", "out", "H", "x"))
	rec.reset()
	passes := tree.Stats().Passes

	require.NoError(t, tree.SetParameter(ctx, "H", "armed", true))

	assert.ErrorIs(t, directErr, ErrPassInProgress)
	assert.NoError(t, handleErr)
	assert.Equal(t, 1, tree.Stats().Queued)
	assert.Equal(t, passes+2, tree.Stats().Passes, "the queued edit gets its own pass")
	assert.Equal(t, []string{"H", "A", "H"}, rec.names)
	assert.InDelta(t, 7.0, value(t, tree, "H"), 1e-9)
	assert.Equal(t, PhaseIdle, tree.Phase())
}

func TestScheduler_MarkDirtyClosure(t *testing.T) {
	tree := diamond(t, &recorder{})
	s := newScheduler()
	abcd := ids(t, tree, "A", "B", "C", "D")

	s.markDirty(tree.graph, abcd[1])
	assert.Equal(t, []NodeID{abcd[1], abcd[2]}, s.dirtyIDs())

	s.markDirty(tree.graph, NodeID(999))
	assert.Len(t, s.dirtyIDs(), 2, "unknown seeds are ignored")

	s.markAll(tree.graph)
	assert.Equal(t, abcd, s.dirtyIDs())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "collecting", PhaseCollecting.String())
	assert.Equal(t, "ordering", PhaseOrdering.String())
	assert.Equal(t, "executing", PhaseExecuting.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
