package nodeflow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeze_BatchesEdits(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()
	passes := tree.Stats().Passes

	tree.Freeze()
	require.NoError(t, tree.SetParameter(ctx, "A", "value", 2.0))
	require.NoError(t, tree.SetParameter(ctx, "A", "value", 3.0))
	require.NoError(t, tree.SetParameter(ctx, "B", "label", "x"))

	assert.True(t, tree.Frozen())
	assert.Empty(t, rec.names)
	assert.Equal(t, passes, tree.Stats().Passes)
	assert.Equal(t, 3, tree.Stats().Deferred)
	assert.Equal(t, PhaseCollecting, tree.Phase())
	assert.Len(t, tree.DirtySet(), 4)

	require.NoError(t, tree.Unfreeze(ctx, false))

	assert.Equal(t, passes+1, tree.Stats().Passes)
	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.names, "each dirty node runs once")
	assert.InDelta(t, 3.0, value(t, tree, "C"), 1e-9)
	assert.Equal(t, PhaseIdle, tree.Phase())
}

func TestFreeze_Nests(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()

	tree.Freeze()
	tree.Freeze()
	require.NoError(t, tree.SetParameter(ctx, "B", "label", "x"))

	require.NoError(t, tree.Unfreeze(ctx, false))
	assert.True(t, tree.Frozen())
	assert.Empty(t, rec.names)

	require.NoError(t, tree.Unfreeze(ctx, false))
	assert.False(t, tree.Frozen())
	assert.Equal(t, []string{"B", "C"}, rec.names)

	require.NoError(t, tree.Unfreeze(ctx, false), "unfreezing an open gate is harmless")
}

func TestFreeze_HardUnfreezeRecomputesAll(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()

	tree.Freeze()
	tree.Freeze()
	require.NoError(t, tree.SetParameter(ctx, "B", "label", "x"))
	require.NoError(t, tree.Unfreeze(ctx, true))

	assert.False(t, tree.Frozen())
	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.names)
	assert.Empty(t, tree.DirtySet())
}

func TestRecompute(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	require.NoError(t, tree.Recompute(context.Background()))

	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.names)
}

func TestPurgeCaches(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	require.NoError(t, tree.PurgeCaches())

	assert.Empty(t, rec.names, "purging does not run anything")
	assert.Len(t, tree.DirtySet(), 4)
	_, ok := mustNode(t, tree, "C").Value("out")
	assert.False(t, ok)

	require.NoError(t, tree.Update(context.Background()))
	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.names)
	assert.InDelta(t, 1.0, value(t, tree, "C"), 1e-9)
}

func bakeTree(t *testing.T) (*Tree, *[]string) {
	t.Helper()
	e := newTestEngine(t, &recorder{})
	var baked []string
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name:     "out",
		In:       []SocketSpec{{Name: "x", Default: 0.0}},
		Defaults: map[string]any{"bake": false, "show": false, "broken": false},
		Process: func(Context, Inputs, config.Config) (Outputs, error) {
			return nil, nil
		},
		Bake: func(ctx Context, in Inputs, params config.Config) error {
			if params.Bool("broken", false) {
				return errBoom
			}
			baked = append(baked, ctx.NodeName())
			return nil
		},
		Panel: func(params config.Config) bool {
			return params.Bool("show", false)
		},
	})))
	tree, err := e.NewTree("T")
	require.NoError(t, err)

	ctx := context.Background()
	for name, params := range map[string]map[string]any{
		"O1": {"bake": true, "show": true},
		"O2": {"bake": false, "show": true},
		"O3": {"bake": true},
		"O4": {"bake": true, "broken": true},
	} {
		_, err := tree.AddNode(ctx, "out", name, params)
		require.NoError(t, err)
	}
	_, err = tree.AddNode(ctx, "source", "S", nil)
	require.NoError(t, err)
	return tree, &baked
}

func TestBakeAll(t *testing.T) {
	tree, baked := bakeTree(t)

	n, err := tree.BakeAll(context.Background())

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"O1", "O3"}, *baked)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	var procErr *ProcessorError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "O4", procErr.Node)
	assert.Equal(t, "bake", procErr.Op)
}

func TestPanelNodes(t *testing.T) {
	tree, _ := bakeTree(t)

	assert.Equal(t, []string{"O1", "O2"}, tree.PanelNodes())
}

func TestHandle_NodeUpdated(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()
	n := event.Notification{Callback: "node_update", NodeName: "A", Params: map[string]any{"value": 6.0}}

	require.NoError(t, tree.Handle(ctx, n))
	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.names)
	assert.InDelta(t, 6.0, value(t, tree, "C"), 1e-9)

	rec.reset()
	require.NoError(t, tree.Handle(ctx, n))
	assert.Empty(t, rec.names, "a repeated notification is dropped")

	events := tree.engine.Events()
	require.Len(t, events, 2)
	assert.Equal(t, event.NodeUpdated, events[0].Kind)
	assert.False(t, events[0].Duplicate)
	assert.True(t, events[1].Duplicate)
	assert.Equal(t, "T", events[1].Source.Tree)
}

func TestHandle_DirectEditResetsDuplicateHistory(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()
	n := event.Notification{Callback: "node_update", NodeName: "A", Params: map[string]any{"value": 6.0}}

	require.NoError(t, tree.Handle(ctx, n))
	require.NoError(t, tree.SetParameter(ctx, "A", "value", 2.0))
	require.NoError(t, tree.Handle(ctx, n))

	assert.InDelta(t, 6.0, value(t, tree, "A"), 1e-9)
	assert.False(t, tree.engine.Events()[1].Duplicate)
}

func TestHandle_StructureChangeStartsNewCycle(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)
	ctx := context.Background()
	n := event.Notification{Callback: "node_update", NodeName: "B", Params: map[string]any{"label": "x"}}

	require.NoError(t, tree.Handle(ctx, n))
	require.NoError(t, tree.Handle(ctx, event.Notification{Callback: "node_tree_update"}))
	rec.reset()
	require.NoError(t, tree.Handle(ctx, n))

	assert.Equal(t, []string{"B", "C"}, rec.names)
	events := tree.engine.Events()
	require.Len(t, events, 3)
	assert.Equal(t, uint64(1), events[0].Cycle)
	assert.Equal(t, event.GraphStructureChanged, events[1].Kind)
	assert.Equal(t, uint64(2), events[2].Cycle)
	assert.False(t, events[2].Duplicate)
}

func TestHandle_StructuralEdits(t *testing.T) {
	rec := &recorder{}
	tree := newTestTree(t, rec)
	ctx := context.Background()

	steps := []event.Notification{
		{Callback: "add_node", NodeType: "source", NodeName: "A", Params: map[string]any{"value": 2.0}},
		{Callback: "add_node", NodeType: "sum", NodeName: "B"},
		{Callback: "add_link_to_node", Link: &event.LinkSpec{FromNode: "A", FromSocket: "out", ToNode: "B", ToSocket: "a"}},
		{Callback: "copy_node", SourceName: "A", NodeName: "A2"},
		{Callback: "add_link_to_node", Link: &event.LinkSpec{FromNode: "A2", FromSocket: "out", ToNode: "B", ToSocket: "b"}},
	}
	for _, n := range steps {
		require.NoError(t, tree.Handle(ctx, n), n.Callback)
	}
	assert.InDelta(t, 4.0, value(t, tree, "B"), 1e-9)

	require.NoError(t, tree.Handle(ctx, event.Notification{Callback: "free_node", NodeName: "A2"}))
	assert.InDelta(t, 2.0, value(t, tree, "B"), 1e-9)
	_, ok := tree.Node("A2")
	assert.False(t, ok)

	kinds := make([]event.Kind, 0, 6)
	for _, ev := range tree.engine.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []event.Kind{
		event.NodeAdded, event.NodeAdded, event.LinkAdded,
		event.NodeCopied, event.LinkAdded, event.NodeFreed,
	}, kinds)
}

func TestHandle_RejectedEditIsStillLogged(t *testing.T) {
	tree := newTestTree(t, &recorder{})

	err := tree.Handle(context.Background(), event.Notification{Callback: "add_node", NodeType: "nope", NodeName: "X"})

	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.True(t, strings.HasPrefix(err.Error(), "NodeAdded: "))
	assert.Len(t, tree.engine.Events(), 1)
	assert.Equal(t, PhaseIdle, tree.Phase())
}

func TestHandle_RetriesRejectedLink(t *testing.T) {
	tree := newTestTree(t, &recorder{})
	ctx := context.Background()
	_, err := tree.AddNode(ctx, "sum", "C", nil)
	require.NoError(t, err)
	link := event.Notification{
		Callback: "add_link_to_node",
		Link:     &event.LinkSpec{FromNode: "A", FromSocket: "out", ToNode: "C", ToSocket: "a"},
	}

	require.ErrorIs(t, tree.Handle(ctx, link), ErrNodeNotFound)
	require.NoError(t, tree.Handle(ctx, event.Notification{Callback: "add_node", NodeType: "source", NodeName: "A"}))
	require.NoError(t, tree.Handle(ctx, link))

	events := tree.engine.Events()
	require.Len(t, events, 3)
	assert.False(t, events[2].Duplicate, "the retry is applied")
	assert.Len(t, tree.Graph().Links(), 1)
	assert.InDelta(t, 1.0, value(t, tree, "C"), 1e-9)

	require.NoError(t, tree.Handle(ctx, link))
	assert.True(t, tree.engine.Events()[3].Duplicate, "an applied link is a baseline")
}

func TestHandle_UnrecognizedIsDropped(t *testing.T) {
	tree := newTestTree(t, &recorder{})

	require.NoError(t, tree.Handle(context.Background(), event.Notification{Callback: "draw_buttons"}))
	require.NoError(t, tree.Handle(context.Background(), event.Notification{Callback: "node_update"}))

	assert.Empty(t, tree.engine.Events())
}

func TestHandle_LinkSnapshotReconciles(t *testing.T) {
	rec := &recorder{}
	tree := diamond(t, rec)

	err := tree.Handle(context.Background(), event.Notification{
		Callback: "node_tree_update",
		Links: []event.LinkSpec{
			{FromNode: "A", FromSocket: "out", ToNode: "B", ToSocket: "a"},
			{FromNode: "B", FromSocket: "out", ToNode: "C", ToSocket: "a"},
			{FromNode: "D", FromSocket: "out", ToNode: "C", ToSocket: "b"},
		},
	})
	require.NoError(t, err)

	a, c, d := mustNode(t, tree, "A").ID(), mustNode(t, tree, "C").ID(), mustNode(t, tree, "D").ID()
	assert.Len(t, tree.Graph().Links(), 3)
	assert.Equal(t, ids(t, tree, "B"), tree.Graph().Successors(a))
	assert.Equal(t, []NodeID{c}, tree.Graph().Successors(d))
	assert.InDelta(t, 0.0, value(t, tree, "D"), 1e-9)
	assert.InDelta(t, 1.0, value(t, tree, "C"), 1e-9)
	assert.Equal(t, []string{"D", "C"}, rec.names)
}

func TestHandle_LinkSnapshotReportsUnknownNodes(t *testing.T) {
	tree := diamond(t, &recorder{})

	err := tree.Handle(context.Background(), event.Notification{
		Callback: "node_tree_update",
		Links: []event.LinkSpec{
			{FromNode: "A", FromSocket: "out", ToNode: "B", ToSocket: "a"},
			{FromNode: "Z", FromSocket: "out", ToNode: "C", ToSocket: "a"},
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.ErrorIs(t, err, ErrInvalidLink)
	assert.Len(t, tree.Graph().Links(), 1)
}

func TestHandle_VerboseEventLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tree := newTestTree(t, &recorder{}, WithLogger(logger), WithVerbose(true))
	ctx := context.Background()

	require.NoError(t, tree.Handle(ctx, event.Notification{Callback: "add_node", NodeType: "sum", NodeName: "B"}))
	require.NoError(t, tree.Handle(ctx, event.Notification{Callback: "node_update", NodeName: "B", Params: map[string]any{"label": "x"}}))

	out := buf.String()
	assert.Contains(t, out, "EVENT: NodeAdded")
	assert.Contains(t, out, "IN: sum")
	assert.Contains(t, out, "INSTANCE: B")
	assert.Contains(t, out, "EVENT: NodeUpdated")
	assert.Contains(t, out, "tree_id=T")
}

func TestEdit_RejectedDuringPass(t *testing.T) {
	e := newTestEngine(t, &recorder{})
	tree, err := e.NewTree("T")
	require.NoError(t, err)

	var errs []error
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "meddler",
		Process: func(ctx Context, _ Inputs, _ config.Config) (Outputs, error) {
			_, addErr := tree.AddNode(ctx, "source", "X", nil)
			_, bakeErr := tree.BakeAll(ctx)
			errs = append(errs,
				addErr,
				tree.RemoveLink(ctx, "M", "x"),
				tree.Update(ctx),
				tree.Unfreeze(ctx, true),
				tree.PurgeCaches(),
				bakeErr,
			)
			return nil, nil
		},
	})))

	_, err = tree.AddNode(context.Background(), "meddler", "M", nil)
	require.NoError(t, err)

	require.Len(t, errs, 6)
	for i, err := range errs {
		assert.ErrorIs(t, err, ErrPassInProgress, "call %d", i)
	}
	_, ok := tree.Node("X")
	assert.False(t, ok)
}

func TestHandle_OtherTreeWaitsForPass(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := &recorder{}
	e := newTestEngine(t, rec, WithLogger(logger), WithVerbose(true))
	left, err := e.NewTree("L")
	require.NoError(t, err)
	right, err := e.NewTree("R")
	require.NoError(t, err)
	ctx := context.Background()

	var directErr error
	passesDuring := -1
	require.NoError(t, e.RegisterKind(NewKind(KindSpec{
		Name: "relay",
		Process: func(pctx Context, _ Inputs, params config.Config) (Outputs, error) {
			rec.record(pctx)
			if !params.Bool("armed", false) || passesDuring >= 0 {
				return nil, nil
			}
			require.NoError(t, e.Handle(pctx, event.Notification{
				Callback: "node_update", Tree: "R", NodeName: "B",
				Params: map[string]any{"value": 5.0},
			}))
			require.NoError(t, e.Handle(pctx, event.Notification{
				Callback: "add_node", Tree: "R", NodeType: "source", NodeName: "C",
			}))
			directErr = right.SetParameter(pctx, "B", "value", 9.0)
			passesDuring = right.Stats().Passes
			return nil, nil
		},
	})))
	_, err = right.AddNode(ctx, "source", "B", nil)
	require.NoError(t, err)
	_, err = left.AddNode(ctx, "relay", "H", nil)
	require.NoError(t, err)
	passesBefore := right.Stats().Passes
	rec.reset()

	require.NoError(t, left.SetParameter(ctx, "H", "armed", true))

	assert.ErrorIs(t, directErr, ErrPassInProgress)
	assert.Equal(t, passesBefore, passesDuring, "no pass runs inside another tree's pass")
	assert.Equal(t, passesBefore+1, right.Stats().Passes)
	assert.Equal(t, 2, right.Stats().Queued)
	require.NotEmpty(t, rec.names)
	assert.Equal(t, "H", rec.names[0])
	assert.ElementsMatch(t, []string{"B", "C"}, rec.names[1:])
	assert.InDelta(t, 5.0, value(t, right, "B"), 1e-9)
	assert.Equal(t, PhaseIdle, right.Phase())

	var queued []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "edit queued during pass") {
			queued = append(queued, line)
		}
	}
	require.Len(t, queued, 1, "only structural edits are reported")
	assert.Contains(t, queued[0], "tree_id=R")
	assert.Contains(t, queued[0], "event=NodeAdded")
}
