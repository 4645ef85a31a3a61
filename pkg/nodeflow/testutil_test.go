package nodeflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/stretchr/testify/require"
)

// recorder collects the names of executed nodes in order.
type recorder struct {
	names []string
}

func (r *recorder) record(ctx Context) {
	r.names = append(r.names, ctx.NodeName())
}

func (r *recorder) reset() {
	r.names = nil
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sourceKind emits its "value" parameter.
func sourceKind(rec *recorder) NodeKind {
	return NewKind(KindSpec{
		Name:     "source",
		Out:      []SocketSpec{{Name: "out", DataKind: "float"}},
		Defaults: map[string]any{"value": 1.0},
		Process: func(ctx Context, _ Inputs, params config.Config) (Outputs, error) {
			rec.record(ctx)
			return Outputs{"out": params.Float("value", 0)}, nil
		},
	})
}

// sumKind adds its four inputs. The "fail" and "panic" parameters make it
// misbehave on demand.
func sumKind(rec *recorder) NodeKind {
	return NewKind(KindSpec{
		Name: "sum",
		In: []SocketSpec{
			{Name: "a", Default: 0.0},
			{Name: "b", Default: 0.0},
			{Name: "c", Default: 0.0},
			{Name: "d", Default: 0.0},
		},
		Out:      []SocketSpec{{Name: "out", DataKind: "float"}},
		Defaults: map[string]any{"fail": false, "panic": false},
		Process: func(ctx Context, in Inputs, params config.Config) (Outputs, error) {
			rec.record(ctx)
			if params.Bool("fail", false) {
				return nil, errBoom
			}
			if params.Bool("panic", false) {
				panic("kaboom")
			}
			total := in.Float("a", 0) + in.Float("b", 0) + in.Float("c", 0) + in.Float("d", 0)
			return Outputs{"out": total}, nil
		},
	})
}

func newTestEngine(t testing.TB, rec *recorder, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	e := NewEngine(opts...)
	require.NoError(t, e.RegisterKind(sourceKind(rec)))
	require.NoError(t, e.RegisterKind(sumKind(rec)))
	return e
}

func newTestTree(t testing.TB, rec *recorder, opts ...Option) *Tree {
	t.Helper()
	tree, err := newTestEngine(t, rec, opts...).NewTree("T")
	require.NoError(t, err)
	return tree
}

// build adds nodes given as name->kind and links given as
// "from->to.socket" (the source socket is always "out").
func build(t testing.TB, tree *Tree, nodes [][2]string, links [][3]string) {
	t.Helper()
	ctx := context.Background()
	for _, n := range nodes {
		_, err := tree.AddNode(ctx, n[1], n[0], nil)
		require.NoError(t, err)
	}
	for _, l := range links {
		require.NoError(t, tree.AddLink(ctx, l[0], "out", l[1], l[2]))
	}
}

func mustNode(t testing.TB, tree *Tree, name string) *Node {
	t.Helper()
	n, ok := tree.Node(name)
	require.True(t, ok, "node %s", name)
	return n
}

func value(t testing.TB, tree *Tree, name string) any {
	t.Helper()
	v, ok := mustNode(t, tree, name).Value("out")
	require.True(t, ok, "node %s has no value", name)
	return v
}

func ids(t testing.TB, tree *Tree, names ...string) []NodeID {
	t.Helper()
	out := make([]NodeID, len(names))
	for i, name := range names {
		out[i] = mustNode(t, tree, name).ID()
	}
	return out
}

func names(tree *Tree, ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = tree.graph.Name(id)
	}
	return out
}
