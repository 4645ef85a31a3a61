package nodeflow

import (
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/expr"
)

// SocketSpec declares one socket of a node kind.
type SocketSpec struct {
	// Name is unique among the kind's sockets of the same direction.
	Name string
	// DataKind is an opaque label for the host's type system.
	DataKind string
	// Default is the value an unlinked input reads. Ignored for outputs.
	Default any
}

// Inputs maps input socket names to the values gathered for a run.
// Processors must treat the values as read-only.
type Inputs map[string]any

// Float returns the input as a number, or defaultVal when it is not numeric.
func (in Inputs) Float(name string, defaultVal float64) float64 {
	if f, ok := expr.Number(in[name]); ok {
		return f
	}
	return defaultVal
}

// Floats returns the input as a flat list of numbers. A scalar becomes a
// one-element list; non-numeric elements are skipped.
func (in Inputs) Floats(name string) []float64 {
	switch v := in[name].(type) {
	case nil:
		return nil
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			if f, ok := expr.Number(item); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		if f, ok := expr.Number(v); ok {
			return []float64{f}
		}
		return nil
	}
}

// Outputs maps output socket names to produced values.
type Outputs map[string]any

// NodeKind is the processing capability shared by every node of one kind.
//
// Process must not touch the graph. It receives a snapshot of its inputs and
// the node's parameters and returns values for its declared outputs.
// Outputs it leaves out are cached as nil.
type NodeKind interface {
	Name() string
	Inputs() []SocketSpec
	Outputs() []SocketSpec
	Parameters() map[string]any
	Process(ctx Context, in Inputs, params config.Config) (Outputs, error)
}

// Baker is implemented by kinds that can write their result into the host
// scene. Tree.BakeAll calls it for nodes whose "bake" parameter is true.
type Baker interface {
	Bake(ctx Context, in Inputs, params config.Config) error
}

// Paneled is implemented by kinds that can expose a node on the host's
// side panel.
type Paneled interface {
	OnPanel(params config.Config) bool
}

// ProcessFunc is the function form of NodeKind.Process.
type ProcessFunc func(ctx Context, in Inputs, params config.Config) (Outputs, error)

// KindSpec describes a node kind built from functions.
type KindSpec struct {
	Name     string
	In       []SocketSpec
	Out      []SocketSpec
	Defaults map[string]any
	Process  ProcessFunc

	// Bake, when set, makes the kind a Baker.
	Bake func(ctx Context, in Inputs, params config.Config) error
	// Panel, when set, makes the kind Paneled.
	Panel func(params config.Config) bool
}

// NewKind builds a NodeKind from a spec. The result implements Baker and
// Paneled only when the matching functions are set.
//
// Example:
//
//	double := nodeflow.NewKind(nodeflow.KindSpec{
//	    Name: "double",
//	    In:   []nodeflow.SocketSpec{{Name: "x", Default: 0.0}},
//	    Out:  []nodeflow.SocketSpec{{Name: "y"}},
//	    Process: func(_ nodeflow.Context, in nodeflow.Inputs, _ config.Config) (nodeflow.Outputs, error) {
//	        return nodeflow.Outputs{"y": in.Float("x", 0) * 2}, nil
//	    },
//	})
func NewKind(spec KindSpec) NodeKind {
	base := &funcKind{spec: spec}
	switch {
	case spec.Bake != nil && spec.Panel != nil:
		return &bakePanelKind{base}
	case spec.Bake != nil:
		return &bakeKind{base}
	case spec.Panel != nil:
		return &panelKind{base}
	default:
		return base
	}
}

type funcKind struct {
	spec KindSpec
}

func (k *funcKind) Name() string               { return k.spec.Name }
func (k *funcKind) Inputs() []SocketSpec       { return k.spec.In }
func (k *funcKind) Outputs() []SocketSpec      { return k.spec.Out }
func (k *funcKind) Parameters() map[string]any { return k.spec.Defaults }

func (k *funcKind) Process(ctx Context, in Inputs, params config.Config) (Outputs, error) {
	if k.spec.Process == nil {
		return Outputs{}, nil
	}
	return k.spec.Process(ctx, in, params)
}

type bakeKind struct{ *funcKind }

func (k *bakeKind) Bake(ctx Context, in Inputs, params config.Config) error {
	return k.spec.Bake(ctx, in, params)
}

type panelKind struct{ *funcKind }

func (k *panelKind) OnPanel(params config.Config) bool { return k.spec.Panel(params) }

type bakePanelKind struct{ *funcKind }

func (k *bakePanelKind) Bake(ctx Context, in Inputs, params config.Config) error {
	return k.spec.Bake(ctx, in, params)
}

func (k *bakePanelKind) OnPanel(params config.Config) bool { return k.spec.Panel(params) }
