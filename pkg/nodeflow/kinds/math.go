package kinds

import (
	"errors"
	"fmt"
	"math"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
)

// maxRange bounds the length of a generated range.
const maxRange = 1_000_000

var errBadStep = errors.New("step must be positive")

// Number emits its "value" parameter on "value".
func Number() nodeflow.NodeKind {
	return nodeflow.NewKind(nodeflow.KindSpec{
		Name:     "number",
		Out:      []nodeflow.SocketSpec{{Name: "value", DataKind: "float"}},
		Defaults: map[string]any{"value": 0.0},
		Process: func(_ nodeflow.Context, _ nodeflow.Inputs, params config.Config) (nodeflow.Outputs, error) {
			return nodeflow.Outputs{"value": params.Float("value", 0)}, nil
		},
	})
}

// Range emits start, start+step, ... up to but excluding stop.
func Range() nodeflow.NodeKind {
	return nodeflow.NewKind(nodeflow.KindSpec{
		Name: "range",
		In: []nodeflow.SocketSpec{
			{Name: "start", DataKind: "float", Default: 0.0},
			{Name: "stop", DataKind: "float", Default: 10.0},
			{Name: "step", DataKind: "float", Default: 1.0},
		},
		Out: []nodeflow.SocketSpec{{Name: "values", DataKind: "floats"}},
		Process: func(_ nodeflow.Context, in nodeflow.Inputs, _ config.Config) (nodeflow.Outputs, error) {
			start, stop, step := in.Float("start", 0), in.Float("stop", 0), in.Float("step", 1)
			if step <= 0 {
				return nil, fmt.Errorf("%w: %g", errBadStep, step)
			}
			n := int(math.Ceil((stop - start) / step))
			if n < 0 {
				n = 0
			}
			if n > maxRange {
				return nil, fmt.Errorf("range of %d values exceeds %d", n, maxRange)
			}
			values := make([]float64, n)
			for i := range values {
				values[i] = start + float64(i)*step
			}
			return nodeflow.Outputs{"values": values}, nil
		},
	})
}

// Add sums "a" and "b" element by element.
func Add() nodeflow.NodeKind {
	return nodeflow.NewKind(nodeflow.KindSpec{
		Name: "add",
		In: []nodeflow.SocketSpec{
			{Name: "a", DataKind: "float", Default: 0.0},
			{Name: "b", DataKind: "float", Default: 0.0},
		},
		Out: []nodeflow.SocketSpec{{Name: "sum", DataKind: "float"}},
		Process: func(_ nodeflow.Context, in nodeflow.Inputs, _ config.Config) (nodeflow.Outputs, error) {
			return nodeflow.Outputs{"sum": combine(in["a"], in["b"], func(a, b float64) float64 { return a + b })}, nil
		},
	})
}

// Scale multiplies "x" by the "factor" parameter.
func Scale() nodeflow.NodeKind {
	return nodeflow.NewKind(nodeflow.KindSpec{
		Name:     "scale",
		In:       []nodeflow.SocketSpec{{Name: "x", DataKind: "float", Default: 0.0}},
		Out:      []nodeflow.SocketSpec{{Name: "y", DataKind: "float"}},
		Defaults: map[string]any{"factor": 1.0},
		Process: func(_ nodeflow.Context, in nodeflow.Inputs, params config.Config) (nodeflow.Outputs, error) {
			factor := params.Float("factor", 1)
			return nodeflow.Outputs{"y": combine(in["x"], factor, func(x, f float64) float64 { return x * f })}, nil
		},
	})
}

// combine applies op to two scalars or element-wise to sequences, repeating
// the last element of the shorter side. Two scalars give a scalar.
func combine(a, b any, op func(x, y float64) float64) any {
	as, aSeq := floats(a)
	bs, bSeq := floats(b)
	if !aSeq && !bSeq {
		return op(as[0], bs[0])
	}
	if len(as) == 0 || len(bs) == 0 {
		return []float64{}
	}
	out := make([]float64, max(len(as), len(bs)))
	for i := range out {
		out[i] = op(as[min(i, len(as)-1)], bs[min(i, len(bs)-1)])
	}
	return out
}

// floats normalizes a socket value. Scalars become a one-element slice and
// report false.
func floats(v any) ([]float64, bool) {
	in := nodeflow.Inputs{"v": v}
	switch v.(type) {
	case []float64, []any:
		return in.Floats("v"), true
	default:
		return []float64{in.Float("v", 0)}, false
	}
}
