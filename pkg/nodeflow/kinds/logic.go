package kinds

import (
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/expr"
)

// Mask splits "data" by the "condition" parameter. The condition sees the
// element as x, its index as i, and every other parameter by name.
func Mask() nodeflow.NodeKind {
	return nodeflow.NewKind(nodeflow.KindSpec{
		Name: "logic.mask",
		In:   []nodeflow.SocketSpec{{Name: "data", DataKind: "floats"}},
		Out: []nodeflow.SocketSpec{
			{Name: "mask", DataKind: "bools"},
			{Name: "true", DataKind: "floats"},
			{Name: "false", DataKind: "floats"},
		},
		Defaults: map[string]any{"condition": "x > 0"},
		Process: func(_ nodeflow.Context, in nodeflow.Inputs, params config.Config) (nodeflow.Outputs, error) {
			cond, err := expr.Compile(params.String("condition", ""))
			if err != nil {
				return nil, fmt.Errorf("condition: %w", err)
			}

			data := in.Floats("data")
			values := make([]any, len(data))
			for i, f := range data {
				values[i] = f
			}
			mask := cond.Mask(values, params.Raw())

			yes := make([]float64, 0, len(data))
			no := make([]float64, 0, len(data))
			for i, keep := range mask {
				if keep {
					yes = append(yes, data[i])
				} else {
					no = append(no, data[i])
				}
			}
			return nodeflow.Outputs{"mask": mask, "true": yes, "false": no}, nil
		},
	})
}
