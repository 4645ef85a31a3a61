package kinds

import (
	"log/slog"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
)

// Viewer is a sink that shows "data" in the host scene. It bakes into
// scene when its "bake" parameter is set and appears on the side panel when
// "to3d" is set.
func Viewer(scene Scene) nodeflow.NodeKind {
	return nodeflow.NewKind(nodeflow.KindSpec{
		Name:     "viewer",
		In:       []nodeflow.SocketSpec{{Name: "data", DataKind: "floats"}},
		Defaults: map[string]any{"bake": true, "to3d": true},
		Process: func(ctx nodeflow.Context, in nodeflow.Inputs, _ config.Config) (nodeflow.Outputs, error) {
			ctx.Logger().Debug("viewer refreshed", slog.Int("values", len(in.Floats("data"))))
			return nil, nil
		},
		Bake: func(ctx nodeflow.Context, in nodeflow.Inputs, _ config.Config) error {
			values := in.Floats("data")
			ctx.Logger().Info("viewer baked", slog.Int("values", len(values)))
			if scene == nil {
				return nil
			}
			return scene.Put(ctx.NodeName(), values)
		},
		Panel: func(params config.Config) bool {
			return params.Bool("to3d", true)
		},
	})
}
