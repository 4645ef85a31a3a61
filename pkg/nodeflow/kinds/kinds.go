package kinds

import (
	"errors"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// Scene receives baked viewer data.
type Scene interface {
	Put(object string, values []float64) error
}

// SceneFunc adapts a function to Scene.
type SceneFunc func(object string, values []float64) error

// Put calls f.
func (f SceneFunc) Put(object string, values []float64) error { return f(object, values) }

// Option configures the kinds built by All and Register.
type Option func(*options)

type options struct {
	scene Scene
}

// WithScene sets where viewer nodes bake to. Without a scene, baking only
// logs.
func WithScene(s Scene) Option {
	return func(o *options) {
		o.scene = s
	}
}

// All returns every kind in this package.
func All(opts ...Option) []nodeflow.NodeKind {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return []nodeflow.NodeKind{
		Number(),
		Range(),
		Add(),
		Scale(),
		Mask(),
		Viewer(o.scene),
	}
}

// Register adds every kind in this package to e.
func Register(e *nodeflow.Engine, opts ...Option) error {
	var errs []error
	for _, k := range All(opts...) {
		if err := e.RegisterKind(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
