/*
Package config holds node parameters.

Every node in a tree carries a Config. Processors read it through typed
accessors that never fail: a missing key or a value of the wrong shape
yields the caller's default.

	func process(ctx nodeflow.Context, in nodeflow.Inputs, p config.Config) (nodeflow.Outputs, error) {
	    count := p.Int("count", 10)
	    step := p.Float("step", 1.0)
	    ...
	}

# Updates

Config values are never modified in place. A parameter edit produces a new
value with With or Merge, which is what lets the scheduler hand processors a
stable snapshot for the duration of a pass.

	next := p.With("count", 20)
	next = next.Merge(map[string]any{"step": 0.5})

# Numeric Coercion

YAML decodes integers as int and JSON decodes every number as float64, so
Int accepts integral floats and Float accepts any integer type. FloatSlice
accepts []any sequences of mixed numbers.

# Files

Parameter overrides can be loaded from disk:

	cfg, err := config.FromFile("params.yaml")
	cube := cfg.Sub("Cube") // per-node section
*/
package config
