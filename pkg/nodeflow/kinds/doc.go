// Package kinds provides a few small node kinds for demos and tests.
//
//	engine := nodeflow.NewEngine()
//	if err := kinds.Register(engine); err != nil {
//	    return err
//	}
//
// Numeric sockets carry either a float64 or a []float64. Binary kinds match
// sequences element by element, repeating the last element of the shorter
// one.
package kinds
