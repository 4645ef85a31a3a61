package nodeflow

import "sync"

// FreezeGate is a reference-counted suspend flag.
//
// Freeze and Unfreeze nest: scheduling resumes only when every Freeze has
// been matched. Reset forces the count to zero.
// FreezeGate is safe for concurrent use. The zero value is open.
type FreezeGate struct {
	mu    sync.Mutex
	depth int
}

// Freeze engages the gate and returns the new depth.
func (g *FreezeGate) Freeze() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depth++
	return g.depth
}

// Unfreeze releases one level. It reports whether the gate is open
// afterwards. Unfreezing an open gate is a no-op that returns true.
func (g *FreezeGate) Unfreeze() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth > 0 {
		g.depth--
	}
	return g.depth == 0
}

// Reset opens the gate regardless of depth.
func (g *FreezeGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depth = 0
}

// Frozen reports whether the gate is engaged.
func (g *FreezeGate) Frozen() bool {
	return g.Depth() > 0
}

// Depth returns the number of unmatched Freeze calls.
func (g *FreezeGate) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth
}
