package nodeflow

import (
	"maps"
	"slices"
	"time"
)

// Phase is the state of a tree's scheduling state machine.
type Phase int

const (
	// PhaseIdle means nothing is pending.
	PhaseIdle Phase = iota
	// PhaseCollecting means edits are being recorded into the dirty set.
	PhaseCollecting
	// PhaseOrdering means the execution order is being consulted.
	PhaseOrdering
	// PhaseExecuting means processors are running.
	PhaseExecuting
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCollecting:
		return "collecting"
	case PhaseOrdering:
		return "ordering"
	case PhaseExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Stats counts scheduler activity over the life of a tree.
type Stats struct {
	// Passes is the number of Executing phases entered.
	Passes int
	// Executions is the number of processor invocations.
	Executions int
	// Failures is the number of invocations that failed or panicked.
	Failures int
	// Deferred is the number of passes held back by a freeze gate.
	Deferred int
	// Queued is the number of notifications received during a pass.
	Queued int
}

// PassReport describes one Executing phase.
type PassReport struct {
	ID string
	// Executed lists the nodes run, in execution order. Failed nodes are included.
	Executed []NodeID
	// Failed lists the nodes whose processor failed. They stay dirty and
	// are retried by the next pass.
	Failed []NodeID
	// Skipped lists dirty nodes left pending because they are unresolved.
	Skipped  []NodeID
	Duration time.Duration
}

// scheduler holds the dirty set and the cached order of one tree.
type scheduler struct {
	phase Phase
	dirty map[NodeID]struct{}
	order *Order
	stats Stats
	last  PassReport
}

func newScheduler() *scheduler {
	return &scheduler{dirty: make(map[NodeID]struct{})}
}

// markDirty adds each seed and every node reachable from it.
func (s *scheduler) markDirty(g *Graph, seeds ...NodeID) {
	queue := make([]NodeID, 0, len(seeds))
	for _, id := range seeds {
		if _, ok := g.nodes[id]; ok {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := s.dirty[id]; seen {
			continue
		}
		s.dirty[id] = struct{}{}
		g.nodes[id].dirty = true
		for next := range g.succ[id] {
			if _, seen := s.dirty[next]; !seen {
				queue = append(queue, next)
			}
		}
	}
}

// markAll replaces the dirty set with every node.
func (s *scheduler) markAll(g *Graph) {
	clear(s.dirty)
	for id, n := range g.nodes {
		s.dirty[id] = struct{}{}
		n.dirty = true
	}
}

func (s *scheduler) clean(g *Graph, id NodeID) {
	delete(s.dirty, id)
	if n, ok := g.nodes[id]; ok {
		n.dirty = false
	}
}

// forget drops a removed node from tracking.
func (s *scheduler) forget(id NodeID) {
	delete(s.dirty, id)
}

func (s *scheduler) dirtyIDs() []NodeID {
	return slices.Sorted(maps.Keys(s.dirty))
}

// orderFor returns the cached order, rebuilding it when the graph changed.
// Node unresolved flags are refreshed on rebuild.
func (s *scheduler) orderFor(g *Graph) *Order {
	if s.order != nil && s.order.Generation == g.generation {
		return s.order
	}
	s.order = buildOrder(g)
	for id, n := range g.nodes {
		n.unresolved = s.order.Unresolved(id)
	}
	return s.order
}

// runnable returns the dirty nodes that the order can execute.
func (s *scheduler) runnable(o *Order) int {
	count := 0
	for id := range s.dirty {
		if !o.Unresolved(id) {
			count++
		}
	}
	return count
}
