package nodeflow

import "slices"

// Order is the execution plan derived from one graph generation.
type Order struct {
	// Generation is the graph generation the order was built from.
	Generation uint64

	// Nodes lists every resolved node so that each link source precedes
	// its destination.
	Nodes []NodeID

	// Cycles holds the node sets found on a cycle, in discovery order.
	Cycles [][]NodeID

	unresolved map[NodeID]struct{}
}

// Unresolved reports whether id sits on a cycle or downstream of one.
func (o *Order) Unresolved(id NodeID) bool {
	_, ok := o.unresolved[id]
	return ok
}

// UnresolvedNodes returns the unresolved node IDs in ascending order.
func (o *Order) UnresolvedNodes() []NodeID {
	out := make([]NodeID, 0, len(o.unresolved))
	for id := range o.unresolved {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

const (
	white = iota // unvisited
	gray         // on the DFS stack
	black        // finished
)

// buildOrder runs a three-color depth-first search over g.
//
// Roots are visited in ascending ID order and successors in ascending ID
// order, so equal graphs give equal orders. An edge into a gray node closes a
// cycle: the stack segment from that node to the top is cyclic. Every node
// reachable from a cyclic node is unresolved. The remaining nodes, in reverse
// postorder, form a topological order of the acyclic part.
func buildOrder(g *Graph) *Order {
	ids := g.NodeIDs()
	color := make(map[NodeID]int, len(ids))
	stack := make([]NodeID, 0, len(ids))
	post := make([]NodeID, 0, len(ids))
	cyclic := make(map[NodeID]struct{})
	var cycles [][]NodeID

	var visit func(id NodeID)
	visit = func(id NodeID) {
		color[id] = gray
		stack = append(stack, id)

		for _, next := range g.Successors(id) {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				start := slices.Index(stack, next)
				segment := slices.Clone(stack[start:])
				for _, c := range segment {
					cyclic[c] = struct{}{}
				}
				cycles = append(cycles, segment)
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		post = append(post, id)
	}

	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}

	o := &Order{
		Generation: g.generation,
		Cycles:     cycles,
		unresolved: downstream(g, cyclic),
	}
	for i := len(post) - 1; i >= 0; i-- {
		id := post[i]
		if _, skip := o.unresolved[id]; skip {
			continue
		}
		o.Nodes = append(o.Nodes, id)
	}
	return o
}

// downstream returns seeds plus every node reachable from them.
func downstream(g *Graph, seeds map[NodeID]struct{}) map[NodeID]struct{} {
	out := make(map[NodeID]struct{}, len(seeds))
	queue := make([]NodeID, 0, len(seeds))
	for id := range seeds {
		out[id] = struct{}{}
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for next := range g.succ[id] {
			if _, seen := out[next]; !seen {
				out[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return out
}
