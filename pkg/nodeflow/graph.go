package nodeflow

import (
	"fmt"
	"maps"
	"slices"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
)

// NodeID identifies a node within its tree. IDs are allocated from a
// monotonic counter and never reused, so a copied node never aliases the
// caches of its source.
type NodeID uint64

// LinkID identifies a link within its tree.
type LinkID uint64

// SocketRef addresses one socket by owning node and socket name.
type SocketRef struct {
	Node   NodeID
	Socket string
}

// String formats the reference as "#id.socket".
func (r SocketRef) String() string {
	return fmt.Sprintf("#%d.%s", r.Node, r.Socket)
}

// Direction tells inputs from outputs.
type Direction int

const (
	Input Direction = iota
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Socket is a connection point on a node.
// Sockets hold their owner's ID only; the Graph owns them.
type Socket struct {
	node     NodeID
	name     string
	dir      Direction
	dataKind string

	// input side
	def  any
	link LinkID

	// output side
	value    any
	hasValue bool
	fanout   []LinkID
}

// Name returns the socket name.
func (s *Socket) Name() string { return s.name }

// Node returns the owning node's ID.
func (s *Socket) Node() NodeID { return s.node }

// Direction returns whether the socket is an input or output.
func (s *Socket) Direction() Direction { return s.dir }

// DataKind returns the opaque data kind label.
func (s *Socket) DataKind() string { return s.dataKind }

// Default returns the value an unlinked input reads.
func (s *Socket) Default() any { return s.def }

// Linked reports whether an input has an incoming link or an output has
// at least one outgoing link.
func (s *Socket) Linked() bool {
	if s.dir == Input {
		return s.link != 0
	}
	return len(s.fanout) > 0
}

// Value returns an output's cached value and whether one was computed.
func (s *Socket) Value() (any, bool) { return s.value, s.hasValue }

// Link is a directed edge from an output socket to an input socket.
type Link struct {
	ID   LinkID
	From SocketRef
	To   SocketRef
}

// Node is one computation unit in a tree.
type Node struct {
	id      NodeID
	name    string
	kind    NodeKind
	params  config.Config
	inputs  []*Socket
	outputs []*Socket

	dirty      bool
	unresolved bool
	err        error
}

// ID returns the node's stable identifier.
func (n *Node) ID() NodeID { return n.id }

// Name returns the host instance name.
func (n *Node) Name() string { return n.name }

// Kind returns the node's processing capability.
func (n *Node) Kind() NodeKind { return n.kind }

// Params returns the node's parameters.
func (n *Node) Params() config.Config { return n.params }

// Dirty reports whether the node awaits execution.
func (n *Node) Dirty() bool { return n.dirty }

// Unresolved reports whether the node sits in or below a cycle.
func (n *Node) Unresolved() bool { return n.unresolved }

// Err returns the last processor failure, or nil.
func (n *Node) Err() error { return n.err }

// Fault reports the node state for highlighting in the host UI.
// A cycle takes precedence over a stale processor error.
func (n *Node) Fault() FaultKind {
	switch {
	case n.unresolved:
		return FaultCycleUnresolved
	case n.err != nil:
		return FaultProcessorFailure
	default:
		return FaultNone
	}
}

// Inputs returns the input sockets in declaration order.
func (n *Node) Inputs() []*Socket { return slices.Clone(n.inputs) }

// Outputs returns the output sockets in declaration order.
func (n *Node) Outputs() []*Socket { return slices.Clone(n.outputs) }

// Input returns the named input socket, or nil.
func (n *Node) Input(name string) *Socket { return findSocket(n.inputs, name) }

// Output returns the named output socket, or nil.
func (n *Node) Output(name string) *Socket { return findSocket(n.outputs, name) }

// Value returns the cached value of the named output.
func (n *Node) Value(output string) (any, bool) {
	s := n.Output(output)
	if s == nil {
		return nil, false
	}
	return s.Value()
}

func findSocket(sockets []*Socket, name string) *Socket {
	for _, s := range sockets {
		if s.name == name {
			return s
		}
	}
	return nil
}

// Graph owns the nodes, sockets and links of one tree, plus adjacency
// indices in both directions.
//
// The indices count links per node pair, so a pair joined by two links
// stays adjacent until both are removed. Every structural mutation bumps
// the generation, which invalidates any cached Order.
//
// Graph mutation goes through Tree. The read methods here are safe to call
// between passes.
type Graph struct {
	nodes  map[NodeID]*Node
	byName map[string]NodeID
	links  map[LinkID]*Link
	succ   map[NodeID]map[NodeID]int
	pred   map[NodeID]map[NodeID]int

	lastNode   NodeID
	lastLink   LinkID
	generation uint64
}

func newGraph() *Graph {
	return &Graph{
		nodes:  make(map[NodeID]*Node),
		byName: make(map[string]NodeID),
		links:  make(map[LinkID]*Link),
		succ:   make(map[NodeID]map[NodeID]int),
		pred:   make(map[NodeID]map[NodeID]int),
	}
}

// Generation returns the structural generation counter.
func (g *Graph) Generation() uint64 { return g.generation }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeByName returns the node with the given instance name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// NodeIDs returns all node IDs in ascending order.
func (g *Graph) NodeIDs() []NodeID {
	return slices.Sorted(maps.Keys(g.nodes))
}

// Nodes returns all nodes in ascending ID order.
func (g *Graph) Nodes() []*Node {
	ids := g.NodeIDs()
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// Links returns all links in ascending ID order.
func (g *Graph) Links() []Link {
	out := make([]Link, 0, len(g.links))
	for _, id := range slices.Sorted(maps.Keys(g.links)) {
		out = append(out, *g.links[id])
	}
	return out
}

// LinkInto returns the link feeding an input socket.
func (g *Graph) LinkInto(to SocketRef) (Link, bool) {
	n, ok := g.nodes[to.Node]
	if !ok {
		return Link{}, false
	}
	s := n.Input(to.Socket)
	if s == nil || s.link == 0 {
		return Link{}, false
	}
	return *g.links[s.link], true
}

// Successors returns the nodes fed by id, in ascending order.
//
// The adjacency indices are kept up to date by every link edit, so no query
// walks the link set. The result is a sorted copy, costing O(k log k) in the
// out-degree. Dirty marking reads the index directly. The order builder
// relies on the sorted form for a deterministic traversal.
func (g *Graph) Successors(id NodeID) []NodeID {
	return slices.Sorted(maps.Keys(g.succ[id]))
}

// Predecessors returns the nodes feeding id, in ascending order. Like
// Successors it copies from the maintained index.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	return slices.Sorted(maps.Keys(g.pred[id]))
}

// Name returns the instance name for id, or "#id" when unknown.
func (g *Graph) Name(id NodeID) string {
	if n, ok := g.nodes[id]; ok {
		return n.name
	}
	return fmt.Sprintf("#%d", id)
}

func (g *Graph) describe(ref SocketRef) string {
	return g.Name(ref.Node) + "." + ref.Socket
}

// uniqueName returns base, or base with the first free ".NNN" suffix.
func (g *Graph) uniqueName(base string) string {
	if _, taken := g.byName[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%03d", base, i)
		if _, taken := g.byName[name]; !taken {
			return name
		}
	}
}

// addNode creates a node of the given kind. An empty name picks a free
// name derived from the kind.
func (g *Graph) addNode(kind NodeKind, name string, params map[string]any) (*Node, error) {
	if name == "" {
		name = g.uniqueName(kind.Name())
	} else if _, taken := g.byName[name]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}

	g.lastNode++
	n := &Node{
		id:     g.lastNode,
		name:   name,
		kind:   kind,
		params: config.New(nil).Merge(kind.Parameters()).Merge(params),
	}
	n.inputs = newSockets(n.id, Input, kind.Inputs())
	n.outputs = newSockets(n.id, Output, kind.Outputs())

	g.nodes[n.id] = n
	g.byName[name] = n.id
	g.generation++
	return n, nil
}

func newSockets(owner NodeID, dir Direction, specs []SocketSpec) []*Socket {
	out := make([]*Socket, len(specs))
	for i, spec := range specs {
		out[i] = &Socket{node: owner, name: spec.Name, dir: dir, dataKind: spec.DataKind}
		if dir == Input {
			out[i].def = spec.Default
		}
	}
	return out
}

// copyNode duplicates src with a fresh ID, cloned parameters, empty caches
// and no links.
func (g *Graph) copyNode(src NodeID, name string) (*Node, error) {
	orig, ok := g.nodes[src]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrNodeNotFound, src)
	}
	if name == "" {
		name = g.uniqueName(orig.name)
	}
	n, err := g.addNode(orig.kind, name, orig.params.Raw())
	if err != nil {
		return nil, err
	}
	for i, s := range orig.inputs {
		n.inputs[i].def = s.def
	}
	return n, nil
}

// removeNode deletes a node and every link touching it. It returns the
// nodes the removed node used to feed.
func (g *Graph) removeNode(id NodeID) ([]NodeID, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrNodeNotFound, id)
	}
	former := g.Successors(id)

	for _, s := range n.inputs {
		if s.link != 0 {
			g.detach(s.link)
		}
	}
	for _, s := range n.outputs {
		for _, lid := range slices.Clone(s.fanout) {
			g.detach(lid)
		}
	}

	delete(g.nodes, id)
	delete(g.byName, n.name)
	delete(g.succ, id)
	delete(g.pred, id)
	g.generation++
	return former, nil
}

// addLink connects an output to an input. A link already feeding the input
// is replaced. Re-adding the identical link changes nothing and reports
// changed=false.
func (g *Graph) addLink(from, to SocketRef) (id LinkID, changed bool, err error) {
	src, dst, err := g.validateLink(from, to)
	if err != nil {
		return 0, false, err
	}

	if dst.link != 0 {
		existing := g.links[dst.link]
		if existing.From == from {
			return existing.ID, false, nil
		}
		g.detach(dst.link)
	}

	g.lastLink++
	l := &Link{ID: g.lastLink, From: from, To: to}
	g.links[l.ID] = l
	dst.link = l.ID
	src.fanout = append(src.fanout, l.ID)
	g.connect(from.Node, to.Node)
	g.generation++
	return l.ID, true, nil
}

func (g *Graph) validateLink(from, to SocketRef) (src, dst *Socket, err error) {
	reject := func(reason string, cause error) error {
		return &LinkError{From: g.describe(from), To: g.describe(to), Reason: reason, Err: cause}
	}

	fromNode, ok := g.nodes[from.Node]
	if !ok {
		return nil, nil, reject("unknown source node", ErrNodeNotFound)
	}
	toNode, ok := g.nodes[to.Node]
	if !ok {
		return nil, nil, reject("unknown destination node", ErrNodeNotFound)
	}
	if from.Node == to.Node {
		return nil, nil, reject("source and destination are the same node", nil)
	}

	if src = fromNode.Output(from.Socket); src == nil {
		if fromNode.Input(from.Socket) != nil {
			return nil, nil, reject("source is not an output", nil)
		}
		return nil, nil, reject("unknown source socket", ErrSocketNotFound)
	}
	if dst = toNode.Input(to.Socket); dst == nil {
		if toNode.Output(to.Socket) != nil {
			return nil, nil, reject("destination is not an input", nil)
		}
		return nil, nil, reject("unknown destination socket", ErrSocketNotFound)
	}
	return src, dst, nil
}

// removeLink deletes a link by ID.
func (g *Graph) removeLink(id LinkID) (Link, error) {
	l, ok := g.links[id]
	if !ok {
		return Link{}, fmt.Errorf("%w: %d", ErrLinkNotFound, id)
	}
	removed := *l
	g.detach(id)
	g.generation++
	return removed, nil
}

// detach unhooks a link from both sockets and the indices without
// touching the generation.
func (g *Graph) detach(id LinkID) {
	l := g.links[id]
	delete(g.links, id)

	if n, ok := g.nodes[l.To.Node]; ok {
		if s := n.Input(l.To.Socket); s != nil && s.link == id {
			s.link = 0
		}
	}
	if n, ok := g.nodes[l.From.Node]; ok {
		if s := n.Output(l.From.Socket); s != nil {
			s.fanout = slices.DeleteFunc(s.fanout, func(x LinkID) bool { return x == id })
		}
	}
	g.disconnect(l.From.Node, l.To.Node)
}

func (g *Graph) connect(from, to NodeID) {
	if g.succ[from] == nil {
		g.succ[from] = make(map[NodeID]int)
	}
	if g.pred[to] == nil {
		g.pred[to] = make(map[NodeID]int)
	}
	g.succ[from][to]++
	g.pred[to][from]++
}

func (g *Graph) disconnect(from, to NodeID) {
	if m := g.succ[from]; m != nil {
		if m[to]--; m[to] <= 0 {
			delete(m, to)
		}
	}
	if m := g.pred[to]; m != nil {
		if m[from]--; m[from] <= 0 {
			delete(m, from)
		}
	}
}

// setParams overlays params on a node. Topology is untouched.
func (g *Graph) setParams(id NodeID, params map[string]any) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: #%d", ErrNodeNotFound, id)
	}
	if len(params) > 0 {
		n.params = n.params.Merge(params)
	}
	return nil
}

// gather collects the input values for one run of n. A linked input reads
// the upstream cache when it holds a value and falls back to its default
// otherwise.
func (g *Graph) gather(n *Node) Inputs {
	in := make(Inputs, len(n.inputs))
	for _, s := range n.inputs {
		in[s.name] = s.def
		if s.link == 0 {
			continue
		}
		l := g.links[s.link]
		up := g.nodes[l.From.Node].Output(l.From.Socket)
		if up.hasValue {
			in[s.name] = up.value
		}
	}
	return in
}

// purge drops every output cache.
func (g *Graph) purge() {
	for _, n := range g.nodes {
		for _, s := range n.outputs {
			s.value = nil
			s.hasValue = false
		}
	}
}
