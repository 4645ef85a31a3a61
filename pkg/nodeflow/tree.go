package nodeflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Tree is one node graph plus its scheduler, freeze gate and event
// classifier.
//
// Tree methods are not safe for concurrent use; call them from the host's
// event loop. Each edit records dirtiness and, unless a freeze gate is
// engaged, runs a scheduling pass before returning. Edits made while a pass
// is executing fail with ErrPassInProgress, except notifications given to
// Handle, which are queued and applied once the pass ends.
type Tree struct {
	id         string
	engine     *Engine
	graph      *Graph
	sched      *scheduler
	gate       FreezeGate
	classifier *event.Classifier
	queue      []event.Notification
}

func newTree(id string, e *Engine) *Tree {
	return &Tree{
		id:         id,
		engine:     e,
		graph:      newGraph(),
		sched:      newScheduler(),
		classifier: event.NewClassifier(),
	}
}

// ID returns the tree identifier.
func (t *Tree) ID() string { return t.id }

// Graph returns the tree's graph for reading.
func (t *Tree) Graph() *Graph { return t.graph }

// Node returns a node by instance name.
func (t *Tree) Node(name string) (*Node, bool) { return t.graph.NodeByName(name) }

// Phase returns the scheduler phase.
func (t *Tree) Phase() Phase { return t.sched.phase }

// Stats returns scheduler counters.
func (t *Tree) Stats() Stats { return t.sched.stats }

// LastPass returns the report of the most recent Executing phase.
func (t *Tree) LastPass() PassReport { return t.sched.last }

// DirtySet returns the IDs awaiting execution, in ascending order.
func (t *Tree) DirtySet() []NodeID { return t.sched.dirtyIDs() }

// Order returns the execution order for the current graph generation.
func (t *Tree) Order() *Order { return t.sched.orderFor(t.graph) }

// Frozen reports whether this tree's gate or the engine gate is engaged.
func (t *Tree) Frozen() bool {
	return t.gate.Frozen() || t.engine.gate.Frozen()
}

// AddNode creates a node of a registered kind. An empty name picks one
// from the kind name. params overlay the kind defaults.
func (t *Tree) AddNode(ctx context.Context, kind, name string, params map[string]any) (*Node, error) {
	var n *Node
	err := t.edit(ctx, func() error {
		var err error
		n, err = t.addNode(kind, name, params)
		if err == nil {
			t.classifier.Forget(n.name)
		}
		return err
	})
	return n, err
}

// CopyNode duplicates a node under a new name. The copy gets a fresh ID,
// the source's parameters, empty caches and no links.
func (t *Tree) CopyNode(ctx context.Context, source, name string) (*Node, error) {
	var n *Node
	err := t.edit(ctx, func() error {
		var err error
		n, err = t.copyNode(source, name)
		if err == nil {
			t.classifier.Forget(n.name)
		}
		return err
	})
	return n, err
}

// RemoveNode deletes a node and its links. The nodes it fed are re-run
// with their inputs falling back to defaults.
func (t *Tree) RemoveNode(ctx context.Context, name string) error {
	return t.edit(ctx, func() error { return t.direct(name, t.removeNode(name)) })
}

// AddLink connects fromNode.fromSocket (an output) to toNode.toSocket (an
// input), replacing any link already feeding the input.
func (t *Tree) AddLink(ctx context.Context, fromNode, fromSocket, toNode, toSocket string) error {
	return t.edit(ctx, func() error {
		spec := event.LinkSpec{FromNode: fromNode, FromSocket: fromSocket, ToNode: toNode, ToSocket: toSocket}
		return t.direct(toNode, t.addLink(spec))
	})
}

// RemoveLink removes the link feeding toNode.toSocket.
func (t *Tree) RemoveLink(ctx context.Context, toNode, toSocket string) error {
	return t.edit(ctx, func() error { return t.direct(toNode, t.removeLink(toNode, toSocket)) })
}

// SetParameter sets one parameter and re-runs the node and its dependents.
func (t *Tree) SetParameter(ctx context.Context, name, key string, value any) error {
	return t.SetParameters(ctx, name, map[string]any{key: value})
}

// SetParameters overlays several parameters at once.
func (t *Tree) SetParameters(ctx context.Context, name string, params map[string]any) error {
	return t.edit(ctx, func() error { return t.direct(name, t.setParams(name, params)) })
}

// Handle classifies a host notification and applies it.
//
// While a pass runs on any tree of the engine the notification is queued
// and applied right after that pass, followed by another pass. Unrecognized
// notifications are dropped. The returned error reports a rejected edit; the
// event is logged anyway and a later retry of it is not a duplicate.
func (t *Tree) Handle(ctx context.Context, n event.Notification) error {
	if t.busy() {
		t.queue = append(t.queue, n)
		t.sched.stats.Queued++
		if k, ok := event.FromCallback(n.Callback); ok && k.Structural() && t.engine.cfg.verbose {
			observability.LogStructuralRace(t.engine.cfg.logger, t.id, k.String())
		}
		return nil
	}
	return t.edit(ctx, func() error { return t.apply(n) })
}

// Update runs a pass over the current dirty set unless frozen.
func (t *Tree) Update(ctx context.Context) error {
	return t.edit(ctx, func() error { return nil })
}

// Recompute opens this tree's gate, discards the dirty set and re-runs
// every node. A frozen engine still defers the pass.
func (t *Tree) Recompute(ctx context.Context) error {
	return t.Unfreeze(ctx, true)
}

// Freeze engages the tree's gate. Calls nest.
func (t *Tree) Freeze() {
	t.gate.Freeze()
}

// Unfreeze releases one Freeze. When the gate opens, one pass runs over
// everything collected meanwhile. A hard unfreeze opens the gate at once,
// discards the dirty set and marks every node dirty.
func (t *Tree) Unfreeze(ctx context.Context, hard bool) error {
	if t.busy() {
		return ErrPassInProgress
	}
	if hard {
		t.gate.Reset()
		t.sched.markAll(t.graph)
	} else if !t.gate.Unfreeze() {
		return nil
	}
	t.settle(ctx)
	return nil
}

// PurgeCaches drops every output cache and marks all nodes dirty without
// running them.
func (t *Tree) PurgeCaches() error {
	if t.busy() {
		return ErrPassInProgress
	}
	t.graph.purge()
	t.sched.markAll(t.graph)
	t.sched.phase = t.restingPhase()
	return nil
}

// BakeAll calls Bake on every node whose kind is a Baker and whose "bake"
// parameter is true. It returns how many nodes baked successfully.
func (t *Tree) BakeAll(ctx context.Context) (int, error) {
	if t.busy() {
		return 0, ErrPassInProgress
	}

	base := &execContext{logger: t.engine.cfg.logger, treeID: t.id}
	var errs []error
	baked := 0
	for _, n := range t.graph.Nodes() {
		b, ok := n.kind.(Baker)
		if !ok || !n.params.Bool("bake", false) {
			continue
		}
		if err := bake(base.forNode(ctx, n), b, n, t.graph.gather(n)); err != nil {
			errs = append(errs, err)
			continue
		}
		baked++
	}
	return baked, errors.Join(errs...)
}

func bake(ctx Context, b Baker, n *Node, in Inputs) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Node: n.name, Value: r}
		}
	}()
	if err := b.Bake(ctx, in, n.params); err != nil {
		return &ProcessorError{Node: n.name, Kind: n.kind.Name(), Op: "bake", Err: err}
	}
	return nil
}

// PanelNodes returns the names of nodes shown on the host side panel,
// sorted.
func (t *Tree) PanelNodes() []string {
	var names []string
	for _, n := range t.graph.nodes {
		if p, ok := n.kind.(Paneled); ok && p.OnPanel(n.params) {
			names = append(names, n.name)
		}
	}
	slices.Sort(names)
	return names
}

// edit runs one Collecting step and then settles the tree.
func (t *Tree) edit(ctx context.Context, collect func() error) error {
	if t.busy() {
		return ErrPassInProgress
	}
	t.sched.phase = PhaseCollecting
	if err := collect(); err != nil {
		t.sched.phase = t.restingPhase()
		return err
	}
	t.settle(ctx)
	return nil
}

// settle runs passes until the queue drains, or records a deferral when a
// gate is engaged.
func (t *Tree) settle(ctx context.Context) {
	cfg := t.engine.cfg
	for {
		if t.Frozen() {
			if len(t.sched.dirty) > 0 {
				t.sched.stats.Deferred++
				cfg.metrics.RecordDeferred(ctx, t.id)
				observability.LogPassDeferred(cfg.logger, t.id, len(t.sched.dirty))
			}
			t.sched.phase = t.restingPhase()
			return
		}

		t.pass(ctx)

		if len(t.queue) == 0 {
			t.engine.settleQueued(ctx)
			return
		}
		t.applyQueued()
	}
}

// applyQueued applies the notifications held back by a pass.
func (t *Tree) applyQueued() {
	queued := t.queue
	t.queue = nil
	t.sched.phase = PhaseCollecting
	for _, n := range queued {
		if err := t.apply(n); err != nil {
			t.engine.cfg.logger.Warn("queued edit rejected",
				slog.String("tree_id", t.id),
				slog.String("callback", n.Callback),
				slog.String("error", err.Error()))
		}
	}
}

// busy reports whether a pass is executing on this or any other tree of the
// engine. Passes never nest.
func (t *Tree) busy() bool {
	return t.sched.phase == PhaseExecuting || t.engine.running.Load() != nil
}

// direct drops the duplicate history of a node changed outside Handle, so
// a later notification repeating an earlier one is applied again.
func (t *Tree) direct(name string, err error) error {
	if err == nil {
		t.classifier.Forget(name)
	}
	return err
}

func (t *Tree) restingPhase() Phase {
	if t.Frozen() && len(t.sched.dirty) > 0 {
		return PhaseCollecting
	}
	return PhaseIdle
}

// apply classifies n, logs the event and applies it to the graph.
func (t *Tree) apply(n event.Notification) error {
	if n.Tree == "" {
		n.Tree = t.id
	}
	ev, ok := t.classifier.Classify(n)
	if !ok {
		return nil
	}

	cfg := t.engine.cfg
	if err := t.engine.log.Append(ev); err != nil {
		cfg.logger.Warn("event log append failed",
			slog.String("tree_id", t.id),
			slog.String("error", err.Error()))
	}
	if cfg.verbose {
		observability.LogEvent(cfg.logger, t.id, ev.Kind.String(), t.nodeType(ev), ev.Subject(), ev.Duplicate)
	}
	if ev.Duplicate {
		return nil
	}

	var err error
	switch ev.Kind {
	case event.NodeAdded:
		_, err = t.addNode(n.NodeType, n.NodeName, n.Params)
	case event.NodeUpdated:
		err = t.setParams(n.NodeName, n.Params)
	case event.LinkAdded:
		err = t.addLink(*n.Link)
	case event.NodeCopied:
		_, err = t.copyNode(n.SourceName, n.NodeName)
	case event.NodeFreed:
		err = t.removeNode(n.NodeName)
	case event.GraphStructureChanged:
		if n.Links != nil {
			err = t.reconcile(n.Links)
		}
	}
	if err != nil {
		t.classifier.Reject(ev)
		return fmt.Errorf("%s: %w", ev.Kind, err)
	}
	return nil
}

func (t *Tree) nodeType(ev event.Event) string {
	if ev.Source.NodeType != "" {
		return ev.Source.NodeType
	}
	if n, ok := t.graph.NodeByName(ev.Subject()); ok {
		return n.kind.Name()
	}
	return ""
}

func (t *Tree) lookup(name string) (*Node, error) {
	n, ok := t.graph.NodeByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return n, nil
}

func (t *Tree) addNode(kindName, name string, params map[string]any) (*Node, error) {
	kind, ok := t.engine.Kind(kindName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kindName)
	}
	n, err := t.graph.addNode(kind, name, params)
	if err != nil {
		return nil, err
	}
	t.sched.markDirty(t.graph, n.id)
	return n, nil
}

func (t *Tree) copyNode(source, name string) (*Node, error) {
	src, err := t.lookup(source)
	if err != nil {
		return nil, err
	}
	n, err := t.graph.copyNode(src.id, name)
	if err != nil {
		return nil, err
	}
	t.sched.markDirty(t.graph, n.id)
	return n, nil
}

func (t *Tree) removeNode(name string) error {
	n, err := t.lookup(name)
	if err != nil {
		return err
	}
	former, err := t.graph.removeNode(n.id)
	if err != nil {
		return err
	}
	t.sched.forget(n.id)
	t.sched.markDirty(t.graph, former...)
	return nil
}

func (t *Tree) addLink(spec event.LinkSpec) error {
	from, fromOK := t.graph.NodeByName(spec.FromNode)
	to, toOK := t.graph.NodeByName(spec.ToNode)
	if !fromOK || !toOK {
		return unknownLinkNode(spec, fromOK)
	}

	_, changed, err := t.graph.addLink(
		SocketRef{Node: from.id, Socket: spec.FromSocket},
		SocketRef{Node: to.id, Socket: spec.ToSocket},
	)
	if err != nil {
		return err
	}
	if changed {
		t.sched.markDirty(t.graph, to.id)
	}
	return nil
}

func (t *Tree) removeLink(toNode, toSocket string) error {
	to, err := t.lookup(toNode)
	if err != nil {
		return err
	}
	l, ok := t.graph.LinkInto(SocketRef{Node: to.id, Socket: toSocket})
	if !ok {
		return fmt.Errorf("%w: into %s.%s", ErrLinkNotFound, toNode, toSocket)
	}
	if _, err := t.graph.removeLink(l.ID); err != nil {
		return err
	}
	t.sched.markDirty(t.graph, to.id)
	return nil
}

func (t *Tree) setParams(name string, params map[string]any) error {
	n, err := t.lookup(name)
	if err != nil {
		return err
	}
	if err := t.graph.setParams(n.id, params); err != nil {
		return err
	}
	t.sched.markDirty(t.graph, n.id)
	return nil
}

// reconcile makes the graph's links match the host's link list. Links the
// host no longer reports are removed; missing ones are added.
func (t *Tree) reconcile(specs []event.LinkSpec) error {
	type key struct{ from, to SocketRef }
	want := make(map[key]struct{}, len(specs))
	valid := make([]event.LinkSpec, 0, len(specs))
	var errs []error
	for _, spec := range specs {
		from, fromOK := t.graph.NodeByName(spec.FromNode)
		to, toOK := t.graph.NodeByName(spec.ToNode)
		if !fromOK || !toOK {
			errs = append(errs, unknownLinkNode(spec, fromOK))
			continue
		}
		want[key{SocketRef{from.id, spec.FromSocket}, SocketRef{to.id, spec.ToSocket}}] = struct{}{}
		valid = append(valid, spec)
	}

	for _, l := range t.graph.Links() {
		if _, keep := want[key{l.From, l.To}]; keep {
			continue
		}
		if _, err := t.graph.removeLink(l.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		t.sched.markDirty(t.graph, l.To.Node)
	}

	for _, spec := range valid {
		if err := t.addLink(spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func unknownLinkNode(spec event.LinkSpec, fromOK bool) error {
	reason := "unknown destination node"
	if !fromOK {
		reason = "unknown source node"
	}
	return &LinkError{
		From:   spec.FromNode + "." + spec.FromSocket,
		To:     spec.ToNode + "." + spec.ToSocket,
		Reason: reason,
		Err:    ErrNodeNotFound,
	}
}
