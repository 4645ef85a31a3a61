package nodeflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
)

// Engine holds the state of one open document: registered node kinds,
// open trees, the engine-wide freeze gate and the session event log.
//
// Engine methods are safe for concurrent use. Trees are not; see Tree.
type Engine struct {
	cfg   engineConfig
	kinds *registry.Registry[string, NodeKind]
	trees *registry.Registry[string, *Tree]
	gate  FreezeGate
	log   *event.Log

	// running is the tree whose pass is executing, if any.
	running atomic.Pointer[Tree]
}

// NewEngine creates an engine with no kinds and no trees.
func NewEngine(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuid.NewString()
	}
	return &Engine{
		cfg:   cfg,
		kinds: registry.New[string, NodeKind](),
		trees: registry.New[string, *Tree](),
		log:   event.NewLog(cfg.sessionID, cfg.store),
	}
}

// SessionID returns the session identifier of the event log.
func (e *Engine) SessionID() string { return e.cfg.sessionID }

// RegisterKind makes a node kind available to every tree.
func (e *Engine) RegisterKind(k NodeKind) error {
	if !e.kinds.Add(k.Name(), k) {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, k.Name())
	}
	return nil
}

// Kind looks up a registered kind.
func (e *Engine) Kind(name string) (NodeKind, bool) {
	return e.kinds.Get(name)
}

// Kinds returns the registered kind names in ascending order.
func (e *Engine) Kinds() []string {
	return e.kinds.Keys()
}

// NewTree opens an empty tree.
func (e *Engine) NewTree(id string) (*Tree, error) {
	t := newTree(id, e)
	if !e.trees.Add(id, t) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTree, id)
	}
	return t, nil
}

// Tree returns an open tree.
func (e *Engine) Tree(id string) (*Tree, bool) {
	return e.trees.Get(id)
}

// Trees returns the open tree IDs in ascending order.
func (e *Engine) Trees() []string {
	return e.trees.Keys()
}

// CloseTree forgets a tree.
func (e *Engine) CloseTree(id string) error {
	if _, ok := e.trees.Remove(id); !ok {
		return fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	return nil
}

// Handle routes a notification to the tree it names.
func (e *Engine) Handle(ctx context.Context, n event.Notification) error {
	t, ok := e.trees.Get(n.Tree)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTreeNotFound, n.Tree)
	}
	return t.Handle(ctx, n)
}

// Freeze engages the engine-wide gate, suspending every tree. Calls nest.
func (e *Engine) Freeze() {
	e.gate.Freeze()
}

// Frozen reports whether the engine-wide gate is engaged.
func (e *Engine) Frozen() bool {
	return e.gate.Frozen()
}

// Unfreeze releases one engine-wide Freeze. When the gate opens, every tree
// that is not frozen on its own runs one pass over its pending edits.
// A hard unfreeze opens the engine gate and every tree gate, discards all
// dirty sets and recomputes every node of every tree.
func (e *Engine) Unfreeze(ctx context.Context, hard bool) error {
	if hard {
		e.gate.Reset()
		return e.eachTree(func(t *Tree) error { return t.Unfreeze(ctx, true) })
	}
	if !e.gate.Unfreeze() {
		return nil
	}
	return e.eachTree(func(t *Tree) error { return t.Update(ctx) })
}

// UpdateAll forces a full recompute of every tree, ignoring freeze gates
// and pending dirty state.
func (e *Engine) UpdateAll(ctx context.Context) error {
	return e.Unfreeze(ctx, true)
}

// UpdateCurrent forces a full recompute of one tree. The engine gate is
// opened as well, since it would otherwise hold the pass back.
func (e *Engine) UpdateCurrent(ctx context.Context, id string) error {
	t, ok := e.trees.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	e.gate.Reset()
	return t.Recompute(ctx)
}

// Events returns the session event log in append order.
func (e *Engine) Events() []event.Event {
	return e.log.Events()
}

// ResetEvents empties the event log, including its persisted copy.
func (e *Engine) ResetEvents() error {
	return e.log.Reset()
}

// Close drops every tree and the in-memory event log. The event store,
// if any, is left open and keeps its records.
func (e *Engine) Close() error {
	e.trees.Drain()
	e.log.Clear()
	return nil
}

// settleQueued applies the notifications trees queued while another tree's
// pass was executing, then settles each of those trees in turn.
func (e *Engine) settleQueued(ctx context.Context) {
	for _, t := range e.trees.Values() {
		if len(t.queue) == 0 || t.busy() {
			continue
		}
		t.applyQueued()
		t.settle(ctx)
	}
}

// eachTree calls fn on a snapshot of the open trees and joins the errors.
func (e *Engine) eachTree(fn func(*Tree) error) error {
	var errs []error
	for _, t := range e.trees.Values() {
		if err := fn(t); err != nil {
			errs = append(errs, fmt.Errorf("tree %s: %w", t.id, err))
		}
	}
	return errors.Join(errs...)
}
