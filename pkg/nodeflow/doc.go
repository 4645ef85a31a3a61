// Package nodeflow is an incremental dataflow update engine for live node
// graphs.
//
// A host editor reports edits (nodes added, removed or copied, links drawn,
// parameters changed). nodeflow keeps a dependency graph over the nodes,
// works out which nodes went stale, and re-runs exactly those nodes in
// dependency order. Cycles, failing processors and bulk edits are handled
// without stopping the rest of the graph.
//
// # Quick Start
//
//	engine := nodeflow.NewEngine()
//	kinds.Register(engine)
//
//	tree, _ := engine.NewTree("main")
//	ctx := context.Background()
//	tree.AddNode(ctx, "number", "A", map[string]any{"value": 2.0})
//	tree.AddNode(ctx, "scale", "B", map[string]any{"factor": 10.0})
//	tree.AddLink(ctx, "A", "value", "B", "x")
//
//	b, _ := tree.Node("B")
//	v, _ := b.Value("y") // 20.0
//
// Every edit runs a scheduling pass before it returns, unless a freeze gate
// is engaged.
//
// # Scheduling
//
// Each tree moves through Idle, Collecting, Ordering and Executing. An edit
// marks the touched node and everything reachable from it dirty
// (Collecting). The execution order is rebuilt only when the graph
// generation changed (Ordering). Dirty nodes then run in that order
// (Executing). There is no value-equality short circuit: everything
// downstream of a dirty node runs.
//
// # Cycles
//
// Links that close a cycle are accepted. Nodes on the cycle and everything
// below them are Unresolved: they stay dirty, keep their last outputs and
// are skipped until the cycle is broken.
//
// # Failures
//
// A processor error or panic is stored on the node (see Node.Err and
// Node.Fault). Its outputs keep their previous values and the pass goes on.
//
// # Freezing
//
// Tree.Freeze and Engine.Freeze suspend scheduling. Edits keep collecting
// dirty nodes, and releasing the last freeze runs one pass over all of them:
//
//	tree.Freeze()
//	for _, e := range edits {
//	    tree.SetParameter(ctx, e.node, e.key, e.value)
//	}
//	tree.Unfreeze(ctx, false) // one pass
//
// A hard unfreeze discards the dirty set and recomputes every node.
//
// # Host Notifications
//
// Tree.Handle and Engine.Handle accept raw host callbacks
// (event.Notification). They are classified, logged in the session event
// log, and applied. A notification arriving while a pass executes is queued
// and applied right after that pass, followed by another pass.
//
// # Observability
//
// Logging uses log/slog (WithLogger, WithVerbose). Metrics and tracing use
// OpenTelemetry (WithMetrics, WithTracing). The event log can be mirrored to
// SQLite with WithEventStore.
package nodeflow
