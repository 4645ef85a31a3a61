package nodeflow

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Context provides execution context to processors.
// It extends context.Context with pass and node metadata.
//
// The scheduler derives one Context per processor call, with the logger
// enriched by tree, pass and node attributes.
type Context interface {
	context.Context

	// Logger returns the configured logger. Never nil.
	Logger() *slog.Logger

	// TreeID returns the tree being updated.
	TreeID() string

	// PassID returns the scheduling pass identifier.
	PassID() string

	// NodeID returns the node being processed. Zero outside a processor call.
	NodeID() NodeID

	// NodeName returns the instance name of the node being processed.
	NodeName() string
}

type execContext struct {
	context.Context

	logger   *slog.Logger
	treeID   string
	passID   string
	nodeID   NodeID
	nodeName string
}

func (c *execContext) Logger() *slog.Logger { return c.logger }
func (c *execContext) TreeID() string       { return c.treeID }
func (c *execContext) PassID() string       { return c.passID }
func (c *execContext) NodeID() NodeID       { return c.nodeID }
func (c *execContext) NodeName() string     { return c.nodeName }

// ContextOption configures a Context built with NewContext.
type ContextOption func(*execContext)

// WithContextLogger sets the logger of a standalone context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *execContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextTree sets the tree ID of a standalone context.
func WithContextTree(id string) ContextOption {
	return func(c *execContext) {
		c.treeID = id
	}
}

// NewContext wraps ctx for calling a NodeKind directly, outside a tree.
//
// Example:
//
//	out, err := kind.Process(nodeflow.NewContext(context.Background()), in, params)
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	c := &execContext{
		Context: ctx,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// forNode derives the context handed to one processor call.
func (c *execContext) forNode(ctx context.Context, n *Node) *execContext {
	return &execContext{
		Context:  ctx,
		logger:   observability.EnrichLogger(c.logger, c.treeID, c.passID, uint64(n.id), n.name),
		treeID:   c.treeID,
		passID:   c.passID,
		nodeID:   n.id,
		nodeName: n.name,
	}
}
