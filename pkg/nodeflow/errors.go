package nodeflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph edits.
var (
	// ErrInvalidLink indicates a link that violates socket direction or arity rules.
	ErrInvalidLink = errors.New("invalid link")

	// ErrNodeNotFound indicates an edit references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrSocketNotFound indicates an edit references a non-existent socket.
	ErrSocketNotFound = errors.New("socket not found")

	// ErrLinkNotFound indicates a link removal found nothing to remove.
	ErrLinkNotFound = errors.New("link not found")

	// ErrDuplicateNode indicates a node name already used in the tree.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrUnknownKind indicates a node kind that was never registered.
	ErrUnknownKind = errors.New("unknown node kind")
)

// Sentinel errors for engine and scheduling.
var (
	// ErrDuplicateKind indicates RegisterKind was called twice for one name.
	ErrDuplicateKind = errors.New("node kind already registered")

	// ErrDuplicateTree indicates NewTree was called with an ID in use.
	ErrDuplicateTree = errors.New("tree already exists")

	// ErrTreeNotFound indicates a tree ID that is not open in the engine.
	ErrTreeNotFound = errors.New("tree not found")

	// ErrPassInProgress indicates a direct edit attempted while a pass executes.
	// Notifications delivered through Handle are queued instead.
	ErrPassInProgress = errors.New("scheduling pass in progress")

	// ErrUnknownOutput indicates a processor returned a value for a socket
	// its kind does not declare.
	ErrUnknownOutput = errors.New("processor returned unknown output")
)

// FaultKind classifies the state a node or edit can be left in.
type FaultKind int

const (
	// FaultNone means the node is healthy.
	FaultNone FaultKind = iota

	// FaultInvalidLink means a link edit was rejected. No state changed.
	FaultInvalidLink

	// FaultCycleUnresolved means the node sits in or below a cycle and is skipped.
	FaultCycleUnresolved

	// FaultProcessorFailure means the node's last run failed or panicked.
	FaultProcessorFailure

	// FaultStructuralRace means an edit arrived during a pass and was queued.
	FaultStructuralRace
)

// String returns a human-readable fault name.
func (f FaultKind) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultInvalidLink:
		return "invalid_link"
	case FaultCycleUnresolved:
		return "cycle_unresolved"
	case FaultProcessorFailure:
		return "processor_failure"
	case FaultStructuralRace:
		return "structural_race"
	default:
		return fmt.Sprintf("fault(%d)", int(f))
	}
}

// LinkError describes a rejected link edit.
type LinkError struct {
	// From and To name the sockets as "node.socket".
	From   string
	To     string
	Reason string
	// Err is the lookup failure behind the rejection, if any.
	Err error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link %s -> %s: %s: %v", e.From, e.To, e.Reason, e.Err)
	}
	return fmt.Sprintf("link %s -> %s: %s", e.From, e.To, e.Reason)
}

// Unwrap exposes both ErrInvalidLink and the lookup failure to errors.Is.
func (e *LinkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidLink}
	}
	return []error{ErrInvalidLink, e.Err}
}

// Fault returns FaultInvalidLink.
func (e *LinkError) Fault() FaultKind {
	return FaultInvalidLink
}

// ProcessorError wraps a failure returned by a node kind.
type ProcessorError struct {
	// Node is the instance name of the failing node.
	Node string
	// Kind is the registered kind name.
	Kind string
	// Op is "process" or "bake".
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProcessorError) Error() string {
	return fmt.Sprintf("node %s (%s): %s: %v", e.Node, e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// Fault returns FaultProcessorFailure.
func (e *ProcessorError) Fault() FaultKind {
	return FaultProcessorFailure
}

// PanicError captures a panic raised inside a processor.
type PanicError struct {
	// Node is the instance name of the node that panicked.
	Node string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node, e.Value)
}

// Fault returns FaultProcessorFailure.
func (e *PanicError) Fault() FaultKind {
	return FaultProcessorFailure
}
