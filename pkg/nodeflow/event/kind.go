package event

import "fmt"

// Kind is the semantic class of an edit event.
type Kind int

const (
	// KindUnknown is never emitted; unrecognized callbacks are dropped.
	KindUnknown Kind = iota

	// GraphStructureChanged reports that the host finished a batch of
	// structural edits. It closes the current edit cycle.
	GraphStructureChanged

	// NodeUpdated reports a parameter change on one node.
	NodeUpdated

	// LinkAdded reports a link drawn by the user.
	LinkAdded

	// NodeAdded reports a new node.
	NodeAdded

	// NodeCopied reports a node duplicated from an existing one.
	NodeCopied

	// NodeFreed reports a removed node.
	NodeFreed
)

var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	GraphStructureChanged: "GraphStructureChanged",
	NodeUpdated:           "NodeUpdated",
	LinkAdded:             "LinkAdded",
	NodeAdded:             "NodeAdded",
	NodeCopied:            "NodeCopied",
	NodeFreed:             "NodeFreed",
}

// callbacks maps raw host callback names to kinds.
var callbacks = map[string]Kind{
	"node_tree_update": GraphStructureChanged,
	"node_update":      NodeUpdated,
	"add_link_to_node": LinkAdded,
	"add_node":         NodeAdded,
	"copy_node":        NodeCopied,
	"free_node":        NodeFreed,
}

// String returns the kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// It accepts both kind names and raw callback names.
func (k *Kind) UnmarshalText(text []byte) error {
	s := string(text)
	if kind, ok := callbacks[s]; ok {
		*k = kind
		return nil
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", s)
}

// FromCallback returns the kind for a raw host callback name.
func FromCallback(callback string) (Kind, bool) {
	k, ok := callbacks[callback]
	return k, ok
}

// Structural reports whether events of this kind change graph topology.
func (k Kind) Structural() bool {
	switch k {
	case GraphStructureChanged, LinkAdded, NodeAdded, NodeCopied, NodeFreed:
		return true
	default:
		return false
	}
}
