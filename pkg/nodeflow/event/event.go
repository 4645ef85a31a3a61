package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// LinkSpec names a link by node and socket names, the way the host sees it.
type LinkSpec struct {
	FromNode   string `json:"from_node" yaml:"from_node"`
	FromSocket string `json:"from_socket" yaml:"from_socket"`
	ToNode     string `json:"to_node" yaml:"to_node"`
	ToSocket   string `json:"to_socket" yaml:"to_socket"`
}

// String formats the link as "A.out -> B.in".
func (l LinkSpec) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", l.FromNode, l.FromSocket, l.ToNode, l.ToSocket)
}

func (l LinkSpec) complete() bool {
	return l.FromNode != "" && l.FromSocket != "" && l.ToNode != "" && l.ToSocket != ""
}

// Notification is a raw callback delivered by the host.
type Notification struct {
	// Callback is the host callback name, e.g. "add_node".
	Callback string `json:"callback" yaml:"callback"`

	// Tree names the graph the callback belongs to. Engine.Handle routes on it.
	Tree string `json:"tree,omitempty" yaml:"tree,omitempty"`

	// NodeType is the registered kind of the node, when known.
	NodeType string `json:"node_type,omitempty" yaml:"node_type,omitempty"`

	// NodeName is the host instance name of the node.
	NodeName string `json:"node,omitempty" yaml:"node,omitempty"`

	// SourceName is the node a copy was made from (copy_node only).
	SourceName string `json:"source,omitempty" yaml:"source,omitempty"`

	// Params carries changed parameters (add_node, node_update).
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Link is the link drawn by the user (add_link_to_node).
	Link *LinkSpec `json:"link,omitempty" yaml:"link,omitempty"`

	// Links is the host's full link list after a structure change
	// (node_tree_update). Nil means the host sent no snapshot.
	Links []LinkSpec `json:"links,omitempty" yaml:"links,omitempty"`
}

// Event is a classified notification.
type Event struct {
	ID        string       `json:"id"`
	Kind      Kind         `json:"kind"`
	Cycle     uint64       `json:"cycle"`
	Duplicate bool         `json:"duplicate,omitempty"`
	Time      time.Time    `json:"time"`
	Source    Notification `json:"source"`
}

// Subject returns the node name the event is about.
// LinkAdded events are about the receiving node.
func (e Event) Subject() string {
	if e.Kind == LinkAdded && e.Source.Link != nil {
		return e.Source.Link.ToNode
	}
	return e.Source.NodeName
}

// fingerprint identifies the payload for duplicate detection.
// encoding/json sorts map keys, so equal payloads encode equally.
func (e Event) fingerprint() string {
	src := e.Source
	src.Tree = ""
	b, err := json.Marshal(src)
	if err != nil {
		// Unencodable params never compare equal.
		return e.ID
	}
	return e.Kind.String() + ":" + string(b)
}
