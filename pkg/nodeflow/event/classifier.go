package event

import (
	"time"

	"github.com/google/uuid"
)

// Classifier turns raw notifications into events for one tree.
//
// It remembers the last event seen for every node during the current edit
// cycle. An event identical to the last one for the same node is flagged
// Duplicate. GraphStructureChanged starts a new cycle.
//
// Classifier is not safe for concurrent use.
type Classifier struct {
	cycle uint64
	last  map[string]string
	now   func() time.Time
}

// NewClassifier creates a classifier positioned at cycle 1.
func NewClassifier() *Classifier {
	return &Classifier{
		cycle: 1,
		last:  make(map[string]string),
		now:   time.Now,
	}
}

// Cycle returns the current edit cycle number.
func (c *Classifier) Cycle() uint64 {
	return c.cycle
}

// Classify maps n to an event. It returns false when the callback is not
// recognized or lacks the fields its kind needs.
func (c *Classifier) Classify(n Notification) (Event, bool) {
	kind, ok := FromCallback(n.Callback)
	if !ok || !valid(kind, n) {
		return Event{}, false
	}

	ev := Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Cycle:  c.cycle,
		Time:   c.now().UTC(),
		Source: n,
	}

	if kind == GraphStructureChanged {
		c.cycle++
		clear(c.last)
		return ev, true
	}

	subject := ev.Subject()
	fp := ev.fingerprint()
	if c.last[subject] == fp {
		ev.Duplicate = true
	}
	c.last[subject] = fp
	return ev, true
}

// Forget drops the duplicate history for a node. Call it after the node was
// changed by something other than a classified event.
func (c *Classifier) Forget(nodeName string) {
	delete(c.last, nodeName)
}

// Reject withdraws ev as the duplicate baseline of its node. Call it when
// applying ev failed, so that a retry of the same edit is not flagged.
func (c *Classifier) Reject(ev Event) {
	if ev.Kind == GraphStructureChanged || ev.Duplicate {
		return
	}
	if subject := ev.Subject(); c.last[subject] == ev.fingerprint() {
		delete(c.last, subject)
	}
}

func valid(kind Kind, n Notification) bool {
	switch kind {
	case GraphStructureChanged:
		return true
	case NodeUpdated, NodeFreed:
		return n.NodeName != ""
	case NodeAdded:
		return n.NodeName != "" && n.NodeType != ""
	case NodeCopied:
		return n.NodeName != "" && n.SourceName != ""
	case LinkAdded:
		return n.Link != nil && n.Link.complete()
	default:
		return false
	}
}
