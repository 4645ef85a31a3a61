// Package event classifies raw host edit notifications into a closed set of
// semantic edit events.
//
// The host (an editor embedding the engine) reports every user action as one
// or more callbacks. A single action often produces several callbacks that
// describe the same logical edit. The Classifier maps each callback to an
// Event, flags repeats inside the current edit cycle as duplicates, and ends
// the cycle when the host reports that the graph structure settled.
//
//	c := event.NewClassifier()
//	ev, ok := c.Classify(event.Notification{Callback: "add_node", NodeType: "add", NodeName: "Add"})
//	if ok && !ev.Duplicate {
//	    // apply ev to the graph
//	}
//
// Classified events are appended to a Log. A Log can mirror every event into
// an eventlog.Store for inspection after the session ends.
package event
