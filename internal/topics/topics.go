// Package topics defines the closed set of channels the bus routes on.
//
// The enumeration is fixed at build time: components publish and subscribe
// against these values only. Publishing to anything outside the set is a
// documented no-op at the registry level.
package topics

import "sort"

// Topic is a strongly-typed channel identifier.
type Topic struct {
	name        string
	description string
}

// Name returns the unique string identifier for this topic.
func (t Topic) Name() string {
	return t.name
}

// Description returns human-readable documentation.
func (t Topic) Description() string {
	return t.description
}

// String returns the topic name for easy debugging.
func (t Topic) String() string {
	return t.name
}

// known holds every defined topic, keyed by name.
var known = map[string]Topic{}

// define registers a topic in the closed set. It is only callable from this
// package, which is what keeps the enumeration closed.
func define(name, description string) Topic {
	t := Topic{name: name, description: description}
	known[name] = t
	return t
}

var (
	// FromTask carries status messages produced by running tasks.
	FromTask = define("from.task", "Status and progress messages produced by running tasks")

	// FromUI carries command messages produced by the presentation layer.
	FromUI = define("from.ui", "Command messages produced by the presentation layer")

	// SelectedTaskStart instructs workers to start the selected tasks.
	SelectedTaskStart = define("task.selected.start", "Start the tasks selected in the UI")

	// SelectedTaskStop instructs workers to stop the selected tasks.
	SelectedTaskStop = define("task.selected.stop", "Stop the tasks selected in the UI")

	// AutoTaskStart instructs workers to begin the automatic task sequence.
	AutoTaskStart = define("task.auto.start", "Begin the automatic task sequence")

	// AdvancedAutoTaskStart instructs workers to begin the grouped automatic sequence.
	AdvancedAutoTaskStart = define("task.auto.advanced.start", "Begin the grouped automatic task sequence")

	// ResizeWindow requests a re-layout of managed windows.
	ResizeWindow = define("window.resize", "Re-arrange managed windows")

	// CloseWindow requests closing of managed windows.
	CloseWindow = define("window.close", "Close managed windows")

	// AutoLogin requests an automatic login for the given roles.
	AutoLogin = define("auth.login", "Automatically log in the given roles")

	// TaskProcessUpdate carries derived task progress events for observers.
	TaskProcessUpdate = define("task.process.update", "Derived task progress events")

	// WindowStatus carries derived window liveness events for observers.
	WindowStatus = define("window.status", "Derived window liveness events")
)

// Lookup returns the topic registered under name.
func Lookup(name string) (Topic, bool) {
	t, ok := known[name]
	return t, ok
}

// All returns every defined topic, sorted by name.
func All() []Topic {
	out := make([]Topic, 0, len(known))
	for _, t := range known {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
