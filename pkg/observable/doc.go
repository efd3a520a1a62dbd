// Package observable provides a fine-grained reactive state tree.
//
// An observable wraps an arbitrary nested value built from map[string]any
// objects, []any arrays and leaf values. Every reachable path is exposed as
// a handle that can be read, written and listened to on its own, and
// changes are delivered only to listeners whose paths they affect.
//
// # Handles
//
//	state := observable.New(map[string]any{
//	    "user": map[string]any{"name": "Ada"},
//	    "todos": []any{},
//	})
//	name := state.At("user", "name")
//	name.Get()          // "Ada"
//	name.Set("Grace")   // notifies name, user and the root
//
// Handles are unique per path and created on demand, also for paths that do
// not exist yet. Writing through such a handle creates the missing objects.
//
// # Listening
//
// OnChange registers a listener with a tracking type:
//
//   - TrackAll fires for any change at or below the node.
//   - TrackShallow fires when the node is set or keys are added or removed
//     directly beneath it.
//   - TrackOptimize is TrackShallow that ignores pure reorders of an array.
//
// # Arrays
//
// Setting an array reconciles the nodes of its elements. When elements are
// inserted or removed, nodes follow their element (matched by the id, _id or
// __id key, or by reference), so a handle obtained for an item keeps
// pointing at that item. When the length is unchanged nodes stay in their
// slots.
//
// # Tracking, Computed and Batching
//
// Get records a dependency with the active collector. Computed, Effect and
// When collect their reads and resubscribe after every evaluation:
//
//	total := observable.Computed(func() any {
//	    return len(state.Child("todos").Get().([]any))
//	})
//
// Batch defers and coalesces deliveries until the outermost batch ends;
// each listener then fires once with the first previous value and the last
// new value.
//
// # Concurrency
//
// A tree is meant to be mutated by one goroutine at a time; its mutex keeps
// the raw value and node graph consistent but is never held while listeners
// run. Tracking and batching state is per goroutine. Promise results are
// written through the tree's Dispatcher, which defaults to the settling
// goroutine.
package observable
