package observable

import "sync/atomic"

// Change describes one delivered change.
type Change struct {
	// Value and Prev are the listening node's current and previous values.
	Value any
	Prev  any

	// Path holds the keys from the listening node down to the node that
	// changed. It is empty when the listening node itself was set.
	Path []string

	// ChangedValue and PrevAtChange are the values at Path.
	ChangedValue any
	PrevAtChange any

	// Structural is set when a key was added or removed at the changed node.
	Structural bool

	// Reorder is set when an array set only moved existing elements.
	Reorder bool
}

// ListenerFunc receives changes.
type ListenerFunc func(Change)

// Dispose removes a registration. Calling it more than once is a no-op.
type Dispose func()

type listener struct {
	id uint64

	// group identifies the subscriber. Deliveries to listeners of the same
	// group are coalesced within a batch.
	group uint64

	fn       ListenerFunc
	track    TrackingType
	disposed atomic.Bool
}

// accepts applies the tracking-type filter for a change depth levels below
// the listening node.
func (l *listener) accepts(depth int, structural, reorder bool) bool {
	switch l.track {
	case TrackShallow:
		return depth == 0 || (depth == 1 && structural)
	case TrackOptimize:
		if reorder {
			return false
		}
		return depth == 0 || (depth == 1 && structural)
	}
	return true
}

type delivery struct {
	l      *listener
	t      *tree
	node   nodeID
	change Change
}

// upwardLocked appends deliveries for id and each of its ancestors, innermost
// first. chain holds the previous value at each depth above id, or is nil
// when no ancestor listens. t.mu must be held.
func (t *tree) upwardLocked(out []delivery, id nodeID, path []string, chain []any,
	value, prev any, structural, reorder bool) []delivery {
	d := len(path)
	for cur := id; cur != noParent; cur = t.nodes[cur].parent {
		ls := t.nodes[cur].listeners
		if len(ls) > 0 {
			rel := path[d:]
			c := Change{
				Path:         rel,
				ChangedValue: value,
				PrevAtChange: prev,
				Structural:   structural,
			}
			if cur == id {
				c.Value, c.Prev, c.Reorder = value, prev, reorder
			} else {
				c.Value = lookupPath(t.value, path[:d])
				c.Prev = chain[d]
			}
			for _, l := range ls {
				if l.accepts(len(rel), structural, c.Reorder) {
					out = append(out, delivery{l: l, t: t, node: cur, change: c})
				}
			}
		}
		d--
	}
	return out
}

// selfLocked appends deliveries for listeners on id only. It is used for
// descendants reached by reconciliation.
func (t *tree) selfLocked(out []delivery, id nodeID, value, prev any, structural, reorder bool) []delivery {
	for _, l := range t.nodes[id].listeners {
		if l.accepts(0, structural, reorder) {
			out = append(out, delivery{l: l, t: t, node: id, change: Change{
				Value:        value,
				Prev:         prev,
				ChangedValue: value,
				PrevAtChange: prev,
				Structural:   structural,
				Reorder:      reorder,
			}})
		}
	}
	return out
}
