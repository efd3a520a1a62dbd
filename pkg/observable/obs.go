package observable

import (
	"fmt"
	"strings"
)

// Obs is a handle to one path of an observable tree. Handles are unique per
// path: Child, Index and At return the same *Obs for the same node, and the
// handle follows its node when array reconciliation relocates it.
//
// All handles derived from one New share the raw value. Any of them may
// read or mutate it.
//
// Nodes live in an arena owned by the tree and are never freed. A node whose
// array element vanished is orphaned: its handle reads nil and ignores
// writes, but the node and its listeners stay allocated for the life of the
// tree. Long-lived trees that churn large arrays of handled elements should
// dispose listeners on removed elements and rebuild the tree when it grows.
type Obs struct {
	t  *tree
	id nodeID
}

// New creates an observable tree holding initial and returns its root.
//
// A *Promise initial value leaves the root nil until the promise settles;
// the promise is watched from the first access.
func New(initial any, opts ...Option) *Obs {
	t := newTree(opts...)
	switch v := initial.(type) {
	case *Promise:
		t.nodes[rootID].pending = v
		t.activate = func() { t.watchPromise(rootID, v) }
	case *Obs:
		t.value = v.Peek()
	default:
		t.value = initial
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handleLocked(rootID)
}

// Child returns the handle for key beneath o. The node is created on demand,
// also when the current value has no such key or o itself is nil.
func (o *Obs) Child(key string) *Obs {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	return o.t.handleLocked(o.t.childLocked(o.id, key))
}

// Index returns the handle for array index i beneath o.
func (o *Obs) Index(i int) *Obs {
	return o.Child(indexKey(i))
}

// At walks keys from o and returns the handle at the end.
func (o *Obs) At(keys ...string) *Obs {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	id := o.id
	for _, k := range keys {
		id = o.t.childLocked(id, k)
	}
	return o.t.handleLocked(id)
}

// Get returns the current value and records a TrackAll dependency with the
// active collector, if any.
func (o *Obs) Get() any {
	track(o, TrackAll)
	return o.Peek()
}

// GetShallow returns the current value and records a TrackShallow
// dependency.
func (o *Obs) GetShallow() any {
	track(o, TrackShallow)
	return o.Peek()
}

// GetWith returns the current value and records a dependency with the given
// tracking type.
func (o *Obs) GetWith(t TrackingType) any {
	track(o, t)
	return o.Peek()
}

// Peek returns the current value without tracking. Containers are returned
// as stored, not copied.
func (o *Obs) Peek() any {
	return o.t.peek(o.id)
}

// Set replaces the value at o. A *Obs value stores its current value; a
// func(any) any value behaves like SetFunc; a *Promise stores nil until it
// settles.
func (o *Obs) Set(v any) error {
	if fn, ok := v.(func(any) any); ok {
		return o.SetFunc(fn)
	}
	return o.t.apply(o.id, OpSet, v, false)
}

// SetFunc replaces the value at o with fn applied to the current value.
func (o *Obs) SetFunc(fn func(prev any) any) error {
	return o.Set(fn(o.Peek()))
}

// Assign merges the keys of partial into the object at o, creating it when
// nil. All keys are written in one batch, so each listener fires once. On an
// array every key must be an index; otherwise nothing is written.
func (o *Obs) Assign(partial map[string]any) error {
	if err := o.t.checkWritable(o.id, OpAssign); err != nil {
		return err
	}
	cur := o.Peek()
	if cur != nil && !isContainer(cur) {
		return pathError(OpAssign, o.Path(), ErrInvalidAssign)
	}
	if _, ok := cur.([]any); ok {
		for _, k := range keysOf(partial) {
			if _, ok := parseIndex(k); !ok {
				return pathError(OpAssign, append(o.Path(), k), ErrInvalidIndex)
			}
		}
	}

	BeginBatch()
	defer EndBatch()

	if cur == nil {
		if err := o.t.apply(o.id, OpAssign, map[string]any{}, false); err != nil {
			return err
		}
	}
	for _, k := range keysOf(partial) {
		c := o.Child(k)
		if err := c.t.apply(c.id, OpAssign, partial[k], false); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes o's key from its parent object, or sets an array slot to
// nil. Deleting the root sets it to nil. Handles to descendants stay valid;
// writing through them recreates the key.
func (o *Obs) Delete() error {
	return o.t.apply(o.id, OpDelete, nil, false)
}

// Toggle flips a boolean value and returns the new value.
func (o *Obs) Toggle() (bool, error) {
	b, ok := o.Peek().(bool)
	if !ok {
		return false, pathError(OpToggle, o.Path(), ErrInvalidToggle)
	}
	if err := o.t.apply(o.id, OpToggle, !b, false); err != nil {
		return b, err
	}
	return !b, nil
}

// OnChange registers fn for changes at or below o, filtered by the tracking
// type (TrackAll by default). The returned Dispose is idempotent.
func (o *Obs) OnChange(fn ListenerFunc, track ...TrackingType) Dispose {
	tt := TrackAll
	if len(track) > 0 {
		tt = track[0]
	}
	o.t.runActivate()
	return o.listen(fn, tt, nextID())
}

// listen attaches a listener whose deliveries are coalesced with every other
// listener sharing group.
func (o *Obs) listen(fn ListenerFunc, tt TrackingType, group uint64) Dispose {
	l := &listener{id: nextID(), group: group, fn: fn, track: tt}
	t := o.t
	t.mu.Lock()
	t.nodes[o.id].listeners = append(t.nodes[o.id].listeners, l)
	t.mu.Unlock()

	return func() {
		if !l.disposed.CompareAndSwap(false, true) {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		ls := t.nodes[o.id].listeners
		for i, x := range ls {
			if x == l {
				t.nodes[o.id].listeners = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
	}
}

// Keys returns the child keys of the current value: sorted object keys or
// array indices. Primitives have none. Reading keys records a TrackShallow
// dependency.
func (o *Obs) Keys() []string {
	return keysOf(o.GetShallow())
}

// Len returns the number of children of the current value.
func (o *Obs) Len() int {
	switch v := o.GetShallow().(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	}
	return 0
}

// Items returns one handle per child, in Keys order.
func (o *Obs) Items() []*Obs {
	keys := o.Keys()
	items := make([]*Obs, len(keys))
	for i, k := range keys {
		items[i] = o.Child(k)
	}
	return items
}

// Push appends items to the array at o. A nil value is treated as an empty
// array.
func (o *Obs) Push(items ...any) error {
	cur, err := o.array(OpSet)
	if err != nil {
		return err
	}
	next := make([]any, 0, len(cur)+len(items))
	next = append(next, cur...)
	next = append(next, items...)
	return o.Set(next)
}

// Splice removes deleteCount elements at start, inserts items in their place
// and returns the removed elements. A negative start counts from the end.
func (o *Obs) Splice(start, deleteCount int, items ...any) ([]any, error) {
	cur, err := o.array(OpSet)
	if err != nil {
		return nil, err
	}
	n := len(cur)
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	deleteCount = min(max(deleteCount, 0), n-start)

	removed := append([]any(nil), cur[start:start+deleteCount]...)
	next := make([]any, 0, n-deleteCount+len(items))
	next = append(next, cur[:start]...)
	next = append(next, items...)
	next = append(next, cur[start+deleteCount:]...)
	if err := o.Set(next); err != nil {
		return nil, err
	}
	return removed, nil
}

func (o *Obs) array(op Op) ([]any, error) {
	switch v := o.Peek().(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	}
	return nil, pathError(op, o.Path(), ErrInvalidIndex)
}

// Parent returns the enclosing handle, or nil for the root.
func (o *Obs) Parent() *Obs {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	p := o.t.nodes[o.id].parent
	if p == noParent {
		return nil
	}
	return o.t.handleLocked(p)
}

// Key returns the key of o within its parent, "" for the root.
func (o *Obs) Key() string {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	return o.t.nodes[o.id].key
}

// Path returns the keys from the root to o. It is nil for nodes dropped by
// array reconciliation.
func (o *Obs) Path() []string {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	path, _ := o.t.pathLocked(o.id)
	return path
}

// Root returns the root handle of o's tree.
func (o *Obs) Root() *Obs {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	return o.t.handleLocked(rootID)
}

// IsComputed reports whether o belongs to a computed tree.
func (o *Obs) IsComputed() bool {
	return o.t.computed != nil
}

func (o *Obs) String() string {
	return fmt.Sprint(o.Peek())
}

// PathString returns Path joined with dots.
func (o *Obs) PathString() string {
	return strings.Join(o.Path(), ".")
}

// GetAs returns o.Get() asserted to T.
func GetAs[T any](o *Obs) (T, bool) {
	v, ok := o.Get().(T)
	return v, ok
}

// PeekAs returns o.Peek() asserted to T.
func PeekAs[T any](o *Obs) (T, bool) {
	v, ok := o.Peek().(T)
	return v, ok
}

// IsObservable reports whether v is an observable handle or event.
func IsObservable(v any) bool {
	switch x := v.(type) {
	case *Obs:
		return x != nil
	case *Event:
		return x != nil
	}
	return false
}
