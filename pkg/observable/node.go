package observable

import (
	"sort"
	"strconv"
	"sync"
)

// nodeID indexes a node in its tree's arena.
type nodeID int32

const (
	rootID   nodeID = 0
	noParent nodeID = -1
)

// node describes one path into the tree's raw value. Edges are arena
// indices, so relocating a subtree is a key rewrite on one node.
type node struct {
	parent    nodeID
	key       string
	children  map[string]nodeID
	listeners []*listener

	// handle is the node's unique accessor, created on first use.
	handle *Obs

	// orphan marks a node dropped by array reconciliation. It and its
	// descendants read nil and ignore writes.
	orphan bool

	// pending is the promise whose settlement will be written here.
	pending *Promise
}

// tree is the shared root state of one observable: the raw value store,
// the node arena and the lock flag.
type tree struct {
	id uint64

	// mu guards value and nodes. It is never held while listeners run.
	mu    sync.Mutex
	value any
	nodes []node

	locked bool

	// activate is run once before the first access. Promise roots and
	// computed values use it for lazy start.
	activate func()

	computed *computedState
	equal    func(a, b any) bool

	name     string
	dispatch Dispatcher
	onReject func(path []string, err error)
}

func newTree(opts ...Option) *tree {
	t := &tree{
		id:       nextID(),
		nodes:    []node{{parent: noParent}},
		dispatch: inlineDispatch,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// handleLocked returns the cached handle for id. t.mu must be held.
func (t *tree) handleLocked(id nodeID) *Obs {
	if h := t.nodes[id].handle; h != nil {
		return h
	}
	h := &Obs{t: t, id: id}
	t.nodes[id].handle = h
	return h
}

// childLocked returns the child of id under key, creating it on demand.
// t.mu must be held.
func (t *tree) childLocked(id nodeID, key string) nodeID {
	if cid, ok := t.nodes[id].children[key]; ok {
		return cid
	}
	cid := nodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{parent: id, key: key})
	if t.nodes[id].children == nil {
		t.nodes[id].children = make(map[string]nodeID)
	}
	t.nodes[id].children[key] = cid
	return cid
}

// pathLocked returns the keys from the root to id. ok is false when id lies
// in an orphaned subtree. t.mu must be held.
func (t *tree) pathLocked(id nodeID) (path []string, ok bool) {
	depth := 0
	for cur := id; cur != rootID; cur = t.nodes[cur].parent {
		if t.nodes[cur].orphan {
			return nil, false
		}
		depth++
	}
	path = make([]string, depth)
	for cur := id; cur != rootID; cur = t.nodes[cur].parent {
		depth--
		path[depth] = t.nodes[cur].key
	}
	return path, true
}

// ancestorsListenLocked reports whether any strict ancestor of id has
// listeners.
func (t *tree) ancestorsListenLocked(id nodeID) bool {
	for cur := t.nodes[id].parent; cur != noParent; cur = t.nodes[cur].parent {
		if len(t.nodes[cur].listeners) > 0 {
			return true
		}
	}
	return false
}

// sortedChildren returns the child keys of id, array indices in numeric
// order followed by other keys.
func (t *tree) sortedChildren(id nodeID) []string {
	children := t.nodes[id].children
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aok := parseIndex(keys[i])
		b, bok := parseIndex(keys[j])
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		}
		return keys[i] < keys[j]
	})
	return keys
}

// runActivate runs the deferred activation hook once.
func (t *tree) runActivate() {
	t.mu.Lock()
	fn := t.activate
	t.activate = nil
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// peek reads the raw value at id.
func (t *tree) peek(id nodeID) any {
	t.runActivate()
	t.mu.Lock()
	defer t.mu.Unlock()
	path, ok := t.pathLocked(id)
	if !ok {
		return nil
	}
	return lookupPath(t.value, path)
}

func indexKey(i int) string {
	return strconv.Itoa(i)
}
