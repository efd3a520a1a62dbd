package observable

import (
	"fmt"
	"strings"
)

// checkWritable returns ErrLocked or ErrReadOnly for writes to id.
func (t *tree) checkWritable(id nodeID, op Op) error {
	t.mu.Lock()
	locked, computed := t.locked, t.computed != nil
	path, _ := t.pathLocked(id)
	t.mu.Unlock()

	if locked {
		if DebugMode {
			getLogger().Debug("observable write rejected", "tree", t.name, "op", op, "path", strings.Join(path, "."))
		}
		return pathError(op, path, ErrLocked)
	}
	if computed {
		return pathError(op, path, ErrReadOnly)
	}
	return nil
}

// apply is the single mutation entry point. It writes value (or deletes for
// OpDelete) at id, reconciles materialized descendants and delivers the
// resulting changes. internal writes come from computed evaluation and
// promise settlement and bypass the lock and read-only checks.
func (t *tree) apply(id nodeID, op Op, value any, internal bool) error {
	if o, ok := value.(*Obs); ok {
		value = o.Peek()
	}
	if !internal {
		if err := t.checkWritable(id, op); err != nil {
			return err
		}
	}
	t.runActivate()

	t.mu.Lock()
	path, ok := t.pathLocked(id)
	if !ok {
		t.mu.Unlock()
		return nil
	}

	var promise *Promise
	if op != OpDelete {
		if p, ok := value.(*Promise); ok {
			promise, value = p, nil
		}
	}
	t.nodes[id].pending = promise

	var chain []any
	if t.ancestorsListenLocked(id) {
		chain = snapshotChain(t.value, path)
	}
	prev, existed := lookupExists(t.value, path)

	if op == OpDelete {
		if !existed {
			t.mu.Unlock()
			return nil
		}
		t.value, _ = deleteAt(t.value, path)
	} else {
		nv, err := setAt(t.value, path, value)
		if err != nil {
			t.mu.Unlock()
			return pathError(op, path, err)
		}
		t.value = nv
		if existed && !isContainer(value) && sameValue(prev, value) {
			t.mu.Unlock()
			if promise != nil {
				t.watchPromise(id, promise)
			}
			return nil
		}
	}

	structural := op == OpDelete || !existed
	var ds []delivery
	reorder := t.reconcileLocked(&ds, id, prev, value)
	ds = t.upwardLocked(ds, id, path, chain, value, prev, structural, reorder)
	t.mu.Unlock()

	recordMutation(op, path)
	deliver(ds)

	if promise != nil {
		t.watchPromise(id, promise)
	}
	return nil
}

// snapshotChain returns the pre-mutation value at each depth above the end
// of path. Containers along path are copied so in-place writes below do not
// leak into the snapshot.
func snapshotChain(root any, path []string) []any {
	chain := make([]any, len(path))
	v := root
	for d := range path {
		c := shallowCopy(v)
		chain[d] = c
		if d > 0 {
			link(chain[d-1], path[d-1], c)
		}
		v, _ = childValue(v, path[d])
	}
	return chain
}

func link(parent any, key string, child any) {
	switch p := parent.(type) {
	case map[string]any:
		if p != nil {
			p[key] = child
		}
	case []any:
		if i, ok := parseIndex(key); ok && i < len(p) {
			p[i] = child
		}
	}
}

// watchPromise writes p's result at id when it settles, unless a later write
// superseded it. Settlement runs through the tree's dispatcher.
func (t *tree) watchPromise(id nodeID, p *Promise) {
	p.Then(func(v any, err error) {
		t.dispatch(func() {
			t.mu.Lock()
			current := t.nodes[id].pending == p
			if current {
				t.nodes[id].pending = nil
			}
			path, _ := t.pathLocked(id)
			t.mu.Unlock()
			if !current {
				return
			}

			if err != nil {
				getLogger().Warn("observable promise rejected",
					"tree", t.name, "path", strings.Join(path, "."), "error", err)
				if t.onReject != nil {
					t.onReject(path, fmt.Errorf("%w: %w", ErrPromiseRejected, err))
				}
				return
			}
			if err := t.apply(id, OpResolve, v, true); err != nil {
				getLogger().Warn("observable promise result not stored",
					"tree", t.name, "path", strings.Join(path, "."), "error", err)
			}
		})
	})
}
