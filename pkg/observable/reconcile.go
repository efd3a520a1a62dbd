package observable

import "reflect"

// reconcileLocked diffs the materialized descendants of id between the old
// and new value, relocating array element nodes by identity and appending a
// delivery for every descendant whose value changed. Deeper nodes are
// appended first. It reports whether an array set at id only reordered
// elements. t.mu must be held.
func (t *tree) reconcileLocked(out *[]delivery, id nodeID, oldV, newV any) (reorder bool) {
	if len(t.nodes[id].children) == 0 && !isArrayPair(oldV, newV) {
		return false
	}
	if isContainer(newV) && sameValue(oldV, newV) {
		return false
	}
	if oldArr, ok := oldV.([]any); ok {
		if newArr, ok := newV.([]any); ok {
			return t.reconcileArrayLocked(out, id, oldArr, newArr)
		}
	}
	for _, key := range t.sortedChildren(id) {
		ov, oex := childValue(oldV, key)
		nv, nex := childValue(newV, key)
		t.diffNodeLocked(out, t.nodes[id].children[key], ov, nv, oex != nex)
	}
	return false
}

// diffNodeLocked reconciles one descendant and notifies its own listeners
// when its value changed.
func (t *tree) diffNodeLocked(out *[]delivery, id nodeID, ov, nv any, structural bool) {
	if sameValue(ov, nv) {
		return
	}
	reorder := t.reconcileLocked(out, id, ov, nv)
	*out = t.selfLocked(*out, id, nv, ov, structural, reorder)
}

func isArrayPair(a, b any) bool {
	_, aok := a.([]any)
	_, bok := b.([]any)
	return aok && bok
}

// reconcileArrayLocked reconciles the element nodes of an array.
//
// When the length is unchanged nodes keep their slots and each slot is
// diffed, so a swap notifies both slots. When the length changed, the node
// of every old element found again by identity moves with it; nodes whose
// element vanished are orphaned.
func (t *tree) reconcileArrayLocked(out *[]delivery, id nodeID, oldArr, newArr []any) (reorder bool) {
	if len(oldArr) == len(newArr) {
		return t.reconcileSlotsLocked(out, id, oldArr, newArr)
	}

	children := t.nodes[id].children
	if len(children) == 0 {
		return false
	}

	// identity -> old index, for old elements that have a node
	oldByIdent := make(map[any]int)
	for key := range children {
		j, ok := parseIndex(key)
		if !ok || j >= len(oldArr) {
			continue
		}
		if ident := identityOf(oldArr[j]); ident != nil && comparableKey(ident) {
			if _, dup := oldByIdent[ident]; !dup {
				oldByIdent[ident] = j
			}
		}
	}

	next := make(map[string]nodeID, len(children))
	moved := make(map[nodeID]bool)

	for i, v := range newArr {
		ident := identityOf(v)
		if ident == nil || !comparableKey(ident) {
			continue
		}
		j, ok := oldByIdent[ident]
		if !ok {
			continue
		}
		delete(oldByIdent, ident)
		cid := children[indexKey(j)]
		moved[cid] = true
		key := indexKey(i)
		next[key] = cid
		t.nodes[cid].key = key
		t.diffNodeLocked(out, cid, oldArr[j], v, false)
	}

	for _, key := range t.sortedChildren(id) {
		cid := children[key]
		if moved[cid] {
			continue
		}
		j, ok := parseIndex(key)
		if !ok {
			next[key] = cid
			continue
		}
		if _, taken := next[key]; taken || j >= len(newArr) {
			t.nodes[cid].orphan = true
			continue
		}
		next[key] = cid
		var ov any
		if j < len(oldArr) {
			ov = oldArr[j]
		}
		t.diffNodeLocked(out, cid, ov, newArr[j], j >= len(oldArr))
	}

	t.nodes[id].children = next
	return false
}

// reconcileSlotsLocked handles a same-length array set. It reports a pure
// reorder when every changed slot now holds an element that sat elsewhere
// before, unchanged.
func (t *tree) reconcileSlotsLocked(out *[]delivery, id nodeID, oldArr, newArr []any) bool {
	oldAt := make(map[any]int, len(oldArr))
	for j, v := range oldArr {
		if k := reorderKey(v); k != nil {
			if _, dup := oldAt[k]; !dup {
				oldAt[k] = j
			}
		}
	}

	changed, movedOnly := false, true
	for i := range newArr {
		if sameValue(oldArr[i], newArr[i]) {
			continue
		}
		changed = true
		k := reorderKey(newArr[i])
		if k == nil {
			movedOnly = false
			continue
		}
		j, ok := oldAt[k]
		if !ok || j == i || !sameValue(oldArr[j], newArr[i]) {
			movedOnly = false
		}
	}

	for _, key := range t.sortedChildren(id) {
		j, ok := parseIndex(key)
		if !ok || j >= len(newArr) {
			continue
		}
		t.diffNodeLocked(out, t.nodes[id].children[key], oldArr[j], newArr[j], false)
	}
	return changed && movedOnly
}

// reorderKey is identityOf extended to comparable leaves, which match by
// value when detecting reorders.
func reorderKey(v any) any {
	if ident := identityOf(v); ident != nil {
		if comparableKey(ident) {
			return ident
		}
		return nil
	}
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return nil
	}
	return leafKey{v: v}
}

type leafKey struct{ v any }

// comparableKey reports whether k can be used as a map key without
// panicking.
func comparableKey(k any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{k: {}}
	return true
}
