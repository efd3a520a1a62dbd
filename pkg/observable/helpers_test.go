package observable

import (
	"reflect"
	"testing"
)

// recorder collects the changes delivered to a listener.
type recorder struct {
	changes []Change
}

func (r *recorder) fn(c Change) {
	r.changes = append(r.changes, c)
}

func (r *recorder) count() int {
	return len(r.changes)
}

func (r *recorder) last(t *testing.T) Change {
	t.Helper()
	if len(r.changes) == 0 {
		t.Fatal("expected at least one change, got none")
	}
	return r.changes[len(r.changes)-1]
}

func expectValue(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("value = %#v, want %#v", got, want)
	}
}

func expectPath(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("path = %v, want %v", got, want)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("path = %v, want %v", got, want)
			return
		}
	}
}

func listenerCount(o *Obs) int {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	return len(o.t.nodes[o.id].listeners)
}
