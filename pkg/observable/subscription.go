package observable

// subscription keeps one listener group attached to a changing set of
// dependencies. Computed values, effects and When waiters resubscribe after
// every evaluation.
type subscription struct {
	group    uint64
	onChange ListenerFunc
	deps     map[depKey]Dispose
	closed   bool
}

func newSubscription(onChange ListenerFunc) *subscription {
	return &subscription{
		group:    nextID(),
		onChange: onChange,
		deps:     make(map[depKey]Dispose),
	}
}

// update diffs deps against the current set: gone entries are unsubscribed,
// new ones subscribed. Reads of self are skipped.
func (s *subscription) update(deps []Dependency, self *tree) {
	if s.closed {
		return
	}
	next := make(map[depKey]Dispose, len(deps))
	for _, d := range deps {
		if d.Obs.t == self {
			continue
		}
		k := d.key()
		if dispose, ok := s.deps[k]; ok {
			next[k] = dispose
			delete(s.deps, k)
			continue
		}
		next[k] = d.Obs.listen(s.onChange, d.Track, s.group)
	}
	for _, dispose := range s.deps {
		dispose()
	}
	s.deps = next
}

// size returns the number of subscribed dependencies.
func (s *subscription) size() int {
	return len(s.deps)
}

func (s *subscription) close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, dispose := range s.deps {
		dispose()
	}
	s.deps = nil
}
