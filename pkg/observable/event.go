package observable

// Event is an observable without a meaningful value: listeners fire on
// every Fire. Reading it with Get inside a computed or effect subscribes to
// it like any other observable.
type Event struct {
	o *Obs
}

// NewEvent creates an event.
func NewEvent() *Event {
	return &Event{o: New(uint64(0))}
}

// On registers fn to run on every Fire.
func (e *Event) On(fn func()) Dispose {
	return e.o.OnChange(func(Change) { fn() })
}

// Fire notifies all listeners.
func (e *Event) Fire() {
	if err := e.o.t.apply(e.o.id, OpSet, e.count()+1, true); err != nil {
		getLogger().Warn("observable event not fired", "tree", e.o.t.name, "error", err)
	}
}

// Get records a dependency on the event and returns how often it fired.
func (e *Event) Get() uint64 {
	e.o.Get()
	return e.count()
}

// Obs returns the node backing the event.
func (e *Event) Obs() *Obs {
	return e.o
}

func (e *Event) count() uint64 {
	n, _ := e.o.Peek().(uint64)
	return n
}
