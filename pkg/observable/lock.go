package observable

// LockObservable locks or unlocks the tree o belongs to. While locked every
// Set, Assign, Delete and Toggle under that root returns ErrLocked without
// writing or notifying. Promise settlements and computed updates are not
// affected.
func LockObservable(o *Obs, locked bool) {
	o.t.mu.Lock()
	o.t.locked = locked
	o.t.mu.Unlock()
}

// Locked reports whether o's tree is locked.
func (o *Obs) Locked() bool {
	o.t.mu.Lock()
	defer o.t.mu.Unlock()
	return o.t.locked
}
