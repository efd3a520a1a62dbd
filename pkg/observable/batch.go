package observable

// BeginBatch opens a batch on the current goroutine. Until the matching
// outermost EndBatch, listener deliveries are queued and coalesced: each
// listener fires once with the first previous value and the last new value.
//
// Callers must balance BeginBatch with EndBatch, including on error paths.
// Prefer Batch, which does so with defer.
func BeginBatch() {
	getTrackingContext().batchDepth++
}

// EndBatch closes a batch. When the outermost batch closes, queued
// deliveries are flushed synchronously before EndBatch returns. Calling
// EndBatch without an open batch is a no-op.
func EndBatch() {
	ctx := lookupTrackingContext()
	if ctx == nil || ctx.batchDepth == 0 {
		return
	}
	ctx.batchDepth--
	if ctx.batchDepth == 0 {
		flushPending(ctx)
		releaseIfIdle(ctx)
	}
}

// Batch runs fn inside a batch.
//
//	observable.Batch(func() {
//	    user.Child("first").Set("Ada")
//	    user.Child("last").Set("Lovelace")
//	})
//	// listeners on user fire once
func Batch(fn func()) {
	BeginBatch()
	defer EndBatch()
	fn()
}

// Tx runs fn as a transaction. It is an alias for Batch.
func Tx(fn func()) {
	Batch(fn)
}

// TxNamed runs fn as a named transaction. In DebugMode the boundaries are
// logged.
func TxNamed(name string, fn func()) {
	if DebugMode {
		getLogger().Debug("observable tx start", "tx", name)
		defer getLogger().Debug("observable tx end", "tx", name)
	}
	Batch(fn)
}

// inBatch reports whether the current goroutine has an open batch.
func inBatch() bool {
	ctx := lookupTrackingContext()
	return ctx != nil && ctx.batchDepth > 0
}

// deliver hands deliveries to listeners, either queued in the open batch or
// inside an implicit batch of their own.
func deliver(ds []delivery) {
	if len(ds) == 0 {
		return
	}
	ctx := getTrackingContext()
	ctx.batchDepth++
	for _, d := range ds {
		enqueue(ctx, d)
	}
	ctx.batchDepth--
	if ctx.batchDepth == 0 {
		flushPending(ctx)
		releaseIfIdle(ctx)
	}
}

func enqueue(ctx *TrackingContext, d delivery) {
	if ctx.pendingIdx == nil {
		ctx.pendingIdx = make(map[uint64]int)
	}
	if i, ok := ctx.pendingIdx[d.l.group]; ok {
		q := &ctx.pending[i]
		q.l = d.l
		if q.t == d.t && q.node == d.node {
			q.change = mergeChange(q.change, d.change)
		} else {
			q.t, q.node, q.change = d.t, d.node, d.change
		}
		return
	}
	ctx.pendingIdx[d.l.group] = len(ctx.pending)
	ctx.pending = append(ctx.pending, d)
}

// flushPending drains the queue and invokes listeners in queue order.
// Listeners that mutate observables open their own implicit batches.
func flushPending(ctx *TrackingContext) {
	total := 0
	for len(ctx.pending) > 0 {
		ds := ctx.pending
		ctx.pending = nil
		ctx.pendingIdx = nil

		recordNotify(len(ds))
		for _, d := range ds {
			if d.l.disposed.Load() {
				continue
			}
			total++
			d.l.fn(d.change)
		}
	}
	if total > 0 {
		recordFlush(total)
	}
}

// mergeChange coalesces two deliveries to the same listener: the earliest
// previous value and the latest current value win.
func mergeChange(first, last Change) Change {
	out := Change{
		Value:      last.Value,
		Prev:       first.Prev,
		Structural: first.Structural || last.Structural,
		Reorder:    first.Reorder && last.Reorder,
	}
	if equalPath(first.Path, last.Path) {
		out.Path = last.Path
		out.ChangedValue = last.ChangedValue
		out.PrevAtChange = first.PrevAtChange
		return out
	}
	out.Path = commonPrefix(first.Path, last.Path)
	out.ChangedValue = lookupPath(out.Value, out.Path)
	out.PrevAtChange = lookupPath(out.Prev, out.Path)
	return out
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func commonPrefix(a, b []string) []string {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return append([]string(nil), a[:n]...)
}
