package observable

import (
	"runtime"
	"sync"
)

// TrackingType selects which changes below a node a listener or dependency
// reacts to.
type TrackingType int

const (
	// TrackAll reacts to any change at or below the node.
	TrackAll TrackingType = iota

	// TrackShallow reacts to changes of the node itself and to keys being
	// added or removed directly beneath it (including array length changes).
	TrackShallow

	// TrackOptimize behaves like TrackShallow but ignores array sets that
	// only reorder existing elements.
	TrackOptimize
)

func (t TrackingType) String() string {
	switch t {
	case TrackAll:
		return "all"
	case TrackShallow:
		return "shallow"
	case TrackOptimize:
		return "optimize"
	default:
		return "unknown"
	}
}

// Dependency is one node read during a tracked evaluation, together with the
// granularity it was read with.
type Dependency struct {
	Obs   *Obs
	Track TrackingType
}

type depKey struct {
	t     *tree
	id    nodeID
	track TrackingType
}

func (d Dependency) key() depKey {
	return depKey{t: d.Obs.t, id: d.Obs.id, track: d.Track}
}

// collector accumulates dependencies for one synchronous evaluation.
type collector struct {
	deps []Dependency
	seen map[depKey]struct{}
}

func (c *collector) add(o *Obs, track TrackingType) {
	d := Dependency{Obs: o, Track: track}
	k := d.key()
	if _, ok := c.seen[k]; ok {
		return
	}
	if c.seen == nil {
		c.seen = make(map[depKey]struct{})
	}
	c.seen[k] = struct{}{}
	c.deps = append(c.deps, d)
}

// TrackingContext holds the reactive state for a goroutine: the active
// collector, the batch depth and the queue of deferred deliveries.
type TrackingContext struct {
	gid uint64

	// collector records reads. nil means reads are not tracked.
	collector *collector

	// batchDepth tracks nested batches. When > 0 deliveries are queued.
	batchDepth int

	// pending holds queued deliveries, deduplicated by listener group.
	pending    []delivery
	pendingIdx map[uint64]int
}

// trackingContexts stores per-goroutine tracking contexts.
var trackingContexts sync.Map

// getGoroutineID returns the id of the current goroutine, parsed from the
// header of its stack trace ("goroutine <id> [...").
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := 10; i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// getTrackingContext returns the tracking context for the current goroutine,
// creating it on first use.
func getTrackingContext() *TrackingContext {
	gid := getGoroutineID()

	if ctx, ok := trackingContexts.Load(gid); ok {
		return ctx.(*TrackingContext)
	}

	ctx := &TrackingContext{gid: gid}
	trackingContexts.Store(gid, ctx)
	return ctx
}

// lookupTrackingContext returns the current goroutine's context, or nil if it
// has none.
func lookupTrackingContext() *TrackingContext {
	if ctx, ok := trackingContexts.Load(getGoroutineID()); ok {
		return ctx.(*TrackingContext)
	}
	return nil
}

// releaseIfIdle drops ctx once it is back to its zero state. Goroutine ids
// are never reused, so idle contexts would otherwise accumulate.
func releaseIfIdle(ctx *TrackingContext) {
	if ctx.collector == nil && ctx.batchDepth == 0 && len(ctx.pending) == 0 {
		trackingContexts.CompareAndDelete(ctx.gid, ctx)
	}
}

// setCollector installs c as the active collector and returns the previous
// one so it can be restored.
func setCollector(c *collector) *collector {
	if c == nil {
		ctx := lookupTrackingContext()
		if ctx == nil {
			return nil
		}
		old := ctx.collector
		ctx.collector = nil
		releaseIfIdle(ctx)
		return old
	}
	ctx := getTrackingContext()
	old := ctx.collector
	ctx.collector = c
	return old
}

// track records a read of o if a collector is active on this goroutine.
func track(o *Obs, t TrackingType) {
	ctx := lookupTrackingContext()
	if ctx != nil && ctx.collector != nil {
		ctx.collector.add(o, t)
	}
}

// Collect runs fn with a fresh collector and returns every node read through
// Get during the call. Collectors nest: reads inside a nested Collect (or a
// computed evaluated by fn) are not attributed to the outer call. The
// previous collector is restored even if fn panics.
func Collect(fn func()) []Dependency {
	c := &collector{}
	old := setCollector(c)
	defer setCollector(old)
	fn()
	return c.deps
}

// Untracked runs fn without recording reads.
//
// For single reads, Obs.Peek is clearer.
func Untracked(fn func()) {
	old := setCollector(nil)
	defer setCollector(old)
	fn()
}

// Subscribe registers fn on every dependency in deps with the dependency's
// tracking type. Changes delivered in one batch reach fn once. This is the
// entry point for render bindings that discovered their reads with Collect.
func Subscribe(deps []Dependency, fn ListenerFunc) Dispose {
	group := nextID()
	disposers := make([]Dispose, 0, len(deps))
	for _, d := range deps {
		disposers = append(disposers, d.Obs.listen(fn, d.Track, group))
	}
	return func() {
		for _, dispose := range disposers {
			dispose()
		}
	}
}

// cleanupGoroutineContext removes the tracking context for the current
// goroutine. Goroutines that settle many promises may call it before exiting.
func cleanupGoroutineContext() {
	trackingContexts.Delete(getGoroutineID())
}
