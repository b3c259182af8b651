package configtree

import (
	"sync"
	"sync/atomic"

	"k8s.io/client-go/util/workqueue"
)

// Tree is the hierarchical, timestamped, observable key/value store that
// backs a running supervisor's view of its own configuration.
//
// Reads take the tree's RWMutex for the duration of the lookup. Writes take
// it exclusively, apply, then enqueue a Notification and return without
// waiting for watchers to run: watcher dispatch happens on a dedicated
// goroutine reading off a FIFO, so a slow or reentrant handler can never
// block a writer and two handlers can never interleave.
type Tree struct {
	mu   sync.RWMutex
	root *Node

	clock  uint64 // monotonic counter, see Now()
	seq    uint64
	nextID uint64

	pendingMu sync.Mutex
	pending   map[uint64]queuedNotification

	queue  workqueue.TypedInterface[uint64]
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// queuedNotification pairs a Notification with the exact set of handlers it
// must reach, captured while the tree's mutex was held (at Write/Delete/
// Subscribe time) rather than re-resolved from the live tree at delivery.
// Capturing up front is what makes EventRemoved/EventChildRemoved reliable:
// by the time the dispatch goroutine gets to them the node (and its place
// in its parent's children map) is already gone, so a lazy path lookup at
// delivery would silently find nobody to notify.
type queuedNotification struct {
	n        Notification
	handlers []Handler
}

// New returns an empty Tree with its dispatch goroutine already running.
// Callers must call Close when finished to stop that goroutine.
func New() *Tree {
	t := &Tree{
		pending: make(map[uint64]queuedNotification),
		queue:   workqueue.NewTyped[uint64](),
		stopCh:  make(chan struct{}),
	}
	t.root = newNode("", nil)
	t.wg.Add(1)
	go t.dispatchLoop()
	return t
}

// Close shuts down the dispatch goroutine and drains the queue. Further
// mutations are still accepted but their notifications are simply dropped.
func (t *Tree) Close() {
	t.queue.ShutDown()
	t.wg.Wait()
}

// Now returns a Timestamp guaranteed to be strictly greater than any
// previously issued by this Tree, giving every write from this process a
// total order even when two writes land in the same wall-clock nanosecond.
func (t *Tree) Now() Timestamp {
	return Timestamp(atomic.AddUint64(&t.clock, 1))
}

func (t *Tree) nextSeq() uint64 {
	return atomic.AddUint64(&t.seq, 1)
}

// Lookup resolves path to its Node without creating anything. The returned
// Node must not be mutated directly; use the Tree's methods.
func (t *Tree) Lookup(path string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.resolve(t.root, splitPath(path), false, 0)
	if err != nil || n == nil {
		return nil, false
	}
	return n, true
}

// Read returns a leaf's current value.
func (t *Tree) Read(path string) (interface{}, bool) {
	n, ok := t.Lookup(path)
	if !ok {
		return nil, false
	}
	return n.Value()
}

// resolve walks segs from cur, optionally creating Topics nodes along the
// way when create is true. It errors if a non-terminal segment names an
// existing Topic (a leaf cannot have children).
func (t *Tree) resolve(cur *Node, segs []string, create bool, ts Timestamp) (*Node, error) {
	for i, seg := range segs {
		child, ok := cur.children[seg]
		if !ok {
			if !create {
				return nil, nil
			}
			addedAt := cur.Path()
			child = newNode(seg, cur)
			cur.children[seg] = child
			cur.modifiedAt = ts
			t.emit(Notification{Kind: EventChildAdded, Path: addedAt, At: ts}, t.handlersForPath(addedAt))
		}
		if child.kind == KindTopic && i != len(segs)-1 {
			return nil, &InvalidPathError{Path: "/" + joinPath(segs), Reason: "traverses through a leaf"}
		}
		cur = child
	}
	return cur, nil
}

// handlersForPath collects every watcher registered on path and on each of
// its ancestors, root included, so that a subscription on an interior node
// observes mutations anywhere in its subtree. Callers must hold t.mu (at
// least for reading) for the duration of the walk.
func (t *Tree) handlersForPath(path string) []Handler {
	var handlers []Handler
	cur := t.root
	handlers = append(handlers, watcherValues(cur.watchers)...)
	for _, seg := range splitPath(path) {
		next, ok := cur.children[seg]
		if !ok {
			break
		}
		cur = next
		handlers = append(handlers, watcherValues(cur.watchers)...)
	}
	return handlers
}

func watcherValues(m map[uint64]Handler) []Handler {
	if len(m) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}

func joinPath(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}

// Write sets the leaf at path to value, stamped with ts. If the node
// already carries a timestamp > ts the write is stale and is discarded
// (last-writer-wins), and applied is false. Intermediate Topics nodes are created as needed.
func (t *Tree) Write(path string, value interface{}, ts Timestamp) (applied bool, err error) {
	t.mu.Lock()
	segs := splitPath(path)
	if len(segs) == 0 {
		t.mu.Unlock()
		return false, &InvalidPathError{Path: path, Reason: "cannot write the root"}
	}
	n, rerr := t.resolve(t.root, segs, true, ts)
	if rerr != nil {
		t.mu.Unlock()
		return false, rerr
	}
	if n.kind == KindTopics && len(n.children) > 0 {
		t.mu.Unlock()
		return false, &InvalidPathError{Path: path, Reason: "node has children, cannot hold a scalar"}
	}
	if n.kind == KindTopic && n.modifiedAt > ts {
		t.mu.Unlock()
		return false, nil
	}
	n.kind = KindTopic
	n.value = value
	n.modifiedAt = ts
	handlers := t.handlersForPath(path)
	t.mu.Unlock()

	t.emit(Notification{Kind: EventChanged, Path: path, Value: value, At: ts}, handlers)
	return true, nil
}

// Delete removes the node at path if ts is newer than its current
// modified-at timestamp. Deleting an interior node removes its whole
// subtree.
func (t *Tree) Delete(path string, ts Timestamp) (applied bool, err error) {
	t.mu.Lock()
	segs := splitPath(path)
	if len(segs) == 0 {
		t.mu.Unlock()
		return false, &InvalidPathError{Path: path, Reason: "cannot delete the root"}
	}
	parent, err := t.resolve(t.root, segs[:len(segs)-1], false, ts)
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	if parent == nil {
		t.mu.Unlock()
		return false, nil
	}
	name := segs[len(segs)-1]
	n, ok := parent.children[name]
	if !ok {
		t.mu.Unlock()
		return false, nil
	}
	if n.modifiedAt >= ts {
		t.mu.Unlock()
		return false, nil
	}
	removedHandlers := t.handlersForPath(path)
	delete(parent.children, name)
	parent.modifiedAt = ts
	parentHandlers := t.handlersForPath(parentPath(path))
	t.mu.Unlock()

	t.emit(Notification{Kind: EventRemoved, Path: path, At: ts}, removedHandlers)
	t.emit(Notification{Kind: EventChildRemoved, Path: parentPath(path), At: ts}, parentHandlers)
	return true, nil
}

func parentPath(path string) string {
	segs := splitPath(path)
	if len(segs) <= 1 {
		return "/"
	}
	return "/" + joinPath(segs[:len(segs)-1])
}

// Subscribe registers handler to be invoked for every notification at path.
// An EventInitialized notification carrying the node's current value (if
// any) is enqueued immediately, before Subscribe returns.
func (t *Tree) Subscribe(path string, handler Handler) Subscription {
	t.mu.Lock()
	n, _ := t.resolve(t.root, splitPath(path), true, t.rawNow())
	id := atomic.AddUint64(&t.nextID, 1)
	n.watchers[id] = handler
	var val interface{}
	if n.kind == KindTopic {
		val = n.value
	}
	at := n.modifiedAt
	t.mu.Unlock()

	t.emit(Notification{Kind: EventInitialized, Path: path, Value: val, At: at}, []Handler{handler})
	return Subscription{tree: t, path: path, id: id}
}

func (t *Tree) rawNow() Timestamp {
	return Timestamp(atomic.LoadUint64(&t.clock))
}

func (t *Tree) unsubscribe(path string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.resolve(t.root, splitPath(path), false, 0)
	if n == nil {
		return
	}
	delete(n.watchers, id)
}

// emit stamps the notification with a unique sequence number, stashes its
// payload together with the handlers it must reach, and queues the
// sequence number. Queuing the bare uint64 (rather than the Notification
// itself) sidesteps workqueue's value-based dedup, which would otherwise
// require Notification's Value field to be a comparable type.
//
// handlers is captured by the caller while t.mu is held, not re-resolved
// from the live tree when the dispatch goroutine eventually gets to it: a
// node removed by the time of delivery would otherwise vanish from its
// parent's children map and silently drop its own EventRemoved.
func (t *Tree) emit(n Notification, handlers []Handler) {
	n.Seq = t.nextSeq()
	t.pendingMu.Lock()
	t.pending[n.Seq] = queuedNotification{n: n, handlers: handlers}
	t.pendingMu.Unlock()
	t.queue.Add(n.Seq)
}

// dispatchLoop is the tree's single notification consumer: it pulls one
// Notification at a time and runs every handler captured for it at emission
// time. Running one-at-a-time, on one goroutine, is what makes handler
// ordering and non-reentrancy a guarantee rather than a convention.
func (t *Tree) dispatchLoop() {
	defer t.wg.Done()
	for {
		seq, shutdown := t.queue.Get()
		if shutdown {
			return
		}
		t.pendingMu.Lock()
		qn, ok := t.pending[seq]
		delete(t.pending, seq)
		t.pendingMu.Unlock()
		if ok {
			t.deliver(qn)
		}
		t.queue.Done(seq)
	}
}

func (t *Tree) deliver(qn queuedNotification) {
	for _, h := range qn.handlers {
		h(qn.n)
	}
}
