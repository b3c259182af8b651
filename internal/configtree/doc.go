// Package configtree implements the hierarchical, timestamped, observable
// key/value store known as the Config Tree.
//
// A Tree is a rooted tree of Topic (leaf, holds a scalar) and Topics
// (interior, maps a name to a child) nodes. Every node carries a
// modified-at timestamp and a set of watchers. Writes are last-writer-wins
// by timestamp; a write carrying a timestamp strictly less than the
// node's current one is silently discarded.
//
// All mutating operations (Write, Delete, MergeFrom) apply under the
// tree's lock and then enqueue a Notification onto a single FIFO consumed
// by one dispatch goroutine, giving a linearizable, single-threaded
// publish queue: handlers never run concurrently with each other, and
// writes issued from inside a handler are themselves enqueued rather than
// applied recursively on the dispatch goroutine.
package configtree
