package configtree

// MergeBehavior controls how MergeFrom treats keys present in the
// destination tree but absent from the incoming one, mirroring a
// deployment's MERGE vs REPLACE semantics.
type MergeBehavior int

const (
	// MergeKeepAbsent leaves destination-only keys untouched (MERGE).
	MergeKeepAbsent MergeBehavior = iota
	// MergeRemoveAbsent deletes destination-only keys under the subtree
	// being merged (REPLACE).
	MergeRemoveAbsent
)

// Snapshot returns a structural deep copy of the tree: same node shape and
// values, same modified-at timestamps, but no watchers and its own
// independent dispatch loop. A pre-image captured this way can be merged
// back in with MergeFrom to roll a change back.
func (t *Tree) Snapshot() *Tree {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := New()
	snap.clock = t.clock
	copyChildren(t.root, snap.root)
	return snap
}

func copyChildren(src, dst *Node) {
	for name, child := range src.children {
		c := newNode(name, dst)
		c.kind = child.kind
		c.value = child.value
		c.modifiedAt = child.modifiedAt
		dst.children[name] = c
		copyChildren(child, c)
	}
}

// MergeFrom applies every Topic in other onto the subtree of t rooted at
// basePath (other's root maps to basePath), using ts as the write timestamp
// for every touched key. When behavior is MergeRemoveAbsent, keys present
// under basePath in t but absent from other are deleted.
//
// MergeFrom is not itself concurrency-safe against another MergeFrom on an
// overlapping basePath; callers must serialize such merges themselves.
func (t *Tree) MergeFrom(other *Tree, basePath string, behavior MergeBehavior, ts Timestamp) error {
	other.mu.RLock()
	srcRoot := other.root
	var srcChildren map[string]*Node
	if srcRoot != nil {
		srcChildren = srcRoot.children
	}
	incoming := flatten(srcRoot, srcChildren, "")
	other.mu.RUnlock()

	seen := make(map[string]bool, len(incoming))
	for path, val := range incoming {
		full := joinBase(basePath, path)
		seen[full] = true
		if _, err := t.Write(full, val, ts); err != nil {
			return err
		}
	}

	if behavior == MergeRemoveAbsent {
		t.mu.RLock()
		dstRoot, _ := t.resolve(t.root, splitPath(basePath), false, 0)
		var existing map[string]string
		if dstRoot != nil {
			existing = leafPaths(dstRoot, "")
		}
		t.mu.RUnlock()

		for rel := range existing {
			full := joinBase(basePath, rel)
			if !seen[full] {
				if _, err := t.Delete(full, ts); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// flatten walks a node's Topic descendants and returns prefix -> value for
// every leaf, keyed relative to the node itself.
func flatten(root *Node, children map[string]*Node, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	if root != nil && root.kind == KindTopic {
		out[prefix] = root.value
		return out
	}
	for name, child := range children {
		rel := name
		if prefix != "" {
			rel = prefix + "/" + name
		}
		if child.kind == KindTopic {
			out[rel] = child.value
			continue
		}
		for k, v := range flatten(child, child.children, rel) {
			out[k] = v
		}
	}
	return out
}

// leafPaths returns the relative path of every Topic descendant of n,
// mapped to itself (only the key set is used by the caller).
func leafPaths(n *Node, prefix string) map[string]string {
	out := make(map[string]string)
	if n.kind == KindTopic {
		out[prefix] = prefix
		return out
	}
	for name, child := range n.children {
		rel := name
		if prefix != "" {
			rel = prefix + "/" + name
		}
		for k := range leafPaths(child, rel) {
			out[k] = k
		}
	}
	return out
}

func joinBase(base, rel string) string {
	if rel == "" {
		return base
	}
	if base == "" || base == "/" {
		return "/" + rel
	}
	return base + "/" + rel
}
