package configtree

import (
	"sort"
	"strings"
)

// Kind distinguishes the two node kinds a Tree can hold.
type Kind int

const (
	// KindTopics is an interior node mapping a name to a child.
	KindTopics Kind = iota
	// KindTopic is a leaf node holding a scalar value.
	KindTopic
)

// Timestamp is a monotonically-comparable write timestamp. Ties are broken
// by arrival order at the tree's single writer (see Tree.Now).
type Timestamp int64

// Node is one entry in the Config Tree. Node identity is its path from the
// root; a path resolves to at most one Node.
type Node struct {
	name       string
	parent     *Node
	kind       Kind
	value      interface{}
	children   map[string]*Node
	modifiedAt Timestamp
	watchers   map[uint64]Handler
}

func newNode(name string, parent *Node) *Node {
	return &Node{
		name:     name,
		parent:   parent,
		kind:     KindTopics,
		children: make(map[string]*Node),
		watchers: make(map[uint64]Handler),
	}
}

// Path reconstructs this node's path from the root, e.g. "/services/a/state".
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	var parts []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		parts = append([]string{cur.name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// Kind returns the node's kind.
func (n *Node) Kind() Kind { return n.kind }

// Value returns the leaf's current value and whether it is a Topic.
func (n *Node) Value() (interface{}, bool) {
	if n.kind != KindTopic {
		return nil, false
	}
	return n.value, true
}

// ModifiedAt returns the node's last-write timestamp.
func (n *Node) ModifiedAt() Timestamp { return n.modifiedAt }

// ChildNames returns the sorted names of this node's children (stable for
// snapshot/display purposes).
func (n *Node) ChildNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// splitPath splits "/a/b/c" (or "a/b/c") into ["a","b","c"], ignoring empty
// segments so leading/trailing/double slashes don't create phantom nodes.
func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// InvalidPathError is returned when a path cannot be resolved or traverses
// through a leaf.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return "invalid path " + e.Path + ": " + e.Reason
}
