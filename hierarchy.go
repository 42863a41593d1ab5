package rmx

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Kind distinguishes leaf documents from folder collections.
type Kind string

const (
	KindDocument   Kind = "DocumentType"
	KindCollection Kind = "CollectionType"
)

// TrashID is the virtual parent id the store uses for deleted items.
// Entries whose declared parent cannot be resolved are attached here too.
const TrashID = "trash"

// Entry is one item of a snapshot, as decoded from the root index and the
// entry's metadata blob. Hash addresses the entry's document index blob.
type Entry struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id"`
	Kind         Kind      `json:"kind"`
	Name         string    `json:"name"`
	Hash         string    `json:"hash"`
	Size         int64     `json:"size"`
	Pinned       bool      `json:"pinned,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// IsDir returns true for collections.
func (e Entry) IsDir() bool { return e.Kind == KindCollection }

// Node is an Entry linked into a Hierarchy.
type Node struct {
	Entry    Entry
	Children []*Node

	parent *Node
}

// IsDir returns true for collections.
func (n *Node) IsDir() bool { return n.Entry.IsDir() }

// Name returns the display name.
func (n *Node) Name() string { return n.Entry.Name }

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Hierarchy is the tree built from a flat entry batch. The root and the
// trash branch beneath it are synthetic; everything else comes from the
// batch.
type Hierarchy struct {
	Root  *Node
	Trash *Node

	// Cycles lists entry ids excluded because following parent links never
	// reached a root. Sorted.
	Cycles []string

	byID map[string]*Node
}

// BuildHierarchy links a flat entry batch into a rooted tree.
//
// Construction is two passes: the first indexes entries by id (duplicate
// ids: last seen wins), the second links children to parents. Entries
// whose parent id is absent from the batch attach under the trash branch
// rather than being dropped. Nodes whose parent chain loops are excluded
// entirely and reported via Cycles.
func BuildHierarchy(entries []Entry) *Hierarchy {
	nodes := make(map[string]*Node, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.ID == TrashID {
			continue // reserved ids
		}
		nodes[e.ID] = &Node{Entry: e}
	}

	root := &Node{Entry: Entry{Name: "/", Kind: KindCollection}}
	trash := &Node{Entry: Entry{ID: TrashID, Name: "trash", Kind: KindCollection}, parent: root}
	root.Children = append(root.Children, trash)

	h := &Hierarchy{
		Root:  root,
		Trash: trash,
		byID:  make(map[string]*Node, len(nodes)+1),
	}
	h.byID[TrashID] = trash

	// A chain longer than the batch size can only mean a parent loop.
	maxHops := len(nodes)
	cycled := make(map[string]bool)
	for id, n := range nodes {
		if !terminates(n, nodes, maxHops) {
			cycled[id] = true
			h.Cycles = append(h.Cycles, id)
		}
	}
	sort.Strings(h.Cycles)

	for id, n := range nodes {
		if cycled[id] {
			continue
		}

		parent := trash
		switch pid := n.Entry.ParentID; {
		case pid == "":
			parent = root
		case pid == TrashID:
			// explicitly trashed
		default:
			if p, ok := nodes[pid]; ok && !cycled[pid] {
				parent = p
			}
		}

		n.parent = parent
		parent.Children = append(parent.Children, n)
		h.byID[id] = n
	}

	sortTree(root)
	return h
}

// terminates walks parent links until the chain leaves the batch (empty
// parent, trash, or an id the batch does not contain all end it) or runs
// out of hops.
func terminates(n *Node, nodes map[string]*Node, maxHops int) bool {
	cur := n
	for hops := 0; hops <= maxHops; hops++ {
		pid := cur.Entry.ParentID
		if pid == "" || pid == TrashID {
			return true
		}
		next, ok := nodes[pid]
		if !ok {
			return true // orphan, lands in trash
		}
		cur = next
	}
	return false
}

// sortTree orders children deterministically: collections first, then
// case-insensitive by name, ties broken by id. This is also the traversal
// order of the recursive exporter.
func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		an, bn := strings.ToLower(a.Name()), strings.ToLower(b.Name())
		if an != bn {
			return an < bn
		}
		return a.Entry.ID < b.Entry.ID
	})
	for _, c := range n.Children {
		sortTree(c)
	}
}

// NodeByID looks up a linked entry by id.
func (h *Hierarchy) NodeByID(id string) (*Node, bool) {
	n, ok := h.byID[id]
	return n, ok
}

// NodeByPath resolves a /-separated name path from the root. The store
// permits duplicate sibling names; the first match in listing order wins.
func (h *Hierarchy) NodeByPath(path string) (*Node, error) {
	cur := h.Root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		var found *Node
		for _, c := range cur.Children {
			if c.Name() == part {
				found = c
				break
			}
		}
		if found == nil {
			return nil, errors.Wrapf(ErrNotFound, "path %q", path)
		}
		cur = found
	}
	return cur, nil
}

// Path returns the name path from the root to n.
func (h *Hierarchy) Path(n *Node) string {
	if n == h.Root {
		return "/"
	}
	var parts []string
	for cur := n; cur != nil && cur != h.Root; cur = cur.parent {
		parts = append(parts, cur.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// Len returns the number of linked entries, excluding synthetic nodes.
func (h *Hierarchy) Len() int {
	return len(h.byID) - 1 // trash is synthetic
}
