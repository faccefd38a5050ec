package fiber

// Tree is the arena that owns every fiber for one root. Current and
// work-in-progress fibers for the same logical node are two distinct slots,
// cross-linked by Alternate; Tree never holds more than two slots per
// logical node (spec.md §8 property 7, §9 "double-buffer space bound").
type Tree struct {
	nodes    []*Node
	freeList []ID
}

// NewTree creates an empty arena. ID 0 is reserved as "nil" so a real fiber
// always has a positive ID.
func NewTree() *Tree {
	return &Tree{nodes: make([]*Node, 1)} // index 0 unused
}

// Get returns the node at id, or nil if id is the nil ID or has been freed.
func (t *Tree) Get(id ID) *Node {
	if id == 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// alloc reserves a fresh ID for n, reusing a freed slot if one exists.
func (t *Tree) alloc(n *Node) ID {
	if len(t.freeList) > 0 {
		id := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		n.ID = id
		t.nodes[id] = n
		return id
	}
	id := ID(len(t.nodes))
	n.ID = id
	t.nodes = append(t.nodes, n)
	return id
}

// NewRootFiber allocates the first (current) fiber of a freshly created
// container — a HostRoot fiber with no alternate yet.
func (t *Tree) NewRootFiber(mode Mode) ID {
	n := &Node{Tag: HostRoot, Mode: mode}
	return t.alloc(n)
}

// Free returns id's slot to the free list after commit has dropped every
// reference to it (a deleted subtree). Freeing an ID that still has a live
// alternate pointing at it is a caller bug; Free does not check this since
// the work loop is the sole mutator and always frees both sides of a
// discarded alternate pair together via FreeSubtree.
func (t *Tree) Free(id ID) {
	if id == 0 || int(id) >= len(t.nodes) {
		return
	}
	t.nodes[id] = nil
	t.freeList = append(t.freeList, id)
}

// FreeSubtree recursively frees id and its current children/siblings chain
// (but not id.Alternate — the alternate is freed separately once nothing
// else references it, typically by the commit driver after a deletion).
func (t *Tree) FreeSubtree(id ID) {
	n := t.Get(id)
	if n == nil {
		return
	}
	for c := n.FirstChild; c != 0; {
		next := t.Get(c).NextSibling
		t.FreeSubtree(c)
		c = next
	}
	t.Free(id)
}

// CreateWorkInProgress implements spec.md §4.2's create_work_in_progress:
// given a current fiber, either allocate a fresh alternate (first render of
// this node) or reuse the existing alternate (every subsequent render),
// always copying the current tree's pending-independent state across.
func (t *Tree) CreateWorkInProgress(currentID ID, pendingProps any) ID {
	current := t.Get(currentID)
	if current == nil {
		return 0
	}

	var wip *Node
	if current.Alternate == 0 {
		wip = &Node{
			Tag:         current.Tag,
			Key:         current.Key,
			Mode:        current.Mode,
			ElementType: current.ElementType,
			Type:        current.Type,
			StateNode:   current.StateNode,
			Flags:       current.Flags & StaticMask,
		}
		wipID := t.alloc(wip)
		wip.Alternate = currentID
		current.Alternate = wipID
	} else {
		wipID := current.Alternate
		wip = t.Get(wipID)
		wip.PendingProps = pendingProps
		wip.Flags = current.Flags & StaticMask
		wip.SubtreeFlags = NoFlags
		wip.Deletions = nil
	}

	wip.PendingProps = pendingProps
	wip.ChildLanes = current.ChildLanes
	wip.Lanes = current.Lanes
	wip.FirstChild = current.FirstChild
	wip.MemoizedProps = current.MemoizedProps
	wip.MemoizedState = current.MemoizedState
	wip.UpdateQueue = current.UpdateQueue
	wip.NextSibling = current.NextSibling
	wip.Index = current.Index
	wip.Ref = current.Ref
	wip.RefCleanup = current.RefCleanup
	wip.Dependencies = current.Dependencies.Clone()
	wip.Parent = current.Parent

	return wip.ID
}

// CreateChildFiber allocates a brand new fiber (no current counterpart) for
// a freshly mounted element, per spec.md §4.6 child reconciliation "on
// miss: create a new fiber with Placement".
func (t *Tree) CreateChildFiber(tag Tag, typ, elementType any, key string, mode Mode, props any) ID {
	n := &Node{
		Tag:           tag,
		Type:          typ,
		ElementType:   elementType,
		Key:           key,
		Mode:          mode,
		PendingProps:  props,
		MemoizedProps: nil,
	}
	return t.alloc(n)
}
