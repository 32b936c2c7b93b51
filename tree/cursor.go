package tree

import (
	"fmt"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
)

type frame struct {
	node *Node
	idx  int // -1 == before first entry, NumEntries() == past last entry
}

// Cursor is a positional view into a tree rooted at a given hash: a stack
// of (node, index) frames, one per tree level, with the leaf frame at the
// bottom (spec §4.5/C8). A Cursor does not own its Loader and must never
// be shared across goroutines.
type Cursor struct {
	loader *chunk.Loader
	kind   Kind
	frames []frame
}

func (c *Cursor) loadNode(h hash.Hash) (*Node, error) {
	ch, ok, err := c.loader.Get(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tree: chunk %s not found", h)
	}
	return ParseNode(ch, c.kind)
}

// AtIndex constructs a Cursor positioned at the idx-th element of the tree
// rooted at root, descending using numElements summaries. idx may equal
// the tree's total element count, in which case the cursor is positioned
// at the end of the sequence; idx greater than the total is an error.
func AtIndex(root hash.Hash, idx uint64, kind Kind, loader *chunk.Loader) (*Cursor, error) {
	c := &Cursor{loader: loader, kind: kind}
	rootNode, err := c.loadNode(root)
	if err != nil {
		return nil, err
	}
	if idx > rootNode.NumElements() {
		return nil, fmt.Errorf("tree: index %d exceeds tree size %d", idx, rootNode.NumElements())
	}
	c.frames = append(c.frames, frame{node: rootNode})
	remaining := idx
	for {
		top := &c.frames[len(c.frames)-1]
		if top.node.IsLeaf() {
			top.idx = int(remaining)
			return c, nil
		}
		j, rem, err := findChildByIndex(top.node, remaining)
		if err != nil {
			return nil, err
		}
		top.idx = j
		remaining = rem
		child, err := c.loadNode(top.node.ChildHash(j))
		if err != nil {
			return nil, err
		}
		c.frames = append(c.frames, frame{node: child})
	}
}

// findChildByIndex picks the child whose subtree contains the remaining'th
// element (0-based), returning the child index and the remaining index
// within that child's subtree. If remaining equals the node's total
// element count exactly (positioning at the very end), the last child is
// selected with remaining equal to that child's own element count.
func findChildByIndex(n *Node, remaining uint64) (int, uint64, error) {
	var cum uint64
	for j := 0; j < n.NumEntries(); j++ {
		e := n.entries[j]
		if remaining < cum+e.NumElements || j == n.NumEntries()-1 {
			return j, remaining - cum, nil
		}
		cum += e.NumElements
	}
	return 0, 0, fmt.Errorf("tree: empty meta node")
}

// AtKey constructs a Cursor positioned at the element with the smallest
// OrderedKey no smaller than key, descending using maxOrderedKey
// summaries (spec §4.5). If every element sorts before key, the cursor is
// positioned at the end of the sequence.
func AtKey(root hash.Hash, key OrderedKey, kind Kind, loader *chunk.Loader) (*Cursor, error) {
	c := &Cursor{loader: loader, kind: kind}
	rootNode, err := c.loadNode(root)
	if err != nil {
		return nil, err
	}
	c.frames = append(c.frames, frame{node: rootNode})
	for {
		top := &c.frames[len(c.frames)-1]
		if top.node.IsLeaf() {
			top.idx = lowerBoundLeaf(top.node, key)
			return c, nil
		}
		j := lowerBoundMeta(top.node, key)
		if j == top.node.NumEntries() {
			// key sorts after every child's summarized range in this
			// subtree: descend into the last child: the general loop
			// will keep landing in this same "off the end" branch (or
			// its leaf-level equivalent) all the way down, since every
			// descendant's MaxOrderedKey is transitively < key too.
			j = top.node.NumEntries() - 1
		}
		top.idx = j
		child, err := c.loadNode(top.node.ChildHash(j))
		if err != nil {
			return nil, err
		}
		c.frames = append(c.frames, frame{node: child})
	}
}

// lowerBoundMeta returns the smallest entry index j such that
// key <= entries[j].MaxOrderedKey, or NumEntries() if none qualifies.
func lowerBoundMeta(n *Node, key OrderedKey) int {
	for j := 0; j < n.NumEntries(); j++ {
		if !n.entries[j].MaxOrderedKey.Less(key) {
			return j
		}
	}
	return n.NumEntries()
}

// lowerBoundLeaf returns the smallest element index i such that
// key <= n.Key(i), or NumEntries() (end) if none qualifies.
func lowerBoundLeaf(n *Node, key OrderedKey) int {
	for i := 0; i < n.NumEntries(); i++ {
		if !n.Key(i).Less(key) {
			return i
		}
	}
	return n.NumEntries()
}

// IsEnd reports whether the cursor is positioned past the last element of
// the whole sequence.
func (c *Cursor) IsEnd() bool {
	f := c.frames[len(c.frames)-1]
	return f.idx >= f.node.NumEntries()
}

// IsBegin reports whether the cursor is positioned before the first
// element of the whole sequence.
func (c *Cursor) IsBegin() bool {
	f := c.frames[len(c.frames)-1]
	return f.idx < 0
}

// CurrentKey returns the OrderedKey of the current element. Undefined at
// IsEnd()/IsBegin().
func (c *Cursor) CurrentKey() OrderedKey {
	f := c.frames[len(c.frames)-1]
	return f.node.Key(f.idx)
}

// CurrentBytes returns the current element's payload bytes: for a Blob
// tree, the single current byte; for List, the element value; for Map,
// the entry's value; for Set, the entry's key (Set entries carry no
// separate value).
func (c *Cursor) CurrentBytes() []byte {
	f := c.frames[len(c.frames)-1]
	switch f.node.kind {
	case KindBlob:
		return f.node.blob[f.idx : f.idx+1]
	case KindList:
		return f.node.GetListValue(f.idx)
	case KindMap:
		return f.node.GetMapEntry(f.idx).Value
	case KindSet:
		return f.node.GetSetKey(f.idx)
	}
	panic("tree: unreachable")
}

// CurrentMapEntry returns the current Map leaf entry. Valid only for
// Map-kind cursors.
func (c *Cursor) CurrentMapEntry() MapEntry {
	f := c.frames[len(c.frames)-1]
	return f.node.GetMapEntry(f.idx)
}

func (c *Cursor) leafFrame() *frame { return &c.frames[len(c.frames)-1] }

func (c *Cursor) descendToFirst(k int) error {
	c.frames = c.frames[:k+1]
	for {
		top := &c.frames[len(c.frames)-1]
		if top.node.IsLeaf() {
			return nil
		}
		child, err := c.loadNode(top.node.ChildHash(top.idx))
		if err != nil {
			return err
		}
		c.frames = append(c.frames, frame{node: child, idx: 0})
	}
}

func (c *Cursor) descendToLast(k int) error {
	c.frames = c.frames[:k+1]
	for {
		top := &c.frames[len(c.frames)-1]
		if top.node.IsLeaf() {
			return nil
		}
		child, err := c.loadNode(top.node.ChildHash(top.idx))
		if err != nil {
			return err
		}
		c.frames = append(c.frames, frame{node: child, idx: child.NumEntries() - 1})
	}
}

// Advance moves the cursor forward by one element. If crossBoundary is
// true and the cursor is at the last element of its current leaf, it pops
// to the parent frame, advances there (recursively, possibly crossing
// further up), and re-descends to the first element of the new leaf —
// letting the cursor traverse the entire sequence. It returns whether the
// cursor is positioned at a valid element after the move (false means it
// is now at the end).
func (c *Cursor) Advance(crossBoundary bool) (bool, error) {
	last := len(c.frames) - 1
	f := &c.frames[last]
	if f.idx+1 < f.node.NumEntries() {
		f.idx++
		return true, nil
	}
	if !crossBoundary || last == 0 {
		f.idx = f.node.NumEntries()
		return false, nil
	}
	ok, err := c.advanceAt(last - 1)
	if err != nil {
		return false, err
	}
	if !ok {
		f.idx = f.node.NumEntries()
		return false, nil
	}
	return true, nil
}

func (c *Cursor) advanceAt(k int) (bool, error) {
	f := &c.frames[k]
	if f.idx+1 < f.node.NumEntries() {
		f.idx++
		if err := c.descendToFirst(k); err != nil {
			return false, err
		}
		return true, nil
	}
	if k == 0 {
		return false, nil
	}
	return c.advanceAt(k - 1)
}

// Retreat moves the cursor backward by one element, symmetric to Advance.
func (c *Cursor) Retreat(crossBoundary bool) (bool, error) {
	last := len(c.frames) - 1
	f := &c.frames[last]
	if f.idx-1 >= 0 {
		f.idx--
		return true, nil
	}
	if !crossBoundary || last == 0 {
		f.idx = -1
		return false, nil
	}
	ok, err := c.retreatAt(last - 1)
	if err != nil {
		return false, err
	}
	if !ok {
		f.idx = -1
		return false, nil
	}
	return true, nil
}

func (c *Cursor) retreatAt(k int) (bool, error) {
	f := &c.frames[k]
	if f.idx-1 >= 0 {
		f.idx--
		if err := c.descendToLast(k); err != nil {
			return false, err
		}
		return true, nil
	}
	if k == 0 {
		return false, nil
	}
	return c.retreatAt(k - 1)
}

// AdvanceSteps advances the cursor by up to n elements, returning the
// number actually advanced (less than n if the end of the sequence is
// reached first). It jumps directly within the current leaf when the
// target falls inside it, and otherwise steps one element at a time with
// Advance until it does; the per-level summaries are not used to skip
// whole subtrees.
func (c *Cursor) AdvanceSteps(n uint64) (uint64, error) {
	var moved uint64
	for moved < n {
		remaining := n - moved
		f := c.leafFrame()
		if f.idx < f.node.NumEntries() {
			spaceInLeaf := uint64(f.node.NumEntries() - f.idx - 1)
			if remaining <= spaceInLeaf {
				f.idx += int(remaining)
				return moved + remaining, nil
			}
		}
		ok, err := c.Advance(true)
		if err != nil {
			return moved, err
		}
		moved++
		if !ok {
			return moved, nil
		}
	}
	return moved, nil
}

// RetreatSteps is the symmetric counterpart of AdvanceSteps.
func (c *Cursor) RetreatSteps(n uint64) (uint64, error) {
	var moved uint64
	for moved < n {
		remaining := n - moved
		f := c.leafFrame()
		if f.idx >= 0 {
			spaceInLeaf := uint64(f.idx)
			if remaining <= spaceInLeaf {
				f.idx -= int(remaining)
				return moved + remaining, nil
			}
		}
		ok, err := c.Retreat(true)
		if err != nil {
			return moved, err
		}
		moved++
		if !ok {
			return moved, nil
		}
	}
	return moved, nil
}

// Depth reports the number of tree levels this cursor spans (1 for a
// single-leaf tree).
func (c *Cursor) Depth() int { return len(c.frames) }

// AtLevel returns the node and index at the given level, 0 being the
// root. Used by Builder.Splice to walk two cursors level by level,
// splicing in edited subtrees while reusing every sibling entry outside
// the edited range unread.
func (c *Cursor) AtLevel(level int) (*Node, int) {
	f := c.frames[level]
	return f.node, f.idx
}

// Index returns the cursor's absolute 0-based position in the overall
// sequence, computed by summing the NumElements of every preceding
// sibling at each level plus the leaf-local index. Used by Builder.Splice
// to recompute positional OrderedKeys (Blob/List) after an edit shifts
// everything downstream of it.
func (c *Cursor) Index() uint64 {
	var idx uint64
	for level := 0; level < len(c.frames)-1; level++ {
		f := c.frames[level]
		for j := 0; j < f.idx; j++ {
			idx += f.node.entries[j].NumElements
		}
	}
	leaf := c.frames[len(c.frames)-1]
	if leaf.idx > 0 {
		idx += uint64(leaf.idx)
	}
	return idx
}

// Clone returns a deep copy of c so the two cursors can be advanced
// independently without aliasing each other's frame stack.
func (c *Cursor) Clone() *Cursor {
	frames := make([]frame, len(c.frames))
	copy(frames, c.frames)
	return &Cursor{loader: c.loader, kind: c.kind, frames: frames}
}
