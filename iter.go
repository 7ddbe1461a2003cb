package pagedb

import "iter"

// cursor walks one tree in ascending key order. Roots are immutable, so a
// cursor can keep running while a writer builds a new tree; it will simply
// never see the writer's changes.
type cursor struct {
	s     *pageStore
	stack []cursorFrame
}

type cursorFrame struct {
	n   node
	idx int
}

func newCursor(s *pageStore, root pgno) (*cursor, error) {
	c := &cursor{s: s}
	if root == 0 {
		return c, nil
	}
	if err := c.descend(root); err != nil {
		return nil, err
	}
	// An empty node on the leftmost path only occurs in a tree that has
	// never been committed a key; treat it as exhausted.
	if top := c.top(); top != nil && top.idx >= top.n.nkeys() {
		c.stack = nil
	}
	return c, nil
}

// descend pushes the leftmost path from p down to a leaf.
func (c *cursor) descend(p pgno) error {
	for {
		n := node(c.s.page(p))
		c.stack = append(c.stack, cursorFrame{n: n})
		switch n.btype() {
		case pageLeaf:
			return nil
		case pageBranch:
			if n.nkeys() == 0 {
				return nil
			}
			p = n.ptr(0)
		default:
			return corruptf(p, "unexpected page type %d in tree", n.btype())
		}
		if len(c.stack) > 64 {
			return corruptf(p, "tree deeper than 64 levels")
		}
	}
}

// newCursorAt positions a cursor at the first key >= key in cmp order.
func newCursorAt(s *pageStore, root pgno, cmp Comparator, key []byte) (*cursor, error) {
	c := &cursor{s: s}
	if root == 0 {
		return c, nil
	}
	p := root
	for {
		n := node(s.page(p))
		switch n.btype() {
		case pageLeaf:
			idx, _ := leafSearch(n, cmp, key)
			c.stack = append(c.stack, cursorFrame{n: n, idx: idx})
			if idx >= n.nkeys() {
				// Every key in this leaf is below key; advance into the
				// next subtree.
				if err := c.next(); err != nil {
					return nil, err
				}
			}
			return c, nil
		case pageBranch:
			if n.nkeys() == 0 {
				c.stack = nil
				return c, nil
			}
			idx := branchChild(n, cmp, key)
			c.stack = append(c.stack, cursorFrame{n: n, idx: idx})
			p = n.ptr(idx)
		default:
			return nil, corruptf(p, "unexpected page type %d in tree", n.btype())
		}
		if len(c.stack) > 64 {
			return nil, corruptf(p, "tree deeper than 64 levels")
		}
	}
}

func (c *cursor) top() *cursorFrame {
	if len(c.stack) == 0 {
		return nil
	}
	return &c.stack[len(c.stack)-1]
}

func (c *cursor) valid() bool {
	top := c.top()
	return top != nil && top.idx < top.n.nkeys()
}

func (c *cursor) key() []byte {
	top := c.top()
	return top.n.key(top.idx)
}

func (c *cursor) value() ([]byte, error) {
	top := c.top()
	return resolveValue(c.s, top.n, top.idx)
}

func (c *cursor) next() error {
	top := c.top()
	if top == nil {
		return nil
	}
	top.idx++
	if top.idx < top.n.nkeys() {
		return nil
	}
	// Pop exhausted frames, then descend into the next sibling subtree.
	c.stack = c.stack[:len(c.stack)-1]
	for len(c.stack) > 0 {
		fr := c.top()
		fr.idx++
		if fr.idx < fr.n.nkeys() {
			return c.descend(fr.n.ptr(fr.idx))
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return nil
}

// iterTree yields all (key, value) pairs of the tree rooted at root in
// ascending key order. Structural damage encountered mid-walk panics with
// a CorruptError; pages reachable from a committed root are trusted.
func iterTree(s *pageStore, root pgno) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		c, err := newCursor(s, root)
		if err != nil {
			panic(err)
		}
		for c.valid() {
			v, err := c.value()
			if err != nil {
				panic(err)
			}
			if !yield(c.key(), v) {
				return
			}
			if err := c.next(); err != nil {
				panic(err)
			}
		}
	}
}

// rangeTree yields the pairs with low <= key < high in ascending order. A
// nil low starts at the first key; a nil high runs to the end.
func rangeTree(s *pageStore, cmp Comparator, root pgno, low, high []byte) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		var c *cursor
		var err error
		if low == nil {
			c, err = newCursor(s, root)
		} else {
			c, err = newCursorAt(s, root, cmp, low)
		}
		if err != nil {
			panic(err)
		}
		for c.valid() {
			k := c.key()
			if high != nil && cmp(k, high) >= 0 {
				return
			}
			v, err := c.value()
			if err != nil {
				panic(err)
			}
			if !yield(k, v) {
				return
			}
			if err := c.next(); err != nil {
				panic(err)
			}
		}
	}
}

// countTree counts the keys in the tree rooted at root.
func countTree(s *pageStore, root pgno) (int, error) {
	c, err := newCursor(s, root)
	if err != nil {
		return 0, err
	}
	var n int
	for c.valid() {
		n++
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	return n, nil
}
