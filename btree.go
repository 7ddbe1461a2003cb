package pagedb

import "bytes"

// Comparator defines the total order of keys within one table. Tables
// default to plain byte ordering; a custom comparator must be supplied
// consistently across sessions, because separator keys persist on disk.
type Comparator func(a, b []byte) int

// DefaultComparator orders keys as byte strings.
func DefaultComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}

// leafSearch returns the index of the first cell with key >= k, and
// whether that cell's key equals k.
func leafSearch(n node, cmp Comparator, key []byte) (int, bool) {
	lo, hi := 0, n.nkeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.key(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < n.nkeys() && cmp(n.key(lo), key) == 0
}

// branchChild returns the child to descend into: the last cell whose
// separator is <= key, clamped to the first child for keys below every
// separator. Separators are maintained as the smallest key of each
// subtree, so a key below all of them can only belong to child 0.
func branchChild(n node, cmp Comparator, key []byte) int {
	lo, hi := 0, n.nkeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.key(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0
	}
	return lo - 1
}

// lookupTree descends from root to the containing leaf. The returned slice
// aliases the mapped region for inline values and stays valid while the
// snapshot that produced root is held.
func lookupTree(s *pageStore, cmp Comparator, root pgno, key []byte) ([]byte, error) {
	if root == 0 {
		return nil, ErrNotFound
	}
	p := root
	for {
		n := node(s.page(p))
		switch n.btype() {
		case pageLeaf:
			idx, found := leafSearch(n, cmp, key)
			if !found {
				return nil, ErrNotFound
			}
			return resolveValue(s, n, idx)
		case pageBranch:
			if n.nkeys() == 0 {
				return nil, ErrNotFound
			}
			p = n.ptr(branchChild(n, cmp, key))
		default:
			return nil, corruptf(p, "unexpected page type %d in tree", n.btype())
		}
	}
}

// treeWriter performs copy-on-write mutation of one tree within a write
// transaction. Mutation never alters pages reachable from the published
// root: every touched node is rebuilt in a scratch buffer and written to a
// freshly allocated page, and the superseded page numbers are handed to
// the transaction for reclamation.
type treeWriter struct {
	tx  *writeTxn
	cmp Comparator
}

// scratch buffers are double the page size so a node may temporarily
// overflow before splitting.
func (w *treeWriter) scratch() node {
	return node(make([]byte, 2*w.tx.pageSize()))
}

func (w *treeWriter) writeNode(n node) (pgno, error) {
	ps := w.tx.pageSize()
	if n.nbytes() > ps {
		panic(corruptf(0, "node exceeds page size after split"))
	}
	p, err := w.tx.allocPage()
	if err != nil {
		return 0, err
	}
	copy(w.tx.page(p), n[:ps])
	return p, nil
}

// insert adds or replaces key in the tree rooted at root (0 for an empty
// tree) and returns the new root. The input root's pages are never
// mutated; the caller owns publishing the result.
func (w *treeWriter) insert(root pgno, key, val []byte) (pgno, error) {
	if len(key) == 0 {
		return 0, invalidf("empty key")
	}
	if len(key) > w.tx.db.store.maxKeySize() {
		return 0, invalidf("key of %d bytes exceeds the %d-byte limit", len(key), w.tx.db.store.maxKeySize())
	}
	if len(val) > maxValueTotal {
		return 0, invalidf("value of %d bytes exceeds the %d-byte limit", len(val), maxValueTotal)
	}
	vf, payload, err := w.makeValue(val)
	if err != nil {
		return 0, err
	}

	if root == 0 {
		n := w.scratch()
		n.setHeader(pageLeaf, 1)
		n.appendCell(0, 0, key, vf, payload)
		return w.writeNode(n)
	}

	n, err := w.insertNode(root, key, vf, payload)
	if err != nil {
		return 0, err
	}
	w.tx.free(root)
	return w.writeRoot(n)
}

// writeRoot persists a possibly oversized node as the new root, adding a
// level when it has to split.
func (w *treeWriter) writeRoot(n node) (pgno, error) {
	nsplit, parts, err := w.split3(n)
	if err != nil {
		return 0, err
	}
	if nsplit == 1 {
		return w.writeNode(parts[0])
	}
	root := w.scratch()
	root.setHeader(pageBranch, nsplit)
	for i, part := range parts[:nsplit] {
		p, err := w.writeNode(part)
		if err != nil {
			return 0, err
		}
		root.appendCell(i, p, part.key(0), 0, nil)
	}
	return w.writeNode(root)
}

func (w *treeWriter) insertNode(pg pgno, key []byte, vf uint32, payload []byte) (node, error) {
	old := node(w.tx.page(pg))
	switch old.btype() {
	case pageLeaf:
		idx, found := leafSearch(old, w.cmp, key)
		n := w.scratch()
		if found {
			if err := w.freeCellOverflow(old, idx); err != nil {
				return nil, err
			}
			n.setHeader(pageLeaf, old.nkeys())
			appendRange(n, old, 0, 0, idx)
			n.appendCell(idx, 0, key, vf, payload)
			appendRange(n, old, idx+1, idx+1, old.nkeys()-(idx+1))
		} else {
			n.setHeader(pageLeaf, old.nkeys()+1)
			appendRange(n, old, 0, 0, idx)
			n.appendCell(idx, 0, key, vf, payload)
			appendRange(n, old, idx+1, idx, old.nkeys()-idx)
		}
		return n, nil

	case pageBranch:
		idx := branchChild(old, w.cmp, key)
		child := old.ptr(idx)
		kid, err := w.insertNode(child, key, vf, payload)
		if err != nil {
			return nil, err
		}
		w.tx.free(child)
		return w.replaceChild(old, idx, kid)

	default:
		return nil, corruptf(pg, "unexpected page type %d in tree", old.btype())
	}
}

// replaceChild rebuilds a branch node with child idx replaced by the given
// updated node, splitting the child first when it outgrew a page.
func (w *treeWriter) replaceChild(old node, idx int, kid node) (node, error) {
	nsplit, parts, err := w.split3(kid)
	if err != nil {
		return nil, err
	}
	n := w.scratch()
	n.setHeader(pageBranch, old.nkeys()+nsplit-1)
	appendRange(n, old, 0, 0, idx)
	for i, part := range parts[:nsplit] {
		p, err := w.writeNode(part)
		if err != nil {
			return nil, err
		}
		n.appendCell(idx+i, p, part.key(0), 0, nil)
	}
	appendRange(n, old, idx+nsplit, idx+1, old.nkeys()-(idx+1))
	return n, nil
}

// split3 splits an oversized node into up to three page-sized nodes.
func (w *treeWriter) split3(old node) (int, [3]node, error) {
	ps := w.tx.pageSize()
	if old.nbytes() <= ps {
		return 1, [3]node{old}, nil
	}
	left := w.scratch()
	right := node(make([]byte, ps))
	if err := w.split2(left, right, old); err != nil {
		return 0, [3]node{}, err
	}
	if left.nbytes() <= ps {
		return 2, [3]node{left, right}, nil
	}
	leftleft := node(make([]byte, ps))
	middle := node(make([]byte, ps))
	if err := w.split2(leftleft, middle, left); err != nil {
		return 0, [3]node{}, err
	}
	return 3, [3]node{leftleft, middle, right}, nil
}

// split2 divides old at a point where both halves fit a page. The left
// half may still exceed one page; split3 deals with that.
func (w *treeWriter) split2(left, right, old node) error {
	ps := w.tx.pageSize()
	nk := old.nkeys()
	if nk < 2 {
		return corruptf(0, "cannot split a node of %d cells", nk)
	}
	nleft := nk / 2
	leftBytes := func() int {
		return nodeHeader + 10*nleft + old.offset(nleft)
	}
	for leftBytes() > ps {
		nleft--
	}
	if nleft < 1 {
		return corruptf(0, "split produced an empty left node")
	}
	rightBytes := func() int {
		return old.nbytes() - leftBytes() + nodeHeader
	}
	for rightBytes() > ps {
		nleft++
	}
	if nleft >= nk {
		return corruptf(0, "split produced an empty right node")
	}

	left.setHeader(old.btype(), nleft)
	right.setHeader(old.btype(), nk-nleft)
	appendRange(left, old, 0, 0, nleft)
	appendRange(right, old, 0, nleft, nk-nleft)
	return nil
}

// delete removes key from the tree rooted at root and returns the new
// root plus whether the key was present. A tree that loses its last key
// collapses to root 0.
func (w *treeWriter) delete(root pgno, key []byte) (pgno, bool, error) {
	if root == 0 {
		return 0, false, nil
	}
	n, found, err := w.deleteNode(root, key)
	if err != nil || !found {
		return root, false, err
	}
	w.tx.free(root)
	if n.nkeys() == 0 {
		return 0, true, nil
	}
	p, err := w.writeRoot(n)
	if err != nil {
		return 0, false, err
	}
	return p, true, nil
}

func (w *treeWriter) deleteNode(pg pgno, key []byte) (node, bool, error) {
	old := node(w.tx.page(pg))
	switch old.btype() {
	case pageLeaf:
		idx, found := leafSearch(old, w.cmp, key)
		if !found {
			return nil, false, nil
		}
		if err := w.freeCellOverflow(old, idx); err != nil {
			return nil, false, err
		}
		n := w.scratch()
		n.setHeader(pageLeaf, old.nkeys()-1)
		appendRange(n, old, 0, 0, idx)
		appendRange(n, old, idx, idx+1, old.nkeys()-(idx+1))
		return n, true, nil

	case pageBranch:
		idx := branchChild(old, w.cmp, key)
		child := old.ptr(idx)
		kid, found, err := w.deleteNode(child, key)
		if err != nil || !found {
			return nil, found, err
		}
		w.tx.free(child)
		return w.mergeOrReplace(old, idx, kid)

	default:
		return nil, false, corruptf(pg, "unexpected page type %d in tree", old.btype())
	}
}

// mergeOrReplace folds an underfull updated child into a sibling when the
// pair fits one page, otherwise just relinks the updated child.
func (w *treeWriter) mergeOrReplace(old node, idx int, kid node) (node, bool, error) {
	ps := w.tx.pageSize()
	n := w.scratch()

	dir, sib := w.mergeSibling(old, idx, kid)
	switch {
	case dir != 0:
		merged := node(make([]byte, ps))
		var mergedAt int
		if dir < 0 {
			mergeNodes(merged, sib, kid)
			mergedAt = idx - 1
			w.tx.free(old.ptr(idx - 1))
		} else {
			mergeNodes(merged, kid, sib)
			mergedAt = idx
			w.tx.free(old.ptr(idx + 1))
		}
		p, err := w.writeNode(merged)
		if err != nil {
			return nil, false, err
		}
		n.setHeader(pageBranch, old.nkeys()-1)
		appendRange(n, old, 0, 0, mergedAt)
		n.appendCell(mergedAt, p, merged.key(0), 0, nil)
		appendRange(n, old, mergedAt+1, mergedAt+2, old.nkeys()-(mergedAt+2))
		return n, true, nil

	case kid.nkeys() == 0:
		// Sole child went empty; the parent goes empty with it and the
		// level collapses at the root.
		if old.nkeys() != 1 || idx != 0 {
			return nil, false, corruptf(0, "empty child of a multi-child branch")
		}
		n.setHeader(pageBranch, 0)
		return n, true, nil

	default:
		n, err := w.replaceChild(old, idx, kid)
		return n, true, err
	}
}

// mergeSibling reports whether the updated child should merge with its
// left (-1) or right (+1) sibling, following the quarter-page heuristic.
func (w *treeWriter) mergeSibling(parent node, idx int, kid node) (int, node) {
	ps := w.tx.pageSize()
	if kid.nbytes() > ps/4 {
		return 0, nil
	}
	if idx > 0 {
		sib := node(w.tx.page(parent.ptr(idx - 1)))
		if sib.nbytes()+kid.nbytes()-nodeHeader <= ps {
			return -1, sib
		}
	}
	if idx+1 < parent.nkeys() {
		sib := node(w.tx.page(parent.ptr(idx + 1)))
		if sib.nbytes()+kid.nbytes()-nodeHeader <= ps {
			return +1, sib
		}
	}
	return 0, nil
}

func mergeNodes(dst, left, right node) {
	dst.setHeader(left.btype(), left.nkeys()+right.nkeys())
	appendRange(dst, left, 0, 0, left.nkeys())
	appendRange(dst, right, left.nkeys(), 0, right.nkeys())
}

func (w *treeWriter) freeCellOverflow(n node, idx int) error {
	if n.vfield(idx)&overflowFlag == 0 {
		return nil
	}
	return w.freeOverflow(overflowHead(n.payload(idx)))
}
