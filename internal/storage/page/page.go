// Package page implements one node of the sorted-file B-tree: a byte-packed
// AVL tree of fixed-size records embedded in a single logical page.
//
// What: A page holds up to 2047 records (the 11-bit node-id width) ordered
// by a caller-supplied comparator, balanced as an AVL tree, plus (for
// parent pages) a 6-byte child logical-page-number per node and an extra
// "first page" pointer for the subtree below every node's least neighbour.
// How: Every record lives at a fixed offset derived from its 1-based node
// id; node ids below "free" form a singly-linked free list (reusing the
// left-child slot as a next-pointer) so deletes don't require compaction.
// Why: keeping the record bytes, child pointers and AVL balance bits in one
// flat buffer (rather than separate node objects) means one sorted-file
// page is exactly one CompactFile logical page with no further indirection.
//
// Key ordering convention (unusual, preserved exactly from the source this
// was ported from): within a page's AVL tree the LEFT subtree holds keys
// GREATER than the node and the RIGHT subtree holds keys LESS. Every helper
// below that walks left/right mirrors this; do not "fix" it to the usual
// sense without also flipping iteration order in package sortedfile.
package page

const (
	nodeBase    = 8 // header size in bytes.
	maxNodeID   = 2047
	childLPNLen = 6 // bytes for a parent node's child-page pointer.
	overheadLen = 3 // balance + left-id + right-id, packed into 3 bytes.
)

// MaxNodesPerPage is the largest record count a page can hold before the
// owning sortedfile.SortedFile must split it: one below the 11-bit node-id
// ceiling, leaving id 0 reserved for "null".
const MaxNodesPerPage = maxNodeID - 1

// null is the node id meaning "no node" (used for root/left/right/free-head).
const null = 0

// Comparator reports how an incoming record compares to the record bytes
// stored at a node (data is sliced to exactly recSize bytes): negative if
// the incoming record sorts before data, zero if equal, positive if after.
type Comparator func(data []byte) int

// Save writes the incoming record's bytes into dst (len(dst) == recSize).
type Save func(dst []byte)

// Page is one AVL-tree node container backing a sorted-file B-tree page.
type Page struct {
	data    []byte
	level   uint8
	recSize int
	isParent bool
}

// New creates an empty page. recSize is the fixed record width (for a leaf,
// the full row/index record; for a parent, the routing key only).
func New(level uint8, recSize int) *Page {
	p := &Page{level: level, recSize: recSize, isParent: level > 0}
	p.data = make([]byte, nodeBase, nodeBase+childLPNLen)
	if p.isParent {
		p.data = append(p.data, make([]byte, childLPNLen)...)
	}
	p.writeHeader(0, 0, 0, 0)
	return p
}

// Wrap reconstructs a Page from previously saved bytes.
func Wrap(data []byte, recSize int) *Page {
	level := data[0]
	p := &Page{data: data, level: level, recSize: recSize, isParent: level > 0}
	return p
}

// Bytes returns the page's current on-disk representation, trimmed to just
// past the highest allocated node (plus the first-page trailer for parent
// pages).
func (p *Page) Bytes() []byte {
	_, _, _, alloc := p.readHeader()
	used := nodeBase + int(alloc)*p.nodeSize()
	if p.isParent {
		used += childLPNLen
	}
	if used > len(p.data) {
		used = len(p.data)
	}
	return p.data[:used]
}

func (p *Page) Level() uint8 { return p.level }
func (p *Page) IsParent() bool { return p.isParent }
func (p *Page) IsEmpty() bool { root, _, _, _ := p.readHeader(); return root == null }

func (p *Page) nodeSize() int {
	n := p.recSize + overheadLen
	if p.isParent {
		n += childLPNLen
	}
	return n
}

// ---- header packing: level(8) | root(11) | count(11) | free(11) | alloc(11) | reserved(12), little-endian u64.

func (p *Page) readHeader() (root, count, free, alloc uint16) {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(p.data[i]) << (8 * i)
	}
	root = uint16((v >> 8) & 0x7ff)
	count = uint16((v >> 19) & 0x7ff)
	free = uint16((v >> 30) & 0x7ff)
	alloc = uint16((v >> 41) & 0x7ff)
	return
}

func (p *Page) writeHeader(root, count, free, alloc uint16) {
	v := uint64(p.level)
	v |= uint64(root&0x7ff) << 8
	v |= uint64(count&0x7ff) << 19
	v |= uint64(free&0x7ff) << 30
	v |= uint64(alloc&0x7ff) << 41
	for i := 0; i < 8; i++ {
		p.data[i] = byte(v >> (8 * i))
	}
}

func (p *Page) root() uint16  { r, _, _, _ := p.readHeader(); return r }
func (p *Page) count() uint16 { _, c, _, _ := p.readHeader(); return c }

func (p *Page) setRoot(r uint16) {
	_, c, f, a := p.readHeader()
	p.writeHeader(r, c, f, a)
}
func (p *Page) setCount(c uint16) {
	r, _, f, a := p.readHeader()
	p.writeHeader(r, c, f, a)
}
func (p *Page) setFree(f uint16) {
	r, c, _, a := p.readHeader()
	p.writeHeader(r, c, f, a)
}
func (p *Page) setAlloc(a uint16) {
	r, c, f, _ := p.readHeader()
	p.writeHeader(r, c, f, a)
}

// ---- node offsets and field accessors. Node ids are 1-based; id 0 means null.

func (p *Page) nodeOffset(id uint16) int {
	return nodeBase + int(id-1)*p.nodeSize()
}

func (p *Page) ensureCapacity(id uint16) {
	need := p.nodeOffset(id) + p.nodeSize()
	if p.isParent {
		need += childLPNLen
	}
	if need <= len(p.data) {
		return
	}
	var first uint64
	if p.isParent {
		first = p.FirstPage()
	}
	grown := make([]byte, need)
	copy(grown, p.data)
	p.data = grown
	if p.isParent {
		p.SetFirstPage(first)
	}
}

// Record returns the stored record bytes for node id.
func (p *Page) Record(id uint16) []byte {
	off := p.nodeOffset(id)
	return p.data[off : off+p.recSize]
}

func (p *Page) setRecord(id uint16, save Save) {
	off := p.nodeOffset(id)
	save(p.data[off : off+p.recSize])
}

func (p *Page) overheadOffset(id uint16) int {
	off := p.nodeOffset(id) + p.recSize
	if p.isParent {
		off += childLPNLen
	}
	return off
}

// ChildLPN returns the child logical page number stored with a parent
// node.
func (p *Page) ChildLPN(id uint16) uint64 {
	off := p.nodeOffset(id) + p.recSize
	return getUint(p.data[off:off+childLPNLen], childLPNLen)
}

func (p *Page) setChildLPN(id uint16, lpn uint64) {
	off := p.nodeOffset(id) + p.recSize
	setUint(p.data[off:off+childLPNLen], childLPNLen, lpn)
}

// FirstPage returns the parent page's pointer to the subtree of keys below
// every node's least key.
func (p *Page) FirstPage() uint64 {
	off := len(p.data) - childLPNLen
	return getUint(p.data[off:off+childLPNLen], childLPNLen)
}

func (p *Page) SetFirstPage(lpn uint64) {
	off := len(p.data) - childLPNLen
	setUint(p.data[off:off+childLPNLen], childLPNLen, lpn)
}

func (p *Page) overhead(id uint16) (balance int, left, right uint16) {
	off := p.overheadOffset(id)
	b := p.data[off]
	lo := int(b&0x3f) | int(p.data[off+1]&0x1f)<<6
	hi := int(p.data[off+1]>>5) | int(p.data[off+2])<<3
	left = uint16(lo)
	right = uint16(hi)
	switch (b >> 6) & 0x3 {
	case 0:
		balance = 0
	case 1:
		balance = 1
	default:
		balance = -1
	}
	return
}

func (p *Page) setOverhead(id uint16, balance int, left, right uint16) {
	off := p.overheadOffset(id)
	var bbits byte
	switch balance {
	case 0:
		bbits = 0
	case 1:
		bbits = 1
	default:
		bbits = 2
	}
	b0 := byte(left&0x3f) | bbits<<6
	b1 := byte((left>>6)&0x1f) | byte((right&0x7)<<5)
	b2 := byte(right >> 3)
	p.data[off] = b0
	p.data[off+1] = b1
	p.data[off+2] = b2
}

func getUint(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func setUint(b []byte, n int, v uint64) {
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// ---- node allocation / free list (free-head reuses the left-child slot as "next free").

func (p *Page) allocNode() uint16 {
	_, count, free, alloc := p.readHeader()
	var id uint16
	if free != null {
		id = free
		_, nextFree, _ := p.overhead(id)
		p.writeHeader(p.root(), count+1, nextFree, alloc)
		return id
	}
	alloc++
	id = alloc
	p.ensureCapacity(id)
	p.writeHeader(p.root(), count+1, free, alloc)
	return id
}

func (p *Page) freeNode(id uint16) {
	_, count, free, alloc := p.readHeader()
	p.setOverhead(id, 0, free, 0)
	p.writeHeader(p.root(), count-1, id, alloc)
}

// left/right under the reversed convention: Left returns the subtree of
// keys GREATER than id; Right returns the subtree of keys LESS than id.
func (p *Page) left(id uint16) uint16 {
	_, l, _ := p.overhead(id)
	return l
}
func (p *Page) right(id uint16) uint16 {
	_, _, r := p.overhead(id)
	return r
}
func (p *Page) balance(id uint16) int {
	b, _, _ := p.overhead(id)
	return b
}

func (p *Page) setLeft(id uint16, l uint16) {
	b, _, r := p.overhead(id)
	p.setOverhead(id, b, l, r)
}
func (p *Page) setRight(id uint16, r uint16) {
	b, l, _ := p.overhead(id)
	p.setOverhead(id, b, l, r)
}
func (p *Page) setBalance(id uint16, b int) {
	_, l, r := p.overhead(id)
	p.setOverhead(id, b, l, r)
}

// FindEqual searches for a record matching cmp exactly. Returns the node id
// and its record offset, or ok=false.
func (p *Page) FindEqual(cmp Comparator) (id uint16, off int, ok bool) {
	x := p.root()
	for x != null {
		c := cmp(p.Record(x))
		switch {
		case c == 0:
			return x, p.nodeOffset(x), true
		case c > 0: // incoming > stored => go left (greater keys).
			x = p.left(x)
		default:
			x = p.right(x)
		}
	}
	return 0, 0, false
}

// FindChild finds, for a parent page, the child LPN whose subtree may
// contain cmp's key: the child of the node with the greatest key that is
// <= cmp's key, or FirstPage when every node's key is greater.
func (p *Page) FindChild(cmp Comparator) uint64 {
	x := p.root()
	var best uint16
	for x != null {
		c := cmp(p.Record(x))
		if c > 0 {
			// incoming > stored: x is a candidate; look on the greater (left) side for a tighter one.
			best = x
			x = p.left(x)
		} else if c == 0 {
			return p.ChildLPN(x)
		} else {
			x = p.right(x)
		}
	}
	if best == null {
		return p.FirstPage()
	}
	return p.ChildLPN(best)
}

// Insert adds a new record. Returns false if an equal key already exists
// (a silent no-op per spec's duplicate-key contract).
func (p *Page) Insert(cmp Comparator, save Save, childLPN uint64) bool {
	newRoot, _, inserted := p.insertInto(p.root(), cmp, save, childLPN)
	if inserted {
		p.setRoot(newRoot)
	}
	return inserted
}

// insertInto is the recursive AVL insert. Returns (newSubtreeRoot,
// heightGrew, inserted).
func (p *Page) insertInto(x uint16, cmp Comparator, save Save, childLPN uint64) (uint16, bool, bool) {
	if x == null {
		id := p.allocNode()
		p.setRecord(id, save)
		p.setOverhead(id, 0, null, null)
		if p.isParent {
			p.setChildLPN(id, childLPN)
		}
		return id, true, true
	}
	c := cmp(p.Record(x))
	if c == 0 {
		return x, false, false
	}
	if c > 0 {
		// incoming > stored => insert into the "greater" (left) subtree.
		newLeft, grew, ok := p.insertInto(p.left(x), cmp, save, childLPN)
		if !ok {
			return x, false, false
		}
		p.setLeft(x, newLeft)
		if !grew {
			return x, false, true
		}
		switch p.balance(x) {
		case -1:
			p.setBalance(x, 0)
			return x, false, true
		case 0:
			p.setBalance(x, 1)
			return x, true, true
		default:
			return p.rebalanceLeftHeavy(x), false, true
		}
	}
	newRight, grew, ok := p.insertInto(p.right(x), cmp, save, childLPN)
	if !ok {
		return x, false, false
	}
	p.setRight(x, newRight)
	if !grew {
		return x, false, true
	}
	switch p.balance(x) {
	case 1:
		p.setBalance(x, 0)
		return x, false, true
	case 0:
		p.setBalance(x, -1)
		return x, true, true
	default:
		return p.rebalanceRightHeavy(x), false, true
	}
}

// rebalanceLeftHeavy restores x whose left subtree is two levels taller than
// its right, and sets the final balance factor of every node it moves.
func (p *Page) rebalanceLeftHeavy(x uint16) uint16 {
	l := p.left(x)
	bl := p.balance(l)
	if bl >= 0 {
		y := p.rotateRight(x)
		p.setBalance(x, 1-bl)
		p.setBalance(y, bl-1)
		return y
	}
	bg := p.balance(p.right(l))
	p.setLeft(x, p.rotateLeft(l))
	y := p.rotateRight(x)
	p.setBalance(l, 0)
	p.setBalance(x, 0)
	if bg < 0 {
		p.setBalance(l, 1)
	} else if bg > 0 {
		p.setBalance(x, -1)
	}
	p.setBalance(y, 0)
	return y
}

// rebalanceRightHeavy is the mirror of rebalanceLeftHeavy.
func (p *Page) rebalanceRightHeavy(x uint16) uint16 {
	r := p.right(x)
	br := p.balance(r)
	if br <= 0 {
		y := p.rotateLeft(x)
		p.setBalance(x, -1-br)
		p.setBalance(y, br+1)
		return y
	}
	bg := p.balance(p.left(r))
	p.setRight(x, p.rotateRight(r))
	y := p.rotateLeft(x)
	p.setBalance(x, 0)
	p.setBalance(r, 0)
	if bg < 0 {
		p.setBalance(x, 1)
	} else if bg > 0 {
		p.setBalance(r, -1)
	}
	p.setBalance(y, 0)
	return y
}

// rotateLeft/rotateRight are the AVL single rotations expressed in terms of
// left()/right() as redefined by the reversed convention; they are
// structurally identical to a textbook AVL rotation because left/right are
// just labels here. The balance factors they write are replaced by their
// callers, rebalanceLeftHeavy and rebalanceRightHeavy.
func (p *Page) rotateLeft(x uint16) uint16 {
	y := p.right(x)
	p.setRight(x, p.left(y))
	p.setLeft(y, x)
	bx, by := p.balance(x), p.balance(y)
	if by <= 0 {
		if bx-1 < by {
			p.setBalance(x, bx-1)
		} else {
			p.setBalance(x, by-1)
		}
		p.setBalance(y, by-1)
	} else {
		nbx := bx - 1 - by
		p.setBalance(x, nbx)
		if bx-1 > 0 {
			p.setBalance(y, 0)
		} else {
			p.setBalance(y, bx-1)
		}
	}
	return y
}

func (p *Page) rotateRight(x uint16) uint16 {
	y := p.left(x)
	p.setLeft(x, p.right(y))
	p.setRight(y, x)
	bx, by := p.balance(x), p.balance(y)
	if by >= 0 {
		if bx+1 > by {
			p.setBalance(x, bx+1)
		} else {
			p.setBalance(x, by+1)
		}
		p.setBalance(y, by+1)
	} else {
		nbx := bx + 1 - by
		p.setBalance(x, nbx)
		if bx+1 < 0 {
			p.setBalance(y, 0)
		} else {
			p.setBalance(y, bx+1)
		}
	}
	return y
}

// Remove deletes the record matching cmp. Returns false if not found.
func (p *Page) Remove(cmp Comparator) bool {
	newRoot, _, removed := p.removeFrom(p.root(), cmp)
	if removed {
		p.setRoot(newRoot)
	}
	return removed
}

// removeFrom is the recursive AVL delete, substituting the least node of
// the greater-key (left, under the reversed convention) subtree when a
// two-child node is deleted. Returns (newSubtreeRoot, heightShrank, removed).
func (p *Page) removeFrom(x uint16, cmp Comparator) (uint16, bool, bool) {
	if x == null {
		return null, false, false
	}
	c := cmp(p.Record(x))
	if c > 0 {
		newLeft, shrank, ok := p.removeFrom(p.left(x), cmp)
		if !ok {
			return x, false, false
		}
		p.setLeft(x, newLeft)
		if shrank {
			return p.rebalanceAfterRightShrink(x)
		}
		return x, false, true
	}
	if c < 0 {
		newRight, shrank, ok := p.removeFrom(p.right(x), cmp)
		if !ok {
			return x, false, false
		}
		p.setRight(x, newRight)
		if shrank {
			return p.rebalanceAfterLeftShrink(x)
		}
		return x, false, true
	}
	// Found the node to delete.
	l, r := p.left(x), p.right(x)
	if l == null {
		p.freeNode(x)
		return r, true, true
	}
	if r == null {
		p.freeNode(x)
		return l, true, true
	}
	// Two children: pull up the least node of the greater-key (left) subtree.
	succID, newLeft, shrank := p.removeLeast(l)
	p.setLeft(succID, newLeft)
	p.setRight(succID, r)
	p.setBalance(succID, p.balance(x))
	p.freeNodeKeepOverhead(x)
	if shrank {
		return p.rebalanceAfterRightShrink(succID)
	}
	return succID, false, true
}

// freeNodeKeepOverhead releases x's slot without touching count bookkeeping
// twice (removeFrom already counts this as one structural removal via the
// caller's freeNode accounting inside removeLeast/freeNode paths).
func (p *Page) freeNodeKeepOverhead(id uint16) {
	p.freeNode(id)
}

// removeLeast extracts the node with the least key (under the reversed
// convention, the right-most node) from subtree x, returning its id, the
// new subtree root, and whether height shrank.
func (p *Page) removeLeast(x uint16) (leastID, newRoot uint16, shrank bool) {
	r := p.right(x)
	if r == null {
		return x, p.left(x), true
	}
	least, newR, shrankChild := p.removeLeast(r)
	p.setRight(x, newR)
	if !shrankChild {
		return least, x, false
	}
	newX, sh, _ := p.rebalanceAfterLeftShrink(x)
	return least, newX, sh
}

func (p *Page) rebalanceAfterLeftShrink(x uint16) (uint16, bool, bool) {
	switch p.balance(x) {
	case -1:
		p.setBalance(x, 0)
		return x, true, true
	case 0:
		p.setBalance(x, 1)
		return x, false, true
	default:
		lb := p.balance(p.left(x))
		return p.rebalanceLeftHeavy(x), lb != 0, true
	}
}

func (p *Page) rebalanceAfterRightShrink(x uint16) (uint16, bool, bool) {
	switch p.balance(x) {
	case 1:
		p.setBalance(x, 0)
		return x, true, true
	case 0:
		p.setBalance(x, -1)
		return x, false, true
	default:
		rb := p.balance(p.right(x))
		return p.rebalanceRightHeavy(x), rb != 0, true
	}
}

// Walk helpers for sortedfile's ascending/descending stack iterator. Under
// the reversed convention, "ascending by key" means visiting right before
// left (since right holds lesser keys).
func (p *Page) Root() uint16  { return p.root() }
func (p *Page) Left(id uint16) uint16  { return p.left(id) }
func (p *Page) Right(id uint16) uint16 { return p.right(id) }
func (p *Page) Count() int             { return int(p.count()) }

// InOrderAscending returns node ids in ascending key order (right-first
// traversal under the reversed convention) — used for page splitting and
// debug assertions, not hot-path iteration (see sortedfile.Stack for that).
func (p *Page) InOrderAscending() []uint16 {
	var out []uint16
	var walk func(uint16)
	walk = func(x uint16) {
		if x == null {
			return
		}
		walk(p.right(x))
		out = append(out, x)
		walk(p.left(x))
	}
	walk(p.root())
	return out
}
