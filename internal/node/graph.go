package node

import (
	"sort"
	"strings"
)

// Favorite is one (parent, child) favorite slot; (0,0) marks empty.
type Favorite struct {
	Parent Address
	Child  Address
}

func (f Favorite) IsEmpty() bool { return f.Parent.IsNone() && f.Child.IsNone() }

// CPZCTR pairs a 24-byte card identifier with its 3-byte encryption
// counter, one per smart card the device has been unlocked with.
type CPZCTR struct {
	CPZ [24]byte
	CTR [3]byte
}

// Graph is the in-memory flash node database: credential and data parent
// chains (each an ordered list of parents, each owning a child chain),
// favorites, chain heads, CTR and CPZ/CTR list.
//
// Per spec.md §3's Ownership note, a Graph is exclusively owned by the
// management-mode engine (internal/mmm); callers outside that package reach
// a Graph through the engine's accessors, which hand out the live graph
// rather than a copy.
type Graph struct {
	CredHead Address
	DataHead Address
	CTR      [3]byte
	CPZCTRs  []CPZCTR
	Favorites []Favorite

	byAddress        map[Address]*Node
	byVirtualAddress map[uint64]*Node

	credParentOrder []*Node // chain order, head to tail
	dataParentOrder []*Node

	nextVirtual uint64
}

// NewGraph builds an empty graph with favSlots favorite slots, all empty.
func NewGraph(favSlots int) *Graph {
	return &Graph{
		byAddress:        map[Address]*Node{},
		byVirtualAddress: map[uint64]*Node{},
		Favorites:        make([]Favorite, favSlots),
		nextVirtual:      1,
	}
}

// AddNode inserts n into the lookup tables without touching chain order;
// callers that need sorted insertion use InsertParentSorted instead. A
// virtual node is indexed both by its provisional Address (so Prev/Next
// chain traversal works identically to real nodes) and by its
// VirtualAddress (so import/allocation code can look it up before it has
// any Address at all).
func (g *Graph) AddNode(n *Node) {
	g.byAddress[n.Address] = n
	if n.IsVirtual {
		g.byVirtualAddress[n.VirtualAddress] = n
	}
}

// RemoveNode drops n from the lookup tables.
func (g *Graph) RemoveNode(n *Node) {
	delete(g.byAddress, n.Address)
	if n.IsVirtual {
		delete(g.byVirtualAddress, n.VirtualAddress)
	}
}

// provisionalAddressBit marks an Address as a stand-in for a virtual
// node's eventual real address, not a real device address — the
// allocation phase (spec.md §4.6 phase 6) replaces it and patches every
// reference once the device hands out real addresses.
const provisionalAddressBit Address = 0x8000

// IsProvisional reports whether a is a synthetic virtual-node stand-in
// rather than a real device address.
func (a Address) IsProvisional() bool { return a&provisionalAddressBit != 0 }

// NextVirtualAddress returns a fresh, monotonically increasing virtual
// address for a node pre-allocated during import or editing, before the
// management-mode engine's address-allocation phase gives it a real one.
func (g *Graph) NextVirtualAddress() uint64 {
	v := g.nextVirtual
	g.nextVirtual++
	return v
}

// AllocateVirtualNode returns both a VirtualAddress (for FindByVirtualAddress
// lookups) and a provisional Address (so the node can be linked into a
// chain like any real node) for a brand-new node created during editing.
// The low 15 bits of the virtual counter are reused as the provisional
// address's payload, which bounds a single session to under 2^15 new
// nodes — ample for any interactive edit or import batch.
func (g *Graph) AllocateVirtualNode() (virtual uint64, addr Address) {
	v := g.NextVirtualAddress()
	return v, provisionalAddressBit | Address(v&0x7FFF)
}

// FindByAddress looks a real node up by its device address.
func (g *Graph) FindByAddress(addr Address) (*Node, bool) {
	n, ok := g.byAddress[addr]
	return n, ok
}

// FindByVirtualAddress looks a not-yet-allocated node up by its virtual
// address.
func (g *Graph) FindByVirtualAddress(v uint64) (*Node, bool) {
	n, ok := g.byVirtualAddress[v]
	return n, ok
}

// FindByService finds the parent (of the given kind) whose ServiceName
// matches name case-insensitively, walking the appropriate chain order.
func (g *Graph) FindByService(kind Kind, name string) (*Node, bool) {
	order := g.parentOrder(kind)
	folded := strings.ToLower(name)
	for _, p := range order {
		if strings.ToLower(p.ServiceName) == folded {
			return p, true
		}
	}
	return nil, false
}

// FindChildByLoginUnder finds parent's child whose Login matches login
// case-sensitively (logins are not folded, only service names are).
func (g *Graph) FindChildByLoginUnder(parent *Node, login string) (*Node, bool) {
	for c := g.childAt(parent.FirstChild, parent.IsVirtual, parent); c != nil; c = g.nextChild(c) {
		if c.Login == login {
			return c, true
		}
	}
	return nil, false
}

// childAt resolves a child address (real or, for a still-virtual parent,
// looked up by virtual address) to its Node.
func (g *Graph) childAt(addr Address, parentIsVirtual bool, parent *Node) *Node {
	if addr.IsNone() {
		return nil
	}
	n, ok := g.byAddress[addr]
	if !ok {
		return nil
	}
	return n
}

func (g *Graph) nextChild(c *Node) *Node {
	if c.Next.IsNone() {
		return nil
	}
	n, ok := g.byAddress[c.Next]
	if !ok {
		return nil
	}
	return n
}

func (g *Graph) parentOrder(kind Kind) []*Node {
	if kind == DataParent {
		return g.dataParentOrder
	}
	return g.credParentOrder
}

func (g *Graph) setParentOrder(kind Kind, order []*Node) {
	if kind == DataParent {
		g.dataParentOrder = order
	} else {
		g.credParentOrder = order
	}
}

// LoadParentChain installs chain as kind's parent order exactly as given,
// without sorting or relinking — this is how the scan phase (spec.md
// §4.6 phase 2) populates the graph, since the device's on-flash chain
// order is whatever it is until the integrity-check pass (phase 3)
// verifies and, if necessary, rebuilds it.
func (g *Graph) LoadParentChain(kind Kind, chain []*Node) {
	g.setParentOrder(kind, append([]*Node(nil), chain...))
	for _, p := range chain {
		g.AddNode(p)
	}
	if len(chain) > 0 {
		if kind == DataParent {
			g.DataHead = chain[0].Address
		} else {
			g.CredHead = chain[0].Address
		}
	}
}

// InsertParentSorted inserts p into its chain in ascending,
// case-insensitive service-name order (spec.md §3 invariant 6), relinking
// Prev/Next of its new neighbors and the chain head if p becomes first.
func (g *Graph) InsertParentSorted(p *Node) {
	order := g.parentOrder(p.Kind)
	folded := strings.ToLower(p.ServiceName)
	idx := sort.Search(len(order), func(i int) bool {
		return strings.ToLower(order[i].ServiceName) >= folded
	})
	order = append(order, nil)
	copy(order[idx+1:], order[idx:])
	order[idx] = p
	g.setParentOrder(p.Kind, order)
	g.relinkParentChain(p.Kind)
	g.AddNode(p)
}

// UnlinkParent removes p from its chain, relinking neighbors and
// re-parenting nothing: callers are responsible for disposing of or
// re-attaching p's children first.
func (g *Graph) UnlinkParent(p *Node) {
	order := g.parentOrder(p.Kind)
	for i, n := range order {
		if n == p {
			order = append(order[:i], order[i+1:]...)
			break
		}
	}
	g.setParentOrder(p.Kind, order)
	g.relinkParentChain(p.Kind)
	g.RemoveNode(p)
}

// relinkParentChain rewrites every parent's Prev/Next (and the chain head)
// to match the current slice order, after an insert or removal.
func (g *Graph) relinkParentChain(kind Kind) {
	order := g.parentOrder(kind)
	var head Address
	for i, p := range order {
		if i == 0 {
			p.Prev = NoAddress
			head = p.Address
		} else {
			p.Prev = order[i-1].Address
		}
		if i == len(order)-1 {
			p.Next = NoAddress
		} else {
			p.Next = order[i+1].Address
		}
	}
	if kind == DataParent {
		g.DataHead = head
	} else {
		g.CredHead = head
	}
}

// UnlinkChild removes c from its parent's child chain, relinking the
// neighbors and the parent's FirstChild pointer if c was first.
func (g *Graph) UnlinkChild(parent, c *Node) {
	if parent.FirstChild == c.Address {
		parent.FirstChild = c.Next
	}
	if prev, ok := g.byAddress[c.Prev]; ok {
		prev.Next = c.Next
	}
	if next, ok := g.byAddress[c.Next]; ok {
		next.Prev = c.Prev
	}
	g.RemoveNode(c)
}

// ChildLinked reports whether childAddr appears in parent's child chain.
func (g *Graph) ChildLinked(parent *Node, childAddr Address) bool {
	for addr := parent.FirstChild; !addr.IsNone(); {
		if addr == childAddr {
			return true
		}
		c, ok := g.byAddress[addr]
		if !ok {
			break
		}
		addr = c.Next
	}
	return false
}

// ChildrenOf walks parent's child chain in order.
func (g *Graph) ChildrenOf(parent *Node) []*Node {
	var out []*Node
	for addr := parent.FirstChild; !addr.IsNone(); {
		c, ok := g.byAddress[addr]
		if !ok {
			break
		}
		out = append(out, c)
		addr = c.Next
	}
	return out
}

// ParentsOf returns the ordered parent chain for kind.
func (g *Graph) ParentsOf(kind Kind) []*Node {
	return append([]*Node(nil), g.parentOrder(kind)...)
}

// TagPointed starts at fromHead and tags every node reachable by following
// Next (parents) and then each parent's child chain, used by the
// integrity-check tag-pointed pass (spec.md §4.6 phase 3).
func (g *Graph) TagPointed(fromHead Address, kind Kind) {
	for addr := fromHead; !addr.IsNone(); {
		p, ok := g.byAddress[addr]
		if !ok {
			break
		}
		p.Pointed = true
		for _, c := range g.ChildrenOf(p) {
			c.Pointed = true
		}
		addr = p.Next
	}
}

// ClearTags resets the Pointed tag on every node, ahead of a fresh
// integrity-check pass.
func (g *Graph) ClearTags() {
	for _, n := range g.byAddress {
		n.Pointed = false
	}
}

// Reindex rebuilds the address lookup tables from the current node set,
// needed after an address-allocation pass (spec.md §4.6 phase 6) changes a
// node's Address and IsVirtual out from under the map keys that were built
// when it was added.
func (g *Graph) Reindex() {
	all := g.AllNodes()
	g.byAddress = make(map[Address]*Node, len(all))
	g.byVirtualAddress = map[uint64]*Node{}
	for _, n := range all {
		g.byAddress[n.Address] = n
		if n.IsVirtual {
			g.byVirtualAddress[n.VirtualAddress] = n
		}
	}
}

// AllNodes returns every node currently in the graph, real and virtual.
// byAddress already holds every node regardless of IsVirtual (AddNode always
// indexes it there); byVirtualAddress is an additional lookup over the same
// pointers, not a disjoint set, so it must not be walked here too — doing so
// would report every virtual node twice.
func (g *Graph) AllNodes() []*Node {
	out := make([]*Node, 0, len(g.byAddress))
	for _, n := range g.byAddress {
		out = append(out, n)
	}
	return out
}

// Clone deep-copies the whole graph (topology and every node), used by the
// management-mode engine to produce the editable clone of spec.md §4.6
// phase 4. Address-to-node identity is preserved: the clone's byAddress
// map points at freshly cloned Node values, not the originals.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		CredHead:         g.CredHead,
		DataHead:         g.DataHead,
		CTR:              g.CTR,
		CPZCTRs:          append([]CPZCTR(nil), g.CPZCTRs...),
		Favorites:        append([]Favorite(nil), g.Favorites...),
		byAddress:        make(map[Address]*Node, len(g.byAddress)),
		byVirtualAddress: make(map[uint64]*Node, len(g.byVirtualAddress)),
		nextVirtual:      g.nextVirtual,
	}
	for addr, n := range g.byAddress {
		cn := n.Clone()
		c.byAddress[addr] = cn
		if cn.IsVirtual {
			c.byVirtualAddress[cn.VirtualAddress] = cn
		}
	}
	c.credParentOrder = cloneOrder(c, g.credParentOrder)
	c.dataParentOrder = cloneOrder(c, g.dataParentOrder)
	return c
}

func cloneOrder(c *Graph, order []*Node) []*Node {
	out := make([]*Node, 0, len(order))
	for _, n := range order {
		if cn, ok := c.byAddress[n.Address]; ok {
			out = append(out, cn)
		}
	}
	return out
}
