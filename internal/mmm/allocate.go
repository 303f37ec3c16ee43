package mmm

import (
	"fmt"
	"sort"

	"github.com/raoulh/moolticuted/internal/node"
)

// virtualNodesNeedingAddress returns every still-virtual node in g, ordered
// by virtual address so allocation is deterministic across runs (useful for
// tests and for matching the device's FIFO free-slot response order).
func virtualNodesNeedingAddress(g *node.Graph) []*node.Node {
	var out []*node.Node
	for _, n := range g.AllNodes() {
		if n.IsVirtual {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VirtualAddress < out[j].VirtualAddress })
	return out
}

// AllocateAddresses implements spec.md §4.6 phase 6: count the new
// addresses the clone needs, map each virtual node onto one of the real
// addresses the device handed out in free, and patch every Prev/Next/
// FirstChild reference (plus the chain heads and favorites) that pointed at
// a virtual stand-in.
func AllocateAddresses(sess *Session, free []node.Address) error {
	g := sess.clone
	virtuals := virtualNodesNeedingAddress(g)
	if len(virtuals) > len(free) {
		return fmt.Errorf("mmm: need %d free addresses, device offered %d", len(virtuals), len(free))
	}

	mapping := make(map[node.Address]node.Address, len(virtuals))
	for i, n := range virtuals {
		real := free[i]
		mapping[n.Address] = real
		n.Address = real
		n.IsVirtual = false
	}

	for _, n := range g.AllNodes() {
		if real, ok := mapping[n.Prev]; ok {
			n.Prev = real
		}
		if real, ok := mapping[n.Next]; ok {
			n.Next = real
		}
		if real, ok := mapping[n.FirstChild]; ok {
			n.FirstChild = real
		}
	}
	if real, ok := mapping[g.CredHead]; ok {
		g.CredHead = real
	}
	if real, ok := mapping[g.DataHead]; ok {
		g.DataHead = real
	}
	for i, f := range g.Favorites {
		changed := false
		if real, ok := mapping[f.Parent]; ok {
			f.Parent = real
			changed = true
		}
		if real, ok := mapping[f.Child]; ok {
			f.Child = real
			changed = true
		}
		if changed {
			g.Favorites[i] = f
		}
	}

	g.Reindex()
	return nil
}

// NeededAddressCount reports how many virtual nodes in sess's clone still
// need a real address, the count the engine requests from the device in
// phase 6 before calling AllocateAddresses.
func NeededAddressCount(sess *Session) int {
	return len(virtualNodesNeedingAddress(sess.clone))
}
