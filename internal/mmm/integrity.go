// Package mmm implements C6: the management-mode engine that downloads,
// validates, repairs, diffs and writes back the entire on-device node
// database, following the nine phases of spec.md §4.6.
package mmm

import (
	"sort"
	"strings"

	"github.com/raoulh/moolticuted/internal/node"
)

// Report summarizes what the integrity-check pass (phase 3) found and
// fixed, so callers can log or surface it without re-deriving it from the
// graph.
type Report struct {
	OrphansReattached int
	OrphansRemoved    int
	LinksRepaired     int
	ChainsReordered   int
	FavoritesCleared  int
	ParentsMerged     int
}

// CheckAndRepair runs the integrity passes of spec.md §4.6 phase 3, in
// order, on g: tag-pointed, duplicate-parent merge, orphan
// reattach/remove, doubly-linked repair, ordering repair, then favorite
// validation.
func CheckAndRepair(g *node.Graph) Report {
	var r Report

	g.ClearTags()
	g.TagPointed(g.CredHead, node.CredParent)
	g.TagPointed(g.DataHead, node.DataParent)

	r.ParentsMerged += mergeDuplicateParents(g, node.CredParent)
	r.ParentsMerged += mergeDuplicateParents(g, node.DataParent)

	reattached, removed := reapOrphans(g)
	r.OrphansReattached += reattached
	r.OrphansRemoved += removed

	r.LinksRepaired += repairDoublyLinked(g, node.CredParent)
	r.LinksRepaired += repairDoublyLinked(g, node.DataParent)

	if reorderIfUnsorted(g, node.CredParent) {
		r.ChainsReordered++
	}
	if reorderIfUnsorted(g, node.DataParent) {
		r.ChainsReordered++
	}

	r.FavoritesCleared += validateFavorites(g)

	return r
}

// mergeDuplicateParents implements the tie-break policy "if two parents
// with the same service name are found, keep the one with more children;
// re-parent the other's children" (spec.md §4.6 tie-break policies).
func mergeDuplicateParents(g *node.Graph, kind node.Kind) int {
	merged := 0
	seen := map[string]*node.Node{}
	for _, p := range g.ParentsOf(kind) {
		folded := strings.ToLower(p.ServiceName)
		existing, ok := seen[folded]
		if !ok {
			seen[folded] = p
			continue
		}
		keep, drop := existing, p
		if len(g.ChildrenOf(p)) > len(g.ChildrenOf(existing)) {
			keep, drop = p, existing
			seen[folded] = p
		}
		for _, c := range g.ChildrenOf(drop) {
			g.UnlinkChild(drop, c)
			c.Prev = node.NoAddress
			c.Next = keep.FirstChild
			if first, ok := g.FindByAddress(keep.FirstChild); ok {
				first.Prev = c.Address
			}
			keep.FirstChild = c.Address
			g.AddNode(c)
		}
		g.UnlinkParent(drop)
		merged++
	}
	return merged
}

// reapOrphans finds every node in the graph that the tag-pointed pass
// (already run by the caller) left untagged, and either re-attaches it —
// if its Prev/Next can be localized consistently against a neighbor that
// is itself tagged — or removes it.
func reapOrphans(g *node.Graph) (reattached, removed int) {
	for _, n := range g.AllNodes() {
		if n.Pointed || n.IsVirtual {
			continue
		}
		if prev, ok := g.FindByAddress(n.Prev); ok && prev.Pointed {
			prev.Next = n.Address
			n.Pointed = true
			reattached++
			continue
		}
		if next, ok := g.FindByAddress(n.Next); ok && next.Pointed {
			next.Prev = n.Address
			n.Pointed = true
			reattached++
			continue
		}
		g.RemoveNode(n)
		removed++
	}
	return
}

// repairDoublyLinked forces next(prev(n)) == n and prev(next(n)) == n for
// every parent in kind's chain, preferring the Next direction as
// authoritative on a mismatch, per spec.md §4.6 phase 3.
func repairDoublyLinked(g *node.Graph, kind node.Kind) int {
	repairs := 0
	order := g.ParentsOf(kind)
	for i, p := range order {
		var wantPrev, wantNext node.Address
		if i > 0 {
			wantPrev = order[i-1].Address
		}
		if i < len(order)-1 {
			wantNext = order[i+1].Address
		}
		if p.Next != wantNext {
			p.Next = wantNext
			repairs++
		}
		if p.Prev != wantPrev {
			p.Prev = wantPrev
			repairs++
		}
	}
	return repairs
}

// reorderIfUnsorted rebuilds the chain order in memory if it is not
// already sorted by service name (case-insensitive), per spec.md §4.6
// phase 3's ordering-repair step.
func reorderIfUnsorted(g *node.Graph, kind node.Kind) bool {
	order := g.ParentsOf(kind)
	if sort.SliceIsSorted(order, func(i, j int) bool {
		return strings.ToLower(order[i].ServiceName) < strings.ToLower(order[j].ServiceName)
	}) {
		return false
	}
	for _, p := range order {
		g.UnlinkParent(p)
	}
	for _, p := range order {
		g.InsertParentSorted(p)
	}
	return true
}

// validateFavorites clears any favorite slot whose child reference no
// longer resolves to a linked node, per spec.md §4.6's "stale favorite"
// tie-break policy.
func validateFavorites(g *node.Graph) int {
	cleared := 0
	for i, f := range g.Favorites {
		if f.IsEmpty() {
			continue
		}
		parent, ok := g.FindByAddress(f.Parent)
		if !ok {
			g.Favorites[i] = node.Favorite{}
			cleared++
			continue
		}
		if !g.ChildLinked(parent, f.Child) {
			g.Favorites[i] = node.Favorite{}
			cleared++
		}
	}
	return cleared
}
