package mmm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/node"
)

func buildParent(g *node.Graph, addr node.Address, name string) *node.Node {
	p := &node.Node{Kind: node.CredParent, Address: addr, ServiceName: name}
	g.InsertParentSorted(p)
	return p
}

func attachChild(g *node.Graph, parent *node.Node, addr node.Address, login string) *node.Node {
	c := &node.Node{Kind: node.CredChild, Address: addr, Login: login}
	if parent.FirstChild.IsNone() {
		parent.FirstChild = addr
	} else {
		last := parent.FirstChild
		for {
			n, ok := g.FindByAddress(last)
			if !ok || n.Next.IsNone() {
				n.Next = addr
				c.Prev = last
				break
			}
			last = n.Next
		}
	}
	g.AddNode(c)
	return c
}

func TestCheckAndRepairStaleFavorite(t *testing.T) {
	g := node.NewGraph(14)
	parent := buildParent(g, 1, "github.com")
	child := attachChild(g, parent, 10, "alice")
	g.Favorites[0] = node.Favorite{Parent: 1, Child: 10}

	g.UnlinkChild(parent, child)

	report := CheckAndRepair(g)
	require.Equal(t, 1, report.FavoritesCleared)
	require.True(t, g.Favorites[0].IsEmpty())
}

func TestCheckAndRepairMergesDuplicateParents(t *testing.T) {
	g := node.NewGraph(14)
	p1 := buildParent(g, 1, "aws.amazon.com")
	attachChild(g, p1, 10, "alice")

	p2 := buildParent(g, 2, "aws.amazon.com")
	attachChild(g, p2, 20, "bob")
	attachChild(g, p2, 21, "carol")

	report := CheckAndRepair(g)
	require.Equal(t, 1, report.ParentsMerged)

	remaining := g.ParentsOf(node.CredParent)
	require.Len(t, remaining, 1)
	require.Equal(t, node.Address(2), remaining[0].Address)
	require.Len(t, g.ChildrenOf(remaining[0]), 3)
}

func TestCheckAndRepairRemovesUnreachableOrphan(t *testing.T) {
	g := node.NewGraph(14)
	buildParent(g, 1, "github.com")

	orphan := &node.Node{Kind: node.CredParent, Address: 99, ServiceName: "orphan.example"}
	g.AddNode(orphan)

	report := CheckAndRepair(g)
	require.Equal(t, 1, report.OrphansRemoved)
	_, ok := g.FindByAddress(99)
	require.False(t, ok)
}

func TestCheckAndRepairReordersUnsortedChain(t *testing.T) {
	g := node.NewGraph(14)
	zebra := &node.Node{Kind: node.CredParent, Address: 1, ServiceName: "zebra.com", Next: 2}
	apple := &node.Node{Kind: node.CredParent, Address: 2, ServiceName: "apple.com", Prev: 1}
	g.LoadParentChain(node.CredParent, []*node.Node{zebra, apple})

	report := CheckAndRepair(g)
	require.Equal(t, 1, report.ChainsReordered)
	order := g.ParentsOf(node.CredParent)
	require.Equal(t, "apple.com", order[0].ServiceName)
	require.Equal(t, "zebra.com", order[1].ServiceName)
}
