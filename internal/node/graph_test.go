package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newParent(addr Address, name string) *Node {
	return &Node{Kind: CredParent, Address: addr, ServiceName: name}
}

func newChild(addr Address, login string) *Node {
	return &Node{Kind: CredChild, Address: addr, Login: login}
}

func TestInsertParentSortedKeepsOrder(t *testing.T) {
	g := NewGraph(14)
	g.InsertParentSorted(newParent(1, "github.com"))
	g.InsertParentSorted(newParent(2, "aws.amazon.com"))
	g.InsertParentSorted(newParent(3, "zendesk.com"))

	order := g.ParentsOf(CredParent)
	require.Len(t, order, 3)
	require.Equal(t, "aws.amazon.com", order[0].ServiceName)
	require.Equal(t, "github.com", order[1].ServiceName)
	require.Equal(t, "zendesk.com", order[2].ServiceName)
	require.Equal(t, Address(2), g.CredHead)
	require.True(t, order[0].Prev.IsNone())
	require.Equal(t, Address(1), order[0].Next)
	require.Equal(t, Address(2), order[1].Prev)
	require.True(t, order[2].Next.IsNone())
}

func TestFindByServiceCaseInsensitive(t *testing.T) {
	g := NewGraph(14)
	g.InsertParentSorted(newParent(1, "GitHub.com"))

	found, ok := g.FindByService(CredParent, "github.COM")
	require.True(t, ok)
	require.Equal(t, Address(1), found.Address)
}

func TestChildChainAndUnlink(t *testing.T) {
	g := NewGraph(14)
	parent := newParent(1, "github.com")
	g.InsertParentSorted(parent)

	c1 := newChild(10, "alice")
	c2 := newChild(11, "bob")
	c1.Next = 11
	c2.Prev = 10
	parent.FirstChild = 10
	g.AddNode(c1)
	g.AddNode(c2)

	children := g.ChildrenOf(parent)
	require.Len(t, children, 2)
	require.Equal(t, "alice", children[0].Login)
	require.Equal(t, "bob", children[1].Login)

	found, ok := g.FindChildByLoginUnder(parent, "bob")
	require.True(t, ok)
	require.Equal(t, Address(11), found.Address)

	g.UnlinkChild(parent, c1)
	require.Equal(t, Address(11), parent.FirstChild)
	remaining := g.ChildrenOf(parent)
	require.Len(t, remaining, 1)
	require.Equal(t, "bob", remaining[0].Login)
}

func TestTagPointedAndClearTags(t *testing.T) {
	g := NewGraph(14)
	parent := newParent(1, "github.com")
	g.InsertParentSorted(parent)
	c1 := newChild(10, "alice")
	parent.FirstChild = 10
	g.AddNode(c1)

	g.TagPointed(g.CredHead, CredParent)
	require.True(t, parent.Pointed)
	require.True(t, c1.Pointed)

	g.ClearTags()
	require.False(t, parent.Pointed)
	require.False(t, c1.Pointed)
}

func TestGraphCloneIsIndependent(t *testing.T) {
	g := NewGraph(14)
	g.InsertParentSorted(newParent(1, "github.com"))

	clone := g.Clone()
	cp, ok := clone.FindByAddress(1)
	require.True(t, ok)
	cp.ServiceName = "changed.example"

	original, ok := g.FindByAddress(1)
	require.True(t, ok)
	require.Equal(t, "github.com", original.ServiceName)
}

func TestNextVirtualAddressMonotonic(t *testing.T) {
	g := NewGraph(14)
	a := g.NextVirtualAddress()
	b := g.NextVirtualAddress()
	require.Less(t, a, b)
}
