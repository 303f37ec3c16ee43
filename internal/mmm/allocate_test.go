package mmm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/node"
)

func TestAllocateAddressesAssignsDistinctAddressesInOrder(t *testing.T) {
	authoritative := node.NewGraph(14)
	sess := NewSession(authoritative)

	parent1, child1, err := sess.AddCredential("github.com", "alice", "enc1", "d1", 0, 0)
	require.NoError(t, err)
	parent2, child2, err := sess.AddCredential("aws.amazon.com", "bob", "enc2", "d2", 0, 0)
	require.NoError(t, err)

	require.Equal(t, 4, NeededAddressCount(sess))

	free := []node.Address{0x10, 0x11, 0x12, 0x13}
	require.NoError(t, AllocateAddresses(sess, free))

	// Addresses are handed out in virtual-address creation order: parent1,
	// child1, parent2, child2 were allocated in that order by the two
	// AddCredential calls above.
	assigned := []*node.Node{parent1, child1, parent2, child2}
	for i, n := range assigned {
		require.False(t, n.IsVirtual, "node should no longer be virtual after allocation")
		require.Equal(t, free[i], n.Address)
	}

	seen := map[node.Address]bool{}
	for _, n := range assigned {
		require.False(t, seen[n.Address], "address %s assigned to more than one node", n.Address)
		seen[n.Address] = true
	}

	require.Equal(t, 0, NeededAddressCount(sess))
}

func TestAllocateAddressesPatchesFirstChildAndLinks(t *testing.T) {
	authoritative := node.NewGraph(14)
	sess := NewSession(authoritative)

	parent, child, err := sess.AddCredential("github.com", "alice", "enc", "desc", 0, 0)
	require.NoError(t, err)

	free := []node.Address{0x20, 0x21}
	require.NoError(t, AllocateAddresses(sess, free))

	require.Equal(t, parent.FirstChild, child.Address)
	require.True(t, sess.Clone().ChildLinked(parent, child.Address))

	found, ok := sess.Clone().FindByAddress(parent.FirstChild)
	require.True(t, ok)
	require.Same(t, child, found)
}

func TestAllocateAddressesErrorsWhenNotEnoughFreeAddresses(t *testing.T) {
	authoritative := node.NewGraph(14)
	sess := NewSession(authoritative)

	_, _, err := sess.AddCredential("github.com", "alice", "enc", "desc", 0, 0)
	require.NoError(t, err)

	err = AllocateAddresses(sess, []node.Address{0x10})
	require.Error(t, err)
}
