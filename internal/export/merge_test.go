package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/node"
)

func TestMergeCredentialsAddsNewLogin(t *testing.T) {
	base := node.NewGraph(14)
	sess := mmm.NewSession(base)

	incoming := node.NewGraph(14)
	incomingSess := mmm.NewSession(incoming)
	_, _, err := incomingSess.AddCredential("example.com", "carol", "pw", "", 1, 1)
	require.NoError(t, err)

	require.NoError(t, MergeCredentials(sess, incomingSess.Clone()))

	parent, ok := sess.Clone().FindByService(node.CredParent, "example.com")
	require.True(t, ok)
	_, ok = sess.Clone().FindChildByLoginUnder(parent, "carol")
	require.True(t, ok)
}

func TestMergeCredentialsPrefersNewerDateUsed(t *testing.T) {
	base := node.NewGraph(14)
	sess := mmm.NewSession(base)
	_, _, err := sess.AddCredential("example.com", "dave", "old-password-bytes", "old", 1, 1)
	require.NoError(t, err)

	incoming := node.NewGraph(14)
	incomingSess := mmm.NewSession(incoming)
	_, _, err = incomingSess.AddCredential("example.com", "dave", "old-password-bytes", "new", 1, 9)
	require.NoError(t, err)

	require.NoError(t, MergeCredentials(sess, incomingSess.Clone()))

	parent, ok := sess.Clone().FindByService(node.CredParent, "example.com")
	require.True(t, ok)
	child, ok := sess.Clone().FindChildByLoginUnder(parent, "dave")
	require.True(t, ok)
	require.Equal(t, "new", child.Description)
	require.EqualValues(t, 9, child.DateUsed)
}

func TestMergeCredentialsKeepsBothOnPasswordCollision(t *testing.T) {
	base := node.NewGraph(14)
	sess := mmm.NewSession(base)
	_, _, err := sess.AddCredential("example.com", "erin", "password-a", "", 1, 1)
	require.NoError(t, err)

	incoming := node.NewGraph(14)
	incomingSess := mmm.NewSession(incoming)
	_, _, err = incomingSess.AddCredential("example.com", "erin", "password-b-different", "", 1, 1)
	require.NoError(t, err)

	require.NoError(t, MergeCredentials(sess, incomingSess.Clone()))

	parent, ok := sess.Clone().FindByService(node.CredParent, "example.com")
	require.True(t, ok)
	children := sess.Clone().ChildrenOf(parent)
	require.Len(t, children, 2)
}

func TestMergeDataReplacesBlobWholesale(t *testing.T) {
	base := node.NewGraph(14)
	sess := mmm.NewSession(base)
	require.NoError(t, sess.SetDataNode("notes", []byte("old blob"), node.DataChildPayloadSize))

	incoming := node.NewGraph(14)
	incomingSess := mmm.NewSession(incoming)
	require.NoError(t, incomingSess.SetDataNode("notes", []byte("new blob contents"), node.DataChildPayloadSize))

	require.NoError(t, MergeData(sess, incomingSess.Clone()))

	parent, ok := sess.Clone().FindByService(node.DataParent, "notes")
	require.True(t, ok)
	children := sess.Clone().ChildrenOf(parent)
	require.Len(t, children, 1)
	require.Equal(t, "new blob contents", string(children[0].Payload))
}
